package riot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vibetom/boystats/internal/model"
)

// AccountLookup resolves a Riot ID to an account.
type AccountLookup interface {
	AccountByRiotID(ctx context.Context, gameName, tagLine string) (*AccountResponse, error)
}

// RankedLookup fetches summoner and ranked data for a resolved player.
type RankedLookup interface {
	AccountLookup
	SummonerByPUUID(ctx context.Context, puuid string) (*SummonerResponse, error)
	LeagueEntries(ctx context.Context, summonerID string) ([]LeagueEntry, error)
}

// Resolution is the outcome of resolving a roster. Players that failed are
// absent from Accounts and described in Errors.
type Resolution struct {
	Accounts map[string]string `json:"players"` // display name -> puuid
	Found    []string          `json:"playersFound"`
	Errors   []string          `json:"errors"`
}

// PUUIDs returns a reverse index puuid -> display name.
func (r Resolution) PUUIDs() map[string]string {
	out := make(map[string]string, len(r.Accounts))
	for name, id := range r.Accounts {
		out[id] = name
	}
	return out
}

// Resolver maps roster entries to stable player ids.
type Resolver struct {
	lookup AccountLookup
}

// NewResolver creates a resolver backed by lookup.
func NewResolver(lookup AccountLookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve issues one lookup per roster member concurrently. A failure for
// one player never aborts the others.
func (r *Resolver) Resolve(ctx context.Context, roster []model.PlayerIdentity) Resolution {
	type result struct {
		puuid string
		err   error
	}
	results := make([]result, len(roster))

	var g errgroup.Group
	for i, p := range roster {
		g.Go(func() error {
			acc, err := r.lookup.AccountByRiotID(ctx, p.DisplayName, p.RegionTag)
			if err == nil && acc.PUUID == "" {
				err = fmt.Errorf("riot: empty puuid")
			}
			if err != nil {
				results[i] = result{err: err}
				return nil
			}
			results[i] = result{puuid: acc.PUUID}
			return nil
		})
	}
	g.Wait()

	res := Resolution{Accounts: make(map[string]string, len(roster))}
	for i, p := range roster {
		if err := results[i].err; err != nil {
			slog.Warn("account resolution failed", "player", p.DisplayName, "err", err)
			res.Errors = append(res.Errors, fmt.Sprintf("PUUID error for %s#%s: %v", p.DisplayName, p.RegionTag, err))
			continue
		}
		res.Accounts[p.DisplayName] = results[i].puuid
		res.Found = append(res.Found, p.DisplayName)
	}
	return res
}

// ProfileLoader builds ranked profiles for the roster.
type ProfileLoader struct {
	lookup RankedLookup
	pace   time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewProfileLoader creates a loader that pauses pace between calls.
func NewProfileLoader(lookup RankedLookup, pace time.Duration) *ProfileLoader {
	return &ProfileLoader{lookup: lookup, pace: pace, sleep: sleepContext}
}

// Profiles loads account, summoner and ranked data one player at a time.
// Each player's failure is reported on its own profile.
func (l *ProfileLoader) Profiles(ctx context.Context, roster []model.PlayerIdentity) []model.PlayerProfile {
	profiles := make([]model.PlayerProfile, 0, len(roster))
	for i, p := range roster {
		if i > 0 && l.pace > 0 {
			if err := l.sleep(ctx, l.pace); err != nil {
				profiles = append(profiles, model.PlayerProfile{Name: p.DisplayName, Tag: p.RegionTag, Error: err.Error()})
				continue
			}
		}
		profiles = append(profiles, l.profile(ctx, p))
	}
	return profiles
}

func (l *ProfileLoader) profile(ctx context.Context, p model.PlayerIdentity) model.PlayerProfile {
	prof := model.PlayerProfile{Name: p.DisplayName, Tag: p.RegionTag}

	acc, err := l.lookup.AccountByRiotID(ctx, p.DisplayName, p.RegionTag)
	if err != nil {
		prof.Error = err.Error()
		return prof
	}
	prof.PUUID = acc.PUUID

	summoner, err := l.lookup.SummonerByPUUID(ctx, acc.PUUID)
	if err != nil {
		prof.Error = err.Error()
		return prof
	}
	prof.SummonerLevel = summoner.SummonerLevel
	prof.ProfileIconID = summoner.ProfileIconID

	entries, err := l.lookup.LeagueEntries(ctx, summoner.ID)
	if err != nil {
		prof.Error = err.Error()
		return prof
	}
	for _, e := range entries {
		switch e.QueueType {
		case "RANKED_SOLO_5x5":
			prof.SoloQueue = e.toModel()
		case "RANKED_FLEX_SR":
			prof.FlexQueue = e.toModel()
		}
	}
	return prof
}
