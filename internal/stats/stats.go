// Package stats derives per-player, per-duo, and group metrics from a
// match collection. Compute is a pure function of its inputs.
//
// Ratios use shopspring/decimal so rendered percentages are exact and
// stable across runs.
package stats

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vibetom/boystats/internal/model"
)

const (
	recentGamesLimit = 20
	awardMinGames    = 3
)

var hundred = decimal.NewFromInt(100)

// ChampionStats counts games on one champion.
type ChampionStats struct {
	Games int `json:"games"`
	Wins  int `json:"wins"`
}

// PlayerStats are running totals plus derived ratios for one roster member.
type PlayerStats struct {
	Games         int                       `json:"games"`
	Wins          int                       `json:"wins"`
	Kills         int                       `json:"kills"`
	Deaths        int                       `json:"deaths"`
	Assists       int                       `json:"assists"`
	CS            int                       `json:"cs"`
	Gold          int                       `json:"gold"`
	Damage        int                       `json:"damage"`
	DamageTaken   int                       `json:"damageTaken"`
	Vision        int                       `json:"vision"`
	CC            int                       `json:"cc"`
	Healing       int                       `json:"healing"`
	Shielding     int                       `json:"shielding"`
	Doubles       int                       `json:"doubles"`
	Triples       int                       `json:"triples"`
	Quadras       int                       `json:"quadras"`
	Pentas        int                       `json:"pentas"`
	FirstBloods   int                       `json:"firstBloods"`
	SoloKills     int                       `json:"soloKills"`
	PerfectGames  int                       `json:"perfectGames"`
	Comebacks     int                       `json:"comebacks"`
	Surrenders    int                       `json:"surrenders"`
	LongestSpree  int                       `json:"longestSpree"`
	TotalKP       decimal.Decimal           `json:"totalKP"`
	TotalDmgShare decimal.Decimal           `json:"totalDmgShare"`
	TotalTime     int64                     `json:"totalTime"` // seconds
	Champions     map[string]*ChampionStats `json:"champions"`
	Roles         map[string]int            `json:"roles"`

	WinRate      decimal.Decimal `json:"winRate"` // percent
	KDA          decimal.Decimal `json:"kda"`
	AvgKP        decimal.Decimal `json:"avgKP"`       // percent
	AvgDmgShare  decimal.Decimal `json:"avgDmgShare"` // percent
	DamagePerMin decimal.Decimal `json:"damagePerMin"`
	CSPerMin     decimal.Decimal `json:"csPerMin"`
}

// DuoStats counts games two roster members played together.
type DuoStats struct {
	Games   int             `json:"games"`
	Wins    int             `json:"wins"`
	Players [2]string       `json:"players"`
	WinRate decimal.Decimal `json:"winRate"`
}

// RecentGame is one entry of the recent-form strip.
type RecentGame struct {
	MatchID      string   `json:"matchId"`
	GameCreation int64    `json:"gameCreation"`
	Won          bool     `json:"won"`
	Players      []string `json:"players"`
}

// Streak is the current run of wins or losses.
type Streak struct {
	Type  string `json:"type"` // "win", "loss", or ""
	Count int    `json:"count"`
}

// Award is a superlative among players with enough games.
type Award struct {
	Title  string `json:"title"`
	Sub    string `json:"sub"`
	Player string `json:"player"`
	Value  string `json:"value"`
}

// Summary is the full statistics view.
type Summary struct {
	Players     map[string]*PlayerStats `json:"players"`
	Duos        map[string]*DuoStats    `json:"duos"`
	TotalGames  int                     `json:"totalGames"`
	TotalWins   int                     `json:"totalWins"`
	WinRate     decimal.Decimal         `json:"winRate"`
	RecentGames []RecentGame            `json:"recentGames"`
	Streak      Streak                  `json:"streak"`
	Awards      []Award                 `json:"awards"`
}

// DuosByGames returns duos with at least minGames, most played first.
func (s Summary) DuosByGames(minGames int) []*DuoStats {
	var out []*DuoStats
	for _, d := range s.Duos {
		if d.Games >= minGames {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Games != out[j].Games {
			return out[i].Games > out[j].Games
		}
		return out[i].Players[0]+out[i].Players[1] < out[j].Players[0]+out[j].Players[1]
	})
	return out
}

// participantName prefers the roster name over the in-game name.
func participantName(p model.Participant) string {
	if p.RosterDisplayName != nil && *p.RosterDisplayName != "" {
		return *p.RosterDisplayName
	}
	return p.RiotIDGameName
}

// Compute aggregates matches (expected newest first) for the selected
// roster names. Matches with no selected roster member are skipped.
func Compute(matches []model.MatchRecord, selected []string) Summary {
	sum := Summary{
		Players:     make(map[string]*PlayerStats, len(selected)),
		Duos:        make(map[string]*DuoStats),
		RecentGames: []RecentGame{},
	}
	for _, name := range selected {
		sum.Players[name] = &PlayerStats{
			Champions: make(map[string]*ChampionStats),
			Roles:     make(map[string]int),
		}
	}

	for _, m := range matches {
		var boys []model.Participant
		for _, p := range m.Participants {
			if !p.IsRosterMember {
				continue
			}
			if _, ok := sum.Players[participantName(p)]; ok {
				boys = append(boys, p)
			}
		}
		if len(boys) == 0 {
			continue
		}

		won := boys[0].Win
		sum.TotalGames++
		if won {
			sum.TotalWins++
		}

		if len(sum.RecentGames) < recentGamesLimit {
			names := make([]string, len(boys))
			for i, p := range boys {
				names[i] = participantName(p)
			}
			sum.RecentGames = append(sum.RecentGames, RecentGame{
				MatchID:      m.MatchID,
				GameCreation: m.GameCreation,
				Won:          won,
				Players:      names,
			})
		}

		teamKills := map[int]int{}
		teamDamage := map[int]int{}
		for _, p := range m.Participants {
			teamKills[p.TeamID] += p.Kills
			teamDamage[p.TeamID] += p.TotalDamageDealtToChampions
		}

		for _, p := range boys {
			addParticipant(sum.Players[participantName(p)], p, m, teamKills[boys[0].TeamID], teamDamage[p.TeamID])
		}

		addDuos(sum.Duos, boys, won)
	}

	for _, s := range sum.Players {
		s.finalize()
	}
	for _, d := range sum.Duos {
		d.WinRate = percent(d.Wins, d.Games, 0)
	}
	sum.WinRate = percent(sum.TotalWins, sum.TotalGames, 1)
	sum.Streak = streak(sum.RecentGames)
	sum.Awards = awards(sum.Players)
	return sum
}

// addParticipant folds one roster line into s. Kill participation uses the
// first roster member's team, matching how the group's result is judged.
func addParticipant(s *PlayerStats, p model.Participant, m model.MatchRecord, teamKills, teamDamage int) {
	s.Games++
	if p.Win {
		s.Wins++
	}
	s.Kills += p.Kills
	s.Deaths += p.Deaths
	s.Assists += p.Assists
	s.CS += p.CS()
	s.Gold += p.GoldEarned
	s.Damage += p.TotalDamageDealtToChampions
	s.DamageTaken += p.TotalDamageTaken
	s.Vision += p.VisionScore
	s.CC += p.TimeCCingOthers
	s.Healing += p.TotalHealsOnTeammates
	s.Shielding += p.TotalDamageShieldedOnTeammates
	s.Doubles += p.DoubleKills
	s.Triples += p.TripleKills
	s.Quadras += p.QuadraKills
	s.Pentas += p.PentaKills
	if p.FirstBloodKill {
		s.FirstBloods++
	}
	if p.Challenges != nil {
		s.SoloKills += p.Challenges.SoloKills
		if p.Challenges.HadOpenNexus > 0 && p.Win {
			s.Comebacks++
		}
	}
	if p.Deaths == 0 && p.Win {
		s.PerfectGames++
	}
	if p.GameEndedInSurrender {
		s.Surrenders++
	}
	if p.LargestKillingSpree > s.LongestSpree {
		s.LongestSpree = p.LargestKillingSpree
	}

	if teamKills > 0 {
		s.TotalKP = s.TotalKP.Add(ratio(p.Kills+p.Assists, teamKills))
	}
	if teamDamage > 0 {
		s.TotalDmgShare = s.TotalDmgShare.Add(ratio(p.TotalDamageDealtToChampions, teamDamage))
	}
	s.TotalTime += m.GameDuration

	if p.ChampionName != "" {
		c, ok := s.Champions[p.ChampionName]
		if !ok {
			c = &ChampionStats{}
			s.Champions[p.ChampionName] = c
		}
		c.Games++
		if p.Win {
			c.Wins++
		}
	}
	if p.TeamPosition != "" && p.TeamPosition != "NONE" {
		s.Roles[p.TeamPosition]++
	}
}

func addDuos(duos map[string]*DuoStats, boys []model.Participant, won bool) {
	seen := map[string]bool{}
	var names []string
	for _, p := range boys {
		n := participantName(p)
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	sort.Strings(names)
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			key := names[i] + "+" + names[j]
			d, ok := duos[key]
			if !ok {
				d = &DuoStats{Players: [2]string{names[i], names[j]}}
				duos[key] = d
			}
			d.Games++
			if won {
				d.Wins++
			}
		}
	}
}

func (s *PlayerStats) finalize() {
	s.WinRate = percent(s.Wins, s.Games, 1)
	s.KDA = ratio(s.Kills+s.Assists, max(s.Deaths, 1)).Round(2)
	if s.Games > 0 {
		games := decimal.NewFromInt(int64(s.Games))
		s.AvgKP = s.TotalKP.Div(games).Mul(hundred).Round(1)
		s.AvgDmgShare = s.TotalDmgShare.Div(games).Mul(hundred).Round(1)
	}
	if s.TotalTime > 0 {
		minutes := decimal.NewFromInt(s.TotalTime).Div(decimal.NewFromInt(60))
		s.DamagePerMin = decimal.NewFromInt(int64(s.Damage)).Div(minutes).Round(0)
		s.CSPerMin = decimal.NewFromInt(int64(s.CS)).Div(minutes).Round(1)
	}
}

func streak(recent []RecentGame) Streak {
	if len(recent) == 0 {
		return Streak{}
	}
	first := recent[0].Won
	count := 1
	for _, g := range recent[1:] {
		if g.Won != first {
			break
		}
		count++
	}
	if first {
		return Streak{Type: "win", Count: count}
	}
	return Streak{Type: "loss", Count: count}
}

func ratio(num, den int) decimal.Decimal {
	if den == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(num)).Div(decimal.NewFromInt(int64(den)))
}

func percent(num, den int, places int32) decimal.Decimal {
	return ratio(num, den).Mul(hundred).Round(places)
}
