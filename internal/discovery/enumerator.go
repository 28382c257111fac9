// Package discovery enumerates the match ids involving a set of players.
//
// Enumeration is breadth-first by page: page 0 for every (player, queue)
// pair is fetched before any deeper page, and each deeper page is a
// synchronized round over the pairs whose previous page came back full.
// Under a tight deadline this gives every pair first-page coverage before
// spending requests on history depth.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vibetom/boystats/internal/budget"
	"github.com/vibetom/boystats/internal/dataset"
	"github.com/vibetom/boystats/internal/metrics"
	"github.com/vibetom/boystats/internal/riot"
)

// Lister fetches one page of a player's match ids.
type Lister interface {
	MatchIDs(ctx context.Context, puuid string, q riot.MatchIDsQuery) ([]string, error)
}

// Options controls one discovery run.
type Options struct {
	Queues      []int
	Pages       int           // deeper pages after the page-0 sweep; 0 = page 0 only
	StartTime   int64         // epoch seconds; 0 = unbounded
	Budget      time.Duration // checked before each round; 0 = none
	Concurrency int           // max in-flight requests per round; 0 = one per pair
}

// Debug mirrors what the dashboard shows about a discovery run.
type Debug struct {
	PlayersFound      []string       `json:"playersFound"`
	MatchIDsPerPlayer map[string]int `json:"matchIdsPerPlayer"` // "name_q420" -> count
	Queues            []int          `json:"queues"`
	PagesPerQueue     int            `json:"pagesPerQueue"` // including page 0
	Rounds            []int          `json:"rounds"` // requests issued per round
	Errors            []string       `json:"errors"`
	TotalMatchIDs     int            `json:"totalMatchIds"`
	TimeMs            int64          `json:"timeMs"`
}

// Result of a discovery run. IDs are unique and sorted newest first.
// Stopped wraps budget.ErrTimeoutBudgetExceeded when the deadline cut the
// run short; IDs are still valid in that case.
type Result struct {
	IDs     []string
	Debug   Debug
	Stopped error
}

// Enumerator discovers match ids through a Lister.
type Enumerator struct {
	lister Lister
	now    func() time.Time
}

// NewEnumerator creates an enumerator.
func NewEnumerator(l Lister) *Enumerator {
	return &Enumerator{lister: l, now: time.Now}
}

type pair struct {
	name  string
	puuid string
	queue int
}

func (p pair) key() string { return fmt.Sprintf("%s_q%d", p.name, p.queue) }

type pageResult struct {
	ids []string
	err error
}

// Discover enumerates ids for every (player, queue) pair. accounts maps
// display name to puuid; unresolved players are simply absent from it.
func (e *Enumerator) Discover(ctx context.Context, accounts map[string]string, opts Options) Result {
	deadline := budget.StartAt(e.now, opts.Budget)
	pages := max(opts.Pages, 0)

	names := make([]string, 0, len(accounts))
	for name := range accounts {
		names = append(names, name)
	}
	sort.Strings(names)

	candidates := make([]pair, 0, len(names)*len(opts.Queues))
	for _, name := range names {
		for _, q := range opts.Queues {
			candidates = append(candidates, pair{name: name, puuid: accounts[name], queue: q})
		}
	}

	debug := Debug{
		PlayersFound:      names,
		MatchIDsPerPlayer: make(map[string]int, len(candidates)),
		Queues:            opts.Queues,
		PagesPerQueue:     pages + 1,
	}
	seen := make(map[string]struct{})
	var all []string
	var stopped error

	for page := 0; page <= pages && len(candidates) > 0; page++ {
		if deadline.Exceeded() {
			stopped = deadline.Stop(fmt.Sprintf("page %d round (%d pairs pending)", page, len(candidates)))
			break
		}
		if err := ctx.Err(); err != nil {
			stopped = fmt.Errorf("discovery: %w", err)
			break
		}

		results := e.round(ctx, candidates, page, opts)
		debug.Rounds = append(debug.Rounds, len(candidates))

		next := candidates[:0:0]
		for i, p := range candidates {
			r := results[i]
			if r.err != nil {
				debug.Errors = append(debug.Errors, fmt.Sprintf("%s q%d p%d: %v", p.name, p.queue, page, r.err))
				continue
			}
			debug.MatchIDsPerPlayer[p.key()] += len(r.ids)
			for _, id := range r.ids {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				all = append(all, id)
			}
			// A full page means more history may exist.
			if len(r.ids) >= riot.PageSize {
				next = append(next, p)
			}
		}
		candidates = next
	}

	if stopped != nil {
		if errors.Is(stopped, budget.ErrTimeoutBudgetExceeded) {
			metrics.DiscoveryStops.Inc()
		}
		debug.Errors = append(debug.Errors, stopped.Error())
	}

	dataset.SortIDs(all)
	debug.TotalMatchIDs = len(all)
	debug.TimeMs = deadline.Elapsed().Milliseconds()

	slog.Info("match ids discovered",
		"players", len(names),
		"queues", len(opts.Queues),
		"rounds", len(debug.Rounds),
		"ids", len(all),
		"errors", len(debug.Errors),
		"elapsed_ms", debug.TimeMs,
	)

	return Result{IDs: all, Debug: debug, Stopped: stopped}
}

// round fetches one page for every candidate and waits for all of them.
func (e *Enumerator) round(ctx context.Context, candidates []pair, page int, opts Options) []pageResult {
	results := make([]pageResult, len(candidates))

	var g errgroup.Group
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for i, p := range candidates {
		g.Go(func() error {
			ids, err := e.lister.MatchIDs(ctx, p.puuid, riot.MatchIDsQuery{
				Start:     page * riot.PageSize,
				Count:     riot.PageSize,
				Queue:     p.queue,
				StartTime: opts.StartTime,
			})
			results[i] = pageResult{ids: ids, err: err}
			return nil
		})
	}
	g.Wait()
	return results
}
