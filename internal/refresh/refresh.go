// Package refresh runs the end-to-end update of the persisted dataset:
// resolve the roster, discover match ids, fetch the unknown ones, and
// commit them through the cache manager.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vibetom/boystats/internal/budget"
	"github.com/vibetom/boystats/internal/cache"
	"github.com/vibetom/boystats/internal/config"
	"github.com/vibetom/boystats/internal/dataset"
	"github.com/vibetom/boystats/internal/discovery"
	"github.com/vibetom/boystats/internal/fetch"
	"github.com/vibetom/boystats/internal/model"
	"github.com/vibetom/boystats/internal/riot"
)

// ErrNoPlayers is returned when no roster member could be resolved.
var ErrNoPlayers = errors.New("refresh: no players resolved")

// commitTimeout bounds the final write. It runs detached from the request
// context so a stopped run still persists what it fetched.
const commitTimeout = 10 * time.Second

// Upstream is the subset of the Riot client a refresh needs.
type Upstream interface {
	riot.AccountLookup
	discovery.Lister
	fetch.Getter
}

// Datasets is the cache surface a refresh commits through.
type Datasets interface {
	Load(ctx context.Context) (*cache.Snapshot, error)
	Merge(ctx context.Context, fresh []model.MatchRecord, freshIDs []string, players map[string]string, expectedVersion int64) (cache.CommitResult, error)
	Commit(ctx context.Context, candidate model.Dataset, opts cache.CommitOptions) (cache.CommitResult, error)
}

// Stage names reported in events.
const (
	StageResolve  = "resolve"
	StageDiscover = "discover"
	StageFetch    = "fetch"
	StageCommit   = "commit"
	StageDone     = "done"
	StageFailed   = "failed"
)

// Event is a progress notification for one run.
type Event struct {
	RunID   string    `json:"runId"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	Done    int       `json:"done"`
	Total   int       `json:"total"`
	Time    time.Time `json:"time"`
}

// Notifier receives progress events. Publish must not block.
type Notifier interface {
	Publish(Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(Event) {}

// Request selects the refresh mode and overrides discovery defaults.
type Request struct {
	Mode   cache.Mode `json:"mode"`
	Queues []int      `json:"queues,omitempty"`
	Pages  int        `json:"pages,omitempty"`
}

// Report summarizes a finished run.
type Report struct {
	RunID      string              `json:"runId"`
	Mode       cache.Mode          `json:"mode"`
	Players    map[string]string   `json:"players"`
	Errors     []string            `json:"errors"`
	Discovered int                 `json:"discovered"`
	Unknown    int                 `json:"unknown"`
	Fetched    int                 `json:"fetched"`
	Filtered   int                 `json:"filtered"`
	Failed     []fetch.MatchError  `json:"failed"`
	Remaining  int                 `json:"remaining"`
	Stopped    string              `json:"stopped,omitempty"`
	Commit     *cache.CommitResult `json:"commit,omitempty"`
	TimeMs     int64               `json:"timeMs"`
}

// Service wires the pipeline stages together.
type Service struct {
	cfg        config.Config
	resolver   *riot.Resolver
	enumerator *discovery.Enumerator
	fetcher    *fetch.Fetcher
	datasets   Datasets
	notifier   Notifier
	now        func() time.Time
}

// NewService creates a refresh service. A nil notifier discards events.
func NewService(cfg config.Config, up Upstream, ds Datasets, n Notifier) *Service {
	if n == nil {
		n = nopNotifier{}
	}
	return &Service{
		cfg:        cfg,
		resolver:   riot.NewResolver(up),
		enumerator: discovery.NewEnumerator(up),
		fetcher:    fetch.NewFetcher(up),
		datasets:   ds,
		notifier:   n,
		now:        time.Now,
	}
}

// Run executes one refresh. Incremental runs fetch only ids missing from
// the persisted dataset and merge them in; full runs refetch everything
// discovered and replace the dataset after archiving it.
func (s *Service) Run(ctx context.Context, req Request) (*Report, error) {
	if req.Mode == "" {
		req.Mode = cache.ModeIncremental
	}
	start := s.now()
	deadline := budget.StartAt(s.now, s.cfg.RefreshBudget)
	rep := &Report{RunID: uuid.NewString(), Mode: req.Mode, Errors: []string{}, Failed: []fetch.MatchError{}}
	emit := func(stage, msg string, done, total int) {
		s.notifier.Publish(Event{RunID: rep.RunID, Stage: stage, Message: msg, Done: done, Total: total, Time: s.now()})
	}
	fail := func(err error) (*Report, error) {
		rep.TimeMs = s.now().Sub(start).Milliseconds()
		emit(StageFailed, err.Error(), 0, 0)
		slog.Error("refresh failed", "run_id", rep.RunID, "err", err)
		return rep, err
	}

	emit(StageResolve, "resolving roster", 0, len(s.cfg.Roster))
	res := s.resolver.Resolve(ctx, s.cfg.Roster)
	rep.Players = res.Accounts
	rep.Errors = append(rep.Errors, res.Errors...)
	if len(res.Accounts) == 0 {
		return fail(ErrNoPlayers)
	}

	queues := req.Queues
	if len(queues) == 0 {
		queues = s.cfg.Queues
	}
	pages := s.cfg.DiscoveryPages
	if req.Pages > 0 {
		pages = config.ClampPages(req.Pages)
	}
	emit(StageDiscover, "discovering match ids", len(res.Accounts), len(s.cfg.Roster))
	disc := s.enumerator.Discover(ctx, res.Accounts, discovery.Options{
		Queues: queues,
		Pages:  pages,
		Budget: s.cfg.DiscoveryBudget,
	})
	rep.Discovered = len(disc.IDs)
	rep.Errors = append(rep.Errors, disc.Debug.Errors...)

	ids := disc.IDs
	if req.Mode == cache.ModeIncremental {
		known, err := s.knownIDs(ctx)
		if err != nil {
			return fail(err)
		}
		ids = known.Unknown(ids)
	}
	rep.Unknown = len(ids)

	fresh, seen, stopped := s.fetchAll(ctx, deadline, ids, res.Accounts, rep, emit)
	if stopped != nil {
		rep.Stopped = stopped.Error()
		slog.Warn("refresh stopped early", "run_id", rep.RunID, "remaining", rep.Remaining, "err", stopped)
	}

	emit(StageCommit, "committing dataset", len(fresh), len(fresh))
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	var (
		commit cache.CommitResult
		err    error
	)
	if req.Mode == cache.ModeFull {
		ds := dataset.WithPlayers(dataset.Merge(model.Dataset{}, fresh, seen), res.Accounts)
		commit, err = s.datasets.Commit(commitCtx, ds, cache.CommitOptions{Mode: cache.ModeFull, Label: "full-refresh"})
	} else {
		commit, err = s.datasets.Merge(commitCtx, fresh, seen, res.Accounts, 0)
	}
	if err != nil {
		return fail(fmt.Errorf("commit: %w", err))
	}
	rep.Commit = &commit
	rep.TimeMs = s.now().Sub(start).Milliseconds()

	emit(StageDone, string(commit.Outcome), commit.MatchCount, commit.MatchCount)
	slog.Info("refresh finished",
		"run_id", rep.RunID,
		"mode", rep.Mode,
		"discovered", rep.Discovered,
		"fetched", rep.Fetched,
		"outcome", commit.Outcome,
		"matches", commit.MatchCount,
		"elapsed_ms", rep.TimeMs,
	)
	return rep, nil
}

func (s *Service) knownIDs(ctx context.Context) (*dataset.Index, error) {
	snap, err := s.datasets.Load(ctx)
	if errors.Is(err, cache.ErrNoDataset) {
		return dataset.NewIndex(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	idx := dataset.NewIndex(snap.Dataset.MatchIDs)
	for _, m := range snap.Dataset.Matches {
		idx.Add(m.MatchID)
	}
	return idx, nil
}

// fetchAll walks ids in chunks of FetchLimit, each chunk with its own
// detail-fetch budget, until done or stopped by the run deadline or ctx.
// seen holds every id that was fetched successfully, filtered ones
// included, so they are not refetched.
func (s *Service) fetchAll(ctx context.Context, deadline budget.Deadline, ids []string, accounts map[string]string, rep *Report, emit func(string, string, int, int)) (fresh []model.MatchRecord, seen []string, stopped error) {
	limit := s.cfg.FetchLimit
	if limit < 1 {
		limit = len(ids)
	}
	opts := fetch.Options{BatchSize: s.cfg.FetchBatchSize, Delay: s.cfg.FetchBatchDelay, Budget: s.cfg.FetchBudget}

	for start := 0; start < len(ids); start += limit {
		if deadline.Exceeded() {
			rep.Remaining = len(ids) - start
			return fresh, seen, deadline.Stop(fmt.Sprintf("chunk at %d of %d", start, len(ids)))
		}
		emit(StageFetch, "fetching match details", start, len(ids))
		chunk := ids[start:min(start+limit, len(ids))]
		res := s.fetcher.FetchDetails(ctx, chunk, accounts, opts)

		fresh = append(fresh, res.Matches...)
		for _, m := range res.Matches {
			seen = append(seen, m.MatchID)
		}
		seen = append(seen, res.Filtered...)
		rep.Fetched += len(res.Matches)
		rep.Filtered += len(res.Filtered)
		rep.Failed = append(rep.Failed, res.Errors...)

		if res.Stopped != nil {
			rep.Remaining = len(ids) - start - res.Processed
			return fresh, seen, res.Stopped
		}
		if err := ctx.Err(); err != nil {
			rep.Remaining = len(ids) - start - len(chunk)
			return fresh, seen, err
		}
	}
	return fresh, seen, nil
}
