// Package fetch retrieves full match payloads in bounded concurrent batches
// and reduces them to roster-annotated MatchRecords.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vibetom/boystats/internal/budget"
	"github.com/vibetom/boystats/internal/metrics"
	"github.com/vibetom/boystats/internal/model"
	"github.com/vibetom/boystats/internal/riot"
)

// Getter fetches one match payload.
type Getter interface {
	Match(ctx context.Context, matchID string) (*riot.MatchResponse, error)
}

// Options controls one detail-fetch run.
type Options struct {
	BatchSize int           // concurrent requests per batch
	Delay     time.Duration // pause between batches
	Budget    time.Duration // checked before each batch; 0 = none
}

// MatchError records a single failed id.
type MatchError struct {
	MatchID string `json:"matchId"`
	Error   string `json:"error"`
	Status  int    `json:"status,omitempty"`
}

// Result of a detail-fetch run.
type Result struct {
	Matches   []model.MatchRecord
	Errors    []MatchError
	Processed int      // ids attempted
	Filtered  []string // fetched but without a roster member
	Remaining []string // not attempted because the run stopped early
	Stopped   error    // wraps budget.ErrTimeoutBudgetExceeded when cut short
	TimeMs    int64
}

// Partial returns the failure summary, or nil if every attempted id
// succeeded.
func (r Result) Partial() *budget.PartialFailure {
	failed := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		failed[i] = e.MatchID
	}
	return budget.NewPartialFailure("match details", r.Processed, failed)
}

// Fetcher retrieves match details through a Getter.
type Fetcher struct {
	getter Getter
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a fetcher.
func NewFetcher(g Getter) *Fetcher {
	return &Fetcher{getter: g, now: time.Now, sleep: sleepContext}
}

type outcome struct {
	rec      model.MatchRecord
	err      error
	filtered bool
}

// FetchDetails fetches ids in batches of opts.BatchSize. Every request in a
// batch settles before the next batch starts. accounts maps display name to
// puuid.
func (f *Fetcher) FetchDetails(ctx context.Context, ids []string, accounts map[string]string, opts Options) Result {
	deadline := budget.StartAt(f.now, opts.Budget)
	rosterIDs := RosterIDs(accounts)
	size := opts.BatchSize
	if size < 1 {
		size = 1
	}

	var res Result
	for start := 0; start < len(ids); start += size {
		if start > 0 && opts.Delay > 0 {
			if err := f.sleep(ctx, opts.Delay); err != nil {
				res.Stopped = fmt.Errorf("fetch: %w", err)
				res.Remaining = ids[start:]
				break
			}
		}
		if deadline.Exceeded() {
			res.Stopped = deadline.Stop(fmt.Sprintf("batch at %d of %d", start, len(ids)))
			res.Remaining = ids[start:]
			break
		}
		if err := ctx.Err(); err != nil {
			res.Stopped = fmt.Errorf("fetch: %w", err)
			res.Remaining = ids[start:]
			break
		}

		end := min(start+size, len(ids))
		batch := ids[start:end]
		for i, o := range f.batch(ctx, batch, rosterIDs) {
			id := batch[i]
			switch {
			case o.err != nil:
				metrics.MatchesFetched.WithLabelValues("failed").Inc()
				slog.Warn("match fetch failed", "match_id", id, "err", o.err)
				res.Errors = append(res.Errors, MatchError{MatchID: id, Error: o.err.Error(), Status: riot.StatusOf(o.err)})
			case o.filtered:
				metrics.MatchesFetched.WithLabelValues("filtered").Inc()
				res.Filtered = append(res.Filtered, id)
			default:
				metrics.MatchesFetched.WithLabelValues("kept").Inc()
				res.Matches = append(res.Matches, o.rec)
			}
		}
		res.Processed += len(batch)
	}

	res.TimeMs = deadline.Elapsed().Milliseconds()
	slog.Info("match details fetched",
		"requested", len(ids),
		"processed", res.Processed,
		"kept", len(res.Matches),
		"filtered", len(res.Filtered),
		"errors", len(res.Errors),
		"elapsed_ms", res.TimeMs,
	)
	return res
}

// batch fires one request per id and waits for all of them.
func (f *Fetcher) batch(ctx context.Context, ids []string, rosterIDs map[string]string) []outcome {
	out := make([]outcome, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			m, err := f.getter.Match(ctx, id)
			if err != nil {
				out[i] = outcome{err: err}
				return nil
			}
			if m.Metadata.MatchID == "" {
				m.Metadata.MatchID = id
			}
			rec, ok := AnnotateParticipants(m, rosterIDs)
			if !ok {
				out[i] = outcome{filtered: true}
				return nil
			}
			out[i] = outcome{rec: rec}
			return nil
		})
	}
	g.Wait()
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
