// Package budget tracks wall-clock budgets for multi-round work and the
// partial outcomes such work produces.
package budget

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTimeoutBudgetExceeded marks work that stopped early because its
// deadline passed. Results returned alongside it are valid but incomplete.
var ErrTimeoutBudgetExceeded = errors.New("budget: time budget exceeded")

// Deadline is checked before starting each unit of work (round or batch).
// A zero limit never expires.
type Deadline struct {
	start time.Time
	limit time.Duration
	now   func() time.Time
}

// Start begins a deadline of limit from now.
func Start(limit time.Duration) Deadline {
	return StartAt(time.Now, limit)
}

// StartAt begins a deadline using a custom clock.
func StartAt(now func() time.Time, limit time.Duration) Deadline {
	return Deadline{start: now(), limit: limit, now: now}
}

// Elapsed returns the time since the deadline started.
func (d Deadline) Elapsed() time.Duration {
	return d.now().Sub(d.start)
}

// Exceeded reports whether the budget is spent.
func (d Deadline) Exceeded() bool {
	return d.limit > 0 && d.Elapsed() > d.limit
}

// Stop returns a wrapped ErrTimeoutBudgetExceeded describing where work
// stopped.
func (d Deadline) Stop(where string) error {
	return fmt.Errorf("%w: stopped before %s after %dms", ErrTimeoutBudgetExceeded, where, d.Elapsed().Milliseconds())
}

// maxSample bounds the ids reported in a PartialFailure.
const maxSample = 5

// PartialFailure reports a batch or round where some units failed.
type PartialFailure struct {
	Operation string   `json:"operation"`
	Total     int      `json:"total"`
	Failed    int      `json:"failed"`
	Sample    []string `json:"sample"`
}

// NewPartialFailure returns nil when nothing failed.
func NewPartialFailure(op string, total int, failedIDs []string) *PartialFailure {
	if len(failedIDs) == 0 {
		return nil
	}
	sample := failedIDs
	if len(sample) > maxSample {
		sample = sample[:maxSample]
	}
	return &PartialFailure{
		Operation: op,
		Total:     total,
		Failed:    len(failedIDs),
		Sample:    append([]string(nil), sample...),
	}
}

func (p *PartialFailure) Error() string {
	return fmt.Sprintf("%s: %d of %d failed (%s)", p.Operation, p.Failed, p.Total, strings.Join(p.Sample, ", "))
}

// Succeeded returns the number of units that completed.
func (p *PartialFailure) Succeeded() int {
	return p.Total - p.Failed
}
