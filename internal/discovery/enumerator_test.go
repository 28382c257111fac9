package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/vibetom/boystats/internal/budget"
	"github.com/vibetom/boystats/internal/metrics"
	"github.com/vibetom/boystats/internal/riot"
)

type call struct {
	puuid string
	start int
	queue int
}

// fakeLister serves history[puuid] newest-first in pages.
type fakeLister struct {
	mu      sync.Mutex
	history map[string][]string
	fail    map[string]bool // "puuid/start"
	calls   []call
	onCall  func()
}

func (f *fakeLister) MatchIDs(_ context.Context, puuid string, q riot.MatchIDsQuery) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{puuid: puuid, start: q.Start, queue: q.Queue})
	onCall := f.onCall
	f.mu.Unlock()
	if onCall != nil {
		onCall()
	}

	if f.fail[fmt.Sprintf("%s/%d", puuid, q.Start)] {
		return nil, &riot.UpstreamError{Status: 500, Body: "boom"}
	}
	all := f.history[puuid]
	if q.Start >= len(all) {
		return []string{}, nil
	}
	end := q.Start + q.Count
	if end > len(all) {
		end = len(all)
	}
	return all[q.Start:end], nil
}

// history returns n ids counting down from base.
func history(base, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("NA1_%d", base-i)
	}
	return out
}

func TestDiscover_FullPageBecomesCandidate(t *testing.T) {
	l := &fakeLister{history: map[string][]string{
		"pA": history(10_000, 100),
		"pB": history(5_000, 40),
	}}
	e := NewEnumerator(l)

	res := e.Discover(context.Background(), map[string]string{"A": "pA", "B": "pB"}, Options{
		Queues: []int{420},
		Pages:  1,
	})

	if len(res.Debug.Rounds) != 2 || res.Debug.Rounds[0] != 2 || res.Debug.Rounds[1] != 1 {
		t.Fatalf("expected rounds [2 1], got %v", res.Debug.Rounds)
	}
	var round1 []call
	for _, c := range l.calls {
		if c.start > 0 {
			round1 = append(round1, c)
		}
	}
	if len(round1) != 1 || round1[0].puuid != "pA" || round1[0].start != 100 {
		t.Errorf("round 1 should fetch only A's page 1, got %+v", round1)
	}
	if len(res.IDs) != 140 {
		t.Errorf("expected 140 ids, got %d", len(res.IDs))
	}
	if res.Debug.MatchIDsPerPlayer["A_q420"] != 100 || res.Debug.MatchIDsPerPlayer["B_q420"] != 40 {
		t.Errorf("unexpected per-player counts %v", res.Debug.MatchIDsPerPlayer)
	}
	if res.Debug.PagesPerQueue != 2 {
		t.Errorf("expected 2 pages per queue, got %d", res.Debug.PagesPerQueue)
	}
	if res.Stopped != nil {
		t.Errorf("unexpected stop: %v", res.Stopped)
	}
}

func TestDiscover_PageBudgetBoundsDepth(t *testing.T) {
	tests := []struct {
		pages  int
		rounds int
		ids    int
	}{
		{pages: 0, rounds: 1, ids: 100},
		{pages: 2, rounds: 3, ids: 300},
		{pages: 5, rounds: 4, ids: 350},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("pages=%d", tt.pages), func(t *testing.T) {
			l := &fakeLister{history: map[string][]string{"pA": history(10_000, 350)}}
			res := NewEnumerator(l).Discover(context.Background(), map[string]string{"A": "pA"}, Options{
				Queues: []int{420},
				Pages:  tt.pages,
			})
			if len(res.Debug.Rounds) != tt.rounds || len(res.IDs) != tt.ids {
				t.Errorf("got rounds=%v ids=%d, want %d rounds and %d ids", res.Debug.Rounds, len(res.IDs), tt.rounds, tt.ids)
			}
		})
	}
}

func TestDiscover_DedupesAndSortsByRecency(t *testing.T) {
	l := &fakeLister{history: map[string][]string{
		"p1": {"NA1_30", "NA1_10", "NA1_5"},
		"p2": {"NA1_40", "NA1_30", "NA1_7"},
	}}
	res := NewEnumerator(l).Discover(context.Background(), map[string]string{"X": "p1", "Y": "p2"}, Options{
		Queues: []int{420, 450},
		Pages:  5,
	})

	want := []string{"NA1_40", "NA1_30", "NA1_10", "NA1_7", "NA1_5"}
	if strings.Join(res.IDs, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", res.IDs, want)
	}
	if res.Debug.TotalMatchIDs != 5 {
		t.Errorf("expected total 5, got %d", res.Debug.TotalMatchIDs)
	}
	// Partial pages end pagination after round 0.
	if len(res.Debug.Rounds) != 1 {
		t.Errorf("expected a single round, got %v", res.Debug.Rounds)
	}
}

func TestDiscover_PageFailureStopsOnlyThatPair(t *testing.T) {
	l := &fakeLister{
		history: map[string][]string{
			"pA": history(9_000, 300),
			"pB": history(4_000, 300),
		},
		fail: map[string]bool{"pB/100": true},
	}
	res := NewEnumerator(l).Discover(context.Background(), map[string]string{"A": "pA", "B": "pB"}, Options{
		Queues: []int{420},
		Pages:  2,
	})

	if len(res.Debug.Errors) != 1 || !strings.HasPrefix(res.Debug.Errors[0], "B q420 p1:") {
		t.Fatalf("expected one error for B page 1, got %v", res.Debug.Errors)
	}
	// A: 3 pages; B: page 0 only.
	if len(res.IDs) != 400 {
		t.Errorf("expected 400 ids, got %d", len(res.IDs))
	}
	for _, c := range l.calls {
		if c.puuid == "pB" && c.start == 200 {
			t.Error("B should not be paginated after a failure")
		}
	}
}

func TestDiscover_DeadlineCheckedBeforeRound(t *testing.T) {
	now := time.Unix(0, 0)
	var mu sync.Mutex
	l := &fakeLister{history: map[string][]string{"pA": history(9_000, 500)}}
	// Every request advances the clock past the budget.
	l.onCall = func() {
		mu.Lock()
		now = now.Add(time.Second)
		mu.Unlock()
	}
	e := NewEnumerator(l)
	e.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	before := budgetStops(t)
	res := e.Discover(context.Background(), map[string]string{"A": "pA"}, Options{
		Queues: []int{420},
		Pages:  5,
		Budget: 500 * time.Millisecond,
	})

	if !errors.Is(res.Stopped, budget.ErrTimeoutBudgetExceeded) {
		t.Fatalf("expected timeout stop, got %v", res.Stopped)
	}
	if len(res.Debug.Rounds) != 1 || len(res.IDs) != 100 {
		t.Errorf("expected exactly one completed round with 100 ids, got rounds=%v ids=%d", res.Debug.Rounds, len(res.IDs))
	}
	if got := budgetStops(t); got != before+1 {
		t.Errorf("expected one budget stop recorded, counter %v -> %v", before, got)
	}
}

func budgetStops(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.DiscoveryStops.Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestDiscover_CancelledIsNotABudgetStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := &fakeLister{history: map[string][]string{"pA": history(9_000, 500)}}
	l.onCall = cancel

	before := budgetStops(t)
	res := NewEnumerator(l).Discover(ctx, map[string]string{"A": "pA"}, Options{
		Queues: []int{420},
		Pages:  5,
	})

	if !errors.Is(res.Stopped, context.Canceled) {
		t.Fatalf("expected cancellation stop, got %v", res.Stopped)
	}
	if got := budgetStops(t); got != before {
		t.Errorf("cancellation should not count as a budget stop, counter moved %v -> %v", before, got)
	}
}

func TestDiscover_NoAccounts(t *testing.T) {
	res := NewEnumerator(&fakeLister{}).Discover(context.Background(), nil, Options{Queues: []int{420}, Pages: 2})
	if len(res.IDs) != 0 || len(res.Debug.Rounds) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}
