package budget

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func fakeClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func TestDeadline_Exceeded(t *testing.T) {
	now, advance := fakeClock(time.Unix(0, 0))
	d := StartAt(now, 100*time.Millisecond)

	if d.Exceeded() {
		t.Fatal("fresh deadline should not be exceeded")
	}
	advance(100 * time.Millisecond)
	if d.Exceeded() {
		t.Error("deadline at exactly its limit should not be exceeded")
	}
	advance(time.Millisecond)
	if !d.Exceeded() {
		t.Error("deadline past its limit should be exceeded")
	}
	if d.Elapsed() != 101*time.Millisecond {
		t.Errorf("unexpected elapsed %s", d.Elapsed())
	}
}

func TestDeadline_ZeroLimitNeverExpires(t *testing.T) {
	now, advance := fakeClock(time.Unix(0, 0))
	d := StartAt(now, 0)
	advance(24 * time.Hour)
	if d.Exceeded() {
		t.Error("zero limit should never expire")
	}
}

func TestDeadline_Stop(t *testing.T) {
	now, advance := fakeClock(time.Unix(0, 0))
	d := StartAt(now, time.Second)
	advance(1500 * time.Millisecond)

	err := d.Stop("round 2")
	if !errors.Is(err, ErrTimeoutBudgetExceeded) {
		t.Fatalf("expected ErrTimeoutBudgetExceeded, got %v", err)
	}
	if !strings.Contains(err.Error(), "round 2 after 1500ms") {
		t.Errorf("unexpected message %q", err)
	}
}

func TestNewPartialFailure(t *testing.T) {
	if NewPartialFailure("fetch", 3, nil) != nil {
		t.Error("no failures should give nil")
	}

	failed := []string{"a", "b", "c", "d", "e", "f", "g"}
	p := NewPartialFailure("fetch", 10, failed)
	if p.Failed != 7 || p.Total != 10 || p.Succeeded() != 3 {
		t.Errorf("unexpected counts %+v", p)
	}
	if len(p.Sample) != maxSample || p.Sample[4] != "e" {
		t.Errorf("sample should keep the first %d ids, got %v", maxSample, p.Sample)
	}
	failed[0] = "changed"
	if p.Sample[0] != "a" {
		t.Error("sample should not alias the input")
	}
	if p.Error() != "fetch: 7 of 10 failed (a, b, c, d, e)" {
		t.Errorf("unexpected message %q", p.Error())
	}
}
