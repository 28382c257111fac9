package refresh

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vibetom/boystats/internal/budget"
	"github.com/vibetom/boystats/internal/cache"
	"github.com/vibetom/boystats/internal/config"
	"github.com/vibetom/boystats/internal/model"
	"github.com/vibetom/boystats/internal/riot"
	"github.com/vibetom/boystats/internal/store"
)

// fakeUpstream serves accounts, one page of ids per puuid, and match
// payloads. Ids listed in strangers come back without a roster member.
type fakeUpstream struct {
	mu        sync.Mutex
	accounts  map[string]string   // name -> puuid
	history   map[string][]string // puuid -> ids
	owners    map[string]string   // match id -> puuid
	strangers map[string]bool
	fetched   []string
	onMatch   func()
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		accounts: map[string]string{"A": "pa", "B": "pb"},
		history: map[string][]string{
			"pa": {"NA1_3", "NA1_2"},
			"pb": {"NA1_2", "NA1_1"},
		},
		owners:    map[string]string{"NA1_3": "pa", "NA1_2": "pb"},
		strangers: map[string]bool{"NA1_1": true},
	}
}

func (f *fakeUpstream) AccountByRiotID(_ context.Context, name, tag string) (*riot.AccountResponse, error) {
	id, ok := f.accounts[name]
	if !ok {
		return nil, &riot.UpstreamError{Status: 404, Body: "not found"}
	}
	return &riot.AccountResponse{PUUID: id, GameName: name, TagLine: tag}, nil
}

func (f *fakeUpstream) MatchIDs(_ context.Context, puuid string, q riot.MatchIDsQuery) ([]string, error) {
	if q.Start > 0 {
		return nil, nil
	}
	return f.history[puuid], nil
}

func (f *fakeUpstream) Match(_ context.Context, id string) (*riot.MatchResponse, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	onMatch := f.onMatch
	f.mu.Unlock()
	if onMatch != nil {
		onMatch()
	}

	created, _ := strconv.ParseInt(strings.TrimPrefix(id, "NA1_"), 10, 64)
	owner := f.owners[id]
	if f.strangers[id] {
		owner = "someone-else"
	}
	m := &riot.MatchResponse{}
	m.Metadata.MatchID = id
	m.Info.GameCreation = created
	m.Info.GameDuration = 1500
	m.Info.QueueID = 420
	m.Info.Participants = []model.Participant{{PUUID: owner, Win: true, Kills: 3}}
	return m, nil
}

func (f *fakeUpstream) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetched)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func testConfig() config.Config {
	return config.Config{
		Roster: config.Roster{
			{DisplayName: "A", RegionTag: "NA1"},
			{DisplayName: "B", RegionTag: "NA1"},
		},
		Queues:         []int{420},
		DiscoveryPages: 2,
		FetchBatchSize: 2,
		FetchLimit:     2,
		MaxBackups:     3,
	}
}

func newTestService(t *testing.T, up *fakeUpstream) (*Service, *cache.Manager, *recorder) {
	t.Helper()
	mgr := cache.NewManager(store.NewMemoryStore(), 3)
	rec := &recorder{}
	return NewService(testConfig(), up, mgr, rec), mgr, rec
}

func TestRun_IncrementalSkipsKnownIDs(t *testing.T) {
	ctx := context.Background()
	up := newFakeUpstream()
	svc, mgr, _ := newTestService(t, up)

	rep, err := svc.Run(ctx, Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Discovered != 3 || rep.Fetched != 2 || rep.Filtered != 1 {
		t.Errorf("unexpected report %+v", rep)
	}
	if rep.Commit == nil || !rep.Commit.Committed() || rep.Commit.MatchCount != 2 {
		t.Fatalf("unexpected commit %+v", rep.Commit)
	}
	snap, err := mgr.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Dataset.MatchIDs) != 3 {
		t.Errorf("filtered ids should be indexed, got %v", snap.Dataset.MatchIDs)
	}
	if snap.Dataset.Players["A"] != "pa" {
		t.Errorf("players should be stored, got %v", snap.Dataset.Players)
	}

	before := up.fetchCount()
	rep, err = svc.Run(ctx, Request{Mode: cache.ModeIncremental})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if rep.Unknown != 0 || up.fetchCount() != before {
		t.Errorf("second run should fetch nothing, unknown=%d fetched=%d", rep.Unknown, up.fetchCount()-before)
	}
	if rep.Commit.Version != 2 || rep.Commit.MatchCount != 2 {
		t.Errorf("unexpected second commit %+v", rep.Commit)
	}
}

func TestRun_FullArchivesPrevious(t *testing.T) {
	ctx := context.Background()
	up := newFakeUpstream()
	svc, mgr, _ := newTestService(t, up)

	if _, err := svc.Run(ctx, Request{}); err != nil {
		t.Fatalf("seed Run: %v", err)
	}
	rep, err := svc.Run(ctx, Request{Mode: cache.ModeFull})
	if err != nil {
		t.Fatalf("full Run: %v", err)
	}
	if rep.Unknown != 3 {
		t.Errorf("full run should refetch every id, got %d", rep.Unknown)
	}
	if rep.Commit.Backup == nil || rep.Commit.Backup.Label != "full-refresh" {
		t.Errorf("full run should archive the previous dataset, got %+v", rep.Commit.Backup)
	}
	backups, _ := mgr.Backups(ctx)
	if len(backups) != 1 {
		t.Errorf("expected 1 backup, got %d", len(backups))
	}
}

func TestRun_PartialResolution(t *testing.T) {
	up := newFakeUpstream()
	delete(up.accounts, "B")
	svc, _, _ := newTestService(t, up)

	rep, err := svc.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Errors) != 1 || !strings.Contains(rep.Errors[0], "B#NA1") {
		t.Errorf("expected one resolve error for B, got %v", rep.Errors)
	}
	if rep.Discovered != 2 || rep.Commit.MatchCount != 1 {
		t.Errorf("only A's history should be kept, got discovered=%d matches=%d", rep.Discovered, rep.Commit.MatchCount)
	}
}

func TestRun_NoPlayers(t *testing.T) {
	up := newFakeUpstream()
	up.accounts = map[string]string{}
	svc, mgr, rec := newTestService(t, up)

	_, err := svc.Run(context.Background(), Request{})
	if !errors.Is(err, ErrNoPlayers) {
		t.Fatalf("expected ErrNoPlayers, got %v", err)
	}
	if _, err := mgr.Load(context.Background()); !errors.Is(err, cache.ErrNoDataset) {
		t.Errorf("nothing should be committed, got %v", err)
	}
	last := rec.events[len(rec.events)-1]
	if last.Stage != StageFailed {
		t.Errorf("expected failed event, got %s", last.Stage)
	}
}

func TestRun_EmitsStagesInOrder(t *testing.T) {
	svc, _, rec := newTestService(t, newFakeUpstream())
	rep, err := svc.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var stages []string
	for _, e := range rec.events {
		if e.RunID != rep.RunID {
			t.Fatalf("event from another run: %+v", e)
		}
		if len(stages) == 0 || stages[len(stages)-1] != e.Stage {
			stages = append(stages, e.Stage)
		}
	}
	want := []string{StageResolve, StageDiscover, StageFetch, StageCommit, StageDone}
	if strings.Join(stages, ",") != strings.Join(want, ",") {
		t.Errorf("stages = %v, want %v", stages, want)
	}
}

// ctxStore fails every call once its context is done, like a database
// driver would.
type ctxStore struct {
	store.BlobStore
}

func (c ctxStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.BlobStore.Get(ctx, key)
}

func (c ctxStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.BlobStore.Put(ctx, key, data)
}

func (c ctxStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.BlobStore.Delete(ctx, key)
}

func (c ctxStore) List(ctx context.Context, prefix string) ([]store.BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.BlobStore.List(ctx, prefix)
}

func TestRun_DeadlineKeepsFetchedMatches(t *testing.T) {
	up := newFakeUpstream()
	mgr := cache.NewManager(ctxStore{store.NewMemoryStore()}, 3)
	cfg := testConfig()
	cfg.RefreshBudget = 1500 * time.Millisecond
	svc := NewService(cfg, up, mgr, nil)

	// Every match request advances the clock by a second.
	var mu sync.Mutex
	now := time.Unix(0, 0)
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	up.onMatch = func() {
		mu.Lock()
		now = now.Add(time.Second)
		mu.Unlock()
	}

	rep, err := svc.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(rep.Stopped, budget.ErrTimeoutBudgetExceeded.Error()) {
		t.Errorf("expected a budget stop, got %q", rep.Stopped)
	}
	if up.fetchCount() != 2 || rep.Remaining != 1 {
		t.Errorf("only the first chunk should be fetched, fetched=%d remaining=%d", up.fetchCount(), rep.Remaining)
	}

	snap, err := mgr.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Dataset.Matches) != 2 {
		t.Errorf("fetched matches should be persisted, got %d", len(snap.Dataset.Matches))
	}
}

func TestRun_CancelledRequestStillCommits(t *testing.T) {
	up := newFakeUpstream()
	mgr := cache.NewManager(ctxStore{store.NewMemoryStore()}, 3)
	svc := NewService(testConfig(), up, mgr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	up.onMatch = cancel

	rep, err := svc.Run(ctx, Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(rep.Stopped, context.Canceled.Error()) {
		t.Errorf("expected a cancellation stop, got %q", rep.Stopped)
	}
	if rep.Fetched != 2 || rep.Remaining != 1 {
		t.Errorf("unexpected report fetched=%d remaining=%d", rep.Fetched, rep.Remaining)
	}
	if rep.Commit == nil || !rep.Commit.Committed() {
		t.Fatalf("partial results should be committed, got %+v", rep.Commit)
	}

	snap, err := mgr.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Dataset.Matches) != 2 || len(snap.Dataset.MatchIDs) != 2 {
		t.Errorf("expected 2 persisted matches, got %d (ids %v)", len(snap.Dataset.Matches), snap.Dataset.MatchIDs)
	}
}
