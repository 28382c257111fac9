package riot_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vibetom/boystats/internal/model"
	"github.com/vibetom/boystats/internal/riot"
)

// newTestClient points a client at srv and records backoff sleeps.
func newTestClient(t *testing.T, srv *httptest.Server, slept *[]time.Duration) *riot.Client {
	t.Helper()
	c, err := riot.NewClient("test-key",
		riot.WithRegionURL(srv.URL),
		riot.WithPlatformURL(srv.URL),
		riot.WithSleep(func(_ context.Context, d time.Duration) error {
			if slept != nil {
				*slept = append(*slept, d)
			}
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient_MissingCredentials(t *testing.T) {
	_, err := riot.NewClient("  ")
	if !errors.Is(err, riot.ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestGetJSON_RetriesAfter429(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Riot-Token") != "test-key" {
			t.Errorf("missing auth header")
		}
		if atomic.AddInt32(&attempts, 1) <= 2 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode([]string{"NA1_1"})
	}))
	defer srv.Close()

	var slept []time.Duration
	c := newTestClient(t, srv, &slept)

	var ids []string
	if err := c.GetJSON(context.Background(), srv.URL+"/lol/match/v5/matches/by-puuid/p/ids", &ids); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	var total time.Duration
	for _, d := range slept {
		total += d
	}
	if total != 2*time.Second {
		t.Errorf("expected 2s accumulated backoff, got %s", total)
	}
	if len(ids) != 1 || ids[0] != "NA1_1" {
		t.Errorf("unexpected body %v", ids)
	}
}

func TestGetJSON_RateLimitCeiling(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var slept []time.Duration
	c := newTestClient(t, srv, &slept)

	var out any
	err := c.GetJSON(context.Background(), srv.URL+"/x", &out)
	if !errors.Is(err, riot.ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
	if riot.StatusOf(err) != http.StatusTooManyRequests {
		t.Errorf("expected status 429 on error, got %d", riot.StatusOf(err))
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	// No Retry-After header: default wait applies between attempts.
	if len(slept) != 2 || slept[0] != 2*time.Second {
		t.Errorf("expected two default 2s waits, got %v", slept)
	}
}

func TestGetJSON_UpstreamErrorNotRetried(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"status":{"message":"Forbidden"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)

	var out any
	err := c.GetJSON(context.Background(), srv.URL+"/x", &out)
	var ue *riot.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.Status != http.StatusForbidden || !strings.Contains(ue.Body, "Forbidden") {
		t.Errorf("unexpected error fields: %+v", ue)
	}
	if errors.Is(err, riot.ErrRateLimitExceeded) {
		t.Error("403 must not be reported as rate limiting")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("expected 1 attempt, got %d", got)
	}
}

func TestMatchIDs_QueryParameters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/lol/match/v5/matches/by-puuid/abc/ids" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if q.Get("start") != "200" || q.Get("count") != "100" || q.Get("queue") != "420" || q.Get("startTime") != "1700000000" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode([]string{"NA1_5", "NA1_4"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	ids, err := c.MatchIDs(context.Background(), "abc", riot.MatchIDsQuery{Start: 200, Queue: 420, StartTime: 1700000000})
	if err != nil {
		t.Fatalf("MatchIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 ids, got %d", len(ids))
	}
}

func TestResolver_PartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/Ghost/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		parts := strings.Split(r.URL.Path, "/")
		json.NewEncoder(w).Encode(riot.AccountResponse{PUUID: "puuid-" + parts[len(parts)-2]})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	roster := []model.PlayerIdentity{
		{DisplayName: "SomeBees", RegionTag: "NA1"},
		{DisplayName: "Ghost", RegionTag: "NA1"},
		{DisplayName: "Storklord", RegionTag: "NA1"},
	}

	res := riot.NewResolver(c).Resolve(context.Background(), roster)
	if len(res.Accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d: %v", len(res.Accounts), res.Accounts)
	}
	if res.Accounts["SomeBees"] != "puuid-SomeBees" {
		t.Errorf("unexpected puuid %q", res.Accounts["SomeBees"])
	}
	if _, ok := res.Accounts["Ghost"]; ok {
		t.Error("failed player must be absent from accounts")
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "Ghost") {
		t.Errorf("expected one error naming Ghost, got %v", res.Errors)
	}
	if got := res.PUUIDs()["puuid-Storklord"]; got != "Storklord" {
		t.Errorf("reverse index: got %q", got)
	}
}

func TestProfileLoader_RankedQueues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/riot/account/"):
			json.NewEncoder(w).Encode(riot.AccountResponse{PUUID: "p1"})
		case strings.HasPrefix(r.URL.Path, "/lol/summoner/"):
			json.NewEncoder(w).Encode(riot.SummonerResponse{ID: "s1", SummonerLevel: 312})
		case strings.HasPrefix(r.URL.Path, "/lol/league/"):
			json.NewEncoder(w).Encode([]riot.LeagueEntry{
				{QueueType: "RANKED_SOLO_5x5", Tier: "GOLD", Rank: "II", LeaguePoints: 44, Wins: 30, Losses: 25},
				{QueueType: "RANKED_FLEX_SR", Tier: "SILVER", Rank: "I", LeaguePoints: 10},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	profiles := riot.NewProfileLoader(c, 0).Profiles(context.Background(), []model.PlayerIdentity{{DisplayName: "Alessio", RegionTag: "NA1"}})
	if len(profiles) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(profiles))
	}
	p := profiles[0]
	if p.Error != "" {
		t.Fatalf("unexpected error %q", p.Error)
	}
	if p.SoloQueue == nil || p.SoloQueue.Tier != "GOLD" || p.SoloQueue.LP != 44 {
		t.Errorf("unexpected solo queue %+v", p.SoloQueue)
	}
	if p.FlexQueue == nil || p.FlexQueue.Tier != "SILVER" {
		t.Errorf("unexpected flex queue %+v", p.FlexQueue)
	}
	if p.SummonerLevel != 312 {
		t.Errorf("expected level 312, got %d", p.SummonerLevel)
	}
}
