// Package api provides the HTTP handlers for the BoyStats service: Riot
// proxy operations, dataset cache management, statistics, Q&A, and the
// refresh pipeline with its WebSocket progress stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vibetom/boystats/internal/ask"
	"github.com/vibetom/boystats/internal/cache"
	"github.com/vibetom/boystats/internal/config"
	"github.com/vibetom/boystats/internal/discovery"
	"github.com/vibetom/boystats/internal/fetch"
	"github.com/vibetom/boystats/internal/model"
	"github.com/vibetom/boystats/internal/refresh"
	"github.com/vibetom/boystats/internal/riot"
	"github.com/vibetom/boystats/internal/stats"
)

const (
	msgRiotNotConfigured   = "Riot API key not configured. Add RIOT_API_KEY to environment variables."
	msgGeminiNotConfigured = "Gemini API key not configured. Add GEMINI_API_KEY to environment variables."

	profilePace = 50 * time.Millisecond
)

// Upstream is the Riot surface the handlers use.
type Upstream interface {
	riot.RankedLookup
	discovery.Lister
	fetch.Getter
}

// Asker answers questions about the dataset.
type Asker interface {
	Ask(ctx context.Context, question string, summary *stats.Summary, matches []model.MatchRecord) (*ask.Answer, error)
}

// Deps are the collaborators of a Service. Upstream and Asker are nil when
// their credentials are missing; the affected routes then answer 500.
type Deps struct {
	Upstream Upstream
	Datasets *cache.Manager
	Asker    Asker
	Hub      *WSHub
}

// Service handles BoyStats requests.
type Service struct {
	cfg      config.Config
	datasets *cache.Manager
	asker    Asker
	hub      *WSHub

	resolver   *riot.Resolver
	profiles   *riot.ProfileLoader
	enumerator *discovery.Enumerator
	fetcher    *fetch.Fetcher
	refresher  *refresh.Service

	refreshing atomic.Bool
}

// NewService creates a new service.
func NewService(cfg config.Config, deps Deps) *Service {
	s := &Service{
		cfg:      cfg,
		datasets: deps.Datasets,
		asker:    deps.Asker,
		hub:      deps.Hub,
	}
	if up := deps.Upstream; up != nil {
		s.resolver = riot.NewResolver(up)
		s.profiles = riot.NewProfileLoader(up, profilePace)
		s.enumerator = discovery.NewEnumerator(up)
		s.fetcher = fetch.NewFetcher(up)

		var n refresh.Notifier
		if deps.Hub != nil {
			n = deps.Hub
		}
		s.refresher = refresh.NewService(cfg, up, deps.Datasets, n)
	}
	return s
}

// Routes returns the /api/v1 router. Each route carries its own time
// ceiling.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()
	within := func(d time.Duration) func(http.Handler) http.Handler {
		return middleware.Timeout(d)
	}

	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}

	// Riot proxy.
	r.With(within(30*time.Second)).Get("/players", s.Players)
	r.With(within(15*time.Second)).Post("/accounts", s.Accounts)
	r.With(within(15*time.Second)).Post("/match-ids", s.MatchIDs)
	r.With(within(60*time.Second)).Post("/match-details", s.MatchDetails)

	// Dataset cache.
	r.Route("/cache", func(r chi.Router) {
		r.Use(within(10 * time.Second))
		r.Get("/", s.GetCache)
		r.Post("/", s.PostCache)
		r.Get("/backups", s.ListBackups)
		r.Post("/backups", s.CreateBackup)
		r.Post("/backups/{backupID}/restore", s.RestoreBackup)
		r.Delete("/backups/{backupID}", s.DeleteBackup)
	})

	r.With(within(120*time.Second)).Post("/refresh", s.Refresh)
	r.With(within(10*time.Second)).Get("/stats", s.Stats)
	r.With(within(30*time.Second)).Post("/ask", s.Ask)
	return r
}

// CORS allows any origin. Preflight requests end with 204.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decodeBody decodes a JSON body into v. An empty body leaves v unchanged.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// upstreamStatus maps a Riot failure to the status we answer with.
func upstreamStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case riot.StatusOf(err) != 0:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
