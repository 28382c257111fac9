package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vibetom/boystats/internal/ask"
	"github.com/vibetom/boystats/internal/cache"
	"github.com/vibetom/boystats/internal/model"
	"github.com/vibetom/boystats/internal/refresh"
	"github.com/vibetom/boystats/internal/stats"
)

// AskRequest is the JSON body for POST /api/v1/ask. Matches default to the
// cached dataset; Players narrows the stats digest to a subset.
type AskRequest struct {
	Question string              `json:"question"`
	Players  []string            `json:"players"`
	Matches  []model.MatchRecord `json:"matches"`
}

// AskResponse is returned from POST /api/v1/ask.
type AskResponse struct {
	Answer       string     `json:"answer"`
	FinishReason string     `json:"finishReason,omitempty"`
	Status       ask.Status `json:"status"`
	Model        string     `json:"model"`
}

// Refresh handles POST /api/v1/refresh
// Runs the full pipeline server-side. Only one run is allowed at a time.
func (s *Service) Refresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeError(w, msgRiotNotConfigured, http.StatusInternalServerError)
		return
	}
	var req refresh.Request
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	mode, err := cache.ParseMode(string(req.Mode))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Mode = mode

	if !s.refreshing.CompareAndSwap(false, true) {
		writeError(w, "refresh already running", http.StatusConflict)
		return
	}
	defer s.refreshing.Store(false)

	rep, err := s.refresher.Run(r.Context(), req)
	switch {
	case errors.Is(err, refresh.ErrNoPlayers):
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "report": rep})
	case err != nil:
		writeJSON(w, upstreamStatus(err), map[string]any{"error": err.Error(), "report": rep})
	default:
		writeJSON(w, http.StatusOK, rep)
	}
}

// Stats handles GET /api/v1/stats?players=a,b
// Computes the statistics view over the cached dataset.
func (s *Service) Stats(w http.ResponseWriter, r *http.Request) {
	selected, ok := s.selectPlayers(splitNames(r.URL.Query().Get("players")))
	if !ok {
		writeError(w, "players must name roster members", http.StatusBadRequest)
		return
	}

	snap, err := s.datasets.Load(r.Context())
	if errors.Is(err, cache.ErrNoDataset) {
		writeError(w, "No cache found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("cache load failed", "err", err)
		writeError(w, "failed to load cache", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats.Compute(snap.Dataset.Matches, selected))
}

// Ask handles POST /api/v1/ask
func (s *Service) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, "Question is required", http.StatusBadRequest)
		return
	}
	if s.asker == nil {
		writeError(w, msgGeminiNotConfigured, http.StatusInternalServerError)
		return
	}
	selected, ok := s.selectPlayers(req.Players)
	if !ok {
		writeError(w, "players must name roster members", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	matches := req.Matches
	if len(matches) == 0 {
		snap, err := s.datasets.Load(ctx)
		switch {
		case err == nil:
			matches = snap.Dataset.Matches
		case !errors.Is(err, cache.ErrNoDataset):
			slog.Error("cache load failed", "err", err)
			writeError(w, "failed to load cache", http.StatusInternalServerError)
			return
		}
	}
	summary := stats.Compute(matches, selected)

	ans, err := s.asker.Ask(ctx, req.Question, &summary, matches)
	if err != nil {
		slog.Error("ask failed", "err", err)
		writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, AskResponse{
		Answer:       ans.Text,
		FinishReason: ans.FinishReason,
		Status:       ans.Status(),
		Model:        ans.Model,
	})
}

// selectPlayers defaults to the whole roster and rejects unknown names.
func (s *Service) selectPlayers(names []string) ([]string, bool) {
	if len(names) == 0 {
		return s.cfg.Roster.Names(), true
	}
	for _, n := range names {
		if !s.cfg.Roster.Contains(n) {
			return nil, false
		}
	}
	return names, true
}

func splitNames(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
