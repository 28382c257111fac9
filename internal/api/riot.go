package api

import (
	"log/slog"
	"net/http"

	"github.com/vibetom/boystats/internal/budget"
	"github.com/vibetom/boystats/internal/config"
	"github.com/vibetom/boystats/internal/discovery"
	"github.com/vibetom/boystats/internal/fetch"
	"github.com/vibetom/boystats/internal/model"
)

// MatchIDsRequest is the JSON body for POST /api/v1/match-ids. Every field
// is optional.
type MatchIDsRequest struct {
	Queues    []int `json:"queues"`
	Pages     int   `json:"pages"`
	StartTime int64 `json:"startTime"` // epoch seconds
}

// MatchIDsResponse is returned from POST /api/v1/match-ids.
type MatchIDsResponse struct {
	MatchIDs []string          `json:"matchIds"`
	Players  map[string]string `json:"players"`
	Debug    discovery.Debug   `json:"debug"`
	Stopped  string            `json:"stopped,omitempty"`
}

// MatchDetailsRequest is the JSON body for POST /api/v1/match-details.
type MatchDetailsRequest struct {
	MatchIDs []string          `json:"matchIds"`
	Players  map[string]string `json:"players"` // display name -> puuid
}

// MatchDetailsResponse is returned from POST /api/v1/match-details.
// Remaining lists ids left for a follow-up call.
type MatchDetailsResponse struct {
	Matches   []model.MatchRecord    `json:"matches"`
	Processed int                    `json:"processed"`
	Filtered  []string               `json:"filtered"`
	Errors    []fetch.MatchError     `json:"errors,omitempty"`
	Remaining []string               `json:"remaining"`
	TimeMs    int64                  `json:"timeMs"`
	Stopped   string                 `json:"stopped,omitempty"`
	Partial   *budget.PartialFailure `json:"partial,omitempty"`
}

// Players handles GET /api/v1/players
// Returns account, summoner and ranked data for each roster member.
func (s *Service) Players(w http.ResponseWriter, r *http.Request) {
	if s.profiles == nil {
		writeError(w, msgRiotNotConfigured, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.profiles.Profiles(r.Context(), s.cfg.Roster))
}

// Accounts handles POST /api/v1/accounts
func (s *Service) Accounts(w http.ResponseWriter, r *http.Request) {
	if s.resolver == nil {
		writeError(w, msgRiotNotConfigured, http.StatusInternalServerError)
		return
	}
	res := s.resolver.Resolve(r.Context(), s.cfg.Roster)
	if res.Errors == nil {
		res.Errors = []string{}
	}
	writeJSON(w, http.StatusOK, res)
}

// MatchIDs handles POST /api/v1/match-ids
// Resolves the roster and enumerates match ids breadth-first by page.
func (s *Service) MatchIDs(w http.ResponseWriter, r *http.Request) {
	if s.enumerator == nil {
		writeError(w, msgRiotNotConfigured, http.StatusInternalServerError)
		return
	}
	var req MatchIDsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	queues := req.Queues
	if len(queues) == 0 {
		queues = s.cfg.Queues
	}
	pages := s.cfg.DiscoveryPages
	if req.Pages > 0 {
		pages = config.ClampPages(req.Pages)
	}

	ctx := r.Context()
	accounts := s.resolver.Resolve(ctx, s.cfg.Roster)
	res := s.enumerator.Discover(ctx, accounts.Accounts, discovery.Options{
		Queues:    queues,
		Pages:     pages,
		StartTime: req.StartTime,
		Budget:    s.cfg.DiscoveryBudget,
	})
	res.Debug.Errors = append(accounts.Errors, res.Debug.Errors...)
	if res.Debug.Errors == nil {
		res.Debug.Errors = []string{}
	}

	resp := MatchIDsResponse{
		MatchIDs: res.IDs,
		Players:  accounts.Accounts,
		Debug:    res.Debug,
	}
	if resp.MatchIDs == nil {
		resp.MatchIDs = []string{}
	}
	if res.Stopped != nil {
		resp.Stopped = res.Stopped.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// MatchDetails handles POST /api/v1/match-details
// Processes at most FetchLimit ids per call in concurrent batches.
func (s *Service) MatchDetails(w http.ResponseWriter, r *http.Request) {
	if s.fetcher == nil {
		writeError(w, msgRiotNotConfigured, http.StatusInternalServerError)
		return
	}
	var req MatchDetailsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.MatchIDs == nil {
		writeError(w, "matchIds array is required", http.StatusBadRequest)
		return
	}
	if len(req.Players) == 0 {
		writeError(w, "players map is required", http.StatusBadRequest)
		return
	}

	ids := req.MatchIDs
	var deferred []string
	if limit := s.cfg.FetchLimit; limit > 0 && len(ids) > limit {
		ids, deferred = ids[:limit], ids[limit:]
	}

	res := s.fetcher.FetchDetails(r.Context(), ids, req.Players, fetch.Options{
		BatchSize: s.cfg.FetchBatchSize,
		Delay:     s.cfg.FetchBatchDelay,
		Budget:    s.cfg.FetchBudget,
	})

	resp := MatchDetailsResponse{
		Matches:   res.Matches,
		Processed: res.Processed,
		Filtered:  res.Filtered,
		Errors:    res.Errors,
		Remaining: append(append([]string{}, res.Remaining...), deferred...),
		TimeMs:    res.TimeMs,
		Partial:   res.Partial(),
	}
	if resp.Matches == nil {
		resp.Matches = []model.MatchRecord{}
	}
	if resp.Filtered == nil {
		resp.Filtered = []string{}
	}
	if res.Stopped != nil {
		resp.Stopped = res.Stopped.Error()
	}
	if resp.Partial != nil {
		slog.Warn("match details partially failed", "failed", resp.Partial.Failed, "total", resp.Partial.Total)
	}
	writeJSON(w, http.StatusOK, resp)
}
