package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vibetom/boystats/internal/cache"
	"github.com/vibetom/boystats/internal/model"
)

// CacheResponse is returned from GET /api/v1/cache.
type CacheResponse struct {
	Exists      bool          `json:"exists"`
	LastUpdated time.Time     `json:"lastUpdated"`
	Size        int           `json:"size"`
	Version     int64         `json:"version"`
	Data        model.Dataset `json:"data"`
}

// CommitRequest is the JSON body for POST /api/v1/cache.
type CommitRequest struct {
	Matches         []model.MatchRecord `json:"matches"`
	MatchIDs        []string            `json:"matchIds"`
	Players         map[string]string   `json:"players"`
	Mode            string              `json:"mode"` // "incremental" (default) or "full"
	ExpectedVersion int64               `json:"expectedVersion"`
	Label           string              `json:"label"`
}

// CommitResponse is returned from POST /api/v1/cache.
type CommitResponse struct {
	Success       bool          `json:"success"`
	Outcome       cache.Outcome `json:"outcome"`
	Size          int           `json:"size"`
	MatchCount    int           `json:"matchCount"`
	PreviousCount int           `json:"previousCount"`
	Version       int64         `json:"version"`
	Timestamp     int64         `json:"timestamp"`
	BackupID      string        `json:"backupId,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// GetCache handles GET /api/v1/cache
func (s *Service) GetCache(w http.ResponseWriter, r *http.Request) {
	snap, err := s.datasets.Load(r.Context())
	if errors.Is(err, cache.ErrNoDataset) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "No cache found", "exists": false})
		return
	}
	if err != nil {
		slog.Error("cache load failed", "err", err)
		writeError(w, "failed to load cache", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, CacheResponse{
		Exists:      true,
		LastUpdated: snap.Dataset.UpdatedAt,
		Size:        snap.Size,
		Version:     snap.Dataset.Version,
		Data:        snap.Dataset,
	})
}

// PostCache handles POST /api/v1/cache
// An incremental commit smaller than the stored dataset is refused with 409
// and leaves the store untouched.
func (s *Service) PostCache(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Matches == nil || req.Players == nil {
		writeError(w, "Missing required fields: matches, players", http.StatusBadRequest)
		return
	}
	mode, err := cache.ParseMode(req.Mode)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.datasets.Commit(r.Context(), model.Dataset{
		Matches:  req.Matches,
		MatchIDs: req.MatchIDs,
		Players:  req.Players,
	}, cache.CommitOptions{Mode: mode, ExpectedVersion: req.ExpectedVersion, Label: req.Label})
	if errors.Is(err, cache.ErrVersionConflict) {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		slog.Error("cache commit failed", "err", err)
		writeError(w, "failed to write cache", http.StatusInternalServerError)
		return
	}

	resp := CommitResponse{
		Success:       res.Committed(),
		Outcome:       res.Outcome,
		Size:          res.Size,
		MatchCount:    res.MatchCount,
		PreviousCount: res.PreviousCount,
		Version:       res.Version,
		Timestamp:     res.Timestamp,
	}
	if res.Backup != nil {
		resp.BackupID = res.Backup.ID
	}
	if !res.Committed() {
		resp.Error = "refusing to replace a larger dataset; use mode=full to force"
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListBackups handles GET /api/v1/cache/backups
func (s *Service) ListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := s.datasets.Backups(r.Context())
	if err != nil {
		writeError(w, "failed to list backups", http.StatusInternalServerError)
		return
	}
	if backups == nil {
		backups = []model.Backup{}
	}
	writeJSON(w, http.StatusOK, backups)
}

// RestoreBackup handles POST /api/v1/cache/backups/{backupID}/restore
func (s *Service) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	backupID := chi.URLParam(r, "backupID")

	res, err := s.datasets.Restore(r.Context(), backupID)
	if errors.Is(err, cache.ErrBackupNotFound) {
		writeError(w, "backup not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("restore failed", "backup_id", backupID, "err", err)
		writeError(w, "failed to restore backup", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteBackup handles DELETE /api/v1/cache/backups/{backupID}
func (s *Service) DeleteBackup(w http.ResponseWriter, r *http.Request) {
	backupID := chi.URLParam(r, "backupID")

	err := s.datasets.DeleteBackup(r.Context(), backupID)
	if errors.Is(err, cache.ErrBackupNotFound) {
		writeError(w, "backup not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to delete backup", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateBackup handles POST /api/v1/cache/backups
// Archives the current dataset under an optional {"label": "..."}.
func (s *Service) CreateBackup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	b, err := s.datasets.Backup(r.Context(), req.Label)
	if errors.Is(err, cache.ErrNoDataset) {
		writeError(w, "No cache found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("backup failed", "err", err)
		writeError(w, "failed to create backup", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}
