// Package cache persists the merged Dataset behind a fixed well-known key
// and guards it against accidental shrinkage.
//
// An incremental commit is refused when the candidate holds fewer matches
// than the persisted dataset. A full commit bypasses that guard only after
// archiving the persisted dataset as a backup; the newest MaxBackups are
// kept and older ones are evicted.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vibetom/boystats/internal/dataset"
	"github.com/vibetom/boystats/internal/metrics"
	"github.com/vibetom/boystats/internal/model"
	"github.com/vibetom/boystats/internal/store"
)

const (
	// CurrentKey always points at the live dataset blob.
	CurrentKey = "datasets/current"

	// BackupPrefix namespaces archived datasets.
	BackupPrefix = "datasets/backups/"
)

var (
	// ErrNoDataset is returned by Load before the first commit.
	ErrNoDataset = errors.New("cache: no dataset stored")

	// ErrVersionConflict is returned when CommitOptions.ExpectedVersion does
	// not match the persisted version.
	ErrVersionConflict = errors.New("cache: dataset version conflict")

	// ErrBackupNotFound is returned for unknown backup ids.
	ErrBackupNotFound = errors.New("cache: backup not found")
)

// Mode selects how a commit treats the persisted dataset.
type Mode string

const (
	// ModeIncremental replaces the dataset only if it does not shrink.
	ModeIncremental Mode = "incremental"
	// ModeFull archives the persisted dataset and replaces it unconditionally.
	ModeFull Mode = "full"
)

// ParseMode maps "" to ModeIncremental.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeIncremental:
		return ModeIncremental, nil
	case ModeFull:
		return ModeFull, nil
	}
	return "", fmt.Errorf("cache: unknown mode %q", s)
}

// Outcome is the result of a commit that did not error.
type Outcome string

const (
	OutcomeCommitted       Outcome = "committed"
	OutcomeRejectedSmaller Outcome = "rejected_smaller_dataset"
)

// CommitOptions controls a commit.
type CommitOptions struct {
	Mode Mode
	// ExpectedVersion, when non-zero, must equal the persisted version.
	ExpectedVersion int64
	// Label names the backup taken by a full commit.
	Label string
}

// CommitResult describes a commit attempt.
type CommitResult struct {
	Outcome       Outcome       `json:"outcome"`
	MatchCount    int           `json:"matchCount"`
	PreviousCount int           `json:"previousCount"`
	Version       int64         `json:"version"`
	Size          int           `json:"size"`
	Timestamp     int64         `json:"timestamp"`
	Backup        *model.Backup `json:"backup,omitempty"`
}

// Committed reports whether the dataset was written.
func (r CommitResult) Committed() bool { return r.Outcome == OutcomeCommitted }

// Snapshot is the persisted dataset with blob metadata.
type Snapshot struct {
	Dataset model.Dataset
	Size    int
}

type backupEnvelope struct {
	Backup  model.Backup  `json:"backup"`
	Dataset model.Dataset `json:"dataset"`
}

// Manager reads and commits datasets through a BlobStore. Commits within
// one process are serialized; separate processes are not coordinated
// beyond the size guard and the optional version check.
type Manager struct {
	store      store.BlobStore
	maxBackups int
	now        func() time.Time
	newID      func() string
	mu         sync.Mutex
}

// NewManager creates a manager keeping at most maxBackups archives.
func NewManager(st store.BlobStore, maxBackups int) *Manager {
	if maxBackups < 1 {
		maxBackups = 1
	}
	return &Manager{
		store:      st,
		maxBackups: maxBackups,
		now:        time.Now,
		// V7 ids sort by creation time, which keeps List order stable
		// when two backups share a timestamp.
		newID: func() string { return uuid.Must(uuid.NewV7()).String() },
	}
}

// Load returns the persisted dataset or ErrNoDataset.
func (m *Manager) Load(ctx context.Context) (*Snapshot, error) {
	data, err := m.store.Get(ctx, CurrentKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoDataset
	}
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	var ds model.Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &Snapshot{Dataset: ds, Size: len(data)}, nil
}

// loadOrEmpty treats a missing dataset as empty.
func (m *Manager) loadOrEmpty(ctx context.Context) (model.Dataset, bool, error) {
	snap, err := m.Load(ctx)
	if errors.Is(err, ErrNoDataset) {
		return model.Dataset{Players: map[string]string{}}, false, nil
	}
	if err != nil {
		return model.Dataset{}, false, err
	}
	return snap.Dataset, true, nil
}

// Commit writes candidate as the current dataset according to opts.Mode.
// An incremental commit of a dataset smaller than the persisted one returns
// OutcomeRejectedSmaller and leaves the store untouched.
func (m *Manager) Commit(ctx context.Context, candidate model.Dataset, opts CommitOptions) (CommitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitLocked(ctx, dataset.Normalize(candidate), opts)
}

// Merge folds fresh matches into the persisted dataset and commits the
// result incrementally.
func (m *Manager) Merge(ctx context.Context, fresh []model.MatchRecord, freshIDs []string, players map[string]string, expectedVersion int64) (CommitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, _, err := m.loadOrEmpty(ctx)
	if err != nil {
		return CommitResult{}, err
	}
	merged := dataset.WithPlayers(dataset.Merge(current, fresh, freshIDs), players)
	return m.commitLocked(ctx, merged, CommitOptions{Mode: ModeIncremental, ExpectedVersion: expectedVersion})
}

func (m *Manager) commitLocked(ctx context.Context, candidate model.Dataset, opts CommitOptions) (CommitResult, error) {
	if opts.Mode == "" {
		opts.Mode = ModeIncremental
	}
	current, exists, err := m.loadOrEmpty(ctx)
	if err != nil {
		return CommitResult{}, err
	}
	if opts.ExpectedVersion != 0 && opts.ExpectedVersion != current.Version {
		metrics.CacheCommits.WithLabelValues("conflict").Inc()
		return CommitResult{}, fmt.Errorf("%w: expected %d, stored %d", ErrVersionConflict, opts.ExpectedVersion, current.Version)
	}

	result := CommitResult{
		MatchCount:    len(candidate.Matches),
		PreviousCount: len(current.Matches),
		Version:       current.Version,
		Timestamp:     current.Timestamp,
	}

	switch opts.Mode {
	case ModeFull:
		if exists {
			label := opts.Label
			if label == "" {
				label = "full-refresh"
			}
			b, err := m.archiveLocked(ctx, current, label)
			if err != nil {
				return CommitResult{}, err
			}
			result.Backup = b
		}
	default:
		if len(candidate.Matches) < len(current.Matches) {
			metrics.CacheCommits.WithLabelValues(string(OutcomeRejectedSmaller)).Inc()
			slog.Warn("dataset commit rejected: smaller than persisted",
				"candidate", len(candidate.Matches),
				"persisted", len(current.Matches),
			)
			result.Outcome = OutcomeRejectedSmaller
			return result, nil
		}
	}

	now := m.now().UTC()
	candidate.Version = current.Version + 1
	candidate.Timestamp = now.UnixMilli()
	candidate.UpdatedAt = now

	data, err := json.Marshal(candidate)
	if err != nil {
		return CommitResult{}, fmt.Errorf("encode dataset: %w", err)
	}
	if err := m.store.Put(ctx, CurrentKey, data); err != nil {
		return CommitResult{}, fmt.Errorf("store dataset: %w", err)
	}

	metrics.CacheCommits.WithLabelValues(string(OutcomeCommitted)).Inc()
	metrics.DatasetMatches.Set(float64(len(candidate.Matches)))
	slog.Info("dataset committed",
		"mode", string(opts.Mode),
		"matches", len(candidate.Matches),
		"previous", len(current.Matches),
		"version", candidate.Version,
		"bytes", len(data),
	)

	result.Outcome = OutcomeCommitted
	result.Version = candidate.Version
	result.Timestamp = candidate.Timestamp
	result.Size = len(data)
	return result, nil
}

// --- Backups ---

// Backups lists archived datasets, newest first.
func (m *Manager) Backups(ctx context.Context) ([]model.Backup, error) {
	infos, err := m.store.List(ctx, BackupPrefix)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	backups := make([]model.Backup, 0, len(infos))
	for _, info := range infos {
		env, err := m.readBackup(ctx, info.Key)
		if err != nil {
			slog.Warn("skipping unreadable backup", "key", info.Key, "err", err)
			continue
		}
		backups = append(backups, env.Backup)
	}
	return backups, nil
}

// Backup archives the persisted dataset on demand.
func (m *Manager) Backup(ctx context.Context, label string) (*model.Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists, err := m.loadOrEmpty(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNoDataset
	}
	if label == "" {
		label = "manual"
	}
	return m.archiveLocked(ctx, current, label)
}

// Restore replaces the current dataset wholesale with a backup. The dataset
// being replaced is archived first.
func (m *Manager) Restore(ctx context.Context, backupID string) (CommitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	env, err := m.readBackup(ctx, backupKey(backupID))
	if errors.Is(err, store.ErrNotFound) {
		return CommitResult{}, ErrBackupNotFound
	}
	if err != nil {
		return CommitResult{}, err
	}

	result, err := m.commitLocked(ctx, env.Dataset, CommitOptions{Mode: ModeFull, Label: "pre-restore"})
	if err != nil {
		return CommitResult{}, err
	}
	slog.Info("dataset restored", "backup_id", backupID, "matches", result.MatchCount)
	return result, nil
}

// DeleteBackup removes one archive.
func (m *Manager) DeleteBackup(ctx context.Context, backupID string) error {
	if _, err := m.store.Get(ctx, backupKey(backupID)); errors.Is(err, store.ErrNotFound) {
		return ErrBackupNotFound
	}
	return m.store.Delete(ctx, backupKey(backupID))
}

func (m *Manager) archiveLocked(ctx context.Context, ds model.Dataset, label string) (*model.Backup, error) {
	b := model.Backup{
		ID:         m.newID(),
		Label:      label,
		CreatedAt:  m.now().UTC(),
		MatchCount: len(ds.Matches),
		Version:    ds.Version,
	}
	data, err := json.Marshal(backupEnvelope{Backup: b, Dataset: ds})
	if err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}
	b.Size = len(data)
	if err := m.store.Put(ctx, backupKey(b.ID), data); err != nil {
		return nil, fmt.Errorf("store backup: %w", err)
	}
	slog.Info("dataset archived", "backup_id", b.ID, "label", label, "matches", b.MatchCount)

	if err := m.pruneLocked(ctx); err != nil {
		return nil, err
	}
	return &b, nil
}

// pruneLocked evicts the oldest backups beyond maxBackups.
func (m *Manager) pruneLocked(ctx context.Context) error {
	infos, err := m.store.List(ctx, BackupPrefix)
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}
	for i := m.maxBackups; i < len(infos); i++ {
		if err := m.store.Delete(ctx, infos[i].Key); err != nil {
			return fmt.Errorf("evict backup %s: %w", infos[i].Key, err)
		}
		slog.Info("backup evicted", "key", infos[i].Key)
	}
	return nil
}

func (m *Manager) readBackup(ctx context.Context, key string) (*backupEnvelope, error) {
	data, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var env backupEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode backup %s: %w", key, err)
	}
	env.Backup.Size = len(data)
	return &env, nil
}

func backupKey(id string) string { return BackupPrefix + id }
