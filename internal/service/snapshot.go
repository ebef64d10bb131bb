package service

import (
	"context"
	"log/slog"
	"time"

	"torchlight/internal/domain/models"
	"torchlight/internal/domain/repositories"
)

// autoSaveDocKind is the aux document holding save-loop metadata.
const autoSaveDocKind = "auto_save"

// SnapshotService captures and restores whole-session save points.
// Captures and restores run under the session lock; a restore also
// clears the lock and pending previews through the backend.
type SnapshotService struct {
	store  repositories.Store
	locks  *LockService
	logger *slog.Logger
}

func NewSnapshotService(store repositories.Store, locks *LockService, logger *slog.Logger) *SnapshotService {
	return &SnapshotService{store: store, locks: locks, logger: logger}
}

// Create captures a save point. saveType is auto or manual; saveName
// optionally prefixes the generated save id.
func (s *SnapshotService) Create(ctx context.Context, slug, saveType, saveName, lockOwner string) (models.Snapshot, error) {
	if err := s.locks.Require(ctx, slug, lockOwner); err != nil {
		return models.Snapshot{}, err
	}
	snapshot, err := s.store.CaptureSnapshot(ctx, slug, saveType, saveName)
	if err != nil {
		return models.Snapshot{}, err
	}
	s.logger.Info("snapshot captured", "slug", slug, "save_id", snapshot.SaveID, "type", saveType)

	s.bumpSaveMetadata(ctx, slug)
	return snapshot, nil
}

// List returns save points, newest first.
func (s *SnapshotService) List(ctx context.Context, slug string, limit int) ([]models.Snapshot, error) {
	snapshots, err := s.store.ListSnapshots(ctx, slug)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(snapshots) > limit {
		snapshots = snapshots[:limit]
	}
	return snapshots, nil
}

func (s *SnapshotService) Get(ctx context.Context, slug, saveID string) (models.Snapshot, error) {
	return s.store.GetSnapshot(ctx, slug, saveID)
}

// Restore writes the captured artifacts back over the session.
func (s *SnapshotService) Restore(ctx context.Context, slug, saveID, lockOwner string) error {
	if err := s.locks.Require(ctx, slug, lockOwner); err != nil {
		return err
	}
	if err := s.store.RestoreSnapshot(ctx, slug, saveID); err != nil {
		return err
	}
	s.logger.Info("snapshot restored", "slug", slug, "save_id", saveID)
	return nil
}

func (s *SnapshotService) Delete(ctx context.Context, slug, saveID string) error {
	return s.store.DeleteSnapshot(ctx, slug, saveID)
}

// bumpSaveMetadata updates the auto_save doc's counters. Metadata is
// advisory; failures only log.
func (s *SnapshotService) bumpSaveMetadata(ctx context.Context, slug string) {
	doc, err := s.store.LoadDoc(ctx, slug, autoSaveDocKind)
	if err != nil {
		s.logger.Warn("save metadata read failed", "slug", slug, "error", err)
		return
	}
	if doc == nil {
		doc = make(map[string]any)
	}
	count := 0
	if n, ok := toFloat(doc["save_count"]); ok {
		count = int(n)
	}
	doc["save_count"] = count + 1
	doc["last_save_time"] = time.Now().UTC().Format(time.RFC3339)
	doc["session_slug"] = slug
	if err := s.store.SaveDoc(ctx, slug, autoSaveDocKind, doc); err != nil {
		s.logger.Warn("save metadata write failed", "slug", slug, "error", err)
	}
}
