package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
	"torchlight/internal/domain/repositories"
)

// autosaveOwner is the lock owner the save loop claims sessions under.
const autosaveOwner = "autosave"

// AutosaveRunner periodically captures auto snapshots of every
// session. Each capture claims the session lock as "autosave" and
// skips sessions a player currently holds; a skipped session is
// retried on the next tick.
type AutosaveRunner struct {
	store     repositories.Store
	locks     *LockService
	snapshots *SnapshotService
	interval  time.Duration
	logger    *slog.Logger
}

func NewAutosaveRunner(
	store repositories.Store,
	locks *LockService,
	snapshots *SnapshotService,
	interval time.Duration,
	logger *slog.Logger,
) *AutosaveRunner {
	return &AutosaveRunner{
		store:     store,
		locks:     locks,
		snapshots: snapshots,
		interval:  interval,
		logger:    logger,
	}
}

// Run blocks until the context is canceled. A zero interval disables
// the loop.
func (r *AutosaveRunner) Run(ctx context.Context) error {
	if r.interval <= 0 {
		r.logger.Info("autosave disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("autosave loop started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("autosave loop stopped")
			return nil
		case <-ticker.C:
			r.saveAll(ctx)
		}
	}
}

func (r *AutosaveRunner) saveAll(ctx context.Context) {
	sessions, err := r.store.ListSessions(ctx)
	if err != nil {
		r.logger.Error("autosave session listing failed", "error", err)
		return
	}
	for _, session := range sessions {
		if err := r.saveOne(ctx, session.Slug); err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				r.logger.Debug("autosave skipped, session locked", "slug", session.Slug)
				continue
			}
			r.logger.Error("autosave failed", "slug", session.Slug, "error", err)
		}
	}
}

func (r *AutosaveRunner) saveOne(ctx context.Context, slug string) error {
	ttl := int(r.interval / time.Second)
	if ttl < 30 {
		ttl = 30
	}
	if _, err := r.locks.Claim(ctx, slug, autosaveOwner, ttl); err != nil {
		return err
	}
	defer func() {
		if err := r.locks.Release(ctx, slug, autosaveOwner); err != nil {
			r.logger.Warn("autosave lock release failed", "slug", slug, "error", err)
		}
	}()

	_, err := r.snapshots.Create(ctx, slug, models.SaveTypeAuto, "", autosaveOwner)
	return err
}
