package service

import (
	"context"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
	"torchlight/internal/domain/repositories"
)

// LockService runs the per-session lease protocol on top of the
// storage contract. The atomicity of a claim lives in the backend
// (exclusive create / conditional insert); this layer adds defaults,
// validation, and the Require check writers use.
type LockService struct {
	store      repositories.Store
	defaultTTL int
	logger     *slog.Logger
}

func NewLockService(store repositories.Store, defaultTTL int, logger *slog.Logger) *LockService {
	return &LockService{store: store, defaultTTL: defaultTTL, logger: logger}
}

// Claim acquires or refreshes the session lease.
func (s *LockService) Claim(ctx context.Context, slug, owner string, ttl int) (models.LockInfo, error) {
	if err := validation.Validate(owner, validation.Required, validation.Length(1, 128)); err != nil {
		return models.LockInfo{}, domain.E(domain.KindSchemaViolation, "lock owner: %v", err)
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	lock, err := s.store.ClaimLock(ctx, slug, models.LockInfo{
		Owner:      owner,
		TTL:        ttl,
		AcquiredAt: time.Now().UTC(),
	})
	if err != nil {
		return models.LockInfo{}, err
	}
	s.logger.Debug("lock claimed", "slug", slug, "owner", owner, "ttl", ttl)
	return lock, nil
}

// Release drops the lease. An empty owner force-releases.
func (s *LockService) Release(ctx context.Context, slug, owner string) error {
	if err := s.store.ReleaseLock(ctx, slug, owner); err != nil {
		return err
	}
	s.logger.Debug("lock released", "slug", slug, "owner", owner)
	return nil
}

// Get returns the current lease, or nil when none is held.
func (s *LockService) Get(ctx context.Context, slug string) (*models.LockInfo, error) {
	return s.store.GetLock(ctx, slug)
}

// Require fails with LockRequired unless a live lease is held by owner.
// With an empty owner any live lease satisfies the check.
func (s *LockService) Require(ctx context.Context, slug, owner string) error {
	lock, err := s.store.GetLock(ctx, slug)
	if err != nil {
		return err
	}
	if lock == nil || lock.Expired(time.Now().UTC()) {
		return domain.E(domain.KindLockRequired, "session %q is not locked; claim the lock first", slug)
	}
	if owner != "" && lock.Owner != owner {
		return domain.E(domain.KindLockRequired, "lock on %q is held by %q", slug, lock.Owner).
			WithDetails(map[string]any{"owner": lock.Owner})
	}
	return nil
}

// Status renders the lease for the turn prompt endpoint.
func (s *LockService) Status(ctx context.Context, slug string) (string, error) {
	lock, err := s.store.GetLock(ctx, slug)
	if err != nil {
		return "", err
	}
	if lock == nil || lock.Expired(time.Now().UTC()) {
		return "unlocked", nil
	}
	return "held by " + lock.Owner, nil
}
