package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
)

// ClaimLock creates the lease with an exclusive hard link so
// concurrent claimants race on a single OS primitive rather than a
// check-then-create window. A live lease by another owner fails with
// LockHeld; the holder refreshes idempotently; an expired lease is
// replaced.
func (s *Store) ClaimLock(ctx context.Context, slug string, lock models.LockInfo) (models.LockInfo, error) {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return models.LockInfo{}, err
	}
	path := filepath.Join(dir, lockFile)

	for attempt := 0; attempt < 2; attempt++ {
		created, err := publishLock(path, lock)
		if err != nil {
			return models.LockInfo{}, err
		}
		if created {
			return lock, nil
		}

		current, err := s.GetLock(ctx, slug)
		if err != nil {
			return models.LockInfo{}, err
		}
		if current == nil {
			// Holder released between our create and read; try again.
			continue
		}
		if current.Owner == lock.Owner || current.Expired(time.Now()) {
			// Refresh or steal by atomic replacement.
			if err := writeJSON(path, lock); err != nil {
				return models.LockInfo{}, err
			}
			return lock, nil
		}
		return models.LockInfo{}, domain.E(domain.KindLockHeld, "lock held by %q", current.Owner).
			WithDetails(map[string]any{"owner": current.Owner})
	}
	return models.LockInfo{}, domain.E(domain.KindLockHeld, "lock contention on %q", slug)
}

// publishLock links a fully written lease into place. The link either
// succeeds with the content already present or fails because a lease
// exists, so readers never observe a partially written lock file.
func publishLock(path string, lock models.LockInfo) (bool, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".lock-*")
	if err != nil {
		return false, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := json.NewEncoder(tmp).Encode(lock); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}

	if err := os.Link(tmpPath, path); err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) ReleaseLock(ctx context.Context, slug, owner string) error {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return err
	}
	current, err := s.GetLock(ctx, slug)
	if err != nil {
		return err
	}
	if current == nil {
		return nil
	}
	if owner != "" && current.Owner != owner {
		return domain.E(domain.KindLockOwnerMismatch, "lock owned by %q, not %q", current.Owner, owner)
	}
	if err := os.Remove(filepath.Join(dir, lockFile)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) GetLock(_ context.Context, slug string) (*models.LockInfo, error) {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return nil, err
	}
	var lock models.LockInfo
	if err := readJSON(filepath.Join(dir, lockFile), &lock); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.Wrap(domain.KindInternal, err, "lock file unreadable for %q", slug)
	}
	return &lock, nil
}
