package sqlite

import (
	"context"
	"database/sql"
	"time"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
)

// ClaimLock races claimants on a conditional insert keyed by
// session_id. The insert-or-nothing runs first; only when it loses
// does the claim inspect the standing lease for refresh or expiry
// takeover, all inside one transaction.
func (s *Store) ClaimLock(ctx context.Context, slug string, lock models.LockInfo) (models.LockInfo, error) {
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return models.LockInfo{}, err
	}

	acquiredAt := lock.AcquiredAt.UTC().Format(time.RFC3339Nano)
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO locks (session_id, owner, ttl_seconds, acquired_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (session_id) DO NOTHING`,
			id, lock.Owner, lock.TTL, acquiredAt)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 1 {
			return nil
		}

		current, err := scanLock(tx.QueryRowContext(ctx, `
			SELECT owner, ttl_seconds, acquired_at FROM locks WHERE session_id = ?`, id))
		if err != nil {
			return err
		}
		if current == nil {
			// Released between the insert and the read; retry path is a
			// fresh claim from the caller.
			return domain.E(domain.KindLockHeld, "lock contention on %q", slug)
		}
		if current.Owner != lock.Owner && !current.Expired(time.Now()) {
			return domain.E(domain.KindLockHeld, "lock held by %q", current.Owner).
				WithDetails(map[string]any{"owner": current.Owner})
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE locks SET owner = ?, ttl_seconds = ?, acquired_at = ?
			WHERE session_id = ?`,
			lock.Owner, lock.TTL, acquiredAt, id)
		return err
	})
	if err != nil {
		return models.LockInfo{}, err
	}
	return lock, nil
}

func (s *Store) ReleaseLock(ctx context.Context, slug, owner string) error {
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanLock(tx.QueryRowContext(ctx, `
			SELECT owner, ttl_seconds, acquired_at FROM locks WHERE session_id = ?`, id))
		if err != nil {
			return err
		}
		if current == nil {
			return nil
		}
		if owner != "" && current.Owner != owner {
			return domain.E(domain.KindLockOwnerMismatch, "lock owned by %q, not %q", current.Owner, owner)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM locks WHERE session_id = ?`, id)
		return err
	})
}

func (s *Store) GetLock(ctx context.Context, slug string) (*models.LockInfo, error) {
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return nil, err
	}
	return scanLock(s.db.QueryRowContext(ctx, `
		SELECT owner, ttl_seconds, acquired_at FROM locks WHERE session_id = ?`, id))
}

func scanLock(row *sql.Row) (*models.LockInfo, error) {
	var lock models.LockInfo
	var acquiredAt string
	err := row.Scan(&lock.Owner, &lock.TTL, &acquiredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, acquiredAt)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "lock acquired_at unreadable")
	}
	lock.AcquiredAt = t
	return &lock, nil
}
