package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
)

func (s *Store) ListSessions(ctx context.Context) ([]models.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.slug, s.world, s.updated_at, l.session_id IS NOT NULL
		FROM sessions s
		LEFT JOIN locks l ON l.session_id = s.id
		ORDER BY s.slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.SessionSummary
	for rows.Next() {
		var summary models.SessionSummary
		var updatedAt string
		if err := rows.Scan(&summary.Slug, &summary.World, &updatedAt, &summary.HasLock); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			summary.UpdatedAt = t
		}
		sessions = append(sessions, summary)
	}
	return sessions, rows.Err()
}

func (s *Store) CreateSession(ctx context.Context, slug string, state models.SessionState) error {
	if !slugPattern.MatchString(slug) {
		return domain.E(domain.KindSchemaViolation,
			"invalid session slug %q: use letters, numbers, hyphens, or underscores", slug)
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return err
	}
	world := state.World
	if world == "" {
		world = "default"
	}
	now := nowISO()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (slug, world, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (slug) DO NOTHING`,
			slug, world, now, now)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.E(domain.KindConflict, "session %q already exists", slug)
		}
		var id int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM sessions WHERE slug = ?`, slug).Scan(&id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO session_state (session_id, state_json, turn_number, log_index, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			id, string(stateJSON), state.Turn, state.LogIndex, now)
		return err
	})
}

func (s *Store) SessionExists(ctx context.Context, slug string) (bool, error) {
	if !slugPattern.MatchString(slug) {
		return false, nil
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE slug = ?`, slug).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) LoadState(ctx context.Context, slug string) (models.SessionState, error) {
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return models.SessionState{}, err
	}
	return s.loadStateByID(ctx, s.db, id, slug)
}

func (s *Store) loadStateByID(ctx context.Context, q queryer, id int64, slug string) (models.SessionState, error) {
	var stateJSON string
	err := q.QueryRowContext(ctx,
		`SELECT state_json FROM session_state WHERE session_id = ?`, id).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return models.SessionState{}, domain.E(domain.KindSessionMissing, "state not found for %q", slug)
	}
	if err != nil {
		return models.SessionState{}, err
	}
	var state models.SessionState
	if err := json.Unmarshal([]byte(strings.TrimPrefix(stateJSON, "\uFEFF")), &state); err != nil {
		return models.SessionState{}, domain.Wrap(domain.KindInternal, err, "decode state for %q", slug)
	}
	return state, nil
}

func (s *Store) SaveState(ctx context.Context, slug string, state models.SessionState) error {
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.saveStateTx(ctx, tx, id, state)
	})
}

// saveStateTx persists the state document and mirrors turn_number and
// log_index into their indexed columns.
func (s *Store) saveStateTx(ctx context.Context, tx *sql.Tx, id int64, state models.SessionState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return err
	}
	now := nowISO()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_state (session_id, state_json, turn_number, log_index, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			state_json = excluded.state_json,
			turn_number = excluded.turn_number,
			log_index = excluded.log_index,
			updated_at = excluded.updated_at`,
		id, string(stateJSON), state.Turn, state.LogIndex, now); err != nil {
		return err
	}
	return s.touchSession(ctx, tx, id)
}
