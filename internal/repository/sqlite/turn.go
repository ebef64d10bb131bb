package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
)

func (s *Store) SaveTurn(ctx context.Context, slug string, record models.TurnRecord) error {
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return err
	}
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO turns (session_id, turn_number, turn_record_json, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id, turn_number) DO UPDATE SET
			turn_record_json = excluded.turn_record_json`,
		id, record.Turn, string(recordJSON), nowISO())
	return err
}

func (s *Store) LoadTurns(ctx context.Context, slug string) ([]models.TurnRecord, error) {
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT turn_record_json FROM turns
		WHERE session_id = ?
		ORDER BY turn_number DESC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.TurnRecord
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, err
		}
		var record models.TurnRecord
		if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
			if s.logger != nil {
				s.logger.Warn("skipping undecodable turn record", "slug", slug, "error", err)
			}
			continue
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *Store) LoadTurn(ctx context.Context, slug string, turn int) (*models.TurnRecord, error) {
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return nil, err
	}
	var recordJSON string
	err = s.db.QueryRowContext(ctx, `
		SELECT turn_record_json FROM turns
		WHERE session_id = ? AND turn_number = ?`, id, turn).Scan(&recordJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record models.TurnRecord
	if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "decode turn record %d for %q", turn, slug)
	}
	return &record, nil
}

func (s *Store) AppendRolls(ctx context.Context, slug string, turn int, rolls []models.RollPayload) error {
	record, err := s.LoadTurn(ctx, slug, turn)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}
	record.Rolls = append(record.Rolls, rolls...)
	return s.SaveTurn(ctx, slug, *record)
}
