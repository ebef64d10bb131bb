package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
)

func (s *Store) SavePreview(ctx context.Context, preview models.Preview) error {
	id, err := s.sessionID(ctx, s.db, preview.Slug)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(preview)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO previews (session_id, preview_id, payload_json, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id, preview_id) DO UPDATE SET
			payload_json = excluded.payload_json`,
		id, preview.ID, string(payload), nowISO())
	return err
}

func (s *Store) LoadPreview(ctx context.Context, slug, previewID string) (models.Preview, error) {
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return models.Preview{}, err
	}
	var payload string
	err = s.db.QueryRowContext(ctx, `
		SELECT payload_json FROM previews
		WHERE session_id = ? AND preview_id = ?`, id, previewID).Scan(&payload)
	if err == sql.ErrNoRows {
		return models.Preview{}, domain.E(domain.KindPreviewMissing, "preview %q not found or expired", previewID)
	}
	if err != nil {
		return models.Preview{}, err
	}
	var preview models.Preview
	if err := json.Unmarshal([]byte(payload), &preview); err != nil {
		return models.Preview{}, domain.Wrap(domain.KindInternal, err, "decode preview %q", previewID)
	}
	return preview, nil
}

func (s *Store) DeletePreview(ctx context.Context, slug, previewID string) error {
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM previews WHERE session_id = ? AND preview_id = ?`, id, previewID)
	return err
}

func (s *Store) ListPreviews(ctx context.Context, slug string) ([]models.Preview, error) {
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload_json FROM previews WHERE session_id = ? ORDER BY created_at`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var previews []models.Preview
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var preview models.Preview
		if err := json.Unmarshal([]byte(payload), &preview); err != nil {
			continue
		}
		previews = append(previews, preview)
	}
	return previews, rows.Err()
}
