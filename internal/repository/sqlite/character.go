package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
)

// LoadCharacter prefers the session-local row and falls back to the
// shared catalog row (sentinel session id).
func (s *Store) LoadCharacter(ctx context.Context, slug string) (*models.Character, error) {
	if !slugPattern.MatchString(slug) {
		return nil, domain.E(domain.KindSchemaViolation, "invalid character slug %q", slug)
	}

	var sessionID int64 = sharedSessionID
	if id, err := s.sessionID(ctx, s.db, slug); err == nil {
		sessionID = id
	}

	for _, ownerID := range []int64{sessionID, sharedSessionID} {
		var characterJSON string
		err := s.db.QueryRowContext(ctx, `
			SELECT character_json FROM characters
			WHERE session_id = ? AND slug = ?`, ownerID, slug).Scan(&characterJSON)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		var character models.Character
		if err := json.Unmarshal([]byte(characterJSON), &character); err != nil {
			return nil, domain.Wrap(domain.KindInternal, err, "invalid character data for %q", slug)
		}
		return &character, nil
	}
	return nil, nil
}

func (s *Store) SaveCharacter(ctx context.Context, character models.Character, persistShared bool) error {
	slug := character.Slug
	if !slugPattern.MatchString(slug) {
		return domain.E(domain.KindSchemaViolation, "invalid character slug %q", slug)
	}
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return err
	}
	characterJSON, err := json.Marshal(character)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertCharacter(ctx, tx, id, slug, string(characterJSON), false); err != nil {
			return err
		}
		if persistShared {
			return upsertCharacter(ctx, tx, sharedSessionID, slug, string(characterJSON), true)
		}
		return nil
	})
}

func upsertCharacter(ctx context.Context, tx *sql.Tx, sessionID int64, slug, characterJSON string, shared bool) error {
	now := nowISO()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO characters (session_id, slug, character_json, is_shared, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, slug) DO UPDATE SET
			character_json = excluded.character_json,
			updated_at = excluded.updated_at`,
		sessionID, slug, characterJSON, shared, now, now)
	return err
}
