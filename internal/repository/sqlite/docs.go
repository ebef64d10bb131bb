package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"torchlight/internal/domain"
	"torchlight/internal/domain/repositories"
)

func (s *Store) LoadDoc(ctx context.Context, slug, kind string) (map[string]any, error) {
	if !repositories.ValidDocKind(kind) {
		return nil, domain.E(domain.KindSchemaViolation, "unknown document kind %q", kind)
	}
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return nil, err
	}
	var payload string
	err = s.db.QueryRowContext(ctx, `
		SELECT payload_json FROM session_docs
		WHERE session_id = ? AND kind = ?`, id, kind).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "decode %s doc for %q", kind, slug)
	}
	return doc, nil
}

func (s *Store) SaveDoc(ctx context.Context, slug, kind string, doc map[string]any) error {
	if !repositories.ValidDocKind(kind) {
		return domain.E(domain.KindSchemaViolation, "unknown document kind %q", kind)
	}
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_docs (session_id, kind, payload_json)
		VALUES (?, ?, ?)
		ON CONFLICT (session_id, kind) DO UPDATE SET
			payload_json = excluded.payload_json`,
		id, kind, string(payload))
	return err
}
