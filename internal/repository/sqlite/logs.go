package sqlite

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"torchlight/internal/domain/models"
)

func (s *Store) AppendTranscript(ctx context.Context, slug string, lines []string) error {
	return s.appendEntries(ctx, slug, kindTranscript, lines)
}

func (s *Store) AppendChangelog(ctx context.Context, slug string, lines []string) error {
	return s.appendEntries(ctx, slug, kindChangelog, lines)
}

func (s *Store) appendEntries(ctx context.Context, slug, kind string, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return appendEntriesTx(ctx, tx, id, kind, lines)
	})
}

// appendEntriesTx inserts non-blank lines at the next dense positions.
// Blank lines are dropped so positions match the filesystem backend,
// which does not count them as entries.
func appendEntriesTx(ctx context.Context, tx *sql.Tx, id int64, kind string, lines []string) error {
	position, err := nextPosition(ctx, tx, id, kind)
	if err != nil {
		return err
	}
	for _, line := range lines {
		line = strings.TrimRight(line, "\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO text_entries (session_id, kind, position, content)
			VALUES (?, ?, ?, ?)`,
			id, kind, position, line); err != nil {
			return err
		}
		position++
	}
	return nil
}

func nextPosition(ctx context.Context, q queryer, id int64, kind string) (int, error) {
	var max sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT MAX(position) FROM text_entries WHERE session_id = ? AND kind = ?`,
		id, kind).Scan(&max)
	if err != nil {
		return 0, err
	}
	return int(max.Int64) + 1, nil
}

func (s *Store) LoadTranscript(ctx context.Context, slug string) ([]models.LogEntry, error) {
	return s.loadEntries(ctx, slug, kindTranscript)
}

func (s *Store) LoadChangelog(ctx context.Context, slug string) ([]models.LogEntry, error) {
	return s.loadEntries(ctx, slug, kindChangelog)
}

func (s *Store) loadEntries(ctx context.Context, slug, kind string) ([]models.LogEntry, error) {
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT content FROM text_entries
		WHERE session_id = ? AND kind = ?
		ORDER BY position`, id, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		entries = append(entries, models.LogEntry{
			ID:   strconv.Itoa(len(entries)),
			Text: content,
		})
	}
	return entries, rows.Err()
}

func (s *Store) LogCounts(ctx context.Context, slug string) (models.LogIndices, error) {
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return models.LogIndices{}, err
	}
	var counts models.LogIndices
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE kind = 'transcript'),
			COUNT(*) FILTER (WHERE kind = 'changelog')
		FROM text_entries WHERE session_id = ?`, id).
		Scan(&counts.Transcript, &counts.Changelog)
	return counts, err
}
