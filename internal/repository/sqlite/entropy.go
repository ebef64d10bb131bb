package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
)

func (s *Store) EntropyEntry(ctx context.Context, index int) (models.EntropyEntry, error) {
	if index < 1 {
		return models.EntropyEntry{}, domain.E(domain.KindEntropyMissing, "entropy index %d out of range", index)
	}
	var entryJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT entropy_json FROM entropy WHERE entropy_index = ?`, index).Scan(&entryJSON)
	if err == sql.ErrNoRows {
		return models.EntropyEntry{}, domain.E(domain.KindEntropyMissing, "entropy index %d past end of stream", index)
	}
	if err != nil {
		return models.EntropyEntry{}, err
	}
	var entry models.EntropyEntry
	if err := json.Unmarshal([]byte(entryJSON), &entry); err != nil {
		return models.EntropyEntry{}, domain.Wrap(domain.KindInternal, err, "entropy entry %d corrupt", index)
	}
	return entry, nil
}

func (s *Store) EntropyLen(ctx context.Context) (int, error) {
	var max sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(entropy_index) FROM entropy`).Scan(&max); err != nil {
		return 0, err
	}
	return int(max.Int64), nil
}

func (s *Store) AppendEntropy(ctx context.Context, entries []models.EntropyEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var max sql.NullInt64
		if err := tx.QueryRowContext(ctx, `SELECT MAX(entropy_index) FROM entropy`).Scan(&max); err != nil {
			return err
		}
		length := int(max.Int64)
		for i, entry := range entries {
			if entry.Index != length+i+1 {
				return domain.E(domain.KindConflict,
					"entropy entry %d breaks the dense sequence (expected %d)", entry.Index, length+i+1)
			}
			entryJSON, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO entropy (entropy_index, entropy_json) VALUES (?, ?)`,
				entry.Index, string(entryJSON)); err != nil {
				return err
			}
		}
		return nil
	})
}
