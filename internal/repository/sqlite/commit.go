package sqlite

import (
	"context"
	"database/sql"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
)

// CommitTurn applies a commit's write set in one transaction: state
// update, transcript and changelog appends, and the preview delete
// become visible together or not at all.
func (s *Store) CommitTurn(ctx context.Context, slug string, commit models.TurnCommit) error {
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.saveStateTx(ctx, tx, id, commit.State); err != nil {
			return err
		}
		if err := appendEntriesTx(ctx, tx, id, kindTranscript, commit.TranscriptLines); err != nil {
			return err
		}
		if err := appendEntriesTx(ctx, tx, id, kindChangelog, commit.ChangelogLines); err != nil {
			return err
		}
		if commit.PreviewID != "" {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM previews WHERE session_id = ? AND preview_id = ?`,
				id, commit.PreviewID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Wrap(domain.KindInternal, err, "commit turn for %q", slug)
	}
	return nil
}
