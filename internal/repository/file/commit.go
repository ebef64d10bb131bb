package file

import (
	"context"
	"os"
	"path/filepath"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
)

// CommitTurn applies a commit's write set with best-effort reversal:
// the state write goes first (atomic rename), then the log appends,
// then the preview delete. If an append fails, the logs are truncated
// back to their pre-commit sizes and the prior state is restored, so a
// reader never observes the new turn with only part of its artifacts.
// Concurrent writers are excluded by the session lock.
func (s *Store) CommitTurn(ctx context.Context, slug string, commit models.TurnCommit) error {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return err
	}

	statePath := filepath.Join(dir, stateFile)
	transcriptPath := filepath.Join(dir, transcriptFile)
	changelogPath := filepath.Join(dir, changelogFile)

	priorState, err := os.ReadFile(statePath)
	if err != nil && !os.IsNotExist(err) {
		return domain.Wrap(domain.KindInternal, err, "read prior state for %q", slug)
	}
	transcriptSize := fileSize(transcriptPath)
	changelogSize := fileSize(changelogPath)

	revert := func() {
		_ = os.Truncate(transcriptPath, transcriptSize)
		_ = os.Truncate(changelogPath, changelogSize)
		if priorState != nil {
			_ = writeFileAtomic(statePath, priorState)
		}
	}

	if err := writeJSON(statePath, commit.State); err != nil {
		return domain.Wrap(domain.KindInternal, err, "commit state for %q", slug)
	}
	if err := appendLines(transcriptPath, commit.TranscriptLines); err != nil {
		revert()
		return domain.Wrap(domain.KindInternal, err, "commit transcript for %q", slug)
	}
	if err := appendLines(changelogPath, commit.ChangelogLines); err != nil {
		revert()
		return domain.Wrap(domain.KindInternal, err, "commit changelog for %q", slug)
	}
	if commit.PreviewID != "" {
		if err := s.DeletePreview(ctx, slug, commit.PreviewID); err != nil {
			// The turn is fully committed; a leftover preview will fail
			// any later commit as stale. Log and carry on.
			if s.logger != nil {
				s.logger.Warn("preview cleanup failed after commit",
					"slug", slug, "preview_id", commit.PreviewID, "error", err)
			}
		}
	}
	return nil
}
