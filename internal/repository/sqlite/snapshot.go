package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
	"torchlight/internal/domain/repositories"
)

// CaptureSnapshot renders the session into the same artifact map the
// filesystem backend stores on disk, so snapshots restore identically
// across backends.
func (s *Store) CaptureSnapshot(ctx context.Context, slug, saveType, saveName string) (models.Snapshot, error) {
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return models.Snapshot{}, err
	}

	now := time.Now().UTC()
	prefix := saveType
	if saveName != "" {
		prefix = saveName
	}
	saveID := prefix + "-" + strings.ReplaceAll(now.Format(time.RFC3339), ":", "-") + "-" + uuid.NewString()[:8]

	snapshot := models.Snapshot{
		SaveID:    saveID,
		Slug:      slug,
		SaveType:  saveType,
		SaveName:  saveName,
		CreatedAt: now,
	}
	snapshot.Data.Files = make(map[string]models.SnapshotFile)

	state, err := s.loadStateByID(ctx, s.db, id, slug)
	if err != nil {
		return models.Snapshot{}, err
	}
	if content, err := renderJSONFile(state); err == nil {
		snapshot.Data.Files["state.json"] = models.SnapshotFile{Content: content}
	} else {
		return models.Snapshot{}, err
	}

	for _, log := range []struct{ kind, name string }{
		{kindTranscript, "transcript.md"},
		{kindChangelog, "changelog.md"},
	} {
		entries, err := s.loadEntries(ctx, slug, log.kind)
		if err != nil {
			return models.Snapshot{}, err
		}
		snapshot.Data.Files[log.name] = models.SnapshotFile{Content: renderLines(entries)}
	}

	if character, err := s.LoadCharacter(ctx, slug); err == nil && character != nil {
		content, err := renderJSONFile(character)
		if err != nil {
			return models.Snapshot{}, err
		}
		snapshot.Data.Files["character.json"] = models.SnapshotFile{Content: content}
	}

	for _, kind := range repositories.DocKinds {
		doc, err := s.LoadDoc(ctx, slug, kind)
		if err != nil {
			return models.Snapshot{}, err
		}
		if doc == nil {
			continue
		}
		content, err := renderJSONFile(doc)
		if err != nil {
			return models.Snapshot{}, err
		}
		snapshot.Data.Files[kind+".json"] = models.SnapshotFile{Content: content}
	}

	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return models.Snapshot{}, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (session_id, save_id, save_type, snapshot_json, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id, save_id) DO NOTHING`,
		id, saveID, saveType, string(snapshotJSON), now.Format(time.RFC3339Nano))
	if err != nil {
		return models.Snapshot{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Snapshot{}, err
	}
	if affected == 0 {
		return models.Snapshot{}, domain.E(domain.KindConflict, "save %q already exists", saveID)
	}
	return snapshot, nil
}

func renderJSONFile(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

func renderLines(entries []models.LogEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for _, entry := range entries {
		b.WriteString(entry.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

func (s *Store) ListSnapshots(ctx context.Context, slug string) ([]models.Snapshot, error) {
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot_json FROM snapshots
		WHERE session_id = ?
		ORDER BY created_at DESC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []models.Snapshot
	for rows.Next() {
		var snapshotJSON string
		if err := rows.Scan(&snapshotJSON); err != nil {
			return nil, err
		}
		var snapshot models.Snapshot
		if err := json.Unmarshal([]byte(snapshotJSON), &snapshot); err != nil {
			if s.logger != nil {
				s.logger.Warn("skipping undecodable save", "slug", slug, "error", err)
			}
			continue
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}

func (s *Store) GetSnapshot(ctx context.Context, slug, saveID string) (models.Snapshot, error) {
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return models.Snapshot{}, err
	}
	var snapshotJSON string
	err = s.db.QueryRowContext(ctx, `
		SELECT snapshot_json FROM snapshots
		WHERE session_id = ? AND save_id = ?`, id, saveID).Scan(&snapshotJSON)
	if err == sql.ErrNoRows {
		return models.Snapshot{}, domain.E(domain.KindSessionMissing, "save %q not found", saveID)
	}
	if err != nil {
		return models.Snapshot{}, err
	}
	var snapshot models.Snapshot
	if err := json.Unmarshal([]byte(snapshotJSON), &snapshot); err != nil {
		return models.Snapshot{}, domain.Wrap(domain.KindInternal, err, "decode save %q", saveID)
	}
	return snapshot, nil
}

// RestoreSnapshot replays the captured artifacts into the tables and
// clears the lock and pending previews, all in one transaction.
func (s *Store) RestoreSnapshot(ctx context.Context, slug, saveID string) error {
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return err
	}
	snapshot, err := s.GetSnapshot(ctx, slug, saveID)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for name, file := range snapshot.Data.Files {
			switch {
			case name == "state.json":
				var state models.SessionState
				if err := json.Unmarshal([]byte(file.Content), &state); err != nil {
					return domain.Wrap(domain.KindInternal, err, "save %q holds invalid state", saveID)
				}
				if err := s.saveStateTx(ctx, tx, id, state); err != nil {
					return err
				}
			case name == "transcript.md" || name == "changelog.md":
				kind := kindTranscript
				if name == "changelog.md" {
					kind = kindChangelog
				}
				if _, err := tx.ExecContext(ctx,
					`DELETE FROM text_entries WHERE session_id = ? AND kind = ?`, id, kind); err != nil {
					return err
				}
				if err := appendEntriesTx(ctx, tx, id, kind, strings.Split(file.Content, "\n")); err != nil {
					return err
				}
			case name == "character.json":
				if err := upsertCharacter(ctx, tx, id, slug, file.Content, false); err != nil {
					return err
				}
			case strings.HasSuffix(name, ".json"):
				kind := strings.TrimSuffix(name, ".json")
				if !repositories.ValidDocKind(kind) {
					continue
				}
				var doc map[string]any
				if err := json.Unmarshal([]byte(file.Content), &doc); err != nil {
					return domain.Wrap(domain.KindInternal, err, "save %q holds invalid %s doc", saveID, kind)
				}
				payload, err := json.Marshal(doc)
				if err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO session_docs (session_id, kind, payload_json)
					VALUES (?, ?, ?)
					ON CONFLICT (session_id, kind) DO UPDATE SET
						payload_json = excluded.payload_json`,
					id, kind, string(payload)); err != nil {
					return err
				}
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM locks WHERE session_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM previews WHERE session_id = ?`, id)
		return err
	})
}

func (s *Store) DeleteSnapshot(ctx context.Context, slug, saveID string) error {
	id, err := s.sessionID(ctx, s.db, slug)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE session_id = ? AND save_id = ?`, id, saveID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.E(domain.KindSessionMissing, "save %q not found", saveID)
	}
	return nil
}
