package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
	"torchlight/internal/domain/repositories"
)

// snapshotArtifacts are the session files a snapshot captures.
func snapshotArtifacts() []string {
	files := []string{stateFile, transcriptFile, changelogFile, characterFile}
	for _, kind := range repositories.DocKinds {
		files = append(files, kind+".json")
	}
	return files
}

func savePath(dir, saveID string) string {
	return filepath.Join(dir, savesDir, saveID+".json")
}

func (s *Store) CaptureSnapshot(_ context.Context, slug, saveType, saveName string) (models.Snapshot, error) {
	dir, err := s.ensureSession(slug)
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
	for _, name := range snapshotArtifacts() {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return models.Snapshot{}, err
		}
		snapshot.Data.Files[name] = models.SnapshotFile{Content: string(raw)}
	}

	if err := os.MkdirAll(filepath.Join(dir, savesDir), 0o755); err != nil {
		return models.Snapshot{}, err
	}
	path := savePath(dir, saveID)
	if _, err := os.Stat(path); err == nil {
		return models.Snapshot{}, domain.E(domain.KindConflict, "save %q already exists", saveID)
	}
	if err := writeJSON(path, snapshot); err != nil {
		return models.Snapshot{}, err
	}
	return snapshot, nil
}

func (s *Store) ListSnapshots(_ context.Context, slug string) ([]models.Snapshot, error) {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(dir, savesDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var snapshots []models.Snapshot
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var snapshot models.Snapshot
		if err := readJSON(filepath.Join(dir, savesDir, entry.Name()), &snapshot); err != nil {
			if s.logger != nil {
				s.logger.Warn("skipping unreadable save", "slug", slug, "file", entry.Name(), "error", err)
			}
			continue
		}
		snapshots = append(snapshots, snapshot)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})
	return snapshots, nil
}

func (s *Store) GetSnapshot(_ context.Context, slug, saveID string) (models.Snapshot, error) {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return models.Snapshot{}, err
	}
	var snapshot models.Snapshot
	if err := readJSON(savePath(dir, saveID), &snapshot); err != nil {
		if os.IsNotExist(err) {
			return models.Snapshot{}, domain.E(domain.KindSessionMissing, "save %q not found", saveID)
		}
		return models.Snapshot{}, domain.Wrap(domain.KindInternal, err, "read save %q", saveID)
	}
	return snapshot, nil
}

// RestoreSnapshot writes the captured artifacts back and clears the
// lock and any pending previews, which witnessed a state that no
// longer exists.
func (s *Store) RestoreSnapshot(ctx context.Context, slug, saveID string) error {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return err
	}
	snapshot, err := s.GetSnapshot(ctx, slug, saveID)
	if err != nil {
		return err
	}
	for name, file := range snapshot.Data.Files {
		if err := writeFileAtomic(filepath.Join(dir, name), []byte(file.Content)); err != nil {
			return err
		}
	}
	if err := os.Remove(filepath.Join(dir, lockFile)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.RemoveAll(filepath.Join(dir, previewsDir)); err != nil {
		return err
	}
	return nil
}

func (s *Store) DeleteSnapshot(_ context.Context, slug, saveID string) error {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return err
	}
	if err := os.Remove(savePath(dir, saveID)); err != nil {
		if os.IsNotExist(err) {
			return domain.E(domain.KindSessionMissing, "save %q not found", saveID)
		}
		return err
	}
	return nil
}
