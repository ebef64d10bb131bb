package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
)

func previewPath(dir, id string) string {
	return filepath.Join(dir, previewsDir, id+".json")
}

func (s *Store) SavePreview(_ context.Context, preview models.Preview) error {
	dir, err := s.ensureSession(preview.Slug)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(dir, previewsDir), 0o755); err != nil {
		return err
	}
	return writeJSON(previewPath(dir, preview.ID), preview)
}

func (s *Store) LoadPreview(_ context.Context, slug, id string) (models.Preview, error) {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return models.Preview{}, err
	}
	var preview models.Preview
	if err := readJSON(previewPath(dir, id), &preview); err != nil {
		if os.IsNotExist(err) {
			return models.Preview{}, domain.E(domain.KindPreviewMissing, "preview %q not found or expired", id)
		}
		return models.Preview{}, domain.Wrap(domain.KindInternal, err, "read preview %q for %q", id, slug)
	}
	if preview.Slug != slug {
		return models.Preview{}, domain.E(domain.KindPreviewMissing, "preview %q belongs to another session", id)
	}
	return preview, nil
}

// DeletePreview is idempotent; deleting an absent preview succeeds.
func (s *Store) DeletePreview(_ context.Context, slug, id string) error {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return err
	}
	if err := os.Remove(previewPath(dir, id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) ListPreviews(_ context.Context, slug string) ([]models.Preview, error) {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(dir, previewsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var previews []models.Preview
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var preview models.Preview
		if err := readJSON(filepath.Join(dir, previewsDir, entry.Name()), &preview); err != nil {
			continue
		}
		previews = append(previews, preview)
	}
	return previews, nil
}
