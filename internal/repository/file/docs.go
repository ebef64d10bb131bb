package file

import (
	"context"
	"os"
	"path/filepath"

	"torchlight/internal/domain"
	"torchlight/internal/domain/repositories"
)

func docPath(dir, kind string) string {
	return filepath.Join(dir, kind+".json")
}

func (s *Store) LoadDoc(_ context.Context, slug, kind string) (map[string]any, error) {
	if !repositories.ValidDocKind(kind) {
		return nil, domain.E(domain.KindSchemaViolation, "unknown document kind %q", kind)
	}
	dir, err := s.ensureSession(slug)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := readJSON(docPath(dir, kind), &doc); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.Wrap(domain.KindInternal, err, "read %s doc for %q", kind, slug)
	}
	return doc, nil
}

func (s *Store) SaveDoc(_ context.Context, slug, kind string, doc map[string]any) error {
	if !repositories.ValidDocKind(kind) {
		return domain.E(domain.KindSchemaViolation, "unknown document kind %q", kind)
	}
	dir, err := s.ensureSession(slug)
	if err != nil {
		return err
	}
	return writeJSON(docPath(dir, kind), doc)
}
