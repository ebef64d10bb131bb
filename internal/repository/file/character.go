package file

import (
	"context"
	"os"
	"path/filepath"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
)

// LoadCharacter prefers the session-local sheet and falls back to the
// shared catalog copy.
func (s *Store) LoadCharacter(_ context.Context, slug string) (*models.Character, error) {
	if !slugPattern.MatchString(slug) {
		return nil, domain.E(domain.KindSchemaViolation, "invalid character slug %q", slug)
	}
	candidates := []string{
		filepath.Join(s.sessionDir(slug), characterFile),
		filepath.Join(s.charactersRoot(), slug+".json"),
	}
	for _, path := range candidates {
		var character models.Character
		err := readJSON(path, &character)
		if err == nil {
			return &character, nil
		}
		if !os.IsNotExist(err) {
			return nil, domain.Wrap(domain.KindInternal, err, "invalid character data for %q", slug)
		}
	}
	return nil, nil
}

func (s *Store) SaveCharacter(_ context.Context, character models.Character, persistShared bool) error {
	slug := character.Slug
	if !slugPattern.MatchString(slug) {
		return domain.E(domain.KindSchemaViolation, "invalid character slug %q", slug)
	}
	dir, err := s.ensureSession(slug)
	if err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, characterFile), character); err != nil {
		return err
	}
	if persistShared {
		if err := os.MkdirAll(s.charactersRoot(), 0o755); err != nil {
			return err
		}
		return writeJSON(filepath.Join(s.charactersRoot(), slug+".json"), character)
	}
	return nil
}
