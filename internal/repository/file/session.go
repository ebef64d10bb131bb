package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
)

func (s *Store) ListSessions(_ context.Context) ([]models.SessionSummary, error) {
	entries, err := os.ReadDir(s.sessionsRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var sessions []models.SessionSummary
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		slug := entry.Name()
		dir := s.sessionDir(slug)

		summary := models.SessionSummary{Slug: slug, World: "default"}
		if _, err := os.Stat(filepath.Join(dir, lockFile)); err == nil {
			summary.HasLock = true
		}
		if info, err := entry.Info(); err == nil {
			summary.UpdatedAt = info.ModTime().UTC()
		}
		var state models.SessionState
		if err := readJSON(filepath.Join(dir, stateFile), &state); err == nil {
			if state.World != "" {
				summary.World = state.World
			}
			if info, err := os.Stat(filepath.Join(dir, stateFile)); err == nil {
				summary.UpdatedAt = info.ModTime().UTC()
			}
		} else if s.logger != nil {
			s.logger.Warn("skipping unreadable session state", "slug", slug, "error", err)
		}
		sessions = append(sessions, summary)
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Slug < sessions[j].Slug })
	return sessions, nil
}

func (s *Store) CreateSession(_ context.Context, slug string, state models.SessionState) error {
	if !slugPattern.MatchString(slug) {
		return domain.E(domain.KindSchemaViolation,
			"invalid session slug %q: use letters, numbers, hyphens, or underscores", slug)
	}
	if err := os.MkdirAll(s.sessionsRoot(), 0o755); err != nil {
		return err
	}
	dir := s.sessionDir(slug)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			return domain.E(domain.KindConflict, "session %q already exists", slug)
		}
		return err
	}
	if err := writeJSON(filepath.Join(dir, stateFile), state); err != nil {
		return err
	}
	// Provision empty logs so appends and counts behave uniformly.
	for _, name := range []string{transcriptFile, changelogFile} {
		if err := writeFileAtomic(filepath.Join(dir, name), nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) LoadState(_ context.Context, slug string) (models.SessionState, error) {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return models.SessionState{}, err
	}
	var state models.SessionState
	if err := readJSON(filepath.Join(dir, stateFile), &state); err != nil {
		if os.IsNotExist(err) {
			return models.SessionState{}, domain.E(domain.KindSessionMissing, "state not found for %q", slug)
		}
		return models.SessionState{}, domain.Wrap(domain.KindInternal, err, "read state for %q", slug)
	}
	return state, nil
}

func (s *Store) SaveState(_ context.Context, slug string, state models.SessionState) error {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, stateFile), state)
}
