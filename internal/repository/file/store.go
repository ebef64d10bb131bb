// Package file implements the storage contract on a directory tree.
// Each session lives under sessions/<slug>/ with state.json, the
// transcript and changelog line files, turn records, previews, saves,
// and auxiliary documents. All writes go through write-temp-then-rename
// so readers never observe a torn file.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"torchlight/internal/domain"
)

var slugPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const (
	stateFile      = "state.json"
	transcriptFile = "transcript.md"
	changelogFile  = "changelog.md"
	characterFile  = "character.json"
	lockFile       = "LOCK"
	turnsDir       = "turns"
	previewsDir    = "previews"
	savesDir       = "saves"
)

// Store is the filesystem backend rooted at a data directory.
type Store struct {
	root   string
	logger *slog.Logger
}

func New(root string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "sessions"), 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Store{root: root, logger: logger}, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) sessionsRoot() string { return filepath.Join(s.root, "sessions") }

func (s *Store) sessionDir(slug string) string { return filepath.Join(s.sessionsRoot(), slug) }

func (s *Store) charactersRoot() string {
	return filepath.Join(s.root, "data", "characters")
}

func (s *Store) entropyPath() string {
	return filepath.Join(s.root, "dice", "entropy.ndjson")
}

// ensureSession validates the slug and checks the session directory
// exists.
func (s *Store) ensureSession(slug string) (string, error) {
	if !slugPattern.MatchString(slug) {
		return "", domain.E(domain.KindSchemaViolation,
			"invalid session slug %q: use letters, numbers, hyphens, or underscores", slug)
	}
	dir := s.sessionDir(slug)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", domain.E(domain.KindSessionMissing, "unknown session %q", slug)
	}
	return dir, nil
}

func (s *Store) SessionExists(_ context.Context, slug string) (bool, error) {
	if !slugPattern.MatchString(slug) {
		return false, nil
	}
	info, err := os.Stat(s.sessionDir(slug))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// writeFileAtomic writes to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// writeJSON marshals with two-space indent and writes atomically.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Tolerate a UTF-8 BOM from hand-edited files.
	raw = []byte(strings.TrimPrefix(string(raw), "\uFEFF"))
	return json.Unmarshal(raw, v)
}

// appendLines appends each line plus a newline. The lines of one call
// become visible together only under the session lock; appends
// themselves are plain O_APPEND writes.
func appendLines(path string, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s for append: %w", path, err)
	}
	defer f.Close()
	for _, line := range lines {
		if _, err := fmt.Fprintln(f, strings.TrimRight(line, "\n")); err != nil {
			return fmt.Errorf("append to %s: %w", path, err)
		}
	}
	return f.Sync()
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
