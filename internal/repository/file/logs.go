package file

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"torchlight/internal/domain/models"
)

func (s *Store) AppendTranscript(_ context.Context, slug string, lines []string) error {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return err
	}
	return appendLines(filepath.Join(dir, transcriptFile), lines)
}

func (s *Store) AppendChangelog(_ context.Context, slug string, lines []string) error {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return err
	}
	return appendLines(filepath.Join(dir, changelogFile), lines)
}

func (s *Store) LoadTranscript(_ context.Context, slug string) ([]models.LogEntry, error) {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return nil, err
	}
	return readLogEntries(filepath.Join(dir, transcriptFile))
}

func (s *Store) LoadChangelog(_ context.Context, slug string) ([]models.LogEntry, error) {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return nil, err
	}
	return readLogEntries(filepath.Join(dir, changelogFile))
}

func (s *Store) LogCounts(ctx context.Context, slug string) (models.LogIndices, error) {
	transcript, err := s.LoadTranscript(ctx, slug)
	if err != nil {
		return models.LogIndices{}, err
	}
	changelog, err := s.LoadChangelog(ctx, slug)
	if err != nil {
		return models.LogIndices{}, err
	}
	return models.LogIndices{Transcript: len(transcript), Changelog: len(changelog)}, nil
}

// readLogEntries reads every non-blank line. Blank lines do not count
// as entries, keeping positions aligned with the relational backend.
func readLogEntries(path string) ([]models.LogEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []models.LogEntry
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, models.LogEntry{
			ID:   strconv.Itoa(len(entries)),
			Text: line,
		})
	}
	return entries, nil
}
