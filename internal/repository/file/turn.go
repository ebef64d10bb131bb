package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
)

func (s *Store) turnPath(dir string, turn int) string {
	return filepath.Join(dir, turnsDir, strconv.Itoa(turn)+".json")
}

func (s *Store) SaveTurn(_ context.Context, slug string, record models.TurnRecord) error {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(dir, turnsDir), 0o755); err != nil {
		return err
	}
	return writeJSON(s.turnPath(dir, record.Turn), record)
}

func (s *Store) LoadTurns(_ context.Context, slug string) ([]models.TurnRecord, error) {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(dir, turnsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var records []models.TurnRecord
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimSuffix(name, ".json")); err != nil {
			continue
		}
		var record models.TurnRecord
		if err := readJSON(filepath.Join(dir, turnsDir, name), &record); err != nil {
			if s.logger != nil {
				s.logger.Warn("skipping unreadable turn record", "slug", slug, "file", name, "error", err)
			}
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Turn > records[j].Turn })
	return records, nil
}

func (s *Store) LoadTurn(_ context.Context, slug string, turn int) (*models.TurnRecord, error) {
	dir, err := s.ensureSession(slug)
	if err != nil {
		return nil, err
	}
	var record models.TurnRecord
	if err := readJSON(s.turnPath(dir, turn), &record); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.Wrap(domain.KindInternal, err, "read turn record %d for %q", turn, slug)
	}
	return &record, nil
}

func (s *Store) AppendRolls(ctx context.Context, slug string, turn int, rolls []models.RollPayload) error {
	record, err := s.LoadTurn(ctx, slug, turn)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}
	record.Rolls = append(record.Rolls, rolls...)
	return s.SaveTurn(ctx, slug, *record)
}
