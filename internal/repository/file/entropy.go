package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
)

// EntropyEntry scans the NDJSON stream for the entry at a 1-based
// index. The stream is append-only and indices are dense, so the entry
// for index i is the i-th line when the file is well-formed; scanning
// by the recorded index tolerates blank lines.
func (s *Store) EntropyEntry(_ context.Context, index int) (models.EntropyEntry, error) {
	if index < 1 {
		return models.EntropyEntry{}, domain.E(domain.KindEntropyMissing, "entropy index %d out of range", index)
	}
	f, err := os.Open(s.entropyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return models.EntropyEntry{}, domain.E(domain.KindEntropyMissing, "entropy stream missing")
		}
		return models.EntropyEntry{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry models.EntropyEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return models.EntropyEntry{}, domain.Wrap(domain.KindInternal, err, "entropy stream corrupt")
		}
		if entry.Index == index {
			return entry, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return models.EntropyEntry{}, err
	}
	return models.EntropyEntry{}, domain.E(domain.KindEntropyMissing, "entropy index %d past end of stream", index)
}

func (s *Store) EntropyLen(_ context.Context) (int, error) {
	f, err := os.Open(s.entropyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	highest := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry models.EntropyEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return 0, domain.Wrap(domain.KindInternal, err, "entropy stream corrupt")
		}
		if entry.Index > highest {
			highest = entry.Index
		}
	}
	return highest, scanner.Err()
}

// AppendEntropy extends the stream. Entries must continue the dense
// index sequence; existing lines are never rewritten.
func (s *Store) AppendEntropy(ctx context.Context, entries []models.EntropyEntry) error {
	if len(entries) == 0 {
		return nil
	}
	length, err := s.EntropyLen(ctx)
	if err != nil {
		return err
	}
	for i, entry := range entries {
		if entry.Index != length+i+1 {
			return domain.E(domain.KindConflict,
				"entropy entry %d breaks the dense sequence (expected %d)", entry.Index, length+i+1)
		}
	}

	path := s.entropyPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, entry := range entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(f, string(raw)); err != nil {
			return err
		}
	}
	return f.Sync()
}
