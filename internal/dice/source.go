package dice

import (
	"context"
	"encoding/hex"
	"math/rand"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
	"torchlight/internal/domain/repositories"
)

// repoSeed anchors deterministic stream extension: reseeding with
// repoSeed + N always appends the same entries after index N.
const repoSeed = 20240301

const (
	d20PoolSize  = 10
	d100PoolSize = 5
	entropyBytes = 4
)

// Source is the read surface over the shared entropy stream. It never
// extends the stream on its own; callers that run out get
// EntropyExhausted and reach for the operator tool.
type Source struct {
	repo repositories.EntropyRepository
}

func NewSource(repo repositories.EntropyRepository) *Source {
	return &Source{repo: repo}
}

// Peek returns the first limit entries, fewer when the stream is
// shorter.
func (s *Source) Peek(ctx context.Context, limit int) ([]models.EntropyEntry, error) {
	n, err := s.repo.EntropyLen(ctx)
	if err != nil {
		return nil, err
	}
	if limit > n {
		limit = n
	}
	entries := make([]models.EntropyEntry, 0, limit)
	for i := 1; i <= limit; i++ {
		entry, err := s.repo.EntropyEntry(ctx, i)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Load returns the entry at a 1-based index.
func (s *Source) Load(ctx context.Context, index int) (models.EntropyEntry, error) {
	return s.repo.EntropyEntry(ctx, index)
}

// Len returns the last index in the stream.
func (s *Source) Len(ctx context.Context) (int, error) {
	return s.repo.EntropyLen(ctx)
}

// EnsureAvailable fails with EntropyExhausted when the stream does not
// reach target.
func (s *Source) EnsureAvailable(ctx context.Context, target int) error {
	n, err := s.repo.EntropyLen(ctx)
	if err != nil {
		return err
	}
	if target > n {
		return domain.E(domain.KindEntropyExhausted,
			"entropy stream has %d entries, need %d; extend the stream", n, target).
			WithDetails(map[string]any{"have": n, "need": target})
	}
	return nil
}

// Extend deterministically appends count entries. The generator is
// seeded once from repoSeed plus the current length, so an extension
// of the same stream always produces the same entries regardless of
// how many calls it is split across.
func Extend(ctx context.Context, repo repositories.EntropyRepository, count int) ([]models.EntropyEntry, error) {
	last, err := repo.EntropyLen(ctx)
	if err != nil {
		return nil, err
	}
	entries := GenerateEntries(last, count)
	if err := repo.AppendEntropy(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GenerateEntries produces the deterministic continuation of a stream
// of length last.
func GenerateEntries(last, count int) []models.EntropyEntry {
	rng := rand.New(rand.NewSource(int64(repoSeed + last)))
	entries := make([]models.EntropyEntry, count)
	for offset := range entries {
		d20 := make([]int, d20PoolSize)
		for i := range d20 {
			d20[i] = rng.Intn(20) + 1
		}
		d100 := make([]int, d100PoolSize)
		for i := range d100 {
			d100[i] = rng.Intn(100) + 1
		}
		raw := make([]byte, entropyBytes)
		rng.Read(raw)
		entries[offset] = models.EntropyEntry{
			Index: last + offset + 1,
			D20:   d20,
			D100:  d100,
			Bytes: hex.EncodeToString(raw),
		}
	}
	return entries
}
