// Command entropy is the operator tool for the shared dice stream:
// validate it, extend it deterministically, or audit a session for
// entropy index reuse.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"torchlight/internal/config"
	"torchlight/internal/dice"
	"torchlight/internal/domain/repositories"
	"torchlight/internal/repository/file"
	"torchlight/internal/repository/sqlite"
)

func main() {
	check := flag.Bool("check", false, "validate the entropy stream")
	extend := flag.Int("extend", 0, "append N deterministic entries")
	audit := flag.String("audit", "", "audit a session slug for entropy index reuse")
	flag.Parse()

	if !*check && *extend <= 0 && *audit == "" {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var store repositories.Store
	switch cfg.StorageBackend {
	case config.BackendSQLite:
		seedPath := filepath.Join(cfg.DataRoot, "dice", "entropy.ndjson")
		if _, statErr := os.Stat(seedPath); statErr != nil {
			seedPath = ""
		}
		store, err = sqlite.New(cfg.DatabaseURL, seedPath, logger)
	default:
		store, err = file.New(cfg.DataRoot, logger)
	}
	if err != nil {
		log.Fatalf("Failed to open storage backend: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if *check {
		if err := checkStream(ctx, store); err != nil {
			log.Fatalf("Check failed: %v", err)
		}
	}
	if *extend > 0 {
		entries, err := dice.Extend(ctx, store, *extend)
		if err != nil {
			log.Fatalf("Extend failed: %v", err)
		}
		fmt.Printf("appended %d entries, stream now ends at %d\n",
			len(entries), entries[len(entries)-1].Index)
	}
	if *audit != "" {
		if err := auditSession(ctx, store, *audit); err != nil {
			log.Fatalf("Audit failed: %v", err)
		}
	}
}

// checkStream verifies the stream is dense 1..N with well-formed pools.
func checkStream(ctx context.Context, store repositories.Store) error {
	length, err := store.EntropyLen(ctx)
	if err != nil {
		return err
	}
	for i := 1; i <= length; i++ {
		entry, err := store.EntropyEntry(ctx, i)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if entry.Index != i {
			return fmt.Errorf("entry %d carries index %d", i, entry.Index)
		}
		if len(entry.D20) != 10 {
			return fmt.Errorf("entry %d has %d d20 values, want 10", i, len(entry.D20))
		}
		for _, v := range entry.D20 {
			if v < 1 || v > 20 {
				return fmt.Errorf("entry %d has d20 value %d out of range", i, v)
			}
		}
		if len(entry.D100) != 5 {
			return fmt.Errorf("entry %d has %d d100 values, want 5", i, len(entry.D100))
		}
		for _, v := range entry.D100 {
			if v < 1 || v > 100 {
				return fmt.Errorf("entry %d has d100 value %d out of range", i, v)
			}
		}
		if entry.Bytes != "" {
			if _, err := hex.DecodeString(entry.Bytes); err != nil {
				return fmt.Errorf("entry %d has malformed bytes: %w", i, err)
			}
		}
	}
	fmt.Printf("entropy stream ok: %d entries, dense 1..%d\n", length, length)
	return nil
}

// auditSession walks the changelog and verifies no committed entropy
// index appears twice and none exceeds the stream length.
func auditSession(ctx context.Context, store repositories.Store, slug string) error {
	length, err := store.EntropyLen(ctx)
	if err != nil {
		return err
	}
	entries, err := store.LoadChangelog(ctx, slug)
	if err != nil {
		return err
	}

	seen := make(map[int]string)
	checked := 0
	for _, entry := range entries {
		var doc struct {
			Turn           int   `json:"turn"`
			EntropyIndices []int `json:"entropy_indices"`
			Rolls          []struct {
				EntropyIndex int `json:"entropy_index"`
			} `json:"rolls"`
		}
		if err := json.Unmarshal([]byte(entry.Text), &doc); err != nil {
			continue
		}
		indices := doc.EntropyIndices
		if len(indices) == 0 {
			for _, roll := range doc.Rolls {
				if roll.EntropyIndex > 0 {
					indices = append(indices, roll.EntropyIndex)
				}
			}
		}
		where := fmt.Sprintf("changelog entry %s (turn %d)", entry.ID, doc.Turn)
		for _, index := range indices {
			if prior, dup := seen[index]; dup {
				return fmt.Errorf("entropy index %d reused: %s and %s", index, prior, where)
			}
			seen[index] = where
			if index > length {
				return fmt.Errorf("%s consumed index %d past stream end %d", where, index, length)
			}
			checked++
		}
	}
	fmt.Printf("audit ok: session %s consumed %d entropy indices, no reuse\n", slug, checked)
	return nil
}
