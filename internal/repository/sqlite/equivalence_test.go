package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
	"torchlight/internal/domain/repositories"
	"torchlight/internal/repository/file"
)

// observation is everything a client can read back after the driver
// sequence. Both backends must produce identical observations.
type observation struct {
	State      models.SessionState
	Transcript []models.LogEntry
	Changelog  []models.LogEntry
	Counts     models.LogIndices
	Doc        map[string]any
	TurnRecord *models.TurnRecord
	LockOwner  string
	EntropyLen int
	Entry      models.EntropyEntry
	Sessions   int
}

// drive runs one operation sequence against a backend and returns what
// a reader observes afterwards.
func drive(t *testing.T, store repositories.Store) observation {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.AppendEntropy(ctx, []models.EntropyEntry{
		{Index: 1, D20: []int{20, 7, 3, 1, 19, 4, 11, 2, 9, 14}, D100: []int{55, 12, 98, 3, 71}},
		{Index: 2, D20: []int{6, 6, 6, 6, 6, 6, 6, 6, 6, 6}, D100: []int{50, 50, 50, 50, 50}},
	}))

	require.NoError(t, store.CreateSession(ctx, "quest", models.SessionState{
		Character: "quest",
		Location:  "harbor",
		HP:        10,
		Level:     1,
		Flags:     map[string]any{"met_guard": false},
	}))

	// Duplicate slug conflicts.
	err := store.CreateSession(ctx, "quest", models.SessionState{Character: "quest"})
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	require.NoError(t, store.AppendTranscript(ctx, "quest", []string{"prologue", "", "the docks"}))
	require.NoError(t, store.AppendChangelog(ctx, "quest", []string{`{"turn":0,"summary":"init"}`}))

	state, err := store.LoadState(ctx, "quest")
	require.NoError(t, err)
	state.Turn = 1
	state.Location = "camp"
	state.LogIndex = 1
	require.NoError(t, store.CommitTurn(ctx, "quest", models.TurnCommit{
		State:           state,
		TranscriptLines: []string{"make camp"},
		ChangelogLines:  []string{`{"turn":1,"entropy_indices":[1]}`},
	}))

	require.NoError(t, store.SaveDoc(ctx, "quest", "mood", map[string]any{"tone": "tense"}))

	require.NoError(t, store.SaveTurn(ctx, "quest", models.TurnRecord{
		Turn:         1,
		PlayerIntent: "make camp",
		Diff:         []string{"location: harbor -> camp"},
		DM:           models.DMNarration{Narration: "Night falls."},
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}))
	require.NoError(t, store.AppendRolls(ctx, "quest", 1, []models.RollPayload{
		{Kind: "ability_check", Ability: "dex", Total: 9, D20: []int{7}, EntropyIndex: 1},
	}))

	_, err = store.ClaimLock(ctx, "quest", models.LockInfo{Owner: "alice", TTL: 300, AcquiredAt: time.Now().UTC()})
	require.NoError(t, err)
	_, err = store.ClaimLock(ctx, "quest", models.LockInfo{Owner: "bob", TTL: 300, AcquiredAt: time.Now().UTC()})
	require.Error(t, err)
	assert.Equal(t, domain.KindLockHeld, domain.KindOf(err))

	var obs observation
	obs.State, err = store.LoadState(ctx, "quest")
	require.NoError(t, err)
	obs.Transcript, err = store.LoadTranscript(ctx, "quest")
	require.NoError(t, err)
	obs.Changelog, err = store.LoadChangelog(ctx, "quest")
	require.NoError(t, err)
	obs.Counts, err = store.LogCounts(ctx, "quest")
	require.NoError(t, err)
	obs.Doc, err = store.LoadDoc(ctx, "quest", "mood")
	require.NoError(t, err)
	obs.TurnRecord, err = store.LoadTurn(ctx, "quest", 1)
	require.NoError(t, err)

	lock, err := store.GetLock(ctx, "quest")
	require.NoError(t, err)
	require.NotNil(t, lock)
	obs.LockOwner = lock.Owner

	obs.EntropyLen, err = store.EntropyLen(ctx)
	require.NoError(t, err)
	obs.Entry, err = store.EntropyEntry(ctx, 2)
	require.NoError(t, err)

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	obs.Sessions = len(sessions)

	return obs
}

func TestBackendsObservationallyEquivalent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fileStore, err := file.New(t.TempDir(), logger)
	require.NoError(t, err)
	defer fileStore.Close()

	sqliteStore, err := New(filepath.Join(t.TempDir(), "torchlight.db"), "", logger)
	require.NoError(t, err)
	defer sqliteStore.Close()

	fromFile := drive(t, fileStore)
	fromSQLite := drive(t, sqliteStore)

	assert.Equal(t, fromFile.State, fromSQLite.State)
	assert.Equal(t, fromFile.Transcript, fromSQLite.Transcript)
	assert.Equal(t, fromFile.Changelog, fromSQLite.Changelog)
	assert.Equal(t, fromFile.Counts, fromSQLite.Counts)
	assert.Equal(t, fromFile.Doc, fromSQLite.Doc)
	assert.Equal(t, fromFile.LockOwner, fromSQLite.LockOwner)
	assert.Equal(t, fromFile.EntropyLen, fromSQLite.EntropyLen)
	assert.Equal(t, fromFile.Entry, fromSQLite.Entry)
	assert.Equal(t, fromFile.Sessions, fromSQLite.Sessions)

	require.NotNil(t, fromFile.TurnRecord)
	require.NotNil(t, fromSQLite.TurnRecord)
	assert.Equal(t, fromFile.TurnRecord.PlayerIntent, fromSQLite.TurnRecord.PlayerIntent)
	assert.Equal(t, fromFile.TurnRecord.DM, fromSQLite.TurnRecord.DM)
	assert.Equal(t, fromFile.TurnRecord.Rolls, fromSQLite.TurnRecord.Rolls)
}

func TestSQLiteUnknownSession(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := New(filepath.Join(t.TempDir(), "torchlight.db"), "", logger)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.LoadState(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, domain.KindSessionMissing, domain.KindOf(err))
}
