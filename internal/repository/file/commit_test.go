package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torchlight/internal/domain/models"
)

func TestCommitTurnAppliesWholeWriteSet(t *testing.T) {
	store := newTestStore(t)
	createTestSession(t, store, "quest")
	ctx := context.Background()

	state, err := store.LoadState(ctx, "quest")
	require.NoError(t, err)
	state.Turn = 1
	state.Location = "camp"

	require.NoError(t, store.CommitTurn(ctx, "quest", models.TurnCommit{
		State:           state,
		TranscriptLines: []string{"look around"},
		ChangelogLines:  []string{`{"turn":1}`},
	}))

	reloaded, err := store.LoadState(ctx, "quest")
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Turn)
	assert.Equal(t, "camp", reloaded.Location)

	counts, err := store.LogCounts(ctx, "quest")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Transcript)
	assert.Equal(t, 1, counts.Changelog)
}

func TestCommitTurnRevertsOnPartialFailure(t *testing.T) {
	store := newTestStore(t)
	createTestSession(t, store, "quest")
	ctx := context.Background()

	require.NoError(t, store.AppendTranscript(ctx, "quest", []string{"prologue"}))

	// Force the changelog append to fail after the state write and the
	// transcript append have already happened.
	changelogPath := filepath.Join(store.sessionDir("quest"), changelogFile)
	require.NoError(t, os.Remove(changelogPath))
	require.NoError(t, os.Mkdir(changelogPath, 0o755))

	state, err := store.LoadState(ctx, "quest")
	require.NoError(t, err)
	before := state
	state.Turn = 1
	state.Location = "camp"

	err = store.CommitTurn(ctx, "quest", models.TurnCommit{
		State:           state,
		TranscriptLines: []string{"look around"},
		ChangelogLines:  []string{`{"turn":1}`},
	})
	require.Error(t, err)

	// Observers must see the pre-commit world: old state, no new
	// transcript lines.
	reloaded, err := store.LoadState(ctx, "quest")
	require.NoError(t, err)
	assert.Equal(t, before.Turn, reloaded.Turn)
	assert.Equal(t, before.Location, reloaded.Location)

	entries, err := store.LoadTranscript(ctx, "quest")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "prologue", entries[0].Text)
}

func TestBlankTranscriptLinesAreNotEntries(t *testing.T) {
	store := newTestStore(t)
	createTestSession(t, store, "quest")
	ctx := context.Background()

	require.NoError(t, store.AppendTranscript(ctx, "quest", []string{"one", "", "  ", "two"}))

	entries, err := store.LoadTranscript(ctx, "quest")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "0", entries[0].ID)
	assert.Equal(t, "one", entries[0].Text)
	assert.Equal(t, "1", entries[1].ID)
	assert.Equal(t, "two", entries[1].Text)
}
