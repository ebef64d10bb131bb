package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torchlight/internal/dice"
	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
	"torchlight/internal/events"
	"torchlight/internal/repository/file"
	"torchlight/internal/schema"
)

type engineFixture struct {
	store  *file.Store
	locks  *LockService
	engine *TurnEngine
	rolls  *RollService
	bus    *events.Bus
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newEngineFixture provisions a session named "quest" with 10 entropy
// entries and the lock held by "alice".
func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	ctx := context.Background()
	logger := discardLogger()
	root := t.TempDir()

	store, err := file.New(root, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = dice.Extend(ctx, store, 10)
	require.NoError(t, err)

	require.NoError(t, store.CreateSession(ctx, "quest", models.SessionState{
		Character: "quest",
		HP:        10,
		Level:     1,
		Extra:     map[string]any{"abilities": map[string]any{"dex": 14}},
	}))

	locks := NewLockService(store, 300, logger)
	_, err = locks.Claim(ctx, "quest", "alice", 300)
	require.NoError(t, err)

	bus := events.NewBus(logger)
	source := dice.NewSource(store)
	evaluator := dice.NewEvaluator(store)
	validator := schema.NewValidator(filepath.Join(root, "schemas"))
	engine := NewTurnEngine(store, source, evaluator, locks, validator, bus, time.Hour, logger)
	rolls := NewRollService(store, source, evaluator, locks, bus, logger)

	return &engineFixture{store: store, locks: locks, engine: engine, rolls: rolls, bus: bus}
}

func TestPreviewEmptyDice(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	result, err := fx.engine.Preview(ctx, "quest", PreviewRequest{
		StatePatch:      map[string]any{"location": "camp"},
		TranscriptEntry: "look",
		LockOwner:       "alice",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.ID)
	require.Len(t, result.Diffs, 1)
	assert.Equal(t, "location", result.Diffs[0].Path)
	assert.Equal(t, "→camp", result.Diffs[0].Changes)
	assert.Empty(t, result.EntropyPlan.Indices)
	assert.Equal(t, "0 rolls", result.EntropyPlan.Usage)

	// A preview must not touch state.
	state, err := fx.store.LoadState(ctx, "quest")
	require.NoError(t, err)
	assert.Equal(t, 0, state.Turn)
	assert.Equal(t, "", state.Location)
}

func TestCommitAppliesPreview(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	preview, err := fx.engine.Preview(ctx, "quest", PreviewRequest{
		StatePatch:      map[string]any{"location": "camp"},
		TranscriptEntry: "look",
		LockOwner:       "alice",
	})
	require.NoError(t, err)

	result, err := fx.engine.Commit(ctx, "quest", preview.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, result.State.Turn)
	assert.Equal(t, "camp", result.State.Location)
	assert.Equal(t, 0, result.State.LogIndex)
	assert.Equal(t, 1, result.LogIndices.Transcript)

	// The preview is consumed.
	_, err = fx.engine.Commit(ctx, "quest", preview.ID, "alice")
	require.Error(t, err)
	assert.Equal(t, domain.KindPreviewMissing, domain.KindOf(err))
}

func TestCommitReservationAdvancesCursor(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	preview, err := fx.engine.Preview(ctx, "quest", PreviewRequest{
		TranscriptEntry: "fight",
		DiceExpressions: []string{"1d20", "2d6"},
		LockOwner:       "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, preview.EntropyPlan.Indices)
	assert.Equal(t, "2 rolls starting at 1", preview.EntropyPlan.Usage)

	result, err := fx.engine.Commit(ctx, "quest", preview.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, result.State.LogIndex)
	require.Len(t, result.Rolls, 2)
	assert.Equal(t, []int{1}, result.Rolls[0].ConsumedIndices)
	assert.Equal(t, []int{2}, result.Rolls[1].ConsumedIndices)
}

func TestCommitStaleAfterInterveningRoll(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	preview, err := fx.engine.Preview(ctx, "quest", PreviewRequest{
		TranscriptEntry: "sneak",
		DiceExpressions: []string{"1d20"},
		LockOwner:       "alice",
	})
	require.NoError(t, err)

	// An out-of-band roll consumes index 1 and bumps the cursor.
	_, err = fx.rolls.Perform(ctx, "quest", RollRequest{
		Kind:      "ability_check",
		Ability:   "dex",
		LockOwner: "alice",
	})
	require.NoError(t, err)

	_, err = fx.engine.Commit(ctx, "quest", preview.ID, "alice")
	require.Error(t, err)
	assert.Equal(t, domain.KindPreviewStale, domain.KindOf(err))
}

func TestCommitStaleAfterOtherCommit(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	first, err := fx.engine.Preview(ctx, "quest", PreviewRequest{
		StatePatch:      map[string]any{"location": "camp"},
		TranscriptEntry: "walk",
		LockOwner:       "alice",
	})
	require.NoError(t, err)
	second, err := fx.engine.Preview(ctx, "quest", PreviewRequest{
		StatePatch:      map[string]any{"location": "dock"},
		TranscriptEntry: "row",
		LockOwner:       "alice",
	})
	require.NoError(t, err)

	_, err = fx.engine.Commit(ctx, "quest", first.ID, "alice")
	require.NoError(t, err)

	_, err = fx.engine.Commit(ctx, "quest", second.ID, "alice")
	require.Error(t, err)
	assert.Equal(t, domain.KindPreviewStale, domain.KindOf(err))
}

func TestPreviewRejectsEngineOwnedKeys(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	for _, key := range []string{"turn", "log_index"} {
		_, err := fx.engine.Preview(ctx, "quest", PreviewRequest{
			StatePatch: map[string]any{key: 7},
			LockOwner:  "alice",
		})
		require.Error(t, err, key)
		assert.Equal(t, domain.KindSchemaViolation, domain.KindOf(err), key)
	}
}

func TestPreviewRequiresLock(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	_, err := fx.engine.Preview(ctx, "quest", PreviewRequest{
		TranscriptEntry: "look",
		LockOwner:       "bob",
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindLockRequired, domain.KindOf(err))
}

func TestPreviewExhaustedEntropy(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	// Eleven expressions against a 10-entry stream.
	exprs := make([]string, 11)
	for i := range exprs {
		exprs[i] = "1d20"
	}
	_, err := fx.engine.Preview(ctx, "quest", PreviewRequest{
		TranscriptEntry: "flurry",
		DiceExpressions: exprs,
		LockOwner:       "alice",
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindEntropyExhausted, domain.KindOf(err))
}

func TestCancelPreview(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	preview, err := fx.engine.Preview(ctx, "quest", PreviewRequest{
		TranscriptEntry: "look",
		LockOwner:       "alice",
	})
	require.NoError(t, err)

	require.NoError(t, fx.engine.Cancel(ctx, "quest", preview.ID))
	_, err = fx.engine.Commit(ctx, "quest", preview.ID, "alice")
	require.Error(t, err)
	assert.Equal(t, domain.KindPreviewMissing, domain.KindOf(err))
}

func TestRollConsumesNextIndex(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	expected := dice.GenerateEntries(0, 1)[0]

	result, err := fx.rolls.Perform(ctx, "quest", RollRequest{
		Kind:      "ability_check",
		Ability:   "dex",
		LockOwner: "alice",
	})
	require.NoError(t, err)
	require.Len(t, result.D20, 1)
	assert.Equal(t, expected.D20[0], result.D20[0])
	// dex 14 gives a +2 modifier.
	assert.Equal(t, expected.D20[0]+2, result.Total)
	assert.Contains(t, result.Text, "I roll DEX:")

	state, err := fx.store.LoadState(ctx, "quest")
	require.NoError(t, err)
	assert.Equal(t, 1, state.LogIndex)

	entries, err := fx.store.LoadTranscript(ctx, "quest")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, result.Text, entries[0].Text)
}

func TestRollAdvantageTakesHigher(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	expected := dice.GenerateEntries(0, 1)[0]
	higher := max(expected.D20[0], expected.D20[1])

	result, err := fx.rolls.Perform(ctx, "quest", RollRequest{
		Kind:      "ability_check",
		Ability:   "dex",
		Advantage: "advantage",
		LockOwner: "alice",
	})
	require.NoError(t, err)
	require.Len(t, result.D20, 2)
	assert.Equal(t, higher+2, result.Total)
}

func TestRollRequiresLock(t *testing.T) {
	fx := newEngineFixture(t)
	require.NoError(t, fx.locks.Release(context.Background(), "quest", "alice"))

	_, err := fx.rolls.Perform(context.Background(), "quest", RollRequest{Kind: "ability_check"})
	require.Error(t, err)
	assert.Equal(t, domain.KindLockRequired, domain.KindOf(err))
}

func TestCommitSyncsCharacterSheet(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.store.SaveCharacter(ctx, models.Character{
		Slug:      "quest",
		Name:      "Vex",
		Level:     1,
		HP:        10,
		Inventory: []string{"torch"},
	}, false))

	preview, err := fx.engine.Preview(ctx, "quest", PreviewRequest{
		StatePatch: map[string]any{"hp": 7, "inventory": []any{"torch", "lockpick"}},
		LockOwner:  "alice",
	})
	require.NoError(t, err)
	_, err = fx.engine.Commit(ctx, "quest", preview.ID, "alice")
	require.NoError(t, err)

	character, err := fx.store.LoadCharacter(ctx, "quest")
	require.NoError(t, err)
	require.NotNil(t, character)
	assert.Equal(t, 7, character.HP)
	assert.Equal(t, []string{"torch", "lockpick"}, character.Inventory)
	// Untouched fields survive the mirror.
	assert.Equal(t, "Vex", character.Name)
	assert.Equal(t, 1, character.Level)
}
