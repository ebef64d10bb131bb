package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"torchlight/internal/dice"
	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
	"torchlight/internal/domain/repositories"
	"torchlight/internal/events"
	"torchlight/internal/schema"
	"torchlight/internal/stablehash"
)

// stateSchemaName is the external schema previews and commits validate
// merged state against.
const stateSchemaName = "state"

// PreviewRequest is the input to the preview phase.
type PreviewRequest struct {
	Response        string         `json:"response"`
	StatePatch      map[string]any `json:"state_patch"`
	TranscriptEntry string         `json:"transcript_entry"`
	ChangelogEntry  map[string]any `json:"changelog_entry"`
	DiceExpressions []string       `json:"dice_expressions"`
	LockOwner       string         `json:"lock_owner"`
}

// PreviewResult is the reservation returned to the caller.
type PreviewResult struct {
	ID          string             `json:"id"`
	Diffs       []models.FileDiff  `json:"diffs"`
	EntropyPlan models.EntropyPlan `json:"entropy_plan"`
}

// CommitResult is the outcome of a committed turn.
type CommitResult struct {
	State      models.SessionState     `json:"state"`
	LogIndices models.LogIndices       `json:"log_indices"`
	Rolls      []models.RollResolution `json:"rolls,omitempty"`
}

// TurnEngine implements the preview/commit protocol. A preview is a
// pure reservation: it witnesses the state (base turn + stable hash)
// and reserves the next entropy indices. The commit re-verifies both
// and applies the whole write set atomically through the storage
// contract.
type TurnEngine struct {
	store         repositories.Store
	source        *dice.Source
	evaluator     *dice.Evaluator
	locks         *LockService
	validator     *schema.Validator
	bus           *events.Bus
	previewMaxAge time.Duration
	logger        *slog.Logger
}

func NewTurnEngine(
	store repositories.Store,
	source *dice.Source,
	evaluator *dice.Evaluator,
	locks *LockService,
	validator *schema.Validator,
	bus *events.Bus,
	previewMaxAge time.Duration,
	logger *slog.Logger,
) *TurnEngine {
	return &TurnEngine{
		store:         store,
		source:        source,
		evaluator:     evaluator,
		locks:         locks,
		validator:     validator,
		bus:           bus,
		previewMaxAge: previewMaxAge,
		logger:        logger,
	}
}

// Preview validates the proposed turn, reserves entropy, and persists
// the reservation. It never touches state, logs, or the cursor.
func (e *TurnEngine) Preview(ctx context.Context, slug string, req PreviewRequest) (PreviewResult, error) {
	if err := e.locks.Require(ctx, slug, req.LockOwner); err != nil {
		return PreviewResult{}, err
	}
	e.collectStalePreviews(ctx, slug)

	state, err := e.store.LoadState(ctx, slug)
	if err != nil {
		return PreviewResult{}, err
	}
	stateDoc, err := state.Doc()
	if err != nil {
		return PreviewResult{}, domain.Wrap(domain.KindInternal, err, "render state for %q", slug)
	}
	baseHash, err := stablehash.Hash(stateDoc)
	if err != nil {
		return PreviewResult{}, domain.Wrap(domain.KindInternal, err, "hash state for %q", slug)
	}

	if err := validatePatch(req.StatePatch); err != nil {
		return PreviewResult{}, err
	}
	merged := models.MergeDoc(stateDoc, req.StatePatch)
	if err := e.validator.Validate(stateSchemaName, merged); err != nil {
		return PreviewResult{}, err
	}
	if _, err := models.StateFromDoc(merged); err != nil {
		return PreviewResult{}, domain.Wrap(domain.KindSchemaViolation, err, "state patch produces an invalid state")
	}

	for _, expr := range req.DiceExpressions {
		if _, err := dice.Parse(expr); err != nil {
			return PreviewResult{}, err
		}
	}
	count := len(req.DiceExpressions)
	reserved := make([]int, count)
	for i := range reserved {
		reserved[i] = state.LogIndex + 1 + i
	}
	if count > 0 {
		if err := e.source.EnsureAvailable(ctx, reserved[count-1]); err != nil {
			return PreviewResult{}, err
		}
	}

	transcriptEntry := req.TranscriptEntry
	if transcriptEntry == "" {
		transcriptEntry = req.Response
	}
	var changelogRaw json.RawMessage
	if req.ChangelogEntry != nil {
		changelogRaw, err = json.Marshal(req.ChangelogEntry)
		if err != nil {
			return PreviewResult{}, domain.Wrap(domain.KindSchemaViolation, err, "encode changelog entry")
		}
	}

	preview := models.Preview{
		ID:              uuid.NewString(),
		Slug:            slug,
		CreatedAt:       time.Now().UTC(),
		BaseTurn:        state.Turn,
		BaseHash:        baseHash,
		StatePatch:      req.StatePatch,
		Response:        req.Response,
		TranscriptEntry: transcriptEntry,
		ChangelogEntry:  changelogRaw,
		DiceExpressions: req.DiceExpressions,
		ReservedIndices: reserved,
		LockOwner:       req.LockOwner,
	}
	if err := e.store.SavePreview(ctx, preview); err != nil {
		return PreviewResult{}, err
	}

	e.logger.Info("preview created",
		"slug", slug, "preview_id", preview.ID, "base_turn", preview.BaseTurn, "dice", count)

	return PreviewResult{
		ID:          preview.ID,
		Diffs:       LeafDiffs(stateDoc, merged),
		EntropyPlan: models.EntropyPlan{Indices: reserved, Usage: entropyUsage(reserved)},
	}, nil
}

// Commit applies a preview. Staleness is judged against the base turn
// and the stable hash, so any intervening writer (another commit, an
// out-of-band roll) invalidates the preview.
func (e *TurnEngine) Commit(ctx context.Context, slug, previewID, lockOwner string) (CommitResult, error) {
	if err := e.locks.Require(ctx, slug, lockOwner); err != nil {
		return CommitResult{}, err
	}

	preview, err := e.store.LoadPreview(ctx, slug, previewID)
	if err != nil {
		return CommitResult{}, err
	}

	state, err := e.store.LoadState(ctx, slug)
	if err != nil {
		return CommitResult{}, err
	}
	stateDoc, err := state.Doc()
	if err != nil {
		return CommitResult{}, domain.Wrap(domain.KindInternal, err, "render state for %q", slug)
	}
	currentHash, err := stablehash.Hash(stateDoc)
	if err != nil {
		return CommitResult{}, domain.Wrap(domain.KindInternal, err, "hash state for %q", slug)
	}
	if state.Turn != preview.BaseTurn || currentHash != preview.BaseHash {
		if err := e.store.DeletePreview(ctx, slug, previewID); err != nil {
			e.logger.Warn("stale preview cleanup failed", "slug", slug, "preview_id", previewID, "error", err)
		}
		return CommitResult{}, domain.E(domain.KindPreviewStale,
			"state changed since preview %q; create a fresh preview", previewID).
			WithDetails(map[string]any{"base_turn": preview.BaseTurn, "current_turn": state.Turn})
	}

	newLogIndex := state.LogIndex
	if len(preview.ReservedIndices) > 0 {
		if preview.ReservedIndices[0] != state.LogIndex+1 {
			return CommitResult{}, domain.E(domain.KindConflict,
				"entropy reservation starts at %d, cursor expects %d",
				preview.ReservedIndices[0], state.LogIndex+1)
		}
		for _, index := range preview.ReservedIndices {
			if _, err := e.source.Load(ctx, index); err != nil {
				return CommitResult{}, err
			}
		}
		newLogIndex = preview.ReservedIndices[len(preview.ReservedIndices)-1]
	}

	rolls := make([]models.RollResolution, 0, len(preview.DiceExpressions))
	for i, expr := range preview.DiceExpressions {
		resolution, err := e.evaluator.Evaluate(ctx, expr, preview.ReservedIndices[i])
		if err != nil {
			return CommitResult{}, err
		}
		rolls = append(rolls, resolution)
	}

	merged := models.MergeDoc(stateDoc, preview.StatePatch)
	merged["turn"] = json.Number(fmt.Sprintf("%d", state.Turn+1))
	merged["log_index"] = json.Number(fmt.Sprintf("%d", newLogIndex))
	if err := e.validator.Validate(stateSchemaName, merged); err != nil {
		return CommitResult{}, err
	}
	newState, err := models.StateFromDoc(merged)
	if err != nil {
		return CommitResult{}, domain.Wrap(domain.KindSchemaViolation, err, "committed state is invalid")
	}

	transcriptLines := make([]string, 0, 1+len(rolls))
	if preview.TranscriptEntry != "" {
		transcriptLines = append(transcriptLines, preview.TranscriptEntry)
	}
	for _, roll := range rolls {
		transcriptLines = append(transcriptLines, fmt.Sprintf("Roll %s: %s", roll.Expression, roll.Breakdown))
	}

	changelogLines, err := changelogLine(preview, newState.Turn, rolls)
	if err != nil {
		return CommitResult{}, err
	}

	if err := e.store.CommitTurn(ctx, slug, models.TurnCommit{
		State:           newState,
		TranscriptLines: transcriptLines,
		ChangelogLines:  changelogLines,
		PreviewID:       previewID,
	}); err != nil {
		return CommitResult{}, err
	}

	counts, err := e.store.LogCounts(ctx, slug)
	if err != nil {
		return CommitResult{}, err
	}

	e.logger.Info("turn committed",
		"slug", slug, "turn", newState.Turn, "log_index", newState.LogIndex, "rolls", len(rolls))

	e.syncCharacter(ctx, slug, preview.StatePatch, newState)

	e.bus.Publish(slug, events.Event{
		Transcript: &events.LinesDelta{Lines: transcriptLines},
		Changelog:  &events.LinesDelta{Lines: changelogLines},
	})

	return CommitResult{State: newState, LogIndices: counts, Rolls: rolls}, nil
}

// Cancel deletes a preview without committing it.
func (e *TurnEngine) Cancel(ctx context.Context, slug, previewID string) error {
	return e.store.DeletePreview(ctx, slug, previewID)
}

// syncCharacter mirrors hp, level, and inventory onto the session's
// character sheet when the committed patch touched them. The sheet is
// advisory for rolls; a failed mirror only logs.
func (e *TurnEngine) syncCharacter(ctx context.Context, slug string, patch map[string]any, state models.SessionState) {
	touched := false
	for _, key := range []string{"hp", "level", "inventory"} {
		if _, ok := patch[key]; ok {
			touched = true
			break
		}
	}
	if !touched {
		return
	}

	character, err := e.store.LoadCharacter(ctx, slug)
	if err != nil || character == nil {
		return
	}
	if _, ok := patch["hp"]; ok {
		character.HP = state.HP
	}
	if _, ok := patch["level"]; ok {
		character.Level = state.Level
	}
	if _, ok := patch["inventory"]; ok {
		character.Inventory = append([]string(nil), state.Inventory...)
	}
	if err := e.store.SaveCharacter(ctx, *character, false); err != nil {
		e.logger.Warn("character sync failed", "slug", slug, "error", err)
	}
}

// collectStalePreviews garbage-collects reservations past the age
// bound. Failures only log; preview creation must not depend on it.
func (e *TurnEngine) collectStalePreviews(ctx context.Context, slug string) {
	if e.previewMaxAge <= 0 {
		return
	}
	previews, err := e.store.ListPreviews(ctx, slug)
	if err != nil {
		e.logger.Warn("preview gc listing failed", "slug", slug, "error", err)
		return
	}
	cutoff := time.Now().UTC().Add(-e.previewMaxAge)
	for _, preview := range previews {
		if preview.CreatedAt.Before(cutoff) {
			if err := e.store.DeletePreview(ctx, slug, preview.ID); err != nil {
				e.logger.Warn("preview gc delete failed", "slug", slug, "preview_id", preview.ID, "error", err)
			}
		}
	}
}

// validatePatch rejects patches that try to drive the engine-owned
// counters directly.
func validatePatch(patch map[string]any) error {
	for _, key := range []string{"turn", "log_index"} {
		if _, ok := patch[key]; ok {
			return domain.E(domain.KindSchemaViolation, "%q cannot be set directly", key)
		}
	}
	return nil
}

func entropyUsage(reserved []int) string {
	if len(reserved) == 0 {
		return "0 rolls"
	}
	return fmt.Sprintf("%d rolls starting at %d", len(reserved), reserved[0])
}

// changelogLine renders the commit's changelog entry as one JSON line,
// decorated with the committed turn and the consumed entropy indices
// so the audit tool can verify no index is reused. With no provided
// entry and no rolls, nothing is appended.
func changelogLine(preview models.Preview, turn int, rolls []models.RollResolution) ([]string, error) {
	entry := make(map[string]any)
	if len(preview.ChangelogEntry) > 0 {
		dec := json.NewDecoder(bytes.NewReader(preview.ChangelogEntry))
		dec.UseNumber()
		if err := dec.Decode(&entry); err != nil {
			return nil, domain.Wrap(domain.KindSchemaViolation, err, "changelog entry is not an object")
		}
	} else if len(rolls) == 0 {
		return nil, nil
	} else {
		entry["timestamp"] = time.Now().UTC().Format(time.RFC3339)
		entry["summary"] = preview.TranscriptEntry
	}

	entry["turn"] = turn
	if len(rolls) > 0 {
		if _, ok := entry["rolls"]; !ok {
			rollDocs := make([]map[string]any, len(rolls))
			for i, roll := range rolls {
				rollDocs[i] = map[string]any{
					"expression":    roll.Expression,
					"total":         roll.Total,
					"entropy_index": roll.ConsumedIndices[0],
				}
			}
			entry["rolls"] = rollDocs
		}
		entry["entropy_indices"] = preview.ReservedIndices
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "encode changelog entry")
	}
	return []string{string(line)}, nil
}
