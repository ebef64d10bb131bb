package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
	"torchlight/internal/domain/repositories"
)

// DefaultTemplateSlug seeds new sessions when the caller names none.
const DefaultTemplateSlug = "example-rogue"

var slugShape = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// TurnPrompt is the read-side summary for the player's next turn.
type TurnPrompt struct {
	Prompt     string `json:"prompt"`
	TurnNumber int    `json:"turn_number"`
	LockStatus string `json:"lock_status"`
}

// SessionService covers session lifecycle and the read endpoints:
// listing, template cloning, state, paginated logs, and the turn
// prompt.
type SessionService struct {
	store          repositories.Store
	locks          *LockService
	transcriptTail int
	changelogTail  int
	logger         *slog.Logger
}

func NewSessionService(
	store repositories.Store,
	locks *LockService,
	transcriptTail, changelogTail int,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		store:          store,
		locks:          locks,
		transcriptTail: transcriptTail,
		changelogTail:  changelogTail,
		logger:         logger,
	}
}

func (s *SessionService) List(ctx context.Context) ([]models.SessionSummary, error) {
	return s.store.ListSessions(ctx)
}

// Create clones a template session: the template's state with the
// counters reset, fresh initialization lines in both logs, and a copy
// of the template's character sheet under the new slug.
func (s *SessionService) Create(ctx context.Context, slug, templateSlug string) (models.SessionState, error) {
	if err := validation.Validate(slug, validation.Required,
		validation.Match(slugShape).Error("use letters, numbers, hyphens, or underscores")); err != nil {
		return models.SessionState{}, domain.E(domain.KindSchemaViolation, "invalid session slug %q: %v", slug, err)
	}
	if templateSlug == "" {
		templateSlug = DefaultTemplateSlug
	}

	state, err := s.store.LoadState(ctx, templateSlug)
	if err != nil {
		return models.SessionState{}, domain.Wrap(domain.KindSessionMissing, err,
			"template session %q not found", templateSlug)
	}
	state.Character = slug
	state.Turn = 0
	state.LogIndex = 0

	if err := s.store.CreateSession(ctx, slug, state); err != nil {
		return models.SessionState{}, err
	}

	initLines := []string{
		fmt.Sprintf("# Transcript: %s", slug),
		"The DM will append narrated scenes here.",
	}
	if err := s.store.AppendTranscript(ctx, slug, initLines); err != nil {
		return models.SessionState{}, err
	}
	initEntry, err := json.Marshal(map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"turn":      0,
		"scene_id":  "init",
		"summary":   "Initialized session state",
		"diffs":     map[string]any{"hp": 0, "inventory": []string{}, "flags": map[string]any{}},
		"rolls":     []any{},
		"rules":     []string{"Initialization"},
	})
	if err != nil {
		return models.SessionState{}, err
	}
	if err := s.store.AppendChangelog(ctx, slug, []string{string(initEntry)}); err != nil {
		return models.SessionState{}, err
	}

	if character, err := s.store.LoadCharacter(ctx, templateSlug); err == nil && character != nil {
		character.Slug = slug
		if err := s.store.SaveCharacter(ctx, *character, true); err != nil {
			s.logger.Warn("template character clone failed", "slug", slug, "template", templateSlug, "error", err)
		}
	}

	s.logger.Info("session created", "slug", slug, "template", templateSlug)
	return state, nil
}

func (s *SessionService) State(ctx context.Context, slug string) (models.SessionState, error) {
	return s.store.LoadState(ctx, slug)
}

// Transcript pages through transcript entries. Without a cursor the
// last tail entries return; with one, the page after it.
func (s *SessionService) Transcript(ctx context.Context, slug string, tail int, cursor string) (models.LogPage, error) {
	entries, err := s.store.LoadTranscript(ctx, slug)
	if err != nil {
		return models.LogPage{}, err
	}
	if tail <= 0 {
		tail = s.transcriptTail
	}
	return paginate(entries, tail, cursor), nil
}

func (s *SessionService) Changelog(ctx context.Context, slug string, tail int, cursor string) (models.LogPage, error) {
	entries, err := s.store.LoadChangelog(ctx, slug)
	if err != nil {
		return models.LogPage{}, err
	}
	if tail <= 0 {
		tail = s.changelogTail
	}
	return paginate(entries, tail, cursor), nil
}

// Prompt summarizes where the session stands for the next turn.
func (s *SessionService) Prompt(ctx context.Context, slug string) (TurnPrompt, error) {
	state, err := s.store.LoadState(ctx, slug)
	if err != nil {
		return TurnPrompt{}, err
	}
	lockStatus, err := s.locks.Status(ctx, slug)
	if err != nil {
		return TurnPrompt{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Turn %d", state.Turn)
	if state.Location != "" {
		fmt.Fprintf(&b, " at %s", state.Location)
	}
	fmt.Fprintf(&b, ". HP %d", state.HP)
	if state.MaxHP != nil {
		fmt.Fprintf(&b, "/%d", *state.MaxHP)
	}
	if len(state.Conditions) > 0 {
		fmt.Fprintf(&b, ". Conditions: %s", strings.Join(state.Conditions, ", "))
	}
	b.WriteString(". What do you do?")

	return TurnPrompt{Prompt: b.String(), TurnNumber: state.Turn, LockStatus: lockStatus}, nil
}

// Turns returns recent turn records, newest first.
func (s *SessionService) Turns(ctx context.Context, slug string, limit int) ([]models.TurnRecord, error) {
	records, err := s.store.LoadTurns(ctx, slug)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Turn returns one turn record.
func (s *SessionService) Turn(ctx context.Context, slug string, turn int) (models.TurnRecord, error) {
	record, err := s.store.LoadTurn(ctx, slug, turn)
	if err != nil {
		return models.TurnRecord{}, err
	}
	if record == nil {
		return models.TurnRecord{}, domain.E(domain.KindSessionMissing, "turn record %d not found", turn)
	}
	return *record, nil
}

// paginate slices entries by tail and cursor. The cursor is the id of
// the last entry the client has seen; the next page starts after it.
func paginate(entries []models.LogEntry, tail int, cursor string) models.LogPage {
	start := 0
	if cursor != "" {
		if last, err := strconv.Atoi(cursor); err == nil {
			start = last + 1
		}
	} else if len(entries) > tail {
		start = len(entries) - tail
	}
	if start > len(entries) {
		start = len(entries)
	}
	end := start + tail
	if end > len(entries) {
		end = len(entries)
	}

	page := models.LogPage{Items: entries[start:end]}
	if end < len(entries) && end > 0 {
		page.Cursor = entries[end-1].ID
	}
	return page
}
