package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
	"torchlight/internal/domain/repositories"
	"torchlight/internal/narrator"
)

// dmPrompt is the narration contract sent as the system message.
const dmPrompt = `You are the deterministic DM. Return ONLY valid JSON matching the schema.
Schema: {
  narration: string,
  recap: string,
  stakes: string (1-2 sentences),
  choices: array of 2-4 items with fields {id: A/B/C/D, text, intent_tag: talk|sneak|fight|magic|investigate|travel|other, risk: low|medium|high},
  discovery_added: optional {title, text},
  consequence_echo: optional string summarizing the consequence in 1 line
}.
Rules: concise, grounded in provided state; keep outputs safe; do not add dice.
Choice contract: Return 2-4 DISTINCT options. Avoid placeholders like 'continue' or 'do nothing'.
When possible, include: one safe/low-risk option, one risky/high-stakes option, one clever/indirect option.
Vary intent_tag labels when possible to avoid duplicates.`

const retryPrompt = `Previous response was invalid JSON. Respond again with ONLY the JSON body per schema. Ensure choices have id, text, intent_tag, and risk.`

// discoveryCadenceTurns is the minimum turn gap before the narration
// is asked to surface a fresh discovery.
const discoveryCadenceTurns = 5

var bannedChoiceWords = []string{"continue", "do nothing", "wait", "skip"}

// NarratedTurn is the outcome of commit-and-narrate.
type NarratedTurn struct {
	CommitResult
	Record models.TurnRecord  `json:"record"`
	Usage  *models.TokenUsage `json:"usage,omitempty"`
}

// NarrateService wraps the turn engine's commit with the narration
// producer: commit, narrate the applied diff, persist the turn record,
// and conditionally log a discovery. A nil producer (no endpoint
// configured) narrates deterministically.
type NarrateService struct {
	store    repositories.Store
	engine   *TurnEngine
	producer narrator.Producer
	logger   *slog.Logger
}

func NewNarrateService(
	store repositories.Store,
	engine *TurnEngine,
	producer narrator.Producer,
	logger *slog.Logger,
) *NarrateService {
	return &NarrateService{store: store, engine: engine, producer: producer, logger: logger}
}

// CommitAndNarrate commits a preview, then narrates and records the
// turn. The narration round-trip happens after the commit so the lock
// is not held open across LLM latency for the write set itself.
func (s *NarrateService) CommitAndNarrate(ctx context.Context, slug, previewID, lockOwner string) (NarratedTurn, error) {
	preview, err := s.store.LoadPreview(ctx, slug, previewID)
	if err != nil {
		return NarratedTurn{}, err
	}
	beforeState, err := s.store.LoadState(ctx, slug)
	if err != nil {
		return NarratedTurn{}, err
	}
	beforeDoc, err := beforeState.Doc()
	if err != nil {
		return NarratedTurn{}, domain.Wrap(domain.KindInternal, err, "render state for %q", slug)
	}

	result, err := s.engine.Commit(ctx, slug, previewID, lockOwner)
	if err != nil {
		return NarratedTurn{}, err
	}
	afterDoc, err := result.State.Doc()
	if err != nil {
		return NarratedTurn{}, domain.Wrap(domain.KindInternal, err, "render committed state for %q", slug)
	}

	playerIntent := preview.Response
	if playerIntent == "" {
		playerIntent = preview.TranscriptEntry
	}
	diff := SummarizeStateDiff(beforeDoc, afterDoc)
	includeDiscovery := s.discoveryDue(ctx, slug, result.State.Turn)

	dm, usage := s.narrate(ctx, slug, afterDoc, beforeDoc, playerIntent, diff, includeDiscovery)

	record := models.TurnRecord{
		Turn:            result.State.Turn,
		PlayerIntent:    playerIntent,
		Diff:            diff,
		ConsequenceEcho: dm.ConsequenceEcho,
		DM:              dm,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.SaveTurn(ctx, slug, record); err != nil {
		return NarratedTurn{}, err
	}

	if dm.DiscoveryAdded != nil {
		s.recordDiscovery(ctx, slug, result.State.Turn, *dm.DiscoveryAdded)
	}

	s.logger.Info("turn narrated",
		"slug", slug, "turn", record.Turn,
		"choices", len(dm.Choices), "fallback", dm.ChoicesFallback)

	return NarratedTurn{CommitResult: result, Record: record, Usage: usage}, nil
}

// narrate asks the producer twice for valid JSON, then falls back to
// the deterministic narration.
func (s *NarrateService) narrate(
	ctx context.Context,
	slug string,
	state, before map[string]any,
	playerIntent string,
	diff []string,
	includeDiscovery bool,
) (models.DMNarration, *models.TokenUsage) {
	var usage *models.TokenUsage
	if s.producer != nil {
		prompt := dmPrompt
		if includeDiscovery {
			prompt += " Always include discovery_added describing a new clue or rumor this turn."
		}
		for attempt := 0; attempt < 2; attempt++ {
			raw, u, err := s.producer.Complete(ctx, narrator.Request{
				Prompt:       prompt,
				Session:      slug,
				State:        state,
				PriorState:   before,
				PlayerIntent: playerIntent,
				Diff:         diff,
			})
			if u != nil {
				usage = u
			}
			if err != nil {
				s.logger.Warn("narration producer failed", "slug", slug, "attempt", attempt+1, "error", err)
				prompt = retryPrompt
				continue
			}
			parsed := narrator.ParseDMJSON(raw)
			if parsed == nil {
				s.logger.Warn("narration was not JSON", "slug", slug, "attempt", attempt+1)
				prompt = retryPrompt
				continue
			}
			return sanitizeDMPayload(parsed, state, before, playerIntent, diff, includeDiscovery), usage
		}
	}
	return fallbackNarration(state, before, playerIntent, diff, includeDiscovery), usage
}

// discoveryDue reports whether enough turns have passed since the last
// recorded discovery.
func (s *NarrateService) discoveryDue(ctx context.Context, slug string, turn int) bool {
	doc, err := s.store.LoadDoc(ctx, slug, "last_discovery")
	if err != nil || doc == nil {
		return err == nil
	}
	last, ok := toFloat(doc["turn"])
	if !ok {
		return true
	}
	return turn-int(last) >= discoveryCadenceTurns
}

// recordDiscovery appends to the discovery log and moves the
// last-discovery marker. Both are advisory documents; failures log.
func (s *NarrateService) recordDiscovery(ctx context.Context, slug string, turn int, item models.DiscoveryItem) {
	log, err := s.store.LoadDoc(ctx, slug, "discovery_log")
	if err != nil {
		s.logger.Warn("discovery log read failed", "slug", slug, "error", err)
		return
	}
	if log == nil {
		log = map[string]any{}
	}
	items, _ := log["items"].([]any)
	items = append(items, map[string]any{
		"title":       item.Title,
		"text":        item.Text,
		"turn":        turn,
		"recorded_at": time.Now().UTC().Format(time.RFC3339),
	})
	log["items"] = items
	if err := s.store.SaveDoc(ctx, slug, "discovery_log", log); err != nil {
		s.logger.Warn("discovery log write failed", "slug", slug, "error", err)
		return
	}

	marker := map[string]any{
		"turn":        turn,
		"recorded_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.store.SaveDoc(ctx, slug, "last_discovery", marker); err != nil {
		s.logger.Warn("last discovery write failed", "slug", slug, "error", err)
	}
}

// sanitizeDMPayload normalizes a parsed producer payload into a
// well-formed narration: non-empty prose, a clean choice set, and a
// consequence echo anchored in the diff.
func sanitizeDMPayload(
	payload map[string]any,
	state, before map[string]any,
	playerIntent string,
	diff []string,
	includeDiscovery bool,
) models.DMNarration {
	highlights := SummarizeDiff(diff, before, state)

	narration := strings.TrimSpace(stringOr(payload["narration"], ""))
	recap := strings.TrimSpace(stringOr(payload["recap"], ""))
	stakes := strings.TrimSpace(stringOr(payload["stakes"], ""))
	if narration == "" {
		summary := strings.Join(diff, " ")
		if summary == "" {
			summary = "Tension lingers."
		}
		narration = fmt.Sprintf("The scene shifts after %s. %s", playerIntent, summary)
	}
	if recap == "" {
		recap = fmt.Sprintf("Turn %s recap at %s.", valueOr(state["turn"], "0"), stringOr(state["location"], "the field"))
	}
	if stakes == "" {
		stakes = "Each option carries a cost; failure introduces new pressure."
	}

	rawChoices, _ := payload["choices"].([]any)
	choices, choicesFallback := sanitizeChoices(rawChoices, state)

	discovery := parseDiscovery(payload["discovery_added"])
	if includeDiscovery && discovery == nil {
		discovery = &models.DiscoveryItem{
			Title: fmt.Sprintf("Lead near %s", stringOr(state["location"], "here")),
			Text:  "A clue surfaces, hinting at a hidden path or ally.",
		}
	}

	echo := DeriveConsequenceEcho(stringOr(payload["consequence_echo"], ""), highlights, narration, diff)

	return models.DMNarration{
		Narration:       narration,
		Recap:           recap,
		Stakes:          stakes,
		Choices:         choices,
		DiscoveryAdded:  discovery,
		ConsequenceEcho: echo,
		ChoicesFallback: choicesFallback,
	}
}

// fallbackNarration is the deterministic narration used when the
// producer is unconfigured or keeps returning invalid JSON.
func fallbackNarration(
	state, before map[string]any,
	playerIntent string,
	diff []string,
	includeDiscovery bool,
) models.DMNarration {
	location := stringOr(state["location"], "the current area")
	recap := fmt.Sprintf("Turn %s: %s pushes onward at %s.",
		valueOr(state["turn"], "0"), stringOr(state["character"], "The hero"), location)
	stakes := "Small shifts, but pressure builds."
	if len(diff) > 0 {
		stakes = "Consequences ripple from each move; risk what you value to advance."
	}
	changes := diff
	if len(changes) == 0 {
		changes = []string{"No major state shifts recorded."}
	}
	narration := fmt.Sprintf("After choosing '%s', the scene adjusts: %s", playerIntent, strings.Join(changes, " "))

	var discovery *models.DiscoveryItem
	if includeDiscovery {
		discovery = &models.DiscoveryItem{
			Title: fmt.Sprintf("Rumor about %s", location),
			Text:  "A fresh rumor surfaces, hinting at something hidden nearby.",
		}
	}

	highlights := SummarizeDiff(diff, before, state)
	echo := DeriveConsequenceEcho("", highlights, narration, diff)

	return models.DMNarration{
		Narration:       narration,
		Recap:           recap,
		Stakes:          stakes,
		Choices:         defaultChoices(state),
		DiscoveryAdded:  discovery,
		ConsequenceEcho: echo,
		ChoicesFallback: true,
	}
}

func defaultChoices(state map[string]any) []models.DMChoice {
	location := stringOr(state["location"], "this place")
	return []models.DMChoice{
		{ID: "A", Text: "Ask locals about " + location, IntentTag: "talk", Risk: "low"},
		{ID: "B", Text: "Probe quietly for weak spots", IntentTag: "sneak", Risk: "medium"},
		{ID: "C", Text: "Force the issue with bold action", IntentTag: "fight", Risk: "high"},
	}
}

// sanitizeChoices enforces the choice contract: 2-4 distinct options,
// no placeholder text, known intent tags and risks, and a low plus a
// high risk present when the set allows it. The second return reports
// whether defaults had to fill in.
func sanitizeChoices(raw []any, state map[string]any) ([]models.DMChoice, bool) {
	var sanitized []models.DMChoice
	seen := make(map[string]bool)
	fallbackUsed := false
	fallbacks := defaultChoices(state)

	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			fallbackUsed = true
			continue
		}
		text := strings.TrimSpace(stringOr(obj["text"], ""))
		if text == "" || hasBannedWord(text) {
			fallbackUsed = true
			continue
		}
		lowered := strings.ToLower(text)
		if seen[lowered] {
			fallbackUsed = true
			continue
		}
		seen[lowered] = true

		intentTag := stringOr(obj["intent_tag"], "")
		if !models.IntentTags[intentTag] {
			intentTag = "other"
		}
		risk := stringOr(obj["risk"], "")
		if !models.RiskLevels[risk] {
			risk = "medium"
		}
		id := stringOr(obj["id"], "")
		if id == "" {
			id = string(rune('A' + len(sanitized)))
		}
		sanitized = append(sanitized, models.DMChoice{ID: id, Text: text, IntentTag: intentTag, Risk: risk})
	}

	if len(sanitized) < 2 {
		fallbackUsed = true
		existing := make(map[string]bool)
		for _, c := range sanitized {
			existing[c.ID] = true
		}
		for _, fb := range fallbacks {
			if existing[fb.ID] {
				continue
			}
			sanitized = append(sanitized, fb)
			if len(sanitized) >= 3 {
				break
			}
		}
	}
	if len(sanitized) > 4 {
		fallbackUsed = true
		sanitized = sanitized[:4]
	}

	risks := make(map[string]bool)
	for _, c := range sanitized {
		risks[c.Risk] = true
	}
	if !risks["low"] || !risks["high"] {
		fallbackUsed = true
		if !risks["low"] {
			sanitized = append(sanitized, fallbacks[0])
		}
		if !risks["high"] {
			sanitized = append(sanitized, fallbacks[2])
		}
		if len(sanitized) > 4 {
			sanitized = sanitized[:4]
		}
	}

	return sanitized, fallbackUsed
}

func hasBannedWord(text string) bool {
	lower := strings.ToLower(text)
	for _, bad := range bannedChoiceWords {
		if strings.Contains(lower, bad) {
			return true
		}
	}
	return false
}

func parseDiscovery(v any) *models.DiscoveryItem {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	item := models.DiscoveryItem{
		Title: stringOr(obj["title"], ""),
		Text:  stringOr(obj["text"], ""),
	}
	if item.Title == "" && item.Text == "" {
		return nil
	}
	return &item
}
