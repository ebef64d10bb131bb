package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"torchlight/internal/dice"
	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
	"torchlight/internal/domain/repositories"
	"torchlight/internal/events"
)

// RollRequest describes an ad-hoc check performed outside a turn.
type RollRequest struct {
	Kind      string `json:"kind"`
	Ability   string `json:"ability,omitempty"`
	Skill     string `json:"skill,omitempty"`
	Advantage string `json:"advantage,omitempty"`
	DC        *int   `json:"dc,omitempty"`
	LockOwner string `json:"lock_owner,omitempty"`
}

// RollResult is the resolved check.
type RollResult struct {
	D20       []int  `json:"d20"`
	Total     int    `json:"total"`
	Breakdown string `json:"breakdown"`
	Text      string `json:"text"`
}

// RollService performs on-demand d20 checks. Each roll consumes the
// next entropy index, bumps the session's cursor, and appends one
// transcript line, all under the session lock so previews created
// before the roll go stale at commit.
type RollService struct {
	store     repositories.Store
	source    *dice.Source
	evaluator *dice.Evaluator
	locks     *LockService
	bus       *events.Bus
	logger    *slog.Logger
}

func NewRollService(
	store repositories.Store,
	source *dice.Source,
	evaluator *dice.Evaluator,
	locks *LockService,
	bus *events.Bus,
	logger *slog.Logger,
) *RollService {
	return &RollService{
		store:     store,
		source:    source,
		evaluator: evaluator,
		locks:     locks,
		bus:       bus,
		logger:    logger,
	}
}

// Perform resolves the check against the next entropy entry.
func (s *RollService) Perform(ctx context.Context, slug string, req RollRequest) (RollResult, error) {
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.Kind, validation.Required),
		validation.Field(&req.Advantage, validation.In("", "advantage", "disadvantage")),
	); err != nil {
		return RollResult{}, domain.E(domain.KindSchemaViolation, "invalid roll request: %v", err)
	}
	if err := s.locks.Require(ctx, slug, req.LockOwner); err != nil {
		return RollResult{}, err
	}

	state, err := s.store.LoadState(ctx, slug)
	if err != nil {
		return RollResult{}, err
	}
	character, err := s.store.LoadCharacter(ctx, slug)
	if err != nil {
		s.logger.Warn("character unavailable for roll", "slug", slug, "error", err)
	}

	nextIndex := state.LogIndex + 1
	if err := s.source.EnsureAvailable(ctx, nextIndex); err != nil {
		return RollResult{}, err
	}

	needed := 1
	if req.Advantage == "advantage" || req.Advantage == "disadvantage" {
		needed = 2
	}
	usedRolls, err := s.evaluator.DrawD20(ctx, nextIndex, needed)
	if err != nil {
		return RollResult{}, err
	}
	baseRoll := usedRolls[0]
	if req.Advantage == "advantage" {
		baseRoll = max(usedRolls[0], usedRolls[1])
	} else if req.Advantage == "disadvantage" {
		baseRoll = min(usedRolls[0], usedRolls[1])
	}

	ability := models.NormalizeAbility(req.Ability)
	if ability == "" && req.Skill != "" {
		ability = models.SkillAbilities[models.NormalizeSkill(req.Skill)]
	}
	if ability == "" && req.Kind == "initiative" {
		ability = "dex"
	}

	modifier := 0
	abilityMod := 0
	if ability != "" {
		if score, ok := abilityScore(state, character, ability); ok {
			abilityMod = models.AbilityModifier(score)
		}
		modifier += abilityMod
	}

	profBonus := 0
	if req.Skill != "" && character.SkillProficient(models.NormalizeSkill(req.Skill)) {
		level := state.Level
		if character != nil && character.Level > 0 {
			level = character.Level
		}
		profBonus = models.ProficiencyBonus(level)
		modifier += profBonus
	}

	total := baseRoll + modifier

	parts := []string{fmt.Sprintf("%d", baseRoll)}
	if ability != "" {
		parts = append(parts, fmt.Sprintf("%+d (%s)", abilityMod, strings.ToUpper(ability)))
	}
	if profBonus > 0 {
		parts = append(parts, fmt.Sprintf("+%d (PROF)", profBonus))
	}
	breakdown := strings.Join(parts, " ")

	label := displayLabel(req)
	text := fmt.Sprintf("I roll %s: %s = %d", label, breakdown, total)

	state.LogIndex = nextIndex
	if err := s.store.SaveState(ctx, slug, state); err != nil {
		return RollResult{}, err
	}
	if err := s.store.AppendTranscript(ctx, slug, []string{text}); err != nil {
		return RollResult{}, err
	}

	payload := models.RollPayload{
		Kind:         req.Kind,
		Ability:      ability,
		Skill:        req.Skill,
		Advantage:    req.Advantage,
		DC:           req.DC,
		Total:        total,
		D20:          usedRolls,
		EntropyIndex: nextIndex,
		Breakdown:    breakdown,
		Text:         text,
	}
	if err := s.store.AppendRolls(ctx, slug, state.Turn, []models.RollPayload{payload}); err != nil {
		s.logger.Warn("appending roll to turn record failed", "slug", slug, "turn", state.Turn, "error", err)
	}

	s.logger.Info("roll performed",
		"slug", slug, "kind", req.Kind, "entropy_index", nextIndex, "total", total)

	s.bus.Publish(slug, events.Event{
		Transcript: &events.LinesDelta{Lines: []string{text}},
		Rolls:      &events.RollsDelta{Turn: state.Turn, Items: []models.RollPayload{payload}},
	})

	return RollResult{D20: usedRolls, Total: total, Breakdown: breakdown, Text: text}, nil
}

// abilityScore reads an ability score from state flags or the
// character sheet, state first.
func abilityScore(state models.SessionState, character *models.Character, ability string) (int, bool) {
	if abilities, ok := state.Extra["abilities"].(map[string]any); ok {
		if score, ok := toFloat(abilities[ability]); ok {
			return int(score), true
		}
		if score, ok := toFloat(abilities[strings.ToUpper(ability)]); ok {
			return int(score), true
		}
	}
	if character != nil && character.Abilities != nil {
		if score, ok := character.Abilities[ability]; ok {
			return score, true
		}
		if score, ok := character.Abilities[strings.ToUpper(ability)]; ok {
			return score, true
		}
	}
	return 0, false
}

func displayLabel(req RollRequest) string {
	if req.Skill != "" {
		return titleWords(strings.ReplaceAll(models.NormalizeSkill(req.Skill), "_", " "))
	}
	if req.Ability != "" {
		return strings.ToUpper(models.NormalizeAbility(req.Ability))
	}
	return titleWords(strings.ReplaceAll(req.Kind, "_", " "))
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
