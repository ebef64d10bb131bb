package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torchlight/internal/domain/models"
	"torchlight/internal/narrator"
)

type stubProducer struct {
	responses []string
	calls     int
}

func (p *stubProducer) Complete(context.Context, narrator.Request) (string, *models.TokenUsage, error) {
	raw := p.responses[min(p.calls, len(p.responses)-1)]
	p.calls++
	return raw, &models.TokenUsage{PromptTokens: 100, CompletionTokens: 50}, nil
}

func TestSanitizeChoicesKeepsValidSet(t *testing.T) {
	raw := []any{
		map[string]any{"id": "A", "text": "Bribe the guard", "intent_tag": "talk", "risk": "low"},
		map[string]any{"id": "B", "text": "Scale the wall", "intent_tag": "sneak", "risk": "high"},
	}
	choices, fallback := sanitizeChoices(raw, map[string]any{})
	assert.False(t, fallback)
	require.Len(t, choices, 2)
	assert.Equal(t, "Bribe the guard", choices[0].Text)
	assert.Equal(t, "Scale the wall", choices[1].Text)
}

func TestSanitizeChoicesDropsPlaceholdersAndDupes(t *testing.T) {
	raw := []any{
		map[string]any{"id": "A", "text": "Continue onward", "intent_tag": "travel", "risk": "low"},
		map[string]any{"id": "B", "text": "Bribe the guard", "intent_tag": "talk", "risk": "low"},
		map[string]any{"id": "C", "text": "bribe the guard", "intent_tag": "talk", "risk": "low"},
		map[string]any{"id": "D", "text": "Do nothing for now", "intent_tag": "other", "risk": "low"},
	}
	choices, fallback := sanitizeChoices(raw, map[string]any{"location": "the docks"})
	assert.True(t, fallback)
	// One survivor plus defaults to reach a usable spread.
	require.GreaterOrEqual(t, len(choices), 2)
	assert.LessOrEqual(t, len(choices), 4)
	for _, c := range choices {
		assert.False(t, hasBannedWord(c.Text), c.Text)
	}

	risks := map[string]bool{}
	for _, c := range choices {
		risks[c.Risk] = true
	}
	assert.True(t, risks["low"], "low risk option present")
	assert.True(t, risks["high"], "high risk option present")
}

func TestSanitizeChoicesNormalizesLabels(t *testing.T) {
	raw := []any{
		map[string]any{"id": "A", "text": "Shout a warning", "intent_tag": "yodel", "risk": "extreme"},
		map[string]any{"text": "Slip past quietly", "intent_tag": "sneak", "risk": "high"},
		map[string]any{"id": "C", "text": "Charge in", "intent_tag": "fight", "risk": "low"},
	}
	choices, _ := sanitizeChoices(raw, map[string]any{})
	require.GreaterOrEqual(t, len(choices), 3)
	assert.Equal(t, "other", choices[0].IntentTag)
	assert.Equal(t, "medium", choices[0].Risk)
	// A missing id is assigned from position.
	assert.Equal(t, "B", choices[1].ID)
}

func TestSanitizeDMPayloadDefaultsAndDiscovery(t *testing.T) {
	payload := map[string]any{
		"narration": "The warehouse door creaks open.",
		"choices": []any{
			map[string]any{"id": "A", "text": "Slip inside", "intent_tag": "sneak", "risk": "low"},
			map[string]any{"id": "B", "text": "Kick the door wide", "intent_tag": "fight", "risk": "high"},
		},
	}
	state := map[string]any{"turn": "3", "location": "the docks"}

	dm := sanitizeDMPayload(payload, state, map[string]any{}, "open the door", nil, true)
	assert.Equal(t, "The warehouse door creaks open.", dm.Narration)
	assert.NotEmpty(t, dm.Recap)
	assert.NotEmpty(t, dm.Stakes)
	require.NotNil(t, dm.DiscoveryAdded)
	assert.Contains(t, dm.DiscoveryAdded.Title, "the docks")
	assert.NotEmpty(t, dm.ConsequenceEcho)
}

func TestFallbackNarration(t *testing.T) {
	state := map[string]any{"turn": "2", "location": "the keep", "character": "rogue"}
	dm := fallbackNarration(state, map[string]any{}, "climb the wall", []string{"location: camp -> the keep"}, false)

	assert.True(t, dm.ChoicesFallback)
	assert.Nil(t, dm.DiscoveryAdded)
	assert.Contains(t, dm.Narration, "climb the wall")
	require.Len(t, dm.Choices, 3)
	assert.Equal(t, "talk", dm.Choices[0].IntentTag)
	assert.Equal(t, "low", dm.Choices[0].Risk)
	assert.Equal(t, "high", dm.Choices[2].Risk)
}

func TestCommitAndNarratePersistsRecord(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	producer := &stubProducer{responses: []string{
		`{"narration":"The camp stirs.","recap":"You arrived.","stakes":"Dawn is near.",
		  "choices":[
		    {"id":"A","text":"Scout the ridge","intent_tag":"investigate","risk":"low"},
		    {"id":"B","text":"Light a fire","intent_tag":"other","risk":"high"}
		  ],
		  "consequence_echo":"Camp reached."}`,
	}}
	narrate := NewNarrateService(fx.store, fx.engine, producer, discardLogger())

	preview, err := fx.engine.Preview(ctx, "quest", PreviewRequest{
		StatePatch:      map[string]any{"location": "camp"},
		Response:        "make camp",
		TranscriptEntry: "make camp",
		LockOwner:       "alice",
	})
	require.NoError(t, err)

	result, err := narrate.CommitAndNarrate(ctx, "quest", preview.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, result.State.Turn)
	assert.Equal(t, 1, result.Record.Turn)
	assert.Equal(t, "make camp", result.Record.PlayerIntent)
	assert.Equal(t, "Camp reached.", result.Record.ConsequenceEcho)
	assert.Equal(t, 1, producer.calls)
	require.NotNil(t, result.Usage)
	assert.Equal(t, 100, result.Usage.PromptTokens)

	record, err := fx.store.LoadTurn(ctx, "quest", 1)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "The camp stirs.", record.DM.Narration)

	// A fresh session is due a discovery; the sanitized payload injects
	// one and the log records it.
	log, err := fx.store.LoadDoc(ctx, "quest", "discovery_log")
	require.NoError(t, err)
	require.NotNil(t, log)
	items, ok := log["items"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 1)

	marker, err := fx.store.LoadDoc(ctx, "quest", "last_discovery")
	require.NoError(t, err)
	require.NotNil(t, marker)
}

func TestCommitAndNarrateFallsBackOnBadJSON(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	producer := &stubProducer{responses: []string{"the model rambles", "still not json"}}
	narrate := NewNarrateService(fx.store, fx.engine, producer, discardLogger())

	preview, err := fx.engine.Preview(ctx, "quest", PreviewRequest{
		StatePatch:      map[string]any{"location": "camp"},
		Response:        "make camp",
		TranscriptEntry: "make camp",
		LockOwner:       "alice",
	})
	require.NoError(t, err)

	result, err := narrate.CommitAndNarrate(ctx, "quest", preview.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, producer.calls)
	assert.True(t, result.Record.DM.ChoicesFallback)
	assert.NotEmpty(t, result.Record.DM.Narration)
}

func TestCommitAndNarrateWithoutProducer(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	narrate := NewNarrateService(fx.store, fx.engine, nil, discardLogger())

	preview, err := fx.engine.Preview(ctx, "quest", PreviewRequest{
		StatePatch:      map[string]any{"location": "camp"},
		Response:        "make camp",
		TranscriptEntry: "make camp",
		LockOwner:       "alice",
	})
	require.NoError(t, err)

	result, err := narrate.CommitAndNarrate(ctx, "quest", preview.ID, "alice")
	require.NoError(t, err)
	assert.Nil(t, result.Usage)
	assert.True(t, result.Record.DM.ChoicesFallback)
	require.GreaterOrEqual(t, len(result.Record.DM.Choices), 2)
}
