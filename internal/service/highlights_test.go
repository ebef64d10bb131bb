package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeDiffBuckets(t *testing.T) {
	before := map[string]any{
		"hp":        json.Number("10"),
		"location":  "harbor",
		"inventory": []any{"rope", "torch"},
		"quests":    map[string]any{"heist": map[string]any{"status": "active"}},
		"flags": map[string]any{
			"clocks": map[string]any{"alarm": json.Number("2")},
		},
	}
	after := map[string]any{
		"hp":        json.Number("7"),
		"location":  "warehouse",
		"inventory": []any{"rope", "lockpick"},
		"quests":    map[string]any{"heist": map[string]any{"status": "complete"}},
		"flags": map[string]any{
			"clocks": map[string]any{"alarm": json.Number("3")},
		},
	}

	h := SummarizeDiff(nil, before, after)
	require.Len(t, h.HP, 1)
	assert.Equal(t, "HP 10 -> 7 (-3)", h.HP[0])
	require.Len(t, h.Location, 1)
	assert.Equal(t, "Location shifts from harbor to warehouse", h.Location[0])
	require.Len(t, h.InventoryAdded, 1)
	assert.Equal(t, "Picked up: lockpick", h.InventoryAdded[0])
	require.Len(t, h.InventoryRemoved, 1)
	assert.Equal(t, "Lost: torch", h.InventoryRemoved[0])
	require.Len(t, h.Quests, 1)
	assert.Equal(t, "Quest 'heist' active -> complete", h.Quests[0])
	require.Len(t, h.Clocks, 1)
	assert.Equal(t, "Clock 'alarm' 2 -> 3", h.Clocks[0])
}

func TestDeriveConsequenceEcho(t *testing.T) {
	h := Highlights{
		HP:       []string{"HP 10 -> 7 (-3)"},
		Location: []string{"Location shifts from harbor to warehouse"},
	}
	echo := DeriveConsequenceEcho("", h, "", nil)
	assert.Equal(t, "HP 10 -> 7 (-3); Location shifts from harbor to warehouse", echo)

	// A provided echo wins.
	assert.Equal(t, "custom", DeriveConsequenceEcho(" custom ", h, "", nil))

	// With nothing else, fall back to the first diff line, then the
	// leading narration sentence, then the default.
	assert.Equal(t, "hp: 10 -> 7", DeriveConsequenceEcho("", Highlights{}, "", []string{"hp: 10 -> 7"}))
	assert.Equal(t, "The alarm rings", DeriveConsequenceEcho("", Highlights{}, "The alarm rings. Guards move.", nil))
	assert.Equal(t, "A new consequence unfolds.", DeriveConsequenceEcho("", Highlights{}, "", nil))
}

func TestLeafDiffs(t *testing.T) {
	before := map[string]any{
		"location": "",
		"hp":       json.Number("10"),
		"flags":    map[string]any{"met_guard": false},
	}
	after := map[string]any{
		"location": "camp",
		"hp":       json.Number("7"),
		"flags":    map[string]any{"met_guard": true, "alarmed": true},
		"mood":     "tense",
	}

	diffs := LeafDiffs(before, after)
	require.Len(t, diffs, 5)
	// Sorted by path.
	assert.Equal(t, "flags.alarmed", diffs[0].Path)
	assert.Equal(t, "→true", diffs[0].Changes)
	assert.Equal(t, "flags.met_guard", diffs[1].Path)
	assert.Equal(t, "false→true", diffs[1].Changes)
	assert.Equal(t, "hp", diffs[2].Path)
	assert.Equal(t, "10→7", diffs[2].Changes)
	assert.Equal(t, "location", diffs[3].Path)
	assert.Equal(t, "→camp", diffs[3].Changes)
	assert.Equal(t, "mood", diffs[4].Path)
	assert.Equal(t, "→tense", diffs[4].Changes)
}

func TestLeafDiffsRemoval(t *testing.T) {
	before := map[string]any{"gp": json.Number("5")}
	after := map[string]any{}
	diffs := LeafDiffs(before, after)
	require.Len(t, diffs, 1)
	assert.Equal(t, "gp", diffs[0].Path)
	assert.Equal(t, "5→", diffs[0].Changes)
}

func TestSummarizeStateDiff(t *testing.T) {
	before := map[string]any{"hp": json.Number("10"), "location": "harbor"}
	after := map[string]any{"hp": json.Number("7"), "location": "harbor"}
	changes := SummarizeStateDiff(before, after)
	require.Len(t, changes, 1)
	assert.Equal(t, "hp: 10 -> 7", changes[0])
}
