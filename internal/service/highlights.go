// Package service holds the engine services: lock manager, turn
// engine, roll service, sessions, snapshots, auto-save, and the aux
// document store. Handlers call services; services call the storage
// contract.
package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"torchlight/internal/domain/models"
)

// Highlights buckets player-facing state changes so consequence echoes
// can be built without guessing at intent.
type Highlights struct {
	HP               []string
	Location         []string
	InventoryAdded   []string
	InventoryRemoved []string
	Quests           []string
	Clocks           []string
	Relationships    []string
	Other            []string
}

// SummarizeDiff reduces a raw diff list plus the before/after state
// documents into categorized highlights.
func SummarizeDiff(diff []string, before, after map[string]any) Highlights {
	var h Highlights

	if bhp, bok := toFloat(before["hp"]); bok {
		if ahp, aok := toFloat(after["hp"]); aok && bhp != ahp {
			delta := ahp - bhp
			sign := ""
			if delta >= 0 {
				sign = "+"
			}
			h.HP = append(h.HP, fmt.Sprintf("HP %s -> %s (%s%s)",
				trimFloat(bhp), trimFloat(ahp), sign, trimFloat(delta)))
		}
	}

	beforeLoc := stringOr(before["location"], "unknown")
	afterLoc := stringOr(after["location"], "unknown")
	if beforeLoc != afterLoc {
		h.Location = append(h.Location, fmt.Sprintf("Location shifts from %s to %s", beforeLoc, afterLoc))
	}

	beforeInv := stringSet(before["inventory"])
	afterInv := stringSet(after["inventory"])
	if added := sortedDifference(afterInv, beforeInv); len(added) > 0 {
		h.InventoryAdded = append(h.InventoryAdded, "Picked up: "+strings.Join(added, ", "))
	}
	if removed := sortedDifference(beforeInv, afterInv); len(removed) > 0 {
		h.InventoryRemoved = append(h.InventoryRemoved, "Lost: "+strings.Join(removed, ", "))
	}

	beforeQuests := mapOf(before["quests"])
	afterQuests := mapOf(after["quests"])
	for _, id := range sortedKeys(beforeQuests, afterQuests) {
		if equalJSON(beforeQuests[id], afterQuests[id]) {
			continue
		}
		h.Quests = append(h.Quests, fmt.Sprintf("Quest '%s' %s -> %s",
			id, questStatus(beforeQuests[id]), questStatus(afterQuests[id])))
	}

	beforeFlags := mapOf(before["flags"])
	afterFlags := mapOf(after["flags"])

	beforeClocks := mapOf(beforeFlags["clocks"])
	afterClocks := mapOf(afterFlags["clocks"])
	for _, clock := range sortedKeys(beforeClocks, afterClocks) {
		if equalJSON(beforeClocks[clock], afterClocks[clock]) {
			continue
		}
		h.Clocks = append(h.Clocks, fmt.Sprintf("Clock '%s' %s -> %s",
			clock, valueOr(beforeClocks[clock], "?"), valueOr(afterClocks[clock], "?")))
	}

	beforeRels := mapOf(beforeFlags["relationships"])
	afterRels := mapOf(afterFlags["relationships"])
	for _, rel := range sortedKeys(beforeRels, afterRels) {
		if equalJSON(beforeRels[rel], afterRels[rel]) {
			continue
		}
		h.Relationships = append(h.Relationships, fmt.Sprintf("Relationship with %s: %s -> %s",
			rel, valueOr(beforeRels[rel], "?"), valueOr(afterRels[rel], "?")))
	}

	for _, entry := range diff {
		lower := strings.ToLower(entry)
		switch {
		case strings.Contains(lower, "hp"):
			h.HP = append(h.HP, entry)
		case strings.Contains(lower, "location"):
			h.Location = append(h.Location, entry)
		case strings.Contains(lower, "inventory"):
			h.InventoryAdded = append(h.InventoryAdded, entry)
		case strings.Contains(lower, "quest"):
			h.Quests = append(h.Quests, entry)
		case strings.Contains(lower, "clock"):
			h.Clocks = append(h.Clocks, entry)
		case strings.Contains(lower, "relationship"):
			h.Relationships = append(h.Relationships, entry)
		default:
			h.Other = append(h.Other, entry)
		}
	}

	return h
}

// DeriveConsequenceEcho builds a one-line echo anchored in recent state
// changes. A non-blank provided echo wins.
func DeriveConsequenceEcho(provided string, h Highlights, narration string, diff []string) string {
	if trimmed := strings.TrimSpace(provided); trimmed != "" {
		return trimmed
	}

	var segments []string
	if len(h.HP) > 0 {
		segments = append(segments, h.HP[0])
	}
	if len(h.Location) > 0 {
		segments = append(segments, h.Location[0])
	}

	var inventoryBits []string
	if len(h.InventoryAdded) > 0 {
		inventoryBits = append(inventoryBits, h.InventoryAdded[0])
	}
	if len(h.InventoryRemoved) > 0 {
		inventoryBits = append(inventoryBits, h.InventoryRemoved[0])
	}
	if len(inventoryBits) > 0 {
		segments = append(segments, strings.Join(inventoryBits, "; "))
	}

	for _, bucket := range [][]string{h.Quests, h.Clocks, h.Relationships} {
		if len(bucket) > 0 {
			segments = append(segments, bucket[0])
		}
	}

	if len(segments) == 0 && len(diff) > 0 {
		segments = append(segments, diff[0])
	}
	if len(segments) == 0 && narration != "" {
		if leading := strings.TrimSpace(strings.SplitN(narration, ".", 2)[0]); leading != "" {
			segments = append(segments, leading)
		}
	}

	if len(segments) == 0 {
		return "A new consequence unfolds."
	}
	return strings.Join(segments, "; ")
}

// SummarizeStateDiff lists top-level keys whose values differ, as
// "key: before -> after" lines sorted by key.
func SummarizeStateDiff(before, after map[string]any) []string {
	var changes []string
	for _, key := range sortedKeys(before, after) {
		if !equalJSON(before[key], after[key]) {
			changes = append(changes, fmt.Sprintf("%s: %s -> %s",
				key, renderValue(before[key]), renderValue(after[key])))
		}
	}
	return changes
}

// LeafDiffs enumerates added, removed, and changed leaf paths between
// two documents. Nested objects contribute dotted paths; every other
// value is a leaf.
func LeafDiffs(before, after map[string]any) []models.FileDiff {
	var diffs []models.FileDiff
	collectLeafDiffs("", before, after, &diffs)
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Path < diffs[j].Path })
	return diffs
}

func collectLeafDiffs(prefix string, before, after map[string]any, diffs *[]models.FileDiff) {
	for _, key := range sortedKeys(before, after) {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		bv, inBefore := before[key]
		av, inAfter := after[key]

		bObj, bIsObj := bv.(map[string]any)
		aObj, aIsObj := av.(map[string]any)
		if bIsObj && aIsObj {
			collectLeafDiffs(path, bObj, aObj, diffs)
			continue
		}

		switch {
		case !inBefore:
			*diffs = append(*diffs, models.FileDiff{Path: path, Changes: "→" + renderValue(av)})
		case !inAfter:
			*diffs = append(*diffs, models.FileDiff{Path: path, Changes: renderValue(bv) + "→"})
		case !equalJSON(bv, av):
			*diffs = append(*diffs, models.FileDiff{Path: path, Changes: renderValue(bv) + "→" + renderValue(av)})
		}
	}
}

func equalJSON(a, b any) bool {
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return errA == nil && errB == nil
	}
	return string(ra) == string(rb)
}

func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case json.Number:
		return val.String()
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case float64:
		return val, true
	case int:
		return float64(val), true
	}
	return 0, false
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func valueOr(v any, fallback string) string {
	if v == nil {
		return fallback
	}
	return renderValue(v)
}

func questStatus(v any) string {
	if obj, ok := v.(map[string]any); ok {
		if status, ok := obj["status"].(string); ok {
			return status
		}
	}
	return "updated"
}

func stringSet(v any) map[string]bool {
	set := make(map[string]bool)
	if items, ok := v.([]any); ok {
		for _, item := range items {
			set[renderValue(item)] = true
		}
	}
	return set
}

func sortedDifference(a, b map[string]bool) []string {
	var out []string
	for item := range a {
		if !b[item] {
			out = append(out, item)
		}
	}
	sort.Strings(out)
	return out
}

func mapOf(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func sortedKeys(maps ...map[string]any) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range maps {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
