package models

import (
	"encoding/json"
	"time"
)

// Preview is the reservation witness for a proposed turn. It records
// the state observed at creation (base turn + base hash) and the
// entropy indices reserved for its dice expressions. Previews have no
// side effects until committed.
type Preview struct {
	ID              string          `json:"id"`
	Slug            string          `json:"slug"`
	CreatedAt       time.Time       `json:"created_at"`
	BaseTurn        int             `json:"base_turn"`
	BaseHash        string          `json:"base_hash"`
	StatePatch      map[string]any  `json:"state_patch"`
	Response        string          `json:"response"`
	TranscriptEntry string          `json:"transcript_entry"`
	ChangelogEntry  json.RawMessage `json:"changelog_entry,omitempty"`
	DiceExpressions []string        `json:"dice_expressions"`
	ReservedIndices []int           `json:"reserved_indices"`
	LockOwner       string          `json:"lock_owner,omitempty"`
}

// FileDiff summarizes one artifact change a preview would apply.
type FileDiff struct {
	Path    string `json:"path"`
	Changes string `json:"changes"`
}

// EntropyPlan describes the indices a preview reserved.
type EntropyPlan struct {
	Indices []int  `json:"indices"`
	Usage   string `json:"usage"`
}

// RollResolution is the outcome of evaluating one dice expression.
type RollResolution struct {
	Expression      string `json:"expression"`
	Total           int    `json:"total"`
	Breakdown       string `json:"breakdown"`
	ConsumedIndices []int  `json:"consumed_indices"`
}

// RollPayload is the roll record appended to turn records and pushed
// over the live bus for ad-hoc checks.
type RollPayload struct {
	Kind         string `json:"kind"`
	Ability      string `json:"ability,omitempty"`
	Skill        string `json:"skill,omitempty"`
	Advantage    string `json:"advantage,omitempty"`
	DC           *int   `json:"dc,omitempty"`
	Total        int    `json:"total"`
	D20          []int  `json:"d20"`
	EntropyIndex int    `json:"entropy_index"`
	Breakdown    string `json:"breakdown"`
	Text         string `json:"text"`
}

// TurnRecord is the persisted record of one narrated turn.
type TurnRecord struct {
	Turn            int           `json:"turn"`
	PlayerIntent    string        `json:"player_intent"`
	Diff            []string      `json:"diff"`
	ConsequenceEcho string        `json:"consequence_echo"`
	DM              DMNarration   `json:"dm"`
	CreatedAt       time.Time     `json:"created_at"`
	Rolls           []RollPayload `json:"rolls,omitempty"`
}

// TurnCommit is the atomic write set a commit hands to storage. The
// backend must make all of it visible at once or none of it.
type TurnCommit struct {
	State           SessionState
	TranscriptLines []string
	ChangelogLines  []string
	PreviewID       string
}
