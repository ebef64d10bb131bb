package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SessionState is the authoritative mutable document for a session.
// It is a tagged document: the engine-critical fields are typed, and
// everything else the adventure accumulates rides along in Extra so
// worlds can extend the state without schema changes here.
type SessionState struct {
	Character  string         `json:"character"`
	Turn       int            `json:"turn"`
	SceneID    string         `json:"scene_id"`
	Location   string         `json:"location"`
	HP         int            `json:"hp"`
	MaxHP      *int           `json:"max_hp,omitempty"`
	AC         *int           `json:"ac,omitempty"`
	Conditions []string       `json:"conditions"`
	Inventory  []string       `json:"inventory"`
	Flags      map[string]any `json:"flags"`
	LogIndex   int            `json:"log_index"`
	Level      int            `json:"level"`
	XP         int            `json:"xp"`
	World      string         `json:"world,omitempty"`
	GP         *int           `json:"gp,omitempty"`
	Spells     map[string]any `json:"spells,omitempty"`
	Quests     map[string]any `json:"quests,omitempty"`

	// Extra holds open-ended domain fields not modeled above.
	Extra map[string]any `json:"-"`
}

// stateKnownKeys are the JSON keys owned by the typed fields.
var stateKnownKeys = map[string]bool{
	"character": true, "turn": true, "scene_id": true, "location": true,
	"hp": true, "max_hp": true, "ac": true, "conditions": true,
	"inventory": true, "flags": true, "log_index": true, "level": true,
	"xp": true, "world": true, "gp": true, "spells": true, "quests": true,
}

// sessionStateAlias avoids marshal/unmarshal recursion.
type sessionStateAlias SessionState

// MarshalJSON merges Extra back into the top-level document. Typed
// fields win on key collision.
func (s SessionState) MarshalJSON() ([]byte, error) {
	typed, err := json.Marshal(sessionStateAlias(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return typed, nil
	}
	doc := make(map[string]any, len(s.Extra)+len(stateKnownKeys))
	for k, v := range s.Extra {
		if !stateKnownKeys[k] {
			doc[k] = v
		}
	}
	var typedDoc map[string]any
	dec := json.NewDecoder(bytes.NewReader(typed))
	dec.UseNumber()
	if err := dec.Decode(&typedDoc); err != nil {
		return nil, err
	}
	for k, v := range typedDoc {
		doc[k] = v
	}
	return json.Marshal(doc)
}

// UnmarshalJSON captures unknown top-level keys into Extra. Numbers in
// Extra are decoded as json.Number to keep their representation exact
// for stable hashing.
func (s *SessionState) UnmarshalJSON(data []byte) error {
	var alias sessionStateAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	extra := make(map[string]any)
	for k, v := range doc {
		if !stateKnownKeys[k] {
			extra[k] = v
		}
	}
	*s = SessionState(alias)
	if len(extra) > 0 {
		s.Extra = extra
	}
	return nil
}

// Doc renders the state as a generic JSON document with json.Number
// values, the form used for hashing, diffing, and patch application.
func (s SessionState) Doc() (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode state doc: %w", err)
	}
	return doc, nil
}

// StateFromDoc converts a generic document back into a SessionState.
func StateFromDoc(doc map[string]any) (SessionState, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return SessionState{}, fmt.Errorf("encode state doc: %w", err)
	}
	var state SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return SessionState{}, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}

// MergeDoc applies a JSON-merge-style patch: objects merge recursively,
// every other value replaces. The inputs are not mutated.
func MergeDoc(base, patch map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		patchObj, patchIsObj := v.(map[string]any)
		baseObj, baseIsObj := merged[k].(map[string]any)
		if patchIsObj && baseIsObj {
			merged[k] = MergeDoc(baseObj, patchObj)
			continue
		}
		merged[k] = v
	}
	return merged
}
