package models

import (
	"bytes"
	"encoding/json"
)

// Character is a character sheet. Like SessionState it is a tagged
// document: the fields the roll service reads are typed, the rest of
// the sheet passes through untouched.
type Character struct {
	Slug          string         `json:"slug"`
	Name          string         `json:"name,omitempty"`
	Level         int            `json:"level,omitempty"`
	HP            int            `json:"hp,omitempty"`
	AC            int            `json:"ac,omitempty"`
	Abilities     map[string]int `json:"abilities,omitempty"`
	Proficiencies *Proficiencies `json:"proficiencies,omitempty"`
	Inventory     []string       `json:"inventory,omitempty"`

	Extra map[string]any `json:"-"`
}

// Proficiencies lists trained skills, tools, and languages.
type Proficiencies struct {
	Skills    []string `json:"skills,omitempty"`
	Tools     []string `json:"tools,omitempty"`
	Languages []string `json:"languages,omitempty"`
}

var characterKnownKeys = map[string]bool{
	"slug": true, "name": true, "level": true, "hp": true, "ac": true,
	"abilities": true, "proficiencies": true, "inventory": true,
}

type characterAlias Character

func (c Character) MarshalJSON() ([]byte, error) {
	typed, err := json.Marshal(characterAlias(c))
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return typed, nil
	}
	doc := make(map[string]any)
	for k, v := range c.Extra {
		if !characterKnownKeys[k] {
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

func (c *Character) UnmarshalJSON(data []byte) error {
	var alias characterAlias
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
		if !characterKnownKeys[k] {
			extra[k] = v
		}
	}
	*c = Character(alias)
	if len(extra) > 0 {
		c.Extra = extra
	}
	return nil
}

// SkillProficient reports whether the sheet lists the skill, matching
// case- and separator-insensitively.
func (c *Character) SkillProficient(normalized string) bool {
	if c == nil || c.Proficiencies == nil {
		return false
	}
	for _, s := range c.Proficiencies.Skills {
		if NormalizeSkill(s) == normalized {
			return true
		}
	}
	return false
}
