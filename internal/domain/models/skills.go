package models

import "strings"

// SkillAbilities maps normalized skill names to their governing ability.
var SkillAbilities = map[string]string{
	"acrobatics":      "dex",
	"animal_handling": "wis",
	"arcana":          "int",
	"athletics":       "str",
	"deception":       "cha",
	"history":         "int",
	"insight":         "wis",
	"intimidation":    "cha",
	"investigation":   "int",
	"medicine":        "wis",
	"nature":          "int",
	"perception":      "wis",
	"performance":     "cha",
	"persuasion":      "cha",
	"religion":        "int",
	"sleight_of_hand": "dex",
	"stealth":         "dex",
	"survival":        "wis",
}

// AbilityNames are the six ability score keys.
var AbilityNames = map[string]bool{
	"str": true, "dex": true, "con": true,
	"int": true, "wis": true, "cha": true,
}

// NormalizeSkill lowercases a skill name and collapses spaces and
// hyphens to underscores so "Sleight of Hand" matches the table key.
func NormalizeSkill(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), "_")
}

// NormalizeAbility maps long and short ability names to the three
// letter key, returning "" when the name is unknown.
func NormalizeAbility(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	switch s {
	case "str", "strength":
		return "str"
	case "dex", "dexterity":
		return "dex"
	case "con", "constitution":
		return "con"
	case "int", "intelligence":
		return "int"
	case "wis", "wisdom":
		return "wis"
	case "cha", "charisma":
		return "cha"
	}
	return ""
}

// AbilityModifier converts an ability score to its modifier, rounding
// toward negative infinity.
func AbilityModifier(score int) int {
	if score >= 10 || (score-10)%2 == 0 {
		return (score - 10) / 2
	}
	return (score-10)/2 - 1
}

// ProficiencyBonus for a character level, 2 at level 1 and +1 every
// four levels.
func ProficiencyBonus(level int) int {
	if level < 1 {
		level = 1
	}
	return 2 + (level-1)/4
}
