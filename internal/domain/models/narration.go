package models

// IntentTags are the allowed choice intent labels.
var IntentTags = map[string]bool{
	"talk": true, "sneak": true, "fight": true, "magic": true,
	"investigate": true, "travel": true, "other": true,
}

// RiskLevels are the allowed choice risk labels.
var RiskLevels = map[string]bool{"low": true, "medium": true, "high": true}

// DMChoice is one option the DM offers the player.
type DMChoice struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IntentTag string `json:"intent_tag"`
	Risk      string `json:"risk"`
}

// DiscoveryItem is a clue or rumor the narration surfaced this turn.
type DiscoveryItem struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// RollRequestHint is an optional DM ask for a specific check next turn.
type RollRequestHint struct {
	Kind    string `json:"kind"`
	Ability string `json:"ability,omitempty"`
	Skill   string `json:"skill,omitempty"`
	DC      *int   `json:"dc,omitempty"`
}

// DMNarration is the structured narration payload for one turn.
type DMNarration struct {
	Narration       string           `json:"narration"`
	Recap           string           `json:"recap"`
	Stakes          string           `json:"stakes"`
	Choices         []DMChoice       `json:"choices"`
	RollRequest     *RollRequestHint `json:"roll_request,omitempty"`
	DiscoveryAdded  *DiscoveryItem   `json:"discovery_added,omitempty"`
	ConsequenceEcho string           `json:"consequence_echo,omitempty"`
	ChoicesFallback bool             `json:"choices_fallback,omitempty"`
}

// TokenUsage reports narration producer token consumption.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}
