package models

// EntropyEntry is one record of the global pre-rolled dice stream.
// Indices are 1-based and dense; entries are immutable once written.
type EntropyEntry struct {
	Index int    `json:"i"`
	D20   []int  `json:"d20"`
	D100  []int  `json:"d100"`
	Bytes string `json:"bytes,omitempty"`
}
