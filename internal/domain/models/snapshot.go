package models

import "time"

// SnapshotFile is one captured session artifact inside a snapshot.
type SnapshotFile struct {
	Content string `json:"content"`
}

// Snapshot is a point-in-time capture of a session. Data.Files maps
// artifact names (state.json, transcript.md, ...) to their contents so
// restore can write them back through the storage contract.
type Snapshot struct {
	SaveID    string    `json:"save_id"`
	Slug      string    `json:"session_slug"`
	SaveType  string    `json:"save_type"`
	SaveName  string    `json:"save_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Data      struct {
		Files map[string]SnapshotFile `json:"files"`
	} `json:"data"`
}

const (
	SaveTypeAuto   = "auto"
	SaveTypeManual = "manual"
)
