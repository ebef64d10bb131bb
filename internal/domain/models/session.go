package models

import "time"

// SessionSummary is the listing row for a session.
type SessionSummary struct {
	Slug      string    `json:"slug"`
	World     string    `json:"world"`
	HasLock   bool      `json:"has_lock"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LogEntry is one transcript or changelog line. IDs are the zero-based
// append position rendered as a string so clients can use them as
// cursors.
type LogEntry struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// LogPage is a cursor-paginated slice of log entries.
type LogPage struct {
	Items  []LogEntry `json:"items"`
	Cursor string     `json:"cursor,omitempty"`
}

// LogIndices reports the 1-based last position of each log after a
// commit, i.e. the entry counts.
type LogIndices struct {
	Transcript int `json:"transcript"`
	Changelog  int `json:"changelog"`
}

// LockInfo describes a held session lease.
type LockInfo struct {
	Owner      string    `json:"owner"`
	TTL        int       `json:"ttl"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Expired reports whether the lease has passed acquired_at + ttl.
func (l LockInfo) Expired(now time.Time) bool {
	return now.After(l.AcquiredAt.Add(time.Duration(l.TTL) * time.Second))
}
