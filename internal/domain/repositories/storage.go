// Package repositories defines the storage contract. Two backends
// implement it (file tree and sqlite); services only ever see these
// interfaces, so the two must be observationally equivalent.
package repositories

import (
	"context"

	"torchlight/internal/domain/models"
)

// SessionRepository manages session lifecycle and state documents.
type SessionRepository interface {
	// ListSessions returns summaries for every session, sorted by slug.
	ListSessions(ctx context.Context) ([]models.SessionSummary, error)
	// CreateSession provisions artifacts for a new session and writes
	// the initial state. Returns Conflict if the slug already exists.
	CreateSession(ctx context.Context, slug string, state models.SessionState) error
	// SessionExists reports whether the slug has been provisioned.
	SessionExists(ctx context.Context, slug string) (bool, error)
	// LoadState reads the current state document.
	LoadState(ctx context.Context, slug string) (models.SessionState, error)
	// SaveState overwrites the state document.
	SaveState(ctx context.Context, slug string, state models.SessionState) error
}

// LogRepository manages the append-only transcript and changelog.
type LogRepository interface {
	AppendTranscript(ctx context.Context, slug string, lines []string) error
	AppendChangelog(ctx context.Context, slug string, lines []string) error
	// LoadTranscript returns entries in append order. IDs are the
	// zero-based positions rendered as strings, usable as cursors.
	LoadTranscript(ctx context.Context, slug string) ([]models.LogEntry, error)
	LoadChangelog(ctx context.Context, slug string) ([]models.LogEntry, error)
	// LogCounts returns the number of entries in each log.
	LogCounts(ctx context.Context, slug string) (models.LogIndices, error)
}

// TurnRepository persists narrated turn records.
type TurnRepository interface {
	// SaveTurn upserts the record keyed by (slug, turn).
	SaveTurn(ctx context.Context, slug string, record models.TurnRecord) error
	LoadTurns(ctx context.Context, slug string) ([]models.TurnRecord, error)
	// LoadTurn returns the record for one turn, or nil when absent.
	LoadTurn(ctx context.Context, slug string, turn int) (*models.TurnRecord, error)
	// AppendRolls attaches roll payloads to the record for the given
	// turn. A turn with no record yet is a no-op.
	AppendRolls(ctx context.Context, slug string, turn int, rolls []models.RollPayload) error
}

// PreviewRepository stores pending previews.
type PreviewRepository interface {
	SavePreview(ctx context.Context, preview models.Preview) error
	// LoadPreview returns PreviewMissing when the id is unknown.
	LoadPreview(ctx context.Context, slug, id string) (models.Preview, error)
	DeletePreview(ctx context.Context, slug, id string) error
	ListPreviews(ctx context.Context, slug string) ([]models.Preview, error)
}

// LockRepository manages the per-session advisory lock lease.
type LockRepository interface {
	// ClaimLock atomically creates the lease. When a live lease exists
	// for a different owner it returns LockHeld; the same owner
	// refreshes its lease idempotently. Expired leases are replaced.
	ClaimLock(ctx context.Context, slug string, lock models.LockInfo) (models.LockInfo, error)
	// ReleaseLock removes the lease. Release by a non-owner returns
	// LockOwnerMismatch; releasing an absent lock is a no-op.
	ReleaseLock(ctx context.Context, slug, owner string) error
	// GetLock returns the current lease, or nil when none is held.
	GetLock(ctx context.Context, slug string) (*models.LockInfo, error)
}

// EntropyRepository reads and extends the shared entropy stream.
type EntropyRepository interface {
	// EntropyEntry returns the entry at a 1-based index, or
	// EntropyMissing past the end of the stream.
	EntropyEntry(ctx context.Context, index int) (models.EntropyEntry, error)
	// EntropyLen returns the last index in the stream.
	EntropyLen(ctx context.Context) (int, error)
	// AppendEntropy extends the stream. Entries must continue the dense
	// 1-based index sequence.
	AppendEntropy(ctx context.Context, entries []models.EntropyEntry) error
}

// SnapshotRepository captures and restores whole-session snapshots.
type SnapshotRepository interface {
	// CaptureSnapshot copies the session's current artifacts into a new
	// snapshot record.
	CaptureSnapshot(ctx context.Context, slug, saveType, saveName string) (models.Snapshot, error)
	ListSnapshots(ctx context.Context, slug string) ([]models.Snapshot, error)
	GetSnapshot(ctx context.Context, slug, saveID string) (models.Snapshot, error)
	// RestoreSnapshot overwrites the session's artifacts from the
	// snapshot. Locks and pending previews are cleared.
	RestoreSnapshot(ctx context.Context, slug, saveID string) error
	DeleteSnapshot(ctx context.Context, slug, saveID string) error
}

// CharacterRepository stores character sheets. The session-local copy
// is authoritative during play; the shared catalog copy seeds template
// cloning.
type CharacterRepository interface {
	// LoadCharacter prefers the session-local copy and falls back to
	// the shared catalog.
	LoadCharacter(ctx context.Context, slug string) (*models.Character, error)
	// SaveCharacter writes the session copy and, when persistShared is
	// set, mirrors it to the shared catalog under the same slug.
	SaveCharacter(ctx context.Context, character models.Character, persistShared bool) error
}

// DocKinds are the auxiliary per-session documents the service
// stores. Backends reject any other kind.
var DocKinds = []string{
	"mood",
	"npc_memory",
	"npc_relationships",
	"discovery_log",
	"last_discovery",
	"auto_save",
}

// ValidDocKind reports whether kind names a known auxiliary document.
func ValidDocKind(kind string) bool {
	for _, k := range DocKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// DocRepository stores auxiliary per-session documents (mood, npc
// memory, discovery log and friends) as free-form JSON.
type DocRepository interface {
	// LoadDoc returns the document, or nil when it has not been written.
	LoadDoc(ctx context.Context, slug, kind string) (map[string]any, error)
	SaveDoc(ctx context.Context, slug, kind string, doc map[string]any) error
}

// TurnCommitter applies a commit's write set atomically: state save,
// transcript and changelog appends, and preview deletion all become
// visible together or not at all.
type TurnCommitter interface {
	CommitTurn(ctx context.Context, slug string, commit models.TurnCommit) error
}

// Store bundles every repository a backend provides.
type Store interface {
	SessionRepository
	LogRepository
	TurnRepository
	PreviewRepository
	LockRepository
	EntropyRepository
	SnapshotRepository
	CharacterRepository
	DocRepository
	TurnCommitter

	// Close releases backend resources.
	Close() error
}
