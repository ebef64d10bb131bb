package file

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return store
}

func createTestSession(t *testing.T, store *Store, slug string) {
	t.Helper()
	require.NoError(t, store.CreateSession(context.Background(), slug, models.SessionState{
		Character: slug,
		Location:  "harbor",
		HP:        10,
		Level:     1,
	}))
}

func lockAt(owner string, ttl int, at time.Time) models.LockInfo {
	return models.LockInfo{Owner: owner, TTL: ttl, AcquiredAt: at}
}

func TestClaimLock(t *testing.T) {
	store := newTestStore(t)
	createTestSession(t, store, "quest")
	ctx := context.Background()

	_, err := store.ClaimLock(ctx, "quest", lockAt("alice", 300, time.Now().UTC()))
	require.NoError(t, err)

	lock, err := store.GetLock(ctx, "quest")
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, "alice", lock.Owner)
}

func TestClaimLockHeldByOther(t *testing.T) {
	store := newTestStore(t)
	createTestSession(t, store, "quest")
	ctx := context.Background()

	_, err := store.ClaimLock(ctx, "quest", lockAt("alice", 300, time.Now().UTC()))
	require.NoError(t, err)

	_, err = store.ClaimLock(ctx, "quest", lockAt("bob", 300, time.Now().UTC()))
	require.Error(t, err)
	assert.Equal(t, domain.KindLockHeld, domain.KindOf(err))
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "alice", de.Details["owner"])
}

func TestClaimLockRefreshSameOwner(t *testing.T) {
	store := newTestStore(t)
	createTestSession(t, store, "quest")
	ctx := context.Background()

	first := lockAt("alice", 300, time.Now().UTC().Add(-time.Minute))
	_, err := store.ClaimLock(ctx, "quest", first)
	require.NoError(t, err)

	refreshed := lockAt("alice", 600, time.Now().UTC())
	_, err = store.ClaimLock(ctx, "quest", refreshed)
	require.NoError(t, err)

	lock, err := store.GetLock(ctx, "quest")
	require.NoError(t, err)
	assert.Equal(t, 600, lock.TTL)
}

func TestClaimLockStealsExpired(t *testing.T) {
	store := newTestStore(t)
	createTestSession(t, store, "quest")
	ctx := context.Background()

	stale := lockAt("alice", 1, time.Now().UTC().Add(-time.Hour))
	_, err := store.ClaimLock(ctx, "quest", stale)
	require.NoError(t, err)

	_, err = store.ClaimLock(ctx, "quest", lockAt("bob", 300, time.Now().UTC()))
	require.NoError(t, err)

	lock, err := store.GetLock(ctx, "quest")
	require.NoError(t, err)
	assert.Equal(t, "bob", lock.Owner)
}

func TestReleaseLockOwnerMismatch(t *testing.T) {
	store := newTestStore(t)
	createTestSession(t, store, "quest")
	ctx := context.Background()

	_, err := store.ClaimLock(ctx, "quest", lockAt("alice", 300, time.Now().UTC()))
	require.NoError(t, err)

	err = store.ReleaseLock(ctx, "quest", "bob")
	require.Error(t, err)
	assert.Equal(t, domain.KindLockOwnerMismatch, domain.KindOf(err))

	// Absent lock releases are a no-op.
	require.NoError(t, store.ReleaseLock(ctx, "quest", "alice"))
	require.NoError(t, store.ReleaseLock(ctx, "quest", "alice"))
}

func TestConcurrentClaimBurst(t *testing.T) {
	store := newTestStore(t)
	createTestSession(t, store, "quest")
	ctx := context.Background()

	const claimants = 16
	var wg sync.WaitGroup
	winners := make(chan string, claimants)
	for i := 0; i < claimants; i++ {
		owner := string(rune('a' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ClaimLock(ctx, "quest", lockAt(owner, 300, time.Now().UTC())); err == nil {
				winners <- owner
			}
		}()
	}
	wg.Wait()
	close(winners)

	var won []string
	for owner := range winners {
		won = append(won, owner)
	}
	require.Len(t, won, 1, "exactly one claimant must win")

	lock, err := store.GetLock(ctx, "quest")
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, won[0], lock.Owner)
}

func TestLockOnUnknownSession(t *testing.T) {
	store := newTestStore(t)
	_, err := store.ClaimLock(context.Background(), "ghost", lockAt("alice", 300, time.Now().UTC()))
	require.Error(t, err)
	assert.Equal(t, domain.KindSessionMissing, domain.KindOf(err))
}

func TestGetLockNeverSeesPartialWrite(t *testing.T) {
	store := newTestStore(t)
	createTestSession(t, store, "quest")
	ctx := context.Background()

	// Readers racing a claim/release churn must see either a complete
	// lease or no lease, never a decode error from a half-written file.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, err := store.ClaimLock(ctx, "quest", lockAt("alice", 300, time.Now().UTC())); err != nil {
				continue
			}
			_ = store.ReleaseLock(ctx, "quest", "alice")
		}
		close(done)
	}()

	for {
		select {
		case <-done:
			wg.Wait()
			return
		default:
		}
		lock, err := store.GetLock(ctx, "quest")
		require.NoError(t, err)
		if lock != nil {
			assert.Equal(t, "alice", lock.Owner)
		}
	}
}
