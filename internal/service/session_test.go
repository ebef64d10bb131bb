package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
	"torchlight/internal/repository/file"
)

func newSessionFixture(t *testing.T) (*SessionService, *file.Store) {
	t.Helper()
	logger := discardLogger()
	store, err := file.New(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hp := 12
	require.NoError(t, store.CreateSession(context.Background(), DefaultTemplateSlug, models.SessionState{
		Character: DefaultTemplateSlug,
		Location:  "harbor",
		HP:        10,
		MaxHP:     &hp,
		Level:     1,
		Inventory: []string{"torch"},
	}))

	locks := NewLockService(store, 300, logger)
	return NewSessionService(store, locks, 5, 5, logger), store
}

func TestCreateClonesTemplate(t *testing.T) {
	sessions, store := newSessionFixture(t)
	ctx := context.Background()

	state, err := sessions.Create(ctx, "heist", "")
	require.NoError(t, err)
	assert.Equal(t, "heist", state.Character)
	assert.Equal(t, "harbor", state.Location)
	assert.Equal(t, []string{"torch"}, state.Inventory)
	assert.Equal(t, 0, state.Turn)
	assert.Equal(t, 0, state.LogIndex)

	// Both logs start with initialization content.
	counts, err := store.LogCounts(ctx, "heist")
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Transcript)
	assert.Equal(t, 1, counts.Changelog)
}

func TestCreateRejectsBadSlug(t *testing.T) {
	sessions, _ := newSessionFixture(t)

	for _, slug := range []string{"", "has space", "sl/ash", "dot.dot"} {
		_, err := sessions.Create(context.Background(), slug, "")
		require.Error(t, err, "slug %q", slug)
		assert.Equal(t, domain.KindSchemaViolation, domain.KindOf(err))
	}
}

func TestCreateDuplicateConflicts(t *testing.T) {
	sessions, _ := newSessionFixture(t)
	ctx := context.Background()

	_, err := sessions.Create(ctx, "heist", "")
	require.NoError(t, err)
	_, err = sessions.Create(ctx, "heist", "")
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestCreateUnknownTemplate(t *testing.T) {
	sessions, _ := newSessionFixture(t)

	_, err := sessions.Create(context.Background(), "heist", "no-such-template")
	require.Error(t, err)
	assert.Equal(t, domain.KindSessionMissing, domain.KindOf(err))
}

func TestTranscriptPagination(t *testing.T) {
	sessions, store := newSessionFixture(t)
	ctx := context.Background()

	lines := make([]string, 12)
	for i := range lines {
		lines[i] = fmt.Sprintf("scene %d", i)
	}
	require.NoError(t, store.AppendTranscript(ctx, DefaultTemplateSlug, lines))

	// Default tail: the last 5 entries.
	page, err := sessions.Transcript(ctx, DefaultTemplateSlug, 0, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 5)
	assert.Equal(t, "scene 7", page.Items[0].Text)
	assert.Equal(t, "scene 11", page.Items[4].Text)

	// Cursor paging walks forward from the start.
	page, err = sessions.Transcript(ctx, DefaultTemplateSlug, 4, "-1")
	require.NoError(t, err)
	require.Len(t, page.Items, 4)
	assert.Equal(t, "scene 0", page.Items[0].Text)
	require.NotEmpty(t, page.Cursor)

	page, err = sessions.Transcript(ctx, DefaultTemplateSlug, 4, page.Cursor)
	require.NoError(t, err)
	require.Len(t, page.Items, 4)
	assert.Equal(t, "scene 4", page.Items[0].Text)

	// The last page has no cursor.
	page, err = sessions.Transcript(ctx, DefaultTemplateSlug, 4, page.Cursor)
	require.NoError(t, err)
	require.Len(t, page.Items, 4)
	assert.Empty(t, page.Cursor)
}

func TestPromptSummarizesState(t *testing.T) {
	sessions, _ := newSessionFixture(t)

	prompt, err := sessions.Prompt(context.Background(), DefaultTemplateSlug)
	require.NoError(t, err)
	assert.Equal(t, "Turn 0 at harbor. HP 10/12. What do you do?", prompt.Prompt)
	assert.Equal(t, 0, prompt.TurnNumber)
	assert.Equal(t, "unlocked", prompt.LockStatus)
}
