package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadJSONToleratesBOM(t *testing.T) {
	store := newTestStore(t)
	createTestSession(t, store, "quest")
	ctx := context.Background()

	// Hand-edited state files sometimes arrive with a UTF-8 BOM.
	path := filepath.Join(store.sessionDir("quest"), stateFile)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append([]byte("\uFEFF"), raw...), 0o644))

	state, err := store.LoadState(ctx, "quest")
	require.NoError(t, err)
	assert.Equal(t, "quest", state.Character)
}
