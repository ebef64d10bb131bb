package narrator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDMJSONPlainObject(t *testing.T) {
	doc := ParseDMJSON(`{"narration":"x","choices":[]}`)
	require.NotNil(t, doc)
	assert.Equal(t, "x", doc["narration"])
}

func TestParseDMJSONWrappedInProse(t *testing.T) {
	raw := "Here is your scene:\n```json\n{\"narration\":\"The door opens.\",\"hp\":12}\n```\nEnjoy!"
	doc := ParseDMJSON(raw)
	require.NotNil(t, doc)
	assert.Equal(t, "The door opens.", doc["narration"])
	// Numbers stay exact.
	assert.Equal(t, json.Number("12"), doc["hp"])
}

func TestParseDMJSONGarbage(t *testing.T) {
	assert.Nil(t, ParseDMJSON("no json here"))
	assert.Nil(t, ParseDMJSON("{broken"))
	assert.Nil(t, ParseDMJSON(`["an","array"]`))
}
