package stablehash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashJSONKeyOrderIndependent(t *testing.T) {
	a, err := HashJSON([]byte(`{"b":2,"a":1,"nested":{"y":[1,2],"x":"v"}}`))
	require.NoError(t, err)
	b, err := HashJSON([]byte(`{"nested":{"x":"v","y":[1,2]},"a":1,"b":2}`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHashJSONWhitespaceIndependent(t *testing.T) {
	a, err := HashJSON([]byte(`{"a": 1, "b": [1, 2, 3]}`))
	require.NoError(t, err)
	b, err := HashJSON([]byte(`{"a":1,"b":[1,2,3]}`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHashJSONValueSensitive(t *testing.T) {
	a, err := HashJSON([]byte(`{"hp":12}`))
	require.NoError(t, err)
	b, err := HashJSON([]byte(`{"hp":13}`))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCanonicalPreservesNumbers(t *testing.T) {
	canon, err := Canonical([]byte(`{"xp":  1234567890123456789}`))
	require.NoError(t, err)
	assert.Equal(t, `{"xp":1234567890123456789}`, string(canon))
}

func TestHashRejectsInvalidJSON(t *testing.T) {
	_, err := HashJSON([]byte(`{"a":`))
	assert.Error(t, err)
}
