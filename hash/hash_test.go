package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFormat(t *testing.T) {
	h := DefaultHasher()

	digest := h.HashString("hello")
	assert.Regexp(t, `^[0-9a-f]{64}$`, digest)
	assert.Equal(t, digest, h.Hash([]byte("hello")))
	assert.NotEqual(t, digest, h.HashString("hello!"))
}

func TestHashCanonicalJSONKeyOrderIndependent(t *testing.T) {
	h := DefaultHasher()

	a, err := h.HashCanonicalJSON([]byte(`{"a":1,"b":[true,null],"c":"x"}`))
	require.NoError(t, err)
	b, err := h.HashCanonicalJSON([]byte(`{"c":"x","b":[true,null],"a":1}`))
	require.NoError(t, err)

	assert.Equal(t, a, b)

	// Whitespace must not affect the digest either.
	c, err := h.HashCanonicalJSON([]byte(`{ "a": 1, "b": [ true, null ], "c": "x" }`))
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestHashCanonicalJSONInvalidInput(t *testing.T) {
	h := DefaultHasher()

	_, err := h.HashCanonicalJSON([]byte(`{"broken":`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "canonicalize")
}

func TestHashValue(t *testing.T) {
	h := DefaultHasher()

	fromValue, err := h.HashValue(map[string]interface{}{"b": 2, "a": 1})
	require.NoError(t, err)
	fromJSON, err := h.HashCanonicalJSON([]byte(`{"a":1,"b":2}`))
	require.NoError(t, err)

	assert.Equal(t, fromJSON, fromValue)
}
