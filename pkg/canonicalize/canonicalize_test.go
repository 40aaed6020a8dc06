package canonicalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCSSortsKeys(t *testing.T) {
	out, err := JCS(map[string]interface{}{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(out))
}

func TestJCSNoHTMLEscaping(t *testing.T) {
	out, err := JCS(map[string]string{"k": "<x&y>"})
	require.NoError(t, err)
	assert.Equal(t, `{"k":"<x&y>"}`, string(out))
}

func TestCanonicalHashDeterministic(t *testing.T) {
	type rec struct {
		ID   string `json:"id"`
		Seq  int    `json:"seq"`
		Note string `json:"note"`
	}
	v := rec{ID: "ART-AAAA0001", Seq: 7, Note: "deposit slip"}

	h1, err := CanonicalHash(v)
	require.NoError(t, err)
	h2, err := CanonicalHash(v)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestCanonicalHashOrderIndependentForMaps(t *testing.T) {
	h1, err := CanonicalHash(map[string]int{"x": 1, "y": 2, "z": 3})
	require.NoError(t, err)
	h2, err := CanonicalHash(map[string]int{"z": 3, "x": 1, "y": 2})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}
