package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chittyos/chittychain/pkg/crypto"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	data := []byte("warranty deed, page 1")
	fp, err := s.Put(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, crypto.Fingerprint(data), fp)

	got, err := s.Get(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	ok, err := s.Exists(ctx, fp)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileStorePutIdempotent(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	data := []byte("same bytes")
	fp1, err := s.Put(ctx, data)
	require.NoError(t, err)
	fp2, err := s.Put(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
}

func TestFileStoreMissingAndInvalid(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(ctx, crypto.Fingerprint([]byte("never stored")))
	assert.Error(t, err)

	ok, err := s.Exists(ctx, crypto.Fingerprint([]byte("never stored")))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, "md5:abc")
	assert.Error(t, err)
	_, err = s.Get(ctx, "sha256:not-hex")
	assert.Error(t, err)
}
