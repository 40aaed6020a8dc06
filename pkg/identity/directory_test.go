package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  VerificationLevel
	}{
		{0, LevelL0Unverified},
		{3.59, LevelL0Unverified},
		{3.6, LevelL1Bronze},
		{4.2, LevelL2Silver},
		{4.79, LevelL2Silver},
		{4.8, LevelL3Gold},
		{5.4, LevelL4Platinum},
		{6.0, LevelL4Platinum},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForScore(tt.score), "score %v", tt.score)
	}
}

func TestStaticDirectoryResolve(t *testing.T) {
	ctx := context.Background()
	d := NewStaticDirectory(map[string]float64{"REG-BANK01": 4.5})

	sub, err := d.Resolve(ctx, "REG-BANK01")
	require.NoError(t, err)
	assert.Equal(t, 4.5, sub.TrustScore)
	assert.Equal(t, LevelL2Silver, sub.Level)

	_, err = d.Resolve(ctx, "REG-NOBODY")
	assert.ErrorIs(t, err, ErrUnknownSubmitter)
}

func TestTokenDirectoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	key := []byte("test-signing-key-0123456789abcdef")
	d := NewTokenDirectory(key, "chittyid", "chittychain")

	token, err := d.IssueAttestation("REG-BANK01", 5.1, time.Hour)
	require.NoError(t, err)
	d.Attest("REG-BANK01", token)

	sub, err := d.Resolve(ctx, "REG-BANK01")
	require.NoError(t, err)
	assert.Equal(t, 5.1, sub.TrustScore)
	assert.Equal(t, LevelL3Gold, sub.Level)
}

func TestTokenDirectoryRejectsTampered(t *testing.T) {
	ctx := context.Background()
	d := NewTokenDirectory([]byte("test-signing-key-0123456789abcdef"), "chittyid", "chittychain")

	// Signed with a different key.
	forger := NewTokenDirectory([]byte("another-key-entirely-000000000000"), "chittyid", "chittychain")
	forged, err := forger.IssueAttestation("REG-BANK01", 6.0, time.Hour)
	require.NoError(t, err)
	d.Attest("REG-BANK01", forged)

	_, err = d.Resolve(ctx, "REG-BANK01")
	assert.Error(t, err)
}

func TestTokenDirectoryRejectsExpired(t *testing.T) {
	ctx := context.Background()
	key := []byte("test-signing-key-0123456789abcdef")
	d := NewTokenDirectory(key, "chittyid", "chittychain")

	token, err := d.IssueAttestation("REG-BANK01", 5.0, -time.Minute)
	require.NoError(t, err)
	d.Attest("REG-BANK01", token)

	_, err = d.Resolve(ctx, "REG-BANK01")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenDirectorySubjectMustMatch(t *testing.T) {
	ctx := context.Background()
	key := []byte("test-signing-key-0123456789abcdef")
	d := NewTokenDirectory(key, "chittyid", "chittychain")

	token, err := d.IssueAttestation("REG-OTHER", 6.0, time.Hour)
	require.NoError(t, err)
	// Attestation for one submitter replayed under another reference.
	d.Attest("REG-BANK01", token)

	_, err = d.Resolve(ctx, "REG-BANK01")
	assert.Error(t, err)
}

func TestTokenDirectoryConcurrentAttestAndResolve(t *testing.T) {
	ctx := context.Background()
	key := []byte("test-signing-key-0123456789abcdef")
	d := NewTokenDirectory(key, "chittyid", "chittychain")

	token, err := d.IssueAttestation("REG-BANK01", 5.1, time.Hour)
	require.NoError(t, err)
	d.Attest("REG-BANK01", token)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d.Attest("REG-BANK01", token)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sub, err := d.Resolve(ctx, "REG-BANK01")
				if assert.NoError(t, err) {
					assert.Equal(t, 5.1, sub.TrustScore)
				}
			}
		}()
	}
	wg.Wait()
}
