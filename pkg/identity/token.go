package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TrustClaims extends standard JWT claims with the fields the identity
// service asserts about a submitter. Fields must align with the identity
// service's token issuer so attestations are consumable here unchanged.
type TrustClaims struct {
	jwt.RegisteredClaims
	TrustScore float64  `json:"trust_score"` // composite, 0–6
	Roles      []string `json:"roles,omitempty"`
}

// TokenDirectory resolves submitters from signed trust attestations issued
// by the identity service. Each attestation is a short-lived HS256 JWT whose
// subject is the submitter reference.
type TokenDirectory struct {
	key      []byte
	issuer   string
	audience string

	mu sync.RWMutex
	// tokens holds the latest attestation per submitter.
	tokens map[string]string
}

// NewTokenDirectory creates a directory validating attestations signed with
// key and issued by issuer for audience.
func NewTokenDirectory(key []byte, issuer, audience string) *TokenDirectory {
	return &TokenDirectory{
		key:      key,
		issuer:   issuer,
		audience: audience,
		tokens:   make(map[string]string),
	}
}

// Attest stores an attestation token for later resolution. The token is
// validated on Resolve, not here.
func (d *TokenDirectory) Attest(submitterID, token string) {
	d.mu.Lock()
	d.tokens[submitterID] = token
	d.mu.Unlock()
}

// IssueAttestation signs a trust attestation for a submitter. Exists for
// deployments where this process is also the issuer (single-node mode).
func (d *TokenDirectory) IssueAttestation(submitterID string, score float64, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := TrustClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   submitterID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    d.issuer,
			Audience:  jwt.ClaimStrings{d.audience},
		},
		TrustScore: score,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(d.key)
}

// Resolve validates the submitter's attestation and returns the asserted
// trust score. Expired or tampered attestations fail resolution.
func (d *TokenDirectory) Resolve(ctx context.Context, submitterID string) (*Submitter, error) {
	d.mu.RLock()
	raw, ok := d.tokens[submitterID]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSubmitter, submitterID)
	}

	token, err := jwt.ParseWithClaims(raw, &TrustClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Header["alg"])
		}
		return d.key, nil
	}, jwt.WithIssuer(d.issuer), jwt.WithAudience(d.audience))
	if err != nil {
		return nil, fmt.Errorf("trust attestation for %s: %w", submitterID, err)
	}

	claims, ok := token.Claims.(*TrustClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	if claims.Subject != submitterID {
		return nil, fmt.Errorf("trust attestation subject %q does not match %q", claims.Subject, submitterID)
	}

	return &Submitter{
		ID:         submitterID,
		TrustScore: claims.TrustScore,
		Level:      LevelForScore(claims.TrustScore),
	}, nil
}
