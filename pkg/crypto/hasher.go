// Package crypto implements the keyed signature scheme backing the
// ChittyVerify non-repudiation record, plus deterministic content hashing.
//
// The signature is a symmetric keyed hash (HMAC-SHA256) over the RFC 8785
// canonical form of the verification payload. A certificate/PKI service can
// be substituted through the Signer interface when court-grade asymmetric
// signing is required.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/chittyos/chittychain/pkg/canonicalize"
)

// Hasher provides deterministic hashing of structured records.
type Hasher interface {
	Hash(v interface{}) (string, error)
}

// CanonicalHasher hashes the RFC 8785 canonical JSON form of a value.
type CanonicalHasher struct{}

func NewCanonicalHasher() *CanonicalHasher { return &CanonicalHasher{} }

func (h *CanonicalHasher) Hash(v interface{}) (string, error) {
	digest, err := canonicalize.CanonicalHash(v)
	if err != nil {
		return "", fmt.Errorf("canonical serialization failed: %w", err)
	}
	return digest, nil
}

// FingerprintReader computes the content fingerprint of an artifact stream.
// The fingerprint is the hex SHA-256 digest prefixed with the algorithm.
func FingerprintReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("fingerprint read failed: %w", err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

// Fingerprint computes the content fingerprint of raw bytes.
func Fingerprint(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}
