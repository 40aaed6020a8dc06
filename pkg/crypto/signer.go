package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/chittyos/chittychain/pkg/canonicalize"
	"github.com/chittyos/chittychain/pkg/evidence"
)

// SignatureMismatchError is raised only when a previously stored signature
// fails verification. It is treated as tamper evidence by callers.
type SignatureMismatchError struct {
	ArtifactID string
}

func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("signature mismatch for artifact %s: stored signature does not match payload", e.ArtifactID)
}

// Code returns the machine-readable reason code.
func (e *SignatureMismatchError) Code() string { return "SIGNATURE_MISMATCH" }

// VerifyPayload is the exact structure the ChittyVerify signature covers.
// Once a signature is stored it must never be recomputed with different
// inputs; the payload is therefore fully determined at signing time.
type VerifyPayload struct {
	ArtifactID  string                      `json:"artifact_id"`
	Fingerprint string                      `json:"fingerprint"`
	Timestamp   time.Time                   `json:"timestamp"`
	Status      evidence.ChittyVerifyStatus `json:"status"`
	Tier        evidence.Tier               `json:"tier"`
}

// Signer produces and verifies signatures over verification payloads.
// A PKI-backed implementation may be substituted for court-grade
// non-repudiation; the default is the symmetric keyed hash.
type Signer interface {
	Sign(p VerifyPayload) (string, error)
	Verify(p VerifyPayload, signature string) error
}

// HMACSigner is the keyed one-way implementation of Signer.
// The signing key is derived from a master key via HKDF-SHA256 with a
// per-purpose info string, so the verification key can never be confused
// with keys used for other subsystems.
type HMACSigner struct {
	key []byte
}

// hkdfInfo scopes derived keys to the ChittyVerify signature purpose.
const hkdfInfo = "chittychain/chittyverify/v1"

// NewHMACSigner derives a signing key from masterKey.
func NewHMACSigner(masterKey []byte) (*HMACSigner, error) {
	if len(masterKey) < 16 {
		return nil, errors.New("master key must be at least 16 bytes")
	}
	kdf := hkdf.New(sha256.New, masterKey, nil, []byte(hkdfInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return &HMACSigner{key: key}, nil
}

// Sign computes the keyed hash over the canonical payload form.
func (s *HMACSigner) Sign(p VerifyPayload) (string, error) {
	msg, err := canonicalize.JCS(p)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature and compares in constant time.
// A mismatch is returned as *SignatureMismatchError.
func (s *HMACSigner) Verify(p VerifyPayload, signature string) error {
	want, err := s.Sign(p)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return &SignatureMismatchError{ArtifactID: p.ArtifactID}
	}
	return nil
}
