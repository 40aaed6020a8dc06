package evidence

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Public identifier formats, stable across external collaborators:
//
//	ART-<random8>       artifact
//	FACT-<random8>      atomic fact
//	CONFLICT-<random6>  contradiction
const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewArtifactID generates a fresh artifact identifier.
func NewArtifactID() string { return "ART-" + randomToken(8) }

// NewFactID generates a fresh atomic-fact identifier.
func NewFactID() string { return "FACT-" + randomToken(8) }

// NewContradictionID generates a fresh contradiction identifier.
func NewContradictionID() string { return "CONFLICT-" + randomToken(6) }

func randomToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("evidence: rand failed: %v", err))
	}
	var b strings.Builder
	b.Grow(n)
	for _, c := range buf {
		b.WriteByte(idAlphabet[int(c)%len(idAlphabet)])
	}
	return b.String()
}

// ValidArtifactID reports whether s has the ART-<random8> shape.
func ValidArtifactID(s string) bool { return validToken(s, "ART-", 8) }

// ValidFactID reports whether s has the FACT-<random8> shape.
func ValidFactID(s string) bool { return validToken(s, "FACT-", 8) }

// ValidContradictionID reports whether s has the CONFLICT-<random6> shape.
func ValidContradictionID(s string) bool { return validToken(s, "CONFLICT-", 6) }

func validToken(s, prefix string, n int) bool {
	if !strings.HasPrefix(s, prefix) || len(s) != len(prefix)+n {
		return false
	}
	for _, r := range s[len(prefix):] {
		if !strings.ContainsRune(idAlphabet, r) {
			return false
		}
	}
	return true
}
