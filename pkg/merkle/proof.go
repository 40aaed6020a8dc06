package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// InclusionProof is a self-contained membership proof for one fingerprint.
// Verification needs only the proof and a trusted root.
type InclusionProof struct {
	Fingerprint string      `json:"fingerprint"`
	LeafHash    string      `json:"leaf_hash"`
	Root        string      `json:"root"`
	Path        []ProofStep `json:"path"`
}

// ProofStep is one sibling on the path from leaf to root.
type ProofStep struct {
	Side        string `json:"side"` // "L" or "R": which side the sibling sits on
	SiblingHash string `json:"sibling_hash"`
}

// Prove returns the inclusion proof for the given fingerprint.
func (t *Tree) Prove(fingerprint string) (*InclusionProof, error) {
	idx := sort.SearchStrings(t.fingerprints, fingerprint)
	if idx >= len(t.fingerprints) || t.fingerprints[idx] != fingerprint {
		return nil, fmt.Errorf("fingerprint %s is not in the tree", fingerprint)
	}

	proof := &InclusionProof{
		Fingerprint: fingerprint,
		LeafHash:    leafHash(fingerprint),
		Root:        t.root,
	}

	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling >= len(level) {
			// Odd level: this node was paired with itself.
			sibling = idx
		}
		side := "R"
		if sibling < idx {
			side = "L"
		}
		proof.Path = append(proof.Path, ProofStep{Side: side, SiblingHash: level[sibling]})
		idx /= 2
	}
	return proof, nil
}

// Verify recomputes the root from the proof and checks it against the
// trusted root. An empty expectedRoot checks only internal consistency.
func Verify(proof *InclusionProof, expectedRoot string) bool {
	if expectedRoot != "" && proof.Root != expectedRoot {
		return false
	}
	if leafHash(proof.Fingerprint) != proof.LeafHash {
		return false
	}

	current := proof.LeafHash
	for _, step := range proof.Path {
		var combined []byte
		combined = append(combined, nodePrefix...)
		combined = append(combined, 0)
		if step.Side == "L" {
			combined = append(combined, hexToBytes(step.SiblingHash)...)
			combined = append(combined, hexToBytes(current)...)
		} else {
			combined = append(combined, hexToBytes(current)...)
			combined = append(combined, hexToBytes(step.SiblingHash)...)
		}
		h := sha256.Sum256(combined)
		current = hex.EncodeToString(h[:])
	}
	return current == proof.Root
}
