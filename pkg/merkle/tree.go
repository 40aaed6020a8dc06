// Package merkle builds membership proofs over the fingerprints sealed in a
// ledger block, so a holder of one artifact can prove inclusion to a third
// party without disclosing the rest of the block.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
)

// Domain-separation prefixes. Leaves and interior nodes hash under distinct
// prefixes so a leaf can never be replayed as a node.
const (
	leafPrefix = "chittychain:ledger:leaf:v1"
	nodePrefix = "chittychain:ledger:node:v1"
)

// Tree is a Merkle tree over a set of content fingerprints. Fingerprints are
// sorted before hashing, matching the order-independent aggregate the ledger
// uses, so any permutation of the same set yields the same root.
type Tree struct {
	fingerprints []string // sorted
	levels       [][]string
	root         string
}

// Build constructs the tree. At least one fingerprint is required.
func Build(fingerprints []string) (*Tree, error) {
	if len(fingerprints) == 0 {
		return nil, errors.New("merkle tree requires at least one fingerprint")
	}

	sorted := append([]string(nil), fingerprints...)
	sort.Strings(sorted)

	level := make([]string, len(sorted))
	for i, fp := range sorted {
		level[i] = leafHash(fp)
	}

	t := &Tree{fingerprints: sorted}
	for len(level) > 1 {
		t.levels = append(t.levels, level)
		level = nextLevel(level)
	}
	t.levels = append(t.levels, level)
	t.root = level[0]
	return t, nil
}

// Root returns the tree root as a hex digest.
func (t *Tree) Root() string { return t.root }

func leafHash(fingerprint string) string {
	var buf bytes.Buffer
	buf.WriteString(leafPrefix)
	buf.WriteByte(0)
	buf.WriteString(fingerprint)
	return sha256Hex(buf.Bytes())
}

func nodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodePrefix)
	buf.WriteByte(0)
	buf.Write(hexToBytes(left))
	buf.Write(hexToBytes(right))
	return sha256Hex(buf.Bytes())
}

func nextLevel(hashes []string) []string {
	if len(hashes)%2 != 0 {
		// Odd level: the last node is paired with itself.
		hashes = append(hashes, hashes[len(hashes)-1])
	}
	next := make([]string, len(hashes)/2)
	for i := 0; i < len(hashes); i += 2 {
		next[i/2] = nodeHash(hashes[i], hashes[i+1])
	}
	return next
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hexToBytes(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
