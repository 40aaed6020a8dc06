// Package ledger implements the single-node minting engine: an ordered,
// hash-linked sequence of blocks over verified evidence artifacts.
//
// Single-writer, single-chain model. There is no peer replication or
// consensus; integrity comes from the hash linkage and the append-only
// block store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chittyos/chittychain/pkg/audit"
	"github.com/chittyos/chittychain/pkg/canonicalize"
	"github.com/chittyos/chittychain/pkg/evidence"
	"github.com/chittyos/chittychain/pkg/merkle"
	"github.com/chittyos/chittychain/pkg/store"
)

// genesisHash is the previous-hash value of the first block.
const genesisHash = "genesis"

// NotMintableError reports an artifact that failed the minting precondition.
type NotMintableError struct {
	ArtifactID string
	Status     evidence.MintingStatus
}

func (e *NotMintableError) Error() string {
	return fmt.Sprintf("artifact %s is not mintable: minting status %s", e.ArtifactID, e.Status)
}

// ChainReport is the result of a full chain validation walk.
type ChainReport struct {
	Valid  bool     `json:"valid"`
	Blocks int      `json:"blocks"`
	Errors []string `json:"errors,omitempty"`
}

// Store is the persistence surface the engine needs.
type Store interface {
	store.ArtifactStore
	store.BlockStore
}

// Engine mints blocks and validates the chain. A single mutex serializes
// writers; the store's transactional MintBlock is the backstop for any
// out-of-process writer.
type Engine struct {
	mu       sync.Mutex
	store    Store
	recorder audit.Recorder
	clock    func() time.Time
}

func NewEngine(s Store, rec audit.Recorder) *Engine {
	return &Engine{store: s, recorder: rec, clock: time.Now}
}

// WithClock overrides the clock for testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// blockPayload is the exact structure a block hash covers.
type blockPayload struct {
	PreviousHash  string    `json:"previous_hash"`
	Index         uint64    `json:"index"`
	AggregateHash string    `json:"aggregate_hash"`
	Timestamp     time.Time `json:"timestamp"`
}

// AggregateHash hashes a fingerprint set order-independently: the list is
// sorted before hashing so any permutation of the same set yields the same
// digest.
func AggregateHash(fingerprints []string) (string, error) {
	sorted := append([]string(nil), fingerprints...)
	sort.Strings(sorted)
	return canonicalize.CanonicalHash(sorted)
}

func blockHash(b *evidence.Block) (string, error) {
	return canonicalize.CanonicalHash(blockPayload{
		PreviousHash:  b.PreviousHash,
		Index:         b.Index,
		AggregateHash: b.AggregateHash,
		Timestamp:     b.CreatedAt,
	})
}

// Mint validates that every artifact is Ready, appends one block linking to
// the current head, and flips each artifact to Minted. The operation is
// all-or-nothing: one failing artifact aborts the whole block.
func (e *Engine) Mint(ctx context.Context, artifactIDs []string, actorID string) (*evidence.Block, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(artifactIDs) == 0 {
		return nil, errors.New("mint requires at least one artifact")
	}

	fingerprints := make([]string, 0, len(artifactIDs))
	for _, id := range artifactIDs {
		a, err := e.store.GetArtifact(ctx, id)
		if err != nil {
			e.recorder.Record(ctx, actorID, "ledger.mint", id, audit.Context{}, false, err.Error())
			return nil, fmt.Errorf("mint: artifact %s: %w", id, err)
		}
		if a.Minting != evidence.MintReady {
			err := &NotMintableError{ArtifactID: id, Status: a.Minting}
			e.recorder.Record(ctx, actorID, "ledger.mint", id, audit.Context{}, false, err.Error())
			return nil, err
		}
		fingerprints = append(fingerprints, a.Fingerprint)
	}

	agg, err := AggregateHash(fingerprints)
	if err != nil {
		return nil, fmt.Errorf("mint: aggregate hash: %w", err)
	}

	prevHash := genesisHash
	var index uint64 = 1
	head, err := e.store.HeadBlock(ctx)
	switch {
	case err == nil:
		prevHash = head.BlockHash
		index = head.Index + 1
	case errors.Is(err, store.ErrNotFound):
		// First block in the chain.
	default:
		return nil, fmt.Errorf("mint: head block: %w", err)
	}

	block := &evidence.Block{
		Index:         index,
		PreviousHash:  prevHash,
		AggregateHash: agg,
		ArtifactIDs:   append([]string(nil), artifactIDs...),
		CreatedAt:     e.clock().UTC(),
	}
	block.BlockHash, err = blockHash(block)
	if err != nil {
		return nil, fmt.Errorf("mint: block hash: %w", err)
	}

	if err := e.store.MintBlock(ctx, block); err != nil {
		e.recorder.Record(ctx, actorID, "ledger.mint", "", audit.Context{}, false, err.Error())
		return nil, fmt.Errorf("mint block %d: %w", index, err)
	}

	e.recorder.Record(ctx, actorID, "ledger.mint", "", audit.Context{}, true,
		fmt.Sprintf("block %d minted with %d artifacts", index, len(artifactIDs)))
	return block, nil
}

// ValidateChain walks the whole chain recomputing every link and hash. It
// reports the first divergence found and never attempts self-repair.
// Divergence is recorded as tamper evidence in the audit trail.
func (e *Engine) ValidateChain(ctx context.Context) (*ChainReport, error) {
	blocks, err := e.store.ListBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("validate chain: %w", err)
	}

	report := &ChainReport{Valid: true, Blocks: len(blocks)}
	fail := func(format string, args ...interface{}) {
		report.Valid = false
		report.Errors = append(report.Errors, fmt.Sprintf(format, args...))
	}

	prevHash := genesisHash
	var prevIndex uint64
	for _, b := range blocks {
		if b.Index != prevIndex+1 {
			fail("block %d: index out of sequence, expected %d", b.Index, prevIndex+1)
			break
		}
		if b.PreviousHash != prevHash {
			fail("block %d: previous hash mismatch", b.Index)
			break
		}

		agg, err := e.recomputeAggregate(ctx, b.ArtifactIDs)
		if err != nil {
			return nil, err
		}
		if agg != b.AggregateHash {
			fail("block %d: aggregate hash mismatch", b.Index)
			break
		}

		computed, err := blockHash(b)
		if err != nil {
			return nil, fmt.Errorf("validate chain: block %d: %w", b.Index, err)
		}
		if computed != b.BlockHash {
			fail("block %d: block hash mismatch", b.Index)
			break
		}

		prevHash = b.BlockHash
		prevIndex = b.Index
	}

	if !report.Valid {
		e.recorder.RecordSevere(ctx, "system", "ledger.validate", "", audit.Context{}, report.Errors[0])
	}
	return report, nil
}

func (e *Engine) recomputeAggregate(ctx context.Context, artifactIDs []string) (string, error) {
	fingerprints := make([]string, 0, len(artifactIDs))
	for _, id := range artifactIDs {
		a, err := e.store.GetArtifact(ctx, id)
		if err != nil {
			return "", fmt.Errorf("validate chain: artifact %s: %w", id, err)
		}
		fingerprints = append(fingerprints, a.Fingerprint)
	}
	return AggregateHash(fingerprints)
}

// InclusionProof builds a membership proof tying one artifact's fingerprint
// to the Merkle root of the block that sealed it. The proof can be checked
// offline with merkle.Verify against a root obtained out of band.
func (e *Engine) InclusionProof(ctx context.Context, blockIndex uint64, artifactID string) (*merkle.InclusionProof, error) {
	blocks, err := e.store.ListBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("inclusion proof: %w", err)
	}
	var block *evidence.Block
	for _, b := range blocks {
		if b.Index == blockIndex {
			block = b
			break
		}
	}
	if block == nil {
		return nil, fmt.Errorf("inclusion proof: block %d: %w", blockIndex, store.ErrNotFound)
	}

	var target string
	fingerprints := make([]string, 0, len(block.ArtifactIDs))
	for _, id := range block.ArtifactIDs {
		a, err := e.store.GetArtifact(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("inclusion proof: artifact %s: %w", id, err)
		}
		fingerprints = append(fingerprints, a.Fingerprint)
		if id == artifactID {
			target = a.Fingerprint
		}
	}
	if target == "" {
		return nil, fmt.Errorf("inclusion proof: artifact %s is not in block %d", artifactID, blockIndex)
	}

	tree, err := merkle.Build(fingerprints)
	if err != nil {
		return nil, fmt.Errorf("inclusion proof: %w", err)
	}
	return tree.Prove(target)
}

// Head returns the latest block, or nil when the chain is empty.
func (e *Engine) Head(ctx context.Context) (*evidence.Block, error) {
	head, err := e.store.HeadBlock(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return head, err
}
