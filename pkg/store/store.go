// Package store defines the transactional record store backing the evidence
// ledger. Three implementations are provided: in-memory (tests), SQLite
// (default single-node deployment) and Postgres.
//
// The store enforces the invariants the domain depends on:
//   - artifact fingerprints are globally unique and immutable once written
//   - original filenames are unique within a case
//   - status transitions are guarded optimistically against the prior status
//   - custody and audit records are append-only; no update or delete exists
//   - block append plus artifact status flips happen in one transaction
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chittyos/chittychain/pkg/evidence"
)

var (
	// ErrNotFound indicates the referenced record does not exist. Terminal,
	// never retried.
	ErrNotFound = errors.New("record not found")
	// ErrStaleStatus indicates an optimistic status guard failed because a
	// concurrent request already moved the record.
	ErrStaleStatus = errors.New("status changed concurrently")
	// ErrAlreadyResolved indicates a second resolution attempt on a
	// contradiction record, which is immutable after resolution.
	ErrAlreadyResolved = errors.New("contradiction already resolved")
	// ErrImmutableFingerprint indicates an attempt to change a persisted
	// fingerprint.
	ErrImmutableFingerprint = errors.New("fingerprint is immutable once persisted")
)

// DuplicateScope distinguishes the two admission uniqueness checks.
type DuplicateScope string

const (
	// ScopeContent is the global content-fingerprint check.
	ScopeContent DuplicateScope = "content"
	// ScopeFilename is the per-case original-filename check.
	ScopeFilename DuplicateScope = "filename"
)

// DuplicateError reports a failed admission uniqueness check. It carries the
// conflicting artifact so callers can short-circuit without re-uploading.
type DuplicateError struct {
	Scope          DuplicateScope
	ExistingID     string
	LastVerifiedAt *time.Time
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s: conflicts with artifact %s", e.Scope, e.ExistingID)
}

// AuditFilter narrows an audit query. Zero fields match everything.
type AuditFilter struct {
	ActorID    string
	ArtifactID string
	Limit      int
}

// ArtifactStore persists evidence artifacts.
type ArtifactStore interface {
	// InsertArtifact atomically checks both uniqueness scopes and inserts.
	// Returns *DuplicateError on conflict.
	InsertArtifact(ctx context.Context, a *evidence.Artifact) error
	GetArtifact(ctx context.Context, id string) (*evidence.Artifact, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (*evidence.Artifact, error)

	// UpdateSourceVerification moves source verification from prior to next.
	// Fails with ErrStaleStatus if the stored status is not prior.
	UpdateSourceVerification(ctx context.Context, id string, prior, next evidence.SourceVerification, at time.Time) error
	// UpdateChittyVerify moves the ChittyVerify status and stores the
	// signature and timestamp computed at decision time.
	UpdateChittyVerify(ctx context.Context, id string, prior, next evidence.ChittyVerifyStatus, signature string, at time.Time) error
	// UpdateMinting moves the minting status under the optimistic guard.
	UpdateMinting(ctx context.Context, id string, prior, next evidence.MintingStatus) error
	// UpdateWeight stores a recomputed evidentiary weight.
	UpdateWeight(ctx context.Context, id string, weight float64) error

	ListByMinting(ctx context.Context, status evidence.MintingStatus) ([]*evidence.Artifact, error)
	ListByCase(ctx context.Context, caseID string) ([]*evidence.Artifact, error)
}

// FactStore persists atomic facts.
type FactStore interface {
	InsertFact(ctx context.Context, f *evidence.AtomicFact) error
	GetFact(ctx context.Context, id string) (*evidence.AtomicFact, error)
	ListFactsByCase(ctx context.Context, caseID string) ([]*evidence.AtomicFact, error)
	ListFactsByArtifact(ctx context.Context, artifactID string) ([]*evidence.AtomicFact, error)
	// MarkContradicted links a losing fact to its contradiction record and
	// lowers its classification level. Fact text is never touched.
	MarkContradicted(ctx context.Context, factID, contradictionID, classification string) error
}

// CustodyStore is the append-only chain-of-custody log. There is no update
// or delete operation by design.
type CustodyStore interface {
	AppendCustody(ctx context.Context, e *evidence.CustodyEntry) (*evidence.CustodyEntry, error)
	ListCustody(ctx context.Context, artifactID string) ([]*evidence.CustodyEntry, error)
}

// ContradictionStore persists contradiction records.
type ContradictionStore interface {
	InsertContradiction(ctx context.Context, c *evidence.Contradiction) error
	GetContradiction(ctx context.Context, id string) (*evidence.Contradiction, error)
	// ResolveContradiction sets the winning fact exactly once.
	// Returns ErrAlreadyResolved on a second attempt.
	ResolveContradiction(ctx context.Context, id, winningFactID, method string, at time.Time) error
	ListUnresolved(ctx context.Context, caseID string) ([]*evidence.Contradiction, error)
	// ListContradictionsByCase returns every record for the case, resolved
	// or not, ordered by ID.
	ListContradictionsByCase(ctx context.Context, caseID string) ([]*evidence.Contradiction, error)
}

// AuditStore is the append-only audit trail. No update or delete exists.
type AuditStore interface {
	AppendAudit(ctx context.Context, e *evidence.AuditEntry) error
	// QueryAudit returns entries ordered by timestamp descending.
	QueryAudit(ctx context.Context, f AuditFilter) ([]*evidence.AuditEntry, error)
}

// BlockStore persists ledger blocks.
type BlockStore interface {
	// MintBlock appends the block and flips every listed artifact from
	// Ready to Minted in a single transaction. If any artifact is not
	// Ready the whole operation fails and nothing is written.
	MintBlock(ctx context.Context, b *evidence.Block) error
	HeadBlock(ctx context.Context) (*evidence.Block, error)
	ListBlocks(ctx context.Context) ([]*evidence.Block, error)
}

// Store is the full transactional record store consumed by the core.
type Store interface {
	ArtifactStore
	FactStore
	CustodyStore
	ContradictionStore
	AuditStore
	BlockStore
}
