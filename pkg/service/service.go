// Package service wires the evidence ledger components into one facade:
// intake, verification, custody, contradiction resolution, minting and the
// audit trail, behind a single dependency-injected type with no ambient
// state.
package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/chittyos/chittychain/pkg/audit"
	"github.com/chittyos/chittychain/pkg/blob"
	"github.com/chittyos/chittychain/pkg/contradiction"
	"github.com/chittyos/chittychain/pkg/crypto"
	"github.com/chittyos/chittychain/pkg/custody"
	"github.com/chittyos/chittychain/pkg/evidence"
	"github.com/chittyos/chittychain/pkg/identity"
	"github.com/chittyos/chittychain/pkg/intake"
	"github.com/chittyos/chittychain/pkg/ledger"
	"github.com/chittyos/chittychain/pkg/merkle"
	"github.com/chittyos/chittychain/pkg/observability"
	"github.com/chittyos/chittychain/pkg/store"
	"github.com/chittyos/chittychain/pkg/verify"
)

// Service is the evidence ledger core.
type Service struct {
	store          store.Store
	guard          *intake.Guard
	machine        *verify.Machine
	custody        *custody.Log
	contradictions *contradiction.Engine
	ledger         *ledger.Engine
	recorder       audit.Recorder
	exporter       *audit.Exporter
	blobs          blob.Store
	obs            *observability.Provider
	logger         *slog.Logger
	clock          func() time.Time
}

// Config assembles a Service. Store, Signer and Directory are required;
// everything else has working defaults.
type Config struct {
	Store     store.Store
	Signer    crypto.Signer
	Directory identity.Directory
	// Blobs, when set, receives submission content before admission.
	Blobs blob.Store
	// Observability, when set, traces every operation.
	Observability *observability.Provider
	Logger        *slog.Logger
	// CorroborationThreshold overrides the minting weight floor.
	CorroborationThreshold float64
	// IntakeOptions configure the guard (rate limiter, policy, schema).
	IntakeOptions []intake.Option
}

// New assembles the service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("service requires a record store")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("service requires a signer")
	}
	if cfg.Directory == nil {
		return nil, fmt.Errorf("service requires an identity directory")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	recorder := audit.NewStoreRecorder(cfg.Store, logger)
	machine := verify.NewMachine(cfg.Store, cfg.Signer, cfg.Directory, recorder)
	if cfg.CorroborationThreshold > 0 {
		machine = machine.WithCorroborationThreshold(cfg.CorroborationThreshold)
	}

	return &Service{
		store:          cfg.Store,
		guard:          intake.NewGuard(cfg.Store, recorder, cfg.IntakeOptions...),
		machine:        machine,
		custody:        custody.NewLog(cfg.Store, recorder),
		contradictions: contradiction.NewEngine(cfg.Store, recorder),
		ledger:         ledger.NewEngine(cfg.Store, recorder),
		recorder:       recorder,
		exporter:       audit.NewExporter(recorder),
		blobs:          cfg.Blobs,
		obs:            cfg.Observability,
		logger:         logger.With("component", "service"),
		clock:          time.Now,
	}, nil
}

func (s *Service) track(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if s.obs == nil {
		return ctx, func(error) {}
	}
	return s.obs.TrackOperation(ctx, name, attrs...)
}

// Admit runs the intake pipeline. When a blob store is configured the
// content is persisted first and the admission carries its fingerprint, so
// record and blob can never diverge.
func (s *Service) Admit(ctx context.Context, sub intake.Submission) (a *evidence.Artifact, err error) {
	ctx, done := s.track(ctx, "intake.admit", attribute.String("case_id", sub.CaseID))
	defer func() { done(err) }()

	if s.blobs != nil && sub.Content != nil && sub.Fingerprint == "" {
		data, readErr := io.ReadAll(sub.Content)
		if readErr != nil {
			return nil, fmt.Errorf("read submission content: %w", readErr)
		}
		fp, putErr := s.blobs.Put(ctx, data)
		if putErr != nil {
			return nil, fmt.Errorf("store submission content: %w", putErr)
		}
		sub.Fingerprint = fp
		sub.Content = bytes.NewReader(data)
	}

	a, err = s.guard.Admit(ctx, sub)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "artifact admitted",
		"artifact_id", a.ID, "case_id", a.CaseID, "tier", a.Tier, "weight", a.Weight)
	return a, nil
}

// RecordSourceVerification records the source review outcome. On success,
// auto-verifiable tiers immediately attempt the ChittyVerify lock; a trust
// shortfall there surfaces as the machine's rejection.
func (s *Service) RecordSourceVerification(ctx context.Context, artifactID, actorID string, outcome evidence.SourceVerification) (err error) {
	ctx, done := s.track(ctx, "verify.source", attribute.String("artifact_id", artifactID))
	defer func() { done(err) }()

	if err = s.machine.RecordSourceVerification(ctx, artifactID, actorID, outcome); err != nil {
		return err
	}
	if outcome != evidence.SourceVerified {
		return nil
	}

	a, getErr := s.store.GetArtifact(ctx, artifactID)
	if getErr != nil {
		return getErr
	}
	if !verify.AutoVerifiable(a.Tier) {
		return nil
	}
	if _, err = s.machine.ChittyVerify(ctx, artifactID, actorID); err != nil {
		return err
	}
	return nil
}

// ChittyVerify applies the trust lock explicitly, for tiers that need a
// reviewer decision.
func (s *Service) ChittyVerify(ctx context.Context, artifactID, actorID string) (a *evidence.Artifact, err error) {
	ctx, done := s.track(ctx, "verify.chitty", attribute.String("artifact_id", artifactID))
	defer func() { done(err) }()
	return s.machine.ChittyVerify(ctx, artifactID, actorID)
}

// RejectVerification marks the artifact ChittyRejected.
func (s *Service) RejectVerification(ctx context.Context, artifactID, actorID, reason string) error {
	return s.machine.Reject(ctx, artifactID, actorID, reason)
}

// VerifyStoredSignature re-checks a stored trust lock. A mismatch is tamper
// evidence.
func (s *Service) VerifyStoredSignature(ctx context.Context, artifactID string) error {
	return s.machine.VerifyStoredSignature(ctx, artifactID)
}

// EvaluateMinting moves a locked artifact toward minting.
func (s *Service) EvaluateMinting(ctx context.Context, artifactID, actorID string) (evidence.MintingStatus, error) {
	return s.machine.EvaluateMinting(ctx, artifactID, actorID)
}

// Corroborate recomputes an artifact's weight with the given credibility
// factors and re-evaluates a parked artifact.
func (s *Service) Corroborate(ctx context.Context, artifactID, actorID string, factors []evidence.CredibilityFactor) (st evidence.MintingStatus, err error) {
	ctx, done := s.track(ctx, "verify.corroborate", attribute.String("artifact_id", artifactID))
	defer func() { done(err) }()

	a, err := s.store.GetArtifact(ctx, artifactID)
	if err != nil {
		return "", err
	}
	w := evidence.Weight(a.Tier, factors, 0)
	if err = s.store.UpdateWeight(ctx, artifactID, w); err != nil {
		return "", err
	}
	return s.machine.Recorroborate(ctx, artifactID, actorID)
}

// RecordCustody appends one custodial handoff.
func (s *Service) RecordCustody(ctx context.Context, artifactID, custodianID string, h custody.Handoff) (*evidence.CustodyEntry, error) {
	return s.custody.Append(ctx, artifactID, custodianID, h)
}

// CustodyLog lists an artifact's custody entries in insertion order.
func (s *Service) CustodyLog(ctx context.Context, artifactID string) ([]*evidence.CustodyEntry, error) {
	return s.custody.List(ctx, artifactID)
}

// AddFact registers an extracted atomic fact under its parent artifact.
// The fact inherits the parent's tier weight adjusted by its own factors.
func (s *Service) AddFact(ctx context.Context, f *evidence.AtomicFact) (*evidence.AtomicFact, error) {
	parent, err := s.store.GetArtifact(ctx, f.ArtifactID)
	if err != nil {
		return nil, fmt.Errorf("add fact: parent artifact: %w", err)
	}
	if f.ID == "" {
		f.ID = evidence.NewFactID()
	}
	if f.Weight == 0 {
		f.Weight = evidence.Weight(parent.Tier, f.CredibilityFactors, 0)
	}
	if f.ExtractedAt.IsZero() {
		f.ExtractedAt = s.clock().UTC()
	}
	if f.Minting == "" {
		f.Minting = evidence.MintPending
	}
	if err := s.store.InsertFact(ctx, f); err != nil {
		return nil, fmt.Errorf("add fact: %w", err)
	}
	return f, nil
}

// DetectContradictions scans a case for new conflicts.
func (s *Service) DetectContradictions(ctx context.Context, caseID, actorID string) ([]*evidence.Contradiction, error) {
	ctx, done := s.track(ctx, "contradiction.detect", attribute.String("case_id", caseID))
	var err error
	defer func() { done(err) }()
	out, err := s.contradictions.Detect(ctx, caseID, actorID)
	return out, err
}

// ResolveContradiction applies the resolution cascade.
func (s *Service) ResolveContradiction(ctx context.Context, contradictionID, actorID string) (*contradiction.Outcome, error) {
	return s.contradictions.Resolve(ctx, contradictionID, actorID)
}

// UnresolvedContradictions lists conflicts awaiting human review.
func (s *Service) UnresolvedContradictions(ctx context.Context, caseID string) ([]*evidence.Contradiction, error) {
	return s.contradictions.ListUnresolved(ctx, caseID)
}

// Mint appends one block over the given Ready artifacts.
func (s *Service) Mint(ctx context.Context, artifactIDs []string, actorID string) (b *evidence.Block, err error) {
	ctx, done := s.track(ctx, "ledger.mint")
	defer func() { done(err) }()
	b, err = s.ledger.Mint(ctx, artifactIDs, actorID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "block minted", "index", b.Index, "artifacts", len(b.ArtifactIDs))
	return b, nil
}

// MintAllReady mints every Ready artifact into a single block. Returns nil
// without error when nothing is ready.
func (s *Service) MintAllReady(ctx context.Context, actorID string) (*evidence.Block, error) {
	ready, err := s.store.ListByMinting(ctx, evidence.MintReady)
	if err != nil {
		return nil, err
	}
	if len(ready) == 0 {
		return nil, nil
	}
	ids := make([]string, len(ready))
	for i, a := range ready {
		ids[i] = a.ID
	}
	return s.Mint(ctx, ids, actorID)
}

// InclusionProof builds a Merkle membership proof for one minted artifact.
func (s *Service) InclusionProof(ctx context.Context, blockIndex uint64, artifactID string) (*merkle.InclusionProof, error) {
	return s.ledger.InclusionProof(ctx, blockIndex, artifactID)
}

// ValidateChain walks the whole chain and reports the first divergence.
func (s *Service) ValidateChain(ctx context.Context) (r *ledger.ChainReport, err error) {
	ctx, done := s.track(ctx, "ledger.validate")
	defer func() { done(err) }()
	return s.ledger.ValidateChain(ctx)
}

// Artifact fetches one artifact.
func (s *Service) Artifact(ctx context.Context, id string) (*evidence.Artifact, error) {
	return s.store.GetArtifact(ctx, id)
}

// CaseArtifacts lists a case's artifacts oldest-first.
func (s *Service) CaseArtifacts(ctx context.Context, caseID string) ([]*evidence.Artifact, error) {
	return s.store.ListByCase(ctx, caseID)
}

// AuditTrail queries the audit trail newest-first.
func (s *Service) AuditTrail(ctx context.Context, f store.AuditFilter) ([]*evidence.AuditEntry, error) {
	return s.recorder.Query(ctx, f)
}

// ExportAudit writes the audit trail as JSON lines with a verification
// checksum.
func (s *Service) ExportAudit(ctx context.Context, f store.AuditFilter, w io.Writer) (*audit.ExportResult, error) {
	return s.exporter.Export(ctx, f, w)
}
