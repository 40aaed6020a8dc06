// Package intake admits evidence into the ledger. The guard computes the
// content fingerprint, enforces the two dedup scopes (content globally,
// filename per case), and applies the admission policy before any artifact
// record exists.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/chittyos/chittychain/pkg/audit"
	"github.com/chittyos/chittychain/pkg/crypto"
	"github.com/chittyos/chittychain/pkg/evidence"
	"github.com/chittyos/chittychain/pkg/store"
)

// Submission is one intake request. Content carries the artifact bytes;
// Fingerprint may be supplied instead when the content was hashed upstream.
type Submission struct {
	CaseID             string
	SubmitterID        string
	EvidenceType       string
	Tier               evidence.Tier
	OriginalFilename   string
	Content            io.Reader
	Fingerprint        string
	CredibilityFactors []evidence.CredibilityFactor
	Metadata           map[string]interface{}
}

// Guard is the dedup and admission gate.
type Guard struct {
	store        store.ArtifactStore
	recorder     audit.Recorder
	reservations Reservation
	limiter      Limiter
	policy       *AdmissionPolicy
	profiles     *ProfileGate
	metadata     *MetadataValidator
	clock        func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithReservation sets the cross-process fingerprint reservation table.
func WithReservation(r Reservation) Option {
	return func(g *Guard) { g.reservations = r }
}

// WithLimiter sets the per-submitter rate limiter.
func WithLimiter(l Limiter) Option {
	return func(g *Guard) { g.limiter = l }
}

// WithPolicy sets the CEL admission policy.
func WithPolicy(p *AdmissionPolicy) Option {
	return func(g *Guard) { g.policy = p }
}

// WithProfileGate sets the per-jurisdiction profile enforcement.
func WithProfileGate(g *ProfileGate) Option {
	return func(gd *Guard) { gd.profiles = g }
}

// WithMetadataValidator sets the submission metadata validator.
func WithMetadataValidator(v *MetadataValidator) Option {
	return func(g *Guard) { g.metadata = v }
}

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(g *Guard) { g.clock = clock }
}

// NewGuard creates an intake guard over the artifact store.
func NewGuard(s store.ArtifactStore, rec audit.Recorder, opts ...Option) *Guard {
	g := &Guard{
		store:        s,
		recorder:     rec,
		reservations: NoopReservation{},
		limiter:      UnlimitedLimiter{},
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NormalizeFilename maps a filename to its canonical form: Unicode NFC,
// surrounding whitespace trimmed. The per-case uniqueness check runs over
// this form so visually identical names collide.
func NormalizeFilename(name string) string {
	return strings.TrimSpace(norm.NFC.String(name))
}

// Admit runs the full intake pipeline and creates the artifact record.
// On a duplicate, the same conflict reference is returned every time; no
// second artifact is ever created.
func (g *Guard) Admit(ctx context.Context, sub Submission) (*evidence.Artifact, error) {
	if err := evidence.ValidateCaseID(sub.CaseID); err != nil {
		return nil, err
	}
	if sub.SubmitterID == "" {
		return nil, errors.New("submitter reference required")
	}
	filename := NormalizeFilename(sub.OriginalFilename)
	if filename == "" {
		return nil, errors.New("original filename required")
	}

	if !g.limiter.Allow(sub.SubmitterID) {
		err := &RateLimitedError{SubmitterID: sub.SubmitterID}
		g.recorder.Record(ctx, sub.SubmitterID, "intake.admit", "", audit.Context{}, false, err.Error())
		return nil, err
	}

	if g.metadata != nil {
		if err := g.metadata.Validate(sub.Metadata); err != nil {
			g.recorder.Record(ctx, sub.SubmitterID, "intake.admit", "", audit.Context{}, false, err.Error())
			return nil, err
		}
	}

	policyInput := map[string]interface{}{
		"case_id":       sub.CaseID,
		"submitter_id":  sub.SubmitterID,
		"evidence_type": sub.EvidenceType,
		"tier":          string(sub.Tier),
		"filename":      filename,
	}

	if g.profiles != nil {
		if err := g.profiles.Check(sub.CaseID, sub.Tier, policyInput); err != nil {
			g.recorder.Record(ctx, sub.SubmitterID, "intake.admit", "", audit.Context{}, false, err.Error())
			return nil, err
		}
	}

	if g.policy != nil {
		if err := g.policy.Evaluate(policyInput); err != nil {
			g.recorder.Record(ctx, sub.SubmitterID, "intake.admit", "", audit.Context{}, false, err.Error())
			return nil, err
		}
	}

	fingerprint := sub.Fingerprint
	if fingerprint == "" {
		if sub.Content == nil {
			return nil, errors.New("submission carries neither content nor fingerprint")
		}
		fp, err := crypto.FingerprintReader(sub.Content)
		if err != nil {
			return nil, err
		}
		fingerprint = fp
	}

	reserved, err := g.reservations.Reserve(ctx, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("admit: %w", err)
	}
	if !reserved {
		// Another node is admitting the same content right now, or just
		// did. Resolve the conflict reference if the insert already landed.
		if existing, err := g.store.FindByFingerprint(ctx, fingerprint); err == nil {
			return nil, g.duplicateContent(ctx, sub, fingerprint, existing)
		}
		return nil, &DuplicateContentError{Fingerprint: fingerprint}
	}
	defer func() { _ = g.reservations.Release(ctx, fingerprint) }()

	artifact := &evidence.Artifact{
		ID:               evidence.NewArtifactID(),
		CaseID:           sub.CaseID,
		SubmitterID:      sub.SubmitterID,
		EvidenceType:     sub.EvidenceType,
		Tier:             sub.Tier,
		Weight:           evidence.Weight(sub.Tier, sub.CredibilityFactors, 0),
		Fingerprint:      fingerprint,
		OriginalFilename: filename,
		Source:           evidence.SourcePending,
		ChittyVerify:     evidence.ChittyUnverified,
		Minting:          evidence.MintPending,
		CreatedAt:        g.clock().UTC(),
	}

	if err := g.store.InsertArtifact(ctx, artifact); err != nil {
		var dup *store.DuplicateError
		if errors.As(err, &dup) {
			mapped := duplicateFromStore(dup, fingerprint, sub.CaseID, filename)
			g.recorder.Record(ctx, sub.SubmitterID, "intake.admit", dup.ExistingID, audit.Context{}, false, mapped.Error())
			return nil, mapped
		}
		return nil, fmt.Errorf("admit: %w", err)
	}

	g.recorder.Record(ctx, sub.SubmitterID, "intake.admit", artifact.ID, audit.Context{}, true,
		fmt.Sprintf("tier %s weight %.2f", artifact.Tier, artifact.Weight))
	return artifact, nil
}

func (g *Guard) duplicateContent(ctx context.Context, sub Submission, fingerprint string, existing *evidence.Artifact) error {
	err := &DuplicateContentError{
		Fingerprint:    fingerprint,
		ExistingID:     existing.ID,
		LastVerifiedAt: existing.LastVerifiedAt,
	}
	g.recorder.Record(ctx, sub.SubmitterID, "intake.admit", existing.ID, audit.Context{}, false, err.Error())
	return err
}
