// Package verify implements the two-stage verification state machine:
// external source verification followed by ChittyVerify, the immutable
// off-chain trust lock that gates minting.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chittyos/chittychain/pkg/audit"
	"github.com/chittyos/chittychain/pkg/crypto"
	"github.com/chittyos/chittychain/pkg/evidence"
	"github.com/chittyos/chittychain/pkg/identity"
	"github.com/chittyos/chittychain/pkg/store"
)

const (
	// financialTrustThreshold is the composite trust score (0–6) a
	// financial-institution submitter must clear for auto ChittyVerify.
	financialTrustThreshold = 4.0

	// DefaultCorroborationThreshold is the weight below which an artifact
	// cannot proceed to minting without corroborating evidence.
	DefaultCorroborationThreshold = 0.70
)

// Machine drives artifact verification transitions. Every attempt, approved
// or not, is written to the audit trail. Status flips go through the store's
// optimistic guards so concurrent attempts cannot double-apply.
type Machine struct {
	store     store.ArtifactStore
	signer    crypto.Signer
	directory identity.Directory
	recorder  audit.Recorder
	clock     func() time.Time

	corroborationThreshold float64
}

// NewMachine wires the verification state machine.
func NewMachine(s store.ArtifactStore, signer crypto.Signer, dir identity.Directory, rec audit.Recorder) *Machine {
	return &Machine{
		store:                  s,
		signer:                 signer,
		directory:              dir,
		recorder:               rec,
		clock:                  time.Now,
		corroborationThreshold: DefaultCorroborationThreshold,
	}
}

// WithClock overrides the clock for testing.
func (m *Machine) WithClock(clock func() time.Time) *Machine {
	m.clock = clock
	return m
}

// WithCorroborationThreshold overrides the minting weight threshold.
func (m *Machine) WithCorroborationThreshold(t float64) *Machine {
	m.corroborationThreshold = t
	return m
}

// RecordSourceVerification records the outcome of external source review.
// Only a Pending artifact can be moved; the transition is not reversible
// through this API.
func (m *Machine) RecordSourceVerification(ctx context.Context, artifactID, actorID string, outcome evidence.SourceVerification) error {
	if outcome != evidence.SourceVerified && outcome != evidence.SourceFailed {
		return fmt.Errorf("invalid source verification outcome %q", outcome)
	}

	now := m.clock().UTC()
	err := m.store.UpdateSourceVerification(ctx, artifactID, evidence.SourcePending, outcome, now)
	if err != nil {
		m.recorder.Record(ctx, actorID, "verify.source", artifactID, audit.Context{}, false, err.Error())
		return fmt.Errorf("source verification for %s: %w", artifactID, err)
	}

	m.recorder.Record(ctx, actorID, "verify.source", artifactID, audit.Context{}, true, string(outcome))
	return nil
}

// AutoVerifiable reports whether the tier resolves ChittyVerify without an
// explicit reviewer action once source verification completes.
func AutoVerifiable(t evidence.Tier) bool {
	switch t {
	case evidence.TierSelfAuthenticating, evidence.TierGovernment, evidence.TierFinancialInstitution:
		return true
	}
	return false
}

// ChittyVerify applies the trust-lock decision rules in order:
//
//  1. a content fingerprint is required, always
//  2. source verification must have completed; ChittyVerified never
//     precedes SourceVerified
//  3. FINANCIAL_INSTITUTION artifacts additionally require the submitter's
//     composite trust score to clear the threshold; falling short marks the
//     artifact Rejected, not merely failed
//
// Approval computes the signature over the canonical payload and stores it
// with the decision timestamp. The signature is never recomputed afterwards.
func (m *Machine) ChittyVerify(ctx context.Context, artifactID, actorID string) (*evidence.Artifact, error) {
	a, err := m.store.GetArtifact(ctx, artifactID)
	if err != nil {
		m.recorder.Record(ctx, actorID, "verify.chitty", artifactID, audit.Context{}, false, err.Error())
		return nil, fmt.Errorf("chittyverify %s: %w", artifactID, err)
	}

	if err := m.decide(ctx, a); err != nil {
		var trust *TrustThresholdError
		if errors.As(err, &trust) {
			// Trust shortfall is a terminal decision, not a retryable failure.
			if rejectErr := m.store.UpdateChittyVerify(ctx, artifactID, evidence.ChittyUnverified, evidence.ChittyRejected, "", m.clock().UTC()); rejectErr != nil {
				m.recorder.Record(ctx, actorID, "verify.chitty", artifactID, audit.Context{}, false, rejectErr.Error())
				return nil, fmt.Errorf("chittyverify %s: %w", artifactID, rejectErr)
			}
			m.recorder.Record(ctx, actorID, "verify.chitty", artifactID, audit.Context{}, false, "trust threshold not met")
			return nil, err
		}
		m.recorder.Record(ctx, actorID, "verify.chitty", artifactID, audit.Context{}, false, err.Error())
		return nil, err
	}

	now := m.clock().UTC()
	sig, err := m.signer.Sign(crypto.VerifyPayload{
		ArtifactID:  a.ID,
		Fingerprint: a.Fingerprint,
		Timestamp:   now,
		Status:      evidence.ChittyVerified,
		Tier:        a.Tier,
	})
	if err != nil {
		m.recorder.Record(ctx, actorID, "verify.chitty", artifactID, audit.Context{}, false, err.Error())
		return nil, fmt.Errorf("sign verification payload for %s: %w", artifactID, err)
	}

	if err := m.store.UpdateChittyVerify(ctx, artifactID, evidence.ChittyUnverified, evidence.ChittyVerified, sig, now); err != nil {
		m.recorder.Record(ctx, actorID, "verify.chitty", artifactID, audit.Context{}, false, err.Error())
		return nil, fmt.Errorf("chittyverify %s: %w", artifactID, err)
	}

	m.recorder.Record(ctx, actorID, "verify.chitty", artifactID, audit.Context{}, true, "trust lock applied")
	return m.store.GetArtifact(ctx, artifactID)
}

// Reject marks an artifact ChittyRejected. Rejection carries no signature.
func (m *Machine) Reject(ctx context.Context, artifactID, actorID, reason string) error {
	now := m.clock().UTC()
	if err := m.store.UpdateChittyVerify(ctx, artifactID, evidence.ChittyUnverified, evidence.ChittyRejected, "", now); err != nil {
		m.recorder.Record(ctx, actorID, "verify.reject", artifactID, audit.Context{}, false, err.Error())
		return fmt.Errorf("reject %s: %w", artifactID, err)
	}
	m.recorder.Record(ctx, actorID, "verify.reject", artifactID, audit.Context{}, true, reason)
	return nil
}

func (m *Machine) decide(ctx context.Context, a *evidence.Artifact) error {
	if a.Fingerprint == "" {
		return &MissingFingerprintError{ArtifactID: a.ID}
	}
	if a.ChittyVerify != evidence.ChittyUnverified {
		return &PreconditionError{ArtifactID: a.ID, Reason: fmt.Sprintf("already %s", a.ChittyVerify)}
	}
	if a.Source != evidence.SourceVerified {
		return &PreconditionError{ArtifactID: a.ID, Reason: fmt.Sprintf("requires completed source verification, have %s", a.Source)}
	}

	if a.Tier == evidence.TierFinancialInstitution {
		sub, err := m.directory.Resolve(ctx, a.SubmitterID)
		if err != nil {
			return fmt.Errorf("resolve submitter %s: %w", a.SubmitterID, err)
		}
		if sub.TrustScore < financialTrustThreshold {
			return &TrustThresholdError{SubmitterID: a.SubmitterID, Score: sub.TrustScore, Threshold: financialTrustThreshold}
		}
	}
	return nil
}

// VerifyStoredSignature recomputes the stored signature from the persisted
// decision inputs. A mismatch is tamper evidence: it is audited at high
// severity and returned as *crypto.SignatureMismatchError.
func (m *Machine) VerifyStoredSignature(ctx context.Context, artifactID string) error {
	a, err := m.store.GetArtifact(ctx, artifactID)
	if err != nil {
		return fmt.Errorf("verify signature %s: %w", artifactID, err)
	}
	if a.ChittyVerify != evidence.ChittyVerified || a.ChittySignature == "" || a.ChittyVerifiedAt == nil {
		return &PreconditionError{ArtifactID: artifactID, Reason: "no stored trust lock to verify"}
	}

	err = m.signer.Verify(crypto.VerifyPayload{
		ArtifactID:  a.ID,
		Fingerprint: a.Fingerprint,
		Timestamp:   *a.ChittyVerifiedAt,
		Status:      evidence.ChittyVerified,
		Tier:        a.Tier,
	}, a.ChittySignature)

	var mismatch *crypto.SignatureMismatchError
	if errors.As(err, &mismatch) {
		m.recorder.RecordSevere(ctx, "system", "verify.signature", artifactID, audit.Context{}, "stored signature failed verification")
		return err
	}
	return err
}

// EvaluateMinting decides whether a trust-locked artifact may proceed to the
// minting engine. Artifacts below the corroboration threshold are parked in
// RequiresCorroboration rather than rejected.
func (m *Machine) EvaluateMinting(ctx context.Context, artifactID, actorID string) (evidence.MintingStatus, error) {
	a, err := m.store.GetArtifact(ctx, artifactID)
	if err != nil {
		return "", fmt.Errorf("evaluate minting %s: %w", artifactID, err)
	}
	if a.ChittyVerify != evidence.ChittyVerified {
		return "", &PreconditionError{ArtifactID: artifactID, Reason: fmt.Sprintf("minting requires trust lock, have %s", a.ChittyVerify)}
	}

	next := evidence.MintReady
	if a.Weight < m.corroborationThreshold {
		next = evidence.MintRequiresCorroboration
	}

	if err := m.store.UpdateMinting(ctx, artifactID, evidence.MintPending, next); err != nil {
		m.recorder.Record(ctx, actorID, "verify.minting", artifactID, audit.Context{}, false, err.Error())
		return "", fmt.Errorf("evaluate minting %s: %w", artifactID, err)
	}

	m.recorder.Record(ctx, actorID, "verify.minting", artifactID, audit.Context{}, true, string(next))
	return next, nil
}

// Recorroborate re-evaluates an artifact parked in RequiresCorroboration,
// promoting it to Ready once its weight clears the threshold.
func (m *Machine) Recorroborate(ctx context.Context, artifactID, actorID string) (evidence.MintingStatus, error) {
	a, err := m.store.GetArtifact(ctx, artifactID)
	if err != nil {
		return "", fmt.Errorf("recorroborate %s: %w", artifactID, err)
	}
	if a.Minting != evidence.MintRequiresCorroboration {
		return "", &PreconditionError{ArtifactID: artifactID, Reason: fmt.Sprintf("expected RequiresCorroboration, have %s", a.Minting)}
	}
	if a.Weight < m.corroborationThreshold {
		return evidence.MintRequiresCorroboration, nil
	}

	if err := m.store.UpdateMinting(ctx, artifactID, evidence.MintRequiresCorroboration, evidence.MintReady); err != nil {
		return "", fmt.Errorf("recorroborate %s: %w", artifactID, err)
	}
	m.recorder.Record(ctx, actorID, "verify.minting", artifactID, audit.Context{}, true, string(evidence.MintReady))
	return evidence.MintReady, nil
}
