// Package identity resolves actor and submitter references against the
// external identity service. The core consumes two things: a composite
// trust score (0–6 scale) gating admission of lower-tier evidence, and a
// verification level derived from it.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownSubmitter indicates the identity service has no record for the
// reference. Terminal, no retry.
var ErrUnknownSubmitter = errors.New("unknown submitter reference")

// VerificationLevel bands the composite score for display and policy.
type VerificationLevel string

const (
	LevelL0Unverified VerificationLevel = "L0_UNVERIFIED"
	LevelL1Bronze     VerificationLevel = "L1_BRONZE"
	LevelL2Silver     VerificationLevel = "L2_SILVER"
	LevelL3Gold       VerificationLevel = "L3_GOLD"
	LevelL4Platinum   VerificationLevel = "L4_PLATINUM"
)

// LevelForScore maps a composite 0–6 trust score to its verification level.
func LevelForScore(score float64) VerificationLevel {
	switch {
	case score >= 5.4:
		return LevelL4Platinum
	case score >= 4.8:
		return LevelL3Gold
	case score >= 4.2:
		return LevelL2Silver
	case score >= 3.6:
		return LevelL1Bronze
	default:
		return LevelL0Unverified
	}
}

// Submitter is the resolved identity of an evidence submitter.
type Submitter struct {
	ID         string
	TrustScore float64 // composite, 0–6
	Level      VerificationLevel
}

// Directory resolves submitter references. Implementations call the external
// identity service; StaticDirectory serves tests and air-gapped deployments.
type Directory interface {
	Resolve(ctx context.Context, submitterID string) (*Submitter, error)
}

// StaticDirectory is an in-memory Directory seeded with fixed scores.
type StaticDirectory struct {
	mu     sync.RWMutex
	scores map[string]float64
}

// NewStaticDirectory creates a directory from a score table.
func NewStaticDirectory(scores map[string]float64) *StaticDirectory {
	cp := make(map[string]float64, len(scores))
	for k, v := range scores {
		cp[k] = v
	}
	return &StaticDirectory{scores: cp}
}

// Set registers or updates a submitter score.
func (d *StaticDirectory) Set(submitterID string, score float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scores[submitterID] = score
}

func (d *StaticDirectory) Resolve(ctx context.Context, submitterID string) (*Submitter, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	score, ok := d.scores[submitterID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSubmitter, submitterID)
	}
	return &Submitter{ID: submitterID, TrustScore: score, Level: LevelForScore(score)}, nil
}
