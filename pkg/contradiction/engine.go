// Package contradiction detects conflicts between atomic facts in a case
// and resolves them through an ordered rule cascade. The engine never
// guesses: a conflict no rule can discriminate stays unresolved and is
// surfaced for human review.
package contradiction

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chittyos/chittychain/pkg/audit"
	"github.com/chittyos/chittychain/pkg/evidence"
	"github.com/chittyos/chittychain/pkg/store"
)

// Resolution methods recorded on the contradiction record.
const (
	MethodAuthenticationSuperiority = "authentication_superiority"
	MethodTemporalPriority          = "temporal_priority"
	MethodAdverseAdmission          = "adverse_admission"
	MethodContemporaneousRecord     = "contemporaneous_record"
)

// contradictedClassification replaces the losing fact's classification
// level. The fact text itself is never rewritten.
const contradictedClassification = "CONTRADICTED"

// Store is the persistence surface the engine needs.
type Store interface {
	store.ArtifactStore
	store.FactStore
	store.ContradictionStore
}

// Engine detects and resolves contradictions.
type Engine struct {
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

// Detect scans the case's facts for conflicts and records one contradiction
// per newly conflicting pair. Pairs already covered by a record, open or
// resolved, are skipped, so repeat scans are stable; same-artifact pairs are
// never conflicts.
func (e *Engine) Detect(ctx context.Context, caseID, actorID string) ([]*evidence.Contradiction, error) {
	facts, err := e.store.ListFactsByCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("detect contradictions in %s: %w", caseID, err)
	}

	recorded, err := e.store.ListContradictionsByCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("detect contradictions in %s: %w", caseID, err)
	}
	covered := make(map[string]bool, len(recorded))
	for _, c := range recorded {
		covered[pairKey(c.FactIDs)] = true
	}

	byType := make(map[string][]*evidence.AtomicFact)
	for _, f := range facts {
		if f.ContradictionID != "" {
			continue
		}
		byType[f.FactType] = append(byType[f.FactType], f)
	}

	var out []*evidence.Contradiction
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, t := range types {
		group := byType[t]
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if a.ArtifactID == b.ArtifactID {
					continue
				}
				if !conflicting(a, b) {
					continue
				}
				if covered[pairKey([]string{a.ID, b.ID})] {
					continue
				}
				c := &evidence.Contradiction{
					ID:           evidence.NewContradictionID(),
					CaseID:       caseID,
					ConflictType: classify(a, b),
					FactIDs:      []string{a.ID, b.ID},
					DetectedAt:   e.clock().UTC(),
				}
				if err := e.store.InsertContradiction(ctx, c); err != nil {
					return out, fmt.Errorf("record contradiction: %w", err)
				}
				e.recorder.Record(ctx, actorID, "contradiction.detect", "", audit.Context{}, true,
					fmt.Sprintf("%s: %s between %s and %s", c.ID, c.ConflictType, a.ID, b.ID))
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// pairKey canonicalizes a fact-ID pair so either ordering maps to the same
// record.
func pairKey(factIDs []string) string {
	ids := append([]string(nil), factIDs...)
	sort.Strings(ids)
	return strings.Join(ids, "|")
}

// conflicting reports whether two same-type facts make incompatible claims.
func conflicting(a, b *evidence.AtomicFact) bool {
	return normalize(a.Text) != normalize(b.Text)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// classify assigns the conflict type from the fact pair's shape.
func classify(a, b *evidence.AtomicFact) evidence.ConflictType {
	if a.FactType == "date" || (a.EventAt != nil && b.EventAt != nil && !a.EventAt.Equal(*b.EventAt)) {
		return evidence.ConflictTemporalImpossible
	}
	if negationPair(a.Text, b.Text) {
		return evidence.ConflictDirect
	}
	if tokenOverlap(a.Text, b.Text) >= 0.5 {
		return evidence.ConflictPartial
	}
	return evidence.ConflictLogicalInconsistency
}

// negationPair reports whether the texts differ only by negation tokens,
// i.e. one claim is the direct denial of the other.
func negationPair(a, b string) bool {
	return stripNegation(a) == stripNegation(b) && normalize(a) != normalize(b)
}

func stripNegation(s string) string {
	var kept []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		switch w {
		case "not", "no", "never", "didn't", "wasn't", "isn't":
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func tokenOverlap(a, b string) float64 {
	as := tokenSet(a)
	bs := tokenSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	shared := 0
	for w := range as {
		if _, ok := bs[w]; ok {
			shared++
		}
	}
	union := len(as) + len(bs) - shared
	return float64(shared) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = struct{}{}
	}
	return out
}

// Outcome is the result of one resolution attempt.
type Outcome struct {
	Contradiction *evidence.Contradiction
	WinningFactID string
	Method        string
	// Unresolved is set when no rule discriminated and the conflict was
	// left for human review.
	Unresolved bool
}

// Resolve applies the rule cascade to a recorded contradiction:
//
//  1. authentication superiority: the fact whose parent artifact holds the
//     strictly highest evidence tier wins
//  2. temporal priority: on equal tiers, the earliest verified (or
//     extracted) fact wins
//  3. adverse admission: a single fact carrying the against-interest
//     credibility factor wins
//  4. contemporaneous record: the fact verified closest to the event it
//     describes wins
//
// The winning fact is untouched; every losing fact gets its contradiction
// linkage set and its classification level lowered. Exactly one audit entry
// is written per resolution attempt.
func (e *Engine) Resolve(ctx context.Context, contradictionID, actorID string) (*Outcome, error) {
	c, err := e.store.GetContradiction(ctx, contradictionID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", contradictionID, err)
	}
	if c.Resolved() {
		return nil, store.ErrAlreadyResolved
	}

	type candidate struct {
		fact *evidence.AtomicFact
		tier evidence.Tier
	}
	cands := make([]candidate, 0, len(c.FactIDs))
	for _, id := range c.FactIDs {
		f, err := e.store.GetFact(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: fact %s: %w", contradictionID, id, err)
		}
		a, err := e.store.GetArtifact(ctx, f.ArtifactID)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: artifact %s: %w", contradictionID, f.ArtifactID, err)
		}
		cands = append(cands, candidate{fact: f, tier: a.Tier})
	}

	winner, method := func() (*evidence.AtomicFact, string) {
		// Rule 1: authentication superiority.
		best := cands[0]
		unique := true
		for _, cd := range cands[1:] {
			switch {
			case cd.tier.Outranks(best.tier):
				best, unique = cd, true
			case !best.tier.Outranks(cd.tier):
				unique = false
			}
		}
		if unique {
			return best.fact, MethodAuthenticationSuperiority
		}

		// Rule 2: temporal priority, earliest record wins.
		earliest := cands[0]
		unique = true
		for _, cd := range cands[1:] {
			a, b := recordTime(cd.fact), recordTime(earliest.fact)
			switch {
			case a.Before(b):
				earliest, unique = cd, true
			case a.Equal(b):
				unique = false
			}
		}
		if unique {
			return earliest.fact, MethodTemporalPriority
		}

		// Rule 3: adverse admission.
		var adverse *evidence.AtomicFact
		for _, cd := range cands {
			if cd.fact.HasFactor(evidence.FactorAgainstInterest) {
				if adverse != nil {
					adverse = nil
					break
				}
				adverse = cd.fact
			}
		}
		if adverse != nil {
			return adverse, MethodAdverseAdmission
		}

		// Rule 4: contemporaneous record.
		var closest *evidence.AtomicFact
		var closestGap time.Duration
		unique = false
		for _, cd := range cands {
			f := cd.fact
			if f.EventAt == nil || f.VerifiedAt == nil {
				continue
			}
			gap := f.VerifiedAt.Sub(*f.EventAt)
			if gap < 0 {
				gap = -gap
			}
			switch {
			case closest == nil || gap < closestGap:
				closest, closestGap, unique = f, gap, true
			case gap == closestGap:
				unique = false
			}
		}
		if closest != nil && unique {
			return closest, MethodContemporaneousRecord
		}

		return nil, ""
	}()

	if winner == nil {
		e.recorder.Record(ctx, actorID, "contradiction.resolve", "", audit.Context{}, false,
			fmt.Sprintf("%s: no rule discriminates, left for human review", contradictionID))
		return &Outcome{Contradiction: c, Unresolved: true}, nil
	}

	now := e.clock().UTC()
	if err := e.store.ResolveContradiction(ctx, contradictionID, winner.ID, method, now); err != nil {
		return nil, fmt.Errorf("resolve %s: %w", contradictionID, err)
	}
	for _, cd := range cands {
		if cd.fact.ID == winner.ID {
			continue
		}
		if err := e.store.MarkContradicted(ctx, cd.fact.ID, contradictionID, contradictedClassification); err != nil {
			return nil, fmt.Errorf("resolve %s: mark %s: %w", contradictionID, cd.fact.ID, err)
		}
	}

	e.recorder.Record(ctx, actorID, "contradiction.resolve", "", audit.Context{}, true,
		fmt.Sprintf("%s: winner %s via %s", contradictionID, winner.ID, method))

	resolved, err := e.store.GetContradiction(ctx, contradictionID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Contradiction: resolved, WinningFactID: winner.ID, Method: method}, nil
}

// ListUnresolved returns the case's open contradictions for human review.
func (e *Engine) ListUnresolved(ctx context.Context, caseID string) ([]*evidence.Contradiction, error) {
	return e.store.ListUnresolved(ctx, caseID)
}

// recordTime is the fact's verification time, falling back to extraction.
func recordTime(f *evidence.AtomicFact) time.Time {
	if f.VerifiedAt != nil {
		return *f.VerifiedAt
	}
	return f.ExtractedAt
}
