package intake

import (
	"fmt"
	"strings"

	"github.com/chittyos/chittychain/pkg/config"
	"github.com/chittyos/chittychain/pkg/evidence"
)

// ProfileGate enforces per-jurisdiction evidence policy at intake: which
// tiers the jurisdiction admits, and any jurisdiction-specific CEL rules.
// A submission whose case ID names an ungoverned jurisdiction passes.
type ProfileGate struct {
	profiles map[string]*config.JurisdictionProfile
	policies map[string]*AdmissionPolicy
}

// NewProfileGate compiles each profile's admission rules. Bad rules fail
// here, at startup.
func NewProfileGate(profiles map[string]*config.JurisdictionProfile) (*ProfileGate, error) {
	g := &ProfileGate{
		profiles: make(map[string]*config.JurisdictionProfile, len(profiles)),
		policies: make(map[string]*AdmissionPolicy, len(profiles)),
	}
	for code, p := range profiles {
		key := strings.ToUpper(code)
		g.profiles[key] = p
		if len(p.AdmissionRules) > 0 {
			policy, err := NewAdmissionPolicy(p.AdmissionRules)
			if err != nil {
				return nil, fmt.Errorf("profile %s: %w", code, err)
			}
			g.policies[key] = policy
		}
	}
	return g, nil
}

// Check applies the jurisdiction's profile to one submission. The
// jurisdiction is the leading segment of the case ID.
func (g *ProfileGate) Check(caseID string, tier evidence.Tier, submission map[string]interface{}) error {
	jurisdiction, _, _ := strings.Cut(caseID, "-")
	p, ok := g.profiles[jurisdiction]
	if !ok {
		return nil
	}
	if !p.AcceptsTier(string(tier)) {
		return &TierNotAcceptedError{Jurisdiction: jurisdiction, Tier: tier}
	}
	if policy, ok := g.policies[jurisdiction]; ok {
		return policy.Evaluate(submission)
	}
	return nil
}
