package intake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chittyos/chittychain/pkg/config"
	"github.com/chittyos/chittychain/pkg/evidence"
)

func cookProfile() map[string]*config.JurisdictionProfile {
	return map[string]*config.JurisdictionProfile{
		"COOK": {
			Name: "Cook County",
			Code: "COOK",
			AcceptedTiers: []string{
				string(evidence.TierGovernment),
				string(evidence.TierFinancialInstitution),
			},
			AdmissionRules: []string{
				`submission.evidence_type != "HEARSAY"`,
			},
		},
	}
}

func TestProfileGateRejectsUnacceptedTier(t *testing.T) {
	ctx := context.Background()
	gate, err := NewProfileGate(cookProfile())
	require.NoError(t, err)
	g, _ := newGuard(t, WithProfileGate(gate))

	a, err := g.Admit(ctx, submission("deed.pdf", "deed body"))
	require.NoError(t, err)
	assert.Equal(t, evidence.TierGovernment, a.Tier)

	sub := submission("note.pdf", "handwritten note")
	sub.Tier = evidence.TierUncorroboratedPerson
	_, err = g.Admit(ctx, sub)
	var rejected *TierNotAcceptedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "COOK", rejected.Jurisdiction)
	assert.Equal(t, "TIER_NOT_ACCEPTED", rejected.Code())
}

func TestProfileGateAppliesJurisdictionRules(t *testing.T) {
	ctx := context.Background()
	gate, err := NewProfileGate(cookProfile())
	require.NoError(t, err)
	g, _ := newGuard(t, WithProfileGate(gate))

	sub := submission("statement.pdf", "overheard statement")
	sub.EvidenceType = "HEARSAY"
	_, err = g.Admit(ctx, sub)
	var denied *PolicyDeniedError
	require.ErrorAs(t, err, &denied)
}

func TestProfileGateIgnoresUngovernedJurisdiction(t *testing.T) {
	ctx := context.Background()
	gate, err := NewProfileGate(cookProfile())
	require.NoError(t, err)
	g, _ := newGuard(t, WithProfileGate(gate))

	sub := submission("note.pdf", "handwritten note")
	sub.CaseID = "DUPAGE-2024-D-000042"
	sub.Tier = evidence.TierUncorroboratedPerson
	a, err := g.Admit(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, evidence.TierUncorroboratedPerson, a.Tier)
}

func TestProfileGateLowercaseCodesMatch(t *testing.T) {
	// Profiles loaded from profile_<code>.yaml carry lowercase codes.
	profiles := cookProfile()
	profiles["cook"] = profiles["COOK"]
	delete(profiles, "COOK")

	gate, err := NewProfileGate(profiles)
	require.NoError(t, err)
	g, _ := newGuard(t, WithProfileGate(gate))

	sub := submission("note.pdf", "handwritten note")
	sub.Tier = evidence.TierUncorroboratedPerson
	_, err = g.Admit(context.Background(), sub)
	var rejected *TierNotAcceptedError
	assert.ErrorAs(t, err, &rejected)
}

func TestProfileGateBadRuleFailsAtBuild(t *testing.T) {
	profiles := cookProfile()
	profiles["COOK"].AdmissionRules = []string{"this is not CEL"}
	_, err := NewProfileGate(profiles)
	assert.Error(t, err)
}
