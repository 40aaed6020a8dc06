//go:build property
// +build property

package evidence

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var allTiers = []Tier{
	TierSelfAuthenticating, TierGovernment, TierFinancialInstitution,
	TierIndependentThirdParty, TierBusinessRecords, TierFirstPartyAdverse,
	TierFirstPartyFriendly, TierUncorroboratedPerson, Tier("UNKNOWN"),
}

var allFactors = []CredibilityFactor{
	FactorAgainstInterest, FactorContemporaneous, FactorBusinessDuty,
	FactorOfficialDuty, FactorMachineGenerated, FactorChainOfCustodyClean,
}

func genTier() gopter.Gen {
	return gen.IntRange(0, len(allTiers)-1).Map(func(i int) Tier { return allTiers[i] })
}

func genFactors() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, len(allFactors)-1)).Map(func(is []int) []CredibilityFactor {
		out := make([]CredibilityFactor, len(is))
		for i, v := range is {
			out[i] = allFactors[v]
		}
		return out
	})
}

// TestWeightBounds verifies the weight invariant 0 <= w <= 1 for any input.
func TestWeightBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("weight stays within [0,1]", prop.ForAll(
		func(tier Tier, factors []CredibilityFactor, bonus float64) bool {
			w := Weight(tier, factors, bonus)
			return w >= 0.0 && w <= 1.0
		},
		genTier(),
		genFactors(),
		gen.Float64Range(-1.0, 1.0),
	))

	properties.TestingRun(t)
}

// TestWeightDeterminism verifies repeated calls are bit-identical.
func TestWeightDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("weight is deterministic", prop.ForAll(
		func(tier Tier, factors []CredibilityFactor, bonus float64) bool {
			return Weight(tier, factors, bonus) == Weight(tier, factors, bonus)
		},
		genTier(),
		genFactors(),
		gen.Float64Range(0, 0.5),
	))

	properties.TestingRun(t)
}

// TestWeightMonotonicInTier verifies the base table preserves strict tier order.
func TestWeightMonotonicInTier(t *testing.T) {
	known := allTiers[:8]
	for i := 1; i < len(known); i++ {
		if BaseWeight(known[i-1]) <= BaseWeight(known[i]) {
			t.Fatalf("tier order violated: %s <= %s", known[i-1], known[i])
		}
	}
}
