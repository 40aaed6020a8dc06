package evidence

const (
	// factorBonus is the contribution of each distinct credibility factor.
	factorBonus = 0.05
	// factorBonusCap bounds the total credibility contribution.
	factorBonusCap = 0.20
	// unknownTierWeight is the defensive default for tiers outside the table.
	unknownTierWeight = 0.50
)

// BaseWeight returns the fixed base trust weight for a tier.
func BaseWeight(t Tier) float64 {
	if w, ok := tierBaseWeights[t]; ok {
		return w
	}
	return unknownTierWeight
}

// Weight computes the final trust weight for a piece of evidence.
//
// Pure and deterministic: same inputs always yield the same output, which is
// required for audit reproducibility. The result is clamped to [0, 1].
func Weight(t Tier, factors []CredibilityFactor, authenticationBonus float64) float64 {
	bonus := float64(countDistinct(factors)) * factorBonus
	if bonus > factorBonusCap {
		bonus = factorBonusCap
	}
	w := BaseWeight(t) + bonus + authenticationBonus
	if w > 1.0 {
		w = 1.0
	}
	if w < 0.0 {
		w = 0.0
	}
	return w
}

func countDistinct(factors []CredibilityFactor) int {
	seen := make(map[CredibilityFactor]struct{}, len(factors))
	for _, f := range factors {
		seen[f] = struct{}{}
	}
	return len(seen)
}
