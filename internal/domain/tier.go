package domain

import "sort"

// DefaultTiers is the threshold table used when none is configured.
var DefaultTiers = []CustomerTier{
	{Name: "bronze", MinPoints: 0},
	{Name: "silver", MinPoints: 500},
	{Name: "gold", MinPoints: 1500},
	{Name: "platinum", MinPoints: 5000},
}

// SelectTier returns the highest tier whose threshold the balance meets.
func SelectTier(balance int64, tiers []CustomerTier) (string, bool) {
	ordered := make([]CustomerTier, len(tiers))
	copy(ordered, tiers)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].MinPoints > ordered[j].MinPoints
	})
	for _, tier := range ordered {
		if balance >= tier.MinPoints {
			return tier.Name, true
		}
	}
	return "", false
}

// EntryTier is the tier a new customer starts in.
func EntryTier(tiers []CustomerTier) string {
	if len(tiers) == 0 {
		return ""
	}
	lowest := tiers[0]
	for _, tier := range tiers[1:] {
		if tier.MinPoints < lowest.MinPoints {
			lowest = tier
		}
	}
	return lowest.Name
}

// LedgerType infers the ledger entry type from the sign of the delta.
func LedgerType(delta int64) string {
	if delta > 0 {
		return LoyaltyEarned
	}
	return LoyaltyRedeemed
}
