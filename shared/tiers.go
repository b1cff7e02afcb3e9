package shared

// Unlimited marks a ceiling with no upper bound.
const Unlimited int64 = -1

// tierCeilings is the single source of truth for per-tier resource ceilings.
// Every component that enforces limits reads this table; nothing else may
// define its own.
var tierCeilings = map[string]map[string]int64{
	TierFree: {
		KindURL:       25,
		KindQRStatic:  10,
		KindQRDynamic: 2,
	},
	TierPro: {
		KindURL:       500,
		KindQRStatic:  250,
		KindQRDynamic: 50,
	},
	TierBusiness: {
		KindURL:       5000,
		KindQRStatic:  2500,
		KindQRDynamic: 500,
	},
	TierEnterprise: {
		KindURL:       50000,
		KindQRStatic:  25000,
		KindQRDynamic: 5000,
	},
	TierUnlimited: {
		KindURL:       Unlimited,
		KindQRStatic:  Unlimited,
		KindQRDynamic: Unlimited,
	},
}

// TierCeiling returns the resource ceiling for a tier and kind. Unknown
// tiers and kinds default to zero, which denies creation.
func TierCeiling(tier, kind string) int64 {
	kinds, ok := tierCeilings[tier]
	if !ok {
		return 0
	}
	ceiling, ok := kinds[kind]
	if !ok {
		return 0
	}
	return ceiling
}

// IsUnlimited reports whether a ceiling value means "no limit".
func IsUnlimited(ceiling int64) bool {
	return ceiling == Unlimited
}

// KnownTier reports whether the given tier name exists in the ceiling table.
func KnownTier(tier string) bool {
	_, ok := tierCeilings[tier]
	return ok
}
