package types

// RejectReason is the closed set of reasons a component may refuse to
// act. Branching happens on these values only; free-text detail lives
// in log fields.
type RejectReason int

const (
	ReasonNone RejectReason = iota
	ReasonShadowMode
	ReasonNoMispricing
	ReasonCausalityFailed
	ReasonLowConfidence
	ReasonFilterFailed
	ReasonAlreadyPositioned
	ReasonOrderPending
	ReasonCooldownActive
	ReasonNotionalCap
	ReasonImbalanceCap
	ReasonBudgetExhausted
	ReasonNoMakerPrice
	ReasonCostCeiling
	ReasonBelowMinPaired
	ReasonGapWithinTolerance
	ReasonUnknownAsset
	ReasonMarketMissingFields
)

var reasonNames = map[RejectReason]string{
	ReasonNone:                "NONE",
	ReasonShadowMode:          "SHADOW_MODE",
	ReasonNoMispricing:        "NO_MISPRICING",
	ReasonCausalityFailed:     "CAUSALITY_FAILED",
	ReasonLowConfidence:       "LOW_CONFIDENCE",
	ReasonFilterFailed:        "FILTER_FAILED",
	ReasonAlreadyPositioned:   "ALREADY_POSITIONED",
	ReasonOrderPending:        "ORDER_PENDING",
	ReasonCooldownActive:      "COOLDOWN_ACTIVE",
	ReasonNotionalCap:         "NOTIONAL_CAP",
	ReasonImbalanceCap:        "IMBALANCE_CAP",
	ReasonBudgetExhausted:     "BUDGET_EXHAUSTED",
	ReasonNoMakerPrice:        "NO_MAKER_PRICE",
	ReasonCostCeiling:         "COST_CEILING",
	ReasonBelowMinPaired:      "BELOW_MIN_PAIRED",
	ReasonGapWithinTolerance:  "GAP_WITHIN_TOLERANCE",
	ReasonUnknownAsset:        "UNKNOWN_ASSET",
	ReasonMarketMissingFields: "MARKET_MISSING_FIELDS",
}

func (r RejectReason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return "UNKNOWN"
}
