package edge

import (
	"github.com/shopspring/decimal"

	"github.com/polyquote/polyquote/internal/fairvalue"
	"github.com/polyquote/polyquote/internal/inventory"
	"github.com/polyquote/polyquote/internal/types"
)

// Result is one cycle's edge computation for both sides.
type Result struct {
	EdgeUp   decimal.Decimal // askUp - fairUp; negative = underpriced
	EdgeDown decimal.Decimal
	Theta    decimal.Decimal // dynamic threshold in force this cycle
	SignalUp bool
	SignalDn bool
}

// Calculator compares live asks against fair value under a threshold
// that loosens toward expiry and tightens as net exposure grows.
type Calculator struct {
	baseTheta       decimal.Decimal
	decayFactor     float64
	inventoryFactor float64

	forceNetRatio  float64
	forceAvgCutoff decimal.Decimal
	forceDollarMin decimal.Decimal
}

// NewCalculator builds a calculator from the tuning block.
func NewCalculator(baseTheta decimal.Decimal, decayFactor, inventoryFactor, forceNetRatio float64, forceAvgCutoff, forceDollarMin decimal.Decimal) *Calculator {
	return &Calculator{
		baseTheta:       baseTheta,
		decayFactor:     decayFactor,
		inventoryFactor: inventoryFactor,
		forceNetRatio:   forceNetRatio,
		forceAvgCutoff:  forceAvgCutoff,
		forceDollarMin:  forceDollarMin,
	}
}

// ComputeEdge returns per-side edges and buy signals. windowSeconds is
// the market's full lifetime, used to scale the time decay.
func (c *Calculator) ComputeEdge(askUp, askDown decimal.Decimal, fv fairvalue.Estimate, inv inventory.Snapshot, secsLeft, windowSeconds float64) Result {
	theta := c.Theta(inv, secsLeft, windowSeconds)

	edgeUp := askUp.Sub(decimal.NewFromFloat(fv.PUp))
	edgeDown := askDown.Sub(decimal.NewFromFloat(fv.PDown))

	res := Result{
		EdgeUp:   edgeUp,
		EdgeDown: edgeDown,
		Theta:    theta,
	}
	// A side with no live ask cannot signal.
	if askUp.IsPositive() {
		res.SignalUp = edgeUp.LessThan(theta.Neg())
	}
	if askDown.IsPositive() {
		res.SignalDn = edgeDown.LessThan(theta.Neg())
	}
	return res
}

// Theta computes the dynamic threshold:
//
//	theta = base * timeMultiplier * inventoryMultiplier
//
// The time multiplier shrinks toward its 0.3 floor as expiry nears, so
// entries get easier when less can go wrong before settlement. The
// inventory multiplier grows with net exposure, so a loaded book needs
// a bigger edge to add more risk.
func (c *Calculator) Theta(inv inventory.Snapshot, secsLeft, windowSeconds float64) decimal.Decimal {
	frac := secsLeft / windowSeconds
	if frac > 1 {
		frac = 1
	}
	if frac < 0 {
		frac = 0
	}
	timeMult := 1 - c.decayFactor*(1-frac)
	if timeMult < 0.3 {
		timeMult = 0.3
	}

	invMult := 1.0
	if inv.IMax.IsPositive() {
		ratio, _ := inv.Imbalance().Div(inv.IMax).Float64()
		invMult = 1 + c.inventoryFactor*ratio
	}

	return c.baseTheta.Mul(decimal.NewFromFloat(timeMult * invMult))
}

// ShouldForceCounter decides whether imbalance has become dangerous
// enough to force a hedge on the lagging side. All three must hold:
// net exposure ratio above the configured fraction, the dominant side's
// average price above the cheap/expensive cutoff, and dollar exposure
// at risk above the floor. Cheap low-exposure imbalance is accepted
// risk, not forced-hedged.
func (c *Calculator) ShouldForceCounter(inv inventory.Snapshot) (types.Side, bool) {
	leading, ok := inv.Leading()
	if !ok || inv.IMax.IsZero() {
		return "", false
	}

	ratio, _ := inv.Imbalance().Div(inv.IMax).Float64()
	if ratio < c.forceNetRatio {
		return "", false
	}

	dominant := inv.Side(leading)
	if dominant.AvgPrice.LessThanOrEqual(c.forceAvgCutoff) {
		return "", false
	}

	atRisk := inv.Imbalance().Mul(dominant.AvgPrice)
	if atRisk.LessThan(c.forceDollarMin) {
		return "", false
	}

	return leading.Opposite(), true
}
