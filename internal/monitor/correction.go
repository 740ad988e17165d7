package monitor

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/polyquote/polyquote/internal/inventory"
	"github.com/polyquote/polyquote/internal/types"
)

// Correction tracks whether an intentionally one-sided bet has
// "corrected": the held side's price recovering past a configured
// fraction of the original mispricing gap. It is observational only
// and never places orders; the confirmed flag feeds hedge-skip and
// settlement accounting downstream.
type Correction struct {
	mu sync.Mutex

	inv      *inventory.Manager
	fraction float64

	tracked map[trackKey]*trackState
}

type trackKey struct {
	marketID string
	side     types.Side
}

type trackState struct {
	entryPrice decimal.Decimal
	gap        decimal.Decimal // original mispricing magnitude at entry
	peak       decimal.Decimal // best price seen on the held side
	confirmed  bool
}

// NewCorrection builds a monitor confirming at fraction of the gap.
func NewCorrection(inv *inventory.Manager, fraction float64) *Correction {
	return &Correction{
		inv:      inv,
		fraction: fraction,
		tracked:  make(map[trackKey]*trackState),
	}
}

// Track starts watching a freshly-opened one-sided position.
func (c *Correction) Track(marketID string, side types.Side, entryPrice, gap decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracked[trackKey{marketID, side}] = &trackState{
		entryPrice: entryPrice,
		gap:        gap.Abs(),
		peak:       entryPrice,
	}
}

// Observe feeds the held side's current price and returns true the
// first time the correction threshold is crossed.
func (c *Correction) Observe(marketID string, side types.Side, price decimal.Decimal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.tracked[trackKey{marketID, side}]
	if !ok || st.confirmed || !price.IsPositive() {
		return false
	}

	if price.GreaterThan(st.peak) {
		st.peak = price
	}

	recovered := st.peak.Sub(st.entryPrice)
	needed := st.gap.Mul(decimal.NewFromFloat(c.fraction))
	if recovered.GreaterThanOrEqual(needed) && needed.IsPositive() {
		st.confirmed = true
		c.inv.SetCorrectionConfirmed(marketID, side)
		log.Info().
			Str("market", marketID).
			Str("side", string(side)).
			Str("entry", st.entryPrice.String()).
			Str("peak", st.peak.String()).
			Str("gap", st.gap.String()).
			Msg("correction confirmed")
		return true
	}
	return false
}

// Confirmed reports whether a tracked position has corrected.
func (c *Correction) Confirmed(marketID string, side types.Side) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.tracked[trackKey{marketID, side}]
	return ok && st.confirmed
}

// ClearMarket drops tracking for a settled market.
func (c *Correction) ClearMarket(marketID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.tracked {
		if key.marketID == marketID {
			delete(c.tracked, key)
		}
	}
}
