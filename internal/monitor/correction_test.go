package monitor

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/polyquote/polyquote/internal/inventory"
	"github.com/polyquote/polyquote/internal/types"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func testFixture() (*Correction, *inventory.Manager) {
	inv := inventory.NewManager(d(50), 0.20, 900)
	return NewCorrection(inv, 0.5), inv
}

func TestObserve_ConfirmsAtFractionOfGap(t *testing.T) {
	c, inv := testFixture()
	inv.AddPosition("mkt", types.SideUp, d(10), d(0.52))

	// Entered at 0.52 on a 0.40 gap: confirmation needs +0.20.
	c.Track("mkt", types.SideUp, d(0.52), d(-0.40))

	assert.False(t, c.Observe("mkt", types.SideUp, d(0.60)))
	assert.False(t, c.Confirmed("mkt", types.SideUp))

	assert.True(t, c.Observe("mkt", types.SideUp, d(0.72)))
	assert.True(t, c.Confirmed("mkt", types.SideUp))
	assert.True(t, inv.GetInventory("mkt", 300).Up.CorrectionConfirmed,
		"confirmation lands on the ledger for hedge-skip decisions")
}

func TestObserve_FirstCrossingOnly(t *testing.T) {
	c, _ := testFixture()
	c.Track("mkt", types.SideUp, d(0.52), d(0.40))

	assert.True(t, c.Observe("mkt", types.SideUp, d(0.75)))
	assert.False(t, c.Observe("mkt", types.SideUp, d(0.80)), "already confirmed, no re-fire")
}

func TestObserve_ExactThresholdConfirms(t *testing.T) {
	c, _ := testFixture()
	c.Track("mkt", types.SideUp, d(0.52), d(0.40))

	assert.False(t, c.Observe("mkt", types.SideUp, d(0.71)))
	assert.True(t, c.Observe("mkt", types.SideUp, d(0.72)), "recovery of exactly half the gap confirms")
}

func TestObserve_UntrackedOrBadInput(t *testing.T) {
	c, _ := testFixture()
	assert.False(t, c.Observe("nope", types.SideUp, d(0.9)))

	c.Track("mkt", types.SideUp, d(0.52), d(0.40))
	assert.False(t, c.Observe("mkt", types.SideUp, decimal.Zero), "zero price is book noise")
	assert.False(t, c.Observe("mkt", types.SideDown, d(0.9)), "other side is not tracked")
}

func TestClearMarket(t *testing.T) {
	c, _ := testFixture()
	c.Track("mkt", types.SideUp, d(0.52), d(0.40))
	c.ClearMarket("mkt")
	assert.False(t, c.Observe("mkt", types.SideUp, d(0.99)))
	assert.False(t, c.Confirmed("mkt", types.SideUp))
}
