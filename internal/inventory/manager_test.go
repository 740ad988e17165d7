package inventory

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/polyquote/polyquote/internal/types"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func newTestManager() *Manager {
	return NewManager(d(50), 0.20, 900)
}

func TestAddPosition_WeightedAverage(t *testing.T) {
	m := newTestManager()
	m.AddPosition("mkt", types.SideUp, d(10), d(0.50))
	m.AddPosition("mkt", types.SideUp, d(10), d(0.60))

	snap := m.GetInventory("mkt", 900)
	assert.True(t, snap.Up.Shares.Equal(d(20)))
	assert.True(t, snap.Up.AvgPrice.Equal(d(0.55)), "got %s", snap.Up.AvgPrice)
	assert.True(t, snap.Up.Cost.Equal(d(11)))

	// avgPrice == cost/shares must hold after every mutation.
	assert.True(t, snap.Up.AvgPrice.Equal(snap.Up.Cost.Div(snap.Up.Shares)))
}

func TestAddPosition_IgnoresNonPositive(t *testing.T) {
	m := newTestManager()
	m.AddPosition("mkt", types.SideUp, decimal.Zero, d(0.50))
	m.AddPosition("mkt", types.SideUp, d(-5), d(0.50))
	assert.True(t, m.GetInventory("mkt", 900).Up.Shares.IsZero())
}

func TestSnapshot_PairedAndLockedProfit(t *testing.T) {
	m := newTestManager()
	m.AddPosition("mkt", types.SideUp, d(40), d(0.48))
	m.AddPosition("mkt", types.SideDown, d(30), d(0.47))

	snap := m.GetInventory("mkt", 900)
	assert.True(t, snap.Paired().Equal(d(30)), "paired = min(up, down)")
	assert.True(t, snap.Net.Equal(d(10)))
	assert.True(t, snap.Imbalance().Equal(d(10)))

	// 30 pairs redeem $30 for 30*(0.48+0.47) spent.
	assert.True(t, snap.LockedProfit().Equal(d(1.5)), "got %s", snap.LockedProfit())

	lead, ok := snap.Leading()
	assert.True(t, ok)
	assert.Equal(t, types.SideUp, lead)
}

func TestSnapshot_BalancedHasNoLeader(t *testing.T) {
	m := newTestManager()
	m.AddPosition("mkt", types.SideUp, d(10), d(0.50))
	m.AddPosition("mkt", types.SideDown, d(10), d(0.45))

	_, ok := m.GetInventory("mkt", 900).Leading()
	assert.False(t, ok)
}

func TestIMax_LinearDecayToFloor(t *testing.T) {
	m := newTestManager()

	assert.True(t, m.IMax(900).Equal(d(50)), "full lifetime, full cap")
	assert.True(t, m.IMax(450).Equal(d(30)), "halfway: 0.2 + 0.8*0.5 of 50, got %s", m.IMax(450))
	assert.True(t, m.IMax(0).Equal(d(10)), "floor at one fifth of the cap")
	assert.True(t, m.IMax(-5).Equal(d(10)), "past expiry clamps to the floor")
	assert.True(t, m.IMax(2000).Equal(d(50)), "overshoot clamps to the full cap")
}

func TestGetAvailableSpace_DirectionAware(t *testing.T) {
	m := newTestManager()
	m.AddPosition("mkt", types.SideUp, d(30), d(0.50))

	// net = +30, cap = 50: 20 more UP, 80 DOWN.
	assert.True(t, m.GetAvailableSpace("mkt", types.SideUp, 900).Equal(d(20)))
	assert.True(t, m.GetAvailableSpace("mkt", types.SideDown, 900).Equal(d(80)))

	m.AddPosition("mkt", types.SideUp, d(30), d(0.50))
	assert.True(t, m.GetAvailableSpace("mkt", types.SideUp, 900).IsZero(),
		"over the cap leaves no headroom, never a negative number")
}

func TestReducePosition(t *testing.T) {
	m := newTestManager()
	m.AddPosition("mkt", types.SideUp, d(20), d(0.50))

	removed := m.ReducePosition("mkt", types.SideUp, d(5))
	assert.True(t, removed.Equal(d(5)))

	snap := m.GetInventory("mkt", 900)
	assert.True(t, snap.Up.Shares.Equal(d(15)))
	assert.True(t, snap.Up.Cost.Equal(d(7.5)))
	assert.True(t, snap.Up.AvgPrice.Equal(d(0.50)), "reducing at avg cost keeps avg unchanged")

	// Removing more than held caps at the holding and zeroes the slot.
	removed = m.ReducePosition("mkt", types.SideUp, d(100))
	assert.True(t, removed.Equal(d(15)))
	assert.True(t, m.GetInventory("mkt", 900).Up.Shares.IsZero())
	assert.True(t, m.GetInventory("mkt", 900).Up.AvgPrice.IsZero())

	assert.True(t, m.ReducePosition("nope", types.SideUp, d(1)).IsZero())
}

func TestRecordHedgeAndCorrection(t *testing.T) {
	m := newTestManager()
	m.AddPosition("mkt", types.SideUp, d(20), d(0.50))
	m.RecordHedge("mkt", types.SideDown, d(8), d(0.40))
	m.SetCorrectionConfirmed("mkt", types.SideUp)

	snap := m.GetInventory("mkt", 900)
	assert.True(t, snap.Down.HedgeShares.Equal(d(8)))
	assert.True(t, snap.Down.HedgePrice.Equal(d(0.40)))
	assert.True(t, snap.Up.CorrectionConfirmed)
}

func TestClearMarket_ReturnsFinalSnapshot(t *testing.T) {
	m := newTestManager()
	m.AddPosition("mkt", types.SideUp, d(20), d(0.50))
	m.AddPosition("mkt", types.SideDown, d(5), d(0.40))

	final := m.ClearMarket("mkt")
	assert.True(t, final.Up.Shares.Equal(d(20)))
	assert.True(t, final.Net.Equal(d(15)))

	assert.Empty(t, m.Markets())
	assert.True(t, m.GetInventory("mkt", 900).Up.Shares.IsZero())
}
