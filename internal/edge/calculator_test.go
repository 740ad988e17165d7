package edge

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/polyquote/polyquote/internal/fairvalue"
	"github.com/polyquote/polyquote/internal/inventory"
	"github.com/polyquote/polyquote/internal/types"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func newTestCalculator() *Calculator {
	return NewCalculator(d(0.05), 0.5, 0.6, 0.6, d(0.55), d(15))
}

func flatSnapshot(iMax float64) inventory.Snapshot {
	return inventory.Snapshot{IMax: d(iMax)}
}

func TestComputeEdge_StaleBookSignals(t *testing.T) {
	c := newTestCalculator()

	// Spot blew through the strike but the book still shows ~50/50.
	fv := fairvalue.Estimate{PUp: 0.92, PDown: 0.08}
	res := c.ComputeEdge(d(0.52), d(0.48), fv, flatSnapshot(50), 300, 900)

	assert.True(t, res.EdgeUp.Equal(d(-0.40)), "edge up = 0.52 - 0.92, got %s", res.EdgeUp)
	assert.True(t, res.EdgeDown.Equal(d(0.40)))
	assert.True(t, res.SignalUp, "-0.40 clears any sane threshold")
	assert.False(t, res.SignalDn, "overpriced side never signals")
}

func TestComputeEdge_FairBookStaysQuiet(t *testing.T) {
	c := newTestCalculator()

	fv := fairvalue.Estimate{PUp: 0.51, PDown: 0.49}
	res := c.ComputeEdge(d(0.52), d(0.50), fv, flatSnapshot(50), 300, 900)

	assert.False(t, res.SignalUp)
	assert.False(t, res.SignalDn)
}

func TestComputeEdge_NoAskNoSignal(t *testing.T) {
	c := newTestCalculator()

	fv := fairvalue.Estimate{PUp: 0.92, PDown: 0.08}
	res := c.ComputeEdge(decimal.Zero, d(0.48), fv, flatSnapshot(50), 300, 900)

	assert.False(t, res.SignalUp, "an empty side cannot be bought")
}

func TestTheta_TimeDecayWithFloor(t *testing.T) {
	c := newTestCalculator()
	inv := flatSnapshot(50)

	full := c.Theta(inv, 900, 900)
	assert.True(t, full.Equal(d(0.05)), "fresh market runs the base threshold, got %s", full)

	half := c.Theta(inv, 450, 900)
	assert.True(t, half.Equal(d(0.0375)), "got %s", half)

	expired := c.Theta(inv, 0, 900)
	assert.True(t, expired.Equal(d(0.025)), "decay 0.5 bottoms out at half base, got %s", expired)

	// A harsher decay factor hits the 0.3 multiplier floor instead.
	harsh := NewCalculator(d(0.05), 0.9, 0.6, 0.6, d(0.55), d(15))
	floored := harsh.Theta(inv, 0, 900)
	assert.True(t, floored.Equal(d(0.015)), "time multiplier floors at 0.3, got %s", floored)
}

func TestTheta_InventoryTightens(t *testing.T) {
	c := newTestCalculator()

	loaded := inventory.Snapshot{
		Up:   inventory.Position{Shares: d(30)},
		Net:  d(30),
		IMax: d(50),
	}
	flat := flatSnapshot(50)

	assert.True(t, c.Theta(loaded, 900, 900).GreaterThan(c.Theta(flat, 900, 900)),
		"net exposure must raise the bar for adding more")
}

func TestShouldForceCounter(t *testing.T) {
	c := newTestCalculator()

	base := inventory.Snapshot{
		Up:   inventory.Position{Shares: d(40), AvgPrice: d(0.70)},
		Down: inventory.Position{Shares: d(5), AvgPrice: d(0.30)},
		Net:  d(35),
		IMax: d(50),
	}

	side, force := c.ShouldForceCounter(base)
	assert.True(t, force)
	assert.Equal(t, types.SideDown, side, "the hedge buys the lagging side")

	// Cheap dominant side: accepted risk, not forced.
	cheap := base
	cheap.Up.AvgPrice = d(0.20)
	_, force = c.ShouldForceCounter(cheap)
	assert.False(t, force)

	// Ratio below the trigger.
	mild := base
	mild.Net = d(20)
	_, force = c.ShouldForceCounter(mild)
	assert.False(t, force)

	// Dollar exposure below the floor.
	tiny := inventory.Snapshot{
		Up:   inventory.Position{Shares: d(4), AvgPrice: d(0.70)},
		Net:  d(4),
		IMax: d(5),
	}
	_, force = c.ShouldForceCounter(tiny)
	assert.False(t, force)

	// Balanced book never forces.
	_, force = c.ShouldForceCounter(flatSnapshot(50))
	assert.False(t, force)
}
