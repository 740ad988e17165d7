package quoting

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyquote/polyquote/internal/inventory"
	"github.com/polyquote/polyquote/internal/types"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func newTestEngine() *Engine {
	return NewEngine(Config{
		GridMin:     d(0.25),
		GridMax:     d(0.55),
		GridStep:    d(0.01),
		SweetSpot:   d(0.45),
		SafetyGap:   d(0.01),
		MinNotional: d(1),
	})
}

func snap(up, down, iMax float64) inventory.Snapshot {
	return inventory.Snapshot{
		Up:   inventory.Position{Shares: d(up)},
		Down: inventory.Position{Shares: d(down)},
		Net:  d(up - down),
		IMax: d(iMax),
	}
}

func TestPlan_BurstSafeBudgets(t *testing.T) {
	e := newTestEngine()
	inv := snap(40, 10, 50) // UP leads by 30

	leading := e.Plan("mkt", types.SideUp, inv, decimal.Zero, d(0.60))
	assert.Equal(t, Leading, leading.State)
	assert.True(t, leading.Budget.Equal(d(20)), "iMax - imbalance, got %s", leading.Budget)

	trailing := e.Plan("mkt", types.SideDown, inv, decimal.Zero, d(0.60))
	assert.Equal(t, Trailing, trailing.State)
	assert.True(t, trailing.Budget.Equal(d(80)), "iMax + imbalance, got %s", trailing.Budget)

	balanced := e.Plan("mkt", types.SideUp, snap(10, 10, 50), decimal.Zero, d(0.60))
	assert.Equal(t, Balanced, balanced.State)
	assert.True(t, balanced.Budget.Equal(d(50)))
}

func TestPlan_OpenQtyEatsBudget(t *testing.T) {
	e := newTestEngine()
	inv := snap(40, 10, 50)

	p := e.Plan("mkt", types.SideUp, inv, d(15), d(0.60))
	assert.True(t, p.Budget.Equal(d(5)), "resting orders count against the burst budget, got %s", p.Budget)
}

func TestPlan_LeadingBlockedAtHardCap(t *testing.T) {
	e := newTestEngine()
	inv := snap(60, 10, 50) // imbalance 50 == cap

	p := e.Plan("mkt", types.SideUp, inv, decimal.Zero, d(0.60))
	assert.Equal(t, types.ReasonImbalanceCap, p.Blocked)
	assert.Empty(t, p.Quotes)
	assert.True(t, p.Budget.IsZero())

	// The trailing side keeps quoting at the cap; it is how the gap closes.
	q := e.Plan("mkt", types.SideDown, inv, decimal.Zero, d(0.60))
	assert.Equal(t, types.ReasonNone, q.Blocked)
	assert.NotEmpty(t, q.Quotes)
}

func TestPlan_TrailingMinimumOverride(t *testing.T) {
	e := newTestEngine()
	inv := snap(40, 10, 50)

	// Almost all of the trailing budget is already resting.
	p := e.Plan("mkt", types.SideDown, inv, d(79), d(0.60))
	require.Equal(t, Trailing, p.State)
	// Override: gap plus one increment (minNotional/sweetSpot = 2.22).
	assert.True(t, p.Budget.Equal(d(32.22)), "got %s", p.Budget)
	assert.NotEmpty(t, p.Quotes)
}

func TestPlan_BalancedMinimumOverride(t *testing.T) {
	e := newTestEngine()

	p := e.Plan("mkt", types.SideUp, snap(10, 10, 50), d(49), d(0.60))
	require.Equal(t, Balanced, p.State)
	assert.True(t, p.Budget.Equal(d(2.22)), "one increment rather than going dark, got %s", p.Budget)

	// With a cap smaller than one increment there is nothing to grant.
	q := e.Plan("mkt", types.SideUp, snap(10, 10, 1), decimal.Zero, d(0.60))
	assert.Equal(t, types.ReasonBudgetExhausted, q.Blocked)
}

func TestPlan_LeadingGetsNoOverride(t *testing.T) {
	e := newTestEngine()
	inv := snap(59, 10, 50) // imbalance 49, just under the cap

	p := e.Plan("mkt", types.SideUp, inv, decimal.Zero, d(0.60))
	assert.Equal(t, types.ReasonBudgetExhausted, p.Blocked)
	assert.Empty(t, p.Quotes)
}

func TestPlan_MakerOnly(t *testing.T) {
	e := newTestEngine()
	inv := snap(10, 10, 50)

	// Ask at the grid floor: every level would cross or sit inside the
	// safety gap.
	p := e.Plan("mkt", types.SideUp, inv, decimal.Zero, d(0.25))
	assert.Equal(t, types.ReasonNoMakerPrice, p.Blocked)
	assert.Empty(t, p.Quotes)

	// Ask at 0.40 keeps the sub-0.39 half of the grid.
	q := e.Plan("mkt", types.SideUp, inv, decimal.Zero, d(0.40))
	require.NotEmpty(t, q.Quotes)
	for _, quote := range q.Quotes {
		assert.True(t, quote.Price.LessThanOrEqual(d(0.39)),
			"level %s crosses the safety gap", quote.Price)
	}
}

func TestPlan_SweetSpotFirst(t *testing.T) {
	e := newTestEngine()

	p := e.Plan("mkt", types.SideUp, snap(10, 10, 50), decimal.Zero, d(0.60))
	require.NotEmpty(t, p.Quotes)
	assert.True(t, p.Quotes[0].Price.Equal(d(0.45)), "closest to the sweet spot fills first, got %s", p.Quotes[0].Price)

	// Every later level sits no closer to the sweet spot.
	prev := decimal.Zero
	for _, q := range p.Quotes {
		dist := q.Price.Sub(d(0.45)).Abs()
		assert.True(t, dist.GreaterThanOrEqual(prev))
		prev = dist
	}
}

func TestPlan_LevelSizing(t *testing.T) {
	e := newTestEngine()

	p := e.Plan("mkt", types.SideUp, snap(10, 10, 50), decimal.Zero, d(0.60))
	require.Greater(t, len(p.Quotes), 1, "a full budget ladders across levels")

	total := decimal.Zero
	for _, q := range p.Quotes {
		notional := q.Size.Mul(q.Price)
		assert.True(t, notional.GreaterThanOrEqual(d(1)),
			"level %s size %s below the venue minimum", q.Price, q.Size)
		total = total.Add(q.Size)
	}
	assert.True(t, total.LessThanOrEqual(p.Budget), "grid exceeds the burst budget")
	// The whole budget deploys, short of at most one undersized remainder.
	assert.True(t, p.Budget.Sub(total).LessThan(d(3)),
		"budget stranded: deployed %s of %s", total, p.Budget)
}

func TestPlan_LaddersAcrossTheGrid(t *testing.T) {
	e := newTestEngine()

	p := e.Plan("mkt", types.SideUp, snap(10, 10, 50), decimal.Zero, d(0.60))
	require.GreaterOrEqual(t, len(p.Quotes), 10, "got %d levels", len(p.Quotes))

	seen := make(map[string]bool)
	for _, q := range p.Quotes {
		assert.False(t, seen[q.Price.String()], "duplicate level %s", q.Price)
		seen[q.Price.String()] = true
	}
}
