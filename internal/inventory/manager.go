package inventory

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/polyquote/polyquote/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// INVENTORY MANAGER - authoritative position ledger
// ═══════════════════════════════════════════════════════════════════════════════
//
// Owns Position state exclusively. Every other component reads value
// snapshots; all mutation flows through AddPosition/ReducePosition so
// the weighted-average invariant (avgPrice == cost/shares) cannot drift.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Position is one side's holdings in one market.
type Position struct {
	Shares   decimal.Decimal
	AvgPrice decimal.Decimal
	Cost     decimal.Decimal

	CorrectionConfirmed bool
	HedgeShares         decimal.Decimal
	HedgePrice          decimal.Decimal
}

// Snapshot is the per-market inventory view handed to decision logic.
// It is a value copy; holding one across an awaited call is a bug, the
// caller must re-fetch after every suspension point.
type Snapshot struct {
	Up   Position
	Down Position
	Net  decimal.Decimal // upShares - downShares
	IMax decimal.Decimal // imbalance cap at this time remaining
}

// Paired returns min(upShares, downShares), the only quantity that is
// riskless at settlement.
func (s Snapshot) Paired() decimal.Decimal {
	if s.Up.Shares.LessThan(s.Down.Shares) {
		return s.Up.Shares
	}
	return s.Down.Shares
}

// LockedProfit is paired * (1 - avgUp - avgDown).
func (s Snapshot) LockedProfit() decimal.Decimal {
	return s.Paired().Mul(decimal.NewFromInt(1).Sub(s.Up.AvgPrice).Sub(s.Down.AvgPrice))
}

// Side returns the position for one side.
func (s Snapshot) Side(side types.Side) Position {
	if side == types.SideUp {
		return s.Up
	}
	return s.Down
}

// Imbalance is |upShares - downShares|.
func (s Snapshot) Imbalance() decimal.Decimal {
	return s.Net.Abs()
}

// Leading returns the side with more shares, and false when balanced.
func (s Snapshot) Leading() (types.Side, bool) {
	switch {
	case s.Net.IsPositive():
		return types.SideUp, true
	case s.Net.IsNegative():
		return types.SideDown, true
	default:
		return "", false
	}
}

type marketBook struct {
	up   Position
	down Position
}

// Manager is the per-market, per-side ledger.
type Manager struct {
	mu      sync.RWMutex
	markets map[string]*marketBook

	maxUnpaired   decimal.Decimal
	floorFraction float64
	windowSeconds float64
}

// NewManager creates a ledger whose imbalance cap decays linearly from
// maxUnpaired toward floorFraction*maxUnpaired as expiry approaches.
func NewManager(maxUnpaired decimal.Decimal, floorFraction, windowSeconds float64) *Manager {
	return &Manager{
		markets:       make(map[string]*marketBook),
		maxUnpaired:   maxUnpaired,
		floorFraction: floorFraction,
		windowSeconds: windowSeconds,
	}
}

// IMax returns the imbalance cap in force with secsLeft to expiry.
func (m *Manager) IMax(secsLeft float64) decimal.Decimal {
	frac := secsLeft / m.windowSeconds
	if frac > 1 {
		frac = 1
	}
	if frac < 0 {
		frac = 0
	}
	scale := m.floorFraction + (1-m.floorFraction)*frac
	return m.maxUnpaired.Mul(decimal.NewFromFloat(scale))
}

// AddPosition applies a fill: shares at price on one side. The average
// price is recomputed as a weighted mean over all fills.
func (m *Manager) AddPosition(marketID string, side types.Side, shares, price decimal.Decimal) {
	if shares.LessThanOrEqual(decimal.Zero) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	book, ok := m.markets[marketID]
	if !ok {
		book = &marketBook{}
		m.markets[marketID] = book
	}
	pos := book.side(side)

	newCost := pos.Cost.Add(shares.Mul(price))
	newShares := pos.Shares.Add(shares)
	pos.Cost = newCost
	pos.Shares = newShares
	pos.AvgPrice = newCost.Div(newShares)

	log.Debug().
		Str("market", marketID).
		Str("side", string(side)).
		Str("shares", shares.String()).
		Str("price", price.String()).
		Str("avg", pos.AvgPrice.String()).
		Msg("position added")
}

// ReducePosition removes shares from a side at their average cost,
// returning the shares actually removed.
func (m *Manager) ReducePosition(marketID string, side types.Side, shares decimal.Decimal) decimal.Decimal {
	if shares.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	book, ok := m.markets[marketID]
	if !ok {
		return decimal.Zero
	}
	pos := book.side(side)

	removed := shares
	if removed.GreaterThan(pos.Shares) {
		removed = pos.Shares
	}
	pos.Cost = pos.Cost.Sub(removed.Mul(pos.AvgPrice))
	pos.Shares = pos.Shares.Sub(removed)
	if pos.Shares.IsZero() {
		*pos = Position{}
	}
	return removed
}

// SetCorrectionConfirmed flips the correction flag for a side.
func (m *Manager) SetCorrectionConfirmed(marketID string, side types.Side) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if book, ok := m.markets[marketID]; ok {
		book.side(side).CorrectionConfirmed = true
	}
}

// RecordHedge attaches hedge fill details to a side's position.
func (m *Manager) RecordHedge(marketID string, side types.Side, shares, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.markets[marketID]
	if !ok {
		return
	}
	pos := book.side(side)
	pos.HedgeShares = pos.HedgeShares.Add(shares)
	pos.HedgePrice = price
}

// GetInventory returns a value snapshot with the time-decayed cap.
func (m *Manager) GetInventory(marketID string, secsLeft float64) Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{IMax: m.IMax(secsLeft)}
	if book, ok := m.markets[marketID]; ok {
		snap.Up = book.up
		snap.Down = book.down
	}
	snap.Net = snap.Up.Shares.Sub(snap.Down.Shares)
	return snap
}

// GetAvailableSpace returns how many shares may still be bought on side
// before the imbalance cap is hit. Buying the leading side shrinks the
// headroom; buying the lagging side grows it.
func (m *Manager) GetAvailableSpace(marketID string, side types.Side, secsLeft float64) decimal.Decimal {
	snap := m.GetInventory(marketID, secsLeft)

	signedNet := snap.Net
	if side == types.SideDown {
		signedNet = signedNet.Neg()
	}
	space := snap.IMax.Sub(signedNet)
	if space.IsNegative() {
		return decimal.Zero
	}
	return space
}

// ClearMarket drops a settled market's ledger and returns its final
// snapshot for settlement accounting.
func (m *Manager) ClearMarket(marketID string) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{}
	if book, ok := m.markets[marketID]; ok {
		snap.Up = book.up
		snap.Down = book.down
		snap.Net = snap.Up.Shares.Sub(snap.Down.Shares)
		delete(m.markets, marketID)
	}
	return snap
}

// Markets lists market IDs with any position on either side.
func (m *Manager) Markets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.markets))
	for id := range m.markets {
		out = append(out, id)
	}
	return out
}

func (b *marketBook) side(s types.Side) *Position {
	if s == types.SideUp {
		return &b.up
	}
	return &b.down
}
