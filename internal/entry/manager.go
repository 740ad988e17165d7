package entry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/polyquote/polyquote/internal/clock"
	"github.com/polyquote/polyquote/internal/inventory"
	"github.com/polyquote/polyquote/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENTRY MANAGER - gate-keeps one-sided position opens
// ═══════════════════════════════════════════════════════════════════════════════

// Decision is the outcome of one entry evaluation.
type Decision struct {
	Accepted bool
	Reason   types.RejectReason
	Side     types.Side
	Price    decimal.Decimal
	Size     decimal.Decimal
	ClientID string
}

type pendingKey struct {
	marketID string
	side     types.Side
}

// Manager enforces dedup, cooldown, notional caps and confidence
// gating before any one-sided position is opened.
type Manager struct {
	mu sync.Mutex

	inv *inventory.Manager
	clk clock.Clock

	shadowMode  bool
	cooldown    time.Duration
	maxNotional decimal.Decimal
	entryShares decimal.Decimal

	pending      map[pendingKey]types.PendingOrder
	nextEligible map[pendingKey]time.Time
}

// NewManager builds an entry manager over the inventory ledger.
func NewManager(inv *inventory.Manager, clk clock.Clock, shadowMode bool, cooldown time.Duration, maxNotional, entryShares decimal.Decimal) *Manager {
	return &Manager{
		inv:          inv,
		clk:          clk,
		shadowMode:   shadowMode,
		cooldown:     cooldown,
		maxNotional:  maxNotional,
		entryShares:  entryShares,
		pending:      make(map[pendingKey]types.PendingOrder),
		nextEligible: make(map[pendingKey]time.Time),
	}
}

// Decide evaluates one mispricing against the entry gates. On accept
// the (market, side) is marked pending before returning, so a second
// concurrent evaluation of the same opportunity rejects with
// ORDER_PENDING instead of emitting a duplicate order.
func (m *Manager) Decide(market *types.Market, mp types.Mispricing, filterPassed bool, secsLeft float64) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shadowMode {
		return Decision{Reason: types.ReasonShadowMode}
	}
	if !mp.Exists {
		return Decision{Reason: types.ReasonNoMispricing}
	}
	if !filterPassed {
		return Decision{Reason: types.ReasonFilterFailed}
	}
	if !mp.Causality {
		return Decision{Reason: types.ReasonCausalityFailed}
	}
	if mp.Confidence == types.ConfidenceLow {
		return Decision{Reason: types.ReasonLowConfidence}
	}

	key := pendingKey{marketID: market.ID, side: mp.Side}

	snap := m.inv.GetInventory(market.ID, secsLeft)
	if snap.Side(mp.Side).Shares.IsPositive() {
		return Decision{Reason: types.ReasonAlreadyPositioned}
	}
	if _, inFlight := m.pending[key]; inFlight {
		return Decision{Reason: types.ReasonOrderPending}
	}
	if until, ok := m.nextEligible[key]; ok && m.clk.Now().Before(until) {
		return Decision{Reason: types.ReasonCooldownActive}
	}

	size := m.entryShares
	notional := size.Mul(mp.Ask)
	if notional.GreaterThan(m.maxNotional) {
		// Shrink to the cap rather than rejecting outright, unless
		// even one share is over.
		size = m.maxNotional.DivRound(mp.Ask, 2)
		if size.LessThan(decimal.NewFromInt(1)) {
			return Decision{Reason: types.ReasonNotionalCap}
		}
	}

	clientID := uuid.NewString()
	// Load-bearing ordering: mark pending before the caller submits
	// anything. The rollback path is ClearPendingOrder.
	m.pending[key] = types.PendingOrder{
		OrderID:     clientID,
		MarketID:    market.ID,
		Side:        mp.Side,
		Purpose:     types.PurposeEntry,
		Price:       mp.Ask,
		Size:        size,
		SubmittedAt: m.clk.Now(),
	}

	log.Info().
		Str("market", market.ID).
		Str("side", string(mp.Side)).
		Str("price", mp.Ask.String()).
		Str("size", size.String()).
		Str("edge", mp.Edge.String()).
		Str("confidence", mp.Confidence.String()).
		Msg("entry accepted")

	return Decision{
		Accepted: true,
		Side:     mp.Side,
		Price:    mp.Ask,
		Size:     size,
		ClientID: clientID,
	}
}

// RecordEntry commits a fill: clears the pending marker, starts the
// cooldown, and applies the position to the inventory ledger.
func (m *Manager) RecordEntry(marketID string, side types.Side, shares, price decimal.Decimal) {
	m.mu.Lock()
	key := pendingKey{marketID: marketID, side: side}
	delete(m.pending, key)
	m.nextEligible[key] = m.clk.Now().Add(m.cooldown)
	m.mu.Unlock()

	m.inv.AddPosition(marketID, side, shares, price)
}

// ClearPendingOrder is the explicit rollback path on order failure.
// No cooldown is charged; the next cycle may retry from scratch.
func (m *Manager) ClearPendingOrder(marketID string, side types.Side) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, pendingKey{marketID: marketID, side: side})
}

// PendingOrder returns the in-flight order for (market, side), if any.
func (m *Manager) PendingOrder(marketID string, side types.Side) (types.PendingOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	po, ok := m.pending[pendingKey{marketID: marketID, side: side}]
	return po, ok
}

// ClearMarket drops all entry state for a settled market.
func (m *Manager) ClearMarket(marketID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.pending {
		if key.marketID == marketID {
			delete(m.pending, key)
		}
	}
	for key := range m.nextEligible {
		if key.marketID == marketID {
			delete(m.nextEligible, key)
		}
	}
}
