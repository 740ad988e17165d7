package hedge

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/polyquote/polyquote/internal/clock"
	"github.com/polyquote/polyquote/internal/exec"
	"github.com/polyquote/polyquote/internal/inventory"
	"github.com/polyquote/polyquote/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// HEDGE / REBALANCE MANAGER
// ═══════════════════════════════════════════════════════════════════════════════
//
// Narrows the gap between sides by buying the lagging side. Rebalancing
// only catches up, it never leads: without a minimum paired base there
// is nothing to protect and a "hedge" would just be a speculative
// one-sided bet.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Config bounds the manager's behavior.
type Config struct {
	Tolerance      decimal.Decimal // gap we live with
	MinPaired      decimal.Decimal // paired base required before acting
	NormalCeiling  decimal.Decimal // max projected combined cost
	EmergencyGap   decimal.Decimal // gap beyond which the relaxed ceiling applies
	RelaxedCeiling decimal.Decimal
	Cooldown       time.Duration   // after a fill
	MinHold        time.Duration   // before a re-price is considered
	RepriceDelta   decimal.Decimal // ask improvement that triggers a re-price
	ConfirmWait    time.Duration   // bound on a single order-status check
}

// Action reports what one evaluation did, for logging and stats.
type Action struct {
	Placed    bool
	Filled    decimal.Decimal
	Reason    types.RejectReason
	Side      types.Side
	Price     decimal.Decimal
	Qty       decimal.Decimal
	Emergency bool
}

type workingOrder struct {
	orderID     string
	side        types.Side
	price       decimal.Decimal
	qty         decimal.Decimal
	placedAt    time.Time
	appliedFill decimal.Decimal // portion already booked to inventory
}

// Manager keeps at most one working hedge order per market.
type Manager struct {
	mu sync.Mutex

	cfg     Config
	inv     *inventory.Manager
	channel exec.Channel
	clk     clock.Clock

	working      map[string]*workingOrder
	nextEligible map[string]time.Time
}

// NewManager builds a hedge manager over the ledger and venue.
func NewManager(cfg Config, inv *inventory.Manager, channel exec.Channel, clk clock.Clock) *Manager {
	if cfg.ConfirmWait <= 0 {
		cfg.ConfirmWait = 5 * time.Second
	}
	return &Manager{
		cfg:          cfg,
		inv:          inv,
		channel:      channel,
		clk:          clk,
		working:      make(map[string]*workingOrder),
		nextEligible: make(map[string]time.Time),
	}
}

// Evaluate runs one hedge cycle for a market. force comes from the
// edge calculator's forced-counter check and waives the paired-base
// requirement; extreme, expensive imbalance must be narrowed even from
// a thin base. The inventory snapshot is re-fetched internally after
// every venue call; nothing is cached across suspension points.
func (m *Manager) Evaluate(ctx context.Context, market *types.Market, secsLeft float64, force bool) (Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.inv.GetInventory(market.ID, secsLeft)
	gap := snap.Net // upShares - downShares

	if gap.Abs().LessThanOrEqual(m.cfg.Tolerance) {
		// Balanced enough. A stale resting hedge from a previous
		// imbalance must not linger.
		if wo, ok := m.working[market.ID]; ok {
			if err := m.channel.CancelOrder(ctx, wo.orderID); err != nil {
				log.Warn().Err(err).Str("market", market.ID).Msg("stale hedge cancel failed")
			}
			delete(m.working, market.ID)
		}
		return Action{Reason: types.ReasonGapWithinTolerance}, nil
	}

	if !force && snap.Paired().LessThan(m.cfg.MinPaired) {
		return Action{Reason: types.ReasonBelowMinPaired}, nil
	}

	leading, _ := snap.Leading()
	target := leading.Opposite()
	targetQty := gap.Abs().Sub(m.cfg.Tolerance)

	// An order already working: poll it and book any new fill delta.
	if wo, ok := m.working[market.ID]; ok {
		return m.tendWorking(ctx, market, wo)
	}

	if until, ok := m.nextEligible[market.ID]; ok && m.clk.Now().Before(until) {
		return Action{Reason: types.ReasonCooldownActive}, nil
	}

	ask := market.Book.Top(target).Ask
	if !ask.IsPositive() {
		return Action{Reason: types.ReasonNoMakerPrice}, nil
	}

	// Project the combined cost of completing the hedge at this ask.
	dominantAvg := snap.Side(leading).AvgPrice
	projected := dominantAvg.Add(ask)

	emergency := force || gap.Abs().GreaterThan(m.cfg.EmergencyGap)
	ceiling := m.cfg.NormalCeiling
	if emergency {
		ceiling = m.cfg.RelaxedCeiling
	}
	if projected.GreaterThan(ceiling) {
		log.Warn().
			Str("market", market.ID).
			Str("projected", projected.String()).
			Str("ceiling", ceiling.String()).
			Bool("emergency", emergency).
			Msg("hedge rejected: combined cost over ceiling")
		return Action{Reason: types.ReasonCostCeiling, Emergency: emergency}, nil
	}

	req := exec.OrderRequest{
		TokenRef: market.Token(target),
		Price:    ask,
		Size:     targetQty,
		Type:     exec.OrderTypeGTC,
		ClientID: uuid.NewString(),
	}
	res, err := m.channel.PlaceOrder(ctx, req)
	if err != nil {
		return Action{Reason: types.ReasonNone}, err
	}

	m.working[market.ID] = &workingOrder{
		orderID:  res.OrderID,
		side:     target,
		price:    ask,
		qty:      targetQty,
		placedAt: m.clk.Now(),
	}

	log.Info().
		Str("market", market.ID).
		Str("side", string(target)).
		Str("price", ask.String()).
		Str("qty", targetQty.String()).
		Bool("emergency", emergency).
		Msg("hedge order placed")

	return Action{Placed: true, Side: target, Price: ask, Qty: targetQty, Emergency: emergency}, nil
}

// tendWorking polls the working order, applies newly-filled quantity to
// the ledger immediately, and re-prices a stale order when the ask has
// improved meaningfully after the minimum hold.
func (m *Manager) tendWorking(ctx context.Context, market *types.Market, wo *workingOrder) (Action, error) {
	checkCtx, cancel := context.WithTimeout(ctx, m.cfg.ConfirmWait)
	res, err := m.channel.CheckOrder(checkCtx, wo.orderID)
	cancel()
	if err != nil {
		return Action{Reason: types.ReasonOrderPending}, err
	}

	switch res.Status {
	case exec.StatusFilled, exec.StatusPartial:
		delta := res.FilledSize.Sub(wo.appliedFill)
		if delta.IsPositive() {
			price := res.AvgFillPrice
			if !price.IsPositive() {
				price = wo.price
			}
			m.inv.AddPosition(market.ID, wo.side, delta, price)
			m.inv.RecordHedge(market.ID, wo.side, delta, price)
			wo.appliedFill = res.FilledSize
			log.Info().
				Str("market", market.ID).
				Str("side", string(wo.side)).
				Str("delta", delta.String()).
				Msg("hedge fill applied")
		}
		if res.Status == exec.StatusFilled {
			delete(m.working, market.ID)
			m.nextEligible[market.ID] = m.clk.Now().Add(m.cfg.Cooldown)
			return Action{Filled: res.FilledSize, Side: wo.side, Price: wo.price}, nil
		}
		return Action{Filled: delta, Reason: types.ReasonOrderPending, Side: wo.side}, nil

	case exec.StatusCancelled:
		delete(m.working, market.ID)
		return Action{Reason: types.ReasonNone}, nil

	case exec.StatusUnknown:
		// Could not confirm within the wait: still in flight, the
		// working marker stays in force.
		return Action{Reason: types.ReasonOrderPending}, nil
	}

	// Still live: re-price if the ask improved enough and we have held
	// past the minimum.
	ask := market.Book.Top(wo.side).Ask
	held := m.clk.Now().Sub(wo.placedAt)
	if ask.IsPositive() && held >= m.cfg.MinHold && wo.price.Sub(ask).GreaterThanOrEqual(m.cfg.RepriceDelta) {
		if err := m.channel.CancelOrder(ctx, wo.orderID); err != nil {
			return Action{Reason: types.ReasonOrderPending}, err
		}
		delete(m.working, market.ID)
		log.Info().
			Str("market", market.ID).
			Str("old", wo.price.String()).
			Str("ask", ask.String()).
			Msg("hedge re-price: stale order cancelled")
		// Next cycle re-evaluates and places at the better price.
		return Action{Reason: types.ReasonNone}, nil
	}

	return Action{Reason: types.ReasonOrderPending}, nil
}

// Working returns the working hedge order ID for a market, if any.
func (m *Manager) Working(marketID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wo, ok := m.working[marketID]
	if !ok {
		return "", false
	}
	return wo.orderID, true
}

// ClearMarket drops hedge state for a settled market.
func (m *Manager) ClearMarket(marketID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.working, marketID)
	delete(m.nextEligible, marketID)
}
