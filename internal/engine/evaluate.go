package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/polyquote/polyquote/internal/edge"
	"github.com/polyquote/polyquote/internal/entry"
	"github.com/polyquote/polyquote/internal/exec"
	"github.com/polyquote/polyquote/internal/fairvalue"
	"github.com/polyquote/polyquote/internal/metrics"
	"github.com/polyquote/polyquote/internal/telemetry"
	"github.com/polyquote/polyquote/internal/types"
)

// sampleInterval throttles the (distance, time) observations kept for
// settlement-time fair value updates.
const sampleInterval = 15 * time.Second

// Evaluate runs one decision cycle for a market against the given spot
// and book. Component rejections are absorbed here; only execution
// channel failures surface as the returned error, and the caller must
// treat them as scoped to this one market.
func (e *Engine) Evaluate(ctx context.Context, marketID string, spot float64, book types.OrderBook) error {
	st, ok := e.lookup(marketID)
	if !ok {
		return &ConfigError{Reason: types.ReasonMarketMissingFields, MarketID: marketID}
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	started := e.clk.Now()
	defer func() {
		metrics.CycleDuration.Observe(e.clk.Now().Sub(started).Seconds())
	}()

	if !book.Up.Ask.IsZero() || !book.Down.Ask.IsZero() {
		st.market.Book = book
	}
	if spot > 0 {
		st.lastSpot = spot
	}
	market := &st.market

	now := e.clk.Now()
	secsLeft := market.SecondsRemaining(now)
	if secsLeft <= 0 {
		return nil
	}

	e.bumpEvaluations(market.Asset)

	strike, _ := market.Strike.Float64()
	distance := spot - strike

	// Remember a sample for the settlement-time estimator update.
	if now.Sub(st.lastSampleAt) >= sampleInterval {
		st.samples = append(st.samples, fvSample{distance: distance, secsLeft: secsLeft, ts: now})
		st.lastSampleAt = now
	}

	tuning := e.assets[market.Asset]

	// ── Fair value and edge ──────────────────────────────────────────
	fv, err := e.estimator.Estimate(market.Asset, spot, distance, secsLeft)
	if err != nil {
		// Unknown asset is fatal configuration for this market only.
		log.Error().Err(err).Str("market", market.ID).Msg("skipping market")
		return nil
	}

	inv := e.inv.GetInventory(market.ID, secsLeft)
	result := e.calculator.ComputeEdge(market.Book.Up.Ask, market.Book.Down.Ask, fv, inv, secsLeft, tuning.WindowSeconds)

	mp := e.buildMispricing(market, result, fv, secsLeft)
	if mp.Exists {
		e.bumpSignals()
		metrics.Signals.WithLabelValues(string(mp.Side), fmt.Sprintf("%t", mp.Causality)).Inc()
		e.sink.Emit(telemetry.Event{
			Kind:     "SIGNAL",
			MarketID: market.ID,
			Asset:    market.Asset,
			Side:     string(mp.Side),
			Detail:   mp.Detail,
			Value:    decimalFloat(mp.Edge),
		})
	}

	// ── Entry ────────────────────────────────────────────────────────
	filterPassed := e.adverseSelectionFilter(market)
	decision := e.entries.Decide(market, mp, filterPassed, secsLeft)
	if !decision.Accepted && decision.Reason != types.ReasonNoMispricing {
		metrics.Rejections.WithLabelValues(decision.Reason.String()).Inc()
	}
	if decision.Accepted {
		if err := e.executeEntry(ctx, st, mp, decision); err != nil {
			return fmt.Errorf("entry execution for %s: %w", market.ID, err)
		}
	}

	// ── Quoting ──────────────────────────────────────────────────────
	if !e.cfg.ShadowMode {
		if err := e.syncQuotes(ctx, st, secsLeft); err != nil {
			return fmt.Errorf("quote sync for %s: %w", market.ID, err)
		}
	}

	// ── Hedge / rebalance ────────────────────────────────────────────
	_, force := e.calculator.ShouldForceCounter(e.inv.GetInventory(market.ID, secsLeft))
	action, err := e.hedger.Evaluate(ctx, market, secsLeft, force)
	if err != nil {
		return fmt.Errorf("hedge for %s: %w", market.ID, err)
	}
	if action.Placed {
		e.bumpHedges()
		metrics.Hedges.WithLabelValues(fmt.Sprintf("%t", action.Emergency)).Inc()
		e.notifier.NotifyHedge(market.ID, string(action.Side), action.Qty, action.Price, action.Emergency)
		e.sink.Emit(telemetry.Event{
			Kind:     "HEDGE",
			MarketID: market.ID,
			Asset:    market.Asset,
			Side:     string(action.Side),
			Value:    decimalFloat(action.Qty),
		})
	}

	// ── Reversal guard ───────────────────────────────────────────────
	fired, err := e.reversal.Sweep(ctx, market, secsLeft)
	if fired {
		metrics.EmergencyExits.Inc()
		held, _ := e.inv.GetInventory(market.ID, secsLeft).Leading()
		e.notifier.NotifyExit(market.ID, string(held), decimal.Zero)
		e.sink.Emit(telemetry.Event{Kind: "EXIT", MarketID: market.ID, Asset: market.Asset})
	}
	if err != nil {
		return fmt.Errorf("reversal guard for %s: %w", market.ID, err)
	}

	// ── Correction monitor (observational) ───────────────────────────
	snap := e.inv.GetInventory(market.ID, secsLeft)
	for _, side := range []types.Side{types.SideUp, types.SideDown} {
		if snap.Side(side).Shares.IsPositive() {
			if e.correction.Observe(market.ID, side, market.Book.Top(side).Bid) {
				e.bumpCorrections()
			}
		}
	}
	metrics.LockedProfit.Set(decimalFloat(snap.LockedProfit()))
	metrics.TelemetryDropped.Set(float64(e.sink.Dropped()))

	return nil
}

// buildMispricing turns the per-side edge result into at most one
// tradable signal, preferring the more underpriced side.
func (e *Engine) buildMispricing(market *types.Market, result edge.Result, fv fairvalue.Estimate, secsLeft float64) types.Mispricing {
	side := types.SideUp
	sideEdge := result.EdgeUp
	ask := market.Book.Up.Ask
	fair := decimal.NewFromFloat(fv.PUp)
	signal := result.SignalUp

	if result.SignalDn && (!result.SignalUp || result.EdgeDown.LessThan(result.EdgeUp)) {
		side = types.SideDown
		sideEdge = result.EdgeDown
		ask = market.Book.Down.Ask
		fair = decimal.NewFromFloat(fv.PDown)
		signal = result.SignalDn
	}
	if !signal {
		return types.Mispricing{}
	}

	check := e.detector.Check(market.Asset, secsLeft)
	return types.Mispricing{
		Exists:     true,
		Side:       side,
		Edge:       sideEdge,
		Theta:      result.Theta,
		FairValue:  fair,
		Ask:        ask,
		Causality:  check.Passed,
		Confidence: check.Confidence,
		Detail:     check.Reason,
	}
}

// executeEntry takes the ask aggressively for an accepted entry. The
// pending marker is already set; this either commits the fill or rolls
// the marker back.
func (e *Engine) executeEntry(ctx context.Context, st *marketState, mp types.Mispricing, decision entry.Decision) error {
	market := &st.market
	res, err := e.channel.PlaceOrder(ctx, exec.OrderRequest{
		TokenRef: market.Token(decision.Side),
		Price:    decision.Price,
		Size:     decision.Size,
		Type:     exec.OrderTypeFAK,
		ClientID: decision.ClientID,
	})
	if err != nil {
		e.entries.ClearPendingOrder(market.ID, decision.Side)
		log.Error().Err(err).Str("market", market.ID).Msg("entry order failed, pending cleared")
		return err
	}
	if !res.FilledSize.IsPositive() {
		e.entries.ClearPendingOrder(market.ID, decision.Side)
		log.Debug().Str("market", market.ID).Msg("entry order missed, pending cleared")
		return nil
	}

	price := res.AvgFillPrice
	if !price.IsPositive() {
		price = decision.Price
	}
	e.entries.RecordEntry(market.ID, decision.Side, res.FilledSize, price)
	e.correction.Track(market.ID, decision.Side, price, mp.Edge)
	e.bumpEntries()
	metrics.Entries.WithLabelValues(string(decision.Side)).Inc()
	e.notifier.NotifyEntry(market.ID, string(decision.Side), price, res.FilledSize)
	e.sink.Emit(telemetry.Event{
		Kind:     "ENTRY",
		MarketID: market.ID,
		Asset:    market.Asset,
		Side:     string(decision.Side),
		Value:    decimalFloat(res.FilledSize),
	})

	// Cumulative fill bookkeeping on the market record.
	if decision.Side == types.SideUp {
		market.FilledSharesUp = market.FilledSharesUp.Add(res.FilledSize)
		market.FilledCostUp = market.FilledCostUp.Add(res.FilledSize.Mul(price))
	} else {
		market.FilledSharesDn = market.FilledSharesDn.Add(res.FilledSize)
		market.FilledCostDn = market.FilledCostDn.Add(res.FilledSize.Mul(price))
	}
	return nil
}

// adverseSelectionFilter rejects books too broken or too thin to quote
// into: a crossed or absent book means whoever is on the other side
// knows something we do not yet.
func (e *Engine) adverseSelectionFilter(market *types.Market) bool {
	for _, side := range []types.Side{types.SideUp, types.SideDown} {
		top := market.Book.Top(side)
		if !top.Ask.IsPositive() {
			return false
		}
		if top.Ask.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return false
		}
		if top.Bid.IsPositive() && top.Bid.GreaterThan(top.Ask) {
			return false
		}
	}
	// Both asks summing well below $1 is free money nobody offers;
	// such a book is stale or bait.
	combined := market.Book.Up.Ask.Add(market.Book.Down.Ask)
	return combined.GreaterThan(decimal.NewFromFloat(0.80))
}

func decimalFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func (e *Engine) bumpEvaluations(asset string) {
	metrics.Evaluations.WithLabelValues(asset).Inc()
	e.statsMu.Lock()
	e.stats.Evaluations++
	e.statsMu.Unlock()
}

func (e *Engine) bumpSignals() {
	e.statsMu.Lock()
	e.stats.Signals++
	e.statsMu.Unlock()
}

func (e *Engine) bumpEntries() {
	e.statsMu.Lock()
	e.stats.Entries++
	e.statsMu.Unlock()
}

func (e *Engine) bumpHedges() {
	e.statsMu.Lock()
	e.stats.Hedges++
	e.statsMu.Unlock()
}

func (e *Engine) bumpCorrections() {
	e.statsMu.Lock()
	e.stats.Corrections++
	e.statsMu.Unlock()
}
