package engine

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/polyquote/polyquote/internal/telemetry"
	"github.com/polyquote/polyquote/internal/types"
)

// HandleSettlement closes out a market that resolved. Winning shares
// redeem at $1, losing shares at $0; realized pnl is redemption minus
// everything spent on both sides. The remembered samples feed the fair
// value estimator in timestamp order so each cell sees the outcome
// once per observation window.
func (e *Engine) HandleSettlement(ctx context.Context, marketID string, winner types.Side) error {
	st, ok := e.lookup(marketID)
	if !ok {
		return &ConfigError{Reason: types.ReasonMarketMissingFields, MarketID: marketID}
	}

	st.mu.Lock()
	market := st.market
	samples := st.samples
	st.samples = nil
	st.mu.Unlock()

	// Pull anything still resting; redemption replaces the book.
	st.mu.Lock()
	for _, side := range []types.Side{types.SideUp, types.SideDown} {
		if err := e.cancelSide(ctx, st, side, st.resting(side)); err != nil {
			log.Warn().Err(err).Str("market", marketID).Msg("cancel on settlement failed")
		}
	}
	st.mu.Unlock()

	var winShares decimal.Decimal
	if winner == types.SideUp {
		winShares = market.FilledSharesUp
	} else {
		winShares = market.FilledSharesDn
	}
	cost := market.FilledCostUp.Add(market.FilledCostDn)
	pnl := winShares.Sub(cost)

	e.statsMu.Lock()
	e.stats.Settled++
	if pnl.IsPositive() {
		e.stats.Wins++
	}
	e.stats.PnL = e.stats.PnL.Add(pnl)
	e.statsMu.Unlock()

	// The estimator learns from every sampled (distance, time) cell
	// this market passed through, oldest first.
	upWon := winner == types.SideUp
	for _, s := range samples {
		e.estimator.Update(market.Asset, s.distance, s.secsLeft, upWon, s.ts)
	}

	e.sink.Emit(telemetry.Event{
		Kind:     "SETTLEMENT",
		MarketID: marketID,
		Asset:    market.Asset,
		Side:     string(winner),
		Value:    decimalFloat(pnl),
	})
	e.notifier.NotifySettlement(marketID, string(winner), pnl)

	log.Info().
		Str("market", marketID).
		Str("winner", string(winner)).
		Str("pnl", pnl.String()).
		Str("redeemed", winShares.String()).
		Str("cost", cost.String()).
		Msg("🏁 market settled")

	e.UnregisterMarket(marketID)
	return nil
}
