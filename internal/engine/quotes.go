package engine

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/polyquote/polyquote/internal/exec"
	"github.com/polyquote/polyquote/internal/quoting"
	"github.com/polyquote/polyquote/internal/telemetry"
	"github.com/polyquote/polyquote/internal/types"
)

// restingOrder is one of our GTC quote levels on the book. applied is
// the filled quantity already booked into inventory, so repeated polls
// of a partially filled order only credit the delta.
type restingOrder struct {
	quote   quoting.Quote
	applied decimal.Decimal
}

func (r *restingOrder) remaining() decimal.Decimal {
	return r.quote.Size.Sub(r.applied)
}

// syncQuotes reconciles the resting grid for both sides of a market:
// poll fills, refresh open quantity, recompute the plan against the
// current inventory snapshot, and replace the grid when the desired
// price set changed or the resting quantity no longer fits the side's
// capacity. Fills discovered here are booked before planning so the
// budget formula sees them.
func (e *Engine) syncQuotes(ctx context.Context, st *marketState, secsLeft float64) error {
	market := &st.market

	for _, side := range []types.Side{types.SideUp, types.SideDown} {
		resting := st.resting(side)

		if err := e.pollRestingFills(ctx, st, side, resting); err != nil {
			return err
		}

		open := decimal.Zero
		for _, r := range resting {
			open = open.Add(r.remaining())
		}
		e.setOpenQty(market, side, open)

		inv := e.inv.GetInventory(market.ID, secsLeft)
		plan := e.quoter.Plan(market.ID, side, inv, open, market.Book.Top(side).Ask)

		// A stale grid outlives its safety the moment fills or iMax
		// decay shrink the side's resting capacity below what is on
		// the book: a full sweep would then breach the imbalance cap.
		overCapacity := open.GreaterThan(plan.Capacity)

		if plan.Blocked == types.ReasonImbalanceCap || (overCapacity && len(plan.Quotes) == 0) {
			// Hard cap on the leading side pulls the whole grid, as
			// does excess resting quantity with nothing to replace it.
			if err := e.cancelSide(ctx, st, side, resting); err != nil {
				return err
			}
			continue
		}
		if len(plan.Quotes) == 0 {
			continue
		}
		if !overCapacity && samePriceGrid(resting, plan.Quotes) {
			continue
		}

		if err := e.cancelSide(ctx, st, side, resting); err != nil {
			return err
		}
		if err := e.placeGrid(ctx, st, side, plan); err != nil {
			return err
		}
	}
	return nil
}

// pollRestingFills checks every tracked order and books the fill delta
// into inventory and the market's cumulative records. Terminal orders
// leave the map.
func (e *Engine) pollRestingFills(ctx context.Context, st *marketState, side types.Side, resting map[string]*restingOrder) error {
	market := &st.market
	for orderID, r := range resting {
		checkCtx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmWait)
		res, err := e.channel.CheckOrder(checkCtx, orderID)
		cancel()
		if err != nil {
			// Transient venue failure; keep the order tracked and
			// retry next cycle.
			log.Warn().Err(err).Str("order", orderID).Msg("quote status check failed")
			continue
		}
		if res.Status == exec.StatusUnknown {
			continue
		}

		delta := res.FilledSize.Sub(r.applied)
		if delta.IsPositive() {
			price := res.AvgFillPrice
			if !price.IsPositive() {
				price = r.quote.Price
			}
			e.applyQuoteFill(market, side, delta, price)
			r.applied = res.FilledSize
			log.Info().
				Str("market", market.ID).
				Str("side", string(side)).
				Str("qty", delta.String()).
				Str("price", price.String()).
				Msg("💧 quote fill")
		}

		if res.Status == exec.StatusFilled || res.Status == exec.StatusCancelled {
			delete(resting, orderID)
		}
	}
	return nil
}

// applyQuoteFill books a passive fill everywhere a fill matters.
func (e *Engine) applyQuoteFill(market *types.Market, side types.Side, qty, price decimal.Decimal) {
	e.inv.AddPosition(market.ID, side, qty, price)
	if side == types.SideUp {
		market.FilledSharesUp = market.FilledSharesUp.Add(qty)
		market.FilledCostUp = market.FilledCostUp.Add(qty.Mul(price))
	} else {
		market.FilledSharesDn = market.FilledSharesDn.Add(qty)
		market.FilledCostDn = market.FilledCostDn.Add(qty.Mul(price))
	}
	e.sink.Emit(telemetry.Event{
		Kind:     "QUOTE_FILL",
		MarketID: market.ID,
		Asset:    market.Asset,
		Side:     string(side),
		Value:    decimalFloat(qty),
	})
}

// cancelSide pulls every resting order on one side. A cancel error is
// returned after draining the rest so a single flaky cancel does not
// leave half the grid untracked.
func (e *Engine) cancelSide(ctx context.Context, st *marketState, side types.Side, resting map[string]*restingOrder) error {
	var firstErr error
	for orderID := range resting {
		if err := e.channel.CancelOrder(ctx, orderID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			log.Warn().Err(err).Str("order", orderID).Msg("quote cancel failed")
			continue
		}
		delete(resting, orderID)
	}
	e.setOpenQty(&st.market, side, openTotal(resting))
	return firstErr
}

// placeGrid rests the planned levels as GTC orders and tracks them.
func (e *Engine) placeGrid(ctx context.Context, st *marketState, side types.Side, plan quoting.Plan) error {
	market := &st.market
	resting := st.resting(side)

	for _, q := range plan.Quotes {
		res, err := e.channel.PlaceOrder(ctx, exec.OrderRequest{
			TokenRef: market.Token(side),
			Price:    q.Price,
			Size:     q.Size,
			Type:     exec.OrderTypeGTC,
		})
		if err != nil {
			e.setOpenQty(market, side, openTotal(resting))
			return err
		}
		r := &restingOrder{quote: q}
		if res.FilledSize.IsPositive() {
			// Crossed on arrival; book the fill immediately.
			price := res.AvgFillPrice
			if !price.IsPositive() {
				price = q.Price
			}
			e.applyQuoteFill(market, side, res.FilledSize, price)
			r.applied = res.FilledSize
		}
		if res.Status == exec.StatusFilled {
			continue
		}
		resting[res.OrderID] = r
	}

	e.setOpenQty(market, side, openTotal(resting))
	log.Debug().
		Str("market", market.ID).
		Str("side", string(side)).
		Str("state", plan.State.String()).
		Str("budget", plan.Budget.String()).
		Int("levels", len(resting)).
		Msg("quote grid refreshed")
	return nil
}

func (e *Engine) setOpenQty(market *types.Market, side types.Side, qty decimal.Decimal) {
	if side == types.SideUp {
		market.OpenQtyUp = qty
	} else {
		market.OpenQtyDn = qty
	}
}

func (st *marketState) resting(side types.Side) map[string]*restingOrder {
	if side == types.SideUp {
		return st.restingUp
	}
	return st.restingDn
}

func openTotal(resting map[string]*restingOrder) decimal.Decimal {
	total := decimal.Zero
	for _, r := range resting {
		total = total.Add(r.remaining())
	}
	return total
}

// samePriceGrid reports whether the resting orders already sit at
// exactly the planned price levels.
func samePriceGrid(resting map[string]*restingOrder, quotes []quoting.Quote) bool {
	if len(resting) != len(quotes) {
		return false
	}
	want := make(map[string]bool, len(quotes))
	for _, q := range quotes {
		want[q.Price.String()] = true
	}
	for _, r := range resting {
		if !want[r.quote.Price.String()] {
			return false
		}
	}
	return true
}
