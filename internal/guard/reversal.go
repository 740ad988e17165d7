package guard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/polyquote/polyquote/internal/clock"
	"github.com/polyquote/polyquote/internal/config"
	"github.com/polyquote/polyquote/internal/exec"
	"github.com/polyquote/polyquote/internal/inventory"
	"github.com/polyquote/polyquote/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// REVERSAL GUARD - emergency exit on adverse reference moves
// ═══════════════════════════════════════════════════════════════════════════════
//
// Watches the leading reference price over a few-second window. When it
// moves against an unhedged position by more than the asset's dollar
// threshold, the guard cancels the passive hedge and takes the ask on
// the lagging side, accepting a small realized loss to kill the
// exposure before it gets worse.
//
// ═══════════════════════════════════════════════════════════════════════════════

// WorkingOrders lets the guard find and drop the passive hedge order it
// is about to replace with an aggressive one.
type WorkingOrders interface {
	Working(marketID string) (string, bool)
	ClearMarket(marketID string)
}

type refTick struct {
	price float64
	ts    time.Time
}

// Guard is the rate-limited emergency-exit watcher.
type Guard struct {
	mu sync.Mutex

	assets  config.Assets
	inv     *inventory.Manager
	channel exec.Channel
	hedges  WorkingOrders
	clk     clock.Clock

	window   time.Duration
	cooldown time.Duration
	interval time.Duration

	limiters map[string]*rate.Limiter // marketID -> sweep pacing
	venue    *rate.Limiter            // global order-flow backstop

	ticks      map[string][]refTick // asset -> rolling window
	suppressed map[string]time.Time // marketID -> cooldown end

	fired int
}

// New builds a guard sweeping each market at most once per interval.
// The same interval also paces emergency orders globally so a burst of
// firings across markets cannot flood the venue.
func New(assets config.Assets, inv *inventory.Manager, channel exec.Channel, hedges WorkingOrders, clk clock.Clock, interval, window, cooldown time.Duration) *Guard {
	return &Guard{
		assets:     assets,
		inv:        inv,
		channel:    channel,
		hedges:     hedges,
		clk:        clk,
		window:     window,
		cooldown:   cooldown,
		interval:   interval,
		limiters:   make(map[string]*rate.Limiter),
		venue:      rate.NewLimiter(rate.Every(interval), 1),
		ticks:      make(map[string][]refTick),
		suppressed: make(map[string]time.Time),
	}
}

// RecordReference feeds a leading reference price tick.
func (g *Guard) RecordReference(asset string, price float64, ts time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	window := append(g.ticks[asset], refTick{price: price, ts: ts})
	cutoff := ts.Add(-g.window)
	for len(window) > 0 && window[0].ts.Before(cutoff) {
		window = window[1:]
	}
	g.ticks[asset] = window
}

// Sweep evaluates one market's unhedged exposure. Rate-limited per
// market: a busy market's ticks never starve a quiet one's sweep.
func (g *Guard) Sweep(ctx context.Context, market *types.Market, secsLeft float64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	lim, ok := g.limiters[market.ID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(g.interval), 1)
		g.limiters[market.ID] = lim
	}
	if !lim.AllowN(g.clk.Now(), 1) {
		return false, nil
	}
	if until, ok := g.suppressed[market.ID]; ok && g.clk.Now().Before(until) {
		return false, nil
	}

	tuning, ok := g.assets[market.Asset]
	if !ok {
		return false, nil
	}

	snap := g.inv.GetInventory(market.ID, secsLeft)
	held, hasLead := snap.Leading()
	if !hasLead {
		return false, nil
	}
	// Hedged-up positions are someone else's problem; the guard only
	// covers exposure still awaiting its hedge.
	if snap.Side(held).HedgeShares.GreaterThanOrEqual(snap.Imbalance()) {
		return false, nil
	}

	adverse := g.adverseMove(market.Asset, held)
	if adverse < tuning.ReversalDollars {
		return false, nil
	}

	// Fire: cancel the passive hedge, then take the ask on the lagging
	// side to close the exposure now.
	lagging := held.Opposite()
	ask := market.Book.Top(lagging).Ask
	if !ask.IsPositive() {
		return false, nil
	}

	// Venue backstop: emergency orders across all markets share one
	// pacing interval. A deferred market stays eligible and fires on
	// its next sweep once a token is free.
	if !g.venue.AllowN(g.clk.Now(), 1) {
		return false, nil
	}

	if orderID, ok := g.hedges.Working(market.ID); ok {
		if err := g.channel.CancelOrder(ctx, orderID); err != nil {
			log.Warn().Err(err).Str("market", market.ID).Msg("emergency cancel failed")
		}
		g.hedges.ClearMarket(market.ID)
	}

	qty := snap.Imbalance().Sub(snap.Side(held).HedgeShares)
	res, err := g.channel.PlaceOrder(ctx, exec.OrderRequest{
		TokenRef: market.Token(lagging),
		Price:    ask,
		Size:     qty,
		Type:     exec.OrderTypeFAK,
		ClientID: uuid.NewString(),
	})

	// Emergency exits bypass normal cooldowns but impose their own,
	// longer one: a single noisy reading must not fire repeatedly.
	g.suppressed[market.ID] = g.clk.Now().Add(g.cooldown)
	g.fired++

	if err != nil {
		return true, err
	}
	if res.FilledSize.IsPositive() {
		price := res.AvgFillPrice
		if !price.IsPositive() {
			price = ask
		}
		g.inv.AddPosition(market.ID, lagging, res.FilledSize, price)
		g.inv.RecordHedge(market.ID, lagging, res.FilledSize, price)
	}

	log.Warn().
		Str("market", market.ID).
		Str("held", string(held)).
		Float64("adverse_move", adverse).
		Str("closed", res.FilledSize.String()).
		Str("price", ask.String()).
		Msg("reversal guard fired: emergency exit")

	return true, nil
}

// adverseMove returns how far the reference has moved against the held
// side within the rolling window, in reference dollars.
func (g *Guard) adverseMove(asset string, held types.Side) float64 {
	window := g.ticks[asset]
	if len(window) < 2 {
		return 0
	}
	latest := window[len(window)-1].price

	extreme := window[0].price
	for _, t := range window {
		if held == types.SideUp && t.price > extreme {
			extreme = t.price
		}
		if held == types.SideDown && t.price < extreme {
			extreme = t.price
		}
	}
	if held == types.SideUp {
		return extreme - latest // drop hurts an UP holder
	}
	return latest - extreme // rally hurts a DOWN holder
}

// Fired returns how many emergency exits the guard has triggered.
func (g *Guard) Fired() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fired
}

// ClearMarket drops suppression and pacing state for a settled market.
func (g *Guard) ClearMarket(marketID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.suppressed, marketID)
	delete(g.limiters, marketID)
}
