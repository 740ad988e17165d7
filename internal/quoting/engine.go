package quoting

import (
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/polyquote/polyquote/internal/inventory"
	"github.com/polyquote/polyquote/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// QUOTING ENGINE
// ═══════════════════════════════════════════════════════════════════════════════
//
// Generates resting buy quotes on a price grid, bounded by the
// burst-safe budget: the maximum quantity this side may have resting
// such that a full fill of everything cannot push the imbalance past
// the cap. The budget formula is authoritative; every exemption below
// is derived from it, never from the balance label alone.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Quote is one grid level to rest on the book.
type Quote struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// BalanceState labels a side's relation to the other side's holdings.
type BalanceState int

const (
	Balanced BalanceState = iota
	Trailing              // this side has fewer shares
	Leading               // this side has more shares
)

func (b BalanceState) String() string {
	switch b {
	case Trailing:
		return "trailing"
	case Leading:
		return "leading"
	default:
		return "balanced"
	}
}

// Plan is the engine's output for one (market, side): either quotes or
// a machine-readable block reason. Zero quotes is a valid outcome.
// Capacity is the most this side may safely have resting in total: a
// full sweep of that quantity cannot push the imbalance past the cap.
type Plan struct {
	Quotes   []Quote
	State    BalanceState
	Budget   decimal.Decimal
	Capacity decimal.Decimal
	Blocked  types.RejectReason
}

// Config is the quoting grid and its guards.
type Config struct {
	GridMin     decimal.Decimal
	GridMax     decimal.Decimal
	GridStep    decimal.Decimal
	SweetSpot   decimal.Decimal // level closest to the lowest expected combined cost
	SafetyGap   decimal.Decimal // stay this far below the live ask (maker-only)
	MinNotional decimal.Decimal // minimum dollar size per level
}

// Engine computes quote plans. It is stateless across cycles: budgets
// are derived from the inventory snapshot every call and never cached.
type Engine struct {
	cfg Config
}

// NewEngine creates a quoting engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// increment is the engine's one-quote quantum: the share quantity of a
// minimum-notional level at the sweet spot.
func (e *Engine) increment() decimal.Decimal {
	return e.cfg.MinNotional.DivRound(e.cfg.SweetSpot, 2)
}

// Plan evaluates one (market, side). existingOpenQty is our resting
// order quantity already on this side's book; liveAsk is the best ask
// we must not cross.
func (e *Engine) Plan(marketID string, side types.Side, inv inventory.Snapshot, existingOpenQty, liveAsk decimal.Decimal) Plan {
	imbalance := inv.Imbalance()
	leading, hasLead := inv.Leading()

	state := Balanced
	if hasLead && imbalance.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		if leading == side {
			state = Leading
		} else {
			state = Trailing
		}
	}

	// Burst-safe budget: existing + new resting quantity must not be
	// able to push |up - down| past the cap if it all fills. Capacity
	// is that total bound; budget is what is left of it.
	var capacity decimal.Decimal
	switch state {
	case Leading:
		capacity = inv.IMax.Sub(imbalance)
	case Trailing:
		capacity = inv.IMax.Add(imbalance)
	default:
		capacity = inv.IMax
	}
	if capacity.IsNegative() {
		capacity = decimal.Zero
	}
	budget := capacity.Sub(existingOpenQty)
	if budget.IsNegative() {
		budget = decimal.Zero
	}

	// Hard cap reached: the leading side must stop quoting entirely.
	// The trailing side is exempt; it has to quote to close the gap.
	if state == Leading && imbalance.GreaterThanOrEqual(inv.IMax) {
		log.Debug().
			Str("market", marketID).
			Str("side", string(side)).
			Str("imbalance", imbalance.String()).
			Str("i_max", inv.IMax.String()).
			Msg("quoting blocked: imbalance at cap")
		return Plan{State: state, Budget: decimal.Zero, Capacity: capacity, Blocked: types.ReasonImbalanceCap}
	}

	inc := e.increment()
	if budget.LessThan(inc) {
		switch state {
		case Trailing:
			// Minimum override: just enough to close the gap plus one
			// buffer increment. Closing the gap reduces imbalance, so
			// this cannot breach the cap.
			budget = imbalance.Add(inc)
		case Balanced:
			// Quoting both sides from flat is baseline behavior; grant
			// one increment rather than going dark.
			if inv.IMax.GreaterThanOrEqual(inc) {
				budget = inc
			} else {
				return Plan{State: state, Budget: budget, Capacity: capacity, Blocked: types.ReasonBudgetExhausted}
			}
		default:
			return Plan{State: state, Budget: budget, Capacity: capacity, Blocked: types.ReasonBudgetExhausted}
		}
	}

	quotes := e.fillGrid(budget, liveAsk)
	if len(quotes) == 0 {
		return Plan{State: state, Budget: budget, Capacity: capacity, Blocked: types.ReasonNoMakerPrice}
	}
	return Plan{Quotes: quotes, State: state, Budget: budget, Capacity: capacity}
}

// fillGrid walks grid prices nearest the sweet spot first, sizing each
// level to at least the minimum notional, until the budget runs out.
func (e *Engine) fillGrid(budget, liveAsk decimal.Decimal) []Quote {
	var prices []decimal.Decimal
	for p := e.cfg.GridMin; p.LessThanOrEqual(e.cfg.GridMax); p = p.Add(e.cfg.GridStep) {
		// Maker-only: never price within the safety gap of the ask.
		if liveAsk.IsPositive() && p.GreaterThan(liveAsk.Sub(e.cfg.SafetyGap)) {
			continue
		}
		prices = append(prices, p)
	}
	if len(prices) == 0 {
		return nil
	}

	sort.SliceStable(prices, func(i, j int) bool {
		di := prices[i].Sub(e.cfg.SweetSpot).Abs()
		dj := prices[j].Sub(e.cfg.SweetSpot).Abs()
		if !di.Equal(dj) {
			return di.LessThan(dj)
		}
		// Tie goes to the cheaper price.
		return prices[i].LessThan(prices[j])
	})

	var quotes []Quote
	remaining := budget
	for _, p := range prices {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		size := e.cfg.MinNotional.DivRound(p, 2)
		if size.Mul(p).LessThan(e.cfg.MinNotional) {
			// Rounding fell short of the venue minimum; take the next
			// cent of size so the level is never rejected.
			size = size.Add(decimal.New(1, -2))
		}
		if size.GreaterThan(remaining) {
			size = remaining
		}
		// A clipped remainder below the exchange minimum stays undeployed.
		if size.Mul(p).LessThan(e.cfg.MinNotional) && len(quotes) > 0 {
			break
		}
		quotes = append(quotes, Quote{Price: p, Size: size})
		remaining = remaining.Sub(size)
	}
	return quotes
}
