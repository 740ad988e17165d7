package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Side is one outcome of a binary market.
type Side string

const (
	SideUp   Side = "UP"
	SideDown Side = "DOWN"
)

// Opposite returns the other side of the market.
func (s Side) Opposite() Side {
	if s == SideUp {
		return SideDown
	}
	return SideUp
}

// BookTop is the best bid/ask for one side of a market.
type BookTop struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// Mid returns the midpoint of bid and ask, or whichever is set.
func (b BookTop) Mid() decimal.Decimal {
	if b.Bid.IsZero() {
		return b.Ask
	}
	if b.Ask.IsZero() {
		return b.Bid
	}
	return b.Bid.Add(b.Ask).Div(decimal.NewFromInt(2))
}

// OrderBook carries both sides' best levels for one evaluation cycle.
type OrderBook struct {
	Up        BookTop
	Down      BookTop
	Timestamp time.Time
}

// Top returns the book top for the given side.
func (ob OrderBook) Top(side Side) BookTop {
	if side == SideUp {
		return ob.Up
	}
	return ob.Down
}

// Market is one active binary-outcome instrument.
type Market struct {
	ID      string
	Asset   string
	Strike  decimal.Decimal
	Expiry  time.Time
	TokenUp string // exchange token reference for the UP side
	TokenDn string
	Book    OrderBook

	// Per-side resting order quantity (our own open orders).
	OpenQtyUp decimal.Decimal
	OpenQtyDn decimal.Decimal

	// Cumulative fills.
	FilledSharesUp decimal.Decimal
	FilledCostUp   decimal.Decimal
	FilledSharesDn decimal.Decimal
	FilledCostDn   decimal.Decimal
}

// Token returns the token reference for a side.
func (m *Market) Token(side Side) string {
	if side == SideUp {
		return m.TokenUp
	}
	return m.TokenDn
}

// OpenQty returns our resting order quantity on a side.
func (m *Market) OpenQty(side Side) decimal.Decimal {
	if side == SideUp {
		return m.OpenQtyUp
	}
	return m.OpenQtyDn
}

// SecondsRemaining returns time to expiry at now, floored at zero.
func (m *Market) SecondsRemaining(now time.Time) float64 {
	s := m.Expiry.Sub(now).Seconds()
	if s < 0 {
		return 0
	}
	return s
}

// OrderPurpose distinguishes why an order is in flight. At most one
// pending order may exist per (market, side, purpose).
type OrderPurpose string

const (
	PurposeEntry OrderPurpose = "ENTRY"
	PurposeHedge OrderPurpose = "HEDGE"
	PurposeExit  OrderPurpose = "EXIT"
)

// PendingOrder blocks duplicate submission for the same (market, side,
// purpose) while an order is in flight.
type PendingOrder struct {
	OrderID     string
	MarketID    string
	Side        Side
	Purpose     OrderPurpose
	Price       decimal.Decimal
	Size        decimal.Decimal
	SubmittedAt time.Time
}

// Confidence tier for a mispricing signal.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "HIGH"
	case ConfidenceMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Mispricing is a per-cycle, ephemeral signal. It is an input to one
// decision, never a record of truth.
type Mispricing struct {
	Exists     bool
	Side       Side
	Edge       decimal.Decimal // negative = underpriced vs fair value
	Theta      decimal.Decimal // dynamic threshold in force
	FairValue  decimal.Decimal
	Ask        decimal.Decimal
	Causality  bool
	Confidence Confidence
	Detail     string // logging only, never branched on
}
