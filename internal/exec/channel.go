package exec

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderType selects how an order rests or takes.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // maker, rests on the book
	OrderTypeFAK OrderType = "FAK" // aggressive, fills what it can and dies
)

// OrderStatus is the lifecycle state reported by the venue.
type OrderStatus string

const (
	StatusLive      OrderStatus = "LIVE"
	StatusFilled    OrderStatus = "FILLED"
	StatusPartial   OrderStatus = "PARTIAL"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusUnknown   OrderStatus = "UNKNOWN" // could not confirm within the wait
)

// OrderRequest is a buy order for one outcome token. The engine only
// ever buys; selling a side is buying its complement.
type OrderRequest struct {
	TokenRef string
	Price    decimal.Decimal
	Size     decimal.Decimal
	Type     OrderType
	ClientID string
}

// OrderResult is the venue's acknowledgement.
type OrderResult struct {
	OrderID      string
	Status       OrderStatus
	FilledSize   decimal.Decimal
	AvgFillPrice decimal.Decimal
}

// OpenOrder is one of our resting orders.
type OpenOrder struct {
	OrderID  string
	TokenRef string
	Price    decimal.Decimal
	Size     decimal.Decimal
	Filled   decimal.Decimal
}

// Channel is the already-authenticated execution venue. The real
// signing client lives outside this repository; the engine only
// depends on this interface.
type Channel interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	GetOpenOrders(ctx context.Context) ([]OpenOrder, error)
	CancelOrder(ctx context.Context, orderID string) error
	// CheckOrder resolves an in-flight order within the context's
	// deadline. StatusUnknown means still-pending, not failed.
	CheckOrder(ctx context.Context, orderID string) (*OrderResult, error)
}
