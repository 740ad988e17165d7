package exec

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// DryRun is an in-process venue: GTC orders rest, FAK orders fill
// immediately at their limit. Shadow mode and tests run against it;
// tests drive fills explicitly with Fill.
type DryRun struct {
	mu     sync.Mutex
	orders map[string]*OpenOrder
	fills  map[string]*OrderResult
}

// NewDryRun creates an empty simulated venue.
func NewDryRun() *DryRun {
	return &DryRun{
		orders: make(map[string]*OpenOrder),
		fills:  make(map[string]*OrderResult),
	}
}

func (d *DryRun) PlaceOrder(_ context.Context, req OrderRequest) (*OrderResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := req.ClientID
	if id == "" {
		id = uuid.NewString()
	}

	if req.Type == OrderTypeFAK {
		res := &OrderResult{
			OrderID:      id,
			Status:       StatusFilled,
			FilledSize:   req.Size,
			AvgFillPrice: req.Price,
		}
		d.fills[id] = res
		log.Info().
			Str("order", id).
			Str("token", req.TokenRef).
			Str("price", req.Price.String()).
			Str("size", req.Size.String()).
			Msg("[DRY] aggressive order filled")
		return res, nil
	}

	d.orders[id] = &OpenOrder{
		OrderID:  id,
		TokenRef: req.TokenRef,
		Price:    req.Price,
		Size:     req.Size,
	}
	log.Info().
		Str("order", id).
		Str("token", req.TokenRef).
		Str("price", req.Price.String()).
		Str("size", req.Size.String()).
		Msg("[DRY] order resting")
	return &OrderResult{OrderID: id, Status: StatusLive}, nil
}

func (d *DryRun) GetOpenOrders(_ context.Context) ([]OpenOrder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]OpenOrder, 0, len(d.orders))
	for _, o := range d.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (d *DryRun) CancelOrder(_ context.Context, orderID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.orders[orderID]; !ok {
		return fmt.Errorf("cancel %s: not found", orderID)
	}
	delete(d.orders, orderID)
	d.fills[orderID] = &OrderResult{OrderID: orderID, Status: StatusCancelled}
	return nil
}

func (d *DryRun) CheckOrder(_ context.Context, orderID string) (*OrderResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, ok := d.fills[orderID]; ok {
		return res, nil
	}
	if o, ok := d.orders[orderID]; ok {
		if o.Filled.IsPositive() {
			return &OrderResult{OrderID: orderID, Status: StatusPartial, FilledSize: o.Filled, AvgFillPrice: o.Price}, nil
		}
		return &OrderResult{OrderID: orderID, Status: StatusLive}, nil
	}
	return &OrderResult{OrderID: orderID, Status: StatusUnknown}, nil
}

// Fill force-fills a resting order, fully or partially. Tests use this
// to simulate the venue.
func (d *DryRun) Fill(orderID string, size decimal.Decimal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.orders[orderID]
	if !ok {
		return
	}
	o.Filled = o.Filled.Add(size)
	if o.Filled.GreaterThanOrEqual(o.Size) {
		d.fills[orderID] = &OrderResult{
			OrderID:      orderID,
			Status:       StatusFilled,
			FilledSize:   o.Size,
			AvgFillPrice: o.Price,
		}
		delete(d.orders, orderID)
	}
}
