package exec

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestDryRun_FAKFillsImmediately(t *testing.T) {
	venue := NewDryRun()

	res, err := venue.PlaceOrder(context.Background(), OrderRequest{
		TokenRef: "tU", Price: d(0.52), Size: d(10), Type: OrderTypeFAK,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, res.Status)
	assert.True(t, res.FilledSize.Equal(d(10)))
	assert.True(t, res.AvgFillPrice.Equal(d(0.52)))

	open, err := venue.GetOpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open, "aggressive orders never rest")
}

func TestDryRun_GTCRestsUntilFilled(t *testing.T) {
	venue := NewDryRun()
	ctx := context.Background()

	res, err := venue.PlaceOrder(ctx, OrderRequest{
		TokenRef: "tD", Price: d(0.45), Size: d(10), Type: OrderTypeGTC,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusLive, res.Status)

	check, err := venue.CheckOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StatusLive, check.Status)

	venue.Fill(res.OrderID, d(4))
	check, err = venue.CheckOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, check.Status)
	assert.True(t, check.FilledSize.Equal(d(4)))

	venue.Fill(res.OrderID, d(6))
	check, err = venue.CheckOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, check.Status)
	assert.True(t, check.FilledSize.Equal(d(10)))

	open, err := venue.GetOpenOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestDryRun_Cancel(t *testing.T) {
	venue := NewDryRun()
	ctx := context.Background()

	res, err := venue.PlaceOrder(ctx, OrderRequest{
		TokenRef: "tD", Price: d(0.45), Size: d(10), Type: OrderTypeGTC,
	})
	require.NoError(t, err)
	require.NoError(t, venue.CancelOrder(ctx, res.OrderID))

	check, err := venue.CheckOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, check.Status)

	assert.Error(t, venue.CancelOrder(ctx, res.OrderID), "cancelling twice is a caller bug")
	assert.Error(t, venue.CancelOrder(ctx, "nope"))
}

func TestDryRun_UnknownOrder(t *testing.T) {
	venue := NewDryRun()
	check, err := venue.CheckOrder(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, check.Status)
}
