package causality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/polyquote/polyquote/internal/config"
	"github.com/polyquote/polyquote/internal/types"
)

func newTestDetector() *Detector {
	return NewDetector(config.DefaultAssets(), 64)
}

func TestCheck_NoHistoryPasses(t *testing.T) {
	d := newTestDetector()
	res := d.Check("BTC", 300)
	assert.True(t, res.Passed, "a market that has reacted to nothing cannot have moved first")
	assert.Equal(t, types.ConfidenceLow, res.Confidence)
}

func TestCheck_UnknownAssetFails(t *testing.T) {
	d := newTestDetector()
	res := d.Check("DOGE", 300)
	assert.False(t, res.Passed)
}

func TestCheck_NoSignificantReferenceMove(t *testing.T) {
	d := newTestDetector()
	ts := time.Now()
	d.RecordReference("BTC", 98000, ts)
	d.RecordReference("BTC", 98003, ts.Add(100*time.Millisecond)) // $3, noise

	res := d.Check("BTC", 300)
	assert.False(t, res.Passed, "no reference move means no causal story for the signal")
}

func TestCheck_MarketNotReactedYetPasses(t *testing.T) {
	d := newTestDetector()
	ts := time.Now()
	d.RecordReference("BTC", 98000, ts)
	d.RecordReference("BTC", 98060, ts.Add(200*time.Millisecond)) // $60 jump
	d.RecordMarketMid("BTC", 0.50, ts)
	d.RecordMarketMid("BTC", 0.505, ts.Add(300*time.Millisecond)) // under min move

	res := d.Check("BTC", 300)
	assert.True(t, res.Passed)
	assert.Equal(t, "market has not reacted yet", res.Reason)
}

func TestCheck_MarketMovedFirstFails(t *testing.T) {
	d := newTestDetector()
	ts := time.Now()
	// The market jumped, then the reference followed. Whatever we are
	// seeing, it is not our edge.
	d.RecordMarketMid("BTC", 0.50, ts)
	d.RecordMarketMid("BTC", 0.56, ts.Add(100*time.Millisecond))
	d.RecordReference("BTC", 98000, ts)
	d.RecordReference("BTC", 98060, ts.Add(400*time.Millisecond))

	res := d.Check("BTC", 300)
	assert.False(t, res.Passed)
	assert.Equal(t, "Polymarket moved first", res.Reason)
	assert.Equal(t, types.ConfidenceLow, res.Confidence)
}

func TestCheck_LeadWindow(t *testing.T) {
	ts := time.Now()

	feed := func(leadMs int64) Result {
		d := newTestDetector()
		d.RecordReference("BTC", 98000, ts)
		d.RecordReference("BTC", 98060, ts.Add(time.Second))
		d.RecordMarketMid("BTC", 0.50, ts)
		d.RecordMarketMid("BTC", 0.56, ts.Add(time.Second+time.Duration(leadMs)*time.Millisecond))
		return d.Check("BTC", 300)
	}

	coincidence := feed(100) // below BTC's 200ms minimum
	assert.False(t, coincidence.Passed)
	assert.EqualValues(t, 100, coincidence.LeadMs)

	healthy := feed(800)
	assert.True(t, healthy.Passed)
	assert.EqualValues(t, 800, healthy.LeadMs)

	stale := feed(5000) // above BTC's 3000ms maximum
	assert.False(t, stale.Passed)
}

func TestCheck_ConfidenceTiers(t *testing.T) {
	ts := time.Now()

	feed := func(refJump float64, secsLeft float64) Result {
		d := newTestDetector()
		d.RecordReference("BTC", 98000, ts)
		d.RecordReference("BTC", 98000+refJump, ts.Add(time.Second))
		d.RecordMarketMid("BTC", 0.50, ts)
		d.RecordMarketMid("BTC", 0.56, ts.Add(1800*time.Millisecond))
		return d.Check("BTC", secsLeft)
	}

	// Big jump, healthy lead, plenty of time: all three points.
	assert.Equal(t, types.ConfidenceHigh, feed(60, 300).Confidence)

	// Jump under 1.5x the threshold drops a point.
	assert.Equal(t, types.ConfidenceMedium, feed(30, 300).Confidence)

	// Near expiry drops another.
	assert.Equal(t, types.ConfidenceLow, feed(30, 45).Confidence)
}

func TestRing_Wraps(t *testing.T) {
	r := newRing(3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		r.push(observation{price: float64(i), ts: base.Add(time.Duration(i) * time.Second)})
	}
	assert.Equal(t, 3, r.size)
	assert.Equal(t, 4.0, r.at(0).price)
	assert.Equal(t, 3.0, r.at(1).price)
	assert.Equal(t, 2.0, r.at(2).price)
}
