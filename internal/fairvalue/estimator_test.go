package fairvalue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyquote/polyquote/internal/config"
)

func newTestEstimator() *Estimator {
	return New(config.DefaultAssets(), 0.10, 20, 0.95)
}

func TestEstimate_ClosedFormSymmetry(t *testing.T) {
	e := newTestEstimator()

	atStrike, err := e.Estimate("BTC", 98000, 0, 300)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, atStrike.PUp, 1e-9, "at the strike UP and DOWN are a coin flip")
	assert.False(t, atStrike.Empirical)
	assert.InDelta(t, 0.30, atStrike.Confidence, 1e-9)

	above, err := e.Estimate("BTC", 98000, 170, 300)
	require.NoError(t, err)
	below, err := e.Estimate("BTC", 98000, -170, 300)
	require.NoError(t, err)

	assert.Greater(t, above.PUp, 0.5)
	assert.Less(t, below.PUp, 0.5)
	assert.InDelta(t, above.PUp, 1-below.PUp, 1e-6, "CDF is symmetric around the strike")
	assert.InDelta(t, 1.0, above.PUp+above.PDown, 1e-9)
}

func TestEstimate_MoreTimeMeansMoreUncertainty(t *testing.T) {
	e := newTestEstimator()

	early, err := e.Estimate("BTC", 98170, 170, 850)
	require.NoError(t, err)
	late, err := e.Estimate("BTC", 98170, 170, 60)
	require.NoError(t, err)

	// The same distance is a stronger signal with less time left.
	assert.Greater(t, late.PUp, early.PUp)
}

func TestEstimate_Clamped(t *testing.T) {
	e := newTestEstimator()

	sure, err := e.Estimate("BTC", 150000, 52000, 30)
	require.NoError(t, err)
	assert.InDelta(t, 0.995, sure.PUp, 1e-9, "never certain")

	doomed, err := e.Estimate("BTC", 46000, -52000, 30)
	require.NoError(t, err)
	assert.InDelta(t, 0.005, doomed.PUp, 1e-9)
}

func TestEstimate_UnknownAsset(t *testing.T) {
	e := newTestEstimator()
	_, err := e.Estimate("DOGE", 1, 0.01, 300)
	assert.Error(t, err)
}

func TestUpdate_PromotesCellToEmpirical(t *testing.T) {
	e := newTestEstimator()
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Same bucket every time: distance 150 lands in d100-200, 120s in
	// the 1-3min band.
	for i := 0; i < 19; i++ {
		e.Update("BTC", 150, 120, true, ts.Add(time.Duration(i)*time.Minute))
	}
	est, err := e.Estimate("BTC", 98150, 150, 120)
	require.NoError(t, err)
	assert.False(t, est.Empirical, "below the sample floor the fallback answers")
	assert.Equal(t, 19, est.Samples)

	e.Update("BTC", 150, 120, true, ts.Add(20*time.Minute))
	est, err = e.Estimate("BTC", 98150, 150, 120)
	require.NoError(t, err)
	assert.True(t, est.Empirical)
	assert.Equal(t, 20, est.Samples)

	// 20 straight UP wins from the 0.5 seed: p = 1 - 0.5*0.9^20.
	assert.InDelta(t, 1-0.5*0.121576654590569, est.PUp, 1e-9)
	assert.Greater(t, est.Confidence, 0.0)
	assert.LessOrEqual(t, est.Confidence, 0.95)
}

func TestUpdate_EWMAWeighsRecency(t *testing.T) {
	e := newTestEstimator()
	ts := time.Now()

	for i := 0; i < 30; i++ {
		e.Update("BTC", 150, 120, false, ts.Add(time.Duration(i)*time.Minute))
	}
	down, err := e.Estimate("BTC", 98150, 150, 120)
	require.NoError(t, err)

	for i := 30; i < 40; i++ {
		e.Update("BTC", 150, 120, true, ts.Add(time.Duration(i)*time.Minute))
	}
	mixed, err := e.Estimate("BTC", 98150, 150, 120)
	require.NoError(t, err)

	assert.Greater(t, mixed.PUp, down.PUp, "recent UP wins pull the cell up")
}

func TestCellKey_Banding(t *testing.T) {
	assert.Equal(t, "BTC:d100-200:t1-3min", cellKey("BTC", 150, 120, 100))
	assert.Equal(t, "BTC:d100-200:t1-3min", cellKey("BTC", 199.9, 179, 100))
	assert.Equal(t, "BTC:d-100-0:t<1min", cellKey("BTC", -0.5, 30, 100))
	assert.Equal(t, "BTC:d200-300:t>10min", cellKey("BTC", 250, 850, 100))
	assert.Equal(t, "ETH:d10-20:t3-6min", cellKey("ETH", 12, 200, 10))
}

func TestLoadHistory_OrderIndependent(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	outcomes := []Outcome{
		{Asset: "BTC", Distance: 150, SecsLeft: 120, UpWon: true, Timestamp: ts.Add(2 * time.Minute)},
		{Asset: "BTC", Distance: 150, SecsLeft: 120, UpWon: false, Timestamp: ts},
		{Asset: "BTC", Distance: 150, SecsLeft: 120, UpWon: true, Timestamp: ts.Add(time.Minute)},
	}
	shuffled := []Outcome{outcomes[2], outcomes[0], outcomes[1]}

	a := newTestEstimator()
	a.LoadHistory(outcomes)
	b := newTestEstimator()
	b.LoadHistory(shuffled)

	ea, err := a.Estimate("BTC", 98150, 150, 120)
	require.NoError(t, err)
	eb, err := b.Estimate("BTC", 98150, 150, 120)
	require.NoError(t, err)
	assert.Equal(t, ea.Samples, eb.Samples)
	assert.InDelta(t, ea.PUp, eb.PUp, 1e-12)
}

func TestNormCDF(t *testing.T) {
	assert.InDelta(t, 0.5, normCDF(0), 1e-7)
	assert.InDelta(t, 0.8413447, normCDF(1), 1e-6)
	assert.InDelta(t, 0.0227501, normCDF(-2), 1e-6)
	assert.InDelta(t, 1.0, normCDF(9), 1e-12)
	assert.InDelta(t, 0.0, normCDF(-9), 1e-12)
}
