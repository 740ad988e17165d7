package causality

import (
	"fmt"
	"sync"
	"time"

	"github.com/polyquote/polyquote/internal/config"
	"github.com/polyquote/polyquote/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CAUSALITY DETECTOR
// ═══════════════════════════════════════════════════════════════════════════════
//
// A mispricing is only tradable if the leading reference price moved
// first and the market is catching up. If the market's own mid moved
// before the reference tick, the "signal" is the market telling us
// something, not the other way round, and the edge is already gone.
//
// ═══════════════════════════════════════════════════════════════════════════════

type observation struct {
	price float64
	ts    time.Time
}

type ring struct {
	buf  []observation
	head int
	size int
}

func newRing(n int) *ring {
	return &ring{buf: make([]observation, n)}
}

func (r *ring) push(o observation) {
	r.buf[r.head] = o
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// at returns the i-th most recent observation (0 = newest).
func (r *ring) at(i int) observation {
	idx := (r.head - 1 - i + 2*len(r.buf)) % len(r.buf)
	return r.buf[idx]
}

// Result of one causality check.
type Result struct {
	Passed     bool
	Reason     string // logging detail only
	LeadMs     int64
	Confidence types.Confidence
}

type assetHistory struct {
	reference *ring
	marketMid *ring
}

// Detector keeps a bounded rolling history of reference prices and
// market mids per asset.
type Detector struct {
	mu      sync.RWMutex
	depth   int
	assets  config.Assets
	byAsset map[string]*assetHistory
}

// NewDetector builds a detector keeping depth observations per stream.
func NewDetector(assets config.Assets, depth int) *Detector {
	return &Detector{
		depth:   depth,
		assets:  assets,
		byAsset: make(map[string]*assetHistory),
	}
}

func (d *Detector) history(asset string) *assetHistory {
	h, ok := d.byAsset[asset]
	if !ok {
		h = &assetHistory{reference: newRing(d.depth), marketMid: newRing(d.depth)}
		d.byAsset[asset] = h
	}
	return h
}

// RecordReference appends a leading reference price tick.
func (d *Detector) RecordReference(asset string, price float64, ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history(asset).reference.push(observation{price: price, ts: ts})
}

// RecordMarketMid appends the market's own mid-price.
func (d *Detector) RecordMarketMid(asset string, mid float64, ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history(asset).marketMid.push(observation{price: mid, ts: ts})
}

// Check validates that the reference genuinely preceded the market's
// reaction. refDelta is the reference move that produced the signal,
// in reference dollars; secsLeft scopes the confidence tier.
func (d *Detector) Check(asset string, secsLeft float64) Result {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tuning, ok := d.assets[asset]
	if !ok {
		return Result{Passed: false, Reason: "unknown asset", Confidence: types.ConfidenceLow}
	}
	h, ok := d.byAsset[asset]
	if !ok {
		// No history at all: the market has not reacted to anything.
		return Result{Passed: true, Reason: "no market history", Confidence: types.ConfidenceLow}
	}

	refMove, refDelta, refFound := lastSignificantMove(h.reference, tuning.RefMoveDollars)
	if !refFound {
		return Result{Passed: false, Reason: "no significant reference move", Confidence: types.ConfidenceLow}
	}

	mktMove, _, mktFound := lastSignificantMove(h.marketMid, tuning.MinMarketMove)
	if !mktFound {
		// Market has not yet reacted; the opportunity is fresh.
		return Result{
			Passed:     true,
			Reason:     "market has not reacted yet",
			Confidence: d.tier(refDelta, tuning, 0, secsLeft),
		}
	}

	lead := mktMove.ts.Sub(refMove.ts).Milliseconds()
	switch {
	case lead <= 0:
		return Result{
			Passed:     false,
			Reason:     "Polymarket moved first",
			LeadMs:     lead,
			Confidence: types.ConfidenceLow,
		}
	case lead < tuning.MinLeadMs:
		return Result{
			Passed:     false,
			Reason:     fmt.Sprintf("lead %dms below minimum, likely coincidence", lead),
			LeadMs:     lead,
			Confidence: types.ConfidenceLow,
		}
	case lead > tuning.MaxLeadMs:
		return Result{
			Passed:     false,
			Reason:     fmt.Sprintf("lead %dms above maximum, opportunity stale", lead),
			LeadMs:     lead,
			Confidence: types.ConfidenceLow,
		}
	}

	return Result{
		Passed:     true,
		Reason:     "reference led the market",
		LeadMs:     lead,
		Confidence: d.tier(refDelta, tuning, lead, secsLeft),
	}
}

// tier is a simple additive score: big reference delta, healthy lead,
// and not-too-close expiry each add a point.
func (d *Detector) tier(refDelta float64, tuning config.AssetTuning, leadMs int64, secsLeft float64) types.Confidence {
	score := 0
	if abs(refDelta) >= 1.5*tuning.RefMoveDollars {
		score++
	}
	if leadMs >= tuning.MinLeadMs && leadMs <= tuning.MaxLeadMs {
		score++
	}
	if secsLeft > 60 {
		score++
	}
	switch {
	case score >= 3:
		return types.ConfidenceHigh
	case score == 2:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}

// lastSignificantMove scans newest-to-oldest for the most recent
// adjacent-tick move at or above threshold. Returns the newer tick of
// the move and the signed delta.
func lastSignificantMove(r *ring, threshold float64) (observation, float64, bool) {
	for i := 0; i+1 < r.size; i++ {
		newer := r.at(i)
		older := r.at(i + 1)
		delta := newer.price - older.price
		if abs(delta) >= threshold {
			return newer, delta, true
		}
	}
	return observation{}, 0, false
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
