package fairvalue

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/polyquote/polyquote/internal/config"
)

// ═══════════════════════════════════════════════════════════════════════════════
// FAIR VALUE ESTIMATOR
// ═══════════════════════════════════════════════════════════════════════════════
//
// Converts (asset, distance-to-strike, time-remaining) into P(UP wins).
// Empirical first: settled outcomes feed an EWMA per bucket cell, and a
// cell with enough samples answers directly. Sparse cells fall back to
// a closed-form model: distance normalized by volatility scaled to the
// remaining window, mapped through the standard normal CDF.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	annualSeconds = 365.0 * 24 * 3600

	// Probability clamp. A binary market minutes from expiry is never
	// truly certain; degenerate 0/1 estimates poison the edge calc.
	pFloor = 0.005
	pCeil  = 0.995
)

// Estimate is the estimator's answer for one (asset, distance, time) query.
type Estimate struct {
	PUp        float64
	PDown      float64
	Confidence float64
	Samples    int
	Empirical  bool // true when an EWMA cell answered, false on fallback
}

// Outcome is one settled market observation, for bulk history loads.
type Outcome struct {
	Asset     string
	Distance  float64
	SecsLeft  float64
	UpWon     bool
	Timestamp time.Time
}

type cell struct {
	p       float64 // EWMA probability that UP wins
	samples int
}

// Estimator owns the bucket grid. Cells are created lazily and never
// deleted; the key space is bounded by the bucket grids.
type Estimator struct {
	mu     sync.RWMutex
	cells  map[string]*cell
	assets config.Assets

	alpha      float64
	minSamples int
	confCap    float64
}

// New creates an estimator with an empty grid.
func New(assets config.Assets, alpha float64, minSamples int, confCap float64) *Estimator {
	return &Estimator{
		cells:      make(map[string]*cell),
		assets:     assets,
		alpha:      alpha,
		minSamples: minSamples,
		confCap:    confCap,
	}
}

// Estimate returns P(UP) for a market whose spot sits distance currency
// units from the strike with secsLeft seconds to expiry. spot anchors
// the volatility normalization of the closed-form fallback.
func (e *Estimator) Estimate(asset string, spot, distance, secsLeft float64) (Estimate, error) {
	tuning, ok := e.assets[asset]
	if !ok {
		return Estimate{}, fmt.Errorf("unknown asset %q", asset)
	}

	key := cellKey(asset, distance, secsLeft, tuning.DistanceBucket)

	e.mu.RLock()
	c, found := e.cells[key]
	e.mu.RUnlock()

	if found && c.samples >= e.minSamples {
		conf := float64(c.samples) / float64(e.minSamples*5)
		if conf > e.confCap {
			conf = e.confCap
		}
		p := clampProb(c.p)
		return Estimate{PUp: p, PDown: 1 - p, Confidence: conf, Samples: c.samples, Empirical: true}, nil
	}

	p := e.closedForm(tuning, spot, distance, secsLeft)
	samples := 0
	if found {
		samples = c.samples
	}
	return Estimate{PUp: p, PDown: 1 - p, Confidence: 0.30, Samples: samples}, nil
}

// closedForm normalizes distance by the asset volatility scaled down to
// the remaining window and maps the z-score through the normal CDF.
func (e *Estimator) closedForm(t config.AssetTuning, spot, distance, secsLeft float64) float64 {
	if secsLeft <= 0 {
		// Expired: whichever side the spot sits on has won.
		if distance >= 0 {
			return pCeil
		}
		return pFloor
	}
	if spot <= 0 {
		return 0.5
	}

	sigmaWindow := t.AnnualVol * math.Sqrt(t.WindowSeconds/annualSeconds) * math.Sqrt(secsLeft/t.WindowSeconds)
	sigmaDollars := spot * sigmaWindow
	if sigmaDollars <= 0 {
		return 0.5
	}

	z := distance / sigmaDollars
	return clampProb(normCDF(z))
}

// Update applies one settled outcome to the matching cell. Callers bulk
// loading history must apply updates in timestamp order; out-of-order
// updates corrupt the EWMA recency assumption. Use LoadHistory for that.
func (e *Estimator) Update(asset string, distance, secsLeft float64, upWon bool, ts time.Time) {
	tuning, ok := e.assets[asset]
	if !ok {
		log.Warn().Str("asset", asset).Msg("fair value update for unknown asset dropped")
		return
	}
	key := cellKey(asset, distance, secsLeft, tuning.DistanceBucket)

	outcome := 0.0
	if upWon {
		outcome = 1.0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c, found := e.cells[key]
	if !found {
		// Lazy init seeded at the prior 0.5 so the first few updates
		// do not swing the cell to certainty.
		c = &cell{p: 0.5}
		e.cells[key] = c
	}
	c.p = e.alpha*outcome + (1-e.alpha)*c.p
	c.samples++

	log.Debug().
		Str("cell", key).
		Float64("p_up", c.p).
		Int("samples", c.samples).
		Bool("up_won", upWon).
		Time("ts", ts).
		Msg("fair value cell updated")
}

// LoadHistory sorts outcomes by timestamp and applies them in order.
func (e *Estimator) LoadHistory(outcomes []Outcome) {
	sorted := make([]Outcome, len(outcomes))
	copy(sorted, outcomes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	for _, o := range sorted {
		e.Update(o.Asset, o.Distance, o.SecsLeft, o.UpWon, o.Timestamp)
	}
	log.Info().Int("outcomes", len(sorted)).Int("cells", e.CellCount()).Msg("fair value history loaded")
}

// CellCount returns the number of materialized cells.
func (e *Estimator) CellCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cells)
}

// cellKey buckets distance on the asset's absolute-currency grid and
// seconds-remaining into fixed bands, e.g. "BTC:d100-200:t1-3min".
func cellKey(asset string, distance, secsLeft, bucket float64) string {
	lo := math.Floor(distance/bucket) * bucket
	hi := lo + bucket
	return fmt.Sprintf("%s:d%g-%g:%s", asset, lo, hi, timeBand(secsLeft))
}

func timeBand(secsLeft float64) string {
	switch {
	case secsLeft < 60:
		return "t<1min"
	case secsLeft < 180:
		return "t1-3min"
	case secsLeft < 360:
		return "t3-6min"
	case secsLeft < 600:
		return "t6-10min"
	default:
		return "t>10min"
	}
}

func clampProb(p float64) float64 {
	if p < pFloor {
		return pFloor
	}
	if p > pCeil {
		return pCeil
	}
	return p
}

// normCDF is the standard normal CDF via the Abramowitz-Stegun 26.2.17
// polynomial, accurate to about 7.5e-8.
func normCDF(z float64) float64 {
	if z < -8 {
		return 0
	}
	if z > 8 {
		return 1
	}
	neg := z < 0
	if neg {
		z = -z
	}

	k := 1.0 / (1.0 + 0.2316419*z)
	poly := k * (0.319381530 + k*(-0.356563782+k*(1.781477937+k*(-1.821255978+k*1.330274429))))
	pdf := math.Exp(-z*z/2) / math.Sqrt(2*math.Pi)
	p := 1 - pdf*poly

	if neg {
		return 1 - p
	}
	return p
}
