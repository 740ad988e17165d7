package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/polyquote/polyquote/internal/causality"
	"github.com/polyquote/polyquote/internal/clock"
	"github.com/polyquote/polyquote/internal/config"
	"github.com/polyquote/polyquote/internal/edge"
	"github.com/polyquote/polyquote/internal/entry"
	"github.com/polyquote/polyquote/internal/exec"
	"github.com/polyquote/polyquote/internal/fairvalue"
	"github.com/polyquote/polyquote/internal/guard"
	"github.com/polyquote/polyquote/internal/hedge"
	"github.com/polyquote/polyquote/internal/inventory"
	"github.com/polyquote/polyquote/internal/metrics"
	"github.com/polyquote/polyquote/internal/monitor"
	"github.com/polyquote/polyquote/internal/notify"
	"github.com/polyquote/polyquote/internal/quoting"
	"github.com/polyquote/polyquote/internal/telemetry"
	"github.com/polyquote/polyquote/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENGINE - central orchestrator
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow per tick:
//   Book/price update → Fair Value + Edge → Causality → Entry
//   → Inventory on fill → Quoting sync → Hedge → Reversal Guard
//   → Correction Monitor
//
// One cooperative evaluation cycle per market tick. Per-market mutexes
// serialize cycles for the same market; different markets never share
// mutable state beyond the read-only config.
//
// ═══════════════════════════════════════════════════════════════════════════════

// fvSample is one (distance, time) observation remembered for the fair
// value update at settlement.
type fvSample struct {
	distance float64
	secsLeft float64
	ts       time.Time
}

// marketState is everything the engine tracks per registered market.
type marketState struct {
	mu     sync.Mutex
	market types.Market

	// Our resting quote orders, per side, keyed by venue order ID.
	restingUp map[string]*restingOrder
	restingDn map[string]*restingOrder

	// Sampled observations for settlement-time fair value updates.
	samples      []fvSample
	lastSampleAt time.Time

	// Entry gap remembered for the correction monitor.
	lastSpot float64
}

// Stats is the engine's externally visible counters.
type Stats struct {
	Evaluations    int64
	Signals        int64
	Entries        int64
	Corrections    int64
	Hedges         int64
	EmergencyExits int64
	Settled        int64
	Wins           int64
	PnL            decimal.Decimal
}

// WinRate is wins over settled markets.
func (s Stats) WinRate() float64 {
	if s.Settled == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Settled)
}

// Engine wires the decision components together. Constructed once per
// process; no package-level instance exists.
type Engine struct {
	cfg    *config.Config
	assets config.Assets
	clk    clock.Clock

	estimator  *fairvalue.Estimator
	calculator *edge.Calculator
	detector   *causality.Detector
	inv        *inventory.Manager
	quoter     *quoting.Engine
	entries    *entry.Manager
	hedger     *hedge.Manager
	reversal   *guard.Guard
	correction *monitor.Correction

	channel  exec.Channel
	sink     *telemetry.Sink
	notifier *notify.Telegram

	marketsMu sync.RWMutex
	markets   map[string]*marketState

	statsMu sync.Mutex
	stats   Stats
}

// Deps carries the constructed collaborators into New.
type Deps struct {
	Channel  exec.Channel
	Sink     *telemetry.Sink
	Notifier *notify.Telegram
	Clock    clock.Clock
}

// New builds the engine and all decision components from config.
func New(cfg *config.Config, assets config.Assets, deps Deps) *Engine {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	if cfg.ConfirmWait <= 0 {
		cfg.ConfirmWait = 5 * time.Second
	}

	// Window seconds for inventory decay comes from the asset tuning;
	// all supported assets run the same market lifetime, so take any.
	windowSeconds := 900.0
	for _, a := range assets {
		windowSeconds = a.WindowSeconds
		break
	}

	inv := inventory.NewManager(cfg.MaxUnpaired, cfg.IMaxFloor, windowSeconds)

	e := &Engine{
		cfg:    cfg,
		assets: assets,
		clk:    clk,

		estimator:  fairvalue.New(assets, cfg.EWMAAlpha, cfg.MinCellSamples, cfg.ConfidenceCap),
		calculator: edge.NewCalculator(cfg.BaseTheta, cfg.ThetaDecay, cfg.InventoryFactor, cfg.ForceNetRatio, cfg.ForceAvgCutoff, cfg.ForceDollarMin),
		detector:   causality.NewDetector(assets, cfg.HistoryDepth),
		inv:        inv,
		quoter: quoting.NewEngine(quoting.Config{
			GridMin:     cfg.QuoteMin,
			GridMax:     cfg.QuoteMax,
			GridStep:    cfg.QuoteStep,
			SweetSpot:   cfg.QuoteSweetSpot,
			SafetyGap:   cfg.QuoteSafety,
			MinNotional: cfg.MinNotional,
		}),
		entries: entry.NewManager(inv, clk, cfg.ShadowMode, cfg.EntryCooldown, cfg.MaxTradeSize, cfg.EntryShares),

		channel:  deps.Channel,
		sink:     deps.Sink,
		notifier: deps.Notifier,
		markets:  make(map[string]*marketState),
		stats:    Stats{PnL: decimal.Zero},
	}

	e.hedger = hedge.NewManager(hedge.Config{
		Tolerance:      cfg.HedgeTolerance,
		MinPaired:      cfg.MinPairedForHedge,
		NormalCeiling:  cfg.NormalCostCeiling,
		EmergencyGap:   cfg.EmergencyGap,
		RelaxedCeiling: cfg.RelaxedCeiling,
		Cooldown:       cfg.HedgeCooldown,
		MinHold:        cfg.HedgeMinHold,
		RepriceDelta:   cfg.HedgeReprice,
		ConfirmWait:    cfg.ConfirmWait,
	}, inv, deps.Channel, clk)

	e.reversal = guard.New(assets, inv, deps.Channel, e.hedger, clk, cfg.GuardInterval, cfg.GuardWindow, cfg.GuardCooldown)
	e.correction = monitor.NewCorrection(inv, cfg.CorrectionFraction)

	return e
}

// Estimator exposes the fair value estimator for history loading.
func (e *Engine) Estimator() *fairvalue.Estimator { return e.estimator }

// Inventory exposes the ledger for read-only callers (dashboards).
func (e *Engine) Inventory() *inventory.Manager { return e.inv }

// RegisterMarket starts tracking a discovered market. Markets with
// missing required fields or an unknown asset are rejected here so the
// evaluation loop never sees them.
func (e *Engine) RegisterMarket(m types.Market) error {
	if m.ID == "" || m.TokenUp == "" || m.TokenDn == "" || m.Expiry.IsZero() {
		return &ConfigError{Reason: types.ReasonMarketMissingFields, MarketID: m.ID}
	}
	if _, ok := e.assets[m.Asset]; !ok {
		return &ConfigError{Reason: types.ReasonUnknownAsset, MarketID: m.ID}
	}

	e.marketsMu.Lock()
	defer e.marketsMu.Unlock()
	e.markets[m.ID] = &marketState{
		market:    m,
		restingUp: make(map[string]*restingOrder),
		restingDn: make(map[string]*restingOrder),
	}
	metrics.ActiveMarkets.Set(float64(len(e.markets)))

	log.Info().
		Str("market", m.ID).
		Str("asset", m.Asset).
		Str("strike", m.Strike.String()).
		Time("expiry", m.Expiry).
		Msg("market registered")
	return nil
}

// UnregisterMarket drops a market without settlement accounting.
func (e *Engine) UnregisterMarket(marketID string) {
	e.marketsMu.Lock()
	delete(e.markets, marketID)
	metrics.ActiveMarkets.Set(float64(len(e.markets)))
	e.marketsMu.Unlock()

	e.inv.ClearMarket(marketID)
	e.entries.ClearMarket(marketID)
	e.hedger.ClearMarket(marketID)
	e.reversal.ClearMarket(marketID)
	e.correction.ClearMarket(marketID)
}

// FeedSpotPrice ingests a leading reference tick for an asset.
func (e *Engine) FeedSpotPrice(asset string, price float64, ts time.Time) {
	e.detector.RecordReference(asset, price, ts)
	e.reversal.RecordReference(asset, price, ts)

	e.marketsMu.RLock()
	defer e.marketsMu.RUnlock()
	for _, st := range e.markets {
		if st.market.Asset == asset {
			st.mu.Lock()
			st.lastSpot = price
			st.mu.Unlock()
		}
	}
}

// FeedOrderBook ingests a book update for a market and records the
// market's own mid for causality tracking.
func (e *Engine) FeedOrderBook(marketID string, book types.OrderBook) {
	st, ok := e.lookup(marketID)
	if !ok {
		return
	}
	st.mu.Lock()
	st.market.Book = book
	asset := st.market.Asset
	st.mu.Unlock()

	mid, _ := book.Up.Mid().Float64()
	if mid > 0 {
		ts := book.Timestamp
		if ts.IsZero() {
			ts = e.clk.Now()
		}
		e.detector.RecordMarketMid(asset, mid, ts)
	}
}

// GetStats returns a copy of the counters.
func (e *Engine) GetStats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	s := e.stats
	s.EmergencyExits = int64(e.reversal.Fired())
	return s
}

func (e *Engine) lookup(marketID string) (*marketState, bool) {
	e.marketsMu.RLock()
	defer e.marketsMu.RUnlock()
	st, ok := e.markets[marketID]
	return st, ok
}

// ConfigError is the fatal-configuration rejection for one market; the
// market is skipped, the loop keeps running for everything else.
type ConfigError struct {
	Reason   types.RejectReason
	MarketID string
}

func (c *ConfigError) Error() string {
	return "market " + c.MarketID + " rejected: " + c.Reason.String()
}
