package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all process-level configuration for the engine. It is
// built once in cmd/ and treated as read-only during evaluation cycles.
type Config struct {
	// Mode
	ShadowMode bool // evaluate and log, never submit orders
	Debug      bool

	// Fair value
	EWMAAlpha      float64 // weight of the newest settled outcome
	MinCellSamples int     // empirical cell usable above this count
	ConfidenceCap  float64

	// Edge / threshold
	BaseTheta       decimal.Decimal
	ThetaDecay      float64 // time multiplier decay factor
	InventoryFactor float64 // threshold growth per unit of net exposure
	ForceNetRatio   float64 // forced-hedge net exposure ratio
	ForceAvgCutoff  decimal.Decimal
	ForceDollarMin  decimal.Decimal

	// Causality
	HistoryDepth int // rolling observations kept per asset

	// Inventory
	MaxUnpaired decimal.Decimal // imbalance cap at full time remaining
	IMaxFloor   float64         // floor fraction of MaxUnpaired near expiry

	// Quoting
	QuoteMin       decimal.Decimal
	QuoteMax       decimal.Decimal
	QuoteStep      decimal.Decimal
	QuoteSweetSpot decimal.Decimal
	QuoteSafety    decimal.Decimal // min distance below live ask (maker-only)
	MinNotional    decimal.Decimal // minimum dollar size per quote level

	// Entry
	EntryCooldown time.Duration
	MaxTradeSize  decimal.Decimal // per-trade notional cap
	EntryShares   decimal.Decimal

	// Hedge / rebalance
	HedgeTolerance    decimal.Decimal
	MinPairedForHedge decimal.Decimal
	NormalCostCeiling decimal.Decimal
	EmergencyGap      decimal.Decimal // gap beyond which the relaxed ceiling applies
	RelaxedCeiling    decimal.Decimal
	HedgeCooldown     time.Duration
	HedgeMinHold      time.Duration
	HedgeReprice      decimal.Decimal // ask improvement that triggers a re-price

	// Correction monitor
	CorrectionFraction float64 // fraction of the entry gap that confirms correction

	// Reversal guard
	GuardInterval time.Duration // min interval between guard sweeps
	GuardWindow   time.Duration // rolling reference-price window
	GuardCooldown time.Duration // post-fire suppression

	// Order confirmation
	ConfirmWait time.Duration

	// Telemetry / notify
	DatabaseURL    string // postgres when set, sqlite file otherwise
	DatabasePath   string
	TelemetryQueue int

	TelegramToken  string
	TelegramChatID int64

	// Asset tuning file
	AssetsPath string

	// Feeds / metrics
	ChainlinkRPC      string
	ChainlinkInterval time.Duration
	MetricsAddr       string
}

// Load builds a Config from environment variables, with defaults for
// everything not set.
func Load() (*Config, error) {
	cfg := &Config{
		ShadowMode: getEnvBool("SHADOW_MODE", true),
		Debug:      getEnvBool("DEBUG", false),

		EWMAAlpha:      getEnvFloat("FV_EWMA_ALPHA", 0.10),
		MinCellSamples: getEnvInt("FV_MIN_SAMPLES", 20),
		ConfidenceCap:  getEnvFloat("FV_CONFIDENCE_CAP", 0.95),

		BaseTheta:       getEnvDecimal("EDGE_BASE_THETA", decimal.NewFromFloat(0.05)),
		ThetaDecay:      getEnvFloat("EDGE_THETA_DECAY", 0.5),
		InventoryFactor: getEnvFloat("EDGE_INVENTORY_FACTOR", 0.6),
		ForceNetRatio:   getEnvFloat("EDGE_FORCE_NET_RATIO", 0.6),
		ForceAvgCutoff:  getEnvDecimal("EDGE_FORCE_AVG_CUTOFF", decimal.NewFromFloat(0.55)),
		ForceDollarMin:  getEnvDecimal("EDGE_FORCE_DOLLAR_MIN", decimal.NewFromFloat(15)),

		HistoryDepth: getEnvInt("CAUSALITY_HISTORY", 1000),

		MaxUnpaired: getEnvDecimal("INV_MAX_UNPAIRED", decimal.NewFromInt(50)),
		IMaxFloor:   getEnvFloat("INV_IMAX_FLOOR", 0.20),

		QuoteMin:       getEnvDecimal("QUOTE_MIN", decimal.NewFromFloat(0.25)),
		QuoteMax:       getEnvDecimal("QUOTE_MAX", decimal.NewFromFloat(0.55)),
		QuoteStep:      getEnvDecimal("QUOTE_STEP", decimal.NewFromFloat(0.01)),
		QuoteSweetSpot: getEnvDecimal("QUOTE_SWEET_SPOT", decimal.NewFromFloat(0.45)),
		QuoteSafety:    getEnvDecimal("QUOTE_SAFETY", decimal.NewFromFloat(0.01)),
		MinNotional:    getEnvDecimal("QUOTE_MIN_NOTIONAL", decimal.NewFromFloat(1)),

		EntryCooldown: getEnvDuration("ENTRY_COOLDOWN", 10*time.Second),
		MaxTradeSize:  getEnvDecimal("ENTRY_MAX_NOTIONAL", decimal.NewFromFloat(25)),
		EntryShares:   getEnvDecimal("ENTRY_SHARES", decimal.NewFromInt(10)),

		HedgeTolerance:    getEnvDecimal("HEDGE_TOLERANCE", decimal.NewFromInt(5)),
		MinPairedForHedge: getEnvDecimal("HEDGE_MIN_PAIRED", decimal.NewFromInt(5)),
		NormalCostCeiling: getEnvDecimal("HEDGE_COST_CEILING", decimal.NewFromFloat(1.02)),
		EmergencyGap:      getEnvDecimal("HEDGE_EMERGENCY_GAP", decimal.NewFromInt(15)),
		RelaxedCeiling:    getEnvDecimal("HEDGE_RELAXED_CEILING", decimal.NewFromFloat(1.15)),
		HedgeCooldown:     getEnvDuration("HEDGE_COOLDOWN", 5*time.Second),
		HedgeMinHold:      getEnvDuration("HEDGE_MIN_HOLD", 3*time.Second),
		HedgeReprice:      getEnvDecimal("HEDGE_REPRICE", decimal.NewFromFloat(0.02)),

		CorrectionFraction: getEnvFloat("CORRECTION_FRACTION", 0.5),

		GuardInterval: getEnvDuration("GUARD_INTERVAL", 500*time.Millisecond),
		GuardWindow:   getEnvDuration("GUARD_WINDOW", 3*time.Second),
		GuardCooldown: getEnvDuration("GUARD_COOLDOWN", 30*time.Second),

		ConfirmWait: getEnvDuration("CONFIRM_WAIT", 5*time.Second),

		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DatabasePath:   getEnv("DATABASE_PATH", "data/polyquote.db"),
		TelemetryQueue: getEnvInt("TELEMETRY_QUEUE", 1024),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		AssetsPath: getEnv("ASSETS_PATH", "assets.yaml"),

		ChainlinkRPC:      getEnv("CHAINLINK_RPC", "https://polygon-rpc.com"),
		ChainlinkInterval: getEnvDuration("CHAINLINK_INTERVAL", 2*time.Second),
		MetricsAddr:       getEnv("METRICS_ADDR", ":9090"),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if cfg.EWMAAlpha <= 0 || cfg.EWMAAlpha >= 1 {
		return nil, fmt.Errorf("FV_EWMA_ALPHA must be in (0,1), got %v", cfg.EWMAAlpha)
	}
	if cfg.QuoteStep.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("QUOTE_STEP must be positive")
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
