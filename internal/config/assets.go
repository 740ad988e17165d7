package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AssetTuning holds the per-asset constants that have no closed-form
// derivation: they come from calibration runs and live in assets.yaml
// so they can be changed without a rebuild.
type AssetTuning struct {
	// Closed-form fair value fallback.
	AnnualVol     float64 `yaml:"annual_vol"`     // annualized volatility, e.g. 0.55 for BTC
	WindowSeconds float64 `yaml:"window_seconds"` // market lifetime, e.g. 900 for 15m markets

	// Fair value bucket grid.
	DistanceBucket float64 `yaml:"distance_bucket"` // absolute-currency bucket width, e.g. 100

	// Causality lead-time window.
	MinLeadMs int64 `yaml:"min_lead_ms"`
	MaxLeadMs int64 `yaml:"max_lead_ms"`

	// Significant market move for the causality lookback.
	MinMarketMove float64 `yaml:"min_market_move"` // mid-price units

	// Significant reference-price move, in reference dollars.
	RefMoveDollars float64 `yaml:"ref_move_dollars"`

	// Reversal guard adverse-move threshold in reference-price dollars.
	ReversalDollars float64 `yaml:"reversal_dollars"`
}

// Assets maps asset symbol to its tuning block.
type Assets map[string]AssetTuning

// LoadAssets parses the YAML tuning file. A market whose asset has no
// entry here is skipped by the engine (fatal configuration class).
func LoadAssets(path string) (Assets, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read assets file: %w", err)
	}
	var out Assets
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse assets file: %w", err)
	}
	for sym, a := range out {
		if a.AnnualVol <= 0 || a.WindowSeconds <= 0 || a.DistanceBucket <= 0 {
			return nil, fmt.Errorf("asset %s: annual_vol, window_seconds and distance_bucket must be positive", sym)
		}
		if a.MinLeadMs < 0 || a.MaxLeadMs <= a.MinLeadMs {
			return nil, fmt.Errorf("asset %s: lead window [%d,%d] is invalid", sym, a.MinLeadMs, a.MaxLeadMs)
		}
	}
	return out, nil
}

// DefaultAssets returns the calibration used in paper trading, for
// tests and for running without an assets.yaml.
func DefaultAssets() Assets {
	return Assets{
		"BTC": {
			AnnualVol:       0.55,
			WindowSeconds:   900,
			DistanceBucket:  100,
			MinLeadMs:       200,
			MaxLeadMs:       3000,
			MinMarketMove:   0.02,
			RefMoveDollars:  25,
			ReversalDollars: 30,
		},
		"ETH": {
			AnnualVol:       0.70,
			WindowSeconds:   900,
			DistanceBucket:  10,
			MinLeadMs:       200,
			MaxLeadMs:       3000,
			MinMarketMove:   0.02,
			RefMoveDollars:  2,
			ReversalDollars: 2.5,
		},
		"SOL": {
			AnnualVol:       0.95,
			WindowSeconds:   900,
			DistanceBucket:  1,
			MinLeadMs:       150,
			MaxLeadMs:       2500,
			MinMarketMove:   0.02,
			RefMoveDollars:  0.3,
			ReversalDollars: 0.4,
		},
	}
}
