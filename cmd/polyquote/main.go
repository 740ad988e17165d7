// Polyquote - Market making and stat-arb engine for short-lived
// binary Up/Down outcome markets.
//
// Two legs, one book:
//  1. Rest passive quotes on both sides inside the sweet-spot grid,
//     sized so a full sweep can never breach the imbalance cap
//  2. When the leading reference price moves first and the market
//     lags, take the stale ask aggressively
//  3. Pair up whatever fills; paired shares redeem for $1 regardless
//     of the outcome, so combined cost below $1 is locked profit
//  4. A reversal guard closes one-sided exposure when the reference
//     snaps back before the hedge completes
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/polyquote/polyquote/internal/clock"
	"github.com/polyquote/polyquote/internal/config"
	"github.com/polyquote/polyquote/internal/engine"
	"github.com/polyquote/polyquote/internal/exec"
	"github.com/polyquote/polyquote/internal/feeds"
	"github.com/polyquote/polyquote/internal/metrics"
	"github.com/polyquote/polyquote/internal/notify"
	"github.com/polyquote/polyquote/internal/telemetry"
)

const version = "1.0.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	assets, err := config.LoadAssets(cfg.AssetsPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.AssetsPath).Msg("Asset tuning file not loaded, using built-in defaults")
		assets = config.DefaultAssets()
	}

	log.Info().
		Str("version", version).
		Bool("shadow", cfg.ShadowMode).
		Int("assets", len(assets)).
		Msg("🚀 Starting Polyquote")

	sink, err := telemetry.Open(cfg.DatabaseURL, cfg.DatabasePath, cfg.TelemetryQueue)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open telemetry store")
	}
	defer sink.Close()

	var notifier *notify.Telegram
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		notifier = notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
	}

	// The execution channel is the dry-run simulator until a signing
	// client is wired in. Shadow mode additionally suppresses entries
	// inside the engine itself.
	channel := exec.NewDryRun()

	eng := engine.New(cfg, assets, engine.Deps{
		Channel:  channel,
		Sink:     sink,
		Notifier: notifier,
		Clock:    clock.Real{},
	})

	assetNames := make([]string, 0, len(assets))
	for name := range assets {
		assetNames = append(assetNames, name)
	}

	// Binance trade stream is the primary reference feed.
	binance := feeds.NewBinanceFeed(assetNames, eng.FeedSpotPrice)
	binance.Start()
	defer binance.Stop()

	// Chainlink on-chain rounds back the stream up; slower but it
	// matches the venue's own resolution source.
	chainlink, err := feeds.NewChainlinkFeed(cfg.ChainlinkRPC, assetNames, cfg.ChainlinkInterval, eng.FeedSpotPrice)
	if err != nil {
		log.Warn().Err(err).Msg("Chainlink feed unavailable, running on Binance only")
	} else {
		chainlink.Start()
		defer chainlink.Stop()
	}

	go func() {
		if err := metrics.Serve(cfg.MetricsAddr); err != nil {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	// Block until shutdown. Market discovery and book subscriptions
	// are driven by the venue gateway calling RegisterMarket,
	// FeedOrderBook and Evaluate; the binary stays up for the feeds,
	// metrics and telemetry.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stats := eng.GetStats()
	log.Info().
		Int64("evaluations", stats.Evaluations).
		Int64("entries", stats.Entries).
		Int64("hedges", stats.Hedges).
		Int64("settled", stats.Settled).
		Str("pnl", stats.PnL.String()).
		Float64("win_rate", stats.WinRate()).
		Msg("👋 Shutting down")
}
