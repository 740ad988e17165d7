package feeds

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BINANCE REFERENCE FEED - leading spot prices over WebSocket
// ═══════════════════════════════════════════════════════════════════════════════
//
// Binance spot leads the binary markets by hundreds of milliseconds;
// this stream is the "reference price" the causality detector and
// reversal guard key on.
//
// ═══════════════════════════════════════════════════════════════════════════════

const binanceWSBase = "wss://stream.binance.com:9443/stream?streams="

// SpotHandler receives every reference tick. Must not block.
type SpotHandler func(asset string, price float64, ts time.Time)

type binanceTrade struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol    string `json:"s"`
		Price     string `json:"p"`
		TradeTime int64  `json:"T"`
	} `json:"data"`
}

// BinanceFeed streams trade prices for a set of assets.
type BinanceFeed struct {
	mu      sync.Mutex
	assets  map[string]string // "BTCUSDT" -> "BTC"
	handler SpotHandler

	conn    *websocket.Conn
	running bool
	stopCh  chan struct{}
}

// NewBinanceFeed maps assets ("BTC") onto their USDT spot symbols.
func NewBinanceFeed(assets []string, handler SpotHandler) *BinanceFeed {
	symbols := make(map[string]string, len(assets))
	for _, a := range assets {
		symbols[strings.ToUpper(a)+"USDT"] = strings.ToUpper(a)
	}
	return &BinanceFeed{
		assets:  symbols,
		handler: handler,
		stopCh:  make(chan struct{}),
	}
}

func (f *BinanceFeed) url() string {
	streams := make([]string, 0, len(f.assets))
	for sym := range f.assets {
		streams = append(streams, strings.ToLower(sym)+"@trade")
	}
	return binanceWSBase + strings.Join(streams, "/")
}

// Start connects and begins streaming. Reconnects with backoff until
// Stop is called.
func (f *BinanceFeed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.run()
	log.Info().Int("assets", len(f.assets)).Msg("📈 Binance reference feed started")
}

// Stop closes the stream.
func (f *BinanceFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	f.running = false
	close(f.stopCh)
	if f.conn != nil {
		f.conn.Close()
	}
}

func (f *BinanceFeed) run() {
	backoff := time.Second
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		if err := f.stream(); err != nil {
			log.Warn().Err(err).Dur("backoff", backoff).Msg("binance stream dropped, reconnecting")
		}

		select {
		case <-f.stopCh:
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (f *BinanceFeed) stream() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.url(), nil)
	if err != nil {
		return fmt.Errorf("dial binance: %w", err)
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	defer conn.Close()

	for {
		select {
		case <-f.stopCh:
			return nil
		default:
		}

		var msg binanceTrade
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		asset, ok := f.assets[msg.Data.Symbol]
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(msg.Data.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		ts := time.UnixMilli(msg.Data.TradeTime)
		f.handler(asset, price, ts)
	}
}
