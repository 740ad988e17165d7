package feeds

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CHAINLINK FALLBACK FEED - on-chain oracle prices
// ═══════════════════════════════════════════════════════════════════════════════
//
// The venue settles against Chainlink, so when the Binance stream is
// down the next best reference is the aggregator itself. Much slower
// (block cadence), which is fine for a fallback.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Chainlink aggregator proxies on Polygon mainnet.
var defaultAggregators = map[string]string{
	"BTC": "0xc907E116054Ad103354f2D350FD2514433D57F6f",
	"ETH": "0xF9680D99D6C9589e2a93a78A04A279e509205945",
	"SOL": "0x10C8264C0935b3B9870013e057f330Ff3e9C56dC",
}

const aggregatorABI = `[{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"},{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}]`

// ChainlinkFeed polls aggregator contracts over an RPC endpoint.
type ChainlinkFeed struct {
	client      *ethclient.Client
	abi         abi.ABI
	aggregators map[string]common.Address
	handler     SpotHandler
	interval    time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewChainlinkFeed dials the RPC endpoint and prepares the aggregator
// bindings for the given assets.
func NewChainlinkFeed(rpcURL string, assets []string, interval time.Duration, handler SpotHandler) (*ChainlinkFeed, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("parse aggregator abi: %w", err)
	}

	aggs := make(map[string]common.Address)
	for _, a := range assets {
		addr, ok := defaultAggregators[strings.ToUpper(a)]
		if !ok {
			return nil, fmt.Errorf("no chainlink aggregator known for %s", a)
		}
		aggs[strings.ToUpper(a)] = common.HexToAddress(addr)
	}

	return &ChainlinkFeed{
		client:      client,
		abi:         parsed,
		aggregators: aggs,
		handler:     handler,
		interval:    interval,
		stopCh:      make(chan struct{}),
	}, nil
}

// Start begins polling latestRoundData for every asset.
func (f *ChainlinkFeed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.poll()
	log.Info().Dur("interval", f.interval).Msg("⛓️ Chainlink fallback feed started")
}

// Stop halts polling.
func (f *ChainlinkFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	f.running = false
	close(f.stopCh)
}

func (f *ChainlinkFeed) poll() {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			for asset, addr := range f.aggregators {
				price, err := f.latestPrice(addr)
				if err != nil {
					log.Debug().Err(err).Str("asset", asset).Msg("chainlink read failed")
					continue
				}
				f.handler(asset, price, time.Now())
			}
		}
	}
}

// latestPrice calls latestRoundData and scales by the feed's 8
// decimals (all USD aggregators on Polygon use 8).
func (f *ChainlinkFeed) latestPrice(addr common.Address) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	data, err := f.abi.Pack("latestRoundData")
	if err != nil {
		return 0, err
	}
	raw, err := f.client.CallContract(ctx, callMsg(addr, data), nil)
	if err != nil {
		return 0, err
	}
	out, err := f.abi.Unpack("latestRoundData", raw)
	if err != nil {
		return 0, err
	}
	answer, ok := out[1].(*big.Int)
	if !ok || answer.Sign() <= 0 {
		return 0, fmt.Errorf("bad aggregator answer")
	}

	scaled, _ := new(big.Float).Quo(new(big.Float).SetInt(answer), big.NewFloat(1e8)).Float64()
	return scaled, nil
}
