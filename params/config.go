package params

import (
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Market holds the tunables of the sale/trade round engine.
type Market struct {
	RoundDuration time.Duration

	// First sale round inputs: the price the seed round sells at and the
	// trade volume the pre-genesis trade round is assumed to have produced.
	SeedPriceWei  *big.Int
	SeedVolumeWei *big.Int

	// Price escalation: next = prev * GrowthNum / GrowthDen + IncrementWei.
	GrowthNum    int64
	GrowthDen    int64
	IncrementWei *big.Int

	// Referral reward rates in basis points (10000 = 100%).
	SaleL1Bps  int64
	SaleL2Bps  int64
	TradeL1Bps int64
	TradeL2Bps int64

	// Owner may run admin operations; Root seeds the referral graph
	// (sponsored by itself); FallbackSink collects rewards when the
	// principal has no sponsor chain.
	Owner        common.Address
	Root         common.Address
	FallbackSink common.Address

	// RootSelfReward pays the L2 share to the root when the upline chain
	// terminates at the self-sponsored root. False diverts it to the sink.
	RootSelfReward bool

	TokenName     string
	TokenSymbol   string
	TokenDecimals uint8
}

type Node struct {
	ListenAddr string
	DBPath     string
	LogFile    string
}

type Config struct {
	Market Market
	Node   Node
}

func Default() Config {
	return Config{
		Market: Market{
			RoundDuration:  72 * time.Hour,
			SeedPriceWei:   big.NewInt(10_000_000_000_000),        // 0.00001 ether
			SeedVolumeWei:  big.NewInt(1_000_000_000_000_000_000), // 1 ether
			GrowthNum:      103,
			GrowthDen:      100,
			IncrementWei:   big.NewInt(4_000_000_000_000), // 0.000004 ether
			SaleL1Bps:      500,
			SaleL2Bps:      300,
			TradeL1Bps:     250,
			TradeL2Bps:     250,
			Owner:          common.HexToAddress("0x0000000000000000000000000000000000000001"),
			Root:           common.HexToAddress("0x0000000000000000000000000000000000000001"),
			FallbackSink:   common.HexToAddress("0x0000000000000000000000000000000000000001"),
			RootSelfReward: true,
			TokenName:      "ACADEM Coin",
			TokenSymbol:    "ACDM",
			TokenDecimals:  6,
		},
		Node: Node{
			ListenAddr: ":8080",
			DBPath:     "data/market.db",
			LogFile:    "data/node.log",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if d := os.Getenv("ROUND_DURATION_SECONDS"); d != "" {
		if secs, err := strconv.ParseInt(d, 10, 64); err == nil && secs > 0 {
			cfg.Market.RoundDuration = time.Duration(secs) * time.Second
		}
	}
	if v := envBig("SEED_PRICE_WEI"); v != nil {
		cfg.Market.SeedPriceWei = v
	}
	if v := envBig("SEED_VOLUME_WEI"); v != nil {
		cfg.Market.SeedVolumeWei = v
	}
	if v := envBig("PRICE_INCREMENT_WEI"); v != nil {
		cfg.Market.IncrementWei = v
	}

	envBps("SALE_REF_L1_BPS", &cfg.Market.SaleL1Bps)
	envBps("SALE_REF_L2_BPS", &cfg.Market.SaleL2Bps)
	envBps("TRADE_REF_L1_BPS", &cfg.Market.TradeL1Bps)
	envBps("TRADE_REF_L2_BPS", &cfg.Market.TradeL2Bps)

	envAddr("OWNER_ADDRESS", &cfg.Market.Owner)
	envAddr("ROOT_ADDRESS", &cfg.Market.Root)
	envAddr("FALLBACK_SINK_ADDRESS", &cfg.Market.FallbackSink)

	if v := os.Getenv("ROOT_SELF_REWARD"); v != "" {
		cfg.Market.RootSelfReward = v == "true"
	}

	if v := os.Getenv("LISTEN"); v != "" {
		cfg.Node.ListenAddr = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Node.DBPath = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}

	return cfg
}

func envBig(key string) *big.Int {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() < 0 {
		return nil
	}
	return n
}

func envBps(key string, dst *int64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if bps, err := strconv.ParseInt(v, 10, 64); err == nil && bps >= 0 && bps <= 10000 {
		*dst = bps
	}
}

func envAddr(key string, dst *common.Address) {
	v := os.Getenv(key)
	if v == "" || !common.IsHexAddress(v) {
		return
	}
	*dst = common.HexToAddress(v)
}
