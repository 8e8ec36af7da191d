package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VolhaShupr/acdm-platform/params"
	"github.com/VolhaShupr/acdm-platform/pkg/api"
	"github.com/VolhaShupr/acdm-platform/pkg/ledger"
	"github.com/VolhaShupr/acdm-platform/pkg/market"
	"github.com/VolhaShupr/acdm-platform/pkg/storage"
	"github.com/VolhaShupr/acdm-platform/pkg/util"
)

// engineAddress is the custody identity the engine holds minted tokens,
// escrow and native proceeds under.
var engineAddress = common.HexToAddress("0x00000000000000000000000000000000000ACD1")

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	store, err := storage.Open(cfg.Node.DBPath)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Node.DBPath, "err", err)
	}
	defer store.Close()

	token := ledger.NewToken(cfg.Market.TokenName, cfg.Market.TokenSymbol, cfg.Market.TokenDecimals)
	native := ledger.NewNative()
	gateway := ledger.NewGateway(native, engineAddress)

	engine, err := market.NewEngine(market.EngineConfig{
		EngineAddress:  engineAddress,
		Owner:          cfg.Market.Owner,
		Root:           cfg.Market.Root,
		FallbackSink:   cfg.Market.FallbackSink,
		RootSelfReward: cfg.Market.RootSelfReward,
		RoundDuration:  cfg.Market.RoundDuration,
		SeedPrice:      cfg.Market.SeedPriceWei,
		SeedVolume:     cfg.Market.SeedVolumeWei,
		GrowthNum:      cfg.Market.GrowthNum,
		GrowthDen:      cfg.Market.GrowthDen,
		Increment:      cfg.Market.IncrementWei,
		Rates: market.RewardRates{
			SaleL1:  cfg.Market.SaleL1Bps,
			SaleL2:  cfg.Market.SaleL2Bps,
			TradeL1: cfg.Market.TradeL1Bps,
			TradeL2: cfg.Market.TradeL2Bps,
		},
	}, token, gateway, store, util.RealClock{}, sugar)
	if err != nil {
		sugar.Fatalw("engine_init_failed", "err", err)
	}

	server := api.NewServer(engine, token, native, sugar)
	go func() {
		if err := server.Start(cfg.Node.ListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_started",
		"listen", cfg.Node.ListenAddr,
		"owner", cfg.Market.Owner.Hex(),
		"root", cfg.Market.Root.Hex(),
		"round_duration", cfg.Market.RoundDuration,
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	sugar.Infow("shutting_down")
}
