package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/equilibria-xyz/perennial-v2-sub004/params"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/api"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/collateral"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/crypto"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/invoker"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/keeper"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/keeperbot"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/metrics"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/oracle"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/order"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/settlement"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/state"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/storage"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("logger_initialized", zap.String("log_file", cfg.Log.File), zap.String("level", cfg.Log.Level))

	metrics.Init()

	store, err := state.Open(cfg.Storage.Path)
	if err != nil {
		logger.Fatal("state_open_failed", zap.Error(err))
	}
	defer store.Close()

	// ---- Settlement ----
	ledger := collateral.Ledger{}
	prices := oracle.New(cfg.Oracle.MaxPriceAge, util.RealClock{}, logger.Named("oracle"))
	engine := settlement.NewEngine(prices, logger.Named("settlement"))
	vaults := settlement.NewVaults(logger.Named("vaults"))

	if err := bootstrap(store, engine, vaults, cfg, logger); err != nil {
		logger.Fatal("bootstrap_failed", zap.Error(err))
	}

	// ---- Collateral ----
	reserve := &collateral.LocalReserve{
		Address:         cfg.Collateral.ReserveAddress,
		RedemptionPrice: cfg.Collateral.RedemptionPrice,
		Ledger:          ledger,
	}
	var batcher collateral.Batcher
	if cfg.Collateral.BatcherEnabled {
		batcher = &collateral.LocalBatcher{Address: cfg.Collateral.BatcherAddress, Ledger: ledger}
	}
	router := collateral.NewRouter(batcher, reserve, logger.Named("collateral"))

	// ---- Invoker ----
	hub := api.NewHub(logger.Named("ws"))
	sinks := invoker.Sinks{hub}
	if cfg.Storage.JournalPath != "" {
		journal, err := storage.NewFileJournal(cfg.Storage.JournalPath, logger.Named("journal"))
		if err != nil {
			logger.Fatal("journal_open_failed", zap.Error(err))
		}
		defer journal.Close()
		sinks = append(sinks, journal)
	}
	dispatcher, err := invoker.NewDispatcher(
		invoker.Config{
			Address:         cfg.Invoker.Address,
			Keeper:          keeper.ConfigFromParams(cfg.Keeper),
			PriceCommitters: cfg.Oracle.Committers,
		},
		invoker.Deps{
			Store:      store,
			Book:       order.NewBook(cfg.Orders.MaxOpenPerAccount, logger.Named("orders")),
			Settlement: engine,
			Vaults:     vaults,
			Prices:     prices,
			Committer:  prices,
			Tokens:     ledger,
			Router:     router,
			KeeperPrices: keeper.FeedSource{
				ComputeGasPrice: cfg.Keeper.ComputeGasPrice,
				DataGasPrice:    cfg.Keeper.DataGasPrice,
				Feed:            cfg.Keeper.NativePriceFeed,
				Oracle:          prices,
			},
			Events: sinks,
			Logger: logger.Named("invoker"),
		},
	)
	if err != nil {
		logger.Fatal("dispatcher_init_failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	domain := crypto.DefaultDomain(cfg.Invoker.Address)
	domain.ChainID = big.NewInt(cfg.Invoker.ChainID)
	apiServer := api.NewServer(dispatcher, crypto.NewTypedSigner(domain), hub, cfg.API.AllowedOrigins, logger.Named("api"))

	go func() {
		if err := apiServer.Start(ctx, cfg.API.Addr); err != nil {
			logger.Error("api_server_failed", zap.Error(err))
			stop()
		}
	}()

	// ---- Keeper bot (optional) ----
	if cfg.Bot.Enabled {
		signer, err := crypto.FromPrivateKeyHex(cfg.Bot.PrivateKey)
		if err != nil {
			logger.Fatal("keeper_key_invalid", zap.Error(err))
		}
		bot := keeperbot.New(keeperbot.Config{
			Interval: cfg.Bot.Interval,
			Keeper:   signer.Address(),
		}, dispatcher, logger.Named("keeper"))
		go bot.Run(ctx)
	} else {
		logger.Info("keeper_bot_disabled")
	}

	logger.Info("node_started",
		zap.String("invoker", cfg.Invoker.Address.Hex()),
		zap.Int("markets", len(cfg.Markets)),
		zap.Int("vaults", len(cfg.Vaults)),
		zap.Bool("batcher", cfg.Collateral.BatcherEnabled),
		zap.Bool("strict_fee_ceiling", cfg.Keeper.StrictFeeCeiling),
		zap.Int("price_committers", len(cfg.Oracle.Committers)),
	)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_failed", zap.Error(err))
	}
	logger.Info("node_stopped")
}

// bootstrap registers the configured markets and vaults that are not yet in the store.
func bootstrap(store *state.Store, engine *settlement.Engine, vaults *settlement.Vaults, cfg params.Config, logger *zap.Logger) error {
	return store.Update(func(txn *state.Txn) error {
		for _, m := range cfg.Markets {
			ok, err := engine.IsMarket(txn, m.Address)
			if err != nil {
				return err
			}
			if ok {
				continue
			}
			if err := engine.RegisterMarket(txn, settlement.Market{
				Address:          m.Address,
				Name:             m.Name,
				MarginRatio:      m.MarginRatio,
				MaintenanceRatio: m.MaintenanceRatio,
			}); err != nil {
				return err
			}
			logger.Info("market_registered", zap.String("market", m.Address.Hex()), zap.String("name", m.Name))
		}
		for _, v := range cfg.Vaults {
			ok, err := vaults.IsVault(txn, v.Address)
			if err != nil {
				return err
			}
			if ok {
				continue
			}
			if err := vaults.Register(txn, v.Address, v.Name); err != nil {
				return err
			}
			logger.Info("vault_registered", zap.String("vault", v.Address.Hex()), zap.String("name", v.Name))
		}
		return nil
	})
}
