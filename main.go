package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"auction-market-bot/config"
	"auction-market-bot/internal/alerts"
	"auction-market-bot/internal/api"
	"auction-market-bot/internal/arbitrage"
	"auction-market-bot/internal/auth"
	"auction-market-bot/internal/broker"
	"auction-market-bot/internal/cache"
	"auction-market-bot/internal/database"
	"auction-market-bot/internal/events"
	"auction-market-bot/internal/ingest"
	"auction-market-bot/internal/logging"
	"auction-market-bot/internal/marketstate"
	"auction-market-bot/internal/notification"
	"auction-market-bot/internal/orderflow"
	"auction-market-bot/internal/orders"
	"auction-market-bot/internal/polymarket"
	"auction-market-bot/internal/portfolio"
	"auction-market-bot/internal/profile"
	"auction-market-bot/internal/risk"
	"auction-market-bot/internal/scheduler"
	"auction-market-bot/internal/strategy"
	"auction-market-bot/internal/trader"
	"auction-market-bot/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLogger := logging.Setup(nil)
		fallbackLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.Setup(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	logger.Info().Msg("starting auction market bot")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		DBName:   cfg.DatabaseConfig.DBName,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	repo := database.NewRepository(db)

	cacheSvc := cache.NewService(cache.Config{
		Enabled:  cfg.RedisConfig.Enabled,
		Addr:     cfg.RedisConfig.Addr,
		Password: cfg.RedisConfig.Password,
		DB:       cfg.RedisConfig.DB,
		PoolSize: cfg.RedisConfig.PoolSize,
	}, logger)
	defer cacheSvc.Close()

	bus := events.NewEventBus()

	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create vault client")
	}
	creds, err := vaultClient.LoadCredentials(ctx, vault.Credentials{
		BrokerAPIKey:     cfg.BrokerConfig.APIKey,
		BrokerSecretKey:  cfg.BrokerConfig.SecretKey,
		PolymarketKey:    cfg.ArbitrageConfig.APIKey,
		PolymarketSecret: cfg.ArbitrageConfig.APISecret,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load credentials")
	}

	var brk broker.Broker
	if cfg.TradingConfig.DryRun {
		brk = broker.NewPaperBroker(cfg.StrategyConfig.InitialCapital)
		logger.Info().Msg("dry run: using paper broker")
	} else {
		brk = broker.NewAlpacaClient(creds.BrokerAPIKey, creds.BrokerSecretKey, cfg.BrokerConfig.BaseURL)
	}

	symbols := cfg.IngestConfig.Symbols
	refs := make([]scheduler.SymbolRef, 0, len(symbols))
	for _, symbol := range symbols {
		id, err := repo.GetOrCreateSymbol(ctx, symbol, cfg.IngestConfig.Provider)
		if err != nil {
			logger.Fatal().Err(err).Str("symbol", symbol).Msg("failed to register symbol")
		}
		refs = append(refs, scheduler.SymbolRef{ID: id, Symbol: symbol})
	}

	router := ingest.NewRouter(repo, cacheSvc, cfg.IngestConfig.Provider)
	provider := buildProvider(cfg, symbols, router.Records())
	defer provider.Stop()

	profileEngine := profile.NewEngine(repo, profile.Params{
		ValueAreaPct: cfg.ProfileConfig.ValueAreaPct,
		LVNFactor:    cfg.ProfileConfig.LVNFactor,
		HVNFactor:    cfg.ProfileConfig.HVNFactor,
		MinLevels:    cfg.ProfileConfig.MinLevels,
		MinLevelStep: cfg.ProfileConfig.MinLevelStep,
	}, logger)
	flowEngine := orderflow.NewEngine(repo, logger)
	detector := marketstate.NewDetector(repo, bus, marketstate.Params{
		POCDistanceThreshold: cfg.DetectorConfig.POCDistanceThreshold,
		MomentumThreshold:    cfg.DetectorConfig.MomentumThreshold,
		CVDPressureThreshold: cfg.DetectorConfig.CVDPressureThreshold,
		LookbackMinutes:      cfg.DetectorConfig.LookbackMinutes,
	}, logger)
	lvnMonitor := alerts.NewLVNMonitor(repo, cacheSvc, bus, cfg.ProfileConfig.LVNAlertPct)

	pf := portfolio.New(cfg.StrategyConfig.InitialCapital)
	riskManager := risk.NewManager(risk.Config{
		MaxDailyLossPct:   cfg.RiskConfig.MaxDailyLossPct,
		MinAccountBalance: cfg.RiskConfig.MinAccountBalance,
		MaxPositions:      cfg.StrategyConfig.MaxPositions,
	})
	haltBreaker := risk.NewHaltBreaker(
		cfg.RiskConfig.MaxConsecutiveLosses,
		time.Duration(cfg.RiskConfig.HaltCooldownMinutes)*time.Minute,
	)
	haltBreaker.OnTrip(func(reason string) { bus.PublishTradingHalted(reason) })
	haltBreaker.OnReset(func() { bus.PublishTradingResumed() })

	monitor := orders.NewMonitor(brk, cacheSvc, orders.Config{
		MaxOrderAge:    time.Duration(cfg.OrderMonitorConfig.MaxOrderAgeMinutes) * time.Minute,
		MaxSlippagePct: cfg.OrderMonitorConfig.MaxSlippagePct,
	})

	tradingEngine := trader.New(repo, brk, monitor, pf, riskManager, haltBreaker, cacheSvc, bus,
		strategy.Params{
			MinAggressionScore:  cfg.StrategyConfig.MinAggressionScore,
			ATRStopMultiplier:   cfg.StrategyConfig.ATRStopMultiplier,
			ATRTargetMultiplier: cfg.StrategyConfig.ATRTargetMultiplier,
			RiskPerTradePct:     cfg.StrategyConfig.RiskPerTradePct,
			MaxPositions:        cfg.StrategyConfig.MaxPositions,
		},
		cfg.StrategyConfig.ATRPeriod, cfg.TradingConfig.Enabled)

	sched := scheduler.New(refs, profileEngine, flowEngine, detector, lvnMonitor, tradingEngine, repo)
	defer sched.Stop()

	if cfg.NotificationConfig.Enabled {
		manager := notification.NewManager(true)
		tg, err := notification.NewTelegramNotifier(notification.TelegramConfig{
			Enabled:  cfg.NotificationConfig.Telegram.Enabled,
			BotToken: cfg.NotificationConfig.Telegram.BotToken,
			ChatID:   cfg.NotificationConfig.Telegram.ChatID,
		})
		if err != nil {
			logger.Error().Err(err).Msg("telegram notifier unavailable")
		} else {
			manager.AddNotifier(tg)
		}
		manager.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
			Enabled:    cfg.NotificationConfig.Discord.Enabled,
			WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
		}))
		notification.NewBridge(manager).Attach(bus)
	}

	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return router.Run(runCtx) })
	g.Go(func() error { return provider.Start(runCtx) })
	g.Go(func() error { return sched.Run(runCtx) })
	g.Go(func() error { return runOrderMonitor(runCtx, monitor, cfg.OrderMonitorConfig) })

	if cfg.ArbitrageConfig.Enabled {
		pmClient := polymarket.NewClient(cfg.ArbitrageConfig.RESTURL,
			creds.PolymarketKey, creds.PolymarketSecret, cfg.TradingConfig.DryRun)
		arbEngine := arbitrage.NewEngine(arbitrage.Params{
			SpreadThreshold:  decimal.NewFromFloat(cfg.ArbitrageConfig.SpreadThreshold),
			MinProfitPct:     decimal.NewFromFloat(cfg.ArbitrageConfig.MinProfitPct),
			MaxPositionSize:  decimal.NewFromFloat(cfg.ArbitrageConfig.MaxPositionSize),
			MaxTotalExposure: decimal.NewFromFloat(cfg.ArbitrageConfig.MaxTotalExposure),
			FeeRate:          decimal.NewFromFloat(cfg.ArbitrageConfig.FeeRate),
		}, pmClient, repo, bus)

		markets, err := repo.ListActiveBinaryMarkets(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load binary markets")
		}
		arbEngine.RegisterMarkets(markets)
		logger.Info().Int("markets", len(markets)).Msg("arbitrage engine armed")

		if len(markets) > 0 {
			ws := arbitrage.NewWSClient(cfg.ArbitrageConfig.WSURL, arbEngine.TokenIDs(),
				func(q arbitrage.Quote) { arbEngine.OnQuote(runCtx, q) })
			defer ws.Stop()
			g.Go(func() error { return ws.Start(runCtx) })
			g.Go(func() error {
				return arbEngine.RunExitScanner(runCtx,
					time.Duration(cfg.ArbitrageConfig.ExitScanSec)*time.Second)
			})
		} else {
			logger.Warn().Msg("arbitrage enabled but no active markets registered; run fetch-markets first")
		}
	}

	if cfg.ServerConfig.Enabled {
		var authSvc *auth.Service
		if cfg.AuthConfig.Enabled {
			authSvc = auth.NewService(auth.Config{
				JWTSecret:        cfg.AuthConfig.JWTSecret,
				TokenDuration:    cfg.AuthConfig.TokenDuration,
				OperatorUser:     cfg.AuthConfig.OperatorUser,
				OperatorPassHash: cfg.AuthConfig.OperatorPassHash,
			})
		}
		srv := api.NewServer(api.Config{
			Host:            cfg.ServerConfig.Host,
			Port:            cfg.ServerConfig.Port,
			AllowedOrigins:  cfg.ServerConfig.AllowedOrigins,
			ReadTimeout:     time.Duration(cfg.ServerConfig.ReadTimeout) * time.Second,
			WriteTimeout:    time.Duration(cfg.ServerConfig.WriteTimeout) * time.Second,
			ShutdownTimeout: time.Duration(cfg.ServerConfig.ShutdownTimeout) * time.Second,
		}, repo, bus, tradingEngine, authSvc)
		g.Go(func() error { return srv.Start(runCtx) })
	}

	logger.Info().
		Strs("symbols", symbols).
		Str("provider", cfg.IngestConfig.Provider).
		Bool("trading", cfg.TradingConfig.Enabled).
		Bool("arbitrage", cfg.ArbitrageConfig.Enabled).
		Msg("all components running")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("component failed")
	}
	logger.Info().Msg("shutdown complete")
}

// buildProvider selects the market data source from config.
func buildProvider(cfg *config.Config, symbols []string, out chan<- ingest.NormalizedRecord) ingest.Provider {
	switch cfg.IngestConfig.Provider {
	case "websocket":
		return ingest.NewStreamingProvider(cfg.IngestConfig.WSURL, symbols,
			cfg.IngestConfig.ReconnectMaxSec, out)
	case "polling":
		return ingest.NewPollingProvider(cfg.IngestConfig.PollURL, symbols,
			cfg.IngestConfig.PollInterval, out)
	default:
		return ingest.NewSimulatedProvider(symbols, time.Second, out)
	}
}

// runOrderMonitor polls the broker for fills and reconciles tracked
// state on a slower cadence.
func runOrderMonitor(ctx context.Context, m *orders.Monitor, cfg config.OrderMonitorConfig) error {
	pollEvery := time.Duration(cfg.PollIntervalSec) * time.Second
	if pollEvery <= 0 {
		pollEvery = 10 * time.Second
	}
	reconcileEvery := time.Duration(cfg.ReconcileEverySec) * time.Second
	if reconcileEvery <= 0 {
		reconcileEvery = 5 * time.Minute
	}

	poll := time.NewTicker(pollEvery)
	defer poll.Stop()
	reconcile := time.NewTicker(reconcileEvery)
	defer reconcile.Stop()

	logger := logging.Component("order_monitor_loop")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
			if err := m.Poll(ctx); err != nil {
				logger.Error().Err(err).Msg("order poll failed")
			}
		case <-reconcile.C:
			if err := m.Reconcile(ctx); err != nil {
				logger.Error().Err(err).Msg("order reconcile failed")
			}
		}
	}
}
