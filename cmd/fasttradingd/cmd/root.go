// Package cmd wires the service together behind a cobra CLI
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gwrxuk/FastTrading/analytics"
	"github.com/gwrxuk/FastTrading/api"
	"github.com/gwrxuk/FastTrading/auth"
	"github.com/gwrxuk/FastTrading/config"
	"github.com/gwrxuk/FastTrading/engine/matching"
	"github.com/gwrxuk/FastTrading/engine/tradelog"
	"github.com/gwrxuk/FastTrading/market"
	"github.com/gwrxuk/FastTrading/pubsub"
	"github.com/gwrxuk/FastTrading/store"
	"github.com/gwrxuk/FastTrading/wallet"
)

// Exit codes
const (
	exitOK      = 0
	exitStartup = 1
	exitRuntime = 2
)

var configPath string

// Execute runs the root command and returns the process exit code
func Execute() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			fmt.Fprintln(os.Stderr, err)
			return exit.code
		}
		fmt.Fprintln(os.Stderr, err)
		return exitStartup
	}
	return exitOK
}

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fasttradingd",
		Short:         "FastTrading spot exchange daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the matching engine and API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return exitError{code: exitStartup, err: err}
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func newLogger(cfg config.LogConfig) (log.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}
	opts := []log.Option{log.LevelOption(level)}
	if cfg.Format == "json" {
		opts = append(opts, log.OutputJSONOption())
	}
	return log.NewLogger(os.Stderr, opts...), nil
}

func serve(parent context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return exitError{code: exitStartup, err: err}
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence
	var st store.Store
	if cfg.Store.PostgresDSN != "" {
		pg, err := store.NewPostgres(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return exitError{code: exitStartup, err: fmt.Errorf("connect postgres: %w", err)}
		}
		st = pg
		logger.Info("using postgres store")
	} else {
		st = store.NewMemory()
		logger.Warn("no postgres dsn configured, using in-memory store")
	}
	defer st.Close()

	// Fan-out transport
	var bus pubsub.Bus
	if cfg.Redis.Addr != "" {
		rb, err := pubsub.NewRedisBus(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			return exitError{code: exitStartup, err: fmt.Errorf("connect redis: %w", err)}
		}
		bus = rb
		logger.Info("using redis pub/sub", "addr", cfg.Redis.Addr)
	} else {
		bus = pubsub.NewMemoryBus()
		logger.Warn("no redis configured, using in-process bus")
	}
	defer bus.Close()

	trades, err := tradelog.Open(ctx, st, logger)
	if err != nil {
		return exitError{code: exitStartup, err: err}
	}

	gate := wallet.NewGate(st, logger)
	commission, err := math.LegacyNewDecFromStr(cfg.Engine.CommissionRate)
	if err != nil {
		return exitError{code: exitStartup, err: fmt.Errorf("parse commission rate: %w", err)}
	}
	gate.SetCommissionRate(commission)
	slippage, err := math.LegacyNewDecFromStr(cfg.Engine.SlippageFactor)
	if err != nil {
		return exitError{code: exitStartup, err: fmt.Errorf("parse slippage factor: %w", err)}
	}
	gate.SetSlippageFactor(slippage)

	engine := matching.New(st, gate, trades, bus, logger)
	minSize, err := math.LegacyNewDecFromStr(cfg.Engine.MinOrderSize)
	if err != nil {
		return exitError{code: exitStartup, err: fmt.Errorf("parse min order size: %w", err)}
	}
	maxSize, err := math.LegacyNewDecFromStr(cfg.Engine.MaxOrderSize)
	if err != nil {
		return exitError{code: exitStartup, err: fmt.Errorf("parse max order size: %w", err)}
	}
	engine.SetSizeBounds(minSize, maxSize)

	// Rebuild every listed symbol's book from persisted open orders
	for _, symbol := range cfg.Market.Symbols {
		if err := engine.Recover(ctx, symbol); err != nil {
			return exitError{code: exitStartup, err: fmt.Errorf("recover %s: %w", symbol, err)}
		}
	}

	authSvc := auth.NewService(st, []byte(cfg.Auth.JWTSecret), logger)
	authSvc.SetTokenTTL(cfg.Auth.TokenTTL)
	walletSvc := wallet.NewService(st, gate, logger)
	marketSvc := market.NewService(engine, trades, cfg.Market.Symbols, logger)
	analyticsSvc := analytics.NewService(trades, logger)

	server := api.NewServer(&api.Config{
		Host:             cfg.HTTP.Host,
		Port:             cfg.HTTP.Port,
		ReadTimeout:      cfg.HTTP.ReadTimeout,
		WriteTimeout:     cfg.HTTP.WriteTimeout,
		DisableRateLimit: cfg.HTTP.DisableRateLimit,
	}, api.Deps{
		Engine:    engine,
		Trades:    trades,
		Store:     st,
		Bus:       bus,
		Auth:      authSvc,
		Wallets:   walletSvc,
		Market:    marketSvc,
		Analytics: analyticsSvc,
		Logger:    logger,
	})
	server.WebSocketHub().SetMaxClients(cfg.WebSocket.MaxClients)

	go engine.Run(ctx)
	go server.WebSocketHub().Run(ctx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Error("shutdown error", "err", err)
			return exitError{code: exitRuntime, err: err}
		}
		return nil
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "err", err)
			return exitError{code: exitRuntime, err: err}
		}
		return nil
	}
}
