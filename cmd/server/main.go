// Package main is the entry point for the Risk & Position Control Plane.
// It wires every component together and runs them until an interrupt or
// term signal arrives, then shuts everything down in reverse start order.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/rpcp/internal/action"
	"github.com/aristath/rpcp/internal/backup"
	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/collaborators"
	"github.com/aristath/rpcp/internal/config"
	"github.com/aristath/rpcp/internal/coordinator"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/events"
	"github.com/aristath/rpcp/internal/execution"
	"github.com/aristath/rpcp/internal/funds"
	"github.com/aristath/rpcp/internal/health"
	"github.com/aristath/rpcp/internal/risk"
	riskhandlers "github.com/aristath/rpcp/internal/risk/handlers"
	"github.com/aristath/rpcp/internal/server"
	"github.com/aristath/rpcp/internal/sizer"
	"github.com/aristath/rpcp/internal/store"
	"github.com/aristath/rpcp/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
 fallback := logger.New(logger.Config{Level: "info", Pretty: true})
 fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
	logger.SetGlobalLogger(log)
	log.Info().Msg("starting rpcp")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
 log.Fatal().Err(err).Msg("failed to create data dir")
	}
	st, err := store.Open(filepath.Join(cfg.DataDir, "rpcp.db"))
	if err != nil {
 log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	clk := clock.New()
	bus := events.NewBus(log)

	// The on-chain RPC client, DEX router and price feed are out of scope:
	// every collaborator below is the in-memory fake until a real chain
	// client is plugged in behind the same interfaces.
	marketData := collaborators.NewFakeMarketData()
	balanceReader := collaborators.NewFakeBalanceReader()
	signer := collaborators.NewFakeSigner()
	executor := collaborators.NewFakeExecutor()
	history := collaborators.NewMarketHistory(marketData, clk.Now)

	assessor := risk.New(st, clk, bus, history, cfg.Risk, log)
	// Write-side components read the emergency flag through this closure;
	// coord is assigned below, once every component it owns exists.
	var coord *coordinator.Coordinator
	halted := func() bool { return coord != nil && coord.EmergencyHalted() }
	planner := action.New(st, clk, bus, halted, log)

	execPlanner := execution.NewPlanner(st, clk, executor, cfg.Execution)
	execExecutor := execution.NewExecutor(st, clk, bus, executor, cfg.Execution, halted, log)
	driver := execution.NewDriver(execPlanner, execExecutor, bus, st, log)

	rebalanceScope := domain.GroupHot
	fundsCtl := funds.NewController(st, clk, bus, balanceReader, marketData, signer, executor,
 cfg.Wallets, rebalanceScope, cfg.Funds, halted, log)

	coord = coordinator.New(st, clk, bus, assessor, planner, driver, execExecutor, fundsCtl, log)

	riskH := riskhandlers.New(st, assessor, sizer.New(cfg.Sizing, history, history))
	eventHub := server.NewEventHub(bus, server.DefaultTopics(), log)
	httpSrv := server.New(server.Deps{
 Store: st,
 Clock: clk,
 RiskH: riskH,
 Emergency: coord,
 Events: eventHub,
 Port: cfg.HTTPPort,
	}, log)

	healthPeriod := cfg.HealthPollInterval
	if healthPeriod <= 0 {
 healthPeriod = 30 * time.Second
	}
	sampler := health.NewSampler(clk, st, bus, health.DefaultThresholds(), healthPeriod, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := coord.Start(ctx); err != nil {
 log.Fatal().Err(err).Msg("failed to start coordinator")
	}
	go sampler.Run(ctx)

	if cfg.S3Bucket != "" {
 archiver, err := backup.New(ctx, st, clk, cfg.S3Bucket, cfg.S3Region, time.Hour, log)
 if err != nil {
 log.Error().Err(err).Msg("backup archiver init failed, continuing without backups")
 } else {
 go archiver.Run(ctx)
 }
	}

	go func() {
 if err := httpSrv.ListenAndServe(); err != nil && err.Error() != "http: Server closed" {
 log.Fatal().Err(err).Msg("http server failed")
 }
	}()
	log.Info().Int("port", cfg.HTTPPort).Msg("http server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutdown signal received")
	cancel()
	coord.Stop()
	if err := httpSrv.Shutdown(); err != nil {
 log.Error().Err(err).Msg("http server forced to shutdown")
	}
	log.Info().Msg("rpcp stopped")
}
