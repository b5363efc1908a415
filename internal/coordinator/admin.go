package coordinator

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/store"
)

// AlertRetention is how long a resolved alert survives before the nightly
// GC job purges it.
const AlertRetention = 30 * 24 * time.Hour

// AdminScheduler runs the Coordinator's coarse, wall-clock-anchored admin
// jobs: nightly stale-alert garbage collection and a daily portfolio-risk
// summary log line. These are deliberately outside the virtual-clock-driven
// core loops (core loops are tested via clock.VirtualClock; admin
// jobs run on real wall-clock cron schedules since they are background
// maintenance work, not control-loop logic under test).
type AdminScheduler struct {
	cron *cron.Cron
	store *store.Store
	clk clock.Clock
	log zerolog.Logger
}

// NewAdminScheduler constructs an AdminScheduler. log defaults to a no-op logger.
func NewAdminScheduler(st *store.Store, clk clock.Clock, log zerolog.Logger) *AdminScheduler {
	return &AdminScheduler{
 cron: cron.New(),
 store: st,
 clk: clk,
 log: log.With().Str("component", "coordinator.admin").Logger(),
	}
}

// Start registers the admin jobs and starts the underlying cron runner.
func (a *AdminScheduler) Start() error {
	if _, err := a.cron.AddFunc("0 3 * * *", a.runStaleAlertGC); err != nil {
 return err
	}
	if _, err := a.cron.AddFunc("0 6 * * *", a.runDailyPortfolioSummary); err != nil {
 return err
	}
	a.cron.Start()
	a.log.Info().Msg("admin scheduler started")
	return nil
}

// Stop drains in-flight admin jobs and stops the cron runner.
func (a *AdminScheduler) Stop() {
	ctx := a.cron.Stop()
	<-ctx.Done()
	a.log.Info().Msg("admin scheduler stopped")
}

func (a *AdminScheduler) runStaleAlertGC() {
	ctx := context.Background()
	cutoff := a.clk.Now().Add(-AlertRetention)
	n, err := a.store.PurgeResolvedAlertsBefore(ctx, cutoff)
	if err != nil {
 a.log.Error().Err(err).Msg("stale alert gc failed")
 return
	}
	a.log.Info().Int64("purged", n).Msg("stale alert gc completed")
}

func (a *AdminScheduler) runDailyPortfolioSummary() {
	ctx := context.Background()
	positions, err := a.store.ActivePositions(ctx)
	if err != nil {
 a.log.Error().Err(err).Msg("daily portfolio summary failed")
 return
	}
	riskRows, err := a.store.PositionRiskRows(ctx)
	if err != nil {
 a.log.Error().Err(err).Msg("daily portfolio summary failed")
 return
	}
	alerts, err := a.store.ListAlerts(ctx, true)
	if err != nil {
 a.log.Error().Err(err).Msg("daily portfolio summary failed")
 return
	}
	a.log.Info().
 Int("open_positions", len(positions)).
 Int("risk_rows", len(riskRows)).
 Int("open_alerts", len(alerts)).
 Msg("daily portfolio risk summary")
}
