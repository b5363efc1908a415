// Package coordinator owns the event bus, the emergency-halt flag every
// write-side loop consults, and the start/stop ordering of the other
// components.
package coordinator

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/aristath/rpcp/internal/action"
	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/events"
	"github.com/aristath/rpcp/internal/execution"
	"github.com/aristath/rpcp/internal/funds"
	"github.com/aristath/rpcp/internal/risk"
	"github.com/aristath/rpcp/internal/store"
)

// Loop is anything the Coordinator starts with a background Run(ctx) and
// reloads pending work for on boot. Pure function packages like metrics and
// sizer have no lifecycle, so they never implement this.
type Loop interface {
	Run(ctx context.Context)
}

// Reloader restores in-flight state left over from a previous process
// crash or restart.
type Reloader interface {
	ReloadPending(ctx context.Context) error
}

// Coordinator wires every component together and gates every write-side
// entry point behind the emergency flag. The store has no Run loop of its
// own: it is passed in already open. The clock is consumed, not driven.
type Coordinator struct {
	store *store.Store
	clk clock.Clock
	bus *events.Bus
	log zerolog.Logger

	assessor *risk.Assessor
	planner *action.Planner
	driver *execution.Driver
	executor *execution.Executor
	funds *funds.Controller
	admin *AdminScheduler

	halted atomic.Bool

	cancel context.CancelFunc
}

// New constructs a Coordinator. Individual components are already built by
// the caller (main) with emergencyHalted wired to Coordinator.EmergencyHalted,
// so construction order (store -> collaborators -> components -> coordinator)
// naturally precedes Coordinator.Start, which only sequences Run calls.
func New(st *store.Store, clk clock.Clock, bus *events.Bus, assessor *risk.Assessor, planner *action.Planner,
	driver *execution.Driver, executor *execution.Executor, fundsCtl *funds.Controller, log zerolog.Logger) *Coordinator {
	l := log.With().Str("component", "coordinator").Logger()
	return &Coordinator{
 store: st, clk: clk, bus: bus, assessor: assessor, planner: planner, driver: driver,
 executor: executor, funds: fundsCtl, admin: NewAdminScheduler(st, clk, l), log: l,
	}
}

// EmergencyHalted reports whether the emergency flag is currently set. Every
// component that needs gating receives this method value at construction
// time, never a pointer to the Coordinator itself.
func (c *Coordinator) EmergencyHalted() bool { return c.halted.Load() }

// TriggerEmergencyStop sets the flag and publishes emergency.activated. It
// does not itself build or drive an emergency_stop plan: that is the Action
// Planner's job once it sees the triggering alert, which the
// Coordinator's alert-stream subscription below also does directly so a
// stop is never gated by the same flag it is about to raise.
func (c *Coordinator) TriggerEmergencyStop(reason string) {
	if c.halted.CompareAndSwap(false, true) {
 c.log.Warn().Str("reason", reason).Msg("emergency stop activated")
 c.bus.Publish(events.TopicEmergencyActive, map[string]interface{}{"reason": reason})
	}
}

// Resume clears the emergency flag. Only an explicit operator command
// reaches this method.
func (c *Coordinator) Resume() {
	if c.halted.CompareAndSwap(true, false) {
 c.log.Info().Msg("emergency resume")
 c.bus.Publish(events.TopicEmergencyResumed, map[string]interface{}{})
	}
}

// Start brings every component up: the store is already open, the clock is
// already constructed, metrics and sizing have no lifecycle, then the risk
// Assessor, the Action Planner, the execution Driver and the funds
// Controller start in that order. Non-terminal plans are reloaded before
// the Executor's driver starts accepting new action-created events, so a
// restart never races a fresh dispatch against a reload of the same plan.
func (c *Coordinator) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.executor.ReloadPending(runCtx); err != nil {
 c.log.Error().Err(err).Msg("reload pending plans failed")
	}

	go c.assessor.Run(runCtx)
	go c.planner.Run(runCtx)
	go c.driver.Run(runCtx)
	go c.funds.Run(runCtx)
	go c.watchAlerts(runCtx)

	if err := c.admin.Start(); err != nil {
 c.log.Error().Err(err).Msg("admin scheduler start failed")
	}

	c.log.Info().Msg("coordinator started")
	return nil
}

// Stop reverses the start order: it stops the admin scheduler, waiting for
// any admin job already running to finish, then cancels the shared context.
// The context-driven loops are not waited on; each acknowledges
// cancellation within its next tick.
func (c *Coordinator) Stop() {
	c.admin.Stop()
	if c.cancel != nil {
 c.cancel()
	}
	c.log.Info().Msg("coordinator stopped")
}

// watchAlerts subscribes to risk.alert.created and flips the emergency flag
// the moment a critical-severity emergency_stop alert is seen, independent
// of whatever the Action Planner does with the same event.
func (c *Coordinator) watchAlerts(ctx context.Context) {
	sub := c.bus.Subscribe(events.TopicAlertCreated)
	for {
 select {
 case <-ctx.Done():
 return
 case ev := <-sub:
 alertID, _ := ev.Data["alert_id"].(string)
 if alertID == "" {
 continue
 }
 alert, err := c.store.GetAlert(ctx, alertID)
 if err != nil {
 c.log.Error().Err(err).Str("alert_id", alertID).Msg("load alert for emergency check failed")
 continue
 }
 if alert.Severity == domain.SeverityCritical && alert.RecommendedAction == domain.ActionEmergencyStop {
 c.TriggerEmergencyStop(alert.Message)
 }
 }
	}
}
