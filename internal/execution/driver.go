package execution

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/events"
	"github.com/aristath/rpcp/internal/store"
)

// Driver is the event-driven glue: it subscribes to risk.action.created,
// materializes a plan via Planner, and drives it to completion via Executor.
// Splitting construction from dispatch keeps BuildPlan a pure, easily
// tested function while Driver owns the reactive wiring.
type Driver struct {
	planner *Planner
	executor *Executor
	bus *events.Bus
	store *store.Store
	log zerolog.Logger
}

// NewDriver constructs a Driver.
func NewDriver(planner *Planner, executor *Executor, bus *events.Bus, st *store.Store, log zerolog.Logger) *Driver {
	return &Driver{planner: planner, executor: executor, bus: bus, store: st,
 log: log.With().Str("component", "execution.driver").Logger()}
}

// Run subscribes to risk.action.created and processes each as it arrives.
func (d *Driver) Run(ctx context.Context) {
	sub := d.bus.Subscribe(events.TopicActionCreated)
	for {
 select {
 case <-ctx.Done():
 return
 case ev := <-sub:
 actionID, _ := ev.Data["action_id"].(string)
 if actionID == "" {
 continue
 }
 if err := d.HandleAction(ctx, actionID); err != nil {
 d.log.Error().Err(err).Str("action_id", actionID).Msg("action -> plan dispatch failed")
 }
 }
	}
}

// HandleAction builds and drives a plan for one pending action. Idempotent:
// an action that already produced a plan is not planned again; its existing
// plan is driven instead (the
// idempotency guarantee rests on BuildPlan + Executor.submitOne, not here,
// but avoiding a duplicate BuildPlan call keeps the store's plan set 1:1
// with actions).
func (d *Driver) HandleAction(ctx context.Context, actionID string) error {
	action, err := d.store.GetAction(ctx, actionID)
	if err != nil {
 return fmt.Errorf("execution: get action %s: %w", actionID, err)
	}
	if action.Status != domain.ActionPending {
 return nil
	}

	existing, err := d.store.PlanForAction(ctx, actionID)
	if err != nil {
 return fmt.Errorf("execution: lookup existing plan: %w", err)
	}
	var plan domain.ExecutionPlan
	if existing != nil {
 plan = *existing
	} else {
 plan, err = d.planner.BuildPlan(ctx, action)
 if err != nil {
 action.Status = domain.ActionFailed
 if perr := d.store.UpsertAction(ctx, action); perr != nil {
 d.log.Error().Err(perr).Str("action_id", actionID).Msg("action status persist failed")
 }
 return fmt.Errorf("execution: build plan for action %s: %w", actionID, err)
 }
	}

	action.Status = domain.ActionExecuting
	if err := d.store.UpsertAction(ctx, action); err != nil {
 d.log.Error().Err(err).Str("action_id", actionID).Msg("action status persist failed")
	}

	if err := d.executor.Drive(ctx, plan); err != nil {
 return fmt.Errorf("execution: drive plan %s: %w", plan.ID, err)
	}

	driven, err := d.store.GetPlan(ctx, plan.ID)
	if err != nil {
 return fmt.Errorf("execution: reload plan %s: %w", plan.ID, err)
	}
	if driven.Status == domain.PlanCompleted {
 action.Status = domain.ActionCompleted
	} else if driven.Status.IsTerminal() {
 action.Status = domain.ActionFailed
	} else {
 return nil
	}
	if err := d.store.UpsertAction(ctx, action); err != nil {
 return fmt.Errorf("execution: persist final action status: %w", err)
	}
	if action.Status == domain.ActionCompleted {
 d.bus.Publish(events.TopicActionCompleted, map[string]interface{}{"action_id": actionID, "plan_id": plan.ID})
	} else {
 d.bus.Publish(events.TopicActionFailed, map[string]interface{}{"action_id": actionID, "plan_id": plan.ID})
	}
	return nil
}
