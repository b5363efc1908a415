package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/collaborators"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/errs"
	"github.com/aristath/rpcp/internal/events"
	"github.com/aristath/rpcp/internal/store"
)

// Config holds the Executor's and Planner's tunables.
type Config struct {
	MaxRetries int
	RetryBaseDelay time.Duration
	CloseConcurrency int // cap on parallel close orders during emergency_stop
	StaggerDelay time.Duration // spacing between dispatches for a staggered plan
}

// DefaultConfig returns the suggested defaults.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, RetryBaseDelay: 500 * time.Millisecond, CloseConcurrency: 4, StaggerDelay: 2 * time.Second}
}

// Executor drives a plan's orders through a DexExecutor, tracking each
// order's status and advancing the plan's state machine as orders settle.
type Executor struct {
	store *store.Store
	clk clock.Clock
	bus *events.Bus
	executor collaborators.DexExecutor
	cfg Config
	log zerolog.Logger
	emergencyHalted func() bool
}

// NewExecutor constructs an Executor. emergencyHalted is consulted on every
// Drive call; emergency_stop plans are always allowed through regardless of
// its value.
func NewExecutor(st *store.Store, clk clock.Clock, bus *events.Bus, executor collaborators.DexExecutor, cfg Config, emergencyHalted func() bool, log zerolog.Logger) *Executor {
	if emergencyHalted == nil {
 emergencyHalted = func() bool { return false }
	}
	return &Executor{store: st, clk: clk, bus: bus, executor: executor, cfg: cfg, emergencyHalted: emergencyHalted,
 log: log.With().Str("component", "execution").Logger()}
}

// ReloadPending reloads every non-terminal plan from the store and drives
// each to completion, for restart-reload.
func (e *Executor) ReloadPending(ctx context.Context) error {
	plans, err := e.store.NonTerminalPlans(ctx)
	if err != nil {
 return fmt.Errorf("execution: reload pending plans: %w", err)
	}
	for _, p := range plans {
 if err := e.Drive(ctx, p); err != nil {
 e.log.Error().Err(err).Str("plan", p.ID).Msg("plan drive failed on reload")
 }
	}
	return nil
}

// Drive executes plan to a terminal state: expiring it if its TTL has
// elapsed, otherwise submitting/cancelling its orders (in parallel for
// strategy_pause, spaced by plan.StaggerDelay for emergency_stop, sequentially
// otherwise) and terminalizing once every order has settled.
func (e *Executor) Drive(ctx context.Context, plan domain.ExecutionPlan) error {
	if plan.Type != domain.PlanTypeEmergencyStop && e.emergencyHalted() {
 return errs.EmergencyHalted
	}

	now := e.clk.Now()
	if plan.IsExpired(now) {
 return e.terminalize(ctx, plan, domain.PlanExpired, "expired before execution")
	}

	if plan.Status == domain.PlanPending {
 if err := e.advance(ctx, &plan, domain.PlanExecuting, ""); err != nil {
 return err
 }
 e.bus.Publish(events.TopicPlanCreated, map[string]interface{}{"plan_id": plan.ID, "type": string(plan.Type)})
	}

	orders, err := e.store.OrdersForPlan(ctx, plan.ID)
	if err != nil {
 return fmt.Errorf("execution: load orders for plan %s: %w", plan.ID, err)
	}

	var failed, cancelled bool
	switch plan.Strategy {
	case domain.StrategyParallel:
 failed, cancelled = e.driveParallel(ctx, orders)
	case domain.StrategyStaggered:
 failed, cancelled = e.driveStaggered(ctx, orders, plan.StaggerDelay)
	default:
 failed, cancelled = e.driveSequential(ctx, orders)
	}

	status := domain.PlanCompleted
	result := "all orders settled"
	switch {
	case cancelled:
 status = domain.PlanCancelled
 result = "cancelled"
	case failed:
 status = domain.PlanFailed
 result = "one or more orders failed"
	}
	return e.terminalize(ctx, plan, status, result)
}

func (e *Executor) driveSequential(ctx context.Context, orders []domain.ExecutionOrder) (failed, cancelled bool) {
	for _, o := range orders {
 if o.Status.IsTerminal() {
 if o.Status == domain.OrderFailed {
 failed = true
 }
 continue
 }
 if err := e.submitOne(ctx, o); err != nil {
 failed = true
 }
	}
	return failed, false
}

func (e *Executor) driveParallel(ctx context.Context, orders []domain.ExecutionOrder) (failed, cancelled bool) {
	cancels := make([]domain.ExecutionOrder, 0, len(orders))
	closes := make([]domain.ExecutionOrder, 0, len(orders))
	for _, o := range orders {
 if o.Type == domain.OrderCancel {
 cancels = append(cancels, o)
 } else {
 closes = append(closes, o)
 }
	}

	// Cancels first, sequentially: there are usually few, and ordering them
	// ahead of closes matters more than their own parallelism.
	for _, o := range cancels {
 if o.Status.IsTerminal() {
 continue
 }
 if err := e.submitOne(ctx, o); err != nil {
 failed = true
 }
	}

	failedClose := e.driveCloseBatch(ctx, closes)
	if failedClose {
 failed = true
	}
	return failed, false
}

// driveStaggered cancels any cancel orders first (sequentially, same as
// driveParallel), then dispatches the remaining orders one at a time with
// delay between each submission, spreading out the market impact of closing
// many positions at once instead of dumping them all in the same instant.
func (e *Executor) driveStaggered(ctx context.Context, orders []domain.ExecutionOrder, delay time.Duration) (failed, cancelled bool) {
	cancels := make([]domain.ExecutionOrder, 0, len(orders))
	closes := make([]domain.ExecutionOrder, 0, len(orders))
	for _, o := range orders {
 if o.Type == domain.OrderCancel {
 cancels = append(cancels, o)
 } else {
 closes = append(closes, o)
 }
	}

	for _, o := range cancels {
 if o.Status.IsTerminal() {
 continue
 }
 if err := e.submitOne(ctx, o); err != nil {
 failed = true
 }
	}

	for i, o := range closes {
 if o.Status.IsTerminal() {
 continue
 }
 if i > 0 && delay > 0 {
 select {
 case <-e.clk.After(ctx, delay):
 case <-ctx.Done():
 return failed, cancelled
 }
 }
 if err := e.submitOne(ctx, o); err != nil {
 failed = true
 }
	}
	return failed, cancelled
}

// driveCloseBatch submits close orders in parallel, capped at
// cfg.CloseConcurrency.
func (e *Executor) driveCloseBatch(ctx context.Context, orders []domain.ExecutionOrder) (failed bool) {
	limit := e.cfg.CloseConcurrency
	if limit <= 0 {
 limit = 1
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, o := range orders {
 if o.Status.IsTerminal() {
 continue
 }
 wg.Add(1)
 sem <- struct{}{}
 go func(o domain.ExecutionOrder) {
 defer wg.Done()
 defer func() { <-sem }()
 if err := e.submitOne(ctx, o); err != nil {
 mu.Lock()
 failed = true
 mu.Unlock()
 }
 }(o)
	}
	wg.Wait()
	return failed
}

// submitOne submits (or cancels) a single order idempotently, retrying
// transient failures with exponential backoff, and persists the result.
// A failed order does not abort the plan: it returns its own error so the
// caller can mark the plan's aggregate result, but the caller keeps going.
func (e *Executor) submitOne(ctx context.Context, o domain.ExecutionOrder) error {
	if o.Status == domain.OrderSubmitted || o.Status == domain.OrderFilled || o.Status == domain.OrderPartiallyFilled {
 return nil // already submitted: re-driving a reloaded plan is a no-op
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
 if attempt > 0 {
 delay := e.cfg.RetryBaseDelay * time.Duration(1<<uint(attempt-1))
 select {
 case <-e.clk.After(ctx, delay):
 case <-ctx.Done():
 return ctx.Err()
 }
 }

 o.Attempts++
 var err error
 if o.Type == domain.OrderCancel {
 _, err = e.executor.Cancel(ctx, o.TxRef)
 } else {
 _, err = e.executor.Submit(ctx, collaborators.SubmitArgs{
 OrderID: o.ID, Symbol: o.Symbol, Side: string(o.Side),
 Amount: o.Amount, LimitPrice: o.LimitPrice, ReduceOnly: o.ReduceOnly,
 })
 }
 if err == nil {
 o.Status = domain.OrderSubmitted
 o.UpdatedAt = e.clk.Now()
 if perr := e.store.UpsertOrder(ctx, o); perr != nil {
 e.log.Error().Err(perr).Str("order", o.ID).Msg("order status persist failed")
 }
 e.bus.Publish(events.TopicOrderSubmitted, map[string]interface{}{"order_id": o.ID, "plan_id": o.PlanID})
 return nil
 }
 lastErr = err
 if !errors.Is(err, errs.Transient) {
 break
 }
	}

	o.Status = domain.OrderFailed
	o.UpdatedAt = e.clk.Now()
	if perr := e.store.UpsertOrder(ctx, o); perr != nil {
 e.log.Error().Err(perr).Str("order", o.ID).Msg("order status persist failed")
	}
	e.log.Error().Err(lastErr).Str("order", o.ID).Msg("order submission failed")
	return lastErr
}

func (e *Executor) advance(ctx context.Context, plan *domain.ExecutionPlan, to domain.PlanStatus, result string) error {
	if !domain.CanTransition(plan.Status, to) {
 return fmt.Errorf("execution: illegal plan transition %s -> %s", plan.Status, to)
	}
	if err := e.store.AdvancePlanStatus(ctx, plan.ID, plan.Version, to, result); err != nil {
 return fmt.Errorf("execution: advance plan %s: %w", plan.ID, err)
	}
	plan.Status = to
	plan.Version++
	plan.Result = result
	return nil
}

func (e *Executor) terminalize(ctx context.Context, plan domain.ExecutionPlan, to domain.PlanStatus, result string) error {
	if plan.Status.IsTerminal() {
 return nil
	}
	if err := e.advance(ctx, &plan, to, result); err != nil {
 if errors.Is(err, store.ErrPlanVersionConflict) {
 return nil // another driver already terminalized it
 }
 return err
	}
	switch to {
	case domain.PlanCompleted:
 e.bus.Publish(events.TopicPlanCompleted, map[string]interface{}{"plan_id": plan.ID, "result": result})
	case domain.PlanFailed:
 e.bus.Publish(events.TopicPlanFailed, map[string]interface{}{"plan_id": plan.ID, "result": result})
	case domain.PlanExpired:
 e.bus.Publish(events.TopicPlanExpired, map[string]interface{}{"plan_id": plan.ID})
	case domain.PlanCancelled:
 e.bus.Publish(events.TopicPlanCancelled, map[string]interface{}{"plan_id": plan.ID})
	}
	return nil
}
