// Package execution implements the Execution Planner and Executor: the
// Planner converts a RiskAction into an ExecutionPlan plus its ordered
// orders; the Executor drives a plan's orders through a DexExecutor,
// tracking each order's status and advancing the plan's state machine.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/collaborators"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/errs"
	"github.com/aristath/rpcp/internal/store"
)

// Planner turns a RiskAction into a persisted ExecutionPlan and its orders.
// It only consults the DexExecutor for read-only open-order discovery
// (strategy_pause/emergency_stop); order submission itself is the
// Executor's job.
type Planner struct {
	store *store.Store
	clk clock.Clock
	executor collaborators.DexExecutor
	cfg Config
}

// NewPlanner constructs a Planner. cfg.StaggerDelay governs the spacing
// between dispatches of an emergency_stop plan's close orders.
func NewPlanner(st *store.Store, clk clock.Clock, executor collaborators.DexExecutor, cfg Config) *Planner {
	return &Planner{store: st, clk: clk, executor: executor, cfg: cfg}
}

// BuildPlan materializes action into an ExecutionPlan plus its orders and
// persists both. It returns errs.InputInvalid if action's parameters don't
// match its kind, or if the referenced position can't be loaded.
func (p *Planner) BuildPlan(ctx context.Context, action domain.RiskAction) (domain.ExecutionPlan, error) {
	now := p.clk.Now()

	var (
 planType domain.PlanType
 strategy domain.PlanStrategy
 strategyID string
 positionID *string
 orders []domain.ExecutionOrder
 staggerDelay time.Duration
 err error
	)

	switch action.Kind {
	case domain.ActionPositionReduce:
 planType = domain.PlanTypeReduce
 strategy = domain.StrategySequential
 orders, strategyID, positionID, err = p.reduceOrders(ctx, action, decimalParam(action.Parameters, "reduction_fraction", decimal.NewFromFloat(0.30)))
	case domain.ActionPositionClose:
 planType = domain.PlanTypeClose
 strategy = domain.StrategySequential
 orders, strategyID, positionID, err = p.reduceOrders(ctx, action, decimal.NewFromInt(1))
	case domain.ActionStrategyPause:
 planType = domain.PlanTypeStrategyPause
 strategy = domain.StrategyParallel
 strategyID, _ = action.Parameters["strategy_id"].(string)
 orders, err = p.cancelOrdersForStrategy(ctx, strategyID)
	case domain.ActionEmergencyStop:
 planType = domain.PlanTypeEmergencyStop
 strategy = domain.StrategyStaggered
 staggerDelay = p.cfg.StaggerDelay
 orders, err = p.emergencyStopOrders(ctx)
	default:
 return domain.ExecutionPlan{}, fmt.Errorf("execution: %w: unknown action kind %q", errs.InputInvalid, action.Kind)
	}
	if err != nil {
 return domain.ExecutionPlan{}, err
	}
	if len(orders) == 0 {
 return domain.ExecutionPlan{}, fmt.Errorf("execution: %w: action %s produced no orders", errs.InputInvalid, action.ID)
	}

	planID := domain.NewID()
	orderIDs := make([]string, len(orders))
	for i := range orders {
 orders[i].ID = domain.OrderID(planID, i)
 orders[i].PlanID = planID
 orders[i].OrderIndex = i
 orders[i].Status = domain.OrderPending
 orders[i].CreatedAt = now
 orders[i].UpdatedAt = now
 orderIDs[i] = orders[i].ID
	}

	plan := domain.ExecutionPlan{
 ID: planID,
 RiskActionID: action.ID,
 Type: planType,
 Strategy: strategy,
 StrategyID: strategyID,
 PositionID: positionID,
 OrderIDs: orderIDs,
 Status: domain.PlanPending,
 CreatedAt: now,
 ExpiresAt: now.Add(domain.DefaultPlanTTL),
 StaggerDelay: staggerDelay,
 Version: 0,
	}

	if err := p.store.InsertPlan(ctx, plan); err != nil {
 return domain.ExecutionPlan{}, fmt.Errorf("execution: insert plan: %w", err)
	}
	for _, o := range orders {
 if err := p.store.UpsertOrder(ctx, o); err != nil {
 return domain.ExecutionPlan{}, fmt.Errorf("execution: insert order %s: %w", o.ID, err)
 }
	}
	return plan, nil
}

// reduceOrders builds the single reduce-only market order shared by
// position_reduce and position_close, differing only by fraction.
func (p *Planner) reduceOrders(ctx context.Context, action domain.RiskAction, fraction decimal.Decimal) ([]domain.ExecutionOrder, string, *string, error) {
	posID, _ := action.Parameters["position_id"].(string)
	if posID == "" {
 return nil, "", nil, fmt.Errorf("execution: %w: action %s missing position_id", errs.InputInvalid, action.ID)
	}
	pos, err := p.store.GetPosition(ctx, posID)
	if err != nil {
 return nil, "", nil, fmt.Errorf("execution: %w: load position %s: %v", errs.InputInvalid, posID, err)
	}
	if fraction.LessThanOrEqual(decimal.Zero) || fraction.GreaterThan(decimal.NewFromInt(1)) {
 return nil, "", nil, fmt.Errorf("execution: %w: reduction fraction %s out of (0,1] range", errs.InputInvalid, fraction)
	}

	amount := pos.Quantity.Abs().Mul(fraction)
	side := domain.SideShort // closing a long sells
	if pos.Side == domain.SideShort {
 side = domain.SideLong // closing a short buys
	}
	orderType := domain.OrderMarketSell
	if side == domain.SideLong {
 orderType = domain.OrderMarketBuy
	}

	order := domain.ExecutionOrder{
 Type: orderType,
 Symbol: pos.Symbol,
 Side: side,
 Amount: amount,
 TIF: domain.TIFIOC,
 ReduceOnly: true,
 StrategyID: pos.StrategyID,
 PositionID: &pos.ID,
	}
	return []domain.ExecutionOrder{order}, pos.StrategyID, &pos.ID, nil
}

// cancelOrdersForStrategy builds one cancel order per open order belonging
// to strategyID.
func (p *Planner) cancelOrdersForStrategy(ctx context.Context, strategyID string) ([]domain.ExecutionOrder, error) {
	if strategyID == "" {
 return nil, fmt.Errorf("execution: %w: strategy_pause action missing strategy_id", errs.InputInvalid)
	}
	open, err := p.executor.OpenOrders(ctx, strategyID)
	if err != nil {
 return nil, fmt.Errorf("execution: list open orders for %s: %w", strategyID, err)
	}
	orders := make([]domain.ExecutionOrder, 0, len(open))
	for _, o := range open {
 orders = append(orders, domain.ExecutionOrder{
 Type: domain.OrderCancel,
 Symbol: o.Symbol,
 StrategyID: strategyID,
 TxRef: o.OrderID, // the upstream order id this cancel targets
 })
	}
	return orders, nil
}

// emergencyStopOrders builds the emergency_stop plan: cancel orders
// for every strategy holding an active position, then one reduce-to-zero
// close order per active position above dust. Cancels are ordered first so
// the executor (which submits sequentially within a stage) clears resting
// orders before it starts closing.
func (p *Planner) emergencyStopOrders(ctx context.Context) ([]domain.ExecutionOrder, error) {
	positions, err := p.store.ActivePositions(ctx)
	if err != nil {
 return nil, fmt.Errorf("execution: list active positions: %w", err)
	}

	strategies := make(map[string]bool)
	for _, pos := range positions {
 strategies[pos.StrategyID] = true
	}

	var orders []domain.ExecutionOrder
	for strategyID := range strategies {
 cancels, err := p.cancelOrdersForStrategy(ctx, strategyID)
 if err != nil {
 return nil, err
 }
 orders = append(orders, cancels...)
	}

	for _, pos := range positions {
 if pos.IsDust() {
 continue
 }
 side := domain.SideShort
 orderType := domain.OrderMarketSell
 if pos.Side == domain.SideShort {
 side = domain.SideLong
 orderType = domain.OrderMarketBuy
 }
 posID := pos.ID
 orders = append(orders, domain.ExecutionOrder{
 Type: orderType,
 Symbol: pos.Symbol,
 Side: side,
 Amount: pos.Quantity.Abs(),
 TIF: domain.TIFIOC,
 ReduceOnly: true,
 StrategyID: pos.StrategyID,
 PositionID: &posID,
 })
	}
	return orders, nil
}

func decimalParam(params map[string]any, key string, fallback decimal.Decimal) decimal.Decimal {
	v, ok := params[key]
	if !ok {
 return fallback
	}
	switch t := v.(type) {
	case string:
 d, err := decimal.NewFromString(t)
 if err != nil {
 return fallback
 }
 return d
	case float64:
 return decimal.NewFromFloat(t)
	default:
 return fallback
	}
}
