package domain

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// PlanStatus is an ExecutionPlan's lifecycle state. The only legal sequence
// is a prefix of pending, executing, terminal where terminal is one of
// completed, failed, cancelled, expired — never backward.
type PlanStatus string

const (
	PlanPending PlanStatus = "pending"
	PlanExecuting PlanStatus = "executing"
	PlanCompleted PlanStatus = "completed"
	PlanFailed PlanStatus = "failed"
	PlanCancelled PlanStatus = "cancelled"
	PlanExpired PlanStatus = "expired"
)

// IsTerminal reports whether s is one of the plan's terminal statuses.
func (s PlanStatus) IsTerminal() bool {
	switch s {
	case PlanCompleted, PlanFailed, PlanCancelled, PlanExpired:
 return true
	default:
 return false
	}
}

// planTransitions enumerates the legal forward edges of the plan state machine.
var planTransitions = map[PlanStatus]map[PlanStatus]bool{
	PlanPending: {
 PlanExecuting: true,
 PlanCancelled: true,
 PlanExpired: true,
	},
	PlanExecuting: {
 PlanCompleted: true,
 PlanFailed: true,
 PlanCancelled: true,
 PlanExpired: true,
	},
}

// CanTransition reports whether from -> to is a legal forward transition.
func CanTransition(from, to PlanStatus) bool {
	if from.IsTerminal() {
 return false
	}
	return planTransitions[from][to]
}

// PlanStrategy governs how a plan's orders are submitted.
type PlanStrategy string

const (
	StrategySequential PlanStrategy = "sequential"
	StrategyParallel PlanStrategy = "parallel"
	StrategyStaggered PlanStrategy = "staggered"
)

// PlanType mirrors the action kind a plan was materialized from.
type PlanType string

const (
	PlanTypeReduce PlanType = "position_reduce"
	PlanTypeClose PlanType = "position_close"
	PlanTypeStrategyPause PlanType = "strategy_pause"
	PlanTypeEmergencyStop PlanType = "emergency_stop"
)

// DefaultPlanTTL is the default time-to-live for a non-terminal plan.
const DefaultPlanTTL = 30 * time.Minute

// ExecutionPlan materializes a RiskAction into an ordered set of orders.
type ExecutionPlan struct {
	ID string
	RiskActionID string
	Type PlanType
	Strategy PlanStrategy
	StrategyID string
	PositionID *string
	OrderIDs []string // ordered; order_index is the slice index
	Status PlanStatus
	CreatedAt time.Time
	ExpiresAt time.Time
	Result string
	// StaggerDelay is the spacing between dispatches when Strategy == staggered.
	StaggerDelay time.Duration
	// Version guards against double-driving: transitions are store-transacted
	// on (id, version) so two drivers racing to advance the same plan can't
	// both win.
	Version int
}

// IsExpired reports whether the plan's TTL has elapsed as of now.
func (p ExecutionPlan) IsExpired(now time.Time) bool {
	return !p.Status.IsTerminal() && now.After(p.ExpiresAt)
}

// OrderType enumerates the atomic order kinds the executor submits.
type OrderType string

const (
	OrderMarketSell OrderType = "market_sell"
	OrderMarketBuy OrderType = "market_buy"
	OrderCancel OrderType = "cancel"
	OrderUpdate OrderType = "update"
)

// TimeInForce is the order's time-in-force.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
	TIFFOK TimeInForce = "FOK"
)

// OrderStatus is an ExecutionOrder's lifecycle state.
type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
	OrderSubmitted OrderStatus = "submitted"
	OrderFilled OrderStatus = "filled"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderFailed OrderStatus = "failed"
)

// IsTerminal reports whether the order has reached a terminal status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderFailed:
 return true
	default:
 return false
	}
}

// ExecutionOrder is an atomic order submitted through the DexExecutor.
//
// Id is deterministic from (PlanID, OrderIndex) so re-submission of an
// already-submitted order id is always a safe no-op.
type ExecutionOrder struct {
	ID string
	PlanID string
	OrderIndex int
	Type OrderType
	Symbol string
	Side Side
	Amount decimal.Decimal
	LimitPrice *decimal.Decimal
	StopPrice *decimal.Decimal
	TIF TimeInForce
	ReduceOnly bool
	StrategyID string
	PositionID *string
	Status OrderStatus
	TxRef string
	FilledAmount decimal.Decimal
	AvgFillPrice decimal.Decimal
	Fees decimal.Decimal
	Attempts int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderID deterministically derives an order id from its plan and index, so
// the executor can recognize re-submission of the same logical order.
func OrderID(planID string, index int) string {
	return planID + ":" + strconv.Itoa(index)
}
