package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertKind enumerates the risk alert kinds.
type AlertKind string

const (
	AlertPositionSize AlertKind = "position_size"
	AlertConcentration AlertKind = "concentration"
	AlertUnrealizedLoss AlertKind = "unrealized_loss"
	AlertStrategyDailyLoss AlertKind = "strategy_daily_loss"
	AlertPortfolioDrawdown AlertKind = "portfolio_drawdown"
	AlertCorrelation AlertKind = "correlation"
	AlertLiquidity AlertKind = "liquidity"
	AlertSystem AlertKind = "system"
)

// Severity is a graded alert level.
type Severity string

const (
	SeverityLow Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh Severity = "high"
	SeverityCritical Severity = "critical"
)

// EntityType identifies what a RiskAlert (or FundsAlert) is about.
type EntityType string

const (
	EntityPosition EntityType = "position"
	EntityPortfolio EntityType = "portfolio"
	EntityStrategy EntityType = "strategy"
	EntitySystem EntityType = "system"
	EntityWallet EntityType = "wallet"
	EntityAsset EntityType = "asset"
)

// ActionKind enumerates the mitigation intents the Action Planner can emit.
type ActionKind string

const (
	ActionPositionReduce ActionKind = "position_reduce"
	ActionPositionClose ActionKind = "position_close"
	ActionStrategyPause ActionKind = "strategy_pause"
	ActionEmergencyStop ActionKind = "emergency_stop"
	ActionNotifyOnly ActionKind = "notify_only"
)

// RiskAlert is a triggered threshold event. Alerts are never deleted;
// resolution is a monotonic update (ResolvedAt, once set, never unset).
type RiskAlert struct {
	ID string
	Kind AlertKind
	Severity Severity
	EntityType EntityType
	EntityID string
	CurrentValue decimal.Decimal
	LimitValue decimal.Decimal
	Message string
	RecommendedAction ActionKind
	// CooldownKey identifies the dedup group this alert belongs to (the risk
	// assessor builds it from kind, entity type and entity id; health alerts
	// use "health:<resource>"). While an alert with this key is unresolved,
	// re-triggers refresh that row via Store.UpsertAlert instead of inserting
	// a new one. The key carries no limit bucket, and the refresh is not
	// bounded by a time window (risk.Config.CooldownWindow is not read): once
	// the alert resolves, the next breach opens a new alert.
	CooldownKey string
	RefreshCount int
	CreatedAt time.Time
	UpdatedAt time.Time
	ResolvedAt *time.Time
	ResolvedBy string
	// InsideLimitTicks counts consecutive assessment ticks the observed value
	// has sat back inside the limit by the hysteresis margin; resolution
	// fires once it reaches the configured threshold.
	InsideLimitTicks int
}

// IsResolved reports whether the alert has been resolved.
func (a RiskAlert) IsResolved() bool { return a.ResolvedAt != nil }

// Resolve marks the alert resolved. Resolving an already-resolved alert is a
// no-op: once ResolvedAt is set it is never overwritten.
func (a *RiskAlert) Resolve(at time.Time, by string) {
	if a.IsResolved() {
 return
	}
	t := at
	a.ResolvedAt = &t
	a.ResolvedBy = by
}

// ActionStatus is a RiskAction's lifecycle state.
type ActionStatus string

const (
	ActionPending ActionStatus = "pending"
	ActionExecuting ActionStatus = "executing"
	ActionCompleted ActionStatus = "completed"
	ActionFailed ActionStatus = "failed"
	ActionCancelled ActionStatus = "cancelled"
)

// RiskAction is an intent to mitigate a breach, generated from exactly one
// triggering alert. The pair (triggering alert id, action kind) is the
// idempotency key consumed downstream by the Execution Planner.
type RiskAction struct {
	ID string
	Kind ActionKind
	TriggeringAlert string
	Parameters map[string]any // e.g. {"position_id"..., "reduction_fraction"...}
	Status ActionStatus
	CreatedAt time.Time
	ExecutedAt *time.Time
	Result string
}
