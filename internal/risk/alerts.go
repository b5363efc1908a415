package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/events"
)

// cooldownKey builds the (kind, entity) dedup key for an alert.
func cooldownKey(kind domain.AlertKind, entityType domain.EntityType, entityID string) string {
	return fmt.Sprintf("%s:%s:%s", kind, entityType, entityID)
}

// checkPositionAlerts compares one position's freshly computed risk row
// against its resolved limits and opens/refreshes/resolves alerts per metric.
func (a *Assessor) checkPositionAlerts(ctx context.Context, now time.Time, p domain.Position, pr domain.PositionRisk, limits domain.RiskLimits) {
	a.evaluate(ctx, now, domain.AlertPositionSize, domain.SeverityHigh, domain.EntityPosition, p.ID,
 pr.Size, limits.MaxPositionSize, domain.ActionPositionReduce,
 fmt.Sprintf("position %s size %s exceeds limit %s", p.ID, pr.Size, limits.MaxPositionSize))

	a.evaluate(ctx, now, domain.AlertConcentration, domain.SeverityHigh, domain.EntityPosition, p.ID,
 pr.Concentration, limits.ConcentrationLimitPct, domain.ActionPositionReduce,
 fmt.Sprintf("position %s concentration %s%% exceeds limit %s%%", p.ID, pr.Concentration, limits.ConcentrationLimitPct))

	if p.StopLoss != nil {
 pnlPct := p.UnrealizedPnLPct().Abs()
 stopPct := p.StopLoss.Abs()
 if p.UnrealizedPnL().IsNegative() {
 a.evaluate(ctx, now, domain.AlertUnrealizedLoss, domain.SeverityHigh, domain.EntityPosition, p.ID,
 pnlPct, stopPct, domain.ActionPositionClose,
 fmt.Sprintf("position %s unrealized loss %s%% hit stop-loss %s%%", p.ID, pnlPct, stopPct))
 }
	}
}

// checkPortfolioAlerts compares the aggregate portfolio row against the most
// specific stored limits row for the portfolio (portfolio scope, else global),
// falling back to the package defaults when none is stored.
func (a *Assessor) checkPortfolioAlerts(ctx context.Context, now time.Time, pr domain.PortfolioRisk) {
	limits := domain.DefaultGlobalLimits()
	scopes := []domain.LimitScope{domain.ScopeGlobal, domain.ScopePortfolio(pr.PortfolioID)}
	if rows, err := a.store.LimitsForScopes(ctx, scopes); err != nil {
 a.log.Warn().Err(err).Msg("portfolio limit resolution failed, using defaults")
	} else {
 limits = domain.ResolveLimits(rows)
	}

	a.evaluate(ctx, now, domain.AlertPortfolioDrawdown, domain.SeverityCritical, domain.EntityPortfolio, pr.PortfolioID,
 pr.MaxDrawdownPct, limits.MaxDrawdown, domain.ActionEmergencyStop,
 fmt.Sprintf("portfolio drawdown %s%% exceeds limit %s%%", pr.MaxDrawdownPct, limits.MaxDrawdown))

	a.evaluate(ctx, now, domain.AlertCorrelation, domain.SeverityMedium, domain.EntityPortfolio, pr.PortfolioID,
 pr.MaxCorrelation, limits.CorrelationLimit, domain.ActionNotifyOnly,
 fmt.Sprintf("portfolio max pairwise correlation %s exceeds limit %s", pr.MaxCorrelation, limits.CorrelationLimit))

	if pr.DailyPnL.IsNegative() {
 a.evaluate(ctx, now, domain.AlertStrategyDailyLoss, domain.SeverityHigh, domain.EntityPortfolio, pr.PortfolioID,
 pr.DailyPnL.Abs(), limits.MaxDailyLoss, domain.ActionStrategyPause,
 fmt.Sprintf("portfolio daily loss %s exceeds limit %s", pr.DailyPnL.Abs(), limits.MaxDailyLoss))
	}
}

// evaluate is the shared breach/dedup/cooldown/hysteresis path for one
// (kind, entity) metric: open or refresh an alert while observed breaches
// limit, auto-resolve once observed has sat inside limit by the hysteresis
// margin for the configured number of consecutive ticks.
func (a *Assessor) evaluate(ctx context.Context, now time.Time, kind domain.AlertKind, severity domain.Severity,
	entityType domain.EntityType, entityID string, observed, limit decimal.Decimal, action domain.ActionKind, message string) {

	key := cooldownKey(kind, entityType, entityID)
	existing, err := a.store.FindOpenAlertByCooldownKey(ctx, key)
	if err != nil {
 a.log.Warn().Err(err).Str("cooldown_key", key).Msg("alert lookup failed")
 return
	}

	breached := limit.GreaterThan(decimal.Zero) && observed.GreaterThan(limit)
	insideWithMargin := false
	if limit.GreaterThan(decimal.Zero) {
 margin := limit.Mul(a.cfg.HysteresisMarginPct).Div(decimal.NewFromInt(100))
 insideWithMargin = observed.LessThanOrEqual(limit.Sub(margin))
	}

	if !breached {
 if existing != nil && !existing.IsResolved() {
 a.maybeResolve(ctx, now, existing, insideWithMargin)
 }
 return
	}

	if existing != nil && !existing.IsResolved() {
 a.upsertAlertDedup(ctx, now, domain.RiskAlert{
 ID: existing.ID,
 Kind: kind,
 Severity: severity,
 EntityType: entityType,
 EntityID: entityID,
 CurrentValue: observed,
 LimitValue: limit,
 Message: message,
 RecommendedAction: action,
 CooldownKey: key,
 RefreshCount: existing.RefreshCount + 1,
 CreatedAt: existing.CreatedAt,
 })
 return
	}

	a.upsertAlertDedup(ctx, now, domain.RiskAlert{
 Kind: kind,
 Severity: severity,
 EntityType: entityType,
 EntityID: entityID,
 CurrentValue: observed,
 LimitValue: limit,
 Message: message,
 RecommendedAction: action,
 CooldownKey: key,
 CreatedAt: now,
	})
}

// maybeResolve advances an alert's inside-limit tick counter and resolves it
// once it reaches the configured hysteresis threshold.
func (a *Assessor) maybeResolve(ctx context.Context, now time.Time, alert *domain.RiskAlert, insideWithMargin bool) {
	if !insideWithMargin {
 alert.InsideLimitTicks = 0
 if err := a.store.UpsertAlert(ctx, *alert); err != nil {
 a.log.Warn().Err(err).Str("alert", alert.ID).Msg("alert tick reset failed")
 }
 return
	}
	alert.InsideLimitTicks++
	if alert.InsideLimitTicks >= a.cfg.HysteresisTicks {
 alert.Resolve(now, "risk-assessor")
 a.bus.Publish(events.TopicAlertResolved, map[string]interface{}{"alert_id": alert.ID, "kind": string(alert.Kind)})
	}
	if err := a.store.UpsertAlert(ctx, *alert); err != nil {
 a.log.Warn().Err(err).Str("alert", alert.ID).Msg("alert resolution update failed")
	}
}

// upsertAlertDedup assigns an id to new alerts and writes through the store,
// publishing risk.alert.created exactly once per new alert (refreshes do not
// re-publish creation).
func (a *Assessor) upsertAlertDedup(ctx context.Context, now time.Time, alert domain.RiskAlert) {
	isNew := alert.ID == ""
	if isNew {
 alert.ID = domain.NewID()
 alert.CreatedAt = now
	}
	alert.UpdatedAt = now
	if err := a.store.UpsertAlert(ctx, alert); err != nil {
 a.log.Warn().Err(err).Str("cooldown_key", alert.CooldownKey).Msg("alert upsert failed")
 return
	}
	if isNew {
 a.bus.Publish(events.TopicAlertCreated, map[string]interface{}{
 "alert_id": alert.ID, "kind": string(alert.Kind), "entity_id": alert.EntityID, "severity": string(alert.Severity),
 })
	}
}
