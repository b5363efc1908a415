package store

import (
	"context"
	"fmt"

	"github.com/aristath/rpcp/internal/domain"
)

// UpsertRiskLimits writes a scope-keyed limits row (conflict-merge on scope).
func (s *Store) UpsertRiskLimits(ctx context.Context, l domain.RiskLimits) error {
	_, err := s.q().ExecContext(ctx, `
 INSERT INTO risk_limits (scope, max_position_size, max_portfolio_exposure_pct, max_daily_loss,
 max_drawdown_pct, max_leverage, default_stop_loss_pct, default_take_profit_pct,
 concentration_limit_pct, correlation_limit, created_at, updated_at)
 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
 ON CONFLICT(scope) DO UPDATE SET
 max_position_size=excluded.max_position_size,
 max_portfolio_exposure_pct=excluded.max_portfolio_exposure_pct,
 max_daily_loss=excluded.max_daily_loss, max_drawdown_pct=excluded.max_drawdown_pct,
 max_leverage=excluded.max_leverage, default_stop_loss_pct=excluded.default_stop_loss_pct,
 default_take_profit_pct=excluded.default_take_profit_pct,
 concentration_limit_pct=excluded.concentration_limit_pct,
 correlation_limit=excluded.correlation_limit, updated_at=excluded.updated_at
	`, string(l.Scope), decStr(l.MaxPositionSize), decStr(l.MaxPortfolioExposure), decStr(l.MaxDailyLoss),
 decStr(l.MaxDrawdown), decStr(l.MaxLeverage), decStr(l.DefaultStopLossPct),
 decStr(l.DefaultTakeProfitPct), decStr(l.ConcentrationLimitPct), decStr(l.CorrelationLimit),
 timeStr(l.CreatedAt), timeStr(l.UpdatedAt))
	if err != nil {
 return fmt.Errorf("store: upsert risk limits %s: %w", l.Scope, err)
	}
	return nil
}

// LimitsForScopes returns the limits rows for exactly the given scopes (used
// by the assessor to build the most-specific-wins candidate set for one entity).
func (s *Store) LimitsForScopes(ctx context.Context, scopes []domain.LimitScope) ([]domain.RiskLimits, error) {
	var out []domain.RiskLimits
	for _, scope := range scopes {
 row := s.q().QueryRowContext(ctx, `
 SELECT scope, max_position_size, max_portfolio_exposure_pct, max_daily_loss, max_drawdown_pct,
 max_leverage, default_stop_loss_pct, default_take_profit_pct, concentration_limit_pct,
 correlation_limit, created_at, updated_at
 FROM risk_limits WHERE scope = ?
 `, string(scope))
 var l domain.RiskLimits
 var sc, maxPos, maxExp, maxLoss, maxDD, maxLev, defSL, defTP, conc, corr, created, updated string
 if err := row.Scan(&sc, &maxPos, &maxExp, &maxLoss, &maxDD, &maxLev, &defSL, &defTP, &conc, &corr, &created, &updated); err != nil {
 continue // scope not configured; ResolveLimits falls back to defaults
 }
 l.Scope = domain.LimitScope(sc)
 l.MaxPositionSize = parseDec(maxPos)
 l.MaxPortfolioExposure = parseDec(maxExp)
 l.MaxDailyLoss = parseDec(maxLoss)
 l.MaxDrawdown = parseDec(maxDD)
 l.MaxLeverage = parseDec(maxLev)
 l.DefaultStopLossPct = parseDec(defSL)
 l.DefaultTakeProfitPct = parseDec(defTP)
 l.ConcentrationLimitPct = parseDec(conc)
 l.CorrelationLimit = parseDec(corr)
 l.CreatedAt = parseTime(created)
 l.UpdatedAt = parseTime(updated)
 out = append(out, l)
	}
	return out, nil
}

// AllRiskLimits returns every configured limits row (operator "show limits" command).
func (s *Store) AllRiskLimits(ctx context.Context) ([]domain.RiskLimits, error) {
	rows, err := s.q().QueryContext(ctx, `SELECT scope FROM risk_limits`)
	if err != nil {
 return nil, fmt.Errorf("store: list risk limits: %w", err)
	}
	var scopes []domain.LimitScope
	for rows.Next() {
 var sc string
 if err := rows.Scan(&sc); err != nil {
 rows.Close()
 return nil, err
 }
 scopes = append(scopes, domain.LimitScope(sc))
	}
	rows.Close()
	return s.LimitsForScopes(ctx, scopes)
}
