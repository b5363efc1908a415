package store

import (
	"context"
	"fmt"

	"github.com/aristath/rpcp/internal/domain"
)

// UpsertPositionRisk rewrites a position's derived risk row.
func (s *Store) UpsertPositionRisk(ctx context.Context, r domain.PositionRisk) error {
	_, err := s.q().ExecContext(ctx, `
 INSERT INTO position_risk (position_id, size, var_1d, exposure_pct, max_drawdown_pct, risk_score,
 concentration, correlation, liquidity, beta, sharpe, mae_pct, mfe_pct, last_assessed_at)
 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
 ON CONFLICT(position_id) DO UPDATE SET
 size=excluded.size, var_1d=excluded.var_1d, exposure_pct=excluded.exposure_pct,
 max_drawdown_pct=excluded.max_drawdown_pct, risk_score=excluded.risk_score,
 concentration=excluded.concentration, correlation=excluded.correlation,
 liquidity=excluded.liquidity, beta=excluded.beta, sharpe=excluded.sharpe,
 mae_pct=excluded.mae_pct, mfe_pct=excluded.mfe_pct, last_assessed_at=excluded.last_assessed_at
	`, r.PositionID, decStr(r.Size), decStr(r.VaR1Day), decStr(r.ExposurePct), decStr(r.MaxDrawdownPct),
 decStr(r.RiskScore), decStr(r.Concentration), decStr(r.Correlation), decStr(r.Liquidity),
 decStr(r.Beta), decStr(r.Sharpe), decStr(r.MAEPct), decStr(r.MFEPct), timeStr(r.LastAssessedAt))
	if err != nil {
 return fmt.Errorf("store: upsert position risk %s: %w", r.PositionID, err)
	}
	return nil
}

// PositionRiskRows returns every currently stored position-risk row (operator
// "list positions and risks" command).
func (s *Store) PositionRiskRows(ctx context.Context) ([]domain.PositionRisk, error) {
	rows, err := s.q().QueryContext(ctx, `
 SELECT position_id, size, var_1d, exposure_pct, max_drawdown_pct, risk_score, concentration,
 correlation, liquidity, beta, sharpe, mae_pct, mfe_pct, last_assessed_at
 FROM position_risk
	`)
	if err != nil {
 return nil, fmt.Errorf("store: list position risk: %w", err)
	}
	defer rows.Close()
	var out []domain.PositionRisk
	for rows.Next() {
 var r domain.PositionRisk
 var size, v, exp, dd, score, conc, corr, liq, beta, sharpe, mae, mfe, ts string
 if err := rows.Scan(&r.PositionID, &size, &v, &exp, &dd, &score, &conc, &corr, &liq, &beta, &sharpe, &mae, &mfe, &ts); err != nil {
 return nil, err
 }
 r.Size, r.VaR1Day, r.ExposurePct = parseDec(size), parseDec(v), parseDec(exp)
 r.MaxDrawdownPct, r.RiskScore = parseDec(dd), parseDec(score)
 r.Concentration, r.Correlation, r.Liquidity = parseDec(conc), parseDec(corr), parseDec(liq)
 r.Beta, r.Sharpe = parseDec(beta), parseDec(sharpe)
 r.MAEPct, r.MFEPct = parseDec(mae), parseDec(mfe)
 r.LastAssessedAt = parseTime(ts)
 out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertPortfolioRisk rewrites the single portfolio-wide derived row.
func (s *Store) UpsertPortfolioRisk(ctx context.Context, r domain.PortfolioRisk) error {
	_, err := s.q().ExecContext(ctx, `
 INSERT INTO portfolio_risk (portfolio_id, portfolio_value, total_var_1d, weighted_beta,
 concentration, max_correlation, max_drawdown_pct, sharpe, daily_pnl, last_assessed_at)
 VALUES (?,?,?,?,?,?,?,?,?,?)
 ON CONFLICT(portfolio_id) DO UPDATE SET
 portfolio_value=excluded.portfolio_value, total_var_1d=excluded.total_var_1d,
 weighted_beta=excluded.weighted_beta, concentration=excluded.concentration,
 max_correlation=excluded.max_correlation, max_drawdown_pct=excluded.max_drawdown_pct,
 sharpe=excluded.sharpe, daily_pnl=excluded.daily_pnl, last_assessed_at=excluded.last_assessed_at
	`, r.PortfolioID, decStr(r.PortfolioValue), decStr(r.TotalVaR1Day), decStr(r.WeightedBeta),
 decStr(r.Concentration), decStr(r.MaxCorrelation), decStr(r.MaxDrawdownPct), decStr(r.Sharpe),
 decStr(r.DailyPnL), timeStr(r.LastAssessedAt))
	if err != nil {
 return fmt.Errorf("store: upsert portfolio risk %s: %w", r.PortfolioID, err)
	}
	return nil
}

// GetPortfolioRisk loads the portfolio-wide derived row.
func (s *Store) GetPortfolioRisk(ctx context.Context, portfolioID string) (domain.PortfolioRisk, error) {
	row := s.q().QueryRowContext(ctx, `
 SELECT portfolio_id, portfolio_value, total_var_1d, weighted_beta, concentration, max_correlation,
 max_drawdown_pct, sharpe, daily_pnl, last_assessed_at
 FROM portfolio_risk WHERE portfolio_id = ?
	`, portfolioID)
	var r domain.PortfolioRisk
	var val, v, beta, conc, corr, dd, sharpe, pnl, ts string
	if err := row.Scan(&r.PortfolioID, &val, &v, &beta, &conc, &corr, &dd, &sharpe, &pnl, &ts); err != nil {
 return domain.PortfolioRisk{}, fmt.Errorf("store: get portfolio risk: %w", err)
	}
	r.PortfolioValue, r.TotalVaR1Day, r.WeightedBeta = parseDec(val), parseDec(v), parseDec(beta)
	r.Concentration, r.MaxCorrelation, r.MaxDrawdownPct = parseDec(conc), parseDec(corr), parseDec(dd)
	r.Sharpe, r.DailyPnL = parseDec(sharpe), parseDec(pnl)
	r.LastAssessedAt = parseTime(ts)
	return r, nil
}
