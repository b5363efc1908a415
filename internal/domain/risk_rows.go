package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionRisk is the derived row recomputed each assessment tick for one position.
type PositionRisk struct {
	PositionID string
	Size decimal.Decimal // quote notional
	VaR1Day decimal.Decimal
	ExposurePct decimal.Decimal // % of portfolio value
	MaxDrawdownPct decimal.Decimal
	RiskScore decimal.Decimal // 0-100
	Concentration decimal.Decimal // % of portfolio value held by this position, 0-100
	Correlation decimal.Decimal // always zero: pairwise correlation is computed only portfolio-wide (PortfolioRisk.MaxCorrelation)
	Liquidity decimal.Decimal // 0-100, higher is more liquid
	Beta decimal.Decimal
	Sharpe decimal.Decimal
	MAEPct decimal.Decimal
	MFEPct decimal.Decimal
	LastAssessedAt time.Time
}

// PortfolioRisk is the derived aggregate row recomputed each assessment tick.
type PortfolioRisk struct {
	PortfolioID string
	PortfolioValue decimal.Decimal
	TotalVaR1Day decimal.Decimal
	WeightedBeta decimal.Decimal
	Concentration decimal.Decimal // herfindahl, 0-10000
	MaxCorrelation decimal.Decimal // max pairwise |rho|
	MaxDrawdownPct decimal.Decimal
	Sharpe decimal.Decimal
	DailyPnL decimal.Decimal
	LastAssessedAt time.Time
}
