package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LimitScope identifies the scope a RiskLimits row applies to: "global",
// "portfolio:<id>" or "strategy:<id>". Lookup is most-specific-wins.
type LimitScope string

const ScopeGlobal LimitScope = "global"

// ScopePortfolio returns the scope key for a portfolio id.
func ScopePortfolio(id string) LimitScope { return LimitScope("portfolio:" + id) }

// ScopeStrategy returns the scope key for a strategy id.
func ScopeStrategy(id string) LimitScope { return LimitScope("strategy:" + id) }

// Specificity ranks a scope for most-specific-wins lookup: strategy > portfolio > global.
func (s LimitScope) Specificity() int {
	switch {
	case strings.HasPrefix(string(s), "strategy:"):
 return 2
	case strings.HasPrefix(string(s), "portfolio:"):
 return 1
	default:
 return 0
	}
}

// RiskLimits is a scope-keyed configuration row.
type RiskLimits struct {
	Scope LimitScope
	MaxPositionSize decimal.Decimal // quote currency
	MaxPortfolioExposure decimal.Decimal // percent
	MaxDailyLoss decimal.Decimal // quote currency
	MaxDrawdown decimal.Decimal // percent
	MaxLeverage decimal.Decimal
	DefaultStopLossPct decimal.Decimal
	DefaultTakeProfitPct decimal.Decimal
	ConcentrationLimitPct decimal.Decimal
	CorrelationLimit decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultGlobalLimits returns conservative defaults for the global scope.
func DefaultGlobalLimits() RiskLimits {
	return RiskLimits{
 Scope: ScopeGlobal,
 MaxPositionSize: decimal.NewFromInt(50000),
 MaxPortfolioExposure: decimal.NewFromInt(80),
 MaxDailyLoss: decimal.NewFromInt(5000),
 MaxDrawdown: decimal.NewFromInt(20),
 MaxLeverage: decimal.NewFromInt(3),
 DefaultStopLossPct: decimal.NewFromInt(5),
 DefaultTakeProfitPct: decimal.NewFromInt(10),
 ConcentrationLimitPct: decimal.NewFromInt(25),
 CorrelationLimit: decimal.NewFromFloat(0.7),
	}
}

// ResolveLimits picks the most-specific applicable row out of candidates,
// falling back to the global row (or the package default) when absent.
func ResolveLimits(candidates []RiskLimits) RiskLimits {
	best := DefaultGlobalLimits()
	bestSpecificity := -1
	for _, c := range candidates {
 if sp := c.Scope.Specificity(); sp > bestSpecificity {
 best = c
 bestSpecificity = sp
 }
	}
	return best
}
