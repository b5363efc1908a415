// Package sizer turns (symbol, entry, stop, confidence, method) into a
// quote-currency position size, honoring per-trade and per-portfolio caps.
package sizer

import (
	"context"
	"fmt"
	"math"

	"github.com/aristath/rpcp/internal/metrics"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/mat"
)

// Method is a position sizing method.
type Method string

const (
	MethodFixed Method = "fixed"
	MethodPercentage Method = "percentage"
	MethodVolatility Method = "volatility"
	MethodKelly Method = "kelly"
	MethodRiskParity Method = "risk_parity"
)

// MaxPortfolioSharePct is the hard "never more than 20% of portfolio" rule
// applied after every other cap.
const MaxPortfolioSharePct = 20

// Config is the position-sizing policy.
type Config struct {
	Method Method
	BaseSize decimal.Decimal
	MinSize decimal.Decimal
	MaxSize decimal.Decimal
	PortfolioPercentage decimal.Decimal // pct, for "percentage" method
	VolatilityLookback int
	KellyLookback int
	RiskFreeRate decimal.Decimal
	MaxLeverage decimal.Decimal
	SizeMultiplier decimal.Decimal
	PerTradeRiskPct decimal.Decimal // pct of portfolio value
	TargetRisk decimal.Decimal // fraction, for "volatility" method
}

// HistoryProvider supplies the historical data sizing methods need. It is
// intentionally narrow: it is the only collaborator the sizer talks to,
// grounded on MarketDataProvider.getCandles.
type HistoryProvider interface {
	// Closes returns up to lookback daily close prices for symbol, oldest
	// first. A short or empty result signals "insufficient history".
	Closes(ctx context.Context, symbol string, lookback int) ([]float64, error)
	// TradeStats returns the realized win-rate and average win/loss (in
	// quote currency) for symbol over kellyLookback days.
	TradeStats(ctx context.Context, symbol string, kellyLookback int) (winRate, avgWin, avgLoss float64, err error)
}

// RiskParityProvider supplies the covariance matrix used by the risk_parity
// sizing method.
type RiskParityProvider interface {
	// Covariance returns the lookback-window covariance matrix for symbols,
	// in the same order as symbols.
	Covariance(ctx context.Context, symbols []string, lookback int) ([][]float64, error)
}

// Request is one sizing query.
type Request struct {
	Symbol string
	EntryPrice decimal.Decimal
	StopLoss *decimal.Decimal
	Confidence *decimal.Decimal // 0-100
	Method Method // overrides Config.Method when non-empty
	PortfolioValue decimal.Decimal
	// RiskParityUniverse is only consulted for MethodRiskParity: the full
	// basket of symbols sharing the risk budget. This symbol's resulting
	// target weight is multiplied into PortfolioValue.
	RiskParityUniverse []string
}

// Sizer implements.
type Sizer struct {
	cfg Config
	history HistoryProvider
	parity RiskParityProvider
}

// New constructs a Sizer.
func New(cfg Config, history HistoryProvider, parity RiskParityProvider) *Sizer {
	return &Sizer{cfg: cfg, history: history, parity: parity}
}

// Size computes the quote-currency size for req: risk amount, method-based
// raw size, then per-trade and per-portfolio caps. Result is never negative.
func (s *Sizer) Size(ctx context.Context, req Request) (decimal.Decimal, error) {
	method := req.Method
	if method == "" {
 method = s.cfg.Method
	}

	base, err := s.baseSize(ctx, method, req)
	if err != nil {
 return decimal.Zero, err
	}

	// Step 2: per-trade risk cap. An unset/zero PerTradeRiskPct means "no
	// cap configured", not "clamp every sized trade to zero".
	if req.StopLoss != nil && !req.EntryPrice.IsZero() && s.cfg.PerTradeRiskPct.IsPositive() {
 distPct := req.EntryPrice.Sub(*req.StopLoss).Abs().Div(req.EntryPrice)
 if distPct.IsPositive() {
 maxByRisk := req.PortfolioValue.Mul(s.cfg.PerTradeRiskPct).Div(decimal.NewFromInt(100)).Div(distPct)
 if base.GreaterThan(maxByRisk) {
 base = maxByRisk
 }
 }
	}

	// Step 3: confidence scaling.
	if req.Confidence != nil {
 conf := *req.Confidence
 hundred := decimal.NewFromInt(100)
 scale := conf.Div(hundred)
 if scale.GreaterThan(decimal.NewFromInt(1)) {
 scale = decimal.NewFromInt(1)
 }
 if scale.IsNegative() {
 scale = decimal.Zero
 }
 base = base.Mul(scale)
	}

	if !s.cfg.SizeMultiplier.IsZero() {
 base = base.Mul(s.cfg.SizeMultiplier)
	}

	// Step 4: absolute caps and the global <=20% portfolio rule.
	if s.cfg.MaxSize.IsPositive() && base.GreaterThan(s.cfg.MaxSize) {
 base = s.cfg.MaxSize
	}
	if s.cfg.MinSize.IsPositive() && base.LessThan(s.cfg.MinSize) {
 base = s.cfg.MinSize
	}
	if req.PortfolioValue.IsPositive() {
 globalCap := req.PortfolioValue.Mul(decimal.NewFromInt(MaxPortfolioSharePct)).Div(decimal.NewFromInt(100))
 if base.GreaterThan(globalCap) {
 base = globalCap
 }
	}
	if base.IsNegative() {
 base = decimal.Zero
	}
	return base, nil
}

func (s *Sizer) baseSize(ctx context.Context, method Method, req Request) (decimal.Decimal, error) {
	switch method {
	case MethodFixed:
 return s.cfg.BaseSize, nil

	case MethodPercentage:
 return req.PortfolioValue.Mul(s.cfg.PortfolioPercentage).Div(decimal.NewFromInt(100)), nil

	case MethodVolatility:
 closes, err := s.history.Closes(ctx, req.Symbol, s.cfg.VolatilityLookback)
 if err != nil || len(closes) < 2 {
 // Missing volatility -> fall back to fixed.
 return s.cfg.BaseSize, nil
 }
 vol := metrics.Volatility(closes, s.cfg.VolatilityLookback)
 if vol == 0 {
 return s.cfg.BaseSize, nil
 }
 targetRisk := s.cfg.TargetRisk
 return req.PortfolioValue.Mul(targetRisk).Div(decimal.NewFromFloat(vol)), nil

	case MethodKelly:
 winRate, avgWin, avgLoss, err := s.history.TradeStats(ctx, req.Symbol, s.cfg.KellyLookback)
 if err != nil {
 return s.percentageFallback(req), nil
 }
 frac, ok := metrics.KellyFraction(winRate, avgWin, avgLoss, metrics.DefaultKellySafetyFactor)
 if !ok {
 // Undefined Kelly (avgLoss == 0) -> fall back to percentage.
 return s.percentageFallback(req), nil
 }
 return req.PortfolioValue.Mul(decimal.NewFromFloat(frac)), nil

	case MethodRiskParity:
 return s.riskParitySize(ctx, req)

	default:
 return decimal.Zero, fmt.Errorf("sizer: unknown method %q: %w", method, errUnknownMethod)
	}
}

func (s *Sizer) percentageFallback(req Request) decimal.Decimal {
	return req.PortfolioValue.Mul(s.cfg.PortfolioPercentage).Div(decimal.NewFromInt(100))
}

var errUnknownMethod = fmt.Errorf("unknown sizing method")

// riskParitySize computes req.Symbol's equal-risk-contribution weight over
// req.RiskParityUniverse using the covariance matrix over VolatilityLookback
// days, then returns that weight times portfolio value.
func (s *Sizer) riskParitySize(ctx context.Context, req Request) (decimal.Decimal, error) {
	universe := req.RiskParityUniverse
	if len(universe) == 0 {
 universe = []string{req.Symbol}
	}
	cov, err := s.parity.Covariance(ctx, universe, s.cfg.VolatilityLookback)
	if err != nil || len(cov) != len(universe) {
 return s.percentageFallback(req), nil
	}

	weights := equalRiskContributionWeights(cov)
	idx := -1
	for i, sym := range universe {
 if sym == req.Symbol {
 idx = i
 break
 }
	}
	if idx < 0 {
 return s.percentageFallback(req), nil
	}
	return req.PortfolioValue.Mul(decimal.NewFromFloat(weights[idx])), nil
}

// equalRiskContributionWeights finds portfolio weights so each asset
// contributes equal variance to the total portfolio risk budget, via
// cyclical coordinate descent on the classic ERC objective. Starts from
// inverse-volatility weights and refines for a fixed iteration budget.
func equalRiskContributionWeights(cov [][]float64) []float64 {
	n := len(cov)
	if n == 0 {
 return nil
	}
	if n == 1 {
 return []float64{1}
	}

	sigma := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
 for j := i; j < n; j++ {
 sigma.SetSym(i, j, cov[i][j])
 }
	}

	w := make([]float64, n)
	invVolSum := 0.0
	for i := 0; i < n; i++ {
 v := cov[i][i]
 if v <= 0 {
 v = 1e-12
 }
 w[i] = 1 / math.Sqrt(v)
 invVolSum += w[i]
	}
	for i := range w {
 w[i] /= invVolSum
	}

	const iterations = 200
	for iter := 0; iter < iterations; iter++ {
 mrc := make([]float64, n) // marginal risk contribution: (Sigma w)_i
 for i := 0; i < n; i++ {
 sum := 0.0
 for j := 0; j < n; j++ {
 sum += sigma.At(i, j) * w[j]
 }
 mrc[i] = sum
 }
 portfolioVar := 0.0
 for i := 0; i < n; i++ {
 portfolioVar += w[i] * mrc[i]
 }
 if portfolioVar <= 0 {
 break
 }
 target := portfolioVar / float64(n)
 next := make([]float64, n)
 sum := 0.0
 for i := 0; i < n; i++ {
 rc := w[i] * mrc[i]
 if rc <= 0 {
 rc = 1e-12
 }
 // Nudge weight toward equalizing its risk contribution with target.
 next[i] = w[i] * math.Sqrt(target/rc)
 sum += next[i]
 }
 if sum <= 0 {
 break
 }
 for i := range next {
 next[i] /= sum
 }
 w = next
	}
	return w
}
