package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/errs"
	"github.com/aristath/rpcp/internal/events"
	"github.com/aristath/rpcp/internal/metrics"
	"github.com/aristath/rpcp/internal/store"
)

// HistoryProvider supplies the closing-price history the assessor needs for
// volatility, VaR, MAE/MFE, correlation and beta. Grounded the same way as
// internal/sizer.HistoryProvider: the assessor never talks to a collaborator
// directly, only through this narrow interface.
type HistoryProvider interface {
	Closes(ctx context.Context, symbol string, lookbackDays int) ([]float64, error)
}

// Config holds the assessor's tunables.
type Config struct {
	AssessmentInterval time.Duration
	VaRConfidence float64
	LookbackDays int
	RiskFreeRate float64
	BenchmarkSymbol string // returns series used for beta; empty disables beta
	CooldownWindow time.Duration
	HysteresisTicks int // consecutive in-limit ticks required before auto-resolve
	HysteresisMarginPct decimal.Decimal // how far inside the limit counts as "resolved"
}

// DefaultConfig returns the suggested defaults.
func DefaultConfig() Config {
	return Config{
 AssessmentInterval: 30 * time.Second,
 VaRConfidence: 0.95,
 LookbackDays: 30,
 RiskFreeRate: 0,
 CooldownWindow: 5 * time.Minute,
 HysteresisTicks: 3,
 HysteresisMarginPct: decimal.NewFromInt(10),
	}
}

// Assessor drives the risk tick loop: each Tick recomputes per-position and
// portfolio risk rows and maintains the alert set.
type Assessor struct {
	store *store.Store
	clk clock.Clock
	bus *events.Bus
	history HistoryProvider
	cfg Config
	log zerolog.Logger

	paused bool
}

// New constructs an Assessor. log defaults to a no-op logger if zero-valued.
func New(st *store.Store, clk clock.Clock, bus *events.Bus, history HistoryProvider, cfg Config, log zerolog.Logger) *Assessor {
	return &Assessor{store: st, clk: clk, bus: bus, history: history, cfg: cfg, log: log.With().Str("component", "risk").Logger()}
}

// Paused reports whether a prior fatal error has paused assessment.
func (a *Assessor) Paused() bool { return a.paused }

// Resume clears a pause set by a prior fatal tick (operator command surface).
func (a *Assessor) Resume() { a.paused = false }

// Run drives Tick off a.cfg.AssessmentInterval ticker until ctx is cancelled.
func (a *Assessor) Run(ctx context.Context) {
	ticker := a.clk.NewTicker(a.cfg.AssessmentInterval, a.cfg.AssessmentInterval/10)
	defer ticker.Stop()
	for {
 select {
 case <-ctx.Done():
 return
 case <-ticker.C():
 if err := a.Tick(ctx); err != nil {
 a.log.Error().Err(err).Msg("risk assessment tick failed")
 }
 }
	}
}

// Tick performs one assessment pass over every active position. A tick is idempotent: re-running it with unchanged inputs
// produces the same stored rows and does not duplicate alerts.
func (a *Assessor) Tick(ctx context.Context) error {
	if a.paused {
 return fmt.Errorf("risk: assessment paused: %w", errs.Fatal)
	}
	now := a.clk.Now()
	a.log.Info().Msg("risk assessment tick starting")

	positions, err := a.store.ActivePositions(ctx)
	if err != nil {
 a.paused = true
 a.raiseSystemAlert(ctx, now, fmt.Sprintf("store unavailable: %v", err))
 return fmt.Errorf("risk: %w: %v", errs.Fatal, err)
	}

	portfolioValue := decimal.Zero
	type posCtx struct {
 pos domain.Position
 closes []float64
 returns []float64
 notional decimal.Decimal
	}
	ctxs := make([]posCtx, 0, len(positions))
	for _, p := range positions {
 closes, err := a.history.Closes(ctx, p.Symbol, a.cfg.LookbackDays)
 if err != nil {
 a.log.Warn().Err(err).Str("symbol", p.Symbol).Msg("history lookup failed, skipping position this tick")
 continue
 }
 notional := p.NotionalValue()
 portfolioValue = portfolioValue.Add(notional)
 ctxs = append(ctxs, posCtx{pos: p, closes: closes, returns: metrics.LogReturns(closes), notional: notional})
	}

	var marketReturns []float64
	for _, c := range ctxs {
 if c.pos.Symbol == a.cfg.BenchmarkSymbol {
 marketReturns = c.returns
 break
 }
	}

	weights := make([]float64, 0, len(ctxs))
	allReturns := make([][]float64, 0, len(ctxs))
	weightedBeta := decimal.Zero
	var portfolioReturns []float64
	totalVaR := decimal.Zero
	weightedSharpeNumerator := 0.0

	for _, c := range ctxs {
 exposurePct := decimal.Zero
 if portfolioValue.GreaterThan(decimal.Zero) {
 exposurePct = c.notional.Div(portfolioValue).Mul(decimal.NewFromInt(100))
 }
 weight := exposurePct.Div(decimal.NewFromInt(100)).InexactFloat64()
 weights = append(weights, weight)
 allReturns = append(allReturns, c.returns)

 vol := metrics.Volatility(c.closes, a.cfg.LookbackDays)
 varDaily := metrics.VaR1Day(a.cfg.VaRConfidence, decimal.NewFromFloat(vol), c.notional)
 totalVaR = totalVaR.Add(varDaily)

 long := c.pos.Side == domain.SideLong
 maePct, mfePct := metrics.MAEMFE(c.closes, c.pos.AvgEntryPrice.InexactFloat64(), long)

 var beta float64
 if marketReturns != nil {
 beta = metrics.Beta(c.returns, marketReturns)
 }
 weightedBeta = weightedBeta.Add(decimal.NewFromFloat(beta * weight))

 sharpe := metrics.Sharpe(c.returns, a.cfg.RiskFreeRate)
 weightedSharpeNumerator += sharpe * weight

 dd := metrics.MaxDrawdown(cumulative(c.returns))

 concentration := exposurePct // this position's own share, feeds the portfolio Herfindahl below
 liquidity := decimal.Zero // no liquidity-depth collaborator wired yet; see DESIGN.md

 limits, err := a.resolveLimitsFor(ctx, c.pos)
 if err != nil {
 a.log.Warn().Err(err).Str("position", c.pos.ID).Msg("limit resolution failed, using defaults")
 limits = domain.DefaultGlobalLimits()
 }

 exposureScore := saturate(exposurePct, limits.MaxPortfolioExposure)
 drawdownScore := saturate(decimal.NewFromFloat(dd*100), limits.MaxDrawdown)
 varScore := saturate(varDaily, limits.MaxPositionSize)
 concentrationScore := saturate(concentration, limits.ConcentrationLimitPct)
 liquidityScore := 0.0
 riskScore := compositeRiskScore(exposureScore, drawdownScore, varScore, concentrationScore, liquidityScore)

 pr := domain.PositionRisk{
 PositionID: c.pos.ID,
 Size: c.notional,
 VaR1Day: varDaily,
 ExposurePct: exposurePct,
 MaxDrawdownPct: decimal.NewFromFloat(dd * 100),
 RiskScore: riskScore,
 Concentration: concentration,
 Correlation: decimal.Zero, // correlation is a portfolio-wide figure; see PortfolioRisk.MaxCorrelation
 Liquidity: liquidity,
 Beta: decimal.NewFromFloat(beta),
 Sharpe: decimal.NewFromFloat(sharpe),
 MAEPct: decimal.NewFromFloat(maePct),
 MFEPct: decimal.NewFromFloat(mfePct),
 LastAssessedAt: now,
 }
 if err := a.store.UpsertPositionRisk(ctx, pr); err != nil {
 return fmt.Errorf("risk: upsert position risk: %w", err)
 }

 a.checkPositionAlerts(ctx, now, c.pos, pr, limits)

 portfolioReturns = appendWeighted(portfolioReturns, c.returns, weight)
	}

	// Pairwise correlation is only computed at the portfolio level; per-position
	// rows keep Correlation zero rather than approximating a per-entity share.
	maxCorrelation := metrics.MaxPairwiseCorrelation(allReturns)

	concentrationIndex := metrics.Herfindahl(weights)
	portfolioSharpe := weightedSharpeNumerator
	dailyPnL := decimal.Zero
	for _, c := range ctxs {
 dailyPnL = dailyPnL.Add(c.pos.UnrealizedPnL())
	}

	portfolioRisk := domain.PortfolioRisk{
 PortfolioID: "default",
 PortfolioValue: portfolioValue,
 TotalVaR1Day: totalVaR,
 WeightedBeta: weightedBeta,
 Concentration: decimal.NewFromFloat(concentrationIndex),
 MaxCorrelation: decimal.NewFromFloat(maxCorrelation),
 MaxDrawdownPct: decimal.NewFromFloat(metrics.MaxDrawdown(cumulative(portfolioReturns)) * 100),
 Sharpe: decimal.NewFromFloat(portfolioSharpe),
 DailyPnL: dailyPnL,
 LastAssessedAt: now,
	}
	if err := a.store.UpsertPortfolioRisk(ctx, portfolioRisk); err != nil {
 return fmt.Errorf("risk: upsert portfolio risk: %w", err)
	}
	a.checkPortfolioAlerts(ctx, now, portfolioRisk)

	a.log.Info().Int("positions", len(ctxs)).Msg("risk assessment tick complete")
	return nil
}

func (a *Assessor) resolveLimitsFor(ctx context.Context, p domain.Position) (domain.RiskLimits, error) {
	scopes := []domain.LimitScope{domain.ScopeGlobal, domain.ScopeStrategy(p.StrategyID)}
	rows, err := a.store.LimitsForScopes(ctx, scopes)
	if err != nil {
 return domain.RiskLimits{}, err
	}
	return domain.ResolveLimits(rows), nil
}

func (a *Assessor) raiseSystemAlert(ctx context.Context, now time.Time, message string) {
	a.upsertAlertDedup(ctx, now, domain.RiskAlert{
 Kind: domain.AlertSystem,
 Severity: domain.SeverityCritical,
 EntityType: domain.EntitySystem,
 EntityID: "rpcp",
 Message: message,
 RecommendedAction: domain.ActionNotifyOnly,
	})
}

func cumulative(returns []float64) []float64 {
	if len(returns) == 0 {
 return nil
	}
	out := make([]float64, len(returns))
	sum := 0.0
	for i, r := range returns {
 sum += r
 out[i] = sum
	}
	return out
}

func appendWeighted(acc, series []float64, weight float64) []float64 {
	if len(series) == 0 {
 return acc
	}
	if acc == nil {
 acc = make([]float64, len(series))
	}
	n := len(acc)
	if len(series) < n {
 n = len(series)
	}
	for i := 0; i < n; i++ {
 acc[i] += series[i] * weight
	}
	return acc
}
