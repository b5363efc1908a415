// Package risk implements the Risk Assessor: a tick-driven
// recompute of per-position and portfolio risk, with a dedup/cooldown/
// hysteresis alerting state machine layered on top.
package risk

import "github.com/shopspring/decimal"

// saturate normalizes observed against limit into [0, 100]: 0 at zero
// observed, 100 once observed reaches or exceeds limit. A zero or negative
// limit saturates immediately (any observed value is already "at limit").
func saturate(observed, limit decimal.Decimal) float64 {
	if limit.LessThanOrEqual(decimal.Zero) {
 if observed.LessThanOrEqual(decimal.Zero) {
 return 0
 }
 return 100
	}
	ratio := observed.Div(limit).InexactFloat64() * 100
	if ratio < 0 {
 ratio = 0
	}
	if ratio > 100 {
 ratio = 100
	}
	return ratio
}

// scoreWeights are the component weights of the composite risk score.
const (
	weightExposure = 0.35
	weightDrawdown = 0.25
	weightVaR = 0.20
	weightConcentration = 0.10
	weightLiquidity = 0.10
)

// compositeRiskScore implements the weighted risk score:
// 0.35*exposure + 0.25*drawdown + 0.20*var + 0.10*concentration + 0.10*liquidity,
// each component already normalized to [0,100] by the caller via saturate.
func compositeRiskScore(exposureScore, drawdownScore, varScore, concentrationScore, liquidityScore float64) decimal.Decimal {
	total := weightExposure*exposureScore + weightDrawdown*drawdownScore + weightVaR*varScore +
 weightConcentration*concentrationScore + weightLiquidity*liquidityScore
	return decimal.NewFromFloat(total).Round(4)
}
