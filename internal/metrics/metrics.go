// Package metrics implements pure, deterministic math: no
// I/O, no clock, nothing here may touch a Store or a Clock. Money and
// percentage quantities cross the package boundary as decimal.Decimal;
// internally, statistics that gonum/talib only operate on are computed in
// float64 and converted back at the edge.
package metrics

import (
	"math"

	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// TradingDaysPerYear is the annualization factor for Sharpe/Sortino.
const TradingDaysPerYear = 252

// LogReturns converts a price series into log returns. Returns len(prices)-1
// values; an empty or single-element series yields an empty slice.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
 return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
 if prices[i-1] <= 0 {
 out = append(out, 0)
 continue
 }
 out = append(out, math.Log(prices[i]/prices[i-1]))
	}
	return out
}

// Volatility returns the standard deviation of log returns over the given
// lookback window, expressed as a per-day rate. Returns zero for fewer than
// two observations.
func Volatility(prices []float64, lookbackDays int) float64 {
	returns := LogReturns(windowTail(prices, lookbackDays+1))
	if len(returns) < 2 {
 return 0
	}
	return stat.StdDev(returns, nil)
}

// windowTail returns the last n elements of series (or the whole series if
// shorter).
func windowTail(series []float64, n int) []float64 {
	if n <= 0 || n >= len(series) {
 return series
	}
	return series[len(series)-n:]
}

// VaR1Day computes 1-day Value-at-Risk at confidence c (e.g. 0.95) as
// normalInverse(c) * dailyVolatility * positionValue. A negative result is
// clamped to zero.
func VaR1Day(confidence float64, dailyVolatility, positionValue decimal.Decimal) decimal.Decimal {
	if confidence <= 0 || confidence >= 1 {
 confidence = 0.95
	}
	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(confidence)
	zDec := decimal.NewFromFloat(z)
	result := zDec.Mul(dailyVolatility).Mul(positionValue)
	if result.IsNegative() {
 return decimal.Zero
	}
	return result
}

// MAEMFE returns the maximum adverse and favorable excursions of priceSeries
// since entry, expressed as positive percentages relative to entry. side
// determines which direction is "adverse".
func MAEMFE(priceSeries []float64, entry float64, long bool) (maePct, mfePct float64) {
	if entry == 0 || len(priceSeries) == 0 {
 return 0, 0
	}
	hi := talib.Max(priceSeries, len(priceSeries))
	lo := talib.Min(priceSeries, len(priceSeries))
	maxPrice := hi[len(hi)-1]
	minPrice := lo[len(lo)-1]

	if long {
 mfePct = math.Max(0, (maxPrice-entry)/entry*100)
 maePct = math.Max(0, (entry-minPrice)/entry*100)
	} else {
 mfePct = math.Max(0, (entry-minPrice)/entry*100)
 maePct = math.Max(0, (maxPrice-entry)/entry*100)
	}
	return maePct, mfePct
}

// EfficiencyRatio is unrealized PnL divided by MFE (both percentages),
// clamped to [-1, 1]; undefined (MFE == 0) is treated as 0.
func EfficiencyRatio(unrealizedPnLPct, mfePct float64) float64 {
	if mfePct == 0 {
 return 0
	}
	r := unrealizedPnLPct / mfePct
	if r > 1 {
 return 1
	}
	if r < -1 {
 return -1
	}
	return r
}

// Sharpe returns the annualized Sharpe ratio: mean excess return over
// riskFreeRate divided by the total standard deviation of returns, scaled by
// sqrt(TradingDaysPerYear). Returns zero when stdev is zero.
func Sharpe(returns []float64, riskFreeRate float64) float64 {
	if len(returns) == 0 {
 return 0
	}
	excess := subtractScalar(returns, riskFreeRate)
	mean := stat.Mean(excess, nil)
	sd := stat.StdDev(excess, nil)
	if sd == 0 {
 return 0
	}
	return mean / sd * math.Sqrt(TradingDaysPerYear)
}

// Sortino is like Sharpe but divides by downside deviation (stdev of only
// the negative excess returns) instead of total standard deviation.
func Sortino(returns []float64, riskFreeRate float64) float64 {
	if len(returns) == 0 {
 return 0
	}
	excess := subtractScalar(returns, riskFreeRate)
	mean := stat.Mean(excess, nil)
	downside := make([]float64, 0, len(excess))
	for _, r := range excess {
 if r < 0 {
 downside = append(downside, r)
 }
	}
	if len(downside) == 0 {
 return 0
	}
	dd := stat.StdDev(downside, nil)
	if dd == 0 {
 return 0
	}
	return mean / dd * math.Sqrt(TradingDaysPerYear)
}

func subtractScalar(xs []float64, s float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
 out[i] = x - s
	}
	return out
}

// MaxDrawdown returns the largest peak-to-trough fractional decline of a
// cumulative PnL series. Returns zero for an empty or non-positive-peak series.
func MaxDrawdown(cumulativePnL []float64) float64 {
	if len(cumulativePnL) == 0 {
 return 0
	}
	peak := cumulativePnL[0]
	maxDD := 0.0
	for _, v := range cumulativePnL {
 if v > peak {
 peak = v
 }
 if peak > 0 {
 dd := (peak - v) / peak
 if dd > maxDD {
 maxDD = dd
 }
 }
	}
	return maxDD
}

// Herfindahl returns the Herfindahl-Hirschman concentration index of a set
// of position weights (each in [0,1], should sum to ~1): sum of squared
// weights * 10000. 0 = perfectly diffuse, 10000 = a single position.
func Herfindahl(weights []float64) float64 {
	sum := 0.0
	for _, w := range weights {
 sum += w * w
	}
	return sum * 10000
}

// DefaultKellySafetyFactor is the "quarter-Kelly" scaling applied by default.
const DefaultKellySafetyFactor = 0.25

// KellyFraction computes (b*p - (1-p)) / b where b = avgWin/avgLoss and
// p = winRate, clamped to >= 0 and scaled by safetyFactor. ok is false when
// avgLoss is zero (undefined Kelly; caller should fall back to percentage
// sizing).
func KellyFraction(winRate, avgWin, avgLoss, safetyFactor float64) (frac float64, ok bool) {
	if avgLoss == 0 {
 return 0, false
	}
	b := avgWin / avgLoss
	if b == 0 {
 return 0, true
	}
	f := (b*winRate - (1 - winRate)) / b
	if f < 0 {
 f = 0
	}
	return f * safetyFactor, true
}

// Correlation returns the Pearson correlation coefficient of two equal-length
// return series. Returns zero for mismatched or too-short inputs.
func Correlation(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
 return 0
	}
	return stat.Correlation(a, b, nil)
}

// MaxPairwiseCorrelation returns the maximum absolute pairwise correlation
// across a set of return series. Returns zero for fewer than two series.
func MaxPairwiseCorrelation(series [][]float64) float64 {
	max := 0.0
	for i := 0; i < len(series); i++ {
 for j := i + 1; j < len(series); j++ {
 c := math.Abs(Correlation(series[i], series[j]))
 if c > max {
 max = c
 }
 }
	}
	return max
}

// Beta returns the slope of assetReturns against marketReturns:
// cov(asset, market) / var(market). Returns zero when market variance is zero.
func Beta(assetReturns, marketReturns []float64) float64 {
	if len(assetReturns) != len(marketReturns) || len(assetReturns) < 2 {
 return 0
	}
	cov := stat.Covariance(assetReturns, marketReturns, nil)
	v := stat.Variance(marketReturns, nil)
	if v == 0 {
 return 0
	}
	return cov / v
}

// PartialExitLadder returns 25*k capped at 75, where k is the count of
// ascending thresholds <= x. thresholds must be sorted ascending.
func PartialExitLadder(thresholds []float64, x float64) int {
	k := 0
	for _, t := range thresholds {
 if x >= t {
 k++
 }
	}
	pct := 25 * k
	if pct > 75 {
 pct = 75
	}
	return pct
}
