package metrics_test

import (
	"testing"

	"github.com/aristath/rpcp/internal/metrics"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestVaR1DayZeroVolatilityIsZero(t *testing.T) {
	v := metrics.VaR1Day(0.95, decimal.Zero, decimal.NewFromInt(10000))
	require.True(t, v.IsZero())
}

func TestVaR1DayClampsNegativeToZero(t *testing.T) {
	v := metrics.VaR1Day(0.95, decimal.NewFromFloat(-0.05), decimal.NewFromInt(10000))
	require.True(t, v.GreaterThanOrEqual(decimal.Zero))
}

func TestVaR1DayPositiveVolatility(t *testing.T) {
	v := metrics.VaR1Day(0.95, decimal.NewFromFloat(0.02), decimal.NewFromInt(10000))
	require.True(t, v.GreaterThan(decimal.Zero))
}

func TestKellyFractionUndefinedFallsBack(t *testing.T) {
	_, ok := metrics.KellyFraction(0.6, 100, 0, metrics.DefaultKellySafetyFactor)
	require.False(t, ok, "avgLoss=0 must report Kelly as undefined")
}

func TestKellyFractionClampedNonNegative(t *testing.T) {
	f, ok := metrics.KellyFraction(0.2, 10, 100, metrics.DefaultKellySafetyFactor)
	require.True(t, ok)
	require.GreaterOrEqual(t, f, 0.0)
}

func TestPartialExitLadderMonotoneNonDecreasing(t *testing.T) {
	thresholds := []float64{5, 10, 15, 20}
	prev := 0
	for _, x := range []float64{0, 4, 5, 9, 10, 14, 15, 19, 20, 100} {
		pct := metrics.PartialExitLadder(thresholds, x)
		require.GreaterOrEqual(t, pct, prev)
		require.LessOrEqual(t, pct, 75)
		prev = pct
	}
}

func TestPartialExitLadderCapsAt75(t *testing.T) {
	thresholds := []float64{1, 2, 3, 4, 5}
	require.Equal(t, 75, metrics.PartialExitLadder(thresholds, 10))
}

func TestHerfindahlSinglePositionIsMax(t *testing.T) {
	require.InDelta(t, 10000.0, metrics.Herfindahl([]float64{1.0}), 0.0001)
}

func TestHerfindahlDiffuseIsLow(t *testing.T) {
	weights := make([]float64, 100)
	for i := range weights {
		weights[i] = 0.01
	}
	require.InDelta(t, 100.0, metrics.Herfindahl(weights), 0.0001)
}

func TestEfficiencyRatioUndefinedWhenMFEZero(t *testing.T) {
	require.Equal(t, 0.0, metrics.EfficiencyRatio(5, 0))
}

func TestEfficiencyRatioClampedToUnitRange(t *testing.T) {
	require.Equal(t, 1.0, metrics.EfficiencyRatio(20, 5))
	require.Equal(t, -1.0, metrics.EfficiencyRatio(-20, 5))
}

func TestMaxDrawdownPeakToTrough(t *testing.T) {
	series := []float64{100, 120, 80, 90, 150, 50}
	dd := metrics.MaxDrawdown(series)
	require.InDelta(t, (150.0-50.0)/150.0, dd, 0.0001)
}

func TestVolatilityTooFewObservationsIsZero(t *testing.T) {
	require.Equal(t, 0.0, metrics.Volatility([]float64{100}, 30))
}
