package collaborators

import (
	"context"
	"math"
	"time"
)

// MarketHistory adapts a MarketDataProvider's candle series into the narrow
// Closes/Covariance interfaces internal/risk and internal/sizer consume, so
// both packages can stay ignorant of candles, intervals and time windows.
type MarketHistory struct {
	market MarketDataProvider
	interval time.Duration
	now func() time.Time
}

// NewMarketHistory constructs a MarketHistory sampling daily candles. now
// defaults to time.Now if nil (tests pass a clock.Clock.Now instead).
func NewMarketHistory(market MarketDataProvider, now func() time.Time) *MarketHistory {
	if now == nil {
 now = time.Now
	}
	return &MarketHistory{market: market, interval: 24 * time.Hour, now: now}
}

// Closes returns the last lookback daily closes for symbol, oldest first.
func (h *MarketHistory) Closes(ctx context.Context, symbol string, lookback int) ([]float64, error) {
	to := h.now()
	from := to.Add(-time.Duration(lookback) * h.interval)
	candles, err := h.market.GetCandles(ctx, symbol, h.interval, from, to)
	if err != nil {
 return nil, err
	}
	out := make([]float64, len(candles))
	for i, c := range candles {
 out[i], _ = c.Close.Float64()
	}
	return out, nil
}

// Covariance computes the sample covariance matrix of daily log returns
// across symbols over the lookback window, for the sizer's risk_parity
// method.
func (h *MarketHistory) Covariance(ctx context.Context, symbols []string, lookback int) ([][]float64, error) {
	series := make([][]float64, len(symbols))
	for i, sym := range symbols {
 closes, err := h.Closes(ctx, sym, lookback)
 if err != nil {
 return nil, err
 }
 series[i] = logReturns(closes)
	}

	n := len(symbols)
	cov := make([][]float64, n)
	for i := range cov {
 cov[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
 for j := i; j < n; j++ {
 c := sampleCovariance(series[i], series[j])
 cov[i][j] = c
 cov[j][i] = c
 }
	}
	return cov, nil
}

func logReturns(closes []float64) []float64 {
	if len(closes) < 2 {
 return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
 if closes[i-1] <= 0 || closes[i] <= 0 {
 out = append(out, 0)
 continue
 }
 out = append(out, math.Log(closes[i]/closes[i-1]))
	}
	return out
}

func sampleCovariance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
 n = len(b)
	}
	if n < 2 {
 return 0
	}
	var meanA, meanB float64
	for i := 0; i < n; i++ {
 meanA += a[i]
 meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	var sum float64
	for i := 0; i < n; i++ {
 sum += (a[i] - meanA) * (b[i] - meanB)
	}
	return sum / float64(n-1)
}
