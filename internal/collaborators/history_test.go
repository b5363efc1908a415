package collaborators_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rpcp/internal/collaborators"
)

func TestMarketHistoryClosesReturnsCandleCloses(t *testing.T) {
	market := collaborators.NewFakeMarketData()
	now := time.Now().UTC()
	market.SetCandles("BNB/USDT", []collaborators.Candle{
		{Time: now.Add(-2 * 24 * time.Hour), Close: decimal.NewFromInt(10)},
		{Time: now.Add(-24 * time.Hour), Close: decimal.NewFromInt(11)},
		{Time: now, Close: decimal.NewFromInt(12)},
	})

	h := collaborators.NewMarketHistory(market, func() time.Time { return now })
	closes, err := h.Closes(context.Background(), "BNB/USDT", 3)
	require.NoError(t, err)
	require.Equal(t, []float64{10, 11, 12}, closes)
}

func TestMarketHistoryCovarianceIsSymmetric(t *testing.T) {
	market := collaborators.NewFakeMarketData()
	now := time.Now().UTC()
	closesA := []decimal.Decimal{
		decimal.NewFromInt(10), decimal.NewFromInt(11), decimal.NewFromInt(10), decimal.NewFromInt(12),
	}
	closesB := []decimal.Decimal{
		decimal.NewFromInt(20), decimal.NewFromInt(19), decimal.NewFromInt(21), decimal.NewFromInt(18),
	}
	candlesA := make([]collaborators.Candle, len(closesA))
	candlesB := make([]collaborators.Candle, len(closesB))
	for i := range closesA {
		candlesA[i] = collaborators.Candle{Time: now.Add(time.Duration(i) * 24 * time.Hour), Close: closesA[i]}
		candlesB[i] = collaborators.Candle{Time: now.Add(time.Duration(i) * 24 * time.Hour), Close: closesB[i]}
	}
	market.SetCandles("A", candlesA)
	market.SetCandles("B", candlesB)

	h := collaborators.NewMarketHistory(market, func() time.Time { return now })
	cov, err := h.Covariance(context.Background(), []string{"A", "B"}, len(closesA))
	require.NoError(t, err)
	require.Len(t, cov, 2)
	require.InDelta(t, cov[0][1], cov[1][0], 1e-9)
}

func TestMarketHistoryPropagatesMarketError(t *testing.T) {
	market := collaborators.NewFakeMarketData()
	market.SetError(context.DeadlineExceeded)

	h := collaborators.NewMarketHistory(market, nil)
	_, err := h.Closes(context.Background(), "BNB/USDT", 10)
	require.Error(t, err)
}
