package sizer_test

import (
	"context"
	"testing"

	"github.com/aristath/rpcp/internal/sizer"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type stubHistory struct {
	closes            []float64
	winRate, avgWin, avgLoss float64
	statsErr          error
	closesErr         error
}

func (s stubHistory) Closes(ctx context.Context, symbol string, lookback int) ([]float64, error) {
	return s.closes, s.closesErr
}

func (s stubHistory) TradeStats(ctx context.Context, symbol string, lookback int) (float64, float64, float64, error) {
	return s.winRate, s.avgWin, s.avgLoss, s.statsErr
}

type stubParity struct {
	cov [][]float64
	err error
}

func (s stubParity) Covariance(ctx context.Context, symbols []string, lookback int) ([][]float64, error) {
	return s.cov, s.err
}

func baseConfig() sizer.Config {
	return sizer.Config{
		Method:              sizer.MethodFixed,
		BaseSize:            decimal.NewFromInt(1000),
		MinSize:             decimal.NewFromInt(10),
		MaxSize:             decimal.NewFromInt(100000),
		PortfolioPercentage: decimal.NewFromInt(5),
		VolatilityLookback:  30,
		KellyLookback:       90,
		TargetRisk:          decimal.NewFromFloat(0.01),
		PerTradeRiskPct:     decimal.NewFromInt(2),
		SizeMultiplier:      decimal.NewFromInt(1),
	}
}

func TestSizerFixedMethod(t *testing.T) {
	s := sizer.New(baseConfig(), stubHistory{}, stubParity{})
	got, err := s.Size(context.Background(), sizer.Request{
		Symbol:         "BNB",
		EntryPrice:     decimal.NewFromInt(500),
		PortfolioValue: decimal.NewFromInt(100000),
	})
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(1000)))
}

func TestSizerGlobalPortfolioCapApplies(t *testing.T) {
	cfg := baseConfig()
	cfg.Method = sizer.MethodPercentage
	cfg.PortfolioPercentage = decimal.NewFromInt(50) // deliberately over the 20% global cap
	s := sizer.New(cfg, stubHistory{}, stubParity{})
	got, err := s.Size(context.Background(), sizer.Request{
		Symbol:         "BNB",
		EntryPrice:     decimal.NewFromInt(500),
		PortfolioValue: decimal.NewFromInt(100000),
	})
	require.NoError(t, err)
	cap := decimal.NewFromInt(100000).Mul(decimal.NewFromInt(sizer.MaxPortfolioSharePct)).Div(decimal.NewFromInt(100))
	require.True(t, got.LessThanOrEqual(cap), "size %s must respect the <=20%% portfolio rule", got)
}

func TestSizerVolatilityMissingFallsBackToFixed(t *testing.T) {
	cfg := baseConfig()
	cfg.Method = sizer.MethodVolatility
	s := sizer.New(cfg, stubHistory{closesErr: nil, closes: nil}, stubParity{})
	got, err := s.Size(context.Background(), sizer.Request{
		Symbol:         "BNB",
		EntryPrice:     decimal.NewFromInt(500),
		PortfolioValue: decimal.NewFromInt(100000),
	})
	require.NoError(t, err)
	require.True(t, got.Equal(cfg.BaseSize), "missing volatility must fall back to fixed base size")
}

func TestSizerKellyUndefinedFallsBackToPercentage(t *testing.T) {
	cfg := baseConfig()
	cfg.Method = sizer.MethodKelly
	s := sizer.New(cfg, stubHistory{winRate: 0.6, avgWin: 100, avgLoss: 0}, stubParity{})
	got, err := s.Size(context.Background(), sizer.Request{
		Symbol:         "BNB",
		EntryPrice:     decimal.NewFromInt(500),
		PortfolioValue: decimal.NewFromInt(100000),
	})
	require.NoError(t, err)
	want := decimal.NewFromInt(100000).Mul(cfg.PortfolioPercentage).Div(decimal.NewFromInt(100))
	require.True(t, got.Equal(want))
}

func TestSizerPerTradeRiskCapClamps(t *testing.T) {
	cfg := baseConfig()
	cfg.Method = sizer.MethodFixed
	cfg.BaseSize = decimal.NewFromInt(100000) // deliberately huge
	cfg.MaxSize = decimal.NewFromInt(1000000)
	cfg.PerTradeRiskPct = decimal.NewFromInt(1)
	s := sizer.New(cfg, stubHistory{}, stubParity{})
	stop := decimal.NewFromInt(490) // 2% away from entry of 500
	got, err := s.Size(context.Background(), sizer.Request{
		Symbol:         "BNB",
		EntryPrice:     decimal.NewFromInt(500),
		StopLoss:       &stop,
		PortfolioValue: decimal.NewFromInt(100000),
	})
	require.NoError(t, err)
	// maxByRisk = 100000 * 1% / 2% = 50000, well below the huge base size.
	require.True(t, got.LessThanOrEqual(decimal.NewFromInt(50000)))
}

func TestSizerNeverNegative(t *testing.T) {
	cfg := baseConfig()
	cfg.BaseSize = decimal.NewFromInt(-500)
	s := sizer.New(cfg, stubHistory{}, stubParity{})
	got, err := s.Size(context.Background(), sizer.Request{
		Symbol:         "BNB",
		EntryPrice:     decimal.NewFromInt(500),
		PortfolioValue: decimal.NewFromInt(100000),
	})
	require.NoError(t, err)
	require.True(t, got.GreaterThanOrEqual(decimal.Zero))
}

func TestSizerRiskParitySplitsByInverseVolatility(t *testing.T) {
	cfg := baseConfig()
	cfg.Method = sizer.MethodRiskParity
	cov := [][]float64{
		{0.04, 0.0},
		{0.0, 0.01}, // asset 1 is less volatile -> gets a larger weight
	}
	s := sizer.New(cfg, stubHistory{}, stubParity{cov: cov})
	got, err := s.Size(context.Background(), sizer.Request{
		Symbol:             "B",
		EntryPrice:         decimal.NewFromInt(500),
		PortfolioValue:     decimal.NewFromInt(100000),
		RiskParityUniverse: []string{"A", "B"},
	})
	require.NoError(t, err)
	require.True(t, got.GreaterThan(decimal.Zero))
}
