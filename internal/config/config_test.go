package config_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rpcp/internal/config"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, "./data", cfg.DataDir)
	require.Equal(t, 8080, cfg.HTTPPort)
	require.Equal(t, 30*time.Second, cfg.Risk.AssessmentInterval)
	require.Equal(t, 0.95, cfg.Risk.VaRConfidence)
	require.Equal(t, 3, cfg.Execution.MaxRetries)
	require.Equal(t, time.Minute, cfg.Funds.BalanceSnapshotInterval)
	require.Equal(t, "", cfg.S3Bucket)
	require.Equal(t, 30*time.Second, cfg.HealthPollInterval)
	require.True(t, cfg.Sizing.PerTradeRiskPct.Equal(decimal.RequireFromString("1")))
	require.True(t, cfg.Sizing.TargetRisk.Equal(decimal.RequireFromString("0.01")))
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("RISK_VAR_CONFIDENCE", "0.99")
	t.Setenv("EXECUTION_MAX_RETRIES", "7")
	t.Setenv("BACKUP_S3_BUCKET", "rpcp-archive")

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.HTTPPort)
	require.Equal(t, 0.99, cfg.Risk.VaRConfidence)
	require.Equal(t, 7, cfg.Execution.MaxRetries)
	require.Equal(t, "rpcp-archive", cfg.S3Bucket)
}

func TestLoadParsesSizingDecimals(t *testing.T) {
	t.Setenv("SIZING_BASE_SIZE", "250")
	t.Setenv("SIZING_MAX_LEVERAGE", "2.5")

	cfg, err := config.Load()
	require.NoError(t, err)

	require.True(t, cfg.Sizing.BaseSize.Equal(decimal.RequireFromString("250")))
	require.True(t, cfg.Sizing.MaxLeverage.Equal(decimal.RequireFromString("2.5")))
}
