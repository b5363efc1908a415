// Package config loads RPCP's structured configuration: a .env
// file for environment overrides, then viper for the deeply nested
// risk/sizing/execution/funds blocks a flat os.Getenv config can't express.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/execution"
	"github.com/aristath/rpcp/internal/funds"
	"github.com/aristath/rpcp/internal/risk"
	"github.com/aristath/rpcp/internal/sizer"
)

// Config is the fully loaded, typed configuration for one RPCP process.
type Config struct {
	DataDir string
	LogLevel string
	HTTPPort int

	Risk risk.Config
	Sizing sizer.Config
	Execution execution.Config
	Funds funds.Config
	Wallets []funds.WalletConfig

	S3Bucket string
	S3Region string
	HealthPollInterval time.Duration
}

// Load reads .env (if present) then viper-backed environment/config-file
// values into a Config, applying defaults wherever a key is unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	riskCfg := risk.DefaultConfig()
	riskCfg.AssessmentInterval = v.GetDuration("risk.assessment_interval")
	riskCfg.VaRConfidence = v.GetFloat64("risk.var_confidence")
	riskCfg.LookbackDays = v.GetInt("risk.lookback_days")
	riskCfg.RiskFreeRate = v.GetFloat64("risk.risk_free_rate")
	riskCfg.BenchmarkSymbol = v.GetString("risk.benchmark_symbol")
	riskCfg.CooldownWindow = v.GetDuration("risk.cooldown_window")
	riskCfg.HysteresisTicks = v.GetInt("risk.hysteresis_ticks")
	if s := v.GetString("risk.hysteresis_margin_pct"); s != "" {
 d, err := decimal.NewFromString(s)
 if err != nil {
 return nil, fmt.Errorf("config: risk.hysteresis_margin_pct: %w", err)
 }
 riskCfg.HysteresisMarginPct = d
	}

	sizingCfg := sizer.Config{
 Method: sizer.Method(v.GetString("sizing.method")),
 BaseSize: mustDec(v, "sizing.base_size"),
 MinSize: mustDec(v, "sizing.min_size"),
 MaxSize: mustDec(v, "sizing.max_size"),
 PortfolioPercentage: mustDec(v, "sizing.portfolio_percentage"),
 VolatilityLookback: v.GetInt("sizing.volatility_lookback"),
 KellyLookback: v.GetInt("sizing.kelly_lookback"),
 RiskFreeRate: mustDec(v, "sizing.risk_free_rate"),
 MaxLeverage: mustDec(v, "sizing.max_leverage"),
 SizeMultiplier: mustDec(v, "sizing.size_multiplier"),
 PerTradeRiskPct: mustDec(v, "sizing.per_trade_risk_pct"),
 TargetRisk: mustDec(v, "sizing.target_risk"),
	}

	execCfg := execution.DefaultConfig()
	execCfg.MaxRetries = v.GetInt("execution.max_retries")
	execCfg.RetryBaseDelay = v.GetDuration("execution.retry_base_delay")
	execCfg.CloseConcurrency = v.GetInt("execution.close_concurrency")
	execCfg.StaggerDelay = v.GetDuration("execution.stagger_delay")

	fundsCfg := funds.DefaultConfig()
	fundsCfg.DryRun = v.GetBool("funds.dry_run")
	fundsCfg.BalanceSnapshotInterval = v.GetDuration("funds.balance_snapshot_interval")
	fundsCfg.GasDripInterval = v.GetDuration("funds.gas_drip_interval")
	fundsCfg.SweeperInterval = v.GetDuration("funds.sweeper_interval")
	fundsCfg.RebalancerInterval = v.GetDuration("funds.rebalancer_interval")
	fundsCfg.GasDripConcurrency = v.GetInt("funds.gas_drip_concurrency")
	fundsCfg.NativeAsset = v.GetString("funds.native_asset")
	fundsCfg.TreasuryWallet = v.GetString("funds.treasury_wallet")
	fundsCfg.ToleranceBand = mustDec(v, "funds.tolerance_band")
	fundsCfg.MinRebalanceValueUSD = mustDec(v, "funds.min_rebalance_value_usd")
	fundsCfg.MaxSingleTradeUSD = mustDec(v, "funds.max_single_trade_usd")
	fundsCfg.RebalanceTarget = map[string]decimal.Decimal{}
	for asset, pct := range v.GetStringMapString("funds.rebalance_target") {
 d, err := decimal.NewFromString(pct)
 if err != nil {
 return nil, fmt.Errorf("config: funds.rebalance_target.%s: %w", asset, err)
 }
 fundsCfg.RebalanceTarget[asset] = d
	}

	wallets, err := loadWallets(v)
	if err != nil {
 return nil, err
	}

	return &Config{
 DataDir: v.GetString("data_dir"),
 LogLevel: v.GetString("log_level"),
 HTTPPort: v.GetInt("http_port"),
 Risk: riskCfg,
 Sizing: sizingCfg,
 Execution: execCfg,
 Funds: fundsCfg,
 Wallets: wallets,
 S3Bucket: v.GetString("backup.s3_bucket"),
 S3Region: v.GetString("backup.s3_region"),
 HealthPollInterval: v.GetDuration("health.poll_interval"),
	}, nil
}

// loadWallets unmarshals the wallets.<name>.* blocks into a WalletConfig slice. Wallets are keyed by name in config so
// operators can address them in .env without juggling raw addresses.
func loadWallets(v *viper.Viper) ([]funds.WalletConfig, error) {
	raw, ok := v.Get("wallets").(map[string]interface{})
	if !ok || len(raw) == 0 {
 return nil, nil
	}
	out := make([]funds.WalletConfig, 0, len(raw))
	for name, val := range raw {
 m, ok := val.(map[string]interface{})
 if !ok {
 return nil, fmt.Errorf("config: wallets.%s: malformed wallet block", name)
 }
 w := funds.WalletConfig{
 Address: str(m, "address"),
 Group: domain.WalletGroup(str(m, "group")),
 ReferenceAsset: str(m, "reference_asset"),
 TrackedAssets: strSlice(m, "tracked_assets"),
 GasMin: decOr(m, "gas_min"),
 GasMax: decOr(m, "gas_max"),
 SweepMin: decOr(m, "sweep_min"),
 SweepEnabled: boolOr(m, "sweep_enabled"),
 SweepTarget: str(m, "sweep_target"),
 LeavingAmount: decOr(m, "leaving_amount"),
 AssetWhitelist: strSlice(m, "asset_whitelist"),
 AssetBlacklist: strSlice(m, "asset_blacklist"),
 }
 out = append(out, w)
	}
	return out, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")
	v.SetDefault("log_level", "info")
	v.SetDefault("http_port", 8080)

	v.SetDefault("risk.assessment_interval", 30*time.Second)
	v.SetDefault("risk.var_confidence", 0.95)
	v.SetDefault("risk.lookback_days", 30)
	v.SetDefault("risk.cooldown_window", 5*time.Minute)
	v.SetDefault("risk.hysteresis_ticks", 3)
	v.SetDefault("risk.hysteresis_margin_pct", "10")

	v.SetDefault("sizing.method", "fixed")
	v.SetDefault("sizing.base_size", "100")
	v.SetDefault("sizing.min_size", "10")
	v.SetDefault("sizing.max_size", "10000")
	v.SetDefault("sizing.portfolio_percentage", "5")
	v.SetDefault("sizing.volatility_lookback", 30)
	v.SetDefault("sizing.kelly_lookback", 60)
	v.SetDefault("sizing.risk_free_rate", "0")
	v.SetDefault("sizing.max_leverage", "1")
	v.SetDefault("sizing.size_multiplier", "1")
	v.SetDefault("sizing.per_trade_risk_pct", "1")
	v.SetDefault("sizing.target_risk", "0.01")

	v.SetDefault("execution.max_retries", 3)
	v.SetDefault("execution.retry_base_delay", 500*time.Millisecond)
	v.SetDefault("execution.close_concurrency", 4)
	v.SetDefault("execution.stagger_delay", 2*time.Second)

	v.SetDefault("funds.dry_run", false)
	v.SetDefault("funds.balance_snapshot_interval", time.Minute)
	v.SetDefault("funds.gas_drip_interval", 5*time.Minute)
	v.SetDefault("funds.sweeper_interval", 5*time.Minute)
	v.SetDefault("funds.rebalancer_interval", 15*time.Minute)
	v.SetDefault("funds.gas_drip_concurrency", 5)
	v.SetDefault("funds.tolerance_band", "5")
	v.SetDefault("funds.min_rebalance_value_usd", "100")
	v.SetDefault("funds.max_single_trade_usd", "10000")

	v.SetDefault("backup.s3_bucket", "")
	v.SetDefault("backup.s3_region", "us-east-1")
	v.SetDefault("health.poll_interval", 30*time.Second)
}

func mustDec(v *viper.Viper, key string) decimal.Decimal {
	s := v.GetString(key)
	if s == "" {
 return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
 return decimal.Zero
	}
	return d
}

func str(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
 return v
	}
	return ""
}

func boolOr(m map[string]interface{}, key string) bool {
	if v, ok := m[key].(bool); ok {
 return v
	}
	return false
}

func decOr(m map[string]interface{}, key string) decimal.Decimal {
	s := str(m, key)
	if s == "" {
 return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
 return decimal.Zero
	}
	return d
}

func strSlice(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
 return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
 if s, ok := v.(string); ok {
 out = append(out, s)
 }
	}
	return out
}
