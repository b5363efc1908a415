// Package funds implements the Funds Controller: three independent,
// cooperatively scheduled loops (balance snapshot, gas-drip, sweeper) plus
// a rebalancer, all reading and writing through the shared balance-snapshot
// feed. Every loop supports dry-run mode.
package funds

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/rpcp/internal/domain"
)

// WalletConfig is one managed wallet's funds-policy configuration. Wallet
// membership and policy are operator-configured,
// not store-persisted: the set of wallets RPCP manages changes rarely and
// is provided at startup.
type WalletConfig struct {
	Address string
	Group domain.WalletGroup
	ReferenceAsset string // the quote currency balances are priced in

	TrackedAssets []string // non-native assets the snapshot loop observes

	GasMin decimal.Decimal // native balance below this marks below_gas_threshold
	GasMax decimal.Decimal // gas-drip tops up to this level

	SweepMin decimal.Decimal // asset balance above this marks above_sweep_threshold
	SweepEnabled bool
	SweepTarget string // destination wallet; defaults to the treasury wallet if empty
	LeavingAmount decimal.Decimal // amount left behind when sweeping
	AssetWhitelist []string // empty means "all tracked assets"
	AssetBlacklist []string
}

// SweepableAsset reports whether asset may be swept from this wallet under
// its whitelist/blacklist. It does not check for the native coin:
// SweeperLoop.Tick skips native-coin snapshots before calling it.
func (w WalletConfig) SweepableAsset(asset string) bool {
	if asset == "" {
 return false
	}
	if len(w.AssetWhitelist) > 0 {
 found := false
 for _, a := range w.AssetWhitelist {
 if a == asset {
 found = true
 break
 }
 }
 if !found {
 return false
 }
	}
	for _, a := range w.AssetBlacklist {
 if a == asset {
 return false
 }
	}
	return true
}

// Config holds the controller's per-loop tunables.
type Config struct {
	DryRun bool

	BalanceSnapshotInterval time.Duration
	GasDripInterval time.Duration
	SweeperInterval time.Duration
	RebalancerInterval time.Duration

	GasDripConcurrency int // default 5

	NativeAsset string // the chain's native coin symbol, e.g. "BNB"
	TreasuryWallet string // default sweep target

	RebalanceTarget map[string]decimal.Decimal // asset -> target allocation %
	ToleranceBand decimal.Decimal // % drift tolerated before rebalancing
	MinRebalanceValueUSD decimal.Decimal
	MaxSingleTradeUSD decimal.Decimal
}

// DefaultConfig returns the suggested defaults.
func DefaultConfig() Config {
	return Config{
 BalanceSnapshotInterval: 1 * time.Minute,
 GasDripInterval: 5 * time.Minute,
 SweeperInterval: 5 * time.Minute,
 RebalancerInterval: 15 * time.Minute,
 GasDripConcurrency: 5,
 ToleranceBand: decimal.NewFromInt(5),
 MinRebalanceValueUSD: decimal.NewFromInt(100),
 MaxSingleTradeUSD: decimal.NewFromInt(10000),
	}
}
