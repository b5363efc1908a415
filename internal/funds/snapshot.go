package funds

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/collaborators"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/store"
)

// SnapshotLoop is the balance-snapshot loop: enumerates managed
// wallets, reads native and tracked-asset balances, quotes to the reference
// currency, and flags gas/sweep thresholds.
type SnapshotLoop struct {
	store *store.Store
	clk clock.Clock
	reader collaborators.BalanceReader
	market collaborators.MarketDataProvider
	wallets []WalletConfig
	cfg Config
	log zerolog.Logger
}

// NewSnapshotLoop constructs a SnapshotLoop.
func NewSnapshotLoop(st *store.Store, clk clock.Clock, reader collaborators.BalanceReader, market collaborators.MarketDataProvider, wallets []WalletConfig, cfg Config, log zerolog.Logger) *SnapshotLoop {
	return &SnapshotLoop{store: st, clk: clk, reader: reader, market: market, wallets: wallets, cfg: cfg,
 log: log.With().Str("component", "funds.snapshot").Logger()}
}

// Run drives Tick off cfg.BalanceSnapshotInterval until ctx is cancelled.
func (l *SnapshotLoop) Run(ctx context.Context) {
	ticker := l.clk.NewTicker(l.cfg.BalanceSnapshotInterval, l.cfg.BalanceSnapshotInterval/10)
	defer ticker.Stop()
	for {
 select {
 case <-ctx.Done():
 return
 case <-ticker.C():
 if err := l.Tick(ctx); err != nil {
 l.log.Error().Err(err).Msg("balance snapshot tick failed")
 }
 }
	}
}

// Tick takes one balance snapshot of every managed wallet.
func (l *SnapshotLoop) Tick(ctx context.Context) error {
	now := l.clk.Now()
	for _, w := range l.wallets {
 if err := l.snapshotWallet(ctx, now, w); err != nil {
 l.log.Warn().Err(err).Str("wallet", w.Address).Msg("wallet snapshot failed, continuing")
 }
	}
	return nil
}

func (l *SnapshotLoop) snapshotWallet(ctx context.Context, now time.Time, w WalletConfig) error {
	native, err := l.reader.NativeBalance(ctx, w.Address)
	if err != nil {
 return fmt.Errorf("funds: native balance %s: %w", w.Address, err)
	}
	nativeQuote, err := l.quote(ctx, l.cfg.NativeAsset, w.ReferenceAsset, native)
	if err != nil {
 return err
	}
	belowGas := w.GasMin.GreaterThan(decimal.Zero) && native.LessThan(w.GasMin)
	snap := domain.BalanceSnapshot{
 WalletAddress: w.Address, WalletGroup: w.Group, Asset: l.cfg.NativeAsset,
 Balance: native, QuoteValue: nativeQuote, BelowGasThreshold: belowGas, ObservedAt: now,
	}
	if err := l.store.InsertBalanceSnapshot(ctx, snap); err != nil {
 return fmt.Errorf("funds: insert native snapshot %s: %w", w.Address, err)
	}

	for _, asset := range w.TrackedAssets {
 balance, err := l.reader.AssetBalance(ctx, w.Address, asset)
 if err != nil {
 l.log.Warn().Err(err).Str("wallet", w.Address).Str("asset", asset).Msg("asset balance read failed")
 continue
 }
 quote, err := l.quote(ctx, asset, w.ReferenceAsset, balance)
 if err != nil {
 l.log.Warn().Err(err).Str("wallet", w.Address).Str("asset", asset).Msg("asset quote failed")
 continue
 }
 aboveSweep := w.SweepMin.GreaterThan(decimal.Zero) && balance.GreaterThan(w.SweepMin)
 assetSnap := domain.BalanceSnapshot{
 WalletAddress: w.Address, WalletGroup: w.Group, Asset: asset,
 Balance: balance, QuoteValue: quote, AboveSweepThreshold: aboveSweep, ObservedAt: now,
 }
 if err := l.store.InsertBalanceSnapshot(ctx, assetSnap); err != nil {
 l.log.Warn().Err(err).Str("wallet", w.Address).Str("asset", asset).Msg("asset snapshot insert failed")
 }
	}
	return nil
}

// quote converts amount of asset into the reference currency via the
// market data provider's mark price. A quote against itself is the
// identity (used for, e.g., a USD-denominated reference asset balance).
func (l *SnapshotLoop) quote(ctx context.Context, asset, reference string, amount decimal.Decimal) (decimal.Decimal, error) {
	if asset == reference || reference == "" {
 return amount, nil
	}
	mark, err := l.market.GetMark(ctx, asset+"/"+reference)
	if err != nil {
 return decimal.Zero, fmt.Errorf("funds: quote %s/%s: %w", asset, reference, err)
	}
	return amount.Mul(mark), nil
}
