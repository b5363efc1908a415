package funds_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/collaborators"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/errs"
	"github.com/aristath/rpcp/internal/events"
	"github.com/aristath/rpcp/internal/funds"
	"github.com/aristath/rpcp/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSnapshotLoopFlagsGasAndSweepThresholds(t *testing.T) {
	st := newTestStore(t)
	reader := collaborators.NewFakeBalanceReader()
	reader.SetNative("hot-1", decimal.NewFromFloat(0.01)) // below gas min
	reader.SetAsset("hot-1", "USDT", decimal.NewFromInt(5000))

	market := collaborators.NewFakeMarketData()
	market.SetMark("BNB/USD", decimal.NewFromInt(500))

	wallets := []funds.WalletConfig{{
		Address: "hot-1", Group: domain.GroupHot, ReferenceAsset: "USD",
		TrackedAssets: []string{"USDT"}, GasMin: decimal.NewFromFloat(0.05), GasMax: decimal.NewFromFloat(0.2),
		SweepMin: decimal.NewFromInt(1000), SweepEnabled: true,
	}}
	cfg := funds.DefaultConfig()
	cfg.NativeAsset = "BNB"

	loop := funds.NewSnapshotLoop(st, clock.New(), reader, market, wallets, cfg, zerolog.Nop())
	require.NoError(t, loop.Tick(context.Background()))

	snaps, err := st.LatestBalanceSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	var nativeSnap, assetSnap domain.BalanceSnapshot
	for _, s := range snaps {
		if s.Asset == "BNB" {
			nativeSnap = s
		} else {
			assetSnap = s
		}
	}
	require.True(t, nativeSnap.BelowGasThreshold)
	require.True(t, assetSnap.AboveSweepThreshold)
}

func TestGasDripLoopTopsUpBelowGasWallet(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, st.InsertBalanceSnapshot(context.Background(), domain.BalanceSnapshot{
		WalletAddress: "hot-1", WalletGroup: domain.GroupHot, Asset: "BNB",
		Balance: decimal.NewFromFloat(0.01), BelowGasThreshold: true, ObservedAt: now,
	}))

	signer := collaborators.NewFakeSigner()
	bus := events.NewBus(zerolog.Nop())
	wallets := []funds.WalletConfig{{
		Address: "hot-1", Group: domain.GroupHot, GasMin: decimal.NewFromFloat(0.05), GasMax: decimal.NewFromFloat(0.2),
	}}
	cfg := funds.DefaultConfig()
	cfg.NativeAsset = "BNB"
	cfg.TreasuryWallet = "treasury-1"

	loop := funds.NewGasDripLoop(st, clock.New(), bus, signer, wallets, cfg, nil, zerolog.Nop())
	require.NoError(t, loop.Tick(context.Background()))

	jobs, err := st.PendingFundJobs(context.Background())
	require.NoError(t, err)
	require.Empty(t, jobs, "a confirmed top-up must terminalize, not stay pending")

	sent := signer.Sent()
	require.Len(t, sent, 1)
	require.True(t, sent[0].Amount.Equal(decimal.NewFromFloat(0.19)),
		"top-up must fill the gap to GasMax (0.2-0.01), not GasMax-GasMin (0.2-0.05)")
}

func TestGasDripLoopSkipsWalletWithPendingJob(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, st.InsertBalanceSnapshot(context.Background(), domain.BalanceSnapshot{
		WalletAddress: "hot-2", WalletGroup: domain.GroupHot, Asset: "BNB",
		Balance: decimal.NewFromFloat(0.01), BelowGasThreshold: true, ObservedAt: now,
	}))
	require.NoError(t, st.UpsertFundJob(context.Background(), domain.FundJob{
		ID: domain.NewID(), Kind: domain.JobGasTopUp, Status: domain.FundJobPending,
		TargetWallet: "hot-2", CreatedAt: now,
	}))

	signer := collaborators.NewFakeSigner()
	bus := events.NewBus(zerolog.Nop())
	wallets := []funds.WalletConfig{{Address: "hot-2", Group: domain.GroupHot, GasMin: decimal.NewFromFloat(0.05), GasMax: decimal.NewFromFloat(0.2)}}
	cfg := funds.DefaultConfig()
	cfg.NativeAsset = "BNB"

	loop := funds.NewGasDripLoop(st, clock.New(), bus, signer, wallets, cfg, nil, zerolog.Nop())
	require.NoError(t, loop.Tick(context.Background()))

	jobs, err := st.PendingFundJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1, "must not create a second top-up job while one is already pending")
}

func TestSweeperLoopSweepsExcessAsset(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, st.InsertBalanceSnapshot(context.Background(), domain.BalanceSnapshot{
		WalletAddress: "hot-3", WalletGroup: domain.GroupHot, Asset: "USDT",
		Balance: decimal.NewFromInt(5000), AboveSweepThreshold: true, ObservedAt: now,
	}))

	signer := collaborators.NewFakeSigner()
	bus := events.NewBus(zerolog.Nop())
	wallets := []funds.WalletConfig{{
		Address: "hot-3", Group: domain.GroupHot, SweepMin: decimal.NewFromInt(1000),
		SweepEnabled: true, LeavingAmount: decimal.NewFromInt(500),
	}}
	cfg := funds.DefaultConfig()
	cfg.NativeAsset = "BNB"
	cfg.TreasuryWallet = "treasury-1"

	loop := funds.NewSweeperLoop(st, clock.New(), bus, signer, wallets, cfg, nil, zerolog.Nop())
	require.NoError(t, loop.Tick(context.Background()))

	jobs, err := st.PendingFundJobs(context.Background())
	require.NoError(t, err)
	require.Empty(t, jobs)

	sent := signer.Sent()
	require.Len(t, sent, 1)
	require.True(t, sent[0].Amount.Equal(decimal.NewFromInt(4500)),
		"sweep must move balance minus leaving amount (5000-500)")
}

func TestSweeperLoopNeverSweepsNativeFromNonTreasury(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, st.InsertBalanceSnapshot(context.Background(), domain.BalanceSnapshot{
		WalletAddress: "hot-4", WalletGroup: domain.GroupHot, Asset: "BNB",
		Balance: decimal.NewFromInt(10), AboveSweepThreshold: true, ObservedAt: now,
	}))

	signer := collaborators.NewFakeSigner()
	bus := events.NewBus(zerolog.Nop())
	wallets := []funds.WalletConfig{{Address: "hot-4", Group: domain.GroupHot, SweepMin: decimal.NewFromInt(1), SweepEnabled: true}}
	cfg := funds.DefaultConfig()
	cfg.NativeAsset = "BNB"

	loop := funds.NewSweeperLoop(st, clock.New(), bus, signer, wallets, cfg, nil, zerolog.Nop())
	require.NoError(t, loop.Tick(context.Background()))

	jobs, err := st.PendingFundJobs(context.Background())
	require.NoError(t, err)
	require.Empty(t, jobs, "no job should be created for native coin on a non-treasury wallet")
	require.Empty(t, signer.Sent(), "native coin must never be transferred from a non-treasury wallet")
}

func TestRebalancerLoopEmitsJobWhenDriftExceedsTolerance(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, st.InsertBalanceSnapshot(context.Background(), domain.BalanceSnapshot{
		WalletAddress: "treasury-1", WalletGroup: domain.GroupTreasury, Asset: "BNB",
		Balance: decimal.NewFromInt(90), QuoteValue: decimal.NewFromInt(90000), ObservedAt: now,
	}))
	require.NoError(t, st.InsertBalanceSnapshot(context.Background(), domain.BalanceSnapshot{
		WalletAddress: "treasury-1", WalletGroup: domain.GroupTreasury, Asset: "USDT",
		Balance: decimal.NewFromInt(10000), QuoteValue: decimal.NewFromInt(10000), ObservedAt: now,
	}))

	bus := events.NewBus(zerolog.Nop())
	exec := collaborators.NewFakeExecutor()
	wallets := []funds.WalletConfig{{Address: "treasury-1", Group: domain.GroupTreasury}}
	cfg := funds.DefaultConfig()
	cfg.NativeAsset = "BNB"
	cfg.RebalanceTarget = map[string]decimal.Decimal{"BNB": decimal.NewFromInt(50), "USDT": decimal.NewFromInt(50)}
	cfg.ToleranceBand = decimal.NewFromInt(5)
	cfg.MinRebalanceValueUSD = decimal.NewFromInt(100)

	loop := funds.NewRebalancerLoop(st, clock.New(), bus, exec, wallets, domain.GroupTreasury, cfg, nil, zerolog.Nop())
	require.NoError(t, loop.Tick(context.Background()))

	jobs, err := st.PendingFundJobs(context.Background())
	require.NoError(t, err)
	require.Empty(t, jobs, "a successful rebalance trade must terminalize")
	require.NotEmpty(t, exec.Submitted(), "drift beyond tolerance must submit a rebalance trade")
}

func TestRebalancerLoopSkipsWhenWithinTolerance(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, st.InsertBalanceSnapshot(context.Background(), domain.BalanceSnapshot{
		WalletAddress: "treasury-1", WalletGroup: domain.GroupTreasury, Asset: "BNB",
		Balance: decimal.NewFromInt(51), QuoteValue: decimal.NewFromInt(51000), ObservedAt: now,
	}))
	require.NoError(t, st.InsertBalanceSnapshot(context.Background(), domain.BalanceSnapshot{
		WalletAddress: "treasury-1", WalletGroup: domain.GroupTreasury, Asset: "USDT",
		Balance: decimal.NewFromInt(49000), QuoteValue: decimal.NewFromInt(49000), ObservedAt: now,
	}))

	bus := events.NewBus(zerolog.Nop())
	exec := collaborators.NewFakeExecutor()
	wallets := []funds.WalletConfig{{Address: "treasury-1", Group: domain.GroupTreasury}}
	cfg := funds.DefaultConfig()
	cfg.RebalanceTarget = map[string]decimal.Decimal{"BNB": decimal.NewFromInt(50), "USDT": decimal.NewFromInt(50)}
	cfg.ToleranceBand = decimal.NewFromInt(5)

	loop := funds.NewRebalancerLoop(st, clock.New(), bus, exec, wallets, domain.GroupTreasury, cfg, nil, zerolog.Nop())
	require.NoError(t, loop.Tick(context.Background()))

	require.Empty(t, exec.Submitted(), "a 1%% drift inside a 5%% tolerance band must not trade")
}

func TestGasDripLoopHaltedSkipsTick(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, st.InsertBalanceSnapshot(context.Background(), domain.BalanceSnapshot{
		WalletAddress: "hot-5", WalletGroup: domain.GroupHot, Asset: "BNB",
		Balance: decimal.NewFromFloat(0.01), BelowGasThreshold: true, ObservedAt: now,
	}))

	signer := collaborators.NewFakeSigner()
	bus := events.NewBus(zerolog.Nop())
	wallets := []funds.WalletConfig{{Address: "hot-5", Group: domain.GroupHot, GasMin: decimal.NewFromFloat(0.05), GasMax: decimal.NewFromFloat(0.2)}}
	cfg := funds.DefaultConfig()
	cfg.NativeAsset = "BNB"
	halted := func() bool { return true }

	loop := funds.NewGasDripLoop(st, clock.New(), bus, signer, wallets, cfg, halted, zerolog.Nop())
	err := loop.Tick(context.Background())
	require.ErrorIs(t, err, errs.EmergencyHalted)

	jobs, err := st.PendingFundJobs(context.Background())
	require.NoError(t, err)
	require.Empty(t, jobs, "a halted tick must not create any job")
}
