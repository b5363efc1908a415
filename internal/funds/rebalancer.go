package funds

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/collaborators"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/errs"
	"github.com/aristath/rpcp/internal/events"
	"github.com/aristath/rpcp/internal/store"
)

// RebalancerLoop is the Rebalancer: compares the current per-asset
// allocation over a wallet-group universe against a target allocation and
// emits Rebalance jobs to close the largest drift first.
type RebalancerLoop struct {
	store *store.Store
	clk clock.Clock
	bus *events.Bus
	executor collaborators.DexExecutor
	wallets []WalletConfig
	scope domain.WalletGroup
	cfg Config
	log zerolog.Logger
	emergencyHalted func() bool
}

// NewRebalancerLoop constructs a RebalancerLoop scoped to wallets in scope.
// executor drives the asset/reference swap for non-dry-run jobs.
// emergencyHalted gates every tick: nil behaves as never-halted.
func NewRebalancerLoop(st *store.Store, clk clock.Clock, bus *events.Bus, executor collaborators.DexExecutor, wallets []WalletConfig, scope domain.WalletGroup, cfg Config, emergencyHalted func() bool, log zerolog.Logger) *RebalancerLoop {
	if emergencyHalted == nil {
 emergencyHalted = func() bool { return false }
	}
	return &RebalancerLoop{store: st, clk: clk, bus: bus, executor: executor, wallets: wallets, scope: scope, cfg: cfg, emergencyHalted: emergencyHalted,
 log: log.With().Str("component", "funds.rebalancer").Logger()}
}

// Run drives Tick off cfg.RebalancerInterval until ctx is cancelled.
func (l *RebalancerLoop) Run(ctx context.Context) {
	ticker := l.clk.NewTicker(l.cfg.RebalancerInterval, l.cfg.RebalancerInterval/10)
	defer ticker.Stop()
	for {
 select {
 case <-ctx.Done():
 return
 case <-ticker.C():
 if err := l.Tick(ctx); err != nil {
 l.log.Error().Err(err).Msg("rebalancer tick failed")
 }
 }
	}
}

type allocation struct {
	asset string
	quoteValue decimal.Decimal
	pct decimal.Decimal
	drift decimal.Decimal // current pct - target pct; positive means overweight
}

// Tick computes the current allocation across the scoped wallet universe,
// compares it against cfg.RebalanceTarget, and emits capped Rebalance jobs
// for assets whose drift exceeds the tolerance band and trade value.
func (l *RebalancerLoop) Tick(ctx context.Context) error {
	if l.emergencyHalted() {
 return errs.EmergencyHalted
	}
	snapshots, err := l.store.LatestBalanceSnapshots(ctx)
	if err != nil {
 return fmt.Errorf("funds: latest snapshots: %w", err)
	}
	inScope := make(map[string]bool, len(l.wallets))
	for _, w := range l.wallets {
 if w.Group == l.scope {
 inScope[w.Address] = true
 }
	}

	totals := make(map[string]decimal.Decimal)
	total := decimal.Zero
	for _, s := range snapshots {
 if !inScope[s.WalletAddress] {
 continue
 }
 totals[s.Asset] = totals[s.Asset].Add(s.QuoteValue)
 total = total.Add(s.QuoteValue)
	}
	if total.LessThanOrEqual(decimal.Zero) {
 return nil
	}

	allocs := make([]allocation, 0, len(totals))
	maxAbsDrift := decimal.Zero
	for asset, quoteValue := range totals {
 pct := quoteValue.Div(total).Mul(decimal.NewFromInt(100))
 target := l.cfg.RebalanceTarget[asset]
 drift := pct.Sub(target)
 allocs = append(allocs, allocation{asset: asset, quoteValue: quoteValue, pct: pct, drift: drift})
 if drift.Abs().GreaterThan(maxAbsDrift) {
 maxAbsDrift = drift.Abs()
 }
	}
	if maxAbsDrift.LessThanOrEqual(l.cfg.ToleranceBand) {
 return nil
	}

	sort.Slice(allocs, func(i, j int) bool { return allocs[i].drift.Abs().GreaterThan(allocs[j].drift.Abs()) })

	now := l.clk.Now()
	for _, a := range allocs {
 if a.drift.Abs().LessThanOrEqual(l.cfg.ToleranceBand) {
 continue
 }
 tradeValue := a.drift.Abs().Div(decimal.NewFromInt(100)).Mul(total)
 if tradeValue.LessThan(l.cfg.MinRebalanceValueUSD) {
 continue
 }
 if tradeValue.GreaterThan(l.cfg.MaxSingleTradeUSD) {
 tradeValue = l.cfg.MaxSingleTradeUSD
 }
 side := domain.SideShort // overweight: sell down to target
 if a.drift.IsNegative() {
 side = domain.SideLong // underweight: buy up to target
 }
 job := domain.FundJob{
 ID: domain.NewID(), Kind: domain.JobRebalance, Status: domain.FundJobPending, CreatedAt: now,
 WalletGroupScope: l.scope, DryRun: l.cfg.DryRun,
 ProposedTrades: []domain.RebalanceTrade{{Asset: a.asset, Side: side, Amount: tradeValue}},
 }
 if err := l.store.UpsertFundJob(ctx, job); err != nil {
 return fmt.Errorf("funds: persist rebalance job: %w", err)
 }
 l.bus.Publish(events.TopicFundsJobCreated, map[string]interface{}{"job_id": job.ID, "kind": string(job.Kind), "asset": a.asset})

 if err := l.settle(ctx, job, a.asset, side, tradeValue); err != nil {
 l.log.Error().Err(err).Str("job", job.ID).Msg("rebalance trade settlement failed")
 }
	}
	return nil
}

func (l *RebalancerLoop) settle(ctx context.Context, job domain.FundJob, asset string, side domain.Side, tradeValue decimal.Decimal) error {
	now := l.clk.Now()
	if l.cfg.DryRun {
 job.Status = domain.FundJobCompleted
 job.Error = "dry-run: no trade submitted"
	} else {
 dexSide := "sell"
 if side == domain.SideLong {
 dexSide = "buy"
 }
 _, err := l.executor.Submit(ctx, collaborators.SubmitArgs{
 OrderID: job.ID, Symbol: asset + "/" + l.cfg.NativeAsset, Side: dexSide, Amount: tradeValue,
 })
 if err != nil {
 job.Status = domain.FundJobFailed
 job.Error = err.Error()
 } else {
 job.Status = domain.FundJobCompleted
 }
	}
	job.ExecutedAt = &now
	if err := l.store.UpsertFundJob(ctx, job); err != nil {
 return fmt.Errorf("funds: persist rebalance result: %w", err)
	}
	if job.Status == domain.FundJobCompleted {
 l.bus.Publish(events.TopicFundsJobComplete, map[string]interface{}{"job_id": job.ID})
	} else {
 l.bus.Publish(events.TopicFundsJobFailed, map[string]interface{}{"job_id": job.ID, "error": job.Error})
	}
	return nil
}
