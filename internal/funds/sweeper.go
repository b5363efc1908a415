package funds

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/collaborators"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/errs"
	"github.com/aristath/rpcp/internal/events"
	"github.com/aristath/rpcp/internal/store"
)

// SweeperLoop is the Sweeper loop: moves excess asset balances from
// non-treasury wallets flagged above_sweep_threshold to a sweep target.
type SweeperLoop struct {
	store *store.Store
	clk clock.Clock
	bus *events.Bus
	signer collaborators.WalletSigner
	wallets map[string]WalletConfig
	cfg Config
	log zerolog.Logger
	emergencyHalted func() bool
}

// NewSweeperLoop constructs a SweeperLoop. emergencyHalted gates every tick:
// nil behaves as never-halted.
func NewSweeperLoop(st *store.Store, clk clock.Clock, bus *events.Bus, signer collaborators.WalletSigner, wallets []WalletConfig, cfg Config, emergencyHalted func() bool, log zerolog.Logger) *SweeperLoop {
	byAddr := make(map[string]WalletConfig, len(wallets))
	for _, w := range wallets {
 byAddr[w.Address] = w
	}
	if emergencyHalted == nil {
 emergencyHalted = func() bool { return false }
	}
	return &SweeperLoop{store: st, clk: clk, bus: bus, signer: signer, wallets: byAddr, cfg: cfg, emergencyHalted: emergencyHalted,
 log: log.With().Str("component", "funds.sweeper").Logger()}
}

// Run drives Tick off cfg.SweeperInterval until ctx is cancelled.
func (l *SweeperLoop) Run(ctx context.Context) {
	ticker := l.clk.NewTicker(l.cfg.SweeperInterval, l.cfg.SweeperInterval/10)
	defer ticker.Stop()
	for {
 select {
 case <-ctx.Done():
 return
 case <-ticker.C():
 if err := l.Tick(ctx); err != nil {
 l.log.Error().Err(err).Msg("sweeper tick failed")
 }
 }
	}
}

// Tick finds above-sweep-threshold (wallet, asset) pairs and creates one
// Sweep job per pair, respecting sweep_enabled and the asset
// whitelist/blacklist. Sweeping native coin from a non-treasury wallet is
// never allowed.
func (l *SweeperLoop) Tick(ctx context.Context) error {
	if l.emergencyHalted() {
 return errs.EmergencyHalted
	}
	snapshots, err := l.store.LatestBalanceSnapshots(ctx)
	if err != nil {
 return fmt.Errorf("funds: latest snapshots: %w", err)
	}
	pending, err := l.store.PendingFundJobs(ctx)
	if err != nil {
 return fmt.Errorf("funds: pending jobs: %w", err)
	}
	hasPendingSweep := make(map[string]bool, len(pending))
	for _, j := range pending {
 if j.Kind == domain.JobSweep {
 hasPendingSweep[j.SourceWallet+"/"+j.Asset] = true
 }
	}

	for _, s := range snapshots {
 w, ok := l.wallets[s.WalletAddress]
 if !ok || w.Group == domain.GroupTreasury || !w.SweepEnabled {
 continue
 }
 if !s.AboveSweepThreshold || s.Asset == l.cfg.NativeAsset {
 continue
 }
 if !w.SweepableAsset(s.Asset) {
 continue
 }
 key := s.WalletAddress + "/" + s.Asset
 if hasPendingSweep[key] {
 continue
 }
 if err := l.sweep(ctx, w, s); err != nil {
 l.log.Error().Err(err).Str("wallet", w.Address).Str("asset", s.Asset).Msg("sweep failed")
 }
	}
	return nil
}

func (l *SweeperLoop) sweep(ctx context.Context, w WalletConfig, s domain.BalanceSnapshot) error {
	now := l.clk.Now()
	target := w.SweepTarget
	if target == "" {
 target = l.cfg.TreasuryWallet
	}
	amount := s.Balance.Sub(w.LeavingAmount)
	if amount.LessThanOrEqual(decimal.Zero) {
 return nil
	}

	job := domain.FundJob{
 ID: domain.NewID(), Kind: domain.JobSweep, Status: domain.FundJobPending, CreatedAt: now,
 SourceWallet: w.Address, TargetWallet: target, Asset: s.Asset, Amount: amount, DryRun: l.cfg.DryRun,
	}
	if err := l.store.UpsertFundJob(ctx, job); err != nil {
 return fmt.Errorf("funds: persist sweep job: %w", err)
	}
	l.bus.Publish(events.TopicFundsJobCreated, map[string]interface{}{"job_id": job.ID, "kind": string(job.Kind)})

	if l.cfg.DryRun {
 job.Status = domain.FundJobCompleted
 job.Error = "dry-run: no transfer submitted"
 return l.finish(ctx, job)
	}

	job.Status = domain.FundJobExecuting
	if err := l.store.UpsertFundJob(ctx, job); err != nil {
 return fmt.Errorf("funds: persist executing sweep job: %w", err)
	}

	handle, err := l.signer.SignAndSend(ctx, w.Address, target, s.Asset, amount)
	if err != nil {
 job.Status = domain.FundJobFailed
 job.Error = err.Error()
 return l.finish(ctx, job)
	}
	confirmed, err := l.signer.WaitForConfirmation(ctx, handle, 0)
	if err != nil {
 job.Status = domain.FundJobFailed
 job.Error = err.Error()
 return l.finish(ctx, job)
	}
	job.TxRef = confirmed.TxRef
	if confirmed.Status == collaborators.TxConfirmed {
 job.Status = domain.FundJobCompleted
	} else {
 job.Status = domain.FundJobFailed
 job.Error = "transaction did not confirm"
	}
	return l.finish(ctx, job)
}

func (l *SweeperLoop) finish(ctx context.Context, job domain.FundJob) error {
	now := l.clk.Now()
	job.ExecutedAt = &now
	if err := l.store.UpsertFundJob(ctx, job); err != nil {
 return fmt.Errorf("funds: persist sweep result: %w", err)
	}
	if job.Status == domain.FundJobCompleted {
 l.bus.Publish(events.TopicFundsJobComplete, map[string]interface{}{"job_id": job.ID})
	} else {
 l.bus.Publish(events.TopicFundsJobFailed, map[string]interface{}{"job_id": job.ID, "error": job.Error})
	}
	return nil
}
