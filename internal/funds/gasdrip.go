package funds

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/collaborators"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/errs"
	"github.com/aristath/rpcp/internal/events"
	"github.com/aristath/rpcp/internal/store"
)

// GasDripLoop is the Gas-Drip loop: tops up wallets flagged
// below_gas_threshold from the treasury, bounded by a concurrency cap.
type GasDripLoop struct {
	store *store.Store
	clk clock.Clock
	bus *events.Bus
	signer collaborators.WalletSigner
	wallets map[string]WalletConfig
	cfg Config
	log zerolog.Logger
	emergencyHalted func() bool
}

// NewGasDripLoop constructs a GasDripLoop. emergencyHalted gates every tick:
// nil behaves as never-halted.
func NewGasDripLoop(st *store.Store, clk clock.Clock, bus *events.Bus, signer collaborators.WalletSigner, wallets []WalletConfig, cfg Config, emergencyHalted func() bool, log zerolog.Logger) *GasDripLoop {
	byAddr := make(map[string]WalletConfig, len(wallets))
	for _, w := range wallets {
 byAddr[w.Address] = w
	}
	if emergencyHalted == nil {
 emergencyHalted = func() bool { return false }
	}
	return &GasDripLoop{store: st, clk: clk, bus: bus, signer: signer, wallets: byAddr, cfg: cfg, emergencyHalted: emergencyHalted,
 log: log.With().Str("component", "funds.gasdrip").Logger()}
}

// Run drives Tick off cfg.GasDripInterval until ctx is cancelled.
func (l *GasDripLoop) Run(ctx context.Context) {
	ticker := l.clk.NewTicker(l.cfg.GasDripInterval, l.cfg.GasDripInterval/10)
	defer ticker.Stop()
	for {
 select {
 case <-ctx.Done():
 return
 case <-ticker.C():
 if err := l.Tick(ctx); err != nil {
 l.log.Error().Err(err).Msg("gas-drip tick failed")
 }
 }
	}
}

// Tick finds wallets below their gas threshold with no pending top-up job
// and creates one for each, running under the configured concurrency cap.
func (l *GasDripLoop) Tick(ctx context.Context) error {
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
	hasPendingTopUp := make(map[string]bool, len(pending))
	for _, j := range pending {
 if j.Kind == domain.JobGasTopUp {
 hasPendingTopUp[j.TargetWallet] = true
 }
	}

	targetBalance := make(map[string]decimal.Decimal)
	var targets []string
	seen := make(map[string]bool)
	for _, s := range snapshots {
 w, ok := l.wallets[s.WalletAddress]
 if !ok || w.Group == domain.GroupTreasury {
 continue
 }
 if !s.BelowGasThreshold || hasPendingTopUp[s.WalletAddress] || seen[s.WalletAddress] {
 continue
 }
 seen[s.WalletAddress] = true
 targetBalance[s.WalletAddress] = s.Balance
 targets = append(targets, s.WalletAddress)
	}

	limit := l.cfg.GasDripConcurrency
	if limit <= 0 {
 limit = 1
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for _, addr := range targets {
 wg.Add(1)
 sem <- struct{}{}
 go func(addr string, balance decimal.Decimal) {
 defer wg.Done()
 defer func() { <-sem }()
 if err := l.topUp(ctx, addr, balance); err != nil {
 l.log.Error().Err(err).Str("wallet", addr).Msg("gas top-up failed")
 }
 }(addr, targetBalance[addr])
	}
	wg.Wait()
	return nil
}

// topUp sends enough native coin from the treasury for address to reach
// GasMax, given its current native balance at snapshot time.
func (l *GasDripLoop) topUp(ctx context.Context, address string, currentBalance decimal.Decimal) error {
	w := l.wallets[address]
	now := l.clk.Now()
	amount := w.GasMax.Sub(currentBalance)
	if !amount.IsPositive() {
 return nil
	}

	job := domain.FundJob{
 ID: domain.NewID(), Kind: domain.JobGasTopUp, Status: domain.FundJobPending,
 CreatedAt: now, TargetWallet: address, Amount: amount, DryRun: l.cfg.DryRun,
	}
	if err := l.store.UpsertFundJob(ctx, job); err != nil {
 return fmt.Errorf("funds: persist gas top-up job: %w", err)
	}
	l.bus.Publish(events.TopicFundsJobCreated, map[string]interface{}{"job_id": job.ID, "kind": string(job.Kind)})

	if l.cfg.DryRun {
 job.Status = domain.FundJobCompleted
 job.Error = "dry-run: no transfer submitted"
 return l.finish(ctx, job)
	}

	job.Status = domain.FundJobExecuting
	if err := l.store.UpsertFundJob(ctx, job); err != nil {
 return fmt.Errorf("funds: persist executing gas top-up job: %w", err)
	}

	handle, err := l.signer.SignAndSend(ctx, l.cfg.TreasuryWallet, address, l.cfg.NativeAsset, amount)
	if err != nil {
 job.Status = domain.FundJobFailed
 job.Error = err.Error()
 _ = l.finish(ctx, job)
 return fmt.Errorf("funds: gas top-up sign/send: %w", err)
	}
	confirmed, err := l.signer.WaitForConfirmation(ctx, handle, 0)
	if err != nil {
 job.Status = domain.FundJobFailed
 job.Error = err.Error()
 _ = l.finish(ctx, job)
 return fmt.Errorf("funds: gas top-up confirmation: %w", err)
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

func (l *GasDripLoop) finish(ctx context.Context, job domain.FundJob) error {
	now := l.clk.Now()
	job.ExecutedAt = &now
	if err := l.store.UpsertFundJob(ctx, job); err != nil {
 return fmt.Errorf("funds: persist gas top-up result: %w", err)
	}
	if job.Status == domain.FundJobCompleted {
 l.bus.Publish(events.TopicFundsJobComplete, map[string]interface{}{"job_id": job.ID})
	} else {
 l.bus.Publish(events.TopicFundsJobFailed, map[string]interface{}{"job_id": job.ID, "error": job.Error})
	}
	return nil
}
