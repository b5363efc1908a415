package funds

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/collaborators"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/events"
	"github.com/aristath/rpcp/internal/store"
)

// Controller owns the four funds loops as one unit of lifecycle: the
// balance snapshot feeds gas-drip, sweeper and rebalancer, all of which
// read from the same shared store but otherwise run independently.
type Controller struct {
	Snapshot *SnapshotLoop
	GasDrip *GasDripLoop
	Sweeper *SweeperLoop
	Rebalancer *RebalancerLoop
}

// NewController wires the four loops from a shared wallet registry and
// collaborator set. emergencyHalted gates every write-side loop (all but
// Snapshot, which only observes).
func NewController(st *store.Store, clk clock.Clock, bus *events.Bus, reader collaborators.BalanceReader,
	market collaborators.MarketDataProvider, signer collaborators.WalletSigner, executor collaborators.DexExecutor,
	wallets []WalletConfig, rebalanceScope domain.WalletGroup, cfg Config, emergencyHalted func() bool, log zerolog.Logger) *Controller {
	return &Controller{
 Snapshot: NewSnapshotLoop(st, clk, reader, market, wallets, cfg, log),
 GasDrip: NewGasDripLoop(st, clk, bus, signer, wallets, cfg, emergencyHalted, log),
 Sweeper: NewSweeperLoop(st, clk, bus, signer, wallets, cfg, emergencyHalted, log),
 Rebalancer: NewRebalancerLoop(st, clk, bus, executor, wallets, rebalanceScope, cfg, emergencyHalted, log),
	}
}

// Run starts all four loops and blocks until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	go c.Snapshot.Run(ctx)
	go c.GasDrip.Run(ctx)
	go c.Sweeper.Run(ctx)
	go c.Rebalancer.Run(ctx)
	<-ctx.Done()
}
