package execution_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/collaborators"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/execution"
	"github.com/aristath/rpcp/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedPosition(t *testing.T, st *store.Store, id string, side domain.Side, qty decimal.Decimal) domain.Position {
	t.Helper()
	now := time.Now().UTC()
	p := domain.Position{
		ID: id, StrategyID: "strat-1", Symbol: "BNB/USDT", Side: side, Quantity: qty,
		AvgEntryPrice: decimal.NewFromInt(500), CurrentMark: decimal.NewFromInt(520),
		OpenedAt: now, Status: domain.PositionActive, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.UpsertPosition(context.Background(), p))
	return p
}

func TestBuildPlanPositionReduce(t *testing.T) {
	st := newTestStore(t)
	seedPosition(t, st, "pos-1", domain.SideLong, decimal.NewFromInt(10))
	p := execution.NewPlanner(st, clock.New(), collaborators.NewFakeExecutor(), execution.DefaultConfig())

	action := domain.RiskAction{
		ID: domain.NewID(), Kind: domain.ActionPositionReduce,
		Parameters: map[string]any{"position_id": "pos-1", "reduction_fraction": "0.30"},
	}
	plan, err := p.BuildPlan(context.Background(), action)
	require.NoError(t, err)
	require.Equal(t, domain.PlanTypeReduce, plan.Type)
	require.Len(t, plan.OrderIDs, 1)

	orders, err := st.OrdersForPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.True(t, orders[0].Amount.Equal(decimal.NewFromInt(3)), "expected 30%% of 10 = 3, got %s", orders[0].Amount)
	require.True(t, orders[0].ReduceOnly)
	require.Equal(t, domain.OrderMarketSell, orders[0].Type)
	require.Equal(t, domain.TIFIOC, orders[0].TIF)
}

func TestBuildPlanPositionCloseUsesFullQuantity(t *testing.T) {
	st := newTestStore(t)
	seedPosition(t, st, "pos-2", domain.SideShort, decimal.NewFromInt(-8))
	p := execution.NewPlanner(st, clock.New(), collaborators.NewFakeExecutor(), execution.DefaultConfig())

	action := domain.RiskAction{
		ID: domain.NewID(), Kind: domain.ActionPositionClose,
		Parameters: map[string]any{"position_id": "pos-2"},
	}
	plan, err := p.BuildPlan(context.Background(), action)
	require.NoError(t, err)

	orders, err := st.OrdersForPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.True(t, orders[0].Amount.Equal(decimal.NewFromInt(8)))
	require.Equal(t, domain.OrderMarketBuy, orders[0].Type, "closing a short must buy")
}

func TestBuildPlanStrategyPauseCancelsEachOpenOrder(t *testing.T) {
	st := newTestStore(t)
	exec := collaborators.NewFakeExecutor()
	exec.SetOpenOrders("strat-1", []collaborators.OpenOrder{
		{OrderID: "ext-1", StrategyID: "strat-1", Symbol: "BNB/USDT"},
		{OrderID: "ext-2", StrategyID: "strat-1", Symbol: "ETH/USDT"},
	})
	p := execution.NewPlanner(st, clock.New(), exec, execution.DefaultConfig())

	action := domain.RiskAction{
		ID: domain.NewID(), Kind: domain.ActionStrategyPause,
		Parameters: map[string]any{"strategy_id": "strat-1"},
	}
	plan, err := p.BuildPlan(context.Background(), action)
	require.NoError(t, err)
	require.Equal(t, domain.PlanTypeStrategyPause, plan.Type)

	orders, err := st.OrdersForPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, o := range orders {
		require.Equal(t, domain.OrderCancel, o.Type)
	}
}

func TestBuildPlanEmergencyStopCancelsThenCloses(t *testing.T) {
	st := newTestStore(t)
	seedPosition(t, st, "pos-3", domain.SideLong, decimal.NewFromInt(5))
	exec := collaborators.NewFakeExecutor()
	exec.SetOpenOrders("strat-1", []collaborators.OpenOrder{{OrderID: "ext-9", StrategyID: "strat-1", Symbol: "BNB/USDT"}})
	p := execution.NewPlanner(st, clock.New(), exec, execution.DefaultConfig())

	action := domain.RiskAction{ID: domain.NewID(), Kind: domain.ActionEmergencyStop, Parameters: map[string]any{}}
	plan, err := p.BuildPlan(context.Background(), action)
	require.NoError(t, err)
	require.Equal(t, domain.PlanTypeEmergencyStop, plan.Type)

	orders, err := st.OrdersForPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, domain.OrderCancel, orders[0].Type, "cancels must be ordered before closes")
	require.NotEqual(t, domain.OrderCancel, orders[1].Type)
}

func TestBuildPlanRejectsMissingPositionID(t *testing.T) {
	st := newTestStore(t)
	p := execution.NewPlanner(st, clock.New(), collaborators.NewFakeExecutor(), execution.DefaultConfig())
	action := domain.RiskAction{ID: domain.NewID(), Kind: domain.ActionPositionReduce, Parameters: map[string]any{}}
	_, err := p.BuildPlan(context.Background(), action)
	require.Error(t, err)
}
