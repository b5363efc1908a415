package execution_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/collaborators"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/events"
	"github.com/aristath/rpcp/internal/execution"
)

func TestDriverHandleActionBuildsDrivesAndCompletesAction(t *testing.T) {
	st := newTestStore(t)
	seedPosition(t, st, "pos-drv-1", domain.SideLong, decimal.NewFromInt(10))
	fakeExec := collaborators.NewFakeExecutor()
	planner := execution.NewPlanner(st, clock.New(), fakeExec, execution.DefaultConfig())
	bus := events.NewBus(zerolog.Nop())
	executor := execution.NewExecutor(st, clock.New(), bus, fakeExec, execution.DefaultConfig(), nil, zerolog.Nop())
	driver := execution.NewDriver(planner, executor, bus, st, zerolog.Nop())

	action := domain.RiskAction{
		ID: domain.NewID(), Kind: domain.ActionPositionReduce, Status: domain.ActionPending,
		Parameters: map[string]any{"position_id": "pos-drv-1", "reduction_fraction": "1"},
	}
	require.NoError(t, st.UpsertAction(context.Background(), action))

	require.NoError(t, driver.HandleAction(context.Background(), action.ID))

	got, err := st.GetAction(context.Background(), action.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ActionCompleted, got.Status)

	plan, err := st.PlanForAction(context.Background(), action.ID)
	require.NoError(t, err)
	require.NotNil(t, plan)
	require.Equal(t, domain.PlanCompleted, plan.Status)
}

func TestDriverHandleActionIsIdempotentForAlreadyPlannedAction(t *testing.T) {
	st := newTestStore(t)
	seedPosition(t, st, "pos-drv-2", domain.SideLong, decimal.NewFromInt(10))
	fakeExec := collaborators.NewFakeExecutor()
	planner := execution.NewPlanner(st, clock.New(), fakeExec, execution.DefaultConfig())
	bus := events.NewBus(zerolog.Nop())
	executor := execution.NewExecutor(st, clock.New(), bus, fakeExec, execution.DefaultConfig(), nil, zerolog.Nop())
	driver := execution.NewDriver(planner, executor, bus, st, zerolog.Nop())

	action := domain.RiskAction{
		ID: domain.NewID(), Kind: domain.ActionPositionClose, Status: domain.ActionPending,
		Parameters: map[string]any{"position_id": "pos-drv-2"},
	}
	require.NoError(t, st.UpsertAction(context.Background(), action))

	require.NoError(t, driver.HandleAction(context.Background(), action.ID))
	firstPlan, err := st.PlanForAction(context.Background(), action.ID)
	require.NoError(t, err)
	require.NotNil(t, firstPlan)

	// A second pass for the same action must not materialize a duplicate
	// plan, even though by then the action is no longer pending.
	require.NoError(t, driver.HandleAction(context.Background(), action.ID))
	secondPlan, err := st.PlanForAction(context.Background(), action.ID)
	require.NoError(t, err)
	require.NotNil(t, secondPlan)
	require.Equal(t, firstPlan.ID, secondPlan.ID)
}

func TestDriverSkipsActionNotPending(t *testing.T) {
	st := newTestStore(t)
	fakeExec := collaborators.NewFakeExecutor()
	planner := execution.NewPlanner(st, clock.New(), fakeExec, execution.DefaultConfig())
	bus := events.NewBus(zerolog.Nop())
	executor := execution.NewExecutor(st, clock.New(), bus, fakeExec, execution.DefaultConfig(), nil, zerolog.Nop())
	driver := execution.NewDriver(planner, executor, bus, st, zerolog.Nop())

	action := domain.RiskAction{ID: domain.NewID(), Kind: domain.ActionPositionClose, Status: domain.ActionCompleted}
	require.NoError(t, st.UpsertAction(context.Background(), action))

	require.NoError(t, driver.HandleAction(context.Background(), action.ID))

	plan, err := st.PlanForAction(context.Background(), action.ID)
	require.NoError(t, err)
	require.Nil(t, plan, "a non-pending action must never get a plan built for it")
}
