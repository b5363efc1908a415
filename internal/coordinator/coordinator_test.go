package coordinator_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rpcp/internal/action"
	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/collaborators"
	"github.com/aristath/rpcp/internal/coordinator"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/events"
	"github.com/aristath/rpcp/internal/execution"
	"github.com/aristath/rpcp/internal/funds"
	"github.com/aristath/rpcp/internal/risk"
	"github.com/aristath/rpcp/internal/store"
)

type stubHistory struct{}

func (stubHistory) Closes(ctx context.Context, symbol string, lookbackDays int) ([]float64, error) {
	return nil, nil
}

func newTestCoordinator(t *testing.T) (*coordinator.Coordinator, *store.Store, *events.Bus) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	clk := clock.New()
	bus := events.NewBus(zerolog.Nop())
	fakeExec := collaborators.NewFakeExecutor()
	fakeSigner := collaborators.NewFakeSigner()
	fakeMarket := collaborators.NewFakeMarketData()
	fakeReader := collaborators.NewFakeBalanceReader()

	assessor := risk.New(st, clk, bus, stubHistory{}, risk.DefaultConfig(), zerolog.Nop())
	var halted func() bool
	planner := action.New(st, clk, bus, halted, zerolog.Nop())
	execPlanner := execution.NewPlanner(st, clk, fakeExec, execution.DefaultConfig())
	executor := execution.NewExecutor(st, clk, bus, fakeExec, execution.DefaultConfig(), halted, zerolog.Nop())
	driver := execution.NewDriver(execPlanner, executor, bus, st, zerolog.Nop())
	fundsCtl := funds.NewController(st, clk, bus, fakeReader, fakeMarket, fakeSigner, fakeExec,
		nil, domain.GroupHot, funds.DefaultConfig(), halted, zerolog.Nop())

	c := coordinator.New(st, clk, bus, assessor, planner, driver, executor, fundsCtl, zerolog.Nop())
	return c, st, bus
}

func TestTriggerEmergencyStopSetsFlagAndPublishes(t *testing.T) {
	c, _, bus := newTestCoordinator(t)
	sub := bus.Subscribe(events.TopicEmergencyActive)

	require.False(t, c.EmergencyHalted())
	c.TriggerEmergencyStop("manual test")
	require.True(t, c.EmergencyHalted())

	select {
	case ev := <-sub:
		require.Equal(t, events.TopicEmergencyActive, ev.Topic)
	case <-time.After(time.Second):
		t.Fatal("expected emergency.activated event")
	}

	// A second trigger while already halted must not double-publish.
	sub2 := bus.Subscribe(events.TopicEmergencyActive)
	c.TriggerEmergencyStop("second reason")
	select {
	case <-sub2:
		t.Fatal("must not re-publish once already halted")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestResumeClearsFlagAndPublishes(t *testing.T) {
	c, _, bus := newTestCoordinator(t)
	c.TriggerEmergencyStop("manual test")
	require.True(t, c.EmergencyHalted())

	sub := bus.Subscribe(events.TopicEmergencyResumed)
	c.Resume()
	require.False(t, c.EmergencyHalted())

	select {
	case ev := <-sub:
		require.Equal(t, events.TopicEmergencyResumed, ev.Topic)
	case <-time.After(time.Second):
		t.Fatal("expected emergency.resumed event")
	}
}

func TestWatchAlertsFlipsFlagOnCriticalEmergencyStopAlert(t *testing.T) {
	c, st, bus := newTestCoordinator(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	alert := domain.RiskAlert{
		ID: domain.NewID(), Kind: domain.AlertPortfolioDrawdown, Severity: domain.SeverityCritical,
		EntityType: domain.EntitySystem, EntityID: "rpcp", Message: "drawdown exceeded",
		RecommendedAction: domain.ActionEmergencyStop, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.UpsertAlert(context.Background(), alert))

	bus.Publish(events.TopicAlertCreated, map[string]interface{}{"alert_id": alert.ID})

	require.Eventually(t, c.EmergencyHalted, time.Second, 10*time.Millisecond)
}

func TestWatchAlertsIgnoresNonEmergencyAlert(t *testing.T) {
	c, st, bus := newTestCoordinator(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	alert := domain.RiskAlert{
		ID: domain.NewID(), Kind: domain.AlertPositionSize, Severity: domain.SeverityHigh,
		EntityType: domain.EntityPosition, EntityID: "pos-1", Message: "size breach",
		RecommendedAction: domain.ActionPositionReduce, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.UpsertAlert(context.Background(), alert))

	bus.Publish(events.TopicAlertCreated, map[string]interface{}{"alert_id": alert.ID})

	time.Sleep(100 * time.Millisecond)
	require.False(t, c.EmergencyHalted())
}
