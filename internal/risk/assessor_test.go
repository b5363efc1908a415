package risk_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/events"
	"github.com/aristath/rpcp/internal/risk"
	"github.com/aristath/rpcp/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedPosition(t *testing.T, st *store.Store, id string, qty, avgEntry, mark decimal.Decimal) domain.Position {
	t.Helper()
	now := time.Now().UTC()
	p := domain.Position{
		ID: id, StrategyID: "strat-1", Symbol: "BNB/USDT", Side: domain.SideLong, Quantity: qty,
		AvgEntryPrice: avgEntry, CurrentMark: mark, OpenedAt: now, Status: domain.PositionActive,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.UpsertPosition(context.Background(), p))
	return p
}

type closesHistory struct {
	closes []float64
	err    error
}

func (h closesHistory) Closes(ctx context.Context, symbol string, lookbackDays int) ([]float64, error) {
	return h.closes, h.err
}

func TestTickUpsertsPositionAndPortfolioRisk(t *testing.T) {
	st := newTestStore(t)
	seedPosition(t, st, "pos-1", decimal.NewFromInt(100), decimal.NewFromInt(10), decimal.NewFromInt(11))
	bus := events.NewBus(zerolog.Nop())
	history := closesHistory{closes: []float64{10, 10.2, 10.1, 10.5, 10.4, 10.8, 11}}

	a := risk.New(st, clock.New(), bus, history, risk.DefaultConfig(), zerolog.Nop())
	require.NoError(t, a.Tick(context.Background()))

	rows, err := st.PositionRiskRows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].Size.Equal(decimal.NewFromInt(1100)))

	pr, err := st.GetPortfolioRisk(context.Background(), "default")
	require.NoError(t, err)
	require.True(t, pr.PortfolioValue.Equal(decimal.NewFromInt(1100)))
}

func TestTickRaisesPositionSizeAlertOnBreach(t *testing.T) {
	st := newTestStore(t)
	seedPosition(t, st, "pos-1", decimal.NewFromInt(100000), decimal.NewFromInt(10), decimal.NewFromInt(10))
	bus := events.NewBus(zerolog.Nop())
	sub := bus.Subscribe(events.TopicAlertCreated)
	history := closesHistory{closes: []float64{10, 10, 10, 10, 10}}

	a := risk.New(st, clock.New(), bus, history, risk.DefaultConfig(), zerolog.Nop())
	require.NoError(t, a.Tick(context.Background()))

	select {
	case ev := <-sub:
		require.Equal(t, events.TopicAlertCreated, ev.Topic)
	case <-time.After(time.Second):
		t.Fatal("expected risk.alert.created for position size breach")
	}

	alerts, err := st.ListAlerts(context.Background(), true)
	require.NoError(t, err)
	require.NotEmpty(t, alerts)
	found := false
	for _, al := range alerts {
		if al.Kind == domain.AlertPositionSize && al.EntityID == "pos-1" {
			found = true
		}
	}
	require.True(t, found, "expected a position_size alert for pos-1")
}

func TestTickDoesNotDuplicateAlertOnRepeatedBreach(t *testing.T) {
	st := newTestStore(t)
	seedPosition(t, st, "pos-1", decimal.NewFromInt(100000), decimal.NewFromInt(10), decimal.NewFromInt(10))
	bus := events.NewBus(zerolog.Nop())
	history := closesHistory{closes: []float64{10, 10, 10, 10, 10}}

	a := risk.New(st, clock.New(), bus, history, risk.DefaultConfig(), zerolog.Nop())
	require.NoError(t, a.Tick(context.Background()))
	require.NoError(t, a.Tick(context.Background()))

	alerts, err := st.ListAlerts(context.Background(), true)
	require.NoError(t, err)
	count := 0
	for _, al := range alerts {
		if al.Kind == domain.AlertPositionSize && al.EntityID == "pos-1" {
			count++
		}
	}
	require.Equal(t, 1, count, "a repeated breach must refresh, not duplicate, the alert")
}

func TestTickPausesAssessorOnStoreFailure(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Close())
	bus := events.NewBus(zerolog.Nop())
	a := risk.New(st, clock.New(), bus, closesHistory{}, risk.DefaultConfig(), zerolog.Nop())

	require.False(t, a.Paused())
	err := a.Tick(context.Background())
	require.Error(t, err)
	require.True(t, a.Paused())

	a.Resume()
	require.False(t, a.Paused())
}
