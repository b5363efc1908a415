package health

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/events"
	"github.com/aristath/rpcp/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// thresholds set below zero guarantee every sample counts as exhaustion,
// independent of the actual host's load.
func alwaysBreachedThresholds() Thresholds {
	return Thresholds{MaxCPUPercent: -1, MaxMemPercent: -1, MaxDiskPercent: -1, DiskPath: "/"}
}

func TestTickRaisesSystemAlertOnExhaustion(t *testing.T) {
	st := newTestStore(t)
	bus := events.NewBus(zerolog.Nop())
	sub := bus.Subscribe(events.TopicAlertCreated)

	s := NewSampler(clock.New(), st, bus, alwaysBreachedThresholds(), time.Second, zerolog.Nop())
	s.tick(context.Background())

	select {
	case ev := <-sub:
		require.Equal(t, events.TopicAlertCreated, ev.Topic)
	case <-time.After(2 * time.Second):
		t.Fatal("expected risk.alert.created for host exhaustion")
	}

	alerts, err := st.ListAlerts(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, domain.AlertSystem, alerts[0].Kind)
	require.Equal(t, domain.ActionNotifyOnly, alerts[0].RecommendedAction)
}

func TestTickRefreshesRatherThanDuplicatesAlert(t *testing.T) {
	st := newTestStore(t)
	bus := events.NewBus(zerolog.Nop())

	s := NewSampler(clock.New(), st, bus, alwaysBreachedThresholds(), time.Second, zerolog.Nop())
	s.tick(context.Background())
	s.tick(context.Background())

	alerts, err := st.ListAlerts(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, alerts, 1, "repeated exhaustion must refresh one alert, not create a second")
	require.Equal(t, 1, alerts[0].RefreshCount)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	st := newTestStore(t)
	bus := events.NewBus(zerolog.Nop())
	clk := clock.NewVirtual(time.Now())

	s := NewSampler(clk, st, bus, DefaultThresholds(), time.Second, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return promptly after cancellation")
	}
}
