package action_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rpcp/internal/action"
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

func baseAlert(kind domain.AlertKind, severity domain.Severity, entityType domain.EntityType, entityID string) domain.RiskAlert {
	return domain.RiskAlert{
		ID:           domain.NewID(),
		Kind:         kind,
		Severity:     severity,
		EntityType:   entityType,
		EntityID:     entityID,
		CurrentValue: decimal.NewFromInt(100),
		LimitValue:   decimal.NewFromInt(50),
		CooldownKey:  "test-key-" + entityID,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
}

func TestHandleAlertCreatesPositionReduceAction(t *testing.T) {
	st := newTestStore(t)
	bus := events.NewBus(zerolog.Nop())
	p := action.New(st, clock.New(), bus, nil, zerolog.Nop())

	alert := baseAlert(domain.AlertPositionSize, domain.SeverityHigh, domain.EntityPosition, "pos-1")
	require.NoError(t, st.UpsertAlert(context.Background(), alert))

	require.NoError(t, p.HandleAlert(context.Background(), alert.ID))

	got, err := st.FindActionByAlertAndKind(context.Background(), alert.ID, domain.ActionPositionReduce)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, domain.ActionPending, got.Status)
	require.Equal(t, "pos-1", got.Parameters["position_id"])
}

func TestHandleAlertIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	bus := events.NewBus(zerolog.Nop())
	p := action.New(st, clock.New(), bus, nil, zerolog.Nop())

	alert := baseAlert(domain.AlertUnrealizedLoss, domain.SeverityHigh, domain.EntityPosition, "pos-2")
	require.NoError(t, st.UpsertAlert(context.Background(), alert))

	require.NoError(t, p.HandleAlert(context.Background(), alert.ID))
	require.NoError(t, p.HandleAlert(context.Background(), alert.ID))

	actions, err := st.PendingActions(context.Background())
	require.NoError(t, err)
	count := 0
	for _, a := range actions {
		if a.TriggeringAlert == alert.ID {
			count++
		}
	}
	require.Equal(t, 1, count, "a second HandleAlert call must not create a duplicate action")
}

func TestHandleAlertBelowSeverityThresholdSkips(t *testing.T) {
	st := newTestStore(t)
	bus := events.NewBus(zerolog.Nop())
	p := action.New(st, clock.New(), bus, nil, zerolog.Nop())

	alert := baseAlert(domain.AlertPositionSize, domain.SeverityLow, domain.EntityPosition, "pos-3")
	require.NoError(t, st.UpsertAlert(context.Background(), alert))

	require.NoError(t, p.HandleAlert(context.Background(), alert.ID))

	got, err := st.FindActionByAlertAndKind(context.Background(), alert.ID, domain.ActionPositionReduce)
	require.NoError(t, err)
	require.Nil(t, got, "severity below the policy threshold must not create an action")
}

func TestHandleAlertEmergencyStopBypassesHaltFlag(t *testing.T) {
	st := newTestStore(t)
	bus := events.NewBus(zerolog.Nop())
	halted := func() bool { return true }
	p := action.New(st, clock.New(), bus, halted, zerolog.Nop())

	alert := baseAlert(domain.AlertPortfolioDrawdown, domain.SeverityCritical, domain.EntityPortfolio, "default")
	require.NoError(t, st.UpsertAlert(context.Background(), alert))

	require.NoError(t, p.HandleAlert(context.Background(), alert.ID))

	got, err := st.FindActionByAlertAndKind(context.Background(), alert.ID, domain.ActionEmergencyStop)
	require.NoError(t, err)
	require.NotNil(t, got, "emergency_stop actions must be created even while the emergency flag is set")
}

func TestHandleAlertHaltedBlocksNonEmergencyActions(t *testing.T) {
	st := newTestStore(t)
	bus := events.NewBus(zerolog.Nop())
	halted := func() bool { return true }
	p := action.New(st, clock.New(), bus, halted, zerolog.Nop())

	alert := baseAlert(domain.AlertPositionSize, domain.SeverityHigh, domain.EntityPosition, "pos-4")
	require.NoError(t, st.UpsertAlert(context.Background(), alert))

	err := p.HandleAlert(context.Background(), alert.ID)
	require.Error(t, err)
}
