package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/events"
	"github.com/aristath/rpcp/internal/risk"
	riskhandlers "github.com/aristath/rpcp/internal/risk/handlers"
	"github.com/aristath/rpcp/internal/server"
	"github.com/aristath/rpcp/internal/store"
)

type stubHistory struct{}

func (stubHistory) Closes(context.Context, string, int) ([]float64, error) { return nil, nil }

type fakeEmergency struct {
	halted bool
	reason string
}

func (f *fakeEmergency) EmergencyHalted() bool { return f.halted }
func (f *fakeEmergency) TriggerEmergencyStop(reason string) {
	f.halted = true
	f.reason = reason
}
func (f *fakeEmergency) Resume() { f.halted = false }

func newTestServer(t *testing.T) (*httptest.Server, *store.Store, *fakeEmergency) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bus := events.NewBus(zerolog.Nop())
	assessor := risk.New(st, clock.New(), bus, stubHistory{}, risk.DefaultConfig(), zerolog.Nop())
	riskH := riskhandlers.New(st, assessor, nil)
	emergency := &fakeEmergency{}

	srv := server.New(server.Deps{
		Store:     st,
		Clock:     clock.New(),
		RiskH:     riskH,
		Emergency: emergency,
		Port:      0,
	}, zerolog.Nop())

	return httptest.NewServer(srv.Handler()), st, emergency
}

func TestEmergencyStatusReflectsController(t *testing.T) {
	ts, _, emergency := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/emergency/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var status map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.False(t, status["halted"])

	emergency.TriggerEmergencyStop("test")
	resp2, err := http.Get(ts.URL + "/api/emergency/status")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var status2 map[string]bool
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&status2))
	require.True(t, status2["halted"])
}

func TestEmergencyStopAndResumeEndpoints(t *testing.T) {
	ts, _, emergency := newTestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/emergency/stop?reason=manual", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, emergency.halted)
	require.Equal(t, "manual", emergency.reason)

	resp2, err := http.Post(ts.URL+"/api/emergency/resume", "application/json", nil)
	require.NoError(t, err)
	resp2.Body.Close()
	require.False(t, emergency.halted)
}

func TestListAlertsReturnsSeededAlert(t *testing.T) {
	ts, st, _ := newTestServer(t)
	defer ts.Close()

	now := time.Now().UTC()
	require.NoError(t, st.UpsertAlert(context.Background(), domain.RiskAlert{
		ID: domain.NewID(), Kind: domain.AlertPositionSize, Severity: domain.SeverityHigh,
		EntityType: domain.EntityPosition, EntityID: "pos-1", Message: "size breach",
		RecommendedAction: domain.ActionPositionReduce, CreatedAt: now, UpdatedAt: now,
	}))

	resp, err := http.Get(ts.URL + "/api/alerts?unresolved=true")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var alerts []domain.RiskAlert
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&alerts))
	require.Len(t, alerts, 1)
	require.Equal(t, "pos-1", alerts[0].EntityID)
}

func TestSetAndShowLimits(t *testing.T) {
	ts, _, _ := newTestServer(t)
	defer ts.Close()

	limits := domain.DefaultGlobalLimits()
	limits.MaxPositionSize = limits.MaxPositionSize.Add(limits.MaxPositionSize)
	body, err := json.Marshal(limits)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/limits", bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/api/limits")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var got []domain.RiskLimits
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&got))
	require.NotEmpty(t, got)
}
