// Package handlers implements the slice of the operator command surface
// owned by the Risk Assessor: list positions/risks, list/resolve
// alerts, show/set limits, manual size calc, trigger assessment. These are
// transport-agnostic command methods, mounted later by internal/server.
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/risk"
	"github.com/aristath/rpcp/internal/sizer"
	"github.com/aristath/rpcp/internal/store"
)

// Handlers wraps the Store and Assessor into the command surface consumed by
// internal/server and any other adapter (CLI, cron job).
type Handlers struct {
	store *store.Store
	assessor *risk.Assessor
	sizer *sizer.Sizer
}

// New constructs a Handlers. sizer may be nil if manual size calc is not wired.
func New(st *store.Store, assessor *risk.Assessor, sz *sizer.Sizer) *Handlers {
	return &Handlers{store: st, assessor: assessor, sizer: sz}
}

// PositionRiskView pairs a position with its latest derived risk row.
type PositionRiskView struct {
	Position domain.Position
	Risk *domain.PositionRisk
}

// ListPositionsAndRisks returns every active position alongside its latest
// risk row, if one has been computed.
func (h *Handlers) ListPositionsAndRisks(ctx context.Context) ([]PositionRiskView, error) {
	positions, err := h.store.ActivePositions(ctx)
	if err != nil {
 return nil, fmt.Errorf("handlers: list positions: %w", err)
	}
	riskRows, err := h.store.PositionRiskRows(ctx)
	if err != nil {
 return nil, fmt.Errorf("handlers: list position risk: %w", err)
	}
	byID := make(map[string]domain.PositionRisk, len(riskRows))
	for _, r := range riskRows {
 byID[r.PositionID] = r
	}
	out := make([]PositionRiskView, 0, len(positions))
	for _, p := range positions {
 view := PositionRiskView{Position: p}
 if r, ok := byID[p.ID]; ok {
 rr := r
 view.Risk = &rr
 }
 out = append(out, view)
	}
	return out, nil
}

// ListAlerts returns alerts, optionally filtered to unresolved only.
func (h *Handlers) ListAlerts(ctx context.Context, unresolvedOnly bool) ([]domain.RiskAlert, error) {
	alerts, err := h.store.ListAlerts(ctx, unresolvedOnly)
	if err != nil {
 return nil, fmt.Errorf("handlers: list alerts: %w", err)
	}
	return alerts, nil
}

// ResolveAlert marks an alert resolved by an operator, bypassing the
// hysteresis wait.
func (h *Handlers) ResolveAlert(ctx context.Context, alertID, operator string, now time.Time) error {
	alert, err := h.store.GetAlert(ctx, alertID)
	if err != nil {
 return fmt.Errorf("handlers: get alert %s: %w", alertID, err)
	}
	alert.Resolve(now, operator)
	if err := h.store.UpsertAlert(ctx, alert); err != nil {
 return fmt.Errorf("handlers: resolve alert %s: %w", alertID, err)
	}
	return nil
}

// ShowLimits returns every configured RiskLimits row.
func (h *Handlers) ShowLimits(ctx context.Context) ([]domain.RiskLimits, error) {
	limits, err := h.store.AllRiskLimits(ctx)
	if err != nil {
 return nil, fmt.Errorf("handlers: show limits: %w", err)
	}
	return limits, nil
}

// SetLimits writes a scope-keyed RiskLimits row.
func (h *Handlers) SetLimits(ctx context.Context, limits domain.RiskLimits, now time.Time) error {
	if limits.CreatedAt.IsZero() {
 limits.CreatedAt = now
	}
	limits.UpdatedAt = now
	if err := h.store.UpsertRiskLimits(ctx, limits); err != nil {
 return fmt.Errorf("handlers: set limits %s: %w", limits.Scope, err)
	}
	return nil
}

// ManualSizeCalc runs the Position Sizer out-of-band, for operator
// what-if queries.
func (h *Handlers) ManualSizeCalc(ctx context.Context, req sizer.Request) (decimal.Decimal, error) {
	if h.sizer == nil {
 return decimal.Zero, fmt.Errorf("handlers: sizer not wired")
	}
	return h.sizer.Size(ctx, req)
}

// TriggerAssessment forces an out-of-band risk assessment tick.
func (h *Handlers) TriggerAssessment(ctx context.Context) error {
	return h.assessor.Tick(ctx)
}
