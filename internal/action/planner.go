// Package action implements the Action Planner: it consumes alert-created
// events and enqueues a RiskAction per alert, applying the policy table of
// alert kind + severity threshold -> action kind.
package action

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/errs"
	"github.com/aristath/rpcp/internal/events"
	"github.com/aristath/rpcp/internal/store"
)

// DefaultReductionFraction is the position_reduce action's default size,
// applied when position-size/concentration alerts fire.
const DefaultReductionFraction = 0.30

// policyRule is one row of the alert -> action mapping table.
type policyRule struct {
	kind domain.AlertKind
	minSeverity domain.Severity
	action domain.ActionKind
}

var severityRank = map[domain.Severity]int{
	domain.SeverityLow: 0,
	domain.SeverityMedium: 1,
	domain.SeverityHigh: 2,
	domain.SeverityCritical: 3,
}

// defaultPolicy is the table, kept overridable via Planner.SetPolicy.
var defaultPolicy = []policyRule{
	{domain.AlertPositionSize, domain.SeverityHigh, domain.ActionPositionReduce},
	{domain.AlertConcentration, domain.SeverityHigh, domain.ActionPositionReduce},
	{domain.AlertUnrealizedLoss, domain.SeverityHigh, domain.ActionPositionClose},
	{domain.AlertStrategyDailyLoss, domain.SeverityHigh, domain.ActionStrategyPause},
	{domain.AlertPortfolioDrawdown, domain.SeverityCritical, domain.ActionEmergencyStop},
	{domain.AlertCorrelation, domain.SeverityMedium, domain.ActionNotifyOnly},
	{domain.AlertLiquidity, domain.SeverityMedium, domain.ActionNotifyOnly},
}

// Planner has no ticker of its own: it reacts to risk.alert.created events
// published by the Risk Assessor.
type Planner struct {
	store *store.Store
	clk clock.Clock
	bus *events.Bus
	policy []policyRule
	log zerolog.Logger

	emergencyHalted func() bool
}

// New constructs a Planner. emergencyHalted lets the Coordinator gate action
// creation without the Planner importing the coordinator package directly.
func New(st *store.Store, clk clock.Clock, bus *events.Bus, emergencyHalted func() bool, log zerolog.Logger) *Planner {
	if emergencyHalted == nil {
 emergencyHalted = func() bool { return false }
	}
	return &Planner{store: st, clk: clk, bus: bus, policy: defaultPolicy, emergencyHalted: emergencyHalted,
 log: log.With().Str("component", "action").Logger()}
}

// SetPolicy overrides the default alert -> action mapping table.
func (p *Planner) SetPolicy(policy []policyRule) { p.policy = policy }

// Run subscribes to risk.alert.created and processes each event as it arrives.
func (p *Planner) Run(ctx context.Context) {
	sub := p.bus.Subscribe(events.TopicAlertCreated)
	for {
 select {
 case <-ctx.Done():
 return
 case ev := <-sub:
 alertID, _ := ev.Data["alert_id"].(string)
 if alertID == "" {
 continue
 }
 if err := p.HandleAlert(ctx, alertID); err != nil {
 p.log.Error().Err(err).Str("alert_id", alertID).Msg("action planning failed")
 }
 }
	}
}

// HandleAlert maps one alert into a RiskAction, per the policy table.
// emergency_stop actions are always allowed through even while the emergency
// flag is set.
func (p *Planner) HandleAlert(ctx context.Context, alertID string) error {
	alert, err := p.store.GetAlert(ctx, alertID)
	if err != nil {
 return fmt.Errorf("action: get alert %s: %w", alertID, err)
	}
	if alert.IsResolved() {
 return nil
	}

	kind, ok := p.resolveAction(alert)
	if !ok {
 return nil
	}

	if kind != domain.ActionEmergencyStop && p.emergencyHalted() {
 return errs.EmergencyHalted
	}

	existing, err := p.store.FindActionByAlertAndKind(ctx, alertID, kind)
	if err != nil {
 return fmt.Errorf("action: lookup existing action: %w", err)
	}
	if existing != nil {
 return nil // idempotent: already created for this (alert, kind) pair
	}

	params := p.paramsFor(alert, kind)
	act := domain.RiskAction{
 ID: domain.NewID(),
 Kind: kind,
 TriggeringAlert: alertID,
 Parameters: params,
 Status: domain.ActionPending,
 CreatedAt: p.clk.Now(),
	}
	if err := p.store.UpsertAction(ctx, act); err != nil {
 return fmt.Errorf("action: persist action: %w", err)
	}
	p.bus.Publish(events.TopicActionCreated, map[string]interface{}{
 "action_id": act.ID, "kind": string(act.Kind), "triggering_alert": alertID,
	})
	return nil
}

func (p *Planner) resolveAction(alert domain.RiskAlert) (domain.ActionKind, bool) {
	for _, rule := range p.policy {
 if rule.kind != alert.Kind {
 continue
 }
 if severityRank[alert.Severity] < severityRank[rule.minSeverity] {
 continue
 }
 return rule.action, true
	}
	return "", false
}

func (p *Planner) paramsFor(alert domain.RiskAlert, kind domain.ActionKind) map[string]any {
	switch kind {
	case domain.ActionPositionReduce:
 return map[string]any{
 "position_id": alert.EntityID,
 "reduction_fraction": decimal.NewFromFloat(DefaultReductionFraction).String(),
 }
	case domain.ActionPositionClose:
 return map[string]any{"position_id": alert.EntityID}
	case domain.ActionStrategyPause:
 return map[string]any{"strategy_id": alert.EntityID}
	case domain.ActionEmergencyStop:
 return map[string]any{}
	default:
 return map[string]any{"entity_id": alert.EntityID, "entity_type": string(alert.EntityType)}
	}
}
