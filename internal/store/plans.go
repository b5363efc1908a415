package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/rpcp/internal/domain"
)

// ErrPlanVersionConflict is returned when a caller tries to advance a plan
// whose stored version no longer matches the version it last read, meaning
// another driver already advanced it.
var ErrPlanVersionConflict = errors.New("store: plan version conflict")

// InsertPlan creates a brand new plan at version 0. The partial unique index
// on (position_id, type) for non-terminal statuses rejects a second
// concurrent plan for the same position and action kind;
// that constraint violation surfaces as an error here.
func (s *Store) InsertPlan(ctx context.Context, p domain.ExecutionPlan) error {
	_, err := s.q().ExecContext(ctx, `
 INSERT INTO execution_plans (id, risk_action_id, type, strategy, strategy_id, position_id,
 order_ids, status, created_at, expires_at, result, stagger_delay_ns, version)
 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
	`, p.ID, p.RiskActionID, string(p.Type), string(p.Strategy), p.StrategyID, p.PositionID,
 strings.Join(p.OrderIDs, ","), string(p.Status), timeStr(p.CreatedAt), timeStr(p.ExpiresAt),
 p.Result, p.StaggerDelay.Nanoseconds(), 0)
	if err != nil {
 return fmt.Errorf("store: insert plan %s: %w", p.ID, err)
	}
	return nil
}

// AdvancePlanStatus moves a plan to a new status, succeeding only if the
// stored version still equals expectedVersion (optimistic concurrency guard
// against two drivers racing to advance the same plan).
func (s *Store) AdvancePlanStatus(ctx context.Context, id string, expectedVersion int, to domain.PlanStatus, result string) error {
	res, err := s.q().ExecContext(ctx, `
 UPDATE execution_plans SET status = ?, result = ?, version = version + 1
 WHERE id = ? AND version = ?
	`, string(to), result, id, expectedVersion)
	if err != nil {
 return fmt.Errorf("store: advance plan %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
 return fmt.Errorf("store: advance plan %s: %w", id, err)
	}
	if n == 0 {
 return ErrPlanVersionConflict
	}
	return nil
}

// GetPlan loads one plan by id.
func (s *Store) GetPlan(ctx context.Context, id string) (domain.ExecutionPlan, error) {
	row := s.q().QueryRowContext(ctx, `
 SELECT id, risk_action_id, type, strategy, strategy_id, position_id, order_ids, status,
 created_at, expires_at, result, stagger_delay_ns, version
 FROM execution_plans WHERE id = ?
	`, id)
	return scanPlan(row)
}

// PlanForAction returns the plan materialized from a given action, or nil
// if none exists yet. Used by the execution driver to avoid building a
// second plan for an action it has already seen.
func (s *Store) PlanForAction(ctx context.Context, riskActionID string) (*domain.ExecutionPlan, error) {
	row := s.q().QueryRowContext(ctx, `
 SELECT id, risk_action_id, type, strategy, strategy_id, position_id, order_ids, status,
 created_at, expires_at, result, stagger_delay_ns, version
 FROM execution_plans WHERE risk_action_id = ?
	`, riskActionID)
	p, err := scanPlan(row)
	if err != nil {
 if errors.Is(err, sql.ErrNoRows) {
 return nil, nil
 }
 return nil, fmt.Errorf("store: plan for action %s: %w", riskActionID, err)
	}
	return &p, nil
}

// TerminalPlansSince returns every plan that reached a terminal status
// (completed/failed/expired/cancelled) created at or after since, for the
// backup archiver's periodic sweep.
func (s *Store) TerminalPlansSince(ctx context.Context, since time.Time) ([]domain.ExecutionPlan, error) {
	rows, err := s.q().QueryContext(ctx, `
 SELECT id, risk_action_id, type, strategy, strategy_id, position_id, order_ids, status,
 created_at, expires_at, result, stagger_delay_ns, version
 FROM execution_plans
 WHERE status IN ('completed','failed','expired','cancelled') AND created_at >= ?
 ORDER BY created_at ASC
	`, timeStr(since))
	if err != nil {
 return nil, fmt.Errorf("store: terminal plans since: %w", err)
	}
	defer rows.Close()
	var out []domain.ExecutionPlan
	for rows.Next() {
 p, err := scanPlan(rows)
 if err != nil {
 return nil, err
 }
 out = append(out, p)
	}
	return out, rows.Err()
}

// NonTerminalPlans returns every plan not yet in a terminal status, for
// restart-reload by the Executor.
func (s *Store) NonTerminalPlans(ctx context.Context) ([]domain.ExecutionPlan, error) {
	rows, err := s.q().QueryContext(ctx, `
 SELECT id, risk_action_id, type, strategy, strategy_id, position_id, order_ids, status,
 created_at, expires_at, result, stagger_delay_ns, version
 FROM execution_plans WHERE status IN ('pending','executing')
 ORDER BY created_at ASC
	`)
	if err != nil {
 return nil, fmt.Errorf("store: non-terminal plans: %w", err)
	}
	defer rows.Close()
	var out []domain.ExecutionPlan
	for rows.Next() {
 p, err := scanPlan(rows)
 if err != nil {
 return nil, err
 }
 out = append(out, p)
	}
	return out, rows.Err()
}

func scanPlan(row rowScanner) (domain.ExecutionPlan, error) {
	var p domain.ExecutionPlan
	var typ, strat, status, created, expires, orderIDs string
	var positionID sql.NullString
	var staggerNS int64
	if err := row.Scan(&p.ID, &p.RiskActionID, &typ, &strat, &p.StrategyID, &positionID, &orderIDs,
 &status, &created, &expires, &p.Result, &staggerNS, &p.Version); err != nil {
 if err == sql.ErrNoRows {
 return domain.ExecutionPlan{}, err
 }
 return domain.ExecutionPlan{}, fmt.Errorf("store: scan plan: %w", err)
	}
	p.Type = domain.PlanType(typ)
	p.Strategy = domain.PlanStrategy(strat)
	p.Status = domain.PlanStatus(status)
	p.CreatedAt = parseTime(created)
	p.ExpiresAt = parseTime(expires)
	p.StaggerDelay = durationFromNanos(staggerNS)
	if positionID.Valid {
 v := positionID.String
 p.PositionID = &v
	}
	if orderIDs != "" {
 p.OrderIDs = strings.Split(orderIDs, ",")
	}
	return p, nil
}

// UpsertOrder inserts a new execution order or overwrites one by id
// (conflict-merge), used both for initial creation and for fill/status updates.
func (s *Store) UpsertOrder(ctx context.Context, o domain.ExecutionOrder) error {
	_, err := s.q().ExecContext(ctx, `
 INSERT INTO execution_orders (id, plan_id, order_index, type, symbol, side, amount, limit_price,
 stop_price, tif, reduce_only, strategy_id, position_id, status, tx_ref, filled_amount,
 avg_fill_price, fees, attempts, created_at, updated_at)
 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
 ON CONFLICT(id) DO UPDATE SET
 status=excluded.status, tx_ref=excluded.tx_ref, filled_amount=excluded.filled_amount,
 avg_fill_price=excluded.avg_fill_price, fees=excluded.fees, attempts=excluded.attempts,
 updated_at=excluded.updated_at
	`, o.ID, o.PlanID, o.OrderIndex, string(o.Type), o.Symbol, string(o.Side), decStr(o.Amount),
 nullableDecStr(o.LimitPrice), nullableDecStr(o.StopPrice), string(o.TIF), boolInt(o.ReduceOnly),
 o.StrategyID, o.PositionID, string(o.Status), o.TxRef, decStr(o.FilledAmount), decStr(o.AvgFillPrice),
 decStr(o.Fees), o.Attempts, timeStr(o.CreatedAt), timeStr(o.UpdatedAt))
	if err != nil {
 return fmt.Errorf("store: upsert order %s: %w", o.ID, err)
	}
	return nil
}

// OrdersForPlan returns every order belonging to a plan, ordered by index.
func (s *Store) OrdersForPlan(ctx context.Context, planID string) ([]domain.ExecutionOrder, error) {
	rows, err := s.q().QueryContext(ctx, `
 SELECT id, plan_id, order_index, type, symbol, side, amount, limit_price, stop_price, tif,
 reduce_only, strategy_id, position_id, status, tx_ref, filled_amount, avg_fill_price, fees,
 attempts, created_at, updated_at
 FROM execution_orders WHERE plan_id = ? ORDER BY order_index ASC
	`, planID)
	if err != nil {
 return nil, fmt.Errorf("store: orders for plan %s: %w", planID, err)
	}
	defer rows.Close()
	var out []domain.ExecutionOrder
	for rows.Next() {
 o, err := scanOrder(rows)
 if err != nil {
 return nil, err
 }
 out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row rowScanner) (domain.ExecutionOrder, error) {
	var o domain.ExecutionOrder
	var typ, side, status, tif, created, updated string
	var amount, filled, avgFill, fees string
	var limitPrice, stopPrice sql.NullString
	var positionID sql.NullString
	var reduceOnly int
	if err := row.Scan(&o.ID, &o.PlanID, &o.OrderIndex, &typ, &o.Symbol, &side, &amount, &limitPrice,
 &stopPrice, &tif, &reduceOnly, &o.StrategyID, &positionID, &status, &o.TxRef, &filled, &avgFill,
 &fees, &o.Attempts, &created, &updated); err != nil {
 return domain.ExecutionOrder{}, fmt.Errorf("store: scan order: %w", err)
	}
	o.Type = domain.OrderType(typ)
	o.Side = domain.Side(side)
	o.Status = domain.OrderStatus(status)
	o.TIF = domain.TimeInForce(tif)
	o.ReduceOnly = reduceOnly != 0
	o.Amount = parseDec(amount)
	o.FilledAmount = parseDec(filled)
	o.AvgFillPrice = parseDec(avgFill)
	o.Fees = parseDec(fees)
	o.CreatedAt = parseTime(created)
	o.UpdatedAt = parseTime(updated)
	if limitPrice.Valid {
 d := parseDec(limitPrice.String)
 o.LimitPrice = &d
	}
	if stopPrice.Valid {
 d := parseDec(stopPrice.String)
 o.StopPrice = &d
	}
	if positionID.Valid {
 v := positionID.String
 o.PositionID = &v
	}
	return o, nil
}

func boolInt(b bool) int {
	if b {
 return 1
	}
	return 0
}
