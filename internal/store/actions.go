package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/rpcp/internal/domain"
)

// UpsertAction inserts or overwrites a risk action by id.
func (s *Store) UpsertAction(ctx context.Context, a domain.RiskAction) error {
	params, err := encodeBlob(a.Parameters)
	if err != nil {
 return fmt.Errorf("store: encode action params %s: %w", a.ID, err)
	}
	_, err = s.q().ExecContext(ctx, `
 INSERT INTO risk_actions (id, kind, triggering_alert, parameters, status, created_at, executed_at, result)
 VALUES (?,?,?,?,?,?,?,?)
 ON CONFLICT(id) DO UPDATE SET
 status=excluded.status, executed_at=excluded.executed_at, result=excluded.result
	`, a.ID, string(a.Kind), a.TriggeringAlert, params, string(a.Status), timeStr(a.CreatedAt),
 nullableTimeStr(a.ExecutedAt), a.Result)
	if err != nil {
 return fmt.Errorf("store: upsert action %s: %w", a.ID, err)
	}
	return nil
}

// FindActionByAlertAndKind returns the action already created for
// (triggeringAlert, kind), if any, so the Action Planner can stay idempotent
// within an alert's cooldown window instead of spawning duplicate actions.
func (s *Store) FindActionByAlertAndKind(ctx context.Context, triggeringAlert string, kind domain.ActionKind) (*domain.RiskAction, error) {
	row := s.q().QueryRowContext(ctx, `
 SELECT id, kind, triggering_alert, parameters, status, created_at, executed_at, result
 FROM risk_actions WHERE triggering_alert = ? AND kind = ?
 ORDER BY created_at DESC LIMIT 1
	`, triggeringAlert, string(kind))
	a, err := scanAction(row)
	if err == sql.ErrNoRows {
 return nil, nil
	}
	if err != nil {
 return nil, err
	}
	return &a, nil
}

// GetAction loads one action by id.
func (s *Store) GetAction(ctx context.Context, id string) (domain.RiskAction, error) {
	row := s.q().QueryRowContext(ctx, `
 SELECT id, kind, triggering_alert, parameters, status, created_at, executed_at, result
 FROM risk_actions WHERE id = ?
	`, id)
	return scanAction(row)
}

// PendingActions returns every action not yet in a terminal status, for
// restart-reload by the Action Planner / Execution Planner.
func (s *Store) PendingActions(ctx context.Context) ([]domain.RiskAction, error) {
	rows, err := s.q().QueryContext(ctx, `
 SELECT id, kind, triggering_alert, parameters, status, created_at, executed_at, result
 FROM risk_actions WHERE status IN ('pending','executing')
 ORDER BY created_at ASC
	`)
	if err != nil {
 return nil, fmt.Errorf("store: pending actions: %w", err)
	}
	defer rows.Close()
	var out []domain.RiskAction
	for rows.Next() {
 a, err := scanAction(rows)
 if err != nil {
 return nil, err
 }
 out = append(out, a)
	}
	return out, rows.Err()
}

func scanAction(row rowScanner) (domain.RiskAction, error) {
	var a domain.RiskAction
	var kind, status, created string
	var executedAt sql.NullString
	var params []byte
	if err := row.Scan(&a.ID, &kind, &a.TriggeringAlert, &params, &status, &created, &executedAt, &a.Result); err != nil {
 if err == sql.ErrNoRows {
 return domain.RiskAction{}, err
 }
 return domain.RiskAction{}, fmt.Errorf("store: scan action: %w", err)
	}
	a.Kind = domain.ActionKind(kind)
	a.Status = domain.ActionStatus(status)
	a.CreatedAt = parseTime(created)
	if executedAt.Valid {
 t := parseTime(executedAt.String)
 a.ExecutedAt = &t
	}
	if len(params) > 0 {
 var m map[string]any
 if err := decodeBlob(params, &m); err != nil {
 return domain.RiskAction{}, fmt.Errorf("store: decode action params: %w", err)
 }
 a.Parameters = m
	}
	return a, nil
}
