package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/rpcp/internal/domain"
)

// FindOpenAlertByCooldownKey returns the most recent unresolved alert sharing
// cooldownKey, if any, so the caller can decide whether to refresh it
// instead of creating a duplicate.
func (s *Store) FindOpenAlertByCooldownKey(ctx context.Context, cooldownKey string) (*domain.RiskAlert, error) {
	row := s.q().QueryRowContext(ctx, `
 SELECT id, kind, severity, entity_type, entity_id, current_value, limit_value, message,
 recommended_action, cooldown_key, refresh_count, inside_limit_ticks, created_at, updated_at,
 resolved_at, resolved_by
 FROM risk_alerts WHERE cooldown_key = ? AND resolved_at IS NULL
 ORDER BY created_at DESC LIMIT 1
	`, cooldownKey)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
 return nil, nil
	}
	if err != nil {
 return nil, err
	}
	return &a, nil
}

// UpsertAlert inserts a new alert or overwrites an existing one by id
// (conflict-merge). Callers enforce the "resolved stays resolved" invariant
// by never clearing ResolvedAt once set.
func (s *Store) UpsertAlert(ctx context.Context, a domain.RiskAlert) error {
	_, err := s.q().ExecContext(ctx, `
 INSERT INTO risk_alerts (id, kind, severity, entity_type, entity_id, current_value, limit_value,
 message, recommended_action, cooldown_key, refresh_count, inside_limit_ticks, created_at,
 updated_at, resolved_at, resolved_by)
 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
 ON CONFLICT(id) DO UPDATE SET
 current_value=excluded.current_value, limit_value=excluded.limit_value,
 message=excluded.message, refresh_count=excluded.refresh_count,
 inside_limit_ticks=excluded.inside_limit_ticks, updated_at=excluded.updated_at,
 resolved_at=COALESCE(risk_alerts.resolved_at, excluded.resolved_at),
 resolved_by=CASE WHEN risk_alerts.resolved_at IS NULL THEN excluded.resolved_by ELSE risk_alerts.resolved_by END
	`, a.ID, string(a.Kind), string(a.Severity), string(a.EntityType), a.EntityID, decStr(a.CurrentValue),
 decStr(a.LimitValue), a.Message, string(a.RecommendedAction), a.CooldownKey, a.RefreshCount,
 a.InsideLimitTicks, timeStr(a.CreatedAt), timeStr(a.UpdatedAt), nullableTimeStr(a.ResolvedAt), a.ResolvedBy)
	if err != nil {
 return fmt.Errorf("store: upsert alert %s: %w", a.ID, err)
	}
	return nil
}

// GetAlert loads one alert by id.
func (s *Store) GetAlert(ctx context.Context, id string) (domain.RiskAlert, error) {
	row := s.q().QueryRowContext(ctx, `
 SELECT id, kind, severity, entity_type, entity_id, current_value, limit_value, message,
 recommended_action, cooldown_key, refresh_count, inside_limit_ticks, created_at, updated_at,
 resolved_at, resolved_by
 FROM risk_alerts WHERE id = ?
	`, id)
	return scanAlert(row)
}

// ListAlerts returns every alert, optionally filtered to unresolved only.
func (s *Store) ListAlerts(ctx context.Context, unresolvedOnly bool) ([]domain.RiskAlert, error) {
	query := `
 SELECT id, kind, severity, entity_type, entity_id, current_value, limit_value, message,
 recommended_action, cooldown_key, refresh_count, inside_limit_ticks, created_at, updated_at,
 resolved_at, resolved_by
 FROM risk_alerts`
	if unresolvedOnly {
 query += ` WHERE resolved_at IS NULL`
	}
	query += ` ORDER BY created_at ASC`
	rows, err := s.q().QueryContext(ctx, query)
	if err != nil {
 return nil, fmt.Errorf("store: list alerts: %w", err)
	}
	defer rows.Close()
	var out []domain.RiskAlert
	for rows.Next() {
 a, err := scanAlert(rows)
 if err != nil {
 return nil, err
 }
 out = append(out, a)
	}
	return out, rows.Err()
}

// PurgeResolvedAlertsBefore deletes resolved alerts whose resolution
// predates cutoff, for the Coordinator's nightly stale-alert GC job.
// Unresolved alerts are never purged regardless of age.
func (s *Store) PurgeResolvedAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.q().ExecContext(ctx, `
 DELETE FROM risk_alerts WHERE resolved_at IS NOT NULL AND resolved_at < ?
	`, timeStr(cutoff))
	if err != nil {
 return 0, fmt.Errorf("store: purge resolved alerts: %w", err)
	}
	return res.RowsAffected()
}

func scanAlert(row rowScanner) (domain.RiskAlert, error) {
	var a domain.RiskAlert
	var kind, sev, etype, created, updated string
	var resolvedAt sql.NullString
	var cur, lim string
	if err := row.Scan(&a.ID, &kind, &sev, &etype, &a.EntityID, &cur, &lim, &a.Message,
 (*string)(&a.RecommendedAction), &a.CooldownKey, &a.RefreshCount, &a.InsideLimitTicks,
 &created, &updated, &resolvedAt, &a.ResolvedBy); err != nil {
 if err == sql.ErrNoRows {
 return domain.RiskAlert{}, err
 }
 return domain.RiskAlert{}, fmt.Errorf("store: scan alert: %w", err)
	}
	a.Kind = domain.AlertKind(kind)
	a.Severity = domain.Severity(sev)
	a.EntityType = domain.EntityType(etype)
	a.CurrentValue = parseDec(cur)
	a.LimitValue = parseDec(lim)
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	if resolvedAt.Valid {
 t := parseTime(resolvedAt.String)
 a.ResolvedAt = &t
	}
	return a, nil
}
