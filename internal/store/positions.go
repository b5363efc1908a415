package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/rpcp/internal/domain"
)

// UpsertPosition inserts or updates a position row (conflict-merge on id).
func (s *Store) UpsertPosition(ctx context.Context, p domain.Position) error {
	_, err := s.q().ExecContext(ctx, `
 INSERT INTO positions (id, strategy_id, symbol, side, quantity, avg_entry_price, current_mark,
 opened_at, status, stop_loss, take_profit, created_at, updated_at)
 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
 ON CONFLICT(id) DO UPDATE SET
 strategy_id=excluded.strategy_id, symbol=excluded.symbol, side=excluded.side,
 quantity=excluded.quantity, avg_entry_price=excluded.avg_entry_price,
 current_mark=excluded.current_mark, status=excluded.status,
 stop_loss=excluded.stop_loss, take_profit=excluded.take_profit,
 updated_at=excluded.updated_at
	`, p.ID, p.StrategyID, p.Symbol, string(p.Side), decStr(p.Quantity), decStr(p.AvgEntryPrice),
 decStr(p.CurrentMark), timeStr(p.OpenedAt), string(p.Status),
 nullableDecStr(p.StopLoss), nullableDecStr(p.TakeProfit), timeStr(p.CreatedAt), timeStr(p.UpdatedAt))
	if err != nil {
 return fmt.Errorf("store: upsert position %s: %w", p.ID, err)
	}
	return nil
}

// ActivePositions returns every position whose status is active or closing.
func (s *Store) ActivePositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.q().QueryContext(ctx, `
 SELECT id, strategy_id, symbol, side, quantity, avg_entry_price, current_mark,
 opened_at, status, stop_loss, take_profit, created_at, updated_at
 FROM positions WHERE status IN ('active','closing')
	`)
	if err != nil {
 return nil, fmt.Errorf("store: active positions: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

// GetPosition loads one position by id.
func (s *Store) GetPosition(ctx context.Context, id string) (domain.Position, error) {
	row := s.q().QueryRowContext(ctx, `
 SELECT id, strategy_id, symbol, side, quantity, avg_entry_price, current_mark,
 opened_at, status, stop_loss, take_profit, created_at, updated_at
 FROM positions WHERE id = ?
	`, id)
	return scanPosition(row)
}

func scanPositions(rows *sql.Rows) ([]domain.Position, error) {
	var out []domain.Position
	for rows.Next() {
 p, err := scanPositionRow(rows)
 if err != nil {
 return nil, err
 }
 out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest...any) error
}

func scanPosition(row *sql.Row) (domain.Position, error) {
	return scanPositionRow(row)
}

func scanPositionRow(row rowScanner) (domain.Position, error) {
	var p domain.Position
	var side, status, qty, avg, mark, opened, created, updated string
	var stopLoss, takeProfit sql.NullString
	if err := row.Scan(&p.ID, &p.StrategyID, &p.Symbol, &side, &qty, &avg, &mark,
 &opened, &status, &stopLoss, &takeProfit, &created, &updated); err != nil {
 return domain.Position{}, fmt.Errorf("store: scan position: %w", err)
	}
	p.Side = domain.Side(side)
	p.Status = domain.PositionStatus(status)
	p.Quantity = parseDec(qty)
	p.AvgEntryPrice = parseDec(avg)
	p.CurrentMark = parseDec(mark)
	p.OpenedAt = parseTime(opened)
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	if stopLoss.Valid {
 d := parseDec(stopLoss.String)
 p.StopLoss = &d
	}
	if takeProfit.Valid {
 d := parseDec(takeProfit.String)
 p.TakeProfit = &d
	}
	return p, nil
}
