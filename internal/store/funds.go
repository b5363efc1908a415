package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/rpcp/internal/domain"
)

// InsertBalanceSnapshot appends one observation. Snapshots are never
// updated in place: the primary key is (wallet, asset, observed_at), so
// every tick writes a fresh row and history accumulates for drift/trend
// queries.
func (s *Store) InsertBalanceSnapshot(ctx context.Context, b domain.BalanceSnapshot) error {
	_, err := s.q().ExecContext(ctx, `
 INSERT INTO balance_snapshots (wallet_address, wallet_group, asset, balance, quote_value,
 below_gas_threshold, above_sweep_threshold, observed_at)
 VALUES (?,?,?,?,?,?,?,?)
 ON CONFLICT(wallet_address, asset, observed_at) DO NOTHING
	`, b.WalletAddress, string(b.WalletGroup), b.Asset, decStr(b.Balance), decStr(b.QuoteValue),
 boolInt(b.BelowGasThreshold), boolInt(b.AboveSweepThreshold), timeStr(b.ObservedAt))
	if err != nil {
 return fmt.Errorf("store: insert balance snapshot %s/%s: %w", b.WalletAddress, b.Asset, err)
	}
	return nil
}

// LatestBalanceSnapshots returns the most recent observation per
// (wallet, asset) pair, the working set the Funds Controller reasons over.
func (s *Store) LatestBalanceSnapshots(ctx context.Context) ([]domain.BalanceSnapshot, error) {
	rows, err := s.q().QueryContext(ctx, `
 SELECT b.wallet_address, b.wallet_group, b.asset, b.balance, b.quote_value,
 b.below_gas_threshold, b.above_sweep_threshold, b.observed_at
 FROM balance_snapshots b
 INNER JOIN (
 SELECT wallet_address, asset, MAX(observed_at) AS max_observed
 FROM balance_snapshots GROUP BY wallet_address, asset
 ) latest ON b.wallet_address = latest.wallet_address AND b.asset = latest.asset
 AND b.observed_at = latest.max_observed
	`)
	if err != nil {
 return nil, fmt.Errorf("store: latest balance snapshots: %w", err)
	}
	defer rows.Close()
	var out []domain.BalanceSnapshot
	for rows.Next() {
 var b domain.BalanceSnapshot
 var group, bal, qv, observed string
 var belowGas, aboveSweep int
 if err := rows.Scan(&b.WalletAddress, &group, &b.Asset, &bal, &qv, &belowGas, &aboveSweep, &observed); err != nil {
 return nil, err
 }
 b.WalletGroup = domain.WalletGroup(group)
 b.Balance = parseDec(bal)
 b.QuoteValue = parseDec(qv)
 b.BelowGasThreshold = belowGas != 0
 b.AboveSweepThreshold = aboveSweep != 0
 b.ObservedAt = parseTime(observed)
 out = append(out, b)
	}
	return out, rows.Err()
}

// UpsertFundJob inserts or overwrites a fund job by id.
func (s *Store) UpsertFundJob(ctx context.Context, j domain.FundJob) error {
	trades, err := encodeBlob(j.ProposedTrades)
	if err != nil {
 return fmt.Errorf("store: encode fund job trades %s: %w", j.ID, err)
	}
	_, err = s.q().ExecContext(ctx, `
 INSERT INTO fund_jobs (id, kind, status, created_at, executed_at, tx_ref, dry_run, error,
 target_wallet, amount, source_wallet, asset, wallet_group_scope, proposed_trades)
 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
 ON CONFLICT(id) DO UPDATE SET
 status=excluded.status, executed_at=excluded.executed_at, tx_ref=excluded.tx_ref,
 error=excluded.error
	`, j.ID, string(j.Kind), string(j.Status), timeStr(j.CreatedAt), nullableTimeStr(j.ExecutedAt),
 j.TxRef, boolInt(j.DryRun), j.Error, j.TargetWallet, decStr(j.Amount), j.SourceWallet, j.Asset,
 string(j.WalletGroupScope), trades)
	if err != nil {
 return fmt.Errorf("store: upsert fund job %s: %w", j.ID, err)
	}
	return nil
}

// GetFundJob loads one fund job by id.
func (s *Store) GetFundJob(ctx context.Context, id string) (domain.FundJob, error) {
	row := s.q().QueryRowContext(ctx, `
 SELECT id, kind, status, created_at, executed_at, tx_ref, dry_run, error, target_wallet, amount,
 source_wallet, asset, wallet_group_scope, proposed_trades
 FROM fund_jobs WHERE id = ?
	`, id)
	return scanFundJob(row)
}

// PendingFundJobs returns every job not yet in a terminal status.
func (s *Store) PendingFundJobs(ctx context.Context) ([]domain.FundJob, error) {
	rows, err := s.q().QueryContext(ctx, `
 SELECT id, kind, status, created_at, executed_at, tx_ref, dry_run, error, target_wallet, amount,
 source_wallet, asset, wallet_group_scope, proposed_trades
 FROM fund_jobs WHERE status IN ('pending','executing')
 ORDER BY created_at ASC
	`)
	if err != nil {
 return nil, fmt.Errorf("store: pending fund jobs: %w", err)
	}
	defer rows.Close()
	var out []domain.FundJob
	for rows.Next() {
 j, err := scanFundJob(rows)
 if err != nil {
 return nil, err
 }
 out = append(out, j)
	}
	return out, rows.Err()
}

func scanFundJob(row rowScanner) (domain.FundJob, error) {
	var j domain.FundJob
	var kind, status, created, amount, scope string
	var executedAt sql.NullString
	var dryRun int
	var trades []byte
	if err := row.Scan(&j.ID, &kind, &status, &created, &executedAt, &j.TxRef, &dryRun, &j.Error,
 &j.TargetWallet, &amount, &j.SourceWallet, &j.Asset, &scope, &trades); err != nil {
 if err == sql.ErrNoRows {
 return domain.FundJob{}, err
 }
 return domain.FundJob{}, fmt.Errorf("store: scan fund job: %w", err)
	}
	j.Kind = domain.FundJobKind(kind)
	j.Status = domain.FundJobStatus(status)
	j.CreatedAt = parseTime(created)
	j.DryRun = dryRun != 0
	j.Amount = parseDec(amount)
	j.WalletGroupScope = domain.WalletGroup(scope)
	if executedAt.Valid {
 t := parseTime(executedAt.String)
 j.ExecutedAt = &t
	}
	if len(trades) > 0 {
 var ts []domain.RebalanceTrade
 if err := decodeBlob(trades, &ts); err != nil {
 return domain.FundJob{}, fmt.Errorf("store: decode fund job trades: %w", err)
 }
 j.ProposedTrades = ts
	}
	return j, nil
}
