package store

import "context"

// schema is the full table set backing the entities. Kept as one embedded
// string rather than a migration framework: the process owns one database
// file with a fixed, additive schema.
const schema = `
CREATE TABLE IF NOT EXISTS positions (
	id TEXT PRIMARY KEY,
	strategy_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity TEXT NOT NULL,
	avg_entry_price TEXT NOT NULL,
	current_mark TEXT NOT NULL,
	opened_at TEXT NOT NULL,
	status TEXT NOT NULL,
	stop_loss TEXT,
	take_profit TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS risk_limits (
	scope TEXT PRIMARY KEY,
	max_position_size TEXT NOT NULL,
	max_portfolio_exposure_pct TEXT NOT NULL,
	max_daily_loss TEXT NOT NULL,
	max_drawdown_pct TEXT NOT NULL,
	max_leverage TEXT NOT NULL,
	default_stop_loss_pct TEXT NOT NULL,
	default_take_profit_pct TEXT NOT NULL,
	concentration_limit_pct TEXT NOT NULL,
	correlation_limit TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS position_risk (
	position_id TEXT PRIMARY KEY,
	size TEXT NOT NULL,
	var_1d TEXT NOT NULL,
	exposure_pct TEXT NOT NULL,
	max_drawdown_pct TEXT NOT NULL,
	risk_score TEXT NOT NULL,
	concentration TEXT NOT NULL,
	correlation TEXT NOT NULL,
	liquidity TEXT NOT NULL,
	beta TEXT NOT NULL,
	sharpe TEXT NOT NULL,
	mae_pct TEXT NOT NULL,
	mfe_pct TEXT NOT NULL,
	last_assessed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS portfolio_risk (
	portfolio_id TEXT PRIMARY KEY,
	portfolio_value TEXT NOT NULL,
	total_var_1d TEXT NOT NULL,
	weighted_beta TEXT NOT NULL,
	concentration TEXT NOT NULL,
	max_correlation TEXT NOT NULL,
	max_drawdown_pct TEXT NOT NULL,
	sharpe TEXT NOT NULL,
	daily_pnl TEXT NOT NULL,
	last_assessed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS risk_alerts (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	severity TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	current_value TEXT NOT NULL,
	limit_value TEXT NOT NULL,
	message TEXT NOT NULL,
	recommended_action TEXT NOT NULL,
	cooldown_key TEXT NOT NULL,
	refresh_count INTEGER NOT NULL DEFAULT 0,
	inside_limit_ticks INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	resolved_at TEXT,
	resolved_by TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_risk_alerts_cooldown ON risk_alerts(cooldown_key);

CREATE TABLE IF NOT EXISTS risk_actions (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	triggering_alert TEXT NOT NULL,
	parameters BLOB,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL,
	executed_at TEXT,
	result TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_risk_actions_kind_alert ON risk_actions(kind, triggering_alert);

CREATE TABLE IF NOT EXISTS execution_plans (
	id TEXT PRIMARY KEY,
	risk_action_id TEXT NOT NULL,
	type TEXT NOT NULL,
	strategy TEXT NOT NULL,
	strategy_id TEXT NOT NULL,
	position_id TEXT,
	order_ids TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL,
	expires_at TEXT NOT NULL,
	result TEXT NOT NULL DEFAULT '',
	stagger_delay_ns INTEGER NOT NULL DEFAULT 0,
	version INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_plans_position_action ON execution_plans(position_id, type)
	WHERE status IN ('pending', 'executing');

CREATE TABLE IF NOT EXISTS execution_orders (
	id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL,
	order_index INTEGER NOT NULL,
	type TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	amount TEXT NOT NULL,
	limit_price TEXT,
	stop_price TEXT,
	tif TEXT NOT NULL,
	reduce_only INTEGER NOT NULL DEFAULT 0,
	strategy_id TEXT NOT NULL,
	position_id TEXT,
	status TEXT NOT NULL,
	tx_ref TEXT NOT NULL DEFAULT '',
	filled_amount TEXT NOT NULL DEFAULT '0',
	avg_fill_price TEXT NOT NULL DEFAULT '0',
	fees TEXT NOT NULL DEFAULT '0',
	attempts INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(plan_id, order_index)
);

CREATE TABLE IF NOT EXISTS balance_snapshots (
	wallet_address TEXT NOT NULL,
	wallet_group TEXT NOT NULL,
	asset TEXT NOT NULL,
	balance TEXT NOT NULL,
	quote_value TEXT NOT NULL,
	below_gas_threshold INTEGER NOT NULL DEFAULT 0,
	above_sweep_threshold INTEGER NOT NULL DEFAULT 0,
	observed_at TEXT NOT NULL,
	PRIMARY KEY (wallet_address, asset, observed_at)
);
CREATE INDEX IF NOT EXISTS idx_balance_snapshots_latest ON balance_snapshots(wallet_address, asset, observed_at DESC);

CREATE TABLE IF NOT EXISTS fund_jobs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL,
	executed_at TEXT,
	tx_ref TEXT NOT NULL DEFAULT '',
	dry_run INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	target_wallet TEXT NOT NULL DEFAULT '',
	amount TEXT NOT NULL DEFAULT '0',
	source_wallet TEXT NOT NULL DEFAULT '',
	asset TEXT NOT NULL DEFAULT '',
	wallet_group_scope TEXT NOT NULL DEFAULT '',
	proposed_trades BLOB
);
CREATE INDEX IF NOT EXISTS idx_fund_jobs_status ON fund_jobs(kind, status);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
