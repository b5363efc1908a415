package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletGroup classifies a managed wallet's custodial role.
type WalletGroup string

const (
	GroupHot WalletGroup = "hot"
	GroupWarm WalletGroup = "warm"
	GroupCold WalletGroup = "cold"
	GroupTreasury WalletGroup = "treasury"
	GroupStrategy WalletGroup = "strategy"
)

// BalanceSnapshot is a per-wallet, per-asset observation.
type BalanceSnapshot struct {
	WalletAddress string
	WalletGroup WalletGroup
	Asset string
	Balance decimal.Decimal
	QuoteValue decimal.Decimal
	BelowGasThreshold bool
	AboveSweepThreshold bool
	ObservedAt time.Time
}

// FundJobStatus is a fund job's lifecycle state.
type FundJobStatus string

const (
	FundJobPending FundJobStatus = "pending"
	FundJobExecuting FundJobStatus = "executing"
	FundJobCompleted FundJobStatus = "completed"
	FundJobFailed FundJobStatus = "failed"
)

// FundJobKind enumerates the three funds-management job variants.
type FundJobKind string

const (
	JobGasTopUp FundJobKind = "gas_topup"
	JobSweep FundJobKind = "sweep"
	JobRebalance FundJobKind = "rebalance"
)

// FundJob is the shared envelope for GasTopUp, Sweep and Rebalance jobs.
// Variant-specific fields are populated according to Kind; the rest are left
// zero-valued.
type FundJob struct {
	ID string
	Kind FundJobKind
	Status FundJobStatus
	CreatedAt time.Time
	ExecutedAt *time.Time
	TxRef string
	DryRun bool
	Error string

	// GasTopUp
	TargetWallet string
	Amount decimal.Decimal

	// Sweep (also uses TargetWallet as destination, SourceWallet as origin)
	SourceWallet string
	Asset string

	// Rebalance
	WalletGroupScope WalletGroup
	ProposedTrades []RebalanceTrade
}

// RebalanceTrade is one leg of a Rebalance job's proposed trades.
type RebalanceTrade struct {
	Wallet string
	Asset string
	Side Side
	Amount decimal.Decimal
}

// FundsAlert has the same shape as RiskAlert but is scoped to wallets/assets.
type FundsAlert struct {
	ID string
	Kind AlertKind
	Severity Severity
	EntityType EntityType
	EntityID string
	CurrentValue decimal.Decimal
	LimitValue decimal.Decimal
	Message string
	RecommendedAction ActionKind
	CreatedAt time.Time
	ResolvedAt *time.Time
	ResolvedBy string
}
