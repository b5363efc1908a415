// Package collaborators declares the external-system interfaces RPCP
// consumes plus in-memory fakes for tests. The on-chain RPC/signer layer,
// DEX router and price-discovery feed are explicitly out of scope: every
// real implementation lives outside this module.
package collaborators

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLC bar of a MarketDataProvider series.
type Candle struct {
	Time time.Time
	Open decimal.Decimal
	High decimal.Decimal
	Low decimal.Decimal
	Close decimal.Decimal
}

// MarketDataProvider supplies marks and historical candles for sizing and
// risk math.
type MarketDataProvider interface {
	GetMark(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetCandles(ctx context.Context, symbol string, interval time.Duration, from, to time.Time) ([]Candle, error)
}

// TxStatus is the lifecycle state of a signer/executor transaction handle.
type TxStatus string

const (
	TxPending TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed TxStatus = "failed"
)

// TxHandle identifies an in-flight or settled on-chain transaction.
type TxHandle struct {
	TxRef string
	Status TxStatus
}

// WalletSigner signs and broadcasts raw transfers (native coin gas top-ups,
// sweeps) and waits for confirmation.
type WalletSigner interface {
	SignAndSend(ctx context.Context, from, to string, asset string, amount decimal.Decimal) (TxHandle, error)
	WaitForConfirmation(ctx context.Context, handle TxHandle, timeout time.Duration) (TxHandle, error)
}

// SubmitArgs is the order payload passed to DexExecutor.Submit.
type SubmitArgs struct {
	OrderID string
	Symbol string
	Side string // "buy" | "sell"
	Amount decimal.Decimal
	LimitPrice *decimal.Decimal
	ReduceOnly bool
}

// OpenOrder is one of a strategy's live orders on the DEX, as reported back
// by DexExecutor.OpenOrders. RPCP never places a strategy's entry orders
// itself; it only needs enough of a view to cancel them on a pause/halt.
type OpenOrder struct {
	OrderID string
	StrategyID string
	Symbol string
}

// BalanceReader reads on-chain native-coin and tracked-asset balances for
// the Funds Controller's Balance-Snapshot loop.
type BalanceReader interface {
	NativeBalance(ctx context.Context, address string) (decimal.Decimal, error)
	AssetBalance(ctx context.Context, address, asset string) (decimal.Decimal, error)
}

// DexExecutor submits and cancels orders against the DEX. A nil
// error with a TxFailed handle means the submission was accepted but the
// trade itself reverted or failed on-chain; callers classify retryability
// from the returned error, not from TxStatus.
type DexExecutor interface {
	Submit(ctx context.Context, order SubmitArgs) (TxHandle, error)
	Cancel(ctx context.Context, orderID string) (bool, error)
	// OpenOrders lists every currently-open order belonging to strategyID, so
	// the Execution Planner can build one cancel order per open order for a
	// strategy_pause action.
	OpenOrders(ctx context.Context, strategyID string) ([]OpenOrder, error)
}
