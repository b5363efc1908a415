package collaborators

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// FakeMarketData is a mutex-guarded in-memory MarketDataProvider: setters
// configure canned responses, an optional error short-circuits every method.
type FakeMarketData struct {
	mu sync.RWMutex
	marks map[string]decimal.Decimal
	candles map[string][]Candle
	err error
}

func NewFakeMarketData() *FakeMarketData {
	return &FakeMarketData{marks: make(map[string]decimal.Decimal), candles: make(map[string][]Candle)}
}

func (f *FakeMarketData) SetMark(symbol string, mark decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks[symbol] = mark
}

func (f *FakeMarketData) SetCandles(symbol string, candles []Candle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candles[symbol] = candles
}

func (f *FakeMarketData) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *FakeMarketData) GetMark(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
 return decimal.Zero, f.err
	}
	return f.marks[symbol], nil
}

func (f *FakeMarketData) GetCandles(ctx context.Context, symbol string, interval time.Duration, from, to time.Time) ([]Candle, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
 return nil, f.err
	}
	return f.candles[symbol], nil
}

var _ MarketDataProvider = (*FakeMarketData)(nil)

// SignAndSendCall records one FakeSigner.SignAndSend invocation.
type SignAndSendCall struct {
	From, To, Asset string
	Amount decimal.Decimal
}

// FakeSigner is an in-memory WalletSigner that always confirms immediately,
// recording every call it receives for test assertions.
type FakeSigner struct {
	mu sync.Mutex
	err error
	seq int
	sent []SignAndSendCall
}

func NewFakeSigner() *FakeSigner { return &FakeSigner{} }

func (f *FakeSigner) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Sent returns every SignAndSend call received so far, in order.
func (f *FakeSigner) Sent() []SignAndSendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SignAndSendCall, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *FakeSigner) SignAndSend(ctx context.Context, from, to, asset string, amount decimal.Decimal) (TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
 return TxHandle{}, f.err
	}
	f.seq++
	f.sent = append(f.sent, SignAndSendCall{From: from, To: to, Asset: asset, Amount: amount})
	return TxHandle{TxRef: "fake-tx", Status: TxPending}, nil
}

func (f *FakeSigner) WaitForConfirmation(ctx context.Context, handle TxHandle, timeout time.Duration) (TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
 return handle, f.err
	}
	handle.Status = TxConfirmed
	return handle, nil
}

var _ WalletSigner = (*FakeSigner)(nil)

// FakeBalanceReader is an in-memory BalanceReader.
type FakeBalanceReader struct {
	mu sync.RWMutex
	native map[string]decimal.Decimal
	assets map[string]map[string]decimal.Decimal
	err error
}

func NewFakeBalanceReader() *FakeBalanceReader {
	return &FakeBalanceReader{native: make(map[string]decimal.Decimal), assets: make(map[string]map[string]decimal.Decimal)}
}

func (f *FakeBalanceReader) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *FakeBalanceReader) SetNative(address string, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.native[address] = amount
}

func (f *FakeBalanceReader) SetAsset(address, asset string, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assets[address] == nil {
 f.assets[address] = make(map[string]decimal.Decimal)
	}
	f.assets[address][asset] = amount
}

func (f *FakeBalanceReader) NativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
 return decimal.Zero, f.err
	}
	return f.native[address], nil
}

func (f *FakeBalanceReader) AssetBalance(ctx context.Context, address, asset string) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
 return decimal.Zero, f.err
	}
	return f.assets[address][asset], nil
}

var _ BalanceReader = (*FakeBalanceReader)(nil)

// FakeExecutor is an in-memory DexExecutor that always succeeds, recording
// every call it receives for test assertions.
type FakeExecutor struct {
	mu sync.Mutex
	submitted []SubmitArgs
	cancelled []string
	open map[string][]OpenOrder
	err error
}

func NewFakeExecutor() *FakeExecutor { return &FakeExecutor{open: make(map[string][]OpenOrder)} }

func (f *FakeExecutor) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetOpenOrders configures the orders OpenOrders returns for strategyID.
func (f *FakeExecutor) SetOpenOrders(strategyID string, orders []OpenOrder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open[strategyID] = orders
}

func (f *FakeExecutor) Submitted() []SubmitArgs {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SubmitArgs, len(f.submitted))
	copy(out, f.submitted)
	return out
}

func (f *FakeExecutor) Submit(ctx context.Context, order SubmitArgs) (TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
 return TxHandle{}, f.err
	}
	f.submitted = append(f.submitted, order)
	return TxHandle{TxRef: "fake-" + order.OrderID, Status: TxConfirmed}, nil
}

func (f *FakeExecutor) Cancel(ctx context.Context, orderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
 return false, f.err
	}
	f.cancelled = append(f.cancelled, orderID)
	return true, nil
}

func (f *FakeExecutor) OpenOrders(ctx context.Context, strategyID string) ([]OpenOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
 return nil, f.err
	}
	out := make([]OpenOrder, len(f.open[strategyID]))
	copy(out, f.open[strategyID])
	return out, nil
}

var _ DexExecutor = (*FakeExecutor)(nil)
