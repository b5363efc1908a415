package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is a position's signed direction.
type Side string

const (
	SideLong Side = "long"
	SideShort Side = "short"
)

// PositionStatus is a position's lifecycle state.
type PositionStatus string

const (
	PositionActive PositionStatus = "active"
	PositionClosing PositionStatus = "closing"
	PositionClosed PositionStatus = "closed"
)

// DustThreshold is the default quantity below which a position is considered
// closed. Callers needing a symbol-specific dust size should compare against
// that size instead; this is the global fallback.
var DustThreshold = decimal.NewFromFloat(0.00001)

// Position is an open exposure to one symbol.
//
// Invariant: sign(Quantity) must agree with Side (long => >= 0, short => <= 0).
// Positions become terminal (Closed) once |Quantity| collapses within a dust
// threshold of zero.
type Position struct {
	ID string
	StrategyID string
	Symbol string
	Side Side
	Quantity decimal.Decimal // signed
	AvgEntryPrice decimal.Decimal
	CurrentMark decimal.Decimal
	OpenedAt time.Time
	Status PositionStatus
	StopLoss *decimal.Decimal
	TakeProfit *decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SignValid reports whether Quantity's sign agrees with Side.
func (p Position) SignValid() bool {
	switch p.Side {
	case SideLong:
 return p.Quantity.GreaterThanOrEqual(decimal.Zero)
	case SideShort:
 return p.Quantity.LessThanOrEqual(decimal.Zero)
	default:
 return false
	}
}

// IsDust reports whether the position's absolute quantity is within dust of zero.
func (p Position) IsDust() bool {
	return p.Quantity.Abs().LessThanOrEqual(DustThreshold)
}

// NotionalValue returns |Quantity| * CurrentMark, the position's current
// quote-currency exposure.
func (p Position) NotionalValue() decimal.Decimal {
	return p.Quantity.Abs().Mul(p.CurrentMark)
}

// UnrealizedPnL returns signed PnL versus average entry, in quote currency.
func (p Position) UnrealizedPnL() decimal.Decimal {
	priceDelta := p.CurrentMark.Sub(p.AvgEntryPrice)
	return priceDelta.Mul(p.Quantity)
}

// UnrealizedPnLPct returns UnrealizedPnL as a percentage of entry notional.
// Returns zero when entry notional is zero.
func (p Position) UnrealizedPnLPct() decimal.Decimal {
	entryNotional := p.Quantity.Abs().Mul(p.AvgEntryPrice)
	if entryNotional.IsZero() {
 return decimal.Zero
	}
	return p.UnrealizedPnL().Div(entryNotional).Mul(decimal.NewFromInt(100))
}
