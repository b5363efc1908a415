package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Decimal columns are stored as their exact string representation, never a
// binary float: all money, size and percentage math uses a fixed-point
// decimal type.

func decStr(d decimal.Decimal) string { return d.String() }

func parseDec(s string) decimal.Decimal {
	if s == "" {
 return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
 return decimal.Zero
	}
	return d
}

func timeStr(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	if s == "" {
 return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
 return time.Time{}
	}
	return t
}

func nullableTimeStr(t *time.Time) any {
	if t == nil {
 return nil
	}
	return timeStr(*t)
}

func nullableDecStr(d *decimal.Decimal) any {
	if d == nil {
 return nil
	}
	return decStr(*d)
}

func durationFromNanos(ns int64) time.Duration { return time.Duration(ns) }
