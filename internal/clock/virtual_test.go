package clock_test

import (
	"testing"
	"time"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/stretchr/testify/require"
)

func TestVirtualClockTickerFiresOnAdvance(t *testing.T) {
	vc := clock.NewVirtual(time.Unix(0, 0))
	ticker := vc.NewTicker(10*time.Second, 0)
	defer ticker.Stop()

	select {
	case <-ticker.C():
		t.Fatal("ticker fired before any Advance")
	default:
	}

	vc.Advance(10 * time.Second)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire after Advance(interval)")
	}
}

func TestVirtualClockTickerFiresMultipleTimes(t *testing.T) {
	vc := clock.NewVirtual(time.Unix(0, 0))
	ticker := vc.NewTicker(1*time.Second, 0)
	defer ticker.Stop()

	count := 0
	drain := func() {
		for {
			select {
			case <-ticker.C():
				count++
			default:
				return
			}
		}
	}
	vc.Advance(5 * time.Second)
	drain()
	require.GreaterOrEqual(t, count, 1, "ticker should have fired at least once across 5 intervals")
}

func TestVirtualClockTickerStopIsPrompt(t *testing.T) {
	vc := clock.NewVirtual(time.Unix(0, 0))
	ticker := vc.NewTicker(1*time.Second, 0)
	ticker.Stop()
	vc.Advance(10 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker must not fire")
	default:
	}
}

func TestVirtualClockAfterFiresAtDeadline(t *testing.T) {
	vc := clock.NewVirtual(time.Unix(0, 0))
	ch := vc.After(nil, 5*time.Second)
	vc.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}
	vc.Advance(1 * time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("After did not fire at its deadline")
	}
}
