package backup

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/store"
)

func TestRunReturnsImmediatelyWhenBucketEmpty(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	a := &Archiver{store: st, clk: clock.New(), bucket: "", period: time.Second, log: zerolog.Nop()}

	done := make(chan struct{})
	go func() {
		a.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return immediately when no bucket is configured")
	}
}
