package app

import (
	"context"
	"testing"
	"time"

	"plantmart/internal/flagstore"
	"plantmart/internal/retry"
	"plantmart/internal/update"
	"plantmart/pkg/logx"
)

func TestJanitorPrunesStaleRecords(t *testing.T) {
	t.Parallel()
	flags := flagstore.NewFlags(flagstore.NewMemory(), retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond}, logx.Nop())
	ctx := context.Background()

	flags.Set(ctx, update.Record{
		Kind:      update.KindWishlist,
		Timestamp: time.Now().Add(-48 * time.Hour).UnixMilli(),
		Source:    update.SourceManual,
	})

	j := newJanitor(flags, logx.Nop())
	if err := j.start("@every 20ms", 24*time.Hour); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer j.stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := flags.Get(ctx, update.KindWishlist); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("stale record never pruned")
}

func TestJanitorRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	flags := flagstore.NewFlags(flagstore.NewMemory(), retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond}, logx.Nop())
	j := newJanitor(flags, logx.Nop())
	if err := j.start("sometimes", time.Hour); err == nil {
		t.Fatal("bad cron spec accepted")
	}
	j.stop()
}

func TestJanitorRestart(t *testing.T) {
	t.Parallel()
	flags := flagstore.NewFlags(flagstore.NewMemory(), retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond}, logx.Nop())
	j := newJanitor(flags, logx.Nop())
	if err := j.start("0 3 * * *", time.Hour); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Restart with a new schedule, as applyReload does.
	if err := j.start("0 4 * * *", 2*time.Hour); err != nil {
		t.Fatalf("restart: %v", err)
	}
	j.stop()
	j.stop() // idempotent
}
