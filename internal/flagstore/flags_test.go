package flagstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"plantmart/internal/retry"
	"plantmart/internal/update"
	"plantmart/pkg/logx"
)

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

// flakyBackend fails the first failures Puts, then delegates to Memory.
type flakyBackend struct {
	*Memory
	mu       sync.Mutex
	failures int
	puts     int
}

func (f *flakyBackend) Put(ctx context.Context, key string, rec update.Record) error {
	f.mu.Lock()
	f.puts++
	fail := f.puts <= f.failures
	f.mu.Unlock()
	if fail {
		return errors.New("storage temporarily unavailable")
	}
	return f.Memory.Put(ctx, key, rec)
}

func TestSetGetRemove(t *testing.T) {
	t.Parallel()
	f := NewFlags(NewMemory(), fastPolicy(3), logx.Nop())
	ctx := context.Background()

	rec := update.NewRecord(update.KindWishlist, update.SourceManual, map[string]any{"plantId": "p1"})
	if !f.Set(ctx, rec) {
		t.Fatal("Set returned false")
	}

	got, ok := f.Get(ctx, update.KindWishlist)
	if !ok {
		t.Fatal("Get: record absent after Set")
	}
	if got.Payload["plantId"] != "p1" {
		t.Fatalf("payload = %v", got.Payload)
	}

	if !f.Remove(ctx, update.KindWishlist) {
		t.Fatal("Remove returned false")
	}
	if _, ok := f.Get(ctx, update.KindWishlist); ok {
		t.Fatal("record still present after Remove")
	}
}

func TestSetRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	fb := &flakyBackend{Memory: NewMemory(), failures: 2}
	f := NewFlags(fb, fastPolicy(3), logx.Nop())

	if !f.Set(context.Background(), update.NewRecord(update.KindOrder, update.SourceManual, nil)) {
		t.Fatal("Set returned false despite success on attempt 3")
	}
}

func TestSetExhaustionReturnsFalse(t *testing.T) {
	t.Parallel()
	fb := &flakyBackend{Memory: NewMemory(), failures: 100}
	f := NewFlags(fb, fastPolicy(3), logx.Nop())

	if f.Set(context.Background(), update.NewRecord(update.KindOrder, update.SourceManual, nil)) {
		t.Fatal("Set returned true after exhausted retries")
	}
	if fb.puts != 3 {
		t.Fatalf("puts = %d, want 3", fb.puts)
	}
}

func TestTimestampNeverMovesBackwards(t *testing.T) {
	t.Parallel()
	f := NewFlags(NewMemory(), fastPolicy(1), logx.Nop())
	ctx := context.Background()

	newer := update.Record{Kind: update.KindProduct, Timestamp: 2000, Source: update.SourceManual}
	older := update.Record{Kind: update.KindProduct, Timestamp: 1000, Source: update.SourceBridge}
	f.Set(ctx, newer)
	f.Set(ctx, older)

	got, _ := f.Get(ctx, update.KindProduct)
	if got.Timestamp != 2000 {
		t.Fatalf("timestamp = %d, want clamped to 2000", got.Timestamp)
	}
	if got.Source != update.SourceBridge {
		t.Fatalf("source = %s, want the later write's source", got.Source)
	}
}

func TestGetFallsBackToLegacyKey(t *testing.T) {
	t.Parallel()
	mem := NewMemory()
	f := NewFlags(mem, fastPolicy(1), logx.Nop())
	ctx := context.Background()

	// Simulate a record written by an old build under the alias key.
	old := update.Record{Timestamp: 42, Source: update.SourceManual}
	if err := mem.Put(ctx, "update.storefront", old); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := f.Get(ctx, update.KindBusinessProfile)
	if !ok {
		t.Fatal("legacy record not found")
	}
	if got.Kind != update.KindBusinessProfile {
		t.Fatalf("kind = %s, want backfilled business_profile", got.Kind)
	}
	if got.Timestamp != 42 {
		t.Fatalf("timestamp = %d, want 42", got.Timestamp)
	}
}

func TestAllSkipsForeignKeys(t *testing.T) {
	t.Parallel()
	mem := NewMemory()
	f := NewFlags(mem, fastPolicy(1), logx.Nop())
	ctx := context.Background()

	f.Set(ctx, update.NewRecord(update.KindReview, update.SourceManual, nil))
	_ = mem.Put(ctx, "unrelated.key", update.Record{Timestamp: 1})

	all := f.All(ctx)
	if len(all) != 1 {
		t.Fatalf("All = %v, want only the review record", all)
	}
	if _, ok := all[update.KindReview]; !ok {
		t.Fatal("review record missing from All")
	}
}

func TestPruneOlderThan(t *testing.T) {
	t.Parallel()
	f := NewFlags(NewMemory(), fastPolicy(1), logx.Nop())
	ctx := context.Background()

	f.Set(ctx, update.Record{Kind: update.KindOrder, Timestamp: 1000})
	f.Set(ctx, update.Record{Kind: update.KindReview, Timestamp: 9000})

	n := f.PruneOlderThan(ctx, time.UnixMilli(5000))
	if n != 1 {
		t.Fatalf("pruned = %d, want 1", n)
	}
	if _, ok := f.Get(ctx, update.KindOrder); ok {
		t.Fatal("stale record survived prune")
	}
	if _, ok := f.Get(ctx, update.KindReview); !ok {
		t.Fatal("fresh record lost in prune")
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "flags.db")
	cfg := Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}
	ctx := context.Background()

	b, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rec := update.NewRecord(update.KindWishlist, update.SourceManual, map[string]any{"plantId": "p1", "isFavorite": true})
	if err := b.Put(ctx, rec.Kind.Key(), rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b2, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b2.Close()

	got, ok, err := b2.Get(ctx, update.KindWishlist.Key())
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if got.Payload["isFavorite"] != true {
		t.Fatalf("payload = %v", got.Payload)
	}
}

func TestFileBackendSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "flags.db")
	cfg := Config{Driver: "file", Path: path}
	ctx := context.Background()

	b, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := b.Put(ctx, update.KindOrder.Key(), update.Record{Kind: update.KindOrder, Timestamp: 7}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := b.Delete(ctx, update.KindOrder.Key()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := b.Put(ctx, update.KindReview.Key(), update.Record{Kind: update.KindReview, Timestamp: 9}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b2, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b2.Close()

	if _, ok, _ := b2.Get(ctx, update.KindOrder.Key()); ok {
		t.Fatal("deleted record resurrected by journal replay")
	}
	got, ok, _ := b2.Get(ctx, update.KindReview.Key())
	if !ok || got.Timestamp != 9 {
		t.Fatalf("review record after reopen: ok=%v rec=%+v", ok, got)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
