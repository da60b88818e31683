package flagstore

import (
	"context"
	"time"

	"plantmart/internal/retry"
	"plantmart/internal/update"
	"plantmart/pkg/logx"
)

// Flags is the bus-facing view of a Backend: taxonomy-keyed, retried
// writes, legacy-key fallback on reads.
//
// Set never returns an error to the caller; exhausted retries are logged
// and reported as false so a failed flag write can't take a screen down.
type Flags struct {
	backend Backend
	policy  retry.Policy
	log     logx.Logger
}

func NewFlags(backend Backend, policy retry.Policy, log logx.Logger) *Flags {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Flags{backend: backend, policy: policy, log: log}
}

// Set durably records rec under its kind's canonical key.
//
// The stored timestamp never moves backwards: if the existing record is
// newer (clock skew between contexts), the incoming timestamp is clamped
// up so checkers comparing against "last seen" keep working.
func (f *Flags) Set(ctx context.Context, rec update.Record) bool {
	if prev, ok := f.Get(ctx, rec.Kind); ok && rec.Timestamp < prev.Timestamp {
		rec.Timestamp = prev.Timestamp
	}

	err := retry.Do(ctx, f.policy, func(ctx context.Context) error {
		return f.backend.Put(ctx, rec.Kind.Key(), rec)
	})
	if err != nil {
		f.log.Warn("flag write failed",
			logx.String("kind", rec.Kind.String()),
			logx.Err(err),
		)
		return false
	}
	return true
}

// Get reads the record for kind, falling back to legacy storage keys left
// by older builds. Read errors are logged and reported as absent.
func (f *Flags) Get(ctx context.Context, kind update.Kind) (update.Record, bool) {
	keys := append([]string{kind.Key()}, kind.LegacyKeys()...)
	for _, key := range keys {
		rec, ok, err := f.backend.Get(ctx, key)
		if err != nil {
			f.log.Warn("flag read failed", logx.String("key", key), logx.Err(err))
			continue
		}
		if ok {
			// Records written under an alias predate the Kind field.
			if rec.Kind == "" {
				rec.Kind = kind
			}
			return rec, true
		}
	}
	return update.Record{}, false
}

// Remove deletes the record for kind (canonical and legacy keys).
func (f *Flags) Remove(ctx context.Context, kind update.Kind) bool {
	ok := true
	for _, key := range append([]string{kind.Key()}, kind.LegacyKeys()...) {
		if err := f.backend.Delete(ctx, key); err != nil {
			f.log.Warn("flag delete failed", logx.String("key", key), logx.Err(err))
			ok = false
		}
	}
	return ok
}

// All returns every stored record, keyed by kind.
func (f *Flags) All(ctx context.Context) map[update.Kind]update.Record {
	keys, err := f.backend.Keys(ctx)
	if err != nil {
		f.log.Warn("flag scan failed", logx.Err(err))
		return nil
	}
	out := map[update.Kind]update.Record{}
	for _, key := range keys {
		kind, ok := update.KindForStorageKey(key)
		if !ok {
			continue
		}
		rec, ok, err := f.backend.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		if rec.Kind == "" {
			rec.Kind = kind
		}
		// Canonical key wins over an alias holding a stale copy.
		if prev, dup := out[kind]; dup && prev.Timestamp >= rec.Timestamp {
			continue
		}
		out[kind] = rec
	}
	return out
}

// PruneOlderThan removes records whose timestamp is before cutoff.
func (f *Flags) PruneOlderThan(ctx context.Context, cutoff time.Time) int {
	n, err := f.backend.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		f.log.Warn("flag prune failed", logx.Err(err))
	}
	return n
}

func (f *Flags) Close() error { return f.backend.Close() }
