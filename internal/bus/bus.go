// Package bus composes the flag store, cascade resolver, listener
// directory, and transports into the update-propagation facade the rest of
// the app talks to.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"plantmart/internal/cascade"
	"plantmart/internal/flagstore"
	"plantmart/internal/listener"
	"plantmart/internal/transport"
	"plantmart/internal/update"
	"plantmart/pkg/logx"
)

// DefaultRecentWindow is how fresh a record must be for IsRecent.
const DefaultRecentWindow = 5 * time.Minute

// Config wires a Bus. Flags and Resolver are required; everything else has
// a safe zero value.
type Config struct {
	Flags        *flagstore.Flags
	Resolver     *cascade.Resolver
	Transports   []transport.Publisher
	RecentWindow time.Duration
	Log          logx.Logger

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// Bus is the single write path for update flags.
//
// One trigger transaction (persist primary, persist cascades, notify
// listeners, publish to transports) never interleaves with another; the
// persistence phase runs under a mutex, the fan-out phases run on a
// snapshot outside it so callbacks may add or remove listeners.
type Bus struct {
	mu sync.Mutex // serializes trigger transactions' persistence phase

	flags      *flagstore.Flags
	resolver   *cascade.Resolver
	dir        *listener.Directory
	transports []transport.Publisher
	recent     time.Duration
	log        logx.Logger
	now        func() time.Time
}

// Options tweaks a single Trigger call.
type Options struct {
	// Silent persists the flag (and its cascades) without notifying live
	// listeners or other contexts. Consumers find the flag on their next
	// activation check.
	Silent bool

	// Source tags where the trigger came from. Defaults to manual.
	Source update.Source
}

// Status is the consumer-facing view of one kind's flag.
type Status struct {
	HasUpdate bool           `json:"has_update"`
	Record    *update.Record `json:"record,omitempty"`
	IsRecent  bool           `json:"is_recent"`
}

func New(cfg Config) *Bus {
	log := cfg.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	recent := cfg.RecentWindow
	if recent <= 0 {
		recent = DefaultRecentWindow
	}
	return &Bus{
		flags:      cfg.Flags,
		resolver:   cfg.Resolver,
		dir:        listener.NewDirectory(log),
		transports: cfg.Transports,
		recent:     recent,
		log:        log,
		now:        now,
	}
}

// Trigger records "something of this kind changed" and propagates it.
//
// It returns true when the primary record was durably written (possibly
// after retries). Live listeners are still notified on a failed write: they
// are mounted right now and the change did happen; durability only matters
// for screens that are not.
func (b *Bus) Trigger(ctx context.Context, kind update.Kind, payload map[string]any, opts ...Options) bool {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}
	if !kind.Valid() {
		b.log.Warn("trigger rejected: unknown kind", logx.String("kind", kind.String()))
		return false
	}
	if err := update.ValidatePayload(kind, payload); err != nil {
		b.log.Warn("trigger rejected: bad payload", logx.String("kind", kind.String()), logx.Err(err))
		return false
	}
	source := opt.Source
	if source == "" {
		source = update.SourceManual
	}

	rec := update.Record{
		Kind:      kind,
		Timestamp: b.now().UnixMilli(),
		Source:    source,
		Payload:   payload,
	}
	return b.run(ctx, rec, !opt.Silent, !opt.Silent)
}

// Apply replays a record committed in another execution context. The local
// transaction is identical to a Trigger except the record keeps its origin
// timestamp and nothing is re-published (the originating context already
// broadcast it). Replay is idempotent: flag writes are last-write-wins.
func (b *Bus) Apply(ctx context.Context, rec update.Record) bool {
	if !rec.Kind.Valid() {
		b.log.Warn("apply rejected: unknown kind", logx.String("kind", rec.Kind.String()))
		return false
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = b.now().UnixMilli()
	}
	return b.run(ctx, rec, true, false)
}

// run executes one trigger transaction.
func (b *Bus) run(ctx context.Context, primary update.Record, notify, publish bool) bool {
	type committed struct {
		kind update.Kind
		rec  update.Record
	}

	b.mu.Lock()
	ok := b.flags.Set(ctx, primary)

	expanded := b.resolver.Expand(primary.Kind)
	out := make([]committed, 0, len(expanded))
	out = append(out, committed{kind: primary.Kind, rec: primary})
	for _, dep := range expanded[1:] {
		dr := update.Record{
			Kind:          dep,
			Timestamp:     primary.Timestamp,
			Source:        update.SourceCascade,
			CascadeOrigin: primary.Kind,
		}
		if !b.flags.Set(ctx, dr) {
			ok = false
		}
		out = append(out, committed{kind: dep, rec: dr})
	}
	b.mu.Unlock()

	// Fan-out runs on the committed snapshot, outside the lock: callbacks
	// may call AddListener/RemoveListener, and a slow transport must not
	// stall a concurrent Trigger's persistence.
	if notify {
		for _, c := range out {
			b.dir.Notify(c.kind, c.rec)
		}
	}
	if publish {
		for _, t := range b.transports {
			if t == nil {
				continue
			}
			if err := t.Publish(ctx, primary); err != nil {
				b.log.Warn("transport publish failed",
					logx.String("transport", t.Name()),
					logx.String("kind", primary.Kind.String()),
					logx.Err(err),
				)
			}
		}
	}

	b.log.Debug("trigger committed",
		logx.String("kind", primary.Kind.String()),
		logx.String("source", string(primary.Source)),
		logx.Int("touched", len(out)),
		logx.Bool("durable", ok),
	)
	return ok
}

// CheckForUpdate reports whether kind has a pending flag. Reads skip the
// trigger mutex: last-write-wins makes a slightly stale read harmless.
func (b *Bus) CheckForUpdate(ctx context.Context, kind update.Kind) Status {
	rec, ok := b.flags.Get(ctx, kind)
	if !ok {
		return Status{}
	}
	return Status{
		HasUpdate: true,
		Record:    &rec,
		IsRecent:  rec.Age(b.now()) < b.recent,
	}
}

// ClearUpdate removes the stored flag for kind. Listener registrations and
// other kinds are untouched.
func (b *Bus) ClearUpdate(ctx context.Context, kind update.Kind) bool {
	if !kind.Valid() {
		return false
	}
	return b.flags.Remove(ctx, kind)
}

// AddListener registers cb for the given kinds and returns the listener id
// (generated when id is empty). The callback fires at most once per kind
// per trigger transaction, for as long as the registration is live.
func (b *Bus) AddListener(id string, kinds []update.Kind, cb listener.Callback) string {
	if id == "" {
		id = uuid.NewString()
	}
	b.dir.Register(id, kinds, cb)
	return id
}

// RemoveListener drops the registration; effective immediately.
func (b *Bus) RemoveListener(id string) { b.dir.Unregister(id) }

// AllStatus returns the diagnostic view over every kind.
func (b *Bus) AllStatus(ctx context.Context) map[update.Kind]Status {
	stored := b.flags.All(ctx)
	now := b.now()
	out := make(map[update.Kind]Status, len(update.Kinds()))
	for _, k := range update.Kinds() {
		rec, ok := stored[k]
		if !ok {
			out[k] = Status{}
			continue
		}
		r := rec
		out[k] = Status{HasUpdate: true, Record: &r, IsRecent: rec.Age(now) < b.recent}
	}
	return out
}

// Close tears down listener state. The flag store is owned by the caller.
func (b *Bus) Close() { b.dir.Reset() }
