// Package listener keeps the process-wide registry of update callbacks.
package listener

import (
	"runtime/debug"
	"sync"

	"plantmart/internal/update"
	"plantmart/pkg/logx"
)

// Callback receives one touched kind and the record that was committed for
// it. Callbacks run synchronously on the notifying goroutine and must not
// block; they MAY call Register/Unregister on the same directory.
type Callback func(kind update.Kind, rec update.Record)

type registration struct {
	id    string
	kinds map[update.Kind]struct{}
	fn    Callback
}

// Directory maps update kinds to the callbacks currently interested in
// them. It is safe for concurrent use.
//
// Notify snapshots the interested registrations before invoking anything,
// so a callback can freely mutate the directory without deadlocking. Each
// snapshot entry is re-checked against the live table just before its
// callback runs: once Unregister returns, that listener's callback will not
// start, even for a notification already in flight.
type Directory struct {
	mu     sync.RWMutex
	byID   map[string]*registration
	byKind map[update.Kind]map[string]*registration
	log    logx.Logger
}

func NewDirectory(log logx.Logger) *Directory {
	return &Directory{
		byID:   map[string]*registration{},
		byKind: map[update.Kind]map[string]*registration{},
		log:    log,
	}
}

// Register adds (or replaces) the callback set for id. Registering an id
// twice drops the earlier registration first, so a remounted screen never
// receives double callbacks.
func (d *Directory) Register(id string, kinds []update.Kind, fn Callback) {
	if id == "" || fn == nil || len(kinds) == 0 {
		return
	}
	reg := &registration{id: id, kinds: map[update.Kind]struct{}{}, fn: fn}
	for _, k := range kinds {
		if k.Valid() {
			reg.kinds[k] = struct{}{}
		}
	}

	d.mu.Lock()
	d.removeLocked(id)
	d.byID[id] = reg
	for k := range reg.kinds {
		m := d.byKind[k]
		if m == nil {
			m = map[string]*registration{}
			d.byKind[k] = m
		}
		m[id] = reg
	}
	d.mu.Unlock()
}

// Unregister drops the registration for id. No callback for id starts after
// Unregister returns.
func (d *Directory) Unregister(id string) {
	d.mu.Lock()
	d.removeLocked(id)
	d.mu.Unlock()
}

func (d *Directory) removeLocked(id string) {
	reg, ok := d.byID[id]
	if !ok {
		return
	}
	delete(d.byID, id)
	for k := range reg.kinds {
		if m := d.byKind[k]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(d.byKind, k)
			}
		}
	}
}

// Reset drops every registration (app shutdown, test teardown).
func (d *Directory) Reset() {
	d.mu.Lock()
	d.byID = map[string]*registration{}
	d.byKind = map[update.Kind]map[string]*registration{}
	d.mu.Unlock()
}

// Count returns the number of live registrations for kind.
func (d *Directory) Count(kind update.Kind) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byKind[kind])
}

// Notify invokes every callback currently registered for kind, once each.
// A panicking callback is logged and skipped; delivery continues to the
// remaining listeners.
func (d *Directory) Notify(kind update.Kind, rec update.Record) {
	d.mu.RLock()
	snapshot := make([]*registration, 0, len(d.byKind[kind]))
	for _, reg := range d.byKind[kind] {
		snapshot = append(snapshot, reg)
	}
	d.mu.RUnlock()

	for _, reg := range snapshot {
		// Skip listeners unregistered since the snapshot.
		d.mu.RLock()
		live := d.byID[reg.id] == reg
		d.mu.RUnlock()
		if !live {
			continue
		}
		d.invoke(reg, kind, rec)
	}
}

func (d *Directory) invoke(reg *registration, kind update.Kind, rec update.Record) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("listener callback panicked",
				logx.String("listener", reg.id),
				logx.String("kind", kind.String()),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()
	reg.fn(kind, rec)
}
