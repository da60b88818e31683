// Package transport defines how committed update records leave the local
// call graph: to other execution contexts (wsbridge) or from external push
// payloads into the bus (push).
package transport

import (
	"context"

	"plantmart/internal/update"
)

// Publisher delivers a committed record to consumers the bus cannot reach
// by direct function call. Publish is called after the local commit, outside
// the trigger critical section; implementations must not block the caller
// for long and must swallow per-consumer failures.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, rec update.Record) error
}

// Nop is the null transport selected when a real one is not configured.
// Keeping the slot filled avoids conditional wiring at every call site.
type Nop struct{}

func (Nop) Name() string                                 { return "nop" }
func (Nop) Publish(context.Context, update.Record) error { return nil }
