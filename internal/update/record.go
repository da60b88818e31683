package update

import (
	"fmt"
	"strings"
	"time"
)

// Source says how a record came to be triggered.
type Source string

const (
	SourceManual  Source = "manual"  // a local screen confirmed a mutation
	SourceCascade Source = "cascade" // marked dirty because a dependency fired
	SourcePush    Source = "push"    // inbound push notification
	SourceSignalR Source = "signalr" // inbound realtime hub message
	SourceBridge  Source = "bridge"  // replayed from another execution context
)

func ParseSource(s string) (Source, error) {
	switch v := Source(strings.ToLower(strings.TrimSpace(s))); v {
	case SourceManual, SourceCascade, SourcePush, SourceSignalR, SourceBridge:
		return v, nil
	case "":
		return SourceManual, nil
	default:
		return "", fmt.Errorf("unknown update source %q", s)
	}
}

// Record is the durable last-write-wins state kept per kind.
//
// Timestamp is wall-clock unix milliseconds. One record per kind; a new
// trigger overwrites the previous one.
type Record struct {
	Kind          Kind           `json:"kind"`
	Timestamp     int64          `json:"timestamp"`
	Source        Source         `json:"source"`
	CascadeOrigin Kind           `json:"cascade_origin,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// At returns the record timestamp as a time.Time.
func (r Record) At() time.Time { return time.UnixMilli(r.Timestamp) }

// Age is the time elapsed since the record was written.
func (r Record) Age(now time.Time) time.Duration { return now.Sub(r.At()) }

// NewRecord stamps a record with the current wall clock.
func NewRecord(kind Kind, source Source, payload map[string]any) Record {
	return Record{
		Kind:      kind,
		Timestamp: time.Now().UnixMilli(),
		Source:    source,
		Payload:   payload,
	}
}
