package push

import (
	"context"
	"errors"
	"testing"

	"plantmart/internal/update"
	"plantmart/pkg/logx"
)

type triggerCall struct {
	kind    update.Kind
	payload map[string]any
	source  update.Source
}

func capture(calls *[]triggerCall) TriggerFunc {
	return func(_ context.Context, kind update.Kind, payload map[string]any, source update.Source) bool {
		*calls = append(*calls, triggerCall{kind: kind, payload: payload, source: source})
		return true
	}
}

func TestMapType(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want update.Kind
		ok   bool
	}{
		{"NEW_REVIEW", update.KindReview, true},
		{"order_created", update.KindOrder, true},
		{"  Watering_Reminder ", update.KindWatering, true},
		{"STOREFRONT_UPDATED", update.KindBusinessProfile, true},
		{"PROMO", update.KindNotification, true},
		{"SOMETHING_ELSE", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := MapType(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("MapType(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestIngestMappedPayload(t *testing.T) {
	t.Parallel()
	var calls []triggerCall
	ing := NewIngestor(capture(&calls), logx.Nop())

	raw := []byte(`{"type":"ORDER_CREATED","data":{"orderId":"o-42"}}`)
	if err := ing.Ingest(context.Background(), raw, update.SourcePush); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("trigger called %d times, want 1", len(calls))
	}
	if calls[0].kind != update.KindOrder {
		t.Fatalf("kind = %s, want order", calls[0].kind)
	}
	if calls[0].payload["orderId"] != "o-42" {
		t.Fatalf("payload = %v", calls[0].payload)
	}
	if calls[0].source != update.SourcePush {
		t.Fatalf("source = %s, want push", calls[0].source)
	}
}

func TestIngestDefaultsSourceToPush(t *testing.T) {
	t.Parallel()
	var calls []triggerCall
	ing := NewIngestor(capture(&calls), logx.Nop())

	if err := ing.Ingest(context.Background(), []byte(`{"type":"PROMO"}`), ""); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if calls[0].source != update.SourcePush {
		t.Fatalf("source = %s, want push", calls[0].source)
	}
}

func TestIngestDropsUnmappedType(t *testing.T) {
	t.Parallel()
	var calls []triggerCall
	ing := NewIngestor(capture(&calls), logx.Nop())

	err := ing.Ingest(context.Background(), []byte(`{"type":"FIRMWARE_UPDATE"}`), update.SourcePush)
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
	if len(calls) != 0 {
		t.Fatal("unmapped payload reached the trigger")
	}
}

func TestIngestDropsMalformedJSON(t *testing.T) {
	t.Parallel()
	var calls []triggerCall
	ing := NewIngestor(capture(&calls), logx.Nop())

	cases := [][]byte{
		[]byte(`{"type":`),
		[]byte(`"just a string"`),
		[]byte(`{"data":{"x":1}}`), // no type
		nil,
	}
	for _, raw := range cases {
		if err := ing.Ingest(context.Background(), raw, update.SourcePush); err == nil {
			t.Errorf("Ingest(%q) accepted a bad payload", raw)
		}
	}
	if len(calls) != 0 {
		t.Fatal("bad payload reached the trigger")
	}
}

func TestIngestSwallowsNonDurableTrigger(t *testing.T) {
	t.Parallel()
	ing := NewIngestor(func(context.Context, update.Kind, map[string]any, update.Source) bool {
		return false
	}, logx.Nop())

	// A failed durable write is logged, not surfaced: push delivery has no
	// caller that could act on it.
	if err := ing.Ingest(context.Background(), []byte(`{"type":"NEW_MESSAGE"}`), update.SourceSignalR); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
}
