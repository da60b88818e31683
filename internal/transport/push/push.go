// Package push turns inbound push-notification payloads into update-bus
// triggers.
//
// It is inbound-only: nothing is ever sent back through it. Payloads arrive
// as JSON with at least a "type" discriminator; the fixed alias table below
// maps known types onto the taxonomy. Unknown types are logged and dropped,
// never surfaced as errors, because ingest runs on background paths with no
// UI to show a failure to.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"plantmart/internal/update"
	"plantmart/pkg/logx"
)

// ErrUnknownType marks a payload whose type has no taxonomy mapping.
var ErrUnknownType = errors.New("push: unknown payload type")

// typeAliases is the fixed string→kind table for inbound payload types.
// Keys are matched case-insensitively.
var typeAliases = map[string]update.Kind{
	"NEW_REVIEW":         update.KindReview,
	"REVIEW_REPLY":       update.KindReview,
	"ORDER_CREATED":      update.KindOrder,
	"ORDER_STATUS":       update.KindOrder,
	"NEW_MESSAGE":        update.KindMessage,
	"CHAT_MESSAGE":       update.KindMessage,
	"STOCK_LOW":          update.KindInventory,
	"INVENTORY_SYNC":     update.KindInventory,
	"WISHLIST_SYNC":      update.KindWishlist,
	"PROFILE_UPDATED":    update.KindProfile,
	"STOREFRONT_UPDATED": update.KindBusinessProfile,
	"CUSTOMER_FOLLOWED":  update.KindCustomer,
	"WATERING_REMINDER":  update.KindWatering,
	"PROMO":              update.KindNotification,
	"ANNOUNCEMENT":       update.KindNotification,
}

// envelope is the minimal shape every inbound payload must have.
type envelope struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// MapType resolves a payload type string to its update kind.
func MapType(t string) (update.Kind, bool) {
	k, ok := typeAliases[strings.ToUpper(strings.TrimSpace(t))]
	return k, ok
}

// TriggerFunc feeds a mapped payload into the bus. Wired to bus.Trigger
// with the source option applied; kept as a func so this package does not
// depend on the bus (the bus owns the transports list, not the other way
// around).
type TriggerFunc func(ctx context.Context, kind update.Kind, payload map[string]any, source update.Source) bool

// Ingestor decodes external payloads and feeds them into the bus.
type Ingestor struct {
	trigger TriggerFunc
	log     logx.Logger
}

func NewIngestor(trigger TriggerFunc, log logx.Logger) *Ingestor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Ingestor{trigger: trigger, log: log}
}

// Ingest handles one raw payload. source should be update.SourcePush for
// push notifications or update.SourceSignalR for realtime hub messages.
//
// Malformed or unmapped payloads are dropped with a warning; the returned
// error exists for tests and the HTTP handler's status code, callers on
// system-triggered paths ignore it.
func (i *Ingestor) Ingest(ctx context.Context, raw []byte, source update.Source) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		i.log.Warn("push payload dropped: malformed JSON", logx.Err(err))
		return fmt.Errorf("push: malformed payload: %w", err)
	}
	if strings.TrimSpace(env.Type) == "" {
		i.log.Warn("push payload dropped: missing type")
		return fmt.Errorf("%w: empty", ErrUnknownType)
	}
	kind, ok := MapType(env.Type)
	if !ok {
		i.log.Warn("push payload dropped: unmapped type", logx.String("type", env.Type))
		return fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if source == "" {
		source = update.SourcePush
	}

	if !i.trigger(ctx, kind, env.Data, source) {
		i.log.Warn("push trigger not durable",
			logx.String("type", env.Type),
			logx.String("kind", kind.String()),
		)
	}
	return nil
}
