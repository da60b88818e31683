package update

import "fmt"

// fieldType is the JSON shape a payload field must have when present.
type fieldType int

const (
	fieldString fieldType = iota
	fieldBool
	fieldNumber
)

type fieldRule struct {
	name string
	typ  fieldType
}

// payloadRules declares the structural schema per kind. Unknown fields are
// tolerated (clients of different versions attach extras); known fields must
// have the declared shape. Kinds without an entry accept any object.
var payloadRules = map[Kind][]fieldRule{
	KindWishlist: {
		{name: "plantId", typ: fieldString},
		{name: "isFavorite", typ: fieldBool},
	},
	KindProduct: {
		{name: "productId", typ: fieldString},
	},
	KindReview: {
		{name: "productId", typ: fieldString},
		{name: "rating", typ: fieldNumber},
	},
	KindInventory: {
		{name: "productId", typ: fieldString},
		{name: "quantity", typ: fieldNumber},
	},
	KindOrder: {
		{name: "orderId", typ: fieldString},
	},
	KindMessage: {
		{name: "conversationId", typ: fieldString},
	},
	KindCustomer: {
		{name: "customerId", typ: fieldString},
	},
	KindWatering: {
		{name: "plantId", typ: fieldString},
	},
}

// ValidatePayload checks payload against the kind's declared schema.
// A nil payload is always valid (bare "something changed" marker).
func ValidatePayload(kind Kind, payload map[string]any) error {
	if payload == nil {
		return nil
	}
	for _, r := range payloadRules[kind] {
		v, ok := payload[r.name]
		if !ok || v == nil {
			continue
		}
		switch r.typ {
		case fieldString:
			if _, ok := v.(string); !ok {
				return fmt.Errorf("payload field %q for kind %s: want string, got %T", r.name, kind, v)
			}
		case fieldBool:
			if _, ok := v.(bool); !ok {
				return fmt.Errorf("payload field %q for kind %s: want bool, got %T", r.name, kind, v)
			}
		case fieldNumber:
			switch v.(type) {
			case float64, float32, int, int32, int64, uint, uint32, uint64:
			default:
				return fmt.Errorf("payload field %q for kind %s: want number, got %T", r.name, kind, v)
			}
		}
	}
	return nil
}
