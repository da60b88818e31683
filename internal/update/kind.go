package update

import (
	"fmt"
	"strings"
)

// Kind identifies a category of "something changed" events.
//
// The set is closed: adding a kind is a compile-time change so the cascade
// table stays statically checkable. Values double as wire identifiers, so
// they must stay stable.
type Kind string

const (
	KindWishlist        Kind = "wishlist"
	KindProduct         Kind = "product"
	KindProfile         Kind = "profile"
	KindReview          Kind = "review"
	KindMessage         Kind = "message"
	KindInventory       Kind = "inventory"
	KindOrder           Kind = "order"
	KindBusinessProfile Kind = "business_profile"
	KindDashboard       Kind = "dashboard"
	KindSettings        Kind = "settings"
	KindCustomer        Kind = "customer"
	KindWatering        Kind = "watering"
	KindNotification    Kind = "notification"
)

// Kinds returns the full taxonomy in stable order.
func Kinds() []Kind {
	return []Kind{
		KindWishlist,
		KindProduct,
		KindProfile,
		KindReview,
		KindMessage,
		KindInventory,
		KindOrder,
		KindBusinessProfile,
		KindDashboard,
		KindSettings,
		KindCustomer,
		KindWatering,
		KindNotification,
	}
}

var kindSet = func() map[Kind]struct{} {
	m := make(map[Kind]struct{}, len(Kinds()))
	for _, k := range Kinds() {
		m[k] = struct{}{}
	}
	return m
}()

// Valid reports whether k is a member of the taxonomy.
func (k Kind) Valid() bool {
	_, ok := kindSet[k]
	return ok
}

func (k Kind) String() string { return string(k) }

// Key returns the canonical durable storage key for k.
func (k Kind) Key() string { return keyPrefix + string(k) }

const keyPrefix = "update."

// legacyKeys maps each kind to storage keys older client builds wrote.
// Reads fall back to these during migration; writes always use Key().
var legacyKeys = map[Kind][]string{
	KindBusinessProfile: {"update.storefront", "@update_flag:storefront"},
	KindWatering:        {"update.plant_care", "@update_flag:plant_care"},
	KindWishlist:        {"@update_flag:wishlist"},
	KindProduct:         {"@update_flag:product"},
	KindOrder:           {"@update_flag:order"},
}

// LegacyKeys returns alias storage keys for k, oldest last. Nil when the
// kind never had another key.
func (k Kind) LegacyKeys() []string { return legacyKeys[k] }

// ParseKind resolves a taxonomy member from its string form.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown update kind %q", s)
	}
	return k, nil
}

// KindForStorageKey resolves a durable key (canonical or legacy) back to its
// kind. Used when enumerating the store for diagnostics.
func KindForStorageKey(key string) (Kind, bool) {
	if strings.HasPrefix(key, keyPrefix) {
		k := Kind(key[len(keyPrefix):])
		if k.Valid() {
			return k, true
		}
	}
	for k, aliases := range legacyKeys {
		for _, a := range aliases {
			if a == key {
				return k, true
			}
		}
	}
	return "", false
}
