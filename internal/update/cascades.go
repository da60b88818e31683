package update

// DefaultCascades is the dependency table shipped with the app: when the key
// kind fires, the listed kinds are also marked dirty.
//
// The table must stay a DAG. Inventory and BusinessProfile both point at
// Dashboard (the shared storefront aggregate) rather than at each other, so
// either firing invalidates the combined view without mutual recursion.
func DefaultCascades() map[Kind][]Kind {
	return map[Kind][]Kind{
		KindWishlist:        {KindProduct},
		KindProduct:         {KindDashboard},
		KindReview:          {KindProduct, KindBusinessProfile},
		KindInventory:       {KindProduct, KindDashboard},
		KindOrder:           {KindInventory, KindDashboard},
		KindBusinessProfile: {KindDashboard},
		KindProfile:         {KindSettings},
		KindCustomer:        {KindBusinessProfile},
		KindMessage:         {KindNotification},
		KindWatering:        {KindNotification},
	}
}
