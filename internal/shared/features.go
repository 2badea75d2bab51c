package shared

// Gated feature areas of the catalog. Feature ids are opaque strings at the
// resolution layer; this list is the set the application itself gates on.
const (
	FeatureDataProducts  = "data-products"
	FeatureDataContracts = "data-contracts"
	FeatureDomains       = "domains"
	FeatureNotifications = "notifications"
	FeatureComments      = "comments"
	FeatureSettings      = "settings"
)

// Features lists all gated feature areas.
func Features() []string {
	return []string{
		FeatureDataProducts,
		FeatureDataContracts,
		FeatureDomains,
		FeatureNotifications,
		FeatureComments,
		FeatureSettings,
	}
}
