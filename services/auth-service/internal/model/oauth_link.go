package model

import "time"

// Supported OAuth providers.
const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
	ProviderNextcloud = "nextcloud"
)

// Providers lists every supported provider in display order.
var Providers = []string{ProviderGoogle, ProviderMicrosoft, ProviderNextcloud}

// IsKnownProvider reports whether p is one of the supported providers.
func IsKnownProvider(p string) bool {
	for _, known := range Providers {
		if known == p {
			return true
		}
	}
	return false
}

// OAuthLink ties one external provider identity to an account.
// It is embedded in the account document; the pair (Provider, ProviderID)
// is unique across all accounts.
type OAuthLink struct {
	Provider    string    `bson:"provider"`
	ProviderID  string    `bson:"provider_id"`
	Email       string    `bson:"email"`
	DisplayName string    `bson:"display_name"`
	AvatarURL   string    `bson:"avatar_url"`
	LinkedAt    time.Time `bson:"linked_at"`
	LastUsedAt  time.Time `bson:"last_used_at"`
}
