package config

import (
	"github.com/caarlos0/env/v11"
)

// ProviderCredentials are the OAuth client settings of one provider.
type ProviderCredentials struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	CallbackURL  string `env:"CALLBACK_URL"`
	BaseURL      string `env:"BASE_URL"`
	Tenant       string `env:"TENANT"`
}

// ProvidersConfig groups the credentials of every supported provider.
type ProvidersConfig struct {
	Google    ProviderCredentials `envPrefix:"GOOGLE_"`
	Microsoft ProviderCredentials `envPrefix:"MICROSOFT_"`
	Nextcloud ProviderCredentials `envPrefix:"NEXTCLOUD_"`
}

// LoadProviders reads provider credentials from the environment. It is
// called on every use so credential changes are picked up without a restart.
func LoadProviders() (ProvidersConfig, error) {
	return env.ParseAs[ProvidersConfig]()
}

// For returns the credentials of the named provider.
func (p ProvidersConfig) For(provider string) (ProviderCredentials, bool) {
	switch provider {
	case "google":
		return p.Google, true
	case "microsoft":
		return p.Microsoft, true
	case "nextcloud":
		return p.Nextcloud, true
	default:
		return ProviderCredentials{}, false
	}
}

// MissingReason explains why the provider cannot be used, or returns "" when it can.
func (c ProviderCredentials) MissingReason(requireBaseURL bool) string {
	switch {
	case c.ClientID == "" && c.ClientSecret == "":
		return "client id and secret are not configured"
	case c.ClientID == "":
		return "client id is not configured"
	case c.ClientSecret == "":
		return "client secret is not configured"
	case requireBaseURL && c.BaseURL == "":
		return "base url is not configured"
	default:
		return ""
	}
}
