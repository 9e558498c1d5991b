package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/model"
	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/usecase"
	"github.com/vasapolrittideah/crm-identity-api/shared/provider"
)

var (
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrProviderDisabled = errors.New("provider is not available")
)

// ProfileFetchers returns the profile fetcher of a provider.
type ProfileFetchers func(providerName string) (provider.ProfileFetcher, error)

// NewProfileFetchers builds fetchers from the provider configuration as it
// is at the time of each call.
func NewProfileFetchers(source usecase.ProvidersSource, httpClient *http.Client) ProfileFetchers {
	return func(providerName string) (provider.ProfileFetcher, error) {
		cfg, err := source()
		if err != nil {
			return nil, err
		}

		creds, ok := cfg.For(providerName)
		if !ok {
			return nil, ErrUnknownProvider
		}

		if reason := creds.MissingReason(providerName == model.ProviderNextcloud); reason != "" {
			return nil, fmt.Errorf("%w: %s", ErrProviderDisabled, reason)
		}

		switch providerName {
		case model.ProviderGoogle:
			return provider.NewGoogleOAuthProvider(creds.ClientID, httpClient), nil
		case model.ProviderMicrosoft:
			return provider.NewMicrosoftOAuthProvider(httpClient), nil
		case model.ProviderNextcloud:
			return provider.NewNextcloudOAuthProvider(creds.BaseURL, httpClient), nil
		default:
			return nil, ErrUnknownProvider
		}
	}
}
