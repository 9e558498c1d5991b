package provider

import (
	"context"
	"errors"
)

var (
	ErrInvalidAudience = errors.New("token was not issued for this client")
	ErrUpstream        = errors.New("identity provider returned an error")
)

// RawProfile is the identity a provider returned, before normalization.
// Values keep whatever type the provider payload used.
type RawProfile struct {
	ProviderID  any
	Email       any
	DisplayName any
	AvatarURL   any
}

// ProfileFetcher resolves a provider credential to the caller's identity.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, token string) (*RawProfile, error)
}
