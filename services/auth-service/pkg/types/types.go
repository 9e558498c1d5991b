package types

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Tokens is the credential pair handed to the client after a login.
type Tokens struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}

// JWTClaims are embedded in access and refresh tokens. TokenVersion is the
// account token version at issuance; a token whose version no longer matches
// the stored one is rejected.
type JWTClaims struct {
	UserID       string   `json:"uid"`
	SessionID    string   `json:"sid"`
	TokenVersion int64    `json:"tv"`
	Roles        []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// User is the sanitized account view returned to clients. It never carries
// the password hash.
type User struct {
	ID              string           `json:"id"`
	Email           string           `json:"email"`
	Username        string           `json:"username"`
	DisplayName     string           `json:"display_name"`
	Roles           []string         `json:"roles"`
	HasPassword     bool             `json:"has_password"`
	LinkedProviders []LinkedProvider `json:"linked_providers"`
}

// LinkedProvider is the public view of one OAuth link.
type LinkedProvider struct {
	Provider   string    `json:"provider"`
	Email      string    `json:"email"`
	LinkedAt   time.Time `json:"linked_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// ProviderAvailability tells the login UI whether a provider can be used.
type ProviderAvailability struct {
	Provider string `json:"provider"`
	Enabled  bool   `json:"enabled"`
	Reason   string `json:"reason,omitempty"`
}
