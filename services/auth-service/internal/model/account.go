package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Role names, lowest privilege first.
const (
	RoleViewer = "viewer"
	RoleAgent  = "agent"
	RoleAdmin  = "admin"
)

// Account represents an authenticatable user of the CRM.
//
// An account must keep at least one usable authentication method: a non-empty
// PasswordHash or at least one OAuthLink.
type Account struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	Email        string        `bson:"email"`
	Username     string        `bson:"username"`
	DisplayName  string        `bson:"display_name"`
	PasswordHash string        `bson:"password_hash"`
	TokenVersion int64         `bson:"token_version"`
	Roles        []string      `bson:"roles"`
	Disabled     bool          `bson:"disabled"`
	OAuthLinks   []OAuthLink   `bson:"oauth_links"`
	Revision     int64         `bson:"revision"`
	CreatedAt    time.Time     `bson:"created_at"`
	UpdatedAt    time.Time     `bson:"updated_at"`
}

// HasPassword reports whether the account has a local password.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// FindOAuthLink returns the index of the link for the given provider identity, or -1.
func (a *Account) FindOAuthLink(provider, providerID string) int {
	for i, link := range a.OAuthLinks {
		if link.Provider == provider && link.ProviderID == providerID {
			return i
		}
	}
	return -1
}

// FindProvider returns the index of the first link for the given provider, or -1.
func (a *Account) FindProvider(provider string) int {
	for i, link := range a.OAuthLinks {
		if link.Provider == provider {
			return i
		}
	}
	return -1
}
