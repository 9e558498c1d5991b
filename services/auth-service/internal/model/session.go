package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Session records one issued credential pair. Only SHA-256 hashes of the
// tokens are stored. ExpiresAt is the refresh token expiry.
type Session struct {
	ID               bson.ObjectID `bson:"_id"`
	AccountID        bson.ObjectID `bson:"account_id"`
	TokenVersion     int64         `bson:"token_version"`
	AccessTokenHash  string        `bson:"access_token_hash"`
	RefreshTokenHash string        `bson:"refresh_token_hash"`
	IP               string        `bson:"ip,omitempty"`
	UserAgent        string        `bson:"user_agent,omitempty"`
	CreatedAt        time.Time     `bson:"created_at"`
	ExpiresAt        time.Time     `bson:"expires_at"`
}
