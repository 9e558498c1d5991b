package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ResetRequest represents a single-use password reset ticket.
// Only the SHA-256 hash of the token handed to the user is stored.
type ResetRequest struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Email     string        `bson:"email"`
	TokenHash string        `bson:"token_hash"`
	IPHash    string        `bson:"ip_hash"`
	UserAgent string        `bson:"user_agent,omitempty"`
	UsedAt    *time.Time    `bson:"used_at,omitempty"`
	ExpiresAt time.Time     `bson:"expires_at"`
	CreatedAt time.Time     `bson:"created_at"`
}

// IsValid reports whether the request can still be consumed at the given time.
func (r *ResetRequest) IsValid(now time.Time) bool {
	return r.UsedAt == nil && !now.After(r.ExpiresAt)
}
