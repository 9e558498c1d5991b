package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Audit event kinds.
const (
	AuditOAuthLoginSuccess      = "oauth_login_success"
	AuditOAuthLoginFailure      = "oauth_login_failure"
	AuditOAuthUnlink            = "oauth_unlink"
	AuditPasswordResetRequested = "password_reset_requested"
	AuditPasswordResetCompleted = "password_reset_completed"
)

// AuditEvent is an append-only record of a security relevant action.
type AuditEvent struct {
	ID        bson.ObjectID  `bson:"_id,omitempty"`
	Kind      string         `bson:"kind"`
	ActorID   string         `bson:"actor_id,omitempty"`
	Email     string         `bson:"email,omitempty"`
	IP        string         `bson:"ip,omitempty"`
	UserAgent string         `bson:"user_agent,omitempty"`
	RequestID string         `bson:"request_id,omitempty"`
	Extra     map[string]any `bson:"extra,omitempty"`
	CreatedAt time.Time      `bson:"created_at"`
}
