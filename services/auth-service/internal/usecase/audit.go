package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/model"
	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/repository"
)

// ClientInfo describes the caller of the current request.
type ClientInfo struct {
	IP        string
	UserAgent string
	RequestID string
}

type clientInfoKey struct{}

// WithClientInfo attaches the caller description to ctx.
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, info)
}

// ClientInfoFromContext returns the caller description, if any.
func ClientInfoFromContext(ctx context.Context) ClientInfo {
	if info, ok := ctx.Value(clientInfoKey{}).(ClientInfo); ok {
		return info
	}
	return ClientInfo{}
}

// AuditRecorder records security events. Recording is best effort and never
// fails the calling operation.
type AuditRecorder interface {
	Record(ctx context.Context, event model.AuditEvent)
}

type auditRecorder struct {
	repo   repository.AuditEventRepository
	logger *zerolog.Logger
}

// NewAuditRecorder persists events through repo and mirrors them to the log.
func NewAuditRecorder(repo repository.AuditEventRepository, logger *zerolog.Logger) AuditRecorder {
	return &auditRecorder{repo: repo, logger: logger}
}

func (r *auditRecorder) Record(ctx context.Context, event model.AuditEvent) {
	info := ClientInfoFromContext(ctx)
	if event.IP == "" {
		event.IP = info.IP
	}
	if event.UserAgent == "" {
		event.UserAgent = info.UserAgent
	}
	if event.RequestID == "" {
		event.RequestID = info.RequestID
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	r.logger.Info().
		Str("type", "audit").
		Str("kind", event.Kind).
		Str("actor_id", event.ActorID).
		Str("email", event.Email).
		Str("ip", event.IP).
		Str("request_id", event.RequestID).
		Fields(event.Extra).
		Msg("audit event")

	if err := r.repo.Insert(ctx, &event); err != nil {
		r.logger.Error().Err(err).Str("kind", event.Kind).Msg("failed to persist audit event")
	}
}
