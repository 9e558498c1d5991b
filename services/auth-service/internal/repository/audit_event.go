package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/model"
)

// AuditEventRepository appends audit events.
type AuditEventRepository interface {
	Insert(ctx context.Context, event *model.AuditEvent) error
}

const auditEventCollection = "audit_events"

type auditEventMongoRepository struct {
	db      *mongo.Database
	timeout time.Duration
}

func NewAuditEventMongoRepository(db *mongo.Database, timeout time.Duration) AuditEventRepository {
	return &auditEventMongoRepository{db: db, timeout: timeout}
}

func (r *auditEventMongoRepository) Insert(ctx context.Context, event *model.AuditEvent) error {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	result, err := r.db.Collection(auditEventCollection).InsertOne(ctx, event)
	if err != nil {
		return translateError(err)
	}

	if objectID, ok := result.InsertedID.(bson.ObjectID); ok {
		event.ID = objectID
	}

	return nil
}
