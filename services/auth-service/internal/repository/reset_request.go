package repository

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/model"
)

// ResetRequestRepository defines the interface for password reset request storage.
type ResetRequestRepository interface {
	// Insert stores a new request.
	Insert(ctx context.Context, req *model.ResetRequest) (*model.ResetRequest, error)

	// FindByTokenHash retrieves a request by the SHA-256 hash of its token.
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.ResetRequest, error)

	// MarkUsed consumes the request. It returns ErrAlreadyUsed if another
	// caller consumed it first.
	MarkUsed(ctx context.Context, id bson.ObjectID, at time.Time) error

	// ReleaseClaim undoes a MarkUsed made at at. It returns ErrNotFound if the
	// request is gone or was not claimed at that instant.
	ReleaseClaim(ctx context.Context, id bson.ObjectID, at time.Time) error

	// CountByEmailSince counts requests for email created after since.
	CountByEmailSince(ctx context.Context, email string, since time.Time) (int64, error)

	// CountByIPHashSince counts requests from ipHash created after since.
	CountByIPHashSince(ctx context.Context, ipHash string, since time.Time) (int64, error)

	// DeleteExpiredUnused removes requests that expired before now without being used.
	DeleteExpiredUnused(ctx context.Context, now time.Time) (int64, error)

	// DeleteUsedOlderThan removes used requests consumed before ts.
	DeleteUsedOlderThan(ctx context.Context, ts time.Time) (int64, error)
}

const resetRequestCollection = "password_reset_requests"

type resetRequestMongoRepository struct {
	db      *mongo.Database
	timeout time.Duration
}

// NewResetRequestMongoRepository creates a new MongoDB repository for password reset requests.
//
// There is deliberately no TTL index on expires_at: used requests are kept
// for a retention period after expiry and the sweep removes them.
func NewResetRequestMongoRepository(
	ctx context.Context,
	logger *zerolog.Logger,
	db *mongo.Database,
	timeout time.Duration,
) ResetRequestRepository {
	collection := db.Collection(resetRequestCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "email", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "ip_hash", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "used_at", Value: 1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create password reset request indexes")
	}

	return &resetRequestMongoRepository{db: db, timeout: timeout}
}

func (r *resetRequestMongoRepository) collection() *mongo.Collection {
	return r.db.Collection(resetRequestCollection)
}

func (r *resetRequestMongoRepository) Insert(
	ctx context.Context,
	req *model.ResetRequest,
) (*model.ResetRequest, error) {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	req.UsedAt = nil

	result, err := r.collection().InsertOne(ctx, req)
	if err != nil {
		return nil, translateError(err)
	}

	if objectID, ok := result.InsertedID.(bson.ObjectID); ok {
		req.ID = objectID
	}

	return req, nil
}

func (r *resetRequestMongoRepository) FindByTokenHash(
	ctx context.Context,
	tokenHash string,
) (*model.ResetRequest, error) {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	var req model.ResetRequest
	if err := r.collection().FindOne(ctx, bson.M{"token_hash": tokenHash}).Decode(&req); err != nil {
		return nil, translateError(err)
	}

	return &req, nil
}

func (r *resetRequestMongoRepository) MarkUsed(ctx context.Context, id bson.ObjectID, at time.Time) error {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	filter := bson.M{
		"_id":     id,
		"used_at": bson.M{"$exists": false},
	}
	update := bson.M{"$set": bson.M{"used_at": at}}

	result, err := r.collection().UpdateOne(ctx, filter, update)
	if err != nil {
		return translateError(err)
	}
	if result.MatchedCount == 0 {
		return ErrAlreadyUsed
	}

	return nil
}

func (r *resetRequestMongoRepository) ReleaseClaim(ctx context.Context, id bson.ObjectID, at time.Time) error {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	filter := bson.M{"_id": id, "used_at": at}
	update := bson.M{"$unset": bson.M{"used_at": ""}}

	result, err := r.collection().UpdateOne(ctx, filter, update)
	if err != nil {
		return translateError(err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *resetRequestMongoRepository) CountByEmailSince(
	ctx context.Context,
	email string,
	since time.Time,
) (int64, error) {
	return r.count(ctx, bson.M{"email": email, "created_at": bson.M{"$gt": since}})
}

func (r *resetRequestMongoRepository) CountByIPHashSince(
	ctx context.Context,
	ipHash string,
	since time.Time,
) (int64, error) {
	return r.count(ctx, bson.M{"ip_hash": ipHash, "created_at": bson.M{"$gt": since}})
}

func (r *resetRequestMongoRepository) count(ctx context.Context, filter bson.M) (int64, error) {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	return r.collection().CountDocuments(ctx, filter)
}

func (r *resetRequestMongoRepository) DeleteExpiredUnused(ctx context.Context, now time.Time) (int64, error) {
	return r.deleteMany(ctx, bson.M{
		"used_at":    bson.M{"$exists": false},
		"expires_at": bson.M{"$lt": now},
	})
}

func (r *resetRequestMongoRepository) DeleteUsedOlderThan(ctx context.Context, ts time.Time) (int64, error) {
	return r.deleteMany(ctx, bson.M{
		"used_at": bson.M{"$lt": ts},
	})
}

func (r *resetRequestMongoRepository) deleteMany(ctx context.Context, filter bson.M) (int64, error) {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	result, err := r.collection().DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}

	return result.DeletedCount, nil
}
