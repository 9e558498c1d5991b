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

// SessionRepository stores issued sessions. Documents are removed by a TTL
// index once the refresh token has expired.
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	FindByID(ctx context.Context, id bson.ObjectID) (*model.Session, error)

	// Rotate replaces the token hashes of a session, but only while its
	// refresh token hash is still prevRefreshHash. Otherwise it returns ErrNotFound.
	Rotate(ctx context.Context, id bson.ObjectID, prevRefreshHash string, params RotateSessionParams) error
}

type RotateSessionParams struct {
	AccessTokenHash  string
	RefreshTokenHash string
	ExpiresAt        time.Time
}

const sessionCollection = "sessions"

type sessionMongoRepository struct {
	db      *mongo.Database
	timeout time.Duration
}

// NewSessionMongoRepository creates the MongoDB session repository and its indexes.
func NewSessionMongoRepository(
	ctx context.Context,
	logger *zerolog.Logger,
	db *mongo.Database,
	timeout time.Duration,
) SessionRepository {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
		{
			Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}

	if _, err := db.Collection(sessionCollection).Indexes().CreateMany(ctx, indexes); err != nil {
		logger.Fatal().Err(err).Msg("failed to create indexes for sessions collection")
	}

	return &sessionMongoRepository{db: db, timeout: timeout}
}

func (r *sessionMongoRepository) Create(ctx context.Context, session *model.Session) error {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	if session.ID.IsZero() {
		session.ID = bson.NewObjectID()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	if _, err := r.db.Collection(sessionCollection).InsertOne(ctx, session); err != nil {
		return translateError(err)
	}

	return nil
}

func (r *sessionMongoRepository) FindByID(ctx context.Context, id bson.ObjectID) (*model.Session, error) {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	var session model.Session
	if err := r.db.Collection(sessionCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&session); err != nil {
		return nil, translateError(err)
	}

	return &session, nil
}

func (r *sessionMongoRepository) Rotate(
	ctx context.Context,
	id bson.ObjectID,
	prevRefreshHash string,
	params RotateSessionParams,
) error {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	filter := bson.M{"_id": id, "refresh_token_hash": prevRefreshHash}
	update := bson.M{"$set": bson.M{
		"access_token_hash":  params.AccessTokenHash,
		"refresh_token_hash": params.RefreshTokenHash,
		"expires_at":         params.ExpiresAt,
	}}

	result, err := r.db.Collection(sessionCollection).UpdateOne(ctx, filter, update)
	if err != nil {
		return translateError(err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	return nil
}
