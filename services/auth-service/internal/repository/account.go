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

// AccountRepository defines the interface for account storage.
//
// Lookups return ErrNotFound when nothing matches. Save performs an
// optimistic write: it only succeeds if the stored revision still equals
// account.Revision, otherwise it returns ErrStaleAccount.
type AccountRepository interface {
	FindByOAuthLink(ctx context.Context, provider, providerID string) (*model.Account, error)
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	FindByID(ctx context.Context, id string) (*model.Account, error)
	Create(ctx context.Context, account *model.Account) (*model.Account, error)
	Save(ctx context.Context, account *model.Account) (*model.Account, error)
	Update(ctx context.Context, id string, params UpdateAccountParams) (*model.Account, error)
}

// UpdateAccountParams defines the optional parameters for patching an account.
// Only the fields that are not nil will be updated.
type UpdateAccountParams struct {
	PasswordHash          *string
	Disabled              *bool
	IncrementTokenVersion bool
}

const accountCollection = "accounts"

type accountMongoRepository struct {
	db      *mongo.Database
	timeout time.Duration
}

// NewAccountMongoRepository creates the MongoDB account repository and its indexes.
func NewAccountMongoRepository(
	ctx context.Context,
	logger *zerolog.Logger,
	db *mongo.Database,
	timeout time.Duration,
) AccountRepository {
	collection := db.Collection(accountCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// Backstop for the (provider, provider_id) uniqueness that the
			// resolution flow enforces by lookup-before-create.
			Keys: bson.D{
				{Key: "oauth_links.provider", Value: 1},
				{Key: "oauth_links.provider_id", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"oauth_links.provider_id": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "username", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"username": bson.M{"$gt": ""}}),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create account indexes")
	}

	return &accountMongoRepository{db: db, timeout: timeout}
}

func (r *accountMongoRepository) collection() *mongo.Collection {
	return r.db.Collection(accountCollection)
}

func (r *accountMongoRepository) FindByOAuthLink(
	ctx context.Context,
	provider string,
	providerID string,
) (*model.Account, error) {
	filter := bson.M{
		"oauth_links": bson.M{
			"$elemMatch": bson.M{
				"provider":    provider,
				"provider_id": providerID,
			},
		},
	}
	return r.findOne(ctx, filter)
}

func (r *accountMongoRepository) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *accountMongoRepository) FindByID(ctx context.Context, id string) (*model.Account, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}

	return r.findOne(ctx, bson.M{"_id": objectID})
}

func (r *accountMongoRepository) findOne(ctx context.Context, filter bson.M) (*model.Account, error) {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	var account model.Account
	if err := r.collection().FindOne(ctx, filter).Decode(&account); err != nil {
		return nil, translateError(err)
	}

	return &account, nil
}

func (r *accountMongoRepository) Create(ctx context.Context, account *model.Account) (*model.Account, error) {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	account.Revision = 1
	if account.OAuthLinks == nil {
		account.OAuthLinks = []model.OAuthLink{}
	}

	result, err := r.collection().InsertOne(ctx, account)
	if err != nil {
		return nil, translateError(err)
	}

	if objectID, ok := result.InsertedID.(bson.ObjectID); ok {
		account.ID = objectID
	}

	return account, nil
}

func (r *accountMongoRepository) Save(ctx context.Context, account *model.Account) (*model.Account, error) {
	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	expected := account.Revision

	next := *account
	next.Revision = expected + 1
	next.UpdatedAt = time.Now()

	result, err := r.collection().ReplaceOne(ctx, bson.M{
		"_id":      account.ID,
		"revision": expected,
	}, &next)
	if err != nil {
		return nil, translateError(err)
	}

	if result.MatchedCount == 0 {
		return nil, ErrStaleAccount
	}

	*account = next
	return account, nil
}

func (r *accountMongoRepository) Update(
	ctx context.Context,
	id string,
	params UpdateAccountParams,
) (*model.Account, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}

	ctx, cancel := queryContext(ctx, r.timeout)
	defer cancel()

	update := buildAccountUpdate(params, time.Now())

	result := r.collection().FindOneAndUpdate(
		ctx,
		bson.M{"_id": objectID},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var account model.Account
	if err := result.Decode(&account); err != nil {
		return nil, translateError(err)
	}

	return &account, nil
}

// buildAccountUpdate always bumps the revision so that any concurrent
// optimistic Save of a stale copy fails instead of clobbering this patch.
func buildAccountUpdate(params UpdateAccountParams, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if params.PasswordHash != nil {
		set["password_hash"] = *params.PasswordHash
	}
	if params.Disabled != nil {
		set["disabled"] = *params.Disabled
	}

	inc := bson.M{"revision": 1}
	if params.IncrementTokenVersion {
		inc["token_version"] = 1
	}

	return bson.M{"$set": set, "$inc": inc}
}
