package usecase

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/config"
	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/model"
	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/repository"
	"github.com/vasapolrittideah/crm-identity-api/shared/auth"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func cloneAccount(a *model.Account) *model.Account {
	c := *a
	c.Roles = append([]string(nil), a.Roles...)
	c.OAuthLinks = append([]model.OAuthLink(nil), a.OAuthLinks...)
	return &c
}

// fakeAccountRepo is an in-memory AccountRepository with the same
// revision semantics as the Mongo implementation.
type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[bson.ObjectID]*model.Account

	// staleSaves makes the next n Save calls fail with ErrStaleAccount.
	staleSaves int
	// beforeCreate runs right before Create stores the account.
	beforeCreate func()
	// concurrentWrite is applied once to the stored account at the start of
	// the next Save, as if another request had written it first.
	concurrentWrite func(stored *model.Account)
	findErr         error
	updateErr       error

	saves   int
	creates int
	updates int
}

func newFakeAccountRepo(accounts ...*model.Account) *fakeAccountRepo {
	r := &fakeAccountRepo{accounts: map[bson.ObjectID]*model.Account{}}
	for _, a := range accounts {
		if a.ID.IsZero() {
			a.ID = bson.NewObjectID()
		}
		if a.Revision == 0 {
			a.Revision = 1
		}
		r.accounts[a.ID] = cloneAccount(a)
	}
	return r
}

func (r *fakeAccountRepo) get(id bson.ObjectID) *model.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		return cloneAccount(a)
	}
	return nil
}

func (r *fakeAccountRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

func (r *fakeAccountRepo) FindByOAuthLink(_ context.Context, provider, providerID string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, a := range r.accounts {
		if a.FindOAuthLink(provider, providerID) >= 0 {
			return cloneAccount(a), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeAccountRepo) FindByEmail(_ context.Context, email string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, a := range r.accounts {
		if a.Email == email {
			return cloneAccount(a), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeAccountRepo) FindByID(_ context.Context, id string) (*model.Account, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrInvalidID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	if a, ok := r.accounts[objectID]; ok {
		return cloneAccount(a), nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeAccountRepo) Create(_ context.Context, account *model.Account) (*model.Account, error) {
	if r.beforeCreate != nil {
		r.beforeCreate()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == account.Email {
			return nil, repository.ErrDuplicateKey
		}
	}
	account.ID = bson.NewObjectID()
	account.Revision = 1
	r.accounts[account.ID] = cloneAccount(account)
	r.creates++
	return account, nil
}

func (r *fakeAccountRepo) Save(_ context.Context, account *model.Account) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.concurrentWrite != nil {
		if stored, ok := r.accounts[account.ID]; ok {
			r.concurrentWrite(stored)
			stored.Revision++
		}
		r.concurrentWrite = nil
	}
	if r.staleSaves > 0 {
		r.staleSaves--
		if stored, ok := r.accounts[account.ID]; ok {
			stored.Revision++
		}
		return nil, repository.ErrStaleAccount
	}
	stored, ok := r.accounts[account.ID]
	if !ok || stored.Revision != account.Revision {
		return nil, repository.ErrStaleAccount
	}
	account.Revision++
	r.accounts[account.ID] = cloneAccount(account)
	r.saves++
	return account, nil
}

func (r *fakeAccountRepo) Update(
	_ context.Context,
	id string,
	params repository.UpdateAccountParams,
) (*model.Account, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrInvalidID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	a, ok := r.accounts[objectID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if params.PasswordHash != nil {
		a.PasswordHash = *params.PasswordHash
	}
	if params.Disabled != nil {
		a.Disabled = *params.Disabled
	}
	if params.IncrementTokenVersion {
		a.TokenVersion++
	}
	a.Revision++
	r.updates++
	return cloneAccount(a), nil
}

type fakeResetRepo struct {
	mu       sync.Mutex
	requests []*model.ResetRequest
	countErr error
	sweepErr error
}

func (r *fakeResetRepo) all() []model.ResetRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ResetRequest, 0, len(r.requests))
	for _, req := range r.requests {
		out = append(out, *req)
	}
	return out
}

func (r *fakeResetRepo) Insert(_ context.Context, req *model.ResetRequest) (*model.ResetRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req.ID = bson.NewObjectID()
	c := *req
	r.requests = append(r.requests, &c)
	return req, nil
}

func (r *fakeResetRepo) FindByTokenHash(_ context.Context, tokenHash string) (*model.ResetRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.TokenHash == tokenHash {
			c := *req
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeResetRepo) MarkUsed(_ context.Context, id bson.ObjectID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.ID == id {
			if req.UsedAt != nil {
				return repository.ErrAlreadyUsed
			}
			t := at
			req.UsedAt = &t
			return nil
		}
	}
	return repository.ErrAlreadyUsed
}

func (r *fakeResetRepo) ReleaseClaim(_ context.Context, id bson.ObjectID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.ID == id && req.UsedAt != nil && req.UsedAt.Equal(at) {
			req.UsedAt = nil
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeResetRepo) CountByEmailSince(_ context.Context, email string, since time.Time) (int64, error) {
	return r.count(func(req *model.ResetRequest) bool { return req.Email == email }, since)
}

func (r *fakeResetRepo) CountByIPHashSince(_ context.Context, ipHash string, since time.Time) (int64, error) {
	return r.count(func(req *model.ResetRequest) bool { return req.IPHash == ipHash }, since)
}

func (r *fakeResetRepo) count(match func(*model.ResetRequest) bool, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countErr != nil {
		return 0, r.countErr
	}
	var n int64
	for _, req := range r.requests {
		if match(req) && req.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (r *fakeResetRepo) DeleteExpiredUnused(_ context.Context, now time.Time) (int64, error) {
	return r.deleteWhere(func(req *model.ResetRequest) bool {
		return req.UsedAt == nil && req.ExpiresAt.Before(now)
	})
}

func (r *fakeResetRepo) DeleteUsedOlderThan(_ context.Context, ts time.Time) (int64, error) {
	return r.deleteWhere(func(req *model.ResetRequest) bool {
		return req.UsedAt != nil && req.UsedAt.Before(ts)
	})
}

func (r *fakeResetRepo) deleteWhere(match func(*model.ResetRequest) bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sweepErr != nil {
		return 0, r.sweepErr
	}
	kept := r.requests[:0]
	var n int64
	for _, req := range r.requests {
		if match(req) {
			n++
			continue
		}
		kept = append(kept, req)
	}
	r.requests = kept
	return n, nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[bson.ObjectID]*model.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[bson.ObjectID]*model.Session{}}
}

func (r *fakeSessionRepo) Create(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *session
	r.sessions[session.ID] = &c
	return nil
}

func (r *fakeSessionRepo) FindByID(_ context.Context, id bson.ObjectID) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		c := *s
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeSessionRepo) Rotate(
	_ context.Context,
	id bson.ObjectID,
	prevRefreshHash string,
	params repository.RotateSessionParams,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.RefreshTokenHash != prevRefreshHash {
		return repository.ErrNotFound
	}
	s.AccessTokenHash = params.AccessTokenHash
	s.RefreshTokenHash = params.RefreshTokenHash
	s.ExpiresAt = params.ExpiresAt
	return nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

func (a *fakeAudit) Record(_ context.Context, event model.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *fakeAudit) kinds() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Kind)
	}
	return out
}

type fakeDelivery struct {
	mu        sync.Mutex
	delivered []DeliveryRequest
	err       error
	devToken  bool
}

func (d *fakeDelivery) Deliver(_ context.Context, req DeliveryRequest) (*DeliveryResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.delivered = append(d.delivered, req)
	if d.devToken {
		return &DeliveryResult{DevToken: req.Token}, nil
	}
	return &DeliveryResult{}, nil
}

var testTokenConfig = config.TokenConfig{
	Issuer:                "crm-test",
	AccessTokenSecret:     "access-secret",
	AccessTokenExpiresIn:  15 * time.Minute,
	RefreshTokenSecret:    "refresh-secret",
	RefreshTokenExpiresIn: time.Hour,
}

func testJWTAuthenticator() auth.JWTAuthenticator {
	return auth.NewJWTAuthenticator(testTokenConfig.Issuer, testTokenConfig.Issuer)
}
