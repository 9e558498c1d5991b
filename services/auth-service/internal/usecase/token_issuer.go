package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/config"
	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/model"
	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/repository"
	authtypes "github.com/vasapolrittideah/crm-identity-api/services/auth-service/pkg/types"
	"github.com/vasapolrittideah/crm-identity-api/shared/auth"
	"github.com/vasapolrittideah/crm-identity-api/shared/security"
)

// LoginResult is returned after a successful login.
type LoginResult struct {
	Tokens *authtypes.Tokens `json:"tokens"`
	User   authtypes.User    `json:"user"`
}

// TokenIssuer issues a session credential for a resolved account.
type TokenIssuer interface {
	Issue(ctx context.Context, account *model.Account) (*LoginResult, error)

	// Refresh exchanges the current refresh token of a session for a new
	// pair. The presented refresh token stops working once it is used.
	Refresh(ctx context.Context, refreshToken string) (*LoginResult, error)
}

// SessionValidator checks an access token against the account's current
// token version.
type SessionValidator interface {
	Validate(ctx context.Context, accessToken string) (*authtypes.JWTClaims, error)
}

type jwtTokenIssuer struct {
	accountRepo repository.AccountRepository
	sessionRepo repository.SessionRepository
	jwtAuth     auth.JWTAuthenticator
	tokenCfg    config.TokenConfig
	now         func() time.Time
}

// NewTokenIssuer creates a TokenIssuer that signs an access/refresh pair
// embedding the account token version and records the session.
func NewTokenIssuer(
	accountRepo repository.AccountRepository,
	sessionRepo repository.SessionRepository,
	jwtAuth auth.JWTAuthenticator,
	tokenCfg config.TokenConfig,
) TokenIssuer {
	return &jwtTokenIssuer{
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
		jwtAuth:     jwtAuth,
		tokenCfg:    tokenCfg,
		now:         time.Now,
	}
}

func (i *jwtTokenIssuer) Issue(ctx context.Context, account *model.Account) (*LoginResult, error) {
	if account.Disabled {
		return nil, ErrAccountDisabled
	}

	now := i.now()
	info := ClientInfoFromContext(ctx)
	session := &model.Session{
		ID:           bson.NewObjectID(),
		AccountID:    account.ID,
		TokenVersion: account.TokenVersion,
		IP:           info.IP,
		UserAgent:    info.UserAgent,
		CreatedAt:    now,
	}

	tokens, err := i.signPair(account, session.ID, now)
	if err != nil {
		return nil, err
	}

	session.AccessTokenHash = security.SHA256Hex(tokens.AccessToken)
	session.RefreshTokenHash = security.SHA256Hex(tokens.RefreshToken)
	session.ExpiresAt = tokens.RefreshTokenExpiresAt

	if err := i.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	return &LoginResult{Tokens: tokens, User: SanitizeAccount(account)}, nil
}

func (i *jwtTokenIssuer) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims := &authtypes.JWTClaims{}
	if _, err := i.jwtAuth.ValidateTokenWithClaims(refreshToken, i.tokenCfg.RefreshTokenSecret, claims); err != nil {
		return nil, ErrInvalidSession
	}

	sessionID, err := bson.ObjectIDFromHex(claims.SessionID)
	if err != nil {
		return nil, ErrInvalidSession
	}

	session, err := i.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionRevoked
		}
		return nil, err
	}

	presentedHash := security.SHA256Hex(refreshToken)
	if session.RefreshTokenHash != presentedHash || session.AccountID.Hex() != claims.UserID {
		return nil, ErrSessionRevoked
	}

	account, err := i.accountRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidID) {
			return nil, ErrSessionRevoked
		}
		return nil, err
	}

	if account.Disabled {
		return nil, ErrAccountDisabled
	}

	if account.TokenVersion != claims.TokenVersion || account.TokenVersion != session.TokenVersion {
		return nil, ErrSessionRevoked
	}

	tokens, err := i.signPair(account, session.ID, i.now())
	if err != nil {
		return nil, err
	}

	err = i.sessionRepo.Rotate(ctx, session.ID, presentedHash, repository.RotateSessionParams{
		AccessTokenHash:  security.SHA256Hex(tokens.AccessToken),
		RefreshTokenHash: security.SHA256Hex(tokens.RefreshToken),
		ExpiresAt:        tokens.RefreshTokenExpiresAt,
	})
	if err != nil {
		// Another refresh with the same token won.
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionRevoked
		}
		return nil, err
	}

	return &LoginResult{Tokens: tokens, User: SanitizeAccount(account)}, nil
}

func (i *jwtTokenIssuer) signPair(account *model.Account, sessionID bson.ObjectID, now time.Time) (*authtypes.Tokens, error) {
	accessExpiresAt := now.Add(i.tokenCfg.AccessTokenExpiresIn)
	refreshExpiresAt := now.Add(i.tokenCfg.RefreshTokenExpiresIn)

	accessToken, err := i.generateToken(account, sessionID.Hex(), i.tokenCfg.AccessTokenSecret, now, accessExpiresAt)
	if err != nil {
		return nil, err
	}

	refreshToken, err := i.generateToken(account, sessionID.Hex(), i.tokenCfg.RefreshTokenSecret, now, refreshExpiresAt)
	if err != nil {
		return nil, err
	}

	return &authtypes.Tokens{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		AccessTokenExpiresAt:  accessExpiresAt,
		RefreshTokenExpiresAt: refreshExpiresAt,
	}, nil
}

func (i *jwtTokenIssuer) generateToken(
	account *model.Account,
	sessionID string,
	secret string,
	issuedAt time.Time,
	expiresAt time.Time,
) (string, error) {
	claims := authtypes.JWTClaims{
		UserID:       account.ID.Hex(),
		SessionID:    sessionID,
		TokenVersion: account.TokenVersion,
		Roles:        account.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   account.ID.Hex(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			Issuer:    i.jwtAuth.Issuer(),
			Audience:  jwt.ClaimStrings{i.jwtAuth.Audience()},
		},
	}

	return i.jwtAuth.GenerateToken(claims, secret)
}

// SanitizeAccount projects an account to its client view.
func SanitizeAccount(account *model.Account) authtypes.User {
	return authtypes.User{
		ID:              account.ID.Hex(),
		Email:           account.Email,
		Username:        account.Username,
		DisplayName:     account.DisplayName,
		Roles:           append([]string(nil), account.Roles...),
		HasPassword:     account.HasPassword(),
		LinkedProviders: linkedProviders(account),
	}
}

func linkedProviders(account *model.Account) []authtypes.LinkedProvider {
	out := make([]authtypes.LinkedProvider, 0, len(account.OAuthLinks))
	for _, link := range account.OAuthLinks {
		out = append(out, authtypes.LinkedProvider{
			Provider:   link.Provider,
			Email:      link.Email,
			LinkedAt:   link.LinkedAt,
			LastUsedAt: link.LastUsedAt,
		})
	}
	return out
}

type sessionValidator struct {
	accountRepo repository.AccountRepository
	sessionRepo repository.SessionRepository
	jwtAuth     auth.JWTAuthenticator
	secret      string
}

// NewSessionValidator validates access tokens signed with secret against the
// account and the session they were issued for.
func NewSessionValidator(
	accountRepo repository.AccountRepository,
	sessionRepo repository.SessionRepository,
	jwtAuth auth.JWTAuthenticator,
	secret string,
) SessionValidator {
	return &sessionValidator{
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
		jwtAuth:     jwtAuth,
		secret:      secret,
	}
}

func (v *sessionValidator) Validate(ctx context.Context, accessToken string) (*authtypes.JWTClaims, error) {
	claims := &authtypes.JWTClaims{}
	if _, err := v.jwtAuth.ValidateTokenWithClaims(accessToken, v.secret, claims); err != nil {
		return nil, ErrInvalidSession
	}

	sessionID, err := bson.ObjectIDFromHex(claims.SessionID)
	if err != nil {
		return nil, ErrInvalidSession
	}

	account, err := v.accountRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidID) {
			return nil, ErrSessionRevoked
		}
		return nil, err
	}

	if account.Disabled {
		return nil, ErrAccountDisabled
	}

	if account.TokenVersion != claims.TokenVersion {
		return nil, ErrSessionRevoked
	}

	session, err := v.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionRevoked
		}
		return nil, err
	}

	if session.AccountID != account.ID || session.AccessTokenHash != security.SHA256Hex(accessToken) {
		return nil, ErrSessionRevoked
	}

	return claims, nil
}
