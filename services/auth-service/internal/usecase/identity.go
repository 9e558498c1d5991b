package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/config"
	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/model"
	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/repository"
	authtypes "github.com/vasapolrittideah/crm-identity-api/services/auth-service/pkg/types"
	"github.com/vasapolrittideah/crm-identity-api/shared/metrics"
)

// IdentityUsecase resolves OAuth identities to accounts and manages the
// provider links of an account.
type IdentityUsecase interface {
	// FindOrCreateAndLogin resolves profile to an account by provider link,
	// then by email, then by provisioning a new account, and logs it in.
	FindOrCreateAndLogin(ctx context.Context, profile authtypes.Profile) (*LoginResult, error)

	// RefreshSession rotates the credential pair of the session the refresh
	// token belongs to.
	RefreshSession(ctx context.Context, refreshToken string) (*LoginResult, error)

	// GetLinkedProviders lists the provider links of an account. Unknown or
	// malformed ids yield an empty list.
	GetLinkedProviders(ctx context.Context, accountID string) ([]authtypes.LinkedProvider, error)

	// UnlinkProvider removes every link to provider from the account unless
	// that would leave the account without a way to sign in.
	UnlinkProvider(ctx context.Context, accountID, provider string) error

	// GetProviderAvailability reports which providers are configured.
	GetProviderAvailability() []authtypes.ProviderAvailability
}

// ProvidersSource returns the current provider configuration.
type ProvidersSource func() (config.ProvidersConfig, error)

const (
	resolvedByLink      = "link"
	resolvedByEmail     = "email"
	resolvedByProvision = "provision"

	maxSaveAttempts = 3
)

type identityUsecase struct {
	accountRepo repository.AccountRepository
	tokenIssuer TokenIssuer
	audit       AuditRecorder
	providers   ProvidersSource
	logger      *zerolog.Logger
	now         func() time.Time
}

// NewIdentityUsecase creates a new instance of IdentityUsecase.
func NewIdentityUsecase(
	accountRepo repository.AccountRepository,
	tokenIssuer TokenIssuer,
	audit AuditRecorder,
	providers ProvidersSource,
	logger *zerolog.Logger,
) IdentityUsecase {
	return &identityUsecase{
		accountRepo: accountRepo,
		tokenIssuer: tokenIssuer,
		audit:       audit,
		providers:   providers,
		logger:      logger,
		now:         time.Now,
	}
}

func (u *identityUsecase) FindOrCreateAndLogin(
	ctx context.Context,
	profile authtypes.Profile,
) (*LoginResult, error) {
	if !model.IsKnownProvider(profile.Provider) || profile.ProviderID == "" {
		return nil, u.loginFailed(ctx, profile, "", ErrInvalidProfile)
	}

	account, path, err := u.resolveAccount(ctx, profile)
	if err != nil {
		return nil, u.loginFailed(ctx, profile, path, err)
	}

	result, err := u.tokenIssuer.Issue(ctx, account)
	if err != nil {
		return nil, u.loginFailed(ctx, profile, path, err)
	}

	u.audit.Record(ctx, model.AuditEvent{
		Kind:    model.AuditOAuthLoginSuccess,
		ActorID: account.ID.Hex(),
		Email:   account.Email,
		Extra: map[string]any{
			"provider":    profile.Provider,
			"provider_id": profile.ProviderID,
			"path":        path,
		},
	})
	metrics.ObserveOAuthLogin(profile.Provider, path, "success")

	return result, nil
}

func (u *identityUsecase) RefreshSession(ctx context.Context, refreshToken string) (*LoginResult, error) {
	result, err := u.tokenIssuer.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			u.logger.Info().Err(err).Msg("session refresh rejected")
		}
		return nil, err
	}
	return result, nil
}

func (u *identityUsecase) resolveAccount(
	ctx context.Context,
	profile authtypes.Profile,
) (*model.Account, string, error) {
	account, err := u.accountRepo.FindByOAuthLink(ctx, profile.Provider, profile.ProviderID)
	switch {
	case err == nil:
		account, err = u.mutateLinks(ctx, account, func(a *model.Account) (bool, error) {
			upsertLink(a, profile, u.now())
			return true, nil
		})
		return account, resolvedByLink, err
	case !errors.Is(err, repository.ErrNotFound):
		return nil, resolvedByLink, err
	}

	email := sanitizeEmail(profile.Email)
	if email != "" {
		account, err := u.accountRepo.FindByEmail(ctx, email)
		switch {
		case err == nil:
			account, err = u.mutateLinks(ctx, account, func(a *model.Account) (bool, error) {
				if a.Disabled {
					return false, ErrAccountDisabled
				}
				upsertLink(a, profile, u.now())
				return true, nil
			})
			return account, resolvedByEmail, err
		case !errors.Is(err, repository.ErrNotFound):
			return nil, resolvedByEmail, err
		}
	}

	account, err = u.provision(ctx, profile, email)
	return account, resolvedByProvision, err
}

func (u *identityUsecase) provision(
	ctx context.Context,
	profile authtypes.Profile,
	email string,
) (*model.Account, error) {
	if email == "" {
		return nil, ErrEmailRequired
	}

	// The email may have been taken since the fallback lookup.
	if _, err := u.accountRepo.FindByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	displayName := profile.DisplayName
	if displayName == "" {
		displayName = emailLocalPart(email)
	}

	now := u.now()
	account := &model.Account{
		Email:        email,
		Username:     usernameBase(email) + "-" + uuid.NewString()[:8],
		DisplayName:  displayName,
		TokenVersion: 1,
		Roles:        []string{model.RoleViewer},
		OAuthLinks: []model.OAuthLink{
			newLink(profile, now),
		},
	}

	created, err := u.accountRepo.Create(ctx, account)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	u.logger.Info().
		Str("account_id", created.ID.Hex()).
		Str("provider", profile.Provider).
		Msg("provisioned account from oauth profile")

	return created, nil
}

func (u *identityUsecase) GetLinkedProviders(
	ctx context.Context,
	accountID string,
) ([]authtypes.LinkedProvider, error) {
	account, err := u.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidID) {
			return []authtypes.LinkedProvider{}, nil
		}
		return nil, err
	}

	return linkedProviders(account), nil
}

func (u *identityUsecase) UnlinkProvider(ctx context.Context, accountID, provider string) error {
	account, err := u.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidID) {
			return ErrInvalidAccount
		}
		return err
	}

	removed := false
	account, err = u.mutateLinks(ctx, account, func(a *model.Account) (bool, error) {
		removed = false
		if a.FindProvider(provider) < 0 {
			return false, nil
		}

		remaining := make([]model.OAuthLink, 0, len(a.OAuthLinks))
		for _, link := range a.OAuthLinks {
			if link.Provider != provider {
				remaining = append(remaining, link)
			}
		}

		if len(remaining) == 0 && !a.HasPassword() {
			return false, ErrLastAuthMethod
		}

		a.OAuthLinks = remaining
		removed = true
		return true, nil
	})
	if err != nil {
		return err
	}

	if removed {
		u.audit.Record(ctx, model.AuditEvent{
			Kind:    model.AuditOAuthUnlink,
			ActorID: account.ID.Hex(),
			Email:   account.Email,
			Extra:   map[string]any{"provider": provider},
		})
	}

	return nil
}

func (u *identityUsecase) GetProviderAvailability() []authtypes.ProviderAvailability {
	cfg, err := u.providers()
	if err != nil {
		u.logger.Error().Err(err).Msg("failed to read provider configuration")
	}

	out := make([]authtypes.ProviderAvailability, 0, len(model.Providers))
	for _, name := range model.Providers {
		if err != nil {
			out = append(out, authtypes.ProviderAvailability{
				Provider: name,
				Reason:   "provider configuration could not be read",
			})
			continue
		}

		creds, _ := cfg.For(name)
		reason := creds.MissingReason(name == model.ProviderNextcloud)
		out = append(out, authtypes.ProviderAvailability{
			Provider: name,
			Enabled:  reason == "",
			Reason:   reason,
		})
	}

	return out
}

// mutateLinks applies mutate to account and saves it. When the account was
// written concurrently it is reloaded and mutate is applied again, so mutate
// must be idempotent. A mutate that reports no change skips the write.
func (u *identityUsecase) mutateLinks(
	ctx context.Context,
	account *model.Account,
	mutate func(a *model.Account) (bool, error),
) (*model.Account, error) {
	for attempt := 1; ; attempt++ {
		changed, err := mutate(account)
		if err != nil {
			return nil, err
		}
		if !changed {
			return account, nil
		}

		saved, err := u.accountRepo.Save(ctx, account)
		switch {
		case err == nil:
			return saved, nil
		case errors.Is(err, repository.ErrDuplicateKey):
			return nil, ErrIdentityLinked
		case !errors.Is(err, repository.ErrStaleAccount):
			return nil, err
		}

		if attempt >= maxSaveAttempts {
			return nil, ErrConcurrentUpdate
		}

		u.logger.Debug().
			Str("account_id", account.ID.Hex()).
			Int("attempt", attempt).
			Msg("account changed concurrently, retrying")

		account, err = u.accountRepo.FindByID(ctx, account.ID.Hex())
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrInvalidAccount
			}
			return nil, err
		}
	}
}

func (u *identityUsecase) loginFailed(
	ctx context.Context,
	profile authtypes.Profile,
	path string,
	err error,
) error {
	outcome := "error"
	switch {
	case errors.Is(err, ErrUnauthorized):
		outcome = "unauthorized"
	case errors.Is(err, ErrConflict):
		outcome = "conflict"
	}

	u.audit.Record(ctx, model.AuditEvent{
		Kind:  model.AuditOAuthLoginFailure,
		Email: sanitizeEmail(profile.Email),
		Extra: map[string]any{
			"provider":    profile.Provider,
			"provider_id": profile.ProviderID,
			"path":        path,
			"reason":      err.Error(),
		},
	})
	metrics.ObserveOAuthLogin(profile.Provider, path, outcome)

	return err
}

func newLink(profile authtypes.Profile, now time.Time) model.OAuthLink {
	return model.OAuthLink{
		Provider:    profile.Provider,
		ProviderID:  profile.ProviderID,
		Email:       sanitizeEmail(profile.Email),
		DisplayName: profile.DisplayName,
		AvatarURL:   profile.AvatarURL,
		LinkedAt:    now,
		LastUsedAt:  now,
	}
}

// upsertLink refreshes the snapshot of the matching link or appends a new
// one. Empty profile fields keep the last known value.
func upsertLink(account *model.Account, profile authtypes.Profile, now time.Time) {
	idx := account.FindOAuthLink(profile.Provider, profile.ProviderID)
	if idx < 0 {
		account.OAuthLinks = append(account.OAuthLinks, newLink(profile, now))
		return
	}

	link := &account.OAuthLinks[idx]
	if email := sanitizeEmail(profile.Email); email != "" {
		link.Email = email
	}
	if profile.DisplayName != "" {
		link.DisplayName = profile.DisplayName
	}
	if profile.AvatarURL != "" {
		link.AvatarURL = profile.AvatarURL
	}
	link.LastUsedAt = now
}
