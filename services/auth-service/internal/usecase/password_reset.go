package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/config"
	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/model"
	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/repository"
	"github.com/vasapolrittideah/crm-identity-api/shared/metrics"
	"github.com/vasapolrittideah/crm-identity-api/shared/security"
)

// PasswordResetUsecase defines the business logic of password recovery.
type PasswordResetUsecase interface {
	// Forgot issues a reset token for the email. It answers the same way
	// whether or not an account exists.
	Forgot(ctx context.Context, params ForgotParams) (*ForgotResult, error)

	// Validate reports whether token can still be used. It never writes.
	Validate(ctx context.Context, token string) (*ValidateResult, error)

	// Reset consumes token and sets a new password, revoking existing sessions.
	Reset(ctx context.Context, params ResetParams) error

	// Sweep removes expired and long-used requests.
	Sweep(ctx context.Context) error
}

type ForgotParams struct {
	Email     string
	IP        string
	UserAgent string
}

// ForgotResult carries the raw token outside production only.
type ForgotResult struct {
	DevToken string `json:"dev_token,omitempty"`
}

type ValidateResult struct {
	OK    bool   `json:"ok"`
	Email string `json:"email,omitempty"`
}

type ResetParams struct {
	Token     string
	Password  string
	Confirm   string
	IP        string
	UserAgent string
}

const resetTokenBytes = 32

type passwordResetUsecase struct {
	accountRepo repository.AccountRepository
	resetRepo   repository.ResetRequestRepository
	delivery    ResetDelivery
	audit       AuditRecorder
	cfg         config.PasswordResetConfig
	production  bool
	logger      *zerolog.Logger
	now         func() time.Time
}

// NewPasswordResetUsecase creates a new instance of PasswordResetUsecase.
func NewPasswordResetUsecase(
	accountRepo repository.AccountRepository,
	resetRepo repository.ResetRequestRepository,
	delivery ResetDelivery,
	audit AuditRecorder,
	cfg config.PasswordResetConfig,
	production bool,
	logger *zerolog.Logger,
) PasswordResetUsecase {
	return &passwordResetUsecase{
		accountRepo: accountRepo,
		resetRepo:   resetRepo,
		delivery:    delivery,
		audit:       audit,
		cfg:         cfg,
		production:  production,
		logger:      logger,
		now:         time.Now,
	}
}

func (u *passwordResetUsecase) Forgot(ctx context.Context, params ForgotParams) (*ForgotResult, error) {
	if err := u.Sweep(ctx); err != nil {
		u.logger.Warn().Err(err).Msg("failed to sweep password reset requests")
	}

	email := sanitizeEmail(params.Email)
	if !isValidEmail(email) {
		metrics.ObservePasswordReset("forgot", "invalid_email")
		return &ForgotResult{}, nil
	}

	now := u.now()
	ipHash := security.SHA256Hex(u.cfg.IPHashSalt, params.IP)

	if u.throttled(ctx, email, ipHash, now) {
		u.logger.Warn().Str("email", email).Str("ip", params.IP).Msg("password reset request throttled")
		metrics.ObservePasswordReset("forgot", "throttled")
		return nil, ErrTooManyRequests
	}

	account, err := u.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		account = nil
	}

	token, err := security.GenerateOpaqueToken(resetTokenBytes)
	if err != nil {
		return nil, err
	}

	req, err := u.resetRepo.Insert(ctx, &model.ResetRequest{
		Email:     email,
		TokenHash: security.SHA256Hex(token),
		IPHash:    ipHash,
		UserAgent: params.UserAgent,
		ExpiresAt: now.Add(u.cfg.TokenExpiresIn),
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}

	event := model.AuditEvent{
		Kind:      model.AuditPasswordResetRequested,
		Email:     email,
		IP:        params.IP,
		UserAgent: params.UserAgent,
		Extra:     map[string]any{"account_found": account != nil},
	}
	if account != nil {
		event.ActorID = account.ID.Hex()
	}
	u.audit.Record(ctx, event)

	result := &ForgotResult{}
	if account == nil {
		metrics.ObservePasswordReset("forgot", "no_account")
		return result, nil
	}

	delivered, err := u.delivery.Deliver(ctx, DeliveryRequest{
		Email:     email,
		Token:     token,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		// The caller gets the same answer either way.
		u.logger.Error().Err(err).Str("account_id", account.ID.Hex()).Msg("failed to deliver password reset token")
		metrics.ObservePasswordReset("forgot", "delivery_failed")
	} else {
		metrics.ObservePasswordReset("forgot", "delivered")
	}

	if !u.production {
		result.DevToken = token
		if delivered != nil && delivered.DevToken != "" {
			result.DevToken = delivered.DevToken
		}
	}

	return result, nil
}

// throttled applies the per email and per client caps. Counting failures
// count as zero.
func (u *passwordResetUsecase) throttled(ctx context.Context, email, ipHash string, now time.Time) bool {
	since := now.Add(-u.cfg.RateWindow)

	emailCount, err := u.resetRepo.CountByEmailSince(ctx, email, since)
	if err != nil {
		u.logger.Warn().Err(err).Msg("failed to count reset requests by email")
		emailCount = 0
	}

	ipCount, err := u.resetRepo.CountByIPHashSince(ctx, ipHash, since)
	if err != nil {
		u.logger.Warn().Err(err).Msg("failed to count reset requests by ip")
		ipCount = 0
	}

	return emailCount >= u.cfg.MaxPerEmail || ipCount >= u.cfg.MaxPerIP
}

func (u *passwordResetUsecase) Validate(ctx context.Context, token string) (*ValidateResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return &ValidateResult{}, nil
	}

	req, err := u.resetRepo.FindByTokenHash(ctx, security.SHA256Hex(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &ValidateResult{}, nil
		}
		return nil, err
	}

	if !req.IsValid(u.now()) {
		return &ValidateResult{}, nil
	}

	return &ValidateResult{OK: true, Email: req.Email}, nil
}

func (u *passwordResetUsecase) Reset(ctx context.Context, params ResetParams) error {
	err := u.reset(ctx, params)
	switch {
	case err == nil:
		metrics.ObservePasswordReset("reset", "success")
	case errors.Is(err, ErrUnauthorized):
		metrics.ObservePasswordReset("reset", "rejected")
	default:
		metrics.ObservePasswordReset("reset", "error")
	}
	return err
}

func (u *passwordResetUsecase) reset(ctx context.Context, params ResetParams) error {
	token := strings.TrimSpace(params.Token)
	if token == "" {
		return ErrInvalidToken
	}

	if !meetsPasswordPolicy(params.Password, u.cfg.MinPasswordChars) {
		return ErrWeakPassword
	}

	if params.Password != params.Confirm {
		return ErrPasswordMismatch
	}

	req, err := u.resetRepo.FindByTokenHash(ctx, security.SHA256Hex(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}

	now := u.now()
	if !req.IsValid(now) {
		return ErrExpiredToken
	}

	account, err := u.accountRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}

	passwordHash, err := security.HashPassword(params.Password)
	if err != nil {
		return err
	}

	// Claim the request first so two concurrent resets cannot both succeed.
	if err := u.resetRepo.MarkUsed(ctx, req.ID, now); err != nil {
		if errors.Is(err, repository.ErrAlreadyUsed) {
			return ErrExpiredToken
		}
		return err
	}

	if _, err := u.accountRepo.Update(ctx, account.ID.Hex(), repository.UpdateAccountParams{
		PasswordHash:          &passwordHash,
		IncrementTokenVersion: true,
	}); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		// Nothing changed, so hand the token back for another attempt.
		if releaseErr := u.resetRepo.ReleaseClaim(context.WithoutCancel(ctx), req.ID, now); releaseErr != nil {
			u.logger.Error().
				Err(releaseErr).
				Str("request_id", req.ID.Hex()).
				Msg("failed to release password reset request")
		}
		return err
	}

	u.audit.Record(ctx, model.AuditEvent{
		Kind:      model.AuditPasswordResetCompleted,
		ActorID:   account.ID.Hex(),
		Email:     account.Email,
		IP:        params.IP,
		UserAgent: params.UserAgent,
	})

	return nil
}

func (u *passwordResetUsecase) Sweep(ctx context.Context) error {
	now := u.now()

	expired, err := u.resetRepo.DeleteExpiredUnused(ctx, now)
	if err != nil {
		return err
	}

	used, err := u.resetRepo.DeleteUsedOlderThan(ctx, now.Add(-u.cfg.UsedRetention))
	if err != nil {
		return err
	}

	if expired+used > 0 {
		u.logger.Debug().Int64("expired", expired).Int64("used", used).Msg("swept password reset requests")
	}

	return nil
}
