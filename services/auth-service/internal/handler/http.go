package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/config"
	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/usecase"
	authtypes "github.com/vasapolrittideah/crm-identity-api/services/auth-service/pkg/types"
	"github.com/vasapolrittideah/crm-identity-api/shared/metrics"
	"github.com/vasapolrittideah/crm-identity-api/shared/utilities"
)

// HealthCheck reports whether the service dependencies are reachable.
type HealthCheck func(ctx context.Context) error

// AuthHTTPHandler serves the identity and password recovery endpoints.
type AuthHTTPHandler struct {
	identityUsecase      usecase.IdentityUsecase
	passwordResetUsecase usecase.PasswordResetUsecase
	sessionValidator     usecase.SessionValidator
	fetchers             ProfileFetchers
	health               HealthCheck
	limiter              *ipRateLimiter
	proxies              *utilities.TrustedProxies
	validator            *payloadValidator
	logger               *zerolog.Logger
}

// NewAuthHTTPHandler creates a new AuthHTTPHandler.
func NewAuthHTTPHandler(
	identityUsecase usecase.IdentityUsecase,
	passwordResetUsecase usecase.PasswordResetUsecase,
	sessionValidator usecase.SessionValidator,
	fetchers ProfileFetchers,
	health HealthCheck,
	rateLimitCfg config.RateLimitConfig,
	proxies *utilities.TrustedProxies,
	logger *zerolog.Logger,
) *AuthHTTPHandler {
	return &AuthHTTPHandler{
		identityUsecase:      identityUsecase,
		passwordResetUsecase: passwordResetUsecase,
		sessionValidator:     sessionValidator,
		fetchers:             fetchers,
		health:               health,
		limiter:              newIPRateLimiter(rateLimitCfg.PerSecond, rateLimitCfg.Burst),
		proxies:              proxies,
		validator:            newPayloadValidator(),
		logger:               logger,
	}
}

// Routes returns the HTTP router of the service.
func (h *AuthHTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(h.clientInfo)
	r.Use(accessLog(h.logger))

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1/auth", func(r chi.Router) {
		r.Get("/providers", h.GetProviderAvailability)
		r.Post("/oauth/{provider}", h.OAuthLogin)
		r.Post("/token/refresh", h.RefreshSession)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)
			r.Get("/me/providers", h.GetLinkedProviders)
			r.Delete("/me/providers/{provider}", h.UnlinkProvider)
		})

		r.Route("/password", func(r chi.Router) {
			r.Use(h.limiter.middleware)
			r.Post("/forgot", h.ForgotPassword)
			r.Get("/validate", h.ValidateResetToken)
			r.Post("/reset", h.ResetPassword)
		})
	})

	return r
}

func (h *AuthHTTPHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.logger.Error().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AuthHTTPHandler) GetProviderAvailability(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.identityUsecase.GetProviderAvailability())
}

func (h *AuthHTTPHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	var req OAuthLoginRequest
	details, err := h.validator.decode(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if details != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request", Details: details})
		return
	}

	fetcher, err := h.fetchers(providerName)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownProvider):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrProviderDisabled):
			writeError(w, http.StatusBadRequest, ErrProviderDisabled.Error())
		default:
			h.logger.Error().Err(err).Msg("failed to load provider configuration")
			writeError(w, http.StatusInternalServerError, "something went wrong")
		}
		return
	}

	raw, err := fetcher.FetchProfile(r.Context(), req.Token)
	if err != nil {
		h.logger.Warn().Err(err).Str("provider", providerName).Msg("failed to fetch provider profile")
		writeError(w, http.StatusUnauthorized, "invalid provider credential")
		return
	}

	profile := authtypes.NormalizeProfile(providerName, raw.ProviderID, raw.Email, raw.DisplayName, raw.AvatarURL)

	result, err := h.identityUsecase.FindOrCreateAndLogin(r.Context(), profile)
	if err != nil {
		h.writeUsecaseError(w, err, "failed to log in with provider")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *AuthHTTPHandler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	var req RefreshSessionRequest
	details, err := h.validator.decode(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if details != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request", Details: details})
		return
	}

	result, err := h.identityUsecase.RefreshSession(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeUsecaseError(w, err, "failed to refresh session")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *AuthHTTPHandler) GetLinkedProviders(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid session")
		return
	}

	links, err := h.identityUsecase.GetLinkedProviders(r.Context(), claims.UserID)
	if err != nil {
		h.writeUsecaseError(w, err, "failed to list linked providers")
		return
	}

	writeJSON(w, http.StatusOK, links)
}

func (h *AuthHTTPHandler) UnlinkProvider(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid session")
		return
	}

	if err := h.identityUsecase.UnlinkProvider(r.Context(), claims.UserID, chi.URLParam(r, "provider")); err != nil {
		h.writeUsecaseError(w, err, "failed to unlink provider")
		return
	}

	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

func (h *AuthHTTPHandler) writeUsecaseError(w http.ResponseWriter, err error, msg string) {
	status, message := statusFromError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg(msg)
	} else {
		h.logger.Debug().Err(err).Msg(msg)
	}
	writeError(w, status, message)
}
