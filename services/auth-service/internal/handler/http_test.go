package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/config"
	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/usecase"
	authtypes "github.com/vasapolrittideah/crm-identity-api/services/auth-service/pkg/types"
	"github.com/vasapolrittideah/crm-identity-api/shared/provider"
	"github.com/vasapolrittideah/crm-identity-api/shared/utilities"
)

type stubIdentityUsecase struct {
	gotProfile  authtypes.Profile
	gotAccount  string
	gotProvider string
	loginErr    error
	unlinkErr   error
	refreshErr  error
	gotRefresh  string
	links       []authtypes.LinkedProvider
}

func (s *stubIdentityUsecase) RefreshSession(_ context.Context, refreshToken string) (*usecase.LoginResult, error) {
	s.gotRefresh = refreshToken
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return &usecase.LoginResult{
		Tokens: &authtypes.Tokens{AccessToken: "access-2", RefreshToken: "refresh-2"},
		User:   authtypes.User{ID: "acc-1"},
	}, nil
}

func (s *stubIdentityUsecase) FindOrCreateAndLogin(
	_ context.Context,
	profile authtypes.Profile,
) (*usecase.LoginResult, error) {
	s.gotProfile = profile
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return &usecase.LoginResult{
		Tokens: &authtypes.Tokens{AccessToken: "access", RefreshToken: "refresh"},
		User:   authtypes.User{ID: "acc-1", Email: profile.Email},
	}, nil
}

func (s *stubIdentityUsecase) GetLinkedProviders(_ context.Context, accountID string) ([]authtypes.LinkedProvider, error) {
	s.gotAccount = accountID
	return s.links, nil
}

func (s *stubIdentityUsecase) UnlinkProvider(_ context.Context, accountID, provider string) error {
	s.gotAccount, s.gotProvider = accountID, provider
	return s.unlinkErr
}

func (s *stubIdentityUsecase) GetProviderAvailability() []authtypes.ProviderAvailability {
	return []authtypes.ProviderAvailability{
		{Provider: "google", Enabled: true},
		{Provider: "microsoft", Reason: "client id is not configured"},
	}
}

type stubPasswordResetUsecase struct {
	gotForgot usecase.ForgotParams
	gotReset  usecase.ResetParams
	forgotErr error
	resetErr  error
	devToken  string
}

func (s *stubPasswordResetUsecase) Forgot(_ context.Context, params usecase.ForgotParams) (*usecase.ForgotResult, error) {
	s.gotForgot = params
	if s.forgotErr != nil {
		return nil, s.forgotErr
	}
	return &usecase.ForgotResult{DevToken: s.devToken}, nil
}

func (s *stubPasswordResetUsecase) Validate(_ context.Context, token string) (*usecase.ValidateResult, error) {
	if token == "good" {
		return &usecase.ValidateResult{OK: true, Email: "a@b.com"}, nil
	}
	return &usecase.ValidateResult{}, nil
}

func (s *stubPasswordResetUsecase) Reset(_ context.Context, params usecase.ResetParams) error {
	s.gotReset = params
	return s.resetErr
}

func (s *stubPasswordResetUsecase) Sweep(context.Context) error { return nil }

type stubSessionValidator struct{}

func (stubSessionValidator) Validate(_ context.Context, token string) (*authtypes.JWTClaims, error) {
	switch token {
	case "valid":
		return &authtypes.JWTClaims{UserID: "acc-1", TokenVersion: 1}, nil
	case "revoked":
		return nil, usecase.ErrSessionRevoked
	default:
		return nil, usecase.ErrInvalidSession
	}
}

type stubFetcher struct {
	profile *provider.RawProfile
	err     error
}

func (f stubFetcher) FetchProfile(context.Context, string) (*provider.RawProfile, error) {
	return f.profile, f.err
}

type testServer struct {
	identity *stubIdentityUsecase
	reset    *stubPasswordResetUsecase
	fetcher  stubFetcher
	health   error
	handler  http.Handler
}

func newTestServer(t *testing.T, rateLimit config.RateLimitConfig) *testServer {
	t.Helper()

	s := &testServer{
		identity: &stubIdentityUsecase{},
		reset:    &stubPasswordResetUsecase{},
		fetcher: stubFetcher{profile: &provider.RawProfile{
			ProviderID:  42,
			Email:       " Ana@Example.com ",
			DisplayName: "Ana",
		}},
	}

	fetchers := func(name string) (provider.ProfileFetcher, error) {
		switch name {
		case "google", "nextcloud":
			return s.fetcher, nil
		case "microsoft":
			return nil, ErrProviderDisabled
		default:
			return nil, ErrUnknownProvider
		}
	}

	// httptest requests come from 192.0.2.1.
	proxies, err := utilities.ParseTrustedProxies([]string{"192.0.2.0/24", "10.0.0.0/8"})
	require.NoError(t, err)

	logger := zerolog.New(io.Discard)
	h := NewAuthHTTPHandler(
		s.identity,
		s.reset,
		stubSessionValidator{},
		fetchers,
		func(context.Context) error { return s.health },
		rateLimit,
		proxies,
		&logger,
	)
	s.handler = h.Routes()

	return s
}

func (s *testServer) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	return s.doFrom("", method, target, body, headers)
}

func (s *testServer) doFrom(
	remoteAddr, method, target, body string,
	headers map[string]string,
) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

var defaultRateLimit = config.RateLimitConfig{PerSecond: 100, Burst: 100}

func TestOAuthLogin(t *testing.T) {
	s := newTestServer(t, defaultRateLimit)

	rec := s.do(http.MethodPost, "/v1/auth/oauth/google", `{"token":"id-token"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	tokens := body["tokens"].(map[string]any)
	assert.Equal(t, "access", tokens["access_token"])

	assert.Equal(t, authtypes.Profile{
		Provider:    "google",
		ProviderID:  "42",
		Email:       "Ana@Example.com",
		DisplayName: "Ana",
	}, s.identity.gotProfile)
}

func TestOAuthLogin_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		prepare    func(s *testServer)
		wantStatus int
		wantError  string
	}{
		{
			name:       "unknown provider",
			path:       "/v1/auth/oauth/github",
			body:       `{"token":"t"}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "provider not configured",
			path:       "/v1/auth/oauth/microsoft",
			body:       `{"token":"t"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "provider is not available",
		},
		{
			name:       "missing token",
			path:       "/v1/auth/oauth/google",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request",
		},
		{
			name:       "malformed body",
			path:       "/v1/auth/oauth/google",
			body:       `{"token":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "provider rejects token",
			path:       "/v1/auth/oauth/google",
			body:       `{"token":"t"}`,
			prepare:    func(s *testServer) { s.fetcher.err = provider.ErrInvalidAudience },
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid provider credential",
		},
		{
			name:       "disabled account",
			path:       "/v1/auth/oauth/google",
			body:       `{"token":"t"}`,
			prepare:    func(s *testServer) { s.identity.loginErr = usecase.ErrAccountDisabled },
			wantStatus: http.StatusUnauthorized,
			wantError:  "account disabled",
		},
		{
			name:       "duplicate email",
			path:       "/v1/auth/oauth/nextcloud",
			body:       `{"token":"t"}`,
			prepare:    func(s *testServer) { s.identity.loginErr = usecase.ErrDuplicateEmail },
			wantStatus: http.StatusConflict,
		},
		{
			name:       "storage failure",
			path:       "/v1/auth/oauth/google",
			body:       `{"token":"t"}`,
			prepare:    func(s *testServer) { s.identity.loginErr = errors.New("mongo down") },
			wantStatus: http.StatusInternalServerError,
			wantError:  "something went wrong",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, defaultRateLimit)
			if tt.prepare != nil {
				tt.prepare(s)
			}

			rec := s.do(http.MethodPost, tt.path, tt.body, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decodeBody(t, rec)["error"])
			}
		})
	}
}

func TestRefreshSession(t *testing.T) {
	s := newTestServer(t, defaultRateLimit)

	rec := s.do(http.MethodPost, "/v1/auth/token/refresh", `{"refresh_token":"refresh-1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "refresh-1", s.identity.gotRefresh)
	tokens := decodeBody(t, rec)["tokens"].(map[string]any)
	assert.Equal(t, "refresh-2", tokens["refresh_token"])

	rec = s.do(http.MethodPost, "/v1/auth/token/refresh", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.identity.refreshErr = usecase.ErrSessionRevoked
	rec = s.do(http.MethodPost, "/v1/auth/token/refresh", `{"refresh_token":"refresh-1"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "session revoked", decodeBody(t, rec)["error"])
}

func TestGetProviderAvailability(t *testing.T) {
	s := newTestServer(t, defaultRateLimit)

	rec := s.do(http.MethodGet, "/v1/auth/providers", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []authtypes.ProviderAvailability
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.True(t, got[0].Enabled)
	assert.Equal(t, "client id is not configured", got[1].Reason)
}

func TestLinkedProviders_RequireSession(t *testing.T) {
	s := newTestServer(t, defaultRateLimit)

	rec := s.do(http.MethodGet, "/v1/auth/me/providers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing authorization header", decodeBody(t, rec)["error"])

	rec = s.do(http.MethodGet, "/v1/auth/me/providers", "", map[string]string{"Authorization": "Bearer revoked"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "session revoked", decodeBody(t, rec)["error"])

	s.identity.links = []authtypes.LinkedProvider{{Provider: "google", Email: "a@b.com"}}
	rec = s.do(http.MethodGet, "/v1/auth/me/providers", "", map[string]string{"Authorization": "Bearer valid"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acc-1", s.identity.gotAccount)

	var links []authtypes.LinkedProvider
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &links))
	assert.Len(t, links, 1)
}

func TestUnlinkProvider(t *testing.T) {
	s := newTestServer(t, defaultRateLimit)
	auth := map[string]string{"Authorization": "Bearer valid"}

	rec := s.do(http.MethodDelete, "/v1/auth/me/providers/google", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["ok"])
	assert.Equal(t, "google", s.identity.gotProvider)

	s.identity.unlinkErr = usecase.ErrLastAuthMethod
	rec = s.do(http.MethodDelete, "/v1/auth/me/providers/google", "", auth)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "cannot remove the last sign-in method, set a password first", decodeBody(t, rec)["error"])
}

func TestForgotPassword(t *testing.T) {
	s := newTestServer(t, defaultRateLimit)
	s.reset.devToken = "raw-token"

	rec := s.do(http.MethodPost, "/v1/auth/password/forgot", `{"email":"a@b.com"}`, map[string]string{
		"X-Forwarded-For": "203.0.113.7, 10.0.0.1",
		"User-Agent":      "browser",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "raw-token", body["dev_token"])
	assert.Equal(t, usecase.ForgotParams{Email: "a@b.com", IP: "203.0.113.7", UserAgent: "browser"}, s.reset.gotForgot)

	s.reset.forgotErr = usecase.ErrTooManyRequests
	rec = s.do(http.MethodPost, "/v1/auth/password/forgot", `{"email":"a@b.com"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestValidateResetToken(t *testing.T) {
	s := newTestServer(t, defaultRateLimit)

	rec := s.do(http.MethodGet, "/v1/auth/password/validate?token=good", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"ok": true, "email": "a@b.com"}, decodeBody(t, rec))

	rec = s.do(http.MethodGet, "/v1/auth/password/validate?token=nope", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"ok": false}, decodeBody(t, rec))
}

func TestResetPassword(t *testing.T) {
	s := newTestServer(t, defaultRateLimit)
	body := `{"token":"t","password":"Abcdef123!","confirm":"Abcdef123!"}`

	rec := s.do(http.MethodPost, "/v1/auth/password/reset", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Abcdef123!", s.reset.gotReset.Password)

	tests := []struct {
		err        error
		wantStatus int
		wantError  string
	}{
		{usecase.ErrWeakPassword, http.StatusBadRequest, "password does not meet the policy"},
		{usecase.ErrPasswordMismatch, http.StatusBadRequest, "passwords do not match"},
		{usecase.ErrExpiredToken, http.StatusBadRequest, "expired token"},
		{usecase.ErrInvalidToken, http.StatusBadRequest, "invalid token"},
		{errors.New("boom"), http.StatusInternalServerError, "something went wrong"},
	}
	for _, tt := range tests {
		s.reset.resetErr = tt.err
		rec := s.do(http.MethodPost, "/v1/auth/password/reset", body, nil)
		assert.Equal(t, tt.wantStatus, rec.Code, tt.err.Error())
		assert.Equal(t, tt.wantError, decodeBody(t, rec)["error"])
	}

	rec = s.do(http.MethodPost, "/v1/auth/password/reset", `{"token":"t"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	details := decodeBody(t, rec)["details"].(map[string]any)
	assert.Contains(t, details, "password")
	assert.Contains(t, details, "confirm")
}

func TestPasswordEndpoints_RateLimited(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{PerSecond: 0.001, Burst: 2})
	headers := map[string]string{"X-Forwarded-For": "198.51.100.1"}

	for i := 0; i < 2; i++ {
		rec := s.do(http.MethodGet, "/v1/auth/password/validate?token=x", "", headers)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := s.do(http.MethodGet, "/v1/auth/password/validate?token=x", "", headers)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = s.do(http.MethodGet, "/v1/auth/password/validate?token=x", "", map[string]string{"X-Forwarded-For": "198.51.100.2"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Other routes are not limited.
	rec = s.do(http.MethodGet, "/v1/auth/providers", "", headers)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPasswordEndpoints_ForwardedForFromUntrustedPeer(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{PerSecond: 0.001, Burst: 2})

	codes := make([]int, 0, 3)
	for _, spoofed := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		rec := s.doFrom("203.0.113.7:4444", http.MethodPost, "/v1/auth/password/forgot", `{"email":"a@b.com"}`,
			map[string]string{"X-Forwarded-For": spoofed})
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "203.0.113.7", s.reset.gotForgot.IP)
}

func TestHealthzAndRequestID(t *testing.T) {
	s := newTestServer(t, defaultRateLimit)

	rec := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Header().Get(requestIDHeader), 26)

	rec = s.do(http.MethodGet, "/healthz", "", map[string]string{requestIDHeader: "req-123"})
	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))

	s.health = errors.New("ping failed")
	rec = s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
