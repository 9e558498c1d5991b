package handler

type OAuthLoginRequest struct {
	// Token is the Google ID token, or the provider access token for
	// microsoft and nextcloud.
	Token string `json:"token" validate:"required"`
}

type RefreshSessionRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"max=320"`
}

type ForgotPasswordResponse struct {
	OK       bool   `json:"ok"`
	DevToken string `json:"dev_token,omitempty"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"    validate:"required"`
	Password string `json:"password" validate:"required"`
	Confirm  string `json:"confirm"  validate:"required"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}
