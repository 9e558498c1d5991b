package handler

import (
	"net/http"

	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/usecase"
)

func (h *AuthHTTPHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	details, err := h.validator.decode(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if details != nil {
		// Malformed addresses get the same answer as unknown ones.
		writeJSON(w, http.StatusOK, ForgotPasswordResponse{OK: true})
		return
	}

	info := usecase.ClientInfoFromContext(r.Context())
	result, err := h.passwordResetUsecase.Forgot(r.Context(), usecase.ForgotParams{
		Email:     req.Email,
		IP:        info.IP,
		UserAgent: info.UserAgent,
	})
	if err != nil {
		h.writeUsecaseError(w, err, "failed to request password reset")
		return
	}

	writeJSON(w, http.StatusOK, ForgotPasswordResponse{OK: true, DevToken: result.DevToken})
}

func (h *AuthHTTPHandler) ValidateResetToken(w http.ResponseWriter, r *http.Request) {
	result, err := h.passwordResetUsecase.Validate(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.writeUsecaseError(w, err, "failed to validate password reset token")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *AuthHTTPHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	details, err := h.validator.decode(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if details != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request", Details: details})
		return
	}

	info := usecase.ClientInfoFromContext(r.Context())
	if err := h.passwordResetUsecase.Reset(r.Context(), usecase.ResetParams{
		Token:     req.Token,
		Password:  req.Password,
		Confirm:   req.Confirm,
		IP:        info.IP,
		UserAgent: info.UserAgent,
	}); err != nil {
		h.writeUsecaseError(w, err, "failed to reset password")
		return
	}

	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}
