package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/usecase"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// statusFromError maps a usecase error to a status code and a message that
// is safe to show to the client.
func statusFromError(err error) (int, string) {
	switch {
	case usecase.IsResetValidationError(err):
		return http.StatusBadRequest, publicMessage(err, usecase.ErrUnauthorized)
	case errors.Is(err, usecase.ErrUnauthorized):
		return http.StatusUnauthorized, publicMessage(err, usecase.ErrUnauthorized)
	case errors.Is(err, usecase.ErrConflict):
		return http.StatusConflict, publicMessage(err, usecase.ErrConflict)
	case errors.Is(err, usecase.ErrThrottled):
		return http.StatusTooManyRequests, publicMessage(err, usecase.ErrThrottled)
	default:
		return http.StatusInternalServerError, "something went wrong"
	}
}

func publicMessage(err, kind error) string {
	return strings.TrimPrefix(err.Error(), kind.Error()+": ")
}
