package auth

import (
	"errors"
	"strings"
)

var (
	ErrMissingAuthHeader       = errors.New("missing authorization header")
	ErrInvalidAuthHeaderFormat = errors.New("invalid authorization header format")
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAuthHeader
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", ErrInvalidAuthHeaderFormat
	}

	return strings.TrimSpace(parts[1]), nil
}
