package types

import (
	"fmt"
	"strings"
)

// Profile is the provider independent view of an external identity.
// It is a value type; copies never alias.
type Profile struct {
	Provider    string
	ProviderID  string
	Email       string
	DisplayName string
	AvatarURL   string
}

// NormalizeProfile builds a Profile from loosely typed provider data.
// Nil values become "", strings are trimmed and anything else is formatted with fmt.
// Email casing is preserved here; lookups lowercase it.
func NormalizeProfile(provider, providerID, email, displayName, avatarURL any) Profile {
	return Profile{
		Provider:    coerce(provider),
		ProviderID:  coerce(providerID),
		Email:       coerce(email),
		DisplayName: coerce(displayName),
		AvatarURL:   coerce(avatarURL),
	}
}

func coerce(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case *string:
		if t == nil {
			return ""
		}
		return strings.TrimSpace(*t)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
