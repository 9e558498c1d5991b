package usecase

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	defaultMinPasswordChars = 10
	maxEmailLength          = 254
)

var (
	emailPattern       = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernameDisallowed = regexp.MustCompile(`[^a-z0-9._-]+`)
)

func sanitizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidEmail(email string) bool {
	return len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

// meetsPasswordPolicy requires minChars characters, never fewer than
// defaultMinPasswordChars, and at least one lowercase letter, uppercase
// letter, digit and symbol.
func meetsPasswordPolicy(password string, minChars int) bool {
	if minChars < defaultMinPasswordChars {
		minChars = defaultMinPasswordChars
	}
	if utf8.RuneCountInString(password) < minChars {
		return false
	}

	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsLetter(r):
			symbol = true
		}
	}

	return lower && upper && digit && symbol
}

// emailLocalPart returns the part of email before the last "@".
func emailLocalPart(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}

func usernameBase(email string) string {
	base := usernameDisallowed.ReplaceAllString(strings.ToLower(emailLocalPart(email)), "")
	base = strings.Trim(base, "._-")
	if base == "" {
		return "user"
	}
	return base
}
