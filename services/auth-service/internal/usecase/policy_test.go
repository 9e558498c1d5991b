package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeetsPasswordPolicy(t *testing.T) {
	tests := []struct {
		password string
		want     bool
	}{
		{"Abcdef123!", true},
		{"Abcdef12 3", true},
		{"Ábcdéf123_", true},
		{"Abcde123!", false},
		{"abcdef123!", false},
		{"ABCDEF123!", false},
		{"Abcdefghi!", false},
		{"Abcdef1234", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			assert.Equal(t, tt.want, meetsPasswordPolicy(tt.password, 10))
		})
	}

	assert.True(t, meetsPasswordPolicy("Ab1!xxxxxx", 0), "non-positive minimum falls back to the default")
	assert.False(t, meetsPasswordPolicy("Ab1!xxxxx", 0))
	assert.False(t, meetsPasswordPolicy("Ab1!x", 4), "a lower minimum cannot weaken the policy")
	assert.False(t, meetsPasswordPolicy("Ab1!xxxxxxx", 12))
}

func TestIsValidEmail(t *testing.T) {
	assert.True(t, isValidEmail("a@b.co"))
	assert.True(t, isValidEmail("first.last+tag@sub.example.com"))
	assert.False(t, isValidEmail("a@b"))
	assert.False(t, isValidEmail("@b.com"))
	assert.False(t, isValidEmail("a@@b.com"))
	assert.False(t, isValidEmail(""))
}

func TestUsernameBase(t *testing.T) {
	assert.Equal(t, "jo.doe", usernameBase("Jo.Doe@example.com"))
	assert.Equal(t, "ana_limacrm", usernameBase("ana_lima+crm@example.com"))
	assert.Equal(t, "user", usernameBase("+++@example.com"))
	assert.Equal(t, "jos", usernameBase("josé@example.com"))
}
