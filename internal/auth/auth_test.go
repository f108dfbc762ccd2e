package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		pw   string
		want error
	}{
		{"Ab1!", ErrPasswordTooShort},
		{"lowercase1!", ErrPasswordNoUpper},
		{"UPPERCASE1!", ErrPasswordNoLower},
		{"NoDigits!!", ErrPasswordNoDigit},
		{"NoSpecial12", ErrPasswordNoSpecial},
		{"Valid#Pass9", nil},
		{"Ünïcode9Aa", nil}, // non-ASCII letters count as special
	}

	for _, tc := range cases {
		t.Run(tc.pw, func(t *testing.T) {
			assert.Equal(t, tc.want, ValidatePassword(tc.pw))
		})
	}

	assert.Equal(t, "Password must include a number.", ErrPasswordNoDigit.Error())
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("Valid#Pass9")
	require.NoError(t, err)
	assert.NotEqual(t, "Valid#Pass9", hash)

	assert.True(t, CheckPassword(hash, "Valid#Pass9"))
	assert.False(t, CheckPassword(hash, "valid#pass9"))
	assert.False(t, CheckPassword("", "anything"))
	assert.False(t, CheckPassword("not-a-hash", "Valid#Pass9"))
}
