package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		countryCode string
		expected    string
		expectError bool
	}{
		{"already E.164", "+2348123456789", "+234", "+2348123456789", false},
		{"national format with trunk zero", "08123456789", "+234", "+2348123456789", false},
		{"national format without trunk zero", "8123456789", "+234", "+2348123456789", false},
		{"spaces and dashes stripped", "+234 812-345-6789", "+234", "+2348123456789", false},
		{"parentheses stripped", "(0)8123456789", "+234", "+2348123456789", false},
		{"international 00 prefix", "002348123456789", "+234", "+2348123456789", false},
		{"default country code applied", "08123456789", "", "+2348123456789", false},
		{"other country code", "07700900123", "+44", "+447700900123", false},
		{"empty", "", "+234", "", true},
		{"whitespace only", "   ", "+234", "", true},
		{"letters", "not-a-number", "+234", "", true},
		{"too short", "+12", "+234", "", true},
		{"plus in the middle", "081+23456789", "+234", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.raw, tt.countryCode)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestIsValidE164(t *testing.T) {
	assert.True(t, IsValidE164("+2348123456789"))
	assert.True(t, IsValidE164("+447700900123"))
	assert.False(t, IsValidE164("08123456789"))
	assert.False(t, IsValidE164("+0123456789"))
	assert.False(t, IsValidE164(""))
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "+234****6789", MaskPhone("+2348123456789"))
	assert.Equal(t, "****", MaskPhone("+12345"))
	assert.Equal(t, "****", MaskPhone(""))
}
