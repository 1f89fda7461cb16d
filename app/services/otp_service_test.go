package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoOTPService(t *testing.T) {
	ctx := context.Background()
	svc := NewDemoOTPService("+234")

	t.Run("send accepts any normalizable phone", func(t *testing.T) {
		assert.NoError(t, svc.Send(ctx, "08123456789"))
	})

	t.Run("send rejects a malformed phone", func(t *testing.T) {
		err := svc.Send(ctx, "not-a-number")
		require.Error(t, err)
		kind, ok := OTPKindOf(err)
		require.True(t, ok)
		assert.Equal(t, OTPErrInvalidPhoneFormat, kind)
	})

	t.Run("verify accepts only the fixed demo code", func(t *testing.T) {
		ok, err := svc.Verify(ctx, "+2348123456789", DemoOTPCode)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = svc.Verify(ctx, "+2348123456789", "654321")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestOTPKindOf(t *testing.T) {
	t.Run("otp errors expose their kind", func(t *testing.T) {
		kind, ok := OTPKindOf(&OTPError{Kind: OTPErrRateLimited})
		assert.True(t, ok)
		assert.Equal(t, OTPErrRateLimited, kind)
	})

	t.Run("foreign errors are not classified", func(t *testing.T) {
		_, ok := OTPKindOf(assert.AnError)
		assert.False(t, ok)
	})
}

func TestGenerateOTP(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		code, err := GenerateOTP()
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9')
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1, "codes must not be constant")
}
