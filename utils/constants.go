package utils

import (
	"time"
)

// Token and session time constants
const (
	// AccessTokenTTL is the time-to-live for access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour

	// AccessTokenTTLSeconds is the time-to-live for access tokens in seconds (86400 seconds = 24 hours)
	AccessTokenTTLSeconds = 86400

	// RefreshTokenTTL is the time-to-live for refresh tokens (7 days)
	RefreshTokenTTL = 7 * 24 * time.Hour

	// SessionTimeout is the default session timeout (24 hours)
	SessionTimeout = 24 * time.Hour

	// OTPExpiry is the time-to-live for OTP codes (5 minutes)
	OTPExpiry = 5 * time.Minute

	// OTPExpirySeconds is the time-to-live for OTP codes in seconds (300 seconds = 5 minutes)
	OTPExpirySeconds = 300

	// PasswordVerificationWindow is how long a verified first factor stays usable
	// before the whole login must be redone. The bound is inclusive: a second-factor
	// operation at exactly passwordVerifiedAt + 5m is already expired.
	PasswordVerificationWindow = 5 * time.Minute

	// LoginSessionTTL bounds how long an in-flight login attempt is kept around
	// before being garbage collected.
	LoginSessionTTL = 15 * time.Minute
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// OTP delivery constants
const (
	// OTPResendCooldown is the minimum spacing between OTP sends for one phone number
	OTPResendCooldown = 60 * time.Second

	// OTPMaxSendsPerWindow caps OTP dispatches per phone number per rate window
	OTPMaxSendsPerWindow = 5

	// OTPRateWindow is the sliding window used for OTP send rate limiting
	OTPRateWindow = 10 * time.Minute
)
