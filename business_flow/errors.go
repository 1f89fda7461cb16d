// Package businessflow contains the core business logic and use cases for the access platform
package businessflow

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Business flow error constants
var (
	// Registration errors
	ErrPhoneNumberRequired = errors.New("Phone number is required")
	ErrPhoneAlreadyExists  = errors.New("an account with this phone number already exists")
	ErrEmailAlreadyExists  = errors.New("an account with this email address already exists")

	// Account errors. Not-found and wrong-password are surfaced identically to
	// callers so login responses cannot be used for account enumeration.
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountInactive   = errors.New("account is inactive")
	ErrIncorrectPassword = errors.New("incorrect password")

	// Two-factor errors
	ErrLoginSessionNotFound  = errors.New("login session not found")
	ErrNotPasswordVerified   = errors.New("first factor has not been verified")
	ErrVerificationExpired   = errors.New("password verification window has expired")
	ErrInvalidOTPCode        = errors.New("invalid OTP code")
	ErrAlreadyVerified       = errors.New("already verified")
	ErrNotFullyAuthenticated = errors.New("authentication is not complete")

	// OTP delivery errors
	ErrOTPRateLimited        = errors.New("too many code requests")
	ErrOTPDeliveryFailed     = errors.New("failed to deliver verification code")
	ErrInvalidPhoneNumber    = errors.New("invalid phone number")
	ErrStoreUnavailable      = errors.New("identity store unavailable")
	ErrCacheNotAvailable     = errors.New("cache not available")
	ErrNotificationSkipped   = errors.New("notification skipped")
	ErrVerificationIncomplete = errors.New("phone number is not verified")

	// Webhook errors
	ErrInvalidSignature       = errors.New("webhook signature mismatch")
	ErrMalformedWebhook       = errors.New("malformed webhook payload")
	ErrWebhookAccountMissing  = errors.New("webhook event is missing account metadata")
	ErrWebhookAccountNotFound = errors.New("webhook account not found")

	// Admin errors
	ErrAdminRequired = errors.New("acting account must be an active admin")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

// NewErrorFingerprint generates an opaque correlation id logged alongside the
// technical detail of a failure. Only the fingerprint is shown to callers.
func NewErrorFingerprint() string {
	return uuid.New().String()
}

func IsPhoneNumberRequired(err error) bool {
	return errors.Is(err, ErrPhoneNumberRequired)
}

func IsPhoneAlreadyExists(err error) bool {
	return errors.Is(err, ErrPhoneAlreadyExists)
}

func IsEmailAlreadyExists(err error) bool {
	return errors.Is(err, ErrEmailAlreadyExists)
}

func IsAccountNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

func IsAccountInactive(err error) bool {
	return errors.Is(err, ErrAccountInactive)
}

func IsIncorrectPassword(err error) bool {
	return errors.Is(err, ErrIncorrectPassword)
}

func IsLoginSessionNotFound(err error) bool {
	return errors.Is(err, ErrLoginSessionNotFound)
}

func IsNotPasswordVerified(err error) bool {
	return errors.Is(err, ErrNotPasswordVerified)
}

func IsVerificationExpired(err error) bool {
	return errors.Is(err, ErrVerificationExpired)
}

func IsInvalidOTPCode(err error) bool {
	return errors.Is(err, ErrInvalidOTPCode)
}

func IsAlreadyVerified(err error) bool {
	return errors.Is(err, ErrAlreadyVerified)
}

func IsNotFullyAuthenticated(err error) bool {
	return errors.Is(err, ErrNotFullyAuthenticated)
}

func IsOTPRateLimited(err error) bool {
	return errors.Is(err, ErrOTPRateLimited)
}

func IsOTPDeliveryFailed(err error) bool {
	return errors.Is(err, ErrOTPDeliveryFailed)
}

func IsInvalidPhoneNumber(err error) bool {
	return errors.Is(err, ErrInvalidPhoneNumber)
}

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

func IsCacheNotAvailable(err error) bool {
	return errors.Is(err, ErrCacheNotAvailable)
}

func IsInvalidSignature(err error) bool {
	return errors.Is(err, ErrInvalidSignature)
}

func IsMalformedWebhook(err error) bool {
	return errors.Is(err, ErrMalformedWebhook)
}

func IsWebhookAccountMissing(err error) bool {
	return errors.Is(err, ErrWebhookAccountMissing)
}

func IsWebhookAccountNotFound(err error) bool {
	return errors.Is(err, ErrWebhookAccountNotFound)
}

func IsAdminRequired(err error) bool {
	return errors.Is(err, ErrAdminRequired)
}
