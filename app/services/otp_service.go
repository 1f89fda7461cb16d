// Package services provides external service integrations and technical concerns like notifications and tokens
package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/primefit/primefit-api/utils"
)

// OTPErrorKind classifies delivery failures so callers can decide
// whether to surface, retry, or back off.
type OTPErrorKind int

const (
	OTPErrInvalidPhoneFormat OTPErrorKind = iota
	OTPErrRateLimited
	OTPErrNetworkUnavailable
	OTPErrProviderRejected
	OTPErrTimeout
)

// OTPError wraps a delivery failure with its kind. RetryAfter is only
// meaningful for OTPErrRateLimited.
type OTPError struct {
	Kind       OTPErrorKind
	RetryAfter time.Duration
	Err        error
}

func (e *OTPError) Error() string {
	switch e.Kind {
	case OTPErrInvalidPhoneFormat:
		return "otp: invalid phone format"
	case OTPErrRateLimited:
		return fmt.Sprintf("otp: rate limited, retry after %s", e.RetryAfter)
	case OTPErrNetworkUnavailable:
		return "otp: network unavailable"
	case OTPErrProviderRejected:
		return "otp: provider rejected"
	case OTPErrTimeout:
		return "otp: timeout"
	}
	return "otp: delivery failed"
}

func (e *OTPError) Unwrap() error { return e.Err }

// OTPKindOf extracts the kind from an OTP delivery error
func OTPKindOf(err error) (OTPErrorKind, bool) {
	var otpErr *OTPError
	if errors.As(err, &otpErr) {
		return otpErr.Kind, true
	}
	return 0, false
}

// OTPService delivers and verifies one-time codes. Verify returns
// (false, nil) for a wrong or unknown code; errors are reserved for
// infrastructure failures.
type OTPService interface {
	Send(ctx context.Context, phone string) error
	Verify(ctx context.Context, phone, code string) (bool, error)
}

// CarrierOTPService delivers codes over SMS and keeps them in redis with a
// 5-minute TTL. Redis also backs the per-phone send rate limiting.
type CarrierOTPService struct {
	redis              *redis.Client
	notifier           NotificationService
	defaultCountryCode string
}

// NewCarrierOTPService creates the production OTP service
func NewCarrierOTPService(redisClient *redis.Client, notifier NotificationService, defaultCountryCode string) OTPService {
	return &CarrierOTPService{
		redis:              redisClient,
		notifier:           notifier,
		defaultCountryCode: defaultCountryCode,
	}
}

func otpCodeKey(phone string) string     { return "otp:code:" + phone }
func otpCooldownKey(phone string) string { return "otp:cooldown:" + phone }
func otpWindowKey(phone string) string   { return "otp:window:" + phone }

// Send generates a fresh code, stores it, and dispatches it to the carrier
func (s *CarrierOTPService) Send(ctx context.Context, phone string) error {
	normalized, err := utils.NormalizePhone(phone, s.defaultCountryCode)
	if err != nil {
		return &OTPError{Kind: OTPErrInvalidPhoneFormat, Err: err}
	}

	if err := s.checkRateLimit(ctx, normalized); err != nil {
		return err
	}

	code, err := GenerateOTP()
	if err != nil {
		return &OTPError{Kind: OTPErrProviderRejected, Err: err}
	}

	if err := s.redis.Set(ctx, otpCodeKey(normalized), code, utils.OTPExpiry).Err(); err != nil {
		return &OTPError{Kind: OTPErrNetworkUnavailable, Err: err}
	}

	message := fmt.Sprintf("Your PrimeFit verification code is %s. It expires in 5 minutes.", code)
	if err := s.notifier.SendSMS(normalized, message); err != nil {
		return classifyDeliveryError(err)
	}

	return nil
}

// Verify checks a submitted code against the stored one. The stored code is
// consumed on success so it cannot be replayed.
func (s *CarrierOTPService) Verify(ctx context.Context, phone, code string) (bool, error) {
	normalized, err := utils.NormalizePhone(phone, s.defaultCountryCode)
	if err != nil {
		return false, &OTPError{Kind: OTPErrInvalidPhoneFormat, Err: err}
	}

	stored, err := s.redis.Get(ctx, otpCodeKey(normalized)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, &OTPError{Kind: OTPErrNetworkUnavailable, Err: err}
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return false, nil
	}

	if err := s.redis.Del(ctx, otpCodeKey(normalized)).Err(); err != nil {
		log.Printf("failed to consume otp code for %s: %v", utils.MaskPhone(normalized), err)
	}

	return true, nil
}

// checkRateLimit enforces the per-phone cooldown and the sliding send window
func (s *CarrierOTPService) checkRateLimit(ctx context.Context, phone string) error {
	ok, err := s.redis.SetNX(ctx, otpCooldownKey(phone), 1, utils.OTPResendCooldown).Result()
	if err != nil {
		return &OTPError{Kind: OTPErrNetworkUnavailable, Err: err}
	}
	if !ok {
		ttl, terr := s.redis.TTL(ctx, otpCooldownKey(phone)).Result()
		if terr != nil || ttl < 0 {
			ttl = utils.OTPResendCooldown
		}
		return &OTPError{Kind: OTPErrRateLimited, RetryAfter: ttl}
	}

	count, err := s.redis.Incr(ctx, otpWindowKey(phone)).Result()
	if err != nil {
		return &OTPError{Kind: OTPErrNetworkUnavailable, Err: err}
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, otpWindowKey(phone), utils.OTPRateWindow).Err(); err != nil {
			return &OTPError{Kind: OTPErrNetworkUnavailable, Err: err}
		}
	}
	if count > utils.OTPMaxSendsPerWindow {
		ttl, terr := s.redis.TTL(ctx, otpWindowKey(phone)).Result()
		if terr != nil || ttl < 0 {
			ttl = utils.OTPRateWindow
		}
		return &OTPError{Kind: OTPErrRateLimited, RetryAfter: ttl}
	}

	return nil
}

// classifyDeliveryError maps carrier transport failures onto OTP error kinds
func classifyDeliveryError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &OTPError{Kind: OTPErrTimeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &OTPError{Kind: OTPErrTimeout, Err: err}
		}
		return &OTPError{Kind: OTPErrNetworkUnavailable, Err: err}
	}

	return &OTPError{Kind: OTPErrProviderRejected, Err: err}
}

// DemoOTPCode is the fixed code accepted by the demo OTP service
const DemoOTPCode = "123456"

// DemoOTPService skips carrier delivery entirely and accepts a single fixed
// code. It backs local development and the demo deployment.
type DemoOTPService struct {
	defaultCountryCode string
}

// NewDemoOTPService creates the demo OTP service
func NewDemoOTPService(defaultCountryCode string) OTPService {
	return &DemoOTPService{defaultCountryCode: defaultCountryCode}
}

func (s *DemoOTPService) Send(ctx context.Context, phone string) error {
	normalized, err := utils.NormalizePhone(phone, s.defaultCountryCode)
	if err != nil {
		return &OTPError{Kind: OTPErrInvalidPhoneFormat, Err: err}
	}
	log.Printf("demo otp issued for %s", utils.MaskPhone(normalized))
	return nil
}

func (s *DemoOTPService) Verify(ctx context.Context, phone, code string) (bool, error) {
	if _, err := utils.NormalizePhone(phone, s.defaultCountryCode); err != nil {
		return false, &OTPError{Kind: OTPErrInvalidPhoneFormat, Err: err}
	}
	return code == DemoOTPCode, nil
}

// MockOTPService implements OTPService for testing
type MockOTPService struct {
	SentTo     []string
	SendErr    error
	VerifyErr  error
	ValidCode  string
	VerifyHits int
}

// NewMockOTPService creates a mock that accepts the given code
func NewMockOTPService(validCode string) *MockOTPService {
	return &MockOTPService{ValidCode: validCode}
}

func (m *MockOTPService) Send(ctx context.Context, phone string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.SentTo = append(m.SentTo, phone)
	return nil
}

func (m *MockOTPService) Verify(ctx context.Context, phone, code string) (bool, error) {
	m.VerifyHits++
	if m.VerifyErr != nil {
		return false, m.VerifyErr
	}
	return code == m.ValidCode, nil
}

// GenerateOTP produces a 6-digit numeric code using crypto/rand
func GenerateOTP() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
