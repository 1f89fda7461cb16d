// Package dto contains Data Transfer Objects for API request and response structures
package dto

// RegisterRequest represents the request payload for account registration
type RegisterRequest struct {
	FullName        string  `json:"full_name" validate:"required,min=2,max=255" example:"Ada Obi"`
	PhoneNumber     string  `json:"phone_number" validate:"required,phone_number" example:"+2348123456789"`
	Email           *string `json:"email,omitempty" validate:"omitempty,email,max=255" example:"ada@example.com"`
	Password        string  `json:"password" validate:"required,min=8,max=100,password_strength" example:"SecurePass123!"`
	ConfirmPassword string  `json:"confirm_password" validate:"required,eqfield=Password" example:"SecurePass123!"`
}

// RegisterResponse represents the response after initiating registration
type RegisterResponse struct {
	AccountID   uint   `json:"account_id" example:"123"`
	MaskedPhone string `json:"masked_phone" example:"+234****6789"`
	OTPExpiry   int    `json:"otp_expiry" example:"300"`
}

// VerifyOTPRequest represents the request to verify a signup OTP code
type VerifyOTPRequest struct {
	AccountID uint   `json:"account_id" validate:"required" example:"123"`
	OTPCode   string `json:"otp_code" validate:"required,len=6,numeric" example:"123456"`
}

// ResendOTPRequest represents the request to resend a signup OTP code
type ResendOTPRequest struct {
	AccountID uint `json:"account_id" validate:"required" example:"123"`
}

// LoginRequest represents the first factor of a login attempt
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required,min=3,max=255" example:"ada@example.com or +2348123456789"`
	Password   string `json:"password" validate:"required,min=8,max=100" example:"SecurePass123!"`
}

// LoginChallengeResponse is returned after the first factor succeeds. The
// login session id scopes every subsequent call of the same attempt.
type LoginChallengeResponse struct {
	LoginSessionID string `json:"login_session_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	MaskedPhone    string `json:"masked_phone" example:"+234****6789"`
	OTPExpiry      int    `json:"otp_expiry" example:"300"`
}

// LoginVerifyRequest represents the second factor of a login attempt
type LoginVerifyRequest struct {
	LoginSessionID string `json:"login_session_id" validate:"required,uuid4" example:"550e8400-e29b-41d4-a716-446655440000"`
	OTPCode        string `json:"otp_code" validate:"required,len=6,numeric" example:"123456"`
}

// LoginResendRequest asks for the second-factor code to be sent again
type LoginResendRequest struct {
	LoginSessionID string `json:"login_session_id" validate:"required,uuid4" example:"550e8400-e29b-41d4-a716-446655440000"`
}

// AuthAccountDTO represents account information returned in authentication responses
type AuthAccountDTO struct {
	ID                 uint    `json:"id" example:"123"`
	UUID               string  `json:"uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	FullName           string  `json:"full_name" example:"Ada Obi"`
	PhoneNumber        string  `json:"phone_number" example:"+2348123456789"`
	Email              *string `json:"email,omitempty" example:"ada@example.com"`
	Role               string  `json:"role" example:"standard"`
	IsActive           *bool   `json:"is_active" example:"true"`
	IsPhoneVerified    *bool   `json:"is_phone_verified" example:"true"`
	SubscriptionStatus string  `json:"subscription_status" example:"none"`
	TrialStartedAt     *string `json:"trial_started_at,omitempty" example:"2024-01-15T10:30:00Z"`
	PaidUntil          *string `json:"paid_until,omitempty" example:"2024-01-22T10:30:00Z"`
	CreatedAt          string  `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

// AccountSessionDTO represents the token pair issued after full authentication
type AccountSessionDTO struct {
	SessionToken string `json:"session_token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	RefreshToken string `json:"refresh_token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	TokenType    string `json:"token_type" example:"Bearer"`
	ExpiresIn    int    `json:"expires_in" example:"86400"`
	CreatedAt    string `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

// AuthResultResponse bundles the account and its session after authentication completes
type AuthResultResponse struct {
	Account AuthAccountDTO    `json:"account"`
	Session AccountSessionDTO `json:"session"`
}

// Common error codes for authentication operations
const (
	ErrorCodeValidation        = "VALIDATION_ERROR"
	ErrorCodeAccountNotFound   = "ACCOUNT_NOT_FOUND"
	ErrorCodeIncorrectPassword = "INCORRECT_PASSWORD"
	ErrorCodeAccountInactive   = "ACCOUNT_INACTIVE"
	ErrorCodeDuplicatePhone    = "DUPLICATE_PHONE"
	ErrorCodeDuplicateEmail    = "DUPLICATE_EMAIL"
	ErrorCodeInvalidOTP        = "INVALID_OTP"
	ErrorCodeSessionExpired    = "SESSION_EXPIRED"
	ErrorCodeSessionNotFound   = "SESSION_NOT_FOUND"
	ErrorCodeRateLimited       = "RATE_LIMITED"
	ErrorCodeDeliveryFailed    = "DELIVERY_FAILED"
	ErrorCodeStoreUnavailable  = "STORE_UNAVAILABLE"
	ErrorCodeInternal          = "INTERNAL_ERROR"
)
