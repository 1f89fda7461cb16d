// Package businessflow contains the core business logic and use cases for the access platform
package businessflow

import (
	"time"

	"github.com/primefit/primefit-api/app/dto"
	"github.com/primefit/primefit-api/models"
)

const RequestIDKey = "X-Request-ID"

// Clock supplies the current time to flows. Production code uses SystemClock;
// tests substitute a fixed or stepped implementation.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the wall clock in UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ClientMetadata holds all client-related information for audit logging and session tracking
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// ToAuthAccountDTO converts an account model to AuthAccountDTO for authentication responses
func ToAuthAccountDTO(account models.Account) dto.AuthAccountDTO {
	d := dto.AuthAccountDTO{
		ID:                 account.ID,
		UUID:               account.UUID.String(),
		FullName:           account.FullName,
		PhoneNumber:        account.PhoneNumber,
		Email:              account.Email,
		Role:               account.Role,
		IsActive:           account.IsActive,
		IsPhoneVerified:    account.IsPhoneVerified,
		SubscriptionStatus: account.SubscriptionStatus,
		CreatedAt:          account.CreatedAt.Format(time.RFC3339),
	}

	if account.TrialStartedAt != nil {
		started := account.TrialStartedAt.Format(time.RFC3339)
		d.TrialStartedAt = &started
	}
	if account.PaidUntil != nil {
		until := account.PaidUntil.Format(time.RFC3339)
		d.PaidUntil = &until
	}

	return d
}

// ToAccountSessionDTO converts a session model to the token pair payload.
// ExpiresIn is computed against the caller-supplied instant so flows driven
// by an injected clock report a consistent lifetime.
func ToAccountSessionDTO(session models.AccountSession, now time.Time) dto.AccountSessionDTO {
	refreshToken := ""
	if session.RefreshToken != nil {
		refreshToken = *session.RefreshToken
	}

	return dto.AccountSessionDTO{
		SessionToken: session.SessionToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(session.ExpiresAt.Sub(now).Seconds()),
		TokenType:    "Bearer",
		CreatedAt:    session.CreatedAt.Format(time.RFC3339),
	}
}
