// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/primefit/primefit-api/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

// ErrStoreUnavailable indicates the backing store could not be reached at all.
// Callers must distinguish it from not-found, which is a (nil, nil) result.
var ErrStoreUnavailable = errors.New("identity store unavailable")

// IsStoreUnavailable reports whether err represents a store outage rather
// than a per-record failure.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// AccountRepository defines operations for accounts
type AccountRepository interface {
	Repository[models.Account, models.AccountFilter]
	ByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Account, error)
	ByEmail(ctx context.Context, email string) (*models.Account, error)
	ByUUID(ctx context.Context, uuid string) (*models.Account, error)
	ByPaymentReference(ctx context.Context, reference string) (*models.Account, error)
	ListActiveAccounts(ctx context.Context, limit, offset int) ([]*models.Account, error)
	UpdateVerificationStatus(ctx context.Context, accountID uint, isPhoneVerified *bool, phoneVerifiedAt *time.Time) error
	StartTrial(ctx context.Context, accountID uint, startedAt time.Time) error
	ApplyPayment(ctx context.Context, accountID uint, paidAt, paidUntil time.Time, reference string, amountMinorUnits int64) error
	SetActive(ctx context.Context, accountID uint, isActive bool) error
	UpdateLastLogin(ctx context.Context, accountID uint, at time.Time) error
}

// OTPVerificationRepository defines operations for OTP verifications
type OTPVerificationRepository interface {
	Repository[models.OTPVerification, models.OTPVerificationFilter]
	ByAccountAndType(ctx context.Context, accountID uint, otpType string) ([]*models.OTPVerification, error)
	ByTargetAndType(ctx context.Context, targetValue, otpType string) (*models.OTPVerification, error)
	ListActiveOTPs(ctx context.Context, accountID uint) ([]*models.OTPVerification, error)
	ExpireOldOTPs(ctx context.Context, accountID uint, otpType string) error
	GetLatestByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*models.OTPVerification, error)
}

// AccountSessionRepository defines operations for account sessions
type AccountSessionRepository interface {
	Repository[models.AccountSession, models.AccountSessionFilter]
	BySessionToken(ctx context.Context, token string) (*models.AccountSession, error)
	ByRefreshToken(ctx context.Context, token string) (*models.AccountSession, error)
	ListActiveSessionsByAccount(ctx context.Context, accountID uint) ([]*models.AccountSession, error)
	ExpireSession(ctx context.Context, sessionID uint) error
	ExpireAllAccountSessions(ctx context.Context, accountID uint) error
	CleanupExpiredSessions(ctx context.Context) error
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]*models.AuditLog, error)
	ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
	ListFailedActions(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
	ListSecurityEvents(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
}
