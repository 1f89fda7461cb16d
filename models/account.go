// Package models contains domain entities and business models for the access platform
package models

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_accounts_uuid;index:idx_accounts_uuid" json:"uuid"`

	// Identity fields
	FullName    string  `gorm:"size:255;not null" json:"full_name"`
	PhoneNumber string  `gorm:"size:20;not null;uniqueIndex:uk_accounts_phone_number" json:"phone_number"`
	Email       *string `gorm:"size:255;uniqueIndex:uk_accounts_email" json:"email,omitempty"`

	PasswordHash string `gorm:"size:255;not null" json:"-"` // Never serialize password hash

	// Status and verification
	Role            string `gorm:"type:account_role_enum;default:standard;index:idx_accounts_role" json:"role"`
	IsPhoneVerified *bool  `gorm:"default:false" json:"is_phone_verified"`
	IsActive        *bool  `gorm:"default:true;index:idx_accounts_is_active" json:"is_active"`

	// Trial state. TrialStartedAt is written exactly once, at the first
	// successful signup verification; accounts created before trials existed
	// keep it nil.
	TrialStartedAt *time.Time `gorm:"index:idx_accounts_trial_started_at" json:"trial_started_at,omitempty"`

	// Subscription state
	SubscriptionStatus   string     `gorm:"type:subscription_status_enum;default:none;index:idx_accounts_subscription_status" json:"subscription_status"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`
	PaidUntil            *time.Time `gorm:"index:idx_accounts_paid_until" json:"paid_until,omitempty"`
	LastPaymentReference *string    `gorm:"size:255;index:idx_accounts_last_payment_reference" json:"-"`
	AmountPaidMinorUnits int64      `gorm:"default:0" json:"amount_paid_minor_units"`

	// Timestamps
	CreatedAt       time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_accounts_created_at" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
	PhoneVerifiedAt *time.Time `json:"phone_verified_at,omitempty"`
	LastLoginAt     *time.Time `gorm:"index:idx_accounts_last_login_at" json:"last_login_at,omitempty"`

	// Relations
	OTPVerifications []OTPVerification `gorm:"foreignKey:AccountID" json:"-"`
	Sessions         []AccountSession  `gorm:"foreignKey:AccountID" json:"-"`
	AuditLogs        []AuditLog        `gorm:"foreignKey:AccountID" json:"-"`
}

func (Account) TableName() string {
	return "accounts"
}

// AccountFilter represents filter criteria for account queries
type AccountFilter struct {
	ID                   *uint
	UUID                 *uuid.UUID
	PhoneNumber          *string
	Email                *string
	Role                 *string
	IsPhoneVerified      *bool
	IsActive             *bool
	SubscriptionStatus   *string
	LastPaymentReference *string
	CreatedAfter         *time.Time
	CreatedBefore        *time.Time
	LastLoginAfter       *time.Time
	LastLoginBefore      *time.Time
}

// Account role constants
const (
	RoleStandard   = "standard"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Subscription status constants
const (
	SubscriptionStatusNone    = "none"
	SubscriptionStatusPaid    = "paid"
	SubscriptionStatusExpired = "expired"
)

func (a *Account) IsAdminRole() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}

func (a *Account) TrialEndsAt() *time.Time {
	if a.TrialStartedAt == nil {
		return nil
	}
	end := a.TrialStartedAt.Add(TrialDuration)
	return &end
}

func (a *Account) HasStartedTrial() bool {
	return a.TrialStartedAt != nil
}

// Trial and subscription durations
const (
	// TrialDuration is the fixed free-trial window granted at the first
	// successful signup verification (48 hours)
	TrialDuration = 48 * time.Hour

	// SubscriptionExtension is how much access a single successful payment buys (7 days)
	SubscriptionExtension = 7 * 24 * time.Hour
)
