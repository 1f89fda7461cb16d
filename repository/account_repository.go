// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/primefit/primefit-api/models"
	"github.com/primefit/primefit-api/utils"
	"gorm.io/gorm"
)

// AccountRepositoryImpl implements AccountRepository interface
type AccountRepositoryImpl struct {
	*BaseRepository[models.Account, models.AccountFilter]
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &AccountRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Account, models.AccountFilter](db),
	}
}

// ByPhoneNumber retrieves an account by its canonical phone number
func (r *AccountRepositoryImpl) ByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Account, error) {
	accounts, err := r.ByFilter(ctx, models.AccountFilter{PhoneNumber: &phoneNumber}, "", 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by phone number: %w", err)
	}

	if len(accounts) == 0 {
		return nil, nil
	}

	return accounts[0], nil
}

// ByEmail retrieves an account by email address
func (r *AccountRepositoryImpl) ByEmail(ctx context.Context, email string) (*models.Account, error) {
	accounts, err := r.ByFilter(ctx, models.AccountFilter{Email: &email}, "", 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}

	if len(accounts) == 0 {
		return nil, nil
	}

	return accounts[0], nil
}

// ByUUID retrieves an account by its public UUID
func (r *AccountRepositoryImpl) ByUUID(ctx context.Context, accountUUID string) (*models.Account, error) {
	db := r.getDB(ctx)

	var account models.Account
	err := db.Where("uuid = ?", accountUUID).Last(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find account by uuid: %w", err)
	}

	return &account, nil
}

// ByPaymentReference retrieves the account that already consumed a payment reference
func (r *AccountRepositoryImpl) ByPaymentReference(ctx context.Context, reference string) (*models.Account, error) {
	accounts, err := r.ByFilter(ctx, models.AccountFilter{LastPaymentReference: &reference}, "", 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by payment reference: %w", err)
	}

	if len(accounts) == 0 {
		return nil, nil
	}

	return accounts[0], nil
}

// ListActiveAccounts retrieves active accounts with pagination
func (r *AccountRepositoryImpl) ListActiveAccounts(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	db := r.getDB(ctx)

	var accounts []*models.Account
	err := db.Where("is_active = ?", true).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&accounts).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}

	return accounts, nil
}

// UpdateVerificationStatus updates the phone verification flags for an account
func (r *AccountRepositoryImpl) UpdateVerificationStatus(ctx context.Context, accountID uint, isPhoneVerified *bool, phoneVerifiedAt *time.Time) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	updates := map[string]any{"updated_at": utils.UTCNow()}
	if isPhoneVerified != nil {
		updates["is_phone_verified"] = *isPhoneVerified
	}
	if phoneVerifiedAt != nil {
		updates["phone_verified_at"] = *phoneVerifiedAt
	}

	err = db.Model(&models.Account{}).Where("id = ?", accountID).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to update verification status: %w", err)
	}

	return nil
}

// StartTrial records the trial start timestamp. The guard on trial_started_at
// makes the write a no-op for accounts whose trial already began, so the
// timestamp is set at most once for the lifetime of an account.
func (r *AccountRepositoryImpl) StartTrial(ctx context.Context, accountID uint, startedAt time.Time) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Model(&models.Account{}).
		Where("id = ? AND trial_started_at IS NULL", accountID).
		Updates(map[string]any{
			"trial_started_at": startedAt,
			"updated_at":       utils.UTCNow(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to start trial: %w", err)
	}

	return nil
}

// ApplyPayment extends paid access and records the provider reference that bought it
func (r *AccountRepositoryImpl) ApplyPayment(ctx context.Context, accountID uint, paidAt, paidUntil time.Time, reference string, amountMinorUnits int64) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Model(&models.Account{}).Where("id = ?", accountID).
		Updates(map[string]any{
			"subscription_status":     models.SubscriptionStatusPaid,
			"paid_at":                 paidAt,
			"paid_until":              paidUntil,
			"last_payment_reference":  reference,
			"amount_paid_minor_units": amountMinorUnits,
			"updated_at":              utils.UTCNow(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to apply payment: %w", err)
	}

	return nil
}

// SetActive flips the account's active flag
func (r *AccountRepositoryImpl) SetActive(ctx context.Context, accountID uint, isActive bool) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Model(&models.Account{}).Where("id = ?", accountID).
		Updates(map[string]any{
			"is_active":  isActive,
			"updated_at": utils.UTCNow(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to set active flag: %w", err)
	}

	return nil
}

// UpdateLastLogin records the time of the latest successful login
func (r *AccountRepositoryImpl) UpdateLastLogin(ctx context.Context, accountID uint, at time.Time) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Model(&models.Account{}).Where("id = ?", accountID).
		Updates(map[string]any{
			"last_login_at": at,
			"updated_at":    utils.UTCNow(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	return nil
}

// applyFilter applies filter criteria to a GORM query
func (r *AccountRepositoryImpl) applyFilter(query *gorm.DB, filter models.AccountFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}

	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}

	if filter.PhoneNumber != nil {
		query = query.Where("phone_number = ?", *filter.PhoneNumber)
	}

	if filter.Email != nil {
		query = query.Where("email = ?", *filter.Email)
	}

	if filter.Role != nil {
		query = query.Where("role = ?", *filter.Role)
	}

	if filter.IsPhoneVerified != nil {
		query = query.Where("is_phone_verified = ?", *filter.IsPhoneVerified)
	}

	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}

	if filter.SubscriptionStatus != nil {
		query = query.Where("subscription_status = ?", *filter.SubscriptionStatus)
	}

	if filter.LastPaymentReference != nil {
		query = query.Where("last_payment_reference = ?", *filter.LastPaymentReference)
	}

	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}

	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}

	if filter.LastLoginAfter != nil {
		query = query.Where("last_login_at > ?", *filter.LastLoginAfter)
	}

	if filter.LastLoginBefore != nil {
		query = query.Where("last_login_at < ?", *filter.LastLoginBefore)
	}

	return query
}

// ByFilter retrieves accounts based on filter criteria
func (r *AccountRepositoryImpl) ByFilter(ctx context.Context, filter models.AccountFilter, orderBy string, limit, offset int) ([]*models.Account, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Account{}), filter)

	if orderBy == "" {
		orderBy = "id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var accounts []*models.Account
	err := query.Find(&accounts).Error
	if err != nil {
		return nil, err
	}

	return accounts, nil
}

// Count returns the number of accounts matching the filter
func (r *AccountRepositoryImpl) Count(ctx context.Context, filter models.AccountFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Account{}), filter)

	var count int64
	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any account matching the filter exists
func (r *AccountRepositoryImpl) Exists(ctx context.Context, filter models.AccountFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}
