// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/primefit/primefit-api/models"
	"github.com/primefit/primefit-api/utils"
)

// InMemoryAccountRepository is a memory-backed AccountRepository used by tests
// and demo deployments that run without Postgres. SetUnavailable simulates a
// store outage: every operation returns ErrStoreUnavailable while set.
type InMemoryAccountRepository struct {
	mu          sync.RWMutex
	accounts    []*models.Account
	nextID      uint
	unavailable bool
}

// NewInMemoryAccountRepository creates an empty in-memory account repository
func NewInMemoryAccountRepository() *InMemoryAccountRepository {
	return &InMemoryAccountRepository{nextID: 1}
}

// SetUnavailable toggles simulated store outage
func (r *InMemoryAccountRepository) SetUnavailable(unavailable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = unavailable
}

func (r *InMemoryAccountRepository) checkAvailable() error {
	if r.unavailable {
		return ErrStoreUnavailable
	}
	return nil
}

func (r *InMemoryAccountRepository) ByID(ctx context.Context, id uint) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkAvailable(); err != nil {
		return nil, err
	}

	for _, a := range r.accounts {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func matchAccount(a *models.Account, filter models.AccountFilter) bool {
	if filter.ID != nil && a.ID != *filter.ID {
		return false
	}
	if filter.UUID != nil && a.UUID != *filter.UUID {
		return false
	}
	if filter.PhoneNumber != nil && a.PhoneNumber != *filter.PhoneNumber {
		return false
	}
	if filter.Email != nil && (a.Email == nil || !strings.EqualFold(*a.Email, *filter.Email)) {
		return false
	}
	if filter.IsPhoneVerified != nil && utils.IsTrue(a.IsPhoneVerified) != *filter.IsPhoneVerified {
		return false
	}
	if filter.IsActive != nil && utils.IsTrue(a.IsActive) != *filter.IsActive {
		return false
	}
	if filter.Role != nil && a.Role != *filter.Role {
		return false
	}
	if filter.SubscriptionStatus != nil && a.SubscriptionStatus != *filter.SubscriptionStatus {
		return false
	}
	if filter.LastPaymentReference != nil && (a.LastPaymentReference == nil || *a.LastPaymentReference != *filter.LastPaymentReference) {
		return false
	}
	if filter.CreatedAfter != nil && !a.CreatedAt.After(*filter.CreatedAfter) {
		return false
	}
	if filter.CreatedBefore != nil && !a.CreatedAt.Before(*filter.CreatedBefore) {
		return false
	}
	return true
}

func (r *InMemoryAccountRepository) ByFilter(ctx context.Context, filter models.AccountFilter, orderBy string, limit, offset int) ([]*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkAvailable(); err != nil {
		return nil, err
	}

	var matched []*models.Account
	for _, a := range r.accounts {
		if matchAccount(a, filter) {
			cp := *a
			matched = append(matched, &cp)
		}
	}

	// Newest first, matching the SQL backends' default ordering
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	if offset > 0 {
		if offset >= len(matched) {
			return nil, nil
		}
		matched = matched[offset:]
	}
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	return matched, nil
}

func (r *InMemoryAccountRepository) Save(ctx context.Context, entity *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkAvailable(); err != nil {
		return err
	}

	if entity.ID == 0 {
		entity.ID = r.nextID
		r.nextID++
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = utils.UTCNow()
	}
	entity.UpdatedAt = utils.UTCNow()

	cp := *entity
	r.accounts = append(r.accounts, &cp)
	return nil
}

func (r *InMemoryAccountRepository) SaveBatch(ctx context.Context, entities []*models.Account) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *InMemoryAccountRepository) Count(ctx context.Context, filter models.AccountFilter) (int64, error) {
	matched, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (r *InMemoryAccountRepository) Exists(ctx context.Context, filter models.AccountFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *InMemoryAccountRepository) ByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Account, error) {
	accounts, err := r.ByFilter(ctx, models.AccountFilter{PhoneNumber: &phoneNumber}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return accounts[0], nil
}

func (r *InMemoryAccountRepository) ByEmail(ctx context.Context, email string) (*models.Account, error) {
	accounts, err := r.ByFilter(ctx, models.AccountFilter{Email: &email}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return accounts[0], nil
}

func (r *InMemoryAccountRepository) ByUUID(ctx context.Context, accountUUID string) (*models.Account, error) {
	parsed, err := uuid.Parse(accountUUID)
	if err != nil {
		return nil, nil
	}
	accounts, err := r.ByFilter(ctx, models.AccountFilter{UUID: &parsed}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return accounts[0], nil
}

func (r *InMemoryAccountRepository) ByPaymentReference(ctx context.Context, reference string) (*models.Account, error) {
	accounts, err := r.ByFilter(ctx, models.AccountFilter{LastPaymentReference: &reference}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return accounts[0], nil
}

func (r *InMemoryAccountRepository) ListActiveAccounts(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	return r.ByFilter(ctx, models.AccountFilter{IsActive: utils.ToPtr(true)}, "", limit, offset)
}

// update applies fn to the stored account with the given ID
func (r *InMemoryAccountRepository) update(accountID uint, fn func(*models.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkAvailable(); err != nil {
		return err
	}

	for _, a := range r.accounts {
		if a.ID == accountID {
			fn(a)
			a.UpdatedAt = utils.UTCNow()
			return nil
		}
	}
	return nil
}

func (r *InMemoryAccountRepository) UpdateVerificationStatus(ctx context.Context, accountID uint, isPhoneVerified *bool, phoneVerifiedAt *time.Time) error {
	return r.update(accountID, func(a *models.Account) {
		if isPhoneVerified != nil {
			a.IsPhoneVerified = isPhoneVerified
		}
		if phoneVerifiedAt != nil {
			a.PhoneVerifiedAt = phoneVerifiedAt
		}
	})
}

func (r *InMemoryAccountRepository) StartTrial(ctx context.Context, accountID uint, startedAt time.Time) error {
	return r.update(accountID, func(a *models.Account) {
		if a.TrialStartedAt == nil {
			a.TrialStartedAt = &startedAt
		}
	})
}

func (r *InMemoryAccountRepository) ApplyPayment(ctx context.Context, accountID uint, paidAt, paidUntil time.Time, reference string, amountMinorUnits int64) error {
	return r.update(accountID, func(a *models.Account) {
		a.SubscriptionStatus = models.SubscriptionStatusPaid
		a.PaidAt = &paidAt
		a.PaidUntil = &paidUntil
		a.LastPaymentReference = &reference
		a.AmountPaidMinorUnits = amountMinorUnits
	})
}

func (r *InMemoryAccountRepository) SetActive(ctx context.Context, accountID uint, isActive bool) error {
	return r.update(accountID, func(a *models.Account) {
		a.IsActive = &isActive
	})
}

func (r *InMemoryAccountRepository) UpdateLastLogin(ctx context.Context, accountID uint, at time.Time) error {
	return r.update(accountID, func(a *models.Account) {
		a.LastLoginAt = &at
	})
}

// InMemoryAuditLogRepository is a memory-backed AuditLogRepository for tests
type InMemoryAuditLogRepository struct {
	mu     sync.RWMutex
	logs   []*models.AuditLog
	nextID uint
}

// NewInMemoryAuditLogRepository creates an empty in-memory audit log repository
func NewInMemoryAuditLogRepository() *InMemoryAuditLogRepository {
	return &InMemoryAuditLogRepository{nextID: 1}
}

func (r *InMemoryAuditLogRepository) ByID(ctx context.Context, id uint) (*models.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, l := range r.logs {
		if l.ID == id {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func matchAuditLog(l *models.AuditLog, filter models.AuditLogFilter) bool {
	if filter.ID != nil && l.ID != *filter.ID {
		return false
	}
	if filter.AccountID != nil && (l.AccountID == nil || *l.AccountID != *filter.AccountID) {
		return false
	}
	if filter.Action != nil && l.Action != *filter.Action {
		return false
	}
	if filter.Success != nil && utils.IsTrue(l.Success) != *filter.Success {
		return false
	}
	return true
}

func (r *InMemoryAuditLogRepository) ByFilter(ctx context.Context, filter models.AuditLogFilter, orderBy string, limit, offset int) ([]*models.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*models.AuditLog
	for _, l := range r.logs {
		if matchAuditLog(l, filter) {
			cp := *l
			matched = append(matched, &cp)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	if offset > 0 {
		if offset >= len(matched) {
			return nil, nil
		}
		matched = matched[offset:]
	}
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	return matched, nil
}

func (r *InMemoryAuditLogRepository) Save(ctx context.Context, entity *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entity.ID == 0 {
		entity.ID = r.nextID
		r.nextID++
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = utils.UTCNow()
	}

	cp := *entity
	r.logs = append(r.logs, &cp)
	return nil
}

func (r *InMemoryAuditLogRepository) SaveBatch(ctx context.Context, entities []*models.AuditLog) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *InMemoryAuditLogRepository) Count(ctx context.Context, filter models.AuditLogFilter) (int64, error) {
	matched, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (r *InMemoryAuditLogRepository) Exists(ctx context.Context, filter models.AuditLogFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *InMemoryAuditLogRepository) ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]*models.AuditLog, error) {
	return r.ByFilter(ctx, models.AuditLogFilter{AccountID: &accountID}, "", limit, offset)
}

func (r *InMemoryAuditLogRepository) ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error) {
	return r.ByFilter(ctx, models.AuditLogFilter{Action: &action}, "", limit, offset)
}

func (r *InMemoryAuditLogRepository) ListFailedActions(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	return r.ByFilter(ctx, models.AuditLogFilter{Success: utils.ToPtr(false)}, "", limit, offset)
}

func (r *InMemoryAuditLogRepository) ListSecurityEvents(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*models.AuditLog
	for _, l := range r.logs {
		if l.IsSecurityEvent() {
			cp := *l
			matched = append(matched, &cp)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	return matched, nil
}

// InMemoryOTPVerificationRepository is a memory-backed OTPVerificationRepository for tests
type InMemoryOTPVerificationRepository struct {
	mu     sync.RWMutex
	otps   []*models.OTPVerification
	nextID uint
}

// NewInMemoryOTPVerificationRepository creates an empty in-memory OTP repository
func NewInMemoryOTPVerificationRepository() *InMemoryOTPVerificationRepository {
	return &InMemoryOTPVerificationRepository{nextID: 1}
}

func (r *InMemoryOTPVerificationRepository) ByID(ctx context.Context, id uint) (*models.OTPVerification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, o := range r.otps {
		if o.ID == id {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func matchOTP(o *models.OTPVerification, filter models.OTPVerificationFilter) bool {
	if filter.ID != nil && o.ID != *filter.ID {
		return false
	}
	if filter.CorrelationID != nil && o.CorrelationID != *filter.CorrelationID {
		return false
	}
	if filter.AccountID != nil && o.AccountID != *filter.AccountID {
		return false
	}
	if filter.OTPType != nil && o.OTPType != *filter.OTPType {
		return false
	}
	if filter.TargetValue != nil && o.TargetValue != *filter.TargetValue {
		return false
	}
	if filter.Status != nil && o.Status != *filter.Status {
		return false
	}
	if filter.IsActive != nil && (o.IsPending() && !o.IsExpired(utils.UTCNow())) != *filter.IsActive {
		return false
	}
	return true
}

func (r *InMemoryOTPVerificationRepository) ByFilter(ctx context.Context, filter models.OTPVerificationFilter, orderBy string, limit, offset int) ([]*models.OTPVerification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*models.OTPVerification
	for _, o := range r.otps {
		if matchOTP(o, filter) {
			cp := *o
			matched = append(matched, &cp)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	if offset > 0 {
		if offset >= len(matched) {
			return nil, nil
		}
		matched = matched[offset:]
	}
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	return matched, nil
}

func (r *InMemoryOTPVerificationRepository) Save(ctx context.Context, entity *models.OTPVerification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entity.ID == 0 {
		entity.ID = r.nextID
		r.nextID++
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = utils.UTCNow()
	}

	cp := *entity
	r.otps = append(r.otps, &cp)
	return nil
}

func (r *InMemoryOTPVerificationRepository) SaveBatch(ctx context.Context, entities []*models.OTPVerification) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *InMemoryOTPVerificationRepository) Count(ctx context.Context, filter models.OTPVerificationFilter) (int64, error) {
	matched, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (r *InMemoryOTPVerificationRepository) Exists(ctx context.Context, filter models.OTPVerificationFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *InMemoryOTPVerificationRepository) ByAccountAndType(ctx context.Context, accountID uint, otpType string) ([]*models.OTPVerification, error) {
	return r.ByFilter(ctx, models.OTPVerificationFilter{AccountID: &accountID, OTPType: &otpType}, "", 0, 0)
}

func (r *InMemoryOTPVerificationRepository) ByTargetAndType(ctx context.Context, targetValue, otpType string) (*models.OTPVerification, error) {
	matched, err := r.ByFilter(ctx, models.OTPVerificationFilter{TargetValue: &targetValue, OTPType: &otpType}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, nil
	}
	return matched[0], nil
}

func (r *InMemoryOTPVerificationRepository) ListActiveOTPs(ctx context.Context, accountID uint) ([]*models.OTPVerification, error) {
	return r.ByFilter(ctx, models.OTPVerificationFilter{AccountID: &accountID, IsActive: utils.ToPtr(true)}, "", 0, 0)
}

func (r *InMemoryOTPVerificationRepository) ExpireOldOTPs(ctx context.Context, accountID uint, otpType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range r.otps {
		if o.AccountID == accountID && o.OTPType == otpType && o.IsPending() {
			o.Status = models.OTPStatusExpired
		}
	}
	return nil
}

func (r *InMemoryOTPVerificationRepository) GetLatestByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*models.OTPVerification, error) {
	matched, err := r.ByFilter(ctx, models.OTPVerificationFilter{CorrelationID: &correlationID}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, nil
	}
	return matched[0], nil
}

// InMemoryAccountSessionRepository is a memory-backed AccountSessionRepository for tests
type InMemoryAccountSessionRepository struct {
	mu       sync.RWMutex
	sessions []*models.AccountSession
	nextID   uint
}

// NewInMemoryAccountSessionRepository creates an empty in-memory session repository
func NewInMemoryAccountSessionRepository() *InMemoryAccountSessionRepository {
	return &InMemoryAccountSessionRepository{nextID: 1}
}

func (r *InMemoryAccountSessionRepository) ByID(ctx context.Context, id uint) (*models.AccountSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func matchSession(s *models.AccountSession, filter models.AccountSessionFilter) bool {
	if filter.ID != nil && s.ID != *filter.ID {
		return false
	}
	if filter.CorrelationID != nil && s.CorrelationID != *filter.CorrelationID {
		return false
	}
	if filter.AccountID != nil && s.AccountID != *filter.AccountID {
		return false
	}
	if filter.IsActive != nil && utils.IsTrue(s.IsActive) != *filter.IsActive {
		return false
	}
	if filter.IsExpired != nil && s.IsExpired(utils.UTCNow()) != *filter.IsExpired {
		return false
	}
	return true
}

func (r *InMemoryAccountSessionRepository) ByFilter(ctx context.Context, filter models.AccountSessionFilter, orderBy string, limit, offset int) ([]*models.AccountSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*models.AccountSession
	for _, s := range r.sessions {
		if matchSession(s, filter) {
			cp := *s
			matched = append(matched, &cp)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	if offset > 0 {
		if offset >= len(matched) {
			return nil, nil
		}
		matched = matched[offset:]
	}
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	return matched, nil
}

func (r *InMemoryAccountSessionRepository) Save(ctx context.Context, entity *models.AccountSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entity.ID == 0 {
		entity.ID = r.nextID
		r.nextID++
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = utils.UTCNow()
	}
	if entity.LastAccessedAt.IsZero() {
		entity.LastAccessedAt = entity.CreatedAt
	}

	cp := *entity
	r.sessions = append(r.sessions, &cp)
	return nil
}

func (r *InMemoryAccountSessionRepository) SaveBatch(ctx context.Context, entities []*models.AccountSession) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *InMemoryAccountSessionRepository) Count(ctx context.Context, filter models.AccountSessionFilter) (int64, error) {
	matched, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (r *InMemoryAccountSessionRepository) Exists(ctx context.Context, filter models.AccountSessionFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *InMemoryAccountSessionRepository) BySessionToken(ctx context.Context, token string) (*models.AccountSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s.SessionToken == token {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *InMemoryAccountSessionRepository) ByRefreshToken(ctx context.Context, token string) (*models.AccountSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s.RefreshToken != nil && *s.RefreshToken == token {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *InMemoryAccountSessionRepository) ListActiveSessionsByAccount(ctx context.Context, accountID uint) ([]*models.AccountSession, error) {
	return r.ByFilter(ctx, models.AccountSessionFilter{AccountID: &accountID, IsActive: utils.ToPtr(true)}, "", 0, 0)
}

func (r *InMemoryAccountSessionRepository) ExpireSession(ctx context.Context, sessionID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.ID == sessionID {
			s.IsActive = utils.ToPtr(false)
			s.ExpiresAt = utils.UTCNow()
		}
	}
	return nil
}

func (r *InMemoryAccountSessionRepository) ExpireAllAccountSessions(ctx context.Context, accountID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.AccountID == accountID {
			s.IsActive = utils.ToPtr(false)
			s.ExpiresAt = utils.UTCNow()
		}
	}
	return nil
}

func (r *InMemoryAccountSessionRepository) CleanupExpiredSessions(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := utils.UTCNow()
	var kept []*models.AccountSession
	for _, s := range r.sessions {
		if !s.IsExpired(now) {
			kept = append(kept, s)
		}
	}
	r.sessions = kept
	return nil
}
