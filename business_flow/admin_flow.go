package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/primefit/primefit-api/app/dto"
	"github.com/primefit/primefit-api/models"
	"github.com/primefit/primefit-api/repository"
	"github.com/primefit/primefit-api/utils"
	"gorm.io/gorm"
)

// AdminFlow handles administrative account management
type AdminFlow interface {
	SetAccountActive(ctx context.Context, actingAccountID uint, targetUUID string, active bool, metadata *ClientMetadata) (*dto.AdminAccountActionResponse, error)
}

// AdminFlowImpl implements the admin business flow
type AdminFlowImpl struct {
	accountRepo repository.AccountRepository
	sessionRepo repository.AccountSessionRepository
	auditRepo   repository.AuditLogRepository
	clock       Clock
	db          *gorm.DB
}

// NewAdminFlow creates a new admin flow instance
func NewAdminFlow(
	accountRepo repository.AccountRepository,
	sessionRepo repository.AccountSessionRepository,
	auditRepo repository.AuditLogRepository,
	clock Clock,
	db *gorm.DB,
) AdminFlow {
	if clock == nil {
		clock = SystemClock{}
	}
	return &AdminFlowImpl{
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
		auditRepo:   auditRepo,
		clock:       clock,
		db:          db,
	}
}

// SetAccountActive enables or disables an account. The acting principal must
// itself be an active admin; disabling also expires the target's sessions so
// a banned account cannot keep using issued tokens.
func (f *AdminFlowImpl) SetAccountActive(ctx context.Context, actingAccountID uint, targetUUID string, active bool, metadata *ClientMetadata) (*dto.AdminAccountActionResponse, error) {
	acting, err := f.accountRepo.ByID(ctx, actingAccountID)
	if err != nil {
		return nil, NewBusinessError("ADMIN_ACTION_FAILED", "Admin action failed", fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
	}
	if acting == nil || !acting.IsAdminRole() || !utils.IsTrue(acting.IsActive) {
		return nil, NewBusinessError("ADMIN_REQUIRED", "Admin privileges required", ErrAdminRequired)
	}

	target, err := f.accountRepo.ByUUID(ctx, targetUUID)
	if err != nil {
		return nil, NewBusinessError("ADMIN_ACTION_FAILED", "Admin action failed", fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
	}
	if target == nil {
		return nil, NewBusinessError("ACCOUNT_NOT_FOUND", "Account not found", ErrAccountNotFound)
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if err := f.accountRepo.SetActive(txCtx, target.ID, active); err != nil {
			return err
		}
		if !active {
			return f.sessionRepo.ExpireAllAccountSessions(txCtx, target.ID)
		}
		return nil
	})

	action := models.AuditActionAccountActivated
	if !active {
		action = models.AuditActionAccountDeactivated
	}

	if err != nil {
		errMsg := fmt.Sprintf("admin action failed: %s", err.Error())
		_ = f.createAuditLog(ctx, acting, target, action, errMsg, false, metadata)
		return nil, NewBusinessError("ADMIN_ACTION_FAILED", "Admin action failed", err)
	}

	desc := fmt.Sprintf("account %d set active=%t by admin %d", target.ID, active, acting.ID)
	_ = f.createAuditLog(ctx, acting, target, action, desc, true, metadata)

	return &dto.AdminAccountActionResponse{
		AccountUUID: target.UUID.String(),
		IsActive:    active,
		UpdatedAt:   f.clock.Now().Format(time.RFC3339),
	}, nil
}

func (f *AdminFlowImpl) createAuditLog(ctx context.Context, acting, target *models.Account, action, description string, success bool, metadata *ClientMetadata) error {
	var accountID *uint
	if target != nil {
		accountID = &target.ID
	}

	ipAddress := "127.0.0.1"
	userAgent := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
	}

	audit := &models.AuditLog{
		AccountID:   accountID,
		Action:      action,
		Description: &description,
		Success:     utils.ToPtr(success),
		IPAddress:   &ipAddress,
		UserAgent:   &userAgent,
	}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		audit.RequestID = &requestID
	} else if metadata != nil && metadata.RequestID != "" {
		audit.RequestID = &metadata.RequestID
	}

	return f.auditRepo.Save(ctx, audit)
}
