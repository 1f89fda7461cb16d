package businessflow

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/google/uuid"
	"github.com/primefit/primefit-api/app/dto"
	"github.com/primefit/primefit-api/app/services"
	"github.com/primefit/primefit-api/models"
	"github.com/primefit/primefit-api/repository"
	"github.com/primefit/primefit-api/utils"
	"gorm.io/gorm"
)

// RegistrationFlow handles the complete signup business logic
type RegistrationFlow interface {
	Register(ctx context.Context, req *dto.RegisterRequest, metadata *ClientMetadata) (*dto.RegisterResponse, error)
	VerifyOTP(ctx context.Context, req *dto.VerifyOTPRequest, metadata *ClientMetadata) (*dto.AuthResultResponse, error)
	ResendOTP(ctx context.Context, req *dto.ResendOTPRequest, metadata *ClientMetadata) (*dto.RegisterResponse, error)
}

// RegistrationFlowImpl implements the signup business flow
type RegistrationFlowImpl struct {
	accountRepo repository.AccountRepository
	otpRepo     repository.OTPVerificationRepository
	sessionRepo repository.AccountSessionRepository
	auditRepo   repository.AuditLogRepository
	guard       DuplicateGuard
	otpService  services.OTPService
	tokenSvc    services.TokenService
	clock       Clock
	countryCode string
	db          *gorm.DB
}

// NewRegistrationFlow creates a new registration flow instance
func NewRegistrationFlow(
	accountRepo repository.AccountRepository,
	otpRepo repository.OTPVerificationRepository,
	sessionRepo repository.AccountSessionRepository,
	auditRepo repository.AuditLogRepository,
	guard DuplicateGuard,
	otpService services.OTPService,
	tokenSvc services.TokenService,
	clock Clock,
	countryCode string,
	db *gorm.DB,
) RegistrationFlow {
	if clock == nil {
		clock = SystemClock{}
	}
	if countryCode == "" {
		countryCode = utils.DefaultCountryCode
	}
	return &RegistrationFlowImpl{
		accountRepo: accountRepo,
		otpRepo:     otpRepo,
		sessionRepo: sessionRepo,
		auditRepo:   auditRepo,
		guard:       guard,
		otpService:  otpService,
		tokenSvc:    tokenSvc,
		clock:       clock,
		countryCode: countryCode,
		db:          db,
	}
}

// Register creates an unverified account and dispatches the signup code
func (s *RegistrationFlowImpl) Register(ctx context.Context, req *dto.RegisterRequest, metadata *ClientMetadata) (*dto.RegisterResponse, error) {
	if strings.TrimSpace(req.PhoneNumber) == "" {
		return nil, NewBusinessError("REGISTRATION_VALIDATION_FAILED", "Phone number is required", ErrPhoneNumberRequired)
	}

	phone, err := utils.NormalizePhone(req.PhoneNumber, s.countryCode)
	if err != nil {
		return nil, NewBusinessError("REGISTRATION_VALIDATION_FAILED", "Registration validation failed", fmt.Errorf("%w: %v", ErrInvalidPhoneNumber, err))
	}

	email := ""
	if req.Email != nil {
		email = strings.TrimSpace(*req.Email)
	}

	if _, err := s.guard.Check(ctx, phone, email); err != nil {
		switch {
		case IsPhoneAlreadyExists(err):
			return nil, NewBusinessError("DUPLICATE_PHONE", "An account with this phone number already exists", err)
		case IsEmailAlreadyExists(err):
			return nil, NewBusinessError("DUPLICATE_EMAIL", "An account with this email address already exists", err)
		default:
			return nil, NewBusinessError("REGISTRATION_VALIDATION_FAILED", "Registration validation failed", err)
		}
	}

	var account *models.Account
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		var err error
		account, err = s.createAccount(txCtx, req, phone, email)
		if err != nil {
			return err
		}

		return s.recordOTPDispatch(txCtx, account.ID, phone, metadata)
	})

	if err != nil {
		errMsg := fmt.Sprintf("Registration failed: %s", err.Error())
		_ = s.createAuditLog(ctx, account, models.AuditActionSignupFailed, errMsg, false, &errMsg, metadata)
		return nil, NewBusinessError("REGISTRATION_FAILED", "Registration failed", err)
	}

	msg := fmt.Sprintf("Signup initiated: %d", account.ID)
	_ = s.createAuditLog(ctx, account, models.AuditActionSignupInitiated, msg, true, nil, metadata)

	if err := s.otpService.Send(ctx, phone); err != nil {
		errMsg := fmt.Sprintf("Failed to send signup code: %v", err)
		_ = s.createAuditLog(ctx, account, models.AuditActionOTPFailed, errMsg, false, &errMsg, metadata)

		if kind, ok := services.OTPKindOf(err); ok && kind == services.OTPErrRateLimited {
			return nil, NewBusinessError("RATE_LIMITED", "Too many code requests, please wait before retrying", fmt.Errorf("%w: %v", ErrOTPRateLimited, err))
		}
		return nil, NewBusinessError("DELIVERY_FAILED", "Failed to deliver verification code", fmt.Errorf("%w: %v", ErrOTPDeliveryFailed, err))
	}

	return &dto.RegisterResponse{
		AccountID:   account.ID,
		MaskedPhone: utils.MaskPhone(phone),
		OTPExpiry:   utils.OTPExpirySeconds,
	}, nil
}

// VerifyOTP checks the signup code, marks the phone verified and starts the
// 48-hour trial. The trial timestamp is written through a guarded update, so
// a second verification of the same account can never move it.
func (s *RegistrationFlowImpl) VerifyOTP(ctx context.Context, req *dto.VerifyOTPRequest, metadata *ClientMetadata) (*dto.AuthResultResponse, error) {
	account, err := s.accountRepo.ByID(ctx, req.AccountID)
	if err != nil {
		return nil, NewBusinessError("OTP_VERIFICATION_FAILED", "Verification failed", fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
	}
	if account == nil {
		return nil, NewBusinessError("OTP_VERIFICATION_FAILED", "Verification failed", ErrAccountNotFound)
	}
	if utils.IsTrue(account.IsPhoneVerified) {
		return nil, NewBusinessError("OTP_VERIFICATION_FAILED", "Verification failed", ErrAlreadyVerified)
	}

	codeValid, err := s.otpService.Verify(ctx, account.PhoneNumber, req.OTPCode)
	if err != nil {
		return nil, NewBusinessError("OTP_VERIFICATION_FAILED", "Verification failed", fmt.Errorf("%w: %v", ErrOTPDeliveryFailed, err))
	}
	if !codeValid {
		_ = s.recordOTPOutcome(ctx, account.ID, account.PhoneNumber, models.OTPStatusFailed, metadata)
		errMsg := "signup code rejected"
		_ = s.createAuditLog(ctx, account, models.AuditActionOTPFailed, errMsg, false, &errMsg, metadata)
		return nil, NewBusinessError("OTP_VERIFICATION_FAILED", "Verification failed", ErrInvalidOTPCode)
	}

	var tokens struct {
		access  string
		refresh string
	}
	var session *models.AccountSession

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		now := s.clock.Now()

		if err := s.accountRepo.UpdateVerificationStatus(txCtx, account.ID, utils.ToPtr(true), &now); err != nil {
			return err
		}

		if err := s.accountRepo.StartTrial(txCtx, account.ID, now); err != nil {
			return err
		}

		if err := s.recordOTPOutcome(txCtx, account.ID, account.PhoneNumber, models.OTPStatusVerified, metadata); err != nil {
			return err
		}

		var err error
		tokens.access, tokens.refresh, err = s.tokenSvc.GenerateTokens(account.ID)
		if err != nil {
			return err
		}

		session, err = s.createSession(txCtx, account.ID, tokens.access, tokens.refresh, metadata)
		if err != nil {
			return err
		}

		account, err = s.accountRepo.ByID(txCtx, account.ID)
		return err
	})

	if err != nil {
		errMsg := fmt.Sprintf("OTP verification failed: %s", err.Error())
		_ = s.createAuditLog(ctx, account, models.AuditActionOTPFailed, errMsg, false, &errMsg, metadata)
		return nil, NewBusinessError("OTP_VERIFICATION_FAILED", "Verification failed", err)
	}

	msg := fmt.Sprintf("Signup completed: %d", account.ID)
	_ = s.createAuditLog(ctx, account, models.AuditActionPhoneVerified, msg, true, nil, metadata)
	_ = s.createAuditLog(ctx, account, models.AuditActionSignupCompleted, msg, true, nil, metadata)

	return &dto.AuthResultResponse{
		Account: ToAuthAccountDTO(*account),
		Session: ToAccountSessionDTO(*session, s.clock.Now()),
	}, nil
}

// ResendOTP dispatches a fresh signup code
func (s *RegistrationFlowImpl) ResendOTP(ctx context.Context, req *dto.ResendOTPRequest, metadata *ClientMetadata) (*dto.RegisterResponse, error) {
	account, err := s.accountRepo.ByID(ctx, req.AccountID)
	if err != nil {
		return nil, NewBusinessError("OTP_RESEND_FAILED", "Resend failed", fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
	}
	if account == nil {
		return nil, NewBusinessError("OTP_RESEND_FAILED", "Resend failed", ErrAccountNotFound)
	}
	if utils.IsTrue(account.IsPhoneVerified) {
		return nil, NewBusinessError("OTP_RESEND_FAILED", "Resend failed", ErrAlreadyVerified)
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.otpRepo.ExpireOldOTPs(txCtx, account.ID, models.OTPTypeSignup); err != nil {
			return err
		}
		return s.recordOTPDispatch(txCtx, account.ID, account.PhoneNumber, metadata)
	})
	if err != nil {
		return nil, NewBusinessError("OTP_RESEND_FAILED", "Resend failed", err)
	}

	if err := s.otpService.Send(ctx, account.PhoneNumber); err != nil {
		errMsg := fmt.Sprintf("Failed to resend signup code: %v", err)
		_ = s.createAuditLog(ctx, account, models.AuditActionOTPFailed, errMsg, false, &errMsg, metadata)

		if kind, ok := services.OTPKindOf(err); ok && kind == services.OTPErrRateLimited {
			return nil, NewBusinessError("RATE_LIMITED", "Too many code requests, please wait before retrying", fmt.Errorf("%w: %v", ErrOTPRateLimited, err))
		}
		return nil, NewBusinessError("DELIVERY_FAILED", "Failed to deliver verification code", fmt.Errorf("%w: %v", ErrOTPDeliveryFailed, err))
	}

	_ = s.createAuditLog(ctx, account, models.AuditActionOTPGenerated, fmt.Sprintf("signup code resent: %d", account.ID), true, nil, metadata)

	return &dto.RegisterResponse{
		AccountID:   account.ID,
		MaskedPhone: utils.MaskPhone(account.PhoneNumber),
		OTPExpiry:   utils.OTPExpirySeconds,
	}, nil
}

// Private helper methods

func (s *RegistrationFlowImpl) createAccount(ctx context.Context, req *dto.RegisterRequest, phone, email string) (*models.Account, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var emailPtr *string
	if email != "" {
		emailPtr = &email
	}

	account := &models.Account{
		UUID:               uuid.New(),
		FullName:           strings.TrimSpace(req.FullName),
		PhoneNumber:        phone,
		Email:              emailPtr,
		PasswordHash:       string(hashedPassword),
		Role:               models.RoleStandard,
		SubscriptionStatus: models.SubscriptionStatusNone,
		IsPhoneVerified:    utils.ToPtr(false),
		IsActive:           utils.ToPtr(true),
	}

	if err := s.accountRepo.Save(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// recordOTPDispatch writes the pending dispatch row. The code itself lives
// only in the delivery cache, never in the database.
func (s *RegistrationFlowImpl) recordOTPDispatch(ctx context.Context, accountID uint, target string, metadata *ClientMetadata) error {
	otp := &models.OTPVerification{
		CorrelationID: uuid.New(),
		AccountID:     accountID,
		OTPType:       models.OTPTypeSignup,
		TargetValue:   target,
		Status:        models.OTPStatusPending,
		AttemptsCount: 0,
		MaxAttempts:   3,
		ExpiresAt:     s.clock.Now().Add(utils.OTPExpiry),
	}
	s.stampClient(otp, metadata)

	return s.otpRepo.Save(ctx, otp)
}

func (s *RegistrationFlowImpl) recordOTPOutcome(ctx context.Context, accountID uint, target, status string, metadata *ClientMetadata) error {
	now := s.clock.Now()
	otp := &models.OTPVerification{
		CorrelationID: uuid.New(),
		AccountID:     accountID,
		OTPType:       models.OTPTypeSignup,
		TargetValue:   target,
		Status:        status,
		ExpiresAt:     now,
	}
	if status == models.OTPStatusVerified {
		otp.VerifiedAt = &now
	}
	s.stampClient(otp, metadata)

	return s.otpRepo.Save(ctx, otp)
}

func (s *RegistrationFlowImpl) stampClient(otp *models.OTPVerification, metadata *ClientMetadata) {
	if metadata == nil {
		return
	}
	otp.IPAddress = &metadata.IPAddress
	otp.UserAgent = &metadata.UserAgent
}

func (s *RegistrationFlowImpl) createSession(ctx context.Context, accountID uint, accessToken, refreshToken string, metadata *ClientMetadata) (*models.AccountSession, error) {
	ipAddress := "127.0.0.1"
	userAgent := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
	}

	session := &models.AccountSession{
		CorrelationID: uuid.New(),
		AccountID:     accountID,
		SessionToken:  accessToken,
		RefreshToken:  &refreshToken,
		IPAddress:     &ipAddress,
		UserAgent:     &userAgent,
		IsActive:      utils.ToPtr(true),
		ExpiresAt:     s.clock.Now().Add(utils.SessionTimeout),
	}

	if err := s.sessionRepo.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *RegistrationFlowImpl) createAuditLog(ctx context.Context, account *models.Account, action, description string, success bool, errorMsg *string, metadata *ClientMetadata) error {
	var accountID *uint
	if account != nil {
		accountID = &account.ID
	}

	ipAddress := "127.0.0.1"
	userAgent := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
	}

	audit := &models.AuditLog{
		AccountID:    accountID,
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		IPAddress:    &ipAddress,
		UserAgent:    &userAgent,
		ErrorMessage: errorMsg,
	}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		audit.RequestID = &requestID
	} else if metadata != nil && metadata.RequestID != "" {
		audit.RequestID = &metadata.RequestID
	}

	return s.auditRepo.Save(ctx, audit)
}
