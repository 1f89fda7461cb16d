package businessflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/google/uuid"
	"github.com/primefit/primefit-api/app/dto"
	"github.com/primefit/primefit-api/app/services"
	"github.com/primefit/primefit-api/models"
	"github.com/primefit/primefit-api/repository"
	"github.com/primefit/primefit-api/utils"
	"gorm.io/gorm"
)

// LoginState is the progress of a single login attempt
type LoginState int

const (
	StateInitial LoginState = iota
	StatePasswordVerified
	StateFullyAuthenticated
)

func (s LoginState) String() string {
	switch s {
	case StatePasswordVerified:
		return "password_verified"
	case StateFullyAuthenticated:
		return "fully_authenticated"
	default:
		return "initial"
	}
}

// LoginCoordinator drives the two-step state machine for exactly one login
// attempt. A coordinator is created per attempt and never shared between
// attempts; all transitions happen under its mutex.
type LoginCoordinator struct {
	mu sync.Mutex

	id                 uuid.UUID
	account            *models.Account
	state              LoginState
	passwordVerifiedAt time.Time
	createdAt          time.Time
	clock              Clock
}

// NewLoginCoordinator creates a coordinator in the Initial state
func NewLoginCoordinator(clock Clock) *LoginCoordinator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &LoginCoordinator{
		id:        uuid.New(),
		state:     StateInitial,
		createdAt: clock.Now(),
		clock:     clock,
	}
}

func (c *LoginCoordinator) ID() uuid.UUID {
	return c.id
}

func (c *LoginCoordinator) State() LoginState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *LoginCoordinator) Account() *models.Account {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account
}

// VerifyCredentials checks the first factor. On success the coordinator binds
// the account, moves to PasswordVerified and records the verification time
// that starts the five-minute second-factor window. On failure the
// coordinator stays in Initial with no account bound.
func (c *LoginCoordinator) VerifyCredentials(account *models.Account, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInitial {
		return ErrAlreadyVerified
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return ErrIncorrectPassword
	}

	c.account = account
	c.state = StatePasswordVerified
	c.passwordVerifiedAt = c.clock.Now()
	return nil
}

// CanSendSecondFactor reports whether a verification code may be dispatched.
// Callers must not contact the delivery provider when this returns false.
func (c *LoginCoordinator) CanSendSecondFactor() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StatePasswordVerified
}

// EnsureWindowOpen re-validates the five-minute window at submission time.
// The bound is inclusive: a code submitted exactly at passwordVerifiedAt plus
// the window is already expired. An expired attempt resets to Initial and the
// caller must restart from the first factor.
func (c *LoginCoordinator) EnsureWindowOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePasswordVerified {
		return ErrNotPasswordVerified
	}

	deadline := c.passwordVerifiedAt.Add(utils.PasswordVerificationWindow)
	if !c.clock.Now().Before(deadline) {
		c.reset()
		return ErrVerificationExpired
	}

	return nil
}

// ApplySecondFactor records the outcome of a code check. A wrong code keeps
// the coordinator in PasswordVerified so the caller may retry inside the
// window; a correct code completes the second factor.
func (c *LoginCoordinator) ApplySecondFactor(codeValid bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePasswordVerified {
		return ErrNotPasswordVerified
	}

	if !codeValid {
		return ErrInvalidOTPCode
	}

	c.state = StateFullyAuthenticated
	return nil
}

// CompleteAuthentication hands the bound account to the caller and resets the
// coordinator in the same critical section, so the account can be released
// exactly once per attempt.
func (c *LoginCoordinator) CompleteAuthentication() (*models.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateFullyAuthenticated {
		return nil, ErrNotFullyAuthenticated
	}

	account := c.account
	c.reset()
	return account, nil
}

// Reset abandons the attempt regardless of state
func (c *LoginCoordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *LoginCoordinator) reset() {
	c.state = StateInitial
	c.account = nil
	c.passwordVerifiedAt = time.Time{}
}

// TwoFactorFlow handles the complete two-step login business logic
type TwoFactorFlow interface {
	Login(ctx context.Context, req *dto.LoginRequest, metadata *ClientMetadata) (*dto.LoginChallengeResponse, error)
	ResendCode(ctx context.Context, req *dto.LoginResendRequest, metadata *ClientMetadata) (*dto.LoginChallengeResponse, error)
	VerifyCode(ctx context.Context, req *dto.LoginVerifyRequest, metadata *ClientMetadata) (*dto.AuthResultResponse, error)
}

// TwoFactorFlowImpl implements the login business flow
type TwoFactorFlowImpl struct {
	accountRepo repository.AccountRepository
	sessionRepo repository.AccountSessionRepository
	auditRepo   repository.AuditLogRepository
	otpService  services.OTPService
	tokenSvc    services.TokenService
	clock       Clock
	db          *gorm.DB

	mu           sync.Mutex
	coordinators map[string]*LoginCoordinator
}

// NewTwoFactorFlow creates a new login flow instance
func NewTwoFactorFlow(
	accountRepo repository.AccountRepository,
	sessionRepo repository.AccountSessionRepository,
	auditRepo repository.AuditLogRepository,
	otpService services.OTPService,
	tokenSvc services.TokenService,
	clock Clock,
	db *gorm.DB,
) TwoFactorFlow {
	if clock == nil {
		clock = SystemClock{}
	}
	return &TwoFactorFlowImpl{
		accountRepo:  accountRepo,
		sessionRepo:  sessionRepo,
		auditRepo:    auditRepo,
		otpService:   otpService,
		tokenSvc:     tokenSvc,
		clock:        clock,
		db:           db,
		coordinators: make(map[string]*LoginCoordinator),
	}
}

// Login verifies the first factor and, on success, dispatches the second
// factor code. Unknown identifier and wrong password both map to
// ErrAccountNotFound-shaped failures at the handler so responses cannot be
// used to enumerate accounts.
func (f *TwoFactorFlowImpl) Login(ctx context.Context, req *dto.LoginRequest, metadata *ClientMetadata) (*dto.LoginChallengeResponse, error) {
	account, err := f.findByIdentifier(ctx, req.Identifier)
	if err != nil {
		// Store outage fails closed for login
		return nil, NewBusinessError("LOGIN_FAILED", "Login failed", fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
	}
	if account == nil {
		_ = f.createAuditLog(ctx, nil, models.AuditActionLoginFailed, "login failed: account not found", false, metadata)
		return nil, NewBusinessError("LOGIN_FAILED", "Login failed", ErrAccountNotFound)
	}
	if !utils.IsTrue(account.IsActive) {
		_ = f.createAuditLog(ctx, account, models.AuditActionLoginFailed, "login failed: account inactive", false, metadata)
		return nil, NewBusinessError("LOGIN_FAILED", "Login failed", ErrAccountInactive)
	}

	coordinator := NewLoginCoordinator(f.clock)
	if err := coordinator.VerifyCredentials(account, req.Password); err != nil {
		_ = f.createAuditLog(ctx, account, models.AuditActionLoginFailed, "login failed: incorrect password", false, metadata)
		return nil, NewBusinessError("LOGIN_FAILED", "Login failed", err)
	}

	f.registerCoordinator(coordinator)

	if err := f.sendSecondFactor(ctx, coordinator, account, metadata); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Login initiated: %d", account.ID)
	_ = f.createAuditLog(ctx, account, models.AuditActionLoginInitiated, msg, true, metadata)

	return &dto.LoginChallengeResponse{
		LoginSessionID: coordinator.ID().String(),
		MaskedPhone:    utils.MaskPhone(account.PhoneNumber),
		OTPExpiry:      utils.OTPExpirySeconds,
	}, nil
}

// ResendCode dispatches a fresh second factor code for an in-flight attempt
func (f *TwoFactorFlowImpl) ResendCode(ctx context.Context, req *dto.LoginResendRequest, metadata *ClientMetadata) (*dto.LoginChallengeResponse, error) {
	coordinator := f.lookupCoordinator(req.LoginSessionID)
	if coordinator == nil {
		return nil, NewBusinessError("LOGIN_SESSION_NOT_FOUND", "Login session not found", ErrLoginSessionNotFound)
	}

	account := coordinator.Account()
	if account == nil {
		return nil, NewBusinessError("LOGIN_SESSION_NOT_FOUND", "Login session not found", ErrNotPasswordVerified)
	}

	if err := f.sendSecondFactor(ctx, coordinator, account, metadata); err != nil {
		return nil, err
	}

	return &dto.LoginChallengeResponse{
		LoginSessionID: coordinator.ID().String(),
		MaskedPhone:    utils.MaskPhone(account.PhoneNumber),
		OTPExpiry:      utils.OTPExpirySeconds,
	}, nil
}

// VerifyCode checks the second factor and completes authentication
func (f *TwoFactorFlowImpl) VerifyCode(ctx context.Context, req *dto.LoginVerifyRequest, metadata *ClientMetadata) (*dto.AuthResultResponse, error) {
	coordinator := f.lookupCoordinator(req.LoginSessionID)
	if coordinator == nil {
		return nil, NewBusinessError("LOGIN_SESSION_NOT_FOUND", "Login session not found", ErrLoginSessionNotFound)
	}

	account := coordinator.Account()

	if err := coordinator.EnsureWindowOpen(); err != nil {
		if IsVerificationExpired(err) {
			f.removeCoordinator(req.LoginSessionID)
			_ = f.createAuditLog(ctx, account, models.AuditActionSessionExpired, "second factor window expired", false, metadata)
			return nil, NewBusinessError("VERIFICATION_EXPIRED", "Verification window expired, please log in again", err)
		}
		return nil, NewBusinessError("VERIFICATION_FAILED", "Verification failed", err)
	}

	codeValid, err := f.otpService.Verify(ctx, account.PhoneNumber, req.OTPCode)
	if err != nil {
		// Provider outage fails closed; the attempt stays open for a retry
		return nil, NewBusinessError("VERIFICATION_FAILED", "Verification failed", fmt.Errorf("%w: %v", ErrOTPDeliveryFailed, err))
	}

	if err := coordinator.ApplySecondFactor(codeValid); err != nil {
		_ = f.createAuditLog(ctx, account, models.AuditActionOTPFailed, "second factor rejected", false, metadata)
		return nil, NewBusinessError("VERIFICATION_FAILED", "Verification failed", err)
	}

	authedAccount, err := coordinator.CompleteAuthentication()
	if err != nil {
		return nil, NewBusinessError("VERIFICATION_FAILED", "Verification failed", err)
	}
	f.removeCoordinator(req.LoginSessionID)

	var session *models.AccountSession
	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		now := f.clock.Now()
		if err := f.accountRepo.UpdateLastLogin(txCtx, authedAccount.ID, now); err != nil {
			return err
		}

		accessToken, refreshToken, err := f.tokenSvc.GenerateTokens(authedAccount.ID)
		if err != nil {
			return err
		}

		session, err = f.createSession(txCtx, authedAccount.ID, accessToken, refreshToken, metadata)
		return err
	})
	if err != nil {
		_ = f.createAuditLog(ctx, authedAccount, models.AuditActionLoginFailed, fmt.Sprintf("session creation failed: %s", err.Error()), false, metadata)
		return nil, NewBusinessError("LOGIN_FAILED", "Login failed", err)
	}

	msg := fmt.Sprintf("Login successful: %d", authedAccount.ID)
	_ = f.createAuditLog(ctx, authedAccount, models.AuditActionLoginSuccessful, msg, true, metadata)

	result := &dto.AuthResultResponse{
		Account: ToAuthAccountDTO(*authedAccount),
		Session: ToAccountSessionDTO(*session, f.clock.Now()),
	}
	return result, nil
}

// Private helper methods

func (f *TwoFactorFlowImpl) findByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return f.accountRepo.ByEmail(ctx, identifier)
	}

	phone, err := utils.NormalizePhone(identifier, utils.DefaultCountryCode)
	if err != nil {
		// Not a well-formed phone number; treated the same as unknown
		return nil, nil
	}
	return f.accountRepo.ByPhoneNumber(ctx, phone)
}

func (f *TwoFactorFlowImpl) sendSecondFactor(ctx context.Context, coordinator *LoginCoordinator, account *models.Account, metadata *ClientMetadata) error {
	// The window is re-checked at every dispatch so an expired attempt never
	// reaches the delivery provider.
	if err := coordinator.EnsureWindowOpen(); err != nil {
		if IsVerificationExpired(err) {
			f.removeCoordinator(coordinator.ID().String())
			_ = f.createAuditLog(ctx, account, models.AuditActionSessionExpired, "second factor window expired", false, metadata)
			return NewBusinessError("VERIFICATION_EXPIRED", "Verification window expired, please log in again", err)
		}
		return NewBusinessError("VERIFICATION_FAILED", "Verification failed", err)
	}

	if err := f.otpService.Send(ctx, account.PhoneNumber); err != nil {
		_ = f.createAuditLog(ctx, account, models.AuditActionOTPFailed, fmt.Sprintf("code dispatch failed: %s", err.Error()), false, metadata)

		if kind, ok := services.OTPKindOf(err); ok && kind == services.OTPErrRateLimited {
			return NewBusinessError("RATE_LIMITED", "Too many code requests, please wait before retrying", fmt.Errorf("%w: %v", ErrOTPRateLimited, err))
		}
		return NewBusinessError("DELIVERY_FAILED", "Failed to deliver verification code", fmt.Errorf("%w: %v", ErrOTPDeliveryFailed, err))
	}

	_ = f.createAuditLog(ctx, account, models.AuditActionOTPGenerated, "second factor dispatched", true, metadata)
	return nil
}

func (f *TwoFactorFlowImpl) createSession(ctx context.Context, accountID uint, accessToken, refreshToken string, metadata *ClientMetadata) (*models.AccountSession, error) {
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
		ExpiresAt:     f.clock.Now().Add(utils.SessionTimeout),
	}

	if err := f.sessionRepo.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (f *TwoFactorFlowImpl) createAuditLog(ctx context.Context, account *models.Account, action, description string, success bool, metadata *ClientMetadata) error {
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

func (f *TwoFactorFlowImpl) registerCoordinator(c *LoginCoordinator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweepLocked()
	f.coordinators[c.ID().String()] = c
}

func (f *TwoFactorFlowImpl) lookupCoordinator(id string) *LoginCoordinator {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.coordinators[id]
	if !ok {
		return nil
	}
	if f.clock.Now().Sub(c.createdAt) >= utils.LoginSessionTTL {
		delete(f.coordinators, id)
		return nil
	}
	return c
}

func (f *TwoFactorFlowImpl) removeCoordinator(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.coordinators, id)
}

func (f *TwoFactorFlowImpl) sweepLocked() {
	now := f.clock.Now()
	for id, c := range f.coordinators {
		if now.Sub(c.createdAt) >= utils.LoginSessionTTL {
			delete(f.coordinators, id)
		}
	}
}
