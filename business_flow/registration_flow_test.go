package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/primefit/primefit-api/app/dto"
	"github.com/primefit/primefit-api/app/services"
	"github.com/primefit/primefit-api/models"
	"github.com/primefit/primefit-api/repository"
	"github.com/primefit/primefit-api/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type registrationFixture struct {
	flow        RegistrationFlow
	accountRepo *repository.InMemoryAccountRepository
	otpRepo     *repository.InMemoryOTPVerificationRepository
	sessionRepo *repository.InMemoryAccountSessionRepository
	auditRepo   *repository.InMemoryAuditLogRepository
	otpService  *services.MockOTPService
	clock       *fakeClock
}

func newRegistrationFixture(t *testing.T) *registrationFixture {
	t.Helper()

	clock := newFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	accountRepo := repository.NewInMemoryAccountRepository()
	otpRepo := repository.NewInMemoryOTPVerificationRepository()
	sessionRepo := repository.NewInMemoryAccountSessionRepository()
	auditRepo := repository.NewInMemoryAuditLogRepository()
	otpService := services.NewMockOTPService(testValidCode)

	flow := NewRegistrationFlow(
		accountRepo,
		otpRepo,
		sessionRepo,
		auditRepo,
		NewDuplicateGuard(accountRepo),
		otpService,
		&stubTokenService{},
		clock,
		"+234",
		nil,
	)

	return &registrationFixture{
		flow:        flow,
		accountRepo: accountRepo,
		otpRepo:     otpRepo,
		sessionRepo: sessionRepo,
		auditRepo:   auditRepo,
		otpService:  otpService,
		clock:       clock,
	}
}

func registerRequest() *dto.RegisterRequest {
	email := "newmember@example.com"
	return &dto.RegisterRequest{
		FullName:        "Ada Obi",
		PhoneNumber:     "08123456789",
		Email:           &email,
		Password:        "Sup3rSecret",
		ConfirmPassword: "Sup3rSecret",
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("empty phone number", func(t *testing.T) {
		f := newRegistrationFixture(t)

		req := registerRequest()
		req.PhoneNumber = "   "

		_, err := f.flow.Register(ctx, req, testMetadata())
		require.Error(t, err)
		assert.True(t, IsPhoneNumberRequired(err))

		var businessErr *BusinessError
		require.ErrorAs(t, err, &businessErr)
		assert.Equal(t, "Phone number is required", businessErr.Message)
	})

	t.Run("malformed phone number", func(t *testing.T) {
		f := newRegistrationFixture(t)

		req := registerRequest()
		req.PhoneNumber = "not-a-number"

		_, err := f.flow.Register(ctx, req, testMetadata())
		require.Error(t, err)
		assert.True(t, IsInvalidPhoneNumber(err))
	})

	t.Run("happy path creates an unverified account", func(t *testing.T) {
		f := newRegistrationFixture(t)

		resp, err := f.flow.Register(ctx, registerRequest(), testMetadata())
		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, utils.MaskPhone("+2348123456789"), resp.MaskedPhone)
		assert.Equal(t, utils.OTPExpirySeconds, resp.OTPExpiry)

		account, err := f.accountRepo.ByPhoneNumber(ctx, "+2348123456789")
		require.NoError(t, err)
		require.NotNil(t, account)
		assert.False(t, utils.IsTrue(account.IsPhoneVerified))
		assert.True(t, utils.IsTrue(account.IsActive))
		assert.Equal(t, models.RoleStandard, account.Role)
		assert.Equal(t, models.SubscriptionStatusNone, account.SubscriptionStatus)
		assert.Nil(t, account.TrialStartedAt)

		assert.Equal(t, []string{"+2348123456789"}, f.otpService.SentTo)

		// The dispatch row never carries the code itself
		dispatched, err := f.otpRepo.ByAccountAndType(ctx, account.ID, models.OTPTypeSignup)
		require.NoError(t, err)
		require.Len(t, dispatched, 1)
		assert.Equal(t, models.OTPStatusPending, dispatched[0].Status)
		assert.Empty(t, dispatched[0].OTPCode)
	})

	t.Run("duplicate phone number", func(t *testing.T) {
		f := newRegistrationFixture(t)

		_, err := f.flow.Register(ctx, registerRequest(), testMetadata())
		require.NoError(t, err)

		req := registerRequest()
		email := "different@example.com"
		req.Email = &email

		_, err = f.flow.Register(ctx, req, testMetadata())
		require.Error(t, err)
		assert.True(t, IsPhoneAlreadyExists(err))
	})

	t.Run("duplicate email", func(t *testing.T) {
		f := newRegistrationFixture(t)

		_, err := f.flow.Register(ctx, registerRequest(), testMetadata())
		require.NoError(t, err)

		req := registerRequest()
		req.PhoneNumber = "08123456780"

		_, err = f.flow.Register(ctx, req, testMetadata())
		require.Error(t, err)
		assert.True(t, IsEmailAlreadyExists(err))
	})
}

func TestVerifyOTP(t *testing.T) {
	ctx := context.Background()

	register := func(t *testing.T, f *registrationFixture) uint {
		t.Helper()
		resp, err := f.flow.Register(ctx, registerRequest(), testMetadata())
		require.NoError(t, err)
		return resp.AccountID
	}

	t.Run("valid code verifies the phone and starts the trial", func(t *testing.T) {
		f := newRegistrationFixture(t)
		accountID := register(t, f)

		verifiedAt := f.clock.Now()
		result, err := f.flow.VerifyOTP(ctx, &dto.VerifyOTPRequest{AccountID: accountID, OTPCode: testValidCode}, testMetadata())
		require.NoError(t, err)
		require.NotNil(t, result)

		account, err := f.accountRepo.ByID(ctx, accountID)
		require.NoError(t, err)
		assert.True(t, utils.IsTrue(account.IsPhoneVerified))
		require.NotNil(t, account.TrialStartedAt)
		assert.Equal(t, verifiedAt, *account.TrialStartedAt)

		require.NotNil(t, result.Account.TrialStartedAt)
		assert.NotEmpty(t, result.Session.SessionToken)

		sessions, err := f.sessionRepo.ListActiveSessionsByAccount(ctx, accountID)
		require.NoError(t, err)
		assert.Len(t, sessions, 1)
	})

	t.Run("trial start timestamp never moves", func(t *testing.T) {
		f := newRegistrationFixture(t)
		accountID := register(t, f)

		_, err := f.flow.VerifyOTP(ctx, &dto.VerifyOTPRequest{AccountID: accountID, OTPCode: testValidCode}, testMetadata())
		require.NoError(t, err)

		account, err := f.accountRepo.ByID(ctx, accountID)
		require.NoError(t, err)
		firstStart := *account.TrialStartedAt

		f.clock.Advance(24 * time.Hour)
		require.NoError(t, f.accountRepo.StartTrial(ctx, accountID, f.clock.Now()))

		account, err = f.accountRepo.ByID(ctx, accountID)
		require.NoError(t, err)
		assert.Equal(t, firstStart, *account.TrialStartedAt)
	})

	t.Run("wrong code records the failure", func(t *testing.T) {
		f := newRegistrationFixture(t)
		accountID := register(t, f)

		_, err := f.flow.VerifyOTP(ctx, &dto.VerifyOTPRequest{AccountID: accountID, OTPCode: "000000"}, testMetadata())
		require.Error(t, err)
		assert.True(t, IsInvalidOTPCode(err))

		account, err := f.accountRepo.ByID(ctx, accountID)
		require.NoError(t, err)
		assert.False(t, utils.IsTrue(account.IsPhoneVerified))
		assert.Nil(t, account.TrialStartedAt)

		failed, err := f.otpRepo.ByFilter(ctx, models.OTPVerificationFilter{AccountID: &accountID, Status: utils.ToPtr(models.OTPStatusFailed)}, "", 0, 0)
		require.NoError(t, err)
		assert.Len(t, failed, 1)
	})

	t.Run("already verified account", func(t *testing.T) {
		f := newRegistrationFixture(t)
		accountID := register(t, f)

		_, err := f.flow.VerifyOTP(ctx, &dto.VerifyOTPRequest{AccountID: accountID, OTPCode: testValidCode}, testMetadata())
		require.NoError(t, err)

		_, err = f.flow.VerifyOTP(ctx, &dto.VerifyOTPRequest{AccountID: accountID, OTPCode: testValidCode}, testMetadata())
		require.Error(t, err)
		assert.True(t, IsAlreadyVerified(err))
	})

	t.Run("unknown account", func(t *testing.T) {
		f := newRegistrationFixture(t)

		_, err := f.flow.VerifyOTP(ctx, &dto.VerifyOTPRequest{AccountID: 9999, OTPCode: testValidCode}, testMetadata())
		require.Error(t, err)
		assert.True(t, IsAccountNotFound(err))
	})
}

func TestResendOTP(t *testing.T) {
	ctx := context.Background()

	t.Run("resend expires old dispatch rows and sends again", func(t *testing.T) {
		f := newRegistrationFixture(t)

		resp, err := f.flow.Register(ctx, registerRequest(), testMetadata())
		require.NoError(t, err)

		_, err = f.flow.ResendOTP(ctx, &dto.ResendOTPRequest{AccountID: resp.AccountID}, testMetadata())
		require.NoError(t, err)

		assert.Len(t, f.otpService.SentTo, 2)

		pending, err := f.otpRepo.ByFilter(ctx, models.OTPVerificationFilter{
			AccountID: &resp.AccountID,
			Status:    utils.ToPtr(models.OTPStatusPending),
		}, "", 0, 0)
		require.NoError(t, err)
		assert.Len(t, pending, 1, "only the latest dispatch row stays pending")

		expired, err := f.otpRepo.ByFilter(ctx, models.OTPVerificationFilter{
			AccountID: &resp.AccountID,
			Status:    utils.ToPtr(models.OTPStatusExpired),
		}, "", 0, 0)
		require.NoError(t, err)
		assert.Len(t, expired, 1)
	})

	t.Run("resend after verification is rejected", func(t *testing.T) {
		f := newRegistrationFixture(t)

		resp, err := f.flow.Register(ctx, registerRequest(), testMetadata())
		require.NoError(t, err)

		_, err = f.flow.VerifyOTP(ctx, &dto.VerifyOTPRequest{AccountID: resp.AccountID, OTPCode: testValidCode}, testMetadata())
		require.NoError(t, err)

		_, err = f.flow.ResendOTP(ctx, &dto.ResendOTPRequest{AccountID: resp.AccountID}, testMetadata())
		require.Error(t, err)
		assert.True(t, IsAlreadyVerified(err))
	})
}
