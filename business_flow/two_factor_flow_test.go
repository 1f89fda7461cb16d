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

const (
	testLoginPhone    = "+2348123456789"
	testLoginPassword = "Sup3rSecret"
	testValidCode     = "123456"
)

type twoFactorFixture struct {
	flow        TwoFactorFlow
	accountRepo *repository.InMemoryAccountRepository
	sessionRepo *repository.InMemoryAccountSessionRepository
	auditRepo   *repository.InMemoryAuditLogRepository
	otpService  *services.MockOTPService
	clock       *fakeClock
}

func newTwoFactorFixture(t *testing.T) *twoFactorFixture {
	t.Helper()

	clock := newFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	accountRepo := repository.NewInMemoryAccountRepository()
	sessionRepo := repository.NewInMemoryAccountSessionRepository()
	auditRepo := repository.NewInMemoryAuditLogRepository()
	otpService := services.NewMockOTPService(testValidCode)

	flow := NewTwoFactorFlow(accountRepo, sessionRepo, auditRepo, otpService, &stubTokenService{}, clock, nil)

	return &twoFactorFixture{
		flow:        flow,
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
		auditRepo:   auditRepo,
		otpService:  otpService,
		clock:       clock,
	}
}

func (f *twoFactorFixture) seedAccount(t *testing.T) *models.Account {
	t.Helper()
	account := createTestAccount(testLoginPhone, "member@example.com", testLoginPassword)
	require.NoError(t, f.accountRepo.Save(context.Background(), account))
	return account
}

func TestLoginCoordinatorStateMachine(t *testing.T) {
	account := createTestAccount(testLoginPhone, "", testLoginPassword)

	t.Run("wrong password stays in initial with no account bound", func(t *testing.T) {
		clock := newFakeClock(time.Now().UTC())
		c := NewLoginCoordinator(clock)

		err := c.VerifyCredentials(account, "wrong-password")
		require.Error(t, err)
		assert.True(t, IsIncorrectPassword(err))
		assert.Equal(t, StateInitial, c.State())
		assert.Nil(t, c.Account())
		assert.False(t, c.CanSendSecondFactor())
	})

	t.Run("correct password binds account and opens the window", func(t *testing.T) {
		clock := newFakeClock(time.Now().UTC())
		c := NewLoginCoordinator(clock)

		require.NoError(t, c.VerifyCredentials(account, testLoginPassword))
		assert.Equal(t, StatePasswordVerified, c.State())
		assert.Same(t, account, c.Account())
		assert.True(t, c.CanSendSecondFactor())
	})

	t.Run("window open just before the deadline", func(t *testing.T) {
		clock := newFakeClock(time.Now().UTC())
		c := NewLoginCoordinator(clock)
		require.NoError(t, c.VerifyCredentials(account, testLoginPassword))

		clock.Advance(utils.PasswordVerificationWindow - time.Second)
		assert.NoError(t, c.EnsureWindowOpen())
		assert.Equal(t, StatePasswordVerified, c.State())
	})

	t.Run("window closed exactly at the deadline and attempt resets", func(t *testing.T) {
		clock := newFakeClock(time.Now().UTC())
		c := NewLoginCoordinator(clock)
		require.NoError(t, c.VerifyCredentials(account, testLoginPassword))

		clock.Advance(utils.PasswordVerificationWindow)
		err := c.EnsureWindowOpen()
		require.Error(t, err)
		assert.True(t, IsVerificationExpired(err))
		assert.Equal(t, StateInitial, c.State())
		assert.Nil(t, c.Account())
	})

	t.Run("wrong code keeps the window open for a retry", func(t *testing.T) {
		clock := newFakeClock(time.Now().UTC())
		c := NewLoginCoordinator(clock)
		require.NoError(t, c.VerifyCredentials(account, testLoginPassword))

		err := c.ApplySecondFactor(false)
		require.Error(t, err)
		assert.True(t, IsInvalidOTPCode(err))
		assert.Equal(t, StatePasswordVerified, c.State())

		require.NoError(t, c.ApplySecondFactor(true))
		assert.Equal(t, StateFullyAuthenticated, c.State())
	})

	t.Run("complete authentication releases the account exactly once", func(t *testing.T) {
		clock := newFakeClock(time.Now().UTC())
		c := NewLoginCoordinator(clock)
		require.NoError(t, c.VerifyCredentials(account, testLoginPassword))
		require.NoError(t, c.ApplySecondFactor(true))

		authed, err := c.CompleteAuthentication()
		require.NoError(t, err)
		assert.Same(t, account, authed)
		assert.Equal(t, StateInitial, c.State())

		_, err = c.CompleteAuthentication()
		require.Error(t, err)
		assert.True(t, IsNotFullyAuthenticated(err))
	})

	t.Run("second factor cannot start before the first", func(t *testing.T) {
		clock := newFakeClock(time.Now().UTC())
		c := NewLoginCoordinator(clock)

		assert.False(t, c.CanSendSecondFactor())

		err := c.ApplySecondFactor(true)
		require.Error(t, err)
		assert.True(t, IsNotPasswordVerified(err))

		err = c.EnsureWindowOpen()
		require.Error(t, err)
		assert.True(t, IsNotPasswordVerified(err))
	})
}

func TestLoginFirstFactor(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown identifier", func(t *testing.T) {
		f := newTwoFactorFixture(t)
		f.seedAccount(t)

		_, err := f.flow.Login(ctx, &dto.LoginRequest{Identifier: "+2349999999999", Password: testLoginPassword}, testMetadata())
		require.Error(t, err)
		assert.True(t, IsAccountNotFound(err))
		assert.Empty(t, f.otpService.SentTo, "no code may be dispatched for an unknown account")
	})

	t.Run("wrong password dispatches nothing", func(t *testing.T) {
		f := newTwoFactorFixture(t)
		f.seedAccount(t)

		_, err := f.flow.Login(ctx, &dto.LoginRequest{Identifier: testLoginPhone, Password: "wrong"}, testMetadata())
		require.Error(t, err)
		assert.True(t, IsIncorrectPassword(err))
		assert.Empty(t, f.otpService.SentTo)
	})

	t.Run("inactive account cannot log in", func(t *testing.T) {
		f := newTwoFactorFixture(t)
		account := f.seedAccount(t)
		require.NoError(t, f.accountRepo.SetActive(ctx, account.ID, false))

		_, err := f.flow.Login(ctx, &dto.LoginRequest{Identifier: testLoginPhone, Password: testLoginPassword}, testMetadata())
		require.Error(t, err)
		assert.True(t, IsAccountInactive(err))
	})

	t.Run("login by email works the same as by phone", func(t *testing.T) {
		f := newTwoFactorFixture(t)
		f.seedAccount(t)

		challenge, err := f.flow.Login(ctx, &dto.LoginRequest{Identifier: "member@example.com", Password: testLoginPassword}, testMetadata())
		require.NoError(t, err)
		assert.NotEmpty(t, challenge.LoginSessionID)
	})

	t.Run("successful first factor dispatches the code", func(t *testing.T) {
		f := newTwoFactorFixture(t)
		f.seedAccount(t)

		challenge, err := f.flow.Login(ctx, &dto.LoginRequest{Identifier: testLoginPhone, Password: testLoginPassword}, testMetadata())
		require.NoError(t, err)
		assert.NotEmpty(t, challenge.LoginSessionID)
		assert.Equal(t, utils.MaskPhone(testLoginPhone), challenge.MaskedPhone)
		assert.Equal(t, utils.OTPExpirySeconds, challenge.OTPExpiry)
		assert.Equal(t, []string{testLoginPhone}, f.otpService.SentTo)
	})

	t.Run("store outage fails closed", func(t *testing.T) {
		f := newTwoFactorFixture(t)
		f.seedAccount(t)
		f.accountRepo.SetUnavailable(true)

		_, err := f.flow.Login(ctx, &dto.LoginRequest{Identifier: testLoginPhone, Password: testLoginPassword}, testMetadata())
		require.Error(t, err)
		assert.True(t, IsStoreUnavailable(err))
	})
}

func TestVerifyCode(t *testing.T) {
	ctx := context.Background()

	startLogin := func(t *testing.T, f *twoFactorFixture) string {
		t.Helper()
		challenge, err := f.flow.Login(ctx, &dto.LoginRequest{Identifier: testLoginPhone, Password: testLoginPassword}, testMetadata())
		require.NoError(t, err)
		return challenge.LoginSessionID
	}

	t.Run("happy path issues a session", func(t *testing.T) {
		f := newTwoFactorFixture(t)
		account := f.seedAccount(t)
		sessionID := startLogin(t, f)

		result, err := f.flow.VerifyCode(ctx, &dto.LoginVerifyRequest{LoginSessionID: sessionID, OTPCode: testValidCode}, testMetadata())
		require.NoError(t, err)
		require.NotNil(t, result)

		assert.Equal(t, account.ID, result.Account.ID)
		assert.NotEmpty(t, result.Session.SessionToken)
		assert.Equal(t, "Bearer", result.Session.TokenType)

		sessions, err := f.sessionRepo.ListActiveSessionsByAccount(ctx, account.ID)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.True(t, sessions[0].IsValid(f.clock.Now()))
		assert.NotEmpty(t, result.Session.RefreshToken)
		assert.Equal(t, int(utils.SessionTimeout.Seconds()), result.Session.ExpiresIn)

		updated, err := f.accountRepo.ByID(ctx, account.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.LastLoginAt)

		logs, err := f.auditRepo.ListByAction(ctx, models.AuditActionLoginSuccessful, 0, 0)
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})

	t.Run("wrong code then right code", func(t *testing.T) {
		f := newTwoFactorFixture(t)
		f.seedAccount(t)
		sessionID := startLogin(t, f)

		_, err := f.flow.VerifyCode(ctx, &dto.LoginVerifyRequest{LoginSessionID: sessionID, OTPCode: "000000"}, testMetadata())
		require.Error(t, err)
		assert.True(t, IsInvalidOTPCode(err))

		// The attempt survives a wrong code inside the window
		result, err := f.flow.VerifyCode(ctx, &dto.LoginVerifyRequest{LoginSessionID: sessionID, OTPCode: testValidCode}, testMetadata())
		require.NoError(t, err)
		assert.NotNil(t, result)
	})

	t.Run("expired window forces a fresh login", func(t *testing.T) {
		f := newTwoFactorFixture(t)
		f.seedAccount(t)
		sessionID := startLogin(t, f)

		f.clock.Advance(utils.PasswordVerificationWindow)

		_, err := f.flow.VerifyCode(ctx, &dto.LoginVerifyRequest{LoginSessionID: sessionID, OTPCode: testValidCode}, testMetadata())
		require.Error(t, err)
		assert.True(t, IsVerificationExpired(err))

		// The attempt is gone; a retry with the same id cannot resume it
		_, err = f.flow.VerifyCode(ctx, &dto.LoginVerifyRequest{LoginSessionID: sessionID, OTPCode: testValidCode}, testMetadata())
		require.Error(t, err)
		assert.True(t, IsLoginSessionNotFound(err))

		logs, err := f.auditRepo.ListByAction(ctx, models.AuditActionSessionExpired, 0, 0)
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})

	t.Run("completed attempt cannot be replayed", func(t *testing.T) {
		f := newTwoFactorFixture(t)
		f.seedAccount(t)
		sessionID := startLogin(t, f)

		_, err := f.flow.VerifyCode(ctx, &dto.LoginVerifyRequest{LoginSessionID: sessionID, OTPCode: testValidCode}, testMetadata())
		require.NoError(t, err)

		_, err = f.flow.VerifyCode(ctx, &dto.LoginVerifyRequest{LoginSessionID: sessionID, OTPCode: testValidCode}, testMetadata())
		require.Error(t, err)
		assert.True(t, IsLoginSessionNotFound(err))
	})

	t.Run("unknown login session", func(t *testing.T) {
		f := newTwoFactorFixture(t)
		f.seedAccount(t)

		_, err := f.flow.VerifyCode(ctx, &dto.LoginVerifyRequest{LoginSessionID: "3f0c8dc0-0000-4000-8000-000000000000", OTPCode: testValidCode}, testMetadata())
		require.Error(t, err)
		assert.True(t, IsLoginSessionNotFound(err))
	})

	t.Run("abandoned attempt expires with the registry TTL", func(t *testing.T) {
		f := newTwoFactorFixture(t)
		f.seedAccount(t)
		sessionID := startLogin(t, f)

		f.clock.Advance(utils.LoginSessionTTL)

		_, err := f.flow.VerifyCode(ctx, &dto.LoginVerifyRequest{LoginSessionID: sessionID, OTPCode: testValidCode}, testMetadata())
		require.Error(t, err)
		assert.True(t, IsLoginSessionNotFound(err))
	})
}

func TestResendCode(t *testing.T) {
	ctx := context.Background()

	t.Run("resend dispatches another code for the same attempt", func(t *testing.T) {
		f := newTwoFactorFixture(t)
		f.seedAccount(t)

		challenge, err := f.flow.Login(ctx, &dto.LoginRequest{Identifier: testLoginPhone, Password: testLoginPassword}, testMetadata())
		require.NoError(t, err)

		resent, err := f.flow.ResendCode(ctx, &dto.LoginResendRequest{LoginSessionID: challenge.LoginSessionID}, testMetadata())
		require.NoError(t, err)
		assert.Equal(t, challenge.LoginSessionID, resent.LoginSessionID)
		assert.Equal(t, []string{testLoginPhone, testLoginPhone}, f.otpService.SentTo)
	})

	t.Run("resend for an unknown attempt", func(t *testing.T) {
		f := newTwoFactorFixture(t)
		f.seedAccount(t)

		_, err := f.flow.ResendCode(ctx, &dto.LoginResendRequest{LoginSessionID: "3f0c8dc0-0000-4000-8000-000000000000"}, testMetadata())
		require.Error(t, err)
		assert.True(t, IsLoginSessionNotFound(err))
	})

	t.Run("resend after the window expired dispatches nothing and resets the attempt", func(t *testing.T) {
		f := newTwoFactorFixture(t)
		f.seedAccount(t)

		challenge, err := f.flow.Login(ctx, &dto.LoginRequest{Identifier: testLoginPhone, Password: testLoginPassword}, testMetadata())
		require.NoError(t, err)
		require.Len(t, f.otpService.SentTo, 1)

		// Past the five-minute window but still inside the registry TTL
		f.clock.Advance(utils.PasswordVerificationWindow + time.Minute)

		_, err = f.flow.ResendCode(ctx, &dto.LoginResendRequest{LoginSessionID: challenge.LoginSessionID}, testMetadata())
		require.Error(t, err)
		assert.True(t, IsVerificationExpired(err))
		assert.Len(t, f.otpService.SentTo, 1, "no code may be dispatched after the window expired")

		logs, err := f.auditRepo.ListByAction(ctx, models.AuditActionSessionExpired, 0, 0)
		require.NoError(t, err)
		assert.Len(t, logs, 1)

		// The attempt is gone; the same id cannot resume it
		_, err = f.flow.ResendCode(ctx, &dto.LoginResendRequest{LoginSessionID: challenge.LoginSessionID}, testMetadata())
		require.Error(t, err)
		assert.True(t, IsLoginSessionNotFound(err))
	})
}
