package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/primefit/primefit-api/models"
	"github.com/primefit/primefit-api/repository"
	"github.com/primefit/primefit-api/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type adminFixture struct {
	flow        AdminFlow
	accountRepo *repository.InMemoryAccountRepository
	sessionRepo *repository.InMemoryAccountSessionRepository
	auditRepo   *repository.InMemoryAuditLogRepository
	clock       *fakeClock
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()

	clock := newFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	accountRepo := repository.NewInMemoryAccountRepository()
	sessionRepo := repository.NewInMemoryAccountSessionRepository()
	auditRepo := repository.NewInMemoryAuditLogRepository()

	return &adminFixture{
		flow:        NewAdminFlow(accountRepo, sessionRepo, auditRepo, clock, nil),
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
		auditRepo:   auditRepo,
		clock:       clock,
	}
}

func (f *adminFixture) seedAdmin(t *testing.T) *models.Account {
	t.Helper()
	admin := createTestAccount("+2348100000001", "admin@example.com", "pw")
	admin.Role = models.RoleAdmin
	require.NoError(t, f.accountRepo.Save(context.Background(), admin))
	return admin
}

func (f *adminFixture) seedTarget(t *testing.T) *models.Account {
	t.Helper()
	target := createTestAccount("+2348100000002", "target@example.com", "pw")
	require.NoError(t, f.accountRepo.Save(context.Background(), target))
	return target
}

func TestSetAccountActive(t *testing.T) {
	ctx := context.Background()

	t.Run("standard accounts cannot use admin actions", func(t *testing.T) {
		f := newAdminFixture(t)
		actor := f.seedTarget(t)
		target := f.seedAdmin(t)

		_, err := f.flow.SetAccountActive(ctx, actor.ID, target.UUID.String(), false, testMetadata())
		require.Error(t, err)
		assert.True(t, IsAdminRequired(err))
	})

	t.Run("disabled admins cannot use admin actions", func(t *testing.T) {
		f := newAdminFixture(t)
		admin := f.seedAdmin(t)
		target := f.seedTarget(t)
		require.NoError(t, f.accountRepo.SetActive(ctx, admin.ID, false))

		_, err := f.flow.SetAccountActive(ctx, admin.ID, target.UUID.String(), false, testMetadata())
		require.Error(t, err)
		assert.True(t, IsAdminRequired(err))
	})

	t.Run("unknown target", func(t *testing.T) {
		f := newAdminFixture(t)
		admin := f.seedAdmin(t)

		_, err := f.flow.SetAccountActive(ctx, admin.ID, uuid.NewString(), false, testMetadata())
		require.Error(t, err)
		assert.True(t, IsAccountNotFound(err))
	})

	t.Run("disable expires every session of the target", func(t *testing.T) {
		f := newAdminFixture(t)
		admin := f.seedAdmin(t)
		target := f.seedTarget(t)

		refresh := "refresh-token"
		require.NoError(t, f.sessionRepo.Save(ctx, &models.AccountSession{
			CorrelationID: uuid.New(),
			AccountID:     target.ID,
			SessionToken:  "session-token",
			RefreshToken:  &refresh,
			IsActive:      utils.ToPtr(true),
			ExpiresAt:     f.clock.Now().Add(utils.SessionTimeout),
		}))

		result, err := f.flow.SetAccountActive(ctx, admin.ID, target.UUID.String(), false, testMetadata())
		require.NoError(t, err)
		assert.Equal(t, target.UUID.String(), result.AccountUUID)
		assert.False(t, result.IsActive)

		updated, err := f.accountRepo.ByID(ctx, target.ID)
		require.NoError(t, err)
		assert.False(t, utils.IsTrue(updated.IsActive))

		session, err := f.sessionRepo.BySessionToken(ctx, "session-token")
		require.NoError(t, err)
		require.NotNil(t, session)
		assert.False(t, session.IsValid(f.clock.Now()))

		logs, err := f.auditRepo.ListByAction(ctx, models.AuditActionAccountDeactivated, 0, 0)
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})

	t.Run("enable restores the account without touching sessions", func(t *testing.T) {
		f := newAdminFixture(t)
		admin := f.seedAdmin(t)
		target := f.seedTarget(t)

		_, err := f.flow.SetAccountActive(ctx, admin.ID, target.UUID.String(), false, testMetadata())
		require.NoError(t, err)

		result, err := f.flow.SetAccountActive(ctx, admin.ID, target.UUID.String(), true, testMetadata())
		require.NoError(t, err)
		assert.True(t, result.IsActive)

		updated, err := f.accountRepo.ByID(ctx, target.ID)
		require.NoError(t, err)
		assert.True(t, utils.IsTrue(updated.IsActive))

		logs, err := f.auditRepo.ListByAction(ctx, models.AuditActionAccountActivated, 0, 0)
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})

	t.Run("super admins can act too", func(t *testing.T) {
		f := newAdminFixture(t)
		superAdmin := createTestAccount("+2348100000003", "", "pw")
		superAdmin.Role = models.RoleSuperAdmin
		require.NoError(t, f.accountRepo.Save(ctx, superAdmin))
		target := f.seedTarget(t)

		_, err := f.flow.SetAccountActive(ctx, superAdmin.ID, target.UUID.String(), false, testMetadata())
		require.NoError(t, err)
	})
}
