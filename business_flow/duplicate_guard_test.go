package businessflow

import (
	"context"
	"testing"

	"github.com/primefit/primefit-api/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuplicateGuardCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("empty phone is rejected", func(t *testing.T) {
		guard := NewDuplicateGuard(repository.NewInMemoryAccountRepository())

		_, err := guard.Check(ctx, "", "someone@example.com")
		require.Error(t, err)
		assert.True(t, IsPhoneNumberRequired(err))

		_, err = guard.Check(ctx, "   ", "")
		require.Error(t, err)
		assert.True(t, IsPhoneNumberRequired(err))
	})

	t.Run("no duplicates", func(t *testing.T) {
		guard := NewDuplicateGuard(repository.NewInMemoryAccountRepository())

		result, err := guard.Check(ctx, "+2348123456789", "new@example.com")
		require.NoError(t, err)
		assert.Equal(t, NoDuplicate, result)
	})

	t.Run("duplicate phone", func(t *testing.T) {
		accountRepo := repository.NewInMemoryAccountRepository()
		require.NoError(t, accountRepo.Save(ctx, createTestAccount("+2348123456788", "taken@example.com", "pw")))

		guard := NewDuplicateGuard(accountRepo)
		result, err := guard.Check(ctx, "+2348123456788", "new@example.com")
		require.Error(t, err)
		assert.True(t, IsPhoneAlreadyExists(err))
		assert.Equal(t, DuplicatePhone, result)
	})

	t.Run("duplicate email", func(t *testing.T) {
		accountRepo := repository.NewInMemoryAccountRepository()
		require.NoError(t, accountRepo.Save(ctx, createTestAccount("+2348123456788", "taken@example.com", "pw")))

		guard := NewDuplicateGuard(accountRepo)
		result, err := guard.Check(ctx, "+2348123456789", "taken@example.com")
		require.Error(t, err)
		assert.True(t, IsEmailAlreadyExists(err))
		assert.Equal(t, DuplicateEmail, result)
	})

	t.Run("phone conflict wins when both are taken", func(t *testing.T) {
		accountRepo := repository.NewInMemoryAccountRepository()
		require.NoError(t, accountRepo.Save(ctx, createTestAccount("+2348123456788", "taken@example.com", "pw")))

		guard := NewDuplicateGuard(accountRepo)
		result, err := guard.Check(ctx, "+2348123456788", "taken@example.com")
		require.Error(t, err)
		assert.True(t, IsPhoneAlreadyExists(err))
		assert.Equal(t, DuplicatePhone, result)
	})

	t.Run("store outage fails open", func(t *testing.T) {
		accountRepo := repository.NewInMemoryAccountRepository()
		require.NoError(t, accountRepo.Save(ctx, createTestAccount("+2348123456788", "taken@example.com", "pw")))
		accountRepo.SetUnavailable(true)

		guard := NewDuplicateGuard(accountRepo)
		result, err := guard.Check(ctx, "+2348123456788", "taken@example.com")
		require.NoError(t, err)
		assert.Equal(t, NoDuplicate, result)
	})

	t.Run("blank email skips the email lookup", func(t *testing.T) {
		accountRepo := repository.NewInMemoryAccountRepository()
		guard := NewDuplicateGuard(accountRepo)

		result, err := guard.Check(ctx, "+2348123456789", "   ")
		require.NoError(t, err)
		assert.Equal(t, NoDuplicate, result)
	})
}
