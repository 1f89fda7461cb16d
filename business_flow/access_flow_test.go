package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/primefit/primefit-api/models"
	"github.com/primefit/primefit-api/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentAccess(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	newFlow := func(t *testing.T) (AccessFlow, *repository.InMemoryAccountRepository, *fakeClock) {
		t.Helper()
		accountRepo := repository.NewInMemoryAccountRepository()
		clock := newFakeClock(t0)
		return NewAccessFlow(accountRepo, clock), accountRepo, clock
	}

	t.Run("unknown account", func(t *testing.T) {
		flow, _, _ := newFlow(t)

		_, err := flow.ContentAccess(ctx, 42)
		require.Error(t, err)
		assert.True(t, IsAccountNotFound(err))
	})

	t.Run("store outage", func(t *testing.T) {
		flow, accountRepo, _ := newFlow(t)
		accountRepo.SetUnavailable(true)

		_, err := flow.ContentAccess(ctx, 42)
		require.Error(t, err)
		assert.True(t, IsStoreUnavailable(err))
	})

	t.Run("trial account gets content but no subscriber features", func(t *testing.T) {
		flow, accountRepo, _ := newFlow(t)
		account := trialAccount(t0.Add(-time.Hour))
		require.NoError(t, accountRepo.Save(ctx, account))

		result, err := flow.ContentAccess(ctx, account.ID)
		require.NoError(t, err)

		assert.True(t, result.HasContentAccess)
		assert.False(t, result.NeedsSubscription)
		assert.True(t, result.IsOnTrial)
		assert.False(t, result.HasActiveSubscription)
		assert.Contains(t, result.TrialMessage, "Free trial ends at")
		assert.Equal(t, result.TrialMessage, result.StatusMessage)

		assert.True(t, result.Features[FeatureWorkoutLibrary])
		assert.True(t, result.Features[FeatureMealPlans])
		assert.True(t, result.Features[FeatureProgressTracking])
		assert.False(t, result.Features[FeatureOfflineAccess])
		assert.False(t, result.Features[FeaturePersonalizedPlans])
	})

	t.Run("subscriber gets everything", func(t *testing.T) {
		flow, accountRepo, _ := newFlow(t)
		account := subscribedAccount(t0.Add(24 * time.Hour))
		require.NoError(t, accountRepo.Save(ctx, account))

		result, err := flow.ContentAccess(ctx, account.ID)
		require.NoError(t, err)

		assert.True(t, result.HasContentAccess)
		assert.True(t, result.HasActiveSubscription)
		assert.Equal(t, "Subscription active", result.StatusMessage)
		for feature, allowed := range result.Features {
			assert.True(t, allowed, feature)
		}
	})

	t.Run("expired trial needs a subscription", func(t *testing.T) {
		flow, accountRepo, clock := newFlow(t)
		account := trialAccount(t0)
		require.NoError(t, accountRepo.Save(ctx, account))

		clock.Advance(models.TrialDuration)

		result, err := flow.ContentAccess(ctx, account.ID)
		require.NoError(t, err)

		assert.False(t, result.HasContentAccess)
		assert.True(t, result.NeedsSubscription)
		assert.Equal(t, "Trial expired", result.StatusMessage)
		for feature, allowed := range result.Features {
			assert.False(t, allowed, feature)
		}
	})

	t.Run("legacy account with no trial timestamp", func(t *testing.T) {
		flow, accountRepo, _ := newFlow(t)
		account := createTestAccount("+2348123456789", "", "pw")
		require.NoError(t, accountRepo.Save(ctx, account))

		result, err := flow.ContentAccess(ctx, account.ID)
		require.NoError(t, err)

		assert.False(t, result.HasContentAccess)
		assert.Empty(t, result.TrialMessage)
		assert.Equal(t, AccessStatusMessageDefault, result.StatusMessage)
	})
}
