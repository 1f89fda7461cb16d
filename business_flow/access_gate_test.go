package businessflow

import (
	"fmt"
	"testing"
	"time"

	"github.com/primefit/primefit-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trialAccount(startedAt time.Time) *models.Account {
	a := createTestAccount("+2348123456789", "", "password")
	a.TrialStartedAt = &startedAt
	return a
}

func subscribedAccount(paidUntil time.Time) *models.Account {
	a := createTestAccount("+2348123456789", "", "password")
	a.SubscriptionStatus = models.SubscriptionStatusPaid
	a.PaidUntil = &paidUntil
	return a
}

func TestIsOnTrial(t *testing.T) {
	t0 := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		account  *models.Account
		now      time.Time
		expected bool
	}{
		{"nil account", nil, t0, false},
		{"legacy account without trial timestamp", createTestAccount("+2348123456789", "", "pw"), t0, false},
		{"trial just started", trialAccount(t0), t0, true},
		{"one minute before expiry", trialAccount(t0), t0.Add(models.TrialDuration - time.Minute), true},
		{"exactly at expiry", trialAccount(t0), t0.Add(models.TrialDuration), false},
		{"after expiry", trialAccount(t0), t0.Add(models.TrialDuration + time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsOnTrial(tt.account, tt.now))
		})
	}
}

func TestHasActiveSubscription(t *testing.T) {
	t0 := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	stalePaid := createTestAccount("+2348123456789", "", "pw")
	stalePaid.SubscriptionStatus = models.SubscriptionStatusPaid // paid_until never written

	lapsed := subscribedAccount(t0.Add(-time.Hour))

	unpaidWithWindow := createTestAccount("+2348123456789", "", "pw")
	until := t0.Add(time.Hour)
	unpaidWithWindow.PaidUntil = &until // status still "none"

	tests := []struct {
		name     string
		account  *models.Account
		expected bool
	}{
		{"nil account", nil, false},
		{"active subscription", subscribedAccount(t0.Add(time.Hour)), true},
		{"paid status without paid_until", stalePaid, false},
		{"paid_until in the past", lapsed, false},
		{"paid_until without paid status", unpaidWithWindow, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HasActiveSubscription(tt.account, t0))
		})
	}
}

func TestNeedsSubscriptionComplementsHasContentAccess(t *testing.T) {
	t0 := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	accounts := []*models.Account{
		nil,
		createTestAccount("+2348123456789", "", "pw"),
		trialAccount(t0),
		trialAccount(t0.Add(-models.TrialDuration)),
		subscribedAccount(t0.Add(time.Hour)),
		subscribedAccount(t0.Add(-time.Hour)),
	}

	instants := []time.Time{
		t0,
		t0.Add(models.TrialDuration),
		t0.Add(models.TrialDuration - time.Nanosecond),
		t0.Add(30 * 24 * time.Hour),
	}

	for i, account := range accounts {
		for _, now := range instants {
			assert.Equal(t, !HasContentAccess(account, now), NeedsSubscription(account, now),
				"account %d at %s", i, now)
		}
	}
}

func TestTrialDisplayMessage(t *testing.T) {
	t0 := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("legacy account gets no banner", func(t *testing.T) {
		assert.Equal(t, "", TrialDisplayMessage(createTestAccount("+2348123456789", "", "pw"), t0))
		assert.Equal(t, "", TrialDisplayMessage(nil, t0))
	})

	t.Run("active trial names the end time", func(t *testing.T) {
		account := trialAccount(t0)
		endsAt := t0.Add(models.TrialDuration)
		expected := fmt.Sprintf("Free trial ends at %s %s", endsAt.Format("2006-01-02"), endsAt.Format("15:04"))
		assert.Equal(t, expected, TrialDisplayMessage(account, t0.Add(time.Hour)))
	})

	t.Run("expired trial", func(t *testing.T) {
		account := trialAccount(t0)
		assert.Equal(t, "Trial expired", TrialDisplayMessage(account, t0.Add(models.TrialDuration)))
	})
}

func TestAccessStatusMessage(t *testing.T) {
	t0 := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	lapsed := subscribedAccount(t0.Add(-time.Hour))

	expiredStatus := createTestAccount("+2348123456789", "", "pw")
	expiredStatus.SubscriptionStatus = models.SubscriptionStatusExpired

	tests := []struct {
		name     string
		account  *models.Account
		expected string
	}{
		{"nil account", nil, AccessStatusMessageDefault},
		{"active subscription", subscribedAccount(t0.Add(time.Hour)), "Subscription active"},
		{"lapsed subscription", lapsed, "Subscription expired"},
		{"expired status", expiredStatus, "Subscription expired"},
		{"expired trial", trialAccount(t0.Add(-models.TrialDuration)), "Trial expired"},
		{"no trial and no subscription", createTestAccount("+2348123456789", "", "pw"), AccessStatusMessageDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AccessStatusMessage(tt.account, t0))
		})
	}

	t.Run("never empty", func(t *testing.T) {
		require.NotEmpty(t, AccessStatusMessage(trialAccount(t0), t0.Add(time.Hour)))
	})
}

func TestCanUseFeature(t *testing.T) {
	t0 := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	onTrial := trialAccount(t0)
	subscriber := subscribedAccount(t0.Add(time.Hour))
	lapsed := createTestAccount("+2348123456789", "", "pw")

	tests := []struct {
		feature    string
		trial      bool
		subscribed bool
		none       bool
	}{
		{FeatureWorkoutLibrary, true, true, false},
		{FeatureMealPlans, true, true, false},
		{FeatureProgressTracking, true, true, false},
		{FeatureOfflineAccess, false, true, false},
		{FeaturePersonalizedPlans, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.feature, func(t *testing.T) {
			assert.Equal(t, tt.trial, CanUseFeature(onTrial, tt.feature, t0), "trial account")
			assert.Equal(t, tt.subscribed, CanUseFeature(subscriber, tt.feature, t0), "subscriber")
			assert.Equal(t, tt.none, CanUseFeature(lapsed, tt.feature, t0), "no access")
		})
	}
}

func TestTrialEndsAt(t *testing.T) {
	t0 := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	account := trialAccount(t0)
	endsAt := account.TrialEndsAt()
	require.NotNil(t, endsAt)
	assert.Equal(t, t0.Add(48*time.Hour), *endsAt)
	assert.Nil(t, createTestAccount("+2348123456789", "", "pw").TrialEndsAt())
}
