package businessflow

import (
	"fmt"
	"time"

	"github.com/primefit/primefit-api/models"
)

// Feature identifiers gated by access checks
const (
	FeatureWorkoutLibrary    = "workout_library"
	FeatureMealPlans         = "meal_plans"
	FeatureProgressTracking  = "progress_tracking"
	FeatureOfflineAccess     = "offline_access"
	FeaturePersonalizedPlans = "personalized_plans"
)

// AccessStatusMessageDefault is returned when no more specific status applies
const AccessStatusMessageDefault = "Content access restricted"

// IsOnTrial reports whether the account's 48-hour trial window is still open
// at the given instant. Accounts that never started a trial are not on one.
func IsOnTrial(account *models.Account, now time.Time) bool {
	if account == nil || account.TrialStartedAt == nil {
		return false
	}
	return now.Before(account.TrialStartedAt.Add(models.TrialDuration))
}

// HasActiveSubscription reports whether the account holds paid access that has
// not yet lapsed. Both conditions must hold: a stale paid_until with status
// still "paid" does not grant access.
func HasActiveSubscription(account *models.Account, now time.Time) bool {
	if account == nil {
		return false
	}
	if account.SubscriptionStatus != models.SubscriptionStatusPaid {
		return false
	}
	if account.PaidUntil == nil {
		return false
	}
	return now.Before(*account.PaidUntil)
}

// HasContentAccess is the single gate for all protected content
func HasContentAccess(account *models.Account, now time.Time) bool {
	return IsOnTrial(account, now) || HasActiveSubscription(account, now)
}

// NeedsSubscription is the exact complement of HasContentAccess, so callers
// can never see both or neither at a single instant.
func NeedsSubscription(account *models.Account, now time.Time) bool {
	return !HasContentAccess(account, now)
}

// TrialDisplayMessage renders the trial banner for an account. Legacy accounts
// with no trial timestamp get no banner at all.
func TrialDisplayMessage(account *models.Account, now time.Time) string {
	if account == nil || account.TrialStartedAt == nil {
		return ""
	}

	endsAt := account.TrialStartedAt.Add(models.TrialDuration)
	if now.Before(endsAt) {
		return fmt.Sprintf("Free trial ends at %s %s",
			endsAt.Format("2006-01-02"),
			endsAt.Format("15:04"))
	}

	return "Trial expired"
}

// AccessStatusMessage explains the account's standing in caller-facing terms.
// It never fails: any state it cannot name gets the generic restriction text.
func AccessStatusMessage(account *models.Account, now time.Time) string {
	if account == nil {
		return AccessStatusMessageDefault
	}

	if HasActiveSubscription(account, now) {
		return "Subscription active"
	}

	if IsOnTrial(account, now) {
		return TrialDisplayMessage(account, now)
	}

	if account.SubscriptionStatus == models.SubscriptionStatusPaid ||
		account.SubscriptionStatus == models.SubscriptionStatusExpired {
		return "Subscription expired"
	}

	if account.HasStartedTrial() {
		return "Trial expired"
	}

	return AccessStatusMessageDefault
}

// CanUseFeature decides per-feature availability. Offline downloads and
// personalized plans are reserved for paying subscribers; every other gated
// feature is available to anyone with content access, trial included.
func CanUseFeature(account *models.Account, feature string, now time.Time) bool {
	switch feature {
	case FeatureOfflineAccess, FeaturePersonalizedPlans:
		return HasActiveSubscription(account, now)
	default:
		return HasContentAccess(account, now)
	}
}
