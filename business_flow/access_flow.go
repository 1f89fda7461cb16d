package businessflow

import (
	"context"
	"fmt"

	"github.com/primefit/primefit-api/app/dto"
	"github.com/primefit/primefit-api/repository"
)

// AccessFlow answers content access questions for an authenticated account
type AccessFlow interface {
	ContentAccess(ctx context.Context, accountID uint) (*dto.ContentAccessResponse, error)
}

type AccessFlowImpl struct {
	accountRepo repository.AccountRepository
	clock       Clock
}

func NewAccessFlow(accountRepo repository.AccountRepository, clock Clock) AccessFlow {
	if clock == nil {
		clock = SystemClock{}
	}
	return &AccessFlowImpl{accountRepo: accountRepo, clock: clock}
}

// ContentAccess evaluates every gate at a single instant so the response is
// internally consistent even right at a trial or subscription boundary.
func (f *AccessFlowImpl) ContentAccess(ctx context.Context, accountID uint) (*dto.ContentAccessResponse, error) {
	account, err := f.accountRepo.ByID(ctx, accountID)
	if err != nil {
		return nil, NewBusinessError("ACCESS_CHECK_FAILED", "Access check failed", fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
	}
	if account == nil {
		return nil, NewBusinessError("ACCOUNT_NOT_FOUND", "Account not found", ErrAccountNotFound)
	}

	now := f.clock.Now()

	features := map[string]bool{
		FeatureWorkoutLibrary:    CanUseFeature(account, FeatureWorkoutLibrary, now),
		FeatureMealPlans:         CanUseFeature(account, FeatureMealPlans, now),
		FeatureProgressTracking:  CanUseFeature(account, FeatureProgressTracking, now),
		FeatureOfflineAccess:     CanUseFeature(account, FeatureOfflineAccess, now),
		FeaturePersonalizedPlans: CanUseFeature(account, FeaturePersonalizedPlans, now),
	}

	return &dto.ContentAccessResponse{
		HasContentAccess:      HasContentAccess(account, now),
		NeedsSubscription:     NeedsSubscription(account, now),
		IsOnTrial:             IsOnTrial(account, now),
		HasActiveSubscription: HasActiveSubscription(account, now),
		TrialMessage:          TrialDisplayMessage(account, now),
		StatusMessage:         AccessStatusMessage(account, now),
		Features:              features,
	}, nil
}
