package businessflow

import (
	"context"
	"log"
	"strings"

	"github.com/primefit/primefit-api/repository"
)

// DuplicateCheckResult classifies the outcome of a pre-registration duplicate check
type DuplicateCheckResult int

const (
	NoDuplicate DuplicateCheckResult = iota
	DuplicatePhone
	DuplicateEmail
)

// DuplicateGuard checks whether a phone number or email is already registered
// before an account is created.
type DuplicateGuard interface {
	Check(ctx context.Context, phoneNumber, email string) (DuplicateCheckResult, error)
}

type DuplicateGuardImpl struct {
	accountRepo repository.AccountRepository
}

func NewDuplicateGuard(accountRepo repository.AccountRepository) DuplicateGuard {
	return &DuplicateGuardImpl{accountRepo: accountRepo}
}

// Check looks up the phone number first and only consults the email when the
// phone check passed, so an account duplicated on both fields always reports
// the phone conflict. A store outage fails open: registration proceeds and
// the unique constraints on the accounts table catch any true duplicate.
func (g *DuplicateGuardImpl) Check(ctx context.Context, phoneNumber, email string) (DuplicateCheckResult, error) {
	if strings.TrimSpace(phoneNumber) == "" {
		return NoDuplicate, ErrPhoneNumberRequired
	}

	existing, err := g.accountRepo.ByPhoneNumber(ctx, phoneNumber)
	if err != nil {
		fingerprint := NewErrorFingerprint()
		log.Printf("duplicate check failed open, phone lookup unavailable: fingerprint=%s err=%v", fingerprint, err)
		return NoDuplicate, nil
	}
	if existing != nil {
		return DuplicatePhone, ErrPhoneAlreadyExists
	}

	if strings.TrimSpace(email) == "" {
		return NoDuplicate, nil
	}

	existing, err = g.accountRepo.ByEmail(ctx, email)
	if err != nil {
		fingerprint := NewErrorFingerprint()
		log.Printf("duplicate check failed open, email lookup unavailable: fingerprint=%s err=%v", fingerprint, err)
		return NoDuplicate, nil
	}
	if existing != nil {
		return DuplicateEmail, ErrEmailAlreadyExists
	}

	return NoDuplicate, nil
}
