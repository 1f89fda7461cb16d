package businessflow

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/primefit/primefit-api/app/services"
	"github.com/primefit/primefit-api/models"
	"github.com/primefit/primefit-api/utils"
	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
)

// fakeClock is a manually advanced Clock for deterministic window tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t0 time.Time) *fakeClock {
	return &fakeClock{now: t0}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubTokenService issues predictable tokens without signing anything
type stubTokenService struct {
	counter int
}

func (s *stubTokenService) GenerateTokens(accountID uint) (string, string, error) {
	s.counter++
	return fmt.Sprintf("access-%d-%d", accountID, s.counter), fmt.Sprintf("refresh-%d-%d", accountID, s.counter), nil
}

func (s *stubTokenService) ValidateToken(token string) (*services.TokenClaims, error) {
	return nil, services.ErrTokenInvalid
}

func (s *stubTokenService) RefreshToken(refreshToken string) (string, string, error) {
	return "", "", services.ErrTokenInvalid
}

func testMetadata() *ClientMetadata {
	return NewClientMetadata("203.0.113.10", "primefit-test-agent")
}

func TestToAccountSessionDTO(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("token pair with refresh token", func(t *testing.T) {
		refresh := "refresh-token"
		session := models.AccountSession{
			SessionToken: "session-token",
			RefreshToken: &refresh,
			CreatedAt:    now,
			ExpiresAt:    now.Add(utils.SessionTimeout),
		}

		d := ToAccountSessionDTO(session, now)
		assert.Equal(t, "session-token", d.SessionToken)
		assert.Equal(t, "refresh-token", d.RefreshToken)
		assert.Equal(t, "Bearer", d.TokenType)
		assert.Equal(t, int(utils.SessionTimeout.Seconds()), d.ExpiresIn)
	})

	t.Run("session without refresh token", func(t *testing.T) {
		session := models.AccountSession{
			SessionToken: "session-token",
			CreatedAt:    now,
			ExpiresAt:    now.Add(utils.SessionTimeout),
		}

		d := ToAccountSessionDTO(session, now)
		assert.Empty(t, d.RefreshToken)
	})
}

// createTestAccount builds a verified, active account with the given password
func createTestAccount(phone, email, password string) *models.Account {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}

	var emailPtr *string
	if email != "" {
		emailPtr = &email
	}

	return &models.Account{
		UUID:               uuid.New(),
		FullName:           "Test Account",
		PhoneNumber:        phone,
		Email:              emailPtr,
		PasswordHash:       string(hash),
		Role:               models.RoleStandard,
		SubscriptionStatus: models.SubscriptionStatusNone,
		IsPhoneVerified:    utils.ToPtr(true),
		IsActive:           utils.ToPtr(true),
	}
}
