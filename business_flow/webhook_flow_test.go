package businessflow

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/primefit/primefit-api/app/dto"
	"github.com/primefit/primefit-api/app/services"
	"github.com/primefit/primefit-api/models"
	"github.com/primefit/primefit-api/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningSecret = "whsec_test_signing_secret"

type webhookFixture struct {
	flow        WebhookFlow
	accountRepo *repository.InMemoryAccountRepository
	auditRepo   *repository.InMemoryAuditLogRepository
	clock       *fakeClock
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	clock := newFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	accountRepo := repository.NewInMemoryAccountRepository()
	auditRepo := repository.NewInMemoryAuditLogRepository()
	notifier := services.NewNotificationService(services.NewMockSMSProvider(), services.NewMockEmailProvider())

	flow := NewWebhookFlow(accountRepo, auditRepo, notifier, testSigningSecret, clock, nil)

	return &webhookFixture{
		flow:        flow,
		accountRepo: accountRepo,
		auditRepo:   auditRepo,
		clock:       clock,
	}
}

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func paymentSuccessPayload(t *testing.T, account *models.Account, reference string, paidAt time.Time) []byte {
	t.Helper()

	email := ""
	if account.Email != nil {
		email = *account.Email
	}

	event := dto.PaymentWebhookEvent{
		Type: dto.WebhookEventPaymentSuccess,
		Data: dto.PaymentWebhookData{
			AccountID:    account.UUID.String(),
			AccountEmail: email,
			Reference:    reference,
			Amount:       499900,
			Currency:     "NGN",
			PaidAt:       paidAt.Unix(),
		},
	}

	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload
}

func TestVerifySignature(t *testing.T) {
	f := newWebhookFixture(t)
	payload := []byte(`{"type":"payment.success"}`)

	t.Run("valid signature", func(t *testing.T) {
		assert.True(t, f.flow.VerifySignature(payload, signPayload(testSigningSecret, payload)))
	})

	t.Run("wrong secret", func(t *testing.T) {
		assert.False(t, f.flow.VerifySignature(payload, signPayload("other-secret", payload)))
	})

	t.Run("tampered payload", func(t *testing.T) {
		signature := signPayload(testSigningSecret, payload)
		assert.False(t, f.flow.VerifySignature([]byte(`{"type":"payment.failed"}`), signature))
	})

	t.Run("signature is not hex", func(t *testing.T) {
		assert.False(t, f.flow.VerifySignature(payload, "zz-not-hex"))
	})

	t.Run("empty signature", func(t *testing.T) {
		assert.False(t, f.flow.VerifySignature(payload, ""))
	})

	t.Run("empty secret never verifies", func(t *testing.T) {
		unconfigured := NewWebhookFlow(f.accountRepo, f.auditRepo, nil, "", f.clock, nil)
		assert.False(t, unconfigured.VerifySignature(payload, signPayload("", payload)))
	})
}

func TestProcessPaymentSuccess(t *testing.T) {
	ctx := context.Background()

	t.Run("applies the payment and extends access", func(t *testing.T) {
		f := newWebhookFixture(t)
		account := createTestAccount("+2348123456789", "member@example.com", "pw")
		require.NoError(t, f.accountRepo.Save(ctx, account))

		paidAt := time.Date(2025, 3, 10, 11, 58, 0, 0, time.UTC)
		payload := paymentSuccessPayload(t, account, "ref_001", paidAt)

		accepted := f.flow.Process(ctx, payload, signPayload(testSigningSecret, payload), testMetadata())
		assert.True(t, accepted)

		updated, err := f.accountRepo.ByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionStatusPaid, updated.SubscriptionStatus)
		require.NotNil(t, updated.PaidAt)
		assert.Equal(t, paidAt, *updated.PaidAt)
		require.NotNil(t, updated.PaidUntil)
		assert.Equal(t, paidAt.Add(models.SubscriptionExtension), *updated.PaidUntil)
		require.NotNil(t, updated.LastPaymentReference)
		assert.Equal(t, "ref_001", *updated.LastPaymentReference)
		assert.Equal(t, int64(499900), updated.AmountPaidMinorUnits)

		logs, err := f.auditRepo.ListByAction(ctx, models.AuditActionPaymentSucceeded, 0, 0)
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})

	t.Run("missing paid_at falls back to receipt time", func(t *testing.T) {
		f := newWebhookFixture(t)
		account := createTestAccount("+2348123456789", "member@example.com", "pw")
		require.NoError(t, f.accountRepo.Save(ctx, account))

		payload := paymentSuccessPayload(t, account, "ref_002", time.Unix(0, 0))

		accepted := f.flow.Process(ctx, payload, signPayload(testSigningSecret, payload), testMetadata())
		assert.True(t, accepted)

		updated, err := f.accountRepo.ByID(ctx, account.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.PaidAt)
		assert.Equal(t, f.clock.Now(), *updated.PaidAt)
	})

	t.Run("replayed reference acknowledges without reapplying", func(t *testing.T) {
		f := newWebhookFixture(t)
		account := createTestAccount("+2348123456789", "member@example.com", "pw")
		require.NoError(t, f.accountRepo.Save(ctx, account))

		paidAt := f.clock.Now()
		payload := paymentSuccessPayload(t, account, "ref_003", paidAt)
		signature := signPayload(testSigningSecret, payload)

		assert.True(t, f.flow.Process(ctx, payload, signature, testMetadata()))
		assert.True(t, f.flow.Process(ctx, payload, signature, testMetadata()))

		applied, err := f.auditRepo.ListByAction(ctx, models.AuditActionPaymentSucceeded, 0, 0)
		require.NoError(t, err)
		assert.Len(t, applied, 1, "the payment is applied exactly once")

		replayed, err := f.auditRepo.ListByAction(ctx, models.AuditActionPaymentReplayed, 0, 0)
		require.NoError(t, err)
		assert.Len(t, replayed, 1)
	})

	t.Run("missing account metadata is rejected", func(t *testing.T) {
		f := newWebhookFixture(t)
		account := createTestAccount("+2348123456789", "", "pw") // no email on file
		require.NoError(t, f.accountRepo.Save(ctx, account))

		payload := paymentSuccessPayload(t, account, "ref_004", f.clock.Now())

		accepted := f.flow.Process(ctx, payload, signPayload(testSigningSecret, payload), testMetadata())
		assert.False(t, accepted)
	})

	t.Run("email mismatch is rejected", func(t *testing.T) {
		f := newWebhookFixture(t)
		account := createTestAccount("+2348123456789", "member@example.com", "pw")
		require.NoError(t, f.accountRepo.Save(ctx, account))

		event := dto.PaymentWebhookEvent{
			Type: dto.WebhookEventPaymentSuccess,
			Data: dto.PaymentWebhookData{
				AccountID:    account.UUID.String(),
				AccountEmail: "someone-else@example.com",
				Reference:    "ref_005",
			},
		}
		payload, err := json.Marshal(event)
		require.NoError(t, err)

		accepted := f.flow.Process(ctx, payload, signPayload(testSigningSecret, payload), testMetadata())
		assert.False(t, accepted)

		updated, err := f.accountRepo.ByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionStatusNone, updated.SubscriptionStatus)
	})

	t.Run("unknown account is rejected", func(t *testing.T) {
		f := newWebhookFixture(t)
		orphan := createTestAccount("+2348123456789", "member@example.com", "pw")

		payload := paymentSuccessPayload(t, orphan, "ref_006", f.clock.Now())

		accepted := f.flow.Process(ctx, payload, signPayload(testSigningSecret, payload), testMetadata())
		assert.False(t, accepted)
	})

	t.Run("store outage is not acknowledged so the provider retries", func(t *testing.T) {
		f := newWebhookFixture(t)
		account := createTestAccount("+2348123456789", "member@example.com", "pw")
		require.NoError(t, f.accountRepo.Save(ctx, account))
		f.accountRepo.SetUnavailable(true)

		payload := paymentSuccessPayload(t, account, "ref_007", f.clock.Now())

		accepted := f.flow.Process(ctx, payload, signPayload(testSigningSecret, payload), testMetadata())
		assert.False(t, accepted)
	})
}

func TestProcessRejectsBeforeParsing(t *testing.T) {
	ctx := context.Background()

	t.Run("bad signature never mutates state", func(t *testing.T) {
		f := newWebhookFixture(t)
		account := createTestAccount("+2348123456789", "member@example.com", "pw")
		require.NoError(t, f.accountRepo.Save(ctx, account))

		payload := paymentSuccessPayload(t, account, "ref_100", f.clock.Now())

		accepted := f.flow.Process(ctx, payload, signPayload("wrong-secret", payload), testMetadata())
		assert.False(t, accepted)

		updated, err := f.accountRepo.ByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionStatusNone, updated.SubscriptionStatus)
		assert.Nil(t, updated.LastPaymentReference)

		rejected, err := f.auditRepo.ListByAction(ctx, models.AuditActionWebhookRejected, 0, 0)
		require.NoError(t, err)
		assert.Len(t, rejected, 1)
	})

	t.Run("signed but malformed payload is rejected", func(t *testing.T) {
		f := newWebhookFixture(t)

		payload := []byte(`{"type": "payment.success", "data":`)
		accepted := f.flow.Process(ctx, payload, signPayload(testSigningSecret, payload), testMetadata())
		assert.False(t, accepted)
	})
}

func TestProcessOtherEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("payment failed is acknowledged and recorded", func(t *testing.T) {
		f := newWebhookFixture(t)
		account := createTestAccount("+2348123456789", "member@example.com", "pw")
		require.NoError(t, f.accountRepo.Save(ctx, account))

		event := dto.PaymentWebhookEvent{
			Type: dto.WebhookEventPaymentFailed,
			Data: dto.PaymentWebhookData{
				AccountID: account.UUID.String(),
				Reference: "ref_200",
				Reason:    "insufficient_funds",
			},
		}
		payload, err := json.Marshal(event)
		require.NoError(t, err)

		accepted := f.flow.Process(ctx, payload, signPayload(testSigningSecret, payload), testMetadata())
		assert.True(t, accepted)

		updated, err := f.accountRepo.ByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionStatusNone, updated.SubscriptionStatus, "a failed payment never changes access")

		logs, err := f.auditRepo.ListByAction(ctx, models.AuditActionPaymentFailed, 0, 0)
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})

	t.Run("subscription lifecycle events are noted", func(t *testing.T) {
		f := newWebhookFixture(t)

		for _, eventType := range []string{dto.WebhookEventSubscriptionCreate, dto.WebhookEventSubscriptionStop} {
			payload, err := json.Marshal(dto.PaymentWebhookEvent{Type: eventType})
			require.NoError(t, err)
			assert.True(t, f.flow.Process(ctx, payload, signPayload(testSigningSecret, payload), testMetadata()), eventType)
		}

		noted, err := f.auditRepo.ListByAction(ctx, models.AuditActionSubscriptionEventNoted, 0, 0)
		require.NoError(t, err)
		assert.Len(t, noted, 2)
	})

	t.Run("unknown event types are acknowledged so the provider stops retrying", func(t *testing.T) {
		f := newWebhookFixture(t)

		payload := []byte(fmt.Sprintf(`{"type": %q}`, "refund.created"))
		assert.True(t, f.flow.Process(ctx, payload, signPayload(testSigningSecret, payload), testMetadata()))
	})
}
