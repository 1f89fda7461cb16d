package businessflow

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/primefit/primefit-api/app/dto"
	"github.com/primefit/primefit-api/app/services"
	"github.com/primefit/primefit-api/models"
	"github.com/primefit/primefit-api/repository"
	"github.com/primefit/primefit-api/utils"
	"gorm.io/gorm"
)

// WebhookFlow processes signed events from the payment provider. The flow
// only ever answers accepted or not accepted; the provider retries anything
// not accepted.
type WebhookFlow interface {
	VerifySignature(payload []byte, signature string) bool
	Process(ctx context.Context, payload []byte, signature string, metadata *ClientMetadata) bool
}

// WebhookFlowImpl implements the payment webhook business flow
type WebhookFlowImpl struct {
	accountRepo     repository.AccountRepository
	auditRepo       repository.AuditLogRepository
	notificationSvc services.NotificationService
	signingSecret   string
	clock           Clock
	db              *gorm.DB
}

// NewWebhookFlow creates a new webhook flow instance
func NewWebhookFlow(
	accountRepo repository.AccountRepository,
	auditRepo repository.AuditLogRepository,
	notificationSvc services.NotificationService,
	signingSecret string,
	clock Clock,
	db *gorm.DB,
) WebhookFlow {
	if clock == nil {
		clock = SystemClock{}
	}
	return &WebhookFlowImpl{
		accountRepo:     accountRepo,
		auditRepo:       auditRepo,
		notificationSvc: notificationSvc,
		signingSecret:   signingSecret,
		clock:           clock,
		db:              db,
	}
}

// VerifySignature checks the HMAC-SHA512 hex digest of the raw payload bytes.
// The compare is constant time and happens before any parsing of the body.
func (f *WebhookFlowImpl) VerifySignature(payload []byte, signature string) bool {
	if f.signingSecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha512.New, []byte(f.signingSecret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	received, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	return hmac.Equal(expected, received)
}

// Process validates and dispatches a webhook event. Unknown event types are
// acknowledged so the provider does not retry them forever.
func (f *WebhookFlowImpl) Process(ctx context.Context, payload []byte, signature string, metadata *ClientMetadata) bool {
	if !f.VerifySignature(payload, signature) {
		fingerprint := NewErrorFingerprint()
		log.Printf("webhook rejected, signature mismatch: fingerprint=%s", fingerprint)
		_ = f.createAuditLog(ctx, nil, models.AuditActionWebhookRejected, fmt.Sprintf("signature mismatch: %s", fingerprint), false, metadata)
		return false
	}

	var event dto.PaymentWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		fingerprint := NewErrorFingerprint()
		log.Printf("webhook rejected, malformed payload: fingerprint=%s err=%v", fingerprint, err)
		_ = f.createAuditLog(ctx, nil, models.AuditActionWebhookRejected, fmt.Sprintf("malformed payload: %s", fingerprint), false, metadata)
		return false
	}

	switch event.Type {
	case dto.WebhookEventPaymentSuccess:
		return f.handlePaymentSuccess(ctx, &event, metadata)
	case dto.WebhookEventPaymentFailed:
		return f.handlePaymentFailed(ctx, &event, metadata)
	case dto.WebhookEventSubscriptionCreate, dto.WebhookEventSubscriptionStop:
		desc := fmt.Sprintf("subscription event noted: %s reference=%s", event.Type, event.Data.Reference)
		_ = f.createAuditLog(ctx, nil, models.AuditActionSubscriptionEventNoted, desc, true, metadata)
		return true
	default:
		desc := fmt.Sprintf("unknown event type acknowledged: %s", event.Type)
		_ = f.createAuditLog(ctx, nil, models.AuditActionSubscriptionEventNoted, desc, true, metadata)
		return true
	}
}

// handlePaymentSuccess applies a successful payment to the named account.
// Replays of an already-applied reference are acknowledged without touching
// the account again.
func (f *WebhookFlowImpl) handlePaymentSuccess(ctx context.Context, event *dto.PaymentWebhookEvent, metadata *ClientMetadata) bool {
	data := event.Data

	if data.AccountID == "" || data.AccountEmail == "" {
		desc := fmt.Sprintf("payment.success missing account metadata: reference=%s", data.Reference)
		_ = f.createAuditLog(ctx, nil, models.AuditActionWebhookRejected, desc, false, metadata)
		return false
	}

	account, err := f.accountRepo.ByUUID(ctx, data.AccountID)
	if err != nil {
		// Store outage fails closed so the provider retries later
		fingerprint := NewErrorFingerprint()
		log.Printf("webhook account lookup failed: fingerprint=%s err=%v", fingerprint, err)
		return false
	}
	if account == nil {
		desc := fmt.Sprintf("payment.success for unknown account: reference=%s", data.Reference)
		_ = f.createAuditLog(ctx, nil, models.AuditActionWebhookRejected, desc, false, metadata)
		return false
	}

	if account.Email == nil || *account.Email != data.AccountEmail {
		desc := fmt.Sprintf("payment.success email mismatch: account=%d reference=%s", account.ID, data.Reference)
		_ = f.createAuditLog(ctx, &account.ID, models.AuditActionWebhookRejected, desc, false, metadata)
		return false
	}

	if account.LastPaymentReference != nil && *account.LastPaymentReference == data.Reference {
		desc := fmt.Sprintf("payment replayed, already applied: account=%d reference=%s", account.ID, data.Reference)
		_ = f.createAuditLog(ctx, &account.ID, models.AuditActionPaymentReplayed, desc, true, metadata)
		return true
	}

	paidAt := f.clock.Now()
	if data.PaidAt > 0 {
		paidAt = time.Unix(data.PaidAt, 0).UTC()
	}
	paidUntil := paidAt.Add(models.SubscriptionExtension)

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		return f.accountRepo.ApplyPayment(txCtx, account.ID, paidAt, paidUntil, data.Reference, data.Amount)
	})
	if err != nil {
		fingerprint := NewErrorFingerprint()
		log.Printf("payment application failed: fingerprint=%s account=%d err=%v", fingerprint, account.ID, err)
		return false
	}

	desc := fmt.Sprintf("payment applied: account=%d reference=%s paid_until=%s", account.ID, data.Reference, paidUntil.Format(time.RFC3339))
	_ = f.createAuditLog(ctx, &account.ID, models.AuditActionPaymentSucceeded, desc, true, metadata)

	// Confirmation is best effort; a delivery failure never fails the webhook
	go f.sendConfirmation(account, paidUntil)

	return true
}

func (f *WebhookFlowImpl) handlePaymentFailed(ctx context.Context, event *dto.PaymentWebhookEvent, metadata *ClientMetadata) bool {
	var accountID *uint
	if event.Data.AccountID != "" {
		if account, err := f.accountRepo.ByUUID(ctx, event.Data.AccountID); err == nil && account != nil {
			accountID = &account.ID
		}
	}

	desc := fmt.Sprintf("payment failed: reference=%s reason=%s", event.Data.Reference, event.Data.Reason)
	_ = f.createAuditLog(ctx, accountID, models.AuditActionPaymentFailed, desc, true, metadata)
	return true
}

func (f *WebhookFlowImpl) sendConfirmation(account *models.Account, paidUntil time.Time) {
	if account.Email == nil {
		return
	}

	body := fmt.Sprintf("Your PrimeFit subscription is active until %s.", paidUntil.Format("2006-01-02 15:04"))
	if err := f.notificationSvc.SendEmail(*account.Email, "Payment received", body); err != nil {
		log.Printf("payment confirmation email failed: account=%d err=%v", account.ID, err)
	}
}

func (f *WebhookFlowImpl) createAuditLog(ctx context.Context, accountID *uint, action, description string, success bool, metadata *ClientMetadata) error {
	ipAddress := "127.0.0.1"
	userAgent := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
	}

	audit := &models.AuditLog{
		AccountID:   accountID,
		Action:      action,
		Description: &description,
		Success:     utils.ToPtr(success),
		IPAddress:   &ipAddress,
		UserAgent:   &userAgent,
	}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		audit.RequestID = &requestID
	} else if metadata != nil && metadata.RequestID != "" {
		audit.RequestID = &metadata.RequestID
	}

	return f.auditRepo.Save(ctx, audit)
}
