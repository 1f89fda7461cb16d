package handlers

import (
	"github.com/primefit/primefit-api/app/dto"
	"github.com/primefit/primefit-api/app/middleware"
	businessflow "github.com/primefit/primefit-api/business_flow"
	"github.com/gofiber/fiber/v3"
)

// WebhookHandlerInterface defines the contract for webhook handlers
type WebhookHandlerInterface interface {
	PaymentWebhook(c fiber.Ctx) error
}

// WebhookHandler handles payment provider callbacks
type WebhookHandler struct {
	webhookFlow     businessflow.WebhookFlow
	signatureHeader string
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(webhookFlow businessflow.WebhookFlow, signatureHeader string) *WebhookHandler {
	if signatureHeader == "" {
		signatureHeader = "X-Webhook-Signature"
	}
	return &WebhookHandler{
		webhookFlow:     webhookFlow,
		signatureHeader: signatureHeader,
	}
}

// PaymentWebhook handles signed payment provider events
// @Summary Payment Webhook
// @Description Receive signed payment events from the provider
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param X-Webhook-Signature header string true "HMAC-SHA512 hex digest of the body"
// @Success 200 {object} dto.WebhookAckResponse "Event accepted"
// @Failure 400 {object} dto.WebhookAckResponse "Event rejected"
// @Router /api/v1/webhooks/payments [post]
func (h *WebhookHandler) PaymentWebhook(c fiber.Ctx) error {
	// The signature covers the raw body bytes, so the payload must not be
	// parsed or re-encoded before verification
	payload := c.Body()
	signature := c.Get(h.signatureHeader)

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get(businessflow.RequestIDKey))

	accepted := h.webhookFlow.Process(createRequestContextWithTimeout(c, "/api/v1/webhooks/payments", webhookTimeout), payload, signature, metadata)
	middleware.RecordWebhookResult(accepted)

	if !accepted {
		return c.Status(fiber.StatusBadRequest).JSON(dto.WebhookAckResponse{Accepted: false})
	}
	return c.Status(fiber.StatusOK).JSON(dto.WebhookAckResponse{Accepted: true})
}
