package dto

// Webhook event types sent by the payment provider
const (
	WebhookEventPaymentSuccess     = "payment.success"
	WebhookEventPaymentFailed      = "payment.failed"
	WebhookEventSubscriptionCreate = "subscription.create"
	WebhookEventSubscriptionStop   = "subscription.disable"
)

// PaymentWebhookEvent is the provider's envelope. Field names follow the
// provider's wire format, not ours.
type PaymentWebhookEvent struct {
	Type string             `json:"type"`
	Data PaymentWebhookData `json:"data"`
}

// PaymentWebhookData carries the event payload. AccountID and AccountEmail
// are both required for payment.success; Amount is in minor currency units.
type PaymentWebhookData struct {
	AccountID    string `json:"accountId"`
	AccountEmail string `json:"accountEmail"`
	Reference    string `json:"reference"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency,omitempty"`
	PaidAt       int64  `json:"paidAt,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// WebhookAckResponse tells the provider whether the event was accepted.
// Anything but accepted=true triggers a provider-side retry.
type WebhookAckResponse struct {
	Accepted bool `json:"accepted"`
}
