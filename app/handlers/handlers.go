package handlers

import (
	"context"
	"time"

	businessflow "github.com/primefit/primefit-api/business_flow"
	"github.com/gofiber/fiber/v3"
)

const webhookTimeout = 30 * time.Second

// createRequestContextWithTimeout creates a context with a deadline and the
// request-scoped values the flows read for audit logging.
func createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	if requestID := c.Get(businessflow.RequestIDKey); requestID != "" {
		ctx = context.WithValue(ctx, businessflow.RequestIDKey, requestID)
	}
	ctx = context.WithValue(ctx, "endpoint", endpoint)
	ctx = context.WithValue(ctx, "cancel_func", cancel) // Store cancel function for cleanup

	return ctx
}
