package handlers

import (
	"log"
	"time"

	"github.com/primefit/primefit-api/app/dto"
	"github.com/primefit/primefit-api/app/middleware"
	businessflow "github.com/primefit/primefit-api/business_flow"
	"github.com/gofiber/fiber/v3"
)

// AccessHandlerInterface defines the contract for content access handlers
type AccessHandlerInterface interface {
	ContentAccess(c fiber.Ctx) error
}

// AccessHandler answers content access queries for authenticated accounts
type AccessHandler struct {
	accessFlow businessflow.AccessFlow
}

// NewAccessHandler creates a new access handler
func NewAccessHandler(accessFlow businessflow.AccessFlow) *AccessHandler {
	return &AccessHandler{accessFlow: accessFlow}
}

// ContentAccess reports the caller's access standing
// @Summary Content Access
// @Description Report trial, subscription and per-feature access for the caller
// @Tags Access
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.ContentAccessResponse} "Access standing"
// @Failure 401 {object} dto.APIResponse "Unauthenticated"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/content/access [get]
func (h *AccessHandler) ContentAccess(c fiber.Ctx) error {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "Authentication required",
			Error:   dto.ErrorDetail{Code: "UNAUTHENTICATED"},
		})
	}

	result, err := h.accessFlow.ContentAccess(createRequestContextWithTimeout(c, "/api/v1/content/access", 10*time.Second), accountID)
	if err != nil {
		if businessflow.IsAccountNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
				Success: false,
				Message: "Account not found",
				Error:   dto.ErrorDetail{Code: dto.ErrorCodeAccountNotFound},
			})
		}

		log.Println("Content access check failed", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{
			Success: false,
			Message: "Access check failed",
			Error:   dto.ErrorDetail{Code: dto.ErrorCodeInternal},
		})
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: result.StatusMessage,
		Data:    result,
	})
}
