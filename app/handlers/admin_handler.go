package handlers

import (
	"log"
	"time"

	"github.com/primefit/primefit-api/app/dto"
	"github.com/primefit/primefit-api/app/middleware"
	businessflow "github.com/primefit/primefit-api/business_flow"
	"github.com/gofiber/fiber/v3"
)

// AdminHandlerInterface defines the contract for admin handlers
type AdminHandlerInterface interface {
	EnableAccount(c fiber.Ctx) error
	DisableAccount(c fiber.Ctx) error
}

// AdminHandler handles administrative account management requests
type AdminHandler struct {
	adminFlow businessflow.AdminFlow
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(adminFlow businessflow.AdminFlow) *AdminHandler {
	return &AdminHandler{adminFlow: adminFlow}
}

// EnableAccount re-activates a disabled account
// @Summary Enable Account
// @Description Enable an account by its public UUID
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param uuid path string true "Account UUID"
// @Success 200 {object} dto.APIResponse{data=dto.AdminAccountActionResponse} "Account enabled"
// @Failure 403 {object} dto.APIResponse "Admin privileges required"
// @Failure 404 {object} dto.APIResponse "Account not found"
// @Router /api/v1/admin/accounts/{uuid}/enable [post]
func (h *AdminHandler) EnableAccount(c fiber.Ctx) error {
	return h.setActive(c, true, "/api/v1/admin/accounts/:uuid/enable")
}

// DisableAccount deactivates an account and expires its sessions
// @Summary Disable Account
// @Description Disable an account by its public UUID
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param uuid path string true "Account UUID"
// @Success 200 {object} dto.APIResponse{data=dto.AdminAccountActionResponse} "Account disabled"
// @Failure 403 {object} dto.APIResponse "Admin privileges required"
// @Failure 404 {object} dto.APIResponse "Account not found"
// @Router /api/v1/admin/accounts/{uuid}/disable [post]
func (h *AdminHandler) DisableAccount(c fiber.Ctx) error {
	return h.setActive(c, false, "/api/v1/admin/accounts/:uuid/disable")
}

func (h *AdminHandler) setActive(c fiber.Ctx, active bool, endpoint string) error {
	actingID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "Authentication required",
			Error:   dto.ErrorDetail{Code: "UNAUTHENTICATED"},
		})
	}

	targetUUID := c.Params("uuid")
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get(businessflow.RequestIDKey))

	result, err := h.adminFlow.SetAccountActive(createRequestContextWithTimeout(c, endpoint, 15*time.Second), actingID, targetUUID, active, metadata)
	if err != nil {
		if businessflow.IsAdminRequired(err) {
			return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
				Success: false,
				Message: "Admin privileges required",
				Error:   dto.ErrorDetail{Code: dto.ErrorCodeAdminRequired},
			})
		}
		if businessflow.IsAccountNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
				Success: false,
				Message: "Account not found",
				Error:   dto.ErrorDetail{Code: dto.ErrorCodeAccountNotFound},
			})
		}

		log.Println("Admin account action failed", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{
			Success: false,
			Message: "Admin action failed",
			Error:   dto.ErrorDetail{Code: dto.ErrorCodeInternal},
		})
	}

	message := "Account enabled"
	if !active {
		message = "Account disabled"
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    result,
	})
}
