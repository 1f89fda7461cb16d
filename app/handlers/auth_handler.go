// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/primefit/primefit-api/app/dto"
	businessflow "github.com/primefit/primefit-api/business_flow"
	"github.com/primefit/primefit-api/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// AuthHandlerInterface defines the contract for authentication handlers
type AuthHandlerInterface interface {
	Register(c fiber.Ctx) error
	VerifyOTP(c fiber.Ctx) error
	ResendOTP(c fiber.Ctx) error
	Login(c fiber.Ctx) error
	LoginResend(c fiber.Ctx) error
	LoginVerify(c fiber.Ctx) error
	Health(c fiber.Ctx) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	registrationFlow businessflow.RegistrationFlow
	twoFactorFlow    businessflow.TwoFactorFlow
	validator        *validator.Validate
}

func (h *AuthHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *AuthHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(registrationFlow businessflow.RegistrationFlow, twoFactorFlow businessflow.TwoFactorFlow) *AuthHandler {
	handler := &AuthHandler{
		registrationFlow: registrationFlow,
		twoFactorFlow:    twoFactorFlow,
		validator:        validator.New(),
	}

	handler.setupCustomValidations()

	return handler
}

// Register handles the account registration process
// @Summary Account Registration
// @Description Register a new account with phone verification
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body dto.RegisterRequest true "Account registration data"
// @Success 200 {object} dto.APIResponse{data=dto.RegisterResponse} "Registration initiated successfully"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 409 {object} dto.APIResponse "Account already exists"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if strings.TrimSpace(req.PhoneNumber) == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Phone number is required", dto.ErrorCodeValidation, nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", dto.ErrorCodeValidation, validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get(businessflow.RequestIDKey))

	result, err := h.registrationFlow.Register(h.createRequestContext(c, "/api/v1/auth/register"), &req, metadata)
	if err != nil {
		if businessflow.IsPhoneNumberRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Phone number is required", dto.ErrorCodeValidation, nil)
		}
		if businessflow.IsInvalidPhoneNumber(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid phone number", dto.ErrorCodeValidation, nil)
		}
		if businessflow.IsPhoneAlreadyExists(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "An account with this phone number already exists", dto.ErrorCodeDuplicatePhone, nil)
		}
		if businessflow.IsEmailAlreadyExists(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "An account with this email address already exists", dto.ErrorCodeDuplicateEmail, nil)
		}
		if businessflow.IsOTPRateLimited(err) {
			return h.ErrorResponse(c, fiber.StatusTooManyRequests, "Too many code requests, please wait before retrying", dto.ErrorCodeRateLimited, nil)
		}
		if businessflow.IsOTPDeliveryFailed(err) {
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Failed to deliver verification code", dto.ErrorCodeDeliveryFailed, nil)
		}

		log.Println("Registration failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Registration failed", "REGISTRATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Registration initiated. Verification code sent to your phone.", result)
}

// VerifyOTP handles signup code verification and completes registration
// @Summary Verify Signup Code
// @Description Verify the code sent to the account's phone number
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body dto.VerifyOTPRequest true "OTP verification data"
// @Success 200 {object} dto.APIResponse{data=dto.AuthResultResponse} "Registration completed"
// @Failure 400 {object} dto.APIResponse "Invalid code or request"
// @Failure 404 {object} dto.APIResponse "Account not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/auth/register/verify [post]
func (h *AuthHandler) VerifyOTP(c fiber.Ctx) error {
	var req dto.VerifyOTPRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", dto.ErrorCodeValidation, validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get(businessflow.RequestIDKey))

	result, err := h.registrationFlow.VerifyOTP(h.createRequestContext(c, "/api/v1/auth/register/verify"), &req, metadata)
	if err != nil {
		if businessflow.IsAccountNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Account not found", dto.ErrorCodeAccountNotFound, nil)
		}
		if businessflow.IsAlreadyVerified(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Account is already verified", "ACCOUNT_ALREADY_VERIFIED", nil)
		}
		if businessflow.IsInvalidOTPCode(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid verification code", dto.ErrorCodeInvalidOTP, nil)
		}
		if businessflow.IsOTPDeliveryFailed(err) {
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Verification is temporarily unavailable", dto.ErrorCodeDeliveryFailed, nil)
		}

		log.Println("OTP verification failed", err)
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Verification failed", "OTP_VERIFICATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Registration completed successfully!", result)
}

// ResendOTP handles resending the signup code
// @Summary Resend Signup Code
// @Description Resend the verification code to the account's phone number
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body dto.ResendOTPRequest true "OTP resend request"
// @Success 200 {object} dto.APIResponse{data=dto.RegisterResponse} "Code resent"
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Failure 404 {object} dto.APIResponse "Account not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/auth/register/resend [post]
func (h *AuthHandler) ResendOTP(c fiber.Ctx) error {
	var req dto.ResendOTPRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get(businessflow.RequestIDKey))

	result, err := h.registrationFlow.ResendOTP(h.createRequestContext(c, "/api/v1/auth/register/resend"), &req, metadata)
	if err != nil {
		if businessflow.IsAccountNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Account not found", dto.ErrorCodeAccountNotFound, nil)
		}
		if businessflow.IsAlreadyVerified(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Account is already verified", "ACCOUNT_ALREADY_VERIFIED", nil)
		}
		if businessflow.IsOTPRateLimited(err) {
			return h.ErrorResponse(c, fiber.StatusTooManyRequests, "Too many code requests, please wait before retrying", dto.ErrorCodeRateLimited, nil)
		}
		if businessflow.IsOTPDeliveryFailed(err) {
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Failed to deliver verification code", dto.ErrorCodeDeliveryFailed, nil)
		}

		log.Println("Resend OTP failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to resend code", "RESEND_OTP_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Verification code resent", result)
}

// Login handles the first factor of authentication
// @Summary Account Login
// @Description Verify password and dispatch the second factor code
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Login credentials"
// @Success 200 {object} dto.APIResponse{data=dto.LoginChallengeResponse} "Second factor dispatched"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Invalid credentials"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", dto.ErrorCodeValidation, validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get(businessflow.RequestIDKey))

	result, err := h.twoFactorFlow.Login(h.createRequestContext(c, "/api/v1/auth/login"), &req, metadata)
	if err != nil {
		// Unknown identifier and wrong password produce the same response so
		// the endpoint cannot be used to enumerate accounts
		if businessflow.IsAccountNotFound(err) || businessflow.IsIncorrectPassword(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid credentials", "INVALID_CREDENTIALS", nil)
		}
		if businessflow.IsAccountInactive(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Account is inactive", dto.ErrorCodeAccountInactive, nil)
		}
		if businessflow.IsOTPRateLimited(err) {
			return h.ErrorResponse(c, fiber.StatusTooManyRequests, "Too many code requests, please wait before retrying", dto.ErrorCodeRateLimited, nil)
		}
		if businessflow.IsOTPDeliveryFailed(err) {
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Failed to deliver verification code", dto.ErrorCodeDeliveryFailed, nil)
		}
		if businessflow.IsStoreUnavailable(err) {
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Service is temporarily unavailable", dto.ErrorCodeStoreUnavailable, nil)
		}

		log.Println("Login failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Login failed", "LOGIN_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Verification code sent", result)
}

// LoginResend handles resending the second factor code
// @Summary Resend Login Code
// @Description Resend the second factor code for an in-flight login
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body dto.LoginResendRequest true "Login resend request"
// @Success 200 {object} dto.APIResponse{data=dto.LoginChallengeResponse} "Code resent"
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Failure 404 {object} dto.APIResponse "Login session not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/auth/login/resend [post]
func (h *AuthHandler) LoginResend(c fiber.Ctx) error {
	var req dto.LoginResendRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", dto.ErrorCodeValidation, validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get(businessflow.RequestIDKey))

	result, err := h.twoFactorFlow.ResendCode(h.createRequestContext(c, "/api/v1/auth/login/resend"), &req, metadata)
	if err != nil {
		if businessflow.IsLoginSessionNotFound(err) || businessflow.IsNotPasswordVerified(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Login session not found", dto.ErrorCodeSessionNotFound, nil)
		}
		if businessflow.IsOTPRateLimited(err) {
			return h.ErrorResponse(c, fiber.StatusTooManyRequests, "Too many code requests, please wait before retrying", dto.ErrorCodeRateLimited, nil)
		}
		if businessflow.IsOTPDeliveryFailed(err) {
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Failed to deliver verification code", dto.ErrorCodeDeliveryFailed, nil)
		}

		log.Println("Login resend failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to resend code", "RESEND_OTP_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Verification code resent", result)
}

// LoginVerify handles the second factor of authentication
// @Summary Verify Login Code
// @Description Verify the second factor code and complete authentication
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body dto.LoginVerifyRequest true "Login verification data"
// @Success 200 {object} dto.APIResponse{data=dto.AuthResultResponse} "Login successful"
// @Failure 400 {object} dto.APIResponse "Invalid code"
// @Failure 404 {object} dto.APIResponse "Login session not found"
// @Failure 410 {object} dto.APIResponse "Verification window expired"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/auth/login/verify [post]
func (h *AuthHandler) LoginVerify(c fiber.Ctx) error {
	var req dto.LoginVerifyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", dto.ErrorCodeValidation, validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get(businessflow.RequestIDKey))

	result, err := h.twoFactorFlow.VerifyCode(h.createRequestContext(c, "/api/v1/auth/login/verify"), &req, metadata)
	if err != nil {
		if businessflow.IsLoginSessionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Login session not found", dto.ErrorCodeSessionNotFound, nil)
		}
		if businessflow.IsVerificationExpired(err) {
			return h.ErrorResponse(c, fiber.StatusGone, "Verification window expired, please log in again", dto.ErrorCodeSessionExpired, nil)
		}
		if businessflow.IsInvalidOTPCode(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid verification code", dto.ErrorCodeInvalidOTP, nil)
		}
		if businessflow.IsNotPasswordVerified(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Verification failed", "VERIFICATION_FAILED", nil)
		}
		if businessflow.IsOTPDeliveryFailed(err) {
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Verification is temporarily unavailable", dto.ErrorCodeDeliveryFailed, nil)
		}

		log.Println("Login verification failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Login failed", "LOGIN_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Login successful", result)
}

// Health handles health check requests
// @Summary Health Check
// @Description Check the health status of the API
// @Tags Health
// @Accept json
// @Produce json
// @Success 200 {object} dto.APIResponse "Service is healthy"
// @Router /api/v1/health [get]
func (h *AuthHandler) Health(c fiber.Ctx) error {
	return h.SuccessResponse(c, fiber.StatusOK, "Auth service is healthy", fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   "auth-handler",
	})
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *AuthHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

// Custom validation setup
func (h *AuthHandler) setupCustomValidations() {
	// Phone numbers must normalize to E.164
	h.validator.RegisterValidation("phone_number", func(fl validator.FieldLevel) bool {
		_, err := utils.NormalizePhone(fl.Field().String(), utils.DefaultCountryCode)
		return err == nil
	})

	h.validator.RegisterValidation("password_strength", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()

		hasUpper := false
		hasNumber := false

		for _, char := range value {
			if char >= 'A' && char <= 'Z' {
				hasUpper = true
			}
			if char >= '0' && char <= '9' {
				hasNumber = true
			}
		}

		return hasUpper && hasNumber
	})

	h.validator.RegisterValidation("numeric", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		for _, char := range value {
			if char < '0' || char > '9' {
				return false
			}
		}
		return true
	})
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return err.Field() + " must be at least " + err.Param() + " characters"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "len":
		return err.Field() + " must be exactly " + err.Param() + " characters"
	case "eqfield":
		return err.Field() + " must match " + err.Param()
	case "phone_number":
		return "Phone number must be a valid international number"
	case "password_strength":
		return "Password must contain at least 1 uppercase letter and 1 number"
	case "numeric":
		return err.Field() + " must contain only numbers"
	case "uuid4":
		return err.Field() + " must be a valid UUID"
	default:
		return err.Field() + " is invalid"
	}
}
