package dto

// AdminAccountActionResponse is returned after an admin enables or disables an account
type AdminAccountActionResponse struct {
	AccountUUID string `json:"account_uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	IsActive    bool   `json:"is_active" example:"false"`
	UpdatedAt   string `json:"updated_at" example:"2024-01-15T16:30:00Z"`
}

// Error codes for admin operations
const (
	ErrorCodeAdminRequired = "ADMIN_REQUIRED"
)
