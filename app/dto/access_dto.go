package dto

// ContentAccessResponse summarizes an account's standing for the client UI
type ContentAccessResponse struct {
	HasContentAccess      bool            `json:"has_content_access" example:"true"`
	NeedsSubscription     bool            `json:"needs_subscription" example:"false"`
	IsOnTrial             bool            `json:"is_on_trial" example:"true"`
	HasActiveSubscription bool            `json:"has_active_subscription" example:"false"`
	TrialMessage          string          `json:"trial_message,omitempty" example:"Free trial ends at 2024-01-17 10:30"`
	StatusMessage         string          `json:"status_message" example:"Free trial ends at 2024-01-17 10:30"`
	Features              map[string]bool `json:"features"`
}
