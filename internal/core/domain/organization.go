package domain

import "time"

// OrganizationMembership is a privileged bootstrap read: the caller needs a
// membership list to pick a tenant before any tenant context can exist.
type OrganizationMembership struct {
	OrganizationID   string    `json:"organization_id"`
	OrganizationName string    `json:"organization_name"`
	UserID           string    `json:"user_id"`
	Role             string    `json:"role"`
	IsDefault        bool      `json:"is_default"`
	CreatedAt        time.Time `json:"created_at"`
}

type StaffProfile struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Title       string    `json:"title,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
