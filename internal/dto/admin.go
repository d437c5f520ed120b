package dto

import "github.com/noah-isme/transcript-review-api/internal/models"

// UpdateRoleRequest changes a user's role.
type UpdateRoleRequest struct {
	UserID string          `json:"userId" form:"userId" validate:"required,uuid"`
	Role   models.UserRole `json:"role" form:"role" validate:"required,oneof=USER ANNOTATOR REVIEWER ADMIN"`
}

// UpdateRoleResponse echoes the updated user.
type UpdateRoleResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	User    models.User `json:"user"`
}

// AdminDashboardResponse aggregates the admin screen payload.
type AdminDashboardResponse struct {
	User  models.User       `json:"user"`
	Users []models.User     `json:"users"`
	Stats models.QueueStats `json:"stats"`
}
