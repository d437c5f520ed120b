package models

import "time"

// UserRole represents the closed set of roles gating the workflow.
type UserRole string

const (
	RoleUser      UserRole = "USER"
	RoleAnnotator UserRole = "ANNOTATOR"
	RoleReviewer  UserRole = "REVIEWER"
	RoleAdmin     UserRole = "ADMIN"
)

// Roles lists every valid role in display order.
var Roles = []UserRole{RoleUser, RoleAnnotator, RoleReviewer, RoleAdmin}

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleUser, RoleAnnotator, RoleReviewer, RoleAdmin:
		return true
	default:
		return false
	}
}

// HomePath returns the screen a user with this role lands on.
func (r UserRole) HomePath() string {
	switch r {
	case RoleReviewer:
		return "/reviewer"
	case RoleAdmin:
		return "/admin"
	case RoleUser, RoleAnnotator:
		return "/"
	default:
		return "/"
	}
}

// WorkStage returns the queue this role draws work from.
func (r UserRole) WorkStage() (WorkStage, bool) {
	switch r {
	case RoleAnnotator:
		return StageAnnotation, true
	case RoleReviewer:
		return StageReview, true
	case RoleUser, RoleAdmin:
		return "", false
	default:
		return "", false
	}
}

// User represents an application user stored in the users table.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Username  string    `db:"username" json:"username"`
	Role      UserRole  `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
