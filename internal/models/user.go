package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleStudent   UserRole = "student"
	RoleAdmin     UserRole = "admin"
	RoleProfessor UserRole = "professor"
)

// Valid reports whether the role is one of the recognised values.
func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleAdmin, RoleProfessor:
		return true
	}
	return false
}

// User represents an application user stored in the users table.
// GoogleID carries the external identity key; both it and the email are
// globally unique. The notification token is unique when present.
type User struct {
	ID                string    `db:"id" json:"id"`
	GoogleID          string    `db:"google_id" json:"google_id"`
	Email             string    `db:"email" json:"email"`
	Name              string    `db:"name" json:"name"`
	AvatarURL         *string   `db:"avatar_url" json:"avatar_url,omitempty"`
	PasswordHash      string    `db:"password_hash" json:"-"`
	Role              UserRole  `db:"role" json:"role"`
	NotificationToken *string   `db:"notification_token" json:"notification_token,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`

	// SemesterIDs holds the semesters the user is enrolled in. Populated
	// from the membership table on read paths that need it.
	SemesterIDs []string `db:"-" json:"semesters,omitempty"`
}

// HasNotificationToken reports whether a push token is registered.
func (u *User) HasNotificationToken() bool {
	return u != nil && u.NotificationToken != nil && *u.NotificationToken != ""
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
