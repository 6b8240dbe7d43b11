package models

import "time"

// CreateSemesterRequest holds the payload for creating a semester.
type CreateSemesterRequest struct {
	Name      string    `json:"name" validate:"required"`
	Year      int       `json:"year" validate:"required,gte=1900"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// UpdateSemesterRequest holds the mutable semester fields. Nil fields are
// left untouched.
type UpdateSemesterRequest struct {
	Name      *string    `json:"name,omitempty"`
	Year      *int       `json:"year,omitempty" validate:"omitempty,gte=1900"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// CreateSubjectRequest holds the payload for attaching a subject to a
// semester.
type CreateSubjectRequest struct {
	Name string `json:"name" validate:"required"`
	Code string `json:"code" validate:"required,min=2"`
}

// UpdateSubjectRequest holds the mutable subject fields.
type UpdateSubjectRequest struct {
	Name *string `json:"name,omitempty"`
	Code *string `json:"code,omitempty" validate:"omitempty,min=2"`
}

// CreateEventRequest holds the payload for creating an event.
type CreateEventRequest struct {
	SubjectID *string   `json:"subject_id,omitempty"`
	Title     string    `json:"title" validate:"required"`
	Kind      EventKind `json:"kind" validate:"required"`
	OccursAt  time.Time `json:"occurs_at" validate:"required"`
	Weight    *float64  `json:"weight,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// UpdateEventRequest holds the mutable event fields. SubjectID attaches the
// event to a subject or moves it; an empty string detaches it.
type UpdateEventRequest struct {
	SubjectID *string    `json:"subject_id,omitempty"`
	Title     *string    `json:"title,omitempty"`
	Kind      *EventKind `json:"kind,omitempty"`
	OccursAt  *time.Time `json:"occurs_at,omitempty"`
	Weight    *float64   `json:"weight,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// GradeRequest records one user's grade on an event.
type GradeRequest struct {
	UserID string  `json:"user_id" validate:"required"`
	Grade  float64 `json:"grade" validate:"gte=0,lte=100"`
}

// BatchGradeRequest records grades for several users at once.
type BatchGradeRequest struct {
	Grades []GradeRequest `json:"grades" validate:"required,min=1,dive"`
}

// UpdateUserRequest holds the mutable user profile fields.
type UpdateUserRequest struct {
	Name      *string `json:"name,omitempty"`
	Email     *string `json:"email,omitempty" validate:"omitempty,email"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// AssignRoleRequest reassigns the user's role.
type AssignRoleRequest struct {
	Role UserRole `json:"role" validate:"required"`
}

// NotificationTokenRequest registers or clears a push delivery token. An
// empty token clears the registration.
type NotificationTokenRequest struct {
	Token string `json:"token"`
}

// EnrollmentRequest links a user to a semester.
type EnrollmentRequest struct {
	SemesterID string `json:"semester_id" validate:"required"`
}
