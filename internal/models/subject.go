package models

import "time"

// Subject is a course attached to a semester. The course code is normalised
// to uppercase and unique across the whole system.
type Subject struct {
	ID         string    `db:"id" json:"id"`
	SemesterID string    `db:"semester_id" json:"semester_id"`
	Name       string    `db:"name" json:"name"`
	Code       string    `db:"code" json:"code"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`

	EventIDs []string `db:"-" json:"events,omitempty"`
}

// SubjectAverage is the result of the weighted average computation for one
// subject, scoped to a single user.
type SubjectAverage struct {
	SubjectID string  `json:"subject_id"`
	UserID    string  `json:"user_id"`
	Average   float64 `json:"average"`
}

// SubjectFilter defines filters supported by the list endpoint.
type SubjectFilter struct {
	SemesterID string
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
