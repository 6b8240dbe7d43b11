package models

import (
	"math"
	"time"
)

// Semester models an academic term owned by a user. Subjects and enrolled
// users reference the semester through their own tables; the ID slices here
// are populated on read paths that need the full picture.
type Semester struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Year      int       `db:"year" json:"year"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	SubjectIDs []string `db:"-" json:"subjects,omitempty"`
	UserIDs    []string `db:"-" json:"users,omitempty"`

	// WeeksDuration is derived from the start/end dates, never stored.
	WeeksDuration int `db:"-" json:"weeks_duration"`
}

// Weeks returns the term length in weeks, rounded up to whole weeks.
func (s *Semester) Weeks() int {
	return weeksBetween(s.StartDate, s.EndDate)
}

// CurrentWeek returns the 1-based week of the term containing now. Zero when
// the term has not started yet.
func (s *Semester) CurrentWeek(now time.Time) int {
	if now.Before(s.StartDate) {
		return 0
	}
	return weeksBetween(s.StartDate, now)
}

func weeksBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	days := to.Sub(from).Hours() / 24
	return int(math.Ceil(days / 7))
}

// SemesterSummary is the enriched per-user view of a semester.
type SemesterSummary struct {
	Semester
	CurrentWeek int     `json:"current_week"`
	Average     float64 `json:"average"`
}

// SemesterFilter defines filters supported by the list endpoint.
type SemesterFilter struct {
	Year      *int
	OwnerID   string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
