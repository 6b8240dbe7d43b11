package models

import "time"

// EventKind distinguishes graded activities from plain calendar entries.
type EventKind string

const (
	EventEvaluated    EventKind = "evaluated"
	EventNotEvaluated EventKind = "not_evaluated"
)

// Valid reports whether the kind is a recognised value.
func (k EventKind) Valid() bool {
	return k == EventEvaluated || k == EventNotEvaluated
}

// Event is a dated activity, optionally owned by a subject. Weight is only
// meaningful (and required) for evaluated events and lives in [0,100].
type Event struct {
	ID        string    `db:"id" json:"id"`
	SubjectID *string   `db:"subject_id" json:"subject_id,omitempty"`
	Title     string    `db:"title" json:"title"`
	Kind      EventKind `db:"kind" json:"kind"`
	OccursAt  time.Time `db:"occurs_at" json:"occurs_at"`
	Weight    *float64  `db:"weight" json:"weight,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Grades []GradeRecord `db:"-" json:"grades,omitempty"`
}

// IsEvaluated reports whether the event contributes to averages.
func (e *Event) IsEvaluated() bool {
	return e.Kind == EventEvaluated
}

// GradeFor returns the grade record for the given user, if any.
func (e *Event) GradeFor(userID string) (*GradeRecord, bool) {
	for i := range e.Grades {
		if e.Grades[i].UserID == userID {
			return &e.Grades[i], true
		}
	}
	return nil, false
}

// GradeRecord attaches one numeric grade to one user on one event. The
// (event, user) pair is unique; the storage layer enforces it.
type GradeRecord struct {
	ID        string    `db:"id" json:"id"`
	EventID   string    `db:"event_id" json:"event_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Grade     float64   `db:"grade" json:"grade"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TotalEvaluatedWeight sums the weight of evaluated events. Events without a
// weight contribute nothing.
func TotalEvaluatedWeight(events []Event) float64 {
	total := 0.0
	for i := range events {
		if events[i].Kind != EventEvaluated || events[i].Weight == nil {
			continue
		}
		total += *events[i].Weight
	}
	return total
}

// WeightedGrade pairs one user's grade on an evaluated event with the
// event's weight. Input row for the subject average computation.
type WeightedGrade struct {
	Grade  float64 `db:"grade"`
	Weight float64 `db:"weight"`
}

// EventFilter defines filters supported by the list endpoint.
type EventFilter struct {
	SubjectID string
	Kind      EventKind
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
