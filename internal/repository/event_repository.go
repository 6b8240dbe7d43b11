package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/uniplan/uniplan-api/internal/models"
)

const eventColumns = "id, subject_id, title, kind, occurs_at, weight, created_at, updated_at"

// EventRepository handles persistence for events and their grade ledger.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// List returns events matching the filter together with the total count.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	base := "FROM events WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)+1))
		args = append(args, filter.Kind)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"title": true, "occurs_at": true, "created_at": true}
	if !allowedSorts[sortBy] {
		sortBy = "occurs_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", eventColumns, base, sortBy, order, size, offset)

	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	return events, total, nil
}

// FindByID loads an event by identifier, without its grade ledger.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	query := fmt.Sprintf("SELECT %s FROM events WHERE id = $1", eventColumns)
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// Create inserts a new event record.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	const query = `INSERT INTO events (id, subject_id, title, kind, occurs_at, weight, created_at, updated_at)
        VALUES (:id, :subject_id, :title, :kind, :occurs_at, :weight, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// Update modifies an existing event.
func (r *EventRepository) Update(ctx context.Context, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()
	const query = `UPDATE events SET subject_id = :subject_id, title = :title, kind = :kind, occurs_at = :occurs_at, weight = :weight, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// Delete removes the event. Grade records cascade at the schema level, and
// the subject link disappears with the row itself.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// Grades returns the event's grade ledger, oldest first.
func (r *EventRepository) Grades(ctx context.Context, eventID string) ([]models.GradeRecord, error) {
	var grades []models.GradeRecord
	if err := r.db.SelectContext(ctx, &grades,
		`SELECT id, event_id, user_id, grade, created_at FROM event_grades WHERE event_id = $1 ORDER BY created_at`,
		eventID); err != nil {
		return nil, fmt.Errorf("list event grades: %w", err)
	}
	return grades, nil
}

// AppendGrade inserts one grade record. The composite (event, user)
// uniqueness lives in the schema, so a concurrent duplicate cannot slip past
// the insert: ON CONFLICT DO NOTHING turns it into zero affected rows, which
// is reported through the returned flag.
func (r *EventRepository) AppendGrade(ctx context.Context, record *models.GradeRecord) (bool, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO event_grades (id, event_id, user_id, grade, created_at) VALUES ($1, $2, $3, $4, $5)
         ON CONFLICT (event_id, user_id) DO NOTHING`,
		record.ID, record.EventID, record.UserID, record.Grade, record.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("append grade: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append grade: %w", err)
	}
	return affected > 0, nil
}

// AppendGrades inserts a batch of grade records in one transaction. Any
// duplicate aborts the whole batch; the index of the offending record is
// returned alongside the error flag.
func (r *EventRepository) AppendGrades(ctx context.Context, records []models.GradeRecord) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return -1, fmt.Errorf("begin grade batch: %w", err)
	}
	now := time.Now().UTC()
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		if records[i].CreatedAt.IsZero() {
			records[i].CreatedAt = now
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO event_grades (id, event_id, user_id, grade, created_at) VALUES ($1, $2, $3, $4, $5)
             ON CONFLICT (event_id, user_id) DO NOTHING`,
			records[i].ID, records[i].EventID, records[i].UserID, records[i].Grade, records[i].CreatedAt)
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return i, fmt.Errorf("append grade batch: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return i, fmt.Errorf("append grade batch: %w", err)
		}
		if affected == 0 {
			tx.Rollback() //nolint:errcheck
			return i, nil
		}
	}
	if err := tx.Commit(); err != nil {
		return -1, fmt.Errorf("commit grade batch: %w", err)
	}
	return -1, nil
}

// WeightedGradesForUser returns (grade, weight) rows for every evaluated
// event of the subject on which the user has a recorded grade. Input of the
// subject average computation.
func (r *EventRepository) WeightedGradesForUser(ctx context.Context, subjectID, userID string) ([]models.WeightedGrade, error) {
	var rows []models.WeightedGrade
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT g.grade, e.weight FROM events e
         JOIN event_grades g ON g.event_id = e.id AND g.user_id = $2
         WHERE e.subject_id = $1 AND e.kind = 'evaluated' AND e.weight IS NOT NULL
         ORDER BY e.occurs_at`,
		subjectID, userID); err != nil {
		return nil, fmt.Errorf("load weighted grades: %w", err)
	}
	return rows, nil
}

// ListBySubject loads all events attached to the subject, oldest first.
func (r *EventRepository) ListBySubject(ctx context.Context, subjectID string) ([]models.Event, error) {
	query := fmt.Sprintf("SELECT %s FROM events WHERE subject_id = $1 ORDER BY occurs_at", eventColumns)
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, subjectID); err != nil {
		return nil, fmt.Errorf("list events by subject: %w", err)
	}
	return events, nil
}
