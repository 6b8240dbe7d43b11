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

const semesterColumns = "id, name, year, start_date, end_date, owner_id, created_at, updated_at"

// SemesterRepository handles persistence for semesters and the
// user<->semester membership link.
type SemesterRepository struct {
	db *sqlx.DB
}

// NewSemesterRepository creates a new semester repository.
func NewSemesterRepository(db *sqlx.DB) *SemesterRepository {
	return &SemesterRepository{db: db}
}

// List returns semesters matching the filter together with the total count.
func (r *SemesterRepository) List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, int, error) {
	base := "FROM semesters WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Year != nil {
		conditions = append(conditions, fmt.Sprintf("year = $%d", len(args)+1))
		args = append(args, *filter.Year)
	}
	if filter.OwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)+1))
		args = append(args, filter.OwnerID)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"name": true, "year": true, "start_date": true, "created_at": true}
	if !allowedSorts[sortBy] {
		sortBy = "start_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", semesterColumns, base, sortBy, order, size, offset)

	var semesters []models.Semester
	if err := r.db.SelectContext(ctx, &semesters, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list semesters: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count semesters: %w", err)
	}

	return semesters, total, nil
}

// FindByID loads a semester by identifier.
func (r *SemesterRepository) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	query := fmt.Sprintf("SELECT %s FROM semesters WHERE id = $1", semesterColumns)
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, id); err != nil {
		return nil, err
	}
	return &semester, nil
}

// Create inserts a new semester record.
func (r *SemesterRepository) Create(ctx context.Context, semester *models.Semester) error {
	if semester.ID == "" {
		semester.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if semester.CreatedAt.IsZero() {
		semester.CreatedAt = now
	}
	semester.UpdatedAt = now

	const query = `INSERT INTO semesters (id, name, year, start_date, end_date, owner_id, created_at, updated_at)
        VALUES (:id, :name, :year, :start_date, :end_date, :owner_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, semester); err != nil {
		return fmt.Errorf("create semester: %w", err)
	}
	return nil
}

// Update modifies an existing semester.
func (r *SemesterRepository) Update(ctx context.Context, semester *models.Semester) error {
	semester.UpdatedAt = time.Now().UTC()
	const query = `UPDATE semesters SET name = :name, year = :year, start_date = :start_date, end_date = :end_date, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, semester); err != nil {
		return fmt.Errorf("update semester: %w", err)
	}
	return nil
}

// Delete removes a semester. Memberships and subjects cascade at the schema
// level.
func (r *SemesterRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM semesters WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete semester: %w", err)
	}
	return nil
}

// AddUser enrolls the user into the semester. The insert is a set-add: a
// second enrollment of the same pair is a no-op, reported through the
// returned flag.
func (r *SemesterRepository) AddUser(ctx context.Context, semesterID, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO semester_users (semester_id, user_id, joined_at) VALUES ($1, $2, $3)
         ON CONFLICT (semester_id, user_id) DO NOTHING`,
		semesterID, userID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("enroll user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enroll user: %w", err)
	}
	return affected > 0, nil
}

// RemoveUser un-enrolls the user from the semester. One delete removes the
// membership from both sides at once.
func (r *SemesterRepository) RemoveUser(ctx context.Context, semesterID, userID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM semester_users WHERE semester_id = $1 AND user_id = $2`,
		semesterID, userID); err != nil {
		return fmt.Errorf("unenroll user: %w", err)
	}
	return nil
}

// UserIDs lists the users enrolled in the semester.
func (r *SemesterRepository) UserIDs(ctx context.Context, semesterID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM semester_users WHERE semester_id = $1 ORDER BY joined_at`, semesterID); err != nil {
		return nil, fmt.Errorf("list semester users: %w", err)
	}
	return ids, nil
}

// SemesterIDsByUser lists the semesters the user is enrolled in.
func (r *SemesterRepository) SemesterIDsByUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids,
		`SELECT semester_id FROM semester_users WHERE user_id = $1 ORDER BY joined_at`, userID); err != nil {
		return nil, fmt.Errorf("list user semesters: %w", err)
	}
	return ids, nil
}

// ListByUser loads the full semester records the user is enrolled in.
func (r *SemesterRepository) ListByUser(ctx context.Context, userID string) ([]models.Semester, error) {
	query := fmt.Sprintf(`SELECT s.%s FROM semesters s
        JOIN semester_users su ON su.semester_id = s.id
        WHERE su.user_id = $1 ORDER BY s.start_date DESC`,
		strings.ReplaceAll(semesterColumns, ", ", ", s."))
	var semesters []models.Semester
	if err := r.db.SelectContext(ctx, &semesters, query, userID); err != nil {
		return nil, fmt.Errorf("list semesters by user: %w", err)
	}
	return semesters, nil
}
