package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/uniplan/uniplan-api/internal/models"
	appErrors "github.com/uniplan/uniplan-api/pkg/errors"
)

type subjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	ListBySemester(ctx context.Context, semesterID string) ([]models.Subject, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, id string) error
	EventIDs(ctx context.Context, subjectID string) ([]string, error)
}

type subjectEventRepository interface {
	WeightedGradesForUser(ctx context.Context, subjectID, userID string) ([]models.WeightedGrade, error)
	ListBySubject(ctx context.Context, subjectID string) ([]models.Event, error)
	Grades(ctx context.Context, eventID string) ([]models.GradeRecord, error)
}

type subjectSemesterRepository interface {
	FindByID(ctx context.Context, id string) (*models.Semester, error)
}

// SubjectService provides subject management and the per-user weighted
// average computation.
type SubjectService struct {
	repo      subjectRepository
	events    subjectEventRepository
	semesters subjectSemesterRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs a SubjectService instance.
func NewSubjectService(repo subjectRepository, events subjectEventRepository, semesters subjectSemesterRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SubjectService{repo: repo, events: events, semesters: semesters, cache: cache, validator: validate, logger: logger}
}

// Create attaches a new subject to the semester. The course code is
// normalised to uppercase and must be unique across all semesters.
func (s *SubjectService) Create(ctx context.Context, semesterID string, req models.CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	if _, err := s.semesters.FindByID(ctx, semesterID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	taken, err := s.repo.ExistsByCode(ctx, code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject code")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("subject code %s is already in use", code))
	}

	subject := &models.Subject{
		SemesterID: semesterID,
		Name:       req.Name,
		Code:       code,
	}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}

	s.logger.Info("subject created", zap.String("subject_id", subject.ID), zap.String("semester_id", semesterID))

	return subject, nil
}

// Get loads one subject with the identifiers of its events.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	eventIDs, err := s.repo.EventIDs(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject events")
	}
	subject.EventIDs = eventIDs

	return subject, nil
}

// List returns subjects matching the filter with pagination metadata.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, *models.Pagination, error) {
	subjects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	return subjects, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update modifies an existing subject. Code changes re-run the uniqueness
// check against every other subject.
func (s *SubjectService) Update(ctx context.Context, id string, req models.UpdateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	if req.Name != nil {
		subject.Name = *req.Name
	}
	if req.Code != nil {
		code := strings.ToUpper(strings.TrimSpace(*req.Code))
		taken, err := s.repo.ExistsByCode(ctx, code, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject code")
		}
		if taken {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("subject code %s is already in use", code))
		}
		subject.Code = code
	}

	if err := s.repo.Update(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}

	return subject, nil
}

// Delete removes the subject together with its events and their grades.
func (s *SubjectService) Delete(ctx context.Context, id string) error {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}

	s.invalidateAverages(ctx, subject)

	return nil
}

// Average computes the weighted average for the subject scoped to one user.
// Results are served from cache when enabled.
func (s *SubjectService) Average(ctx context.Context, subjectID, userID string) (*models.SubjectAverage, error) {
	if _, err := s.repo.FindByID(ctx, subjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	key := subjectAverageKey(subjectID, userID)
	var cached models.SubjectAverage
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	rows, err := s.events.WeightedGradesForUser(ctx, subjectID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}

	result := &models.SubjectAverage{
		SubjectID: subjectID,
		UserID:    userID,
		Average:   weightedAverage(rows),
	}

	if err := s.cache.Set(ctx, key, result, 0); err != nil {
		s.logger.Warn("failed to cache subject average", zap.String("subject_id", subjectID), zap.Error(err))
	}

	return result, nil
}

// Events loads the subject's events together with their grade ledgers.
func (s *SubjectService) Events(ctx context.Context, subjectID string) ([]models.Event, error) {
	if _, err := s.repo.FindByID(ctx, subjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	events, err := s.events.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	for i := range events {
		grades, err := s.events.Grades(ctx, events[i].ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
		}
		events[i].Grades = grades
	}

	return events, nil
}

// WeightTotal sums the weights of the subject's evaluated events. The
// caller can compare it against 100 to spot incomplete weighting.
func (s *SubjectService) WeightTotal(ctx context.Context, subjectID string) (float64, error) {
	if _, err := s.repo.FindByID(ctx, subjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	events, err := s.events.ListBySubject(ctx, subjectID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}

	return models.TotalEvaluatedWeight(events), nil
}

func (s *SubjectService) invalidateAverages(ctx context.Context, subject *models.Subject) {
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("avg:subject:%s:*", subject.ID)); err != nil {
		s.logger.Warn("failed to invalidate subject averages", zap.String("subject_id", subject.ID), zap.Error(err))
	}
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("avg:semester:%s:*", subject.SemesterID)); err != nil {
		s.logger.Warn("failed to invalidate semester averages", zap.String("semester_id", subject.SemesterID), zap.Error(err))
	}
}

func subjectAverageKey(subjectID, userID string) string {
	return fmt.Sprintf("avg:subject:%s:%s", subjectID, userID)
}

func semesterAverageKey(semesterID, userID string) string {
	return fmt.Sprintf("avg:semester:%s:%s", semesterID, userID)
}

// weightedAverage folds (grade, weight) rows into the subject average. Each
// row contributes grade*weight/100; a subject with no weighted rows yields
// zero. The sum is intentionally not normalised by the accumulated weight,
// so partially-graded subjects report a partial average.
func weightedAverage(rows []models.WeightedGrade) float64 {
	totalWeight := 0.0
	sum := 0.0
	for _, row := range rows {
		totalWeight += row.Weight
		sum += row.Grade * row.Weight / 100
	}
	if totalWeight == 0 {
		return 0
	}
	return sum
}
