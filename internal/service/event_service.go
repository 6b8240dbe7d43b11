package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/uniplan/uniplan-api/internal/models"
	appErrors "github.com/uniplan/uniplan-api/pkg/errors"
)

type eventRepository interface {
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error)
	FindByID(ctx context.Context, id string) (*models.Event, error)
	Create(ctx context.Context, event *models.Event) error
	Update(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, id string) error
	Grades(ctx context.Context, eventID string) ([]models.GradeRecord, error)
	AppendGrade(ctx context.Context, record *models.GradeRecord) (bool, error)
	AppendGrades(ctx context.Context, records []models.GradeRecord) (int, error)
}

type eventSubjectGetter interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type eventUserGetter interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// EventService provides event management and the grade ledger.
type EventService struct {
	repo          eventRepository
	subjects      eventSubjectGetter
	users         eventUserGetter
	notifications *NotificationService
	cache         *CacheService
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewEventService constructs an EventService instance.
func NewEventService(repo eventRepository, subjects eventSubjectGetter, users eventUserGetter, notifications *NotificationService, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &EventService{repo: repo, subjects: subjects, users: users, notifications: notifications, cache: cache, validator: validate, logger: logger}
}

// Create registers a new event, optionally attached to a subject.
func (s *EventService) Create(ctx context.Context, req models.CreateEventRequest) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}
	if err := validateKindAndWeight(req.Kind, req.Weight); err != nil {
		return nil, err
	}

	if req.SubjectID != nil {
		if _, err := s.subjects.FindByID(ctx, *req.SubjectID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
		}
	}

	event := &models.Event{
		SubjectID: req.SubjectID,
		Title:     req.Title,
		Kind:      req.Kind,
		OccursAt:  req.OccursAt,
		Weight:    req.Weight,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}

	s.logger.Info("event created", zap.String("event_id", event.ID))

	return event, nil
}

// Get loads one event together with its grade ledger.
func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.findEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	grades, err := s.repo.Grades(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}
	event.Grades = grades

	return event, nil
}

// List returns events matching the filter with pagination metadata.
func (s *EventService) List(ctx context.Context, filter models.EventFilter) ([]models.Event, *models.Pagination, error) {
	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	return events, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update modifies an existing event. The weight rule is enforced against
// the resulting kind/weight pair. The subject link can be set, moved or, via
// an empty subject id, cleared; averages on both ends are invalidated.
func (s *EventService) Update(ctx context.Context, id string, req models.UpdateEventRequest) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}

	event, err := s.findEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	previousSubject := event.SubjectID
	if req.SubjectID != nil {
		if *req.SubjectID == "" {
			event.SubjectID = nil
		} else {
			if _, err := s.subjects.FindByID(ctx, *req.SubjectID); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
				}
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
			}
			event.SubjectID = req.SubjectID
		}
	}

	if req.Title != nil {
		event.Title = *req.Title
	}
	if req.Kind != nil {
		event.Kind = *req.Kind
	}
	if req.OccursAt != nil {
		event.OccursAt = *req.OccursAt
	}
	if req.Weight != nil {
		event.Weight = req.Weight
	}
	if err := validateKindAndWeight(event.Kind, event.Weight); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event")
	}

	s.invalidateAverages(ctx, event.SubjectID)
	if previousSubject != nil && (event.SubjectID == nil || *event.SubjectID != *previousSubject) {
		s.invalidateAverages(ctx, previousSubject)
	}

	return event, nil
}

// Delete removes the event. The grade ledger cascades at the schema level.
func (s *EventService) Delete(ctx context.Context, id string) error {
	event, err := s.findEvent(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete event")
	}

	s.invalidateAverages(ctx, event.SubjectID)

	return nil
}

// IsEvaluated reports whether the event contributes to averages.
func (s *EventService) IsEvaluated(ctx context.Context, id string) (bool, error) {
	event, err := s.findEvent(ctx, id)
	if err != nil {
		return false, err
	}
	return event.IsEvaluated(), nil
}

// AddGrade records one user's grade on the event. A second grade for the
// same (event, user) pair is rejected without touching the ledger.
func (s *EventService) AddGrade(ctx context.Context, eventID string, req models.GradeRequest) (*models.GradeRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	event, err := s.findEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.IsEvaluated() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "event is not evaluated")
	}

	user, err := s.findUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	record := &models.GradeRecord{EventID: eventID, UserID: req.UserID, Grade: req.Grade}
	inserted, err := s.repo.AppendGrade(ctx, record)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade")
	}
	if !inserted {
		return nil, appErrors.Clone(appErrors.ErrDuplicateGrade, fmt.Sprintf("user %s already has a grade on this event", req.UserID))
	}

	s.invalidateAverages(ctx, event.SubjectID)
	s.notifyGrade(ctx, event, user)

	return record, nil
}

// AddGrades records grades for several users in one shot. The batch is
// all-or-nothing: a single duplicate aborts every insert.
func (s *EventService) AddGrades(ctx context.Context, eventID string, req models.BatchGradeRequest) ([]models.GradeRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	event, err := s.findEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.IsEvaluated() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "event is not evaluated")
	}

	users := make([]*models.User, 0, len(req.Grades))
	records := make([]models.GradeRecord, 0, len(req.Grades))
	for _, grade := range req.Grades {
		user, err := s.findUser(ctx, grade.UserID)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
		records = append(records, models.GradeRecord{EventID: eventID, UserID: grade.UserID, Grade: grade.Grade})
	}

	conflictIndex, err := s.repo.AppendGrades(ctx, records)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grades")
	}
	if conflictIndex >= 0 {
		return nil, appErrors.Clone(appErrors.ErrDuplicateGrade, fmt.Sprintf("user %s already has a grade on this event", records[conflictIndex].UserID))
	}

	s.invalidateAverages(ctx, event.SubjectID)
	for _, user := range users {
		s.notifyGrade(ctx, event, user)
	}

	return records, nil
}

func (s *EventService) notifyGrade(ctx context.Context, event *models.Event, user *models.User) {
	if s.notifications == nil {
		return
	}
	subjectName := ""
	if event.SubjectID != nil {
		if subject, err := s.subjects.FindByID(ctx, *event.SubjectID); err == nil {
			subjectName = subject.Name
		}
	}
	s.notifications.NotifyGradePublished(user, subjectName, event.Title)
}

func (s *EventService) invalidateAverages(ctx context.Context, subjectID *string) {
	if subjectID == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("avg:subject:%s:*", *subjectID)); err != nil {
		s.logger.Warn("failed to invalidate subject averages", zap.String("subject_id", *subjectID), zap.Error(err))
	}
	if subject, err := s.subjects.FindByID(ctx, *subjectID); err == nil {
		if err := s.cache.Invalidate(ctx, fmt.Sprintf("avg:semester:%s:*", subject.SemesterID)); err != nil {
			s.logger.Warn("failed to invalidate semester averages", zap.String("semester_id", subject.SemesterID), zap.Error(err))
		}
	}
}

func (s *EventService) findEvent(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}

func (s *EventService) findUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("user %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func validateKindAndWeight(kind models.EventKind, weight *float64) error {
	if !kind.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown event kind")
	}
	if kind == models.EventEvaluated {
		if weight == nil {
			return appErrors.Clone(appErrors.ErrValidation, "evaluated events require a weight")
		}
		if *weight < 0 || *weight > 100 {
			return appErrors.Clone(appErrors.ErrValidation, "weight must be between 0 and 100")
		}
		return nil
	}
	if weight != nil {
		return appErrors.Clone(appErrors.ErrValidation, "non-evaluated events cannot carry a weight")
	}
	return nil
}
