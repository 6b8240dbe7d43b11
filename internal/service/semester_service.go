package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/uniplan/uniplan-api/internal/models"
	appErrors "github.com/uniplan/uniplan-api/pkg/errors"
	"github.com/uniplan/uniplan-api/pkg/export"
)

type semesterRepository interface {
	List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, int, error)
	FindByID(ctx context.Context, id string) (*models.Semester, error)
	Create(ctx context.Context, semester *models.Semester) error
	Update(ctx context.Context, semester *models.Semester) error
	Delete(ctx context.Context, id string) error
	AddUser(ctx context.Context, semesterID, userID string) (bool, error)
	RemoveUser(ctx context.Context, semesterID, userID string) error
	UserIDs(ctx context.Context, semesterID string) ([]string, error)
	ListByUser(ctx context.Context, userID string) ([]models.Semester, error)
}

type semesterSubjectRepository interface {
	ListBySemester(ctx context.Context, semesterID string) ([]models.Subject, error)
}

type semesterGradeRepository interface {
	WeightedGradesForUser(ctx context.Context, subjectID, userID string) ([]models.WeightedGrade, error)
}

type semesterUserGetter interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ReportFormat selects the rendering of a semester grade report.
type ReportFormat string

const (
	ReportCSV ReportFormat = "csv"
	ReportPDF ReportFormat = "pdf"
)

// Report is a rendered semester grade report.
type Report struct {
	FileName    string
	ContentType string
	Content     []byte
}

// SemesterService provides semester management, enrollment and the per-user
// semester average.
type SemesterService struct {
	repo      semesterRepository
	subjects  semesterSubjectRepository
	grades    semesterGradeRepository
	users     semesterUserGetter
	cache     *CacheService
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSemesterService constructs a SemesterService instance.
func NewSemesterService(repo semesterRepository, subjects semesterSubjectRepository, grades semesterGradeRepository, users semesterUserGetter, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SemesterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SemesterService{
		repo:      repo,
		subjects:  subjects,
		grades:    grades,
		users:     users,
		cache:     cache,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
	}
}

// Create registers a new semester owned by the given user.
func (s *SemesterService) Create(ctx context.Context, ownerID string, req models.CreateSemesterRequest) (*models.Semester, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid semester payload")
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must not precede start date")
	}

	semester := &models.Semester{
		Name:      req.Name,
		Year:      req.Year,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		OwnerID:   ownerID,
	}
	if err := s.repo.Create(ctx, semester); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create semester")
	}
	semester.WeeksDuration = semester.Weeks()

	s.logger.Info("semester created", zap.String("semester_id", semester.ID), zap.String("owner_id", ownerID))

	return semester, nil
}

// Get loads one semester with its subject and user identifiers.
func (s *SemesterService) Get(ctx context.Context, id string) (*models.Semester, error) {
	semester, err := s.findSemester(ctx, id)
	if err != nil {
		return nil, err
	}

	subjects, err := s.subjects.ListBySemester(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	semester.SubjectIDs = make([]string, 0, len(subjects))
	for _, subject := range subjects {
		semester.SubjectIDs = append(semester.SubjectIDs, subject.ID)
	}

	userIDs, err := s.repo.UserIDs(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	semester.UserIDs = userIDs
	semester.WeeksDuration = semester.Weeks()

	return semester, nil
}

// List returns semesters matching the filter with pagination metadata.
func (s *SemesterService) List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, *models.Pagination, error) {
	semesters, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list semesters")
	}
	for i := range semesters {
		semesters[i].WeeksDuration = semesters[i].Weeks()
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	return semesters, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update modifies an existing semester. The date ordering rule is enforced
// against the resulting pair, not just the fields in the payload.
func (s *SemesterService) Update(ctx context.Context, id string, req models.UpdateSemesterRequest) (*models.Semester, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid semester payload")
	}

	semester, err := s.findSemester(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		semester.Name = *req.Name
	}
	if req.Year != nil {
		semester.Year = *req.Year
	}
	if req.StartDate != nil {
		semester.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		semester.EndDate = *req.EndDate
	}
	if semester.EndDate.Before(semester.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must not precede start date")
	}

	if err := s.repo.Update(ctx, semester); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update semester")
	}
	semester.WeeksDuration = semester.Weeks()

	return semester, nil
}

// Delete removes a semester. Subjects, events and enrollment cascade at the
// schema level.
func (s *SemesterService) Delete(ctx context.Context, id string) error {
	if _, err := s.findSemester(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete semester")
	}
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("avg:semester:%s:*", id)); err != nil {
		s.logger.Warn("failed to invalidate semester averages", zap.String("semester_id", id), zap.Error(err))
	}
	return nil
}

// Enroll adds the user to the semester. Enrolling an already-enrolled user
// is a no-op, reported through the returned flag.
func (s *SemesterService) Enroll(ctx context.Context, semesterID, userID string) (bool, error) {
	if _, err := s.findSemester(ctx, semesterID); err != nil {
		return false, err
	}
	if _, err := s.findUser(ctx, userID); err != nil {
		return false, err
	}

	added, err := s.repo.AddUser(ctx, semesterID, userID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll user")
	}
	return added, nil
}

// Unenroll removes the user from the semester. The single delete unlinks
// both sides of the membership at once.
func (s *SemesterService) Unenroll(ctx context.Context, semesterID, userID string) error {
	if _, err := s.findSemester(ctx, semesterID); err != nil {
		return err
	}
	if _, err := s.findUser(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.RemoveUser(ctx, semesterID, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unenroll user")
	}
	return nil
}

// Average computes the semester average for one user: the unweighted mean
// of the user's subject averages. A semester without subjects yields zero.
func (s *SemesterService) Average(ctx context.Context, semesterID, userID string) (float64, error) {
	if _, err := s.findSemester(ctx, semesterID); err != nil {
		return 0, err
	}

	key := semesterAverageKey(semesterID, userID)
	var cached float64
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	average, err := s.computeAverage(ctx, semesterID, userID)
	if err != nil {
		return 0, err
	}

	if err := s.cache.Set(ctx, key, average, 0); err != nil {
		s.logger.Warn("failed to cache semester average", zap.String("semester_id", semesterID), zap.Error(err))
	}

	return average, nil
}

// SummariesForUser returns the semesters the user is enrolled in, enriched
// with the current week of the term and the user's semester average.
func (s *SemesterService) SummariesForUser(ctx context.Context, userID string) ([]models.SemesterSummary, error) {
	if _, err := s.findUser(ctx, userID); err != nil {
		return nil, err
	}

	semesters, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list semesters")
	}

	now := time.Now().UTC()
	summaries := make([]models.SemesterSummary, 0, len(semesters))
	for _, semester := range semesters {
		semester.WeeksDuration = semester.Weeks()
		average, err := s.computeAverage(ctx, semester.ID, userID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, models.SemesterSummary{
			Semester:    semester,
			CurrentWeek: semester.CurrentWeek(now),
			Average:     average,
		})
	}

	return summaries, nil
}

// Report renders the user's grade report for the semester in the requested
// format.
func (s *SemesterService) Report(ctx context.Context, semesterID, userID string, format ReportFormat) (*Report, error) {
	semester, err := s.findSemester(ctx, semesterID)
	if err != nil {
		return nil, err
	}

	subjects, err := s.subjects.ListBySemester(ctx, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}

	dataset := export.Dataset{Headers: []string{"Subject", "Code", "Average"}}
	total := 0.0
	for _, subject := range subjects {
		rows, err := s.grades.WeightedGradesForUser(ctx, subject.ID, userID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
		}
		average := weightedAverage(rows)
		total += average
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Subject": subject.Name,
			"Code":    subject.Code,
			"Average": fmt.Sprintf("%.2f", average),
		})
	}
	if len(subjects) > 0 {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Subject": "Semester average",
			"Code":    "",
			"Average": fmt.Sprintf("%.2f", total/float64(len(subjects))),
		})
	}

	title := fmt.Sprintf("%s %d grade report", semester.Name, semester.Year)
	switch format {
	case ReportCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
		}
		return &Report{FileName: fmt.Sprintf("semester-%s-report.csv", semesterID), ContentType: "text/csv", Content: content}, nil
	case ReportPDF:
		content, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
		}
		return &Report{FileName: fmt.Sprintf("semester-%s-report.pdf", semesterID), ContentType: "application/pdf", Content: content}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
}

func (s *SemesterService) computeAverage(ctx context.Context, semesterID, userID string) (float64, error) {
	subjects, err := s.subjects.ListBySemester(ctx, semesterID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	if len(subjects) == 0 {
		return 0, nil
	}

	sum := 0.0
	for _, subject := range subjects {
		rows, err := s.grades.WeightedGradesForUser(ctx, subject.ID, userID)
		if err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
		}
		sum += weightedAverage(rows)
	}

	return sum / float64(len(subjects)), nil
}

func (s *SemesterService) findUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func (s *SemesterService) findSemester(ctx context.Context, id string) (*models.Semester, error) {
	semester, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	return semester, nil
}
