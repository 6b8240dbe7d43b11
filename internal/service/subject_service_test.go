package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uniplan/uniplan-api/internal/models"
	appErrors "github.com/uniplan/uniplan-api/pkg/errors"
)

type fakeSubjectRepo struct {
	subjects  map[string]*models.Subject
	codeTaken bool
	created   *models.Subject
	deleted   []string
}

func (f *fakeSubjectRepo) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	var out []models.Subject
	for _, s := range f.subjects {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (f *fakeSubjectRepo) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	s, ok := f.subjects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSubjectRepo) ListBySemester(ctx context.Context, semesterID string) ([]models.Subject, error) {
	var out []models.Subject
	for _, s := range f.subjects {
		if s.SemesterID == semesterID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSubjectRepo) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	return f.codeTaken, nil
}

func (f *fakeSubjectRepo) Create(ctx context.Context, subject *models.Subject) error {
	subject.ID = "s-new"
	f.created = subject
	if f.subjects == nil {
		f.subjects = make(map[string]*models.Subject)
	}
	f.subjects[subject.ID] = subject
	return nil
}

func (f *fakeSubjectRepo) Update(ctx context.Context, subject *models.Subject) error {
	f.subjects[subject.ID] = subject
	return nil
}

func (f *fakeSubjectRepo) Delete(ctx context.Context, id string) error {
	delete(f.subjects, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeSubjectRepo) EventIDs(ctx context.Context, subjectID string) ([]string, error) {
	return nil, nil
}

type fakeGradeSource struct {
	grades map[string][]models.WeightedGrade
	events map[string][]models.Event
}

func (f *fakeGradeSource) WeightedGradesForUser(ctx context.Context, subjectID, userID string) ([]models.WeightedGrade, error) {
	return f.grades[subjectID+"/"+userID], nil
}

func (f *fakeGradeSource) ListBySubject(ctx context.Context, subjectID string) ([]models.Event, error) {
	return f.events[subjectID], nil
}

func (f *fakeGradeSource) Grades(ctx context.Context, eventID string) ([]models.GradeRecord, error) {
	return nil, nil
}

type fakeSemesterGetter struct {
	semesters map[string]*models.Semester
}

func (f *fakeSemesterGetter) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	s, ok := f.semesters[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func newSubjectService(repo *fakeSubjectRepo, grades *fakeGradeSource, semesters *fakeSemesterGetter) *SubjectService {
	if grades == nil {
		grades = &fakeGradeSource{}
	}
	if semesters == nil {
		semesters = &fakeSemesterGetter{}
	}
	return NewSubjectService(repo, grades, semesters, nil, validator.New(), zap.NewNop())
}

func TestSubjectServiceCreateNormalisesCode(t *testing.T) {
	repo := &fakeSubjectRepo{}
	semesters := &fakeSemesterGetter{semesters: map[string]*models.Semester{"sem1": {ID: "sem1"}}}
	svc := newSubjectService(repo, nil, semesters)

	subject, err := svc.Create(context.Background(), "sem1", models.CreateSubjectRequest{Name: "Databases", Code: "db101"})
	require.NoError(t, err)
	assert.Equal(t, "DB101", subject.Code)
	assert.Equal(t, "sem1", subject.SemesterID)
}

func TestSubjectServiceCreateRejectsTakenCode(t *testing.T) {
	repo := &fakeSubjectRepo{codeTaken: true}
	semesters := &fakeSemesterGetter{semesters: map[string]*models.Semester{"sem1": {ID: "sem1"}}}
	svc := newSubjectService(repo, nil, semesters)

	_, err := svc.Create(context.Background(), "sem1", models.CreateSubjectRequest{Name: "Databases", Code: "DB101"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Nil(t, repo.created)
}

func TestSubjectServiceCreateUnknownSemester(t *testing.T) {
	svc := newSubjectService(&fakeSubjectRepo{}, nil, nil)

	_, err := svc.Create(context.Background(), "ghost", models.CreateSubjectRequest{Name: "Databases", Code: "DB101"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestSubjectServiceAverageWeighted(t *testing.T) {
	repo := &fakeSubjectRepo{subjects: map[string]*models.Subject{"s1": {ID: "s1", SemesterID: "sem1"}}}
	grades := &fakeGradeSource{grades: map[string][]models.WeightedGrade{
		"s1/u1": {
			{Grade: 80, Weight: 40},
			{Grade: 90, Weight: 60},
		},
	}}
	svc := newSubjectService(repo, grades, nil)

	result, err := svc.Average(context.Background(), "s1", "u1")
	require.NoError(t, err)
	assert.InDelta(t, 86.0, result.Average, 1e-9)
	assert.Equal(t, "u1", result.UserID)
}

func TestSubjectServiceAveragePartialGrades(t *testing.T) {
	repo := &fakeSubjectRepo{subjects: map[string]*models.Subject{"s1": {ID: "s1", SemesterID: "sem1"}}}
	grades := &fakeGradeSource{grades: map[string][]models.WeightedGrade{
		"s1/u1": {{Grade: 70, Weight: 30}},
	}}
	svc := newSubjectService(repo, grades, nil)

	result, err := svc.Average(context.Background(), "s1", "u1")
	require.NoError(t, err)
	assert.InDelta(t, 21.0, result.Average, 1e-9)
}

func TestSubjectServiceAverageNoGrades(t *testing.T) {
	repo := &fakeSubjectRepo{subjects: map[string]*models.Subject{"s1": {ID: "s1", SemesterID: "sem1"}}}
	svc := newSubjectService(repo, nil, nil)

	result, err := svc.Average(context.Background(), "s1", "u1")
	require.NoError(t, err)
	assert.Zero(t, result.Average)
}

func TestSubjectServiceAverageUnknownSubject(t *testing.T) {
	svc := newSubjectService(&fakeSubjectRepo{}, nil, nil)

	_, err := svc.Average(context.Background(), "ghost", "u1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestSubjectServiceWeightTotal(t *testing.T) {
	weight30 := 30.0
	weight50 := 50.0
	repo := &fakeSubjectRepo{subjects: map[string]*models.Subject{"s1": {ID: "s1", SemesterID: "sem1"}}}
	grades := &fakeGradeSource{events: map[string][]models.Event{
		"s1": {
			{ID: "e1", Kind: models.EventEvaluated, Weight: &weight30},
			{ID: "e2", Kind: models.EventEvaluated, Weight: &weight50},
			{ID: "e3", Kind: models.EventNotEvaluated},
		},
	}}
	svc := newSubjectService(repo, grades, nil)

	total, err := svc.WeightTotal(context.Background(), "s1")
	require.NoError(t, err)
	assert.InDelta(t, 80.0, total, 1e-9)
}

func TestSubjectServiceDeleteRemovesSubject(t *testing.T) {
	repo := &fakeSubjectRepo{subjects: map[string]*models.Subject{"s1": {ID: "s1", SemesterID: "sem1"}}}
	svc := newSubjectService(repo, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "s1"))
	assert.Equal(t, []string{"s1"}, repo.deleted)

	err := svc.Delete(context.Background(), "s1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
