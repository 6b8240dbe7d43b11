package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uniplan/uniplan-api/internal/models"
	appErrors "github.com/uniplan/uniplan-api/pkg/errors"
)

type fakeSemesterRepo struct {
	semesters map[string]*models.Semester
	members   map[string]map[string]bool
	created   *models.Semester
	deleted   []string
}

func newFakeSemesterRepo() *fakeSemesterRepo {
	return &fakeSemesterRepo{
		semesters: make(map[string]*models.Semester),
		members:   make(map[string]map[string]bool),
	}
}

func (f *fakeSemesterRepo) List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, int, error) {
	var out []models.Semester
	for _, s := range f.semesters {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (f *fakeSemesterRepo) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	s, ok := f.semesters[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSemesterRepo) Create(ctx context.Context, semester *models.Semester) error {
	semester.ID = "sem-new"
	f.created = semester
	f.semesters[semester.ID] = semester
	return nil
}

func (f *fakeSemesterRepo) Update(ctx context.Context, semester *models.Semester) error {
	f.semesters[semester.ID] = semester
	return nil
}

func (f *fakeSemesterRepo) Delete(ctx context.Context, id string) error {
	delete(f.semesters, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeSemesterRepo) AddUser(ctx context.Context, semesterID, userID string) (bool, error) {
	if f.members[semesterID] == nil {
		f.members[semesterID] = make(map[string]bool)
	}
	if f.members[semesterID][userID] {
		return false, nil
	}
	f.members[semesterID][userID] = true
	return true, nil
}

func (f *fakeSemesterRepo) RemoveUser(ctx context.Context, semesterID, userID string) error {
	delete(f.members[semesterID], userID)
	return nil
}

func (f *fakeSemesterRepo) UserIDs(ctx context.Context, semesterID string) ([]string, error) {
	var ids []string
	for id := range f.members[semesterID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeSemesterRepo) ListByUser(ctx context.Context, userID string) ([]models.Semester, error) {
	var out []models.Semester
	for id, users := range f.members {
		if users[userID] {
			if s, ok := f.semesters[id]; ok {
				out = append(out, *s)
			}
		}
	}
	return out, nil
}

type fakeUserGetter struct {
	users map[string]*models.User
}

func (f *fakeUserGetter) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func newSemesterService(repo *fakeSemesterRepo, subjects *fakeSubjectRepo, grades *fakeGradeSource, users *fakeUserGetter) *SemesterService {
	if subjects == nil {
		subjects = &fakeSubjectRepo{}
	}
	if grades == nil {
		grades = &fakeGradeSource{}
	}
	if users == nil {
		users = &fakeUserGetter{}
	}
	return NewSemesterService(repo, subjects, grades, users, nil, validator.New(), zap.NewNop())
}

func TestSemesterServiceCreateComputesWeeks(t *testing.T) {
	repo := newFakeSemesterRepo()
	svc := newSemesterService(repo, nil, nil, nil)

	semester, err := svc.Create(context.Background(), "owner", models.CreateSemesterRequest{
		Name:      "Spring",
		Year:      2024,
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, 18, semester.WeeksDuration)
	assert.Equal(t, "owner", semester.OwnerID)
}

func TestSemesterServiceCreateRejectsReversedDates(t *testing.T) {
	repo := newFakeSemesterRepo()
	svc := newSemesterService(repo, nil, nil, nil)

	_, err := svc.Create(context.Background(), "owner", models.CreateSemesterRequest{
		Name:      "Backwards",
		Year:      2024,
		StartDate: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Nil(t, repo.created)
}

func TestSemesterServiceUpdateValidatesResultingDates(t *testing.T) {
	repo := newFakeSemesterRepo()
	repo.semesters["sem1"] = &models.Semester{
		ID:        "sem1",
		Name:      "Spring",
		Year:      2024,
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	svc := newSemesterService(repo, nil, nil, nil)

	badEnd := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Update(context.Background(), "sem1", models.UpdateSemesterRequest{EndDate: &badEnd})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestSemesterServiceAverageIsMeanOfSubjectAverages(t *testing.T) {
	repo := newFakeSemesterRepo()
	repo.semesters["sem1"] = &models.Semester{ID: "sem1"}
	subjects := &fakeSubjectRepo{subjects: map[string]*models.Subject{
		"s1": {ID: "s1", SemesterID: "sem1"},
		"s2": {ID: "s2", SemesterID: "sem1"},
	}}
	grades := &fakeGradeSource{grades: map[string][]models.WeightedGrade{
		"s1/u1": {{Grade: 80, Weight: 100}},
		"s2/u1": {{Grade: 60, Weight: 100}},
	}}
	svc := newSemesterService(repo, subjects, grades, nil)

	average, err := svc.Average(context.Background(), "sem1", "u1")
	require.NoError(t, err)
	assert.InDelta(t, 70.0, average, 1e-9)
}

func TestSemesterServiceAverageEmptySemester(t *testing.T) {
	repo := newFakeSemesterRepo()
	repo.semesters["sem1"] = &models.Semester{ID: "sem1"}
	svc := newSemesterService(repo, nil, nil, nil)

	average, err := svc.Average(context.Background(), "sem1", "u1")
	require.NoError(t, err)
	assert.Zero(t, average)
}

func TestSemesterServiceEnrollIsIdempotent(t *testing.T) {
	repo := newFakeSemesterRepo()
	repo.semesters["sem1"] = &models.Semester{ID: "sem1"}
	users := &fakeUserGetter{users: map[string]*models.User{"u1": {ID: "u1"}}}
	svc := newSemesterService(repo, nil, nil, users)

	added, err := svc.Enroll(context.Background(), "sem1", "u1")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = svc.Enroll(context.Background(), "sem1", "u1")
	require.NoError(t, err)
	assert.False(t, added)

	ids, _ := repo.UserIDs(context.Background(), "sem1")
	assert.Len(t, ids, 1)
}

func TestSemesterServiceEnrollUnknownUser(t *testing.T) {
	repo := newFakeSemesterRepo()
	repo.semesters["sem1"] = &models.Semester{ID: "sem1"}
	svc := newSemesterService(repo, nil, nil, nil)

	_, err := svc.Enroll(context.Background(), "sem1", "ghost")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestSemesterServiceUnenrollRemovesMembership(t *testing.T) {
	repo := newFakeSemesterRepo()
	repo.semesters["sem1"] = &models.Semester{ID: "sem1"}
	users := &fakeUserGetter{users: map[string]*models.User{"u1": {ID: "u1"}}}
	svc := newSemesterService(repo, nil, nil, users)

	_, err := svc.Enroll(context.Background(), "sem1", "u1")
	require.NoError(t, err)
	require.NoError(t, svc.Unenroll(context.Background(), "sem1", "u1"))

	ids, _ := repo.UserIDs(context.Background(), "sem1")
	assert.Empty(t, ids)
}

func TestSemesterServiceSummariesForUser(t *testing.T) {
	repo := newFakeSemesterRepo()
	start := time.Now().UTC().AddDate(0, 0, -20)
	repo.semesters["sem1"] = &models.Semester{
		ID:        "sem1",
		Name:      "Spring",
		StartDate: start,
		EndDate:   start.AddDate(0, 4, 0),
	}
	repo.members["sem1"] = map[string]bool{"u1": true}
	subjects := &fakeSubjectRepo{subjects: map[string]*models.Subject{"s1": {ID: "s1", SemesterID: "sem1"}}}
	grades := &fakeGradeSource{grades: map[string][]models.WeightedGrade{
		"s1/u1": {{Grade: 90, Weight: 100}},
	}}
	users := &fakeUserGetter{users: map[string]*models.User{"u1": {ID: "u1"}}}
	svc := newSemesterService(repo, subjects, grades, users)

	summaries, err := svc.SummariesForUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 3, summaries[0].CurrentWeek)
	assert.InDelta(t, 90.0, summaries[0].Average, 1e-9)
}

func TestSemesterServiceSummariesUnknownUser(t *testing.T) {
	repo := newFakeSemesterRepo()
	svc := newSemesterService(repo, nil, nil, nil)

	_, err := svc.SummariesForUser(context.Background(), "ghost")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestSemesterServiceUnenrollUnknownUser(t *testing.T) {
	repo := newFakeSemesterRepo()
	repo.semesters["sem1"] = &models.Semester{ID: "sem1"}
	repo.members["sem1"] = map[string]bool{"u1": true}
	svc := newSemesterService(repo, nil, nil, nil)

	err := svc.Unenroll(context.Background(), "sem1", "ghost")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.True(t, repo.members["sem1"]["u1"])
}

func TestSemesterServiceReportCSV(t *testing.T) {
	repo := newFakeSemesterRepo()
	repo.semesters["sem1"] = &models.Semester{ID: "sem1", Name: "Spring", Year: 2024}
	subjects := &fakeSubjectRepo{subjects: map[string]*models.Subject{
		"s1": {ID: "s1", SemesterID: "sem1", Name: "Databases", Code: "DB101"},
	}}
	grades := &fakeGradeSource{grades: map[string][]models.WeightedGrade{
		"s1/u1": {{Grade: 80, Weight: 100}},
	}}
	svc := newSemesterService(repo, subjects, grades, nil)

	report, err := svc.Report(context.Background(), "sem1", "u1", ReportCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", report.ContentType)
	assert.Contains(t, string(report.Content), "Databases")
	assert.Contains(t, string(report.Content), "80.00")
}

func TestSemesterServiceReportUnknownFormat(t *testing.T) {
	repo := newFakeSemesterRepo()
	repo.semesters["sem1"] = &models.Semester{ID: "sem1"}
	svc := newSemesterService(repo, nil, nil, nil)

	_, err := svc.Report(context.Background(), "sem1", "u1", ReportFormat("xml"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
