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

type fakeEventRepo struct {
	events  map[string]*models.Event
	grades  map[string]map[string]float64
	created *models.Event
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{
		events: make(map[string]*models.Event),
		grades: make(map[string]map[string]float64),
	}
}

func (f *fakeEventRepo) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	var out []models.Event
	for _, e := range f.events {
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (f *fakeEventRepo) FindByID(ctx context.Context, id string) (*models.Event, error) {
	e, ok := f.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *e
	return &copied, nil
}

func (f *fakeEventRepo) Create(ctx context.Context, event *models.Event) error {
	event.ID = "e-new"
	f.created = event
	f.events[event.ID] = event
	return nil
}

func (f *fakeEventRepo) Update(ctx context.Context, event *models.Event) error {
	f.events[event.ID] = event
	return nil
}

func (f *fakeEventRepo) Delete(ctx context.Context, id string) error {
	delete(f.events, id)
	return nil
}

func (f *fakeEventRepo) Grades(ctx context.Context, eventID string) ([]models.GradeRecord, error) {
	var out []models.GradeRecord
	for userID, grade := range f.grades[eventID] {
		out = append(out, models.GradeRecord{EventID: eventID, UserID: userID, Grade: grade})
	}
	return out, nil
}

func (f *fakeEventRepo) AppendGrade(ctx context.Context, record *models.GradeRecord) (bool, error) {
	if _, exists := f.grades[record.EventID][record.UserID]; exists {
		return false, nil
	}
	if f.grades[record.EventID] == nil {
		f.grades[record.EventID] = make(map[string]float64)
	}
	f.grades[record.EventID][record.UserID] = record.Grade
	return true, nil
}

func (f *fakeEventRepo) AppendGrades(ctx context.Context, records []models.GradeRecord) (int, error) {
	for i, record := range records {
		if _, exists := f.grades[record.EventID][record.UserID]; exists {
			return i, nil
		}
	}
	for i := range records {
		if _, err := f.AppendGrade(ctx, &records[i]); err != nil {
			return i, err
		}
	}
	return -1, nil
}

func newEventService(repo *fakeEventRepo, subjects *fakeSubjectRepo, users *fakeUserGetter) *EventService {
	if subjects == nil {
		subjects = &fakeSubjectRepo{}
	}
	if users == nil {
		users = &fakeUserGetter{}
	}
	return NewEventService(repo, subjects, users, nil, nil, validator.New(), zap.NewNop())
}

func evaluatedEvent(id string) *models.Event {
	weight := 40.0
	return &models.Event{ID: id, Title: "Midterm", Kind: models.EventEvaluated, OccursAt: time.Now(), Weight: &weight}
}

func TestEventServiceCreateRequiresWeightWhenEvaluated(t *testing.T) {
	repo := newFakeEventRepo()
	svc := newEventService(repo, nil, nil)

	_, err := svc.Create(context.Background(), models.CreateEventRequest{
		Title:    "Midterm",
		Kind:     models.EventEvaluated,
		OccursAt: time.Now(),
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Nil(t, repo.created)
}

func TestEventServiceCreateRejectsWeightOnPlainEvent(t *testing.T) {
	repo := newFakeEventRepo()
	svc := newEventService(repo, nil, nil)

	weight := 20.0
	_, err := svc.Create(context.Background(), models.CreateEventRequest{
		Title:    "Field trip",
		Kind:     models.EventNotEvaluated,
		OccursAt: time.Now(),
		Weight:   &weight,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestEventServiceCreateStandaloneEvent(t *testing.T) {
	repo := newFakeEventRepo()
	svc := newEventService(repo, nil, nil)

	event, err := svc.Create(context.Background(), models.CreateEventRequest{
		Title:    "Orientation",
		Kind:     models.EventNotEvaluated,
		OccursAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Nil(t, event.SubjectID)
}

func TestEventServiceIsEvaluated(t *testing.T) {
	repo := newFakeEventRepo()
	repo.events["e1"] = evaluatedEvent("e1")
	repo.events["e2"] = &models.Event{ID: "e2", Kind: models.EventNotEvaluated}
	svc := newEventService(repo, nil, nil)

	evaluated, err := svc.IsEvaluated(context.Background(), "e1")
	require.NoError(t, err)
	assert.True(t, evaluated)

	evaluated, err = svc.IsEvaluated(context.Background(), "e2")
	require.NoError(t, err)
	assert.False(t, evaluated)
}

func TestEventServiceAddGrade(t *testing.T) {
	repo := newFakeEventRepo()
	repo.events["e1"] = evaluatedEvent("e1")
	users := &fakeUserGetter{users: map[string]*models.User{"u1": {ID: "u1"}}}
	svc := newEventService(repo, nil, users)

	record, err := svc.AddGrade(context.Background(), "e1", models.GradeRequest{UserID: "u1", Grade: 95})
	require.NoError(t, err)
	assert.Equal(t, 95.0, record.Grade)
	assert.Equal(t, 95.0, repo.grades["e1"]["u1"])
}

func TestEventServiceAddGradeDuplicateLeavesLedgerUntouched(t *testing.T) {
	repo := newFakeEventRepo()
	repo.events["e1"] = evaluatedEvent("e1")
	repo.grades["e1"] = map[string]float64{"u1": 70}
	users := &fakeUserGetter{users: map[string]*models.User{"u1": {ID: "u1"}}}
	svc := newEventService(repo, nil, users)

	_, err := svc.AddGrade(context.Background(), "e1", models.GradeRequest{UserID: "u1", Grade: 95})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicateGrade.Code, appErr.Code)
	assert.Equal(t, 70.0, repo.grades["e1"]["u1"])
}

func TestEventServiceAddGradeOnPlainEvent(t *testing.T) {
	repo := newFakeEventRepo()
	repo.events["e1"] = &models.Event{ID: "e1", Kind: models.EventNotEvaluated}
	users := &fakeUserGetter{users: map[string]*models.User{"u1": {ID: "u1"}}}
	svc := newEventService(repo, nil, users)

	_, err := svc.AddGrade(context.Background(), "e1", models.GradeRequest{UserID: "u1", Grade: 95})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestEventServiceAddGradeUnknownUser(t *testing.T) {
	repo := newFakeEventRepo()
	repo.events["e1"] = evaluatedEvent("e1")
	svc := newEventService(repo, nil, nil)

	_, err := svc.AddGrade(context.Background(), "e1", models.GradeRequest{UserID: "ghost", Grade: 95})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Empty(t, repo.grades["e1"])
}

func TestEventServiceAddGradesBatchAllOrNothing(t *testing.T) {
	repo := newFakeEventRepo()
	repo.events["e1"] = evaluatedEvent("e1")
	repo.grades["e1"] = map[string]float64{"u2": 60}
	users := &fakeUserGetter{users: map[string]*models.User{
		"u1": {ID: "u1"},
		"u2": {ID: "u2"},
		"u3": {ID: "u3"},
	}}
	svc := newEventService(repo, nil, users)

	_, err := svc.AddGrades(context.Background(), "e1", models.BatchGradeRequest{Grades: []models.GradeRequest{
		{UserID: "u1", Grade: 80},
		{UserID: "u2", Grade: 85},
		{UserID: "u3", Grade: 90},
	}})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicateGrade.Code, appErr.Code)

	// nothing from the failed batch was recorded
	assert.Len(t, repo.grades["e1"], 1)
	assert.Equal(t, 60.0, repo.grades["e1"]["u2"])
}

func TestEventServiceAddGradesBatchSuccess(t *testing.T) {
	repo := newFakeEventRepo()
	repo.events["e1"] = evaluatedEvent("e1")
	users := &fakeUserGetter{users: map[string]*models.User{
		"u1": {ID: "u1"},
		"u2": {ID: "u2"},
	}}
	svc := newEventService(repo, nil, users)

	records, err := svc.AddGrades(context.Background(), "e1", models.BatchGradeRequest{Grades: []models.GradeRequest{
		{UserID: "u1", Grade: 80},
		{UserID: "u2", Grade: 85},
	}})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Len(t, repo.grades["e1"], 2)
}

func TestEventServiceUpdateAttachesSubject(t *testing.T) {
	repo := newFakeEventRepo()
	repo.events["e1"] = evaluatedEvent("e1")
	subjects := &fakeSubjectRepo{subjects: map[string]*models.Subject{"s1": {ID: "s1", SemesterID: "sem1"}}}
	svc := newEventService(repo, subjects, nil)

	subjectID := "s1"
	event, err := svc.Update(context.Background(), "e1", models.UpdateEventRequest{SubjectID: &subjectID})
	require.NoError(t, err)
	require.NotNil(t, event.SubjectID)
	assert.Equal(t, "s1", *event.SubjectID)
}

func TestEventServiceUpdateAttachUnknownSubject(t *testing.T) {
	repo := newFakeEventRepo()
	repo.events["e1"] = evaluatedEvent("e1")
	svc := newEventService(repo, nil, nil)

	subjectID := "ghost"
	_, err := svc.Update(context.Background(), "e1", models.UpdateEventRequest{SubjectID: &subjectID})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)

	stored, err := repo.FindByID(context.Background(), "e1")
	require.NoError(t, err)
	assert.Nil(t, stored.SubjectID)
}

func TestEventServiceUpdateDetachesSubject(t *testing.T) {
	repo := newFakeEventRepo()
	event := evaluatedEvent("e1")
	subjectID := "s1"
	event.SubjectID = &subjectID
	repo.events["e1"] = event
	subjects := &fakeSubjectRepo{subjects: map[string]*models.Subject{"s1": {ID: "s1", SemesterID: "sem1"}}}
	svc := newEventService(repo, subjects, nil)

	detach := ""
	updated, err := svc.Update(context.Background(), "e1", models.UpdateEventRequest{SubjectID: &detach})
	require.NoError(t, err)
	assert.Nil(t, updated.SubjectID)
}

func TestEventServiceGetIncludesLedger(t *testing.T) {
	repo := newFakeEventRepo()
	repo.events["e1"] = evaluatedEvent("e1")
	repo.grades["e1"] = map[string]float64{"u1": 88, "u2": 73}
	svc := newEventService(repo, nil, nil)

	event, err := svc.Get(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, event.Grades, 2)

	record, ok := event.GradeFor("u1")
	require.True(t, ok)
	assert.Equal(t, 88.0, record.Grade)

	_, ok = event.GradeFor("ghost")
	assert.False(t, ok)
}

func TestEventServiceUpdateValidatesResultingPair(t *testing.T) {
	repo := newFakeEventRepo()
	repo.events["e1"] = evaluatedEvent("e1")
	svc := newEventService(repo, nil, nil)

	plain := models.EventNotEvaluated
	_, err := svc.Update(context.Background(), "e1", models.UpdateEventRequest{Kind: &plain})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
