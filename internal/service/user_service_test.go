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

type fakeUserRepo struct {
	users      map[string]*models.User
	lastToken  *string
	tokenSet   bool
	deletedIDs []string
}

func (f *fakeUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) Update(ctx context.Context, user *models.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) UpdateRole(ctx context.Context, id string, role models.UserRole) error {
	f.users[id].Role = role
	return nil
}

func (f *fakeUserRepo) UpdateNotificationToken(ctx context.Context, id string, token *string) error {
	f.lastToken = token
	f.tokenSet = true
	f.users[id].NotificationToken = token
	return nil
}

func (f *fakeUserRepo) Delete(ctx context.Context, id string) error {
	delete(f.users, id)
	f.deletedIDs = append(f.deletedIDs, id)
	return nil
}

type fakeMemberships struct {
	byUser map[string][]string
}

func (f *fakeMemberships) SemesterIDsByUser(ctx context.Context, userID string) ([]string, error) {
	return f.byUser[userID], nil
}

func newUserService(repo *fakeUserRepo, memberships *fakeMemberships) *UserService {
	if memberships == nil {
		memberships = &fakeMemberships{}
	}
	return NewUserService(repo, memberships, nil, validator.New(), zap.NewNop())
}

func TestUserServiceGetPopulatesSemesters(t *testing.T) {
	repo := &fakeUserRepo{users: map[string]*models.User{"u1": {ID: "u1", Name: "Ada"}}}
	memberships := &fakeMemberships{byUser: map[string][]string{"u1": {"sem1", "sem2"}}}
	svc := newUserService(repo, memberships)

	user, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sem1", "sem2"}, user.SemesterIDs)
}

func TestUserServiceAssignRole(t *testing.T) {
	repo := &fakeUserRepo{users: map[string]*models.User{"u1": {ID: "u1", Role: models.RoleStudent}}}
	svc := newUserService(repo, nil)

	user, err := svc.AssignRole(context.Background(), "u1", models.RoleProfessor)
	require.NoError(t, err)
	assert.Equal(t, models.RoleProfessor, user.Role)
	assert.Equal(t, models.RoleProfessor, repo.users["u1"].Role)
}

func TestUserServiceAssignUnknownRole(t *testing.T) {
	repo := &fakeUserRepo{users: map[string]*models.User{"u1": {ID: "u1"}}}
	svc := newUserService(repo, nil)

	_, err := svc.AssignRole(context.Background(), "u1", models.UserRole("wizard"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestUserServiceSetNotificationToken(t *testing.T) {
	repo := &fakeUserRepo{users: map[string]*models.User{"u1": {ID: "u1"}}}
	svc := newUserService(repo, nil)

	require.NoError(t, svc.SetNotificationToken(context.Background(), "u1", "device-token"))
	require.NotNil(t, repo.lastToken)
	assert.Equal(t, "device-token", *repo.lastToken)
}

func TestUserServiceClearNotificationToken(t *testing.T) {
	token := "device-token"
	repo := &fakeUserRepo{users: map[string]*models.User{"u1": {ID: "u1", NotificationToken: &token}}}
	svc := newUserService(repo, nil)

	require.NoError(t, svc.SetNotificationToken(context.Background(), "u1", ""))
	assert.True(t, repo.tokenSet)
	assert.Nil(t, repo.lastToken)
}

func TestUserServiceDeleteUnknownUser(t *testing.T) {
	svc := newUserService(&fakeUserRepo{users: map[string]*models.User{}}, nil)

	err := svc.Delete(context.Background(), "ghost")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
