package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/transcript-review-api/internal/dto"
	"github.com/noah-isme/transcript-review-api/internal/models"
)

type failingUserRepo struct {
	*memoryUserRepo
	listErr error
}

func (f *failingUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	return f.memoryUserRepo.List(ctx, filter)
}

func seedUser(t *testing.T, repo *memoryUserRepo, email string, role models.UserRole) *models.User {
	t.Helper()
	user, err := repo.Upsert(context.Background(), &models.User{Email: email, Username: UsernameFromEmail(email), Role: role})
	require.NoError(t, err)
	return user
}

func TestUserServiceUpdateRole(t *testing.T) {
	repo := newMemoryUserRepo()
	admin := seedUser(t, repo, "root@example.com", models.RoleAdmin)
	target := seedUser(t, repo, "anna@example.com", models.RoleUser)
	audit := &auditStub{}
	svc := NewUserService(repo, nil, audit, nil, zap.NewNop())

	updated, err := svc.UpdateRole(context.Background(), admin, dto.UpdateRoleRequest{UserID: target.ID, Role: models.RoleAnnotator}, dto.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAnnotator, updated.Role)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionRoleUpdate, audit.entries[0].Action)
	assert.JSONEq(t, `{"role":"USER"}`, string(audit.entries[0].OldValues))
	assert.JSONEq(t, `{"role":"ANNOTATOR"}`, string(audit.entries[0].NewValues))

	same, err := svc.UpdateRole(context.Background(), admin, dto.UpdateRoleRequest{UserID: target.ID, Role: models.RoleAnnotator}, dto.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAnnotator, same.Role)
	assert.Len(t, audit.entries, 1, "no-op updates are not audited")
}

func TestUserServiceUpdateRoleGuards(t *testing.T) {
	repo := newMemoryUserRepo()
	admin := seedUser(t, repo, "root@example.com", models.RoleAdmin)
	reviewerUser := seedUser(t, repo, "rick@example.com", models.RoleReviewer)
	svc := NewUserService(repo, nil, &auditStub{}, nil, nil)

	_, err := svc.UpdateRole(context.Background(), reviewerUser, dto.UpdateRoleRequest{UserID: admin.ID, Role: models.RoleUser}, dto.RequestMeta{})
	requireStatus(t, err, http.StatusForbidden)

	_, err = svc.UpdateRole(context.Background(), admin, dto.UpdateRoleRequest{UserID: admin.ID, Role: models.RoleUser}, dto.RequestMeta{})
	requireStatus(t, err, http.StatusForbidden)

	_, err = svc.UpdateRole(context.Background(), admin, dto.UpdateRoleRequest{UserID: reviewerUser.ID, Role: "SUPERADMIN"}, dto.RequestMeta{})
	requireStatus(t, err, http.StatusBadRequest)

	_, err = svc.UpdateRole(context.Background(), admin, dto.UpdateRoleRequest{UserID: "99999999-9999-9999-9999-999999999999", Role: models.RoleUser}, dto.RequestMeta{})
	requireStatus(t, err, http.StatusNotFound)
}

func TestUserServiceList(t *testing.T) {
	repo := newMemoryUserRepo()
	seedUser(t, repo, "root@example.com", models.RoleAdmin)
	seedUser(t, repo, "anna@example.com", models.RoleAnnotator)
	svc := NewUserService(repo, nil, nil, nil, nil)

	users, pagination, err := svc.List(context.Background(), models.UserFilter{Page: 0, PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 2, pagination.TotalCount)

	bogus := models.UserRole("SUPERVISOR")
	_, _, err = svc.List(context.Background(), models.UserFilter{Role: &bogus})
	requireStatus(t, err, http.StatusBadRequest)
}

func TestUserServiceListFailure(t *testing.T) {
	repo := &failingUserRepo{memoryUserRepo: newMemoryUserRepo(), listErr: errors.New("db down")}
	svc := NewUserService(repo, nil, nil, nil, nil)

	_, _, err := svc.List(context.Background(), models.UserFilter{})
	appErr := requireStatus(t, err, http.StatusInternalServerError)
	assert.Equal(t, "failed to list users", appErr.Message)
}
