package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/transcript-review-api/internal/dto"
	"github.com/noah-isme/transcript-review-api/internal/middleware"
	"github.com/noah-isme/transcript-review-api/internal/models"
	appErrors "github.com/noah-isme/transcript-review-api/pkg/errors"
)

type fakeUserAdmin struct {
	users      []models.User
	lastFilter models.UserFilter
	updated    dto.UpdateRoleRequest
	updateErr  error
}

func (f *fakeUserAdmin) List(_ context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	f.lastFilter = filter
	return f.users, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(f.users)}, nil
}

func (f *fakeUserAdmin) UpdateRole(_ context.Context, _ *models.User, req dto.UpdateRoleRequest, _ dto.RequestMeta) (*models.User, error) {
	f.updated = req
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &models.User{ID: req.UserID, Role: req.Role}, nil
}

type fakeStats struct {
	stats models.QueueStats
	hit   bool
}

func (f *fakeStats) Stats(context.Context) (*models.QueueStats, bool, error) {
	return &f.stats, f.hit, nil
}

type fakeIngestion struct {
	req dto.IngestRequest
	err error
}

func (f *fakeIngestion) Ingest(_ context.Context, _ *models.User, req dto.IngestRequest, _ dto.RequestMeta) (*dto.IngestResult, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.IngestResult{Count: 2, BatchID: "1700000000000"}, nil
}

func newAdminHandler(ingestion *fakeIngestion, maxBytes int64) (*AdminHandler, *fakeUserAdmin) {
	users := &fakeUserAdmin{users: []models.User{*adminUser, *annotatorUser}}
	stats := &fakeStats{stats: models.QueueStats{AwaitingAnnotation: 4, Total: 4}, hit: true}
	return NewAdminHandler(users, stats, ingestion, maxBytes), users
}

func TestAdminDashboard(t *testing.T) {
	handler, users := newAdminHandler(&fakeIngestion{}, 0)
	c, rec := newTestContext(http.MethodGet, "/admin", nil, adminUser)
	middleware.WithResponseMeta()(c)
	handler.Dashboard(c)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Len(t, envelope.Data["users"], 2)
	assert.Equal(t, float64(4), envelope.Data["stats"].(map[string]interface{})["awaitingAnnotation"])
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.Equal(t, dashboardUserLimit, users.lastFilter.PageSize)
}

func TestAdminListUsersParsesFilter(t *testing.T) {
	handler, users := newAdminHandler(&fakeIngestion{}, 0)
	c, rec := newTestContext(http.MethodGet, "/admin/users?role=reviewer&search=ri&page=2&page_size=5&sort_by=email", nil, adminUser)
	handler.ListUsers(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, users.lastFilter.Role)
	assert.Equal(t, models.RoleReviewer, *users.lastFilter.Role)
	assert.Equal(t, "ri", users.lastFilter.Search)
	assert.Equal(t, 2, users.lastFilter.Page)
	assert.Equal(t, 5, users.lastFilter.PageSize)

	envelope := decodeList[models.User](t, rec)
	require.Len(t, envelope.Data, 2)
	assert.Equal(t, adminUser.Email, envelope.Data[0].Email)
	assert.Equal(t, models.RoleAnnotator, envelope.Data[1].Role)
	assert.Equal(t, float64(2), envelope.Pagination["total_count"])
}

func TestAdminUpdateRole(t *testing.T) {
	handler, users := newAdminHandler(&fakeIngestion{}, 0)
	body := `{"userId":"` + annotatorUser.ID + `","role":"reviewer"}`
	c, rec := newTestContext(http.MethodPost, "/admin/users", strings.NewReader(body), adminUser)
	c.Request.Header.Set("Content-Type", "application/json")
	handler.UpdateRole(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RoleReviewer, users.updated.Role)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, msgRoleUpdated, envelope.Data["message"])
	assert.Equal(t, "REVIEWER", envelope.Data["user"].(map[string]interface{})["role"])

	users.updateErr = appErrors.Clone(appErrors.ErrForbidden, "admins cannot change their own role")
	c, rec = newTestContext(http.MethodPost, "/admin/users", strings.NewReader(body), adminUser)
	c.Request.Header.Set("Content-Type", "application/json")
	handler.UpdateRole(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func multipartBody(t *testing.T, fields map[string]string, fileName, fileContent string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if fileName != "" {
		part, err := writer.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write([]byte(fileContent))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return buf, writer.FormDataContentType()
}

func TestAdminUploadTextsDataField(t *testing.T) {
	ingestion := &fakeIngestion{}
	handler, _ := newAdminHandler(ingestion, 0)
	csv := "imageUrl,transcript\nhttps://a,one\nhttps://b,two\n"
	body, contentType := multipartBody(t, map[string]string{"name": "batch.csv", "data": csv}, "", "")

	c, rec := newTestContext(http.MethodPost, "/admin/texts", body, adminUser)
	c.Request.Header.Set("Content-Type", contentType)
	handler.UploadTexts(c)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "batch.csv", ingestion.req.FileName)
	assert.Equal(t, csv, string(ingestion.req.Content))
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, true, envelope.Data["success"])
	assert.Equal(t, "Successfully processed 2 records", envelope.Data["message"])
	assert.Equal(t, "1700000000000", envelope.Data["data"].(map[string]interface{})["batchId"])
}

func TestAdminUploadTextsFilePart(t *testing.T) {
	ingestion := &fakeIngestion{}
	handler, _ := newAdminHandler(ingestion, 0)
	payload := `[{"imageUrl":"https://a","transcript":"one"}]`
	body, contentType := multipartBody(t, nil, "upload.JSON", payload)

	c, rec := newTestContext(http.MethodPost, "/admin/texts", body, adminUser)
	c.Request.Header.Set("Content-Type", contentType)
	handler.UploadTexts(c)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "upload.JSON", ingestion.req.FileName)
	assert.Equal(t, payload, string(ingestion.req.Content))
}

func TestAdminUploadTextsErrors(t *testing.T) {
	t.Run("too large", func(t *testing.T) {
		handler, _ := newAdminHandler(&fakeIngestion{}, 64)
		body, contentType := multipartBody(t, map[string]string{"name": "big.csv", "data": strings.Repeat("x", 1024)}, "", "")
		c, rec := newTestContext(http.MethodPost, "/admin/texts", body, adminUser)
		c.Request.Header.Set("Content-Type", contentType)
		handler.UploadTexts(c)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("parse failure surfaces message", func(t *testing.T) {
		ingestion := &fakeIngestion{err: appErrors.Clone(appErrors.ErrValidation, "Invalid CSV row at line 3")}
		handler, _ := newAdminHandler(ingestion, 0)
		body, contentType := multipartBody(t, map[string]string{"name": "bad.csv", "data": "x"}, "", "")
		c, rec := newTestContext(http.MethodPost, "/admin/texts", body, adminUser)
		c.Request.Header.Set("Content-Type", contentType)
		handler.UploadTexts(c)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid CSV row at line 3", decodeEnvelope(t, rec).Error["message"])
	})
}

func TestAdminStats(t *testing.T) {
	handler, _ := newAdminHandler(&fakeIngestion{}, 0)
	c, rec := newTestContext(http.MethodGet, "/admin/stats", nil, adminUser)
	middleware.WithResponseMeta()(c)
	handler.Stats(c)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, float64(4), envelope.Data["total"])
	assert.Equal(t, true, envelope.Meta["cache_hit"])
}
