package handler

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/transcript-review-api/internal/middleware"
	"github.com/noah-isme/transcript-review-api/internal/models"
)

type responseEnvelope struct {
	Data       map[string]interface{} `json:"data"`
	Error      map[string]interface{} `json:"error"`
	Pagination map[string]interface{} `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

// listEnvelope decodes responses whose data is a JSON array.
type listEnvelope[T any] struct {
	Data       []T                    `json:"data"`
	Pagination map[string]interface{} `json:"pagination"`
}

func newTestContext(method, target string, body io.Reader, user *models.User) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, body)
	if user != nil {
		c.Set(middleware.ContextUserKey, user)
	}
	return c, rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	return envelope
}

func decodeList[T any](t *testing.T, rec *httptest.ResponseRecorder) listEnvelope[T] {
	t.Helper()
	var envelope listEnvelope[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	return envelope
}

var (
	annotatorUser = &models.User{ID: "11111111-1111-1111-1111-111111111111", Email: "anna@example.com", Username: "anna", Role: models.RoleAnnotator}
	reviewerUser  = &models.User{ID: "22222222-2222-2222-2222-222222222222", Email: "rick@example.com", Username: "rick", Role: models.RoleReviewer}
	adminUser     = &models.User{ID: "33333333-3333-3333-3333-333333333333", Email: "root@example.com", Username: "root", Role: models.RoleAdmin}
	plainUser     = &models.User{ID: "44444444-4444-4444-4444-444444444444", Email: "new@example.com", Username: "new", Role: models.RoleUser}
)
