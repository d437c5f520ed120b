package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/transcript-review-api/internal/dto"
	"github.com/noah-isme/transcript-review-api/internal/middleware"
	"github.com/noah-isme/transcript-review-api/internal/models"
	appErrors "github.com/noah-isme/transcript-review-api/pkg/errors"
	"github.com/noah-isme/transcript-review-api/pkg/response"
)

const (
	msgRoleUpdated     = "Role updated successfully"
	dashboardUserLimit = 100
)

type userAdminService interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error)
	UpdateRole(ctx context.Context, actor *models.User, req dto.UpdateRoleRequest, meta dto.RequestMeta) (*models.User, error)
}

type queueStatsService interface {
	Stats(ctx context.Context) (*models.QueueStats, bool, error)
}

type ingestionService interface {
	Ingest(ctx context.Context, actor *models.User, req dto.IngestRequest, meta dto.RequestMeta) (*dto.IngestResult, error)
}

// AdminHandler serves user management, queue stats and bulk uploads.
type AdminHandler struct {
	users          userAdminService
	stats          queueStatsService
	ingestion      ingestionService
	maxUploadBytes int64
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(users userAdminService, stats queueStatsService, ingestion ingestionService, maxUploadBytes int64) *AdminHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &AdminHandler{users: users, stats: stats, ingestion: ingestion, maxUploadBytes: maxUploadBytes}
}

// Dashboard godoc
// @Summary Admin dashboard
// @Description Lists users with their roles alongside queue counts
// @Tags Admin
// @Produce json
// @Param session query string false "Session token"
// @Success 200 {object} response.Envelope
// @Success 302 "Redirect for non-admins"
// @Router /admin [get]
func (h *AdminHandler) Dashboard(c *gin.Context) {
	user, ok := userFromContext(c)
	if !ok {
		return
	}

	users, _, err := h.users.List(c.Request.Context(), models.UserFilter{Page: 1, PageSize: dashboardUserLimit, SortBy: "email", SortOrder: "asc"})
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, hit, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "cache_hit", hit)

	response.JSON(c, http.StatusOK, dto.AdminDashboardResponse{User: *user, Users: users, Stats: *stats}, nil, middleware.ExtractMeta(c))
}

// ListUsers godoc
// @Summary List users
// @Description List users with pagination and filtering
// @Tags Admin
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param role query string false "Role filter"
// @Param search query string false "Search term"
// @Param sort_by query string false "Sort by"
// @Param sort_order query string false "Sort order"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	var filter models.UserFilter

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}
	if role := c.Query("role"); role != "" {
		r := models.UserRole(strings.ToUpper(role))
		filter.Role = &r
	}
	filter.Search = c.Query("search")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	users, pagination, err := h.users.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, users, pagination)
}

// UpdateRole godoc
// @Summary Change a user's role
// @Tags Admin
// @Accept json
// @Accept x-www-form-urlencoded
// @Produce json
// @Param payload body dto.UpdateRoleRequest true "Role payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/users [post]
func (h *AdminHandler) UpdateRole(c *gin.Context) {
	actor, ok := userFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateRoleRequest
	if !bind(c, &req, "invalid role payload") {
		return
	}
	req.Role = models.UserRole(strings.ToUpper(strings.TrimSpace(string(req.Role))))

	user, err := h.users.UpdateRole(c.Request.Context(), actor, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, dto.UpdateRoleResponse{Success: true, Message: msgRoleUpdated, User: *user}, nil)
}

// Stats godoc
// @Summary Queue counts
// @Description Items awaiting annotation and review, resolved and claimed counts
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, hit, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "cache_hit", hit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// UploadTexts godoc
// @Summary Bulk upload work items
// @Description Accepts a .csv or .json file, either as the "data" text field with its "name" or as a "file" part. All records are stored or none are.
// @Tags Admin
// @Accept multipart/form-data
// @Produce json
// @Param name formData string false "Original file name; the extension selects the parser"
// @Param data formData string false "File contents"
// @Param file formData file false "File upload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /admin/texts [post]
func (h *AdminHandler) UploadTexts(c *gin.Context) {
	actor, ok := userFromContext(c)
	if !ok {
		return
	}

	req, err := h.readUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.ingestion.Ingest(c.Request.Context(), actor, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, dto.IngestResponse{
		Success: true,
		Message: fmt.Sprintf("Successfully processed %d records", result.Count),
		Data:    *result,
	}, nil)
}

func (h *AdminHandler) readUpload(c *gin.Context) (dto.IngestRequest, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	var err error
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		err = c.Request.ParseMultipartForm(h.maxUploadBytes)
	} else {
		err = c.Request.ParseForm()
	}
	if err != nil {
		return dto.IngestRequest{}, uploadError(err)
	}

	req := dto.IngestRequest{
		FileName: strings.TrimSpace(c.PostForm("name")),
		Content:  []byte(c.PostForm("data")),
	}

	header, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return req, nil
		}
		return dto.IngestRequest{}, uploadError(err)
	}
	file, err := header.Open()
	if err != nil {
		return dto.IngestRequest{}, uploadError(err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return dto.IngestRequest{}, uploadError(err)
	}
	req.Content = content
	if req.FileName == "" {
		req.FileName = header.Filename
	}
	return req, nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		return appErrors.Wrap(err, appErrors.ErrPayloadTooLarge.Code, appErrors.ErrPayloadTooLarge.Status, appErrors.ErrPayloadTooLarge.Message)
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid upload payload")
}
