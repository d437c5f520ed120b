package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/transcript-review-api/internal/dto"
	"github.com/noah-isme/transcript-review-api/internal/models"
	"github.com/noah-isme/transcript-review-api/internal/service"
	appErrors "github.com/noah-isme/transcript-review-api/pkg/errors"
	"github.com/noah-isme/transcript-review-api/pkg/response"
)

type historyService interface {
	List(ctx context.Context, user *models.User, limit, offset int) ([]models.HistoryEntry, *models.Pagination, error)
	Export(ctx context.Context, user *models.User, format string) (*service.ExportFile, error)
}

// HistoryHandler lists and exports a user's past work.
type HistoryHandler struct {
	service historyService
}

// NewHistoryHandler creates a new handler.
func NewHistoryHandler(svc historyService) *HistoryHandler {
	return &HistoryHandler{service: svc}
}

// List godoc
// @Summary Work history
// @Description Items the caller annotated or reviewed, newest first. Reviewers see the items they resolved.
// @Tags History
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Rows to skip"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /history [get]
func (h *HistoryHandler) List(c *gin.Context) {
	user, ok := userFromContext(c)
	if !ok {
		return
	}

	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		response.Error(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		response.Error(c, err)
		return
	}

	entries, pagination, err := h.service.List(c.Request.Context(), user, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, dto.HistoryResponse{Ratings: entries}, pagination)
}

// Export godoc
// @Summary Export work history
// @Tags History
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /history/export [get]
func (h *HistoryHandler) Export(c *gin.Context) {
	user, ok := userFromContext(c)
	if !ok {
		return
	}

	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "csv")))
	file, err := h.service.Export(c.Request.Context(), user, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Attachment(c, file.Name, file.ContentType, file.Body)
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, key+" must be a non-negative integer")
	}
	return value, nil
}
