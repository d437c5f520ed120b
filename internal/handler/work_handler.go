package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/transcript-review-api/internal/dto"
	"github.com/noah-isme/transcript-review-api/internal/models"
	"github.com/noah-isme/transcript-review-api/pkg/response"
)

const (
	msgRoleUnassigned   = "You are yet to assign a role. Please contact the admin."
	msgNoAnnotationWork = "No more work to annotate"
	msgNoReviewWork     = "No pending ratings to review"
	msgAnnotationReady  = "Item ready for annotation"
	msgReviewReady      = "Rating ready for review"
)

type workService interface {
	Next(ctx context.Context, user *models.User) (*models.Rate, error)
	Annotate(ctx context.Context, user *models.User, req dto.AnnotateRequest, meta dto.RequestMeta) (*models.Rate, error)
	Review(ctx context.Context, user *models.User, req dto.ReviewRequest, meta dto.RequestMeta) (*models.Rate, error)
	Release(ctx context.Context, user *models.User, req dto.ReleaseRequest) error
}

// WorkHandler serves the annotator and reviewer screens and their actions.
type WorkHandler struct {
	service workService
}

// NewWorkHandler creates a new handler.
func NewWorkHandler(svc workService) *WorkHandler {
	return &WorkHandler{service: svc}
}

// AnnotatorScreen godoc
// @Summary Annotator work screen
// @Description Claims the next unrated item for an annotator. USER accounts receive a placeholder message; reviewers and admins are redirected.
// @Tags Work
// @Produce json
// @Param session query string false "Session token"
// @Success 200 {object} response.Envelope
// @Success 302 "Redirect to the caller's screen"
// @Failure 400 {object} response.Envelope
// @Router / [get]
func (h *WorkHandler) AnnotatorScreen(c *gin.Context) {
	user, ok := userFromContext(c)
	if !ok {
		return
	}

	screen := dto.WorkScreenResponse{User: *user}
	if user.Role != models.RoleAnnotator {
		screen.Message = msgRoleUnassigned
		response.JSON(c, http.StatusOK, screen, nil)
		return
	}

	rate, err := h.service.Next(c.Request.Context(), user)
	if err != nil {
		response.Error(c, err)
		return
	}
	screen.Content = rate
	screen.Message = msgAnnotationReady
	if rate == nil {
		screen.Message = msgNoAnnotationWork
	}
	response.JSON(c, http.StatusOK, screen, nil)
}

// ReviewerScreen godoc
// @Summary Reviewer work screen
// @Description Claims the next rated item awaiting review
// @Tags Work
// @Produce json
// @Param session query string false "Session token"
// @Success 200 {object} response.Envelope
// @Success 302 "Redirect to the caller's screen"
// @Router /reviewer [get]
func (h *WorkHandler) ReviewerScreen(c *gin.Context) {
	user, ok := userFromContext(c)
	if !ok {
		return
	}

	rate, err := h.service.Next(c.Request.Context(), user)
	if err != nil {
		response.Error(c, err)
		return
	}
	screen := dto.WorkScreenResponse{User: *user, Rate: rate, Message: msgReviewReady}
	if rate == nil {
		screen.Message = msgNoReviewWork
	}
	response.JSON(c, http.StatusOK, screen, nil)
}

// SaveFile godoc
// @Summary Submit an annotation
// @Description Records a 1-10 rating and optional corrected transcription for the claimed item
// @Tags Work
// @Accept json
// @Accept x-www-form-urlencoded
// @Produce json
// @Param payload body dto.AnnotateRequest true "Annotation payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /saveFile [post]
func (h *WorkHandler) SaveFile(c *gin.Context) {
	user, ok := userFromContext(c)
	if !ok {
		return
	}
	var req dto.AnnotateRequest
	if !bind(c, &req, "invalid annotation payload") {
		return
	}

	rate, err := h.service.Annotate(c.Request.Context(), user, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.WorkActionResponse{Success: true, Rate: rate}, nil)
}

// Review godoc
// @Summary Submit a review decision
// @Description Approves or rejects a rated item
// @Tags Work
// @Accept json
// @Accept x-www-form-urlencoded
// @Produce json
// @Param payload body dto.ReviewRequest true "Review payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reviewer [post]
func (h *WorkHandler) Review(c *gin.Context) {
	user, ok := userFromContext(c)
	if !ok {
		return
	}
	var req dto.ReviewRequest
	if !bind(c, &req, "invalid review payload") {
		return
	}

	rate, err := h.service.Review(c.Request.Context(), user, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.WorkActionResponse{Success: true, Rate: rate}, nil)
}

// Release godoc
// @Summary Release a claim
// @Description Returns a claimed item to its queue before the claim expires
// @Tags Work
// @Accept json
// @Produce json
// @Param payload body dto.ReleaseRequest true "Release payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /release [post]
func (h *WorkHandler) Release(c *gin.Context) {
	user, ok := userFromContext(c)
	if !ok {
		return
	}
	var req dto.ReleaseRequest
	if !bind(c, &req, "invalid release payload") {
		return
	}

	if err := h.service.Release(c.Request.Context(), user, req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.WorkActionResponse{Success: true}, nil)
}
