package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/transcript-review-api/internal/dto"
	"github.com/noah-isme/transcript-review-api/internal/models"
	"github.com/noah-isme/transcript-review-api/pkg/response"
)

type sessionStarter interface {
	Start(ctx context.Context, req dto.CreateSessionRequest, meta dto.RequestMeta) (*models.Session, error)
}

// SessionHandler exchanges an email for a session token.
type SessionHandler struct {
	service sessionStarter
}

// NewSessionHandler creates a new handler.
func NewSessionHandler(svc sessionStarter) *SessionHandler {
	return &SessionHandler{service: svc}
}

// Create godoc
// @Summary Start a session
// @Description Resolve the email into a user, creating it with role USER when unknown, and issue a session token
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if !bind(c, &req, "invalid session payload") {
		return
	}

	session, err := h.service.Start(c.Request.Context(), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, session)
}
