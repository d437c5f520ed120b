package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/transcript-review-api/internal/dto"
	"github.com/noah-isme/transcript-review-api/internal/middleware"
	"github.com/noah-isme/transcript-review-api/internal/models"
	appErrors "github.com/noah-isme/transcript-review-api/pkg/errors"
	"github.com/noah-isme/transcript-review-api/pkg/response"
)

// userFromContext returns the session user or writes a SESSION_REQUIRED error.
func userFromContext(c *gin.Context) (*models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrSessionRequired)
		return nil, false
	}
	return user, true
}

func requestMeta(c *gin.Context) dto.RequestMeta {
	return dto.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

// bind accepts JSON bodies and url-encoded or multipart forms alike.
func bind(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBind(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}
