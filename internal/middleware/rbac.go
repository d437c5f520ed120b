package middleware

import (
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/transcript-review-api/internal/models"
	appErrors "github.com/noah-isme/transcript-review-api/pkg/errors"
	"github.com/noah-isme/transcript-review-api/pkg/response"
)

// RequireRoles rejects callers whose role is not in the allowed set.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			response.Error(c, appErrors.ErrSessionRequired)
			c.Abort()
			return
		}
		if _, permitted := allowed[user.Role]; !permitted {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RoleScreen redirects callers whose role does not own the screen. The target is
// fallback when set, otherwise the caller's own home path, mounted under prefix.
func RoleScreen(prefix, fallback string, roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			response.Error(c, appErrors.ErrSessionRequired)
			c.Abort()
			return
		}
		if _, permitted := allowed[user.Role]; permitted {
			c.Next()
			return
		}

		target := fallback
		if target == "" {
			target = user.Role.HomePath()
		}
		location := prefix + target
		if token := c.Query(SessionQueryParam); token != "" {
			location += "?" + url.Values{SessionQueryParam: {token}}.Encode()
		}
		response.Redirect(c, location)
		c.Abort()
	}
}
