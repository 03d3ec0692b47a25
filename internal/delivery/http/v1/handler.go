package v1

import (
	"net/http"
	"time"

	"go-marketplace-backend/internal/delivery/http/middleware"
	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

func noop(c *gin.Context) { c.Next() }

func orNoop(h gin.HandlerFunc) gin.HandlerFunc {
	if h == nil {
		return noop
	}
	return h
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.Error(apperror.BadRequest("Invalid request body"))
		return false
	}
	return true
}

func callerID(c *gin.Context) string {
	return c.GetString(string(domain.KeyUserID))
}

func callerRole(c *gin.Context) domain.Role {
	return domain.Role(c.GetString(string(domain.KeyUserRole)))
}

// requestLanguage picks the language from ?lang= or Accept-Language.
func requestLanguage(c *gin.Context) domain.Language {
	if l := c.Query("lang"); l != "" {
		return domain.NormalizeLanguage(l)
	}
	return domain.NormalizeLanguage(c.GetHeader("Accept-Language"))
}

func setSessionCookie(c *gin.Context, token string, expiresAt time.Time, secure bool) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, token, maxAge, "/", "", secure, true)
}

func clearSessionCookie(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", secure, true)
}
