package middleware

import (
	"net/http"

	"go-marketplace-backend/internal/delivery/http/response"
	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/metrics"
	"go-marketplace-backend/pkg/security"

	"github.com/gin-gonic/gin"
)

// GuardStateOf reads the guard state set by SessionAuth. Without a session
// the zero value (not authenticated) is returned.
func GuardStateOf(c *gin.Context) domain.GuardState {
	v, ok := c.Get(string(domain.KeyGuardState))
	if !ok {
		return domain.GuardState{}
	}
	state, _ := v.(domain.GuardState)
	return state
}

// RequireRole applies nested role guards, outermost first. A denied request
// never reaches the handler; the response names the SPA route to replace the
// current one with.
func RequireRole(secLog *security.SecurityLogger, reqs ...domain.RoleRequirement) gin.HandlerFunc {
	if secLog == nil {
		secLog = security.DefaultLogger()
	}
	return func(c *gin.Context) {
		state := GuardStateOf(c)
		decision := domain.EvaluateGuards(state, reqs...)
		if decision.Allow {
			c.Next()
			return
		}

		metrics.GuardRedirect(decision.Redirect)
		secLog.LogRouteDenied(c.Request.Context(), c.GetString(string(domain.KeyUserID)),
			string(state.Role), c.Request.URL.Path, decision.Redirect, c.GetString(requestIDKey))

		code, msg := http.StatusForbidden, "Access denied"
		switch decision.Redirect {
		case domain.PathAuth:
			if !state.IsAuthenticated {
				code, msg = http.StatusUnauthorized, "Authentication required"
			}
		case domain.PathAuthVerify:
			msg = "Account verification required"
		case domain.PathAuthRole:
			msg = "Role selection required"
		}
		response.Error(c, code, msg, gin.H{"redirect": decision.Redirect})
		c.Abort()
	}
}
