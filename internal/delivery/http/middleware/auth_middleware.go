package middleware

import (
	"net/http"
	"strings"

	"go-marketplace-backend/internal/delivery/http/response"
	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/internal/session"
	"go-marketplace-backend/pkg/logger"
	"go-marketplace-backend/pkg/token"

	"github.com/gin-gonic/gin"
)

const (
	// SessionCookie carries the session token when no Authorization header is sent.
	SessionCookie = "session_token"

	sessionStoreKey = "SessionStore"
)

// SessionAuth resolves the session token to an initialized session store and
// exposes the caller on the gin context. Requests without an authenticated
// session are rejected with a redirect hint to /auth.
func SessionAuth(tokens *token.Service, sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !attachSession(c, tokens, sessions, true) {
			return
		}
		c.Next()
	}
}

// OptionalSession attaches the caller when a valid session is presented and
// lets anonymous requests through untouched.
func OptionalSession(tokens *token.Service, sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		attachSession(c, tokens, sessions, false)
		c.Next()
	}
}

// attachSession reports whether an authenticated session was attached. When
// required it also writes the rejection.
func attachSession(c *gin.Context, tokens *token.Service, sessions *session.Manager, required bool) bool {
	raw := bearerToken(c)
	if raw == "" {
		if required {
			unauthenticated(c, "Authentication required")
		}
		return false
	}

	claims, err := tokens.Parse(raw)
	if err != nil {
		if required {
			unauthenticated(c, "Invalid or expired session")
		}
		return false
	}

	store, err := sessions.Open(c.Request.Context(), claims.SessionID)
	if err != nil {
		logger.Log.ErrorContext(c.Request.Context(), "failed to open session", "session_id", claims.SessionID, "error", err)
		if required {
			response.Error(c, http.StatusServiceUnavailable, "Session service unavailable", nil)
			c.Abort()
		}
		return false
	}

	state, err := store.Initialize(c.Request.Context())
	if err != nil {
		logger.Log.WarnContext(c.Request.Context(), "session restore failed", "session_id", claims.SessionID, "error", err)
	}
	if !state.IsAuthenticated || state.User == nil || state.User.ID != claims.Subject {
		if required {
			unauthenticated(c, "Session has ended")
		}
		return false
	}

	c.Set(string(domain.KeyUserID), state.User.ID)
	c.Set(string(domain.KeyUserEmail), state.User.Email)
	c.Set(string(domain.KeyUserRole), string(state.User.Role))
	c.Set(string(domain.KeySessionID), claims.SessionID)
	c.Set(string(domain.KeyGuardState), state.GuardState())
	c.Set(sessionStoreKey, store)
	return true
}

// SessionStore returns the store attached by SessionAuth.
func SessionStore(c *gin.Context) (*session.Store, bool) {
	v, ok := c.Get(sessionStoreKey)
	if !ok {
		return nil, false
	}
	store, ok := v.(*session.Store)
	return store, ok
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	// Browsers cannot set headers on websocket upgrades.
	if c.IsWebsocket() {
		return c.Query("token")
	}
	return ""
}

func unauthenticated(c *gin.Context, msg string) {
	response.Error(c, http.StatusUnauthorized, msg, gin.H{"redirect": domain.PathAuth})
	c.Abort()
}
