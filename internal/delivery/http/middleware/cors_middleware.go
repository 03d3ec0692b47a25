package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var devOrigins = []string{
	"http://localhost:5173",
	"http://127.0.0.1:5173",
	"http://localhost:3000",
}

// OriginPolicy is the set of browser origins allowed to call the API.
type OriginPolicy map[string]bool

// NewOriginPolicy adds the localhost dev servers outside production.
func NewOriginPolicy(allowedOrigins []string, production bool) OriginPolicy {
	p := make(OriginPolicy, len(allowedOrigins)+len(devOrigins))
	for _, o := range allowedOrigins {
		p[strings.TrimRight(o, "/")] = true
	}
	if !production {
		for _, o := range devOrigins {
			p[o] = true
		}
	}
	return p
}

// Allows reports whether origin may call the API. Same-origin requests carry
// no Origin header.
func (p OriginPolicy) Allows(origin string) bool {
	return origin == "" || p[origin]
}

// CORSMiddleware allows the configured SPA origins.
func CORSMiddleware(allowedOrigins []string, production bool) gin.HandlerFunc {
	policy := NewOriginPolicy(allowedOrigins, production)

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		isAllowed := policy.Allows(origin)

		if isAllowed && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With, X-Request-ID, X-CSRF-Token")
			c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, Retry-After, Content-Disposition")
			c.Header("Access-Control-Max-Age", "86400")
		}
		c.Header("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			if isAllowed {
				c.AbortWithStatus(http.StatusNoContent)
			} else {
				c.AbortWithStatus(http.StatusForbidden)
			}
			return
		}

		c.Next()
	}
}
