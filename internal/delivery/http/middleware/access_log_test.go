package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRedactQuery(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/v1/session", "/v1/session"},
		{"/v1/session/events?token=eyJhbGciOi.abc.def", "/v1/session/events?token=REDACTED"},
		{"/v1/x?lang=en&token=secret&page=2", "/v1/x?lang=en&token=REDACTED&page=2"},
		{"/v1/x?Access_Token=secret", "/v1/x?Access_Token=REDACTED"},
		{"/v1/navigation/resolve?path=/engineer", "/v1/navigation/resolve?path=/engineer"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, redactQuery(tc.in))
	}
}

func TestAccessLoggerHidesSessionToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(AccessLogger(&buf))
	r.GET("/v1/session/events", func(c *gin.Context) { c.Status(http.StatusUnauthorized) })

	req := httptest.NewRequest(http.MethodGet, "/v1/session/events?token=eyJhbGciOiJIUzI1NiJ9.payload.sig", nil)
	req.Header.Set("Connection", "upgrade")
	req.Header.Set("Upgrade", "websocket")
	r.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	assert.Contains(t, line, "/v1/session/events?token=REDACTED")
	assert.NotContains(t, line, "eyJhbGciOiJIUzI1NiJ9")
}
