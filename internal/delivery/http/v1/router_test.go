package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go-marketplace-backend/config"
	v1 "go-marketplace-backend/internal/delivery/http/v1"
	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/internal/session"
	"go-marketplace-backend/pkg/security"
	"go-marketplace-backend/pkg/token"
	"go-marketplace-backend/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    json.RawMessage        `json:"data"`
	Error   map[string]interface{} `json:"error"`
}

type countingDashboard struct {
	calls int
}

func (d *countingDashboard) Get(_ context.Context, userID string, role domain.Role) (*domain.Dashboard, error) {
	d.calls++
	return &domain.Dashboard{Role: role, Profile: domain.UserProfile{UserID: userID}}, nil
}

type testEnv struct {
	router    *gin.Engine
	sessions  *session.Service
	dashboard *countingDashboard
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	manager := session.NewManager(session.NewMemoryStorage(time.Hour), nil, session.Options{InitTimeout: time.Second})
	t.Cleanup(manager.Close)
	tokens := token.NewService("test-secret-test-secret-test-secret", time.Hour)
	dashboard := &countingDashboard{}

	router := v1.NewRouter(v1.RouterDeps{
		DashboardUC: dashboard,
		Tokens:      tokens,
		Sessions:    manager,
		Validate:    validation.New(),
		SecurityLog: security.NewNopSecurityLogger(),
		Config: &config.Config{
			Environment:              "test",
			RateLimitWindowSeconds:   60,
			RateLimitGlobalThreshold: 1000,
			RateLimitLoginThreshold:  100,
		},
	})
	return &testEnv{router: router, sessions: session.NewService(manager, tokens), dashboard: dashboard}
}

func (e *testEnv) login(t *testing.T, role domain.Role, verified bool) string {
	t.Helper()
	user := domain.AuthenticatedUser{
		ID:         "3b8f7c1e-0d5a-4e8b-9a61-5f0c2d7e9a10",
		Email:      "user@example.sa",
		Name:       "Sara Al Qahtani",
		Role:       role,
		IsVerified: verified,
		Location:   "Jeddah, Makkah",
		Phone:      "+966501234567",
		Language:   domain.LanguageArabic,
	}
	grant, err := e.sessions.Start(context.Background(), user, domain.NewUserProfile(user))
	require.NoError(t, err)
	return grant.Token
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestRoleAreaRedirectsOtherRoles(t *testing.T) {
	env := newTestEnv(t)
	tok := env.login(t, domain.RoleClient, true)

	w, body := env.do(t, http.MethodGet, "/v1/engineer/dashboard", tok, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "/client", body.Error["redirect"])
	assert.Zero(t, env.dashboard.calls, "handler must not run")
}

func TestRoleAreaAllowsOwnRole(t *testing.T) {
	env := newTestEnv(t)
	tok := env.login(t, domain.RoleEngineer, true)

	w, body := env.do(t, http.MethodGet, "/v1/engineer/dashboard", tok, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.Success)
	assert.Equal(t, 1, env.dashboard.calls)
}

func TestRoleAreaRequiresVerification(t *testing.T) {
	env := newTestEnv(t)
	tok := env.login(t, domain.RoleEngineer, false)

	w, body := env.do(t, http.MethodGet, "/v1/engineer/dashboard", tok, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, domain.PathAuthVerify, body.Error["redirect"])
	assert.Zero(t, env.dashboard.calls)
}

func TestProtectedRouteWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/v1/client/dashboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, domain.PathAuth, body.Error["redirect"])

	w, _ = env.do(t, http.MethodGet, "/v1/session", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, env.dashboard.calls)
}

func TestAdminAreaRejectsNonAdmins(t *testing.T) {
	env := newTestEnv(t)
	tok := env.login(t, domain.RoleEnterprise, true)

	w, body := env.do(t, http.MethodGet, "/v1/admin/stats", tok, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "/enterprise", body.Error["redirect"])
}

func TestSessionStateAndLogout(t *testing.T) {
	env := newTestEnv(t)
	tok := env.login(t, domain.RoleEngineer, true)

	w, body := env.do(t, http.MethodGet, "/v1/session", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st session.State
	require.NoError(t, json.Unmarshal(body.Data, &st))
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "Sara", st.Profile.FirstName)

	w, body = env.do(t, http.MethodPost, "/v1/session/logout", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, strings.Join(w.Header().Values("Set-Cookie"), "\n"), "session_token=;")

	// The token is still well-formed, but its session has ended.
	w, body = env.do(t, http.MethodGet, "/v1/session", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, domain.PathAuth, body.Error["redirect"])
}

func TestSessionUpdateUser(t *testing.T) {
	env := newTestEnv(t)
	tok := env.login(t, domain.RoleClient, true)

	w, body := env.do(t, http.MethodPatch, "/v1/session/user", tok, map[string]string{"name": "Sara Mohammed Al Qahtani"})
	require.Equal(t, http.StatusOK, w.Code)
	var st session.State
	require.NoError(t, json.Unmarshal(body.Data, &st))
	assert.Equal(t, "Sara Mohammed Al Qahtani", st.User.Name)
	assert.Equal(t, "Sara", st.Profile.FirstName)
	assert.Equal(t, "Mohammed Al Qahtani", st.Profile.LastName)
	assert.Equal(t, "Jeddah", st.Profile.City, "location parts untouched")

	w, body = env.do(t, http.MethodPatch, "/v1/session/user", tok, map[string]string{"phone": "12345"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body.Error, "fields")

	w, _ = env.do(t, http.MethodPatch, "/v1/session/user", tok, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNavigationResolve(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name     string
		role     domain.Role
		path     string
		allow    bool
		redirect string
	}{
		{"anonymous on public auth page", "", "/auth/role", true, ""},
		{"anonymous on role area", "", "/engineer/projects", false, "/auth"},
		{"engineer on own area", domain.RoleEngineer, "/engineer/projects", true, ""},
		{"engineer on client area", domain.RoleEngineer, "/client", false, "/engineer"},
		{"client on shared settings", domain.RoleClient, "/settings", true, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var tok string
			if tc.role != "" {
				tok = env.login(t, tc.role, true)
			}
			w, body := env.do(t, http.MethodGet, "/v1/navigation/resolve?path="+tc.path, tok, nil)
			require.Equal(t, http.StatusOK, w.Code)

			var decision struct {
				Allow    bool   `json:"allow"`
				Redirect string `json:"redirect"`
			}
			require.NoError(t, json.Unmarshal(body.Data, &decision))
			assert.Equal(t, tc.allow, decision.Allow)
			assert.Equal(t, tc.redirect, decision.Redirect)
		})
	}
}

func TestNavigationResolveRejectsRelativePath(t *testing.T) {
	env := newTestEnv(t)
	w, _ := env.do(t, http.MethodGet, "/v1/navigation/resolve?path=engineer", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccessLogOmitsEventsToken(t *testing.T) {
	var buf bytes.Buffer
	prev := gin.DefaultWriter
	gin.DefaultWriter = &buf
	t.Cleanup(func() { gin.DefaultWriter = prev })

	env := newTestEnv(t)
	tok := env.login(t, domain.RoleEngineer, true)

	req := httptest.NewRequest(http.MethodGet, "/v1/session/events?token="+tok, nil)
	req.Header.Set("Connection", "upgrade")
	req.Header.Set("Upgrade", "websocket")
	env.router.ServeHTTP(httptest.NewRecorder(), req)

	require.Contains(t, buf.String(), "/v1/session/events")
	assert.NotContains(t, buf.String(), tok)
}
