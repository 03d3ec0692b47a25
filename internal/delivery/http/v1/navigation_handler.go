package v1

import (
	"net/http"
	"strings"

	"go-marketplace-backend/internal/delivery/http/middleware"
	"go-marketplace-backend/internal/delivery/http/response"
	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/apperror"
	"go-marketplace-backend/pkg/metrics"

	"github.com/gin-gonic/gin"
)

type NavigationHandler struct{}

// NewNavigationHandler mounts the guard resolver. optional must attach the
// caller when a session is presented without rejecting anonymous requests.
func NewNavigationHandler(public *gin.RouterGroup, optional gin.HandlerFunc) {
	handler := &NavigationHandler{}
	public.GET("/navigation/resolve", orNoop(optional), handler.Resolve)
}

type navigationDecision struct {
	Path   string                   `json:"path"`
	Guards []domain.RoleRequirement `json:"guards"`
	domain.RouteDecision
}

// Resolve godoc
// @Summary      Resolve an SPA route
// @Description  Runs the route guards for path against the caller's session. A denied route carries the path to replace it with.
// @Tags         navigation
// @Produce      json
// @Param        path  query     string  true  "SPA path, e.g. /engineer/projects"
// @Success      200   {object}  response.Response
// @Failure      400   {object}  response.Response
// @Router       /navigation/resolve [get]
func (h *NavigationHandler) Resolve(c *gin.Context) {
	path := strings.TrimSpace(c.Query("path"))
	if path == "" || !strings.HasPrefix(path, "/") {
		c.Error(apperror.BadRequest("path must be an absolute SPA path"))
		return
	}

	guards := domain.RequirementsForPath(path)
	decision := domain.EvaluateGuards(middleware.GuardStateOf(c), guards...)
	if !decision.Allow {
		metrics.GuardRedirect(decision.Redirect)
	}
	if guards == nil {
		guards = []domain.RoleRequirement{}
	}

	response.Success(c, http.StatusOK, "Route resolved", navigationDecision{
		Path:          path,
		Guards:        guards,
		RouteDecision: decision,
	})
}
