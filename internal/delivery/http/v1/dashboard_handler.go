package v1

import (
	"net/http"

	"go-marketplace-backend/internal/delivery/http/middleware"
	"go-marketplace-backend/internal/delivery/http/response"
	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/security"

	"github.com/gin-gonic/gin"
)

type DashboardHandler struct {
	dashboardUC domain.DashboardUsecase
}

// NewDashboardHandler mounts one guarded area per self-assignable role. Each
// area sits behind the authenticated guard and then its own role guard.
func NewDashboardHandler(protected *gin.RouterGroup, dashboardUC domain.DashboardUsecase, secLog *security.SecurityLogger) {
	handler := &DashboardHandler{dashboardUC: dashboardUC}

	for _, role := range []domain.Role{domain.RoleEngineer, domain.RoleClient, domain.RoleEnterprise} {
		area := protected.Group("/"+string(role), middleware.RequireRole(secLog, domain.RequireAny, domain.Require(role)))
		area.GET("/dashboard", handler.Get)
	}
}

// Get godoc
// @Summary      Role dashboard
// @Description  Profile and payment summary for the caller. Served under /engineer, /client and /enterprise; a caller of another role is redirected to their own area.
// @Tags         dashboard
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=domain.Dashboard}
// @Failure      401  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /engineer/dashboard [get]
func (h *DashboardHandler) Get(c *gin.Context) {
	dashboard, err := h.dashboardUC.Get(c, callerID(c), callerRole(c))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Dashboard", dashboard)
}
