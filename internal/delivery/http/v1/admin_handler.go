package v1

import (
	"net/http"
	"strconv"
	"strings"

	"go-marketplace-backend/internal/delivery/http/middleware"
	"go-marketplace-backend/internal/delivery/http/response"
	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/apperror"
	"go-marketplace-backend/pkg/security"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	adminUC domain.AdminUsecase
}

func NewAdminHandler(protected *gin.RouterGroup, adminUC domain.AdminUsecase, secLog *security.SecurityLogger) {
	handler := &AdminHandler{adminUC: adminUC}

	admin := protected.Group("/admin", middleware.RequireRole(secLog, domain.RequireAny, domain.Require(domain.RoleAdmin)))
	{
		// Dashboard stats
		admin.GET("/stats", handler.GetStats)

		// User management
		admin.GET("/users", handler.ListUsers)
		admin.PATCH("/users/:id/role", handler.ChangeRole)
		admin.PATCH("/users/:id/disable", handler.DisableUser)
	}
}

// GetStats godoc
// @Summary      Get admin dashboard statistics
// @Description  Returns user counts per role and payment volume
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=domain.AdminStats}
// @Failure      403  {object}  response.Response
// @Router       /admin/stats [get]
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats, err := h.adminUC.GetStats(c)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Dashboard statistics", stats)
}

// ListUsers godoc
// @Summary      List all users
// @Description  Returns paginated list of users with optional role filter
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        role     query     string  false  "Filter by role (engineer, client, enterprise, admin, none)"
// @Param        page     query     int     false  "Page number"
// @Param        pageSize query     int     false  "Items per page"
// @Success      200      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	role := strings.ToLower(c.Query("role"))
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "10"))

	result, err := h.adminUC.ListUsers(c, role, page, pageSize)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Users list", result)
}

// ChangeRole godoc
// @Summary      Change a user's role
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string                    true  "User ID"
// @Param        body  body      domain.ChangeRoleRequest  true  "New role"
// @Success      200   {object}  response.Response{data=domain.AdminUser}
// @Failure      400   {object}  response.Response
// @Failure      404   {object}  response.Response
// @Router       /admin/users/{id}/role [patch]
func (h *AdminHandler) ChangeRole(c *gin.Context) {
	userID := c.Param("id")
	if userID == "" {
		c.Error(apperror.BadRequest("User ID is required"))
		return
	}

	var req domain.ChangeRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.adminUC.ChangeRole(c, userID, domain.Role(strings.ToLower(strings.TrimSpace(req.Role))))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Role updated", user)
}

// DisableUser godoc
// @Summary      Disable or enable a user
// @Description  A disabled user's sessions end on their next restore.
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                     true   "User ID"
// @Param        body     body      domain.DisableUserRequest  true   "Disabled flag"
// @Success      200      {object}  response.Response{data=domain.AdminUser}
// @Failure      403      {object}  response.Response
// @Router       /admin/users/{id}/disable [patch]
func (h *AdminHandler) DisableUser(c *gin.Context) {
	userID := c.Param("id")
	if userID == "" {
		c.Error(apperror.BadRequest("User ID is required"))
		return
	}

	var req domain.DisableUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.adminUC.DisableUser(c, userID, req.Disabled)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "User updated", user)
}
