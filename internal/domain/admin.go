package domain

import "context"

// AdminStats contains dashboard statistics
type AdminStats struct {
	TotalUsers    int64        `json:"totalUsers"`
	UsersByRole   UsersByRole  `json:"usersByRole"`
	Unverified    int64        `json:"unverified"`
	Disabled      int64        `json:"disabled"`
	TotalPayments int64        `json:"totalPayments"`
	Volume        float64      `json:"volume"` // completed incoming, SAR
	SystemHealth  SystemHealth `json:"systemHealth"`
}

type UsersByRole struct {
	Engineer   int64 `json:"engineer"`
	Client     int64 `json:"client"`
	Enterprise int64 `json:"enterprise"`
	Admin      int64 `json:"admin"`
	None       int64 `json:"none"`
}

type SystemHealth struct {
	Status      string `json:"status"`      // "healthy", "degraded", "down"
	LastChecked string `json:"lastChecked"` // ISO8601 timestamp
}

// AdminUser represents a user for admin management
type AdminUser struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       Role   `json:"role"`
	IsVerified bool   `json:"isVerified"`
	IsDisabled bool   `json:"isDisabled"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,user_role"`
}

type DisableUserRequest struct {
	Disabled bool `json:"disabled"`
}

// PaginatedResult for list responses
type PaginatedResult[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalPages int   `json:"totalPages"`
}

// AdminRepository defines admin-specific data access
type AdminRepository interface {
	GetStats(ctx context.Context) (*AdminStats, error)

	ListUsers(ctx context.Context, role Role, page, pageSize int) ([]AdminUser, int64, error)
	GetUser(ctx context.Context, userID string) (*AdminUser, error)
	SetRole(ctx context.Context, userID string, role Role) error
	DisableUser(ctx context.Context, userID string, disable bool) error
}

// AdminUsecase defines admin business logic
type AdminUsecase interface {
	GetStats(ctx context.Context) (*AdminStats, error)
	ListUsers(ctx context.Context, role string, page, pageSize int) (*PaginatedResult[AdminUser], error)
	ChangeRole(ctx context.Context, userID string, role Role) (*AdminUser, error)
	DisableUser(ctx context.Context, userID string, disable bool) (*AdminUser, error)
}
