package usecase

import (
	"context"
	"errors"
	"math"

	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/apperror"
	"go-marketplace-backend/pkg/security"
)

type adminUsecase struct {
	adminRepo domain.AdminRepository
	secLog    *security.SecurityLogger
}

func NewAdminUsecase(adminRepo domain.AdminRepository, secLog *security.SecurityLogger) domain.AdminUsecase {
	if secLog == nil {
		secLog = security.NewNopSecurityLogger()
	}
	return &adminUsecase{adminRepo: adminRepo, secLog: secLog}
}

// GetStats returns dashboard statistics
func (u *adminUsecase) GetStats(ctx context.Context) (*domain.AdminStats, error) {
	if err := u.requireAdmin(ctx); err != nil {
		return nil, err
	}

	stats, err := u.adminRepo.GetStats(ctx)
	if err != nil {
		return nil, apperror.Internal(errors.New("Failed to fetch statistics: " + err.Error()))
	}

	return stats, nil
}

// ListUsers returns paginated users, optionally filtered by role. The pseudo
// role "none" lists users that have not picked a role yet.
func (u *adminUsecase) ListUsers(ctx context.Context, role string, page, pageSize int) (*domain.PaginatedResult[domain.AdminUser], error) {
	if err := u.requireAdmin(ctx); err != nil {
		return nil, err
	}

	r := domain.Role(role)
	if role != "" && role != "none" && !r.IsValid() {
		return nil, apperror.BadRequest("Invalid role filter")
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	users, total, err := u.adminRepo.ListUsers(ctx, r, page, pageSize)
	if err != nil {
		return nil, apperror.Internal(errors.New("Failed to fetch users: " + err.Error()))
	}

	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))

	return &domain.PaginatedResult[domain.AdminUser]{
		Data:       users,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// ChangeRole moves a user to another role. Admins cannot change their own.
func (u *adminUsecase) ChangeRole(ctx context.Context, userID string, role domain.Role) (*domain.AdminUser, error) {
	if err := u.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, apperror.BadRequest("User ID is required")
	}
	if !role.IsValid() {
		return nil, apperror.BadRequest("Invalid role")
	}
	adminID := ctxString(ctx, domain.KeyUserID)
	if adminID == userID {
		return nil, apperror.BadRequest("You cannot change your own role")
	}

	before, err := u.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := u.adminRepo.SetRole(ctx, userID, role); err != nil {
		return nil, apperror.Internal(errors.New("Failed to update user: " + err.Error()))
	}

	u.secLog.LogAdminAction(ctx, security.EventRoleModified, adminID, userID, map[string]interface{}{
		"from": string(before.Role),
		"to":   string(role),
	})

	return u.getUser(ctx, userID)
}

// DisableUser enables or disables a user
func (u *adminUsecase) DisableUser(ctx context.Context, userID string, disable bool) (*domain.AdminUser, error) {
	if err := u.requireAdmin(ctx); err != nil {
		return nil, err
	}

	if userID == "" {
		return nil, apperror.BadRequest("User ID is required")
	}
	adminID := ctxString(ctx, domain.KeyUserID)
	if disable && adminID == userID {
		return nil, apperror.BadRequest("You cannot disable your own account")
	}

	err := u.adminRepo.DisableUser(ctx, userID, disable)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperror.NotFound("User not found")
	}
	if err != nil {
		return nil, apperror.Internal(errors.New("Failed to update user: " + err.Error()))
	}

	u.secLog.LogAdminAction(ctx, security.EventUserDisabled, adminID, userID, map[string]interface{}{
		"disabled": disable,
	})

	return u.getUser(ctx, userID)
}

func (u *adminUsecase) getUser(ctx context.Context, userID string) (*domain.AdminUser, error) {
	user, err := u.adminRepo.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperror.NotFound("User not found")
	}
	if err != nil {
		return nil, apperror.Internal(errors.New("Failed to fetch user: " + err.Error()))
	}
	return user, nil
}

// requireAdmin checks if the current user has admin role
// Works with both Gin context (c.Set) and standard context.WithValue
func (u *adminUsecase) requireAdmin(ctx context.Context) error {
	if ctxRole(ctx) != domain.RoleAdmin {
		return apperror.Forbidden("Admin access required")
	}
	return nil
}
