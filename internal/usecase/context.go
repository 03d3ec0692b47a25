package usecase

import (
	"context"

	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/apperror"
)

// ctxString reads a value set either by gin (c.Set with a string key) or by
// context.WithValue with the typed key.
func ctxString(ctx context.Context, key domain.CtxKey) string {
	if v, ok := ctx.Value(string(key)).(string); ok && v != "" {
		return v
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func ctxRole(ctx context.Context) domain.Role {
	return domain.Role(ctxString(ctx, domain.KeyUserRole))
}

// requireSelf rejects access to another user's data unless the caller is an
// admin.
func requireSelf(ctx context.Context, userID string) error {
	caller := ctxString(ctx, domain.KeyUserID)
	if caller == "" {
		return apperror.Unauthorized("User not authenticated")
	}
	if caller != userID && ctxRole(ctx) != domain.RoleAdmin {
		return apperror.Forbidden("You can only access your own data")
	}
	return nil
}
