package usecase

import (
	"context"
	"errors"
	"time"

	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/apperror"
)

type authUsecase struct {
	userRepo    domain.UserRepository
	profileRepo domain.ProfileRepository
}

func NewAuthUsecase(userRepo domain.UserRepository, profileRepo domain.ProfileRepository) domain.AuthUsecase {
	return &authUsecase{userRepo: userRepo, profileRepo: profileRepo}
}

// EnsureUserExists creates the users row on first sight and keeps role and
// verification in sync afterwards. Idempotent.
func (u *authUsecase) EnsureUserExists(ctx context.Context, user *domain.User) error {
	existing, err := u.userRepo.GetByID(ctx, user.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if existing != nil {
		changed := false
		if user.Role != "" && existing.Role != user.Role {
			existing.Role = user.Role
			changed = true
		}
		// Verification only ever moves forward.
		if user.IsVerified && !existing.IsVerified {
			existing.IsVerified = true
			changed = true
		}
		if !changed {
			return nil
		}
		existing.UpdatedAt = time.Now()
		return u.userRepo.Update(ctx, existing)
	}

	// No role until the user picks one in the wizard.
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	return u.userRepo.Create(ctx, user)
}

// AssignRole sets the role on the users row. Callers authorize.
func (u *authUsecase) AssignRole(ctx context.Context, userID string, role domain.Role) error {
	if !role.IsValid() {
		return apperror.BadRequest("Invalid role")
	}

	user, err := u.userRepo.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return apperror.NotFound("User not found")
	}
	if err != nil {
		return err
	}

	user.Role = role
	user.UpdatedAt = time.Now()
	return u.userRepo.Update(ctx, user)
}

func (u *authUsecase) GetCurrentUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := u.userRepo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperror.NotFound("User not found")
	}
	return user, err
}

func (u *authUsecase) CheckEmailExists(ctx context.Context, email string) (bool, error) {
	user, err := u.userRepo.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user != nil, nil
}

// RefreshUser folds the users and profiles rows back into the session user.
// The users row is authoritative for role and verification.
func (u *authUsecase) RefreshUser(ctx context.Context, current domain.AuthenticatedUser) (*domain.AuthenticatedUser, *domain.UserProfile, error) {
	row, err := u.userRepo.GetByID(ctx, current.ID)
	if err != nil {
		return nil, nil, err
	}
	if row.IsDisabled {
		return nil, nil, domain.ErrUserDisabled
	}

	profile, err := u.profileRepo.GetByUserID(ctx, current.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		user := current
		user.Role = row.Role
		user.IsVerified = row.IsVerified
		p := domain.NewUserProfile(user)
		return &user, &p, nil
	case err != nil:
		return nil, nil, err
	}

	user := profile.ToUser()
	user.Role = row.Role
	user.IsVerified = row.IsVerified
	if user.Email == "" {
		user.Email = row.Email
	}
	profile.Sync(user, false, false)
	return &user, profile, nil
}
