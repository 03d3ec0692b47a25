package usecase

import (
	"context"
	"errors"

	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/apperror"
	"go-marketplace-backend/pkg/avatar"
	"go-marketplace-backend/pkg/logger"
	"go-marketplace-backend/pkg/security"

	"github.com/go-playground/validator/v10"
)

// AvatarProcessor resizes and stores an uploaded avatar.
type AvatarProcessor interface {
	Process(ctx context.Context, userID string, data []byte) (string, error)
}

type profileUsecase struct {
	profileRepo domain.ProfileRepository
	avatars     AvatarProcessor
	validate    *validator.Validate
}

func NewProfileUsecase(profileRepo domain.ProfileRepository, avatars AvatarProcessor, validate *validator.Validate) domain.ProfileUsecase {
	return &profileUsecase{
		profileRepo: profileRepo,
		avatars:     avatars,
		validate:    validate,
	}
}

func (u *profileUsecase) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	if err := requireSelf(ctx, userID); err != nil {
		return nil, err
	}
	return u.load(ctx, userID)
}

// UpdateProfile applies the same merge as the session's updateUser and
// mirrors it to the profiles row.
func (u *profileUsecase) UpdateProfile(ctx context.Context, userID string, update domain.UserUpdate) (*domain.UserProfile, error) {
	if err := requireSelf(ctx, userID); err != nil {
		return nil, err
	}
	if update.IsEmpty() {
		return nil, apperror.BadRequest("No changes provided")
	}
	if err := u.validate.Struct(update); err != nil {
		lang := domain.LanguageArabic
		if update.Language != nil {
			lang = domain.NormalizeLanguage(*update.Language)
		}
		return nil, validationFailed(err, lang)
	}

	profile, err := u.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	user := profile.ToUser()
	nameChanged, locationChanged := update.Apply(&user)
	profile.Sync(user, nameChanged, locationChanged)

	if err := u.profileRepo.Update(ctx, profile); err != nil {
		return nil, apperror.Unavailable("Could not save profile", err)
	}
	return profile, nil
}

func (u *profileUsecase) UploadAvatar(ctx context.Context, userID string, filename string, data []byte) (string, error) {
	if err := requireSelf(ctx, userID); err != nil {
		return "", err
	}
	if u.avatars == nil {
		return "", apperror.Unavailable("Avatar storage is not configured", nil)
	}
	if len(data) > security.MaxAvatarBytes {
		return "", apperror.BadRequest("File is too large (max 5MB)")
	}
	if res := security.ValidateImage(filename, data); !res.Valid {
		return "", apperror.BadRequest(res.Error)
	}

	profile, err := u.load(ctx, userID)
	if err != nil {
		return "", err
	}

	url, err := u.avatars.Process(ctx, userID, data)
	if errors.Is(err, avatar.ErrDecode) {
		return "", apperror.BadRequest("Image could not be read")
	}
	if err != nil {
		logger.Log.ErrorContext(ctx, "avatar upload failed", "user_id", userID, "error", err)
		return "", apperror.Unavailable("Could not store avatar", err)
	}

	profile.Avatar = url
	if err := u.profileRepo.Update(ctx, profile); err != nil {
		return "", apperror.Unavailable("Could not save profile", err)
	}
	return url, nil
}

func (u *profileUsecase) load(ctx context.Context, userID string) (*domain.UserProfile, error) {
	profile, err := u.profileRepo.GetByUserID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperror.NotFound("Profile not found")
	}
	if err != nil {
		return nil, apperror.Unavailable("Could not load profile", err)
	}
	return profile, nil
}
