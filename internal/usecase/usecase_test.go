package usecase_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/internal/usecase"
	"go-marketplace-backend/pkg/apperror"
	"go-marketplace-backend/pkg/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock Repositories
type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}
func (m *MockUserRepo) Update(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}
func (m *MockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}
// GetByID hands out a copy, like a row scanned fresh from the table.
func (m *MockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	row := *args.Get(0).(*domain.User)
	return &row, args.Error(1)
}

type MockProfileRepo struct {
	mock.Mock
}

func (m *MockProfileRepo) GetByUserID(ctx context.Context, userID string) (*domain.UserProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserProfile), args.Error(1)
}
func (m *MockProfileRepo) Create(ctx context.Context, profile *domain.UserProfile) error {
	return m.Called(ctx, profile).Error(0)
}
func (m *MockProfileRepo) Update(ctx context.Context, profile *domain.UserProfile) error {
	return m.Called(ctx, profile).Error(0)
}

type MockAdminRepo struct {
	mock.Mock
}

func (m *MockAdminRepo) GetStats(ctx context.Context) (*domain.AdminStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AdminStats), args.Error(1)
}
func (m *MockAdminRepo) ListUsers(ctx context.Context, role domain.Role, page, pageSize int) ([]domain.AdminUser, int64, error) {
	args := m.Called(ctx, role, page, pageSize)
	return args.Get(0).([]domain.AdminUser), args.Get(1).(int64), args.Error(2)
}
func (m *MockAdminRepo) GetUser(ctx context.Context, userID string) (*domain.AdminUser, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AdminUser), args.Error(1)
}
func (m *MockAdminRepo) SetRole(ctx context.Context, userID string, role domain.Role) error {
	return m.Called(ctx, userID, role).Error(0)
}
func (m *MockAdminRepo) DisableUser(ctx context.Context, userID string, disable bool) error {
	return m.Called(ctx, userID, disable).Error(0)
}

type MockPaymentRepo struct {
	mock.Mock
}

func (m *MockPaymentRepo) List(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Payment), args.Get(1).(int64), args.Error(2)
}
func (m *MockPaymentRepo) ListAll(ctx context.Context, userID string) ([]domain.Payment, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Payment), args.Error(1)
}

// withCaller mimics what the auth middleware puts on the request context.
func withCaller(userID string, role domain.Role) context.Context {
	ctx := context.WithValue(context.Background(), domain.KeyUserID, userID)
	return context.WithValue(ctx, domain.KeyUserRole, string(role))
}

func appErrorOf(t *testing.T, err error) *apperror.AppError {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr
}

func TestProfileIDOR(t *testing.T) {
	mockRepo := new(MockProfileRepo)
	uc := usecase.NewProfileUsecase(mockRepo, nil, validation.New())

	t.Run("Should fail when Context UserID does not match Argument UserID", func(t *testing.T) {
		_, err := uc.GetProfile(withCaller("user1", domain.RoleEngineer), "user2")
		assert.Error(t, err)
		assert.Equal(t, http.StatusForbidden, apperror.CodeOf(err))
	})

	t.Run("Should fail safely when Context UserID is nil", func(t *testing.T) {
		_, err := uc.GetProfile(context.Background(), "user1")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "User not authenticated")
	})

	t.Run("Admins may read any profile", func(t *testing.T) {
		ctx := withCaller("admin1", domain.RoleAdmin)
		mockRepo.On("GetByUserID", ctx, "user2").Return(&domain.UserProfile{UserID: "user2"}, nil).Once()
		p, err := uc.GetProfile(ctx, "user2")
		require.NoError(t, err)
		assert.Equal(t, "user2", p.UserID)
	})
}

func TestUpdateProfileRederivesName(t *testing.T) {
	repo := new(MockProfileRepo)
	uc := usecase.NewProfileUsecase(repo, nil, validation.New())
	ctx := withCaller("u1", domain.RoleClient)

	repo.On("GetByUserID", ctx, "u1").Return(&domain.UserProfile{
		UserID: "u1", Name: "Old Name", FirstName: "Old", LastName: "Name",
		Location: "Jeddah", City: "Jeddah", Role: domain.RoleClient,
	}, nil)
	repo.On("Update", ctx, mock.AnythingOfType("*domain.UserProfile")).Return(nil)

	name := "Noura Al Saud"
	p, err := uc.UpdateProfile(ctx, "u1", domain.UserUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Noura", p.FirstName)
	assert.Equal(t, "Al Saud", p.LastName)
	assert.Equal(t, "Jeddah", p.City, "location untouched")

	_, err = uc.UpdateProfile(ctx, "u1", domain.UserUpdate{})
	assert.Equal(t, http.StatusBadRequest, apperror.CodeOf(err))
}

func TestAdminPrivileges(t *testing.T) {
	repo := new(MockAdminRepo)
	uc := usecase.NewAdminUsecase(repo, nil)

	t.Run("non-admins are rejected", func(t *testing.T) {
		_, err := uc.GetStats(withCaller("u1", domain.RoleEngineer))
		assert.Equal(t, http.StatusForbidden, apperror.CodeOf(err))
		_, err = uc.ChangeRole(withCaller("u1", domain.RoleClient), "u2", domain.RoleAdmin)
		assert.Equal(t, http.StatusForbidden, apperror.CodeOf(err))
		repo.AssertNotCalled(t, "SetRole", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("admins cannot change their own role", func(t *testing.T) {
		_, err := uc.ChangeRole(withCaller("a1", domain.RoleAdmin), "a1", domain.RoleClient)
		assert.Equal(t, http.StatusBadRequest, apperror.CodeOf(err))
	})

	t.Run("admins cannot disable themselves", func(t *testing.T) {
		_, err := uc.DisableUser(withCaller("a1", domain.RoleAdmin), "a1", true)
		assert.Equal(t, http.StatusBadRequest, apperror.CodeOf(err))
	})

	t.Run("change role", func(t *testing.T) {
		ctx := withCaller("a1", domain.RoleAdmin)
		repo.On("GetUser", ctx, "u2").Return(&domain.AdminUser{ID: "u2", Role: domain.RoleClient}, nil).Once()
		repo.On("SetRole", ctx, "u2", domain.RoleEnterprise).Return(nil).Once()
		repo.On("GetUser", ctx, "u2").Return(&domain.AdminUser{ID: "u2", Role: domain.RoleEnterprise}, nil).Once()

		user, err := uc.ChangeRole(ctx, "u2", domain.RoleEnterprise)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleEnterprise, user.Role)
	})

	t.Run("role filter", func(t *testing.T) {
		ctx := withCaller("a1", domain.RoleAdmin)
		_, err := uc.ListUsers(ctx, "employer", 1, 10)
		assert.Equal(t, http.StatusBadRequest, apperror.CodeOf(err))

		repo.On("ListUsers", ctx, domain.Role("none"), 1, 10).Return([]domain.AdminUser{{ID: "u3"}}, int64(11), nil).Once()
		res, err := uc.ListUsers(ctx, "none", 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, res.TotalPages)
	})
}

func TestSummarize(t *testing.T) {
	fee := 5.0
	now := time.Now()
	s := usecase.Summarize([]domain.Payment{
		{Type: domain.PaymentIncoming, Status: domain.PaymentCompleted, Amount: 1000, Fees: &fee, CreatedAt: now.Add(-time.Hour)},
		{Type: domain.PaymentIncoming, Status: domain.PaymentPending, Amount: 300, CreatedAt: now},
		{Type: domain.PaymentWithdrawal, Status: domain.PaymentCompleted, Amount: 400},
		{Type: domain.PaymentOutgoing, Status: domain.PaymentFailed, Amount: 50},
		{Type: domain.PaymentRefund, Status: domain.PaymentCompleted, Amount: 20},
	})

	assert.Equal(t, "SAR", s.Currency)
	assert.Equal(t, 5, s.Count)
	assert.InDelta(t, 1000, s.Earned, 0.001)
	assert.InDelta(t, 300, s.Pending, 0.001)
	assert.InDelta(t, 400, s.Withdrawn, 0.001)
	assert.InDelta(t, 20, s.Refunded, 0.001)
	assert.Zero(t, s.Spent)
	assert.InDelta(t, 5, s.Fees, 0.001)
	require.NotNil(t, s.LastUpdate)
	assert.True(t, s.LastUpdate.Equal(now))
}

func TestPaymentListScopedToCaller(t *testing.T) {
	repo := new(MockPaymentRepo)
	uc := usecase.NewPaymentUsecase(repo)
	ctx := withCaller("u1", domain.RoleEngineer)

	repo.On("List", ctx, domain.PaymentFilter{UserID: "u1", Page: 1, PageSize: 20}).
		Return([]domain.Payment{{ID: "p1", UserID: "u1"}}, int64(1), nil)

	res, err := uc.List(ctx, domain.PaymentFilter{UserID: "someone-else"})
	require.NoError(t, err)
	assert.Len(t, res.Data, 1)

	_, err = uc.List(ctx, domain.PaymentFilter{Type: "bitcoin"})
	assert.Equal(t, http.StatusBadRequest, apperror.CodeOf(err))
}

func TestPaymentExport(t *testing.T) {
	repo := new(MockPaymentRepo)
	uc := usecase.NewPaymentUsecase(repo)
	ctx := withCaller("u1", domain.RoleEngineer)

	repo.On("ListAll", ctx, "u1").Return([]domain.Payment{
		{ID: "p1", Type: domain.PaymentIncoming, Status: domain.PaymentCompleted, Amount: 10},
	}, nil)

	data, err := uc.Export(ctx, "u1", domain.LanguageEnglish)
	require.NoError(t, err)
	// xlsx is a zip archive
	assert.Equal(t, []byte("PK"), data[:2])

	_, err = uc.Export(ctx, "u2", domain.LanguageArabic)
	assert.Equal(t, http.StatusForbidden, apperror.CodeOf(err))
}

func TestRefreshUser(t *testing.T) {
	users := new(MockUserRepo)
	profiles := new(MockProfileRepo)
	uc := usecase.NewAuthUsecase(users, profiles)
	ctx := context.Background()

	t.Run("disabled user ends the session", func(t *testing.T) {
		users.On("GetByID", ctx, "gone").Return(&domain.User{ID: "gone", IsDisabled: true}, nil).Once()
		_, _, err := uc.RefreshUser(ctx, domain.AuthenticatedUser{ID: "gone"})
		assert.ErrorIs(t, err, domain.ErrUserDisabled)
	})

	t.Run("users row wins for role and verification", func(t *testing.T) {
		users.On("GetByID", ctx, "u1").Return(&domain.User{ID: "u1", Email: "a@b.sa", Role: domain.RoleEnterprise, IsVerified: true}, nil).Once()
		profiles.On("GetByUserID", ctx, "u1").Return(&domain.UserProfile{
			UserID: "u1", FirstName: "Ali", LastName: "Hassan", Role: domain.RoleClient,
		}, nil).Once()

		user, profile, err := uc.RefreshUser(ctx, domain.AuthenticatedUser{ID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, domain.RoleEnterprise, user.Role)
		assert.True(t, user.IsVerified)
		assert.Equal(t, "Ali Hassan", user.Name)
		assert.Equal(t, "a@b.sa", user.Email)
		assert.Equal(t, domain.RoleEnterprise, profile.Role)
	})

	t.Run("missing profile is derived from the session user", func(t *testing.T) {
		users.On("GetByID", ctx, "u2").Return(&domain.User{ID: "u2", Role: domain.RoleEngineer}, nil).Once()
		profiles.On("GetByUserID", ctx, "u2").Return(nil, domain.ErrNotFound).Once()

		user, profile, err := uc.RefreshUser(ctx, domain.AuthenticatedUser{ID: "u2", Name: "Sara Ahmed", Location: "Riyadh, Riyadh Province"})
		require.NoError(t, err)
		assert.Equal(t, domain.RoleEngineer, user.Role)
		assert.Equal(t, "Sara", profile.FirstName)
		assert.Equal(t, "Riyadh Province", profile.Region)
	})

	t.Run("repository errors propagate", func(t *testing.T) {
		users.On("GetByID", ctx, "u3").Return(nil, errors.New("conn reset")).Once()
		_, _, err := uc.RefreshUser(ctx, domain.AuthenticatedUser{ID: "u3"})
		assert.Error(t, err)
	})
}

func TestEnsureUserExistsNeverDowngradesVerification(t *testing.T) {
	users := new(MockUserRepo)
	uc := usecase.NewAuthUsecase(users, new(MockProfileRepo))
	ctx := context.Background()

	users.On("GetByID", ctx, "u1").Return(&domain.User{ID: "u1", IsVerified: true, Role: domain.RoleClient}, nil)

	require.NoError(t, uc.EnsureUserExists(ctx, &domain.User{ID: "u1", IsVerified: false}))
	users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}
