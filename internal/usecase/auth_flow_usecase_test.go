package usecase_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/internal/repository/flowstore"
	"go-marketplace-backend/internal/usecase"
	"go-marketplace-backend/pkg/apperror"
	"go-marketplace-backend/pkg/otp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockIdentity struct {
	mock.Mock
}

func (m *MockIdentity) SignUp(ctx context.Context, params domain.SignUpParams) (*domain.Identity, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

func (m *MockIdentity) SignIn(ctx context.Context, email, password string) (*domain.Identity, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

type MockSessions struct {
	mock.Mock
}

func (m *MockSessions) Start(ctx context.Context, user domain.AuthenticatedUser, profile domain.UserProfile) (*domain.SessionGrant, error) {
	args := m.Called(ctx, user, profile)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SessionGrant), args.Error(1)
}

type MockLoginGuard struct {
	mock.Mock
}

func (m *MockLoginGuard) IsBlocked(ctx context.Context, email, ip string) (bool, error) {
	args := m.Called(ctx, email, ip)
	return args.Bool(0), args.Error(1)
}

func (m *MockLoginGuard) RecordFailedAttempt(ctx context.Context, email, ip, userAgent, requestID string) (bool, int, error) {
	args := m.Called(ctx, email, ip, userAgent, requestID)
	return args.Bool(0), args.Int(1), args.Error(2)
}

func (m *MockLoginGuard) ClearAttempts(ctx context.Context, email, ip string) error {
	return m.Called(ctx, email, ip).Error(0)
}

type flowFixture struct {
	flows    domain.SignupFlowRepository
	identity *MockIdentity
	users    *MockUserRepo
	profiles *MockProfileRepo
	sessions *MockSessions
	logins   *MockLoginGuard
	uc       domain.AuthFlowUsecase
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	verifier, err := otp.NewFixedCodeVerifier(false)
	require.NoError(t, err)

	f := &flowFixture{
		flows:    flowstore.NewMemoryRepository(),
		identity: new(MockIdentity),
		users:    new(MockUserRepo),
		profiles: new(MockProfileRepo),
		sessions: new(MockSessions),
		logins:   new(MockLoginGuard),
	}
	f.uc = usecase.NewAuthFlowUsecase(usecase.AuthFlowDeps{
		Identity: f.identity,
		Flows:    f.flows,
		OTP:      verifier,
		Auth:     usecase.NewAuthUsecase(f.users, f.profiles),
		Users:    f.users,
		Profiles: f.profiles,
		Sessions: f.sessions,
		Logins:   f.logins,
	}, usecase.DefaultAuthFlowConfig())
	return f
}

func validRegistration() *domain.RegisterRequest {
	return &domain.RegisterRequest{
		Name:     "Sara Ahmed",
		Email:    "Sara@Example.com",
		Password: "s3cure-pass",
		Phone:    "+966501234567",
		Location: "Riyadh",
		Language: "en",
	}
}

func (f *flowFixture) register(t *testing.T) *domain.FlowResult {
	t.Helper()
	f.identity.On("SignUp", mock.Anything, mock.MatchedBy(func(p domain.SignUpParams) bool {
		return p.Email == "sara@example.com"
	})).Return(&domain.Identity{ID: "u-1", Email: "sara@example.com", Phone: "966501234567"}, nil).Once()

	res, err := f.uc.Register(context.Background(), validRegistration())
	require.NoError(t, err)
	return res
}

func TestRegisterRejectsInvalidEmailWithoutCallingIdentity(t *testing.T) {
	f := newFlowFixture(t)
	req := validRegistration()
	req.Email = "not-an-email"

	_, err := f.uc.Register(context.Background(), req)
	appErr := appErrorOf(t, err)
	assert.Equal(t, http.StatusBadRequest, appErr.Code)
	details := appErr.Details.(map[string]interface{})
	assert.Contains(t, details["fields"], "email")
	f.identity.AssertNotCalled(t, "SignUp", mock.Anything, mock.Anything)
}

func TestRegisterStartsAtVerifyOTP(t *testing.T) {
	f := newFlowFixture(t)
	res := f.register(t)

	assert.Equal(t, domain.StepVerifyOTP, res.Step)
	assert.NotEmpty(t, res.FlowID)
	require.NotNil(t, res.User)
	assert.Equal(t, "+966501234567", res.User.Phone)
	assert.False(t, res.User.IsVerified)
	assert.Empty(t, res.User.Role)

	view, err := f.uc.GetFlow(context.Background(), res.FlowID)
	require.NoError(t, err)
	assert.Equal(t, domain.OTPChannelSMS, view.Channel)
}

func TestRegisterMapsIdentityErrors(t *testing.T) {
	f := newFlowFixture(t)
	f.identity.On("SignUp", mock.Anything, mock.Anything).Return(nil, domain.ErrEmailTaken).Once()
	f.identity.On("SignUp", mock.Anything, mock.Anything).Return(nil, domain.ErrIdentityUnavailable).Once()

	_, err := f.uc.Register(context.Background(), validRegistration())
	assert.Equal(t, http.StatusConflict, apperror.CodeOf(err))

	_, err = f.uc.Register(context.Background(), validRegistration())
	assert.Equal(t, http.StatusServiceUnavailable, apperror.CodeOf(err))
}

func TestVerifyOTPWrongCodeClearsInput(t *testing.T) {
	f := newFlowFixture(t)
	res := f.register(t)

	_, err := f.uc.VerifyOTP(context.Background(), &domain.VerifyOTPRequest{FlowID: res.FlowID, Code: "111111"})
	appErr := appErrorOf(t, err)
	assert.Equal(t, http.StatusBadRequest, appErr.Code)
	assert.Equal(t, "Invalid verification code", appErr.Message)
	details := appErr.Details.(map[string]interface{})
	assert.Equal(t, true, details["clear_input"])
	assert.Equal(t, 4, details["attempts_remaining"])

	// Wrong codes never advance the step.
	view, err := f.uc.GetFlow(context.Background(), res.FlowID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepVerifyOTP, view.Step)
}

func TestVerifyOTPExhaustsAttempts(t *testing.T) {
	f := newFlowFixture(t)
	res := f.register(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.uc.VerifyOTP(ctx, &domain.VerifyOTPRequest{FlowID: res.FlowID, Code: "999999"})
		require.Equal(t, http.StatusBadRequest, apperror.CodeOf(err))
	}

	// Even a valid code is refused until a new one is requested.
	_, err := f.uc.VerifyOTP(ctx, &domain.VerifyOTPRequest{FlowID: res.FlowID, Code: "123456"})
	appErr := appErrorOf(t, err)
	assert.Equal(t, http.StatusTooManyRequests, appErr.Code)
	assert.Equal(t, true, appErr.Details.(map[string]interface{})["resend_required"])
}

func TestVerifyOTPAcceptsDevCode(t *testing.T) {
	f := newFlowFixture(t)
	res := f.register(t)

	f.users.On("GetByID", mock.Anything, "u-1").Return(nil, domain.ErrNotFound).Once()
	f.users.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.ID == "u-1" && u.IsVerified && u.Role == ""
	})).Return(nil).Once()
	f.profiles.On("GetByUserID", mock.Anything, "u-1").Return(nil, domain.ErrNotFound)

	next, err := f.uc.VerifyOTP(context.Background(), &domain.VerifyOTPRequest{FlowID: res.FlowID, Code: "123456"})
	require.NoError(t, err)
	assert.Equal(t, domain.StepRoleSelection, next.Step)
	assert.True(t, next.User.IsVerified)
	f.users.AssertExpectations(t)
}

func TestOutOfOrderStepIsRejected(t *testing.T) {
	f := newFlowFixture(t)
	res := f.register(t)

	_, err := f.uc.SelectRole(context.Background(), &domain.SelectRoleRequest{FlowID: res.FlowID, Role: "engineer"})
	appErr := appErrorOf(t, err)
	assert.Equal(t, http.StatusConflict, appErr.Code)
	assert.Equal(t, domain.StepVerifyOTP, appErr.Details.(map[string]interface{})["step"])

	_, err = f.uc.CompleteProfile(context.Background(), &domain.ProfileSetupRequest{FlowID: res.FlowID, FirstName: "Sara", LastName: "Ahmed"})
	assert.Equal(t, http.StatusConflict, apperror.CodeOf(err))
}

func TestSelectRoleRefusesAdmin(t *testing.T) {
	f := newFlowFixture(t)
	res := f.register(t)

	_, err := f.uc.SelectRole(context.Background(), &domain.SelectRoleRequest{FlowID: res.FlowID, Role: "admin"})
	assert.Equal(t, http.StatusForbidden, apperror.CodeOf(err))
}

func TestResendOTPCooldown(t *testing.T) {
	f := newFlowFixture(t)
	res := f.register(t)

	_, err := f.uc.ResendOTP(context.Background(), &domain.ResendOTPRequest{FlowID: res.FlowID})
	appErr := appErrorOf(t, err)
	assert.Equal(t, http.StatusTooManyRequests, appErr.Code)
	assert.Greater(t, appErr.Details.(map[string]interface{})["retry_after"], 0)
}

func TestUnknownFlow(t *testing.T) {
	f := newFlowFixture(t)

	_, err := f.uc.GetFlow(context.Background(), "nope")
	assert.Equal(t, http.StatusBadRequest, apperror.CodeOf(err))

	_, err = f.uc.VerifyOTP(context.Background(), &domain.VerifyOTPRequest{
		FlowID: "3f1c1c2e-8a47-4d3c-9a55-0b8a1f3e2d10", Code: "123456",
	})
	assert.Equal(t, http.StatusNotFound, apperror.CodeOf(err))
}

// Full wizard for a new engineer. Profile provisioning fails once, so the
// SPA is sent to the registration form and finishes through profile setup.
func TestSignupEndToEndWithProfileFallback(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	res := f.register(t)

	f.users.On("GetByID", mock.Anything, "u-1").Return(nil, domain.ErrNotFound).Once()
	f.users.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
	f.users.On("GetByID", mock.Anything, "u-1").Return(&domain.User{ID: "u-1", Email: "sara@example.com", IsVerified: true}, nil)
	f.users.On("Update", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Role == domain.RoleEngineer
	})).Return(nil)
	f.profiles.On("GetByUserID", mock.Anything, "u-1").Return(nil, domain.ErrNotFound)
	f.profiles.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
	f.profiles.On("Create", mock.Anything, mock.Anything).Return(nil)

	next, err := f.uc.VerifyOTP(ctx, &domain.VerifyOTPRequest{FlowID: res.FlowID, Code: "000000"})
	require.NoError(t, err)
	require.Equal(t, domain.StepRoleSelection, next.Step)

	next, err = f.uc.SelectRole(ctx, &domain.SelectRoleRequest{FlowID: res.FlowID, Role: "engineer"})
	require.NoError(t, err)
	assert.Equal(t, domain.StepProfileSetup, next.Step)
	assert.Equal(t, "/auth/registration/engineer", next.Redirect)
	require.NotNil(t, next.User)
	assert.Equal(t, domain.RoleEngineer, next.User.Role)

	grant := &domain.SessionGrant{
		Token:     "session-token",
		SessionID: "s-1",
		User:      domain.AuthenticatedUser{ID: "u-1", Role: domain.RoleEngineer, IsVerified: true},
	}
	f.sessions.On("Start", mock.Anything, mock.MatchedBy(func(u domain.AuthenticatedUser) bool {
		return u.Name == "Sara Ahmed" && u.Location == "Riyadh, Riyadh Province"
	}), mock.MatchedBy(func(p domain.UserProfile) bool {
		return p.FirstName == "Sara" && p.City == "Riyadh" && p.Region == "Riyadh Province"
	})).Return(grant, nil).Once()

	done, err := f.uc.CompleteProfile(ctx, &domain.ProfileSetupRequest{
		FlowID:    res.FlowID,
		FirstName: "Sara",
		LastName:  "Ahmed",
		City:      "Riyadh",
		Region:    "Riyadh Province",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StepComplete, done.Step)
	assert.Equal(t, "/engineer", done.Redirect)
	assert.Equal(t, "session-token", done.Session.Token)
	f.sessions.AssertExpectations(t)

	// A completed flow is gone.
	_, err = f.uc.GetFlow(ctx, res.FlowID)
	assert.Equal(t, http.StatusNotFound, apperror.CodeOf(err))
}

func TestLoginFailures(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	client := domain.ClientInfo{IP: "10.0.0.1", UserAgent: "test"}

	f.logins.On("IsBlocked", ctx, "a@b.sa", "10.0.0.1").Return(false, nil)
	f.identity.On("SignIn", ctx, "a@b.sa", "wrong").Return(nil, domain.ErrInvalidCredentials)
	f.logins.On("RecordFailedAttempt", ctx, "a@b.sa", "10.0.0.1", "test", "").Return(false, 1, nil).Once()
	f.logins.On("RecordFailedAttempt", ctx, "a@b.sa", "10.0.0.1", "test", "").Return(true, 5, nil).Once()

	_, err := f.uc.Login(ctx, &domain.LoginRequest{Email: "a@b.sa", Password: "wrong"}, client)
	assert.Equal(t, http.StatusUnauthorized, apperror.CodeOf(err))

	_, err = f.uc.Login(ctx, &domain.LoginRequest{Email: "a@b.sa", Password: "wrong"}, client)
	assert.Equal(t, http.StatusTooManyRequests, apperror.CodeOf(err))
}

func TestLoginBlockedSkipsIdentity(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	f.logins.On("IsBlocked", ctx, "a@b.sa", "10.0.0.2").Return(true, nil)
	_, err := f.uc.Login(ctx, &domain.LoginRequest{Email: "A@b.sa", Password: "x"}, domain.ClientInfo{IP: "10.0.0.2"})
	assert.Equal(t, http.StatusTooManyRequests, apperror.CodeOf(err))
	f.identity.AssertNotCalled(t, "SignIn", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoginReturningUserCompletes(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	client := domain.ClientInfo{IP: "10.0.0.3"}

	f.logins.On("IsBlocked", ctx, "eng@b.sa", "10.0.0.3").Return(false, nil)
	f.logins.On("ClearAttempts", ctx, "eng@b.sa", "10.0.0.3").Return(nil)
	f.identity.On("SignIn", ctx, "eng@b.sa", "pw").Return(&domain.Identity{ID: "u-9", Email: "eng@b.sa", EmailConfirmed: true}, nil)
	f.users.On("GetByID", ctx, "u-9").Return(&domain.User{ID: "u-9", Email: "eng@b.sa", Role: domain.RoleClient, IsVerified: true}, nil)
	f.profiles.On("GetByUserID", ctx, "u-9").Return(&domain.UserProfile{
		UserID: "u-9", Email: "eng@b.sa", FirstName: "Omar", LastName: "Saleh", Role: domain.RoleClient, IsVerified: true,
	}, nil)
	f.sessions.On("Start", ctx, mock.Anything, mock.Anything).
		Return(&domain.SessionGrant{User: domain.AuthenticatedUser{ID: "u-9", Role: domain.RoleClient}}, nil)

	res, err := f.uc.Login(ctx, &domain.LoginRequest{Email: "eng@b.sa", Password: "pw"}, client)
	require.NoError(t, err)
	assert.Equal(t, domain.StepComplete, res.Step)
	assert.Equal(t, "/client", res.Redirect)
}

// A failed role write during role selection is repaired before the session
// is issued, so a later refresh from the users row keeps the role.
func TestCompleteProfileStoresRoleAfterFailedAssignment(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	res := f.register(t)

	f.users.On("GetByID", mock.Anything, "u-1").Return(nil, domain.ErrNotFound).Once()
	f.users.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
	f.users.On("GetByID", mock.Anything, "u-1").Return(&domain.User{ID: "u-1", Email: "sara@example.com", IsVerified: true}, nil)
	f.users.On("Update", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
	f.users.On("Update", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.ID == "u-1" && u.Role == domain.RoleEngineer && u.IsVerified
	})).Return(nil).Once()
	f.profiles.On("GetByUserID", mock.Anything, "u-1").Return(nil, domain.ErrNotFound)
	f.profiles.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.sessions.On("Start", mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.SessionGrant{User: domain.AuthenticatedUser{ID: "u-1", Role: domain.RoleEngineer, IsVerified: true}}, nil).Once()

	_, err := f.uc.VerifyOTP(ctx, &domain.VerifyOTPRequest{FlowID: res.FlowID, Code: "000000"})
	require.NoError(t, err)

	next, err := f.uc.SelectRole(ctx, &domain.SelectRoleRequest{FlowID: res.FlowID, Role: "engineer"})
	require.NoError(t, err)
	require.Equal(t, domain.StepProfileSetup, next.Step)
	assert.Equal(t, "/auth/registration/engineer", next.Redirect)

	done, err := f.uc.CompleteProfile(ctx, &domain.ProfileSetupRequest{
		FlowID:    res.FlowID,
		FirstName: "Sara",
		LastName:  "Ahmed",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StepComplete, done.Step)
	f.users.AssertNumberOfCalls(t, "Update", 2)
	f.users.AssertExpectations(t)
}

func TestCompleteProfileKeepsFlowWhenRoleCannotBeStored(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	res := f.register(t)

	f.users.On("GetByID", mock.Anything, "u-1").Return(nil, domain.ErrNotFound).Once()
	f.users.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
	f.users.On("GetByID", mock.Anything, "u-1").Return(&domain.User{ID: "u-1", IsVerified: true}, nil)
	f.users.On("Update", mock.Anything, mock.Anything).Return(errors.New("db down"))
	f.profiles.On("GetByUserID", mock.Anything, "u-1").Return(nil, domain.ErrNotFound)

	_, err := f.uc.VerifyOTP(ctx, &domain.VerifyOTPRequest{FlowID: res.FlowID, Code: "000000"})
	require.NoError(t, err)
	_, err = f.uc.SelectRole(ctx, &domain.SelectRoleRequest{FlowID: res.FlowID, Role: "client"})
	require.NoError(t, err)

	_, err = f.uc.CompleteProfile(ctx, &domain.ProfileSetupRequest{FlowID: res.FlowID, FirstName: "Sara", LastName: "Ahmed"})
	assert.Equal(t, http.StatusServiceUnavailable, apperror.CodeOf(err))
	f.sessions.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything)

	// Still at profile setup, so the SPA can retry.
	view, err := f.uc.GetFlow(ctx, res.FlowID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepProfileSetup, view.Step)
}

func TestConcurrentSubmissionIsRejected(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	res := f.register(t)

	unlock, err := f.flows.Lock(ctx, res.FlowID, time.Minute)
	require.NoError(t, err)

	_, err = f.uc.VerifyOTP(ctx, &domain.VerifyOTPRequest{FlowID: res.FlowID, Code: "123456"})
	assert.Equal(t, http.StatusConflict, apperror.CodeOf(err))
	_, err = f.uc.SelectRole(ctx, &domain.SelectRoleRequest{FlowID: res.FlowID, Role: "engineer"})
	assert.Equal(t, http.StatusConflict, apperror.CodeOf(err))
	_, err = f.uc.ResendOTP(ctx, &domain.ResendOTPRequest{FlowID: res.FlowID})
	assert.Equal(t, http.StatusConflict, apperror.CodeOf(err))

	// The held submission left the flow untouched; once released it proceeds.
	unlock()
	f.users.On("GetByID", mock.Anything, "u-1").Return(nil, domain.ErrNotFound).Once()
	f.users.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
	f.profiles.On("GetByUserID", mock.Anything, "u-1").Return(nil, domain.ErrNotFound)

	next, err := f.uc.VerifyOTP(ctx, &domain.VerifyOTPRequest{FlowID: res.FlowID, Code: "123456"})
	require.NoError(t, err)
	assert.Equal(t, domain.StepRoleSelection, next.Step)
}
