package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/apperror"
	"go-marketplace-backend/pkg/logger"
	"go-marketplace-backend/pkg/metrics"
	"go-marketplace-backend/pkg/security"
	"go-marketplace-backend/pkg/validation"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// LoginGuard tracks failed logins. Satisfied by *security.LoginTracker.
type LoginGuard interface {
	IsBlocked(ctx context.Context, email, ip string) (bool, error)
	RecordFailedAttempt(ctx context.Context, email, ip, userAgent, requestID string) (bool, int, error)
	ClearAttempts(ctx context.Context, email, ip string) error
}

type AuthFlowConfig struct {
	FlowTTL        time.Duration
	MaxOTPAttempts int
	ResendCooldown time.Duration
	LockTTL        time.Duration
}

func DefaultAuthFlowConfig() AuthFlowConfig {
	return AuthFlowConfig{
		FlowTTL:        30 * time.Minute,
		MaxOTPAttempts: 5,
		ResendCooldown: 30 * time.Second,
		LockTTL:        15 * time.Second,
	}
}

type AuthFlowDeps struct {
	Identity       domain.IdentityProvider
	ProviderTokens domain.ProviderTokenVerifier
	Flows          domain.SignupFlowRepository
	OTP            domain.OTPVerifier
	Auth           domain.AuthUsecase
	Users          domain.UserRepository
	Profiles       domain.ProfileRepository
	Sessions       domain.SessionStarter
	Logins         LoginGuard
	SecurityLog    *security.SecurityLogger
	Validate       *validator.Validate
}

type authFlowUsecase struct {
	AuthFlowDeps
	cfg AuthFlowConfig
	now func() time.Time
}

// NewAuthFlowUsecase builds the signup/login step sequencer:
// auth -> verify-otp -> role-selection -> profile-setup -> complete.
func NewAuthFlowUsecase(deps AuthFlowDeps, cfg AuthFlowConfig) domain.AuthFlowUsecase {
	def := DefaultAuthFlowConfig()
	if cfg.FlowTTL <= 0 {
		cfg.FlowTTL = def.FlowTTL
	}
	if cfg.MaxOTPAttempts <= 0 {
		cfg.MaxOTPAttempts = def.MaxOTPAttempts
	}
	if cfg.ResendCooldown <= 0 {
		cfg.ResendCooldown = def.ResendCooldown
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if deps.SecurityLog == nil {
		deps.SecurityLog = security.NewNopSecurityLogger()
	}
	if deps.Validate == nil {
		deps.Validate = validation.New()
	}
	return &authFlowUsecase{AuthFlowDeps: deps, cfg: cfg, now: time.Now}
}

// ============================================================================
// Entry points (step: auth)
// ============================================================================

func (u *authFlowUsecase) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.FlowResult, error) {
	lang := domain.NormalizeLanguage(req.Language)
	if err := u.Validate.Struct(req); err != nil {
		return nil, validationFailed(err, lang)
	}

	email := normalizeEmail(req.Email)
	phone := domain.NormalizeSaudiPhone(req.Phone)

	identity, err := u.Identity.SignUp(ctx, domain.SignUpParams{
		Email:    email,
		Password: req.Password,
		Phone:    phone,
		Metadata: map[string]interface{}{
			"name":       strings.TrimSpace(req.Name),
			"phone":      phone,
			"sce_number": req.SCENumber,
			"company":    req.Company,
			"location":   req.Location,
			"language":   string(lang),
		},
	})
	if err != nil {
		return nil, identityError("register", err)
	}

	user := domain.AuthenticatedUser{
		ID:         identity.ID,
		Email:      email,
		Name:       strings.TrimSpace(req.Name),
		IsVerified: false,
		SCENumber:  strings.TrimSpace(req.SCENumber),
		Company:    strings.TrimSpace(req.Company),
		Location:   strings.TrimSpace(req.Location),
		Phone:      phone,
		Language:   lang,
	}

	flow := u.newFlow(user)
	return u.toVerifyOTP(ctx, flow)
}

func (u *authFlowUsecase) Login(ctx context.Context, req *domain.LoginRequest, client domain.ClientInfo) (*domain.FlowResult, error) {
	lang := domain.NormalizeLanguage(req.Language)
	if err := u.Validate.Struct(req); err != nil {
		return nil, validationFailed(err, lang)
	}
	email := normalizeEmail(req.Email)

	if u.Logins != nil {
		blocked, err := u.Logins.IsBlocked(ctx, email, client.IP)
		if err != nil {
			logger.Log.WarnContext(ctx, "login tracker unavailable", "error", err)
		}
		if blocked {
			u.SecurityLog.LogLoginBlocked(ctx, email, client.IP, client.UserAgent, client.RequestID)
			return nil, apperror.TooManyRequests("Too many failed login attempts. Please try again later.")
		}
	}

	identity, err := u.Identity.SignIn(ctx, email, req.Password)
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return nil, u.failedLogin(ctx, email, client)
	case errors.Is(err, domain.ErrEmailNotConfirmed):
		return u.resumeUnconfirmed(ctx, email, lang)
	case err != nil:
		return nil, identityError("login", err)
	}

	if u.Logins != nil {
		if err := u.Logins.ClearAttempts(ctx, email, client.IP); err != nil {
			logger.Log.WarnContext(ctx, "failed to clear login attempts", "error", err)
		}
	}
	u.SecurityLog.LogLoginSuccess(ctx, identity.ID, client.IP, client.RequestID)

	verified := identity.EmailConfirmed || identity.PhoneConfirmed
	row, err := u.syncUserRow(ctx, identity.ID, identity.Email, verified)
	if err != nil {
		return nil, err
	}

	user, profile, err := u.loadUser(ctx, row, identity, lang)
	if err != nil {
		return nil, err
	}
	return u.advance(ctx, u.newFlow(*user), profile)
}

// OAuthCallback continues a provider sign-in. A provider-verified email skips
// the OTP step.
func (u *authFlowUsecase) OAuthCallback(ctx context.Context, req *domain.OAuthCallbackRequest) (*domain.FlowResult, error) {
	lang := domain.NormalizeLanguage(req.Language)
	if err := u.Validate.Struct(req); err != nil {
		return nil, validationFailed(err, lang)
	}

	identity, err := u.ProviderTokens.VerifyProviderToken(ctx, req.AccessToken)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidToken) {
			return nil, apperror.Unauthorized("Invalid or expired sign-in token")
		}
		return nil, identityError("oauth", err)
	}

	row, err := u.syncUserRow(ctx, identity.ID, identity.Email, identity.EmailConfirmed)
	if err != nil {
		return nil, err
	}
	user, profile, err := u.loadUser(ctx, row, identity, lang)
	if err != nil {
		return nil, err
	}
	return u.advance(ctx, u.newFlow(*user), profile)
}

// ============================================================================
// verify-otp
// ============================================================================

func (u *authFlowUsecase) VerifyOTP(ctx context.Context, req *domain.VerifyOTPRequest) (*domain.FlowResult, error) {
	if err := u.Validate.Struct(req); err != nil {
		return nil, validationFailed(err, domain.LanguageArabic)
	}

	unlock, err := u.lock(ctx, req.FlowID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	flow, err := u.getFlow(ctx, req.FlowID, domain.StepVerifyOTP)
	if err != nil {
		return nil, err
	}

	if flow.OTPAttempts >= u.cfg.MaxOTPAttempts {
		return nil, apperror.TooManyRequests("Too many incorrect codes. Please request a new code.").
			WithDetails(map[string]interface{}{"resend_required": true, "attempts_remaining": 0})
	}

	ok, err := u.OTP.Verify(ctx, flow, req.Code)
	if err != nil {
		logger.Log.ErrorContext(ctx, "otp verification failed", "flow_id", flow.ID, "verifier", u.OTP.Name(), "error", err)
		return nil, apperror.Unavailable("Verification service is temporarily unavailable", err)
	}
	metrics.OTPVerification(u.OTP.Name(), ok)

	if !ok {
		flow.OTPAttempts++
		flow.UpdatedAt = u.now()
		if err := u.Flows.Save(ctx, flow); err != nil {
			return nil, apperror.Unavailable("Could not update signup session", err)
		}
		remaining := u.cfg.MaxOTPAttempts - flow.OTPAttempts
		u.SecurityLog.LogOTPFailed(ctx, flow.ID, flow.User.Email, remaining)
		if remaining <= 0 {
			u.SecurityLog.Log(ctx, security.SecurityEvent{
				Event:        security.EventOTPExhausted,
				SubjectType:  "flow",
				SubjectValue: flow.ID,
			})
		}
		return nil, apperror.BadRequest("Invalid verification code").
			WithDetails(map[string]interface{}{"clear_input": true, "attempts_remaining": remaining})
	}

	flow.User.IsVerified = true
	flow.OTPSecret = ""
	flow.OTPAttempts = 0

	if err := u.Auth.EnsureUserExists(ctx, &domain.User{
		ID:         flow.User.ID,
		Email:      flow.User.Email,
		Role:       flow.User.Role,
		IsVerified: true,
	}); err != nil {
		return nil, apperror.Unavailable("Could not save account", err)
	}

	profile, err := u.findProfile(ctx, flow.User.ID)
	if err != nil {
		return nil, err
	}
	return u.advance(ctx, flow, profile)
}

func (u *authFlowUsecase) ResendOTP(ctx context.Context, req *domain.ResendOTPRequest) (*domain.FlowResult, error) {
	if err := u.Validate.Struct(req); err != nil {
		return nil, validationFailed(err, domain.LanguageArabic)
	}

	unlock, err := u.lock(ctx, req.FlowID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	flow, err := u.getFlow(ctx, req.FlowID, domain.StepVerifyOTP)
	if err != nil {
		return nil, err
	}

	if wait := flow.OTPSentAt.Add(u.cfg.ResendCooldown).Sub(u.now()); wait > 0 {
		return nil, apperror.TooManyRequests("Please wait before requesting a new code").
			WithDetails(map[string]interface{}{"retry_after": int(math.Ceil(wait.Seconds()))})
	}
	return u.toVerifyOTP(ctx, flow)
}

// ============================================================================
// role-selection
// ============================================================================

// SelectRole never fails hard once the flow is valid: if the profile row
// cannot be provisioned the SPA is sent to the full registration page with the
// partial user.
func (u *authFlowUsecase) SelectRole(ctx context.Context, req *domain.SelectRoleRequest) (*domain.FlowResult, error) {
	if err := u.Validate.Struct(req); err != nil {
		return nil, validationFailed(err, domain.LanguageArabic)
	}
	role := domain.Role(req.Role)
	if !role.IsSelfAssignable() {
		return nil, apperror.Forbidden("This role cannot be selected")
	}

	unlock, err := u.lock(ctx, req.FlowID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	flow, err := u.getFlow(ctx, req.FlowID, domain.StepRoleSelection)
	if err != nil {
		return nil, err
	}
	flow.User.Role = role

	profile, err := u.provisionProfile(ctx, flow.User)
	if err != nil {
		logger.Log.WarnContext(ctx, "profile provisioning failed, falling back to registration form",
			"flow_id", flow.ID, "user_id", flow.User.ID, "role", role, "error", err)
		flow.ProfileFallback = true
		flow.Step = domain.StepProfileSetup
		flow.UpdatedAt = u.now()
		if err := u.Flows.Save(ctx, flow); err != nil {
			logger.Log.ErrorContext(ctx, "failed to save signup flow", "flow_id", flow.ID, "error", err)
		}
		metrics.FlowStep(string(flow.Step))
		user := flow.User
		return &domain.FlowResult{
			FlowID:   flow.ID,
			Step:     domain.StepProfileSetup,
			User:     &user,
			Redirect: role.RegistrationPath(),
		}, nil
	}
	return u.advance(ctx, flow, profile)
}

// provisionProfile stores the role and locates or creates the profile row.
func (u *authFlowUsecase) provisionProfile(ctx context.Context, user domain.AuthenticatedUser) (*domain.UserProfile, error) {
	if err := u.Auth.AssignRole(ctx, user.ID, user.Role); err != nil {
		return nil, fmt.Errorf("assign role: %w", err)
	}

	existing, err := u.Profiles.GetByUserID(ctx, user.ID)
	switch {
	case err == nil:
		existing.Role = user.Role
		existing.IsVerified = user.IsVerified
		if err := u.Profiles.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("update profile: %w", err)
		}
		return existing, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("find profile: %w", err)
	}

	profile := domain.NewUserProfile(user)
	if err := u.Profiles.Create(ctx, &profile); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	return &profile, nil
}

// ============================================================================
// profile-setup
// ============================================================================

func (u *authFlowUsecase) CompleteProfile(ctx context.Context, req *domain.ProfileSetupRequest) (*domain.FlowResult, error) {
	if err := u.Validate.Struct(req); err != nil {
		return nil, validationFailed(err, domain.LanguageArabic)
	}

	unlock, err := u.lock(ctx, req.FlowID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	flow, err := u.getFlow(ctx, req.FlowID, domain.StepProfileSetup)
	if err != nil {
		return nil, err
	}

	user := flow.User

	// The role write may have failed during SelectRole; the users row must
	// carry it before a session is issued.
	if err := u.Auth.EnsureUserExists(ctx, &domain.User{
		ID:         user.ID,
		Email:      user.Email,
		Role:       user.Role,
		IsVerified: user.IsVerified,
	}); err != nil {
		logger.Log.ErrorContext(ctx, "failed to store role", "flow_id", flow.ID, "user_id", user.ID, "error", err)
		return nil, apperror.Unavailable("Could not save account", err)
	}

	user.Name = strings.TrimSpace(req.FirstName) + " " + strings.TrimSpace(req.LastName)
	if loc := joinLocation(req.City, req.Region); loc != "" {
		user.Location = loc
	}
	if req.Company != "" {
		user.Company = strings.TrimSpace(req.Company)
	}
	if req.SCENumber != "" {
		user.SCENumber = req.SCENumber
	}
	if req.Phone != "" {
		user.Phone = domain.NormalizeSaudiPhone(req.Phone)
	}

	profile := domain.NewUserProfile(user)
	profile.FirstName = strings.TrimSpace(req.FirstName)
	profile.LastName = strings.TrimSpace(req.LastName)
	if req.City != "" || req.Region != "" {
		profile.City = strings.TrimSpace(req.City)
		profile.Region = strings.TrimSpace(req.Region)
	}

	existing, err := u.Profiles.GetByUserID(ctx, user.ID)
	switch {
	case err == nil:
		profile.CreatedAt = existing.CreatedAt
		err = u.Profiles.Update(ctx, &profile)
	case errors.Is(err, domain.ErrNotFound):
		err = u.Profiles.Create(ctx, &profile)
	}
	if err != nil {
		logger.Log.ErrorContext(ctx, "failed to save profile", "flow_id", flow.ID, "user_id", user.ID, "error", err)
		return nil, apperror.Unavailable("Could not save profile", err)
	}

	flow.User = user
	flow.ProfileFallback = false
	return u.complete(ctx, flow, &profile)
}

func (u *authFlowUsecase) GetFlow(ctx context.Context, flowID string) (*domain.FlowView, error) {
	if _, err := uuid.Parse(flowID); err != nil {
		return nil, apperror.BadRequest("Invalid flow ID")
	}
	flow, err := u.getFlow(ctx, flowID, "")
	if err != nil {
		return nil, err
	}
	view := flow.View()
	return &view, nil
}

// ============================================================================
// Sequencing helpers
// ============================================================================

func (u *authFlowUsecase) newFlow(user domain.AuthenticatedUser) *domain.SignupFlow {
	now := u.now()
	return &domain.SignupFlow{
		ID:        uuid.NewString(),
		Step:      domain.StepAuth,
		User:      user,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(u.cfg.FlowTTL),
	}
}

// advance moves a flow to the first step the user has not satisfied.
func (u *authFlowUsecase) advance(ctx context.Context, flow *domain.SignupFlow, profile *domain.UserProfile) (*domain.FlowResult, error) {
	switch {
	case !flow.User.IsVerified:
		return u.toVerifyOTP(ctx, flow)
	case !flow.User.HasRole():
		return u.save(ctx, flow, domain.StepRoleSelection)
	case profile == nil || !profile.IsComplete():
		return u.save(ctx, flow, domain.StepProfileSetup)
	}
	return u.complete(ctx, flow, profile)
}

func (u *authFlowUsecase) toVerifyOTP(ctx context.Context, flow *domain.SignupFlow) (*domain.FlowResult, error) {
	if err := u.OTP.Issue(ctx, flow); err != nil {
		logger.Log.ErrorContext(ctx, "failed to issue otp", "flow_id", flow.ID, "verifier", u.OTP.Name(), "error", err)
		return nil, apperror.Unavailable("Could not send verification code", err)
	}
	flow.OTPAttempts = 0
	flow.OTPSentAt = u.now()
	return u.save(ctx, flow, domain.StepVerifyOTP)
}

func (u *authFlowUsecase) save(ctx context.Context, flow *domain.SignupFlow, step domain.FlowStep) (*domain.FlowResult, error) {
	flow.Step = step
	flow.UpdatedAt = u.now()
	if err := u.Flows.Save(ctx, flow); err != nil {
		return nil, apperror.Unavailable("Could not save signup session", err)
	}
	metrics.FlowStep(string(step))

	user := flow.User
	return &domain.FlowResult{FlowID: flow.ID, Step: step, User: &user}, nil
}

// complete is onAuthenticationComplete: the session store takes ownership of
// the user and the flow is discarded.
func (u *authFlowUsecase) complete(ctx context.Context, flow *domain.SignupFlow, profile *domain.UserProfile) (*domain.FlowResult, error) {
	grant, err := u.Sessions.Start(ctx, flow.User, *profile)
	if err != nil {
		logger.Log.ErrorContext(ctx, "failed to start session", "user_id", flow.User.ID, "error", err)
		return nil, apperror.Unavailable("Could not start session", err)
	}
	if err := u.Flows.Delete(ctx, flow.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Log.WarnContext(ctx, "failed to delete completed flow", "flow_id", flow.ID, "error", err)
	}
	metrics.FlowStep(string(domain.StepComplete))

	return &domain.FlowResult{
		Step:     domain.StepComplete,
		User:     &grant.User,
		Redirect: grant.User.Role.BasePath(),
		Session:  grant,
	}, nil
}

func (u *authFlowUsecase) lock(ctx context.Context, flowID string) (func(), error) {
	unlock, err := u.Flows.Lock(ctx, flowID, u.cfg.LockTTL)
	if errors.Is(err, domain.ErrFlowBusy) {
		return nil, apperror.Conflict("Request already in progress")
	}
	if err != nil {
		return nil, apperror.Unavailable("Signup session store unavailable", err)
	}
	return unlock, nil
}

// getFlow loads a live flow and checks it sits at want (any step when empty).
func (u *authFlowUsecase) getFlow(ctx context.Context, id string, want domain.FlowStep) (*domain.SignupFlow, error) {
	flow, err := u.Flows.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperror.NotFound("Signup session not found or expired")
	}
	if err != nil {
		return nil, apperror.Unavailable("Signup session store unavailable", err)
	}
	if flow.Expired(u.now()) {
		_ = u.Flows.Delete(ctx, id)
		return nil, apperror.NotFound("Signup session not found or expired")
	}
	if want != "" && flow.Step != want {
		return nil, apperror.Conflict(fmt.Sprintf("flow is at step %s", flow.Step)).
			WithDetails(map[string]interface{}{"step": flow.Step})
	}
	return flow, nil
}

func (u *authFlowUsecase) failedLogin(ctx context.Context, email string, client domain.ClientInfo) error {
	u.SecurityLog.LogLoginFailed(ctx, email, client.IP, client.UserAgent, client.RequestID, "invalid_credentials")
	if u.Logins == nil {
		return apperror.Unauthorized("Invalid email or password")
	}
	blocked, _, err := u.Logins.RecordFailedAttempt(ctx, email, client.IP, client.UserAgent, client.RequestID)
	if err != nil {
		logger.Log.WarnContext(ctx, "failed to record login attempt", "error", err)
	}
	if blocked {
		return apperror.TooManyRequests("Too many failed login attempts. Please try again later.")
	}
	return apperror.Unauthorized("Invalid email or password")
}

// resumeUnconfirmed restarts OTP verification for an account whose email the
// identity service has not confirmed yet.
func (u *authFlowUsecase) resumeUnconfirmed(ctx context.Context, email string, lang domain.Language) (*domain.FlowResult, error) {
	row, err := u.Users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperror.Forbidden("Please verify your email before signing in").
			WithDetails(map[string]interface{}{"redirect": domain.PathAuthVerify})
	}
	if err != nil {
		return nil, apperror.Unavailable("Could not load account", err)
	}

	user := domain.AuthenticatedUser{ID: row.ID, Email: row.Email, Role: row.Role, Language: lang}
	if profile, err := u.findProfile(ctx, row.ID); err == nil && profile != nil {
		user = profile.ToUser()
		user.Role = row.Role
	}
	user.IsVerified = false
	return u.toVerifyOTP(ctx, u.newFlow(user))
}

// syncUserRow creates the users row on first sign-in and refuses disabled
// accounts.
func (u *authFlowUsecase) syncUserRow(ctx context.Context, id, email string, verified bool) (*domain.User, error) {
	if err := u.Auth.EnsureUserExists(ctx, &domain.User{ID: id, Email: email, IsVerified: verified}); err != nil {
		return nil, apperror.Unavailable("Could not load account", err)
	}
	row, err := u.Users.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Unavailable("Could not load account", err)
	}
	if row.IsDisabled {
		return nil, apperror.Forbidden("This account has been disabled")
	}
	return row, nil
}

// loadUser assembles the session user from the profile row, or from the
// identity metadata when no profile exists yet.
func (u *authFlowUsecase) loadUser(ctx context.Context, row *domain.User, identity *domain.Identity, lang domain.Language) (*domain.AuthenticatedUser, *domain.UserProfile, error) {
	profile, err := u.findProfile(ctx, row.ID)
	if err != nil {
		return nil, nil, err
	}

	var user domain.AuthenticatedUser
	if profile != nil {
		user = profile.ToUser()
	} else {
		user = userFromIdentity(identity, lang)
	}
	user.ID = row.ID
	user.Role = row.Role
	user.IsVerified = row.IsVerified
	if user.Email == "" {
		user.Email = row.Email
	}
	if user.Language == "" {
		user.Language = lang
	}
	return &user, profile, nil
}

func (u *authFlowUsecase) findProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	profile, err := u.Profiles.GetByUserID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Unavailable("Could not load profile", err)
	}
	return profile, nil
}

func userFromIdentity(identity *domain.Identity, lang domain.Language) domain.AuthenticatedUser {
	meta := func(key string) string {
		if v, ok := identity.Metadata[key].(string); ok {
			return strings.TrimSpace(v)
		}
		return ""
	}
	name := meta("name")
	if name == "" {
		name = meta("full_name")
	}
	phone := identity.Phone
	if phone == "" {
		phone = meta("phone")
	}
	if l := meta("language"); l != "" {
		lang = domain.NormalizeLanguage(l)
	}
	return domain.AuthenticatedUser{
		ID:        identity.ID,
		Email:     identity.Email,
		Name:      name,
		SCENumber: meta("sce_number"),
		Company:   meta("company"),
		Location:  meta("location"),
		Phone:     domain.NormalizeSaudiPhone(phone),
		Language:  lang,
		Avatar:    meta("avatar_url"),
	}
}

// identityError maps identity provider failures onto one generic message per
// kind.
func identityError(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrEmailTaken):
		return apperror.Conflict("An account with this email already exists")
	case errors.Is(err, domain.ErrInvalidCredentials):
		return apperror.Unauthorized("Invalid email or password")
	case errors.Is(err, domain.ErrInvalidToken):
		return apperror.Unauthorized("Invalid or expired sign-in token")
	case errors.Is(err, domain.ErrIdentityRejected):
		return apperror.BadRequest("The request was rejected by the authentication service")
	}
	logger.Log.Error("identity provider call failed", "op", op, "error", err)
	return apperror.Unavailable("Authentication service is temporarily unavailable", err)
}

func validationFailed(err error, lang domain.Language) error {
	return validation.AppError(err, lang)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func joinLocation(city, region string) string {
	city, region = strings.TrimSpace(city), strings.TrimSpace(region)
	switch {
	case city != "" && region != "":
		return city + ", " + region
	case city != "":
		return city
	}
	return region
}
