package domain

import (
	"context"
	"time"
)

// FlowStep is a screen of the authentication wizard.
type FlowStep string

const (
	StepAuth          FlowStep = "auth"
	StepVerifyOTP     FlowStep = "verify-otp"
	StepRoleSelection FlowStep = "role-selection"
	StepProfileSetup  FlowStep = "profile-setup"
	StepComplete      FlowStep = "complete"
)

// OTPChannel is where a one-time code is delivered.
type OTPChannel string

const (
	OTPChannelEmail OTPChannel = "email"
	OTPChannelSMS   OTPChannel = "sms"
)

// SignupFlow holds the partial user between wizard steps. Persisted as JSON
// in the flow store, so secret fields are serialized there but never exposed
// to clients (see View).
type SignupFlow struct {
	ID          string            `json:"id"`
	Step        FlowStep          `json:"step"`
	User        AuthenticatedUser `json:"user"`
	OTPChannel  OTPChannel        `json:"otp_channel,omitempty"`
	OTPSecret   string            `json:"otp_secret,omitempty"`
	OTPAttempts int               `json:"otp_attempts"`
	OTPSentAt   time.Time         `json:"otp_sent_at"`
	// ProfileFallback is set when automatic profile provisioning failed and
	// the SPA was sent to the registration page.
	ProfileFallback bool      `json:"profile_fallback"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// FlowView is the client-visible projection of a flow.
type FlowView struct {
	ID        string            `json:"flow_id"`
	Step      FlowStep          `json:"step"`
	User      AuthenticatedUser `json:"user"`
	Channel   OTPChannel        `json:"otp_channel,omitempty"`
	ExpiresAt time.Time         `json:"expires_at"`
}

func (f *SignupFlow) View() FlowView {
	return FlowView{ID: f.ID, Step: f.Step, User: f.User, Channel: f.OTPChannel, ExpiresAt: f.ExpiresAt}
}

// Expired reports whether the flow outlived its TTL.
func (f *SignupFlow) Expired(now time.Time) bool {
	return !f.ExpiresAt.IsZero() && now.After(f.ExpiresAt)
}

// RegisterRequest is the signup form.
type RegisterRequest struct {
	Name      string `json:"name" validate:"required,min=2,max=100,valid_name,no_emoji"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	Phone     string `json:"phone" validate:"required,saudi_phone"`
	SCENumber string `json:"sce_number" validate:"omitempty,sce_number"`
	Company   string `json:"company" validate:"omitempty,max=150,no_emoji"`
	Location  string `json:"location" validate:"omitempty,max=150,no_emoji"`
	Language  string `json:"language" validate:"omitempty,oneof=ar en"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Language string `json:"language" validate:"omitempty,oneof=ar en"`
}

type OAuthCallbackRequest struct {
	AccessToken string `json:"access_token" validate:"required"`
	Language    string `json:"language" validate:"omitempty,oneof=ar en"`
}

type VerifyOTPRequest struct {
	FlowID string `json:"flow_id" validate:"required,uuid"`
	Code   string `json:"code" validate:"required,otp_code"`
}

type ResendOTPRequest struct {
	FlowID string `json:"flow_id" validate:"required,uuid"`
}

type SelectRoleRequest struct {
	FlowID string `json:"flow_id" validate:"required,uuid"`
	Role   string `json:"role" validate:"required,user_role"`
}

// ProfileSetupRequest captures structured name and location fields instead of
// parsing display strings.
type ProfileSetupRequest struct {
	FlowID    string `json:"flow_id" validate:"required,uuid"`
	FirstName string `json:"first_name" validate:"required,min=1,max=50,valid_name,no_emoji"`
	LastName  string `json:"last_name" validate:"required,min=1,max=50,valid_name,no_emoji"`
	City      string `json:"city" validate:"omitempty,max=80,no_emoji"`
	Region    string `json:"region" validate:"omitempty,max=80,no_emoji"`
	Company   string `json:"company" validate:"omitempty,max=150,no_emoji"`
	SCENumber string `json:"sce_number" validate:"omitempty,sce_number"`
	Phone     string `json:"phone" validate:"omitempty,saudi_phone"`
}

// SessionGrant is handed to the SPA when the wizard completes.
type SessionGrant struct {
	Token     string            `json:"token"`
	SessionID string            `json:"session_id"`
	ExpiresAt time.Time         `json:"expires_at"`
	User      AuthenticatedUser `json:"user"`
	Profile   UserProfile       `json:"profile"`
}

// FlowResult tells the SPA which screen to show next.
type FlowResult struct {
	FlowID   string             `json:"flow_id,omitempty"`
	Step     FlowStep           `json:"step"`
	User     *AuthenticatedUser `json:"user,omitempty"`
	Redirect string             `json:"redirect,omitempty"`
	Session  *SessionGrant      `json:"session,omitempty"`
}

type SignupFlowRepository interface {
	Save(ctx context.Context, flow *SignupFlow) error
	Get(ctx context.Context, id string) (*SignupFlow, error)
	Delete(ctx context.Context, id string) error
	// Lock serializes submissions for one flow. Returns ErrFlowBusy when
	// another submission holds the lock.
	Lock(ctx context.Context, id string, ttl time.Duration) (unlock func(), err error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// OTPVerifier issues and checks one-time codes for a flow.
type OTPVerifier interface {
	Name() string
	Issue(ctx context.Context, flow *SignupFlow) error
	Verify(ctx context.Context, flow *SignupFlow, code string) (bool, error)
}

// SessionStarter hands a completed user to the session store
// (onAuthenticationComplete).
type SessionStarter interface {
	Start(ctx context.Context, user AuthenticatedUser, profile UserProfile) (*SessionGrant, error)
}

type AuthFlowUsecase interface {
	Register(ctx context.Context, req *RegisterRequest) (*FlowResult, error)
	Login(ctx context.Context, req *LoginRequest, client ClientInfo) (*FlowResult, error)
	OAuthCallback(ctx context.Context, req *OAuthCallbackRequest) (*FlowResult, error)
	VerifyOTP(ctx context.Context, req *VerifyOTPRequest) (*FlowResult, error)
	ResendOTP(ctx context.Context, req *ResendOTPRequest) (*FlowResult, error)
	SelectRole(ctx context.Context, req *SelectRoleRequest) (*FlowResult, error)
	CompleteProfile(ctx context.Context, req *ProfileSetupRequest) (*FlowResult, error)
	GetFlow(ctx context.Context, flowID string) (*FlowView, error)
}

// ClientInfo identifies the caller for login tracking.
type ClientInfo struct {
	IP        string
	UserAgent string
	RequestID string
}
