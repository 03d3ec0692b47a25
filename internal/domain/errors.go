package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// Identity provider outcomes
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailTaken          = errors.New("email already registered")
	ErrIdentityUnavailable = errors.New("identity service unavailable")
	ErrInvalidToken        = errors.New("invalid provider token")
	ErrEmailNotConfirmed   = errors.New("email not confirmed")
	ErrIdentityRejected    = errors.New("identity request rejected")

	// Signup flow
	ErrFlowBusy    = errors.New("flow is being processed")
	ErrFlowExpired = errors.New("flow expired")

	ErrUserDisabled = errors.New("user disabled")
)
