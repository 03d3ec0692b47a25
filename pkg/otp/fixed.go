package otp

import (
	"context"
	"errors"

	"go-marketplace-backend/internal/domain"
)

// ErrPlaceholderInRelease is returned when the fixed-code verifier is
// requested in a production build.
var ErrPlaceholderInRelease = errors.New("otp: fixed-code verifier is not allowed in release mode")

// DevCodes are the codes the placeholder verifier accepts.
var DevCodes = []string{"123456", "000000"}

// FixedCodeVerifier accepts a fixed list of codes and sends nothing. It
// exists for local development and end-to-end tests only.
type FixedCodeVerifier struct {
	codes map[string]struct{}
}

// NewFixedCodeVerifier refuses to build in release mode.
func NewFixedCodeVerifier(release bool) (*FixedCodeVerifier, error) {
	if release {
		return nil, ErrPlaceholderInRelease
	}
	codes := make(map[string]struct{}, len(DevCodes))
	for _, c := range DevCodes {
		codes[c] = struct{}{}
	}
	return &FixedCodeVerifier{codes: codes}, nil
}

func (v *FixedCodeVerifier) Name() string { return "dev" }

func (v *FixedCodeVerifier) Issue(_ context.Context, flow *domain.SignupFlow) error {
	flow.OTPSecret = ""
	if flow.OTPChannel == "" {
		flow.OTPChannel = domain.OTPChannelSMS
	}
	return nil
}

func (v *FixedCodeVerifier) Verify(_ context.Context, _ *domain.SignupFlow, code string) (bool, error) {
	_, ok := v.codes[code]
	return ok, nil
}
