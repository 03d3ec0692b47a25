package otp

import (
	"context"
	"errors"
	"net/http"

	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/supabase"
)

// PhoneOTPClient is the part of the GoTrue client used for SMS codes.
type PhoneOTPClient interface {
	SendPhoneOTP(ctx context.Context, phone string) error
	VerifyPhoneOTP(ctx context.Context, phone, code string) (*supabase.Session, error)
}

// SupabaseService delegates SMS code issuance and checking to GoTrue.
type SupabaseService struct {
	client PhoneOTPClient
}

func NewSupabaseService(client PhoneOTPClient) *SupabaseService {
	return &SupabaseService{client: client}
}

func (s *SupabaseService) Name() string { return "supabase" }

func (s *SupabaseService) Issue(ctx context.Context, flow *domain.SignupFlow) error {
	if flow.User.Phone == "" {
		return errors.New("otp: flow has no phone to deliver to")
	}
	flow.OTPChannel = domain.OTPChannelSMS
	flow.OTPSecret = ""
	return s.client.SendPhoneOTP(ctx, domain.NormalizeSaudiPhone(flow.User.Phone))
}

// Verify maps GoTrue's 4xx answers to a plain mismatch; anything else is an
// infrastructure error.
func (s *SupabaseService) Verify(ctx context.Context, flow *domain.SignupFlow, code string) (bool, error) {
	_, err := s.client.VerifyPhoneOTP(ctx, domain.NormalizeSaudiPhone(flow.User.Phone), code)
	if err == nil {
		return true, nil
	}
	var apiErr *supabase.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= http.StatusBadRequest && apiErr.Status < http.StatusInternalServerError && apiErr.Status != http.StatusTooManyRequests {
		return false, nil
	}
	return false, err
}
