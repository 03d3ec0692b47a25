package otp

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/supabase"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) SendOTP(ctx context.Context, to, name, code string, lang domain.Language, ttl time.Duration) error {
	return m.Called(ctx, to, name, code, lang, ttl).Error(0)
}

func newFlow() *domain.SignupFlow {
	return &domain.SignupFlow{
		ID:   "flow-1",
		Step: domain.StepVerifyOTP,
		User: domain.AuthenticatedUser{
			Email:    "eng@example.com",
			Name:     "Ahmed",
			Phone:    "0501234567",
			Language: domain.LanguageArabic,
		},
	}
}

func TestFixedCodeVerifier(t *testing.T) {
	v, err := NewFixedCodeVerifier(false)
	require.NoError(t, err)

	flow := newFlow()
	require.NoError(t, v.Issue(context.Background(), flow))

	for _, code := range []string{"123456", "000000"} {
		ok, err := v.Verify(context.Background(), flow, code)
		require.NoError(t, err)
		assert.True(t, ok, code)
	}
	for _, code := range []string{"654321", "111111", "12345"} {
		ok, err := v.Verify(context.Background(), flow, code)
		require.NoError(t, err)
		assert.False(t, ok, code)
	}
}

func TestFixedCodeVerifierRefusedInRelease(t *testing.T) {
	_, err := NewFixedCodeVerifier(true)
	assert.ErrorIs(t, err, ErrPlaceholderInRelease)
}

func TestTOTPServiceIssueAndVerify(t *testing.T) {
	mailer := new(mockMailer)
	svc := NewTOTPService("Muhandis", 5*time.Minute, mailer)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	var sent string
	mailer.On("SendOTP", mock.Anything, "eng@example.com", "Ahmed", mock.AnythingOfType("string"), domain.LanguageArabic, 5*time.Minute).
		Return(nil).
		Run(func(args mock.Arguments) { sent = args.String(3) })

	flow := newFlow()
	require.NoError(t, svc.Issue(context.Background(), flow))
	require.NotEmpty(t, flow.OTPSecret)
	assert.Len(t, sent, 6)

	ok, err := svc.Verify(context.Background(), flow, sent)
	require.NoError(t, err)
	assert.True(t, ok)

	// A code from a window far in the past is rejected.
	stale, err := totp.GenerateCodeCustom(flow.OTPSecret, now.Add(-time.Hour), svc.opts())
	require.NoError(t, err)
	if stale != sent {
		ok, err = svc.Verify(context.Background(), flow, stale)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	mailer.AssertExpectations(t)
}

type mockPhoneClient struct {
	mock.Mock
}

func (m *mockPhoneClient) SendPhoneOTP(ctx context.Context, phone string) error {
	return m.Called(ctx, phone).Error(0)
}

func (m *mockPhoneClient) VerifyPhoneOTP(ctx context.Context, phone, code string) (*supabase.Session, error) {
	args := m.Called(ctx, phone, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*supabase.Session), args.Error(1)
}

func TestSupabaseServiceNormalizesPhone(t *testing.T) {
	client := new(mockPhoneClient)
	svc := NewSupabaseService(client)
	flow := newFlow()

	client.On("SendPhoneOTP", mock.Anything, "+966501234567").Return(nil)
	client.On("VerifyPhoneOTP", mock.Anything, "+966501234567", "123123").Return(&supabase.Session{}, nil)
	client.On("VerifyPhoneOTP", mock.Anything, "+966501234567", "999999").
		Return(nil, &supabase.APIError{Status: http.StatusForbidden, Code: "otp_expired"})
	client.On("VerifyPhoneOTP", mock.Anything, "+966501234567", "500500").
		Return(nil, errors.New("connection reset"))

	require.NoError(t, svc.Issue(context.Background(), flow))
	assert.Equal(t, domain.OTPChannelSMS, flow.OTPChannel)

	ok, err := svc.Verify(context.Background(), flow, "123123")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Verify(context.Background(), flow, "999999")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Verify(context.Background(), flow, "500500")
	assert.Error(t, err)
}
