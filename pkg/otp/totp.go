// Package otp holds the one-time code verifiers used by the signup flow.
package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-marketplace-backend/internal/domain"

	potp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Mailer delivers a code to the user.
type Mailer interface {
	SendOTP(ctx context.Context, to, name, code string, lang domain.Language, ttl time.Duration) error
}

// TOTPService derives codes from a per-flow secret. The secret never leaves
// the flow store; the code is mailed to the address on the flow.
type TOTPService struct {
	issuer string
	period time.Duration
	mailer Mailer
	now    func() time.Time
}

func NewTOTPService(issuer string, period time.Duration, mailer Mailer) *TOTPService {
	if period <= 0 {
		period = 5 * time.Minute
	}
	return &TOTPService{issuer: issuer, period: period, mailer: mailer, now: time.Now}
}

func (s *TOTPService) Name() string { return "totp" }

func (s *TOTPService) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(s.period.Seconds()),
		Skew:      1,
		Digits:    potp.DigitsSix,
		Algorithm: potp.AlgorithmSHA1,
	}
}

// Issue rotates the flow secret and mails the current code.
func (s *TOTPService) Issue(ctx context.Context, flow *domain.SignupFlow) error {
	if flow.User.Email == "" {
		return errors.New("otp: flow has no email to deliver to")
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: flow.User.Email,
		Period:      uint(s.period.Seconds()),
		Digits:      potp.DigitsSix,
		Algorithm:   potp.AlgorithmSHA1,
	})
	if err != nil {
		return fmt.Errorf("otp: generate secret: %w", err)
	}

	code, err := totp.GenerateCodeCustom(key.Secret(), s.now(), s.opts())
	if err != nil {
		return fmt.Errorf("otp: generate code: %w", err)
	}

	flow.OTPSecret = key.Secret()
	flow.OTPChannel = domain.OTPChannelEmail
	return s.mailer.SendOTP(ctx, flow.User.Email, flow.User.Name, code, flow.User.Language, s.period)
}

func (s *TOTPService) Verify(_ context.Context, flow *domain.SignupFlow, code string) (bool, error) {
	if flow.OTPSecret == "" {
		return false, nil
	}
	ok, err := totp.ValidateCustom(code, flow.OTPSecret, s.now(), s.opts())
	if err != nil && !errors.Is(err, potp.ErrValidateInputInvalidLength) {
		return false, fmt.Errorf("otp: validate: %w", err)
	}
	return ok, nil
}
