package validation_test

import (
	"testing"

	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaudiPhone(t *testing.T) {
	valid := []string{"+966501234567", "00966501234567", "0501234567", "501234567", "050 123 4567"}
	for _, p := range valid {
		assert.True(t, validation.IsSaudiPhone(p), p)
	}

	invalid := []string{"", "+966401234567", "05012345", "+9715012345678", "0501234567x"}
	for _, p := range invalid {
		assert.False(t, validation.IsSaudiPhone(p), p)
	}
}

func TestRegisterRequestValidation(t *testing.T) {
	v := validation.New()

	t.Run("valid request passes", func(t *testing.T) {
		req := domain.RegisterRequest{
			Name:      "Ahmed Al-Saud",
			Email:     "ahmed@example.com",
			Password:  "password123",
			Phone:     "+966501234567",
			SCENumber: "1234567",
		}
		assert.NoError(t, v.Struct(req))
	})

	t.Run("invalid email is reported in arabic by default", func(t *testing.T) {
		req := domain.RegisterRequest{
			Name:     "Ahmed",
			Email:    "not-an-email",
			Password: "password123",
			Phone:    "0501234567",
		}
		err := v.Struct(req)
		require.Error(t, err)

		fields := validation.FieldErrors(err, domain.LanguageArabic)
		require.Contains(t, fields, "email")
		assert.Contains(t, fields["email"], "البريد الإلكتروني")
	})

	t.Run("english messages", func(t *testing.T) {
		req := domain.RegisterRequest{
			Name:      "Ahmed",
			Email:     "ahmed@example.com",
			Password:  "short",
			Phone:     "0501234567",
			SCENumber: "12ab",
		}
		err := v.Struct(req)
		require.Error(t, err)

		fields := validation.FieldErrors(err, domain.LanguageEnglish)
		assert.Equal(t, "Password: must be at least 8 characters", fields["password"])
		assert.Equal(t, "SCE membership number: must be 6 to 10 digits", fields["sce_number"])
	})
}

func TestOTPCodeAndRole(t *testing.T) {
	v := validation.New()

	assert.NoError(t, v.Var("123456", "otp_code"))
	assert.Error(t, v.Var("12345", "otp_code"))
	assert.Error(t, v.Var("12345a", "otp_code"))

	assert.NoError(t, v.Var("engineer", "user_role"))
	assert.NoError(t, v.Var("admin", "user_role"))
	assert.Error(t, v.Var("candidate", "user_role"))
}

func TestNoEmoji(t *testing.T) {
	v := validation.New()
	assert.NoError(t, v.Var("مهندس مدني", "no_emoji"))
	assert.Error(t, v.Var("engineer 🚀", "no_emoji"))
}
