package validation

import (
	"regexp"
	"unicode"

	"go-marketplace-backend/internal/domain"

	"github.com/go-playground/validator/v10"
)

// Regex patterns
var (
	// Letters (any script), spaces, and the punctuation that shows up in
	// Arabic and Latin personal names.
	nameRegex = regexp.MustCompile(`^[\p{L}\p{M} .'-]+$`)

	// Saudi mobile: +9665XXXXXXXX, 009665XXXXXXXX, 05XXXXXXXX or 5XXXXXXXX
	saudiPhoneRegex = regexp.MustCompile(`^(\+966|00966|0)?5[0-9]{8}$`)

	// Saudi Council of Engineers membership number
	sceNumberRegex = regexp.MustCompile(`^[0-9]{6,10}$`)

	otpCodeRegex = regexp.MustCompile(`^[0-9]{6}$`)
)

// New returns a validator with the custom tags registered.
func New() *validator.Validate {
	v := validator.New()
	RegisterValidators(v)
	return v
}

// RegisterValidators registers custom validators to the validator instance
func RegisterValidators(v *validator.Validate) {
	_ = v.RegisterValidation("valid_name", ValidName)
	_ = v.RegisterValidation("saudi_phone", SaudiPhone)
	_ = v.RegisterValidation("sce_number", SCENumber)
	_ = v.RegisterValidation("otp_code", OTPCode)
	_ = v.RegisterValidation("user_role", UserRole)
	_ = v.RegisterValidation("no_emoji", NoEmoji)
}

// ValidName validates that a string contains only valid name characters
func ValidName(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true // Optional, use required if needed
	}
	return nameRegex.MatchString(val)
}

func SaudiPhone(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	return IsSaudiPhone(val)
}

// IsSaudiPhone reports whether phone is a Saudi mobile number. Spaces are ignored.
func IsSaudiPhone(phone string) bool {
	compact := make([]rune, 0, len(phone))
	for _, r := range phone {
		if r != ' ' {
			compact = append(compact, r)
		}
	}
	return saudiPhoneRegex.MatchString(string(compact))
}

func SCENumber(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	return sceNumberRegex.MatchString(val)
}

// OTPCode accepts exactly six ASCII digits.
func OTPCode(fl validator.FieldLevel) bool {
	return otpCodeRegex.MatchString(fl.Field().String())
}

// UserRole accepts the closed role set, including admin. Self-assignment
// rules are enforced by the caller.
func UserRole(fl validator.FieldLevel) bool {
	return domain.Role(fl.Field().String()).IsValid()
}

// NoEmoji validates that a string does not contain emoji characters
func NoEmoji(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	for _, r := range val {
		if r > 0x1F000 {
			return false // Supplementary characters (mostly emoji/symbols)
		}
		if unicode.In(r, unicode.So, unicode.Sk) { // Symbol, other / Symbol, modifier
			return false
		}
	}
	return true
}
