package validation

import (
	"errors"
	"fmt"
	"strings"

	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/apperror"

	"github.com/go-playground/validator/v10"
)

// FieldLabels maps struct field names to user-facing labels per language.
var FieldLabels = map[domain.Language]map[string]string{
	domain.LanguageArabic: {
		"Name":      "الاسم",
		"FirstName": "الاسم الأول",
		"LastName":  "اسم العائلة",
		"Email":     "البريد الإلكتروني",
		"Password":  "كلمة المرور",
		"Phone":     "رقم الجوال",
		"SCENumber": "رقم عضوية الهيئة السعودية للمهندسين",
		"Company":   "الشركة",
		"Location":  "الموقع",
		"City":      "المدينة",
		"Region":    "المنطقة",
		"Language":  "اللغة",
		"Role":      "نوع الحساب",
		"Code":      "رمز التحقق",
		"FlowID":    "معرف الجلسة",
		"Avatar":    "الصورة الشخصية",
	},
	domain.LanguageEnglish: {
		"Name":      "Name",
		"FirstName": "First name",
		"LastName":  "Last name",
		"Email":     "Email",
		"Password":  "Password",
		"Phone":     "Mobile number",
		"SCENumber": "SCE membership number",
		"Company":   "Company",
		"Location":  "Location",
		"City":      "City",
		"Region":    "Region",
		"Language":  "Language",
		"Role":      "Account type",
		"Code":      "Verification code",
		"FlowID":    "Flow id",
		"Avatar":    "Avatar",
	},
}

type messageSet struct {
	required, min, max, length, oneof, email, url, uuid string
	validName, saudiPhone, sceNumber, otpCode, userRole string
	noEmoji, fallback                                   string
}

var messages = map[domain.Language]messageSet{
	domain.LanguageArabic: {
		required:   "%s: حقل مطلوب",
		min:        "%s: الحد الأدنى %s أحرف",
		max:        "%s: الحد الأقصى %s حرفاً",
		length:     "%s: يجب أن يكون %s أحرف بالضبط",
		oneof:      "%s: يجب أن يكون أحد القيم: %s",
		email:      "%s: صيغة البريد الإلكتروني غير صحيحة",
		url:        "%s: صيغة الرابط غير صحيحة",
		uuid:       "%s: معرف غير صالح",
		validName:  "%s: يسمح بالحروف والمسافات فقط",
		saudiPhone: "%s: يجب أن يكون رقم جوال سعودي صحيح (05XXXXXXXX)",
		sceNumber:  "%s: يجب أن يتكون من 6 إلى 10 أرقام",
		otpCode:    "%s: يجب أن يتكون من 6 أرقام",
		userRole:   "%s: نوع الحساب غير صالح",
		noEmoji:    "%s: لا يسمح بالرموز التعبيرية",
		fallback:   "%s: قيمة غير صالحة (%s)",
	},
	domain.LanguageEnglish: {
		required:   "%s: is required",
		min:        "%s: must be at least %s characters",
		max:        "%s: must be at most %s characters",
		length:     "%s: must be exactly %s characters",
		oneof:      "%s: must be one of: %s",
		email:      "%s: invalid email format",
		url:        "%s: invalid URL format",
		uuid:       "%s: invalid identifier",
		validName:  "%s: only letters and spaces are allowed",
		saudiPhone: "%s: must be a valid Saudi mobile number (05XXXXXXXX)",
		sceNumber:  "%s: must be 6 to 10 digits",
		otpCode:    "%s: must be 6 digits",
		userRole:   "%s: invalid account type",
		noEmoji:    "%s: emoji are not allowed",
		fallback:   "%s: invalid value (%s)",
	},
}

// FormatValidationErrors converts validator.ValidationErrors to localized messages.
func FormatValidationErrors(err error, lang domain.Language) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{err.Error()}
	}

	out := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		out = append(out, formatSingleError(e, lang))
	}
	return out
}

// FieldErrors maps the JSON-facing field name to its localized message.
func FieldErrors(err error, lang domain.Language) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	out := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		out[toSnake(e.Field())] = formatSingleError(e, lang)
	}
	return out
}

func formatSingleError(e validator.FieldError, lang domain.Language) string {
	m, ok := messages[lang]
	if !ok {
		m = messages[domain.LanguageArabic]
	}
	label := getFieldLabel(e.Field(), lang)
	param := e.Param()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf(m.required, label)
	case "min":
		return fmt.Sprintf(m.min, label, param)
	case "max":
		return fmt.Sprintf(m.max, label, param)
	case "len":
		return fmt.Sprintf(m.length, label, param)
	case "oneof":
		return fmt.Sprintf(m.oneof, label, strings.ReplaceAll(param, " ", ", "))
	case "email":
		return fmt.Sprintf(m.email, label)
	case "url":
		return fmt.Sprintf(m.url, label)
	case "uuid":
		return fmt.Sprintf(m.uuid, label)
	case "valid_name":
		return fmt.Sprintf(m.validName, label)
	case "saudi_phone":
		return fmt.Sprintf(m.saudiPhone, label)
	case "sce_number":
		return fmt.Sprintf(m.sceNumber, label)
	case "otp_code":
		return fmt.Sprintf(m.otpCode, label)
	case "user_role":
		return fmt.Sprintf(m.userRole, label)
	case "no_emoji":
		return fmt.Sprintf(m.noEmoji, label)
	default:
		return fmt.Sprintf(m.fallback, label, e.Tag())
	}
}

// getFieldLabel returns the user-friendly label for a field
func getFieldLabel(fieldName string, lang domain.Language) string {
	if labels, ok := FieldLabels[lang]; ok {
		if label, ok := labels[fieldName]; ok {
			return label
		}
	}
	return formatCamelCase(fieldName)
}

// formatCamelCase converts CamelCase to spaced words
func formatCamelCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteRune(' ')
		}
		result.WriteRune(r)
	}
	return result.String()
}

// toSnake converts a Go field name to its snake_case JSON name ("SCENumber" -> "sce_number").
func toSnake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteRune('_')
			}
		}
		if upper {
			r = r + ('a' - 'A')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// AppError turns a validator failure into a 400 whose message is the first
// localized error and whose details carry every field.
func AppError(err error, lang domain.Language) *apperror.AppError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.BadRequest("Invalid request")
	}
	msg := "Invalid request"
	if msgs := FormatValidationErrors(err, lang); len(msgs) > 0 {
		msg = msgs[0]
	}
	return apperror.BadRequest(msg).WithDetails(map[string]interface{}{
		"fields": FieldErrors(err, lang),
	})
}
