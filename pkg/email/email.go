package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"time"

	"go-marketplace-backend/config"
	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/logger"
)

// EmailService handles sending emails via SMTP
type EmailService struct {
	host      string
	port      string
	username  string
	password  string
	fromEmail string
	send      func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// OTPEmailData holds the data for verification code emails
type OTPEmailData struct {
	Name      string
	Code      string
	ExpiresIn int // minutes
	RTL       bool
}

// NewEmailService creates a new email service with Brevo SMTP configuration
func NewEmailService(cfg *config.Config) *EmailService {
	from := cfg.SMTPFromEmail
	if from == "" {
		from = cfg.SMTPUsername
	}
	return &EmailService{
		host:      cfg.SMTPHost,
		port:      cfg.SMTPPort,
		username:  cfg.SMTPUsername,
		password:  cfg.SMTPPassword,
		fromEmail: from,
		send:      smtp.SendMail,
	}
}

var otpSubjects = map[domain.Language]string{
	domain.LanguageArabic:  "رمز التحقق الخاص بك",
	domain.LanguageEnglish: "Your verification code",
}

var otpTemplate = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html{{if .RTL}} dir="rtl" lang="ar"{{else}} lang="en"{{end}}>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Tahoma, Arial, sans-serif; color: #222; }
        .container { max-width: 480px; margin: 0 auto; padding: 24px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; background: #f2f5f9; padding: 16px; text-align: center; }
        .footer { color: #888; font-size: 12px; margin-top: 24px; }
    </style>
</head>
<body>
    <div class="container">
        {{if .RTL}}
        <p>مرحباً {{.Name}}،</p>
        <p>استخدم الرمز التالي لتأكيد حسابك:</p>
        <div class="code">{{.Code}}</div>
        <p class="footer">ينتهي الرمز خلال {{.ExpiresIn}} دقائق. إذا لم تطلب هذا الرمز فتجاهل الرسالة.</p>
        {{else}}
        <p>Hello {{.Name}},</p>
        <p>Use the following code to verify your account:</p>
        <div class="code">{{.Code}}</div>
        <p class="footer">The code expires in {{.ExpiresIn}} minutes. If you did not request it, ignore this email.</p>
        {{end}}
    </div>
</body>
</html>`))

// SendOTP sends a verification code to the given address.
func (s *EmailService) SendOTP(ctx context.Context, to, name, code string, lang domain.Language, ttl time.Duration) error {
	if !s.IsConfigured() {
		logger.Log.WarnContext(ctx, "SMTP not configured, verification code not sent", "to", to)
		return fmt.Errorf("email service not configured")
	}

	var body bytes.Buffer
	data := OTPEmailData{Name: name, Code: code, ExpiresIn: int(ttl.Minutes()), RTL: lang != domain.LanguageEnglish}
	if err := otpTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to execute email template: %w", err)
	}

	subject, ok := otpSubjects[lang]
	if !ok {
		subject = otpSubjects[domain.LanguageArabic]
	}

	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		s.fromEmail,
		to,
		mime.QEncoding.Encode("utf-8", subject),
		body.String(),
	))

	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	if err := s.send(addr, auth, s.fromEmail, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// IsConfigured checks if the email service has valid SMTP configuration
func (s *EmailService) IsConfigured() bool {
	return s.host != "" && s.username != "" && s.password != ""
}
