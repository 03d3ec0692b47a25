package domain

import (
	"context"
	"strings"
	"time"
)

// Role is the closed set of marketplace roles.
type Role string

const (
	RoleEngineer   Role = "engineer"
	RoleClient     Role = "client"
	RoleEnterprise Role = "enterprise"
	RoleAdmin      Role = "admin"
)

// ValidRoles returns all valid roles
func ValidRoles() []Role {
	return []Role{RoleEngineer, RoleClient, RoleEnterprise, RoleAdmin}
}

// IsValid checks if the role is one of the closed set
func (r Role) IsValid() bool {
	for _, valid := range ValidRoles() {
		if r == valid {
			return true
		}
	}
	return false
}

// IsSelfAssignable reports whether a user may pick this role during signup.
// Admins are only created by other admins.
func (r Role) IsSelfAssignable() bool {
	return r.IsValid() && r != RoleAdmin
}

// BasePath is the SPA subtree owned by the role.
func (r Role) BasePath() string {
	if !r.IsValid() {
		return PathAuth
	}
	return "/" + string(r)
}

// RegistrationPath is where the SPA collects the full registration form when
// automatic profile provisioning fails.
func (r Role) RegistrationPath() string {
	return PathAuthRegistration + "/" + string(r)
}

type Language string

const (
	LanguageArabic  Language = "ar"
	LanguageEnglish Language = "en"
)

// NormalizeLanguage maps free input ("en-US", "AR") onto a supported language.
func NormalizeLanguage(lang string) Language {
	l := strings.ToLower(strings.TrimSpace(lang))
	if strings.HasPrefix(l, "en") {
		return LanguageEnglish
	}
	return LanguageArabic
}

// AuthenticatedUser is the user object the SPA keeps in its session store.
// JSON field names match the persisted client snapshot.
type AuthenticatedUser struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	Name       string   `json:"name"`
	Role       Role     `json:"role"`
	IsVerified bool     `json:"isVerified"`
	SCENumber  string   `json:"sceNumber,omitempty"`
	Company    string   `json:"company,omitempty"`
	Location   string   `json:"location"`
	Phone      string   `json:"phone"`
	Language   Language `json:"language"`
	Avatar     string   `json:"avatar,omitempty"`
}

// HasRole reports whether role selection has happened.
func (u *AuthenticatedUser) HasRole() bool {
	return u.Role != ""
}

// User is the row in the users table; the source of truth for role and
// verification state.
type User struct {
	ID         string    `json:"id"` // identity provider UUID
	Email      string    `json:"email"`
	Role       Role      `json:"role"`
	IsVerified bool      `json:"is_verified"`
	IsDisabled bool      `json:"is_disabled"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UserUpdate is a partial update of the session user. Nil fields are untouched.
type UserUpdate struct {
	Name      *string `json:"name,omitempty" validate:"omitempty,min=2,max=100,valid_name,no_emoji"`
	Company   *string `json:"company,omitempty" validate:"omitempty,max=150,no_emoji"`
	Location  *string `json:"location,omitempty" validate:"omitempty,max=150,no_emoji"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,saudi_phone"`
	SCENumber *string `json:"sceNumber,omitempty" validate:"omitempty,sce_number"`
	Language  *string `json:"language,omitempty" validate:"omitempty,oneof=ar en"`
	Avatar    *string `json:"avatar,omitempty" validate:"omitempty,url"`
}

// IsEmpty reports whether the update carries no changes.
func (u UserUpdate) IsEmpty() bool {
	return u.Name == nil && u.Company == nil && u.Location == nil && u.Phone == nil &&
		u.SCENumber == nil && u.Language == nil && u.Avatar == nil
}

// Apply merges the update into user and reports which derived profile fields
// must be recomputed.
func (u UserUpdate) Apply(user *AuthenticatedUser) (nameChanged, locationChanged bool) {
	if u.Name != nil {
		user.Name = strings.TrimSpace(*u.Name)
		nameChanged = true
	}
	if u.Company != nil {
		user.Company = strings.TrimSpace(*u.Company)
	}
	if u.Location != nil {
		user.Location = strings.TrimSpace(*u.Location)
		locationChanged = true
	}
	if u.Phone != nil {
		user.Phone = NormalizeSaudiPhone(*u.Phone)
	}
	if u.SCENumber != nil {
		user.SCENumber = strings.TrimSpace(*u.SCENumber)
	}
	if u.Language != nil {
		user.Language = NormalizeLanguage(*u.Language)
	}
	if u.Avatar != nil {
		user.Avatar = *u.Avatar
	}
	return nameChanged, locationChanged
}

// NormalizeSaudiPhone rewrites 05XXXXXXXX and 00966... forms to +9665XXXXXXXX.
func NormalizeSaudiPhone(phone string) string {
	p := strings.ReplaceAll(strings.TrimSpace(phone), " ", "")
	switch {
	case strings.HasPrefix(p, "+966"):
		return p
	case strings.HasPrefix(p, "00966"):
		return "+" + strings.TrimPrefix(p, "00")
	case strings.HasPrefix(p, "05"):
		return "+966" + strings.TrimPrefix(p, "0")
	case strings.HasPrefix(p, "5") && len(p) == 9:
		return "+966" + p
	}
	return p
}

type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, user *User) error
}

type AuthUsecase interface {
	EnsureUserExists(ctx context.Context, user *User) error
	AssignRole(ctx context.Context, userID string, role Role) error
	GetCurrentUser(ctx context.Context, id string) (*User, error)
	CheckEmailExists(ctx context.Context, email string) (bool, error)
	// RefreshUser re-reads the remote users/profiles rows for a session user.
	// Returns ErrUserDisabled or ErrNotFound when the session must end.
	RefreshUser(ctx context.Context, user AuthenticatedUser) (*AuthenticatedUser, *UserProfile, error)
}
