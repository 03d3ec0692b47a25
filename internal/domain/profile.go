package domain

import (
	"context"
	"strings"
	"time"
)

// UserProfile is the expanded projection of an AuthenticatedUser. It is also
// the shape of the remote profiles row keyed by user_id.
type UserProfile struct {
	UserID     string    `json:"userId"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Role       Role      `json:"role"`
	IsVerified bool      `json:"isVerified"`
	SCENumber  string    `json:"sceNumber,omitempty"`
	Company    string    `json:"company,omitempty"`
	Location   string    `json:"location"`
	City       string    `json:"city"`
	Region     string    `json:"region"`
	Phone      string    `json:"phone"`
	Language   Language  `json:"language"`
	Avatar     string    `json:"avatar,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt,omitempty"`
}

// IsComplete reports whether profile setup has captured the structured fields.
func (p *UserProfile) IsComplete() bool {
	return p.FirstName != "" && p.LastName != "" && p.Role != ""
}

// SplitName derives first/last name from a display name: the first
// whitespace-separated token is the first name, the remainder the last name.
// Lossy; only used when structured fields were not captured.
func SplitName(name string) (first, last string) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

// SplitLocation derives city/region from a display location. "Riyadh, Riyadh
// Province" splits on the first comma; otherwise the first token is the city.
func SplitLocation(location string) (city, region string) {
	loc := strings.TrimSpace(location)
	if loc == "" {
		return "", ""
	}
	if i := strings.Index(loc, ","); i >= 0 {
		return strings.TrimSpace(loc[:i]), strings.TrimSpace(loc[i+1:])
	}
	fields := strings.Fields(loc)
	return fields[0], strings.Join(fields[1:], " ")
}

// NewUserProfile builds the projection of user, deriving name and location parts.
func NewUserProfile(user AuthenticatedUser) UserProfile {
	p := UserProfile{
		UserID:     user.ID,
		Email:      user.Email,
		Name:       user.Name,
		Role:       user.Role,
		IsVerified: user.IsVerified,
		SCENumber:  user.SCENumber,
		Company:    user.Company,
		Location:   user.Location,
		Phone:      user.Phone,
		Language:   user.Language,
		Avatar:     user.Avatar,
	}
	p.FirstName, p.LastName = SplitName(user.Name)
	p.City, p.Region = SplitLocation(user.Location)
	return p
}

// Sync copies the user-owned fields onto the profile, re-deriving only the
// parts whose source changed.
func (p *UserProfile) Sync(user AuthenticatedUser, nameChanged, locationChanged bool) {
	p.UserID = user.ID
	p.Email = user.Email
	p.Name = user.Name
	p.Role = user.Role
	p.IsVerified = user.IsVerified
	p.SCENumber = user.SCENumber
	p.Company = user.Company
	p.Location = user.Location
	p.Phone = user.Phone
	p.Language = user.Language
	p.Avatar = user.Avatar
	if nameChanged {
		p.FirstName, p.LastName = SplitName(user.Name)
	}
	if locationChanged {
		p.City, p.Region = SplitLocation(user.Location)
	}
}

// ToUser folds the profile row back into a session user.
func (p *UserProfile) ToUser() AuthenticatedUser {
	name := p.Name
	if name == "" {
		name = strings.TrimSpace(p.FirstName + " " + p.LastName)
	}
	return AuthenticatedUser{
		ID:         p.UserID,
		Email:      p.Email,
		Name:       name,
		Role:       p.Role,
		IsVerified: p.IsVerified,
		SCENumber:  p.SCENumber,
		Company:    p.Company,
		Location:   p.Location,
		Phone:      p.Phone,
		Language:   p.Language,
		Avatar:     p.Avatar,
	}
}

type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*UserProfile, error)
	Create(ctx context.Context, profile *UserProfile) error
	Update(ctx context.Context, profile *UserProfile) error
}

type ProfileUsecase interface {
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)
	// UpdateProfile validates the update and mirrors it to the profiles row.
	UpdateProfile(ctx context.Context, userID string, update UserUpdate) (*UserProfile, error)
	UploadAvatar(ctx context.Context, userID string, filename string, data []byte) (string, error)
}
