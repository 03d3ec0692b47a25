// Package identity adapts identity services to domain.IdentityProvider.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/auth"
	"go-marketplace-backend/pkg/metrics"
	"go-marketplace-backend/pkg/supabase"
)

// GoTrue is the part of the Supabase client the provider needs.
type GoTrue interface {
	SignUp(ctx context.Context, email, password, phone string, metadata map[string]interface{}) (*supabase.User, *supabase.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*supabase.Session, error)
	GetUser(ctx context.Context, accessToken string) (*supabase.User, error)
}

type supabaseProvider struct {
	client GoTrue
}

func NewSupabaseProvider(client GoTrue) domain.IdentityProvider {
	return &supabaseProvider{client: client}
}

func (p *supabaseProvider) SignUp(ctx context.Context, params domain.SignUpParams) (*domain.Identity, error) {
	user, session, err := p.client.SignUp(ctx, params.Email, params.Password, params.Phone, params.Metadata)
	metrics.IdentityCall("signup", err)
	if err != nil {
		var apiErr *supabase.APIError
		if errors.As(err, &apiErr) && apiErr.Has("user_already_exists", "email_exists", "already registered") {
			return nil, domain.ErrEmailTaken
		}
		return nil, mapError(err)
	}
	// With email confirmation disabled GoTrue answers a fake user with no
	// identities for an existing address; an empty id is treated the same.
	if user == nil || user.ID == "" {
		return nil, domain.ErrEmailTaken
	}

	id := fromUser(user)
	if session != nil {
		id.AccessToken = session.AccessToken
	}
	return id, nil
}

func (p *supabaseProvider) SignIn(ctx context.Context, email, password string) (*domain.Identity, error) {
	session, err := p.client.SignInWithPassword(ctx, email, password)
	metrics.IdentityCall("signin", err)
	if err != nil {
		var apiErr *supabase.APIError
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.Has("email_not_confirmed", "Email not confirmed"):
				return nil, domain.ErrEmailNotConfirmed
			case apiErr.Has("invalid_credentials", "invalid_grant", "Invalid login credentials"):
				return nil, domain.ErrInvalidCredentials
			}
		}
		return nil, mapError(err)
	}

	id := fromUser(&session.User)
	id.AccessToken = session.AccessToken
	return id, nil
}

func fromUser(u *supabase.User) *domain.Identity {
	return &domain.Identity{
		ID:             u.ID,
		Email:          u.Email,
		Phone:          u.Phone,
		EmailConfirmed: u.EmailConfirmedAt != nil,
		PhoneConfirmed: u.PhoneConfirmedAt != nil,
		Metadata:       u.UserMetadata,
	}
}

// mapError splits GoTrue failures into rejected requests (4xx other than
// 429) and unavailability.
func mapError(err error) error {
	var apiErr *supabase.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= http.StatusBadRequest &&
		apiErr.Status < http.StatusInternalServerError && apiErr.Status != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", domain.ErrIdentityRejected, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrIdentityUnavailable, err)
}

type tokenVerifier struct {
	verifier *auth.TokenVerifier
	client   GoTrue
}

// NewTokenVerifier validates provider access tokens locally with the JWKS /
// shared secret. Without a local verifier it asks GoTrue's /user endpoint.
func NewTokenVerifier(verifier *auth.TokenVerifier, client GoTrue) domain.ProviderTokenVerifier {
	return &tokenVerifier{verifier: verifier, client: client}
}

func (v *tokenVerifier) VerifyProviderToken(ctx context.Context, token string) (*domain.Identity, error) {
	if v.verifier != nil {
		claims, err := v.verifier.Verify(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
		}
		return &domain.Identity{
			ID:             claims.Subject,
			Email:          claims.Email,
			Phone:          claims.Phone,
			EmailConfirmed: claims.EmailVerified(),
			AccessToken:    token,
			Metadata:       claims.UserMetadata,
		}, nil
	}

	if v.client == nil {
		return nil, domain.ErrIdentityUnavailable
	}
	user, err := v.client.GetUser(ctx, token)
	metrics.IdentityCall("get_user", err)
	if err != nil {
		var apiErr *supabase.APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
		}
		return nil, mapError(err)
	}
	id := fromUser(user)
	id.AccessToken = token
	return id, nil
}
