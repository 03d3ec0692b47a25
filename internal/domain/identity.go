package domain

import "context"

// Identity is what the hosted identity service knows about a user.
type Identity struct {
	ID             string
	Email          string
	Phone          string
	EmailConfirmed bool
	PhoneConfirmed bool
	AccessToken    string
	Metadata       map[string]interface{}
}

type SignUpParams struct {
	Email    string
	Password string
	Phone    string
	Metadata map[string]interface{}
}

// IdentityProvider is the boundary to the hosted auth service. Implementations
// return the sentinel errors below so callers can tell failures apart.
type IdentityProvider interface {
	SignUp(ctx context.Context, params SignUpParams) (*Identity, error)
	SignIn(ctx context.Context, email, password string) (*Identity, error)
}

// ProviderTokenVerifier validates an access token minted by the identity
// service (OAuth callback) and returns the identity it names.
type ProviderTokenVerifier interface {
	VerifyProviderToken(ctx context.Context, token string) (*Identity, error)
}
