package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes with bcrypt at the default cost.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type localProvider struct {
	db *pgxpool.Pool
}

// NewLocalProvider keeps credentials in the local_identities table. It stands
// in for the hosted service in development; confirmation is tracked on the
// users row by the OTP step.
func NewLocalProvider(db *pgxpool.Pool) domain.IdentityProvider {
	return &localProvider{db: db}
}

func (p *localProvider) SignUp(ctx context.Context, params domain.SignUpParams) (*domain.Identity, error) {
	hash, err := HashPassword(params.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIdentityRejected, err)
	}
	meta, err := json.Marshal(params.Metadata)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO local_identities (email, password_hash, phone, metadata, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (email) DO NOTHING
		RETURNING id`
	var id string
	err = p.db.QueryRow(ctx, query, params.Email, hash, params.Phone, meta).Scan(&id)
	metrics.IdentityCall("signup", err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIdentityUnavailable, err)
	}

	return &domain.Identity{ID: id, Email: params.Email, Phone: params.Phone, Metadata: params.Metadata}, nil
}

func (p *localProvider) SignIn(ctx context.Context, email, password string) (*domain.Identity, error) {
	query := `SELECT id, password_hash, COALESCE(phone, ''), metadata FROM local_identities WHERE email = $1`

	var (
		id, hash, phone string
		meta            []byte
	)
	err := p.db.QueryRow(ctx, query, email).Scan(&id, &hash, &phone, &meta)
	metrics.IdentityCall("signin", err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIdentityUnavailable, err)
	}
	if !CheckPassword(hash, password) {
		return nil, domain.ErrInvalidCredentials
	}

	identity := &domain.Identity{ID: id, Email: email, Phone: phone}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &identity.Metadata)
	}
	return identity, nil
}
