package postgres

import (
	"context"
	"errors"

	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL error codes
const (
	pgUniqueViolation = "23505"
)

type userRepo struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) domain.UserRepository {
	return &userRepo{db: db}
}

// Role is NULL until the user picks one.
func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	query := `INSERT INTO users (id, email, role, is_verified, is_disabled, created_at, updated_at)
              VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)`
	_, err := r.db.Exec(ctx, query, user.ID, user.Email, string(user.Role), user.IsVerified, user.IsDisabled, user.CreatedAt, user.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return apperror.Conflict("User with this email already exists")
		}
		return apperror.Internal(err)
	}
	return nil
}

const userColumns = `id, email, COALESCE(role, ''), is_verified, is_disabled, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	var role string
	err := row.Scan(&user.ID, &user.Email, &role, &user.IsVerified, &user.IsDisabled, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.Role = domain.Role(role)
	return &user, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (r *userRepo) Update(ctx context.Context, user *domain.User) error {
	query := `UPDATE users
	          SET email = $2, role = NULLIF($3, ''), is_verified = $4, is_disabled = $5, updated_at = $6
	          WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, user.ID, user.Email, string(user.Role), user.IsVerified, user.IsDisabled, user.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
