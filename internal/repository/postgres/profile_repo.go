package postgres

import (
	"context"
	"errors"
	"time"

	"go-marketplace-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type profileRepo struct {
	db *pgxpool.Pool
}

func NewProfileRepository(db *pgxpool.Pool) domain.ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) GetByUserID(ctx context.Context, userID string) (*domain.UserProfile, error) {
	query := `
		SELECT user_id, email, name, first_name, last_name, COALESCE(role, ''), is_verified,
		       COALESCE(sce_number, ''), COALESCE(company, ''), location, city, region,
		       phone, language, COALESCE(avatar, ''), created_at, updated_at
		FROM profiles WHERE user_id = $1`

	var p domain.UserProfile
	var role, lang string
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.Email, &p.Name, &p.FirstName, &p.LastName, &role, &p.IsVerified,
		&p.SCENumber, &p.Company, &p.Location, &p.City, &p.Region,
		&p.Phone, &lang, &p.Avatar, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Role = domain.Role(role)
	p.Language = domain.NormalizeLanguage(lang)
	return &p, nil
}

func (r *profileRepo) Create(ctx context.Context, p *domain.UserProfile) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	query := `
		INSERT INTO profiles (user_id, email, name, first_name, last_name, role, is_verified,
		                      sce_number, company, location, city, region, phone, language, avatar,
		                      created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12,
		        $13, $14, NULLIF($15, ''), $16, $17)`
	_, err := r.db.Exec(ctx, query,
		p.UserID, p.Email, p.Name, p.FirstName, p.LastName, string(p.Role), p.IsVerified,
		p.SCENumber, p.Company, p.Location, p.City, p.Region, p.Phone, string(p.Language), p.Avatar,
		p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (r *profileRepo) Update(ctx context.Context, p *domain.UserProfile) error {
	p.UpdatedAt = time.Now()

	query := `
		UPDATE profiles SET
			email = $2, name = $3, first_name = $4, last_name = $5, role = NULLIF($6, ''),
			is_verified = $7, sce_number = NULLIF($8, ''), company = NULLIF($9, ''), location = $10,
			city = $11, region = $12, phone = $13, language = $14, avatar = NULLIF($15, ''),
			updated_at = $16
		WHERE user_id = $1`
	tag, err := r.db.Exec(ctx, query,
		p.UserID, p.Email, p.Name, p.FirstName, p.LastName, string(p.Role),
		p.IsVerified, p.SCENumber, p.Company, p.Location,
		p.City, p.Region, p.Phone, string(p.Language), p.Avatar,
		p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
