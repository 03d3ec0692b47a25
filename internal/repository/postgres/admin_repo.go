package postgres

import (
	"context"
	"errors"
	"time"

	"go-marketplace-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type adminRepo struct {
	db *pgxpool.Pool
}

func NewAdminRepository(db *pgxpool.Pool) domain.AdminRepository {
	return &adminRepo{db: db}
}

// GetStats fetches dashboard statistics
func (r *adminRepo) GetStats(ctx context.Context) (*domain.AdminStats, error) {
	stats := &domain.AdminStats{
		SystemHealth: domain.SystemHealth{
			Status:      "healthy",
			LastChecked: time.Now().Format(time.RFC3339),
		},
	}

	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE role = 'engineer'),
		       COUNT(*) FILTER (WHERE role = 'client'),
		       COUNT(*) FILTER (WHERE role = 'enterprise'),
		       COUNT(*) FILTER (WHERE role = 'admin'),
		       COUNT(*) FILTER (WHERE role IS NULL),
		       COUNT(*) FILTER (WHERE NOT is_verified),
		       COUNT(*) FILTER (WHERE is_disabled)
		FROM users`).Scan(
		&stats.TotalUsers,
		&stats.UsersByRole.Engineer,
		&stats.UsersByRole.Client,
		&stats.UsersByRole.Enterprise,
		&stats.UsersByRole.Admin,
		&stats.UsersByRole.None,
		&stats.Unverified,
		&stats.Disabled,
	)
	if err != nil {
		stats.SystemHealth.Status = "degraded"
		return stats, err
	}

	// Payments are informational; a failure here only degrades the stats.
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(amount) FILTER (WHERE type = 'incoming' AND status = 'completed'), 0)::float8
		FROM payments`).Scan(&stats.TotalPayments, &stats.Volume)
	if err != nil {
		stats.SystemHealth.Status = "degraded"
	}

	return stats, nil
}

const adminUserColumns = `u.id, u.email, COALESCE(p.name, ''), COALESCE(u.role, ''), u.is_verified, u.is_disabled, u.created_at, u.updated_at`

func scanAdminUser(row pgx.Row) (domain.AdminUser, error) {
	var u domain.AdminUser
	var role string
	var createdAt, updatedAt time.Time
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.IsVerified, &u.IsDisabled, &createdAt, &updatedAt); err != nil {
		return u, err
	}
	u.Role = domain.Role(role)
	u.CreatedAt = createdAt.Format(time.RFC3339)
	u.UpdatedAt = updatedAt.Format(time.RFC3339)
	return u, nil
}

// ListUsers fetches paginated users with optional role filter. "none" selects
// users without a role.
func (r *adminRepo) ListUsers(ctx context.Context, role domain.Role, page, pageSize int) ([]domain.AdminUser, int64, error) {
	offset := (page - 1) * pageSize

	where := ""
	args := []interface{}{}
	switch role {
	case "":
	case "none":
		where = ` WHERE u.role IS NULL`
	default:
		where = ` WHERE u.role = $1`
		args = append(args, string(role))
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users u`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limitArgs := len(args)
	query := `SELECT ` + adminUserColumns + `
	          FROM users u LEFT JOIN profiles p ON p.user_id = u.id` + where + `
	          ORDER BY u.created_at DESC LIMIT $` + itoa(limitArgs+1) + ` OFFSET $` + itoa(limitArgs+2)
	rows, err := r.db.Query(ctx, query, append(args, pageSize, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []domain.AdminUser{}
	for rows.Next() {
		u, err := scanAdminUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *adminRepo) GetUser(ctx context.Context, userID string) (*domain.AdminUser, error) {
	row := r.db.QueryRow(ctx, `SELECT `+adminUserColumns+`
		FROM users u LEFT JOIN profiles p ON p.user_id = u.id WHERE u.id = $1`, userID)
	u, err := scanAdminUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SetRole updates users and the mirrored profile row together.
func (r *adminRepo) SetRole(ctx context.Context, userID string, role domain.Role) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, userID, string(role))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `UPDATE profiles SET role = $2, updated_at = NOW() WHERE user_id = $1`, userID, string(role)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DisableUser sets the disabled status of a user
func (r *adminRepo) DisableUser(ctx context.Context, userID string, disable bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET is_disabled = $2, updated_at = NOW() WHERE id = $1`, userID, disable)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func itoa(n int) string {
	const digits = "0123456789"
	if n < 10 {
		return digits[n : n+1]
	}
	return itoa(n/10) + digits[n%10:n%10+1]
}
