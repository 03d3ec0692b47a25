package postgres

import (
	"context"
	"fmt"
	"strings"

	"go-marketplace-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type paymentRepo struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) domain.PaymentRepository {
	return &paymentRepo{db: db}
}

const paymentColumns = `id, user_id, type, status, amount::float8, currency, client, project, fees::float8, created_at`

func scanPayments(rows pgx.Rows) ([]domain.Payment, error) {
	defer rows.Close()
	payments := []domain.Payment{}
	for rows.Next() {
		var p domain.Payment
		var typ, status string
		if err := rows.Scan(&p.ID, &p.UserID, &typ, &status, &p.Amount, &p.Currency, &p.Client, &p.Project, &p.Fees, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Type = domain.PaymentType(typ)
		p.Status = domain.PaymentStatus(status)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// List pages through payments, newest first.
func (r *paymentRepo) List(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, int64, error) {
	var where []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM payments`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.PageSize
	query := fmt.Sprintf(`SELECT %s FROM payments%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		paymentColumns, clause, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, filter.PageSize, offset)...)
	if err != nil {
		return nil, 0, err
	}
	payments, err := scanPayments(rows)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// ListAll returns every payment of a user, newest first.
func (r *paymentRepo) ListAll(ctx context.Context, userID string) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return scanPayments(rows)
}
