package domain

import (
	"context"
	"time"
)

type PaymentType string

const (
	PaymentIncoming   PaymentType = "incoming"
	PaymentOutgoing   PaymentType = "outgoing"
	PaymentWithdrawal PaymentType = "withdrawal"
	PaymentRefund     PaymentType = "refund"
)

func (t PaymentType) IsValid() bool {
	switch t {
	case PaymentIncoming, PaymentOutgoing, PaymentWithdrawal, PaymentRefund:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentProcessing PaymentStatus = "processing"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentProcessing:
		return true
	}
	return false
}

const DefaultCurrency = "SAR"

// Payment is a display record. Amounts are informational only.
type Payment struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	Type      PaymentType   `json:"type"`
	Status    PaymentStatus `json:"status"`
	Amount    float64       `json:"amount"`
	Currency  string        `json:"currency"`
	Client    string        `json:"client"`
	Project   string        `json:"project"`
	Fees      *float64      `json:"fees,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Net is the amount after fees.
func (p Payment) Net() float64 {
	if p.Fees == nil {
		return p.Amount
	}
	return p.Amount - *p.Fees
}

type PaymentFilter struct {
	UserID   string        `form:"user_id"`
	Type     PaymentType   `form:"type"`
	Status   PaymentStatus `form:"status"`
	Page     int           `form:"page"`
	PageSize int           `form:"page_size"`
}

type PaymentSummary struct {
	Currency   string     `json:"currency"`
	Earned     float64    `json:"earned"`
	Spent      float64    `json:"spent"`
	Withdrawn  float64    `json:"withdrawn"`
	Refunded   float64    `json:"refunded"`
	Pending    float64    `json:"pending"`
	Fees       float64    `json:"fees"`
	Count      int        `json:"count"`
	LastUpdate *time.Time `json:"lastUpdate,omitempty"`
}

type PaymentRepository interface {
	List(ctx context.Context, filter PaymentFilter) ([]Payment, int64, error)
	ListAll(ctx context.Context, userID string) ([]Payment, error)
}

type PaymentUsecase interface {
	List(ctx context.Context, filter PaymentFilter) (*PaginatedResult[Payment], error)
	Summary(ctx context.Context, userID string) (*PaymentSummary, error)
	// Export renders the user's payments as an xlsx workbook.
	Export(ctx context.Context, userID string, lang Language) ([]byte, error)
}

// Dashboard is the role landing payload.
type Dashboard struct {
	Role     Role            `json:"role"`
	Profile  UserProfile     `json:"profile"`
	Payments *PaymentSummary `json:"payments"`
	Recent   []Payment       `json:"recent"`
}

type DashboardUsecase interface {
	Get(ctx context.Context, userID string, role Role) (*Dashboard, error)
}
