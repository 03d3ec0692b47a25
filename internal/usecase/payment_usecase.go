package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"

	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/apperror"

	"github.com/xuri/excelize/v2"
)

type paymentUsecase struct {
	repo domain.PaymentRepository
}

func NewPaymentUsecase(repo domain.PaymentRepository) domain.PaymentUsecase {
	return &paymentUsecase{repo: repo}
}

// List returns the caller's payments. Admins may list another user's or, with
// no user filter, everyone's.
func (u *paymentUsecase) List(ctx context.Context, filter domain.PaymentFilter) (*domain.PaginatedResult[domain.Payment], error) {
	caller := ctxString(ctx, domain.KeyUserID)
	if caller == "" {
		return nil, apperror.Unauthorized("User not authenticated")
	}
	if ctxRole(ctx) != domain.RoleAdmin {
		filter.UserID = caller
	}

	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, apperror.BadRequest("Invalid payment type")
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, apperror.BadRequest("Invalid payment status")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}

	payments, total, err := u.repo.List(ctx, filter)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("failed to list payments: %w", err))
	}

	return &domain.PaginatedResult[domain.Payment]{
		Data:       payments,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(filter.PageSize))),
	}, nil
}

func (u *paymentUsecase) Summary(ctx context.Context, userID string) (*domain.PaymentSummary, error) {
	if err := requireSelf(ctx, userID); err != nil {
		return nil, err
	}
	payments, err := u.repo.ListAll(ctx, userID)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("failed to load payments: %w", err))
	}
	return Summarize(payments), nil
}

// Summarize totals completed payments by type; pending and processing amounts
// are reported separately.
func Summarize(payments []domain.Payment) *domain.PaymentSummary {
	s := &domain.PaymentSummary{Currency: domain.DefaultCurrency, Count: len(payments)}
	for _, p := range payments {
		if s.LastUpdate == nil || p.CreatedAt.After(*s.LastUpdate) {
			t := p.CreatedAt
			s.LastUpdate = &t
		}
		switch p.Status {
		case domain.PaymentPending, domain.PaymentProcessing:
			s.Pending += p.Amount
			continue
		case domain.PaymentFailed:
			continue
		}

		switch p.Type {
		case domain.PaymentIncoming:
			s.Earned += p.Amount
		case domain.PaymentOutgoing:
			s.Spent += p.Amount
		case domain.PaymentWithdrawal:
			s.Withdrawn += p.Amount
		case domain.PaymentRefund:
			s.Refunded += p.Amount
		}
		if p.Fees != nil {
			s.Fees += *p.Fees
		}
	}
	return s
}

var exportHeaders = map[domain.Language][]string{
	domain.LanguageArabic:  {"المعرف", "النوع", "الحالة", "المبلغ", "الرسوم", "الصافي", "العملة", "العميل", "المشروع", "التاريخ"},
	domain.LanguageEnglish: {"ID", "TYPE", "STATUS", "AMOUNT", "FEES", "NET", "CURRENCY", "CLIENT", "PROJECT", "DATE"},
}

// Export renders the user's payments as an xlsx workbook. Arabic workbooks
// are right-to-left.
func (u *paymentUsecase) Export(ctx context.Context, userID string, lang domain.Language) ([]byte, error) {
	if err := requireSelf(ctx, userID); err != nil {
		return nil, err
	}
	payments, err := u.repo.ListAll(ctx, userID)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("failed to load payments: %w", err))
	}

	headers, ok := exportHeaders[lang]
	if !ok {
		headers = exportHeaders[domain.LanguageArabic]
		lang = domain.LanguageArabic
	}

	f := excelize.NewFile()
	defer f.Close()
	sheetName := "Payments"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, apperror.Internal(err)
	}
	if lang == domain.LanguageArabic {
		rtl := true
		if err := f.SetSheetView(sheetName, 0, &excelize.ViewOptions{RightToLeft: &rtl}); err != nil {
			return nil, apperror.Internal(err)
		}
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#0F5132"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	endCell, _ := excelize.CoordinatesToCellName(len(headers), 1)
	f.SetCellStyle(sheetName, "A1", endCell, headerStyle)

	for rowIdx, p := range payments {
		var fees interface{}
		if p.Fees != nil {
			fees = *p.Fees
		}
		currency := p.Currency
		if currency == "" {
			currency = domain.DefaultCurrency
		}
		row := []interface{}{
			p.ID, string(p.Type), string(p.Status), p.Amount, fees, p.Net(),
			currency, p.Client, p.Project, p.CreatedAt.Format("2006-01-02 15:04"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, apperror.Internal(err)
		}
	}

	for i := range headers {
		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 18)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, apperror.Internal(fmt.Errorf("failed to write Excel file: %w", err))
	}
	return buf.Bytes(), nil
}

type dashboardUsecase struct {
	profiles domain.ProfileRepository
	payments domain.PaymentRepository
}

func NewDashboardUsecase(profiles domain.ProfileRepository, payments domain.PaymentRepository) domain.DashboardUsecase {
	return &dashboardUsecase{profiles: profiles, payments: payments}
}

const recentPayments = 5

// Get builds the role landing payload.
func (u *dashboardUsecase) Get(ctx context.Context, userID string, role domain.Role) (*domain.Dashboard, error) {
	if err := requireSelf(ctx, userID); err != nil {
		return nil, err
	}

	profile, err := u.profiles.GetByUserID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperror.NotFound("Profile not found")
	}
	if err != nil {
		return nil, apperror.Unavailable("Could not load profile", err)
	}

	payments, err := u.payments.ListAll(ctx, userID)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("failed to load payments: %w", err))
	}

	recent := payments
	if len(recent) > recentPayments {
		recent = recent[:recentPayments]
	}
	return &domain.Dashboard{
		Role:     role,
		Profile:  *profile,
		Payments: Summarize(payments),
		Recent:   recent,
	}, nil
}
