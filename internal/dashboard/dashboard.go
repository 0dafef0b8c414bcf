package dashboard

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"posledger/m/domain"
	"posledger/m/internal/database"
)

// Summary is the day and month rollup shown on the dashboard.
type Summary struct {
	Date             string          `json:"date"`
	SalesCount       int64           `json:"sales_count"`
	DailyTotal       decimal.Decimal `json:"daily_total"`
	MonthlyTotal     decimal.Decimal `json:"monthly_total"`
	DailyCash        decimal.Decimal `json:"daily_cash"`
	DailyOnline      decimal.Decimal `json:"daily_online"`
	DailyBorrow      decimal.Decimal `json:"daily_borrow"`
	DailyDiscount    decimal.Decimal `json:"daily_discount"`
	BorrowerPayments decimal.Decimal `json:"borrower_payments"`
}

type Service struct {
	db *database.DB
}

func New(db *database.DB) *Service {
	return &Service{db: db}
}

type typeTotals struct {
	PaymentType domain.PaymentType `db:"payment_type"`
	Sales       int64              `db:"sales"`
	Total       decimal.Decimal    `db:"total"`
	Discount    decimal.Decimal    `db:"discount"`
	Paid        decimal.Decimal    `db:"paid"`
	Borrow      decimal.Decimal    `db:"borrow"`
}

// Summary aggregates sales and borrower payments for date and for its month
// up to and including date.
func (s *Service) Summary(ctx context.Context, date string) (Summary, error) {
	day, err := domain.ParseDate(date)
	if err != nil {
		return Summary{}, err
	}
	monthStart := domain.FormatDate(time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC))

	sum := Summary{
		Date:             date,
		DailyTotal:       decimal.Zero,
		MonthlyTotal:     decimal.Zero,
		DailyCash:        decimal.Zero,
		DailyOnline:      decimal.Zero,
		DailyBorrow:      decimal.Zero,
		DailyDiscount:    decimal.Zero,
		BorrowerPayments: decimal.Zero,
	}

	var rows []typeTotals
	err = s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT payment_type, COUNT(*) AS sales,
		COALESCE(SUM(total_amount), 0) AS total, COALESCE(SUM(discount_amount), 0) AS discount,
		COALESCE(SUM(paid_amount), 0) AS paid, COALESCE(SUM(borrow_amount), 0) AS borrow
		FROM sales WHERE sale_date = ? GROUP BY payment_type`), date)
	if err != nil {
		return Summary{}, domain.Internal("daily sales totals", err)
	}
	for _, r := range rows {
		sum.SalesCount += r.Sales
		sum.DailyTotal = sum.DailyTotal.Add(r.Total)
		sum.DailyDiscount = sum.DailyDiscount.Add(r.Discount)
		switch r.PaymentType {
		case domain.PaymentCash:
			sum.DailyCash = sum.DailyCash.Add(r.Paid)
		case domain.PaymentOnline:
			sum.DailyOnline = sum.DailyOnline.Add(r.Paid)
		case domain.PaymentBorrow:
			sum.DailyBorrow = sum.DailyBorrow.Add(r.Borrow)
		}
	}

	err = s.db.GetContext(ctx, &sum.MonthlyTotal, s.db.Rebind(`SELECT COALESCE(SUM(total_amount), 0) FROM sales
		WHERE sale_date >= ? AND sale_date <= ?`), monthStart, date)
	if err != nil {
		return Summary{}, domain.Internal("monthly sales total", err)
	}
	err = s.db.GetContext(ctx, &sum.BorrowerPayments, s.db.Rebind(`SELECT COALESCE(SUM(amount_paid), 0) FROM borrower_payments
		WHERE payment_date = ?`), date)
	if err != nil {
		return Summary{}, domain.Internal("borrower payments total", err)
	}

	sum.DailyTotal = domain.Money(sum.DailyTotal)
	sum.MonthlyTotal = domain.Money(sum.MonthlyTotal)
	sum.DailyCash = domain.Money(sum.DailyCash)
	sum.DailyOnline = domain.Money(sum.DailyOnline)
	sum.DailyBorrow = domain.Money(sum.DailyBorrow)
	sum.DailyDiscount = domain.Money(sum.DailyDiscount)
	sum.BorrowerPayments = domain.Money(sum.BorrowerPayments)
	return sum, nil
}
