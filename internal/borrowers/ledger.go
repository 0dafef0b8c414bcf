package borrowers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"posledger/m/domain"
	"posledger/m/internal/database"
)

// Ledger owns borrowers and their payments.
type Ledger struct {
	db  *database.DB
	now func() time.Time
	log zerolog.Logger
}

func NewLedger(db *database.DB, now func() time.Time, log zerolog.Logger) *Ledger {
	return &Ledger{db: db, now: now, log: log.With().Str("component", "borrowers").Logger()}
}

// SyncOutstanding recomputes a customer's outstanding balance as the sum of
// borrow_amount over their sales and stores it. The borrower row is created
// only when there is something owed.
func (l *Ledger) SyncOutstanding(ctx context.Context, tx *sqlx.Tx, name string) (decimal.Decimal, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return decimal.Zero, nil
	}

	var amounts []decimal.Decimal
	err := tx.SelectContext(ctx, &amounts, tx.Rebind(`SELECT borrow_amount FROM sales WHERE customer_name = ? AND borrow_amount > 0`), name)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum borrow amounts for %s: %w", name, err)
	}
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	total = domain.Money(total)

	stamp := l.now().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE borrowers SET outstanding_amount = ?, updated_at = ? WHERE name = ?`), total, stamp, name)
	if err != nil {
		return decimal.Zero, fmt.Errorf("update outstanding for %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return decimal.Zero, fmt.Errorf("update outstanding for %s: %w", name, err)
	}
	if n == 0 && total.IsPositive() {
		_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO borrowers (name, outstanding_amount, created_at, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (name) DO UPDATE SET outstanding_amount = excluded.outstanding_amount, updated_at = excluded.updated_at`),
			name, total, stamp, stamp)
		if err != nil {
			return decimal.Zero, fmt.Errorf("create borrower %s: %w", name, err)
		}
	}
	return total, nil
}

type PaymentRequest struct {
	BorrowerID  int64
	Amount      decimal.Decimal
	PaymentDate string
}

type PaymentResult struct {
	Payment           domain.BorrowerPayment `json:"payment"`
	OutstandingAmount decimal.Decimal        `json:"outstanding_amount"`
	SalesSettled      []int64                `json:"sales_settled"`
}

type openSale struct {
	ID           int64           `db:"id"`
	PaidAmount   decimal.Decimal `db:"paid_amount"`
	BorrowAmount decimal.Decimal `db:"borrow_amount"`
}

// RecordPayment appends a payment and applies it to the borrower's oldest
// open sales first.
func (l *Ledger) RecordPayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	var result PaymentResult
	amount := domain.Money(req.Amount)
	if !amount.IsPositive() {
		return result, domain.InvalidInputf("amount must be greater than zero")
	}
	date := req.PaymentDate
	if date == "" {
		date = domain.FormatDate(l.now())
	} else if _, err := domain.ParseDate(date); err != nil {
		return result, err
	}

	err := l.db.InTx(ctx, func(tx *sqlx.Tx) error {
		var b domain.Borrower
		err := tx.GetContext(ctx, &b, tx.Rebind(`SELECT id, name, outstanding_amount, created_at, updated_at FROM borrowers WHERE id = ?`+l.db.ForUpdate()), req.BorrowerID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFoundf("borrower %d not found", req.BorrowerID)
		}
		if err != nil {
			return fmt.Errorf("load borrower %d: %w", req.BorrowerID, err)
		}

		outstanding, err := l.SyncOutstanding(ctx, tx, b.Name)
		if err != nil {
			return err
		}
		if amount.GreaterThan(outstanding) {
			return domain.OverPaymentf("payment %s exceeds outstanding %s for %s", amount.StringFixed(2), outstanding.StringFixed(2), b.Name)
		}

		stamp := l.now().Format(time.RFC3339)
		p := domain.BorrowerPayment{BorrowerID: b.ID, AmountPaid: amount, PaymentDate: date, CreatedAt: stamp}
		err = tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO borrower_payments (borrower_id, amount_paid, payment_date, created_at)
			VALUES (?, ?, ?, ?) RETURNING id`), b.ID, amount, date, stamp).Scan(&p.ID)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		var sales []openSale
		err = tx.SelectContext(ctx, &sales, tx.Rebind(`SELECT id, paid_amount, borrow_amount FROM sales
			WHERE customer_name = ? AND payment_type = ? AND borrow_amount > 0
			ORDER BY sale_date, id`+l.db.ForUpdate()), b.Name, string(domain.PaymentBorrow))
		if err != nil {
			return fmt.Errorf("load open sales for %s: %w", b.Name, err)
		}

		remaining := amount
		settled := []int64{}
		for _, s := range sales {
			if !remaining.IsPositive() {
				break
			}
			applied := decimal.Min(remaining, s.BorrowAmount)
			_, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE sales SET paid_amount = ?, borrow_amount = ?, updated_at = ? WHERE id = ?`),
				domain.Money(s.PaidAmount.Add(applied)), domain.Money(s.BorrowAmount.Sub(applied)), stamp, s.ID)
			if err != nil {
				return fmt.Errorf("apply payment to sale %d: %w", s.ID, err)
			}
			remaining = remaining.Sub(applied)
			settled = append(settled, s.ID)
		}

		outstanding, err = l.SyncOutstanding(ctx, tx, b.Name)
		if err != nil {
			return err
		}
		result = PaymentResult{Payment: p, OutstandingAmount: outstanding, SalesSettled: settled}
		return nil
	})
	if err != nil {
		l.log.Warn().Err(err).Int64("borrower_id", req.BorrowerID).Msg("record payment failed")
		return PaymentResult{}, err
	}
	l.log.Info().
		Int64("borrower_id", req.BorrowerID).
		Str("amount", amount.StringFixed(2)).
		Str("outstanding", result.OutstandingAmount.StringFixed(2)).
		Msg("borrower payment recorded")
	return result, nil
}

// ListOutstanding returns borrowers who still owe something, by name.
func (l *Ledger) ListOutstanding(ctx context.Context) ([]domain.Borrower, error) {
	borrowers := []domain.Borrower{}
	err := l.db.SelectContext(ctx, &borrowers, `SELECT id, name, outstanding_amount, created_at, updated_at
		FROM borrowers WHERE outstanding_amount > 0 ORDER BY name`)
	if err != nil {
		return nil, domain.Internal("list outstanding borrowers", err)
	}
	return borrowers, nil
}

func (l *Ledger) Get(ctx context.Context, id int64) (domain.Borrower, error) {
	var b domain.Borrower
	err := l.db.GetContext(ctx, &b, l.db.Rebind(`SELECT id, name, outstanding_amount, created_at, updated_at FROM borrowers WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return b, domain.NotFoundf("borrower %d not found", id)
	}
	if err != nil {
		return b, domain.Internal("load borrower", err)
	}
	return b, nil
}

// ListPayments returns a borrower's payments, newest first.
func (l *Ledger) ListPayments(ctx context.Context, borrowerID int64) ([]domain.BorrowerPayment, error) {
	if _, err := l.Get(ctx, borrowerID); err != nil {
		return nil, err
	}
	payments := []domain.BorrowerPayment{}
	err := l.db.SelectContext(ctx, &payments, l.db.Rebind(`SELECT id, borrower_id, amount_paid, payment_date, created_at
		FROM borrower_payments WHERE borrower_id = ? ORDER BY payment_date DESC, id DESC`), borrowerID)
	if err != nil {
		return nil, domain.Internal("list borrower payments", err)
	}
	return payments, nil
}
