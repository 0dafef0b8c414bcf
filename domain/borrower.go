package domain

import "github.com/shopspring/decimal"

type Borrower struct {
	ID                int64           `db:"id" json:"id"`
	Name              string          `db:"name" json:"name"`
	OutstandingAmount decimal.Decimal `db:"outstanding_amount" json:"outstanding_amount"`
	CreatedAt         string          `db:"created_at" json:"created_at"`
	UpdatedAt         string          `db:"updated_at" json:"updated_at"`
}

type BorrowerPayment struct {
	ID          int64           `db:"id" json:"id"`
	BorrowerID  int64           `db:"borrower_id" json:"borrower_id"`
	AmountPaid  decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	PaymentDate string          `db:"payment_date" json:"payment_date"`
	CreatedAt   string          `db:"created_at" json:"created_at"`
}
