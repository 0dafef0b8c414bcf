package domain

import "github.com/shopspring/decimal"

type PaymentType string

const (
	PaymentCash   PaymentType = "CASH"
	PaymentOnline PaymentType = "ONLINE"
	PaymentBorrow PaymentType = "BORROW"
)

func (p PaymentType) Valid() bool {
	switch p {
	case PaymentCash, PaymentOnline, PaymentBorrow:
		return true
	}
	return false
}

type Sale struct {
	ID             int64           `db:"id" json:"id"`
	SaleDate       string          `db:"sale_date" json:"sale_date"`
	CustomerName   *string         `db:"customer_name" json:"customer_name,omitempty"`
	PaymentType    PaymentType     `db:"payment_type" json:"payment_type"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	PaidAmount     decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	BorrowAmount   decimal.Decimal `db:"borrow_amount" json:"borrow_amount"`
	CreatedAt      string          `db:"created_at" json:"created_at"`
	UpdatedAt      string          `db:"updated_at" json:"updated_at"`
}

type SaleItem struct {
	ID          int64           `db:"id" json:"id"`
	SaleID      int64           `db:"sale_id" json:"sale_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Quantity    int64           `db:"quantity" json:"quantity"`
	LineTotal   decimal.Decimal `db:"line_total" json:"line_total"`
	ExpiryDate  string          `db:"expiry_date" json:"expiry_date"`
}

// SaleDetail is a bill header together with its lines.
type SaleDetail struct {
	Sale
	Items []SaleItem `json:"items"`
}
