package domain

import "github.com/shopspring/decimal"

// DateLayout is the on-disk and wire format of every calendar date.
const DateLayout = "2006-01-02"

type Product struct {
	ID         int64           `db:"id" json:"id"`
	Name       string          `db:"name" json:"name"`
	Price      decimal.Decimal `db:"price" json:"price"`
	ExpiryDate string          `db:"expiry_date" json:"expiry_date"`
	CreatedAt  string          `db:"created_at" json:"created_at"`
}

// ProductRef points at a product either by id or by its (name, price, expiry) triple.
type ProductRef struct {
	ProductID  int64
	Name       string
	Price      decimal.Decimal
	ExpiryDate string
}
