package domain

import "github.com/shopspring/decimal"

type StockEntry struct {
	ProductID  int64           `db:"product_id" json:"product_id"`
	Name       string          `db:"name" json:"name"`
	Price      decimal.Decimal `db:"price" json:"price"`
	ExpiryDate string          `db:"expiry_date" json:"expiry_date"`
	Quantity   int64           `db:"quantity" json:"quantity"`
}

type ExpiredEntry struct {
	ProductID   int64           `db:"product_id" json:"product_id"`
	Name        string          `db:"name" json:"name"`
	Price       decimal.Decimal `db:"price" json:"price"`
	ExpiryDate  string          `db:"expiry_date" json:"expiry_date"`
	Quantity    int64           `db:"quantity" json:"quantity"`
	ExpiredDate string          `db:"expired_date" json:"expired_date"`
}
