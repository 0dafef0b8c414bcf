package sales

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

// Stock is the part of the inventory ledger a bill needs.
type Stock interface {
	ResolveProduct(ctx context.Context, tx *sqlx.Tx, ref domain.ProductRef) (domain.Product, error)
	Reserve(ctx context.Context, tx *sqlx.Tx, productID, quantity int64) error
	Release(ctx context.Context, tx *sqlx.Tx, productID, quantity int64) error
}

// Credit keeps borrower balances in line with their sales.
type Credit interface {
	SyncOutstanding(ctx context.Context, tx *sqlx.Tx, name string) (decimal.Decimal, error)
}

// Ledger owns sales and sale_items.
type Ledger struct {
	db     *database.DB
	stock  Stock
	credit Credit
	now    func() time.Time
	log    zerolog.Logger
}

func NewLedger(db *database.DB, stock Stock, credit Credit, now func() time.Time, log zerolog.Logger) *Ledger {
	return &Ledger{db: db, stock: stock, credit: credit, now: now, log: log.With().Str("component", "sales").Logger()}
}

// ItemRequest is one bill line. A line names its product by id, or by name
// and expiry (with Price) for a product that may not exist yet. Price is the
// snapshot charged; it defaults to the product's price.
type ItemRequest struct {
	ProductID  int64
	Name       string
	ExpiryDate string
	Price      *decimal.Decimal
	Quantity   int64
}

type SaleRequest struct {
	CustomerName   string
	PaymentType    domain.PaymentType
	Items          []ItemRequest
	PaidAmount     decimal.Decimal
	DiscountAmount *decimal.Decimal
	// SaleDate defaults to today on create and to the stored date on edit.
	SaleDate string
}

type Result struct {
	SaleID         int64           `json:"sale_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	BorrowAmount   decimal.Decimal `json:"borrow_amount"`
	ChangeReturned decimal.Decimal `json:"change_returned"`
}

type line struct {
	productID  int64
	price      decimal.Decimal
	quantity   int64
	lineTotal  decimal.Decimal
	expiryDate string
}

func (req *SaleRequest) normalize() error {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if !req.PaymentType.Valid() {
		return domain.InvalidInputf("payment_type must be one of CASH, ONLINE, BORROW")
	}
	if len(req.Items) == 0 {
		return domain.InvalidInputf("no items in sale")
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return domain.InvalidInputf("item %d: quantity must be greater than zero", i+1)
		}
		if item.Price != nil && item.Price.IsNegative() {
			return domain.InvalidInputf("item %d: price must not be negative", i+1)
		}
		if item.ProductID <= 0 && item.Price == nil {
			return domain.InvalidInputf("item %d: price is required when product_id is not given", i+1)
		}
	}
	if req.PaidAmount.IsNegative() {
		return domain.InvalidInputf("paid_amount must not be negative")
	}
	if req.DiscountAmount != nil && req.DiscountAmount.IsNegative() {
		return domain.InvalidInputf("discount_amount must not be negative")
	}
	if req.PaymentType == domain.PaymentBorrow && req.CustomerName == "" {
		return domain.InvalidInputf("customer_name is required for BORROW sales")
	}
	if req.SaleDate != "" {
		if _, err := domain.ParseDate(req.SaleDate); err != nil {
			return err
		}
	}
	return nil
}

func (req *SaleRequest) discount() decimal.Decimal {
	if req.DiscountAmount == nil {
		return decimal.Zero
	}
	return *req.DiscountAmount
}

func customerValue(name string) *string {
	if name == "" {
		return nil
	}
	return &name
}

// reserveLines resolves every line's product and debits its stock. The first
// failure aborts the caller's transaction, so a bill is never half reserved.
func (l *Ledger) reserveLines(ctx context.Context, tx *sqlx.Tx, items []ItemRequest) ([]line, decimal.Decimal, error) {
	lines := make([]line, 0, len(items))
	total := decimal.Zero
	for i, item := range items {
		ref := domain.ProductRef{ProductID: item.ProductID, Name: item.Name, ExpiryDate: item.ExpiryDate}
		if item.Price != nil {
			ref.Price = *item.Price
		}
		p, err := l.stock.ResolveProduct(ctx, tx, ref)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("item %d: %w", i+1, err)
		}
		if err := l.stock.Reserve(ctx, tx, p.ID, item.Quantity); err != nil {
			return nil, decimal.Zero, fmt.Errorf("item %d: %w", i+1, err)
		}
		price := p.Price
		if item.Price != nil {
			price = *item.Price
		}
		price = domain.Money(price)
		ln := line{
			productID:  p.ID,
			price:      price,
			quantity:   item.Quantity,
			lineTotal:  domain.LineTotal(price, item.Quantity),
			expiryDate: p.ExpiryDate,
		}
		total = total.Add(ln.lineTotal)
		lines = append(lines, ln)
	}
	return lines, total, nil
}

func insertLines(ctx context.Context, tx *sqlx.Tx, saleID int64, lines []line) error {
	for _, ln := range lines {
		_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO sale_items (sale_id, product_id, price, quantity, line_total, expiry_date)
			VALUES (?, ?, ?, ?, ?, ?)`),
			saleID, ln.productID, ln.price, ln.quantity, ln.lineTotal, ln.expiryDate)
		if err != nil {
			return fmt.Errorf("insert sale item for product %d: %w", ln.productID, err)
		}
	}
	return nil
}

type storedItem struct {
	ProductID int64 `db:"product_id"`
	Quantity  int64 `db:"quantity"`
}

// releaseLines reverses the stock debits of a stored bill and removes its
// lines.
func (l *Ledger) releaseLines(ctx context.Context, tx *sqlx.Tx, saleID int64) error {
	var items []storedItem
	if err := tx.SelectContext(ctx, &items, tx.Rebind(`SELECT product_id, quantity FROM sale_items WHERE sale_id = ? ORDER BY id`), saleID); err != nil {
		return fmt.Errorf("load items of sale %d: %w", saleID, err)
	}
	for _, item := range items {
		if err := l.stock.Release(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return fmt.Errorf("release product %d: %w", item.ProductID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM sale_items WHERE sale_id = ?`), saleID); err != nil {
		return fmt.Errorf("delete items of sale %d: %w", saleID, err)
	}
	return nil
}

func (l *Ledger) lockSale(ctx context.Context, tx *sqlx.Tx, saleID int64) (domain.Sale, error) {
	var s domain.Sale
	err := tx.GetContext(ctx, &s, tx.Rebind(saleColumns+` WHERE id = ?`+l.db.ForUpdate()), saleID)
	if errors.Is(err, sql.ErrNoRows) {
		return s, domain.NotFoundf("sale %d not found", saleID)
	}
	if err != nil {
		return s, fmt.Errorf("load sale %d: %w", saleID, err)
	}
	return s, nil
}

// CreateSale commits a new bill: every line is reserved, the header and lines
// are written and the customer's credit is resynced, all in one transaction.
func (l *Ledger) CreateSale(ctx context.Context, req SaleRequest) (Result, error) {
	if err := req.normalize(); err != nil {
		return Result{}, err
	}
	saleDate := req.SaleDate
	if saleDate == "" {
		saleDate = domain.FormatDate(l.now())
	}

	var res Result
	err := l.db.InTx(ctx, func(tx *sqlx.Tx) error {
		lines, total, err := l.reserveLines(ctx, tx, req.Items)
		if err != nil {
			return err
		}
		a := SplitAmounts(req.PaymentType, total, req.PaidAmount, req.discount())

		stamp := l.now().Format(time.RFC3339)
		var saleID int64
		err = tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO sales (sale_date, customer_name, payment_type, total_amount, discount_amount, paid_amount, borrow_amount, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			saleDate, customerValue(req.CustomerName), string(req.PaymentType), a.Total, a.Discount, a.Paid, a.Borrow, stamp, stamp).Scan(&saleID)
		if err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		if err := insertLines(ctx, tx, saleID, lines); err != nil {
			return err
		}
		if _, err := l.credit.SyncOutstanding(ctx, tx, req.CustomerName); err != nil {
			return err
		}

		res = resultOf(saleID, a)
		return nil
	})
	if err != nil {
		l.log.Warn().Err(err).Str("payment_type", string(req.PaymentType)).Msg("create sale failed")
		return Result{}, err
	}
	l.log.Info().
		Int64("sale_id", res.SaleID).
		Str("payment_type", string(req.PaymentType)).
		Str("total", res.TotalAmount.StringFixed(2)).
		Str("borrow", res.BorrowAmount.StringFixed(2)).
		Msg("sale created")
	return res, nil
}

// EditSale replaces a bill's lines and header. The old lines' stock is
// released before the new lines are reserved, and both the previous and the
// new customer are resynced since the bill may have moved between them.
func (l *Ledger) EditSale(ctx context.Context, saleID int64, req SaleRequest) (Result, error) {
	if err := req.normalize(); err != nil {
		return Result{}, err
	}

	var res Result
	err := l.db.InTx(ctx, func(tx *sqlx.Tx) error {
		old, err := l.lockSale(ctx, tx, saleID)
		if err != nil {
			return err
		}
		if err := l.releaseLines(ctx, tx, saleID); err != nil {
			return err
		}
		lines, total, err := l.reserveLines(ctx, tx, req.Items)
		if err != nil {
			return err
		}
		a := SplitAmounts(req.PaymentType, total, req.PaidAmount, req.discount())

		saleDate := req.SaleDate
		if saleDate == "" {
			saleDate = old.SaleDate
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE sales SET sale_date = ?, customer_name = ?, payment_type = ?,
			total_amount = ?, discount_amount = ?, paid_amount = ?, borrow_amount = ?, updated_at = ? WHERE id = ?`),
			saleDate, customerValue(req.CustomerName), string(req.PaymentType), a.Total, a.Discount, a.Paid, a.Borrow,
			l.now().Format(time.RFC3339), saleID)
		if err != nil {
			return fmt.Errorf("update sale %d: %w", saleID, err)
		}
		if err := insertLines(ctx, tx, saleID, lines); err != nil {
			return err
		}

		if old.CustomerName != nil && *old.CustomerName != req.CustomerName {
			if _, err := l.credit.SyncOutstanding(ctx, tx, *old.CustomerName); err != nil {
				return err
			}
		}
		if _, err := l.credit.SyncOutstanding(ctx, tx, req.CustomerName); err != nil {
			return err
		}

		res = resultOf(saleID, a)
		return nil
	})
	if err != nil {
		l.log.Warn().Err(err).Int64("sale_id", saleID).Msg("edit sale failed")
		return Result{}, err
	}
	l.log.Info().
		Int64("sale_id", saleID).
		Str("total", res.TotalAmount.StringFixed(2)).
		Str("borrow", res.BorrowAmount.StringFixed(2)).
		Msg("sale edited")
	return res, nil
}

// DeleteSale releases a bill's stock, removes it and resyncs its customer.
func (l *Ledger) DeleteSale(ctx context.Context, saleID int64) error {
	err := l.db.InTx(ctx, func(tx *sqlx.Tx) error {
		s, err := l.lockSale(ctx, tx, saleID)
		if err != nil {
			return err
		}
		if err := l.releaseLines(ctx, tx, saleID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM sales WHERE id = ?`), saleID); err != nil {
			return fmt.Errorf("delete sale %d: %w", saleID, err)
		}
		if s.CustomerName != nil {
			if _, err := l.credit.SyncOutstanding(ctx, tx, *s.CustomerName); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		l.log.Warn().Err(err).Int64("sale_id", saleID).Msg("delete sale failed")
		return err
	}
	l.log.Info().Int64("sale_id", saleID).Msg("sale deleted")
	return nil
}

func resultOf(saleID int64, a Amounts) Result {
	return Result{
		SaleID:         saleID,
		TotalAmount:    a.Total,
		DiscountAmount: a.Discount,
		PaidAmount:     a.Paid,
		BorrowAmount:   a.Borrow,
		ChangeReturned: a.ChangeReturned,
	}
}
