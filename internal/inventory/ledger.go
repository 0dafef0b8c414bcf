package inventory

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

// Ledger owns products and stock.
type Ledger struct {
	db  *database.DB
	now func() time.Time
	log zerolog.Logger
}

func NewLedger(db *database.DB, now func() time.Time, log zerolog.Logger) *Ledger {
	return &Ledger{db: db, now: now, log: log.With().Str("component", "inventory").Logger()}
}

type AddStockRequest struct {
	Name       string
	Price      decimal.Decimal
	ExpiryDate string
	Quantity   int64
}

// AddStock resolves or creates the product for the (name, price, expiry)
// triple and credits quantity to its stock row.
func (l *Ledger) AddStock(ctx context.Context, req AddStockRequest) (int64, error) {
	if req.Quantity <= 0 {
		return 0, domain.InvalidInputf("quantity must be greater than zero")
	}
	expiry, err := domain.ParseDate(req.ExpiryDate)
	if err != nil {
		return 0, err
	}
	today := domain.FormatDate(l.now())
	if domain.FormatDate(expiry) < today {
		return 0, domain.InvalidInputf("expiry_date %s is already in the past", req.ExpiryDate)
	}

	var productID int64
	err = l.db.InTx(ctx, func(tx *sqlx.Tx) error {
		p, err := l.ResolveProduct(ctx, tx, domain.ProductRef{Name: req.Name, Price: req.Price, ExpiryDate: req.ExpiryDate})
		if err != nil {
			return err
		}
		productID = p.ID
		return l.creditStock(ctx, tx, p.ID, req.Quantity)
	})
	if err != nil {
		l.log.Warn().Err(err).Str("name", req.Name).Msg("add stock failed")
		return 0, err
	}
	l.log.Info().Int64("product_id", productID).Int64("quantity", req.Quantity).Msg("stock added")
	return productID, nil
}

// ResolveProduct returns the product a reference points at. A reference by
// id must exist; a reference by triple is looked up and created on demand.
func (l *Ledger) ResolveProduct(ctx context.Context, tx *sqlx.Tx, ref domain.ProductRef) (domain.Product, error) {
	var p domain.Product
	if ref.ProductID > 0 {
		err := tx.GetContext(ctx, &p, tx.Rebind(`SELECT id, name, price, expiry_date, created_at FROM products WHERE id = ?`), ref.ProductID)
		if errors.Is(err, sql.ErrNoRows) {
			return p, domain.NotFoundf("product %d not found", ref.ProductID)
		}
		if err != nil {
			return p, fmt.Errorf("load product %d: %w", ref.ProductID, err)
		}
		return p, nil
	}

	name := strings.TrimSpace(ref.Name)
	if name == "" {
		return p, domain.InvalidInputf("product_id or name is required")
	}
	if ref.Price.IsNegative() {
		return p, domain.InvalidInputf("price must not be negative")
	}
	if _, err := domain.ParseDate(ref.ExpiryDate); err != nil {
		return p, err
	}
	price := domain.Money(ref.Price)

	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO products (name, price, expiry_date, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (name, price, expiry_date) DO NOTHING`),
		name, price, ref.ExpiryDate, l.now().Format(time.RFC3339))
	if err != nil {
		return p, fmt.Errorf("create product %s: %w", name, err)
	}
	err = tx.GetContext(ctx, &p, tx.Rebind(`SELECT id, name, price, expiry_date, created_at FROM products
		WHERE name = ? AND price = ? AND expiry_date = ?`), name, price, ref.ExpiryDate)
	if err != nil {
		return p, fmt.Errorf("load product %s: %w", name, err)
	}
	return p, nil
}

// Reserve debits quantity from a product's stock. The decrement is
// conditional on enough quantity being present, so two transactions can never
// both pass the check against the same stale value.
func (l *Ledger) Reserve(ctx context.Context, tx *sqlx.Tx, productID, quantity int64) error {
	if quantity <= 0 {
		return domain.InvalidInputf("quantity must be greater than zero")
	}
	today := domain.FormatDate(l.now())
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE stock SET quantity = quantity - ?, updated_at = ?
		WHERE product_id = ? AND quantity >= ?
		AND product_id IN (SELECT id FROM products WHERE expiry_date >= ?)`),
		quantity, l.now().Format(time.RFC3339), productID, quantity, today)
	if err != nil {
		return fmt.Errorf("reserve product %d: %w", productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve product %d: %w", productID, err)
	}
	if n == 1 {
		return nil
	}

	var state struct {
		ExpiryDate string `db:"expiry_date"`
		Quantity   int64  `db:"quantity"`
	}
	err = tx.GetContext(ctx, &state, tx.Rebind(`SELECT p.expiry_date, COALESCE(s.quantity, 0) AS quantity
		FROM products p LEFT JOIN stock s ON s.product_id = p.id WHERE p.id = ?`), productID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundf("product %d not found", productID)
	}
	if err != nil {
		return fmt.Errorf("load stock for product %d: %w", productID, err)
	}
	if state.ExpiryDate < today {
		return domain.InsufficientStockf("product %d expired on %s", productID, state.ExpiryDate)
	}
	return domain.InsufficientStockf("product %d has %d in stock, %d requested", productID, state.Quantity, quantity)
}

// Release credits quantity back to a product. Stock of a product that has
// already expired goes to today's expired record instead of becoming
// sellable again.
func (l *Ledger) Release(ctx context.Context, tx *sqlx.Tx, productID, quantity int64) error {
	if quantity <= 0 {
		return domain.InvalidInputf("quantity must be greater than zero")
	}
	var expiry string
	err := tx.GetContext(ctx, &expiry, tx.Rebind(`SELECT expiry_date FROM products WHERE id = ?`), productID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundf("product %d not found", productID)
	}
	if err != nil {
		return fmt.Errorf("load product %d: %w", productID, err)
	}

	today := domain.FormatDate(l.now())
	if expiry < today {
		return addExpired(ctx, tx, productID, quantity, today)
	}
	return l.creditStock(ctx, tx, productID, quantity)
}

func (l *Ledger) creditStock(ctx context.Context, tx *sqlx.Tx, productID, quantity int64) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO stock (product_id, quantity, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (product_id) DO UPDATE SET quantity = stock.quantity + excluded.quantity, updated_at = excluded.updated_at`),
		productID, quantity, l.now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("credit stock for product %d: %w", productID, err)
	}
	return nil
}

func addExpired(ctx context.Context, tx *sqlx.Tx, productID, quantity int64, date string) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO expired_stock (product_id, quantity, expired_date) VALUES (?, ?, ?)
		ON CONFLICT (product_id, expired_date) DO UPDATE SET quantity = expired_stock.quantity + excluded.quantity`),
		productID, quantity, date)
	if err != nil {
		return fmt.Errorf("record expired stock for product %d: %w", productID, err)
	}
	return nil
}

// ListSellable returns every product with stock on hand, ordered by name.
func (l *Ledger) ListSellable(ctx context.Context) ([]domain.StockEntry, error) {
	entries := []domain.StockEntry{}
	err := l.db.SelectContext(ctx, &entries, `SELECT p.id AS product_id, p.name, p.price, p.expiry_date, s.quantity
		FROM stock s
		JOIN products p ON p.id = s.product_id
		WHERE s.quantity > 0
		ORDER BY p.name, p.expiry_date, p.id`)
	if err != nil {
		return nil, domain.Internal("list sellable stock", err)
	}
	return entries, nil
}

// ListExpired returns the expired record, newest first.
func (l *Ledger) ListExpired(ctx context.Context) ([]domain.ExpiredEntry, error) {
	entries := []domain.ExpiredEntry{}
	err := l.db.SelectContext(ctx, &entries, `SELECT p.id AS product_id, p.name, p.price, p.expiry_date, e.quantity, e.expired_date
		FROM expired_stock e
		JOIN products p ON p.id = e.product_id
		ORDER BY e.expired_date DESC, p.name, p.id`)
	if err != nil {
		return nil, domain.Internal("list expired stock", err)
	}
	return entries, nil
}

// ListExpiringSoon returns sellable stock that expires within the next days
// days, soonest first.
func (l *Ledger) ListExpiringSoon(ctx context.Context, days int) ([]domain.StockEntry, error) {
	if days <= 0 {
		return nil, domain.InvalidInputf("days must be greater than zero")
	}
	now := l.now()
	entries := []domain.StockEntry{}
	err := l.db.SelectContext(ctx, &entries, l.db.Rebind(`SELECT p.id AS product_id, p.name, p.price, p.expiry_date, s.quantity
		FROM stock s
		JOIN products p ON p.id = s.product_id
		WHERE s.quantity > 0 AND p.expiry_date >= ? AND p.expiry_date <= ?
		ORDER BY p.expiry_date, p.name`),
		domain.FormatDate(now), domain.FormatDate(now.AddDate(0, 0, days)))
	if err != nil {
		return nil, domain.Internal("list expiring stock", err)
	}
	return entries, nil
}
