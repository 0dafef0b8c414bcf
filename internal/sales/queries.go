package sales

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"posledger/m/domain"
)

const saleColumns = `SELECT id, sale_date, customer_name, payment_type, total_amount, discount_amount, paid_amount, borrow_amount, created_at, updated_at FROM sales`

// Filter narrows ListSales to an inclusive date range; empty bounds are open.
type Filter struct {
	StartDate string
	EndDate   string
	Customer  string
}

// ListSales returns bills newest first, each with its lines.
func (l *Ledger) ListSales(ctx context.Context, f Filter) ([]domain.SaleDetail, error) {
	var (
		args    []any
		clauses []string
	)
	if f.StartDate != "" {
		if _, err := domain.ParseDate(f.StartDate); err != nil {
			return nil, err
		}
		args = append(args, f.StartDate)
		clauses = append(clauses, "sale_date >= ?")
	}
	if f.EndDate != "" {
		if _, err := domain.ParseDate(f.EndDate); err != nil {
			return nil, err
		}
		args = append(args, f.EndDate)
		clauses = append(clauses, "sale_date <= ?")
	}
	if name := strings.TrimSpace(f.Customer); name != "" {
		args = append(args, name)
		clauses = append(clauses, "customer_name = ?")
	}

	query := saleColumns
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY sale_date DESC, id DESC"

	var sales []domain.Sale
	if err := l.db.SelectContext(ctx, &sales, l.db.Rebind(query), args...); err != nil {
		return nil, domain.Internal("list sales", err)
	}
	if len(sales) == 0 {
		return []domain.SaleDetail{}, nil
	}

	ids := make([]int64, len(sales))
	for i, s := range sales {
		ids[i] = s.ID
	}
	itemsBySale, err := l.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	details := make([]domain.SaleDetail, len(sales))
	for i, s := range sales {
		items := itemsBySale[s.ID]
		if items == nil {
			items = []domain.SaleItem{}
		}
		details[i] = domain.SaleDetail{Sale: s, Items: items}
	}
	return details, nil
}

// GetSale returns one bill with its lines.
func (l *Ledger) GetSale(ctx context.Context, saleID int64) (domain.SaleDetail, error) {
	var s domain.Sale
	err := l.db.GetContext(ctx, &s, l.db.Rebind(saleColumns+` WHERE id = ?`), saleID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SaleDetail{}, domain.NotFoundf("sale %d not found", saleID)
	}
	if err != nil {
		return domain.SaleDetail{}, domain.Internal("load sale", err)
	}
	itemsBySale, err := l.loadItems(ctx, []int64{saleID})
	if err != nil {
		return domain.SaleDetail{}, err
	}
	items := itemsBySale[saleID]
	if items == nil {
		items = []domain.SaleItem{}
	}
	return domain.SaleDetail{Sale: s, Items: items}, nil
}

func (l *Ledger) loadItems(ctx context.Context, saleIDs []int64) (map[int64][]domain.SaleItem, error) {
	query, args, err := sqlx.In(`SELECT si.id, si.sale_id, si.product_id, p.name AS product_name, si.price, si.quantity, si.line_total, si.expiry_date
		FROM sale_items si
		JOIN products p ON p.id = si.product_id
		WHERE si.sale_id IN (?)
		ORDER BY si.sale_id, si.id`, saleIDs)
	if err != nil {
		return nil, domain.Internal("prepare sale items query", err)
	}

	var rows []domain.SaleItem
	if err := l.db.SelectContext(ctx, &rows, l.db.Rebind(query), args...); err != nil {
		return nil, domain.Internal(fmt.Sprintf("load items of %d sales", len(saleIDs)), err)
	}
	bySale := make(map[int64][]domain.SaleItem)
	for _, row := range rows {
		bySale[row.SaleID] = append(bySale[row.SaleID], row)
	}
	return bySale, nil
}
