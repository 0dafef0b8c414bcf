package sales

import (
	"github.com/shopspring/decimal"

	"posledger/m/domain"
)

// Amounts is the money split of one bill.
type Amounts struct {
	Total          decimal.Decimal
	Discount       decimal.Decimal
	Paid           decimal.Decimal
	Borrow         decimal.Decimal
	ChangeReturned decimal.Decimal
}

// SplitAmounts derives the stored amounts of a bill from its total and what
// the customer handed over. A BORROW bill carries the unpaid rest as
// borrow_amount; any other bill books it as discount. Money paid beyond the
// total is change and is not stored as paid.
func SplitAmounts(pt domain.PaymentType, total, paid, discount decimal.Decimal) Amounts {
	total = domain.Money(total)
	paid = domain.Money(paid)
	discount = domain.Money(discount)

	a := Amounts{Total: total, Paid: paid, Discount: discount, Borrow: decimal.Zero, ChangeReturned: decimal.Zero}
	if paid.GreaterThan(total) {
		a.ChangeReturned = paid.Sub(total)
		a.Paid = total
	}
	gap := total.Sub(a.Paid)

	if pt == domain.PaymentBorrow {
		a.Borrow = gap
	} else if gap.GreaterThan(a.Discount) {
		a.Discount = gap
	}
	if a.Discount.GreaterThan(total) {
		a.Discount = total
	}
	return a
}
