package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"posledger/m/domain"
	"posledger/m/internal/api"
	"posledger/m/internal/borrowers"
	"posledger/m/internal/dashboard"
	"posledger/m/internal/database/databasetest"
	"posledger/m/internal/inventory"
	"posledger/m/internal/sales"
)

func newServer(t *testing.T) (*httptest.Server, *databasetest.Clock) {
	t.Helper()
	db := databasetest.NewDB(t)
	clock := databasetest.NewClock("2024-05-10")
	inv := inventory.NewLedger(db, clock.Now, zerolog.Nop())
	bor := borrowers.NewLedger(db, clock.Now, zerolog.Nop())
	h := api.New(api.Services{
		Inventory: inv,
		Sweeper:   inventory.NewSweeper(db, clock.Now, zerolog.Nop()),
		Sales:     sales.NewLedger(db, inv, bor, clock.Now, zerolog.Nop()),
		Borrowers: bor,
		Dashboard: dashboard.New(db),
	}, api.Options{Now: clock.Now}, zerolog.Nop())
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv, clock
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, out
}

func decode(t *testing.T, raw []byte, dest any) {
	t.Helper()
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(dest); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

type errorBody struct {
	Error  string            `json:"error"`
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func addStock(t *testing.T, srv *httptest.Server, name, price string, qty int) int64 {
	t.Helper()
	status, body := do(t, srv, http.MethodPost, "/stock",
		fmt.Sprintf(`{"name":%q,"price":%s,"expiry_date":"2099-01-01","quantity":%d}`, name, price, qty))
	if status != http.StatusCreated {
		t.Fatalf("add stock status = %d body=%s", status, body)
	}
	var out struct {
		ProductID int64 `json:"product_id"`
	}
	decode(t, body, &out)
	return out.ProductID
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t)
	resp, err := srv.Client().Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}
}

func TestBorrowSaleAndPayment(t *testing.T) {
	srv, _ := newServer(t)
	widget := addStock(t, srv, "Widget", "10", 5)

	status, body := do(t, srv, http.MethodPost, "/sales", fmt.Sprintf(
		`{"customer_name":"Amit","payment_type":"BORROW","items":[{"product_id":%d,"quantity":2}],"paid_amount":5}`, widget))
	if status != http.StatusCreated {
		t.Fatalf("create sale status = %d body=%s", status, body)
	}
	var res sales.Result
	decode(t, body, &res)
	if !res.BorrowAmount.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("borrow = %s, want 15", res.BorrowAmount)
	}

	status, body = do(t, srv, http.MethodGet, "/borrowers", "")
	if status != http.StatusOK {
		t.Fatalf("list borrowers status = %d", status)
	}
	var list []domain.Borrower
	decode(t, body, &list)
	if len(list) != 1 || list[0].Name != "Amit" || !list[0].OutstandingAmount.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("borrowers = %+v", list)
	}
	path := fmt.Sprintf("/borrowers/%d/payments", list[0].ID)

	status, body = do(t, srv, http.MethodPost, path, `{"amount":20}`)
	if status != http.StatusConflict {
		t.Fatalf("over payment status = %d body=%s", status, body)
	}
	var eb errorBody
	decode(t, body, &eb)
	if eb.Error != string(domain.KindOverPayment) {
		t.Fatalf("error = %q", eb.Error)
	}

	status, body = do(t, srv, http.MethodPost, path, `{"amount":15}`)
	if status != http.StatusCreated {
		t.Fatalf("payment status = %d body=%s", status, body)
	}
	var paid borrowers.PaymentResult
	decode(t, body, &paid)
	if !paid.OutstandingAmount.IsZero() || len(paid.SalesSettled) != 1 || paid.SalesSettled[0] != res.SaleID {
		t.Fatalf("payment result = %+v", paid)
	}

	status, body = do(t, srv, http.MethodGet, fmt.Sprintf("/sales/%d", res.SaleID), "")
	if status != http.StatusOK {
		t.Fatalf("get sale status = %d", status)
	}
	var detail domain.SaleDetail
	decode(t, body, &detail)
	if !detail.BorrowAmount.IsZero() || len(detail.Items) != 1 || detail.Items[0].Quantity != 2 {
		t.Fatalf("sale after payment = %+v", detail)
	}
}

func TestErrorStatuses(t *testing.T) {
	srv, _ := newServer(t)
	widget := addStock(t, srv, "Widget", "10", 1)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		kind   domain.ErrorKind
	}{
		{"short stock", http.MethodPost, "/sales", fmt.Sprintf(`{"payment_type":"CASH","items":[{"product_id":%d,"quantity":3}],"paid_amount":30}`, widget), http.StatusConflict, domain.KindInsufficientStock},
		{"bad payment type", http.MethodPost, "/sales", fmt.Sprintf(`{"payment_type":"CARD","items":[{"product_id":%d,"quantity":1}]}`, widget), http.StatusBadRequest, domain.KindInvalidInput},
		{"no items", http.MethodPost, "/sales", `{"payment_type":"CASH","items":[]}`, http.StatusBadRequest, domain.KindInvalidInput},
		{"borrow without customer", http.MethodPost, "/sales", fmt.Sprintf(`{"payment_type":"BORROW","items":[{"product_id":%d,"quantity":1}]}`, widget), http.StatusBadRequest, domain.KindInvalidInput},
		{"unknown field", http.MethodPost, "/stock", `{"name":"X","price":1,"expiry_date":"2099-01-01","quantity":1,"color":"red"}`, http.StatusBadRequest, domain.KindInvalidInput},
		{"missing sale", http.MethodGet, "/sales/999", "", http.StatusNotFound, domain.KindNotFound},
		{"bad id", http.MethodDelete, "/sales/abc", "", http.StatusBadRequest, domain.KindInvalidInput},
		{"missing borrower", http.MethodGet, "/borrowers/42", "", http.StatusNotFound, domain.KindNotFound},
		{"bad dashboard date", http.MethodGet, "/dashboard?date=10-05-2024", "", http.StatusBadRequest, domain.KindInvalidInput},
		{"bad expiring window", http.MethodGet, "/stock/expiring?days=-1", "", http.StatusBadRequest, domain.KindInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := do(t, srv, tc.method, tc.path, tc.body)
			if status != tc.status {
				t.Fatalf("status = %d, want %d body=%s", status, tc.status, body)
			}
			var eb errorBody
			decode(t, body, &eb)
			if eb.Error != string(tc.kind) {
				t.Fatalf("error = %q, want %q", eb.Error, tc.kind)
			}
		})
	}

	// The short sale must not have touched stock.
	status, body := do(t, srv, http.MethodGet, "/stock", "")
	if status != http.StatusOK {
		t.Fatalf("list stock status = %d", status)
	}
	var entries []domain.StockEntry
	decode(t, body, &entries)
	if len(entries) != 1 || entries[0].Quantity != 1 {
		t.Fatalf("stock = %+v", entries)
	}
}

func TestEditAndDeleteSale(t *testing.T) {
	srv, _ := newServer(t)
	widget := addStock(t, srv, "Widget", "10", 10)

	_, body := do(t, srv, http.MethodPost, "/sales", fmt.Sprintf(
		`{"payment_type":"CASH","items":[{"product_id":%d,"quantity":4}],"paid_amount":40}`, widget))
	var res sales.Result
	decode(t, body, &res)

	status, body := do(t, srv, http.MethodPut, fmt.Sprintf("/sales/%d", res.SaleID), fmt.Sprintf(
		`{"payment_type":"ONLINE","items":[{"product_id":%d,"quantity":1}],"paid_amount":10}`, widget))
	if status != http.StatusOK {
		t.Fatalf("edit status = %d body=%s", status, body)
	}

	status, _ = do(t, srv, http.MethodDelete, fmt.Sprintf("/sales/%d", res.SaleID), "")
	if status != http.StatusNoContent {
		t.Fatalf("delete status = %d", status)
	}
	_, body = do(t, srv, http.MethodGet, "/stock", "")
	var entries []domain.StockEntry
	decode(t, body, &entries)
	if len(entries) != 1 || entries[0].Quantity != 10 {
		t.Fatalf("stock after delete = %+v", entries)
	}
}

func TestRequestSweepsExpiredStock(t *testing.T) {
	srv, clock := newServer(t)
	status, body := do(t, srv, http.MethodPost, "/stock",
		`{"name":"Milk","price":2,"expiry_date":"2024-05-11","quantity":6}`)
	if status != http.StatusCreated {
		t.Fatalf("add stock status = %d body=%s", status, body)
	}
	clock.AddDays(2)

	_, body = do(t, srv, http.MethodGet, "/stock", "")
	var sellable []domain.StockEntry
	decode(t, body, &sellable)
	if len(sellable) != 0 {
		t.Fatalf("sellable = %+v", sellable)
	}
	_, body = do(t, srv, http.MethodGet, "/stock/expired", "")
	var expired []domain.ExpiredEntry
	decode(t, body, &expired)
	if len(expired) != 1 || expired[0].Quantity != 6 || expired[0].ExpiredDate != "2024-05-12" {
		t.Fatalf("expired = %+v", expired)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newServer(t)
	do(t, srv, http.MethodGet, "/sales/999", "")
	status, body := do(t, srv, http.MethodGet, "/metrics", "")
	if status != http.StatusOK {
		t.Fatalf("metrics status = %d", status)
	}
	for _, want := range []string{"posledger_http_requests_total", `posledger_ledger_failures_total{kind="not_found"} 1`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
