package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"posledger/m/domain"
	"posledger/m/internal/sales"
)

type saleItemRequest struct {
	ProductID  int64            `json:"product_id" validate:"required_without=Name"`
	Name       string           `json:"name"`
	ExpiryDate string           `json:"expiry_date" validate:"required_with=Name"`
	Price      *decimal.Decimal `json:"price"`
	Quantity   int64            `json:"quantity" validate:"gt=0"`
}

type saleRequest struct {
	CustomerName   string            `json:"customer_name"`
	PaymentType    string            `json:"payment_type" validate:"required,oneof=CASH ONLINE BORROW"`
	Items          []saleItemRequest `json:"items" validate:"required,min=1,dive"`
	PaidAmount     decimal.Decimal   `json:"paid_amount"`
	DiscountAmount *decimal.Decimal  `json:"discount_amount"`
	SaleDate       string            `json:"sale_date"`
}

func (req saleRequest) toLedger() sales.SaleRequest {
	items := make([]sales.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, sales.ItemRequest{
			ProductID:  it.ProductID,
			Name:       it.Name,
			ExpiryDate: it.ExpiryDate,
			Price:      it.Price,
			Quantity:   it.Quantity,
		})
	}
	return sales.SaleRequest{
		CustomerName:   req.CustomerName,
		PaymentType:    domain.PaymentType(req.PaymentType),
		Items:          items,
		PaidAmount:     req.PaidAmount,
		DiscountAmount: req.DiscountAmount,
		SaleDate:       req.SaleDate,
	}
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	res, err := h.sales.CreateSale(r.Context(), req.toLedger())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.sales.ListSales(r.Context(), sales.Filter{
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		Customer:  q.Get("customer"),
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	sale, err := h.sales.GetSale(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sale)
}

func (h *Handler) editSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	var req saleRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	res, err := h.sales.EditSale(r.Context(), id, req.toLedger())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) deleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.sales.DeleteSale(r.Context(), id); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
