package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"posledger/m/internal/borrowers"
)

type paymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate string          `json:"payment_date"`
}

func (h *Handler) listBorrowers(w http.ResponseWriter, r *http.Request) {
	list, err := h.borrowers.ListOutstanding(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handler) getBorrower(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	b, err := h.borrowers.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	list, err := h.borrowers.ListPayments(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	var req paymentRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	res, err := h.borrowers.RecordPayment(r.Context(), borrowers.PaymentRequest{
		BorrowerID:  id,
		Amount:      req.Amount,
		PaymentDate: req.PaymentDate,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}
