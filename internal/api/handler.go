package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"posledger/m/domain"
	"posledger/m/internal/borrowers"
	"posledger/m/internal/dashboard"
	"posledger/m/internal/inventory"
	"posledger/m/internal/sales"
)

// Services are the ledgers the HTTP layer drives.
type Services struct {
	Inventory *inventory.Ledger
	Sweeper   *inventory.Sweeper
	Sales     *sales.Ledger
	Borrowers *borrowers.Ledger
	Dashboard *dashboard.Service
}

type Options struct {
	AllowedOrigins  []string
	ExpiryAlertDays int
	Now             func() time.Time
}

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	inventory *inventory.Ledger
	sweeper   *inventory.Sweeper
	sales     *sales.Ledger
	borrowers *borrowers.Ledger
	dashboard *dashboard.Service

	opts     Options
	log      zerolog.Logger
	validate *validator.Validate
	registry *prometheus.Registry
	metrics  *metrics
}

// New constructs a Handler.
func New(svc Services, opts Options, log zerolog.Logger) *Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ExpiryAlertDays <= 0 {
		opts.ExpiryAlertDays = 30
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	reg := prometheus.NewRegistry()
	return &Handler{
		inventory: svc.Inventory,
		sweeper:   svc.Sweeper,
		sales:     svc.Sales,
		borrowers: svc.Borrowers,
		dashboard: svc.Dashboard,
		opts:      opts,
		log:       log.With().Str("component", "http").Logger(),
		validate:  validator.New(),
		registry:  reg,
		metrics:   newMetrics(reg),
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
	}))
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(h.observe)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))

	r.Group(func(pr chi.Router) {
		pr.Use(h.sweepFirst)

		pr.Route("/stock", func(r chi.Router) {
			r.Post("/", h.addStock)
			r.Get("/", h.listStock)
			r.Get("/expired", h.listExpired)
			r.Get("/expiring", h.listExpiring)
			r.Post("/sweep", h.sweep)
		})

		pr.Route("/sales", func(r chi.Router) {
			r.Post("/", h.createSale)
			r.Get("/", h.listSales)
			r.Get("/{id}", h.getSale)
			r.Put("/{id}", h.editSale)
			r.Delete("/{id}", h.deleteSale)
		})

		pr.Route("/borrowers", func(r chi.Router) {
			r.Get("/", h.listBorrowers)
			r.Get("/{id}", h.getBorrower)
			r.Get("/{id}/payments", h.listPayments)
			r.Post("/{id}/payments", h.recordPayment)
		})

		pr.Get("/dashboard", h.getDashboard)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Stock handlers

type stockRequest struct {
	Name       string          `json:"name" validate:"required"`
	Price      decimal.Decimal `json:"price"`
	ExpiryDate string          `json:"expiry_date" validate:"required"`
	Quantity   int64           `json:"quantity" validate:"gt=0"`
}

func (h *Handler) addStock(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	id, err := h.inventory.AddStock(r.Context(), inventory.AddStockRequest{
		Name:       req.Name,
		Price:      req.Price,
		ExpiryDate: req.ExpiryDate,
		Quantity:   req.Quantity,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"product_id": id})
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	entries, err := h.inventory.ListSellable(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (h *Handler) listExpired(w http.ResponseWriter, r *http.Request) {
	entries, err := h.inventory.ListExpired(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (h *Handler) listExpiring(w http.ResponseWriter, r *http.Request) {
	days := h.opts.ExpiryAlertDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.respondErr(w, r, domain.InvalidInputf("days must be a positive integer"))
			return
		}
		days = n
	}
	entries, err := h.inventory.ListExpiringSoon(r.Context(), days)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (h *Handler) sweep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AsOf string `json:"as_of"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.respondErr(w, r, domain.InvalidInputf("invalid request body: %v", err))
		return
	}
	asOf := req.AsOf
	if asOf == "" {
		asOf = domain.FormatDate(h.opts.Now())
	}
	moved, err := h.sweeper.Sweep(r.Context(), asOf)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"as_of": asOf, "products_expired": moved})
}

// Dashboard

func (h *Handler) getDashboard(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		date = domain.FormatDate(h.opts.Now())
	}
	summary, err := h.dashboard.Summary(r.Context(), date)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// Helpers

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.InvalidInputf("invalid id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

// decodeValid decodes the body into dest and runs its validate tags,
// answering 400 itself when either step fails.
func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		h.respondErr(w, r, domain.InvalidInputf("invalid request body: %v", err))
		return false
	}
	if err := h.validate.Struct(dest); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Namespace()] = fe.Tag()
			}
			h.metrics.failures.WithLabelValues(string(domain.KindInvalidInput)).Inc()
			respondJSON(w, http.StatusBadRequest, map[string]any{
				"error":  domain.KindInvalidInput,
				"detail": "request failed validation",
				"fields": fields,
			})
			return false
		}
		h.respondErr(w, r, domain.InvalidInputf("%v", err))
		return false
	}
	return true
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientStock, domain.KindOverPayment, domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondErr answers with the error's kind and detail. Internal failures are
// logged in full but only reported generically.
func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	h.metrics.failures.WithLabelValues(string(kind)).Inc()
	detail := err.Error()
	if kind == domain.KindInternal {
		h.log.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("internal error")
		detail = fmt.Sprintf("internal error (request %s)", requestIDFrom(r.Context()))
	}
	respondJSON(w, statusFor(kind), map[string]string{"error": string(kind), "detail": detail})
}
