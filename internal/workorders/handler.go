package workorders

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/gearbox-erp/gearbox/internal/parts"
	"github.com/gearbox-erp/gearbox/internal/platform/db"
	"github.com/gearbox-erp/gearbox/internal/platform/httpx"
	"github.com/gearbox-erp/gearbox/internal/quotes"
)

// ConversionMetrics counts conversion attempts by outcome.
type ConversionMetrics interface {
	ObserveConversion(outcome string)
}

// Handler wires HTTP endpoints for work orders, including quote conversion.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	metrics  ConversionMetrics
}

// NewHandler constructs the work orders handler. metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, metrics ConversionMetrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New(), metrics: metrics}
}

// MountRoutes registers work order routes. Conversion is rate limited per
// client since impatient retries of a conflicting conversion only make the
// contention worse.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/work-orders", func(r chi.Router) {
		r.With(httprate.LimitByIP(10, time.Minute)).
			Post("/from-quote/{id}", h.handleConvert)
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/start", h.handleStart)
		r.Post("/{id}/complete", h.handleComplete)
		r.Post("/{id}/cancel", h.handleCancel)
		r.Post("/{id}/payment", h.handleMarkPaid)
	})
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paramID(w, r, "invalid quote id")
	if !ok {
		return
	}
	wo, err := h.service.ConvertQuote(r.Context(), id)
	if err != nil {
		h.observeConversion(err)
		var already *AlreadyConvertedError
		if errors.As(err, &already) {
			// A repeated conversion answers with the order the first one
			// produced, so retrying clients converge on the same result.
			existing, getErr := h.service.Get(r.Context(), already.WorkOrderID)
			if getErr == nil {
				httpx.JSON(w, http.StatusOK, toWorkOrderResponse(existing))
				return
			}
			err = getErr
		}
		h.logger.Error("convert quote", slog.Int64("quote_id", id), slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	h.observeConversion(nil)
	httpx.JSON(w, http.StatusCreated, toWorkOrderResponse(wo))
}

func (h *Handler) observeConversion(err error) {
	if h.metrics == nil {
		return
	}
	var insufficient *parts.InsufficientStockError
	switch {
	case err == nil:
		h.metrics.ObserveConversion("converted")
	case errors.As(err, &insufficient):
		h.metrics.ObserveConversion("insufficient_stock")
	case errors.Is(err, ErrAlreadyConverted):
		h.metrics.ObserveConversion("already_converted")
	case errors.Is(err, db.ErrTxConflict):
		h.metrics.ObserveConversion("conflict")
	default:
		h.metrics.ObserveConversion("error")
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Limit: 50}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	if v := r.URL.Query().Get("client_id"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			filter.ClientID = &n
		}
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := Status(v)
		filter.Status = &status
	}
	if v := r.URL.Query().Get("payment_status"); v != "" {
		payment := PaymentStatus(v)
		filter.Payment = &payment
	}
	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list work orders", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	resp := make([]WorkOrderResponse, 0, len(items))
	for _, wo := range items {
		resp = append(resp, toWorkOrderResponse(wo))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"work_orders": resp, "total": total})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	wo, err := h.service.Create(r.Context(), toWorkOrder(req))
	if err != nil {
		h.logger.Error("create work order", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toWorkOrderResponse(wo))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paramID(w, r, "invalid work order id")
	if !ok {
		return
	}
	wo, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toWorkOrderResponse(wo))
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.service.Start)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.service.Complete)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paramID(w, r, "invalid work order id")
	if !ok {
		return
	}
	var req CancelWorkOrderRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
	}
	wo, err := h.service.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toWorkOrderResponse(wo))
}

func (h *Handler) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.service.MarkPaid)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (WorkOrder, error)) {
	id, ok := h.paramID(w, r, "invalid work order id")
	if !ok {
		return
	}
	wo, err := fn(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toWorkOrderResponse(wo))
}

func (h *Handler) paramID(w http.ResponseWriter, r *http.Request, msg string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", msg)
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var (
		insufficient *parts.InsufficientStockError
		transition   *InvalidTransitionError
		payment      *InvalidPaymentError
	)
	switch {
	case errors.Is(err, ErrWorkOrderNotFound), errors.Is(err, quotes.ErrQuoteNotFound), errors.Is(err, parts.ErrPartNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrAlreadyConverted), errors.Is(err, ErrQuoteNotApproved):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &transition), errors.As(err, &payment):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrEmptyOrder), errors.Is(err, parts.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
