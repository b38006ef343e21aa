package parts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/gearbox-erp/gearbox/internal/platform/httpx"
	"github.com/gearbox-erp/gearbox/internal/shared"
)

// Handler wires HTTP endpoints for the part ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	// availability reads are collapsed per part so a burst of UI polls does
	// not fan out into parallel identical queries.
	availGroup singleflight.Group
}

// NewHandler constructs the parts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers part ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/parts", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/code/{code}", h.handleGetByCode)
		r.Get("/{id}", h.handleGet)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
		r.Get("/{id}/availability", h.handleAvailability)
		r.Post("/{id}/adjustments", h.handleAdjust)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)
	items, total, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list parts", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	resp := make([]PartResponse, 0, len(items))
	for _, p := range items {
		resp = append(resp, toPartResponse(p))
	}
	page := shared.NewPagination(offset/max(limit, 1)+1, limit, total)
	httpx.JSON(w, http.StatusOK, map[string]any{"parts": resp, "total": total, "pages": page.TotalPages})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreatePartRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	part, err := h.service.Create(r.Context(), Part{
		Code:            req.Code,
		Description:     req.Description,
		QuantityOnHand:  req.QuantityOnHand,
		MinimumQuantity: req.MinimumQuantity,
		PurchasePrice:   req.PurchasePrice,
		SalePrice:       req.SalePrice,
		Supplier:        req.Supplier,
	})
	if err != nil {
		h.logger.Error("create part", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPartResponse(part))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paramID(w, r)
	if !ok {
		return
	}
	part, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPartResponse(part))
}

func (h *Handler) handleGetByCode(w http.ResponseWriter, r *http.Request) {
	part, err := h.service.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPartResponse(part))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paramID(w, r)
	if !ok {
		return
	}
	var req UpdatePartRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	part, err := h.service.Update(r.Context(), Part{
		ID:              id,
		Code:            req.Code,
		Description:     req.Description,
		MinimumQuantity: req.MinimumQuantity,
		PurchasePrice:   req.PurchasePrice,
		SalePrice:       req.SalePrice,
		Supplier:        req.Supplier,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPartResponse(part))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paramID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paramID(w, r)
	if !ok {
		return
	}
	key := fmt.Sprintf("avail:%d", id)
	result, err, _ := h.availGroup.Do(key, func() (any, error) {
		return h.service.GetAvailable(context.WithoutCancel(r.Context()), id)
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"part_id": id, "available": result})
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paramID(w, r)
	if !ok {
		return
	}
	var req AdjustStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	part, err := h.service.AdjustOnHand(r.Context(), id, req.Delta)
	if err != nil {
		h.logger.Error("adjust part stock", slog.Int64("part_id", id), slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPartResponse(part))
}

func (h *Handler) paramID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid part id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.Is(err, ErrPartNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrPartReserved), errors.Is(err, ErrPartReferenced):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrNegativeStock):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case IsUniqueViolation(err):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "part code already exists")
	default:
		httpx.RespondError(w, err)
	}
}

func parsePage(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
