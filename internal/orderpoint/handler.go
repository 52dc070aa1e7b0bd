package orderpoint

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
)

// Handler manages order point endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers order point routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/order-points", h.handleList)
	r.Post("/order-points", h.handleCreate)
	r.Get("/order-points/{id}", h.handleGet)
	r.Put("/order-points/{id}", h.handleUpdate)
	r.Delete("/order-points/{id}", h.handleDelete)
}

type orderPointPayload struct {
	ProductID              int64    `json:"product_id"`
	Type                   Type     `json:"type"`
	WarehouseLocationID    int64    `json:"warehouse_location_id"`
	StorageLocationID      int64    `json:"storage_location_id"`
	ProvisioningLocationID int64    `json:"provisioning_location_id"`
	OverflowingLocationID  int64    `json:"overflowing_location_id"`
	MinQuantity            *float64 `json:"min_quantity"`
	TargetQuantity         float64  `json:"target_quantity"`
	MaxQuantity            *float64 `json:"max_quantity"`
	CompanyID              int64    `json:"company_id"`
}

func (p orderPointPayload) input() Input {
	return Input{
		ProductID:              p.ProductID,
		Type:                   p.Type,
		WarehouseLocationID:    p.WarehouseLocationID,
		StorageLocationID:      p.StorageLocationID,
		ProvisioningLocationID: p.ProvisioningLocationID,
		OverflowingLocationID:  p.OverflowingLocationID,
		MinQuantity:            p.MinQuantity,
		TargetQuantity:         p.TargetQuantity,
		MaxQuantity:            p.MaxQuantity,
		CompanyID:              p.CompanyID,
	}
}

type orderPointResponse struct {
	ID                     int64    `json:"id"`
	ProductID              int64    `json:"product_id"`
	Type                   Type     `json:"type"`
	WarehouseLocationID    int64    `json:"warehouse_location_id,omitempty"`
	StorageLocationID      int64    `json:"storage_location_id,omitempty"`
	ProvisioningLocationID int64    `json:"provisioning_location_id,omitempty"`
	OverflowingLocationID  int64    `json:"overflowing_location_id,omitempty"`
	MinQuantity            *float64 `json:"min_quantity"`
	TargetQuantity         float64  `json:"target_quantity"`
	MaxQuantity            *float64 `json:"max_quantity"`
	CompanyID              int64    `json:"company_id"`
	Unit                   string   `json:"unit"`
}

func toResponse(op OrderPoint) orderPointResponse {
	return orderPointResponse{
		ID:                     op.ID,
		ProductID:              op.ProductID,
		Type:                   op.Type,
		WarehouseLocationID:    op.WarehouseLocationID,
		StorageLocationID:      op.StorageLocationID,
		ProvisioningLocationID: op.ProvisioningLocationID,
		OverflowingLocationID:  op.OverflowingLocationID,
		MinQuantity:            op.MinQuantity,
		TargetQuantity:         op.TargetQuantity,
		MaxQuantity:            op.MaxQuantity,
		CompanyID:              op.CompanyID,
		Unit:                   op.Unit,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	companyID, _ := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	filter := Filter{
		Type:      Type(r.URL.Query().Get("type")),
		CompanyID: companyID,
	}
	for _, raw := range r.URL.Query()["product_id"] {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id != 0 {
			filter.ProductIDs = append(filter.ProductIDs, id)
		}
	}
	for _, raw := range r.URL.Query()["location_id"] {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id != 0 {
			filter.LocationIDs = append(filter.LocationIDs, id)
		}
	}

	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list order points", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to load order points")
		return
	}
	out := make([]orderPointResponse, 0, len(items))
	for _, op := range items {
		out = append(out, toResponse(op))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order_points": out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	op, err := h.service.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "order point not found")
		return
	}
	if err != nil {
		h.logger.Error("get order point", slog.Any("error", err), slog.Int64("id", id))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to load order point")
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(op))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload orderPointPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	op, err := h.service.Create(r.Context(), payload.input())
	if err != nil {
		h.respondError(w, "create order point", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(op))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var payload orderPointPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	op, err := h.service.Update(r.Context(), id, payload.input())
	if err != nil {
		h.respondError(w, "update order point", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(op))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, "delete order point", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, action string, err error) {
	var validation *ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "order point not found")
	case errors.As(err, &validation):
		httpx.RuleProblem(w, http.StatusUnprocessableEntity, "Validation Failed", validation.Message, string(validation.Rule))
	default:
		h.logger.Error(action, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "operation failed")
	}
}
