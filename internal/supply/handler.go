package supply

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// IdempotencyPort guards the run endpoint against double submits.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Handler manages supply run and shipment endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	idem    IdempotencyPort
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, idem IdempotencyPort) *Handler {
	return &Handler{logger: logger, service: service, idem: idem}
}

// MountRoutes registers supply routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/runs", h.handleRun)
	r.Post("/warnings/ack", h.handleAckWarning)
	r.Get("/shipments", h.handleListShipments)
	r.Get("/shipments/{id}/moves", h.handleShipmentMoves)
}

type runPayload struct {
	CompanyID    int64   `json:"company_id"`
	WarehouseIDs []int64 `json:"warehouse_ids"`
	// Today overrides the planning date, mainly for dry runs against a
	// future date. Format 2006-01-02.
	Today       string `json:"today"`
	AckWarnings bool   `json:"ack_warnings"`
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	var payload runPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	params := RunParams{
		CompanyID:    payload.CompanyID,
		WarehouseIDs: payload.WarehouseIDs,
		AckWarnings:  payload.AckWarnings,
	}
	if payload.Today != "" {
		today, err := time.Parse("2006-01-02", payload.Today)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "today must be formatted 2006-01-02")
			return
		}
		params.Today = today
	}

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idem != nil {
		if err := h.idem.CheckAndInsert(r.Context(), idemKey, "supply"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate Request", "this run was already submitted")
				return
			}
			h.logger.Error("idempotency check", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "supply run failed")
			return
		}
	}

	result, err := h.service.Run(r.Context(), params)
	if err != nil {
		// Free the key so the caller can retry after fixing the cause.
		if idemKey != "" && h.idem != nil {
			if derr := h.idem.Delete(r.Context(), idemKey); derr != nil {
				h.logger.Warn("idempotency rollback", slog.Any("error", derr))
			}
		}
		h.respondRunError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"run_id":            result.RunID,
		"shipment_ids":      result.ShipmentIDs,
		"shipments":         len(result.ShipmentIDs),
		"purchase_requests": result.PurchaseRequests,
		"passes":            result.Passes,
	})
}

func (h *Handler) respondRunError(w http.ResponseWriter, err error) {
	var warning *shared.Warning
	switch {
	case errors.Is(err, shared.ErrPlanningInProgress):
		httpx.Problem(w, http.StatusConflict, "Planning In Progress", "a supply run is already active for this company")
	case errors.As(err, &warning):
		httpx.RuleProblem(w, http.StatusPreconditionFailed, "Run Blocked", warning.Message, warning.Key)
	default:
		h.logger.Error("supply run", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "supply run failed")
	}
}

func (h *Handler) handleAckWarning(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Key string `json:"key"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil || payload.Key == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "a warning key is required")
		return
	}
	if err := h.service.AcknowledgeWarning(r.Context(), payload.Key); err != nil {
		h.logger.Error("acknowledge warning", slog.Any("error", err), slog.String("key", payload.Key))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to acknowledge warning")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListShipments(w http.ResponseWriter, r *http.Request) {
	companyID, _ := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	state := ShipmentState(r.URL.Query().Get("state"))
	items, err := h.service.ListShipments(r.Context(), companyID, state)
	if err != nil {
		h.logger.Error("list shipments", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to load shipments")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"shipments": items})
}

func (h *Handler) handleShipmentMoves(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	items, err := h.service.ShipmentMoves(r.Context(), id)
	if errors.Is(err, ErrShipmentNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "shipment not found")
		return
	}
	if err != nil {
		h.logger.Error("list shipment moves", slog.Any("error", err), slog.Int64("id", id))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to load moves")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"moves": items})
}
