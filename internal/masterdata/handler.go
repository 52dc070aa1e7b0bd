package masterdata

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
)

// Handler manages master data endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/locations", h.handleListLocations)
	r.Post("/locations", h.handleCreateLocation)
	r.Get("/locations/{id}", h.handleGetLocation)
	r.Put("/locations/{id}", h.handleUpdateLocation)
	r.Get("/lead-times", h.handleListLeadTimes)
	r.Put("/lead-times", h.handleUpsertLeadTime)
	r.Get("/products", h.handleListProducts)
	r.Get("/supply-config/{companyID}", h.handleGetSupplyConfig)
	r.Put("/supply-config/{companyID}", h.handleSaveSupplyConfig)
}

type locationPayload struct {
	Code                   string       `json:"code"`
	Name                   string       `json:"name"`
	Type                   LocationType `json:"type"`
	ParentID               int64        `json:"parent_id"`
	ProvisioningLocationID int64        `json:"provisioning_location_id"`
	OverflowingLocationID  int64        `json:"overflowing_location_id"`
	CompanyID              int64        `json:"company_id"`
}

func (p locationPayload) input() LocationInput {
	return LocationInput{
		Code:                   p.Code,
		Name:                   p.Name,
		Type:                   p.Type,
		ParentID:               p.ParentID,
		ProvisioningLocationID: p.ProvisioningLocationID,
		OverflowingLocationID:  p.OverflowingLocationID,
		CompanyID:              p.CompanyID,
	}
}

func (h *Handler) handleListLocations(w http.ResponseWriter, r *http.Request) {
	companyID, _ := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	items, err := h.service.ListLocations(r.Context(), companyID)
	if err != nil {
		h.logger.Error("list locations", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to load locations")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"locations": items})
}

func (h *Handler) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	loc, err := h.service.GetLocation(r.Context(), id)
	if errors.Is(err, ErrLocationNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "location not found")
		return
	}
	if err != nil {
		h.logger.Error("get location", slog.Any("error", err), slog.Int64("id", id))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to load location")
		return
	}
	httpx.JSON(w, http.StatusOK, loc)
}

func (h *Handler) handleCreateLocation(w http.ResponseWriter, r *http.Request) {
	var payload locationPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	loc, err := h.service.CreateLocation(r.Context(), payload.input())
	if err != nil {
		h.logger.Error("create location", slog.Any("error", err))
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusCreated, loc)
}

func (h *Handler) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var payload locationPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	loc, err := h.service.UpdateLocation(r.Context(), id, payload.input())
	if errors.Is(err, ErrLocationNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "location not found")
		return
	}
	if err != nil {
		h.logger.Error("update location", slog.Any("error", err), slog.Int64("id", id))
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, loc)
}

func (h *Handler) handleListLeadTimes(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListLeadTimes(r.Context())
	if err != nil {
		h.logger.Error("list lead times", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to load lead times")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lead_times": items})
}

func (h *Handler) handleUpsertLeadTime(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		FromLocationID int64 `json:"from_location_id"`
		ToLocationID   int64 `json:"to_location_id"`
		LeadTimeDays   int   `json:"lead_time_days"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	lt, err := h.service.UpsertLeadTime(r.Context(), LeadTimeInput{
		FromLocationID: payload.FromLocationID,
		ToLocationID:   payload.ToLocationID,
		LeadTimeDays:   payload.LeadTimeDays,
	})
	if err != nil {
		h.logger.Error("upsert lead time", slog.Any("error", err))
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, lt)
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to load products")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": items})
}

func (h *Handler) handleGetSupplyConfig(w http.ResponseWriter, r *http.Request) {
	companyID, _ := strconv.ParseInt(chi.URLParam(r, "companyID"), 10, 64)
	cfg, err := h.service.GetSupplyConfig(r.Context(), companyID)
	if err != nil {
		h.logger.Error("get supply config", slog.Any("error", err), slog.Int64("company_id", companyID))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to load supply config")
		return
	}
	httpx.JSON(w, http.StatusOK, cfg)
}

func (h *Handler) handleSaveSupplyConfig(w http.ResponseWriter, r *http.Request) {
	companyID, _ := strconv.ParseInt(chi.URLParam(r, "companyID"), 10, 64)
	var payload struct {
		TransitLocationID int64 `json:"transit_location_id"`
		SupplyPeriodDays  int   `json:"supply_period_days"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	cfg := SupplyConfig{
		CompanyID:         companyID,
		TransitLocationID: payload.TransitLocationID,
		SupplyPeriodDays:  payload.SupplyPeriodDays,
	}
	if err := h.service.SaveSupplyConfig(r.Context(), cfg); err != nil {
		h.logger.Error("save supply config", slog.Any("error", err), slog.Int64("company_id", companyID))
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, cfg)
}
