package purchasing

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
)

// Handler manages purchase request endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers purchase request routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/purchase-requests", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	companyID, _ := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	filter := Filter{
		CompanyID: companyID,
		State:     RequestState(r.URL.Query().Get("state")),
	}
	items, err := h.service.ListRequests(r.Context(), filter)
	if err != nil {
		h.logger.Error("list purchase requests", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to load purchase requests")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase_requests": items})
}
