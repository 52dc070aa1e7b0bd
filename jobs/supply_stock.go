package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-wms/meridian-wms/internal/shared"
	"github.com/meridian-wms/meridian-wms/internal/supply"
)

// SupplyRunner is the slice of the supply service the job needs.
type SupplyRunner interface {
	Run(ctx context.Context, params supply.RunParams) (supply.RunResult, error)
}

// NewSupplyStockHandler builds the handler for TaskSupplyStock. The
// scheduled run acknowledges warnings itself since nobody is around to
// review them; they stay visible in the logs.
func NewSupplyStockHandler(service SupplyRunner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SupplyStockPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		result, err := service.Run(ctx, supply.RunParams{
			CompanyID:    payload.CompanyID,
			WarehouseIDs: payload.WarehouseIDs,
			AckWarnings:  true,
		})
		if errors.Is(err, shared.ErrPlanningInProgress) {
			// Another run holds the lock; the next schedule catches up.
			logger.Warn("supply stock job skipped, planning in progress",
				slog.Int64("company_id", payload.CompanyID))
			return nil
		}
		if err != nil {
			logger.Error("supply stock job failed", slog.Any("error", err),
				slog.Int64("company_id", payload.CompanyID))
			return err
		}
		logger.Info("supply stock job complete",
			slog.Int64("company_id", payload.CompanyID),
			slog.Int("shipments", len(result.ShipmentIDs)),
			slog.Int("purchase_requests", result.PurchaseRequests),
			slog.Int("passes", result.Passes))
		return nil
	}
}
