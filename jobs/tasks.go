package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSupplyStock is the task type for the scheduled supply run.
	TaskSupplyStock = "supply:stock"
)

// SupplyStockPayload describes one supply run request.
type SupplyStockPayload struct {
	CompanyID    int64     `json:"company_id"`
	WarehouseIDs []int64   `json:"warehouse_ids,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSupplyStockTask constructs an Asynq task for a supply run.
func NewSupplyStockTask(payload SupplyStockPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSupplyStock, body, asynq.Queue(QueueDefault)), nil
}
