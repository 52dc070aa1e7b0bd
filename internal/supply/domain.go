package supply

import (
	"errors"
	"time"
)

// ShipmentState is the lifecycle state of an internal shipment.
type ShipmentState string

const (
	// ShipmentStateRequest marks a planner-generated draft. Requests are
	// ephemeral: a clean planning run deletes and regenerates them.
	ShipmentStateRequest ShipmentState = "request"
	// ShipmentStateDraft marks a request promoted for execution.
	ShipmentStateDraft ShipmentState = "draft"
)

// Shipment is a planned stock transfer grouping the moves of one
// (source, destination, date) triple.
type Shipment struct {
	ID               int64
	FromLocationID   int64
	ToLocationID     int64
	PlannedDate      time.Time
	PlannedStartDate time.Time
	// TransitLocationID is set while the shipment is routed through an
	// intermediate transit point to date its legs accurately. Transit
	// legs are collapsed back to a direct move after planning.
	TransitLocationID int64
	State             ShipmentState
	CompanyID         int64
}

// Move is a shipment line item.
type Move struct {
	ID             int64
	ShipmentID     int64
	ProductID      int64
	Quantity       float64
	Unit           string
	FromLocationID int64
	ToLocationID   int64
	PlannedDate    time.Time
	CompanyID      int64
}

// plannedMove is the planner's intermediate representation of a deficit
// resolution, built immutably per simulated day and merged at day end.
type plannedMove struct {
	fromLocationID int64
	toLocationID   int64
	productID      int64
	quantity       float64
	unit           string
}

var (
	// ErrNoConvergence indicates the fixed-point loop exceeded its pass
	// cap. The domain expects convergence, so this is an internal error.
	ErrNoConvergence = errors.New("supply: planning did not converge")
	// ErrShipmentNotFound indicates a missing shipment.
	ErrShipmentNotFound = errors.New("supply: shipment not found")
)
