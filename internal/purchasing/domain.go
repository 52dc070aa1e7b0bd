package purchasing

import (
	"errors"
	"time"
)

// RequestState is the lifecycle state of a purchase request.
type RequestState string

const (
	// RequestStateDraft marks a planner-generated request awaiting review.
	RequestStateDraft RequestState = "draft"
	// RequestStatePurchased marks a request converted into an order.
	RequestStatePurchased RequestState = "purchased"
)

// OriginOrderPoint tags requests generated from order points. Generation
// replaces only drafts with this origin; manually entered requests survive.
const OriginOrderPoint = "order_point"

// PurchaseRequest is a draft procurement need for one product at one
// warehouse.
type PurchaseRequest struct {
	ID                  int64
	ProductID           int64
	WarehouseLocationID int64
	Quantity            float64
	Unit                string
	CompanyID           int64
	// PurchaseDate is the latest day to order so the goods arrive by
	// SupplyDate.
	PurchaseDate time.Time
	SupplyDate   time.Time
	Origin       string
	State        RequestState
}

// ErrRequestNotFound indicates a missing purchase request.
var ErrRequestNotFound = errors.New("purchasing: request not found")
