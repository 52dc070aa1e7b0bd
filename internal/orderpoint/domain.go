package orderpoint

import (
	"errors"
	"fmt"
)

// Type selects which replenishment path an order point drives.
type Type string

const (
	// TypePurchase monitors a warehouse and feeds purchase requests.
	TypePurchase Type = "purchase"
	// TypeInternal monitors a storage location and feeds internal shipments.
	TypeInternal Type = "internal"
)

// OrderPoint is a reorder policy for a product at a location. Min and max
// are optional; target is always required and only meaningful for the
// purchase path.
type OrderPoint struct {
	ID        int64
	ProductID int64
	Type      Type

	// WarehouseLocationID is set for purchase order points.
	WarehouseLocationID int64
	// StorageLocationID is set for internal order points.
	StorageLocationID int64
	// ProvisioningLocationID is the replenishment source, required for
	// internal order points with a min quantity.
	ProvisioningLocationID int64
	// OverflowingLocationID absorbs stock above max, required for
	// internal order points with a max quantity.
	OverflowingLocationID int64

	MinQuantity    *float64
	TargetQuantity float64
	MaxQuantity    *float64

	CompanyID int64
	Unit      string
}

// MonitoredLocationID returns the location whose stock level the policy
// watches: the warehouse for purchase points, the storage location for
// internal ones.
func (op OrderPoint) MonitoredLocationID() int64 {
	switch op.Type {
	case TypePurchase:
		return op.WarehouseLocationID
	case TypeInternal:
		return op.StorageLocationID
	}
	return 0
}

// Rule identifies a validation rule an order point can violate.
type Rule string

const (
	RuleFields                 Rule = "fields"
	RuleBounds                 Rule = "bounds"
	RuleUnique                 Rule = "unique"
	RuleConcurrentProvisioning Rule = "concurrent_provisioning"
	RuleConcurrentOverflowing  Rule = "concurrent_overflowing"
)

// ValidationError reports a rule violation. It names the specific conflict
// so the caller can correct the offending record.
type ValidationError struct {
	Rule    Rule
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("order point: %s: %s", e.Rule, e.Message)
}

func violation(rule Rule, format string, args ...any) *ValidationError {
	return &ValidationError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound indicates a missing order point.
var ErrNotFound = errors.New("order point not found")
