package shared

import "errors"

var (
	// ErrNotFound indicates a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrPlanningInProgress indicates a concurrent supply run holds the lock.
	ErrPlanningInProgress = errors.New("supply planning already in progress")
)
