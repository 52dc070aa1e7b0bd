package forecast

import (
	"context"
	"fmt"
	"time"
)

// RepositoryPort exposes the two queries the projector composes. Both are
// evaluated against the caller's transaction, so quantities reflect moves
// written earlier in the same planning run.
type RepositoryPort interface {
	// DescendantLocationIDs maps each root id to the ids of its subtree
	// (root included).
	DescendantLocationIDs(ctx context.Context, rootIDs []int64) (map[int64][]int64, error)
	// QuantitiesAsOf sums move quantities per (location, product): realized
	// moves effective on/before asOf plus planned-but-unrealized moves
	// dated on/before asOf.
	QuantitiesAsOf(ctx context.Context, locationIDs, productIDs []int64, asOf time.Time) (Quantities, error)
}

// Service computes deterministic forecast quantities as of a future date.
type Service struct {
	repo RepositoryPort
}

// NewService constructs the projector.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ForecastQuantities returns the forecast on-hand quantity for every
// requested (location, product) pair as of asOf. With includeChildren the
// quantity of a location is the sum over its whole subtree, keyed by the
// requested root. Pairs with no moves are absent from the result.
func (s *Service) ForecastQuantities(ctx context.Context, locationIDs, productIDs []int64, asOf time.Time, includeChildren bool) (Quantities, error) {
	if len(locationIDs) == 0 || len(productIDs) == 0 {
		return Quantities{}, nil
	}

	if !includeChildren {
		return s.repo.QuantitiesAsOf(ctx, locationIDs, productIDs, asOf)
	}

	subtrees, err := s.repo.DescendantLocationIDs(ctx, locationIDs)
	if err != nil {
		return nil, fmt.Errorf("forecast: resolve location tree: %w", err)
	}

	// Map every leaf back to the requested roots that contain it.
	leafToRoots := make(map[int64][]int64)
	var leaves []int64
	seen := make(map[int64]bool)
	for root, ids := range subtrees {
		for _, id := range ids {
			leafToRoots[id] = append(leafToRoots[id], root)
			if !seen[id] {
				seen[id] = true
				leaves = append(leaves, id)
			}
		}
	}

	flat, err := s.repo.QuantitiesAsOf(ctx, leaves, productIDs, asOf)
	if err != nil {
		return nil, fmt.Errorf("forecast: quantities as of %s: %w", asOf.Format("2006-01-02"), err)
	}

	rolled := make(Quantities, len(flat))
	for key, qty := range flat {
		for _, root := range leafToRoots[key.LocationID] {
			rolled[LocationProduct{LocationID: root, ProductID: key.ProductID}] += qty
		}
	}
	return rolled, nil
}
