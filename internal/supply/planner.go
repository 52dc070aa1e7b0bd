package supply

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/meridian-wms/meridian-wms/internal/forecast"
	"github.com/meridian-wms/meridian-wms/internal/masterdata"
	"github.com/meridian-wms/meridian-wms/internal/orderpoint"
)

// TxRepository exposes every query and write the planner performs. All
// methods run on the planning transaction, so forecast quantities reflect
// shipments created by earlier days and passes of the same run.
type TxRepository interface {
	DeleteRequests(ctx context.Context) error

	ListInternalOrderPoints(ctx context.Context, companyID int64) ([]orderpoint.OrderPoint, error)
	ListProvisionedLocations(ctx context.Context, companyID int64) ([]masterdata.Location, error)
	ListStockableProducts(ctx context.Context) ([]masterdata.Product, error)

	MaxLeadTimeDays(ctx context.Context) (int, error)
	LeadTimeDays(ctx context.Context, fromLocationID, toLocationID int64) (int, error)
	TransitLocationID(ctx context.Context, companyID int64) (int64, error)

	ForecastQuantities(ctx context.Context, locationIDs, productIDs []int64, asOf time.Time, includeChildren bool) (forecast.Quantities, error)

	CreateShipment(ctx context.Context, sh Shipment) (int64, error)
	GetShipment(ctx context.Context, id int64) (Shipment, error)
	InsertMove(ctx context.Context, mv Move) (int64, error)
	ListMoves(ctx context.Context, shipmentID int64) ([]Move, error)
	UpdateMoveRoute(ctx context.Context, moveID int64, fromLocationID, toLocationID int64, plannedDate time.Time) error

	// CollapseTransitRequests deletes every request move originating at
	// its shipment's transit location and re-points the remaining request
	// moves to the direct source/destination pair and planned date.
	CollapseTransitRequests(ctx context.Context) error
}

// PlannerConfig tunes the simulation.
type PlannerConfig struct {
	// MaxPasses caps the fixed-point loop.
	MaxPasses int
	// SimulateAllProducts forces the full product universe even without a
	// provisioning fallback location.
	SimulateAllProducts bool
}

// Planner runs the day-stepped replenishment simulation.
type Planner struct {
	logger *slog.Logger
	cfg    PlannerConfig
}

// NewPlanner constructs the planner.
func NewPlanner(logger *slog.Logger, cfg PlannerConfig) *Planner {
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = 16
	}
	return &Planner{logger: logger, cfg: cfg}
}

// GenerateParams describes one top-level planner invocation.
type GenerateParams struct {
	Today     time.Time
	CompanyID int64
	// Clean removes all prior request shipments before the first pass.
	Clean bool
}

// GenerateResult summarises a completed run.
type GenerateResult struct {
	ShipmentIDs []int64
	Passes      int
}

// Generate walks the lead-time horizon day by day, creating request
// shipments for every policy deficit, and repeats until a pass creates no
// new shipments. The caller supplies the transaction; every write of the
// run commits or rolls back together.
func (p *Planner) Generate(ctx context.Context, tx TxRepository, params GenerateParams) (GenerateResult, error) {
	if params.Today.IsZero() {
		params.Today = time.Now().UTC().Truncate(24 * time.Hour)
	}

	var result GenerateResult
	clean := params.Clean
	for {
		if result.Passes >= p.cfg.MaxPasses {
			return result, fmt.Errorf("%w after %d passes", ErrNoConvergence, result.Passes)
		}
		created, err := p.runPass(ctx, tx, params, clean)
		if err != nil {
			return result, err
		}
		result.Passes++
		clean = false
		if len(created) == 0 {
			break
		}
		result.ShipmentIDs = append(result.ShipmentIDs, created...)
		// Route the new shipments through transit so the next pass sees
		// accurately dated legs feeding downstream locations.
		if err := p.splitTransit(ctx, tx, created); err != nil {
			return result, err
		}
	}

	// Transit legs exist only to date the passes; reduce every request
	// back to a single direct move.
	if err := tx.CollapseTransitRequests(ctx); err != nil {
		return result, fmt.Errorf("supply: collapse transit: %w", err)
	}

	if p.logger != nil {
		p.logger.Info("replenishment planning complete",
			slog.Int("shipments", len(result.ShipmentIDs)),
			slog.Int("passes", result.Passes))
	}
	return result, nil
}

// policyKey indexes explicit policies by monitored storage location.
type policyKey struct {
	locationID int64
	productID  int64
}

func (p *Planner) runPass(ctx context.Context, tx TxRepository, params GenerateParams, clean bool) ([]int64, error) {
	if clean {
		if err := tx.DeleteRequests(ctx); err != nil {
			return nil, fmt.Errorf("supply: delete prior requests: %w", err)
		}
	}

	ops, err := tx.ListInternalOrderPoints(ctx, params.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("supply: load order points: %w", err)
	}

	policies := make(map[policyKey]orderpoint.OrderPoint, len(ops))
	fallbacks := make(map[int64]int64) // monitored location -> provisioning source
	unitByProduct := make(map[int64]string)
	opProductIDs := make(map[int64]bool)
	for _, op := range ops {
		policies[policyKey{op.StorageLocationID, op.ProductID}] = op
		if _, ok := fallbacks[op.StorageLocationID]; !ok {
			fallbacks[op.StorageLocationID] = 0
		}
		unitByProduct[op.ProductID] = op.Unit
		opProductIDs[op.ProductID] = true
	}

	provisioned, err := tx.ListProvisionedLocations(ctx, params.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("supply: load provisioned locations: %w", err)
	}
	for _, loc := range provisioned {
		fallbacks[loc.ID] = loc.ProvisioningLocationID
	}

	// With a provisioning fallback in play every stockable product can
	// overflow into planning; otherwise only products with an explicit
	// policy matter. Deliberate completeness/performance trade.
	var productIDs []int64
	if len(provisioned) > 0 || p.cfg.SimulateAllProducts {
		products, err := tx.ListStockableProducts(ctx)
		if err != nil {
			return nil, fmt.Errorf("supply: load products: %w", err)
		}
		for _, product := range products {
			productIDs = append(productIDs, product.ID)
			if _, ok := unitByProduct[product.ID]; !ok {
				unitByProduct[product.ID] = product.DefaultUnit
			}
		}
	} else {
		for id := range opProductIDs {
			productIDs = append(productIDs, id)
		}
	}
	sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })

	locationIDs := make([]int64, 0, len(fallbacks))
	for id := range fallbacks {
		locationIDs = append(locationIDs, id)
	}
	sort.Slice(locationIDs, func(i, j int) bool { return locationIDs[i] < locationIDs[j] })

	if len(locationIDs) == 0 || len(productIDs) == 0 {
		return nil, nil
	}

	maxLead, err := tx.MaxLeadTimeDays(ctx)
	if err != nil {
		return nil, fmt.Errorf("supply: max lead time: %w", err)
	}
	transitID, err := tx.TransitLocationID(ctx, params.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("supply: transit location: %w", err)
	}

	var createdIDs []int64
	for offset := 0; offset <= maxLead; offset++ {
		date := params.Today.AddDate(0, 0, offset)

		quantities, err := tx.ForecastQuantities(ctx, locationIDs, productIDs, date, true)
		if err != nil {
			return nil, fmt.Errorf("supply: forecast %s: %w", date.Format("2006-01-02"), err)
		}

		plan := p.planDay(locationIDs, productIDs, policies, fallbacks, unitByProduct, quantities)
		ids, err := p.persistDay(ctx, tx, plan, date, transitID, params.CompanyID)
		if err != nil {
			return nil, err
		}
		createdIDs = append(createdIDs, ids...)
	}
	return createdIDs, nil
}

// planDay applies the order point thresholds for one simulated day and
// returns the moves needed, ordered deterministically.
func (p *Planner) planDay(locationIDs, productIDs []int64, policies map[policyKey]orderpoint.OrderPoint, fallbacks map[int64]int64, unitByProduct map[int64]string, quantities forecast.Quantities) []plannedMove {
	var plan []plannedMove
	for _, locationID := range locationIDs {
		for _, productID := range productIDs {
			var minQty, maxQty float64
			var provisioningID int64
			if op, ok := policies[policyKey{locationID, productID}]; ok {
				if op.MinQuantity == nil {
					continue
				}
				minQty = *op.MinQuantity
				maxQty = op.TargetQuantity
				if op.MaxQuantity != nil {
					maxQty = *op.MaxQuantity
				}
				provisioningID = op.ProvisioningLocationID
			} else if fallbacks[locationID] != 0 {
				// Implicit location-level policy: drain to zero through
				// the declared provisioning source.
				minQty, maxQty = 0, 0
				provisioningID = fallbacks[locationID]
			} else {
				continue
			}
			if provisioningID == 0 {
				// Deficit with no source to act on: leave unresolved.
				continue
			}
			qty := quantities.Get(locationID, productID)
			if qty < minQty {
				plan = append(plan, plannedMove{
					fromLocationID: provisioningID,
					toLocationID:   locationID,
					productID:      productID,
					quantity:       maxQty - qty,
					unit:           unitByProduct[productID],
				})
			}
		}
	}
	return plan
}

// persistDay groups one day's moves by location pair and writes one
// request shipment per group. Persisting per day lets the next simulated
// day's forecast include today's decisions.
func (p *Planner) persistDay(ctx context.Context, tx TxRepository, plan []plannedMove, date time.Time, transitID, companyID int64) ([]int64, error) {
	if len(plan) == 0 {
		return nil, nil
	}

	type pair struct{ fromID, toID int64 }
	groups := make(map[pair][]plannedMove)
	var order []pair
	for _, mv := range plan {
		key := pair{mv.fromLocationID, mv.toLocationID}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], mv)
	}

	var ids []int64
	for _, key := range order {
		leadDays, err := tx.LeadTimeDays(ctx, key.fromID, key.toID)
		if err != nil {
			return nil, fmt.Errorf("supply: lead time %d->%d: %w", key.fromID, key.toID, err)
		}
		start := date.AddDate(0, 0, -leadDays)
		sh := Shipment{
			FromLocationID:   key.fromID,
			ToLocationID:     key.toID,
			PlannedDate:      date,
			PlannedStartDate: start,
			State:            ShipmentStateRequest,
			CompanyID:        companyID,
		}
		if transitID != 0 && leadDays > 0 && key.fromID != transitID && key.toID != transitID {
			sh.TransitLocationID = transitID
		}
		shipmentID, err := tx.CreateShipment(ctx, sh)
		if err != nil {
			return nil, fmt.Errorf("supply: create shipment: %w", err)
		}
		for _, mv := range groups[key] {
			_, err := tx.InsertMove(ctx, Move{
				ShipmentID:     shipmentID,
				ProductID:      mv.productID,
				Quantity:       mv.quantity,
				Unit:           mv.unit,
				FromLocationID: key.fromID,
				ToLocationID:   key.toID,
				PlannedDate:    date,
				CompanyID:      companyID,
			})
			if err != nil {
				return nil, fmt.Errorf("supply: create move: %w", err)
			}
		}
		ids = append(ids, shipmentID)
	}
	return ids, nil
}

// splitTransit reroutes the moves of transit-routed shipments through the
// transit location: an early leg dated at the planned start and a final
// leg dated at the planned date.
func (p *Planner) splitTransit(ctx context.Context, tx TxRepository, shipmentIDs []int64) error {
	for _, shipmentID := range shipmentIDs {
		sh, err := tx.GetShipment(ctx, shipmentID)
		if err != nil {
			return fmt.Errorf("supply: load shipment %d: %w", shipmentID, err)
		}
		if sh.TransitLocationID == 0 {
			continue
		}
		moves, err := tx.ListMoves(ctx, shipmentID)
		if err != nil {
			return fmt.Errorf("supply: list moves: %w", err)
		}
		for _, mv := range moves {
			if mv.FromLocationID == sh.TransitLocationID {
				continue
			}
			_, err := tx.InsertMove(ctx, Move{
				ShipmentID:     sh.ID,
				ProductID:      mv.ProductID,
				Quantity:       mv.Quantity,
				Unit:           mv.Unit,
				FromLocationID: sh.FromLocationID,
				ToLocationID:   sh.TransitLocationID,
				PlannedDate:    sh.PlannedStartDate,
				CompanyID:      mv.CompanyID,
			})
			if err != nil {
				return fmt.Errorf("supply: create transit leg: %w", err)
			}
			if err := tx.UpdateMoveRoute(ctx, mv.ID, sh.TransitLocationID, sh.ToLocationID, sh.PlannedDate); err != nil {
				return fmt.Errorf("supply: reroute move %d: %w", mv.ID, err)
			}
		}
	}
	return nil
}
