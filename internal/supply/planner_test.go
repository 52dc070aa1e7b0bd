package supply

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-wms/meridian-wms/internal/forecast"
	"github.com/meridian-wms/meridian-wms/internal/masterdata"
	"github.com/meridian-wms/meridian-wms/internal/orderpoint"
)

func f(v float64) *float64 { return &v }

func day(d int) time.Time {
	return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
}

// memoryWorld implements TxRepository over in-memory state, including a
// naive forecast over base stock moves plus the run's own request moves.
type memoryWorld struct {
	orderPoints []orderpoint.OrderPoint
	provisioned []masterdata.Location
	products    []masterdata.Product
	leadTimes   map[[2]int64]int
	transitID   int64
	children    map[int64][]int64
	baseMoves   []Move

	shipments map[int64]Shipment
	moves     map[int64]Move
	nextID    int64
}

func newMemoryWorld() *memoryWorld {
	return &memoryWorld{
		leadTimes: make(map[[2]int64]int),
		children:  make(map[int64][]int64),
		shipments: make(map[int64]Shipment),
		moves:     make(map[int64]Move),
	}
}

func (w *memoryWorld) id() int64 {
	w.nextID++
	return w.nextID
}

func (w *memoryWorld) DeleteRequests(ctx context.Context) error {
	for id, sh := range w.shipments {
		if sh.State != ShipmentStateRequest {
			continue
		}
		for mvID, mv := range w.moves {
			if mv.ShipmentID == id {
				delete(w.moves, mvID)
			}
		}
		delete(w.shipments, id)
	}
	return nil
}

func (w *memoryWorld) ListInternalOrderPoints(ctx context.Context, companyID int64) ([]orderpoint.OrderPoint, error) {
	var out []orderpoint.OrderPoint
	for _, op := range w.orderPoints {
		if op.Type == orderpoint.TypeInternal {
			out = append(out, op)
		}
	}
	return out, nil
}

func (w *memoryWorld) ListProvisionedLocations(ctx context.Context, companyID int64) ([]masterdata.Location, error) {
	return w.provisioned, nil
}

func (w *memoryWorld) ListStockableProducts(ctx context.Context) ([]masterdata.Product, error) {
	var out []masterdata.Product
	for _, p := range w.products {
		if p.Stockable() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (w *memoryWorld) MaxLeadTimeDays(ctx context.Context) (int, error) {
	max := 0
	for _, days := range w.leadTimes {
		if days > max {
			max = days
		}
	}
	return max, nil
}

func (w *memoryWorld) LeadTimeDays(ctx context.Context, from, to int64) (int, error) {
	return w.leadTimes[[2]int64{from, to}], nil
}

func (w *memoryWorld) TransitLocationID(ctx context.Context, companyID int64) (int64, error) {
	return w.transitID, nil
}

func (w *memoryWorld) subtree(root int64) []int64 {
	out := []int64{root}
	for _, child := range w.children[root] {
		out = append(out, w.subtree(child)...)
	}
	return out
}

func (w *memoryWorld) ForecastQuantities(ctx context.Context, locationIDs, productIDs []int64, asOf time.Time, includeChildren bool) (forecast.Quantities, error) {
	wanted := make(map[int64]bool, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = true
	}
	all := append([]Move{}, w.baseMoves...)
	for _, mv := range w.moves {
		all = append(all, mv)
	}

	out := make(forecast.Quantities)
	for _, root := range locationIDs {
		members := []int64{root}
		if includeChildren {
			members = w.subtree(root)
		}
		inTree := make(map[int64]bool, len(members))
		for _, id := range members {
			inTree[id] = true
		}
		for _, mv := range all {
			if mv.PlannedDate.After(asOf) || !wanted[mv.ProductID] {
				continue
			}
			key := forecast.LocationProduct{LocationID: root, ProductID: mv.ProductID}
			if inTree[mv.ToLocationID] {
				out[key] += mv.Quantity
			}
			if inTree[mv.FromLocationID] {
				out[key] -= mv.Quantity
			}
		}
	}
	return out, nil
}

func (w *memoryWorld) CreateShipment(ctx context.Context, sh Shipment) (int64, error) {
	sh.ID = w.id()
	w.shipments[sh.ID] = sh
	return sh.ID, nil
}

func (w *memoryWorld) GetShipment(ctx context.Context, id int64) (Shipment, error) {
	sh, ok := w.shipments[id]
	if !ok {
		return Shipment{}, ErrShipmentNotFound
	}
	return sh, nil
}

func (w *memoryWorld) InsertMove(ctx context.Context, mv Move) (int64, error) {
	mv.ID = w.id()
	w.moves[mv.ID] = mv
	return mv.ID, nil
}

func (w *memoryWorld) ListMoves(ctx context.Context, shipmentID int64) ([]Move, error) {
	var out []Move
	for _, mv := range w.moves {
		if mv.ShipmentID == shipmentID {
			out = append(out, mv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (w *memoryWorld) UpdateMoveRoute(ctx context.Context, moveID, from, to int64, plannedDate time.Time) error {
	mv := w.moves[moveID]
	mv.FromLocationID = from
	mv.ToLocationID = to
	mv.PlannedDate = plannedDate
	w.moves[moveID] = mv
	return nil
}

func (w *memoryWorld) CollapseTransitRequests(ctx context.Context) error {
	for id, sh := range w.shipments {
		if sh.State != ShipmentStateRequest || sh.TransitLocationID == 0 {
			continue
		}
		for mvID, mv := range w.moves {
			if mv.ShipmentID != id {
				continue
			}
			if mv.FromLocationID == sh.TransitLocationID {
				delete(w.moves, mvID)
				continue
			}
			mv.FromLocationID = sh.FromLocationID
			mv.ToLocationID = sh.ToLocationID
			mv.PlannedDate = sh.PlannedDate
			w.moves[mvID] = mv
		}
		sh.TransitLocationID = 0
		w.shipments[id] = sh
	}
	return nil
}

func (w *memoryWorld) requestShipments() []Shipment {
	var out []Shipment
	for _, sh := range w.shipments {
		if sh.State == ShipmentStateRequest {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *memoryWorld) allMoves() []Move {
	var out []Move
	for _, mv := range w.moves {
		out = append(out, mv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func testPlanner(t *testing.T) *Planner {
	t.Helper()
	return NewPlanner(nil, PlannerConfig{})
}

// Stock of 3 against a min 5 / max 20 policy yields exactly one shipment
// for 17 from the provisioning location.
func TestPlannerSingleStepReplenishment(t *testing.T) {
	world := newMemoryWorld()
	world.orderPoints = []orderpoint.OrderPoint{{
		ID: 1, ProductID: 7, Type: orderpoint.TypeInternal,
		StorageLocationID: 2, ProvisioningLocationID: 1,
		MinQuantity: f(5), TargetQuantity: 10, MaxQuantity: f(20),
		CompanyID: 1, Unit: "pcs",
	}}
	world.baseMoves = []Move{{ProductID: 7, Quantity: 3, FromLocationID: 99, ToLocationID: 2, PlannedDate: day(1)}}

	result, err := testPlanner(t).Generate(context.Background(), world, GenerateParams{Today: day(2), CompanyID: 1})
	require.NoError(t, err)
	require.Len(t, result.ShipmentIDs, 1)
	require.Equal(t, 2, result.Passes)

	shipments := world.requestShipments()
	require.Len(t, shipments, 1)
	require.Equal(t, int64(1), shipments[0].FromLocationID)
	require.Equal(t, int64(2), shipments[0].ToLocationID)
	require.Equal(t, day(2), shipments[0].PlannedDate)

	moves := world.allMoves()
	require.Len(t, moves, 1)
	require.InDelta(t, 17.0, moves[0].Quantity, 0.0001)
	require.Equal(t, "pcs", moves[0].Unit)
}

func TestPlannerNoMoveWhenSufficient(t *testing.T) {
	world := newMemoryWorld()
	world.orderPoints = []orderpoint.OrderPoint{{
		ID: 1, ProductID: 7, Type: orderpoint.TypeInternal,
		StorageLocationID: 2, ProvisioningLocationID: 1,
		MinQuantity: f(5), TargetQuantity: 10, MaxQuantity: f(20),
		CompanyID: 1, Unit: "pcs",
	}}
	world.baseMoves = []Move{{ProductID: 7, Quantity: 5, FromLocationID: 99, ToLocationID: 2, PlannedDate: day(1)}}

	result, err := testPlanner(t).Generate(context.Background(), world, GenerateParams{Today: day(2), CompanyID: 1})
	require.NoError(t, err)
	require.Empty(t, result.ShipmentIDs)
	require.Equal(t, 1, result.Passes)
	require.Empty(t, world.requestShipments())
}

// A refill of L2 from L1 drops L1 below its own min, so the next pass
// refills L1 from the plant and the third pass finds nothing to do.
func TestPlannerChainedConvergence(t *testing.T) {
	world := newMemoryWorld()
	world.orderPoints = []orderpoint.OrderPoint{
		{ID: 1, ProductID: 7, Type: orderpoint.TypeInternal,
			StorageLocationID: 3, ProvisioningLocationID: 2,
			MinQuantity: f(5), TargetQuantity: 8, MaxQuantity: f(10), CompanyID: 1, Unit: "pcs"},
		{ID: 2, ProductID: 7, Type: orderpoint.TypeInternal,
			StorageLocationID: 2, ProvisioningLocationID: 1,
			MinQuantity: f(2), TargetQuantity: 6, MaxQuantity: f(8), CompanyID: 1, Unit: "pcs"},
	}
	world.baseMoves = []Move{{ProductID: 7, Quantity: 6, FromLocationID: 99, ToLocationID: 2, PlannedDate: day(1)}}

	result, err := testPlanner(t).Generate(context.Background(), world, GenerateParams{Today: day(2), CompanyID: 1})
	require.NoError(t, err)
	require.Len(t, result.ShipmentIDs, 2)
	require.Equal(t, 3, result.Passes)

	byRoute := make(map[[2]int64]float64)
	for _, mv := range world.allMoves() {
		byRoute[[2]int64{mv.FromLocationID, mv.ToLocationID}] += mv.Quantity
	}
	require.InDelta(t, 10.0, byRoute[[2]int64{2, 3}], 0.0001)
	require.InDelta(t, 12.0, byRoute[[2]int64{1, 2}], 0.0001)
}

func TestPlannerPassCap(t *testing.T) {
	world := newMemoryWorld()
	world.orderPoints = []orderpoint.OrderPoint{
		{ID: 1, ProductID: 7, Type: orderpoint.TypeInternal,
			StorageLocationID: 3, ProvisioningLocationID: 2,
			MinQuantity: f(5), TargetQuantity: 8, MaxQuantity: f(10), CompanyID: 1, Unit: "pcs"},
		{ID: 2, ProductID: 7, Type: orderpoint.TypeInternal,
			StorageLocationID: 2, ProvisioningLocationID: 1,
			MinQuantity: f(2), TargetQuantity: 6, MaxQuantity: f(8), CompanyID: 1, Unit: "pcs"},
	}
	world.baseMoves = []Move{{ProductID: 7, Quantity: 6, FromLocationID: 99, ToLocationID: 2, PlannedDate: day(1)}}

	planner := NewPlanner(nil, PlannerConfig{MaxPasses: 2})
	_, err := planner.Generate(context.Background(), world, GenerateParams{Today: day(2), CompanyID: 1})
	require.ErrorIs(t, err, ErrNoConvergence)
}

// A clean rerun deletes and regenerates the same requests.
func TestPlannerCleanRerunIsIdempotent(t *testing.T) {
	world := newMemoryWorld()
	world.orderPoints = []orderpoint.OrderPoint{{
		ID: 1, ProductID: 7, Type: orderpoint.TypeInternal,
		StorageLocationID: 2, ProvisioningLocationID: 1,
		MinQuantity: f(5), TargetQuantity: 10, MaxQuantity: f(20),
		CompanyID: 1, Unit: "pcs",
	}}
	world.baseMoves = []Move{{ProductID: 7, Quantity: 3, FromLocationID: 99, ToLocationID: 2, PlannedDate: day(1)}}

	planner := testPlanner(t)
	params := GenerateParams{Today: day(2), CompanyID: 1, Clean: true}
	_, err := planner.Generate(context.Background(), world, params)
	require.NoError(t, err)
	_, err = planner.Generate(context.Background(), world, params)
	require.NoError(t, err)

	require.Len(t, world.requestShipments(), 1)
	moves := world.allMoves()
	require.Len(t, moves, 1)
	require.InDelta(t, 17.0, moves[0].Quantity, 0.0001)
}

// With a lead time and a configured transit location, planning routes the
// shipment through transit, but the collapse leaves exactly one direct
// move at the planned date with the full quantity.
func TestPlannerTransitSplitAndCollapse(t *testing.T) {
	world := newMemoryWorld()
	world.transitID = 50
	world.leadTimes[[2]int64{1, 2}] = 2
	world.orderPoints = []orderpoint.OrderPoint{{
		ID: 1, ProductID: 7, Type: orderpoint.TypeInternal,
		StorageLocationID: 2, ProvisioningLocationID: 1,
		MinQuantity: f(5), TargetQuantity: 10, MaxQuantity: f(20),
		CompanyID: 1, Unit: "pcs",
	}}
	world.baseMoves = []Move{{ProductID: 7, Quantity: 3, FromLocationID: 99, ToLocationID: 2, PlannedDate: day(1)}}

	result, err := testPlanner(t).Generate(context.Background(), world, GenerateParams{Today: day(2), CompanyID: 1})
	require.NoError(t, err)
	require.Len(t, result.ShipmentIDs, 1)

	shipments := world.requestShipments()
	require.Len(t, shipments, 1)
	require.Equal(t, day(2), shipments[0].PlannedDate)
	require.Equal(t, day(2).AddDate(0, 0, -2), shipments[0].PlannedStartDate)

	moves := world.allMoves()
	require.Len(t, moves, 1)
	require.Equal(t, int64(1), moves[0].FromLocationID)
	require.Equal(t, int64(2), moves[0].ToLocationID)
	require.Equal(t, day(2), moves[0].PlannedDate)
	require.InDelta(t, 17.0, moves[0].Quantity, 0.0001)
	for _, mv := range moves {
		require.NotEqual(t, int64(50), mv.FromLocationID)
		require.NotEqual(t, int64(50), mv.ToLocationID)
	}
}

// A location with a provisioning source but no explicit policy is drained
// back to zero for every stockable product.
func TestPlannerProvisioningFallback(t *testing.T) {
	world := newMemoryWorld()
	world.provisioned = []masterdata.Location{{
		ID: 4, Type: masterdata.LocationTypeStorage, ProvisioningLocationID: 1, CompanyID: 1,
	}}
	world.products = []masterdata.Product{
		{ID: 8, Type: masterdata.ProductTypeGoods, DefaultUnit: "kg"},
		{ID: 9, Type: masterdata.ProductTypeGoods, DefaultUnit: "pcs"},
		{ID: 10, Type: masterdata.ProductTypeService, DefaultUnit: "h"},
	}
	// Product 8 is 3 short at location 4; product 9 is flat.
	world.baseMoves = []Move{{ProductID: 8, Quantity: 3, FromLocationID: 4, ToLocationID: 98, PlannedDate: day(1)}}

	result, err := testPlanner(t).Generate(context.Background(), world, GenerateParams{Today: day(2), CompanyID: 1})
	require.NoError(t, err)
	require.Len(t, result.ShipmentIDs, 1)

	moves := world.allMoves()
	require.Len(t, moves, 1)
	require.Equal(t, int64(8), moves[0].ProductID)
	require.Equal(t, int64(1), moves[0].FromLocationID)
	require.Equal(t, int64(4), moves[0].ToLocationID)
	require.InDelta(t, 3.0, moves[0].Quantity, 0.0001)
	require.Equal(t, "kg", moves[0].Unit)
}

// A deficit with no provisioning source anywhere is skipped silently.
func TestPlannerSkipsDeficitWithoutSource(t *testing.T) {
	world := newMemoryWorld()
	world.orderPoints = []orderpoint.OrderPoint{{
		ID: 1, ProductID: 7, Type: orderpoint.TypeInternal,
		StorageLocationID: 2,
		MinQuantity:       f(5), TargetQuantity: 10, MaxQuantity: f(20),
		CompanyID: 1, Unit: "pcs",
	}}

	result, err := testPlanner(t).Generate(context.Background(), world, GenerateParams{Today: day(2), CompanyID: 1})
	require.NoError(t, err)
	require.Empty(t, result.ShipmentIDs)
	require.Empty(t, world.requestShipments())
}
