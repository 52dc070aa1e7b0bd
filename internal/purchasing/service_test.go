package purchasing

import (
	"context"
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

type memoryRepo struct {
	orderPoints []orderpoint.OrderPoint
	products    map[int64]masterdata.Product
	periodDays  int
	quantities  forecast.Quantities

	requests []PurchaseRequest
	nextID   int64
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) ListRequests(ctx context.Context, filter Filter) ([]PurchaseRequest, error) {
	var out []PurchaseRequest
	for _, req := range r.requests {
		if filter.State == "" || req.State == filter.State {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r *memoryRepo) DeleteDraftRequests(ctx context.Context, companyID int64, origin string, warehouseIDs []int64) error {
	narrowed := make(map[int64]bool, len(warehouseIDs))
	for _, id := range warehouseIDs {
		narrowed[id] = true
	}
	kept := r.requests[:0]
	for _, req := range r.requests {
		drop := req.State == RequestStateDraft && req.Origin == origin &&
			(len(warehouseIDs) == 0 || narrowed[req.WarehouseLocationID])
		if !drop {
			kept = append(kept, req)
		}
	}
	r.requests = kept
	return nil
}

func (r *memoryRepo) ListPurchaseOrderPoints(ctx context.Context, companyID int64, warehouseIDs []int64) ([]orderpoint.OrderPoint, error) {
	narrowed := make(map[int64]bool, len(warehouseIDs))
	for _, id := range warehouseIDs {
		narrowed[id] = true
	}
	var out []orderpoint.OrderPoint
	for _, op := range r.orderPoints {
		if op.Type != orderpoint.TypePurchase {
			continue
		}
		if len(warehouseIDs) > 0 && !narrowed[op.WarehouseLocationID] {
			continue
		}
		out = append(out, op)
	}
	return out, nil
}

func (r *memoryRepo) ProductsByID(ctx context.Context, ids []int64) (map[int64]masterdata.Product, error) {
	out := make(map[int64]masterdata.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r *memoryRepo) SupplyPeriodDays(ctx context.Context, companyID int64) (int, error) {
	return r.periodDays, nil
}

func (r *memoryRepo) ForecastQuantities(ctx context.Context, locationIDs, productIDs []int64, asOf time.Time, includeChildren bool) (forecast.Quantities, error) {
	return r.quantities, nil
}

func (r *memoryRepo) InsertRequest(ctx context.Context, req PurchaseRequest) (int64, error) {
	r.nextID++
	req.ID = r.nextID
	r.requests = append(r.requests, req)
	return req.ID, nil
}

func purchaseOP(productID, warehouseID int64, min, target float64) orderpoint.OrderPoint {
	return orderpoint.OrderPoint{
		ID: productID, ProductID: productID, Type: orderpoint.TypePurchase,
		WarehouseLocationID: warehouseID,
		MinQuantity:         f(min), TargetQuantity: target,
		CompanyID: 1, Unit: "pcs",
	}
}

func TestGenerateRequestBelowMin(t *testing.T) {
	repo := &memoryRepo{
		orderPoints: []orderpoint.OrderPoint{purchaseOP(7, 10, 5, 20)},
		products: map[int64]masterdata.Product{
			7: {ID: 7, Type: masterdata.ProductTypeGoods, Purchasable: true, SupplierLeadTimeDays: 3},
		},
		quantities: forecast.Quantities{{LocationID: 10, ProductID: 7}: 4},
	}
	svc := NewService(repo, nil)

	created, err := svc.GenerateRequests(context.Background(), 1, nil, day(1))
	require.NoError(t, err)
	require.Equal(t, 1, created)

	require.Len(t, repo.requests, 1)
	req := repo.requests[0]
	require.InDelta(t, 16.0, req.Quantity, 0.0001)
	require.Equal(t, day(4), req.SupplyDate)
	require.Equal(t, day(1), req.PurchaseDate)
	require.Equal(t, OriginOrderPoint, req.Origin)
	require.Equal(t, RequestStateDraft, req.State)
}

func TestGenerateSkipsSufficientStock(t *testing.T) {
	repo := &memoryRepo{
		orderPoints: []orderpoint.OrderPoint{purchaseOP(7, 10, 5, 20)},
		products: map[int64]masterdata.Product{
			7: {ID: 7, Type: masterdata.ProductTypeGoods, Purchasable: true, SupplierLeadTimeDays: 3},
		},
		quantities: forecast.Quantities{{LocationID: 10, ProductID: 7}: 5},
	}
	svc := NewService(repo, nil)

	created, err := svc.GenerateRequests(context.Background(), 1, nil, day(1))
	require.NoError(t, err)
	require.Zero(t, created)
	require.Empty(t, repo.requests)
}

func TestGenerateReplacesPriorDrafts(t *testing.T) {
	repo := &memoryRepo{
		orderPoints: []orderpoint.OrderPoint{purchaseOP(7, 10, 5, 20)},
		products: map[int64]masterdata.Product{
			7: {ID: 7, Type: masterdata.ProductTypeGoods, Purchasable: true, SupplierLeadTimeDays: 3},
		},
		quantities: forecast.Quantities{{LocationID: 10, ProductID: 7}: 4},
		requests: []PurchaseRequest{
			{ID: 100, ProductID: 7, WarehouseLocationID: 10, Quantity: 99,
				Origin: OriginOrderPoint, State: RequestStateDraft},
			{ID: 101, ProductID: 8, WarehouseLocationID: 10, Quantity: 1,
				Origin: "manual", State: RequestStateDraft},
		},
		nextID: 101,
	}
	svc := NewService(repo, nil)

	created, err := svc.GenerateRequests(context.Background(), 1, nil, day(1))
	require.NoError(t, err)
	require.Equal(t, 1, created)

	require.Len(t, repo.requests, 2)
	require.Equal(t, "manual", repo.requests[0].Origin)
	require.InDelta(t, 16.0, repo.requests[1].Quantity, 0.0001)
}

func TestGenerateSkipsNonPurchasable(t *testing.T) {
	repo := &memoryRepo{
		orderPoints: []orderpoint.OrderPoint{purchaseOP(7, 10, 5, 20)},
		products: map[int64]masterdata.Product{
			7: {ID: 7, Type: masterdata.ProductTypeGoods, Purchasable: false},
		},
		quantities: forecast.Quantities{{LocationID: 10, ProductID: 7}: 0},
	}
	svc := NewService(repo, nil)

	created, err := svc.GenerateRequests(context.Background(), 1, nil, day(1))
	require.NoError(t, err)
	require.Zero(t, created)
}

func TestGenerateUsesSupplyPeriodWithoutLeadTime(t *testing.T) {
	repo := &memoryRepo{
		orderPoints: []orderpoint.OrderPoint{purchaseOP(7, 10, 5, 20)},
		products: map[int64]masterdata.Product{
			7: {ID: 7, Type: masterdata.ProductTypeGoods, Purchasable: true},
		},
		periodDays: 7,
		quantities: forecast.Quantities{{LocationID: 10, ProductID: 7}: 0},
	}
	svc := NewService(repo, nil)

	created, err := svc.GenerateRequests(context.Background(), 1, nil, day(1))
	require.NoError(t, err)
	require.Equal(t, 1, created)
	require.Equal(t, day(8), repo.requests[0].SupplyDate)
	require.Equal(t, day(8), repo.requests[0].PurchaseDate)
}

func TestGenerateWarehouseSubset(t *testing.T) {
	repo := &memoryRepo{
		orderPoints: []orderpoint.OrderPoint{
			purchaseOP(7, 10, 5, 20),
			purchaseOP(8, 11, 5, 20),
		},
		products: map[int64]masterdata.Product{
			7: {ID: 7, Type: masterdata.ProductTypeGoods, Purchasable: true},
			8: {ID: 8, Type: masterdata.ProductTypeGoods, Purchasable: true},
		},
		quantities: forecast.Quantities{},
	}
	svc := NewService(repo, nil)

	created, err := svc.GenerateRequests(context.Background(), 1, []int64{11}, day(1))
	require.NoError(t, err)
	require.Equal(t, 1, created)
	require.Equal(t, int64(11), repo.requests[0].WarehouseLocationID)
}
