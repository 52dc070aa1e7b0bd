package orderpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-wms/meridian-wms/internal/masterdata"
)

type memoryRepo struct {
	points map[int64]OrderPoint
	nextID int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{points: make(map[int64]OrderPoint)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (OrderPoint, error) {
	if op, ok := r.points[id]; ok {
		return op, nil
	}
	return OrderPoint{}, ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, filter Filter) ([]OrderPoint, error) {
	var out []OrderPoint
	for _, op := range r.points {
		if filter.Type != "" && op.Type != filter.Type {
			continue
		}
		if filter.CompanyID != 0 && op.CompanyID != filter.CompanyID {
			continue
		}
		if len(filter.LocationIDs) > 0 && !containsID(filter.LocationIDs, op.MonitoredLocationID()) {
			continue
		}
		out = append(out, op)
	}
	return out, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (tx *memoryTx) Insert(ctx context.Context, op OrderPoint) (int64, error) {
	tx.repo.nextID++
	op.ID = tx.repo.nextID
	tx.repo.points[op.ID] = op
	return op.ID, nil
}

func (tx *memoryTx) Update(ctx context.Context, op OrderPoint) error {
	if _, ok := tx.repo.points[op.ID]; !ok {
		return ErrNotFound
	}
	tx.repo.points[op.ID] = op
	return nil
}

func (tx *memoryTx) Delete(ctx context.Context, id int64) error {
	if _, ok := tx.repo.points[id]; !ok {
		return ErrNotFound
	}
	delete(tx.repo.points, id)
	return nil
}

func (tx *memoryTx) HasDuplicate(ctx context.Context, op OrderPoint, excludeIDs []int64) (bool, error) {
	for _, other := range tx.repo.points {
		if containsID(excludeIDs, other.ID) {
			continue
		}
		if other.Type == op.Type && other.ProductID == op.ProductID && other.CompanyID == op.CompanyID && other.MonitoredLocationID() == op.MonitoredLocationID() {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) HasOpposite(ctx context.Context, productID, companyID, storageLocationID, sideLocationID int64, side Rule, excludeIDs []int64) (bool, error) {
	for _, other := range tx.repo.points {
		if containsID(excludeIDs, other.ID) || other.Type != TypeInternal {
			continue
		}
		if other.ProductID != productID || other.CompanyID != companyID {
			continue
		}
		otherSide := other.ProvisioningLocationID
		if side == RuleConcurrentOverflowing {
			otherSide = other.OverflowingLocationID
		}
		if other.StorageLocationID == sideLocationID && otherSide == storageLocationID {
			return true, nil
		}
	}
	return false, nil
}

type productStub struct {
	products map[int64]masterdata.Product
}

func (p productStub) GetProduct(ctx context.Context, id int64) (masterdata.Product, error) {
	if prod, ok := p.products[id]; ok {
		return prod, nil
	}
	return masterdata.Product{}, masterdata.ErrProductNotFound
}

func newTestService(repo *memoryRepo) *Service {
	products := productStub{products: map[int64]masterdata.Product{
		1: {ID: 1, SKU: "WIDGET", Type: masterdata.ProductTypeGoods, Purchasable: true, DefaultUnit: "pcs"},
		2: {ID: 2, SKU: "GADGET", Type: masterdata.ProductTypeGoods, Purchasable: false, DefaultUnit: "pcs"},
	}}
	return NewService(repo, products, nil, ServiceConfig{DefaultCompanyID: 1})
}

func f(v float64) *float64 { return &v }

func TestCreateDefaults(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	op, err := svc.Create(ctx, Input{ProductID: 1, WarehouseLocationID: 10, MinQuantity: f(5), TargetQuantity: 8})
	require.NoError(t, err)
	require.Equal(t, TypePurchase, op.Type)
	require.Equal(t, int64(1), op.CompanyID)
	require.Equal(t, "pcs", op.Unit)
	require.Equal(t, int64(10), op.MonitoredLocationID())
}

func TestUniquenessClash(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Input{ProductID: 1, WarehouseLocationID: 10, MinQuantity: f(5), TargetQuantity: 8})
	require.NoError(t, err)

	_, err = svc.Create(ctx, Input{ProductID: 1, WarehouseLocationID: 10, MinQuantity: f(1), TargetQuantity: 2})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, RuleUnique, verr.Rule)
}

func TestUpdateDoesNotClashWithItself(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	op, err := svc.Create(ctx, Input{ProductID: 1, WarehouseLocationID: 10, MinQuantity: f(5), TargetQuantity: 8})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, op.ID, Input{ProductID: 1, WarehouseLocationID: 10, MinQuantity: f(5), TargetQuantity: 9})
	require.NoError(t, err)
	require.Equal(t, 9.0, updated.TargetQuantity)
}

func TestConcurrentProvisioningCycle(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	// A: storage 20 provisioned from 21.
	_, err := svc.Create(ctx, Input{ProductID: 1, Type: TypeInternal, StorageLocationID: 20, ProvisioningLocationID: 21, MinQuantity: f(5), TargetQuantity: 5, MaxQuantity: f(10), OverflowingLocationID: 22})
	require.NoError(t, err)

	// B: storage 21 provisioned from 20 would bounce stock back and forth.
	_, err = svc.Create(ctx, Input{ProductID: 1, Type: TypeInternal, StorageLocationID: 21, ProvisioningLocationID: 20, MinQuantity: f(5), TargetQuantity: 5, MaxQuantity: f(10), OverflowingLocationID: 22})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, RuleConcurrentProvisioning, verr.Rule)
}

func TestConcurrentOverflowingCycle(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Input{ProductID: 1, Type: TypeInternal, StorageLocationID: 20, OverflowingLocationID: 21, TargetQuantity: 5, MaxQuantity: f(10)})
	require.NoError(t, err)

	_, err = svc.Create(ctx, Input{ProductID: 1, Type: TypeInternal, StorageLocationID: 21, OverflowingLocationID: 20, TargetQuantity: 5, MaxQuantity: f(10)})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, RuleConcurrentOverflowing, verr.Rule)
}

func TestBoundsOrdering(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Input{ProductID: 1, WarehouseLocationID: 10, MinQuantity: f(10), TargetQuantity: 5})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, RuleBounds, verr.Rule)

	_, err = svc.Create(ctx, Input{ProductID: 1, Type: TypeInternal, StorageLocationID: 20, ProvisioningLocationID: 21, OverflowingLocationID: 22, MinQuantity: f(5), TargetQuantity: 8, MaxQuantity: f(10)})
	require.NoError(t, err)

	_, err = svc.Create(ctx, Input{ProductID: 1, Type: TypeInternal, StorageLocationID: 30, ProvisioningLocationID: 31, OverflowingLocationID: 32, MinQuantity: f(5), TargetQuantity: 12, MaxQuantity: f(10)})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, RuleBounds, verr.Rule)
}

func TestConditionalLocationRequirements(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Input{ProductID: 1, Type: TypeInternal, StorageLocationID: 20, MinQuantity: f(5), TargetQuantity: 5})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, RuleFields, verr.Rule)

	_, err = svc.Create(ctx, Input{ProductID: 1, Type: TypeInternal, StorageLocationID: 20, TargetQuantity: 5, MaxQuantity: f(10)})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, RuleFields, verr.Rule)

	// Non-purchasable product cannot have a purchase order point.
	_, err = svc.Create(ctx, Input{ProductID: 2, WarehouseLocationID: 10, MinQuantity: f(1), TargetQuantity: 2})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, RuleFields, verr.Rule)
}

func TestReverseLocationLookup(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, Input{ProductID: 1, Type: TypeInternal, StorageLocationID: 20, ProvisioningLocationID: 21, MinQuantity: f(5), TargetQuantity: 5, MaxQuantity: f(20)})
	require.NoError(t, err)

	found, err := svc.List(ctx, Filter{LocationIDs: []int64{20}})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, created.ID, found[0].ID)

	none, err := svc.List(ctx, Filter{LocationIDs: []int64{21}})
	require.NoError(t, err)
	require.Empty(t, none)
}
