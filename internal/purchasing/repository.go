package purchasing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/forecast"
	"github.com/meridian-wms/meridian-wms/internal/masterdata"
	"github.com/meridian-wms/meridian-wms/internal/orderpoint"
	"github.com/meridian-wms/meridian-wms/internal/platform/db"
)

// Repository provides transactional and pool-level access to purchase
// requests.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn on a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, forecaster: forecast.NewService(forecast.NewQueries(tx))})
	})
}

// ListRequests returns purchase requests matching the filter, soonest
// supply date first.
func (r *Repository) ListRequests(ctx context.Context, filter Filter) ([]PurchaseRequest, error) {
	query := `
		SELECT id, product_id, warehouse_location_id, quantity, unit, company_id,
		       purchase_date, supply_date, origin, state
		FROM purchase_requests
		WHERE company_id = $1`
	args := []any{filter.CompanyID}
	if filter.State != "" {
		query += ` AND state = $2`
		args = append(args, filter.State)
	}
	query += ` ORDER BY supply_date, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PurchaseRequest
	for rows.Next() {
		var req PurchaseRequest
		if err := rows.Scan(&req.ID, &req.ProductID, &req.WarehouseLocationID, &req.Quantity,
			&req.Unit, &req.CompanyID, &req.PurchaseDate, &req.SupplyDate, &req.Origin, &req.State); err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

type txRepo struct {
	tx         pgx.Tx
	forecaster *forecast.Service
}

func (t *txRepo) DeleteDraftRequests(ctx context.Context, companyID int64, origin string, warehouseIDs []int64) error {
	query := `
		DELETE FROM purchase_requests
		WHERE company_id = $1 AND origin = $2 AND state = 'draft'`
	args := []any{companyID, origin}
	if len(warehouseIDs) > 0 {
		query += ` AND warehouse_location_id = ANY($3)`
		args = append(args, warehouseIDs)
	}
	_, err := t.tx.Exec(ctx, query, args...)
	return err
}

func (t *txRepo) ListPurchaseOrderPoints(ctx context.Context, companyID int64, warehouseIDs []int64) ([]orderpoint.OrderPoint, error) {
	query := `
		SELECT id, product_id, type,
		       COALESCE(warehouse_location_id, 0), COALESCE(storage_location_id, 0),
		       COALESCE(provisioning_location_id, 0), COALESCE(overflowing_location_id, 0),
		       min_quantity, target_quantity, max_quantity, company_id, unit
		FROM order_points
		WHERE type = 'purchase' AND company_id = $1`
	args := []any{companyID}
	if len(warehouseIDs) > 0 {
		query += ` AND warehouse_location_id = ANY($2)`
		args = append(args, warehouseIDs)
	}
	query += ` ORDER BY id`

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orderpoint.OrderPoint
	for rows.Next() {
		var op orderpoint.OrderPoint
		if err := rows.Scan(&op.ID, &op.ProductID, &op.Type,
			&op.WarehouseLocationID, &op.StorageLocationID,
			&op.ProvisioningLocationID, &op.OverflowingLocationID,
			&op.MinQuantity, &op.TargetQuantity, &op.MaxQuantity,
			&op.CompanyID, &op.Unit); err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

func (t *txRepo) ProductsByID(ctx context.Context, ids []int64) (map[int64]masterdata.Product, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, sku, name, type, consumable, purchasable, default_unit, COALESCE(supplier_lead_time_days, 0)
		FROM products
		WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]masterdata.Product, len(ids))
	for rows.Next() {
		var p masterdata.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Type, &p.Consumable, &p.Purchasable,
			&p.DefaultUnit, &p.SupplierLeadTimeDays); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (t *txRepo) SupplyPeriodDays(ctx context.Context, companyID int64) (int, error) {
	var days int
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(supply_period_days, 0) FROM supply_configs
		WHERE company_id = $1`, companyID).Scan(&days)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return days, err
}

func (t *txRepo) ForecastQuantities(ctx context.Context, locationIDs, productIDs []int64, asOf time.Time, includeChildren bool) (forecast.Quantities, error) {
	return t.forecaster.ForecastQuantities(ctx, locationIDs, productIDs, asOf, includeChildren)
}

func (t *txRepo) InsertRequest(ctx context.Context, req PurchaseRequest) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO purchase_requests
			(product_id, warehouse_location_id, quantity, unit, company_id,
			 purchase_date, supply_date, origin, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		req.ProductID, req.WarehouseLocationID, req.Quantity, req.Unit, req.CompanyID,
		req.PurchaseDate, req.SupplyDate, req.Origin, req.State).Scan(&id)
	return id, err
}
