package supply

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

// Repository provides transactional access to shipments and moves plus
// pool-level reads for the HTTP surface.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn on a repeatable-read transaction so the whole planning
// run observes one consistent snapshot and commits atomically.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, forecaster: forecast.NewService(forecast.NewQueries(tx))})
	})
}

const shipmentColumns = `id, from_location_id, to_location_id, planned_date, planned_start_date,
	COALESCE(transit_location_id, 0), state, company_id`

func scanShipment(row pgx.Row) (Shipment, error) {
	var sh Shipment
	err := row.Scan(&sh.ID, &sh.FromLocationID, &sh.ToLocationID, &sh.PlannedDate,
		&sh.PlannedStartDate, &sh.TransitLocationID, &sh.State, &sh.CompanyID)
	return sh, err
}

// ShipmentFilter narrows shipment listings.
type ShipmentFilter struct {
	CompanyID int64
	State     ShipmentState
}

// ListShipments returns shipments newest-planned first.
func (r *Repository) ListShipments(ctx context.Context, filter ShipmentFilter) ([]Shipment, error) {
	query := `SELECT ` + shipmentColumns + ` FROM internal_shipments WHERE company_id = $1`
	args := []any{filter.CompanyID}
	if filter.State != "" {
		query += ` AND state = $2`
		args = append(args, filter.State)
	}
	query += ` ORDER BY planned_date DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

// ShipmentMoves returns the moves of one shipment.
func (r *Repository) ShipmentMoves(ctx context.Context, shipmentID int64) ([]Move, error) {
	return listMoves(ctx, r.pool, shipmentID)
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listMoves(ctx context.Context, q queryer, shipmentID int64) ([]Move, error) {
	rows, err := q.Query(ctx, `
		SELECT id, shipment_id, product_id, quantity, unit,
		       from_location_id, to_location_id, planned_date, company_id
		FROM stock_moves
		WHERE shipment_id = $1
		ORDER BY id`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Move
	for rows.Next() {
		var mv Move
		if err := rows.Scan(&mv.ID, &mv.ShipmentID, &mv.ProductID, &mv.Quantity, &mv.Unit,
			&mv.FromLocationID, &mv.ToLocationID, &mv.PlannedDate, &mv.CompanyID); err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, rows.Err()
}

// OverdueMoveCount counts draft moves planned before the cutoff between
// the given location types. Used for the supplier/customer backlog checks
// before a planning run.
func (r *Repository) OverdueMoveCount(ctx context.Context, fromType, toType masterdata.LocationType, before time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM stock_moves m
		JOIN stock_locations f ON f.id = m.from_location_id
		JOIN stock_locations t ON t.id = m.to_location_id
		WHERE m.state = 'draft' AND m.planned_date < $3
		  AND f.type = $1 AND t.type = $2`, fromType, toType, before).Scan(&count)
	return count, err
}

// txRepo implements TxRepository on a pgx transaction.
type txRepo struct {
	tx         pgx.Tx
	forecaster *forecast.Service
}

func (t *txRepo) DeleteRequests(ctx context.Context) error {
	if _, err := t.tx.Exec(ctx, `
		DELETE FROM stock_moves m
		USING internal_shipments s
		WHERE m.shipment_id = s.id AND s.state = 'request'`); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM internal_shipments WHERE state = 'request'`)
	return err
}

func (t *txRepo) ListInternalOrderPoints(ctx context.Context, companyID int64) ([]orderpoint.OrderPoint, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, product_id, type,
		       COALESCE(warehouse_location_id, 0), COALESCE(storage_location_id, 0),
		       COALESCE(provisioning_location_id, 0), COALESCE(overflowing_location_id, 0),
		       min_quantity, target_quantity, max_quantity, company_id, unit
		FROM order_points
		WHERE type = 'internal' AND company_id = $1
		ORDER BY id`, companyID)
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

func (t *txRepo) ListProvisionedLocations(ctx context.Context, companyID int64) ([]masterdata.Location, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, code, name, type, COALESCE(parent_id, 0),
		       COALESCE(provisioning_location_id, 0), COALESCE(overflowing_location_id, 0), company_id
		FROM stock_locations
		WHERE provisioning_location_id IS NOT NULL AND company_id = $1
		ORDER BY id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []masterdata.Location
	for rows.Next() {
		var loc masterdata.Location
		if err := rows.Scan(&loc.ID, &loc.Code, &loc.Name, &loc.Type, &loc.ParentID,
			&loc.ProvisioningLocationID, &loc.OverflowingLocationID, &loc.CompanyID); err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

func (t *txRepo) ListStockableProducts(ctx context.Context) ([]masterdata.Product, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, sku, name, type, consumable, purchasable, default_unit, COALESCE(supplier_lead_time_days, 0)
		FROM products
		WHERE type IN ('goods', 'assets') AND NOT consumable
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []masterdata.Product
	for rows.Next() {
		var p masterdata.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Type, &p.Consumable, &p.Purchasable,
			&p.DefaultUnit, &p.SupplierLeadTimeDays); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *txRepo) MaxLeadTimeDays(ctx context.Context) (int, error) {
	var days int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX(lead_time_days), 0) FROM location_lead_times`).Scan(&days)
	return days, err
}

func (t *txRepo) LeadTimeDays(ctx context.Context, fromLocationID, toLocationID int64) (int, error) {
	var days int
	err := t.tx.QueryRow(ctx, `
		SELECT lead_time_days FROM location_lead_times
		WHERE from_location_id = $1 AND to_location_id = $2`, fromLocationID, toLocationID).Scan(&days)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return days, err
}

func (t *txRepo) TransitLocationID(ctx context.Context, companyID int64) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(transit_location_id, 0) FROM supply_configs
		WHERE company_id = $1`, companyID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

func (t *txRepo) ForecastQuantities(ctx context.Context, locationIDs, productIDs []int64, asOf time.Time, includeChildren bool) (forecast.Quantities, error) {
	return t.forecaster.ForecastQuantities(ctx, locationIDs, productIDs, asOf, includeChildren)
}

func (t *txRepo) CreateShipment(ctx context.Context, sh Shipment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO internal_shipments
			(from_location_id, to_location_id, planned_date, planned_start_date,
			 transit_location_id, state, company_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, 0), $6, $7)
		RETURNING id`,
		sh.FromLocationID, sh.ToLocationID, sh.PlannedDate, sh.PlannedStartDate,
		sh.TransitLocationID, sh.State, sh.CompanyID).Scan(&id)
	return id, err
}

func (t *txRepo) GetShipment(ctx context.Context, id int64) (Shipment, error) {
	sh, err := scanShipment(t.tx.QueryRow(ctx, `
		SELECT `+shipmentColumns+` FROM internal_shipments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Shipment{}, ErrShipmentNotFound
	}
	return sh, err
}

func (t *txRepo) InsertMove(ctx context.Context, mv Move) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_moves
			(shipment_id, product_id, quantity, unit,
			 from_location_id, to_location_id, planned_date, state, company_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'request', $8)
		RETURNING id`,
		mv.ShipmentID, mv.ProductID, mv.Quantity, mv.Unit,
		mv.FromLocationID, mv.ToLocationID, mv.PlannedDate, mv.CompanyID).Scan(&id)
	return id, err
}

func (t *txRepo) ListMoves(ctx context.Context, shipmentID int64) ([]Move, error) {
	return listMoves(ctx, t.tx, shipmentID)
}

func (t *txRepo) UpdateMoveRoute(ctx context.Context, moveID, fromLocationID, toLocationID int64, plannedDate time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE stock_moves
		SET from_location_id = $2, to_location_id = $3, planned_date = $4
		WHERE id = $1`, moveID, fromLocationID, toLocationID, plannedDate)
	return err
}

func (t *txRepo) CollapseTransitRequests(ctx context.Context) error {
	// Drop the legs leaving transit, then point the remaining legs at the
	// shipment's direct route.
	if _, err := t.tx.Exec(ctx, `
		DELETE FROM stock_moves m
		USING internal_shipments s
		WHERE m.shipment_id = s.id AND s.state = 'request'
		  AND s.transit_location_id IS NOT NULL
		  AND m.from_location_id = s.transit_location_id`); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `
		UPDATE stock_moves m
		SET from_location_id = s.from_location_id,
		    to_location_id = s.to_location_id,
		    planned_date = s.planned_date
		FROM internal_shipments s
		WHERE m.shipment_id = s.id AND s.state = 'request'
		  AND s.transit_location_id IS NOT NULL`); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE internal_shipments SET transit_location_id = NULL WHERE state = 'request'`)
	return err
}
