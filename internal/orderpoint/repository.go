package orderpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepo{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const columns = `id, product_id, type, COALESCE(warehouse_location_id,0), COALESCE(storage_location_id,0), COALESCE(provisioning_location_id,0), COALESCE(overflowing_location_id,0), min_quantity, target_quantity, max_quantity, company_id, unit`

func scanOrderPoint(row pgx.Row) (OrderPoint, error) {
	var op OrderPoint
	err := row.Scan(&op.ID, &op.ProductID, &op.Type, &op.WarehouseLocationID, &op.StorageLocationID, &op.ProvisioningLocationID, &op.OverflowingLocationID, &op.MinQuantity, &op.TargetQuantity, &op.MaxQuantity, &op.CompanyID, &op.Unit)
	return op, err
}

// Get returns one order point by id.
func (r *Repository) Get(ctx context.Context, id int64) (OrderPoint, error) {
	op, err := scanOrderPoint(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM order_points WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderPoint{}, ErrNotFound
	}
	return op, err
}

// List returns order points matching the filter. Location filtering is a
// reverse lookup over the type-specific monitored column.
func (r *Repository) List(ctx context.Context, filter Filter) ([]OrderPoint, error) {
	query := `SELECT ` + columns + ` FROM order_points WHERE 1=1`
	args := []any{}
	n := 0
	next := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}
	if filter.Type != "" {
		query += ` AND type = ` + next(string(filter.Type))
	}
	if filter.CompanyID != 0 {
		query += ` AND company_id = ` + next(filter.CompanyID)
	}
	if len(filter.ProductIDs) > 0 {
		query += ` AND product_id = ANY(` + next(filter.ProductIDs) + `)`
	}
	if len(filter.LocationIDs) > 0 {
		p := next(filter.LocationIDs)
		query += ` AND ((type = 'purchase' AND warehouse_location_id = ANY(` + p + `)) OR (type = 'internal' AND storage_location_id = ANY(` + p + `)))`
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []OrderPoint
	for rows.Next() {
		op, err := scanOrderPoint(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func (r *txRepo) Insert(ctx context.Context, op OrderPoint) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO order_points (product_id, type, warehouse_location_id, storage_location_id, provisioning_location_id, overflowing_location_id, min_quantity, target_quantity, max_quantity, company_id, unit)
		VALUES ($1, $2, NULLIF($3,0), NULLIF($4,0), NULLIF($5,0), NULLIF($6,0), $7, $8, $9, $10, $11) RETURNING id`,
		op.ProductID, op.Type, op.WarehouseLocationID, op.StorageLocationID, op.ProvisioningLocationID, op.OverflowingLocationID, op.MinQuantity, op.TargetQuantity, op.MaxQuantity, op.CompanyID, op.Unit).Scan(&id)
	return id, err
}

func (r *txRepo) Update(ctx context.Context, op OrderPoint) error {
	tag, err := r.tx.Exec(ctx, `UPDATE order_points SET product_id=$2, type=$3, warehouse_location_id=NULLIF($4,0), storage_location_id=NULLIF($5,0), provisioning_location_id=NULLIF($6,0), overflowing_location_id=NULLIF($7,0), min_quantity=$8, target_quantity=$9, max_quantity=$10, company_id=$11, unit=$12 WHERE id=$1`,
		op.ID, op.ProductID, op.Type, op.WarehouseLocationID, op.StorageLocationID, op.ProvisioningLocationID, op.OverflowingLocationID, op.MinQuantity, op.TargetQuantity, op.MaxQuantity, op.CompanyID, op.Unit)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM order_points WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) HasDuplicate(ctx context.Context, op OrderPoint, excludeIDs []int64) (bool, error) {
	column := "warehouse_location_id"
	if op.Type == TypeInternal {
		column = "storage_location_id"
	}
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM order_points WHERE product_id=$1 AND company_id=$2 AND type=$3 AND `+column+`=$4 AND NOT (id = ANY($5)))`,
		op.ProductID, op.CompanyID, op.Type, op.MonitoredLocationID(), excludeIDs).Scan(&exists)
	return exists, err
}

func (r *txRepo) HasOpposite(ctx context.Context, productID, companyID, storageLocationID, sideLocationID int64, side Rule, excludeIDs []int64) (bool, error) {
	var column string
	switch side {
	case RuleConcurrentProvisioning:
		column = "provisioning_location_id"
	case RuleConcurrentOverflowing:
		column = "overflowing_location_id"
	default:
		return false, fmt.Errorf("order point: unknown side %q", side)
	}
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM order_points WHERE type='internal' AND product_id=$1 AND company_id=$2 AND storage_location_id=$3 AND `+column+`=$4 AND NOT (id = ANY($5)))`,
		productID, companyID, sideLocationID, storageLocationID, excludeIDs).Scan(&exists)
	return exists, err
}
