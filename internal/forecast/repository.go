package forecast

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx. The supply planner
// binds these queries to its own transaction so each pass sees the
// shipments created by earlier passes of the same run.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries implements RepositoryPort over PostgreSQL.
type Queries struct {
	db DBTX
}

// NewQueries binds the forecast queries to a pool or transaction.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// DescendantLocationIDs walks the location tree.
func (q *Queries) DescendantLocationIDs(ctx context.Context, rootIDs []int64) (map[int64][]int64, error) {
	rows, err := q.db.Query(ctx, `
		WITH RECURSIVE tree AS (
			SELECT id, id AS root FROM stock_locations WHERE id = ANY($1)
			UNION ALL
			SELECT l.id, t.root FROM stock_locations l JOIN tree t ON l.parent_id = t.id
		)
		SELECT root, id FROM tree`, rootIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]int64, len(rootIDs))
	for rows.Next() {
		var root, id int64
		if err := rows.Scan(&root, &id); err != nil {
			return nil, err
		}
		out[root] = append(out[root], id)
	}
	return out, rows.Err()
}

// QuantitiesAsOf aggregates stock moves into per-location balances.
// Realized moves count by effective date; draft, request and assigned
// moves count by planned date (forecast mode).
func (q *Queries) QuantitiesAsOf(ctx context.Context, locationIDs, productIDs []int64, asOf time.Time) (Quantities, error) {
	rows, err := q.db.Query(ctx, `
		SELECT location_id, product_id, SUM(qty) FROM (
			SELECT to_location_id AS location_id, product_id, quantity AS qty
			FROM stock_moves
			WHERE to_location_id = ANY($1) AND product_id = ANY($2) AND state <> 'cancelled'
			  AND ((state = 'done' AND effective_date <= $3) OR (state <> 'done' AND planned_date <= $3))
			UNION ALL
			SELECT from_location_id, product_id, -quantity
			FROM stock_moves
			WHERE from_location_id = ANY($1) AND product_id = ANY($2) AND state <> 'cancelled'
			  AND ((state = 'done' AND effective_date <= $3) OR (state <> 'done' AND planned_date <= $3))
		) flows
		GROUP BY location_id, product_id`, locationIDs, productIDs, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(Quantities)
	for rows.Next() {
		var key LocationProduct
		var qty float64
		if err := rows.Scan(&key.LocationID, &key.ProductID, &qty); err != nil {
			return nil, err
		}
		out[key] = qty
	}
	return out, rows.Err()
}
