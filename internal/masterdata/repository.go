package masterdata

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository exposes master data persistence.
type Repository interface {
	ListLocations(ctx context.Context, companyID int64) ([]Location, error)
	GetLocation(ctx context.Context, id int64) (Location, error)
	CreateLocation(ctx context.Context, loc Location) (Location, error)
	UpdateLocation(ctx context.Context, loc Location) error

	ListLeadTimes(ctx context.Context) ([]LocationLeadTime, error)
	UpsertLeadTime(ctx context.Context, lt LocationLeadTime) (LocationLeadTime, error)

	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)

	GetSupplyConfig(ctx context.Context, companyID int64) (SupplyConfig, error)
	SaveSupplyConfig(ctx context.Context, cfg SupplyConfig) error
}

type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates a PostgreSQL backed master data repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repo{db: db}
}

const locationColumns = `id, code, name, type, COALESCE(parent_id,0), COALESCE(provisioning_location_id,0), COALESCE(overflowing_location_id,0), company_id, created_at, updated_at`

func scanLocation(row pgx.Row) (Location, error) {
	var l Location
	err := row.Scan(&l.ID, &l.Code, &l.Name, &l.Type, &l.ParentID, &l.ProvisioningLocationID, &l.OverflowingLocationID, &l.CompanyID, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func (r *repo) ListLocations(ctx context.Context, companyID int64) ([]Location, error) {
	rows, err := r.db.Query(ctx, `SELECT `+locationColumns+` FROM stock_locations WHERE company_id = $1 ORDER BY code`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func (r *repo) GetLocation(ctx context.Context, id int64) (Location, error) {
	l, err := scanLocation(r.db.QueryRow(ctx, `SELECT `+locationColumns+` FROM stock_locations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, ErrLocationNotFound
	}
	return l, err
}

func (r *repo) CreateLocation(ctx context.Context, loc Location) (Location, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `INSERT INTO stock_locations (code, name, type, parent_id, provisioning_location_id, overflowing_location_id, company_id, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4,0), NULLIF($5,0), NULLIF($6,0), $7, $8, $8) RETURNING id`,
		loc.Code, loc.Name, loc.Type, loc.ParentID, loc.ProvisioningLocationID, loc.OverflowingLocationID, loc.CompanyID, now).Scan(&loc.ID)
	if err != nil {
		return Location{}, err
	}
	loc.CreatedAt = now
	loc.UpdatedAt = now
	return loc, nil
}

func (r *repo) UpdateLocation(ctx context.Context, loc Location) error {
	tag, err := r.db.Exec(ctx, `UPDATE stock_locations SET code=$2, name=$3, type=$4, parent_id=NULLIF($5,0), provisioning_location_id=NULLIF($6,0), overflowing_location_id=NULLIF($7,0), updated_at=NOW() WHERE id=$1`,
		loc.ID, loc.Code, loc.Name, loc.Type, loc.ParentID, loc.ProvisioningLocationID, loc.OverflowingLocationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLocationNotFound
	}
	return nil
}

func (r *repo) ListLeadTimes(ctx context.Context) ([]LocationLeadTime, error) {
	rows, err := r.db.Query(ctx, `SELECT id, from_location_id, to_location_id, lead_time_days FROM location_lead_times ORDER BY from_location_id, to_location_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leadTimes []LocationLeadTime
	for rows.Next() {
		var lt LocationLeadTime
		if err := rows.Scan(&lt.ID, &lt.FromLocationID, &lt.ToLocationID, &lt.LeadTimeDays); err != nil {
			return nil, err
		}
		leadTimes = append(leadTimes, lt)
	}
	return leadTimes, rows.Err()
}

func (r *repo) UpsertLeadTime(ctx context.Context, lt LocationLeadTime) (LocationLeadTime, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO location_lead_times (from_location_id, to_location_id, lead_time_days)
		VALUES ($1, $2, $3)
		ON CONFLICT (from_location_id, to_location_id) DO UPDATE SET lead_time_days = EXCLUDED.lead_time_days
		RETURNING id`,
		lt.FromLocationID, lt.ToLocationID, lt.LeadTimeDays).Scan(&lt.ID)
	if err != nil {
		return LocationLeadTime{}, err
	}
	return lt, nil
}

const productColumns = `id, sku, name, type, consumable, purchasable, default_unit, COALESCE(supplier_lead_time_days,0)`

func (r *repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Type, &p.Consumable, &p.Purchasable, &p.DefaultUnit, &p.SupplierLeadTimeDays); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *repo) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Type, &p.Consumable, &p.Purchasable, &p.DefaultUnit, &p.SupplierLeadTimeDays)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

func (r *repo) GetSupplyConfig(ctx context.Context, companyID int64) (SupplyConfig, error) {
	cfg := SupplyConfig{CompanyID: companyID}
	err := r.db.QueryRow(ctx, `SELECT COALESCE(transit_location_id,0), supply_period_days FROM supply_configs WHERE company_id = $1`, companyID).
		Scan(&cfg.TransitLocationID, &cfg.SupplyPeriodDays)
	if errors.Is(err, pgx.ErrNoRows) {
		return SupplyConfig{CompanyID: companyID}, nil
	}
	return cfg, err
}

func (r *repo) SaveSupplyConfig(ctx context.Context, cfg SupplyConfig) error {
	_, err := r.db.Exec(ctx, `INSERT INTO supply_configs (company_id, transit_location_id, supply_period_days)
		VALUES ($1, NULLIF($2,0), $3)
		ON CONFLICT (company_id) DO UPDATE SET transit_location_id = EXCLUDED.transit_location_id, supply_period_days = EXCLUDED.supply_period_days`,
		cfg.CompanyID, cfg.TransitLocationID, cfg.SupplyPeriodDays)
	return err
}
