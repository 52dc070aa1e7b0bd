package purchasing

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

// RepositoryPort provides storage access for request generation.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	ListRequests(ctx context.Context, filter Filter) ([]PurchaseRequest, error)
}

// TxRepository is the transactional surface of one generation run.
type TxRepository interface {
	// DeleteDraftRequests removes draft requests with the given origin,
	// optionally narrowed to a warehouse subset.
	DeleteDraftRequests(ctx context.Context, companyID int64, origin string, warehouseIDs []int64) error
	ListPurchaseOrderPoints(ctx context.Context, companyID int64, warehouseIDs []int64) ([]orderpoint.OrderPoint, error)
	ProductsByID(ctx context.Context, ids []int64) (map[int64]masterdata.Product, error)
	SupplyPeriodDays(ctx context.Context, companyID int64) (int, error)
	ForecastQuantities(ctx context.Context, locationIDs, productIDs []int64, asOf time.Time, includeChildren bool) (forecast.Quantities, error)
	InsertRequest(ctx context.Context, req PurchaseRequest) (int64, error)
}

// Filter narrows purchase request listings.
type Filter struct {
	CompanyID int64
	State     RequestState
}

// Service generates and lists purchase requests.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService constructs the service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// GenerateRequests replaces the order-point drafts for the company and
// creates a fresh draft per purchase order point whose warehouse forecast
// falls strictly below min as of the product's supply date. Returns the
// number of requests created. An empty warehouse list means all.
func (s *Service) GenerateRequests(ctx context.Context, companyID int64, warehouseIDs []int64, today time.Time) (int, error) {
	if today.IsZero() {
		today = time.Now().UTC().Truncate(24 * time.Hour)
	}

	created := 0
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteDraftRequests(ctx, companyID, OriginOrderPoint, warehouseIDs); err != nil {
			return fmt.Errorf("purchasing: delete prior drafts: %w", err)
		}

		ops, err := tx.ListPurchaseOrderPoints(ctx, companyID, warehouseIDs)
		if err != nil {
			return fmt.Errorf("purchasing: load order points: %w", err)
		}
		if len(ops) == 0 {
			return nil
		}

		productIDs := make([]int64, 0, len(ops))
		seen := make(map[int64]bool)
		for _, op := range ops {
			if !seen[op.ProductID] {
				seen[op.ProductID] = true
				productIDs = append(productIDs, op.ProductID)
			}
		}
		products, err := tx.ProductsByID(ctx, productIDs)
		if err != nil {
			return fmt.Errorf("purchasing: load products: %w", err)
		}
		periodDays, err := tx.SupplyPeriodDays(ctx, companyID)
		if err != nil {
			return fmt.Errorf("purchasing: supply period: %w", err)
		}

		// One forecast call per distinct supply date.
		bySupplyDate := make(map[time.Time][]orderpoint.OrderPoint)
		var dates []time.Time
		for _, op := range ops {
			product, ok := products[op.ProductID]
			if !ok || !product.Purchasable {
				if s.logger != nil {
					s.logger.Warn("skipping order point on non-purchasable product",
						slog.Int64("order_point_id", op.ID), slog.Int64("product_id", op.ProductID))
				}
				continue
			}
			date := supplyDate(today, product, periodDays)
			if _, ok := bySupplyDate[date]; !ok {
				dates = append(dates, date)
			}
			bySupplyDate[date] = append(bySupplyDate[date], op)
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

		for _, date := range dates {
			batch := bySupplyDate[date]
			var locationIDs, batchProducts []int64
			for _, op := range batch {
				locationIDs = append(locationIDs, op.WarehouseLocationID)
				batchProducts = append(batchProducts, op.ProductID)
			}
			quantities, err := tx.ForecastQuantities(ctx, locationIDs, batchProducts, date, true)
			if err != nil {
				return fmt.Errorf("purchasing: forecast %s: %w", date.Format("2006-01-02"), err)
			}
			for _, op := range batch {
				if op.MinQuantity == nil {
					continue
				}
				qty := quantities.Get(op.WarehouseLocationID, op.ProductID)
				if qty >= *op.MinQuantity {
					continue
				}
				product := products[op.ProductID]
				_, err := tx.InsertRequest(ctx, PurchaseRequest{
					ProductID:           op.ProductID,
					WarehouseLocationID: op.WarehouseLocationID,
					Quantity:            op.TargetQuantity - qty,
					Unit:                op.Unit,
					CompanyID:           companyID,
					PurchaseDate:        date.AddDate(0, 0, -product.SupplierLeadTimeDays),
					SupplyDate:          date,
					Origin:              OriginOrderPoint,
					State:               RequestStateDraft,
				})
				if err != nil {
					return fmt.Errorf("purchasing: create request: %w", err)
				}
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// ListRequests returns purchase requests matching the filter.
func (s *Service) ListRequests(ctx context.Context, filter Filter) ([]PurchaseRequest, error) {
	return s.repo.ListRequests(ctx, filter)
}

// supplyDate is when ordered goods can arrive: the supplier lead time when
// known, the company supply period otherwise.
func supplyDate(today time.Time, product masterdata.Product, periodDays int) time.Time {
	days := product.SupplierLeadTimeDays
	if days == 0 {
		days = periodDays
	}
	return today.AddDate(0, 0, days)
}
