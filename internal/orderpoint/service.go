package orderpoint

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/meridian-wms/meridian-wms/internal/masterdata"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// RepositoryPort abstracts order point persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (OrderPoint, error)
	List(ctx context.Context, filter Filter) ([]OrderPoint, error)
}

// TxRepository exposes transactional operations used during validation and
// save. Uniqueness and concurrency checks re-scan stored records inside
// the same transaction that writes, so a conflicting save is impossible.
type TxRepository interface {
	Insert(ctx context.Context, op OrderPoint) (int64, error)
	Update(ctx context.Context, op OrderPoint) error
	Delete(ctx context.Context, id int64) error
	// HasDuplicate reports whether another order point of the same type
	// monitors the same (product, location, company) triple.
	HasDuplicate(ctx context.Context, op OrderPoint, excludeIDs []int64) (bool, error)
	// HasOpposite reports whether another internal order point on the same
	// product and company has the mirrored location pair: its storage
	// location equals sideLocation while its named side location equals
	// storageLocation.
	HasOpposite(ctx context.Context, productID, companyID, storageLocationID, sideLocationID int64, side Rule, excludeIDs []int64) (bool, error)
}

// ProductPort exposes the product master lookups the registry needs.
type ProductPort interface {
	GetProduct(ctx context.Context, id int64) (masterdata.Product, error)
}

// AuditPort records registry changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Filter narrows List results. LocationIDs performs the reverse lookup
// from monitored locations back to policies.
type Filter struct {
	Type        Type
	CompanyID   int64
	ProductIDs  []int64
	LocationIDs []int64
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// DefaultCompanyID is the caller's active scope used when an input
	// does not name a company.
	DefaultCompanyID int64
}

// Service validates and persists order points.
type Service struct {
	repo     RepositoryPort
	products ProductPort
	audit    AuditPort
	cfg      ServiceConfig
	validate *validator.Validate
}

// NewService constructs the registry service.
func NewService(repo RepositoryPort, products ProductPort, audit AuditPort, cfg ServiceConfig) *Service {
	return &Service{repo: repo, products: products, audit: audit, cfg: cfg, validate: validator.New()}
}

// Input describes an order point create/update payload.
type Input struct {
	ProductID              int64 `validate:"required"`
	Type                   Type  `validate:"omitempty,oneof=purchase internal"`
	WarehouseLocationID    int64
	StorageLocationID      int64
	ProvisioningLocationID int64
	OverflowingLocationID  int64
	MinQuantity            *float64
	TargetQuantity         float64
	MaxQuantity            *float64
	CompanyID              int64
}

// Create validates and inserts a new order point.
func (s *Service) Create(ctx context.Context, input Input) (OrderPoint, error) {
	op, err := s.build(ctx, input, 0)
	if err != nil {
		return OrderPoint{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.validateSet(ctx, tx, []OrderPoint{op}); err != nil {
			return err
		}
		id, err := tx.Insert(ctx, op)
		if err != nil {
			return err
		}
		op.ID = id
		return nil
	})
	if err != nil {
		return OrderPoint{}, err
	}
	s.recordAudit(ctx, "ORDER_POINT_CREATE", op)
	return op, nil
}

// Update validates and applies changes to an existing order point.
func (s *Service) Update(ctx context.Context, id int64, input Input) (OrderPoint, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return OrderPoint{}, err
	}
	op, err := s.build(ctx, input, id)
	if err != nil {
		return OrderPoint{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.validateSet(ctx, tx, []OrderPoint{op}); err != nil {
			return err
		}
		return tx.Update(ctx, op)
	})
	if err != nil {
		return OrderPoint{}, err
	}
	s.recordAudit(ctx, "ORDER_POINT_UPDATE", op)
	return op, nil
}

// Delete removes an order point.
func (s *Service) Delete(ctx context.Context, id int64) error {
	op, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "ORDER_POINT_DELETE", op)
	return nil
}

// Get fetches one order point.
func (s *Service) Get(ctx context.Context, id int64) (OrderPoint, error) {
	return s.repo.Get(ctx, id)
}

// List returns order points matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]OrderPoint, error) {
	return s.repo.List(ctx, filter)
}

// build applies defaults and field-level rules, returning a record ready
// for the set-level checks.
func (s *Service) build(ctx context.Context, input Input, id int64) (OrderPoint, error) {
	if input.Type == "" {
		input.Type = TypePurchase
	}
	if input.CompanyID == 0 {
		input.CompanyID = s.cfg.DefaultCompanyID
	}
	if err := s.validate.Struct(input); err != nil {
		return OrderPoint{}, violation(RuleFields, "%v", err)
	}
	if input.CompanyID == 0 {
		return OrderPoint{}, violation(RuleFields, "company is required")
	}

	product, err := s.products.GetProduct(ctx, input.ProductID)
	if err != nil {
		return OrderPoint{}, fmt.Errorf("order point: product %d: %w", input.ProductID, err)
	}
	if !product.Stockable() {
		return OrderPoint{}, violation(RuleFields, "product %s is not stockable", product.SKU)
	}

	op := OrderPoint{
		ID:                     id,
		ProductID:              input.ProductID,
		Type:                   input.Type,
		WarehouseLocationID:    input.WarehouseLocationID,
		StorageLocationID:      input.StorageLocationID,
		ProvisioningLocationID: input.ProvisioningLocationID,
		OverflowingLocationID:  input.OverflowingLocationID,
		MinQuantity:            input.MinQuantity,
		TargetQuantity:         input.TargetQuantity,
		MaxQuantity:            input.MaxQuantity,
		CompanyID:              input.CompanyID,
		Unit:                   product.DefaultUnit,
	}

	switch op.Type {
	case TypePurchase:
		if !product.Purchasable {
			return OrderPoint{}, violation(RuleFields, "product %s is not purchasable", product.SKU)
		}
		if op.WarehouseLocationID == 0 {
			return OrderPoint{}, violation(RuleFields, "warehouse location is required for purchase order points")
		}
		if op.MinQuantity == nil {
			return OrderPoint{}, violation(RuleFields, "min quantity is required for purchase order points")
		}
	case TypeInternal:
		if op.StorageLocationID == 0 {
			return OrderPoint{}, violation(RuleFields, "storage location is required for internal order points")
		}
		if op.MinQuantity != nil && op.ProvisioningLocationID == 0 {
			return OrderPoint{}, violation(RuleFields, "provisioning location is required when min quantity is set")
		}
		if op.MaxQuantity != nil && op.OverflowingLocationID == 0 {
			return OrderPoint{}, violation(RuleFields, "overflowing location is required when max quantity is set")
		}
	}

	if op.MinQuantity != nil && op.TargetQuantity < *op.MinQuantity {
		return OrderPoint{}, violation(RuleBounds, "target quantity %v is below min quantity %v", op.TargetQuantity, *op.MinQuantity)
	}
	if op.MaxQuantity != nil && op.TargetQuantity > *op.MaxQuantity {
		return OrderPoint{}, violation(RuleBounds, "target quantity %v is above max quantity %v", op.TargetQuantity, *op.MaxQuantity)
	}
	if op.MinQuantity != nil && op.MaxQuantity != nil && *op.MinQuantity > *op.MaxQuantity {
		return OrderPoint{}, violation(RuleBounds, "min quantity %v is above max quantity %v", *op.MinQuantity, *op.MaxQuantity)
	}

	return op, nil
}

// validateSet runs the uniqueness and concurrency checks over the union of
// stored records and the records being validated.
func (s *Service) validateSet(ctx context.Context, tx TxRepository, ops []OrderPoint) error {
	if err := checkUniquenessWithin(ops); err != nil {
		return err
	}
	if err := checkConcurrentWithin(ops); err != nil {
		return err
	}

	exclude := make([]int64, 0, len(ops))
	for _, op := range ops {
		if op.ID != 0 {
			exclude = append(exclude, op.ID)
		}
	}

	for _, op := range ops {
		dup, err := tx.HasDuplicate(ctx, op, exclude)
		if err != nil {
			return err
		}
		if dup {
			return violation(RuleUnique, "another order point already monitors product %d at location %d", op.ProductID, op.MonitoredLocationID())
		}
		if op.Type != TypeInternal {
			continue
		}
		if op.ProvisioningLocationID != 0 {
			found, err := tx.HasOpposite(ctx, op.ProductID, op.CompanyID, op.StorageLocationID, op.ProvisioningLocationID, RuleConcurrentProvisioning, exclude)
			if err != nil {
				return err
			}
			if found {
				return violation(RuleConcurrentProvisioning, "opposite provisioning order point exists for product %d between locations %d and %d", op.ProductID, op.StorageLocationID, op.ProvisioningLocationID)
			}
		}
		if op.OverflowingLocationID != 0 {
			found, err := tx.HasOpposite(ctx, op.ProductID, op.CompanyID, op.StorageLocationID, op.OverflowingLocationID, RuleConcurrentOverflowing, exclude)
			if err != nil {
				return err
			}
			if found {
				return violation(RuleConcurrentOverflowing, "opposite overflowing order point exists for product %d between locations %d and %d", op.ProductID, op.StorageLocationID, op.OverflowingLocationID)
			}
		}
	}
	return nil
}

// checkUniquenessWithin catches two records of one batch claiming the same
// monitored triple before any database lookup.
func checkUniquenessWithin(ops []OrderPoint) error {
	type key struct {
		productID  int64
		locationID int64
		companyID  int64
		typ        Type
	}
	seen := make(map[key]int64, len(ops))
	for _, op := range ops {
		k := key{op.ProductID, op.MonitoredLocationID(), op.CompanyID, op.Type}
		if prev, ok := seen[k]; ok && prev != op.ID {
			return violation(RuleUnique, "duplicate order point for product %d at location %d", op.ProductID, op.MonitoredLocationID())
		}
		seen[k] = op.ID
	}
	return nil
}

// checkConcurrentWithin catches mirrored location pairs inside one batch.
func checkConcurrentWithin(ops []OrderPoint) error {
	for i, a := range ops {
		if a.Type != TypeInternal {
			continue
		}
		for j, b := range ops {
			if i == j || b.Type != TypeInternal || a.ProductID != b.ProductID || a.CompanyID != b.CompanyID {
				continue
			}
			if a.ProvisioningLocationID != 0 && b.StorageLocationID == a.ProvisioningLocationID && b.ProvisioningLocationID == a.StorageLocationID {
				return violation(RuleConcurrentProvisioning, "order points on product %d form a provisioning cycle between locations %d and %d", a.ProductID, a.StorageLocationID, b.StorageLocationID)
			}
			if a.OverflowingLocationID != 0 && b.StorageLocationID == a.OverflowingLocationID && b.OverflowingLocationID == a.StorageLocationID {
				return violation(RuleConcurrentOverflowing, "order points on product %d form an overflowing cycle between locations %d and %d", a.ProductID, a.StorageLocationID, b.StorageLocationID)
			}
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, op OrderPoint) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "order_point",
		EntityID: fmt.Sprintf("%d", op.ID),
		Meta: map[string]any{
			"product_id":  op.ProductID,
			"type":        string(op.Type),
			"location_id": op.MonitoredLocationID(),
			"company_id":  op.CompanyID,
		},
	})
}
