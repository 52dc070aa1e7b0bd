package masterdata

import (
	"errors"
	"time"
)

// LocationType classifies stock locations.
type LocationType string

const (
	LocationTypeWarehouse LocationType = "warehouse"
	LocationTypeStorage   LocationType = "storage"
	LocationTypeTransit   LocationType = "transit"
	LocationTypeSupplier  LocationType = "supplier"
	LocationTypeCustomer  LocationType = "customer"
	LocationTypeView      LocationType = "view"
)

// Location is a node in the stock location tree. Warehouses contain
// storage sub-locations; forecast queries aggregate over the subtree.
type Location struct {
	ID                     int64
	Code                   string
	Name                   string
	Type                   LocationType
	ParentID               int64
	ProvisioningLocationID int64
	OverflowingLocationID  int64
	CompanyID              int64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Provisioned reports whether the location declares a direct provisioning
// source. Such locations participate in planning even without an explicit
// order point (implicit min=max=0 policy).
func (l Location) Provisioned() bool {
	return l.ProvisioningLocationID != 0
}

// LocationLeadTime is the configured transfer duration between two
// locations, in whole days.
type LocationLeadTime struct {
	ID             int64
	FromLocationID int64
	ToLocationID   int64
	LeadTimeDays   int
}

// ProductType classifies products for planning purposes.
type ProductType string

const (
	ProductTypeGoods   ProductType = "goods"
	ProductTypeAssets  ProductType = "assets"
	ProductTypeService ProductType = "service"
)

// Product carries the planning-relevant subset of the product master.
type Product struct {
	ID          int64
	SKU         string
	Name        string
	Type        ProductType
	Consumable  bool
	Purchasable bool
	DefaultUnit string
	// SupplierLeadTimeDays drives the supply date of purchase requests.
	SupplierLeadTimeDays int
}

// Stockable reports whether the product is tracked by the planner.
func (p Product) Stockable() bool {
	return (p.Type == ProductTypeGoods || p.Type == ProductTypeAssets) && !p.Consumable
}

// SupplyConfig holds company-wide planning settings.
type SupplyConfig struct {
	CompanyID         int64
	TransitLocationID int64
	SupplyPeriodDays  int
}

var (
	// ErrLocationNotFound indicates a missing location.
	ErrLocationNotFound = errors.New("masterdata: location not found")
	// ErrProductNotFound indicates a missing product.
	ErrProductNotFound = errors.New("masterdata: product not found")
	// ErrInvalidLeadTime indicates a non-positive or self-referencing lead time.
	ErrInvalidLeadTime = errors.New("masterdata: invalid lead time")
)
