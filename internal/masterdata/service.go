package masterdata

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Service validates and coordinates master data changes.
type Service struct {
	repo     Repository
	validate *validator.Validate
}

// NewService constructs the master data service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

// LocationInput describes a location create/update payload.
type LocationInput struct {
	Code                   string       `validate:"required"`
	Name                   string       `validate:"required"`
	Type                   LocationType `validate:"required,oneof=warehouse storage transit supplier customer view"`
	ParentID               int64
	ProvisioningLocationID int64
	OverflowingLocationID  int64
	CompanyID              int64 `validate:"required"`
}

// CreateLocation persists a new location.
func (s *Service) CreateLocation(ctx context.Context, input LocationInput) (Location, error) {
	if err := s.validate.Struct(input); err != nil {
		return Location{}, fmt.Errorf("masterdata: invalid location: %w", err)
	}
	if err := s.checkLinks(ctx, input); err != nil {
		return Location{}, err
	}
	return s.repo.CreateLocation(ctx, Location{
		Code:                   input.Code,
		Name:                   input.Name,
		Type:                   input.Type,
		ParentID:               input.ParentID,
		ProvisioningLocationID: input.ProvisioningLocationID,
		OverflowingLocationID:  input.OverflowingLocationID,
		CompanyID:              input.CompanyID,
	})
}

// UpdateLocation applies changes to an existing location.
func (s *Service) UpdateLocation(ctx context.Context, id int64, input LocationInput) (Location, error) {
	if err := s.validate.Struct(input); err != nil {
		return Location{}, fmt.Errorf("masterdata: invalid location: %w", err)
	}
	if err := s.checkLinks(ctx, input); err != nil {
		return Location{}, err
	}
	loc, err := s.repo.GetLocation(ctx, id)
	if err != nil {
		return Location{}, err
	}
	loc.Code = input.Code
	loc.Name = input.Name
	loc.Type = input.Type
	loc.ParentID = input.ParentID
	loc.ProvisioningLocationID = input.ProvisioningLocationID
	loc.OverflowingLocationID = input.OverflowingLocationID
	if err := s.repo.UpdateLocation(ctx, loc); err != nil {
		return Location{}, err
	}
	return loc, nil
}

func (s *Service) checkLinks(ctx context.Context, input LocationInput) error {
	for _, ref := range []int64{input.ParentID, input.ProvisioningLocationID, input.OverflowingLocationID} {
		if ref == 0 {
			continue
		}
		if _, err := s.repo.GetLocation(ctx, ref); err != nil {
			return fmt.Errorf("masterdata: linked location %d: %w", ref, err)
		}
	}
	return nil
}

// ListLocations lists locations for a company.
func (s *Service) ListLocations(ctx context.Context, companyID int64) ([]Location, error) {
	return s.repo.ListLocations(ctx, companyID)
}

// GetLocation fetches one location.
func (s *Service) GetLocation(ctx context.Context, id int64) (Location, error) {
	return s.repo.GetLocation(ctx, id)
}

// LeadTimeInput describes a lead time upsert payload.
type LeadTimeInput struct {
	FromLocationID int64 `validate:"required"`
	ToLocationID   int64 `validate:"required"`
	LeadTimeDays   int   `validate:"gte=0"`
}

// UpsertLeadTime stores the transfer duration for a location pair.
func (s *Service) UpsertLeadTime(ctx context.Context, input LeadTimeInput) (LocationLeadTime, error) {
	if err := s.validate.Struct(input); err != nil {
		return LocationLeadTime{}, fmt.Errorf("masterdata: invalid lead time: %w", err)
	}
	if input.FromLocationID == input.ToLocationID {
		return LocationLeadTime{}, ErrInvalidLeadTime
	}
	return s.repo.UpsertLeadTime(ctx, LocationLeadTime{
		FromLocationID: input.FromLocationID,
		ToLocationID:   input.ToLocationID,
		LeadTimeDays:   input.LeadTimeDays,
	})
}

// ListLeadTimes lists configured lead times.
func (s *Service) ListLeadTimes(ctx context.Context) ([]LocationLeadTime, error) {
	return s.repo.ListLeadTimes(ctx)
}

// ListProducts lists the product master.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.repo.ListProducts(ctx)
}

// GetSupplyConfig returns planning settings for a company.
func (s *Service) GetSupplyConfig(ctx context.Context, companyID int64) (SupplyConfig, error) {
	return s.repo.GetSupplyConfig(ctx, companyID)
}

// SaveSupplyConfig stores planning settings for a company.
func (s *Service) SaveSupplyConfig(ctx context.Context, cfg SupplyConfig) error {
	if cfg.CompanyID == 0 {
		return fmt.Errorf("masterdata: company required")
	}
	if cfg.SupplyPeriodDays < 0 {
		return ErrInvalidLeadTime
	}
	return s.repo.SaveSupplyConfig(ctx, cfg)
}
