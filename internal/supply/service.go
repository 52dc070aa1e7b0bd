package supply

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-wms/meridian-wms/internal/masterdata"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// RepositoryPort is what the orchestrator needs from storage.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	ListShipments(ctx context.Context, filter ShipmentFilter) ([]Shipment, error)
	ShipmentMoves(ctx context.Context, shipmentID int64) ([]Move, error)
	OverdueMoveCount(ctx context.Context, fromType, toType masterdata.LocationType, before time.Time) (int, error)
}

// PurchasingPort generates purchase requests after the internal pass. An
// empty warehouse list means all warehouses.
type PurchasingPort interface {
	GenerateRequests(ctx context.Context, companyID int64, warehouseIDs []int64, today time.Time) (int, error)
}

// LockPort serialises runs per company.
type LockPort interface {
	Acquire(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// WarningPort tracks dismissed pre-run warnings.
type WarningPort interface {
	Acknowledged(ctx context.Context, key string) (bool, error)
	Acknowledge(ctx context.Context, key string) error
}

// AuditPort records who ran planning and what it produced.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort observes completed runs.
type MetricsPort interface {
	ObserveRun(outcome string, passes, shipments, purchaseRequests int, took time.Duration)
}

// ServiceConfig tunes the orchestrator.
type ServiceConfig struct {
	DefaultCompanyID int64
}

// Service coordinates a full supply run: lock, pre-run warnings, internal
// planning, purchase requests, audit.
type Service struct {
	repo       RepositoryPort
	planner    *Planner
	purchasing PurchasingPort
	locks      LockPort
	warnings   WarningPort
	audit      AuditPort
	metrics    MetricsPort
	logger     *slog.Logger
	cfg        ServiceConfig
}

// NewService wires the orchestrator.
func NewService(repo RepositoryPort, planner *Planner, purchasing PurchasingPort, locks LockPort, warnings WarningPort, audit AuditPort, metrics MetricsPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	return &Service{
		repo:       repo,
		planner:    planner,
		purchasing: purchasing,
		locks:      locks,
		warnings:   warnings,
		audit:      audit,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// RunParams describes one supply run request.
type RunParams struct {
	CompanyID int64
	// WarehouseIDs narrows purchase request generation; empty means all.
	// Internal planning is always company-wide, chained provisioning does
	// not respect warehouse boundaries.
	WarehouseIDs []int64
	ActorID      int64
	Today        time.Time
	// AckWarnings dismisses pre-run warnings instead of failing on them.
	// The scheduled run sets it; interactive callers retry after review.
	AckWarnings bool
}

// RunResult summarises a completed run. RunID correlates log lines, the
// audit entry, and the HTTP response of one run.
type RunResult struct {
	RunID            string
	ShipmentIDs      []int64
	Passes           int
	PurchaseRequests int
}

const (
	warningLateSupplierMoves = "late_supplier_moves"
	warningLateCustomerMoves = "late_customer_moves"
)

// Run executes a full supply run. Internal shipment planning happens in
// one transaction; purchase requests follow in their own.
func (s *Service) Run(ctx context.Context, params RunParams) (RunResult, error) {
	if params.CompanyID == 0 {
		params.CompanyID = s.cfg.DefaultCompanyID
	}
	if params.Today.IsZero() {
		params.Today = time.Now().UTC().Truncate(24 * time.Hour)
	}

	lockKey := shared.SupplyLockKey(params.CompanyID)
	if err := s.locks.Acquire(ctx, lockKey); err != nil {
		return RunResult{}, err
	}
	defer func() {
		if err := s.locks.Release(ctx, lockKey); err != nil && s.logger != nil {
			s.logger.Error("release supply lock", slog.String("key", lockKey), slog.Any("error", err))
		}
	}()

	if err := s.checkOverdueMoves(ctx, params); err != nil {
		return RunResult{}, err
	}

	started := time.Now()
	result := RunResult{RunID: uuid.NewString()}
	txErr := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		gen, err := s.planner.Generate(ctx, tx, GenerateParams{
			Today:     params.Today,
			CompanyID: params.CompanyID,
			Clean:     true,
		})
		result.ShipmentIDs = gen.ShipmentIDs
		result.Passes = gen.Passes
		return err
	})
	if txErr != nil {
		s.observe("error", result, time.Since(started))
		return result, txErr
	}

	requests, err := s.purchasing.GenerateRequests(ctx, params.CompanyID, params.WarehouseIDs, params.Today)
	if err != nil {
		s.observe("error", result, time.Since(started))
		return result, fmt.Errorf("supply: purchase requests: %w", err)
	}
	result.PurchaseRequests = requests

	s.observe("ok", result, time.Since(started))
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  params.ActorID,
			Action:   "supply.run",
			Entity:   "company",
			EntityID: fmt.Sprintf("%d", params.CompanyID),
			Meta: map[string]any{
				"run_id":            result.RunID,
				"shipments":         len(result.ShipmentIDs),
				"passes":            result.Passes,
				"purchase_requests": result.PurchaseRequests,
			},
		}); err != nil && s.logger != nil {
			s.logger.Error("audit supply run", slog.Any("error", err))
		}
	}
	if s.logger != nil {
		s.logger.Info("supply run complete",
			slog.String("run_id", result.RunID),
			slog.Int64("company_id", params.CompanyID),
			slog.Int("shipments", len(result.ShipmentIDs)),
			slog.Int("purchase_requests", result.PurchaseRequests),
			slog.Int("passes", result.Passes))
	}
	return result, nil
}

// checkOverdueMoves raises a dismissible warning per (kind, day) when
// draft inbound or outbound moves are overdue. A planning run over stale
// drafts would double-count them, so someone has to look first.
func (s *Service) checkOverdueMoves(ctx context.Context, params RunParams) error {
	checks := []struct {
		kind     string
		fromType masterdata.LocationType
		toType   masterdata.LocationType
		message  string
	}{
		{warningLateSupplierMoves, masterdata.LocationTypeSupplier, masterdata.LocationTypeStorage,
			"supplier receipts overdue, stock levels may be stale"},
		{warningLateCustomerMoves, masterdata.LocationTypeStorage, masterdata.LocationTypeCustomer,
			"customer deliveries overdue, stock levels may be stale"},
	}
	for _, check := range checks {
		count, err := s.repo.OverdueMoveCount(ctx, check.fromType, check.toType, params.Today)
		if err != nil {
			return fmt.Errorf("supply: overdue move check: %w", err)
		}
		if count == 0 {
			continue
		}
		key := shared.WarningKey(check.kind, params.Today)
		acked, err := s.warnings.Acknowledged(ctx, key)
		if err != nil {
			return err
		}
		if acked {
			continue
		}
		if !params.AckWarnings {
			return &shared.Warning{Key: key, Message: fmt.Sprintf("%s (%d moves)", check.message, count)}
		}
		if s.logger != nil {
			s.logger.Warn("supply run warning auto-acknowledged",
				slog.String("key", key), slog.Int("moves", count))
		}
		if err := s.warnings.Acknowledge(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// AcknowledgeWarning dismisses a warning key so the next run proceeds.
func (s *Service) AcknowledgeWarning(ctx context.Context, key string) error {
	return s.warnings.Acknowledge(ctx, key)
}

// ListShipments returns shipments for the company, optionally by state.
func (s *Service) ListShipments(ctx context.Context, companyID int64, state ShipmentState) ([]Shipment, error) {
	if companyID == 0 {
		companyID = s.cfg.DefaultCompanyID
	}
	return s.repo.ListShipments(ctx, ShipmentFilter{CompanyID: companyID, State: state})
}

// ShipmentMoves returns the moves of one shipment.
func (s *Service) ShipmentMoves(ctx context.Context, shipmentID int64) ([]Move, error) {
	return s.repo.ShipmentMoves(ctx, shipmentID)
}

func (s *Service) observe(outcome string, result RunResult, took time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveRun(outcome, result.Passes, len(result.ShipmentIDs), result.PurchaseRequests, took)
}
