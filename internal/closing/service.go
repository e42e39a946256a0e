package closing

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solara-erp/solara-erp/internal/masterdata"
	"github.com/solara-erp/solara-erp/internal/shared"
)

// RepositoryPort defines data access methods for closings.
type RepositoryPort interface {
	GetClosing(ctx context.Context, id int64) (*Closing, error)
	FindByPlantPeriod(ctx context.Context, plantID int64, period shared.Period) (*Closing, error)
	InsertClosing(ctx context.Context, c Closing) (*Closing, error)
	UpdateClosing(ctx context.Context, c Closing) (*Closing, error)
	AggregateInvoices(ctx context.Context, plantID int64, period shared.Period) (InvoiceAggregate, error)
	ListClosings(ctx context.Context, plantID int64, limit int) ([]Closing, error)
}

// PlantPort exposes the master-data access the calculator needs.
type PlantPort interface {
	GetPlant(ctx context.Context, id int64) (*masterdata.Plant, error)
	ListPlantServices(ctx context.Context, plantID int64) ([]masterdata.PlantService, error)
}

// Service computes and persists plant closings.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	plants PlantPort
	now    func() time.Time
}

// NewService builds Service instance.
func NewService(logger *slog.Logger, repo RepositoryPort, plants PlantPort) *Service {
	return &Service{
		logger: logger,
		repo:   repo,
		plants: plants,
		now:    time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetClosing returns one closing.
func (s *Service) GetClosing(ctx context.Context, id int64) (*Closing, error) {
	return s.repo.GetClosing(ctx, id)
}

// ListClosings returns a plant's closings.
func (s *Service) ListClosings(ctx context.Context, plantID int64, limit int) ([]Closing, error) {
	return s.repo.ListClosings(ctx, plantID, limit)
}

// LoadOrInit loads an existing closing verbatim, or seeds a new draft from the
// plant's configured defaults. A nonzero closingID always wins.
func (s *Service) LoadOrInit(ctx context.Context, plantID int64, period shared.Period, closingID int64) (*Closing, error) {
	if closingID != 0 {
		return s.repo.GetClosing(ctx, closingID)
	}
	if existing, err := s.repo.FindByPlantPeriod(ctx, plantID, period); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}
	return s.initFromPlant(ctx, plantID, period)
}

// initFromPlant seeds a draft closing from plant defaults. The plant record
// and its service list are fetched concurrently.
func (s *Service) initFromPlant(ctx context.Context, plantID int64, period shared.Period) (*Closing, error) {
	var (
		plant    *masterdata.Plant
		services []masterdata.PlantService
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		plant, err = s.plants.GetPlant(gctx, plantID)
		return err
	})
	g.Go(func() error {
		var err error
		services, err = s.plants.ListPlantServices(gctx, plantID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rec := Closing{
		PlantID:              plantID,
		Period:               period,
		AvailabilityCost:     plant.AvailabilityCost,
		MaintenanceCost:      plant.MaintenanceCost,
		LeaseCost:            plant.LeaseCost,
		ServicesCost:         masterdata.ServiceCostTotal(services),
		ManagementFeePercent: plant.ManagementFeePercent,
		Status:               StatusDraft,
	}
	rec = Recompute(rec)
	return &rec, nil
}

// RefreshFromInvoices aggregates the plant's invoices for the period.
func (s *Service) RefreshFromInvoices(ctx context.Context, plantID int64, period shared.Period) (InvoiceAggregate, error) {
	if period.IsZero() {
		return InvoiceAggregate{}, shared.Validationf("reference period required")
	}
	return s.repo.AggregateInvoices(ctx, plantID, period)
}

// Upsert loads or initialises the closing for the input's plant and period,
// optionally reaggregates invoices, applies the explicit field overrides,
// recomputes the derived values and persists the record. The paid invoices
// base override is stored as given; settlement later trusts the stored value.
func (s *Service) Upsert(ctx context.Context, input UpsertInput) (*Closing, error) {
	if input.PlantID == 0 {
		return nil, shared.Validationf("plant required")
	}
	if input.Period.IsZero() && input.ClosingID == 0 {
		return nil, shared.Validationf("reference period required")
	}
	if input.ManagementFeePercent != nil && (*input.ManagementFeePercent < 0 || *input.ManagementFeePercent > 100) {
		return nil, shared.Validationf("management fee percent must be between 0 and 100")
	}

	rec, err := s.LoadOrInit(ctx, input.PlantID, input.Period, input.ClosingID)
	if err != nil {
		return nil, err
	}
	if input.ClosingID != 0 && rec.PlantID != input.PlantID {
		return nil, shared.Validationf("closing %d does not belong to plant %d", rec.ID, input.PlantID)
	}
	if rec.Status == StatusSettled {
		return nil, shared.Validationf("closing %d is settled and cannot be edited", rec.ID)
	}

	if input.RefreshFromInvoices {
		agg, err := s.repo.AggregateInvoices(ctx, rec.PlantID, rec.Period)
		if err != nil {
			return nil, err
		}
		rec.CompensatedKWH = agg.CompensatedKWH
		rec.BilledTotal = agg.BilledTotal
		rec.PaidInvoicesBase = agg.PaidBase
	}

	applyOverride(&rec.CompensatedKWH, input.CompensatedKWH, false)
	applyOverride(&rec.BilledTotal, input.BilledTotal, true)
	applyOverride(&rec.PaidInvoicesBase, input.PaidInvoicesBase, true)
	applyOverride(&rec.AvailabilityCost, input.AvailabilityCost, true)
	applyOverride(&rec.MaintenanceCost, input.MaintenanceCost, true)
	applyOverride(&rec.LeaseCost, input.LeaseCost, true)
	applyOverride(&rec.ServicesCost, input.ServicesCost, true)
	if input.ManagementFeePercent != nil {
		rec.ManagementFeePercent = *input.ManagementFeePercent
	}

	if err := ValidateStatusEdit(rec.Status, input.Status); err != nil {
		return nil, err
	}
	if input.Status != "" {
		rec.Status = input.Status
	}

	*rec = Recompute(*rec)

	if rec.ID == 0 {
		return s.repo.InsertClosing(ctx, *rec)
	}
	return s.repo.UpdateClosing(ctx, *rec)
}

func applyOverride(dst *float64, src *float64, money bool) {
	if src == nil {
		return
	}
	if money {
		*dst = shared.Round2(*src)
		return
	}
	*dst = *src
}
