package closing

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/solara-erp/solara-erp/internal/masterdata"
	"github.com/solara-erp/solara-erp/internal/shared"
)

type memoryClosingRepo struct {
	closings   map[int64]*Closing
	aggregates map[string]InvoiceAggregate
	nextID     int64
}

func newMemoryClosingRepo() *memoryClosingRepo {
	return &memoryClosingRepo{
		closings:   make(map[int64]*Closing),
		aggregates: make(map[string]InvoiceAggregate),
	}
}

func aggKey(plantID int64, period shared.Period) string {
	return fmt.Sprintf("%d#%s", plantID, period)
}

func (r *memoryClosingRepo) GetClosing(ctx context.Context, id int64) (*Closing, error) {
	c, ok := r.closings[id]
	if !ok {
		return nil, shared.NotFoundf("closing %d not found", id)
	}
	cp := *c
	return &cp, nil
}

func (r *memoryClosingRepo) FindByPlantPeriod(ctx context.Context, plantID int64, period shared.Period) (*Closing, error) {
	for _, c := range r.closings {
		if c.PlantID == plantID && c.Period == period && c.Status != StatusSettled {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memoryClosingRepo) InsertClosing(ctx context.Context, c Closing) (*Closing, error) {
	if existing, _ := r.FindByPlantPeriod(ctx, c.PlantID, c.Period); existing != nil {
		return nil, shared.Conflictf("an open closing already exists for plant %d period %s", c.PlantID, c.Period)
	}
	r.nextID++
	c.ID = r.nextID
	c.Version = 1
	stored := c
	r.closings[c.ID] = &stored
	return &c, nil
}

func (r *memoryClosingRepo) UpdateClosing(ctx context.Context, c Closing) (*Closing, error) {
	stored, ok := r.closings[c.ID]
	if !ok || stored.Version != c.Version || stored.Status == StatusSettled {
		return nil, shared.Conflictf("closing %d was modified concurrently or is settled", c.ID)
	}
	c.Version++
	next := c
	r.closings[c.ID] = &next
	return &c, nil
}

func (r *memoryClosingRepo) AggregateInvoices(ctx context.Context, plantID int64, period shared.Period) (InvoiceAggregate, error) {
	return r.aggregates[aggKey(plantID, period)], nil
}

func (r *memoryClosingRepo) ListClosings(ctx context.Context, plantID int64, limit int) ([]Closing, error) {
	var out []Closing
	for _, c := range r.closings {
		if c.PlantID == plantID {
			out = append(out, *c)
		}
	}
	return out, nil
}

type memoryPlants struct {
	plants   map[int64]*masterdata.Plant
	services map[int64][]masterdata.PlantService
}

func (p *memoryPlants) GetPlant(ctx context.Context, id int64) (*masterdata.Plant, error) {
	plant, ok := p.plants[id]
	if !ok {
		return nil, shared.NotFoundf("plant %d not found", id)
	}
	return plant, nil
}

func (p *memoryPlants) ListPlantServices(ctx context.Context, plantID int64) ([]masterdata.PlantService, error) {
	return p.services[plantID], nil
}

func newTestService(t *testing.T) (*Service, *memoryClosingRepo, *memoryPlants) {
	t.Helper()
	repo := newMemoryClosingRepo()
	plants := &memoryPlants{
		plants: map[int64]*masterdata.Plant{
			1: {
				ID:                   1,
				Name:                 "Usina Horizonte I",
				AvailabilityCost:     800,
				MaintenanceCost:      500,
				LeaseCost:            300,
				ManagementFeePercent: 5,
				PixKey:               "12345678000199",
				PixKeyType:           "CNPJ",
			},
		},
		services: map[int64][]masterdata.PlantService{
			1: {
				{ID: 1, PlantID: 1, Name: "monitoring", MonthlyCost: 100},
				{ID: 2, PlantID: 1, Name: "cleaning", MonthlyCost: 50},
			},
		},
	}
	svc := NewService(slog.Default(), repo, plants)
	return svc, repo, plants
}

func period(t *testing.T, s string) shared.Period {
	t.Helper()
	p, err := shared.ParsePeriod(s)
	require.NoError(t, err)
	return p
}

func TestLoadOrInitSeedsPlantDefaults(t *testing.T) {
	svc, _, _ := newTestService(t)

	rec, err := svc.LoadOrInit(context.Background(), 1, period(t, "2026-08"), 0)
	require.NoError(t, err)

	require.Equal(t, StatusDraft, rec.Status)
	require.Equal(t, 800.0, rec.AvailabilityCost)
	require.Equal(t, 500.0, rec.MaintenanceCost)
	require.Equal(t, 300.0, rec.LeaseCost)
	require.Equal(t, 150.0, rec.ServicesCost)
	require.Equal(t, 5.0, rec.ManagementFeePercent)
	require.Equal(t, 1750.0, rec.TotalExpenses)
}

func TestLoadOrInitPrefersExistingClosing(t *testing.T) {
	svc, repo, _ := newTestService(t)
	p := period(t, "2026-08")

	inserted, err := repo.InsertClosing(context.Background(), Closing{
		PlantID: 1, Period: p, PaidInvoicesBase: 4321, Status: StatusDraft,
	})
	require.NoError(t, err)

	rec, err := svc.LoadOrInit(context.Background(), 1, p, 0)
	require.NoError(t, err)
	require.Equal(t, inserted.ID, rec.ID)
	require.Equal(t, 4321.0, rec.PaidInvoicesBase)
}

func TestUpsertRefreshThenOverridePaidBase(t *testing.T) {
	svc, repo, _ := newTestService(t)
	p := period(t, "2026-08")
	repo.aggregates[aggKey(1, p)] = InvoiceAggregate{
		CompensatedKWH: 12000,
		BilledTotal:    11500.40,
		PaidBase:       10000.00,
		InvoiceCount:   14,
	}

	override := 9500.00
	rec, err := svc.Upsert(context.Background(), UpsertInput{
		PlantID:             1,
		Period:              p,
		RefreshFromInvoices: true,
		PaidInvoicesBase:    &override,
	})
	require.NoError(t, err)

	// The aggregation prepopulated the inputs, then the explicit override won.
	require.Equal(t, 12000.0, rec.CompensatedKWH)
	require.Equal(t, 11500.40, rec.BilledTotal)
	require.Equal(t, 9500.00, rec.PaidInvoicesBase)
	require.Equal(t, 475.00, rec.ManagementFeeValue)
	require.Equal(t, 9500.00-(475.00+1750.00), rec.NetBalance)
}

func TestUpsertRecomputesOnEveryChange(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := period(t, "2026-08")

	base := 10000.00
	rec, err := svc.Upsert(context.Background(), UpsertInput{PlantID: 1, Period: p, PaidInvoicesBase: &base})
	require.NoError(t, err)
	require.Equal(t, 500.00, rec.ManagementFeeValue)
	require.Equal(t, 7750.00, rec.NetBalance)

	newFee := 10.0
	rec, err = svc.Upsert(context.Background(), UpsertInput{PlantID: 1, Period: p, ClosingID: rec.ID, ManagementFeePercent: &newFee})
	require.NoError(t, err)
	require.Equal(t, 1000.00, rec.ManagementFeeValue)
	require.Equal(t, 7250.00, rec.NetBalance)
	require.True(t, rec.DerivedConsistent())
}

func TestUpsertRejectsSettledTarget(t *testing.T) {
	svc, repo, _ := newTestService(t)
	p := period(t, "2026-07")

	repo.nextID++
	repo.closings[repo.nextID] = &Closing{ID: repo.nextID, PlantID: 1, Period: p, Status: StatusSettled, Version: 2}

	base := 100.0
	_, err := svc.Upsert(context.Background(), UpsertInput{PlantID: 1, Period: p, ClosingID: repo.nextID, PaidInvoicesBase: &base})
	require.Error(t, err)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestUpsertRejectsForeignClosingID(t *testing.T) {
	svc, repo, _ := newTestService(t)
	p := period(t, "2026-07")

	repo.nextID++
	repo.closings[repo.nextID] = &Closing{ID: repo.nextID, PlantID: 9, Period: p, Status: StatusDraft, Version: 1}

	base := 100.0
	_, err := svc.Upsert(context.Background(), UpsertInput{PlantID: 5, Period: p, ClosingID: repo.nextID, PaidInvoicesBase: &base})
	require.Error(t, err)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestUpsertRejectsSettledStatusEdit(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Upsert(context.Background(), UpsertInput{
		PlantID: 1,
		Period:  period(t, "2026-08"),
		Status:  StatusSettled,
	})
	require.Error(t, err)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestUpsertValidatesFeePercentRange(t *testing.T) {
	svc, _, _ := newTestService(t)
	bad := 120.0
	_, err := svc.Upsert(context.Background(), UpsertInput{
		PlantID:              1,
		Period:               period(t, "2026-08"),
		ManagementFeePercent: &bad,
	})
	require.Error(t, err)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestRefreshFromInvoicesRequiresPeriod(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.RefreshFromInvoices(context.Background(), 1, shared.Period{})
	require.Error(t, err)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}
