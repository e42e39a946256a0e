package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solara-erp/solara-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence for master data.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetSubscriber retrieves a subscriber by ID.
func (r *Repository) GetSubscriber(ctx context.Context, id int64) (*Subscriber, error) {
	query := `
		SELECT id, name, tax_id, email, COALESCE(provider_customer_id, ''), created_at, updated_at
		FROM subscribers WHERE id = $1`

	var sub Subscriber
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&sub.ID, &sub.Name, &sub.TaxID, &sub.Email, &sub.ProviderCustomerID, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFoundf("subscriber %d not found", id)
		}
		return nil, err
	}
	return &sub, nil
}

// SetProviderCustomerID caches the provider customer id on the subscriber.
func (r *Repository) SetProviderCustomerID(ctx context.Context, subscriberID int64, customerID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE subscribers SET provider_customer_id = $2, updated_at = NOW() WHERE id = $1`,
		subscriberID, customerID,
	)
	return err
}

// GetPlant retrieves a plant by ID.
func (r *Repository) GetPlant(ctx context.Context, id int64) (*Plant, error) {
	query := `
		SELECT id, name, availability_cost, maintenance_cost, lease_cost,
			management_fee_percent, COALESCE(pix_key, ''), COALESCE(pix_key_type, ''),
			created_at, updated_at
		FROM plants WHERE id = $1`

	var plant Plant
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&plant.ID, &plant.Name, &plant.AvailabilityCost, &plant.MaintenanceCost, &plant.LeaseCost,
		&plant.ManagementFeePercent, &plant.PixKey, &plant.PixKeyType,
		&plant.CreatedAt, &plant.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFoundf("plant %d not found", id)
		}
		return nil, err
	}
	return &plant, nil
}

// ListPlantServices returns the recurring services contracted for a plant.
func (r *Repository) ListPlantServices(ctx context.Context, plantID int64) ([]PlantService, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, plant_id, name, monthly_cost FROM plant_services WHERE plant_id = $1 ORDER BY id`,
		plantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []PlantService
	for rows.Next() {
		var s PlantService
		if err := rows.Scan(&s.ID, &s.PlantID, &s.Name, &s.MonthlyCost); err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	return services, rows.Err()
}
