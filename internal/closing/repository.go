package closing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solara-erp/solara-erp/internal/platform/db"
	"github.com/solara-erp/solara-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence for plant closings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const closingColumns = `
	id, plant_id, period, compensated_kwh, billed_total, paid_invoices_base,
	availability_cost, maintenance_cost, lease_cost, services_cost,
	management_fee_percent, management_fee_value, total_expenses, net_balance,
	status, COALESCE(transfer_id, ''), settled_at, version, created_at, updated_at`

func scanClosing(row pgx.Row) (*Closing, error) {
	var c Closing
	var period string
	err := row.Scan(
		&c.ID, &c.PlantID, &period, &c.CompensatedKWH, &c.BilledTotal, &c.PaidInvoicesBase,
		&c.AvailabilityCost, &c.MaintenanceCost, &c.LeaseCost, &c.ServicesCost,
		&c.ManagementFeePercent, &c.ManagementFeeValue, &c.TotalExpenses, &c.NetBalance,
		&c.Status, &c.TransferID, &c.SettledAt, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Period, err = shared.ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetClosing retrieves a closing by ID.
func (r *Repository) GetClosing(ctx context.Context, id int64) (*Closing, error) {
	query := `SELECT ` + closingColumns + ` FROM plant_closings WHERE id = $1`
	c, err := scanClosing(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFoundf("closing %d not found", id)
		}
		return nil, err
	}
	return c, nil
}

// FindByPlantPeriod returns the non-settled closing for a plant and period,
// or nil when none exists. At most one such row exists; a partial unique
// index on (plant_id, period) WHERE status <> 'SETTLED' enforces it.
func (r *Repository) FindByPlantPeriod(ctx context.Context, plantID int64, period shared.Period) (*Closing, error) {
	query := `SELECT ` + closingColumns + ` FROM plant_closings
		WHERE plant_id = $1 AND period = $2 AND status <> 'SETTLED'`
	c, err := scanClosing(r.pool.QueryRow(ctx, query, plantID, period.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// InsertClosing persists a new closing.
func (r *Repository) InsertClosing(ctx context.Context, c Closing) (*Closing, error) {
	query := `
		INSERT INTO plant_closings (
			plant_id, period, compensated_kwh, billed_total, paid_invoices_base,
			availability_cost, maintenance_cost, lease_cost, services_cost,
			management_fee_percent, management_fee_value, total_expenses, net_balance,
			status, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, NOW(), NOW())
		RETURNING id, version, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		c.PlantID, c.Period.String(), c.CompensatedKWH, c.BilledTotal, c.PaidInvoicesBase,
		c.AvailabilityCost, c.MaintenanceCost, c.LeaseCost, c.ServicesCost,
		c.ManagementFeePercent, c.ManagementFeeValue, c.TotalExpenses, c.NetBalance,
		c.Status,
	).Scan(&c.ID, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, shared.Conflictf("an open closing already exists for plant %d period %s", c.PlantID, c.Period)
		}
		return nil, err
	}
	return &c, nil
}

// UpdateClosing persists edits to an existing non-settled closing, guarded by
// an optimistic version check.
func (r *Repository) UpdateClosing(ctx context.Context, c Closing) (*Closing, error) {
	query := `
		UPDATE plant_closings SET
			compensated_kwh = $3, billed_total = $4, paid_invoices_base = $5,
			availability_cost = $6, maintenance_cost = $7, lease_cost = $8, services_cost = $9,
			management_fee_percent = $10, management_fee_value = $11, total_expenses = $12, net_balance = $13,
			status = $14, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND status <> 'SETTLED'
		RETURNING version, updated_at`

	err := r.pool.QueryRow(ctx, query,
		c.ID, c.Version,
		c.CompensatedKWH, c.BilledTotal, c.PaidInvoicesBase,
		c.AvailabilityCost, c.MaintenanceCost, c.LeaseCost, c.ServicesCost,
		c.ManagementFeePercent, c.ManagementFeeValue, c.TotalExpenses, c.NetBalance,
		c.Status,
	).Scan(&c.Version, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.Conflictf("closing %d was modified concurrently or is settled", c.ID)
		}
		return nil, err
	}
	return &c, nil
}

// MarkSettled flips a closing to settled exactly once. Returns false when the
// version moved or the closing is already settled.
func (r *Repository) MarkSettled(ctx context.Context, id, version int64, transferID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE plant_closings
		SET status = 'SETTLED', transfer_id = $3, settled_at = NOW(), version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND status <> 'SETTLED'`,
		id, version, transferID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AggregateInvoices computes the period totals over the plant's consumer
// units' invoices. The consumer-unit lookup and the invoice aggregation run
// inside one RepeatableRead snapshot so concurrent invoice edits cannot be
// half-counted.
func (r *Repository) AggregateInvoices(ctx context.Context, plantID int64, period shared.Period) (InvoiceAggregate, error) {
	var agg InvoiceAggregate
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT id FROM consumer_units WHERE plant_id = $1`, plantID)
		if err != nil {
			return err
		}
		var unitIDs []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			unitIDs = append(unitIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(unitIDs) == 0 {
			return nil
		}

		return tx.QueryRow(ctx, `
			SELECT
				COALESCE(SUM(energy_kwh), 0),
				COALESCE(SUM(amount), 0),
				COALESCE(SUM(amount) FILTER (WHERE status = 'PAID'), 0),
				COUNT(*)
			FROM invoices
			WHERE consumer_unit_id = ANY($1::bigint[]) AND period = $2`,
			unitIDs, period.String(),
		).Scan(&agg.CompensatedKWH, &agg.BilledTotal, &agg.PaidBase, &agg.InvoiceCount)
	})
	if err != nil {
		return InvoiceAggregate{}, err
	}
	agg.CompensatedKWH = shared.Round2(agg.CompensatedKWH)
	agg.BilledTotal = shared.Round2(agg.BilledTotal)
	agg.PaidBase = shared.Round2(agg.PaidBase)
	return agg, nil
}

// ListClosings returns the closings for a plant, newest period first.
func (r *Repository) ListClosings(ctx context.Context, plantID int64, limit int) ([]Closing, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+closingColumns+` FROM plant_closings WHERE plant_id = $1 ORDER BY period DESC, id DESC LIMIT $2`,
		plantID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var closings []Closing
	for rows.Next() {
		c, err := scanClosing(rows)
		if err != nil {
			return nil, err
		}
		closings = append(closings, *c)
	}
	return closings, rows.Err()
}
