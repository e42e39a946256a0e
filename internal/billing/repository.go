package billing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solara-erp/solara-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence for invoices.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const invoiceColumns = `
	i.id, i.consumer_unit_id, cu.subscriber_id, i.period, i.due_date,
	i.energy_kwh, i.amount, i.status,
	COALESCE(i.provider_payment_id, ''), COALESCE(i.provider_document_url, ''),
	COALESCE(i.provider_status, ''), COALESCE(i.consolidated_invoice_id, 0),
	i.created_at, i.updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var period string
	err := row.Scan(
		&inv.ID, &inv.ConsumerUnitID, &inv.SubscriberID, &period, &inv.DueDate,
		&inv.EnergyKWH, &inv.Amount, &inv.Status,
		&inv.ProviderPaymentID, &inv.ProviderDocumentURL,
		&inv.ProviderStatus, &inv.ConsolidatedInvoiceID,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.Period, err = shared.ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// CreateInvoice inserts a manually entered invoice.
func (r *Repository) CreateInvoice(ctx context.Context, input InvoiceInput) (*Invoice, error) {
	query := `
		INSERT INTO invoices (consumer_unit_id, period, due_date, energy_kwh, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'PENDING', NOW(), NOW())
		RETURNING id, created_at, updated_at`

	var inv Invoice
	err := r.pool.QueryRow(ctx, query,
		input.ConsumerUnitID,
		input.Period.String(),
		input.DueDate,
		input.EnergyKWH,
		input.Amount,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}

	inv.ConsumerUnitID = input.ConsumerUnitID
	inv.Period = input.Period
	inv.DueDate = input.DueDate
	inv.EnergyKWH = input.EnergyKWH
	inv.Amount = input.Amount
	inv.Status = InvoiceStatusPending
	return &inv, nil
}

// GetInvoice retrieves an invoice together with its owning subscriber id.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices i
		JOIN consumer_units cu ON cu.id = i.consumer_unit_id
		WHERE i.id = $1`

	inv, err := scanInvoice(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFoundf("invoice %d not found", id)
		}
		return nil, err
	}
	return inv, nil
}

// ListChargeable selects the subscriber's invoices eligible for a new charge:
// status not paid or cancelled, no provider charge issued yet, optionally
// narrowed to an explicit id subset.
func (r *Repository) ListChargeable(ctx context.Context, subscriberID int64, only []int64) ([]Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices i
		JOIN consumer_units cu ON cu.id = i.consumer_unit_id
		WHERE cu.subscriber_id = $1
		  AND i.status NOT IN ('PAID', 'CANCELLED', 'SETTLED')
		  AND i.provider_payment_id IS NULL
		  AND (cardinality($2::bigint[]) = 0 OR i.id = ANY($2::bigint[]))
		ORDER BY i.due_date, i.id`

	if only == nil {
		only = []int64{}
	}
	rows, err := r.pool.Query(ctx, query, subscriberID, only)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// ListInvoices returns invoices matching the request filters.
func (r *Repository) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	limit := req.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices i
		JOIN consumer_units cu ON cu.id = i.consumer_unit_id
		WHERE ($1 = 0 OR cu.subscriber_id = $1)
		  AND ($2 = '' OR i.status = $2)
		  AND ($3 = '' OR i.period = $3)
		ORDER BY i.due_date DESC, i.id DESC
		LIMIT $4`

	var period string
	if !req.Period.IsZero() {
		period = req.Period.String()
	}
	rows, err := r.pool.Query(ctx, query, req.SubscriberID, string(req.Status), period, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// CreateConsolidated inserts the aggregate charge row.
func (r *Repository) CreateConsolidated(ctx context.Context, input ConsolidatedInput) (*ConsolidatedInvoice, error) {
	query := `
		INSERT INTO consolidated_invoices (subscriber_id, total, due_date, provider_payment_id, provider_document_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'PENDING', NOW())
		RETURNING id, created_at`

	var ci ConsolidatedInvoice
	err := r.pool.QueryRow(ctx, query,
		input.SubscriberID,
		input.Total,
		input.DueDate,
		input.ProviderPaymentID,
		input.ProviderDocumentURL,
	).Scan(&ci.ID, &ci.CreatedAt)
	if err != nil {
		return nil, err
	}

	ci.SubscriberID = input.SubscriberID
	ci.Total = input.Total
	ci.DueDate = input.DueDate
	ci.ProviderPaymentID = input.ProviderPaymentID
	ci.ProviderDocumentURL = input.ProviderDocumentURL
	ci.Status = InvoiceStatusPending
	return &ci, nil
}

// MarkCharged writes the provider charge references onto the selected invoices.
func (r *Repository) MarkCharged(ctx context.Context, ids []int64, stamp ChargeStamp) error {
	var consolidatedID pgtype.Int8
	if stamp.ConsolidatedID > 0 {
		consolidatedID = pgtype.Int8{Int64: stamp.ConsolidatedID, Valid: true}
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE invoices
		SET provider_payment_id = $2,
			provider_document_url = $3,
			provider_status = $4,
			consolidated_invoice_id = $5,
			updated_at = NOW()
		WHERE id = ANY($1::bigint[])`,
		ids, stamp.ProviderPaymentID, stamp.ProviderDocumentURL, stamp.ProviderStatus, consolidatedID,
	)
	return err
}

// CancelInvoice flips an uncharged invoice to cancelled.
func (r *Repository) CancelInvoice(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invoices SET status = 'CANCELLED', updated_at = NOW()
		WHERE id = $1 AND provider_payment_id IS NULL AND status NOT IN ('PAID', 'SETTLED', 'CANCELLED')`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Conflictf("invoice %d cannot be cancelled", id)
	}
	return nil
}
