package settlement

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solara-erp/solara-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence for settlement records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetCommission retrieves a commission by ID.
func (r *Repository) GetCommission(ctx context.Context, id int64) (*Commission, error) {
	query := `
		SELECT id, partner, period, total, status, COALESCE(pix_key, ''), COALESCE(pix_key_type, ''),
			COALESCE(transfer_id, ''), paid_at, version, created_at, updated_at
		FROM commissions WHERE id = $1`

	var c Commission
	var period string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Partner, &period, &c.Total, &c.Status, &c.PixKey, &c.PixKeyType,
		&c.TransferID, &c.PaidAt, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFoundf("commission %d not found", id)
		}
		return nil, err
	}
	c.Period, err = shared.ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkCommissionPaid flips a commission to paid exactly once.
func (r *Repository) MarkCommissionPaid(ctx context.Context, id, version int64, transferID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE commissions
		SET status = 'PAID', transfer_id = $3, paid_at = NOW(), version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND status <> 'PAID'`,
		id, version, transferID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkPaidInvoicesSettled flips every paid invoice of the plant's period to
// settled. Returns the number of invoices flipped.
func (r *Repository) MarkPaidInvoicesSettled(ctx context.Context, plantID int64, period shared.Period) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invoices SET status = 'SETTLED', updated_at = NOW()
		WHERE status = 'PAID'
		  AND period = $2
		  AND consumer_unit_id IN (SELECT id FROM consumer_units WHERE plant_id = $1)`,
		plantID, period.String(),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertCashbookEntry appends one ledger line.
func (r *Repository) InsertCashbookEntry(ctx context.Context, e CashbookEntry) error {
	var closingID, invoiceID pgtype.Int8
	if e.ClosingID > 0 {
		closingID = pgtype.Int8{Int64: e.ClosingID, Valid: true}
	}
	if e.InvoiceID > 0 {
		invoiceID = pgtype.Int8{Int64: e.InvoiceID, Valid: true}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO cashbook_entries (plant_id, direction, category, amount, status, period, closing_id, invoice_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
		e.PlantID, e.Direction, e.Category, e.Amount, e.Status, e.Period.String(), closingID, invoiceID,
	)
	return err
}

// SettleInflows flips provisioned inflow entries for the closing to settled.
// Entries already carrying the closing id match exactly; rows from before the
// link existed fall back to plant + period.
func (r *Repository) SettleInflows(ctx context.Context, plantID, closingID int64, period shared.Period) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE cashbook_entries
		SET status = 'SETTLED'
		WHERE direction = 'INFLOW'
		  AND status = 'PROVISIONED'
		  AND (closing_id = $2 OR (closing_id IS NULL AND plant_id = $1 AND period = $3))`,
		plantID, closingID, period.String(),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListCashbookEntries returns a plant's ledger lines, newest first.
func (r *Repository) ListCashbookEntries(ctx context.Context, plantID int64, limit int) ([]CashbookEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, plant_id, direction, category, amount, status, period,
			COALESCE(closing_id, 0), COALESCE(invoice_id, 0), created_at
		FROM cashbook_entries WHERE plant_id = $1 ORDER BY id DESC LIMIT $2`,
		plantID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []CashbookEntry
	for rows.Next() {
		var e CashbookEntry
		var period string
		if err := rows.Scan(&e.ID, &e.PlantID, &e.Direction, &e.Category, &e.Amount, &e.Status,
			&period, &e.ClosingID, &e.InvoiceID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Period, err = shared.ParsePeriod(period)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CreatePendingTransfer writes the external-reference row for an attempt.
func (r *Repository) CreatePendingTransfer(ctx context.Context, p PendingTransfer) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO pending_transfers (key, target_kind, target_id, amount, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		p.Key, p.TargetKind, p.TargetID, p.Amount,
	)
	return err
}

// CompletePendingTransfer records the provider transfer id on the attempt row.
func (r *Repository) CompletePendingTransfer(ctx context.Context, key, transferID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE pending_transfers SET transfer_id = $2, completed_at = NOW() WHERE key = $1`,
		key, transferID,
	)
	return err
}

// AbandonPendingTransfer removes the attempt row after a clean provider
// failure, so only crashed attempts remain open for reconciliation.
func (r *Repository) AbandonPendingTransfer(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM pending_transfers WHERE key = $1`, key)
	return err
}
