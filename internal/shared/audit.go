package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// History actions recorded by the billing core.
const (
	ActionPaymentIssued             = "payment_issued"
	ActionConsolidatedPaymentIssued = "consolidated_payment_issued"
	ActionClosingSettled            = "closing_settled"
	ActionCommissionPaid            = "commission_paid"
)

// HistoryEntry represents a record stored in history_entries.
type HistoryEntry struct {
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// HistoryRecorder appends audit trail rows. Entries are append-only.
type HistoryRecorder interface {
	Record(ctx context.Context, entry HistoryEntry) error
}

// HistoryWriter is the PostgreSQL-backed HistoryRecorder.
type HistoryWriter struct {
	pool *pgxpool.Pool
}

// NewHistoryWriter returns a new HistoryWriter.
func NewHistoryWriter(pool *pgxpool.Pool) *HistoryWriter {
	return &HistoryWriter{pool: pool}
}

// Record persists the history entry.
func (w *HistoryWriter) Record(ctx context.Context, entry HistoryEntry) error {
	if w == nil {
		return errors.New("history writer not initialised")
	}
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return errors.New("history entry requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	var at any
	if !entry.At.IsZero() {
		at = entry.At
	}
	_, err = w.pool.Exec(ctx, `INSERT INTO history_entries (action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`, entry.Action, entry.Entity, entry.EntityID, metaJSON, at)
	return err
}
