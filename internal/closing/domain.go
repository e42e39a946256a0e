package closing

import (
	"math"
	"time"

	"github.com/solara-erp/solara-erp/internal/shared"
)

// Status enumerates the plant closing lifecycle.
type Status string

const (
	StatusDraft   Status = "DRAFT"
	StatusClosed  Status = "CLOSED"
	StatusSettled Status = "SETTLED"
)

// Closing is the monthly financial reconciliation of a plant. The fee value,
// total expenses and net balance are derived and must always equal
// Recompute over the stored inputs.
type Closing struct {
	ID      int64
	PlantID int64
	Period  shared.Period

	CompensatedKWH   float64
	BilledTotal      float64
	PaidInvoicesBase float64

	AvailabilityCost float64
	MaintenanceCost  float64
	LeaseCost        float64
	ServicesCost     float64

	ManagementFeePercent float64
	ManagementFeeValue   float64
	TotalExpenses        float64
	NetBalance           float64

	Status     Status
	TransferID string
	SettledAt  *time.Time
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Recompute rederives the fee value, total expenses and net balance from the
// record's inputs. Pure and deterministic; all currency outputs are rounded
// to two decimal places.
func Recompute(rec Closing) Closing {
	rec.ManagementFeeValue = shared.Round2(rec.PaidInvoicesBase * rec.ManagementFeePercent / 100)
	rec.TotalExpenses = shared.Round2(rec.AvailabilityCost + rec.MaintenanceCost + rec.LeaseCost + rec.ServicesCost)
	rec.NetBalance = shared.Round2(rec.PaidInvoicesBase - (rec.ManagementFeeValue + rec.TotalExpenses))
	return rec
}

// DerivedConsistent reports whether the stored derived fields match a fresh
// recomputation over the same inputs.
func (c Closing) DerivedConsistent() bool {
	fresh := Recompute(c)
	return eq2(c.ManagementFeeValue, fresh.ManagementFeeValue) &&
		eq2(c.TotalExpenses, fresh.TotalExpenses) &&
		eq2(c.NetBalance, fresh.NetBalance)
}

// eq2 compares currency values at cent precision.
func eq2(a, b float64) bool {
	return math.Abs(a-b) < 0.005
}

// ValidateStatusEdit checks a status change requested through the upsert
// surface. Draft and closed are freely interchangeable; settled is reached
// only through the settlement executor and never left.
func ValidateStatusEdit(current, target Status) error {
	if target == "" || current == target {
		return nil
	}
	if current == StatusSettled {
		return shared.Validationf("closing is settled and cannot be edited")
	}
	switch target {
	case StatusDraft, StatusClosed:
		return nil
	case StatusSettled:
		return shared.Validationf("settled status is set by settlement, not by edit")
	default:
		return shared.Validationf("unknown closing status %q", target)
	}
}

// InvoiceAggregate carries the period totals computed over a plant's invoices.
type InvoiceAggregate struct {
	CompensatedKWH float64
	BilledTotal    float64
	PaidBase       float64
	InvoiceCount   int
}

// UpsertInput applies caller-provided fields onto a loaded or initialised
// closing. Nil pointers leave the current value untouched; the paid invoices
// base may be overridden after automatic aggregation and is trusted as stored.
type UpsertInput struct {
	PlantID   int64
	Period    shared.Period
	ClosingID int64

	CompensatedKWH   *float64
	BilledTotal      *float64
	PaidInvoicesBase *float64

	AvailabilityCost *float64
	MaintenanceCost  *float64
	LeaseCost        *float64
	ServicesCost     *float64

	ManagementFeePercent *float64

	Status Status

	// RefreshFromInvoices reaggregates the period's invoices before applying
	// the explicit field overrides above.
	RefreshFromInvoices bool
}
