package settlement

import (
	"time"

	"github.com/solara-erp/solara-erp/internal/shared"
)

// Direction of a cashbook entry.
type Direction string

const (
	DirectionInflow  Direction = "INFLOW"
	DirectionOutflow Direction = "OUTFLOW"
)

// EntryStatus of a cashbook entry.
type EntryStatus string

const (
	EntryStatusProvisioned EntryStatus = "PROVISIONED"
	EntryStatusSettled     EntryStatus = "SETTLED"
)

// Cashbook expense categories written at settlement time.
const (
	CategoryMaintenance   = "maintenance"
	CategoryLease         = "lease"
	CategoryManagementFee = "management_fee"
	CategoryServices      = "services"
)

// CashbookEntry is a ledger line tied to a plant's finances. Entries are never
// mutated except the status flip to settled; outflows written at settlement
// are born settled. The closing id is an explicit foreign key so settlement
// can link inflows exactly instead of by textual matching.
type CashbookEntry struct {
	ID        int64
	PlantID   int64
	Direction Direction
	Category  string
	Amount    float64
	Status    EntryStatus
	Period    shared.Period
	ClosingID int64
	InvoiceID int64
	CreatedAt time.Time
}

// CommissionStatus of a referral commission.
type CommissionStatus string

const (
	CommissionStatusPending CommissionStatus = "PENDING"
	CommissionStatusPaid    CommissionStatus = "PAID"
)

// Commission is a referral payout for a period, mutated exactly once at
// settlement.
type Commission struct {
	ID         int64
	Partner    string
	Period     shared.Period
	Total      float64
	Status     CommissionStatus
	PixKey     string
	PixKeyType string
	TransferID string
	PaidAt     *time.Time
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PendingTransfer is the external-reference row written before the provider
// transfer call. A row left without a transfer id marks an attempt that may
// have side effects at the provider and needs manual reconciliation.
type PendingTransfer struct {
	Key         string
	TargetKind  string
	TargetID    int64
	Amount      float64
	TransferID  string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Pending transfer target kinds.
const (
	TargetClosing    = "closing"
	TargetCommission = "commission"
)

// SettleResult is the caller-facing outcome of a settlement.
type SettleResult struct {
	TransferID string
}
