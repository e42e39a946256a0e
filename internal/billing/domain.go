package billing

import (
	"time"

	"github.com/solara-erp/solara-erp/internal/shared"
)

// InvoiceStatus enumerates invoice statuses.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
	InvoiceStatusSettled   InvoiceStatus = "SETTLED"
)

// Invoice is one period's billable amount for a consumer unit. Once a provider
// charge is issued against it the row is never deleted, only status-flipped.
type Invoice struct {
	ID                    int64
	ConsumerUnitID        int64
	SubscriberID          int64
	Period                shared.Period
	DueDate               time.Time
	EnergyKWH             float64
	Amount                float64
	Status                InvoiceStatus
	ProviderPaymentID     string
	ProviderDocumentURL   string
	ProviderStatus        string
	ConsolidatedInvoiceID int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Chargeable reports whether the invoice may still be included in a charge:
// not paid or cancelled, and no provider charge issued yet.
func (i *Invoice) Chargeable() bool {
	if i == nil {
		return false
	}
	if i.Status == InvoiceStatusPaid || i.Status == InvoiceStatusCancelled || i.Status == InvoiceStatusSettled {
		return false
	}
	return i.ProviderPaymentID == ""
}

// ConsolidatedInvoice aggregates several invoices of one subscriber into a
// single external charge. Total is fixed at creation time.
type ConsolidatedInvoice struct {
	ID                  int64
	SubscriberID        int64
	Total               float64
	DueDate             time.Time
	ProviderPaymentID   string
	ProviderDocumentURL string
	Status              InvoiceStatus
	CreatedAt           time.Time
}

// InvoiceInput creates an invoice from manual entry.
type InvoiceInput struct {
	ConsumerUnitID int64
	Period         shared.Period
	DueDate        time.Time
	EnergyKWH      float64
	Amount         float64
}

// IssueChargeInput selects the invoices to charge. Exactly one of InvoiceID or
// SubscriberID must be set; InvoiceIDs optionally narrows the subscriber
// selection; DueDate overrides the computed due date.
type IssueChargeInput struct {
	InvoiceID    int64
	SubscriberID int64
	InvoiceIDs   []int64
	DueDate      time.Time
}

// IssueChargeResult is the caller-facing outcome of a charge.
type IssueChargeResult struct {
	URL            string
	PaymentID      string
	ConsolidatedID int64
}

// ChargeStamp carries the provider charge references written onto every
// selected invoice after a successful charge.
type ChargeStamp struct {
	ProviderPaymentID   string
	ProviderDocumentURL string
	ProviderStatus      string
	ConsolidatedID      int64
}

// ConsolidatedInput creates the aggregate row for a multi-invoice charge.
type ConsolidatedInput struct {
	SubscriberID        int64
	Total               float64
	DueDate             time.Time
	ProviderPaymentID   string
	ProviderDocumentURL string
}

// ListInvoicesRequest filters invoice listings.
type ListInvoicesRequest struct {
	SubscriberID int64
	Status       InvoiceStatus
	Period       shared.Period
	Limit        int
}
