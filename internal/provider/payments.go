package provider

import (
	"context"
	"net/http"
	"time"
)

// Billing types accepted by the charge endpoint.
const (
	BillingTypeBoleto    = "BOLETO"
	BillingTypePix       = "PIX"
	BillingTypeUndefined = "UNDEFINED"
)

// PaymentInput creates a charge against a customer.
type PaymentInput struct {
	CustomerID  string  `json:"customer"`
	BillingType string  `json:"billingType"`
	Value       float64 `json:"value"`
	DueDate     string  `json:"dueDate"`
	Description string  `json:"description,omitempty"`
}

// Payment is the provider's charge record.
type Payment struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	Value       float64 `json:"value"`
	BankSlipURL string  `json:"bankSlipUrl"`
	InvoiceURL  string  `json:"invoiceUrl"`
}

// DocumentURL returns the hosted document for the charge, preferring the
// bank-slip URL over the generic invoice page.
func (p *Payment) DocumentURL() string {
	if p.BankSlipURL != "" {
		return p.BankSlipURL
	}
	return p.InvoiceURL
}

// CreatePayment issues a charge.
func (c *Client) CreatePayment(ctx context.Context, in PaymentInput) (*Payment, error) {
	var payment Payment
	if err := c.do(ctx, http.MethodPost, "/payments", nil, in, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// DueDateFormat is the provider's date wire format.
const DueDateFormat = "2006-01-02"

// FormatDueDate renders a due date for the charge endpoint.
func FormatDueDate(t time.Time) string {
	return t.Format(DueDateFormat)
}
