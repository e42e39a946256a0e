package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/solara-erp/solara-erp/internal/masterdata"
	"github.com/solara-erp/solara-erp/internal/provider"
	"github.com/solara-erp/solara-erp/internal/shared"
)

// RepositoryPort defines data access methods for invoices.
type RepositoryPort interface {
	CreateInvoice(ctx context.Context, input InvoiceInput) (*Invoice, error)
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListChargeable(ctx context.Context, subscriberID int64, only []int64) ([]Invoice, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error)
	CreateConsolidated(ctx context.Context, input ConsolidatedInput) (*ConsolidatedInvoice, error)
	MarkCharged(ctx context.Context, ids []int64, stamp ChargeStamp) error
	CancelInvoice(ctx context.Context, id int64) error
}

// SubscriberPort exposes the master-data access the consolidator needs.
type SubscriberPort interface {
	GetSubscriber(ctx context.Context, id int64) (*masterdata.Subscriber, error)
	SetProviderCustomerID(ctx context.Context, subscriberID int64, customerID string) error
}

// ProviderPort is the slice of the billing provider API used when charging.
type ProviderPort interface {
	FindCustomerByTaxID(ctx context.Context, taxID string) (*provider.Customer, error)
	CreateCustomer(ctx context.Context, in provider.CustomerInput) (*provider.Customer, error)
	CreatePayment(ctx context.Context, in provider.PaymentInput) (*provider.Payment, error)
}

// Service consolidates pending invoices into provider charges.
type Service struct {
	logger      *slog.Logger
	repo        RepositoryPort
	subscribers SubscriberPort
	provider    ProviderPort
	history     shared.HistoryRecorder
	ensureGroup singleflight.Group
	now         func() time.Time
}

// NewService builds Service instance.
func NewService(logger *slog.Logger, repo RepositoryPort, subscribers SubscriberPort, providerAPI ProviderPort, history shared.HistoryRecorder) *Service {
	return &Service{
		logger:      logger,
		repo:        repo,
		subscribers: subscribers,
		provider:    providerAPI,
		history:     history,
		now:         time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateInvoice records a manually entered invoice.
func (s *Service) CreateInvoice(ctx context.Context, input InvoiceInput) (*Invoice, error) {
	if input.ConsumerUnitID == 0 {
		return nil, shared.Validationf("consumer unit required")
	}
	if input.Period.IsZero() {
		return nil, shared.Validationf("reference period required")
	}
	if input.DueDate.IsZero() {
		return nil, shared.Validationf("due date required")
	}
	if input.Amount <= 0 {
		return nil, shared.Validationf("amount must be positive")
	}
	input.Amount = shared.Round2(input.Amount)
	return s.repo.CreateInvoice(ctx, input)
}

// GetInvoice returns one invoice.
func (s *Service) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// ListInvoices returns invoices matching the filters.
func (s *Service) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, req)
}

// CancelInvoice cancels an invoice that has not been charged yet.
func (s *Service) CancelInvoice(ctx context.Context, id int64) error {
	return s.repo.CancelInvoice(ctx, id)
}

// IssueCharge resolves the selected invoices, ensures a provider customer
// exists for the subscriber, issues one charge and persists the results plus
// audit trail. The provider call is not compensated: if local persistence
// fails afterwards the charge stands externally and requires reconciliation.
func (s *Service) IssueCharge(ctx context.Context, input IssueChargeInput) (*IssueChargeResult, error) {
	invoices, err := s.resolveInvoices(ctx, input)
	if err != nil {
		return nil, err
	}

	subscriber, err := s.subscribers.GetSubscriber(ctx, invoices[0].SubscriberID)
	if err != nil {
		return nil, err
	}

	customerID, err := s.ensureCustomer(ctx, subscriber)
	if err != nil {
		return nil, err
	}

	total := 0.0
	dueDate := invoices[0].DueDate
	ids := make([]int64, 0, len(invoices))
	for _, inv := range invoices {
		total += inv.Amount
		if inv.DueDate.Before(dueDate) {
			dueDate = inv.DueDate
		}
		ids = append(ids, inv.ID)
	}
	total = shared.Round2(total)
	if !input.DueDate.IsZero() {
		dueDate = input.DueDate
	}

	payment, err := s.provider.CreatePayment(ctx, provider.PaymentInput{
		CustomerID:  customerID,
		BillingType: provider.BillingTypeBoleto,
		Value:       total,
		DueDate:     provider.FormatDueDate(dueDate),
		Description: chargeDescription(invoices, total),
	})
	if err != nil {
		return nil, err
	}

	result := &IssueChargeResult{
		URL:       payment.DocumentURL(),
		PaymentID: payment.ID,
	}

	stamp := ChargeStamp{
		ProviderPaymentID:   payment.ID,
		ProviderDocumentURL: payment.DocumentURL(),
		ProviderStatus:      payment.Status,
	}
	if len(invoices) > 1 {
		consolidated, err := s.repo.CreateConsolidated(ctx, ConsolidatedInput{
			SubscriberID:        subscriber.ID,
			Total:               total,
			DueDate:             dueDate,
			ProviderPaymentID:   payment.ID,
			ProviderDocumentURL: payment.DocumentURL(),
		})
		if err != nil {
			s.logger.Error("charge issued but consolidated row not persisted",
				slog.String("payment_id", payment.ID), slog.Any("error", err))
			return nil, err
		}
		result.ConsolidatedID = consolidated.ID
		stamp.ConsolidatedID = consolidated.ID
	}

	if err := s.repo.MarkCharged(ctx, ids, stamp); err != nil {
		s.logger.Error("charge issued but invoices not linked",
			slog.String("payment_id", payment.ID), slog.Any("error", err))
		return nil, err
	}

	s.recordChargeHistory(ctx, invoices, payment.ID, result.ConsolidatedID, total)
	return result, nil
}

// resolveInvoices applies the selector rules: a single invoice id, or the
// subscriber's chargeable set optionally narrowed by an explicit id list.
func (s *Service) resolveInvoices(ctx context.Context, input IssueChargeInput) ([]Invoice, error) {
	switch {
	case input.InvoiceID != 0 && input.SubscriberID != 0:
		return nil, shared.Validationf("select either an invoice or a subscriber, not both")
	case input.InvoiceID != 0:
		inv, err := s.repo.GetInvoice(ctx, input.InvoiceID)
		if err != nil {
			return nil, err
		}
		if inv.SubscriberID == 0 {
			return nil, shared.NotFoundf("invoice %d has no subscriber", inv.ID)
		}
		if !inv.Chargeable() {
			return nil, shared.Validationf("invoice %d cannot be charged", inv.ID)
		}
		return []Invoice{*inv}, nil
	case input.SubscriberID != 0:
		invoices, err := s.repo.ListChargeable(ctx, input.SubscriberID, input.InvoiceIDs)
		if err != nil {
			return nil, err
		}
		if len(invoices) == 0 {
			return nil, shared.Validationf("subscriber %d has no chargeable invoices", input.SubscriberID)
		}
		return invoices, nil
	default:
		return nil, shared.Validationf("invoice or subscriber required")
	}
}

// ensureCustomer resolves the provider customer for a subscriber, creating it
// at most once. Lookups and creations for the same tax id are collapsed into a
// single flight so concurrent charge attempts cannot create duplicates.
func (s *Service) ensureCustomer(ctx context.Context, subscriber *masterdata.Subscriber) (string, error) {
	if subscriber.ProviderCustomerID != "" {
		return subscriber.ProviderCustomerID, nil
	}
	if subscriber.TaxID == "" {
		return "", shared.Validationf("subscriber %d has no tax id", subscriber.ID)
	}

	v, err, _ := s.ensureGroup.Do(subscriber.TaxID, func() (any, error) {
		// Re-read inside the flight: a concurrent attempt may have cached
		// the id between our read and this critical section.
		fresh, err := s.subscribers.GetSubscriber(ctx, subscriber.ID)
		if err != nil {
			return "", err
		}
		if fresh.ProviderCustomerID != "" {
			return fresh.ProviderCustomerID, nil
		}

		customer, err := s.provider.FindCustomerByTaxID(ctx, subscriber.TaxID)
		if err != nil {
			return "", err
		}
		if customer == nil {
			customer, err = s.provider.CreateCustomer(ctx, provider.CustomerInput{
				Name:  subscriber.Name,
				TaxID: subscriber.TaxID,
				Email: subscriber.Email,
			})
			if err != nil {
				return "", err
			}
		}
		if err := s.subscribers.SetProviderCustomerID(ctx, subscriber.ID, customer.ID); err != nil {
			return "", err
		}
		return customer.ID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func chargeDescription(invoices []Invoice, total float64) string {
	if len(invoices) == 1 {
		return fmt.Sprintf("Fatura de energia %s - %s", invoices[0].Period.Label(), shared.FormatBRL(total))
	}
	return fmt.Sprintf("Cobranca consolidada de %d faturas de energia - %s", len(invoices), shared.FormatBRL(total))
}

func (s *Service) recordChargeHistory(ctx context.Context, invoices []Invoice, paymentID string, consolidatedID int64, total float64) {
	if s.history == nil {
		return
	}
	at := s.now()
	for _, inv := range invoices {
		err := s.history.Record(ctx, shared.HistoryEntry{
			Action:   shared.ActionPaymentIssued,
			Entity:   "invoice",
			EntityID: fmt.Sprintf("%d", inv.ID),
			Meta: map[string]any{
				"payment_id": paymentID,
				"amount":     inv.Amount,
				"period":     inv.Period.String(),
			},
			At: at,
		})
		if err != nil {
			s.logger.Warn("history entry not recorded", slog.Int64("invoice_id", inv.ID), slog.Any("error", err))
		}
	}
	if consolidatedID > 0 {
		err := s.history.Record(ctx, shared.HistoryEntry{
			Action:   shared.ActionConsolidatedPaymentIssued,
			Entity:   "consolidated_invoice",
			EntityID: fmt.Sprintf("%d", consolidatedID),
			Meta: map[string]any{
				"payment_id": paymentID,
				"invoices":   len(invoices),
				"total":      total,
			},
			At: at,
		})
		if err != nil {
			s.logger.Warn("history entry not recorded", slog.Int64("consolidated_id", consolidatedID), slog.Any("error", err))
		}
	}
}
