package billing

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/solara-erp/solara-erp/internal/shared"
)

type stubBillingService struct {
	issueInput  IssueChargeInput
	issueResult *IssueChargeResult
	issueErr    error
	invoice     *Invoice
	invoiceErr  error
}

func (s *stubBillingService) IssueCharge(ctx context.Context, input IssueChargeInput) (*IssueChargeResult, error) {
	s.issueInput = input
	if s.issueErr != nil {
		return nil, s.issueErr
	}
	return s.issueResult, nil
}

func (s *stubBillingService) CreateInvoice(ctx context.Context, input InvoiceInput) (*Invoice, error) {
	return s.invoice, s.invoiceErr
}

func (s *stubBillingService) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	if s.invoice == nil || s.invoice.ID != id {
		return nil, shared.NotFoundf("invoice %d not found", id)
	}
	return s.invoice, s.invoiceErr
}

func (s *stubBillingService) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	if s.invoice == nil {
		return nil, nil
	}
	return []Invoice{*s.invoice}, nil
}

func (s *stubBillingService) CancelInvoice(ctx context.Context, id int64) error {
	return s.invoiceErr
}

func newBillingTestServer(t *testing.T, svc *stubBillingService) *httptest.Server {
	t.Helper()
	h := NewHandler(slog.Default(), svc, nil)
	r := chi.NewRouter()
	h.MountRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestIssueChargeEndpoint(t *testing.T) {
	svc := &stubBillingService{issueResult: &IssueChargeResult{
		URL:            "https://provider.example/boleto/pay_001",
		PaymentID:      "pay_001",
		ConsolidatedID: 55,
	}}
	srv := newBillingTestServer(t, svc)

	body := `{"subscriber_id": 7, "due_date": "2026-09-10"}`
	resp, err := http.Post(srv.URL+"/billing/charges", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		URL            string `json:"url"`
		PaymentID      string `json:"payment_id"`
		ConsolidatedID int64  `json:"consolidated_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "pay_001", out.PaymentID)
	require.Equal(t, int64(55), out.ConsolidatedID)

	require.Equal(t, int64(7), svc.issueInput.SubscriberID)
	require.Equal(t, time.Date(2026, time.September, 10, 0, 0, 0, 0, time.UTC), svc.issueInput.DueDate)
}

func TestIssueChargeEndpointRejectsBadDueDate(t *testing.T) {
	srv := newBillingTestServer(t, &stubBillingService{})

	resp, err := http.Post(srv.URL+"/billing/charges", "application/json", strings.NewReader(`{"invoice_id": 1, "due_date": "10/09/2026"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIssueChargeEndpointMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", shared.Validationf("no chargeable invoices"), http.StatusBadRequest},
		{"not found", shared.NotFoundf("subscriber not found"), http.StatusNotFound},
		{"conflict", shared.Conflictf("operation already in progress"), http.StatusConflict},
		{"provider", shared.Providerf("O valor informado e invalido"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newBillingTestServer(t, &stubBillingService{issueErr: tc.err})
			resp, err := http.Post(srv.URL+"/billing/charges", "application/json", strings.NewReader(`{"invoice_id": 1}`))
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestGetInvoiceEndpoint(t *testing.T) {
	period, err := shared.ParsePeriod("2026-08")
	require.NoError(t, err)
	svc := &stubBillingService{invoice: &Invoice{
		ID:             3,
		ConsumerUnitID: 11,
		SubscriberID:   7,
		Period:         period,
		DueDate:        time.Date(2026, time.September, 10, 0, 0, 0, 0, time.UTC),
		Amount:         120.00,
		Status:         InvoiceStatusPending,
	}}
	srv := newBillingTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/billing/invoices/3")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "2026-08", out["period"])
	require.Equal(t, "2026-09-10", out["due_date"])
	require.Equal(t, string(InvoiceStatusPending), out["status"])
	require.NotContains(t, out, "provider_payment_id")
}

func TestGetInvoiceEndpointNotFound(t *testing.T) {
	srv := newBillingTestServer(t, &stubBillingService{})

	resp, err := http.Get(srv.URL + "/billing/invoices/99")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var problem struct {
		Title  string `json:"title"`
		Status int    `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	require.Equal(t, http.StatusNotFound, problem.Status)
}
