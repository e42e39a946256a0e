package billing

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/solara-erp/solara-erp/internal/observability"
	"github.com/solara-erp/solara-erp/internal/platform/httpx"
	"github.com/solara-erp/solara-erp/internal/provider"
	"github.com/solara-erp/solara-erp/internal/shared"
)

type billingService interface {
	IssueCharge(ctx context.Context, input IssueChargeInput) (*IssueChargeResult, error)
	CreateInvoice(ctx context.Context, input InvoiceInput) (*Invoice, error)
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error)
	CancelInvoice(ctx context.Context, id int64) error
}

// Handler manages billing endpoints.
type Handler struct {
	logger   *slog.Logger
	service  billingService
	validate *validator.Validate
	metrics  *observability.Metrics
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service billingService, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		metrics:  metrics,
	}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/billing", func(r chi.Router) {
		r.Post("/charges", h.issueCharge)
		r.Post("/invoices", h.createInvoice)
		r.Get("/invoices", h.listInvoices)
		r.Get("/invoices/{id}", h.getInvoice)
		r.Post("/invoices/{id}/cancel", h.cancelInvoice)
	})
}

type issueChargeRequest struct {
	InvoiceID    int64   `json:"invoice_id"`
	SubscriberID int64   `json:"subscriber_id"`
	InvoiceIDs   []int64 `json:"invoice_ids"`
	DueDate      string  `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
}

type issueChargeResponse struct {
	URL            string `json:"url"`
	PaymentID      string `json:"payment_id"`
	ConsolidatedID int64  `json:"consolidated_id,omitempty"`
}

func (h *Handler) issueCharge(w http.ResponseWriter, r *http.Request) {
	var req issueChargeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := IssueChargeInput{
		InvoiceID:    req.InvoiceID,
		SubscriberID: req.SubscriberID,
		InvoiceIDs:   req.InvoiceIDs,
	}
	if req.DueDate != "" {
		due, err := time.Parse(provider.DueDateFormat, req.DueDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid due_date")
			return
		}
		input.DueDate = due
	}

	result, err := h.service.IssueCharge(r.Context(), input)
	if err != nil {
		h.logger.Error("issue charge", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	if h.metrics != nil {
		mode := "single"
		if result.ConsolidatedID > 0 {
			mode = "consolidated"
		}
		h.metrics.ChargesIssued.WithLabelValues(mode).Inc()
	}

	httpx.JSON(w, http.StatusCreated, issueChargeResponse{
		URL:            result.URL,
		PaymentID:      result.PaymentID,
		ConsolidatedID: result.ConsolidatedID,
	})
}

type createInvoiceRequest struct {
	ConsumerUnitID int64   `json:"consumer_unit_id" validate:"required"`
	Period         string  `json:"period" validate:"required"`
	DueDate        string  `json:"due_date" validate:"required,datetime=2006-01-02"`
	EnergyKWH      float64 `json:"energy_kwh" validate:"gte=0"`
	Amount         float64 `json:"amount" validate:"gt=0"`
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	period, err := shared.ParsePeriod(req.Period)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	due, err := time.Parse(provider.DueDateFormat, req.DueDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid due_date")
		return
	}

	invoice, err := h.service.CreateInvoice(r.Context(), InvoiceInput{
		ConsumerUnitID: req.ConsumerUnitID,
		Period:         period,
		DueDate:        due,
		EnergyKWH:      req.EnergyKWH,
		Amount:         req.Amount,
	})
	if err != nil {
		h.logger.Error("create invoice", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoiceView(invoice))
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	req := ListInvoicesRequest{
		Status: InvoiceStatus(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("subscriber_id"); v != "" {
		req.SubscriberID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := r.URL.Query().Get("period"); v != "" {
		period, err := shared.ParsePeriod(v)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		req.Period = period
	}

	invoices, err := h.service.ListInvoices(r.Context(), req)
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(invoices))
	for i := range invoices {
		views = append(views, invoiceView(&invoices[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": views})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	invoice, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceView(invoice))
}

func (h *Handler) cancelInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	if err := h.service.CancelInvoice(r.Context(), id); err != nil {
		h.logger.Error("cancel invoice", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": string(InvoiceStatusCancelled)})
}

func invoiceView(inv *Invoice) map[string]any {
	view := map[string]any{
		"id":               inv.ID,
		"consumer_unit_id": inv.ConsumerUnitID,
		"subscriber_id":    inv.SubscriberID,
		"period":           inv.Period.String(),
		"due_date":         inv.DueDate.Format(provider.DueDateFormat),
		"energy_kwh":       inv.EnergyKWH,
		"amount":           inv.Amount,
		"status":           inv.Status,
	}
	if inv.ProviderPaymentID != "" {
		view["provider_payment_id"] = inv.ProviderPaymentID
		view["provider_document_url"] = inv.ProviderDocumentURL
	}
	if inv.ConsolidatedInvoiceID > 0 {
		view["consolidated_invoice_id"] = inv.ConsolidatedInvoiceID
	}
	return view
}
