package closing

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/solara-erp/solara-erp/internal/platform/httpx"
	"github.com/solara-erp/solara-erp/internal/shared"
)

type closingService interface {
	Upsert(ctx context.Context, input UpsertInput) (*Closing, error)
	GetClosing(ctx context.Context, id int64) (*Closing, error)
	ListClosings(ctx context.Context, plantID int64, limit int) ([]Closing, error)
	RefreshFromInvoices(ctx context.Context, plantID int64, period shared.Period) (InvoiceAggregate, error)
}

// Handler manages plant closing endpoints.
type Handler struct {
	logger   *slog.Logger
	service  closingService
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service closingService) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers closing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/plants/{plantID}/closings", func(r chi.Router) {
		r.Get("/", h.listClosings)
		r.Put("/", h.upsertClosing)
		r.Post("/refresh", h.refreshFromInvoices)
	})
	r.Get("/closings/{id}", h.getClosing)
}

type upsertClosingRequest struct {
	Period    string `json:"period"`
	ClosingID int64  `json:"closing_id"`

	CompensatedKWH   *float64 `json:"compensated_kwh"`
	BilledTotal      *float64 `json:"billed_total"`
	PaidInvoicesBase *float64 `json:"paid_invoices_base"`

	AvailabilityCost *float64 `json:"availability_cost"`
	MaintenanceCost  *float64 `json:"maintenance_cost"`
	LeaseCost        *float64 `json:"lease_cost"`
	ServicesCost     *float64 `json:"services_cost"`

	ManagementFeePercent *float64 `json:"management_fee_percent"`

	Status  string `json:"status" validate:"omitempty,oneof=DRAFT CLOSED"`
	Refresh bool   `json:"refresh_from_invoices"`
}

func (h *Handler) upsertClosing(w http.ResponseWriter, r *http.Request) {
	plantID, err := strconv.ParseInt(chi.URLParam(r, "plantID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid plant id")
		return
	}
	var req upsertClosingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := UpsertInput{
		PlantID:              plantID,
		ClosingID:            req.ClosingID,
		CompensatedKWH:       req.CompensatedKWH,
		BilledTotal:          req.BilledTotal,
		PaidInvoicesBase:     req.PaidInvoicesBase,
		AvailabilityCost:     req.AvailabilityCost,
		MaintenanceCost:      req.MaintenanceCost,
		LeaseCost:            req.LeaseCost,
		ServicesCost:         req.ServicesCost,
		ManagementFeePercent: req.ManagementFeePercent,
		Status:               Status(req.Status),
		RefreshFromInvoices:  req.Refresh,
	}
	if req.Period != "" {
		period, err := shared.ParsePeriod(req.Period)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.Period = period
	}

	rec, err := h.service.Upsert(r.Context(), input)
	if err != nil {
		h.logger.Error("upsert closing", slog.Int64("plant_id", plantID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, closingView(rec))
}

func (h *Handler) refreshFromInvoices(w http.ResponseWriter, r *http.Request) {
	plantID, err := strconv.ParseInt(chi.URLParam(r, "plantID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid plant id")
		return
	}
	period, err := shared.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	agg, err := h.service.RefreshFromInvoices(r.Context(), plantID, period)
	if err != nil {
		h.logger.Error("refresh closing", slog.Int64("plant_id", plantID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"compensated_kwh":    agg.CompensatedKWH,
		"billed_total":       agg.BilledTotal,
		"paid_invoices_base": agg.PaidBase,
		"invoice_count":      agg.InvoiceCount,
	})
}

func (h *Handler) listClosings(w http.ResponseWriter, r *http.Request) {
	plantID, err := strconv.ParseInt(chi.URLParam(r, "plantID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid plant id")
		return
	}
	closings, err := h.service.ListClosings(r.Context(), plantID, 50)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(closings))
	for i := range closings {
		views = append(views, closingView(&closings[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"closings": views})
}

func (h *Handler) getClosing(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid closing id")
		return
	}
	rec, err := h.service.GetClosing(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, closingView(rec))
}

func closingView(c *Closing) map[string]any {
	view := map[string]any{
		"id":                     c.ID,
		"plant_id":               c.PlantID,
		"period":                 c.Period.String(),
		"compensated_kwh":        c.CompensatedKWH,
		"billed_total":           c.BilledTotal,
		"paid_invoices_base":     c.PaidInvoicesBase,
		"availability_cost":      c.AvailabilityCost,
		"maintenance_cost":       c.MaintenanceCost,
		"lease_cost":             c.LeaseCost,
		"services_cost":          c.ServicesCost,
		"management_fee_percent": c.ManagementFeePercent,
		"management_fee_value":   c.ManagementFeeValue,
		"total_expenses":         c.TotalExpenses,
		"net_balance":            c.NetBalance,
		"status":                 c.Status,
		"version":                c.Version,
	}
	if c.TransferID != "" {
		view["transfer_id"] = c.TransferID
	}
	if c.SettledAt != nil {
		view["settled_at"] = c.SettledAt
	}
	return view
}
