package settlement

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/solara-erp/solara-erp/internal/observability"
	"github.com/solara-erp/solara-erp/internal/platform/httpx"
	"github.com/solara-erp/solara-erp/internal/shared"
)

type settlementService interface {
	SettleClosing(ctx context.Context, closingID int64) (*SettleResult, error)
	PayCommission(ctx context.Context, commissionID int64) (*SettleResult, error)
}

type cashbookReader interface {
	ListCashbookEntries(ctx context.Context, plantID int64, limit int) ([]CashbookEntry, error)
}

// Handler manages settlement endpoints.
type Handler struct {
	logger   *slog.Logger
	service  settlementService
	cashbook cashbookReader
	metrics  *observability.Metrics
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service settlementService, cashbook cashbookReader, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, cashbook: cashbook, metrics: metrics}
}

// MountRoutes registers settlement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/closings/{id}/settle", h.settleClosing)
	r.Post("/commissions/{id}/pay", h.payCommission)
	r.Get("/plants/{plantID}/cashbook", h.listCashbook)
}

func (h *Handler) settleClosing(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid closing id")
		return
	}
	result, err := h.service.SettleClosing(r.Context(), id)
	if err != nil {
		h.logger.Error("settle closing", slog.Int64("closing_id", id), slog.Any("error", err))
		h.countFailure(err)
		httpx.RespondError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.Settlements.WithLabelValues(TargetClosing).Inc()
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfer_id": result.TransferID})
}

func (h *Handler) payCommission(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid commission id")
		return
	}
	result, err := h.service.PayCommission(r.Context(), id)
	if err != nil {
		h.logger.Error("pay commission", slog.Int64("commission_id", id), slog.Any("error", err))
		h.countFailure(err)
		httpx.RespondError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.Settlements.WithLabelValues(TargetCommission).Inc()
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfer_id": result.TransferID})
}

func (h *Handler) listCashbook(w http.ResponseWriter, r *http.Request) {
	plantID, err := strconv.ParseInt(chi.URLParam(r, "plantID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid plant id")
		return
	}
	entries, err := h.cashbook.ListCashbookEntries(r.Context(), plantID, 100)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		view := map[string]any{
			"id":        e.ID,
			"plant_id":  e.PlantID,
			"direction": e.Direction,
			"category":  e.Category,
			"amount":    e.Amount,
			"status":    e.Status,
			"period":    e.Period.String(),
		}
		if e.ClosingID > 0 {
			view["closing_id"] = e.ClosingID
		}
		if e.InvoiceID > 0 {
			view["invoice_id"] = e.InvoiceID
		}
		views = append(views, view)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": views})
}

func (h *Handler) countFailure(err error) {
	if h.metrics == nil {
		return
	}
	if shared.KindOf(err) == shared.KindProvider {
		h.metrics.TransferFailures.Inc()
	}
}
