package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/solara-erp/solara-erp/internal/closing"
	"github.com/solara-erp/solara-erp/internal/masterdata"
	"github.com/solara-erp/solara-erp/internal/provider"
	"github.com/solara-erp/solara-erp/internal/shared"
)

// RepositoryPort defines data access methods for settlement bookkeeping.
type RepositoryPort interface {
	GetCommission(ctx context.Context, id int64) (*Commission, error)
	MarkCommissionPaid(ctx context.Context, id, version int64, transferID string) (bool, error)
	MarkPaidInvoicesSettled(ctx context.Context, plantID int64, period shared.Period) (int64, error)
	InsertCashbookEntry(ctx context.Context, e CashbookEntry) error
	SettleInflows(ctx context.Context, plantID, closingID int64, period shared.Period) (int64, error)
	CreatePendingTransfer(ctx context.Context, p PendingTransfer) error
	CompletePendingTransfer(ctx context.Context, key, transferID string) error
	AbandonPendingTransfer(ctx context.Context, key string) error
}

// ClosingPort exposes the closing access the executor needs.
type ClosingPort interface {
	GetClosing(ctx context.Context, id int64) (*closing.Closing, error)
	MarkSettled(ctx context.Context, id, version int64, transferID string) (bool, error)
}

// PlantPort exposes the master-data access the executor needs.
type PlantPort interface {
	GetPlant(ctx context.Context, id int64) (*masterdata.Plant, error)
}

// ProviderPort is the slice of the billing provider API used at payout time.
type ProviderPort interface {
	CreateTransfer(ctx context.Context, in provider.TransferInput) (*provider.Transfer, error)
}

// IdempotencyPort guards each settlement target with a persisted key, so a
// duplicate attempt is rejected even if the redis lock is unavailable.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service executes irreversible payouts and the bookkeeping that follows.
type Service struct {
	logger   *slog.Logger
	repo     RepositoryPort
	closings ClosingPort
	plants   PlantPort
	provider ProviderPort
	locker   *shared.Locker
	idem     IdempotencyPort
	history  shared.HistoryRecorder
	newKey   func() string
	now      func() time.Time
}

// NewService builds Service instance.
func NewService(logger *slog.Logger, repo RepositoryPort, closings ClosingPort, plants PlantPort, providerAPI ProviderPort, locker *shared.Locker, idem IdempotencyPort, history shared.HistoryRecorder) *Service {
	return &Service{
		logger:   logger,
		repo:     repo,
		closings: closings,
		plants:   plants,
		provider: providerAPI,
		locker:   locker,
		idem:     idem,
		history:  history,
		newKey:   uuid.NewString,
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithKeyFunc overrides idempotency key generation for deterministic tests.
func (s *Service) WithKeyFunc(fn func() string) {
	if fn != nil {
		s.newKey = fn
	}
}

// SettleClosing transfers a closing's net balance to the plant's payout key
// and performs the post-payout bookkeeping: the closing flips to settled, the
// period's paid invoices flip to settled, one outflow ledger line is written
// per non-zero expense category and matching inflow lines are settled.
// Preconditions are checked before any external call; a provider failure
// mutates nothing. The steps after a successful transfer are not atomic - a
// crash leaves the pending transfer row open for reconciliation.
func (s *Service) SettleClosing(ctx context.Context, closingID int64) (*SettleResult, error) {
	rec, err := s.closings.GetClosing(ctx, closingID)
	if err != nil {
		return nil, err
	}
	if rec.Status == closing.StatusSettled {
		return nil, shared.Validationf("closing %d is already settled", closingID)
	}
	if !rec.DerivedConsistent() {
		return nil, shared.Consistencyf("closing %d derived values diverge from their inputs", closingID)
	}
	if rec.NetBalance <= 0 {
		return nil, shared.Validationf("closing %d has no positive net balance to settle", closingID)
	}
	plant, err := s.plants.GetPlant(ctx, rec.PlantID)
	if err != nil {
		return nil, err
	}
	if !plant.HasPayoutKey() {
		return nil, shared.Validationf("plant %d has no payout key registered", plant.ID)
	}

	lockKey := shared.SettlementLockKey(TargetClosing, closingID)
	if err := s.locker.Acquire(ctx, lockKey); err != nil {
		return nil, err
	}
	defer s.locker.Release(ctx, lockKey)

	transfer, err := s.executeTransfer(ctx, PendingTransfer{
		Key:        s.newKey(),
		TargetKind: TargetClosing,
		TargetID:   closingID,
		Amount:     rec.NetBalance,
	}, provider.TransferInput{
		Value:       rec.NetBalance,
		PixKey:      plant.PixKey,
		PixKeyType:  plant.PixKeyType,
		Description: fmt.Sprintf("Fechamento %s %s - %s", plant.Name, rec.Period.Label(), shared.FormatBRL(rec.NetBalance)),
	})
	if err != nil {
		return nil, err
	}

	ok, err := s.closings.MarkSettled(ctx, rec.ID, rec.Version, transfer.ID)
	if err != nil {
		return nil, fmt.Errorf("settlement: transfer %s executed but closing not marked: %w", transfer.ID, err)
	}
	if !ok {
		// The transfer went out but another writer moved the record. Money
		// has left the account; this needs manual reconciliation.
		s.logger.Error("transfer executed but closing moved concurrently",
			slog.Int64("closing_id", rec.ID), slog.String("transfer_id", transfer.ID))
		return nil, shared.Consistencyf("transfer %s executed but closing %d changed concurrently", transfer.ID, rec.ID)
	}

	if n, err := s.repo.MarkPaidInvoicesSettled(ctx, rec.PlantID, rec.Period); err != nil {
		s.logger.Error("settled closing but invoices not flipped", slog.Int64("closing_id", rec.ID), slog.Any("error", err))
	} else {
		s.logger.Info("invoices settled", slog.Int64("closing_id", rec.ID), slog.Int64("count", n))
	}

	s.writeExpenseOutflows(ctx, rec)

	if _, err := s.repo.SettleInflows(ctx, rec.PlantID, rec.ID, rec.Period); err != nil {
		s.logger.Warn("inflow entries not settled", slog.Int64("closing_id", rec.ID), slog.Any("error", err))
	}

	s.recordHistory(ctx, shared.ActionClosingSettled, "plant_closing", rec.ID, map[string]any{
		"transfer_id": transfer.ID,
		"net_balance": rec.NetBalance,
		"period":      rec.Period.String(),
	})

	return &SettleResult{TransferID: transfer.ID}, nil
}

// PayCommission transfers a pending commission to the partner's payout key.
func (s *Service) PayCommission(ctx context.Context, commissionID int64) (*SettleResult, error) {
	com, err := s.repo.GetCommission(ctx, commissionID)
	if err != nil {
		return nil, err
	}
	if com.Status == CommissionStatusPaid {
		return nil, shared.Validationf("commission %d is already paid", commissionID)
	}
	if com.Total <= 0 {
		return nil, shared.Validationf("commission %d has no positive value to pay", commissionID)
	}
	if com.PixKey == "" {
		return nil, shared.Validationf("commission %d has no payout key registered", commissionID)
	}

	lockKey := shared.SettlementLockKey(TargetCommission, commissionID)
	if err := s.locker.Acquire(ctx, lockKey); err != nil {
		return nil, err
	}
	defer s.locker.Release(ctx, lockKey)

	transfer, err := s.executeTransfer(ctx, PendingTransfer{
		Key:        s.newKey(),
		TargetKind: TargetCommission,
		TargetID:   commissionID,
		Amount:     com.Total,
	}, provider.TransferInput{
		Value:       com.Total,
		PixKey:      com.PixKey,
		PixKeyType:  com.PixKeyType,
		Description: fmt.Sprintf("Comissao %s %s - %s", com.Partner, com.Period.Label(), shared.FormatBRL(com.Total)),
	})
	if err != nil {
		return nil, err
	}

	ok, err := s.repo.MarkCommissionPaid(ctx, com.ID, com.Version, transfer.ID)
	if err != nil {
		return nil, fmt.Errorf("settlement: transfer %s executed but commission not marked: %w", transfer.ID, err)
	}
	if !ok {
		s.logger.Error("transfer executed but commission moved concurrently",
			slog.Int64("commission_id", com.ID), slog.String("transfer_id", transfer.ID))
		return nil, shared.Consistencyf("transfer %s executed but commission %d changed concurrently", transfer.ID, com.ID)
	}

	s.recordHistory(ctx, shared.ActionCommissionPaid, "commission", com.ID, map[string]any{
		"transfer_id": transfer.ID,
		"total":       com.Total,
		"period":      com.Period.String(),
	})

	return &SettleResult{TransferID: transfer.ID}, nil
}

// executeTransfer takes the per-target idempotency key, writes the pending
// external-reference row, calls the provider, and resolves the row. A clean
// provider failure rolls back the key and the row; a crash between the call
// and the resolution leaves the row open for reconciliation.
func (s *Service) executeTransfer(ctx context.Context, pending PendingTransfer, in provider.TransferInput) (*provider.Transfer, error) {
	idemKey := fmt.Sprintf("settle:%s:%d", pending.TargetKind, pending.TargetID)
	if s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, idemKey, "settlement"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil, shared.Conflictf("%s %d settlement already processed", pending.TargetKind, pending.TargetID)
			}
			return nil, err
		}
	}

	if err := s.repo.CreatePendingTransfer(ctx, pending); err != nil {
		s.rollbackIdem(ctx, idemKey)
		return nil, err
	}

	transfer, err := s.provider.CreateTransfer(ctx, in)
	if err != nil {
		if abandonErr := s.repo.AbandonPendingTransfer(ctx, pending.Key); abandonErr != nil {
			s.logger.Warn("pending transfer row not removed", slog.String("key", pending.Key), slog.Any("error", abandonErr))
		}
		s.rollbackIdem(ctx, idemKey)
		return nil, err
	}

	if err := s.repo.CompletePendingTransfer(ctx, pending.Key, transfer.ID); err != nil {
		s.logger.Error("transfer executed but pending row not completed",
			slog.String("key", pending.Key), slog.String("transfer_id", transfer.ID), slog.Any("error", err))
	}
	return transfer, nil
}

func (s *Service) rollbackIdem(ctx context.Context, key string) {
	if s.idem == nil {
		return
	}
	if err := s.idem.Delete(ctx, key); err != nil {
		s.logger.Warn("idempotency key not rolled back", slog.String("key", key), slog.Any("error", err))
	}
}

// writeExpenseOutflows inserts one settled outflow per non-zero expense
// category, each tagged with the closing id as origin.
func (s *Service) writeExpenseOutflows(ctx context.Context, rec *closing.Closing) {
	outflows := []struct {
		category string
		amount   float64
	}{
		{CategoryMaintenance, rec.MaintenanceCost},
		{CategoryLease, rec.LeaseCost},
		{CategoryManagementFee, rec.ManagementFeeValue},
		{CategoryServices, rec.ServicesCost},
	}
	for _, o := range outflows {
		if o.amount <= 0 {
			continue
		}
		err := s.repo.InsertCashbookEntry(ctx, CashbookEntry{
			PlantID:   rec.PlantID,
			Direction: DirectionOutflow,
			Category:  o.category,
			Amount:    o.amount,
			Status:    EntryStatusSettled,
			Period:    rec.Period,
			ClosingID: rec.ID,
		})
		if err != nil {
			s.logger.Error("outflow entry not written",
				slog.Int64("closing_id", rec.ID), slog.String("category", o.category), slog.Any("error", err))
		}
	}
}

func (s *Service) recordHistory(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.history == nil {
		return
	}
	err := s.history.Record(ctx, shared.HistoryEntry{
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("history entry not recorded", slog.String("entity", entity), slog.Int64("id", id), slog.Any("error", err))
	}
}
