package workorders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gearbox-erp/gearbox/internal/parts"
	"github.com/gearbox-erp/gearbox/internal/quotes"
	"github.com/gearbox-erp/gearbox/internal/shared"
)

// StorePort abstracts store usage for the service.
type StorePort interface {
	RunTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	Get(ctx context.Context, workOrderID int64) (WorkOrder, error)
	List(ctx context.Context, filter ListFilter) ([]WorkOrder, int, error)
	MarkOverdue(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the work order lifecycle. Every stock mutation happens
// inside a single transaction with the document change that justifies it, so
// a failure at any step leaves the ledger untouched.
type Service struct {
	store    StorePort
	audit    AuditPort
	lowStock parts.LowStockPublisher
	logger   *slog.Logger
	dueDays  int
}

// NewService builds Service. dueDays sets the payment window granted at
// creation time.
func NewService(store StorePort, audit AuditPort, lowStock parts.LowStockPublisher, logger *slog.Logger, dueDays int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if dueDays < 1 {
		dueDays = 7
	}
	return &Service{store: store, audit: audit, lowStock: lowStock, logger: logger, dueDays: dueDays}
}

// ConvertQuote turns an approved quote into a work order, reserving every
// part line in the same transaction. The transaction is retried on
// serialization conflicts; exhaustion surfaces db.ErrTxConflict so callers
// can retry with backoff.
func (s *Service) ConvertQuote(ctx context.Context, quoteID int64) (WorkOrder, error) {
	var (
		workOrderID int64
		lowEvents   []parts.LowStockEvent
	)
	err := s.store.RunTx(ctx, func(ctx context.Context, tx TxStore) error {
		workOrderID = 0
		lowEvents = lowEvents[:0]

		quote, err := tx.QuoteForUpdate(ctx, quoteID)
		if err != nil {
			return err
		}
		if quote.Converted() {
			return &AlreadyConvertedError{WorkOrderID: *quote.WorkOrderID}
		}
		if quote.Status != quotes.StatusApproved {
			return ErrQuoteNotApproved
		}

		now := time.Now()
		wo := WorkOrder{
			ClientID:      quote.ClientID,
			VehicleID:     quote.VehicleID,
			QuoteID:       &quote.ID,
			Status:        StatusPending,
			PaymentStatus: PaymentPending,
			EntryDate:     now,
			DueDate:       now.AddDate(0, 0, s.dueDays),
			Observations:  quote.Observations,
		}
		for _, item := range quote.Items {
			switch item.Kind {
			case quotes.KindPart:
				if item.PartID == nil {
					return fmt.Errorf("workorders: quote %d part line without part id", quote.ID)
				}
				wo.Parts = append(wo.Parts, PartLine{
					PartID:      *item.PartID,
					Description: item.Description,
					Quantity:    item.Quantity,
					UnitPrice:   item.UnitPrice,
				})
			case quotes.KindService:
				wo.Services = append(wo.Services, ServiceLine{
					Description: item.Description,
					Price:       item.LineTotal,
				})
			}
		}
		wo.RecomputeTotal()

		// Locking parts in ascending id order keeps concurrent conversions
		// from deadlocking on each other.
		sortPartLines(wo.Parts)
		for _, line := range wo.Parts {
			part, err := s.reserve(ctx, tx, line.PartID, line.Quantity)
			if err != nil {
				if errors.Is(err, parts.ErrPartNotFound) {
					return fmt.Errorf("part %q: %w", line.Description, err)
				}
				return err
			}
			if part.LowStock() {
				lowEvents = append(lowEvents, parts.NewLowStockEvent(part))
			}
		}

		workOrderID, err = tx.InsertWorkOrder(ctx, wo)
		if err != nil {
			return err
		}
		return tx.BindQuote(ctx, quote.ID, workOrderID)
	})
	if err != nil {
		return WorkOrder{}, err
	}
	s.publishLow(ctx, lowEvents)
	s.recordAudit(ctx, "workorders:convert", workOrderID, map[string]any{"quote_id": quoteID})
	return s.store.Get(ctx, workOrderID)
}

// Create registers a work order directly, without a quote. Part lines are
// priced from the ledger and reserved in the same transaction.
func (s *Service) Create(ctx context.Context, wo WorkOrder) (WorkOrder, error) {
	if len(wo.Parts) == 0 && len(wo.Services) == 0 {
		return WorkOrder{}, ErrEmptyOrder
	}
	for _, line := range wo.Parts {
		if line.Quantity <= 0 {
			return WorkOrder{}, parts.ErrInvalidQuantity
		}
	}
	now := time.Now()
	wo.QuoteID = nil
	wo.Status = StatusPending
	wo.PaymentStatus = PaymentPending
	wo.EntryDate = now
	wo.DueDate = now.AddDate(0, 0, s.dueDays)
	wo.CompletedAt = nil

	var (
		workOrderID int64
		lowEvents   []parts.LowStockEvent
	)
	sortPartLines(wo.Parts)
	err := s.store.RunTx(ctx, func(ctx context.Context, tx TxStore) error {
		lowEvents = lowEvents[:0]
		for i := range wo.Parts {
			part, err := s.reserve(ctx, tx, wo.Parts[i].PartID, wo.Parts[i].Quantity)
			if err != nil {
				return err
			}
			wo.Parts[i].Description = part.Description
			wo.Parts[i].UnitPrice = part.SalePrice
			if part.LowStock() {
				lowEvents = append(lowEvents, parts.NewLowStockEvent(part))
			}
		}
		wo.RecomputeTotal()
		var err error
		workOrderID, err = tx.InsertWorkOrder(ctx, wo)
		return err
	})
	if err != nil {
		return WorkOrder{}, err
	}
	s.publishLow(ctx, lowEvents)
	s.recordAudit(ctx, "workorders:create", workOrderID, map[string]any{"client_id": wo.ClientID})
	return s.store.Get(ctx, workOrderID)
}

// Get returns a work order with its lines.
func (s *Service) Get(ctx context.Context, workOrderID int64) (WorkOrder, error) {
	return s.store.Get(ctx, workOrderID)
}

// List pages through work orders.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]WorkOrder, int, error) {
	return s.store.List(ctx, filter)
}

// Start moves a pending work order into execution.
func (s *Service) Start(ctx context.Context, workOrderID int64) (WorkOrder, error) {
	err := s.store.RunTx(ctx, func(ctx context.Context, tx TxStore) error {
		wo, err := tx.WorkOrderForUpdate(ctx, workOrderID)
		if err != nil {
			return err
		}
		if wo.Status != StatusPending {
			return &InvalidTransitionError{From: wo.Status, To: StatusInProgress}
		}
		return tx.UpdateStatus(ctx, workOrderID, StatusInProgress, nil)
	})
	if err != nil {
		return WorkOrder{}, err
	}
	s.recordAudit(ctx, "workorders:start", workOrderID, nil)
	return s.store.Get(ctx, workOrderID)
}

// Complete finishes an in-progress work order and consumes its reservations:
// each part line decrements both on-hand and reserved quantities.
func (s *Service) Complete(ctx context.Context, workOrderID int64) (WorkOrder, error) {
	var lowEvents []parts.LowStockEvent
	err := s.store.RunTx(ctx, func(ctx context.Context, tx TxStore) error {
		lowEvents = lowEvents[:0]
		wo, err := tx.WorkOrderForUpdate(ctx, workOrderID)
		if err != nil {
			return err
		}
		if wo.Status != StatusInProgress {
			return &InvalidTransitionError{From: wo.Status, To: StatusCompleted}
		}
		lines, err := tx.PartLines(ctx, workOrderID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			part, err := tx.PartForUpdate(ctx, line.PartID)
			if err != nil {
				return err
			}
			onHand := part.QuantityOnHand - line.Quantity
			if onHand < 0 {
				onHand = 0
			}
			reserved := part.QuantityReserved - line.Quantity
			if reserved < 0 {
				reserved = 0
			}
			if err := tx.SetPartCounters(ctx, part.ID, onHand, reserved); err != nil {
				return err
			}
			part.QuantityOnHand = onHand
			part.QuantityReserved = reserved
			if part.LowStock() {
				lowEvents = append(lowEvents, parts.NewLowStockEvent(part))
			}
		}
		now := time.Now()
		return tx.UpdateStatus(ctx, workOrderID, StatusCompleted, &now)
	})
	if err != nil {
		return WorkOrder{}, err
	}
	s.publishLow(ctx, lowEvents)
	s.recordAudit(ctx, "workorders:complete", workOrderID, nil)
	return s.store.Get(ctx, workOrderID)
}

// Cancel aborts an open work order and releases every reservation it held.
// The reason, when given, lands in the audit trail.
func (s *Service) Cancel(ctx context.Context, workOrderID int64, reason string) (WorkOrder, error) {
	err := s.store.RunTx(ctx, func(ctx context.Context, tx TxStore) error {
		wo, err := tx.WorkOrderForUpdate(ctx, workOrderID)
		if err != nil {
			return err
		}
		if !wo.Status.Open() {
			return &InvalidTransitionError{From: wo.Status, To: StatusCancelled}
		}
		lines, err := tx.PartLines(ctx, workOrderID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			part, err := tx.PartForUpdate(ctx, line.PartID)
			if err != nil {
				return err
			}
			reserved := part.QuantityReserved - line.Quantity
			if reserved < 0 {
				reserved = 0
			}
			if err := tx.SetPartCounters(ctx, part.ID, part.QuantityOnHand, reserved); err != nil {
				return err
			}
		}
		return tx.UpdateStatus(ctx, workOrderID, StatusCancelled, nil)
	})
	if err != nil {
		return WorkOrder{}, err
	}
	var meta map[string]any
	if reason != "" {
		meta = map[string]any{"reason": reason}
	}
	s.recordAudit(ctx, "workorders:cancel", workOrderID, meta)
	return s.store.Get(ctx, workOrderID)
}

// MarkPaid settles a completed work order.
func (s *Service) MarkPaid(ctx context.Context, workOrderID int64) (WorkOrder, error) {
	err := s.store.RunTx(ctx, func(ctx context.Context, tx TxStore) error {
		wo, err := tx.WorkOrderForUpdate(ctx, workOrderID)
		if err != nil {
			return err
		}
		if wo.Status != StatusCompleted || wo.PaymentStatus == PaymentPaid {
			return &InvalidPaymentError{From: wo.PaymentStatus, To: PaymentPaid}
		}
		return tx.UpdatePayment(ctx, workOrderID, PaymentPaid)
	})
	if err != nil {
		return WorkOrder{}, err
	}
	s.recordAudit(ctx, "workorders:paid", workOrderID, nil)
	return s.store.Get(ctx, workOrderID)
}

// SweepOverdue flips payment to overdue on completed, unpaid work orders past
// their due date.
func (s *Service) SweepOverdue(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.store.MarkOverdue(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("marked work orders overdue", "count", n)
	}
	return n, nil
}

func sortPartLines(lines []PartLine) {
	sort.Slice(lines, func(i, j int) bool { return lines[i].PartID < lines[j].PartID })
}

// reserve validates against available stock and raises the hold under the row
// lock taken by PartForUpdate.
func (s *Service) reserve(ctx context.Context, tx TxStore, partID, qty int64) (parts.Part, error) {
	part, err := tx.PartForUpdate(ctx, partID)
	if err != nil {
		return parts.Part{}, err
	}
	if qty > part.Available() {
		return parts.Part{}, &parts.InsufficientStockError{
			Description: part.Description,
			Available:   part.Available(),
			Requested:   qty,
		}
	}
	reserved := part.QuantityReserved + qty
	if err := tx.SetPartCounters(ctx, part.ID, part.QuantityOnHand, reserved); err != nil {
		return parts.Part{}, err
	}
	part.QuantityReserved = reserved
	return part, nil
}

func (s *Service) publishLow(ctx context.Context, events []parts.LowStockEvent) {
	if s.lowStock == nil {
		return
	}
	for _, evt := range events {
		if err := s.lowStock.PublishLowStock(ctx, evt); err != nil {
			s.logger.Warn("low stock publish failed", "part_id", evt.PartID, "error", err)
		}
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, workOrderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "work_order",
		EntityID: fmt.Sprintf("%d", workOrderID),
		Meta:     meta,
	})
}
