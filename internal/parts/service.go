package parts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gearbox-erp/gearbox/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, partID int64) (Part, error)
	GetByCode(ctx context.Context, code string) (Part, error)
	List(ctx context.Context, limit, offset int) ([]Part, int, error)
	Create(ctx context.Context, part Part) (int64, error)
	Update(ctx context.Context, part Part) error
	Delete(ctx context.Context, partID int64) error
	CountOpenReferences(ctx context.Context, partID int64) (int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates part ledger operations. Reservation counters are only
// ever mutated inside a transaction scope.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	lowStock LowStockPublisher
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, lowStock LowStockPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, lowStock: lowStock, logger: logger}
}

// Create registers a new part in the ledger.
func (s *Service) Create(ctx context.Context, part Part) (Part, error) {
	if part.Code == "" {
		return Part{}, fmt.Errorf("parts: code required")
	}
	if part.QuantityOnHand < 0 || part.QuantityReserved < 0 {
		return Part{}, ErrNegativeStock
	}
	if part.QuantityReserved > part.QuantityOnHand {
		return Part{}, fmt.Errorf("parts: reserved cannot exceed on-hand")
	}
	id, err := s.repo.Create(ctx, part)
	if err != nil {
		return Part{}, err
	}
	return s.repo.Get(ctx, id)
}

// Get returns the ledger entry for a part.
func (s *Service) Get(ctx context.Context, partID int64) (Part, error) {
	return s.repo.Get(ctx, partID)
}

// GetByCode looks a part up by its catalogue code, the identifier printed on
// bins and labels.
func (s *Service) GetByCode(ctx context.Context, code string) (Part, error) {
	if code == "" {
		return Part{}, ErrPartNotFound
	}
	return s.repo.GetByCode(ctx, code)
}

// List pages through the ledger.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Part, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Update changes descriptive fields; the quantity counters are owned by the
// reservation flow and adjustments. Raising the minimum can newly trip the
// low-stock signal, so it is re-evaluated here.
func (s *Service) Update(ctx context.Context, part Part) (Part, error) {
	if err := s.repo.Update(ctx, part); err != nil {
		return Part{}, err
	}
	updated, err := s.repo.Get(ctx, part.ID)
	if err != nil {
		return Part{}, err
	}
	s.publishIfLow(ctx, updated)
	return updated, nil
}

// Delete removes a part. Blocked while reservations are held or open quotes
// and work orders still reference it.
func (s *Service) Delete(ctx context.Context, partID int64) error {
	part, err := s.repo.Get(ctx, partID)
	if err != nil {
		return err
	}
	if part.QuantityReserved > 0 {
		return ErrPartReserved
	}
	refs, err := s.repo.CountOpenReferences(ctx, partID)
	if err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf("%w: %d open references", ErrPartReferenced, refs)
	}
	return s.repo.Delete(ctx, partID)
}

// GetAvailable returns on-hand minus reserved for a part.
func (s *Service) GetAvailable(ctx context.Context, partID int64) (int64, error) {
	part, err := s.repo.Get(ctx, partID)
	if err != nil {
		return 0, err
	}
	return part.Available(), nil
}

// Reserve places a hold on available stock. The check and the increment run
// inside one transaction against a locked row so concurrent callers cannot
// both pass validation on the same units.
func (s *Service) Reserve(ctx context.Context, partID, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	var after Part
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		part, err := tx.GetForUpdate(ctx, partID)
		if err != nil {
			return err
		}
		if qty > part.Available() {
			return &InsufficientStockError{Description: part.Description, Available: part.Available(), Requested: qty}
		}
		part.QuantityReserved += qty
		after = part
		return tx.UpdateCounters(ctx, part.ID, part.QuantityOnHand, part.QuantityReserved)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "parts:reserve", after.ID, map[string]any{"qty": qty, "reserved": after.QuantityReserved})
	s.publishIfLow(ctx, after)
	return nil
}

// Release returns a hold to the pool, floored at zero. Used on work order
// cancellation.
func (s *Service) Release(ctx context.Context, partID, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	var after Part
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		part, err := tx.GetForUpdate(ctx, partID)
		if err != nil {
			return err
		}
		part.QuantityReserved -= qty
		if part.QuantityReserved < 0 {
			part.QuantityReserved = 0
		}
		after = part
		return tx.UpdateCounters(ctx, part.ID, part.QuantityOnHand, part.QuantityReserved)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "parts:release", after.ID, map[string]any{"qty": qty, "reserved": after.QuantityReserved})
	return nil
}

// AdjustOnHand applies an external inventory movement (receipt, correction).
// On-hand never goes negative; the reserved counter may transiently exceed the
// new on-hand, in which case Available() reads negative and every subsequent
// reserve fails until stock recovers.
func (s *Service) AdjustOnHand(ctx context.Context, partID, delta int64) (Part, error) {
	if delta == 0 {
		return Part{}, ErrInvalidQuantity
	}
	var after Part
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		part, err := tx.GetForUpdate(ctx, partID)
		if err != nil {
			return err
		}
		newOnHand := part.QuantityOnHand + delta
		if newOnHand < 0 {
			return ErrNegativeStock
		}
		part.QuantityOnHand = newOnHand
		after = part
		return tx.UpdateCounters(ctx, part.ID, part.QuantityOnHand, part.QuantityReserved)
	})
	if err != nil {
		return Part{}, err
	}
	s.recordAudit(ctx, "parts:adjust", after.ID, map[string]any{"delta": delta, "on_hand": after.QuantityOnHand})
	s.publishIfLow(ctx, after)
	return after, nil
}

func (s *Service) publishIfLow(ctx context.Context, part Part) {
	if s.lowStock == nil || !part.LowStock() {
		return
	}
	if err := s.lowStock.PublishLowStock(ctx, NewLowStockEvent(part)); err != nil {
		s.logger.Warn("publish low stock", slog.Int64("part_id", part.ID), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, partID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "part",
		EntityID: fmt.Sprintf("%d", partID),
		Meta:     meta,
	})
}
