package quotes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gearbox-erp/gearbox/internal/parts"
	"github.com/gearbox-erp/gearbox/internal/shared"
)

// Part lines are priced from the catalog at authoring time; the snapshot is
// what the client signs off on, later price changes do not touch it.
const defaultValidityDays = 30

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, quoteID int64) (Quote, error)
	List(ctx context.Context, filter ListFilter) ([]Quote, int, error)
	UpdateStatus(ctx context.Context, quoteID int64, status QuoteStatus) error
	ExpirePending(ctx context.Context, cutoff time.Time) (int64, error)
}

// PartCatalog resolves part lines against the ledger without reserving stock.
type PartCatalog interface {
	Get(ctx context.Context, partID int64) (parts.Part, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the quote lifecycle up to, but not including, conversion.
type Service struct {
	repo    RepositoryPort
	catalog PartCatalog
	audit   AuditPort
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog PartCatalog, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, audit: audit, logger: logger}
}

// Create registers a pending quote. Part lines are resolved against the
// catalog for description and unit price; no stock is reserved here.
func (s *Service) Create(ctx context.Context, quote Quote) (Quote, error) {
	if err := s.resolveItems(ctx, &quote); err != nil {
		return Quote{}, err
	}
	quote.Status = StatusPending
	quote.WorkOrderID = nil
	if quote.ValidUntil.IsZero() {
		quote.ValidUntil = time.Now().AddDate(0, 0, defaultValidityDays)
	}
	quote.RecomputeTotals()

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.Insert(ctx, quote)
		if err != nil {
			return err
		}
		return tx.InsertItems(ctx, id, quote.Items)
	})
	if err != nil {
		return Quote{}, err
	}
	s.recordAudit(ctx, "quotes:create", id, map[string]any{"client_id": quote.ClientID, "total": quote.TotalValue})
	return s.repo.Get(ctx, id)
}

// Get returns a quote with its line items.
func (s *Service) Get(ctx context.Context, quoteID int64) (Quote, error) {
	return s.repo.Get(ctx, quoteID)
}

// List pages through quotes, optionally filtered by client or status.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Quote, int, error) {
	return s.repo.List(ctx, filter)
}

// Update replaces the line items and header fields of a pending quote.
// Approved, rejected and converted quotes are immutable.
func (s *Service) Update(ctx context.Context, quote Quote) (Quote, error) {
	current, err := s.repo.Get(ctx, quote.ID)
	if err != nil {
		return Quote{}, err
	}
	if current.Converted() {
		return Quote{}, ErrQuoteConverted
	}
	if current.Status != StatusPending {
		return Quote{}, ErrInvalidStatus
	}
	if err := s.resolveItems(ctx, &quote); err != nil {
		return Quote{}, err
	}
	if quote.ValidUntil.IsZero() {
		quote.ValidUntil = current.ValidUntil
	}
	quote.RecomputeTotals()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateHeader(ctx, quote); err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, quote.ID); err != nil {
			return err
		}
		return tx.InsertItems(ctx, quote.ID, quote.Items)
	})
	if err != nil {
		return Quote{}, err
	}
	s.recordAudit(ctx, "quotes:update", quote.ID, map[string]any{"total": quote.TotalValue})
	return s.repo.Get(ctx, quote.ID)
}

// Approve moves a pending quote to approved, making it eligible for
// conversion.
func (s *Service) Approve(ctx context.Context, quoteID int64) (Quote, error) {
	return s.transition(ctx, quoteID, StatusApproved)
}

// Reject moves a pending quote to rejected.
func (s *Service) Reject(ctx context.Context, quoteID int64) (Quote, error) {
	return s.transition(ctx, quoteID, StatusRejected)
}

func (s *Service) transition(ctx context.Context, quoteID int64, target QuoteStatus) (Quote, error) {
	current, err := s.repo.Get(ctx, quoteID)
	if err != nil {
		return Quote{}, err
	}
	if current.Converted() {
		return Quote{}, ErrQuoteConverted
	}
	if current.Status != StatusPending {
		return Quote{}, ErrInvalidStatus
	}
	if err := s.repo.UpdateStatus(ctx, quoteID, target); err != nil {
		return Quote{}, err
	}
	s.recordAudit(ctx, "quotes:"+string(target), quoteID, nil)
	return s.repo.Get(ctx, quoteID)
}

// Delete removes a quote and its items. Approved quotes are kept until they
// either convert or are rejected; converted quotes are permanent records.
func (s *Service) Delete(ctx context.Context, quoteID int64) error {
	current, err := s.repo.Get(ctx, quoteID)
	if err != nil {
		return err
	}
	if current.Converted() {
		return ErrQuoteConverted
	}
	if current.Status == StatusApproved {
		return ErrAwaitingConversion
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteQuote(ctx, quoteID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "quotes:delete", quoteID, nil)
	return nil
}

// ExpirePending rejects pending quotes whose validity window has lapsed and
// returns how many were touched.
func (s *Service) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.repo.ExpirePending(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired pending quotes", "count", n)
	}
	return n, nil
}

func (s *Service) resolveItems(ctx context.Context, quote *Quote) error {
	if len(quote.Items) == 0 {
		return ErrEmptyItems
	}
	for i := range quote.Items {
		item := &quote.Items[i]
		if item.Quantity <= 0 {
			return parts.ErrInvalidQuantity
		}
		switch item.Kind {
		case KindPart:
			if item.PartID == nil {
				return fmt.Errorf("quotes: part line %d missing part id", i)
			}
			part, err := s.catalog.Get(ctx, *item.PartID)
			if err != nil {
				return err
			}
			item.Description = part.Description
			item.UnitPrice = part.SalePrice
		case KindService:
			item.PartID = nil
			if item.Description == "" {
				return fmt.Errorf("quotes: service line %d missing description", i)
			}
		default:
			return fmt.Errorf("quotes: unknown line kind %q", item.Kind)
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, quoteID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "quote",
		EntityID: fmt.Sprintf("%d", quoteID),
		Meta:     meta,
	})
}
