package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gearbox-erp/gearbox/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, clientID int64) (Client, error)
	List(ctx context.Context, limit, offset int) ([]Client, int, error)
	Create(ctx context.Context, c Client) (int64, error)
	Update(ctx context.Context, c Client) error
	GetVehicle(ctx context.Context, vehicleID int64) (Vehicle, error)
	ListVehicles(ctx context.Context, clientID int64) ([]Vehicle, error)
	CreateVehicle(ctx context.Context, v Vehicle) (int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates client and vehicle operations, including the dependency
// guard on deletion.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

func (s *Service) Create(ctx context.Context, c Client) (Client, error) {
	if c.Name == "" {
		return Client{}, errors.New("clients: name required")
	}
	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return Client{}, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, clientID int64) (Client, error) {
	return s.repo.Get(ctx, clientID)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]Client, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) Update(ctx context.Context, c Client) (Client, error) {
	if c.Name == "" {
		return Client{}, errors.New("clients: name required")
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return Client{}, err
	}
	return s.repo.Get(ctx, c.ID)
}

// Delete removes a client and its vehicles in one atomic batch. Any quote or
// work order referencing the client blocks the deletion; nothing is removed
// on a blocked attempt.
func (s *Service) Delete(ctx context.Context, clientID int64) error {
	var vehiclesRemoved int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Counting inside the transaction closes the gap where a quote
		// created after the check slips past the guard.
		if _, err := tx.GetForUpdate(ctx, clientID); err != nil {
			return err
		}
		quoteCount, err := tx.CountQuotes(ctx, clientID)
		if err != nil {
			return err
		}
		if quoteCount > 0 {
			return &DependencyExistsError{Kind: "quotes", Count: quoteCount}
		}
		orderCount, err := tx.CountWorkOrders(ctx, clientID)
		if err != nil {
			return err
		}
		if orderCount > 0 {
			return &DependencyExistsError{Kind: "work orders", Count: orderCount}
		}
		removed, err := tx.DeleteVehiclesByClient(ctx, clientID)
		if err != nil {
			return err
		}
		vehiclesRemoved = removed
		return tx.DeleteClient(ctx, clientID)
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "clients:delete",
			Entity:   "client",
			EntityID: fmt.Sprintf("%d", clientID),
			Meta:     map[string]any{"vehicles_removed": vehiclesRemoved},
		})
	}
	return nil
}

func (s *Service) GetVehicle(ctx context.Context, vehicleID int64) (Vehicle, error) {
	return s.repo.GetVehicle(ctx, vehicleID)
}

func (s *Service) ListVehicles(ctx context.Context, clientID int64) ([]Vehicle, error) {
	if _, err := s.repo.Get(ctx, clientID); err != nil {
		return nil, err
	}
	return s.repo.ListVehicles(ctx, clientID)
}

func (s *Service) CreateVehicle(ctx context.Context, v Vehicle) (Vehicle, error) {
	if v.Plate == "" {
		return Vehicle{}, errors.New("clients: vehicle plate required")
	}
	if _, err := s.repo.Get(ctx, v.ClientID); err != nil {
		return Vehicle{}, err
	}
	id, err := s.repo.CreateVehicle(ctx, v)
	if err != nil {
		return Vehicle{}, err
	}
	return s.repo.GetVehicle(ctx, id)
}
