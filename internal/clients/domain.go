package clients

import (
	"errors"
	"fmt"
	"time"
)

// Client is a workshop customer who owns vehicles.
type Client struct {
	ID        int64
	Name      string
	Document  string
	Phone     string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Vehicle belongs to exactly one client and is cascade-deleted with it.
type Vehicle struct {
	ID        int64
	ClientID  int64
	Plate     string
	Make      string
	Model     string
	Year      int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrClientNotFound indicates a missing client.
var ErrClientNotFound = errors.New("clients: client not found")

// ErrVehicleNotFound indicates a missing vehicle.
var ErrVehicleNotFound = errors.New("clients: vehicle not found")

// DependencyExistsError blocks deletion while live references exist.
type DependencyExistsError struct {
	Kind  string
	Count int64
}

func (e *DependencyExistsError) Error() string {
	return fmt.Sprintf("clients: deletion blocked, %d %s still reference this client", e.Count, e.Kind)
}
