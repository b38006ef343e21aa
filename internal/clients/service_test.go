package clients

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	clients     map[int64]Client
	vehicles    map[int64]Vehicle
	quoteRefs   map[int64]int64
	orderRefs   map[int64]int64
	nextClient  int64
	nextVehicle int64
	beforeTx    func()
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		clients:   make(map[int64]Client),
		vehicles:  make(map[int64]Vehicle),
		quoteRefs: make(map[int64]int64),
		orderRefs: make(map[int64]int64),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r.beforeTx != nil {
		r.beforeTx()
	}
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Get(ctx context.Context, clientID int64) (Client, error) {
	c, ok := r.clients[clientID]
	if !ok {
		return Client{}, ErrClientNotFound
	}
	return c, nil
}

func (r *memoryRepo) List(ctx context.Context, limit, offset int) ([]Client, int, error) {
	var result []Client
	for _, c := range r.clients {
		result = append(result, c)
	}
	return result, len(result), nil
}

func (r *memoryRepo) Create(ctx context.Context, c Client) (int64, error) {
	r.nextClient++
	c.ID = r.nextClient
	r.clients[c.ID] = c
	return c.ID, nil
}

func (r *memoryRepo) Update(ctx context.Context, c Client) error {
	if _, ok := r.clients[c.ID]; !ok {
		return ErrClientNotFound
	}
	r.clients[c.ID] = c
	return nil
}

func (r *memoryRepo) GetVehicle(ctx context.Context, vehicleID int64) (Vehicle, error) {
	v, ok := r.vehicles[vehicleID]
	if !ok {
		return Vehicle{}, ErrVehicleNotFound
	}
	return v, nil
}

func (r *memoryRepo) ListVehicles(ctx context.Context, clientID int64) ([]Vehicle, error) {
	var result []Vehicle
	for _, v := range r.vehicles {
		if v.ClientID == clientID {
			result = append(result, v)
		}
	}
	return result, nil
}

func (r *memoryRepo) CreateVehicle(ctx context.Context, v Vehicle) (int64, error) {
	r.nextVehicle++
	v.ID = r.nextVehicle
	r.vehicles[v.ID] = v
	return v.ID, nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, clientID int64) (Client, error) {
	return tx.repo.Get(ctx, clientID)
}

func (tx *memoryTx) CountQuotes(ctx context.Context, clientID int64) (int64, error) {
	return tx.repo.quoteRefs[clientID], nil
}

func (tx *memoryTx) CountWorkOrders(ctx context.Context, clientID int64) (int64, error) {
	return tx.repo.orderRefs[clientID], nil
}

func (tx *memoryTx) DeleteVehiclesByClient(ctx context.Context, clientID int64) (int64, error) {
	var removed int64
	for id, v := range tx.repo.vehicles {
		if v.ClientID == clientID {
			delete(tx.repo.vehicles, id)
			removed++
		}
	}
	return removed, nil
}

func (tx *memoryTx) DeleteClient(ctx context.Context, clientID int64) error {
	if _, ok := tx.repo.clients[clientID]; !ok {
		return ErrClientNotFound
	}
	delete(tx.repo.clients, clientID)
	return nil
}

func TestDeleteCascadesVehicles(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	client, err := svc.Create(ctx, Client{Name: "Ana Souza"})
	require.NoError(t, err)
	_, err = svc.CreateVehicle(ctx, Vehicle{ClientID: client.ID, Plate: "ABC1D23", Make: "Fiat", Model: "Uno", Year: 2014})
	require.NoError(t, err)
	_, err = svc.CreateVehicle(ctx, Vehicle{ClientID: client.ID, Plate: "XYZ9K88", Make: "VW", Model: "Gol", Year: 2019})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, client.ID))

	_, err = svc.Get(ctx, client.ID)
	require.ErrorIs(t, err, ErrClientNotFound)
	require.Empty(t, repo.vehicles)
}

func TestDeleteBlockedByQuote(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	client, err := svc.Create(ctx, Client{Name: "Bruno Lima"})
	require.NoError(t, err)
	_, err = svc.CreateVehicle(ctx, Vehicle{ClientID: client.ID, Plate: "DEF4G56"})
	require.NoError(t, err)
	repo.quoteRefs[client.ID] = 1

	err = svc.Delete(ctx, client.ID)
	var dependency *DependencyExistsError
	require.ErrorAs(t, err, &dependency)
	require.Equal(t, "quotes", dependency.Kind)
	require.EqualValues(t, 1, dependency.Count)

	// Nothing was deleted.
	_, err = svc.Get(ctx, client.ID)
	require.NoError(t, err)
	require.Len(t, repo.vehicles, 1)
}

func TestDeleteBlockedByWorkOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	client, err := svc.Create(ctx, Client{Name: "Carla Dias"})
	require.NoError(t, err)
	repo.orderRefs[client.ID] = 3

	err = svc.Delete(ctx, client.ID)
	var dependency *DependencyExistsError
	require.ErrorAs(t, err, &dependency)
	require.Equal(t, "work orders", dependency.Kind)
	require.EqualValues(t, 3, dependency.Count)
}

func TestDeleteSeesDependenciesCreatedBeforeTx(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	client, err := svc.Create(ctx, Client{Name: "Diego Reis"})
	require.NoError(t, err)

	// A quote lands just as the deletion transaction begins; the in-tx count
	// must still block the delete.
	repo.beforeTx = func() {
		repo.quoteRefs[client.ID] = 1
	}

	err = svc.Delete(ctx, client.ID)
	var dependency *DependencyExistsError
	require.ErrorAs(t, err, &dependency)
	require.Equal(t, "quotes", dependency.Kind)
	_, err = svc.Get(ctx, client.ID)
	require.NoError(t, err)
}

func TestDeleteMissingClient(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	require.ErrorIs(t, svc.Delete(context.Background(), 42), ErrClientNotFound)
}
