package parts

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu     sync.Mutex
	parts  map[int64]Part
	nextID int64
	refs   map[int64]int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{parts: make(map[int64]Part), refs: make(map[int64]int64)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Get(ctx context.Context, partID int64) (Part, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	part, ok := r.parts[partID]
	if !ok {
		return Part{}, ErrPartNotFound
	}
	return part, nil
}

func (r *memoryRepo) GetByCode(ctx context.Context, code string) (Part, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.parts {
		if p.Code == code {
			return p, nil
		}
	}
	return Part{}, ErrPartNotFound
}

func (r *memoryRepo) List(ctx context.Context, limit, offset int) ([]Part, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Part
	for _, p := range r.parts {
		result = append(result, p)
	}
	return result, len(result), nil
}

func (r *memoryRepo) Create(ctx context.Context, part Part) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	part.ID = r.nextID
	r.parts[part.ID] = part
	return part.ID, nil
}

func (r *memoryRepo) Update(ctx context.Context, part Part) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.parts[part.ID]
	if !ok {
		return ErrPartNotFound
	}
	part.QuantityOnHand = existing.QuantityOnHand
	part.QuantityReserved = existing.QuantityReserved
	r.parts[part.ID] = part
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, partID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.parts[partID]; !ok {
		return ErrPartNotFound
	}
	delete(r.parts, partID)
	return nil
}

func (r *memoryRepo) CountOpenReferences(ctx context.Context, partID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs[partID], nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, partID int64) (Part, error) {
	part, ok := tx.repo.parts[partID]
	if !ok {
		return Part{}, ErrPartNotFound
	}
	return part, nil
}

func (tx *memoryTx) UpdateCounters(ctx context.Context, partID, onHand, reserved int64) error {
	part, ok := tx.repo.parts[partID]
	if !ok {
		return ErrPartNotFound
	}
	part.QuantityOnHand = onHand
	part.QuantityReserved = reserved
	tx.repo.parts[partID] = part
	return nil
}

type capturedEvents struct {
	mu     sync.Mutex
	events []LowStockEvent
}

func (c *capturedEvents) PublishLowStock(ctx context.Context, evt LowStockEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func seedPart(t *testing.T, repo *memoryRepo, part Part) int64 {
	t.Helper()
	id, err := repo.Create(context.Background(), part)
	require.NoError(t, err)
	return id
}

func TestReserve(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	id := seedPart(t, repo, Part{Code: "BRK-01", Description: "Brake pad", QuantityOnHand: 10, MinimumQuantity: 2})

	require.NoError(t, svc.Reserve(ctx, id, 4))
	part, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, 4, part.QuantityReserved)
	require.EqualValues(t, 6, part.Available())

	// Second reservation validates against what is left, not raw on-hand.
	err = svc.Reserve(ctx, id, 7)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.EqualValues(t, 6, insufficient.Available)
	require.EqualValues(t, 7, insufficient.Requested)

	part, err = repo.Get(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, 4, part.QuantityReserved)
}

func TestReserveInvariant(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	id := seedPart(t, repo, Part{Code: "FLT-02", Description: "Oil filter", QuantityOnHand: 3})

	require.ErrorIs(t, svc.Reserve(ctx, id, 0), ErrInvalidQuantity)
	require.ErrorIs(t, svc.Reserve(ctx, id, -1), ErrInvalidQuantity)

	require.NoError(t, svc.Reserve(ctx, id, 3))
	part, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, part.QuantityReserved >= 0 && part.QuantityReserved <= part.QuantityOnHand)

	err = svc.Reserve(ctx, id, 1)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
}

func TestReleaseFloorsAtZero(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	id := seedPart(t, repo, Part{Code: "SPK-03", Description: "Spark plug", QuantityOnHand: 5, QuantityReserved: 2})

	require.NoError(t, svc.Release(ctx, id, 10))
	part, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, 0, part.QuantityReserved)
}

func TestAdjustOnHand(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	id := seedPart(t, repo, Part{Code: "BLT-04", Description: "Timing belt", QuantityOnHand: 4, QuantityReserved: 3})

	_, err := svc.AdjustOnHand(ctx, id, -5)
	require.ErrorIs(t, err, ErrNegativeStock)

	// The reservation may transiently exceed on-hand after an adjustment;
	// further reserves must then fail until stock recovers.
	part, err := svc.AdjustOnHand(ctx, id, -2)
	require.NoError(t, err)
	require.EqualValues(t, 2, part.QuantityOnHand)
	require.EqualValues(t, 3, part.QuantityReserved)
	require.EqualValues(t, -1, part.Available())

	err = svc.Reserve(ctx, id, 1)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	part, err = svc.AdjustOnHand(ctx, id, 6)
	require.NoError(t, err)
	require.EqualValues(t, 8, part.QuantityOnHand)
	require.NoError(t, svc.Reserve(ctx, id, 5))
}

func TestLowStockSignal(t *testing.T) {
	repo := newMemoryRepo()
	events := &capturedEvents{}
	svc := NewService(repo, nil, events, nil)
	ctx := context.Background()
	id := seedPart(t, repo, Part{Code: "OIL-05", Description: "Engine oil 5W30", QuantityOnHand: 10, MinimumQuantity: 4})

	_, err := svc.AdjustOnHand(ctx, id, -3)
	require.NoError(t, err)
	require.Empty(t, events.events)

	_, err = svc.AdjustOnHand(ctx, id, -3)
	require.NoError(t, err)
	require.Len(t, events.events, 1)
	require.EqualValues(t, 4, events.events[0].QuantityOnHand)
	require.Equal(t, "OIL-05", events.events[0].Code)
}

func TestGetByCode(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	seedPart(t, repo, Part{Code: "BRK-01", Description: "Brake pad", QuantityOnHand: 10})

	part, err := svc.GetByCode(ctx, "BRK-01")
	require.NoError(t, err)
	require.Equal(t, "Brake pad", part.Description)

	_, err = svc.GetByCode(ctx, "NOPE-99")
	require.ErrorIs(t, err, ErrPartNotFound)
	_, err = svc.GetByCode(ctx, "")
	require.ErrorIs(t, err, ErrPartNotFound)
}

func TestUpdateReevaluatesLowStock(t *testing.T) {
	repo := newMemoryRepo()
	events := &capturedEvents{}
	svc := NewService(repo, nil, events, nil)
	ctx := context.Background()
	id := seedPart(t, repo, Part{Code: "OIL-05", Description: "Engine oil 5W30", QuantityOnHand: 5, MinimumQuantity: 2})

	// Raising the minimum above current stock trips the signal on its own.
	_, err := svc.Update(ctx, Part{ID: id, Code: "OIL-05", Description: "Engine oil 5W30", MinimumQuantity: 6})
	require.NoError(t, err)
	require.Len(t, events.events, 1)
	require.EqualValues(t, 5, events.events[0].QuantityOnHand)
}

func TestDeleteGuards(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	reserved := seedPart(t, repo, Part{Code: "RSV-06", Description: "Reserved part", QuantityOnHand: 5, QuantityReserved: 1})
	require.ErrorIs(t, svc.Delete(ctx, reserved), ErrPartReserved)

	referenced := seedPart(t, repo, Part{Code: "REF-07", Description: "Referenced part", QuantityOnHand: 5})
	repo.refs[referenced] = 2
	require.ErrorIs(t, svc.Delete(ctx, referenced), ErrPartReferenced)

	free := seedPart(t, repo, Part{Code: "DEL-08", Description: "Unreferenced part", QuantityOnHand: 5})
	require.NoError(t, svc.Delete(ctx, free))
	_, err := repo.Get(ctx, free)
	require.ErrorIs(t, err, ErrPartNotFound)
}
