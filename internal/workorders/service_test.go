package workorders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gearbox-erp/gearbox/internal/parts"
	"github.com/gearbox-erp/gearbox/internal/quotes"
)

// memoryStore mimics the transactional store: every RunTx callback either
// commits all of its writes or none, which is exactly the property the
// conversion tests lean on.
type memoryStore struct {
	mu       sync.Mutex
	quotes   map[int64]quotes.Quote
	parts    map[int64]parts.Part
	orders   map[int64]WorkOrder
	nextID   int64
	failNext error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		quotes: make(map[int64]quotes.Quote),
		parts:  make(map[int64]parts.Part),
		orders: make(map[int64]WorkOrder),
	}
}

func (s *memoryStore) RunTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quotesBefore := cloneQuotes(s.quotes)
	partsBefore := clonePartMap(s.parts)
	ordersBefore := cloneOrders(s.orders)
	idBefore := s.nextID
	if err := fn(ctx, &memoryTx{store: s}); err != nil {
		s.quotes = quotesBefore
		s.parts = partsBefore
		s.orders = ordersBefore
		s.nextID = idBefore
		return err
	}
	return nil
}

func (s *memoryStore) Get(ctx context.Context, workOrderID int64) (WorkOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wo, ok := s.orders[workOrderID]
	if !ok {
		return WorkOrder{}, ErrWorkOrderNotFound
	}
	return cloneOrder(wo), nil
}

func (s *memoryStore) List(ctx context.Context, filter ListFilter) ([]WorkOrder, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []WorkOrder
	for _, wo := range s.orders {
		if filter.Status != nil && wo.Status != *filter.Status {
			continue
		}
		result = append(result, cloneOrder(wo))
	}
	return result, len(result), nil
}

func (s *memoryStore) MarkOverdue(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, wo := range s.orders {
		if wo.Status == StatusCompleted && wo.PaymentStatus == PaymentPending && wo.DueDate.Before(cutoff) {
			wo.PaymentStatus = PaymentOverdue
			s.orders[id] = wo
			n++
		}
	}
	return n, nil
}

type memoryTx struct {
	store *memoryStore
}

func (t *memoryTx) QuoteForUpdate(ctx context.Context, quoteID int64) (quotes.Quote, error) {
	q, ok := t.store.quotes[quoteID]
	if !ok {
		return quotes.Quote{}, quotes.ErrQuoteNotFound
	}
	return cloneQuote(q), nil
}

func (t *memoryTx) BindQuote(ctx context.Context, quoteID, workOrderID int64) error {
	q, ok := t.store.quotes[quoteID]
	if !ok {
		return quotes.ErrQuoteNotFound
	}
	if q.WorkOrderID != nil {
		return ErrAlreadyConverted
	}
	q.WorkOrderID = &workOrderID
	t.store.quotes[quoteID] = q
	return nil
}

func (t *memoryTx) PartForUpdate(ctx context.Context, partID int64) (parts.Part, error) {
	p, ok := t.store.parts[partID]
	if !ok {
		return parts.Part{}, parts.ErrPartNotFound
	}
	return p, nil
}

func (t *memoryTx) SetPartCounters(ctx context.Context, partID, onHand, reserved int64) error {
	p, ok := t.store.parts[partID]
	if !ok {
		return parts.ErrPartNotFound
	}
	p.QuantityOnHand = onHand
	p.QuantityReserved = reserved
	t.store.parts[partID] = p
	return nil
}

func (t *memoryTx) InsertWorkOrder(ctx context.Context, wo WorkOrder) (int64, error) {
	if t.store.failNext != nil {
		err := t.store.failNext
		t.store.failNext = nil
		return 0, err
	}
	t.store.nextID++
	wo.ID = t.store.nextID
	t.store.orders[wo.ID] = cloneOrder(wo)
	return wo.ID, nil
}

func (t *memoryTx) WorkOrderForUpdate(ctx context.Context, workOrderID int64) (WorkOrder, error) {
	wo, ok := t.store.orders[workOrderID]
	if !ok {
		return WorkOrder{}, ErrWorkOrderNotFound
	}
	return cloneOrder(wo), nil
}

func (t *memoryTx) PartLines(ctx context.Context, workOrderID int64) ([]PartLine, error) {
	wo, ok := t.store.orders[workOrderID]
	if !ok {
		return nil, ErrWorkOrderNotFound
	}
	return append([]PartLine{}, wo.Parts...), nil
}

func (t *memoryTx) UpdateStatus(ctx context.Context, workOrderID int64, status Status, completedAt *time.Time) error {
	wo, ok := t.store.orders[workOrderID]
	if !ok {
		return ErrWorkOrderNotFound
	}
	wo.Status = status
	wo.CompletedAt = completedAt
	t.store.orders[workOrderID] = wo
	return nil
}

func (t *memoryTx) UpdatePayment(ctx context.Context, workOrderID int64, payment PaymentStatus) error {
	wo, ok := t.store.orders[workOrderID]
	if !ok {
		return ErrWorkOrderNotFound
	}
	wo.PaymentStatus = payment
	t.store.orders[workOrderID] = wo
	return nil
}

func cloneQuote(q quotes.Quote) quotes.Quote {
	out := q
	out.Items = append([]quotes.LineItem{}, q.Items...)
	if q.WorkOrderID != nil {
		id := *q.WorkOrderID
		out.WorkOrderID = &id
	}
	return out
}

func cloneQuotes(in map[int64]quotes.Quote) map[int64]quotes.Quote {
	out := make(map[int64]quotes.Quote, len(in))
	for k, v := range in {
		out[k] = cloneQuote(v)
	}
	return out
}

func clonePartMap(in map[int64]parts.Part) map[int64]parts.Part {
	out := make(map[int64]parts.Part, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneOrder(wo WorkOrder) WorkOrder {
	out := wo
	out.Parts = append([]PartLine{}, wo.Parts...)
	out.Services = append([]ServiceLine{}, wo.Services...)
	return out
}

func cloneOrders(in map[int64]WorkOrder) map[int64]WorkOrder {
	out := make(map[int64]WorkOrder, len(in))
	for k, v := range in {
		out[k] = cloneOrder(v)
	}
	return out
}

type capturedEvents struct {
	mu     sync.Mutex
	events []parts.LowStockEvent
}

func (c *capturedEvents) PublishLowStock(ctx context.Context, evt parts.LowStockEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func int64Ptr(v int64) *int64 { return &v }

func seedApprovedQuote(store *memoryStore, quoteID, partID, qty int64) {
	store.quotes[quoteID] = quotes.Quote{
		ID:        quoteID,
		ClientID:  1,
		VehicleID: 1,
		Status:    quotes.StatusApproved,
		Items: []quotes.LineItem{
			{Kind: quotes.KindPart, PartID: int64Ptr(partID), Description: "Brake pads", Quantity: qty, UnitPrice: 30, LineTotal: float64(qty) * 30},
			{Kind: quotes.KindService, Description: "Brake service", Quantity: 1, UnitPrice: 80, LineTotal: 80},
		},
	}
}

func TestConvertQuoteReservesAndBinds(t *testing.T) {
	store := newMemoryStore()
	store.parts[7] = parts.Part{ID: 7, Description: "Brake pads", QuantityOnHand: 10, MinimumQuantity: 2, SalePrice: 30}
	seedApprovedQuote(store, 1, 7, 2)
	svc := NewService(store, nil, nil, nil, 7)

	wo, err := svc.ConvertQuote(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, StatusPending, wo.Status)
	require.Equal(t, PaymentPending, wo.PaymentStatus)
	require.Equal(t, 140.0, wo.TotalValue)
	require.Len(t, wo.Parts, 1)
	require.Len(t, wo.Services, 1)
	require.Equal(t, wo.EntryDate.AddDate(0, 0, 7).Unix(), wo.DueDate.Unix())

	require.EqualValues(t, 2, store.parts[7].QuantityReserved)
	require.EqualValues(t, 10, store.parts[7].QuantityOnHand)
	require.NotNil(t, store.quotes[1].WorkOrderID)
	require.Equal(t, wo.ID, *store.quotes[1].WorkOrderID)
}

func TestConvertQuoteInsufficientStockLeavesNothingBehind(t *testing.T) {
	store := newMemoryStore()
	store.parts[7] = parts.Part{ID: 7, Description: "Brake pads", QuantityOnHand: 10, SalePrice: 30}
	store.parts[8] = parts.Part{ID: 8, Description: "Oil filter", QuantityOnHand: 1, SalePrice: 12}
	store.quotes[1] = quotes.Quote{
		ID:        1,
		ClientID:  1,
		VehicleID: 1,
		Status:    quotes.StatusApproved,
		Items: []quotes.LineItem{
			{Kind: quotes.KindPart, PartID: int64Ptr(7), Quantity: 2, UnitPrice: 30, LineTotal: 60},
			{Kind: quotes.KindPart, PartID: int64Ptr(8), Quantity: 5, UnitPrice: 12, LineTotal: 60},
		},
	}
	svc := NewService(store, nil, nil, nil, 7)

	_, err := svc.ConvertQuote(context.Background(), 1)
	var insufficient *parts.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, "Oil filter", insufficient.Description)
	require.EqualValues(t, 1, insufficient.Available)
	require.EqualValues(t, 5, insufficient.Requested)

	// the first line's reservation must have been rolled back with the rest
	require.EqualValues(t, 0, store.parts[7].QuantityReserved)
	require.EqualValues(t, 0, store.parts[8].QuantityReserved)
	require.Nil(t, store.quotes[1].WorkOrderID)
	require.Empty(t, store.orders)
}

func TestConvertQuoteGuards(t *testing.T) {
	store := newMemoryStore()
	store.parts[7] = parts.Part{ID: 7, QuantityOnHand: 10}
	seedApprovedQuote(store, 1, 7, 2)
	svc := NewService(store, nil, nil, nil, 7)

	_, err := svc.ConvertQuote(context.Background(), 99)
	require.ErrorIs(t, err, quotes.ErrQuoteNotFound)

	pending := store.quotes[1]
	pending.Status = quotes.StatusPending
	store.quotes[1] = pending
	_, err = svc.ConvertQuote(context.Background(), 1)
	require.ErrorIs(t, err, ErrQuoteNotApproved)

	pending.Status = quotes.StatusApproved
	store.quotes[1] = pending
	first, err := svc.ConvertQuote(context.Background(), 1)
	require.NoError(t, err)

	_, err = svc.ConvertQuote(context.Background(), 1)
	require.ErrorIs(t, err, ErrAlreadyConverted)
	var already *AlreadyConvertedError
	require.ErrorAs(t, err, &already)
	require.Equal(t, first.ID, already.WorkOrderID)
	require.EqualValues(t, 2, store.parts[7].QuantityReserved)
	require.Equal(t, first.ID, *store.quotes[1].WorkOrderID)
}

func TestConvertQuoteRollsBackOnInsertFailure(t *testing.T) {
	store := newMemoryStore()
	store.parts[7] = parts.Part{ID: 7, QuantityOnHand: 10}
	seedApprovedQuote(store, 1, 7, 2)
	store.failNext = context.DeadlineExceeded
	svc := NewService(store, nil, nil, nil, 7)

	_, err := svc.ConvertQuote(context.Background(), 1)
	require.Error(t, err)
	require.EqualValues(t, 0, store.parts[7].QuantityReserved)
	require.Nil(t, store.quotes[1].WorkOrderID)
}

func TestConcurrentConversionsShareOneStockPool(t *testing.T) {
	store := newMemoryStore()
	store.parts[7] = parts.Part{ID: 7, Description: "Brake pads", QuantityOnHand: 5, SalePrice: 30}
	for _, quoteID := range []int64{1, 2} {
		store.quotes[quoteID] = quotes.Quote{
			ID:        quoteID,
			ClientID:  quoteID,
			VehicleID: 1,
			Status:    quotes.StatusApproved,
			Items: []quotes.LineItem{
				{Kind: quotes.KindPart, PartID: int64Ptr(7), Quantity: 3, UnitPrice: 30, LineTotal: 90},
			},
		}
	}
	svc := NewService(store, nil, nil, nil, 7)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, quoteID := range []int64{1, 2} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := svc.ConvertQuote(context.Background(), id)
			errs <- err
		}(quoteID)
	}
	wg.Wait()
	close(errs)

	var failures []error
	for err := range errs {
		if err != nil {
			failures = append(failures, err)
		}
	}
	require.Len(t, failures, 1)
	var insufficient *parts.InsufficientStockError
	require.ErrorAs(t, failures[0], &insufficient)
	require.EqualValues(t, 3, store.parts[7].QuantityReserved)
	require.Len(t, store.orders, 1)
}

func TestCreateReservesDirectly(t *testing.T) {
	store := newMemoryStore()
	store.parts[7] = parts.Part{ID: 7, Description: "Brake pads", QuantityOnHand: 4, MinimumQuantity: 4, SalePrice: 30}
	events := &capturedEvents{}
	svc := NewService(store, nil, events, nil, 7)

	wo, err := svc.Create(context.Background(), WorkOrder{
		ClientID:  1,
		VehicleID: 1,
		Parts:     []PartLine{{PartID: 7, Quantity: 2}},
		Services:  []ServiceLine{{Description: "Fitting", Price: 40}},
	})
	require.NoError(t, err)
	require.Equal(t, "Brake pads", wo.Parts[0].Description)
	require.Equal(t, 100.0, wo.TotalValue)
	require.EqualValues(t, 2, store.parts[7].QuantityReserved)
	require.Len(t, events.events, 1)

	_, err = svc.Create(context.Background(), WorkOrder{ClientID: 1, VehicleID: 1})
	require.ErrorIs(t, err, ErrEmptyOrder)
}

func TestCancelReleasesReservations(t *testing.T) {
	store := newMemoryStore()
	store.parts[7] = parts.Part{ID: 7, QuantityOnHand: 10, SalePrice: 30}
	seedApprovedQuote(store, 1, 7, 3)
	svc := NewService(store, nil, nil, nil, 7)

	wo, err := svc.ConvertQuote(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 3, store.parts[7].QuantityReserved)

	cancelled, err := svc.Cancel(context.Background(), wo.ID, "client withdrew")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.EqualValues(t, 0, store.parts[7].QuantityReserved)
	require.EqualValues(t, 10, store.parts[7].QuantityOnHand)

	_, err = svc.Cancel(context.Background(), wo.ID, "")
	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	require.Equal(t, StatusCancelled, transition.From)
}

func TestCompleteConsumesReservations(t *testing.T) {
	store := newMemoryStore()
	store.parts[7] = parts.Part{ID: 7, QuantityOnHand: 10, MinimumQuantity: 8, SalePrice: 30}
	seedApprovedQuote(store, 1, 7, 3)
	events := &capturedEvents{}
	svc := NewService(store, nil, events, nil, 7)

	wo, err := svc.ConvertQuote(context.Background(), 1)
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), wo.ID)
	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)

	_, err = svc.Start(context.Background(), wo.ID)
	require.NoError(t, err)

	completed, err := svc.Complete(context.Background(), wo.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	require.EqualValues(t, 7, store.parts[7].QuantityOnHand)
	require.EqualValues(t, 0, store.parts[7].QuantityReserved)
	require.NotEmpty(t, events.events)
}

func TestPaymentLifecycle(t *testing.T) {
	store := newMemoryStore()
	store.parts[7] = parts.Part{ID: 7, QuantityOnHand: 10, SalePrice: 30}
	seedApprovedQuote(store, 1, 7, 1)
	svc := NewService(store, nil, nil, nil, 7)

	wo, err := svc.ConvertQuote(context.Background(), 1)
	require.NoError(t, err)

	_, err = svc.MarkPaid(context.Background(), wo.ID)
	var payment *InvalidPaymentError
	require.ErrorAs(t, err, &payment)

	_, err = svc.Start(context.Background(), wo.ID)
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), wo.ID)
	require.NoError(t, err)

	paid, err := svc.MarkPaid(context.Background(), wo.ID)
	require.NoError(t, err)
	require.Equal(t, PaymentPaid, paid.PaymentStatus)

	_, err = svc.MarkPaid(context.Background(), wo.ID)
	require.ErrorAs(t, err, &payment)
}

func TestSweepOverdue(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	store.orders[1] = WorkOrder{ID: 1, Status: StatusCompleted, PaymentStatus: PaymentPending, DueDate: now.Add(-time.Hour)}
	store.orders[2] = WorkOrder{ID: 2, Status: StatusCompleted, PaymentStatus: PaymentPending, DueDate: now.Add(time.Hour)}
	store.orders[3] = WorkOrder{ID: 3, Status: StatusInProgress, PaymentStatus: PaymentPending, DueDate: now.Add(-time.Hour)}
	svc := NewService(store, nil, nil, nil, 7)

	n, err := svc.SweepOverdue(context.Background(), now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Equal(t, PaymentOverdue, store.orders[1].PaymentStatus)
	require.Equal(t, PaymentPending, store.orders[2].PaymentStatus)
	require.Equal(t, PaymentPending, store.orders[3].PaymentStatus)
}
