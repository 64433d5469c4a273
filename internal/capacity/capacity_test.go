package capacity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"boxoffice/backend/internal/commerce"
	"boxoffice/backend/internal/meta"
	"boxoffice/backend/internal/models"
	"boxoffice/backend/internal/ticketing"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	ctx         context.Context
	store       *commerce.Memory
	collections *ticketing.Collections
	service     *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := commerce.NewMemory()
	collections := ticketing.NewCollections(meta.NewMemory(), nil)
	require.NoError(t, collections.Save(ctx, 42, models.Envelope{Tickets: []models.Ticket{
		{Name: "GA", Price: "10.00", Capacity: 10, InitialCapacity: 10},
		{Name: "Free", Price: "0.00", Capacity: 0},
		{Name: "VIP", Price: "50.00", Capacity: 2, InitialCapacity: 2},
	}}))
	for i, id := range []int64{501, 502, 503} {
		store.PutProduct(models.Product{
			ID:           id,
			RegularPrice: "10.00",
			Status:       models.ProductStatusPrivate,
			Meta:         commerce.SetLinkMeta(nil, commerce.Link{EventID: 42, Index: i}),
		})
	}
	return fixture{
		ctx:         ctx,
		store:       store,
		collections: collections,
		service:     New(store, collections, nil, nil),
	}
}

func (f fixture) capacity(t *testing.T, index int) int {
	t.Helper()
	loaded, err := f.collections.Load(f.ctx, 42)
	require.NoError(t, err)
	ticket, ok := loaded.At(index)
	require.True(t, ok)
	return ticket.Capacity
}

func TestConsumeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.store.PutOrder(models.Order{ID: 1, Status: models.OrderStatusProcessing, Items: []models.LineItem{
		{ID: 11, ProductID: 501, Quantity: 3},
		{ID: 12, ProductID: 502, Quantity: 4},
	}})

	res, err := f.service.HandleStatusChange(f.ctx, 1, models.OrderStatusProcessing)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)
	require.Equal(t, 1, res.Adjusted)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, 7, f.capacity(t, 0))
	require.Equal(t, 0, f.capacity(t, 1))

	product, err := f.store.Product(f.ctx, 501)
	require.NoError(t, err)
	require.Equal(t, models.StockState{ManageStock: true, Quantity: 7, Status: models.StockInStock, Backorders: models.BackordersNo}, product.Stock)

	res, err = f.service.HandleStatusChange(f.ctx, 1, models.OrderStatusCompleted)
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyDone, res.Outcome)
	require.Equal(t, 7, f.capacity(t, 0))
}

func TestRestoreWithoutConsumeIsNoop(t *testing.T) {
	f := newFixture(t)
	f.store.PutOrder(models.Order{ID: 2, Status: models.OrderStatusCancelled, Items: []models.LineItem{
		{ID: 21, ProductID: 501, Quantity: 2},
	}})

	res, err := f.service.HandleStatusChange(f.ctx, 2, models.OrderStatusCancelled)
	require.NoError(t, err)
	require.Equal(t, OutcomeNotConsumed, res.Outcome)
	require.Equal(t, 10, f.capacity(t, 0))

	order, err := f.store.Order(f.ctx, 2)
	require.NoError(t, err)
	require.False(t, order.HasFlag(models.OrderFlagCapacityRestored))
}

func TestConsumeThenRestoreOnce(t *testing.T) {
	f := newFixture(t)
	f.store.PutOrder(models.Order{ID: 3, Status: models.OrderStatusCompleted, Items: []models.LineItem{
		{ID: 31, ProductID: 501, Quantity: 4},
		{ID: 32, ProductID: 501, Quantity: 1},
	}})

	_, err := f.service.Consume(f.ctx, 3)
	require.NoError(t, err)
	require.Equal(t, 5, f.capacity(t, 0))

	res, err := f.service.HandleStatusChange(f.ctx, 3, models.OrderStatusRefunded)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)
	require.Equal(t, 10, f.capacity(t, 0))

	res, err = f.service.HandleStatusChange(f.ctx, 3, models.OrderStatusCancelled)
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyDone, res.Outcome)
	require.Equal(t, 10, f.capacity(t, 0))
}

func TestConsumeClampsAtZeroAndMarksOutOfStock(t *testing.T) {
	f := newFixture(t)
	f.store.PutOrder(models.Order{ID: 4, Status: models.OrderStatusProcessing, Items: []models.LineItem{
		{ID: 41, ProductID: 503, Quantity: 5},
	}})

	_, err := f.service.Consume(f.ctx, 4)
	require.NoError(t, err)
	require.Equal(t, 0, f.capacity(t, 2))

	product, err := f.store.Product(f.ctx, 503)
	require.NoError(t, err)
	require.Equal(t, models.StockOutOfStock, product.Stock.Status)
	require.Equal(t, 0, product.Stock.Quantity)
}

func TestConsumeFallsBackToItemSnapshot(t *testing.T) {
	f := newFixture(t)
	f.store.PutOrder(models.Order{ID: 5, Status: models.OrderStatusProcessing, Items: []models.LineItem{
		{ID: 51, ProductID: 999, Quantity: 2, Meta: commerce.SetLinkMeta(nil, commerce.Link{EventID: 42, Index: 0})},
		{ID: 52, ProductID: 998, Quantity: 2},
		{ID: 53, ProductID: 501, Quantity: 0},
	}})

	res, err := f.service.Consume(f.ctx, 5)
	require.NoError(t, err)
	require.Equal(t, 1, res.Adjusted)
	require.Equal(t, 2, res.Skipped)
	require.Equal(t, 8, f.capacity(t, 0))
}

func TestMissingEnvelopeSkipsLines(t *testing.T) {
	f := newFixture(t)
	f.store.PutOrder(models.Order{ID: 6, Status: models.OrderStatusProcessing, Items: []models.LineItem{
		{ID: 61, Quantity: 1, Meta: commerce.SetLinkMeta(nil, commerce.Link{EventID: 77, Index: 0})},
	}})

	res, err := f.service.Consume(f.ctx, 6)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)
	require.Equal(t, 0, res.Adjusted)
	require.Equal(t, 1, res.Skipped)

	order, _ := f.store.Order(f.ctx, 6)
	require.True(t, order.HasFlag(models.OrderFlagCapacityConsumed))
}

func TestUnavailableCommerceIsNoop(t *testing.T) {
	collections := ticketing.NewCollections(meta.NewMemory(), nil)
	service := New(commerce.Unavailable{}, collections, nil, nil)

	res, err := service.HandleStatusChange(context.Background(), 1, models.OrderStatusCompleted)
	require.NoError(t, err)
	require.Equal(t, OutcomeUnavailable, res.Outcome)

	res, err = service.HandleStatusChange(context.Background(), 1, models.OrderStatusPending)
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, res.Outcome)
}

func TestConcurrentOrdersDoNotLoseUpdates(t *testing.T) {
	f := newFixture(t)
	for id := int64(100); id < 108; id++ {
		f.store.PutOrder(models.Order{ID: id, Status: models.OrderStatusProcessing, Items: []models.LineItem{
			{ID: id * 10, ProductID: 501, Quantity: 1},
		}})
	}

	var wg sync.WaitGroup
	for id := int64(100); id < 108; id++ {
		wg.Add(2)
		go func(id int64) {
			defer wg.Done()
			_, _ = f.service.HandleStatusChange(f.ctx, id, models.OrderStatusProcessing)
		}(id)
		go func(id int64) {
			defer wg.Done()
			_, _ = f.service.HandleStatusChange(f.ctx, id, models.OrderStatusCompleted)
		}(id)
	}
	wg.Wait()

	require.Equal(t, 2, f.capacity(t, 0))
}

// countingMeta counts ticket envelope writes per event and can fail the next
// write for one event.
type countingMeta struct {
	meta.Store
	mu      sync.Mutex
	updates map[int64]int
	failFor int64
}

func (m *countingMeta) Update(ctx context.Context, entityID int64, key string, fn meta.UpdateFunc) error {
	m.mu.Lock()
	if m.failFor == entityID {
		m.failFor = 0
		m.mu.Unlock()
		return errors.New("db down")
	}
	m.updates[entityID]++
	m.mu.Unlock()
	return m.Store.Update(ctx, entityID, key, fn)
}

func newTwoEventFixture(t *testing.T) (fixture, *countingMeta) {
	t.Helper()
	ctx := context.Background()
	store := commerce.NewMemory()
	counting := &countingMeta{Store: meta.NewMemory(), updates: map[int64]int{}}
	collections := ticketing.NewCollections(counting, nil)
	for _, eventID := range []int64{1, 2} {
		require.NoError(t, collections.Save(ctx, eventID, models.Envelope{Tickets: []models.Ticket{
			{Name: "GA", Price: "10.00", Capacity: 10, InitialCapacity: 10},
			{Name: "VIP", Price: "30.00", Capacity: 10, InitialCapacity: 10},
		}}))
	}
	store.PutOrder(models.Order{ID: 9, Status: models.OrderStatusProcessing, Items: []models.LineItem{
		{ID: 91, Quantity: 1, Meta: commerce.SetLinkMeta(nil, commerce.Link{EventID: 1, Index: 0})},
		{ID: 92, Quantity: 2, Meta: commerce.SetLinkMeta(nil, commerce.Link{EventID: 1, Index: 1})},
		{ID: 93, Quantity: 3, Meta: commerce.SetLinkMeta(nil, commerce.Link{EventID: 2, Index: 0})},
	}})
	counting.updates = map[int64]int{}
	return fixture{ctx: ctx, store: store, collections: collections, service: New(store, collections, nil, nil)}, counting
}

func (f fixture) eventCapacity(t *testing.T, eventID int64, index int) int {
	t.Helper()
	loaded, err := f.collections.Load(f.ctx, eventID)
	require.NoError(t, err)
	ticket, ok := loaded.At(index)
	require.True(t, ok)
	return ticket.Capacity
}

func TestConsumeWritesOncePerEvent(t *testing.T) {
	f, counting := newTwoEventFixture(t)

	res, err := f.service.Consume(f.ctx, 9)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)
	require.Equal(t, 3, res.Adjusted)
	require.Equal(t, map[int64]int{1: 1, 2: 1}, counting.updates)
	require.Equal(t, 9, f.eventCapacity(t, 1, 0))
	require.Equal(t, 8, f.eventCapacity(t, 1, 1))
	require.Equal(t, 7, f.eventCapacity(t, 2, 0))

	res, err = f.service.Restore(f.ctx, 9)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)
	require.Equal(t, map[int64]int{1: 2, 2: 2}, counting.updates)
	require.Equal(t, 10, f.eventCapacity(t, 1, 0))
	require.Equal(t, 10, f.eventCapacity(t, 2, 0))
}

func TestConsumeRetryAfterPartialFailure(t *testing.T) {
	f, counting := newTwoEventFixture(t)
	counting.failFor = 2

	_, err := f.service.Consume(f.ctx, 9)
	require.ErrorContains(t, err, "db down")
	require.Equal(t, 9, f.eventCapacity(t, 1, 0))
	require.Equal(t, 10, f.eventCapacity(t, 2, 0))

	order, err := f.store.Order(f.ctx, 9)
	require.NoError(t, err)
	require.False(t, order.HasFlag(models.OrderFlagCapacityConsumed))
	require.True(t, order.HasFlag(models.EventFlag(models.OrderFlagCapacityConsumed, 1)))

	res, err := f.service.Consume(f.ctx, 9)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)
	require.Equal(t, 1, res.Adjusted)
	require.Equal(t, 9, f.eventCapacity(t, 1, 0))
	require.Equal(t, 8, f.eventCapacity(t, 1, 1))
	require.Equal(t, 7, f.eventCapacity(t, 2, 0))

	res, err = f.service.Consume(f.ctx, 9)
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyDone, res.Outcome)
	require.Equal(t, 7, f.eventCapacity(t, 2, 0))
}

func TestRestoreAfterPartialConsumeOnlyRestoresWrittenEvents(t *testing.T) {
	f, counting := newTwoEventFixture(t)
	counting.failFor = 2

	_, err := f.service.Consume(f.ctx, 9)
	require.Error(t, err)

	res, err := f.service.HandleStatusChange(f.ctx, 9, models.OrderStatusCancelled)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)
	require.Equal(t, 10, f.eventCapacity(t, 1, 0))
	require.Equal(t, 10, f.eventCapacity(t, 1, 1))
	require.Equal(t, 10, f.eventCapacity(t, 2, 0))
}
