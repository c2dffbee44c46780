package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taldoflemis/pizzeria/cassa/catalog"
	"github.com/taldoflemis/pizzeria/cassa/order"
	"github.com/taldoflemis/pizzeria/pacchetto/apperr"
)

func newTestStore() *Store {
	return NewStore(
		[]catalog.Pizza{
			{ID: 1, Name: "Margherita", BasePrice: decimal.RequireFromString("8.00"), BaseToppingIDs: []int64{1}},
			{ID: 2, Name: "Diavola", BasePrice: decimal.RequireFromString("10.50"), BaseToppingIDs: []int64{1, 2}},
		},
		[]catalog.Topping{
			{ID: 1, Name: "Cheese", Price: decimal.RequireFromString("1.50")},
			{ID: 2, Name: "Pepperoni", Price: decimal.RequireFromString("2.00")},
			{ID: 3, Name: "Basil", Price: decimal.RequireFromString("0.10")},
		},
	)
}

func TestCatalog(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	pizza, err := store.GetPizza(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Margherita", pizza.Name)

	// Callers get their own copy of the base toppings.
	pizza.BaseToppingIDs[0] = 99
	again, err := store.GetPizza(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, again.BaseToppingIDs)

	_, err = store.GetPizza(ctx, 42)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	pizzas, err := store.ListPizzas(ctx)
	require.NoError(t, err)
	require.Len(t, pizzas, 2)
	assert.Equal(t, "Diavola", pizzas[0].Name)

	toppings, err := store.GetToppingsByIDs(ctx, []int64{3, 2, 2, 404})
	require.NoError(t, err)
	require.Len(t, toppings, 2)
	assert.Equal(t, int64(2), toppings[0].ID)
	assert.Equal(t, int64(3), toppings[1].ID)

	all, err := store.ListToppings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Basil", all[0].Name)
}

func TestOrders(t *testing.T) {
	// Arrange
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore().WithClock(func() time.Time { return fixed })
	ctx := context.Background()
	pizzaID := int64(1)
	toppingIDs := []int64{1, 2, 2}

	// Act
	created, err := store.Create(ctx, order.Draft{
		BasePizzaID: &pizzaID,
		ToppingIDs:  toppingIDs,
		Address:     "Via Roma 1",
		PizzaPrice:  decimal.RequireFromString("10.00"),
		DeliveryFee: decimal.RequireFromString("5.00"),
		TotalPrice:  decimal.RequireFromString("15.00"),
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, order.StatusPending, created.Status)
	assert.Equal(t, fixed, created.CreatedAt)
	assert.Equal(t, fixed, created.UpdatedAt)

	toppingIDs[0] = 77
	pizzaID = 9
	loaded, err := store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 2}, loaded.ToppingIDs)
	assert.Equal(t, int64(1), *loaded.BasePizzaID)

	loaded.Status = order.StatusConfirmed
	require.NoError(t, store.Save(ctx, loaded))

	confirmed, err := store.List(ctx, order.ListQuery{
		Status:        order.StatusConfirmed,
		SortBy:        order.SortByID,
		SortDirection: order.SortAscending,
	})
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, created.ID, confirmed[0].ID)

	_, err = store.GetByID(ctx, 2)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, store.Save(ctx, order.Order{ID: 2}), apperr.ErrNotFound)
}

func TestCreateAssignsUniqueIDsConcurrently(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	const n = 50
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := store.Create(ctx, order.Draft{Address: "Via Roma 1"})
			assert.NoError(t, err)
			ids <- o.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]struct{}, n)
	for id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
}
