// Package memory keeps the menu and the orders in process memory. It backs
// the "memory" storage driver and the tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/taldoflemis/pizzeria/cassa/catalog"
	"github.com/taldoflemis/pizzeria/cassa/order"
	"github.com/taldoflemis/pizzeria/pacchetto/apperr"
)

type Store struct {
	mu       sync.RWMutex
	pizzas   map[int64]catalog.Pizza
	toppings map[int64]catalog.Topping
	orders   map[int64]order.Order
	nextID   int64
	now      func() time.Time
}

var (
	_ catalog.Store    = (*Store)(nil)
	_ order.Repository = (*Store)(nil)
)

func NewStore(pizzas []catalog.Pizza, toppings []catalog.Topping) *Store {
	s := &Store{
		pizzas:   make(map[int64]catalog.Pizza, len(pizzas)),
		toppings: make(map[int64]catalog.Topping, len(toppings)),
		orders:   make(map[int64]order.Order),
		nextID:   1,
		now:      time.Now,
	}
	for _, p := range pizzas {
		p.BaseToppingIDs = slices.Clone(p.BaseToppingIDs)
		s.pizzas[p.ID] = p
	}
	for _, t := range toppings {
		s.toppings[t.ID] = t
	}
	return s
}

// WithClock replaces the clock used to stamp new orders.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) GetPizza(_ context.Context, id int64) (catalog.Pizza, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pizzas[id]
	if !ok {
		return catalog.Pizza{}, apperr.NotFound("pizza %d not found", id)
	}
	p.BaseToppingIDs = slices.Clone(p.BaseToppingIDs)
	return p, nil
}

func (s *Store) GetToppingsByIDs(_ context.Context, ids []int64) ([]catalog.Topping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	toppings := make([]catalog.Topping, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if t, ok := s.toppings[id]; ok {
			toppings = append(toppings, t)
		}
	}
	slices.SortFunc(toppings, func(a, b catalog.Topping) int { return cmp.Compare(a.ID, b.ID) })
	return toppings, nil
}

func (s *Store) ListPizzas(context.Context) ([]catalog.Pizza, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pizzas := make([]catalog.Pizza, 0, len(s.pizzas))
	for _, p := range s.pizzas {
		p.BaseToppingIDs = slices.Clone(p.BaseToppingIDs)
		pizzas = append(pizzas, p)
	}
	slices.SortFunc(pizzas, func(a, b catalog.Pizza) int { return strings.Compare(a.Name, b.Name) })
	return pizzas, nil
}

func (s *Store) ListToppings(context.Context) ([]catalog.Topping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	toppings := make([]catalog.Topping, 0, len(s.toppings))
	for _, t := range s.toppings {
		toppings = append(toppings, t)
	}
	slices.SortFunc(toppings, func(a, b catalog.Topping) int { return strings.Compare(a.Name, b.Name) })
	return toppings, nil
}

func (s *Store) Create(_ context.Context, draft order.Draft) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	o := order.Order{
		ID:          s.nextID,
		BasePizzaID: cloneID(draft.BasePizzaID),
		ToppingIDs:  cloneIDs(draft.ToppingIDs),
		Address:     draft.Address,
		PizzaPrice:  draft.PizzaPrice,
		DeliveryFee: draft.DeliveryFee,
		TotalPrice:  draft.TotalPrice,
		Status:      order.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.orders[o.ID] = o
	s.nextID++

	return copyOrder(o), nil
}

func (s *Store) GetByID(_ context.Context, id int64) (order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, apperr.NotFound("order %d not found", id)
	}
	return copyOrder(o), nil
}

func (s *Store) Save(_ context.Context, o order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[o.ID]; !ok {
		return apperr.NotFound("order %d not found", o.ID)
	}
	s.orders[o.ID] = copyOrder(o)
	return nil
}

func (s *Store) List(_ context.Context, query order.ListQuery) ([]order.Order, error) {
	s.mu.RLock()
	orders := make([]order.Order, 0, len(s.orders))
	for _, o := range s.orders {
		orders = append(orders, copyOrder(o))
	}
	s.mu.RUnlock()

	return query.Apply(orders), nil
}

func copyOrder(o order.Order) order.Order {
	o.BasePizzaID = cloneID(o.BasePizzaID)
	o.ToppingIDs = cloneIDs(o.ToppingIDs)
	return o
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneIDs(ids []int64) []int64 {
	out := make([]int64, len(ids))
	copy(out, ids)
	return out
}
