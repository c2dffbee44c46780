// Package catalog holds the menu the shop sells: base pizzas and toppings.
package catalog

import (
	"context"

	"github.com/shopspring/decimal"
)

type Topping struct {
	ID    int64
	Name  string
	Price decimal.Decimal
}

// Pizza is a named preset. BaseToppingIDs are included in BasePrice and can
// only be supplemented by the customer, never removed.
type Pizza struct {
	ID             int64
	Name           string
	Description    *string
	BasePrice      decimal.Decimal
	BaseToppingIDs []int64
}

// Store is read-only access to the menu.
//
// GetPizza returns an error marked apperr.ErrNotFound when the pizza does not
// exist. GetToppingsByIDs silently omits unknown ids, so callers must not
// assume the result has the same length as the input. Both list operations
// sort by name ascending.
type Store interface {
	GetPizza(ctx context.Context, id int64) (Pizza, error)
	GetToppingsByIDs(ctx context.Context, ids []int64) ([]Topping, error)
	ListPizzas(ctx context.Context) ([]Pizza, error)
	ListToppings(ctx context.Context) ([]Topping, error)
}

