// Package order drives customer orders from creation to confirmation.
package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Order prices are fixed at creation and never recomputed.
// ToppingIDs is the raw requested sequence, duplicates included.
type Order struct {
	ID          int64
	BasePizzaID *int64
	ToppingIDs  []int64
	Address     string
	PizzaPrice  decimal.Decimal
	DeliveryFee decimal.Decimal
	TotalPrice  decimal.Decimal
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Draft is an order that has not been persisted yet.
type Draft struct {
	BasePizzaID *int64
	ToppingIDs  []int64
	Address     string
	PizzaPrice  decimal.Decimal
	DeliveryFee decimal.Decimal
	TotalPrice  decimal.Decimal
}

// Repository persists orders.
//
// Create assigns the id and the creation time and always stores the order as
// pending. GetByID returns an error marked apperr.ErrNotFound when the order
// does not exist. Save overwrites a previously loaded order.
type Repository interface {
	Create(ctx context.Context, draft Draft) (Order, error)
	GetByID(ctx context.Context, id int64) (Order, error)
	Save(ctx context.Context, order Order) error
	List(ctx context.Context, query ListQuery) ([]Order, error)
}

// Publisher is notified after an order is created or changes status.
type Publisher interface {
	PubOrder(ctx context.Context, order Order) error
}
