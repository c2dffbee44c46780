package main

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/taldoflemis/pizzeria/cassa/catalog"
	"github.com/taldoflemis/pizzeria/cassa/order"
	"github.com/taldoflemis/pizzeria/cassa/pricing"
	"github.com/taldoflemis/pizzeria/pacchetto/apperr"
)

const confirmedMessage = "Order confirmed successfully!"

type ErrorResponse struct {
	Error string `json:"error" example:"address required"`
}

type ToppingResponse struct {
	ID    int64  `json:"id" example:"1"`
	Name  string `json:"name" example:"Cheese"`
	Price string `json:"price" example:"1.50"`
}

type PizzaResponse struct {
	ID           int64   `json:"id" example:"1"`
	Name         string  `json:"name" example:"Margherita"`
	Description  *string `json:"description"`
	BasePrice    string  `json:"basePrice" example:"8.00"`
	BaseToppings []int64 `json:"baseToppings"`
}

type OrderResponse struct {
	ID          int64     `json:"id" example:"42"`
	BasePizzaID *int64    `json:"basePizzaId"`
	Toppings    []int64   `json:"toppings"`
	Address     string    `json:"address" example:"Via Roma 1"`
	PizzaPrice  string    `json:"pizzaPrice" example:"10.00"`
	DeliveryFee string    `json:"deliveryFee" example:"5.00"`
	TotalPrice  string    `json:"totalPrice" example:"15.00"`
	Status      string    `json:"status" example:"pending"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type ConfirmOrderResponse struct {
	Message string        `json:"message" example:"Order confirmed successfully!"`
	Order   OrderResponse `json:"order"`
}

// CreateOrderRequest keeps toppingIds raw so that non integer entries are
// reported as invalid ids instead of a generic decoding error.
type CreateOrderRequest struct {
	ToppingIDs  json.RawMessage `json:"toppingIds" swaggertype:"array,integer"`
	Address     string          `json:"address" example:"Via Roma 1"`
	BasePizzaID *int64          `json:"basePizzaId" validate:"omitempty,gt=0" example:"1"`
}

type CalculatePriceRequest struct {
	ToppingIDs  json.RawMessage `json:"toppingIds" swaggertype:"array,integer"`
	BasePizzaID *int64          `json:"basePizzaId" validate:"omitempty,gt=0" example:"1"`
}

type CalculatePriceResponse struct {
	BasePrice     string `json:"basePrice" example:"8.00"`
	ToppingsPrice string `json:"toppingsPrice" example:"2.00"`
	TotalPrice    string `json:"totalPrice" example:"10.00"`
}

type ListOrdersQuery struct {
	Status    string `query:"status"`
	SortBy    string `query:"sortBy"`
	SortOrder string `query:"sortOrder"`
}

type StatsResponse struct {
	Total     int    `json:"total" example:"12"`
	Pending   int    `json:"pending" example:"4"`
	Confirmed int    `json:"confirmed" example:"8"`
	Revenue   string `json:"revenue" example:"118.50"`
}

// OrderEvent is what the live feed carries.
type OrderEvent struct {
	ID         string        `json:"id"`
	Type       string        `json:"type" example:"order.created"`
	OccurredAt time.Time     `json:"occurredAt"`
	Order      OrderResponse `json:"order"`
}

const (
	EventOrderCreated   = "order.created"
	EventOrderConfirmed = "order.confirmed"
)

func eventType(status order.Status) string {
	if status == order.StatusConfirmed {
		return EventOrderConfirmed
	}
	return EventOrderCreated
}

// parseToppingIDs accepts only a JSON array of integers.
func parseToppingIDs(raw json.RawMessage) ([]int64, error) {
	invalid := apperr.Validation("invalid topping id")

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, invalid
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var values []any
	if err := dec.Decode(&values); err != nil || values == nil {
		return nil, invalid
	}

	ids := make([]int64, 0, len(values))
	for _, v := range values {
		n, ok := v.(json.Number)
		if !ok {
			return nil, invalid
		}
		id, err := n.Int64()
		if err != nil {
			return nil, invalid
		}
		ids = append(ids, id)
	}

	if err := order.ValidateToppingIDs(ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func newToppingResponse(t catalog.Topping) ToppingResponse {
	return ToppingResponse{
		ID:    t.ID,
		Name:  t.Name,
		Price: money(t.Price),
	}
}

func newPizzaResponse(p catalog.Pizza) PizzaResponse {
	baseToppings := p.BaseToppingIDs
	if baseToppings == nil {
		baseToppings = []int64{}
	}
	return PizzaResponse{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		BasePrice:    money(p.BasePrice),
		BaseToppings: baseToppings,
	}
}

func newOrderResponse(o order.Order) OrderResponse {
	toppings := o.ToppingIDs
	if toppings == nil {
		toppings = []int64{}
	}
	return OrderResponse{
		ID:          o.ID,
		BasePizzaID: o.BasePizzaID,
		Toppings:    toppings,
		Address:     o.Address,
		PizzaPrice:  money(o.PizzaPrice),
		DeliveryFee: money(o.DeliveryFee),
		TotalPrice:  money(o.TotalPrice),
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func newCalculatePriceResponse(q pricing.Quote) CalculatePriceResponse {
	return CalculatePriceResponse{
		BasePrice:     money(q.BasePrice),
		ToppingsPrice: money(q.ExtraToppingsPrice),
		TotalPrice:    money(q.TotalPizzaPrice),
	}
}

func newStatsResponse(s order.Stats) StatsResponse {
	return StatsResponse{
		Total:     s.Total,
		Pending:   s.Pending,
		Confirmed: s.Confirmed,
		Revenue:   money(s.Revenue),
	}
}

func mapSlice[T, R any](in []T, fn func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
