// Package pricing turns a pizza selection into its price components.
package pricing

import (
	"context"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"
	"github.com/taldoflemis/pizzeria/cassa/catalog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("cassa/pricing")

// DefaultBasePrice is charged when no base pizza is selected.
var DefaultBasePrice = decimal.RequireFromString("8.00")

// Quote carries exact, unrounded amounts. Round at the output boundary.
type Quote struct {
	BasePrice          decimal.Decimal
	ExtraToppingsPrice decimal.Decimal
	TotalPizzaPrice    decimal.Decimal
}

type Engine struct {
	catalog          catalog.Store
	defaultBasePrice decimal.Decimal
}

func NewEngine(store catalog.Store, defaultBasePrice decimal.Decimal) *Engine {
	if store == nil {
		panic("pricing.NewEngine: nil catalog store")
	}
	return &Engine{
		catalog:          store,
		defaultBasePrice: defaultBasePrice,
	}
}

// Compute prices the requested toppings on top of the base pizza. Toppings
// bundled in the base pizza are never charged again and unknown topping ids
// are ignored. Topping ids must already be validated as positive.
func (e *Engine) Compute(ctx context.Context, toppingIDs []int64, basePizzaID *int64) (Quote, error) {
	ctx, span := tracer.Start(ctx, "Engine.Compute", trace.WithAttributes(
		attribute.Int64Slice("pricing.requested_topping_ids", toppingIDs),
	))
	defer span.End()

	basePrice := e.defaultBasePrice
	var baseToppingIDs []int64

	if basePizzaID != nil {
		span.SetAttributes(attribute.Int64("pricing.base_pizza_id", *basePizzaID))

		pizza, err := e.catalog.GetPizza(ctx, *basePizzaID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to resolve base pizza")
			return Quote{}, err
		}
		basePrice = pizza.BasePrice
		baseToppingIDs = pizza.BaseToppingIDs
	}

	quote := Quote{
		BasePrice:          basePrice,
		ExtraToppingsPrice: decimal.Zero,
		TotalPizzaPrice:    basePrice,
	}

	extraIDs := ExtraToppingIDs(toppingIDs, baseToppingIDs)
	if len(extraIDs) == 0 {
		return quote, nil
	}

	extras, err := e.catalog.GetToppingsByIDs(ctx, extraIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve extra toppings")
		return Quote{}, err
	}
	if len(extras) != len(extraIDs) {
		slog.DebugContext(ctx, "ignoring unknown toppings",
			slog.Int("requested", len(extraIDs)),
			slog.Int("resolved", len(extras)),
		)
	}

	quote.ExtraToppingsPrice = SumPrices(extras)
	quote.TotalPizzaPrice = quote.BasePrice.Add(quote.ExtraToppingsPrice)

	return quote, nil
}

// ExtraToppingIDs returns the distinct requested ids that are not part of the
// base set, in ascending order.
func ExtraToppingIDs(requested, base []int64) []int64 {
	extras := make([]int64, 0, len(requested))
	for _, id := range requested {
		if slices.Contains(base, id) || slices.Contains(extras, id) {
			continue
		}
		extras = append(extras, id)
	}
	slices.Sort(extras)
	return extras
}

func SumPrices(toppings []catalog.Topping) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range toppings {
		sum = sum.Add(t.Price)
	}
	return sum
}
