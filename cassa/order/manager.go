package order

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/taldoflemis/pizzeria/cassa/pricing"
	"github.com/taldoflemis/pizzeria/pacchetto/apperr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("cassa/order")
	meter  = otel.Meter("cassa/order")
)

// DefaultDeliveryFee is the flat fee added to every order.
var DefaultDeliveryFee = decimal.RequireFromString("5.00")

type priceQuoter interface {
	Compute(ctx context.Context, toppingIDs []int64, basePizzaID *int64) (pricing.Quote, error)
}

type Config struct {
	DeliveryFee decimal.Decimal
	// DefaultPizzaID is used when an order names no base pizza. Zero means
	// the order is priced from the default base price instead.
	DefaultPizzaID int64
}

type CreateRequest struct {
	Address     string
	ToppingIDs  []int64
	BasePizzaID *int64
}

// Manager validates requests and enforces the pending -> confirmed
// transition. Confirmed is terminal.
type Manager struct {
	repo      Repository
	pricer    priceQuoter
	publisher Publisher
	cfg       Config
	now       func() time.Time

	createdCounter   metric.Int64Counter
	confirmedCounter metric.Int64Counter
	totalHistogram   metric.Float64Histogram
}

// NewManager panics on a nil repository or pricer. A nil publisher disables
// order events.
func NewManager(repo Repository, pricer priceQuoter, publisher Publisher, cfg Config) (*Manager, error) {
	if repo == nil {
		panic("order.NewManager: nil repository")
	}
	if pricer == nil {
		panic("order.NewManager: nil pricer")
	}

	createdCounter, err := meter.Int64Counter(
		"cassa.orders.created",
		metric.WithDescription("Number of orders created"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, err
	}

	confirmedCounter, err := meter.Int64Counter(
		"cassa.orders.confirmed",
		metric.WithDescription("Number of orders confirmed"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, err
	}

	totalHistogram, err := meter.Float64Histogram(
		"cassa.orders.total_price",
		metric.WithDescription("Total price of created orders"),
		metric.WithUnit("{currency}"),
	)
	if err != nil {
		return nil, err
	}

	return &Manager{
		repo:             repo,
		pricer:           pricer,
		publisher:        publisher,
		cfg:              cfg,
		now:              time.Now,
		createdCounter:   createdCounter,
		confirmedCounter: confirmedCounter,
		totalHistogram:   totalHistogram,
	}, nil
}

func (m *Manager) CreateOrder(ctx context.Context, req CreateRequest) (Order, error) {
	ctx, span := tracer.Start(ctx, "Manager.CreateOrder", trace.WithAttributes(
		attribute.Int64Slice("order.topping_ids", req.ToppingIDs),
	))
	defer span.End()

	address := strings.TrimSpace(req.Address)
	if address == "" {
		return Order{}, fail(span, apperr.Validation("address required"))
	}
	if err := ValidateToppingIDs(req.ToppingIDs); err != nil {
		return Order{}, fail(span, err)
	}

	basePizzaID := req.BasePizzaID
	if basePizzaID == nil && m.cfg.DefaultPizzaID > 0 {
		id := m.cfg.DefaultPizzaID
		basePizzaID = &id
	}
	if err := validateID(basePizzaID, "invalid pizza id"); err != nil {
		return Order{}, fail(span, err)
	}

	quote, err := m.pricer.Compute(ctx, req.ToppingIDs, basePizzaID)
	if err != nil {
		return Order{}, fail(span, err)
	}

	toppingIDs := make([]int64, len(req.ToppingIDs))
	copy(toppingIDs, req.ToppingIDs)

	pizzaPrice := quote.TotalPizzaPrice.Round(2)
	draft := Draft{
		BasePizzaID: basePizzaID,
		ToppingIDs:  toppingIDs,
		Address:     address,
		PizzaPrice:  pizzaPrice,
		DeliveryFee: m.cfg.DeliveryFee,
		TotalPrice:  pizzaPrice.Add(m.cfg.DeliveryFee),
	}

	order, err := m.repo.Create(ctx, draft)
	if err != nil {
		return Order{}, fail(span, err)
	}

	span.SetAttributes(attribute.Int64("order.id", order.ID))
	slog.InfoContext(ctx, "order created",
		slog.Int64("order_id", order.ID),
		slog.String("total_price", order.TotalPrice.StringFixed(2)),
	)

	m.createdCounter.Add(ctx, 1)
	m.totalHistogram.Record(ctx, order.TotalPrice.InexactFloat64())
	m.publish(ctx, order)

	return order, nil
}

// ConfirmOrder flips a pending order to confirmed. Confirming twice is a
// caller error, not a no-op.
func (m *Manager) ConfirmOrder(ctx context.Context, id int64) (Order, error) {
	ctx, span := tracer.Start(ctx, "Manager.ConfirmOrder", trace.WithAttributes(
		attribute.Int64("order.id", id),
	))
	defer span.End()

	if id <= 0 {
		return Order{}, fail(span, apperr.Validation("invalid order id"))
	}

	order, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return Order{}, fail(span, err)
	}

	if order.Status == StatusConfirmed {
		return Order{}, fail(span, apperr.Conflict("order already confirmed"))
	}

	order.Status = StatusConfirmed
	order.UpdatedAt = m.now().UTC()

	if err := m.repo.Save(ctx, order); err != nil {
		return Order{}, fail(span, err)
	}

	slog.InfoContext(ctx, "order confirmed", slog.Int64("order_id", order.ID))

	m.confirmedCounter.Add(ctx, 1)
	m.publish(ctx, order)

	return order, nil
}

func (m *Manager) GetOrder(ctx context.Context, id int64) (Order, error) {
	ctx, span := tracer.Start(ctx, "Manager.GetOrder", trace.WithAttributes(
		attribute.Int64("order.id", id),
	))
	defer span.End()

	if id <= 0 {
		return Order{}, fail(span, apperr.Validation("invalid order id"))
	}

	order, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return Order{}, fail(span, err)
	}
	return order, nil
}

func (m *Manager) ListOrders(ctx context.Context, query ListQuery) ([]Order, error) {
	ctx, span := tracer.Start(ctx, "Manager.ListOrders", trace.WithAttributes(
		attribute.String("order.filter_status", string(query.Status)),
		attribute.String("order.sort_by", string(query.SortBy)),
		attribute.String("order.sort_direction", string(query.SortDirection)),
	))
	defer span.End()

	orders, err := m.repo.List(ctx, query)
	if err != nil {
		return nil, fail(span, err)
	}
	return orders, nil
}

// Stats summarizes every stored order for the dashboard.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	ctx, span := tracer.Start(ctx, "Manager.Stats")
	defer span.End()

	orders, err := m.repo.List(ctx, DefaultListQuery)
	if err != nil {
		return Stats{}, fail(span, err)
	}
	return Summarize(orders), nil
}

// QuotePrice prices a selection without creating an order. Unlike
// CreateOrder, an absent base pizza is priced from the default base price.
func (m *Manager) QuotePrice(ctx context.Context, toppingIDs []int64, basePizzaID *int64) (pricing.Quote, error) {
	ctx, span := tracer.Start(ctx, "Manager.QuotePrice")
	defer span.End()

	if err := ValidateToppingIDs(toppingIDs); err != nil {
		return pricing.Quote{}, fail(span, err)
	}
	if err := validateID(basePizzaID, "invalid pizza id"); err != nil {
		return pricing.Quote{}, fail(span, err)
	}

	quote, err := m.pricer.Compute(ctx, toppingIDs, basePizzaID)
	if err != nil {
		return pricing.Quote{}, fail(span, err)
	}
	return quote, nil
}

// ValidateToppingIDs accepts duplicates but rejects ids that are not positive.
func ValidateToppingIDs(ids []int64) error {
	for _, id := range ids {
		if id <= 0 {
			return apperr.Validation("invalid topping id")
		}
	}
	return nil
}

func validateID(id *int64, msg string) error {
	if id != nil && *id <= 0 {
		return apperr.Validation(msg)
	}
	return nil
}

func (m *Manager) publish(ctx context.Context, order Order) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.PubOrder(ctx, order); err != nil {
		slog.ErrorContext(ctx, "failed to publish order",
			slog.Int64("order_id", order.ID),
			slog.Any("err", err),
		)
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, apperr.Kind(err))
	return err
}
