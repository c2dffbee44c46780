// Package postgres stores the menu and the orders in PostgreSQL. Topping id
// lists live in BIGINT[] columns and money in NUMERIC(10,2).
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/taldoflemis/pizzeria/cassa/catalog"
	"github.com/taldoflemis/pizzeria/cassa/order"
	"github.com/taldoflemis/pizzeria/pacchetto"
	"github.com/taldoflemis/pizzeria/pacchetto/apperr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

//go:embed schema.sql
var schema string

var tracer = otel.Tracer("cassa/storage/postgres")

type Store struct {
	pool *pgxpool.Pool
}

var (
	_ catalog.Store    = (*Store)(nil)
	_ order.Repository = (*Store)(nil)
)

// Connect opens a pool and checks that the server answers.
func Connect(ctx context.Context, cfg pacchetto.PostgresSettings) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "parse postgres dsn")
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "create postgres pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies the idempotent schema.
func (s *Store) Migrate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Store.Migrate")
	defer span.End()

	slog.InfoContext(ctx, "applying postgres schema")
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fail(span, apperr.Storage(err, "apply schema"))
	}
	return nil
}

const pizzaColumns = `id, name, description, base_price, base_topping_ids`

func (s *Store) GetPizza(ctx context.Context, id int64) (catalog.Pizza, error) {
	ctx, span := s.start(ctx, "Store.GetPizza", attribute.Int64("pizza.id", id))
	defer span.End()

	row := s.pool.QueryRow(ctx, `SELECT `+pizzaColumns+` FROM pizzas WHERE id = $1`, id)
	p, err := scanPizza(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Pizza{}, fail(span, apperr.NotFound("pizza %d not found", id))
	}
	if err != nil {
		return catalog.Pizza{}, fail(span, apperr.Storage(err, "select pizza failed"))
	}
	return p, nil
}

func (s *Store) ListPizzas(ctx context.Context) ([]catalog.Pizza, error) {
	ctx, span := s.start(ctx, "Store.ListPizzas")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT `+pizzaColumns+` FROM pizzas ORDER BY name ASC`)
	if err != nil {
		return nil, fail(span, apperr.Storage(err, "select pizzas failed"))
	}
	defer rows.Close()

	pizzas := make([]catalog.Pizza, 0)
	for rows.Next() {
		p, err := scanPizza(rows)
		if err != nil {
			return nil, fail(span, apperr.Storage(err, "scan pizza failed"))
		}
		pizzas = append(pizzas, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, apperr.Storage(err, "iterate pizzas failed"))
	}
	return pizzas, nil
}

func (s *Store) GetToppingsByIDs(ctx context.Context, ids []int64) ([]catalog.Topping, error) {
	ctx, span := s.start(ctx, "Store.GetToppingsByIDs", attribute.Int64Slice("topping.ids", ids))
	defer span.End()

	if len(ids) == 0 {
		return []catalog.Topping{}, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT id, name, price FROM toppings WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fail(span, apperr.Storage(err, "select toppings failed"))
	}
	return collectToppings(span, rows)
}

func (s *Store) ListToppings(ctx context.Context) ([]catalog.Topping, error) {
	ctx, span := s.start(ctx, "Store.ListToppings")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT id, name, price FROM toppings ORDER BY name ASC`)
	if err != nil {
		return nil, fail(span, apperr.Storage(err, "select toppings failed"))
	}
	return collectToppings(span, rows)
}

const orderColumns = `id, base_pizza_id, topping_ids, address, pizza_price, delivery_fee, total_price, status, created_at, updated_at`

func (s *Store) Create(ctx context.Context, draft order.Draft) (order.Order, error) {
	ctx, span := s.start(ctx, "Store.Create")
	defer span.End()

	toppingIDs := draft.ToppingIDs
	if toppingIDs == nil {
		toppingIDs = []int64{}
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO orders (base_pizza_id, topping_ids, address, pizza_price, delivery_fee, total_price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+orderColumns,
		draft.BasePizzaID,
		toppingIDs,
		draft.Address,
		numeric(draft.PizzaPrice),
		numeric(draft.DeliveryFee),
		numeric(draft.TotalPrice),
		string(order.StatusPending),
	)

	o, err := scanOrder(row)
	if err != nil {
		return order.Order{}, fail(span, apperr.Storage(err, "insert order failed"))
	}
	span.SetAttributes(attribute.Int64("order.id", o.ID))
	return o, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (order.Order, error) {
	ctx, span := s.start(ctx, "Store.GetByID", attribute.Int64("order.id", id))
	defer span.End()

	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return order.Order{}, fail(span, apperr.NotFound("order %d not found", id))
	}
	if err != nil {
		return order.Order{}, fail(span, apperr.Storage(err, "select order failed"))
	}
	return o, nil
}

// Save overwrites the mutable columns of a stored order. Concurrent saves of
// the same order are last-writer-wins.
func (s *Store) Save(ctx context.Context, o order.Order) error {
	ctx, span := s.start(ctx, "Store.Save", attribute.Int64("order.id", o.ID))
	defer span.End()

	toppingIDs := o.ToppingIDs
	if toppingIDs == nil {
		toppingIDs = []int64{}
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET base_pizza_id = $2,
		    topping_ids = $3,
		    address = $4,
		    pizza_price = $5,
		    delivery_fee = $6,
		    total_price = $7,
		    status = $8,
		    updated_at = $9
		WHERE id = $1`,
		o.ID,
		o.BasePizzaID,
		toppingIDs,
		o.Address,
		numeric(o.PizzaPrice),
		numeric(o.DeliveryFee),
		numeric(o.TotalPrice),
		string(o.Status),
		o.UpdatedAt,
	)
	if err != nil {
		return fail(span, apperr.Storage(err, "update order failed"))
	}
	if tag.RowsAffected() == 0 {
		return fail(span, apperr.NotFound("order %d not found", o.ID))
	}
	return nil
}

var sortColumns = map[order.SortField]string{
	order.SortByID:         "id",
	order.SortByCreatedAt:  "created_at",
	order.SortByTotalPrice: "total_price",
	order.SortByStatus:     "status",
}

func (s *Store) List(ctx context.Context, query order.ListQuery) ([]order.Order, error) {
	ctx, span := s.start(ctx, "Store.List",
		attribute.String("order.filter_status", string(query.Status)),
		attribute.String("order.sort_by", string(query.SortBy)),
	)
	defer span.End()

	column, ok := sortColumns[query.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if query.SortDirection == order.SortAscending {
		direction = "ASC"
	}

	sql := fmt.Sprintf(`SELECT %s FROM orders WHERE ($1 = '' OR status = $1) ORDER BY %s %s, id %s`,
		orderColumns, column, direction, direction)

	rows, err := s.pool.Query(ctx, sql, string(query.Status))
	if err != nil {
		return nil, fail(span, apperr.Storage(err, "select orders failed"))
	}
	defer rows.Close()

	orders := make([]order.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fail(span, apperr.Storage(err, "scan order failed"))
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, apperr.Storage(err, "iterate orders failed"))
	}
	return orders, nil
}

func (s *Store) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "postgresql"))
	return tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func scanPizza(row pgx.Row) (catalog.Pizza, error) {
	var (
		p         catalog.Pizza
		basePrice pgtype.Numeric
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &basePrice, &p.BaseToppingIDs); err != nil {
		return catalog.Pizza{}, err
	}
	price, err := toDecimal(basePrice)
	if err != nil {
		return catalog.Pizza{}, err
	}
	p.BasePrice = price
	return p, nil
}

func collectToppings(span trace.Span, rows pgx.Rows) ([]catalog.Topping, error) {
	defer rows.Close()

	toppings := make([]catalog.Topping, 0)
	for rows.Next() {
		var (
			t     catalog.Topping
			price pgtype.Numeric
		)
		if err := rows.Scan(&t.ID, &t.Name, &price); err != nil {
			return nil, fail(span, apperr.Storage(err, "scan topping failed"))
		}
		d, err := toDecimal(price)
		if err != nil {
			return nil, fail(span, apperr.Storage(err, "decode topping price failed"))
		}
		t.Price = d
		toppings = append(toppings, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, apperr.Storage(err, "iterate toppings failed"))
	}
	return toppings, nil
}

func scanOrder(row pgx.Row) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	var pizzaPrice, deliveryFee, total pgtype.Numeric
	err := row.Scan(
		&o.ID,
		&o.BasePizzaID,
		&o.ToppingIDs,
		&o.Address,
		&pizzaPrice,
		&deliveryFee,
		&total,
		&status,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}
	o.Status = order.Status(status)
	if o.ToppingIDs == nil {
		o.ToppingIDs = []int64{}
	}

	if o.PizzaPrice, err = toDecimal(pizzaPrice); err != nil {
		return order.Order{}, err
	}
	if o.DeliveryFee, err = toDecimal(deliveryFee); err != nil {
		return order.Order{}, err
	}
	if o.TotalPrice, err = toDecimal(total); err != nil {
		return order.Order{}, err
	}
	return o, nil
}

func toDecimal(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Zero, errors.New("unexpected NULL numeric")
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return decimal.Zero, errors.New("numeric is not a finite number")
	}
	if n.Int == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
