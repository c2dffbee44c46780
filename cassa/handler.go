package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	healthgo "github.com/hellofresh/health-go/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	"github.com/taldoflemis/pizzeria/cassa/auth"
	"github.com/taldoflemis/pizzeria/cassa/catalog"
	"github.com/taldoflemis/pizzeria/cassa/order"
	"github.com/taldoflemis/pizzeria/pacchetto"
	"github.com/taldoflemis/pizzeria/pacchetto/apperr"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("cassa")

const wsWriteWait = 10 * time.Second

type MainHandler struct {
	manager        *order.Manager
	catalog        catalog.Store
	orderPubSubber OrderPubSubber
	authenticator  auth.Authenticator
	health         *healthgo.Health
	upgrader       websocket.Upgrader
}

// requestValidator plugs go-playground/validator into echo and reports the
// first failing field as a validation error.
type requestValidator struct {
	validate *validator.Validate
}

var fieldMessages = map[string]string{
	"basePizzaId": "invalid pizza id",
	"toppingIds":  "invalid topping id",
	"address":     "address required",
}

func newRequestValidator() *requestValidator {
	validate := pacchetto.NewValidator()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{validate: validate}
}

func (v *requestValidator) Validate(i any) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		field := fieldErrs[0].Field()
		if msg, ok := fieldMessages[field]; ok {
			return apperr.Validation(msg)
		}
		return apperr.Validation("invalid " + field)
	}
	return apperr.Validation("invalid request")
}

func NewMainHandler(
	e *echo.Echo,
	settings *Settings,
	manager *order.Manager,
	store catalog.Store,
	orderPubSubber OrderPubSubber,
	authenticator auth.Authenticator,
	health *healthgo.Health,
) *MainHandler {
	logger := slog.Default()
	e.HideBanner = true
	e.Validator = newRequestValidator()
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: settings.HTTP.CORS.Origins,
		AllowMethods: settings.HTTP.CORS.Methods,
		AllowHeaders: settings.HTTP.CORS.Headers,
	}))
	e.Use(otelecho.Middleware(settings.App.Name,
		otelecho.WithMetricAttributeFn(func(r *http.Request) []attribute.KeyValue {
			return []attribute.KeyValue{
				attribute.String("client.ip", r.RemoteAddr),
				attribute.String("user.agent", r.UserAgent()),
			}
		}),
		otelecho.WithEchoMetricAttributeFn(func(c echo.Context) []attribute.KeyValue {
			return []attribute.KeyValue{
				attribute.String("handler.path", c.Path()),
				attribute.String("handler.method", c.Request().Method),
			}
		}),
	))
	e.Use(classifyErrors)

	allowedOrigins := settings.HTTP.CORS.Origins
	handler := &MainHandler{
		manager:        manager,
		catalog:        store,
		orderPubSubber: orderPubSubber,
		authenticator:  authenticator,
		health:         health,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
	}
	e.HTTPErrorHandler = handler.handleError

	e.GET("/healthz", handler.HealthCheck)

	api := e.Group(settings.HTTP.Prefix)
	api.GET("/pizzas", handler.ListPizzas)
	api.GET("/pizzas/:id", handler.GetPizza)
	api.GET("/toppings", handler.ListToppings)
	api.POST("/toppings/calculate-price", handler.CalculatePrice)
	api.POST("/orders", handler.CreateOrder)
	api.GET("/orders", handler.ListOrders)
	api.GET("/orders/:id", handler.GetOrder)
	api.POST("/orders/:id/confirm", handler.ConfirmOrder)

	admin := api.Group("/admin", middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
		Realm: settings.App.Name,
		Validator: func(username, password string, c echo.Context) (bool, error) {
			return handler.authenticator.Authenticate(c.Request().Context(), username, password)
		},
	}))
	admin.GET("/orders/stats", handler.GetOrderStats)
	admin.GET("/orders/live", handler.GetLiveOrdersSSE)
	admin.GET("/orders/ws", handler.GetLiveOrdersWS)

	return handler
}

// ListPizzas godoc
//
// @Summary List the base pizzas
// @Tags catalog
// @Produce json
// @Success 200 {array} PizzaResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/pizzas [get]
func (h *MainHandler) ListPizzas(c echo.Context) error {
	pizzas, err := h.catalog.ListPizzas(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, mapSlice(pizzas, newPizzaResponse))
}

// GetPizza godoc
//
// @Summary Get a base pizza
// @Tags catalog
// @Produce json
// @Param id path int true "Pizza ID"
// @Success 200 {object} PizzaResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/pizzas/{id} [get]
func (h *MainHandler) GetPizza(c echo.Context) error {
	id, err := parseID(c.Param("id"), "invalid pizza id")
	if err != nil {
		return err
	}

	pizza, err := h.catalog.GetPizza(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newPizzaResponse(pizza))
}

// ListToppings godoc
//
// @Summary List the toppings
// @Tags catalog
// @Produce json
// @Success 200 {array} ToppingResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/toppings [get]
func (h *MainHandler) ListToppings(c echo.Context) error {
	toppings, err := h.catalog.ListToppings(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, mapSlice(toppings, newToppingResponse))
}

// CalculatePrice godoc
//
// @Summary Quote the price of a pizza before ordering
// @Tags catalog
// @Accept json
// @Produce json
// @Param request body CalculatePriceRequest true "Selected toppings"
// @Success 200 {object} CalculatePriceResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/toppings/calculate-price [post]
func (h *MainHandler) CalculatePrice(c echo.Context) error {
	var req CalculatePriceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	toppingIDs, err := parseToppingIDs(req.ToppingIDs)
	if err != nil {
		return err
	}

	quote, err := h.manager.QuotePrice(c.Request().Context(), toppingIDs, req.BasePizzaID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newCalculatePriceResponse(quote))
}

// CreateOrder godoc
//
// @Summary Place a new order
// @Tags order
// @Accept json
// @Produce json
// @Param order body CreateOrderRequest true "New order"
// @Success 201 {object} OrderResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/orders [post]
func (h *MainHandler) CreateOrder(c echo.Context) error {
	var req CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if strings.TrimSpace(req.Address) == "" {
		return apperr.Validation("address required")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	toppingIDs, err := parseToppingIDs(req.ToppingIDs)
	if err != nil {
		return err
	}

	created, err := h.manager.CreateOrder(c.Request().Context(), order.CreateRequest{
		Address:     req.Address,
		ToppingIDs:  toppingIDs,
		BasePizzaID: req.BasePizzaID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newOrderResponse(created))
}

// GetOrder godoc
//
// @Summary Get an order
// @Tags order
// @Produce json
// @Param id path int true "Order ID"
// @Success 200 {object} OrderResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/orders/{id} [get]
func (h *MainHandler) GetOrder(c echo.Context) error {
	id, err := parseID(c.Param("id"), "invalid order id")
	if err != nil {
		return err
	}

	o, err := h.manager.GetOrder(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newOrderResponse(o))
}

// ListOrders godoc
//
// @Summary List orders
// @Description Unknown sortBy values fall back to createdAt, unknown sortOrder values to desc.
// @Tags order
// @Produce json
// @Param status query string false "Filter by status" Enums(all, pending, confirmed)
// @Param sortBy query string false "Sort field" Enums(id, createdAt, totalPrice, status)
// @Param sortOrder query string false "Sort direction" Enums(asc, desc)
// @Success 200 {array} OrderResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/orders [get]
func (h *MainHandler) ListOrders(c echo.Context) error {
	var q ListOrdersQuery
	if err := c.Bind(&q); err != nil {
		return apperr.Validation("invalid query")
	}

	query, err := order.NormalizeListQuery(q.Status, q.SortBy, q.SortOrder)
	if err != nil {
		return err
	}

	orders, err := h.manager.ListOrders(c.Request().Context(), query)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, mapSlice(orders, newOrderResponse))
}

// ConfirmOrder godoc
//
// @Summary Confirm a pending order
// @Description Confirming twice is rejected with 400.
// @Tags order
// @Produce json
// @Param id path int true "Order ID"
// @Success 200 {object} ConfirmOrderResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/orders/{id}/confirm [post]
func (h *MainHandler) ConfirmOrder(c echo.Context) error {
	id, err := parseID(c.Param("id"), "invalid order id")
	if err != nil {
		return err
	}

	confirmed, err := h.manager.ConfirmOrder(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ConfirmOrderResponse{
		Message: confirmedMessage,
		Order:   newOrderResponse(confirmed),
	})
}

// GetOrderStats godoc
//
// @Summary Dashboard counters
// @Tags admin
// @Produce json
// @Security BasicAuth
// @Success 200 {object} StatsResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/admin/orders/stats [get]
func (h *MainHandler) GetOrderStats(c echo.Context) error {
	stats, err := h.manager.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newStatsResponse(stats))
}

// GetLiveOrdersSSE godoc
//
// @Summary Stream order events via Server-Sent Events (SSE)
// @Tags admin
// @Produce text/event-stream
// @Security BasicAuth
// @Success 200 {object} OrderEvent
// @Router /api/admin/orders/live [get]
func (h *MainHandler) GetLiveOrdersSSE(c echo.Context) error {
	ctx := c.Request().Context()
	// The access log middleware wraps the writer, the controller unwraps it.
	rc := http.NewResponseController(c.Response().Writer)

	subscriberID := uuid.NewString()
	ch, err := h.orderPubSubber.SubLiveOrders(ctx, subscriberID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to subscribe to live orders", slog.Any("err", err))
		return err
	}
	defer func() {
		if err := h.orderPubSubber.UnsubLiveOrders(context.WithoutCancel(ctx), subscriberID); err != nil {
			slog.ErrorContext(ctx, "failed to unsubscribe from live orders", slog.Any("err", err))
		}
	}()

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	if _, err := c.Response().Write([]byte(": connected\n\n")); err != nil {
		return nil
	}
	if err := rc.Flush(); err != nil {
		slog.ErrorContext(ctx, "streaming unsupported by response writer", slog.Any("err", err))
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "client closed connection")
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := json.Marshal(event)
			if err != nil {
				slog.ErrorContext(ctx, "marshal order event for SSE", slog.Any("err", err))
				continue
			}
			frame := fmt.Sprintf("id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, data)
			if _, err := c.Response().Write([]byte(frame)); err != nil {
				slog.ErrorContext(ctx, "write SSE", slog.Any("err", err))
				return nil
			}
			if err := rc.Flush(); err != nil {
				return nil
			}
		}
	}
}

// GetLiveOrdersWS godoc
//
// @Summary Stream order events over a WebSocket
// @Tags admin
// @Security BasicAuth
// @Success 101 {object} OrderEvent
// @Router /api/admin/orders/ws [get]
func (h *MainHandler) GetLiveOrdersWS(c echo.Context) error {
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// Subscribe before the upgrade so that nothing published after the
	// handshake is missed.
	subscriberID := uuid.NewString()
	ch, err := h.orderPubSubber.SubLiveOrders(ctx, subscriberID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to subscribe to live orders", slog.Any("err", err))
		return err
	}
	defer func() {
		if err := h.orderPubSubber.UnsubLiveOrders(context.WithoutCancel(ctx), subscriberID); err != nil {
			slog.ErrorContext(ctx, "failed to unsubscribe from live orders", slog.Any("err", err))
		}
	}()

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already answered the request.
		slog.WarnContext(ctx, "websocket upgrade failed", slog.Any("err", err))
		return nil
	}
	defer ws.Close()

	// The feed is one way; reading only detects the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteJSON(event); err != nil {
				slog.ErrorContext(ctx, "write websocket", slog.Any("err", err))
				return nil
			}
		}
	}
}

// HealthCheck godoc
//
// @Summary Check the health of the service
// @Tags health
// @Produce json
// @Success 200 {object} healthgo.Check
// @Failure 503 {object} healthgo.Check
// @Router /healthz [get]
func (h *MainHandler) HealthCheck(c echo.Context) error {
	check := h.health.Measure(c.Request().Context())

	statusCode := http.StatusOK
	if check.Status != healthgo.StatusOK {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, check)
}

// handleError writes every error as {"error": msg}. Messages of unexpected
// failures are logged and never shown to the caller.
func (h *MainHandler) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	ctx := c.Request().Context()

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Code >= http.StatusInternalServerError {
			slog.ErrorContext(ctx, "request failed", slog.Any("err", err))
		}
		writeError(c, httpErr.Code, fmt.Sprint(httpErr.Message))
		return
	}

	status := apperr.HTTPStatus(err)
	if !apperr.Public(err) {
		slog.ErrorContext(ctx, "request failed",
			slog.String("path", c.Path()),
			slog.Any("err", err),
		)
		writeError(c, status, "internal server error")
		return
	}
	writeError(c, status, err.Error())
}

// classifyErrors turns caller mistakes into *echo.HTTPError carrying their
// status, so the access log records a 4xx instead of a 500. Anything else is
// left to handleError.
func classifyErrors(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if err == nil || !apperr.Public(err) {
			return err
		}
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return err
		}
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error()).SetInternal(err)
	}
}

func writeError(c echo.Context, status int, msg string) {
	var err error
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, ErrorResponse{Error: msg})
	}
	if err != nil {
		slog.ErrorContext(c.Request().Context(), "failed to write error response", slog.Any("err", err))
	}
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperr.Validation("invalid request body")
	}
	return c.Validate(req)
}

func parseID(raw, msg string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation(msg)
	}
	return id, nil
}
