package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	healthgo "github.com/hellofresh/health-go/v5"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taldoflemis/pizzeria/cassa/auth"
	"github.com/taldoflemis/pizzeria/cassa/catalog"
	"github.com/taldoflemis/pizzeria/cassa/order"
	"github.com/taldoflemis/pizzeria/cassa/pricing"
	"github.com/taldoflemis/pizzeria/cassa/storage/memory"
	"github.com/taldoflemis/pizzeria/pacchetto"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminUser     = "admin"
	adminPassword = "s3cret"
)

func testSettings() *Settings {
	return &Settings{
		App: pacchetto.AppSettings{Name: "cassa", Version: "test"},
		HTTP: pacchetto.HTTPSettings{
			Prefix: "/api",
			CORS: pacchetto.CORSSettings{
				Origins: []string{"http://localhost:3000"},
				Methods: []string{"GET", "POST"},
				Headers: []string{"Accept", "Content-Type", "Authorization"},
			},
		},
	}
}

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()

	store := memory.NewStore(
		[]catalog.Pizza{
			{ID: 1, Name: "Margherita", BasePrice: decimal.RequireFromString("8.00"), BaseToppingIDs: []int64{1}},
		},
		[]catalog.Topping{
			{ID: 1, Name: "Cheese", Price: decimal.RequireFromString("1.50")},
			{ID: 2, Name: "Pepperoni", Price: decimal.RequireFromString("2.00")},
			{ID: 3, Name: "Mushrooms", Price: decimal.RequireFromString("1.00")},
		},
	)

	pubSubber := NewGoChannelOrderPubSubber(8)
	manager, err := order.NewManager(
		store,
		pricing.NewEngine(store, pricing.DefaultBasePrice),
		pubSubber,
		order.Config{DeliveryFee: order.DefaultDeliveryFee},
	)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	authenticator, err := auth.NewBcryptAuthenticator(adminUser, string(hash))
	require.NoError(t, err)

	health, err := healthgo.New(
		healthgo.WithComponent(healthgo.Component{Name: "cassa", Version: "test"}),
		healthgo.WithChecks(healthgo.Config{Name: "memory", Check: store.Ping}),
	)
	require.NoError(t, err)

	e := echo.New()
	NewMainHandler(e, testSettings(), manager, store, pubSubber, authenticator, health)
	return e
}

type requestOption func(*http.Request)

func withBasicAuth(user, password string) requestOption {
	return func(r *http.Request) { r.SetBasicAuth(user, password) }
}

func doRequest(e *echo.Echo, method, path, body string, opts ...requestOption) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createOrder(t *testing.T, e *echo.Echo, body string) OrderResponse {
	t.Helper()
	rec := doRequest(e, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[OrderResponse](t, rec)
}

func TestCatalogEndpoints(t *testing.T) {
	e := newTestServer(t)

	t.Run("list pizzas", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/api/pizzas", "")

		require.Equal(t, http.StatusOK, rec.Code)
		pizzas := decode[[]PizzaResponse](t, rec)
		require.Len(t, pizzas, 1)
		assert.Equal(t, "Margherita", pizzas[0].Name)
		assert.Equal(t, "8.00", pizzas[0].BasePrice)
		assert.Equal(t, []int64{1}, pizzas[0].BaseToppings)
	})

	t.Run("list toppings sorted by name", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/api/toppings", "")

		require.Equal(t, http.StatusOK, rec.Code)
		toppings := decode[[]ToppingResponse](t, rec)
		require.Len(t, toppings, 3)
		assert.Equal(t, "Cheese", toppings[0].Name)
		assert.Equal(t, "1.50", toppings[0].Price)
		assert.Equal(t, "Mushrooms", toppings[1].Name)
		assert.Equal(t, "Pepperoni", toppings[2].Name)
	})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantError  string
	}{
		{name: "existing pizza", path: "/api/pizzas/1", wantStatus: http.StatusOK},
		{name: "unknown pizza", path: "/api/pizzas/99", wantStatus: http.StatusNotFound, wantError: "pizza 99 not found"},
		{name: "non numeric id", path: "/api/pizzas/abc", wantStatus: http.StatusBadRequest, wantError: "invalid pizza id"},
		{name: "zero id", path: "/api/pizzas/0", wantStatus: http.StatusBadRequest, wantError: "invalid pizza id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(e, http.MethodGet, tt.path, "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decode[ErrorResponse](t, rec).Error)
			}
		})
	}
}

func TestCalculatePrice(t *testing.T) {
	e := newTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		want       CalculatePriceResponse
		wantError  string
	}{
		{
			name:       "base toppings are not charged",
			body:       `{"toppingIds":[1,2],"basePizzaId":1}`,
			wantStatus: http.StatusOK,
			want:       CalculatePriceResponse{BasePrice: "8.00", ToppingsPrice: "2.00", TotalPrice: "10.00"},
		},
		{
			name:       "no toppings",
			body:       `{"toppingIds":[]}`,
			wantStatus: http.StatusOK,
			want:       CalculatePriceResponse{BasePrice: "8.00", ToppingsPrice: "0.00", TotalPrice: "8.00"},
		},
		{
			name:       "duplicates and unknown ids",
			body:       `{"toppingIds":[2,3,3,42]}`,
			wantStatus: http.StatusOK,
			want:       CalculatePriceResponse{BasePrice: "8.00", ToppingsPrice: "3.00", TotalPrice: "11.00"},
		},
		{name: "fractional id", body: `{"toppingIds":[1.5]}`, wantStatus: http.StatusBadRequest, wantError: "invalid topping id"},
		{name: "string id", body: `{"toppingIds":["1"]}`, wantStatus: http.StatusBadRequest, wantError: "invalid topping id"},
		{name: "zero id", body: `{"toppingIds":[0]}`, wantStatus: http.StatusBadRequest, wantError: "invalid topping id"},
		{name: "not a list", body: `{"toppingIds":1}`, wantStatus: http.StatusBadRequest, wantError: "invalid topping id"},
		{name: "missing list", body: `{}`, wantStatus: http.StatusBadRequest, wantError: "invalid topping id"},
		{name: "bad pizza id", body: `{"toppingIds":[],"basePizzaId":0}`, wantStatus: http.StatusBadRequest, wantError: "invalid pizza id"},
		{name: "unknown pizza", body: `{"toppingIds":[],"basePizzaId":7}`, wantStatus: http.StatusNotFound, wantError: "pizza 7 not found"},
		{name: "malformed body", body: `{"toppingIds":`, wantStatus: http.StatusBadRequest, wantError: "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			rec := doRequest(e, http.MethodPost, "/api/toppings/calculate-price", tt.body)

			// Assert
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decode[ErrorResponse](t, rec).Error)
				return
			}
			assert.Equal(t, tt.want, decode[CalculatePriceResponse](t, rec))
		})
	}
}

func TestCreateOrder(t *testing.T) {
	e := newTestServer(t)

	// Act
	created := createOrder(t, e, `{"toppingIds":[1,2],"address":"  Via Roma 1 ","basePizzaId":1}`)

	// Assert
	assert.Positive(t, created.ID)
	assert.Equal(t, "Via Roma 1", created.Address)
	assert.Equal(t, []int64{1, 2}, created.Toppings)
	require.NotNil(t, created.BasePizzaID)
	assert.Equal(t, int64(1), *created.BasePizzaID)
	assert.Equal(t, "10.00", created.PizzaPrice)
	assert.Equal(t, "5.00", created.DeliveryFee)
	assert.Equal(t, "15.00", created.TotalPrice)
	assert.Equal(t, "pending", created.Status)

	plain := createOrder(t, e, `{"toppingIds":[],"address":"Via Milano 2"}`)
	assert.Nil(t, plain.BasePizzaID)
	assert.Equal(t, []int64{}, plain.Toppings)
	assert.Equal(t, "8.00", plain.PizzaPrice)
	assert.Equal(t, "13.00", plain.TotalPrice)
}

func TestCreateOrderRejectsInvalidInput(t *testing.T) {
	e := newTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{name: "blank address", body: `{"toppingIds":[1],"address":"   "}`, wantStatus: http.StatusBadRequest, wantError: "address required"},
		{name: "missing address", body: `{"toppingIds":[1]}`, wantStatus: http.StatusBadRequest, wantError: "address required"},
		{name: "blank address checked before topping ids", body: `{"toppingIds":["x"],"address":""}`, wantStatus: http.StatusBadRequest, wantError: "address required"},
		{name: "blank address checked before pizza id", body: `{"toppingIds":[],"address":" ","basePizzaId":-1}`, wantStatus: http.StatusBadRequest, wantError: "address required"},
		{name: "negative topping", body: `{"toppingIds":[1,-2],"address":"Via Roma 1"}`, wantStatus: http.StatusBadRequest, wantError: "invalid topping id"},
		{name: "bad pizza id", body: `{"toppingIds":[],"address":"Via Roma 1","basePizzaId":-1}`, wantStatus: http.StatusBadRequest, wantError: "invalid pizza id"},
		{name: "unknown pizza", body: `{"toppingIds":[],"address":"Via Roma 1","basePizzaId":5}`, wantStatus: http.StatusNotFound, wantError: "pizza 5 not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(e, http.MethodPost, "/api/orders", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decode[ErrorResponse](t, rec).Error)
		})
	}

	rec := doRequest(e, http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]OrderResponse](t, rec), "rejected orders must not be persisted")
}

func TestAccessLogRecordsClientErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	e := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{name: "validation", method: http.MethodPost, path: "/api/orders", body: `{"address":"Via Roma 1","toppingIds":[1e2]}`, wantStatus: http.StatusBadRequest},
		{name: "not found", method: http.MethodGet, path: "/api/orders/99", wantStatus: http.StatusNotFound},
		{name: "bad id", method: http.MethodGet, path: "/api/pizzas/abc", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()

			rec := doRequest(e, tt.method, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			var entry struct {
				Level    string `json:"level"`
				Response struct {
					Status int `json:"status"`
				} `json:"response"`
			}
			var found bool
			for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
				if err := json.Unmarshal(line, &entry); err == nil && entry.Response.Status != 0 {
					found = true
					break
				}
			}
			require.True(t, found, buf.String())
			assert.Equal(t, tt.wantStatus, entry.Response.Status)
			assert.NotEqual(t, "ERROR", entry.Level)
		})
	}
}

func TestGetAndConfirmOrder(t *testing.T) {
	e := newTestServer(t)
	created := createOrder(t, e, `{"toppingIds":[2],"address":"Via Roma 1"}`)
	path := "/api/orders/" + itoa(created.ID)

	rec := doRequest(e, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created, decode[OrderResponse](t, rec))

	// First confirmation succeeds.
	rec = doRequest(e, http.MethodPost, path+"/confirm", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	confirmed := decode[ConfirmOrderResponse](t, rec)
	assert.Equal(t, "Order confirmed successfully!", confirmed.Message)
	assert.Equal(t, "confirmed", confirmed.Order.Status)
	assert.Equal(t, created.TotalPrice, confirmed.Order.TotalPrice)

	// Second one is a caller error and leaves the order alone.
	rec = doRequest(e, http.MethodPost, path+"/confirm", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "order already confirmed", decode[ErrorResponse](t, rec).Error)

	rec = doRequest(e, http.MethodGet, path, "")
	assert.Equal(t, confirmed.Order, decode[OrderResponse](t, rec))

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantError  string
	}{
		{name: "get unknown", method: http.MethodGet, path: "/api/orders/404", wantStatus: http.StatusNotFound, wantError: "order 404 not found"},
		{name: "get bad id", method: http.MethodGet, path: "/api/orders/x", wantStatus: http.StatusBadRequest, wantError: "invalid order id"},
		{name: "confirm unknown", method: http.MethodPost, path: "/api/orders/404/confirm", wantStatus: http.StatusNotFound, wantError: "order 404 not found"},
		{name: "confirm bad id", method: http.MethodPost, path: "/api/orders/-3/confirm", wantStatus: http.StatusBadRequest, wantError: "invalid order id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(e, tt.method, tt.path, "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestListOrders(t *testing.T) {
	// Arrange
	e := newTestServer(t)
	cheap := createOrder(t, e, `{"toppingIds":[],"address":"Via Roma 1"}`)     // 13.00
	middle := createOrder(t, e, `{"toppingIds":[2],"address":"Via Roma 2"}`)   // 15.00
	pricey := createOrder(t, e, `{"toppingIds":[2,3],"address":"Via Roma 3"}`) // 16.00
	for _, o := range []OrderResponse{pricey, cheap} {
		rec := doRequest(e, http.MethodPost, "/api/orders/"+itoa(o.ID)+"/confirm", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	tests := []struct {
		name    string
		query   string
		wantIDs []int64
	}{
		{name: "confirmed by ascending total", query: "?status=confirmed&sortBy=totalPrice&sortOrder=asc", wantIDs: []int64{cheap.ID, pricey.ID}},
		{name: "pending only", query: "?status=pending", wantIDs: []int64{middle.ID}},
		{name: "all by descending id", query: "?status=all&sortBy=id&sortOrder=desc", wantIDs: []int64{pricey.ID, middle.ID, cheap.ID}},
		{name: "unknown sort falls back", query: "?sortBy=address&sortOrder=sideways", wantIDs: []int64{pricey.ID, middle.ID, cheap.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			rec := doRequest(e, http.MethodGet, "/api/orders"+tt.query, "")

			// Assert
			require.Equal(t, http.StatusOK, rec.Code)
			orders := decode[[]OrderResponse](t, rec)
			ids := make([]int64, 0, len(orders))
			for _, o := range orders {
				ids = append(ids, o.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}

	rec := doRequest(e, http.MethodGet, "/api/orders?status=delivered", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminStats(t *testing.T) {
	e := newTestServer(t)
	first := createOrder(t, e, `{"toppingIds":[2],"address":"Via Roma 1"}`) // 15.00
	createOrder(t, e, `{"toppingIds":[],"address":"Via Roma 2"}`)           // 13.00
	rec := doRequest(e, http.MethodPost, "/api/orders/"+itoa(first.ID)+"/confirm", "")
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("requires credentials", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/api/admin/orders/stats", "")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderWWWAuthenticate))
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/api/admin/orders/stats", "", withBasicAuth(adminUser, "nope"))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("returns counters", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/api/admin/orders/stats", "", withBasicAuth(adminUser, adminPassword))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, StatsResponse{Total: 2, Pending: 1, Confirmed: 1, Revenue: "15.00"}, decode[StatsResponse](t, rec))
	})
}

func TestHealthCheckAndUnknownRoute(t *testing.T) {
	e := newTestServer(t)

	rec := doRequest(e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(e, http.MethodGet, "/api/menu", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
}

func TestLiveOrdersSSE(t *testing.T) {
	// Arrange
	srv := httptest.NewServer(newTestServer(t))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/admin/orders/live", nil)
	require.NoError(t, err)
	req.SetBasicAuth(adminUser, adminPassword)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get(echo.HeaderContentType))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	// Act
	orderResp, err := srv.Client().Post(srv.URL+"/api/orders", echo.MIMEApplicationJSON,
		strings.NewReader(`{"toppingIds":[2],"address":"Via Roma 1"}`))
	require.NoError(t, err)
	orderResp.Body.Close()
	require.Equal(t, http.StatusCreated, orderResp.StatusCode)

	// Assert
	var eventName, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	assert.Equal(t, EventOrderCreated, eventName)

	var event OrderEvent
	require.NoError(t, json.Unmarshal([]byte(data), &event))
	assert.Equal(t, EventOrderCreated, event.Type)
	assert.Equal(t, "15.00", event.Order.TotalPrice)
	assert.NotEmpty(t, event.ID)
}

func TestLiveOrdersWebSocket(t *testing.T) {
	// Arrange
	srv := httptest.NewServer(newTestServer(t))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/admin/orders/ws"
	header := http.Header{}
	header.Set("Origin", "http://localhost:3000")
	authReq, err := http.NewRequest(http.MethodGet, wsURL, nil)
	require.NoError(t, err)
	authReq.SetBasicAuth(adminUser, adminPassword)
	header.Set("Authorization", authReq.Header.Get("Authorization"))

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	// Act
	created, err := srv.Client().Post(srv.URL+"/api/orders", echo.MIMEApplicationJSON,
		strings.NewReader(`{"toppingIds":[1,2],"address":"Via Roma 1","basePizzaId":1}`))
	require.NoError(t, err)
	var placed OrderResponse
	require.NoError(t, json.NewDecoder(created.Body).Decode(&placed))
	created.Body.Close()

	confirmed, err := srv.Client().Post(srv.URL+"/api/orders/"+itoa(placed.ID)+"/confirm", echo.MIMEApplicationJSON, nil)
	require.NoError(t, err)
	confirmed.Body.Close()

	// Assert
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var first, second OrderEvent
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))

	assert.Equal(t, EventOrderCreated, first.Type)
	assert.Equal(t, EventOrderConfirmed, second.Type)
	assert.Equal(t, placed.ID, second.Order.ID)
	assert.Equal(t, "confirmed", second.Order.Status)
}

func TestLiveOrdersWebSocketRejectsForeignOrigin(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/admin/orders/ws"
	authReq, err := http.NewRequest(http.MethodGet, wsURL, nil)
	require.NoError(t, err)
	authReq.SetBasicAuth(adminUser, adminPassword)

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	header.Set("Authorization", authReq.Header.Get("Authorization"))

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
