package main

import (
	_ "embed"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/taldoflemis/pizzeria/cassa/order"
	"github.com/taldoflemis/pizzeria/pacchetto"
)

//go:embed base.yaml
var baseConfig []byte

const envPrefix = "CASSA"

type StorageSettings struct {
	Driver   string                     `mapstructure:"driver" validate:"required,oneof=memory postgres"`
	Postgres pacchetto.PostgresSettings `mapstructure:"postgres"`
}

type EventsSettings struct {
	Driver  string `mapstructure:"driver" validate:"required,oneof=gochannel nats"`
	Subject string `mapstructure:"subject" validate:"required"`
	Stream  string `mapstructure:"stream" validate:"required,alphanum"`
	// Per subscriber buffer of the live feed. Events beyond it are dropped
	// for that subscriber.
	Buffer int `mapstructure:"buffer" validate:"min=1"`
}

// OrderSettings carries money as strings so that yaml floats never touch it.
type OrderSettings struct {
	DeliveryFee      string `mapstructure:"delivery-fee" validate:"required,numeric"`
	DefaultBasePrice string `mapstructure:"default-base-price" validate:"required,numeric"`
	DefaultPizzaID   int64  `mapstructure:"default-pizza-id" validate:"gte=0"`
}

type AdminSettings struct {
	Username     string `mapstructure:"username" validate:"required"`
	PasswordHash string `mapstructure:"password-hash" validate:"required"`
}

type Settings struct {
	App           pacchetto.AppSettings           `mapstructure:"app" validate:"required"`
	HTTP          pacchetto.HTTPSettings          `mapstructure:"http" validate:"required"`
	OpenTelemetry pacchetto.OpenTelemetrySettings `mapstructure:"opentelemetry" validate:"required"`
	Nats          pacchetto.NatsSettings          `mapstructure:"nats" validate:"required"`
	GRPCServer    pacchetto.GRPCServerSettings    `mapstructure:"grpc-server" validate:"required"`
	Storage       StorageSettings                 `mapstructure:"storage" validate:"required"`
	Events        EventsSettings                  `mapstructure:"events" validate:"required"`
	Orders        OrderSettings                   `mapstructure:"orders" validate:"required"`
	Admin         AdminSettings                   `mapstructure:"admin" validate:"required"`
}

func LoadConfig() (*Settings, error) {
	return pacchetto.LoadConfig[Settings](envPrefix, baseConfig)
}

func (o OrderSettings) ManagerConfig() (order.Config, error) {
	fee, err := parseMoney(o.DeliveryFee)
	if err != nil {
		return order.Config{}, errors.Wrap(err, "orders.delivery-fee")
	}
	return order.Config{
		DeliveryFee:    fee,
		DefaultPizzaID: o.DefaultPizzaID,
	}, nil
}

func (o OrderSettings) BasePrice() (decimal.Decimal, error) {
	price, err := parseMoney(o.DefaultBasePrice)
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "orders.default-base-price")
	}
	return price, nil
}

func parseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if d.IsNegative() {
		return decimal.Decimal{}, errors.Newf("negative amount %s", s)
	}
	return d, nil
}
