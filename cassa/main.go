package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "net/http/pprof"

	healthgo "github.com/hellofresh/health-go/v5"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"
	echoSwagger "github.com/swaggo/echo-swagger"
	"github.com/taldoflemis/pizzeria/cassa/auth"
	"github.com/taldoflemis/pizzeria/cassa/catalog"
	_ "github.com/taldoflemis/pizzeria/cassa/docs"
	"github.com/taldoflemis/pizzeria/cassa/order"
	"github.com/taldoflemis/pizzeria/cassa/pricing"
	"github.com/taldoflemis/pizzeria/cassa/storage/memory"
	"github.com/taldoflemis/pizzeria/cassa/storage/postgres"
	"github.com/taldoflemis/pizzeria/pacchetto"
	"github.com/taldoflemis/pizzeria/pacchetto/telemetry"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 10 * time.Second

// store is what both storage drivers provide.
type store interface {
	catalog.Store
	order.Repository
	Ping(ctx context.Context) error
}

// @title						Cassa
// @version						1.0
// @description					Pizza ordering: catalog, pricing and the order lifecycle.
// @host						localhost:8080
// @BasePath					/
// @securityDefinitions.basic	BasicAuth
func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()
	retcode := 0
	defer func() {
		os.Exit(retcode)
	}()

	slog.InfoContext(ctx, "Launching cassa")

	slog.InfoContext(ctx, "Loading config")
	settings, err := LoadConfig()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", slog.Any("err", err))
		retcode = 1
		return
	}

	slog.InfoContext(ctx, "Setting up opentelemetry")
	otelShutdown, err := telemetry.SetupOTelSDK(ctx, settings.App, settings.OpenTelemetry)
	if err != nil {
		slog.Error("failed to setup telemetry", slog.Any("err", err))
		retcode = 1
		return
	}

	defer func() {
		err = errors.Join(err, otelShutdown(context.Background()))
		if err != nil {
			slog.ErrorContext(
				ctx,
				"failed to shutdown opentelemetry providers",
				slog.Any("err", err),
			)
			retcode = 1
		}
	}()

	healthChecks := []healthgo.Config{}

	slog.InfoContext(ctx, "Opening storage", slog.String("driver", settings.Storage.Driver))
	db, closeStore, err := openStore(ctx, settings.Storage)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open storage", slog.Any("err", err))
		retcode = 1
		return
	}
	defer closeStore()
	healthChecks = append(healthChecks, healthgo.Config{
		Name:    settings.Storage.Driver,
		Timeout: 2 * time.Second,
		Check:   db.Ping,
	})

	slog.InfoContext(ctx, "Setting up order events", slog.String("driver", settings.Events.Driver))
	var orderPubSubber OrderPubSubber
	switch settings.Events.Driver {
	case "nats":
		var nc *nats.Conn
		nc, err = settings.Nats.GetNatsClient()
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to NATS server", slog.Any("err", err))
			retcode = 1
			return
		}
		defer nc.Drain()

		orderPubSubber, err = NewNATSOrderPubSubber(ctx, nc, settings.Events.Subject, settings.Events.Stream, settings.Events.Buffer)
		if err != nil {
			slog.ErrorContext(ctx, "failed to create order pub/subber", slog.Any("err", err))
			retcode = 1
			return
		}

		healthChecks = append(healthChecks, healthgo.Config{
			Name: "nats",
			Check: func(ctx context.Context) error {
				if !nc.IsConnected() {
					return errors.New("NATS connection is not active")
				}
				return nil
			},
		})
	default:
		orderPubSubber = NewGoChannelOrderPubSubber(settings.Events.Buffer)
	}

	basePrice, err := settings.Orders.BasePrice()
	if err != nil {
		slog.ErrorContext(ctx, "invalid order settings", slog.Any("err", err))
		retcode = 1
		return
	}
	managerCfg, err := settings.Orders.ManagerConfig()
	if err != nil {
		slog.ErrorContext(ctx, "invalid order settings", slog.Any("err", err))
		retcode = 1
		return
	}

	engine := pricing.NewEngine(db, basePrice)
	manager, err := order.NewManager(db, engine, orderPubSubber, managerCfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create order manager", slog.Any("err", err))
		retcode = 1
		return
	}

	authenticator, err := auth.NewBcryptAuthenticator(settings.Admin.Username, settings.Admin.PasswordHash)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create admin authenticator", slog.Any("err", err))
		retcode = 1
		return
	}

	slog.InfoContext(ctx, "Setting up health checker")
	healthChecker, err := healthgo.New(
		healthgo.WithComponent(healthgo.Component{
			Name:    settings.App.Name,
			Version: settings.App.Version,
		}),
		healthgo.WithChecks(healthChecks...),
	)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create health checker", slog.Any("err", err))
		retcode = 1
		return
	}

	errChan := make(chan error, 2)
	server := echo.New()
	server.HideBanner = true

	NewMainHandler(server, settings, manager, db, orderPubSubber, authenticator, healthChecker)
	server.GET("/swagger/*", echoSwagger.WrapHandler)
	pprof.Register(server)

	go func() {
		slog.InfoContext(ctx, "listening for requests", slog.String("ip", settings.HTTP.IP), slog.String("port", settings.HTTP.Port))
		errChan <- server.Start(fmt.Sprintf("%s:%s", settings.HTTP.IP, settings.HTTP.Port))
	}()

	if settings.GRPCServer.Enabled {
		grpcServer, healthcheck := pacchetto.CreateGRPCServer(settings.GRPCServer)

		lis, err := net.Listen("tcp", net.JoinHostPort(settings.GRPCServer.Host, strconv.Itoa(settings.GRPCServer.Port)))
		if err != nil {
			slog.ErrorContext(ctx, "failed to listen", slog.Any("err", err))
			retcode = 1
			return
		}

		interval := time.Duration(settings.GRPCServer.AsyncHealthIntervalInSeconds) * time.Second
		go watchHealth(ctx, healthChecker, healthcheck, settings.App.Name, interval)

		go func() {
			slog.InfoContext(ctx, "Starting gRPC server", slog.Any("addr", lis.Addr()))
			errChan <- grpcServer.Serve(lis)
		}()
		defer func() {
			slog.InfoContext(ctx, "Shutting down gRPC server")
			grpcServer.GracefulStop()
		}()
	}

	select {
	case err = <-errChan:
		slog.ErrorContext(ctx, "error when running server", slog.Any("err", err))
		retcode = 1
		return
	case <-ctx.Done():
		// Wait for first Signal arrives
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = server.Shutdown(shutdownCtx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to shutdown gracefully the server", slog.Any("err", err))
	}
}

func openStore(ctx context.Context, cfg StorageSettings) (store, func(), error) {
	if cfg.Driver != "postgres" {
		return memory.NewStore(nil, nil), func() {}, nil
	}

	db, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Postgres.Migrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return db, db.Close, nil
}

// watchHealth mirrors the health-go checks into the gRPC health service
// until ctx is done.
func watchHealth(
	ctx context.Context,
	checker *healthgo.Health,
	healthcheck *health.Server,
	service string,
	interval time.Duration,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status := healthpb.HealthCheckResponse_SERVING
		if check := checker.Measure(ctx); check.Status != healthgo.StatusOK {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		healthcheck.SetServingStatus("", status)
		healthcheck.SetServingStatus(service, status)

		select {
		case <-ctx.Done():
			healthcheck.Shutdown()
			return
		case <-ticker.C:
		}
	}
}
