package pacchetto

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// CreateGRPCServer returns an instrumented server with the standard health
// service registered. The caller owns the returned health server and toggles
// its serving status.
func CreateGRPCServer(cfg GRPCServerSettings) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)

	healthcheck := health.NewServer()
	healthgrpc.RegisterHealthServer(srv, healthcheck)

	if cfg.EnableReflection {
		reflection.Register(srv)
	}

	return srv, healthcheck
}
