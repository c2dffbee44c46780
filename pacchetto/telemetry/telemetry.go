package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	slogmulti "github.com/samber/slog-multi"
	"github.com/taldoflemis/pizzeria/pacchetto"
	"github.com/taldoflemis/pizzeria/pacchetto/apperr"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// shutdownStack collects the cleanup functions of the providers started so far.
type shutdownStack []func(context.Context) error

func (s *shutdownStack) push(fn func(context.Context) error) {
	*s = append(*s, fn)
}

// run calls the registered functions in reverse order, at most once each, and
// joins their errors.
func (s *shutdownStack) run(ctx context.Context) error {
	var err error
	for i := len(*s) - 1; i >= 0; i-- {
		err = errors.Join(err, (*s)[i](ctx))
	}
	*s = nil
	return err
}

func seconds(n int64) time.Duration {
	return time.Duration(n) * time.Second
}

// SetupOTelSDK installs the global propagator and the trace, log and meter
// providers, and replaces the default slog logger. Exporters are only created
// when cfg.Enabled is set; otherwise logs go to stdout and spans and metrics
// stay in process.
// The returned shutdown must be called on exit.
func SetupOTelSDK(
	ctx context.Context,
	app pacchetto.AppSettings,
	cfg pacchetto.OpenTelemetrySettings,
) (func(context.Context) error, error) {
	var stack shutdownStack
	fail := func(err error) (func(context.Context) error, error) {
		return nil, errors.Join(err, stack.run(ctx))
	}

	res, err := newResource(ctx, app)
	if err != nil {
		return nil, err
	}

	otel.SetTextMapPropagator(newPropagator())

	tracerProvider, err := newTraceProvider(ctx, cfg, res)
	if err != nil {
		return fail(err)
	}
	stack.push(tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	loggerProvider, err := newLoggerProvider(ctx, cfg, res)
	if err != nil {
		return fail(err)
	}
	stack.push(loggerProvider.Shutdown)
	global.SetLoggerProvider(loggerProvider)

	var otelLogs *log.LoggerProvider
	if cfg.Enabled {
		otelLogs = loggerProvider
	}
	logger := slog.New(newLogHandler(os.Stdout, app, otelLogs))
	slog.SetDefault(logger)

	meterProvider, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		return fail(err)
	}
	stack.push(meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	if err := otelruntime.Start(otelruntime.WithMeterProvider(meterProvider)); err != nil {
		return fail(err)
	}

	logger.InfoContext(ctx, "telemetry initialized", slog.Bool("export", cfg.Enabled))
	return stack.run, nil
}

func newResource(ctx context.Context, app pacchetto.AppSettings) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(app.Name),
			semconv.ServiceVersionKey.String(app.Version),
			semconv.ServiceNamespaceKey.String("pizzeria"),
			semconv.DeploymentEnvironmentKey.String(app.Env),
		),
	)
}

//nolint:ireturn
func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

func newTraceProvider(
	ctx context.Context,
	cfg pacchetto.OpenTelemetrySettings,
	res *resource.Resource,
) (*trace.TracerProvider, error) {
	if !cfg.Enabled {
		return trace.NewTracerProvider(trace.WithResource(res)), nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	return trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(float64(cfg.Traces.SampleRate)))),
		trace.WithBatcher(exporter,
			trace.WithBatchTimeout(seconds(cfg.Traces.TimeoutInSec)),
			trace.WithMaxQueueSize(cfg.Traces.MaxQueueSize),
			trace.WithMaxExportBatchSize(cfg.Traces.BatchSize),
		),
	), nil
}

func newLoggerProvider(
	ctx context.Context,
	cfg pacchetto.OpenTelemetrySettings,
	res *resource.Resource,
) (*log.LoggerProvider, error) {
	if !cfg.Enabled {
		return log.NewLoggerProvider(log.WithResource(res)), nil
	}

	exporter, err := otlploggrpc.New(ctx,
		otlploggrpc.WithEndpoint(cfg.Endpoint),
		otlploggrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	return log.NewLoggerProvider(
		log.WithResource(res),
		log.WithProcessor(log.NewBatchProcessor(exporter,
			log.WithMaxQueueSize(cfg.Logs.MaxQueueSize),
			log.WithExportMaxBatchSize(cfg.Logs.BatchSize),
			log.WithExportTimeout(seconds(cfg.Logs.TimeoutInSec)),
			log.WithExportInterval(seconds(cfg.Logs.IntervalInSec)),
		)),
	), nil
}

// newLogHandler writes JSON records to w and, when otelLogs is not nil, fans
// them out to the OpenTelemetry log bridge as well. Error attributes are
// expanded by errorFormattingMiddleware in both cases.
func newLogHandler(w io.Writer, app pacchetto.AppSettings, otelLogs *log.LoggerProvider) slog.Handler {
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{AddSource: true})
	if otelLogs != nil {
		handler = slogmulti.Fanout(handler, otelslog.NewHandler(app.Name,
			otelslog.WithLoggerProvider(otelLogs),
			otelslog.WithVersion(app.Version),
			otelslog.WithSource(true),
		))
	}
	return slogmulti.Pipe(slogmulti.NewHandleInlineMiddleware(errorFormattingMiddleware)).Handler(handler)
}

func newMeterProvider(
	ctx context.Context,
	cfg pacchetto.OpenTelemetrySettings,
	res *resource.Resource,
) (*metric.MeterProvider, error) {
	if !cfg.Enabled {
		return metric.NewMeterProvider(metric.WithResource(res)), nil
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exporter,
			metric.WithInterval(seconds(cfg.Metrics.IntervalInSec)),
			metric.WithTimeout(seconds(cfg.Metrics.TimeoutInSec)),
		)),
	), nil
}

// errorFormattingMiddleware expands error attributes into a group carrying
// the error kind and message, so log backends can filter on err.kind.
func errorFormattingMiddleware(
	ctx context.Context,
	record slog.Record,
	next func(context.Context, slog.Record) error,
) error {
	attrs := make([]slog.Attr, 0, record.NumAttrs())
	record.Attrs(func(attr slog.Attr) bool {
		attrs = append(attrs, formatErrorAttr(attr))
		return true
	})

	formatted := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	formatted.AddAttrs(attrs...)

	return next(ctx, formatted)
}

func formatErrorAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindAny {
		return attr
	}
	err, ok := attr.Value.Any().(error)
	if !ok || err == nil {
		return attr
	}
	return slog.Group(attr.Key,
		slog.String("kind", apperr.Kind(err)),
		slog.String("msg", err.Error()),
	)
}
