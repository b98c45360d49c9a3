package otel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// metricExportInterval is how often captured metrics are flushed to the
// stdout exporter.
const metricExportInterval = 15 * time.Second

// Config controls OTEL exporter behaviour. Both exporters write to stdout;
// logdeck has no remote collector to export to.
type Config struct {
	ServiceName   string
	EnableMetrics bool
	EnableTraces  bool
}

// Provider owns OTEL meter/tracer providers and the derived console
// instruments.
type Provider struct {
	cfg            Config
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          metric.Meter
	tracer         trace.Tracer

	instruments  *Instruments
	shutdownOnce sync.Once
}

// Setup initialises the stdout metric and trace exporters enabled by cfg.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.EnableMetrics && !cfg.EnableTraces {
		return &Provider{cfg: cfg}, nil
	}

	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "logdeck"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	p := &Provider{cfg: cfg}

	if cfg.EnableMetrics {
		mp, err := createMeterProvider(ctx, cfg, res)
		if err != nil {
			return nil, err
		}
		p.meterProvider = mp
		otel.SetMeterProvider(mp)
		p.meter = mp.Meter("github.com/flarelane/logdeck")
	}

	if cfg.EnableTraces {
		tp, err := createTracerProvider(ctx, cfg, res)
		if err != nil {
			return nil, err
		}
		p.tracerProvider = tp
		otel.SetTracerProvider(tp)
		p.tracer = tp.Tracer("github.com/flarelane/logdeck")
	}

	p.instruments = newInstruments(p)
	return p, nil
}

func createMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exp, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("init stdout metric exporter: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(metricExportInterval))
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	), nil
}

func createTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("init stdout trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithMaxExportBatchSize(64)),
		sdktrace.WithResource(res),
	)
	return tp, nil
}

// Shutdown flushes and stops the configured providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	p.shutdownOnce.Do(func() {
		var errs []error
		if p.meterProvider != nil {
			if shutdownErr := p.meterProvider.Shutdown(ctx); shutdownErr != nil {
				errs = append(errs, shutdownErr)
			}
		}
		if p.tracerProvider != nil {
			if shutdownErr := p.tracerProvider.Shutdown(ctx); shutdownErr != nil {
				errs = append(errs, shutdownErr)
			}
		}
		if len(errs) > 0 {
			err = errors.Join(errs...)
		}
	})
	return err
}

// Instruments returns the console-domain instruments derived from this
// provider, or nil if the provider was never set up (metrics and traces
// both disabled).
func (p *Provider) Instruments() *Instruments {
	if p == nil {
		return nil
	}
	return p.instruments
}

// EnvBool interprets LOGDECK_* env toggles.
func EnvBool(value string, defaultOn bool) bool {
	value = strings.TrimSpace(strings.ToLower(value))
	switch value {
	case "":
		return defaultOn
	case "1", "true", "on", "enable", "enabled", "yes":
		return true
	case "0", "false", "off", "disable", "disabled", "no":
		return false
	default:
		return defaultOn
	}
}

// LoadConfigFromEnv reads OTEL config from the environment, for hosts that
// prefer toggling telemetry without touching code.
func LoadConfigFromEnv() Config {
	return Config{
		ServiceName:   "logdeck",
		EnableMetrics: EnvBool(os.Getenv("LOGDECK_OTEL_METRICS"), false),
		EnableTraces:  EnvBool(os.Getenv("LOGDECK_OTEL_TRACES"), false),
	}
}
