package rpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

// OTelConfig configures OpenTelemetry exporters
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	EnableTracing bool
	UseOTLPTraces bool
	OTLPTracesURL string

	EnableMetrics  bool
	UsePrometheus  bool // prometheus reader on the default registry, served at /server/metrics
	UseOTLPMetrics bool
	OTLPMetricsURL string

	EnableLogs  bool
	UseOTLPLogs bool
	OTLPLogsURL string

	// InsecureOTLP sends telemetry over plain http. Local development only.
	InsecureOTLP bool

	// client TLS towards the collector, unrelated to the RPC server certificate
	OTLPClientCertFile string
	OTLPClientKeyFile  string
	OTLPCACertFile     string

	// DevelopmentMode replaces OTLP with stdout exporters
	DevelopmentMode bool
}

// DefaultOTelConfig traces over OTLP and exposes metrics to prometheus
func DefaultOTelConfig() *OTelConfig {
	return &OTelConfig{
		ServiceName:    "spectra-wallet",
		ServiceVersion: "1.0.0",
		Environment:    "production",
		EnableTracing:  true,
		UseOTLPTraces:  true,
		OTLPTracesURL:  "localhost:4318",
		EnableMetrics:  true,
		UsePrometheus:  true,
		OTLPMetricsURL: "localhost:4318",
		OTLPLogsURL:    "localhost:4318",
	}
}

// NewOTelSDK installs the global tracer, meter and logger providers. The returned shutdown
// flushes and stops every provider that was installed.
func NewOTelSDK(ctx context.Context, config *OTelConfig) (shutdown func(context.Context) error, err error) {
	if config == nil {
		config = DefaultOTelConfig()
	}

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, shutdown(ctx))
		}
	}()

	res, err := newResource(config)
	if err != nil {
		return shutdown, fmt.Errorf("failed to create resource: %w", err)
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if config.EnableTracing {
		tp, err := newTracerProvider(ctx, res, config)
		if err != nil {
			return shutdown, err
		}
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
		otel.SetTracerProvider(tp)
	}

	if config.EnableMetrics {
		mp, err := newMeterProvider(ctx, res, config)
		if err != nil {
			return shutdown, err
		}
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
		otel.SetMeterProvider(mp)
	}

	if config.EnableLogs {
		lp, err := newLoggerProvider(ctx, res, config)
		if err != nil {
			return shutdown, err
		}
		shutdownFuncs = append(shutdownFuncs, lp.Shutdown)
		global.SetLoggerProvider(lp)
	}

	return shutdown, nil
}

func newResource(config *OTelConfig) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironmentName(config.Environment),
		),
	)
}

// clientTLS is the TLS config towards the collector, nil when InsecureOTLP is set
func clientTLS(config *OTelConfig) (*tls.Config, error) {
	if config.InsecureOTLP {
		return nil, nil
	}
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if config.OTLPCACertFile != "" {
		caCert, err := os.ReadFile(config.OTLPCACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	if config.OTLPClientCertFile != "" && config.OTLPClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(config.OTLPClientCertFile, config.OTLPClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

func newTracerProvider(ctx context.Context, res *resource.Resource, config *OTelConfig) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	var err error

	switch {
	case config.DevelopmentMode:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case config.UseOTLPTraces:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.OTLPTracesURL)}
		if config.InsecureOTLP {
			opts = append(opts, otlptracehttp.WithInsecure())
		} else {
			tlsConfig, tlsErr := clientTLS(config)
			if tlsErr != nil {
				return nil, fmt.Errorf("failed to build TLS config for traces: %w", tlsErr)
			}
			opts = append(opts, otlptracehttp.WithTLSClientConfig(tlsConfig))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default:
		return sdktrace.NewTracerProvider(sdktrace.WithResource(res)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	), nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource, config *OTelConfig) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if config.UsePrometheus {
		exporter, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exporter))
	}

	if config.UseOTLPMetrics {
		var exporter sdkmetric.Exporter
		var err error
		interval := 60 * time.Second
		if config.DevelopmentMode {
			exporter, err = stdoutmetric.New()
			interval = 10 * time.Second
		} else {
			mopts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(config.OTLPMetricsURL)}
			if config.InsecureOTLP {
				mopts = append(mopts, otlpmetrichttp.WithInsecure())
			} else {
				tlsConfig, tlsErr := clientTLS(config)
				if tlsErr != nil {
					return nil, fmt.Errorf("failed to build TLS config for metrics: %w", tlsErr)
				}
				mopts = append(mopts, otlpmetrichttp.WithTLSClientConfig(tlsConfig))
			}
			exporter, err = otlpmetrichttp.New(ctx, mopts...)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

func newLoggerProvider(ctx context.Context, res *resource.Resource, config *OTelConfig) (*sdklog.LoggerProvider, error) {
	var exporter sdklog.Exporter
	var err error

	switch {
	case config.DevelopmentMode:
		exporter, err = stdoutlog.New()
	case config.UseOTLPLogs:
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(config.OTLPLogsURL)}
		if config.InsecureOTLP {
			opts = append(opts, otlploghttp.WithInsecure())
		} else {
			tlsConfig, tlsErr := clientTLS(config)
			if tlsErr != nil {
				return nil, fmt.Errorf("failed to build TLS config for logs: %w", tlsErr)
			}
			opts = append(opts, otlploghttp.WithTLSClientConfig(tlsConfig))
		}
		exporter, err = otlploghttp.New(ctx, opts...)
	default:
		return sdklog.NewLoggerProvider(sdklog.WithResource(res)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create log exporter: %w", err)
	}

	return sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
		sdklog.WithResource(res),
	), nil
}
