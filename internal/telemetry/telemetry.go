// Package telemetry owns the OpenTelemetry metrics pipeline and the HTTP
// middleware that records per-request metrics for the chat API.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Telemetry holds the configured meter provider and, in scraper mode, the
// HTTP server exposing /metrics.
type Telemetry struct {
	server   *http.Server
	Provider *metric.MeterProvider
}

var once sync.Once

// InitMetrics sets the global meter provider. exporterKind "scraper" serves a
// Prometheus /metrics page on metricsPort; anything else exports over OTLP
// gRPC to OTEL_EXPORTER_OTLP_METRICS_ENDPOINT (default localhost:4317).
func (t *Telemetry) InitMetrics(ctx context.Context, exporterKind, metricsPort string) {
	once.Do(func() {
		if exporterKind == "scraper" {
			slog.Info("Starting metrics with scraper exporter", "port", metricsPort)
			t.initScrapeMetrics(metricsPort)
		} else {
			slog.Info("Starting metrics with grpc exporter")
			t.initGRPCMetrics(ctx)
		}
	})
}

// Close flushes pending metrics and stops the scrape server if one runs.
func (t *Telemetry) Close(ctx context.Context) {
	if t.Provider != nil {
		if err := t.Provider.ForceFlush(ctx); err != nil {
			slog.Warn("Metrics flush failed", "error", err)
		}
	}
	if t.server != nil {
		if err := t.server.Shutdown(ctx); err != nil {
			slog.Warn("Metrics server shutdown failed", "error", err)
		}
	}
}

func (t *Telemetry) initGRPCMetrics(ctx context.Context) {
	exporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		slog.Error("Creating gRPC metrics exporter", "error", err)
		return
	}

	t.Provider = metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(exporter)))
	otel.SetMeterProvider(t.Provider)
}

func (t *Telemetry) initScrapeMetrics(metricsPort string) {
	// The exporter implements both an OpenTelemetry Reader and a
	// prometheus.Collector.
	exporter, err := prometheus.New()
	if err != nil {
		slog.Error("Creating Prometheus scrape exporter", "error", err)
		return
	}

	t.Provider = metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(t.Provider)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	t.server = &http.Server{
		Addr:    ":" + metricsPort,
		Handler: mux,
	}

	go func() {
		slog.Info("Serving metrics", "addr", t.server.Addr+"/metrics")
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server exited", "error", err)
		}
	}()
}
