package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ChatAPITelemetry provides metrics for the chat API endpoints.
type ChatAPITelemetry struct {
	meter metric.Meter

	requestCounter    metric.Int64Counter
	errorCounter      metric.Int64Counter
	durationHistogram metric.Float64Histogram

	// Domain-specific counters.
	sessionCounter      metric.Int64Counter
	turnCounter         metric.Int64Counter
	catalogQueryCounter metric.Int64Counter
}

// ChatAPIMetrics carries the telemetry data for one request.
type ChatAPIMetrics struct {
	Method       string
	Endpoint     string
	StatusCode   int
	Duration     time.Duration
	ErrorMessage string
}

// NewChatAPITelemetry creates an uninitialized ChatAPITelemetry.
func NewChatAPITelemetry() *ChatAPITelemetry {
	return &ChatAPITelemetry{}
}

// InitializeTelemetry creates all instruments against the global meter
// provider.
func (t *ChatAPITelemetry) InitializeTelemetry(ctx context.Context) error {
	t.meter = otel.Meter("bibliotroc-chat-api")

	var err error

	t.requestCounter, err = t.meter.Int64Counter(
		"chat_api_requests_total",
		metric.WithDescription("Total number of chat API requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("create request counter: %w", err)
	}

	t.errorCounter, err = t.meter.Int64Counter(
		"chat_api_errors_total",
		metric.WithDescription("Total number of chat API errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("create error counter: %w", err)
	}

	t.durationHistogram, err = t.meter.Float64Histogram(
		"chat_api_request_duration_seconds",
		metric.WithDescription("Duration of chat API requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create duration histogram: %w", err)
	}

	t.sessionCounter, err = t.meter.Int64Counter(
		"chat_sessions_created_total",
		metric.WithDescription("Total number of chat sessions created"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("create session counter: %w", err)
	}

	t.turnCounter, err = t.meter.Int64Counter(
		"chat_turns_total",
		metric.WithDescription("Total number of conversation turns processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("create turn counter: %w", err)
	}

	t.catalogQueryCounter, err = t.meter.Int64Counter(
		"catalog_queries_total",
		metric.WithDescription("Total number of catalog listings queries"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("create catalog query counter: %w", err)
	}

	slog.Info("Chat API telemetry initialized")
	return nil
}

// RegisterRequestReceived records a successful API request.
func (t *ChatAPITelemetry) RegisterRequestReceived(ctx context.Context, metrics ChatAPIMetrics) {
	if t.requestCounter == nil {
		return
	}

	t.requestCounter.Add(ctx, 1, metric.WithAttributes(requestAttrs(metrics)...))
	t.recordEndpointSpecificMetrics(ctx, metrics)

	slog.Debug("Recorded API request",
		"method", metrics.Method,
		"endpoint", metrics.Endpoint,
		"status_code", metrics.StatusCode,
		"duration_ms", metrics.Duration.Milliseconds())
}

// RegisterRequestError records a failed API request.
func (t *ChatAPITelemetry) RegisterRequestError(ctx context.Context, metrics ChatAPIMetrics) {
	if t.errorCounter == nil {
		return
	}

	attrs := append(requestAttrs(metrics),
		attribute.String("error_type", categorizeError(metrics.ErrorMessage)))
	t.errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	slog.Warn("Recorded API request error",
		"method", metrics.Method,
		"endpoint", metrics.Endpoint,
		"status_code", metrics.StatusCode,
		"error", metrics.ErrorMessage)
}

// RegisterRequestDuration records the duration of an API request.
func (t *ChatAPITelemetry) RegisterRequestDuration(ctx context.Context, metrics ChatAPIMetrics) {
	if t.durationHistogram == nil {
		return
	}

	t.durationHistogram.Record(ctx, metrics.Duration.Seconds(),
		metric.WithAttributes(requestAttrs(metrics)...))
}

// recordEndpointSpecificMetrics bumps the domain counters keyed on the
// normalized endpoint.
func (t *ChatAPITelemetry) recordEndpointSpecificMetrics(ctx context.Context, metrics ChatAPIMetrics) {
	switch metrics.Endpoint {
	case "/v1/chat/sessions":
		if metrics.Method == "POST" && t.sessionCounter != nil {
			t.sessionCounter.Add(ctx, 1)
		}

	case "/v1/chat/sessions/{sessionId}/messages",
		"/v1/chat/sessions/{sessionId}/actions",
		"/v1/chat/sessions/{sessionId}/photos":
		if t.turnCounter != nil {
			t.turnCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("turn_type", turnType(metrics.Endpoint)),
			))
		}

	case "/v1/books":
		if t.catalogQueryCounter != nil {
			t.catalogQueryCounter.Add(ctx, 1)
		}
	}
}

// requestAttrs builds the low-cardinality attribute set shared by all
// request instruments.
func requestAttrs(metrics ChatAPIMetrics) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("method", metrics.Method),
		attribute.String("endpoint", metrics.Endpoint),
		attribute.Int("status_code", metrics.StatusCode),
	}
}

func turnType(endpoint string) string {
	switch {
	case strings.HasSuffix(endpoint, "/messages"):
		return "message"
	case strings.HasSuffix(endpoint, "/actions"):
		return "action"
	case strings.HasSuffix(endpoint, "/photos"):
		return "photo"
	default:
		return "unknown"
	}
}

// categorizeError groups similar errors to keep cardinality low.
func categorizeError(errorMessage string) string {
	switch {
	case errorMessage == "":
		return "unknown"
	case strings.Contains(errorMessage, "Not Found"):
		return "not_found"
	case strings.Contains(errorMessage, "Unauthorized"):
		return "unauthorized"
	case strings.Contains(errorMessage, "Bad Request"):
		return "bad_request"
	case strings.Contains(errorMessage, "Internal"):
		return "internal_error"
	default:
		return "other"
	}
}

// GetEndpointFromPath normalizes a request path to its route template so
// session ids never become metric attributes.
func GetEndpointFromPath(path string) string {
	const sessionsPrefix = "/v1/chat/sessions/"

	switch path {
	case "/v1/chat/sessions", "/v1/books", "/health":
		return path
	}

	if strings.HasPrefix(path, sessionsPrefix) {
		rest := path[len(sessionsPrefix):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			switch rest[i:] {
			case "/messages", "/actions", "/photos":
				return "/v1/chat/sessions/{sessionId}" + rest[i:]
			}
			return path
		}
		return "/v1/chat/sessions/{sessionId}"
	}

	return path
}
