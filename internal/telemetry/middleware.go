package telemetry

import (
	"net/http"
	"time"
)

// Middleware wraps HTTP handlers to record request metrics.
type Middleware struct {
	telemetry *ChatAPITelemetry
}

// NewMiddleware creates a telemetry middleware over the given instruments.
func NewMiddleware(telemetry *ChatAPITelemetry) *Middleware {
	return &Middleware{telemetry: telemetry}
}

// Handler returns the HTTP middleware function.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		metrics := ChatAPIMetrics{
			Method:     r.Method,
			Endpoint:   GetEndpointFromPath(r.URL.Path),
			StatusCode: wrapper.statusCode,
			Duration:   time.Since(start),
		}

		ctx := r.Context()
		if wrapper.statusCode >= 400 {
			metrics.ErrorMessage = http.StatusText(wrapper.statusCode)
			m.telemetry.RegisterRequestError(ctx, metrics)
		} else {
			m.telemetry.RegisterRequestReceived(ctx, metrics)
		}
		m.telemetry.RegisterRequestDuration(ctx, metrics)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
