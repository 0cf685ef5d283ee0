package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/AMKLAZ/Bibliotrocs/internal/ai"
	"github.com/AMKLAZ/Bibliotrocs/internal/chat"
	"github.com/AMKLAZ/Bibliotrocs/internal/config"
	"github.com/AMKLAZ/Bibliotrocs/internal/handlers"
	"github.com/AMKLAZ/Bibliotrocs/internal/middleware"
	"github.com/AMKLAZ/Bibliotrocs/internal/notify"
	"github.com/AMKLAZ/Bibliotrocs/internal/storage"
	"github.com/AMKLAZ/Bibliotrocs/internal/store"
	"github.com/AMKLAZ/Bibliotrocs/internal/telemetry"
)

func main() {
	cfg := config.LoadConfig()

	slog.Info("Starting BiblioTroc chat service", "version", "1.0.0")

	ctx := context.Background()

	// Metrics pipeline: Prometheus scrape page or OTLP gRPC export.
	otelTelemetry := &telemetry.Telemetry{}
	otelTelemetry.InitMetrics(ctx, cfg.MetricsExporter, cfg.MetricsPort)
	defer otelTelemetry.Close(ctx)

	apiTelemetry := telemetry.NewChatAPITelemetry()
	if err := apiTelemetry.InitializeTelemetry(ctx); err != nil {
		slog.Error("Failed to initialize API telemetry", "error", err)
		return
	}

	// Persistence collaborator: Firestore when configured, otherwise the
	// in-memory storage with local file persistence.
	var bookStorage storage.BookStorage
	if cfg.FirebaseProjectID != "" {
		fs, err := storage.NewFirestoreStorage(ctx, cfg.FirebaseProjectID, cfg.FirestoreDatabase)
		if err != nil {
			slog.Error("Failed to initialize Firestore storage", "error", err)
			return
		}
		bookStorage = fs
	} else {
		bookStorage = storage.NewMemoryStorage(cfg.DataPath)
	}
	defer bookStorage.Close()

	// AI collaborator: missing credentials degrade to fixed apology replies
	// instead of failing requests.
	var assistant ai.Assistant
	if cfg.GeminiAPIKey != "" {
		gemini, err := ai.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini client", "error", err)
			return
		}
		assistant = gemini
	} else {
		assistant = ai.NewDisabledAssistant()
	}

	bookStore, err := store.NewBookStore(ctx, bookStorage, notify.NewLogMailer(), cfg.ServiceFee, cfg.WhatsAppContactNumber)
	if err != nil {
		slog.Error("Failed to initialize book store", "error", err)
		return
	}

	sessions := chat.NewSessionManager(bookStore, assistant, cfg.BotTypingDelay, cfg.SessionTTL, cfg.SessionCleanupInterval)
	defer sessions.Stop()

	chatHandler := handlers.NewChatHandler(sessions)
	booksHandler := handlers.NewBooksHandler(bookStore)
	healthHandler := handlers.NewHealthHandler()
	slog.Debug("HTTP handlers initialized")

	r := mux.NewRouter()
	r.Use(telemetry.NewMiddleware(apiTelemetry).Handler)

	// Chat API routes (v1) behind API-key auth.
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(middleware.AuthMiddleware(cfg.APIKeys))

	v1.HandleFunc("/chat/sessions", chatHandler.CreateSession).Methods("POST")
	v1.HandleFunc("/chat/sessions/{sessionId}", chatHandler.GetSession).Methods("GET")
	v1.HandleFunc("/chat/sessions/{sessionId}/messages", chatHandler.PostMessage).Methods("POST")
	v1.HandleFunc("/chat/sessions/{sessionId}/actions", chatHandler.PostAction).Methods("POST")
	v1.HandleFunc("/chat/sessions/{sessionId}/photos", chatHandler.PostPhoto).Methods("POST")
	v1.HandleFunc("/books", booksHandler.ListBooks).Methods("GET")

	// Health check endpoint (no auth required).
	r.HandleFunc("/health", healthHandler.Health).Methods("GET")

	slog.Info("Starting HTTP server",
		"port", cfg.Port,
		"environment", cfg.Environment)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan

		slog.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Server failed", "error", err)
	}

	slog.Info("Server stopped")
}
