package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"torchlight/internal/config"
	"torchlight/internal/dice"
	"torchlight/internal/domain/repositories"
	"torchlight/internal/events"
	"torchlight/internal/handler"
	"torchlight/internal/middleware"
	"torchlight/internal/narrator"
	"torchlight/internal/repository/file"
	"torchlight/internal/repository/sqlite"
	"torchlight/internal/schema"
	"torchlight/internal/service"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup structured logging: colorized dev output, JSON in prod
	var logger *slog.Logger
	if cfg.Environment == "dev" {
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelDebug}))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"backend", cfg.StorageBackend,
	)

	// Storage backend
	var store repositories.Store
	switch cfg.StorageBackend {
	case config.BackendSQLite:
		// Seed the entropy table from the file stream when present so
		// both backends replay the same recorded dice.
		seedPath := filepath.Join(cfg.DataRoot, "dice", "entropy.ndjson")
		if _, statErr := os.Stat(seedPath); statErr != nil {
			seedPath = ""
		}
		store, err = sqlite.New(cfg.DatabaseURL, seedPath, logger)
	default:
		store, err = file.New(cfg.DataRoot, logger)
	}
	if err != nil {
		log.Fatalf("Failed to open storage backend: %v", err)
	}
	defer store.Close()

	// Shared components
	bus := events.NewBus(logger)
	validator := schema.NewValidator(filepath.Join(cfg.DataRoot, "schemas"))
	source := dice.NewSource(store)
	evaluator := dice.NewEvaluator(store)

	// Narration producer; without an endpoint the engine narrates
	// deterministically
	var producer narrator.Producer
	if cfg.LLMBaseURL != "" || cfg.LLMAPIKey != "" {
		producer = narrator.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
		logger.Info("narration producer configured", "model", cfg.LLMModel)
	} else {
		logger.Info("narration producer not configured, using fallback narration")
	}

	// Services
	lockService := service.NewLockService(store, cfg.LockTTL, logger)
	sessionService := service.NewSessionService(store, lockService, cfg.TranscriptTail, cfg.ChangelogTail, logger)
	turnEngine := service.NewTurnEngine(store, source, evaluator, lockService, validator, bus, cfg.PreviewMaxAge, logger)
	narrateService := service.NewNarrateService(store, turnEngine, producer, logger)
	rollService := service.NewRollService(store, source, evaluator, lockService, bus, logger)
	snapshotService := service.NewSnapshotService(store, lockService, logger)
	docService := service.NewDocService(store, lockService, logger)
	autosave := service.NewAutosaveRunner(store, lockService, snapshotService, cfg.AutosaveInterval, logger)

	// Handlers
	sessionHandler := handler.NewSessionHandler(sessionService, logger)
	lockHandler := handler.NewLockHandler(lockService, logger)
	turnHandler := handler.NewTurnHandler(turnEngine, narrateService, logger)
	rollHandler := handler.NewRollHandler(rollService, logger)
	saveHandler := handler.NewSaveHandler(snapshotService, logger)
	docHandler := handler.NewDocHandler(docService, logger)
	entropyHandler := handler.NewEntropyHandler(source, logger)
	eventsHandler := handler.NewEventsHandler(bus, logger)

	logger.Info("services initialized")

	// HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", handler.HealthCheck)

	// Session routes
	mux.HandleFunc("GET /api/sessions", sessionHandler.ListSessions)
	mux.HandleFunc("POST /api/sessions", sessionHandler.CreateSession)
	mux.HandleFunc("GET /api/sessions/{slug}/state", sessionHandler.GetState)
	mux.HandleFunc("GET /api/sessions/{slug}/transcript", sessionHandler.GetTranscript)
	mux.HandleFunc("GET /api/sessions/{slug}/changelog", sessionHandler.GetChangelog)
	mux.HandleFunc("GET /api/sessions/{slug}/turn", sessionHandler.GetTurnPrompt)
	mux.HandleFunc("GET /api/sessions/{slug}/turns", sessionHandler.ListTurns)
	mux.HandleFunc("GET /api/sessions/{slug}/turns/{n}", sessionHandler.GetTurn)

	// Lock routes
	mux.HandleFunc("POST /api/sessions/{slug}/lock/claim", lockHandler.ClaimLock)
	mux.HandleFunc("DELETE /api/sessions/{slug}/lock", lockHandler.ReleaseLock)
	mux.HandleFunc("GET /api/sessions/{slug}/lock", lockHandler.GetLock)

	// Turn protocol routes
	mux.HandleFunc("POST /api/sessions/{slug}/turn/preview", turnHandler.CreatePreview)
	mux.HandleFunc("DELETE /api/sessions/{slug}/turn/preview/{id}", turnHandler.CancelPreview)
	mux.HandleFunc("POST /api/sessions/{slug}/turn/commit", turnHandler.CommitTurn)
	mux.HandleFunc("POST /api/sessions/{slug}/turn/commit-and-narrate", turnHandler.CommitAndNarrate)

	// Roll route
	mux.HandleFunc("POST /api/sessions/{slug}/roll", rollHandler.PerformRoll)

	// Save routes
	mux.HandleFunc("GET /api/sessions/{slug}/saves", saveHandler.ListSaves)
	mux.HandleFunc("POST /api/sessions/{slug}/saves", saveHandler.CreateSave)
	mux.HandleFunc("GET /api/sessions/{slug}/saves/{id}", saveHandler.GetSave)
	mux.HandleFunc("POST /api/sessions/{slug}/saves/{id}/restore", saveHandler.RestoreSave)
	mux.HandleFunc("DELETE /api/sessions/{slug}/saves/{id}", saveHandler.DeleteSave)

	// Aux document routes
	mux.HandleFunc("GET /api/docs/kinds", docHandler.ListKinds)
	mux.HandleFunc("GET /api/sessions/{slug}/docs/{kind}", docHandler.GetDoc)
	mux.HandleFunc("PUT /api/sessions/{slug}/docs/{kind}", docHandler.PutDoc)

	// Entropy route
	mux.HandleFunc("GET /api/entropy", entropyHandler.PeekEntropy)

	// Live updates (SSE)
	mux.HandleFunc("GET /api/events/{slug}", eventsHandler.StreamEvents)

	// Build middleware chain
	var httpHandler http.Handler = mux
	httpHandler = middleware.APIKey(cfg.APIKey)(httpHandler)
	httpHandler = middleware.Recovery(logger)(httpHandler)

	// CORS - before everything to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "X-API-Key", "Last-Event-ID"},
		AllowCredentials: true,
	})
	httpHandler = corsHandler.Handler(httpHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("http server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		return autosave.Run(groupCtx)
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
