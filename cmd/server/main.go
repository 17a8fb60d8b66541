package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"geno-backend/internal/config"
	"geno-backend/internal/database"
	"geno-backend/internal/handlers"
	"geno-backend/internal/logger"
	"geno-backend/internal/metrics"
	"geno-backend/internal/repository"
	"geno-backend/internal/router"
	"geno-backend/internal/services"
	"geno-backend/internal/session"
	"geno-backend/internal/websocket"
	"geno-backend/internal/worker"
	"geno-backend/web"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := loadConfig()

	// ──── Step 2: Logging ────
	lg := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	lg.Info().Str("env", cfg.Env).Msg("🚀 Starting Geno Backend...")
	log.Info().Msg("✓ Environment variables loaded")

	// ──── Step 3: Metrics ────
	m, err := metrics.New()
	if err != nil {
		log.Fatal().Err(err).Msg("✗ Metrics registry failed")
	}

	// ──── Step 4: Session Store ────
	store := session.NewMemoryStore(session.Options{
		TTL:         cfg.SessionTTL,
		MaxSessions: cfg.SessionMax,
		OnEvict: func(sessionID string, turns int) {
			m.SessionEvicted()
			log.Info().Str("session_id", sessionID).Int("turns", turns).Msg("Session evicted")
		},
	})
	if err := m.TrackSessions(store.Len); err != nil {
		log.Fatal().Err(err).Msg("✗ Metrics registry failed")
	}
	log.Info().Dur("ttl", cfg.SessionTTL).Int("max", cfg.SessionMax).Msg("✓ Session store ready")

	// ──── Step 5: Initialize Gemini Client ────
	geminiService, err := services.NewGeminiService(context.Background(), cfg.GeminiAPIKey, cfg.GeminiConcurrentReqs)
	if err != nil {
		log.Fatal().Err(err).Msg("✗ Gemini client initialization failed")
	}
	defer geminiService.Close()
	log.Info().Str("model", cfg.GeminiModel).Msg("✓ Gemini client initialized")

	chatOpts := []services.ChatOption{
		services.WithUpstreamTimeout(cfg.GeminiTimeout),
		services.WithMetrics(m),
	}

	// ──── Step 6: Audit Log (optional) ────
	var auditPool *worker.Pool
	if cfg.DatabaseURL != "" {
		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("✗ PostgreSQL connection failed")
		}
		defer pool.Close()
		log.Info().Msg("✓ PostgreSQL connected")

		if err := database.RunMigrations(pool, database.Migrations, "migrations"); err != nil {
			log.Fatal().Err(err).Msg("✗ Database migration failed")
		}
		log.Info().Msg("✓ Database migrations applied")

		auditPool = worker.NewPool(repository.NewExchangeRepo(pool), m, cfg.AuditWorkers, 0)
		auditPool.Start()
		chatOpts = append(chatOpts, services.WithRecorder(auditPool))
		log.Info().Int("workers", cfg.AuditWorkers).Msg("✓ Audit writer started")
	}

	// ──── Step 7: Exchange Events (optional) ────
	var wsHub *websocket.Hub
	if cfg.RedisURL != "" {
		redisClients, err := database.NewRedisClients(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("✗ Redis connection failed")
		}
		defer redisClients.Close()
		log.Info().Msg("✓ Redis connected")

		chatOpts = append(chatOpts, services.WithEvents(services.NewRedisPublisher(redisClients.Publish)))
		wsHub = websocket.NewHub(redisClients.Subscribe)
		defer wsHub.Close()
		log.Info().Msg("✓ WebSocket hub started")
	}

	// ──── Step 8: Services and Handlers ────
	chatService := services.NewChatService(store, geminiService, cfg.GeminiModel, chatOpts...)

	static, err := staticFiles(cfg.StaticDir)
	if err != nil {
		log.Fatal().Err(err).Msg("✗ Static files unavailable")
	}

	r := router.New(router.Deps{
		Logger:         lg,
		ChatHandler:    handlers.NewChatHandler(chatService, m),
		HealthHandler:  handlers.NewHealthHandler(chatService.DefaultModel()),
		Metrics:        m,
		Hub:            wsHub,
		Static:         static,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	// ──── Step 9: Start HTTP Server ────
	// A chat reply may take up to the upstream timeout; without one the
	// write side is left unbounded.
	var writeTimeout time.Duration
	if cfg.GeminiTimeout > 0 {
		writeTimeout = cfg.GeminiTimeout + 15*time.Second
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	idle := make(chan struct{})
	go func() {
		defer close(idle)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown")
		}
		if auditPool != nil {
			if err := auditPool.Stop(ctx); err != nil {
				log.Warn().Err(err).Msg("Audit writer did not drain")
			}
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("✅ Server running")
	log.Info().Str("model", cfg.GeminiModel).Msg("→ Model")

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server error")
	}
	<-idle
}

// loadConfig turns a missing required variable into a startup failure.
func loadConfig() *config.Config {
	defer func() {
		if r := recover(); r != nil {
			log.Fatal().Msgf("❌ %v", r)
		}
	}()
	return config.Load()
}

func staticFiles(dir string) (fs.FS, error) {
	if dir == "" {
		return web.Static(), nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return os.DirFS(dir), nil
}
