package router

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"geno-backend/internal/handlers"
	"geno-backend/internal/metrics"
	"geno-backend/internal/middleware"
	"geno-backend/internal/websocket"
)

type Deps struct {
	Logger         zerolog.Logger
	ChatHandler    *handlers.ChatHandler
	HealthHandler  *handlers.HealthHandler
	Metrics        *metrics.Metrics
	Hub            *websocket.Hub // optional
	Static         fs.FS          // optional
	AllowedOrigins []string
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(d.AllowedOrigins))

	// Health check
	r.Get("/health", d.HealthHandler.Health)
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", d.ChatHandler.Chat)

		// ──── Exchange events ────
		if d.Hub != nil {
			r.Get("/ws", d.Hub.HandleWebSocket)
		}
	})

	// ──── Browser UI ────
	if d.Static != nil {
		r.Handle("/*", http.FileServer(http.FS(d.Static)))
	}

	return r
}
