package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cloo-solutions/docpipe/internal/api"
	"github.com/cloo-solutions/docpipe/internal/api/handlers"
	"github.com/cloo-solutions/docpipe/internal/api/middleware"
)

const DefaultMaxBodyBytes int64 = 16 * 1024 * 1024

type RouterConfig struct {
	DocumentHandler *handlers.DocumentHandler
	Logger          zerolog.Logger
	MaxBodyBytes    int64

	// UploadHandler is nil when blob storage is not configured.
	UploadHandler *handlers.UploadHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Logger))
	r.Use(middleware.MaxBodyBytes(maxBody))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", cfg.DocumentHandler.Create)
		r.Get("/", cfg.DocumentHandler.List)
		r.Get("/{id}", cfg.DocumentHandler.Get)
		r.Get("/{id}/status", cfg.DocumentHandler.Status)
		r.Post("/{id}/retry", cfg.DocumentHandler.Retry)
		r.Post("/{id}/cancel", cfg.DocumentHandler.Cancel)
		if cfg.UploadHandler != nil {
			r.Post("/uploads", cfg.UploadHandler.InitUpload)
		}
	})

	return r
}
