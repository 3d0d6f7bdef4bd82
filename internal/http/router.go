package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Tickets    *TicketHandler
	Health     Pinger
	Middleware []func(http.Handler) http.Handler
	Logger     *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, RequestLogger(logger), middleware.Recoverer)
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.Get("/healthz", healthHandler(cfg.Health, logger))

	if cfg.Tickets != nil {
		h := cfg.Tickets
		r.Route("/api", func(r chi.Router) {
			r.Route("/tickets", func(r chi.Router) {
				r.Get("/", h.List)
				r.Post("/", h.Create)
				r.Get("/next", h.Next)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Get)
					r.Put("/", h.Update)
					r.Delete("/", h.Delete)
					r.Post("/comments", h.AddComment)
					r.Put("/position", h.Reorder)
					r.Put("/move", h.Move)
				})
			})
			r.Post("/columns/{status}/renormalize", h.Renormalize)
		})
	}

	return r
}

func healthHandler(pinger Pinger, logger *slog.Logger) http.HandlerFunc {
	resp := newResponder(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger == nil {
			resp.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pinger.Ping(ctx); err != nil {
			resp.loggerFor(r.Context()).ErrorContext(r.Context(), "health check failed", "error", err)
			resp.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
		resp.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

type healthResponse struct {
	Status string `json:"status"`
}
