// Package httpapi serves the dashboard over HTTP: the rendered page, a JSON
// API described by OpenAPI, PNG exports and the websocket session endpoint.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"stockdash/internal/binding"
	"stockdash/internal/dashboard"
	"stockdash/internal/export"
	"stockdash/internal/layout"
	"stockdash/internal/session"
)

// Version is reported in the OpenAPI document.
const Version = "1.0.0"

// Options tunes the websocket endpoint.
type Options struct {
	EventsPerMinute int // sustained control events per connection
	EventBurst      int
}

// Server holds the handlers' dependencies.
type Server struct {
	svc      *dashboard.Service
	sessions *session.Manager
	log      *slog.Logger
	opts     Options
	upgrader websocket.Upgrader
}

// NewServer returns the root handler.
func NewServer(svc *dashboard.Service, sessions *session.Manager, log *slog.Logger, opts Options) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	if opts.EventsPerMinute <= 0 {
		opts.EventsPerMinute = 600
	}
	if opts.EventBurst <= 0 {
		opts.EventBurst = 20
	}
	s := &Server{
		svc:      svc,
		sessions: sessions,
		log:      log,
		opts:     opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:       func(*http.Request) bool { return true },
			EnableCompression: true,
		},
	}

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(log))
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware)

	cfg := huma.DefaultConfig("Stock Dashboard API", Version)
	api := humachi.New(router, cfg)

	router.Get("/", s.handlePage)
	router.Get("/ws", s.handleWS)

	registerDashboardHandlers(api, s)
	registerPanelHandlers(api, s)
	registerHealthHandlers(api, s)

	return router
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := layout.Render(w, s.svc.Page()); err != nil {
		s.log.Error("rendering page", "error", err)
	}
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dashboard.ErrInvalidRequest):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, export.ErrNothingToRender):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout(binding.Describe(err))
	case binding.IsStoreError(err):
		return huma.Error503ServiceUnavailable(binding.Describe(err))
	}
	return huma.Error500InternalServerError(err.Error())
}
