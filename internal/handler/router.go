package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-feed/internal/identity"
	"github.com/Shivanand-hulikatti/event-feed/internal/service"
)

// RouterConfig lists what NewRouter mounts.
type RouterConfig struct {
	// BaseContext bounds long-lived connections such as the event feed.
	// Cancel it when the server shuts down.
	BaseContext context.Context

	Events   *service.EventService
	Feed     *service.Feed
	Identity *identity.Provider
	Log      *zap.Logger
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Static serves everything the API does not match when set.
	Static http.Handler
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	events := NewEventHandler(cfg.Events, cfg.Log)
	auth := NewAuthHandler(cfg.Identity, cfg.Log)
	feed := NewFeedHandler(cfg.BaseContext, cfg.Feed, cfg.Log)

	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(cfg.Log))         // structured access log
	r.Use(CORS)

	r.Get("/health", HealthCheck)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(cfg.Identity))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/anonymous", auth.Anonymous)
			r.Post("/token", auth.Token)
			r.Post("/signin", auth.SignIn)
			r.Post("/signup", auth.SignUp)
			r.Post("/signout", auth.SignOut)
			r.Get("/me", auth.Me)
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/", events.CreateEvent)
			r.Get("/", events.ListEvents)
			r.Get("/feed", feed.Serve)
			r.Get("/{id}", events.GetEvent)
			r.Post("/{id}/register", events.Register)
			r.Get("/{id}/registrations", events.ListRegistrations)
		})
	})

	if cfg.Static != nil {
		r.Handle("/*", cfg.Static)
	}
	return r
}
