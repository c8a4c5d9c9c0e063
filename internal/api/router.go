// Package api exposes the deadline repository, email sync and
// notification history over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nhle/deadline-tracker/internal/model"
	"github.com/nhle/deadline-tracker/internal/sync"
)

// Deadlines is the repository surface the API serves.
type Deadlines interface {
	GetAll(ctx context.Context) ([]model.Deadline, error)
	Get(ctx context.Context, id string) (model.Deadline, error)
	Add(ctx context.Context, d model.Deadline) (model.Deadline, error)
	Update(ctx context.Context, id string, d model.Deadline) (model.Deadline, error)
	Delete(ctx context.Context, id string) error
	GetUpcoming(ctx context.Context, hoursAhead float64) ([]model.Deadline, error)
}

// NotificationLog lists fired notifications, oldest first.
type NotificationLog interface {
	All(ctx context.Context) []model.Notification
}

// FetcherFactory builds a mail fetcher for the credentials in a sync
// request. An empty host means the configured default.
type FetcherFactory func(username, password, host string) sync.Fetcher

// RouterConfig aggregates the dependencies of the route tree.
type RouterConfig struct {
	Deadlines     Deadlines
	Syncer        *sync.Syncer
	NewFetcher    FetcherFactory
	Notifications NotificationLog

	// Token is the bearer token every /api route requires.
	Token string

	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	Logger *zap.Logger
}

// NewRouter constructs the HTTP route tree.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{
		deadlines:     cfg.Deadlines,
		syncer:        cfg.Syncer,
		newFetcher:    cfg.NewFetcher,
		notifications: cfg.Notifications,
		logger:        logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(h.logger))

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(bearerAuth(cfg.Token))

		api.Route("/deadlines", func(dr chi.Router) {
			dr.Get("/", h.listDeadlines)
			dr.Post("/", h.createDeadline)
			dr.Get("/upcoming", h.upcomingDeadlines)

			dr.Route("/{id}", func(item chi.Router) {
				item.Get("/", h.getDeadline)
				item.Put("/", h.updateDeadline)
				item.Delete("/", h.deleteDeadline)
			})
		})

		api.Post("/extract/email", h.extractEmail)
		api.Post("/sync/emails", h.syncEmails)
		api.Get("/notifications", h.listNotifications)
	})

	return r
}
