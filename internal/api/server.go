// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api is the thin HTTP surface over the resolver and the CDN
// optimizer.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ManuGH/assplayer/internal/api/middleware"
	"github.com/ManuGH/assplayer/internal/cdn"
	xglog "github.com/ManuGH/assplayer/internal/log"
	"github.com/ManuGH/assplayer/internal/resolver"
	"github.com/getkin/kin-openapi/routers"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Resolver resolves user input to a media link.
type Resolver interface {
	Resolve(ctx context.Context, input string) (resolver.Result, error)
}

// CDNStats receives client load reports and exposes the stats table.
type CDNStats interface {
	MarkHostname(ctx context.Context, hostname string, isChina bool) (cdn.Stat, error)
	RecordLoad(ctx context.Context, hostname string, loadMs float64) (cdn.Stat, error)
	Snapshot() []cdn.Stat
	BestHost() string
}

// HealthFunc reports whether a dependency is usable.
type HealthFunc func(ctx context.Context) error

// Config configures the HTTP surface.
type Config struct {
	// ResolveInterval is the minimum time between resolutions per client.
	ResolveInterval time.Duration
	TrustedProxies  []string
	// TracingService names inbound spans; empty disables HTTP tracing.
	TracingService string
	Version        string
}

// Deps are the services behind the handlers. Health checks are optional.
type Deps struct {
	Resolver Resolver
	CDN      CDNStats
	Health   map[string]HealthFunc
}

// Server owns the router.
type Server struct {
	cfg     Config
	deps    Deps
	proxies trustedProxies
	router  routers.Router
	logger  zerolog.Logger
	handler http.Handler
}

// NewServer builds the router. It fails only if the embedded API description
// is invalid.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Resolver == nil || deps.CDN == nil {
		return nil, errors.New("api: resolver and cdn stats are required")
	}
	_, router, err := loadOpenAPI()
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		proxies: parseTrustedProxies(cfg.TrustedProxies),
		router:  router,
		logger:  xglog.WithComponent("api"),
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := middleware.NewRouter(middleware.Options{
		SecurityHeaders: true,
		Metrics:         true,
		TracingService:  s.cfg.TracingService,
		AccessLog:       true,
	})

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(validateRequests(s.router))
		r.With(middleware.PerClientInterval(s.cfg.ResolveInterval, s.proxies.rateKey)).
			Get("/auto-parse", s.handleAutoParse)
		r.Post("/report-cdn", s.handleReportCDN)
		r.Get("/cdn-stats", s.handleCDNStats)
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeFailure(w, req, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeFailure(w, req, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}
