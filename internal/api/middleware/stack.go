// SPDX-License-Identifier: MIT

// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"net/http"

	xglog "github.com/ManuGH/assplayer/internal/log"
	"github.com/go-chi/chi/v5"
)

// Options selects the optional ingress layers. Recovery and request IDs are
// always installed.
type Options struct {
	SecurityHeaders bool
	CSP             string // empty means DefaultCSP
	Metrics         bool
	TracingService  string // empty disables tracing
	AccessLog       bool
}

// NewRouter returns a chi router with the ingress layers installed.
func NewRouter(o Options) *chi.Mux {
	r := chi.NewRouter()
	r.Use(o.layers()...)
	return r
}

// layers lists the middleware outermost first. Metrics wrap tracing and the
// access log so their timings include both.
func (o Options) layers() []func(http.Handler) http.Handler {
	out := []func(http.Handler) http.Handler{Recoverer, RequestID}
	if o.SecurityHeaders {
		out = append(out, SecurityHeaders(o.CSP))
	}
	if o.Metrics {
		out = append(out, Metrics())
	}
	if o.TracingService != "" {
		out = append(out, OTelHTTP(o.TracingService))
	}
	if o.AccessLog {
		out = append(out, xglog.Middleware())
	}
	return out
}
