// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Middleware logs one line per handled request. It must run after the
// request ID middleware so the ID is available in the context.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if pattern := rc.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			l := WithComponentFromContext(r.Context(), "http")
			evt := l.Info()
			switch {
			case status >= http.StatusInternalServerError:
				evt = l.Error()
			case status >= http.StatusBadRequest:
				evt = l.Warn()
			}
			evt.
				Str(FieldEvent, "request.handled").
				Str("method", r.Method).
				Str("route", route).
				Int(FieldStatus, status).
				Int("bytes", ww.BytesWritten()).
				Int64(FieldDuration, time.Since(start).Milliseconds()).
				Str("remote_addr", r.RemoteAddr).
				Msg("request handled")
		})
	}
}
