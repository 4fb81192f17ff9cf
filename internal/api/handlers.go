// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ManuGH/assplayer/internal/api/middleware"
	"github.com/ManuGH/assplayer/internal/cdn"
	xglog "github.com/ManuGH/assplayer/internal/log"
	pnet "github.com/ManuGH/assplayer/internal/platform/net"
	"github.com/ManuGH/assplayer/internal/resolver"
)

const maxReportBody = 4 << 10

type parseSuccess struct {
	Success  bool   `json:"success"`
	VideoURL string `json:"video_url"`
	Quality  string `json:"quality"`
	Strategy string `json:"strategy"`
	Cached   bool   `json:"cached"`
	Message  string `json:"message"`
}

type cdnReport struct {
	Hostname string   `json:"hostname"`
	LoadMs   *float64 `json:"load_ms"`
	IsChina  *bool    `json:"is_china"`
}

type reportAccepted struct {
	Success  bool     `json:"success"`
	Stat     cdn.Stat `json:"stat"`
	BestHost string   `json:"best_host,omitempty"`
}

type cdnStatsResponse struct {
	Success  bool       `json:"success"`
	BestHost string     `json:"best_host"`
	Stats    []cdn.Stat `json:"stats"`
}

// GET /api/auto-parse?url=
func (s *Server) handleAutoParse(w http.ResponseWriter, r *http.Request) {
	input := strings.TrimSpace(r.URL.Query().Get("url"))
	if input == "" {
		writeFailure(w, r, http.StatusBadRequest, codeMissingURL, "query parameter url is required")
		return
	}

	res, err := s.deps.Resolver.Resolve(r.Context(), input)
	switch {
	case errors.Is(err, resolver.ErrMalformedInput):
		writeFailure(w, r, http.StatusBadRequest, codeMalformedInput,
			"only bilibili.com video links or BV short IDs are supported")
		return
	case err != nil:
		logger := xglog.WithContext(r.Context(), s.logger)
		logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "api.resolve_failed").
			Msg("no playable link")
		writeFailure(w, r, http.StatusBadGateway, codeNotFound,
			"no playable link found; check the video link or try another video")
		return
	}

	middleware.SetOutcome(r, string(res.Strategy))

	quality := res.Quality.String()
	writeJSON(w, http.StatusOK, parseSuccess{
		Success:  true,
		VideoURL: res.URL,
		Quality:  quality,
		Strategy: string(res.Strategy),
		Cached:   res.Cached,
		Message:  fmt.Sprintf("resolved (%s)", quality),
	})
}

// POST /api/report-cdn
func (s *Server) handleReportCDN(w http.ResponseWriter, r *http.Request) {
	var rep cdnReport
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReportBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rep); err != nil {
		writeFailure(w, r, http.StatusBadRequest, codeInvalidReport, "malformed JSON body")
		return
	}
	if rep.LoadMs == nil {
		writeFailure(w, r, http.StatusBadRequest, codeInvalidReport, "load_ms is required")
		return
	}
	if err := cdn.ValidateLoad(*rep.LoadMs); err != nil {
		writeFailure(w, r, http.StatusBadRequest, codeInvalidReport, err.Error())
		return
	}
	host, err := pnet.NormalizeHost(rep.Hostname)
	if err != nil {
		writeFailure(w, r, http.StatusBadRequest, codeInvalidReport, "hostname is not a valid host")
		return
	}

	ctx := r.Context()
	if rep.IsChina != nil {
		if _, err := s.deps.CDN.MarkHostname(ctx, host, *rep.IsChina); err != nil {
			s.reportFailed(w, r, err)
			return
		}
	}
	stat, err := s.deps.CDN.RecordLoad(ctx, host, *rep.LoadMs)
	if err != nil {
		s.reportFailed(w, r, err)
		return
	}
	middleware.SetOutcome(r, "recorded")
	writeJSON(w, http.StatusOK, reportAccepted{Success: true, Stat: stat, BestHost: s.deps.CDN.BestHost()})
}

func (s *Server) reportFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, cdn.ErrInvalidReport) {
		writeFailure(w, r, http.StatusBadRequest, codeInvalidReport, err.Error())
		return
	}
	logger := xglog.WithContext(r.Context(), s.logger)
	logger.Error().
		Err(err).
		Str(xglog.FieldEvent, "api.report_failed").
		Msg("cdn report could not be stored")
	writeFailure(w, r, http.StatusInternalServerError, codeInternal, "report could not be stored")
}

// GET /api/cdn-stats
func (s *Server) handleCDNStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.deps.CDN.Snapshot()
	if stats == nil {
		stats = []cdn.Stat{}
	}
	writeJSON(w, http.StatusOK, cdnStatsResponse{
		Success:  true,
		BestHost: s.deps.CDN.BestHost(),
		Stats:    stats,
	})
}

// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.deps.Health))
	status := http.StatusOK
	for name, check := range s.deps.Health {
		if err := check(r.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]any{
		"status":  http.StatusText(status),
		"version": s.cfg.Version,
		"checks":  checks,
	})
}
