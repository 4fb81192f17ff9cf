// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resolver turns a video page URL or short ID into a direct media
// URL by running the resolution strategies in priority order.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/assplayer/internal/bilibili"
	"github.com/ManuGH/assplayer/internal/cache"
	xglog "github.com/ManuGH/assplayer/internal/log"
	"github.com/ManuGH/assplayer/internal/media"
	"github.com/ManuGH/assplayer/internal/metrics"
	pnet "github.com/ManuGH/assplayer/internal/platform/net"
	"github.com/ManuGH/assplayer/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotFound means every strategy was exhausted without a usable link.
	ErrNotFound = errors.New("no playable link found")
	// ErrMalformedInput is terminal: no strategy runs and no network call is made.
	ErrMalformedInput = bilibili.ErrMalformedInput
)

// Result is a resolved media link.
type Result struct {
	URL      string
	Quality  media.Quality
	Strategy media.Strategy
	Cached   bool
	// Rewritten is set when the CDN host was substituted.
	Rewritten bool
	ShortID   string
	CacheKey  string
}

// OfficialAPI resolves through the platform API.
type OfficialAPI interface {
	Resolve(ctx context.Context, pageURL string) media.Outcome
}

// PageFetcher downloads a video page.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) (string, error)
}

// LinkExtractor runs the HTML strategies.
type LinkExtractor interface {
	FromPlayInfo(ctx context.Context, page string) media.Outcome
	SearchMP4(ctx context.Context, page string) media.Outcome
	BruteSearchEnabled() bool
}

// Cache memoizes final URLs.
type Cache interface {
	Get(ctx context.Context, key string) (cache.Entry, bool)
	Set(ctx context.Context, key, url string) error
}

// Rewriter substitutes CDN hosts.
type Rewriter interface {
	Rewrite(rawURL string) string
}

// URLGuard is the address safety check.
type URLGuard interface {
	IsAllowed(ctx context.Context, rawURL string) bool
}

// Deps wires a Resolver. Cache and CDN are optional.
type Deps struct {
	API       OfficialAPI
	Pages     PageFetcher
	Extractor LinkExtractor
	Cache     Cache
	CDN       Rewriter
	Guard     URLGuard
}

// Resolver is safe for concurrent use. Concurrent requests for the same
// cache key share one resolution.
type Resolver struct {
	deps   Deps
	group  singleflight.Group
	tracer trace.Tracer
	logger zerolog.Logger
}

// New builds a Resolver.
func New(deps Deps) *Resolver {
	return &Resolver{
		deps:   deps,
		tracer: telemetry.Tracer("assplayer.resolver"),
		logger: xglog.WithComponent("resolver"),
	}
}

// Resolve returns a direct media URL for input, which may be a bare short ID
// or a platform page URL. Errors are ErrMalformedInput or ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, input string) (Result, error) {
	start := time.Now()

	in, err := bilibili.NormalizeInput(input)
	if err != nil {
		metrics.RecordResolve("malformed", "", time.Since(start))
		logger := xglog.WithContext(ctx, r.logger)
		logger.Debug().
			Err(err).
			Str(xglog.FieldEvent, "resolve.malformed").
			Msg("rejected resolution input")
		return Result{}, err
	}
	if in.ShortID != "" {
		ctx = xglog.ContextWithShortID(ctx, in.ShortID)
	}

	ctx, span := r.tracer.Start(ctx, "assplayer.resolve",
		trace.WithAttributes(telemetry.ResolveAttributes(in.ShortID, in.CacheKey)...))
	defer span.End()

	v, err, shared := r.group.Do(in.CacheKey, func() (any, error) {
		return r.resolve(context.WithoutCancel(ctx), in)
	})
	if err != nil {
		metrics.RecordResolve("not_found", "", time.Since(start))
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	res := v.(Result)
	span.SetAttributes(telemetry.ResultAttributes(string(res.Strategy), res.Quality.String(), res.Cached, res.Rewritten)...)
	metrics.RecordResolve("found", string(res.Strategy), time.Since(start))

	logger := xglog.WithContext(ctx, r.logger)
	logger.Info().
		Str(xglog.FieldEvent, "resolve.found").
		Str(xglog.FieldStrategy, string(res.Strategy)).
		Str(xglog.FieldQuality, res.Quality.String()).
		Str(xglog.FieldURL, pnet.SanitizeURL(res.URL)).
		Bool("cached", res.Cached).
		Bool("shared", shared).
		Dur(xglog.FieldDuration, time.Since(start)).
		Msg("resolved media link")
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, in bilibili.Input) (Result, error) {
	logger := xglog.WithContext(ctx, r.logger).With().Str(xglog.FieldCacheKey, in.CacheKey).Logger()

	if r.deps.Cache != nil {
		if e, ok := r.deps.Cache.Get(ctx, in.CacheKey); ok {
			metrics.RecordStrategyOutcome(string(media.StrategyCache), media.StatusFound.String())
			logger.Debug().Str(xglog.FieldEvent, "resolve.cache_hit").Msg("served from cache")
			return Result{
				URL:      e.URL,
				Quality:  media.InferQuality(e.URL),
				Strategy: media.StrategyCache,
				Cached:   true,
				ShortID:  in.ShortID,
				CacheKey: in.CacheKey,
			}, nil
		}
	}

	if in.ShortID != "" && r.deps.API != nil {
		if out := r.record(logger, media.StrategyOfficialAPI, r.deps.API.Resolve(ctx, in.PageURL)); out.OK() {
			return r.finish(ctx, logger, in, out.Candidate), nil
		}
	}

	if r.deps.Pages == nil || r.deps.Extractor == nil {
		return Result{}, ErrNotFound
	}
	page, err := r.fetchPage(ctx, in.PageURL)
	if err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "resolve.page_failed").Msg("page fetch failed")
		return Result{}, fmt.Errorf("%w: page fetch: %v", ErrNotFound, err)
	}

	if out := r.record(logger, media.StrategyEmbeddedJSON, r.deps.Extractor.FromPlayInfo(ctx, page)); out.OK() {
		return r.finish(ctx, logger, in, out.Candidate), nil
	}
	if r.deps.Extractor.BruteSearchEnabled() {
		if out := r.record(logger, media.StrategyBruteSearch, r.deps.Extractor.SearchMP4(ctx, page)); out.OK() {
			return r.finish(ctx, logger, in, out.Candidate), nil
		}
	}

	logger.Info().Str(xglog.FieldEvent, "resolve.not_found").Msg("all strategies exhausted")
	return Result{}, ErrNotFound
}

func (r *Resolver) fetchPage(ctx context.Context, pageURL string) (string, error) {
	ctx, span := r.tracer.Start(ctx, "assplayer.page.fetch")
	defer span.End()
	page, err := r.deps.Pages.FetchPage(ctx, pageURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return page, err
}

func (r *Resolver) record(logger zerolog.Logger, strategy media.Strategy, out media.Outcome) media.Outcome {
	metrics.RecordStrategyOutcome(string(strategy), out.Status.String())
	ev := logger.Debug()
	if out.Status == media.StatusBlocked || out.Status == media.StatusError {
		ev = logger.Warn()
	}
	ev.Str(xglog.FieldEvent, "resolve.strategy").
		Str(xglog.FieldStrategy, string(strategy)).
		Str(xglog.FieldOutcome, out.Status.String()).
		Err(out.Err).
		Msg("strategy finished")
	return out
}

// finish applies the CDN rewrite and stores the final URL. A rewritten URL
// must pass the safety check again, since best hosts come from client reports.
func (r *Resolver) finish(ctx context.Context, logger zerolog.Logger, in bilibili.Input, c media.Candidate) Result {
	res := Result{
		URL:      c.URL,
		Quality:  c.Quality,
		Strategy: c.Strategy,
		ShortID:  in.ShortID,
		CacheKey: in.CacheKey,
	}
	if res.Quality == media.QualityUnknown {
		res.Quality = media.InferQuality(c.URL)
	}

	if r.deps.CDN != nil {
		if rewritten := r.deps.CDN.Rewrite(c.URL); rewritten != c.URL {
			if r.deps.Guard == nil || r.deps.Guard.IsAllowed(ctx, rewritten) {
				res.URL = rewritten
				res.Rewritten = true
			} else {
				logger.Warn().
					Str(xglog.FieldEvent, "resolve.rewrite_blocked").
					Str(xglog.FieldURL, pnet.SanitizeURL(rewritten)).
					Msg("rewritten cdn host failed safety check, keeping original")
			}
		}
	}

	if r.deps.Cache != nil {
		if err := r.deps.Cache.Set(ctx, in.CacheKey, res.URL); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "resolve.cache_store_failed").Msg("cache store failed")
		}
	}
	return res
}
