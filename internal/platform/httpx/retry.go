// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package httpx

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ManuGH/assplayer/internal/telemetry"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

type retryTransport struct {
	base       http.RoundTripper
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	retryOn    map[int]struct{}
	userAgent  string

	mu  sync.Mutex
	rnd *rand.Rand
}

func newRetryTransport(base http.RoundTripper, opts UpstreamOptions) *retryTransport {
	retryOn := make(map[int]struct{}, len(opts.RetryStatuses))
	for _, s := range opts.RetryStatuses {
		retryOn[s] = struct{}{}
	}
	return &retryTransport{
		base:       base,
		limiter:    rate.NewLimiter(opts.RateLimit, opts.RateLimitBurst),
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		maxBackoff: opts.MaxBackoff,
		retryOn:    retryOn,
		userAgent:  opts.UserAgent,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	tracer := telemetry.Tracer("assplayer.httpx")
	host := req.URL.Hostname()
	route := req.URL.Path
	if route == "" {
		route = "/"
	}

	maxAttempts := 1
	if replayable(req) {
		maxAttempts = t.maxRetries + 1
	}

	for attempt := 1; ; attempt++ {
		attemptCtx, span := tracer.Start(ctx, "assplayer.upstream.attempt", trace.WithSpanKind(trace.SpanKindClient))

		waitStart := time.Now()
		err := t.limiter.Wait(attemptCtx)
		upstreamThrottleWait.Observe(time.Since(waitStart).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return nil, err
		}

		out, err := t.prepare(attemptCtx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return nil, err
		}

		start := time.Now()
		resp, err := t.base.RoundTrip(out)
		duration := time.Since(start)

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		retry := attempt < maxAttempts && ctx.Err() == nil && t.shouldRetry(status, err)
		observeAttempt(host, status, duration, err, retry)

		span.SetAttributes(telemetry.UpstreamAttempt(req.Method, host, route, attempt, status)...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if status >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(status))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()

		if !retry {
			return resp, err
		}

		wait := t.backoffFor(attempt - 1)
		if ra := retryAfter(resp); ra > 0 && ra <= t.maxBackoff {
			wait = ra
		}
		if resp != nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			_ = resp.Body.Close()
		}
		if err := sleepWithContext(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (t *retryTransport) prepare(ctx context.Context, req *http.Request) (*http.Request, error) {
	out := req.Clone(ctx)
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	if t.userAgent != "" && out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", t.userAgent)
	}
	return out, nil
}

func replayable(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	}
	return false
}

func (t *retryTransport) shouldRetry(status int, err error) bool {
	if err != nil {
		return true
	}
	_, ok := t.retryOn[status]
	return ok
}

func (t *retryTransport) backoffFor(attempt int) time.Duration {
	wait := t.backoff * time.Duration(1<<attempt)
	if wait > t.maxBackoff {
		wait = t.maxBackoff
	}
	jitter := time.Duration(t.randInt63n(int64(wait/5 + 1)))
	return wait + jitter
}

func (t *retryTransport) randInt63n(n int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rnd.Int63n(n)
}

func retryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
