package httpx

import (
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// Each attempt may use at most half of the logical request timeout for
// connecting and for waiting on headers, so a stalled attempt still leaves
// room for one retry.
const (
	maxDialTimeout           = 3 * time.Second
	maxResponseHeaderTimeout = 4 * time.Second
	upstreamIdleConnTimeout  = 90 * time.Second
	upstreamMaxIdleConns     = 32
	// api.bilibili.com and www.bilibili.com carry nearly all traffic.
	upstreamMaxIdlePerHost = 8
)

func upstreamTransport(timeout time.Duration) *http.Transport {
	perAttempt := timeout / 2
	dial := min(perAttempt, maxDialTimeout)
	header := min(perAttempt, maxResponseHeaderTimeout)

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dial, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          upstreamMaxIdleConns,
		MaxIdleConnsPerHost:   upstreamMaxIdlePerHost,
		IdleConnTimeout:       upstreamIdleConnTimeout,
		TLSHandshakeTimeout:   dial,
		ResponseHeaderTimeout: header,
	}
}

// UpstreamOptions configures the shared client used for platform API and
// page fetches.
type UpstreamOptions struct {
	// Timeout bounds a whole logical request including retries.
	Timeout        time.Duration
	MaxRetries     int
	Backoff        time.Duration
	MaxBackoff     time.Duration
	RetryStatuses  []int
	RateLimit      rate.Limit
	RateLimitBurst int
	UserAgent      string
	// Base overrides the underlying transport (tests).
	Base http.RoundTripper
}

const (
	defaultUpstreamTimeout = 8 * time.Second
	defaultRetries         = 3
	defaultBackoff         = 250 * time.Millisecond
	defaultMaxBackoff      = 2 * time.Second
	defaultRateLimit       = 10
	defaultRateLimitBurst  = 20
)

// DefaultRetryStatuses are the upstream statuses worth another attempt.
var DefaultRetryStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

func normalizeUpstreamOptions(opts UpstreamOptions) UpstreamOptions {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultUpstreamTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if len(opts.RetryStatuses) == 0 {
		opts.RetryStatuses = DefaultRetryStatuses
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}
	return opts
}

// NewUpstreamClient returns the shared outbound client: hardened transport,
// bounded retries with jittered backoff, a token-bucket limiter and OTel
// client spans. A MaxRetries of zero disables retries.
func NewUpstreamClient(opts UpstreamOptions) *http.Client {
	opts = normalizeUpstreamOptions(opts)
	base := opts.Base
	if base == nil {
		base = upstreamTransport(opts.Timeout)
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: otelhttp.NewTransport(newRetryTransport(base, opts)),
	}
}
