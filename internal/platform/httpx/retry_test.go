// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package httpx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/time/rate"
)

func fastOptions(retries int) UpstreamOptions {
	return UpstreamOptions{
		Timeout:        2 * time.Second,
		MaxRetries:     retries,
		Backoff:        time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		RateLimit:      rate.Inf,
		RateLimitBurst: 1,
		UserAgent:      "assplayer-test",
	}
}

func TestUpstreamClient_RetriesOnRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "assplayer-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := NewUpstreamClient(fastOptions(3))
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, calls.Load())
}

func TestUpstreamClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewUpstreamClient(fastOptions(3))
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.EqualValues(t, 4, calls.Load(), "one attempt plus three retries")
}

func TestUpstreamClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	resp, err := NewUpstreamClient(fastOptions(3)).Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.EqualValues(t, 1, calls.Load())
}

func TestUpstreamClient_InternalServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	resp, err := NewUpstreamClient(fastOptions(3)).Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.EqualValues(t, 1, calls.Load())
}

func TestUpstreamClient_PostIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewUpstreamClient(fastOptions(3))
	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("x"))
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.EqualValues(t, 1, calls.Load())
}

func TestUpstreamClient_TimeoutBoundsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	opts := fastOptions(50)
	opts.Timeout = 150 * time.Millisecond
	opts.Backoff = 40 * time.Millisecond
	opts.MaxBackoff = 40 * time.Millisecond

	start := time.Now()
	resp, err := NewUpstreamClient(opts).Get(srv.URL)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUpstreamClient_ContextCancelStopsRetrying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	opts := fastOptions(10)
	opts.Backoff = 200 * time.Millisecond
	opts.MaxBackoff = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := NewUpstreamClient(opts).Do(req)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.Error(t, err)
}

func TestBackoffForIsCapped(t *testing.T) {
	tr := newRetryTransport(http.DefaultTransport, normalizeUpstreamOptions(UpstreamOptions{
		Backoff:    100 * time.Millisecond,
		MaxBackoff: 300 * time.Millisecond,
	}))
	for attempt := 0; attempt < 6; attempt++ {
		got := tr.backoffFor(attempt)
		assert.LessOrEqual(t, got, 300*time.Millisecond+60*time.Millisecond)
		assert.GreaterOrEqual(t, got, 100*time.Millisecond)
	}
}

func TestRetryAfterHeader(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	assert.Zero(t, retryAfter(resp))
	resp.Header.Set("Retry-After", "2")
	assert.Equal(t, 2*time.Second, retryAfter(resp))
	resp.Header.Set("Retry-After", "Wed, 21 Oct 2015 07:28:00 GMT")
	assert.Zero(t, retryAfter(resp))
	assert.Zero(t, retryAfter(nil))
}

func TestAttemptOutcome(t *testing.T) {
	tests := []struct {
		err    error
		status int
		want   string
	}{
		{err: context.Canceled, want: "canceled"},
		{err: fmt.Errorf("dial: %w", context.DeadlineExceeded), want: "timeout"},
		{err: &net.DNSError{Err: "i/o timeout", IsTimeout: true}, want: "timeout"},
		{err: errors.New("connection reset"), want: "transport_error"},
		{status: 204, want: "ok"},
		{status: 302, want: "redirect"},
		{status: 412, want: "client_error"},
		{status: 429, want: "throttled"},
		{status: 503, want: "server_error"},
		{want: "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, attemptOutcome(tt.err, tt.status), "err=%v status=%d", tt.err, tt.status)
	}
}

func TestUpstreamClient_CountsRetriesByOutcome(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	host := strings.Split(strings.TrimPrefix(srv.URL, "http://"), ":")[0]
	retried := upstreamRetries.WithLabelValues(host, "server_error")
	succeeded := upstreamAttempts.WithLabelValues(host, "ok")
	beforeRetried, beforeOK := testutil.ToFloat64(retried), testutil.ToFloat64(succeeded)

	resp, err := NewUpstreamClient(fastOptions(2)).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, beforeRetried+1, testutil.ToFloat64(retried))
	assert.Equal(t, beforeOK+1, testutil.ToFloat64(succeeded))
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}
