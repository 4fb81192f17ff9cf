// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	// DefaultAPIBase is the public API origin.
	DefaultAPIBase = "https://api.bilibili.com"
	// DefaultReferer is sent on every request; the API rejects calls without it.
	DefaultReferer = "https://www.bilibili.com"
	// DefaultUserAgent mimics the mobile browser the player targets.
	DefaultUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1"

	maxAPIBody  = 1 << 20
	maxPageBody = 4 << 20
)

// URLGuard decides whether a discovered media URL may be used.
type URLGuard interface {
	IsAllowed(ctx context.Context, rawURL string) bool
}

// Options configures the platform HTTP calls.
type Options struct {
	APIBase   string
	Referer   string
	UserAgent string
}

func (o Options) withDefaults() Options {
	o.APIBase = strings.TrimRight(strings.TrimSpace(o.APIBase), "/")
	if o.APIBase == "" {
		o.APIBase = DefaultAPIBase
	}
	if o.Referer == "" {
		o.Referer = DefaultReferer
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}

func applyHeaders(req *http.Request, opts Options, accept string) {
	req.Header.Set("User-Agent", opts.UserAgent)
	req.Header.Set("Referer", opts.Referer)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
}

// getBody performs a GET and returns at most limit bytes of a 200 response.
func getBody(ctx context.Context, client *http.Client, op, rawURL string, opts Options, accept string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &APIError{Op: op, Err: fmt.Errorf("%w: %v", ErrUpstream, err)}
	}
	applyHeaders(req, opts, accept)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &APIError{Op: op, Err: fmt.Errorf("%w: %v", ErrUpstream, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &APIError{Op: op, Status: resp.StatusCode, Err: ErrUpstream}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, &APIError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("%w: read body: %v", ErrUpstream, err)}
	}
	return body, nil
}

func decodeJSON(op string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &APIError{Op: op, Err: fmt.Errorf("%w: %v", ErrBadResponse, err)}
	}
	return nil
}
