// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bilibili

import (
	"context"
	"net/http"
)

// PageFetcher downloads video pages with the headers the platform expects.
type PageFetcher struct {
	http *http.Client
	opts Options
}

// NewPageFetcher shares client with the API client.
func NewPageFetcher(client *http.Client, opts Options) *PageFetcher {
	return &PageFetcher{http: client, opts: opts.withDefaults()}
}

// FetchPage returns the page body, capped in size. Non-200 responses are errors.
func (f *PageFetcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	body, err := getBody(ctx, f.http, "page", pageURL, f.opts,
		"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8", maxPageBody)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
