// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bilibili

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	xglog "github.com/ManuGH/assplayer/internal/log"
	"github.com/ManuGH/assplayer/internal/media"
	"github.com/ManuGH/assplayer/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
)

// Playurl parameters: 720P, progressive MP4 (fnval=0), html5 platform so the
// CDN serves a URL a browser can play without extra headers.
const (
	playQuality  = 64
	playFormat   = 0
	playPlatform = "html5"
)

type viewResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *struct {
		Bvid  string `json:"bvid"`
		Cid   int64  `json:"cid"`
		Title string `json:"title"`
	} `json:"data"`
}

type playURLResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *struct {
		Quality int `json:"quality"`
		Durl    []struct {
			URL       string   `json:"url"`
			BackupURL []string `json:"backup_url"`
			Size      int64    `json:"size"`
		} `json:"durl"`
	} `json:"data"`
}

// VideoInfo is the subset of the view API the resolver needs.
type VideoInfo struct {
	ShortID string
	Cid     int64
	Title   string
}

// PlayURL is the first progressive stream offered by the playurl API.
type PlayURL struct {
	URL     string
	Quality media.Quality
}

// APIClient resolves a page URL through the platform's public API.
type APIClient struct {
	http   *http.Client
	guard  URLGuard
	opts   Options
	logger zerolog.Logger
}

// NewAPIClient builds an API client sharing the given HTTP client.
func NewAPIClient(client *http.Client, guard URLGuard, opts Options) *APIClient {
	return &APIClient{
		http:   client,
		guard:  guard,
		opts:   opts.withDefaults(),
		logger: xglog.WithComponent("bilibili.api"),
	}
}

// Resolve runs view then playurl for the short ID embedded in pageURL. It
// never returns an error value: failures become NotFound or Error outcomes.
func (c *APIClient) Resolve(ctx context.Context, pageURL string) media.Outcome {
	ctx, span := telemetry.Tracer("assplayer.bilibili").Start(ctx, "assplayer.strategy.official_api")
	defer span.End()

	shortID, ok := ExtractShortID(pageURL)
	if !ok {
		span.SetAttributes(telemetry.StrategyAttributes(string(media.StrategyOfficialAPI), media.StatusNotFound.String())...)
		return media.NotFound()
	}
	logger := xglog.WithContext(ctx, c.logger).With().Str(xglog.FieldShortID, shortID).Logger()

	outcome := c.resolve(ctx, shortID)
	span.SetAttributes(telemetry.StrategyAttributes(string(media.StrategyOfficialAPI), outcome.Status.String())...)
	switch outcome.Status {
	case media.StatusError:
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, outcome.Err.Error())
		logger.Warn().Err(outcome.Err).Str(xglog.FieldEvent, "official_api.failed").Msg("official api failed")
	case media.StatusNotFound:
		logger.Debug().Str(xglog.FieldEvent, "official_api.not_found").Msg("official api returned no stream")
	case media.StatusBlocked:
		logger.Warn().Str(xglog.FieldEvent, "official_api.blocked").Msg("official api stream host blocked")
	}
	return outcome
}

func (c *APIClient) resolve(ctx context.Context, shortID string) media.Outcome {
	info, err := c.VideoInfo(ctx, shortID)
	if err != nil {
		return degrade(err)
	}
	play, err := c.PlayURL(ctx, shortID, info.Cid)
	if err != nil {
		return degrade(err)
	}
	if c.guard != nil && !c.guard.IsAllowed(ctx, play.URL) {
		return media.Blocked(play.URL)
	}
	return media.Found(media.Candidate{
		URL:      play.URL,
		Strategy: media.StrategyOfficialAPI,
		Quality:  play.Quality,
	})
}

func degrade(err error) media.Outcome {
	if errors.Is(err, ErrUnavailable) {
		return media.NotFound()
	}
	return media.Failed(err)
}

// VideoInfo calls the view API. A non-zero code or a zero cid is ErrUnavailable.
func (c *APIClient) VideoInfo(ctx context.Context, shortID string) (VideoInfo, error) {
	const op = "view"
	q := url.Values{}
	q.Set("bvid", shortID)

	body, err := getBody(ctx, c.http, op, c.opts.APIBase+"/x/web-interface/view?"+q.Encode(), c.opts, "application/json", maxAPIBody)
	if err != nil {
		return VideoInfo{}, err
	}
	var resp viewResponse
	if err := decodeJSON(op, body, &resp); err != nil {
		return VideoInfo{}, err
	}
	if resp.Code != 0 {
		return VideoInfo{}, &APIError{Op: op, Code: resp.Code, Message: resp.Message, Err: ErrUnavailable}
	}
	if resp.Data == nil || resp.Data.Cid == 0 {
		return VideoInfo{}, &APIError{Op: op, Message: "missing cid", Err: ErrUnavailable}
	}
	return VideoInfo{ShortID: shortID, Cid: resp.Data.Cid, Title: resp.Data.Title}, nil
}

// PlayURL calls the playurl API and returns the first progressive URL.
func (c *APIClient) PlayURL(ctx context.Context, shortID string, cid int64) (PlayURL, error) {
	const op = "playurl"
	q := url.Values{}
	q.Set("bvid", shortID)
	q.Set("cid", strconv.FormatInt(cid, 10))
	q.Set("qn", strconv.Itoa(playQuality))
	q.Set("fnval", strconv.Itoa(playFormat))
	q.Set("platform", playPlatform)

	body, err := getBody(ctx, c.http, op, c.opts.APIBase+"/x/player/playurl?"+q.Encode(), c.opts, "application/json", maxAPIBody)
	if err != nil {
		return PlayURL{}, err
	}
	var resp playURLResponse
	if err := decodeJSON(op, body, &resp); err != nil {
		return PlayURL{}, err
	}
	if resp.Code != 0 {
		return PlayURL{}, &APIError{Op: op, Code: resp.Code, Message: resp.Message, Err: ErrUnavailable}
	}
	if resp.Data == nil || len(resp.Data.Durl) == 0 || resp.Data.Durl[0].URL == "" {
		return PlayURL{}, &APIError{Op: op, Message: "empty durl", Err: ErrUnavailable}
	}

	raw := resp.Data.Durl[0].URL
	quality := media.InferQuality(raw)
	if quality == media.QualityUnknown {
		quality = media.QualityFromID(resp.Data.Quality)
	}
	return PlayURL{URL: raw, Quality: quality}, nil
}
