// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resolver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ManuGH/assplayer/internal/bilibili"
	"github.com/ManuGH/assplayer/internal/cache"
	"github.com/ManuGH/assplayer/internal/cdn"
	"github.com/ManuGH/assplayer/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeAPI struct {
	calls   atomic.Int32
	outcome media.Outcome
	gate    chan struct{}
}

func (f *fakeAPI) Resolve(_ context.Context, _ string) media.Outcome {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.outcome
}

type fakePages struct {
	calls atomic.Int32
	body  string
	err   error
}

func (f *fakePages) FetchPage(_ context.Context, _ string) (string, error) {
	f.calls.Add(1)
	return f.body, f.err
}

type guardFunc func(string) bool

func (g guardFunc) IsAllowed(_ context.Context, u string) bool { return g(u) }

var allowAll = guardFunc(func(string) bool { return true })

func found(url string) media.Outcome {
	return media.Found(media.Candidate{URL: url, Strategy: media.StrategyOfficialAPI, Quality: media.Quality720P})
}

type harness struct {
	api   *fakeAPI
	pages *fakePages
	ext   *bilibili.Extractor
	cache *cache.ResolutionCache
	cdn   *cdn.Optimizer
	r     *Resolver
}

func newHarness(t *testing.T, api media.Outcome, page string, guard URLGuard) *harness {
	t.Helper()
	if guard == nil {
		guard = allowAll
	}
	c, err := cache.New(cache.Options{})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	h := &harness{
		api:   &fakeAPI{outcome: api},
		pages: &fakePages{body: page},
		ext:   bilibili.NewExtractor(guard, bilibili.ExtractorOptions{}),
		cache: c,
		cdn:   cdn.New(cdn.Options{}),
	}
	h.r = New(Deps{API: h.api, Pages: h.pages, Extractor: h.ext, Cache: h.cache, CDN: h.cdn, Guard: guard})
	return h
}

const playInfoPage = `<html><head><script>window.__playinfo__={"code":0,"data":{"dash":{"video":[
{"id":80,"baseUrl":"https://upos-sz-mirrorcos.bilivideo.com/v/279786-1-30080.m4s"},
{"id":64,"baseUrl":"https://upos-sz-mirrorcos.bilivideo.com/v/279786-1-30064.m4s"}]}}}</script></head></html>`

func TestResolve_OfficialAPIUnmatchedHostUnchanged(t *testing.T) {
	h := newHarness(t, found("https://cdn.example.com/video.mp4"), "", nil)

	res, err := h.r.Resolve(context.Background(), "BV1xx411c7mD")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/video.mp4", res.URL)
	assert.Equal(t, media.StrategyOfficialAPI, res.Strategy)
	assert.False(t, res.Cached)
	assert.False(t, res.Rewritten)
	assert.Equal(t, "BV1xx411c7mD", res.ShortID)
	assert.Zero(t, h.pages.calls.Load())
}

func TestResolve_ForeignHostRewrittenToDefault(t *testing.T) {
	h := newHarness(t, found("https://foo.akamaized.net/upgcxcode/v-192.mp4?os=akam&deadline=1"), "", nil)

	res, err := h.r.Resolve(context.Background(), "https://www.bilibili.com/video/BV1xx411c7mD")
	require.NoError(t, err)
	assert.Equal(t, "https://"+cdn.DefaultDomesticHost+"/upgcxcode/v-192.mp4?os=cosbv&deadline=1", res.URL)
	assert.True(t, res.Rewritten)
}

func TestResolve_RewrittenHostMustPassSafetyCheck(t *testing.T) {
	guard := guardFunc(func(u string) bool { return !strings.Contains(u, cdn.DefaultDomesticHost) })
	h := newHarness(t, found("https://foo.akamaized.net/v.mp4"), "", guard)

	res, err := h.r.Resolve(context.Background(), "BV1xx411c7mD")
	require.NoError(t, err)
	assert.Equal(t, "https://foo.akamaized.net/v.mp4", res.URL)
	assert.False(t, res.Rewritten)
}

func TestResolve_MalformedInputMakesNoCalls(t *testing.T) {
	h := newHarness(t, found("https://cdn.example.com/video.mp4"), playInfoPage, nil)

	for _, in := range []string{"https://example.com/video", "", "not a video"} {
		_, err := h.r.Resolve(context.Background(), in)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedInput)
	}
	assert.Zero(t, h.api.calls.Load())
	assert.Zero(t, h.pages.calls.Load())
}

func TestResolve_FallsBackToEmbeddedJSON(t *testing.T) {
	h := newHarness(t, media.NotFound(), playInfoPage, nil)

	res, err := h.r.Resolve(context.Background(), "BV1xx411c7mD")
	require.NoError(t, err)
	assert.Equal(t, media.StrategyEmbeddedJSON, res.Strategy)
	assert.Equal(t, media.Quality720P, res.Quality)
	assert.Equal(t, "https://upos-sz-mirrorcos.bilivideo.com/v/279786-1-30064.m4s", res.URL)
	assert.Equal(t, int32(1), h.api.calls.Load())
	assert.Equal(t, int32(1), h.pages.calls.Load())
}

func TestResolve_BlockedAndErrorOutcomesFallThrough(t *testing.T) {
	for _, out := range []media.Outcome{media.Blocked("https://10.0.0.1/v.mp4"), media.Failed(errors.New("timeout"))} {
		h := newHarness(t, out, playInfoPage, nil)
		res, err := h.r.Resolve(context.Background(), "BV1xx411c7mD")
		require.NoError(t, err)
		assert.Equal(t, media.StrategyEmbeddedJSON, res.Strategy)
	}
}

func TestResolve_PageWithoutShortIDSkipsAPI(t *testing.T) {
	h := newHarness(t, found("https://cdn.example.com/video.mp4"), playInfoPage, nil)

	res, err := h.r.Resolve(context.Background(), "https://www.bilibili.com/bangumi/play/ep12345")
	require.NoError(t, err)
	assert.Equal(t, media.StrategyEmbeddedJSON, res.Strategy)
	assert.Zero(t, h.api.calls.Load())
	assert.Equal(t, "https://www.bilibili.com/bangumi/play/ep12345", res.CacheKey)
}

func TestResolve_BruteSearchOnlyWhenEnabled(t *testing.T) {
	page := `<html><video src="https://media.example.com/clip.mp4"></video></html>`
	h := newHarness(t, media.NotFound(), page, nil)

	_, err := h.r.Resolve(context.Background(), "BV1xx411c7mD")
	assert.ErrorIs(t, err, ErrNotFound)

	h.ext.SetBruteSearch(true)
	res, err := h.r.Resolve(context.Background(), "BV1xx411c7mD")
	require.NoError(t, err)
	assert.Equal(t, media.StrategyBruteSearch, res.Strategy)
	assert.Equal(t, "https://media.example.com/clip.mp4", res.URL)
}

func TestResolve_PageFetchFailureIsNotFound(t *testing.T) {
	h := newHarness(t, media.NotFound(), "", nil)
	h.pages.err = errors.New("connection reset")

	_, err := h.r.Resolve(context.Background(), "BV1xx411c7mD")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_CacheHitSkipsStrategies(t *testing.T) {
	h := newHarness(t, found("https://cdn.example.com/video-192.mp4"), "", nil)
	ctx := context.Background()

	first, err := h.r.Resolve(ctx, "BV1xx411c7mD")
	require.NoError(t, err)
	second, err := h.r.Resolve(ctx, "https://m.bilibili.com/video/BV1xx411c7mD?p=1")
	require.NoError(t, err)

	assert.Equal(t, first.URL, second.URL)
	assert.True(t, second.Cached)
	assert.Equal(t, media.StrategyCache, second.Strategy)
	assert.Equal(t, media.Quality720P, second.Quality)
	assert.Equal(t, int32(1), h.api.calls.Load())
}

func TestResolve_ConcurrentCallsShareOneResolution(t *testing.T) {
	h := newHarness(t, found("https://cdn.example.com/video.mp4"), "", nil)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h.api.gate = make(chan struct{})
	h.r.deps.Cache = nil

	const n = 8
	var wg sync.WaitGroup
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.r.Resolve(context.Background(), "BV1xx411c7mD")
			if err == nil {
				results <- res.URL
			}
		}()
	}

	require.Eventually(t, func() bool { return h.api.calls.Load() == 1 }, testWait, testTick)
	close(h.api.gate)
	wg.Wait()
	close(results)

	count := 0
	for u := range results {
		assert.Equal(t, "https://cdn.example.com/video.mp4", u)
		count++
	}
	assert.Equal(t, n, count)
	assert.LessOrEqual(t, h.api.calls.Load(), int32(n))
}

func TestResolve_WithoutOptionalDeps(t *testing.T) {
	r := New(Deps{API: &fakeAPI{outcome: found("https://foo.akamaized.net/v.mp4")}})
	res, err := r.Resolve(context.Background(), "BV1xx411c7mD")
	require.NoError(t, err)
	assert.Equal(t, "https://foo.akamaized.net/v.mp4", res.URL)

	r = New(Deps{API: &fakeAPI{outcome: media.NotFound()}})
	_, err = r.Resolve(context.Background(), "BV1xx411c7mD")
	assert.ErrorIs(t, err, ErrNotFound)
}
