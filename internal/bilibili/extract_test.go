// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bilibili

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ManuGH/assplayer/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pageWithPlayInfo(payload string) string {
	return `<!DOCTYPE html><html><head><title>demo</title>
<script>window.__INITIAL_STATE__={"bvid":"BV1xx411c7mD"};</script>
<script>window.__playinfo__=` + payload + `</script>
</head><body><div id="app"></div></body></html>`
}

func dashPayload(ids ...int) string {
	streams := make([]string, 0, len(ids))
	for _, id := range ids {
		streams = append(streams, fmt.Sprintf(`{"id":%d,"baseUrl":"https://cn-gdfs-ct-01-01.bilivideo.com/v/%d/279786-1-300%d.m4s"}`, id, id, id))
	}
	return `{"code":0,"data":{"quality":80,"dash":{"video":[` + strings.Join(streams, ",") + `]}}}`
}

func TestExtractor_FromPlayInfo_PrefersConfiguredQuality(t *testing.T) {
	e := NewExtractor(allowAll(), ExtractorOptions{})
	out := e.FromPlayInfo(context.Background(), pageWithPlayInfo(dashPayload(80, 64, 32)))
	require.True(t, out.OK())
	assert.Equal(t, media.StrategyEmbeddedJSON, out.Candidate.Strategy)
	assert.Equal(t, media.Quality720P, out.Candidate.Quality)
	assert.Contains(t, out.Candidate.URL, "/v/64/")
}

func TestExtractor_FromPlayInfo_HighestWhenPreferredMissing(t *testing.T) {
	e := NewExtractor(allowAll(), ExtractorOptions{})
	out := e.FromPlayInfo(context.Background(), pageWithPlayInfo(dashPayload(32, 80, 16)))
	require.True(t, out.OK())
	assert.Equal(t, media.Quality1080P, out.Candidate.Quality)
	assert.Contains(t, out.Candidate.URL, "/v/80/")
}

func TestExtractor_FromPlayInfo_LegacyDurl(t *testing.T) {
	payload := `{"code":0,"data":{"quality":32,"durl":[{"url":"https://upos-sz-mirrorcos.bilivideo.com/a/b.flv"},{"url":"https://second/b.flv"}]}}`
	e := NewExtractor(allowAll(), ExtractorOptions{})
	out := e.FromPlayInfo(context.Background(), pageWithPlayInfo(payload))
	require.True(t, out.OK())
	assert.Equal(t, "https://upos-sz-mirrorcos.bilivideo.com/a/b.flv", out.Candidate.URL)
	assert.Equal(t, media.Quality480P, out.Candidate.Quality)
}

func TestExtractor_FromPlayInfo_ResultKeyAndSnakeCase(t *testing.T) {
	payload := `{"code":0,"result":{"dash":{"video":[{"id":64,"base_url":"https://upos-hz-mirrorakam.akamaized.net/v/64.m4s"}]}}}`
	e := NewExtractor(allowAll(), ExtractorOptions{})
	out := e.FromPlayInfo(context.Background(), pageWithPlayInfo(payload))
	require.True(t, out.OK())
	assert.Equal(t, "https://upos-hz-mirrorakam.akamaized.net/v/64.m4s", out.Candidate.URL)
}

func TestExtractor_FromPlayInfo_RepairsEscapedSlashes(t *testing.T) {
	// JSON text `\\u002F` decodes to a literal escape sequence in the URL.
	esc := `\\` + "u002F"
	payload := `{"code":0,"data":{"durl":[{"url":"https:` + esc + esc + `upos-sz-mirrorcos.bilivideo.com` + esc + `v.mp4"}]}}`
	e := NewExtractor(allowAll(), ExtractorOptions{})
	out := e.FromPlayInfo(context.Background(), pageWithPlayInfo(payload))
	require.True(t, out.OK())
	assert.Equal(t, "https://upos-sz-mirrorcos.bilivideo.com/v.mp4", out.Candidate.URL)
}

func TestExtractor_FromPlayInfo_SkipsBlockedCandidates(t *testing.T) {
	payload := `{"code":0,"data":{"dash":{"video":[
		{"id":64,"baseUrl":"https://internal.lan/v/64.m4s"},
		{"id":32,"baseUrl":"https://upos-sz-mirrorcos.bilivideo.com/v/32.m4s"}]}}}`
	e := NewExtractor(blockHost("internal.lan"), ExtractorOptions{})
	out := e.FromPlayInfo(context.Background(), pageWithPlayInfo(payload))
	require.True(t, out.OK())
	assert.Contains(t, out.Candidate.URL, "/v/32.m4s")

	e = NewExtractor(blockHost("/v/"), ExtractorOptions{})
	out = e.FromPlayInfo(context.Background(), pageWithPlayInfo(payload))
	assert.Equal(t, media.StatusBlocked, out.Status)
	assert.Equal(t, "https://internal.lan/v/64.m4s", out.Detail)
}

func TestExtractor_FromPlayInfo_NotFound(t *testing.T) {
	e := NewExtractor(allowAll(), ExtractorOptions{})
	pages := map[string]string{
		"no marker":    "<html><body>nothing</body></html>",
		"invalid json": pageWithPlayInfo(`{"data":`),
		"empty data":   pageWithPlayInfo(`{"code":0}`),
		"empty dash":   pageWithPlayInfo(`{"code":0,"data":{"dash":{"video":[]},"durl":[]}}`),
	}
	for name, page := range pages {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, media.StatusNotFound, e.FromPlayInfo(context.Background(), page).Status)
		})
	}
}

func TestExtractor_FromPlayInfo_UnterminatedScriptFallback(t *testing.T) {
	page := `<div>window.__playinfo__ = {"data":{"durl":[{"url":"https://a.bilivideo.com/x.mp4"}]}} </script>`
	e := NewExtractor(allowAll(), ExtractorOptions{})
	out := e.FromPlayInfo(context.Background(), page)
	require.True(t, out.OK())
	assert.Equal(t, "https://a.bilivideo.com/x.mp4", out.Candidate.URL)
}

func TestExtractor_BruteSearchDisabledByDefault(t *testing.T) {
	page := `<html><video src="https://cdn.example.com/clip.mp4"></video></html>`
	e := NewExtractor(allowAll(), ExtractorOptions{})
	assert.False(t, e.BruteSearchEnabled())
	assert.Equal(t, media.StatusNotFound, e.ExtractFromHTML(context.Background(), page).Status)

	e.SetBruteSearch(true)
	out := e.ExtractFromHTML(context.Background(), page)
	require.True(t, out.OK())
	assert.Equal(t, media.StrategyBruteSearch, out.Candidate.Strategy)
	assert.Equal(t, "https://cdn.example.com/clip.mp4", out.Candidate.URL)
}

func TestExtractor_ExtractFromHTML_EmbeddedWins(t *testing.T) {
	page := pageWithPlayInfo(dashPayload(64)) + `<a href="https://cdn.example.com/other.mp4">x</a>`
	e := NewExtractor(allowAll(), ExtractorOptions{BruteSearch: true})
	out := e.ExtractFromHTML(context.Background(), page)
	require.True(t, out.OK())
	assert.Equal(t, media.StrategyEmbeddedJSON, out.Candidate.Strategy)
}

func TestExtractor_SearchMP4(t *testing.T) {
	page := `<a href="https://cdn.example.com/a.mp4?x=1&amp;y=2">a</a>
<script>var cfg = {"url": "https://cdn.example.com/a.mp4?x=1&y=2"};</script>
<p>https://cdn2.example.com/b.MP4</p>`
	e := NewExtractor(blockHost("cdn.example.com"), ExtractorOptions{BruteSearch: true})
	out := e.SearchMP4(context.Background(), page)
	require.True(t, out.OK())
	assert.Equal(t, "https://cdn2.example.com/b.MP4", out.Candidate.URL)

	e = NewExtractor(allowAll(), ExtractorOptions{BruteSearch: true})
	out = e.SearchMP4(context.Background(), page)
	require.True(t, out.OK())
	assert.Equal(t, "https://cdn.example.com/a.mp4?x=1&y=2", out.Candidate.URL)

	out = e.SearchMP4(context.Background(), "<html>no media</html>")
	assert.Equal(t, media.StatusNotFound, out.Status)
}
