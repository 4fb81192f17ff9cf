// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	xglog "github.com/ManuGH/assplayer/internal/log"
	"github.com/ManuGH/assplayer/internal/media"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

const playInfoMarker = "window.__playinfo__"

var (
	// Applied to the full document when the script scan finds nothing.
	playInfoDocPattern = regexp.MustCompile(`(?s)window\.__playinfo__\s*=\s*(\{.+?\})\s*</script>`)
	// Applied to the text of a single <script> element.
	playInfoScriptPattern = regexp.MustCompile(`(?s)window\.__playinfo__\s*=\s*(\{.+\})\s*;?\s*$`)

	mp4Patterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)"url"\s*:\s*"(https?://[^"]+?\.mp4[^"]*)"`),
		regexp.MustCompile(`(?i)src\s*=\s*"(https?://[^"]+?\.mp4[^"]*)"`),
		regexp.MustCompile(`(?i)href\s*=\s*"(https?://[^"]+?\.mp4[^"]*)"`),
		regexp.MustCompile(`(?i)https?://[^\s"'<>]+\.mp4(?:[^\s"'<>]*)`),
	}
)

type dashStream struct {
	ID        int      `json:"id"`
	BaseURL   string   `json:"baseUrl"`
	BaseURLv2 string   `json:"base_url"`
	BackupURL []string `json:"backupUrl"`
}

func (s dashStream) url() string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	return s.BaseURLv2
}

type playInfoData struct {
	Quality int `json:"quality"`
	Dash    *struct {
		Video []dashStream `json:"video"`
	} `json:"dash"`
	Durl []struct {
		URL string `json:"url"`
	} `json:"durl"`
}

type playInfo struct {
	Data   *playInfoData `json:"data"`
	Result *playInfoData `json:"result"`
}

func (p playInfo) payload() *playInfoData {
	if p.Data != nil {
		return p.Data
	}
	return p.Result
}

// ExtractorOptions configures the HTML strategies.
type ExtractorOptions struct {
	// BruteSearch enables the page-wide .mp4 scan. Off by default.
	BruteSearch bool
	// PreferredQuality is the DASH stream id tried first.
	PreferredQuality media.Quality
}

// Extractor finds media URLs in a fetched video page.
type Extractor struct {
	guard     URLGuard
	preferred media.Quality
	brute     atomic.Bool
	logger    zerolog.Logger
}

// NewExtractor builds an extractor; guard may be nil in tests.
func NewExtractor(guard URLGuard, opts ExtractorOptions) *Extractor {
	if opts.PreferredQuality == media.QualityUnknown {
		opts.PreferredQuality = media.Quality720P
	}
	e := &Extractor{
		guard:     guard,
		preferred: opts.PreferredQuality,
		logger:    xglog.WithComponent("bilibili.extract"),
	}
	e.brute.Store(opts.BruteSearch)
	return e
}

// SetBruteSearch toggles the brute-force strategy at runtime.
func (e *Extractor) SetBruteSearch(enabled bool) { e.brute.Store(enabled) }

// BruteSearchEnabled reports the current brute-force setting.
func (e *Extractor) BruteSearchEnabled() bool { return e.brute.Load() }

// ExtractFromHTML tries the embedded player JSON, then the brute search when
// enabled. Blocked candidates are skipped, not returned.
func (e *Extractor) ExtractFromHTML(ctx context.Context, page string) media.Outcome {
	out := e.FromPlayInfo(ctx, page)
	if out.OK() || !e.BruteSearchEnabled() {
		return out
	}
	return e.SearchMP4(ctx, page)
}

// FromPlayInfo reads window.__playinfo__ and picks the preferred DASH stream,
// else the highest DASH id, else the first progressive URL.
func (e *Extractor) FromPlayInfo(ctx context.Context, page string) media.Outcome {
	raw, ok := findPlayInfo(page)
	if !ok {
		return media.NotFound()
	}
	info, err := decodePlayInfo(raw)
	if err != nil {
		e.logger.Debug().Err(err).Str(xglog.FieldEvent, "extract.playinfo_invalid").Msg("embedded player json not decodable")
		return media.NotFound()
	}
	data := info.payload()
	if data == nil {
		return media.NotFound()
	}
	return e.pick(ctx, media.StrategyEmbeddedJSON, e.rankPlayInfo(data))
}

// SearchMP4 scans the whole document for absolute .mp4 URLs.
func (e *Extractor) SearchMP4(ctx context.Context, page string) media.Outcome {
	text := html.UnescapeString(page)
	seen := make(map[string]struct{})
	var found []media.Candidate
	for _, re := range mp4Patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			u := m[0]
			if len(m) > 1 {
				u = m[1]
			}
			u = repairSlashes(u)
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			found = append(found, media.Candidate{URL: u, Quality: media.InferQuality(u)})
		}
	}
	return e.pick(ctx, media.StrategyBruteSearch, found)
}

func (e *Extractor) rankPlayInfo(data *playInfoData) []media.Candidate {
	var out []media.Candidate
	if data.Dash != nil && len(data.Dash.Video) > 0 {
		streams := make([]dashStream, 0, len(data.Dash.Video))
		for _, s := range data.Dash.Video {
			if s.url() != "" {
				streams = append(streams, s)
			}
		}
		sort.SliceStable(streams, func(i, j int) bool {
			pi, pj := streams[i].ID == int(e.preferred), streams[j].ID == int(e.preferred)
			if pi != pj {
				return pi
			}
			return streams[i].ID > streams[j].ID
		})
		for _, s := range streams {
			out = append(out, media.Candidate{URL: repairSlashes(s.url()), Quality: media.QualityFromID(s.ID)})
		}
	}
	if len(data.Durl) > 0 && data.Durl[0].URL != "" {
		u := repairSlashes(data.Durl[0].URL)
		q := media.InferQuality(u)
		if q == media.QualityUnknown {
			q = media.QualityFromID(data.Quality)
		}
		out = append(out, media.Candidate{URL: u, Quality: q})
	}
	return out
}

// pick returns the first candidate the guard allows.
func (e *Extractor) pick(ctx context.Context, strategy media.Strategy, candidates []media.Candidate) media.Outcome {
	if len(candidates) == 0 {
		return media.NotFound()
	}
	var blocked string
	for _, c := range candidates {
		if e.guard != nil && !e.guard.IsAllowed(ctx, c.URL) {
			if blocked == "" {
				blocked = c.URL
			}
			continue
		}
		c.Strategy = strategy
		return media.Found(c)
	}
	return media.Blocked(blocked)
}

func findPlayInfo(page string) (string, bool) {
	if !strings.Contains(page, playInfoMarker) {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err == nil {
		var raw string
		doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := s.Text()
			if !strings.Contains(text, playInfoMarker) {
				return true
			}
			if m := playInfoScriptPattern.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
				raw = m[1]
				return false
			}
			return true
		})
		if raw != "" {
			return raw, true
		}
	}
	if m := playInfoDocPattern.FindStringSubmatch(page); m != nil {
		return m[1], true
	}
	return "", false
}

// decodePlayInfo allows one repair pass for escaped slashes.
func decodePlayInfo(raw string) (playInfo, error) {
	var info playInfo
	err := json.Unmarshal([]byte(raw), &info)
	if err == nil {
		return info, nil
	}
	repaired := repairSlashes(raw)
	if repaired == raw {
		return playInfo{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	info = playInfo{}
	if err := json.Unmarshal([]byte(repaired), &info); err != nil {
		return playInfo{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return info, nil
}

func repairSlashes(s string) string {
	return strings.ReplaceAll(s, `\u002F`, "/")
}
