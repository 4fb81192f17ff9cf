// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferQuality(t *testing.T) {
	cases := []struct {
		url  string
		want Quality
	}{
		{"https://upos-sz-mirrorcos.bilivideo.com/ugcfx2lf/n123-192.mp4?e=1", Quality720P},
		{"https://cdn.example.com/v.mp4?bw=1737943", Quality720P},
		{"https://cdn.example.com/12345-1-30080.m4s", Quality1080P},
		{"https://cdn.example.com/12345-1-80.m4s", Quality1080P},
		{"https://cdn.example.com/12345-1-30064.m4s", Quality720P},
		{"https://cdn.example.com/12345-1-32.m4s", Quality480P},
		{"https://cdn.example.com/12345-1-16.m4s", Quality360P},
		{"https://cdn.example.com/12345-1-116.m4s", Quality1080P60},
		{"https://cdn.example.com/12345-1-30120.m4s", Quality4K},
		{"https://cdn.example.com/video.mp4", QualityUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, InferQuality(tc.url), tc.url)
	}
}

func TestQualityNames(t *testing.T) {
	assert.Equal(t, "720P", Quality720P.String())
	assert.Equal(t, "1080P+", Quality1080PP.String())
	assert.Equal(t, "unknown", QualityUnknown.String())
	assert.Equal(t, "unknown", Quality(999).String())
}

func TestQualityFromID(t *testing.T) {
	assert.Equal(t, Quality1080P, QualityFromID(80))
	assert.Equal(t, Quality8K, QualityFromID(127))
	assert.Equal(t, QualityUnknown, QualityFromID(7))
}

func TestOutcomeConstructors(t *testing.T) {
	c := Candidate{URL: "https://cdn.example.com/a.mp4", Strategy: StrategyOfficialAPI}
	assert.True(t, Found(c).OK())
	assert.False(t, NotFound().OK())
	assert.False(t, Blocked("http://127.0.0.1/").OK())
	assert.Equal(t, "blocked", Blocked("x").Status.String())
	assert.Equal(t, "not_found", NotFound().Status.String())
	assert.Equal(t, "error", Failed(assert.AnError).Status.String())
}

func TestInferQualityIgnoresQueryDigits(t *testing.T) {
	assert.Equal(t, QualityUnknown, InferQuality("https://cdn.example.com/v.mp4?deadline=1730080000"))
}
