// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import "strings"

// Quality is a platform quality tier. The numeric values are the platform's
// own quality ids (qn) so API responses map directly.
type Quality int

const (
	QualityUnknown Quality = 0
	Quality360P    Quality = 16
	Quality480P    Quality = 32
	Quality720P    Quality = 64
	Quality720P60  Quality = 74
	Quality1080P   Quality = 80
	Quality1080PP  Quality = 112
	Quality1080P60 Quality = 116
	Quality4K      Quality = 120
	QualityHDR     Quality = 125
	QualityDolby   Quality = 126
	Quality8K      Quality = 127
)

var qualityNames = map[Quality]string{
	Quality360P:    "360P",
	Quality480P:    "480P",
	Quality720P:    "720P",
	Quality720P60:  "720P60",
	Quality1080P:   "1080P",
	Quality1080PP:  "1080P+",
	Quality1080P60: "1080P60",
	Quality4K:      "4K",
	QualityHDR:     "HDR",
	QualityDolby:   "Dolby Vision",
	Quality8K:      "8K",
}

func (q Quality) String() string {
	if name, ok := qualityNames[q]; ok {
		return name
	}
	return "unknown"
}

// QualityFromID maps a platform quality id to a tier, Unknown if unmapped.
func QualityFromID(id int) Quality {
	q := Quality(id)
	if _, ok := qualityNames[q]; ok {
		return q
	}
	return QualityUnknown
}

// URL markers the platform CDN uses for stream tiers, matched against the
// file name so numeric query values (deadlines, ids) do not trigger them.
var qualityMarkers = []struct {
	markers []string
	quality Quality
}{
	{[]string{"-120.m4s", "-30120."}, Quality4K},
	{[]string{"-116.m4s", "-30116."}, Quality1080P60},
	{[]string{"-112.m4s", "-30112."}, Quality1080PP},
	{[]string{"-80.m4s", "-30080."}, Quality1080P},
	{[]string{"-74.m4s", "-30074."}, Quality720P60},
	{[]string{"-192.mp4", "bw=1737943", "-64.m4s", "-30064."}, Quality720P},
	{[]string{"-32.m4s", "-30032."}, Quality480P},
	{[]string{"-16.m4s", "-30016."}, Quality360P},
}

// InferQuality guesses the tier from URL substrings. It is a best-effort
// label only.
func InferQuality(rawURL string) Quality {
	for _, m := range qualityMarkers {
		for _, marker := range m.markers {
			if strings.Contains(rawURL, marker) {
				return m.quality
			}
		}
	}
	return QualityUnknown
}
