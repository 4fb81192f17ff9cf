// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cdn

import (
	"net/url"
	"strings"
)

// DefaultDomesticHost is used when no measured domestic host is known.
const DefaultDomesticHost = "upos-sz-estgcos.bilivideo.com"

// Policy is the keyword heuristic that decides which hosts get rewritten.
// Keywords are matched as case-insensitive substrings of the hostname.
type Policy struct {
	DomesticKeywords []string
	ForeignKeywords  []string
	DefaultHost      string
}

// DefaultPolicy returns the built-in keyword sets.
func DefaultPolicy() Policy {
	return Policy{
		DomesticKeywords: []string{"bilivideo.com", "bilivideo.cn", "hdslb.com"},
		ForeignKeywords:  []string{"akamaized.net", "akamai", "cloudfront.net", "fastly", "edgesuite.net", "llnwd.net", "cdn77"},
		DefaultHost:      DefaultDomesticHost,
	}
}

func (p Policy) normalized() Policy {
	out := Policy{
		DomesticKeywords: lowerAll(p.DomesticKeywords),
		ForeignKeywords:  lowerAll(p.ForeignKeywords),
		DefaultHost:      strings.ToLower(strings.TrimSpace(p.DefaultHost)),
	}
	if out.DefaultHost == "" {
		out.DefaultHost = DefaultDomesticHost
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Class is the keyword classification of a hostname.
type Class int

const (
	ClassUnmatched Class = iota
	ClassDomestic
	ClassForeign
)

func (c Class) String() string {
	switch c {
	case ClassDomestic:
		return "domestic"
	case ClassForeign:
		return "foreign"
	default:
		return "unmatched"
	}
}

// Classify matches host against the keyword sets. Domestic wins on overlap.
func (p Policy) Classify(host string) Class {
	host = strings.ToLower(host)
	for _, k := range p.DomesticKeywords {
		if strings.Contains(host, k) {
			return ClassDomestic
		}
	}
	for _, k := range p.ForeignKeywords {
		if strings.Contains(host, k) {
			return ClassForeign
		}
	}
	return ClassUnmatched
}

// regionParamFor derives the backend-region query value for a domestic host.
func regionParamFor(host string) string {
	host = strings.ToLower(host)
	switch {
	case strings.Contains(host, "08c"):
		return "08cbv"
	case strings.Contains(host, "cos"):
		return "cosbv"
	case strings.Contains(host, "ali"):
		return "alibv"
	case strings.Contains(host, "hw"):
		return "hwbv"
	default:
		return "upos"
	}
}

// replaceHost swaps the host of u and, when an os= parameter is present,
// updates it to match. All other query parameters keep their order and
// encoding.
func replaceHost(u *url.URL, host string) string {
	out := *u
	out.Host = host
	if out.RawQuery != "" {
		parts := strings.Split(out.RawQuery, "&")
		for i, part := range parts {
			if part == "os" || strings.HasPrefix(part, "os=") {
				parts[i] = "os=" + regionParamFor(host)
			}
		}
		out.RawQuery = strings.Join(parts, "&")
	}
	return out.String()
}
