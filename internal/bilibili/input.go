// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bilibili

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	pnet "github.com/ManuGH/assplayer/internal/platform/net"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/width"
)

// PlatformDomain is the registrable domain every accepted page URL must share.
const PlatformDomain = "bilibili.com"

// CanonicalVideoBase prefixes a short ID to form the canonical page URL.
const CanonicalVideoBase = "https://www.bilibili.com/video/"

// ErrMalformedInput is returned for input that is neither a short ID nor a
// URL on the platform domain.
var ErrMalformedInput = errors.New("malformed input")

var (
	shortIDPattern      = regexp.MustCompile(`BV[a-zA-Z0-9]{10}`)
	exactShortIDPattern = regexp.MustCompile(`^BV[a-zA-Z0-9]{10}$`)
)

// Input is a normalized resolution request.
type Input struct {
	// ShortID is empty for platform pages without a video ID (e.g. episode pages).
	ShortID string
	// PageURL is the canonical page to fetch.
	PageURL string
	// CacheKey is ShortID when present, PageURL otherwise.
	CacheKey string
}

// ExtractShortID returns the first short ID embedded in s.
func ExtractShortID(s string) (string, bool) {
	id := shortIDPattern.FindString(s)
	return id, id != ""
}

// IsPlatformHost reports whether host belongs to the platform domain.
func IsPlatformHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == PlatformDomain {
		return true
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return false
	}
	return etld1 == PlatformDomain
}

// NormalizeInput turns a bare short ID or a platform URL into an Input. A bare
// ID and any URL embedding the same ID normalize identically. It performs no
// network I/O.
func NormalizeInput(raw string) (Input, error) {
	s := width.Fold.String(strings.TrimSpace(raw))
	if s == "" {
		return Input{}, fmt.Errorf("%w: empty input", ErrMalformedInput)
	}
	if exactShortIDPattern.MatchString(s) {
		return forShortID(s), nil
	}

	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return Input{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return Input{}, fmt.Errorf("%w: unsupported scheme %q", ErrMalformedInput, u.Scheme)
	}
	host, err := pnet.NormalizeHost(u.Hostname())
	if err != nil {
		return Input{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if !IsPlatformHost(host) {
		return Input{}, fmt.Errorf("%w: %s is not a %s host", ErrMalformedInput, host, PlatformDomain)
	}

	if id, ok := ExtractShortID(u.Path); ok {
		return forShortID(id), nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	page := "https://" + host + path
	return Input{PageURL: page, CacheKey: page}, nil
}

func forShortID(id string) Input {
	return Input{ShortID: id, PageURL: CanonicalVideoBase + id, CacheKey: id}
}
