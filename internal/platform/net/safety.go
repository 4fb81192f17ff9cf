// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package net

import (
	"context"
	"fmt"
	stdnet "net"
	"net/netip"
	"net/url"
	"strings"
	"time"

	xglog "github.com/ManuGH/assplayer/internal/log"
	"github.com/rs/zerolog"
)

const defaultLookupTimeout = 2 * time.Second

// Reason explains a verdict. It doubles as the metric label.
type Reason string

const (
	ReasonPublic      Reason = "public"
	ReasonBlockedAddr Reason = "blocked_address"
	ReasonDNSFailure  Reason = "dns_failure"
	ReasonInvalidURL  Reason = "invalid_url"
	ReasonScheme      Reason = "scheme"
)

// Verdict is the per-call classification of a URL's host. It is never cached:
// DNS answers can change between calls.
type Verdict struct {
	Host    string
	Addrs   []netip.Addr
	Allowed bool
	Reason  Reason
	// Blocked is the first offending address when Reason is ReasonBlockedAddr.
	Blocked netip.Addr
	Err     error
}

// Resolver is the subset of *net.Resolver the checker needs.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// ObserveFunc receives every successful lookup. The CDN optimizer uses it to
// classify hosts by address without a second DNS round-trip.
type ObserveFunc func(host string, addrs []netip.Addr)

// HostSafetyChecker rejects URLs whose host resolves to an address that is
// not publicly routable. DNS failures are allowed through (fail-open) and
// logged; the upstream fetch will fail on its own if the name is bogus.
type HostSafetyChecker struct {
	resolver      Resolver
	observe       ObserveFunc
	lookupTimeout time.Duration
	logger        zerolog.Logger
}

// CheckerOption configures a HostSafetyChecker.
type CheckerOption func(*HostSafetyChecker)

// WithResolver replaces the system resolver, mainly for tests.
func WithResolver(r Resolver) CheckerOption {
	return func(c *HostSafetyChecker) {
		if r != nil {
			c.resolver = r
		}
	}
}

// WithObserver registers a callback for successful lookups.
func WithObserver(fn ObserveFunc) CheckerOption {
	return func(c *HostSafetyChecker) { c.observe = fn }
}

// WithLookupTimeout bounds each DNS lookup.
func WithLookupTimeout(d time.Duration) CheckerOption {
	return func(c *HostSafetyChecker) {
		if d > 0 {
			c.lookupTimeout = d
		}
	}
}

// NewHostSafetyChecker builds a checker backed by the system resolver.
func NewHostSafetyChecker(opts ...CheckerOption) *HostSafetyChecker {
	c := &HostSafetyChecker{
		resolver:      stdnet.DefaultResolver,
		lookupTimeout: defaultLookupTimeout,
		logger:        xglog.WithComponent("safety"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsAllowed reports whether rawURL may be handed out.
func (c *HostSafetyChecker) IsAllowed(ctx context.Context, rawURL string) bool {
	return c.Inspect(ctx, rawURL).Allowed
}

// Inspect parses rawURL, resolves its host and classifies every address.
// Any single blocked address blocks the URL.
func (c *HostSafetyChecker) Inspect(ctx context.Context, rawURL string) Verdict {
	v := c.inspect(ctx, rawURL)
	recordVerdict(v)
	return v
}

func (c *HostSafetyChecker) inspect(ctx context.Context, rawURL string) Verdict {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Verdict{Reason: ReasonInvalidURL, Err: fmt.Errorf("parse url: %w", err)}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return Verdict{Reason: ReasonScheme, Err: fmt.Errorf("scheme %q not allowed", u.Scheme)}
	}
	if u.Hostname() == "" {
		return Verdict{Reason: ReasonInvalidURL, Err: fmt.Errorf("missing url host")}
	}
	host, err := NormalizeHost(u.Hostname())
	if err != nil {
		return Verdict{Reason: ReasonInvalidURL, Err: err}
	}

	var addrs []netip.Addr
	if literal, err := netip.ParseAddr(host); err == nil {
		addrs = []netip.Addr{literal}
	} else {
		addrs, err = c.lookup(ctx, host)
		if err != nil {
			logger := xglog.WithContext(ctx, c.logger)
			logger.Warn().
				Err(err).
				Str(xglog.FieldEvent, "safety.dns_failed").
				Str(xglog.FieldHost, host).
				Msg("dns lookup failed, allowing host")
			return Verdict{Host: host, Allowed: true, Reason: ReasonDNSFailure, Err: err}
		}
		if c.observe != nil {
			c.observe(host, addrs)
		}
	}

	for _, addr := range addrs {
		if IsBlockedAddr(addr) {
			logger := xglog.WithContext(ctx, c.logger)
			logger.Warn().
				Str(xglog.FieldEvent, "safety.blocked").
				Str(xglog.FieldHost, host).
				Str("addr", addr.String()).
				Msg("host resolves to non-public address")
			return Verdict{Host: host, Addrs: addrs, Reason: ReasonBlockedAddr, Blocked: addr}
		}
	}
	return Verdict{Host: host, Addrs: addrs, Allowed: true, Reason: ReasonPublic}
}

func (c *HostSafetyChecker) lookup(ctx context.Context, host string) ([]netip.Addr, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	lookupCtx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()

	addrs, err := c.resolver.LookupNetIP(lookupCtx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("resolve host %q: %w", host, err)
	}
	out := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		if a.IsValid() {
			out = append(out, a.Unmap())
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("resolve host %q: no addresses", host)
	}
	return out, nil
}

var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("64:ff9b:1::/48"),
	netip.MustParsePrefix("100::/64"),
	netip.MustParsePrefix("2001::/23"),
	netip.MustParsePrefix("2001:db8::/32"),
	netip.MustParsePrefix("fec0::/10"),
}

// IsBlockedAddr reports whether addr is private, loopback, link-local,
// multicast, unspecified or in a reserved/documentation range.
func IsBlockedAddr(addr netip.Addr) bool {
	if !addr.IsValid() {
		return true
	}
	addr = addr.Unmap()
	if addr.IsPrivate() ||
		addr.IsLoopback() ||
		addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() {
		return true
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
