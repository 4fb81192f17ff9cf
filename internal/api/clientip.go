// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// trustedProxies decides whether forwarding headers are honoured.
type trustedProxies []netip.Prefix

func parseTrustedProxies(entries []string) trustedProxies {
	var out trustedProxies
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
		} else if a, err := netip.ParseAddr(e); err == nil {
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return out
}

func (t trustedProxies) trusts(remote string) bool {
	if len(t) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(hostOnly(remote))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP determines the originating IP address. X-Forwarded-For and
// X-Real-IP are only read when the peer is a trusted proxy.
func (t trustedProxies) clientIP(r *http.Request) string {
	if t.trusts(r.RemoteAddr) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
			return xr
		}
	}
	return hostOnly(r.RemoteAddr)
}

// rateKey is an httprate key function.
func (t trustedProxies) rateKey(r *http.Request) (string, error) {
	return t.clientIP(r), nil
}

func hostOnly(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err == nil && host != "" {
		return host
	}
	return remote
}
