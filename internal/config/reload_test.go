// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestHolder(t *testing.T, body string) (*Holder, string) {
	t.Helper()
	path := writeConfig(t, body)
	loader := NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)
	return NewHolder(initial, loader), path
}

func TestHolder_ReloadSwapsAndNotifies(t *testing.T) {
	h, path := newTestHolder(t, "log:\n  level: info\n")
	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\nparser:\n  bruteSearch: true\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))

	assert.Equal(t, "debug", h.Get().Log.Level)
	select {
	case got := <-ch:
		assert.True(t, got.Parser.BruteSearch)
	default:
		t.Fatal("listener was not notified")
	}
}

func TestHolder_InvalidReloadKeepsCurrent(t *testing.T) {
	h, path := newTestHolder(t, "log:\n  level: info\n")

	require.NoError(t, os.WriteFile(path, []byte("parser:\n  timeout: 30s\n"), 0o600))
	err := h.Reload(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parser.timeout")
	assert.Equal(t, 8*time.Second, h.Get().Parser.Timeout)
}

func TestHolder_FullListenerIsSkipped(t *testing.T) {
	h, _ := newTestHolder(t, "")
	ch := make(chan AppConfig)
	h.RegisterListener(ch)
	require.NoError(t, h.Reload(context.Background()))
}

func TestHolder_GetReturnsCopy(t *testing.T) {
	h, _ := newTestHolder(t, "")
	cfg := h.Get()
	cfg.CDN.DomesticKeywords[0] = "mutated"
	assert.NotEqual(t, "mutated", h.Get().CDN.DomesticKeywords[0])
}

func TestHolder_WatcherReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h, path := newTestHolder(t, "log:\n  level: info\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))
	defer h.Stop()

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0o600))
	assert.Eventually(t, func() bool { return h.Get().Log.Level == "error" }, 5*time.Second, 20*time.Millisecond)
}

func TestHolder_WatcherDisabledWithoutFile(t *testing.T) {
	cfg, err := NewLoader("", "").Load()
	require.NoError(t, err)
	h := NewHolder(cfg, NewLoader("", ""))
	require.NoError(t, h.StartWatcher(context.Background()))
	h.Stop()
}

func TestRestartRequired(t *testing.T) {
	base := Defaults()
	base.Server.TrustedProxies = []string{"10.0.0.0/8"}

	tests := []struct {
		name   string
		mutate func(*AppConfig)
		want   bool
	}{
		{name: "unchanged", mutate: func(*AppConfig) {}, want: false},
		{name: "log level only", mutate: func(c *AppConfig) { c.Log.Level = "debug" }, want: false},
		{name: "brute search only", mutate: func(c *AppConfig) { c.Parser.BruteSearch = !c.Parser.BruteSearch }, want: false},
		{name: "port", mutate: func(c *AppConfig) { c.Server.Port++ }, want: true},
		{name: "trusted proxy added", mutate: func(c *AppConfig) {
			c.Server.TrustedProxies = append(c.Server.TrustedProxies, "192.168.0.1")
		}, want: true},
		{name: "trusted proxies cleared", mutate: func(c *AppConfig) { c.Server.TrustedProxies = nil }, want: true},
		{name: "cache ttl", mutate: func(c *AppConfig) { c.Cache.TTL += time.Minute }, want: true},
		{name: "storage path", mutate: func(c *AppConfig) { c.Storage.Path = "/elsewhere.db" }, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := base.Clone()
			tt.mutate(&next)
			assert.Equal(t, tt.want, restartRequired(base, next))
		})
	}
}
