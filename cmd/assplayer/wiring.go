// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/assplayer/internal/api"
	"github.com/ManuGH/assplayer/internal/bilibili"
	"github.com/ManuGH/assplayer/internal/cache"
	"github.com/ManuGH/assplayer/internal/cdn"
	"github.com/ManuGH/assplayer/internal/config"
	xglog "github.com/ManuGH/assplayer/internal/log"
	"github.com/ManuGH/assplayer/internal/media"
	"github.com/ManuGH/assplayer/internal/persistence/sqlite"
	"github.com/ManuGH/assplayer/internal/platform/httpx"
	pnet "github.com/ManuGH/assplayer/internal/platform/net"
	"github.com/ManuGH/assplayer/internal/resolver"
	"golang.org/x/time/rate"
)

// services is the wired resolver subsystem shared by serve and resolve.
type services struct {
	resolver  *resolver.Resolver
	optimizer *cdn.Optimizer
	extractor *bilibili.Extractor
	health    map[string]api.HealthFunc

	closers []func() error
}

func (s *services) onClose(fn func() error) { s.closers = append(s.closers, fn) }

// Close releases resources in reverse order of acquisition.
func (s *services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// applyRuntime pushes the hot-reloadable settings into running components.
func (s *services) applyRuntime(cfg config.AppConfig) {
	xglog.SetLevel(cfg.Log.Level)
	s.optimizer.SetPolicy(policyFrom(cfg.CDN))
	s.extractor.SetBruteSearch(cfg.Parser.BruteSearch)
}

func policyFrom(c config.CDNConfig) cdn.Policy {
	return cdn.Policy{
		DomesticKeywords: c.DomesticKeywords,
		ForeignKeywords:  c.ForeignKeywords,
		DefaultHost:      c.DefaultHost,
	}
}

func buildServices(ctx context.Context, cfg config.AppConfig) (_ *services, err error) {
	logger := xglog.WithComponent("wiring")
	s := &services{health: make(map[string]api.HealthFunc)}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	var (
		sqlStore *sqlite.Store
		cdnStore cdn.Store
	)
	switch cfg.Storage.Backend {
	case config.StorageBackendSQLite:
		if err := ensureParentDir(cfg.Storage.Path); err != nil {
			return nil, err
		}
		sqlStore, err = sqlite.OpenStore(cfg.Storage.Path, sqlite.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s.onClose(sqlStore.Close)
		s.health["storage"] = sqlStore.Ping
		cdnStore = sqlStore
	case config.StorageBackendFile:
		if err := ensureParentDir(cfg.Storage.Path); err != nil {
			return nil, err
		}
		cdnStore = cdn.NewFileStore(cfg.Storage.Path)
	}

	var geo *cdn.GeoIP
	if cfg.CDN.GeoIP.Path != "" {
		geo, err = cdn.NewGeoIP(cdn.GeoIPConfig{
			Path:              cfg.CDN.GeoIP.Path,
			ReloadSchedule:    cfg.CDN.GeoIP.ReloadSchedule,
			DomesticCountries: cfg.CDN.GeoIP.DomesticCountries,
		})
		if err != nil {
			return nil, fmt.Errorf("open geoip: %w", err)
		}
		geo.Start()
		s.onClose(func() error { geo.Stop(); return nil })
	}

	s.optimizer = cdn.New(cdn.Options{Policy: policyFrom(cfg.CDN), Store: cdnStore, GeoIP: geo})
	if err := s.optimizer.Load(ctx); err != nil {
		return nil, fmt.Errorf("load cdn stats: %w", err)
	}

	guard := pnet.NewHostSafetyChecker(pnet.WithObserver(s.optimizer.Observe))
	client := httpx.NewUpstreamClient(httpx.UpstreamOptions{
		Timeout:    cfg.Parser.Timeout,
		MaxRetries: cfg.Parser.Retries,
		RateLimit:  rate.Limit(cfg.Parser.UpstreamRPS),
		UserAgent:  cfg.Parser.UserAgent,
	})
	bopts := bilibili.Options{
		APIBase:   cfg.Parser.APIBase,
		Referer:   cfg.Parser.Referer,
		UserAgent: cfg.Parser.UserAgent,
	}
	s.extractor = bilibili.NewExtractor(guard, bilibili.ExtractorOptions{
		BruteSearch:      cfg.Parser.BruteSearch,
		PreferredQuality: media.QualityFromID(cfg.Parser.PreferredQuality),
	})

	deps := resolver.Deps{
		API:       bilibili.NewAPIClient(client, guard, bopts),
		Pages:     bilibili.NewPageFetcher(client, bopts),
		Extractor: s.extractor,
		CDN:       s.optimizer,
		Guard:     guard,
	}

	if cfg.Cache.Enabled {
		durable, err := s.durableTier(cfg, sqlStore)
		if err != nil {
			return nil, err
		}
		rc, err := cache.New(cache.Options{
			TTL:        cfg.Cache.TTL,
			MaxEntries: cfg.Cache.MaxEntries,
			Durable:    durable,
		})
		if err != nil {
			return nil, fmt.Errorf("build cache: %w", err)
		}
		s.onClose(func() error { rc.Close(); return nil })
		deps.Cache = rc
	}

	s.resolver = resolver.New(deps)

	logger.Info().
		Str("storage", cfg.Storage.Backend).
		Bool("cache", cfg.Cache.Enabled).
		Str("cache_backend", cfg.Cache.Backend).
		Bool("geoip", geo != nil).
		Bool("brute_search", cfg.Parser.BruteSearch).
		Msg("resolver wired")
	return s, nil
}

// durableTier returns nil for the memory-only backend.
func (s *services) durableTier(cfg config.AppConfig, sqlStore *sqlite.Store) (cache.Durable, error) {
	switch cfg.Cache.Backend {
	case config.CacheBackendSQLite:
		if sqlStore == nil {
			return nil, errors.New("sqlite cache backend requires sqlite storage")
		}
		return sqlStore, nil
	case config.CacheBackendRedis:
		rs, err := cache.NewRedisStore(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			TTL:      cfg.Cache.TTL,
		}, xglog.WithComponent("cache.redis"))
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		s.onClose(rs.Close)
		s.health["redis"] = rs.HealthCheck
		return rs, nil
	case config.CacheBackendBadger:
		bs, err := cache.OpenBadgerStore(cfg.Cache.BadgerPath, cfg.Cache.TTL)
		if err != nil {
			return nil, fmt.Errorf("open badger: %w", err)
		}
		s.onClose(bs.Close)
		return bs, nil
	default:
		return nil, nil
	}
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return nil
}
