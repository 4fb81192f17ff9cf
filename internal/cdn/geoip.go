// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cdn

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"

	xglog "github.com/ManuGH/assplayer/internal/log"
	"github.com/oschwald/maxminddb-golang"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultGeoIPReloadSchedule reopens the database once a day.
const DefaultGeoIPReloadSchedule = "0 4 * * *"

// GeoReader looks up the ISO country code of an address.
type GeoReader interface {
	Country(ip netip.Addr) (string, error)
	Close() error
}

// OpenFunc opens a GeoIP database file.
type OpenFunc func(path string) (GeoReader, error)

type mmdbReader struct {
	r *maxminddb.Reader
	// sing-geoip databases store the bare country code as the record.
	bareCode bool
}

type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// OpenMaxMind opens a MaxMind country database or a sing-geoip database.
func OpenMaxMind(path string) (GeoReader, error) {
	r, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &mmdbReader{r: r, bareCode: r.Metadata.DatabaseType == "sing-geoip"}, nil
}

func (m *mmdbReader) Country(ip netip.Addr) (string, error) {
	addr := net.IP(ip.Unmap().AsSlice())
	if m.bareCode {
		var code string
		if err := m.r.Lookup(addr, &code); err != nil {
			return "", err
		}
		return strings.ToUpper(code), nil
	}
	var rec countryRecord
	if err := m.r.Lookup(addr, &rec); err != nil {
		return "", err
	}
	return strings.ToUpper(rec.Country.ISOCode), nil
}

func (m *mmdbReader) Close() error { return m.r.Close() }

// GeoIPConfig configures a GeoIP classifier.
type GeoIPConfig struct {
	Path string
	// ReloadSchedule is a standard cron expression; empty uses the default.
	ReloadSchedule string
	// DomesticCountries defaults to CN.
	DomesticCountries []string
	Open              OpenFunc
}

// GeoIP classifies addresses as domestic or foreign and reopens its
// database on a schedule so an externally refreshed file is picked up.
type GeoIP struct {
	mu       sync.RWMutex
	reader   GeoReader
	path     string
	open     OpenFunc
	domestic map[string]struct{}
	cron     *cron.Cron
	logger   zerolog.Logger
}

// NewGeoIP opens the database and schedules reloads. Call Start to run the
// scheduler and Stop to release the reader.
func NewGeoIP(cfg GeoIPConfig) (*GeoIP, error) {
	if cfg.Open == nil {
		cfg.Open = OpenMaxMind
	}
	if cfg.ReloadSchedule == "" {
		cfg.ReloadSchedule = DefaultGeoIPReloadSchedule
	}
	if len(cfg.DomesticCountries) == 0 {
		cfg.DomesticCountries = []string{"CN"}
	}
	g := &GeoIP{
		path:     cfg.Path,
		open:     cfg.Open,
		domestic: make(map[string]struct{}, len(cfg.DomesticCountries)),
		cron:     cron.New(),
		logger:   xglog.WithComponent("cdn.geoip"),
	}
	for _, c := range cfg.DomesticCountries {
		g.domestic[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	if err := g.Reload(); err != nil {
		return nil, err
	}
	if _, err := g.cron.AddFunc(cfg.ReloadSchedule, func() {
		if err := g.Reload(); err != nil {
			g.logger.Warn().Err(err).Str(xglog.FieldEvent, "geoip.reload_failed").Msg("scheduled geoip reload failed")
		}
	}); err != nil {
		g.closeReader()
		return nil, fmt.Errorf("geoip: invalid reload schedule %q: %w", cfg.ReloadSchedule, err)
	}
	return g, nil
}

// Start runs the reload scheduler.
func (g *GeoIP) Start() { g.cron.Start() }

// Stop halts the scheduler and closes the reader.
func (g *GeoIP) Stop() {
	<-g.cron.Stop().Done()
	g.closeReader()
}

func (g *GeoIP) closeReader() {
	g.mu.Lock()
	r := g.reader
	g.reader = nil
	g.mu.Unlock()
	if r != nil {
		_ = r.Close()
	}
}

// Reload reopens the database file and swaps it in.
func (g *GeoIP) Reload() error {
	next, err := g.open(g.path)
	if err != nil {
		return fmt.Errorf("geoip: open %s: %w", g.path, err)
	}
	g.mu.Lock()
	old := g.reader
	g.reader = next
	g.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	g.logger.Info().Str(xglog.FieldEvent, "geoip.loaded").Str("path", g.path).Msg("geoip database loaded")
	return nil
}

// Country returns the ISO code for addr, or "" when unknown.
func (g *GeoIP) Country(addr netip.Addr) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.reader == nil {
		return ""
	}
	code, err := g.reader.Country(addr)
	if err != nil {
		return ""
	}
	return code
}

// Classify returns RegionChina if any address is domestic, RegionForeign if
// every address has a known foreign country, RegionUnknown otherwise.
func (g *GeoIP) Classify(addrs []netip.Addr) Region {
	known := 0
	for _, a := range addrs {
		code := g.Country(a)
		if code == "" {
			continue
		}
		if _, ok := g.domestic[code]; ok {
			return RegionChina
		}
		known++
	}
	if known > 0 && known == len(addrs) {
		return RegionForeign
	}
	return RegionUnknown
}
