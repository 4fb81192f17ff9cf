// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cdn tracks per-hostname delivery statistics and rewrites media URLs
// served from foreign edge networks to a domestic host.
package cdn

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	xglog "github.com/ManuGH/assplayer/internal/log"
	"github.com/ManuGH/assplayer/internal/metrics"
	pnet "github.com/ManuGH/assplayer/internal/platform/net"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MaxLoadMs bounds a single reported load time.
const MaxLoadMs = 600_000

// ErrInvalidReport is returned for a report with an unusable hostname or load.
var ErrInvalidReport = errors.New("invalid cdn report")

// Options configures an Optimizer. Every field is optional.
type Options struct {
	Policy        Policy
	Store         Store
	GeoIP         *GeoIP
	MeterProvider metric.MeterProvider
	Now           func() time.Time
}

// Optimizer owns the CDN statistics table. It is safe for concurrent use.
type Optimizer struct {
	stats  *xsync.Map[string, Stat]
	policy atomic.Pointer[Policy]

	bestMu sync.RWMutex
	best   string

	persistMu sync.Mutex
	store     Store
	geo       *GeoIP
	now       func() time.Time
	loadHist  metric.Float64Histogram
	logger    zerolog.Logger
}

// New builds an Optimizer. Call Load to restore persisted statistics.
func New(opts Options) *Optimizer {
	policy := opts.Policy
	if len(policy.DomesticKeywords) == 0 && len(policy.ForeignKeywords) == 0 {
		def := DefaultPolicy()
		def.DefaultHost = firstNonEmpty(policy.DefaultHost, def.DefaultHost)
		policy = def
	}
	mp := opts.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	o := &Optimizer{
		stats:  xsync.NewMap[string, Stat](),
		store:  opts.Store,
		geo:    opts.GeoIP,
		now:    now,
		logger: xglog.WithComponent("cdn"),
	}
	o.SetPolicy(policy)

	hist, err := mp.Meter("github.com/ManuGH/assplayer/internal/cdn").Float64Histogram(
		"assplayer.cdn.load_time",
		metric.WithUnit("ms"),
		metric.WithDescription("Client-reported media load time per CDN host"),
	)
	if err != nil {
		o.logger.Warn().Err(err).Msg("cdn load histogram unavailable")
	}
	o.loadHist = hist
	return o
}

// SetPolicy replaces the keyword policy. Existing statistics are kept.
func (o *Optimizer) SetPolicy(p Policy) {
	n := p.normalized()
	o.policy.Store(&n)
}

// Policy returns the active keyword policy.
func (o *Optimizer) Policy() Policy { return *o.policy.Load() }

// Load restores persisted statistics from the store.
func (o *Optimizer) Load(ctx context.Context) error {
	if o.store == nil {
		return nil
	}
	stats, err := o.store.LoadCDNStats(ctx)
	if err != nil {
		return fmt.Errorf("load cdn stats: %w", err)
	}
	for _, s := range stats {
		host, err := pnet.NormalizeHost(s.Hostname)
		if err != nil {
			o.logger.Warn().Err(err).Str(xglog.FieldHost, s.Hostname).Msg("skipping persisted cdn stat")
			continue
		}
		s.Hostname = host
		s.Guessed = false
		o.stats.Store(host, s)
	}
	o.recomputeBest()
	metrics.SetCDNTrackedHosts(o.stats.Size())
	o.logger.Info().
		Str(xglog.FieldEvent, "cdn.loaded").
		Int("hosts", len(stats)).
		Str(xglog.FieldBestHost, o.BestHost()).
		Msg("cdn statistics restored")
	return nil
}

// Rewrite returns rawURL with its host replaced by the best known domestic
// host when the host matches a foreign keyword. It never performs I/O.
func (o *Optimizer) Rewrite(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		metrics.RecordCDNRewrite("invalid")
		return rawURL
	}
	host := strings.ToLower(u.Hostname())
	policy := o.policy.Load()

	switch policy.Classify(host) {
	case ClassDomestic:
		o.guess(host, RegionChina)
		metrics.RecordCDNRewrite("domestic")
		return rawURL
	case ClassForeign:
		o.guess(host, RegionForeign)
	default:
		metrics.RecordCDNRewrite("unmatched")
		return rawURL
	}

	target, decision := o.BestHost(), "rewritten_best"
	if target == "" {
		target, decision = policy.DefaultHost, "rewritten_default"
	}
	metrics.RecordCDNRewrite(decision)
	out := replaceHost(u, target)
	o.logger.Debug().
		Str(xglog.FieldEvent, "cdn.rewritten").
		Str(xglog.FieldHost, host).
		Str(xglog.FieldBestHost, target).
		Msg("foreign cdn host rewritten")
	return out
}

// guess records a keyword classification in memory for hosts whose region
// is still unknown. Guesses are never persisted.
func (o *Optimizer) guess(host string, region Region) {
	var added, promoted bool
	o.stats.Compute(host, func(old Stat, loaded bool) (Stat, xsync.ComputeOp) {
		if loaded && old.Region != RegionUnknown {
			return old, xsync.CancelOp
		}
		if !loaded {
			old = Stat{Hostname: host}
			added = true
		}
		promoted = region == RegionChina && old.HasSamples()
		old.Region = region
		old.Guessed = true
		old.UpdatedAt = o.now()
		return old, xsync.UpdateOp
	})
	if added {
		metrics.SetCDNTrackedHosts(o.stats.Size())
	}
	if promoted {
		o.recomputeBest()
	}
}

// MarkHostname sets the classification of hostname. A confirmed domestic
// classification is never downgraded.
func (o *Optimizer) MarkHostname(ctx context.Context, hostname string, isChina bool) (Stat, error) {
	host, err := pnet.NormalizeHost(hostname)
	if err != nil {
		return Stat{}, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	region := RegionForeign
	if isChina {
		region = RegionChina
	}

	var changed bool
	stat, _ := o.stats.Compute(host, func(old Stat, loaded bool) (Stat, xsync.ComputeOp) {
		if loaded && old.Region == RegionChina && !old.Guessed {
			return old, xsync.CancelOp
		}
		if !loaded {
			old = Stat{Hostname: host}
		}
		changed = old.Region != region || old.Guessed
		old.Region = region
		old.Guessed = false
		old.UpdatedAt = o.now()
		return old, xsync.UpdateOp
	})
	if !changed {
		return stat, nil
	}
	metrics.SetCDNTrackedHosts(o.stats.Size())
	o.recomputeBest()
	o.logger.Info().
		Str(xglog.FieldEvent, "cdn.marked").
		Str(xglog.FieldHost, host).
		Str(xglog.FieldRegion, region.String()).
		Msg("cdn host classified")
	return stat, o.persist(ctx, host)
}

// ValidateLoad rejects load times outside (0, MaxLoadMs].
func ValidateLoad(loadMs float64) error {
	if math.IsNaN(loadMs) || math.IsInf(loadMs, 0) || loadMs <= 0 || loadMs > MaxLoadMs {
		return fmt.Errorf("%w: load %v out of range", ErrInvalidReport, loadMs)
	}
	return nil
}

// RecordLoad folds one load observation into the running mean for hostname.
func (o *Optimizer) RecordLoad(ctx context.Context, hostname string, loadMs float64) (Stat, error) {
	host, err := pnet.NormalizeHost(hostname)
	if err != nil {
		return Stat{}, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	if err := ValidateLoad(loadMs); err != nil {
		return Stat{}, err
	}

	stat, _ := o.stats.Compute(host, func(old Stat, loaded bool) (Stat, xsync.ComputeOp) {
		if !loaded {
			old = Stat{Hostname: host}
		}
		old.Count++
		old.AvgLoadMs += (loadMs - old.AvgLoadMs) / float64(old.Count)
		old.UpdatedAt = o.now()
		return old, xsync.UpdateOp
	})

	metrics.SetCDNTrackedHosts(o.stats.Size())
	metrics.RecordCDNReport(stat.Region.String())
	if o.loadHist != nil {
		o.loadHist.Record(ctx, loadMs, metric.WithAttributes(
			attribute.String("cdn.host", host),
			attribute.String("cdn.region", stat.Region.String()),
		))
	}
	if stat.Region == RegionChina {
		o.recomputeBest()
	}
	return stat, o.persist(ctx, host)
}

// Observe classifies a freshly resolved host by GeoIP. It only fills in
// unknown or guessed entries and never persists. A change that moves a
// sampled host in or out of the domestic set recomputes the best host.
func (o *Optimizer) Observe(host string, addrs []netip.Addr) {
	if o.geo == nil || len(addrs) == 0 {
		return
	}
	region := o.geo.Classify(addrs)
	if region == RegionUnknown {
		return
	}
	host = strings.ToLower(host)
	var affectsBest bool
	o.stats.Compute(host, func(old Stat, loaded bool) (Stat, xsync.ComputeOp) {
		if loaded && !old.Guessed && old.Region != RegionUnknown {
			return old, xsync.CancelOp
		}
		if loaded && old.Region == region {
			return old, xsync.CancelOp
		}
		if !loaded {
			old = Stat{Hostname: host}
		}
		affectsBest = old.HasSamples() && (old.Region == RegionChina || region == RegionChina)
		old.Region = region
		old.Guessed = true
		old.UpdatedAt = o.now()
		return old, xsync.UpdateOp
	})
	metrics.SetCDNTrackedHosts(o.stats.Size())
	if affectsBest {
		o.recomputeBest()
	}
}

// Get returns the statistics tracked for hostname.
func (o *Optimizer) Get(hostname string) (Stat, bool) {
	return o.stats.Load(strings.ToLower(strings.TrimSuffix(hostname, ".")))
}

// Snapshot returns all tracked statistics ordered by hostname.
func (o *Optimizer) Snapshot() []Stat {
	out := make([]Stat, 0, o.stats.Size())
	o.stats.Range(func(_ string, s Stat) bool {
		out = append(out, s)
		return true
	})
	slices.SortFunc(out, func(a, b Stat) int { return strings.Compare(a.Hostname, b.Hostname) })
	return out
}

// BestHost returns the domestic host with the lowest average load, or ""
// when no domestic host has samples yet.
func (o *Optimizer) BestHost() string {
	o.bestMu.RLock()
	defer o.bestMu.RUnlock()
	return o.best
}

func (o *Optimizer) recomputeBest() {
	o.bestMu.Lock()
	defer o.bestMu.Unlock()

	var best Stat
	found := false
	o.stats.Range(func(_ string, s Stat) bool {
		if s.Region != RegionChina || !s.HasSamples() {
			return true
		}
		if !found || s.AvgLoadMs < best.AvgLoadMs ||
			(s.AvgLoadMs == best.AvgLoadMs && s.Hostname < best.Hostname) {
			best, found = s, true
		}
		return true
	})
	prev := o.best
	o.best = ""
	if found {
		o.best = best.Hostname
	}
	if o.best != prev {
		o.logger.Info().
			Str(xglog.FieldEvent, "cdn.best_changed").
			Str(xglog.FieldBestHost, o.best).
			Float64(xglog.FieldLoadMs, best.AvgLoadMs).
			Msg("best domestic cdn host changed")
	}
}

// persist writes the current value for host. A guessed region is stored as
// unknown so it stays overridable after a restart. Saves are serialized so
// the last write always carries the latest state.
func (o *Optimizer) persist(ctx context.Context, host string) error {
	if o.store == nil {
		return nil
	}
	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	stat, ok := o.stats.Load(host)
	if !ok {
		return nil
	}
	if stat.Guessed {
		stat.Region = RegionUnknown
		stat.Guessed = false
	}
	if err := o.store.SaveCDNStat(ctx, stat); err != nil {
		o.logger.Warn().Err(err).Str(xglog.FieldHost, host).Msg("failed to persist cdn stat")
		return fmt.Errorf("persist cdn stat: %w", err)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
