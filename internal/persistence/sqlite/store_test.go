package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/assplayer/internal/cache"
	"github.com/ManuGH/assplayer/internal/cdn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assplayer.sqlite")
	s, err := OpenStore(path, DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestMigrate_Idempotent(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, Migrate(s.db))

	for _, table := range []string{"cache", "cdn_stats", migrationsTable} {
		var name string
		err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}
}

func TestMigrate_NilDB(t *testing.T) {
	assert.Error(t, Migrate(nil))
}

func TestStore_CacheRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2025, 4, 1, 8, 30, 0, 250_000_000, time.UTC)

	_, found, err := s.Load(ctx, "BV1xx411c7mD")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Store(ctx, cache.Entry{Key: "BV1xx411c7mD", URL: "https://a.example/1.mp4", CreatedAt: created}))
	require.NoError(t, s.Store(ctx, cache.Entry{Key: "BV1xx411c7mD", URL: "https://a.example/2.mp4", CreatedAt: created}))

	e, found, err := s.Load(ctx, "BV1xx411c7mD")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "https://a.example/2.mp4", e.URL)
	assert.WithinDuration(t, created, e.CreatedAt, time.Millisecond)

	require.NoError(t, s.Delete(ctx, "BV1xx411c7mD"))
	_, found, err = s.Load(ctx, "BV1xx411c7mD")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_CDNStatsNullableRegion(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 4, 1, 8, 30, 0, 0, time.UTC)

	require.NoError(t, s.SaveCDNStat(ctx, cdn.Stat{Hostname: "b.example.com", Count: 2, AvgLoadMs: 80, UpdatedAt: now}))
	require.NoError(t, s.SaveCDNStat(ctx, cdn.Stat{Hostname: "a.example.cn", Region: cdn.RegionChina, UpdatedAt: now}))
	require.NoError(t, s.SaveCDNStat(ctx, cdn.Stat{Hostname: "a.example.cn", Region: cdn.RegionChina, Count: 1, AvgLoadMs: 120, UpdatedAt: now}))

	var isChina sql.NullInt64
	require.NoError(t, s.db.QueryRow(`SELECT is_china FROM cdn_stats WHERE hostname = 'b.example.com'`).Scan(&isChina))
	assert.False(t, isChina.Valid, "unknown region stored as NULL")

	stats, err := s.LoadCDNStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "a.example.cn", stats[0].Hostname)
	assert.Equal(t, cdn.RegionChina, stats[0].Region)
	assert.Equal(t, int64(1), stats[0].Count)
	assert.InDelta(t, 120.0, stats[0].AvgLoadMs, 1e-9)
	assert.Equal(t, cdn.RegionUnknown, stats[1].Region)
	assert.WithinDuration(t, now, stats[1].UpdatedAt, time.Millisecond)
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			errs <- s.Store(ctx, cache.Entry{Key: fmt.Sprintf("k%d", i), URL: "https://a.example/v.mp4", CreatedAt: time.Now()})
		}(i)
		go func(i int) {
			defer wg.Done()
			errs <- s.SaveCDNStat(ctx, cdn.Stat{Hostname: fmt.Sprintf("h%d.example.com", i), Count: 1, AvgLoadMs: 10, UpdatedAt: time.Now()})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stats, err := s.LoadCDNStats(ctx)
	require.NoError(t, err)
	assert.Len(t, stats, 20)
}

func TestStore_OptimizerSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	s, path := openTestStore(t)

	o := cdn.New(cdn.Options{Store: s})
	require.NoError(t, o.Load(ctx))
	_, err := o.MarkHostname(ctx, "cdn.example.cn", true)
	require.NoError(t, err)
	_, err = o.RecordLoad(ctx, "cdn.example.cn", 120)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := OpenStore(path, DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	o2 := cdn.New(cdn.Options{Store: reopened})
	require.NoError(t, o2.Load(ctx))
	st, ok := o2.Get("cdn.example.cn")
	require.True(t, ok)
	assert.Equal(t, cdn.RegionChina, st.Region)
	assert.Greater(t, st.Count, int64(0))
	assert.InDelta(t, 120.0, st.AvgLoadMs, 1e-9)
	assert.Equal(t, "cdn.example.cn", o2.BestHost())
}

func TestStore_BacksResolutionCache(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	c1, err := cache.New(cache.Options{Durable: s})
	require.NoError(t, err)
	defer c1.Close()
	require.NoError(t, c1.Set(ctx, "BV1xx411c7mD", "https://a.example/v.mp4"))

	c2, err := cache.New(cache.Options{Durable: s})
	require.NoError(t, err)
	defer c2.Close()
	e, ok := c2.Get(ctx, "BV1xx411c7mD")
	require.True(t, ok)
	assert.Equal(t, "https://a.example/v.mp4", e.URL)
}

func TestNewStore_KeepsCallerOwnership(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "shared.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s, err := NewStore(db)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.NoError(t, db.Ping(), "NewStore must not close a handle it does not own")
}
