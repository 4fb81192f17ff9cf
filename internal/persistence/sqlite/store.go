package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ManuGH/assplayer/internal/cache"
	"github.com/ManuGH/assplayer/internal/cdn"
)

// Store persists the resolution cache and CDN statistics in one database.
// Reads go through the pool; writes are serialized on writeMu because a
// single SQLite file tolerates only one writer at a time.
type Store struct {
	db      *sql.DB
	owned   bool
	writeMu sync.Mutex
}

// OpenStore opens the database at path and applies migrations.
func OpenStore(path string, cfg Config) (*Store, error) {
	db, err := Open(path, cfg)
	if err != nil {
		return nil, err
	}
	s, err := NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewStore wraps an existing handle. The caller keeps ownership of db.
func NewStore(db *sql.DB) (*Store, error) {
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the handle if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Load implements cache.Durable.
func (s *Store) Load(ctx context.Context, key string) (cache.Entry, bool, error) {
	var (
		url string
		ts  float64
	)
	err := s.db.QueryRowContext(ctx, `SELECT url, ts FROM cache WHERE key = ?`, key).Scan(&url, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("sqlite: load cache %q: %w", key, err)
	}
	return cache.Entry{Key: key, URL: url, CreatedAt: fromEpoch(ts)}, true, nil
}

// Store implements cache.Durable.
func (s *Store) Store(ctx context.Context, e cache.Entry) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache (key, url, ts) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET url = excluded.url, ts = excluded.ts`,
		e.Key, e.URL, toEpoch(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: store cache %q: %w", e.Key, err)
	}
	return nil
}

// Delete implements cache.Durable.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite: delete cache %q: %w", key, err)
	}
	return nil
}

// LoadCDNStats implements cdn.Store.
func (s *Store) LoadCDNStats(ctx context.Context) ([]cdn.Stat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hostname, is_china, count, avg_load, updated_ts FROM cdn_stats ORDER BY hostname`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query cdn_stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []cdn.Stat
	for rows.Next() {
		var (
			st      cdn.Stat
			isChina sql.NullBool
			avg     sql.NullFloat64
			updated float64
		)
		if err := rows.Scan(&st.Hostname, &isChina, &st.Count, &avg, &updated); err != nil {
			return nil, fmt.Errorf("sqlite: scan cdn_stats: %w", err)
		}
		if isChina.Valid {
			st.Region = cdn.RegionFromBool(&isChina.Bool)
		}
		st.AvgLoadMs = avg.Float64
		st.UpdatedAt = fromEpoch(updated)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate cdn_stats: %w", err)
	}
	return out, nil
}

// SaveCDNStat implements cdn.Store.
func (s *Store) SaveCDNStat(ctx context.Context, st cdn.Stat) error {
	var isChina sql.NullBool
	if b := st.Region.Bool(); b != nil {
		isChina = sql.NullBool{Bool: *b, Valid: true}
	}
	var avg sql.NullFloat64
	if st.HasSamples() {
		avg = sql.NullFloat64{Float64: st.AvgLoadMs, Valid: true}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cdn_stats (hostname, is_china, count, avg_load, updated_ts) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(hostname) DO UPDATE SET
			is_china = excluded.is_china,
			count = excluded.count,
			avg_load = excluded.avg_load,
			updated_ts = excluded.updated_ts`,
		st.Hostname, isChina, st.Count, avg, toEpoch(st.UpdatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: save cdn stat %q: %w", st.Hostname, err)
	}
	return nil
}

func toEpoch(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func fromEpoch(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond))
}
