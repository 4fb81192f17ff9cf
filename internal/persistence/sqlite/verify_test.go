package sqlite

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/assplayer/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyIntegrity_HealthyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assplayer.db")
	s, err := OpenStore(path, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, s.Store(context.Background(), cache.Entry{
		Key: "BV1xx411c7mD", URL: "https://a.bilivideo.com/v.mp4", CreatedAt: time.Now(),
	}))
	require.NoError(t, s.Close())

	for _, mode := range []CheckMode{QuickCheck, FullCheck} {
		issues, err := VerifyIntegrity(context.Background(), path, mode)
		require.NoError(t, err, mode)
		assert.Nil(t, issues, mode)
	}
}

func TestVerifyIntegrity_DetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corruptible.db")
	db, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE filler (id INTEGER PRIMARY KEY, data BLOB)")
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		_, err = db.Exec("INSERT INTO filler (data) VALUES (randomblob(200))")
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	garbage := make([]byte, 256)
	for i := range garbage {
		garbage[i] = 0xA5
	}
	_, err = f.WriteAt(garbage, 4096)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	issues, err := VerifyIntegrity(context.Background(), path, FullCheck)
	// Depending on which page is hit, sqlite reports corruption as rows or
	// refuses to run the pragma at all.
	if err == nil {
		assert.NotEmpty(t, issues)
	}
}

func TestParseCheckMode(t *testing.T) {
	m, err := ParseCheckMode(" FULL ")
	require.NoError(t, err)
	assert.Equal(t, FullCheck, m)
	m, err = ParseCheckMode("quick")
	require.NoError(t, err)
	assert.Equal(t, QuickCheck, m)
	_, err = ParseCheckMode("deep")
	assert.ErrorContains(t, err, `"deep"`)
}

func TestDSN_EncodesPragmas(t *testing.T) {
	got := dsn("/var/lib/assplayer.db", 1500*time.Millisecond, true, "journal_mode(WAL)")
	assert.True(t, strings.HasPrefix(got, "file:/var/lib/assplayer.db?"), got)
	q, err := url.ParseQuery(strings.SplitN(got, "?", 2)[1])
	require.NoError(t, err)
	assert.Equal(t, "ro", q.Get("mode"))
	assert.Equal(t, []string{"busy_timeout(1500)", "journal_mode(WAL)"}, q["_pragma"])
}
