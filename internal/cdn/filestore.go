// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cdn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"sync"

	xglog "github.com/ManuGH/assplayer/internal/log"
	"github.com/google/renameio/v2"
)

type snapshotFile struct {
	Version int    `json:"version"`
	Hosts   []Stat `json:"hosts"`
}

// FileStore keeps statistics in a JSON snapshot file. It is the store used
// when no database is configured.
type FileStore struct {
	path string

	mu     sync.Mutex
	loaded bool
	hosts  map[string]Stat
}

// NewFileStore returns a store backed by path. The file is created on the
// first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, hosts: make(map[string]Stat)}
}

func (f *FileStore) LoadCDNStats(_ context.Context) ([]Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(); err != nil {
		return nil, err
	}
	out := make([]Stat, 0, len(f.hosts))
	for _, s := range f.hosts {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Stat) int { return strings.Compare(a.Hostname, b.Hostname) })
	return out, nil
}

func (f *FileStore) SaveCDNStat(ctx context.Context, s Stat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(); err != nil {
		return err
	}
	s.Guessed = false
	f.hosts[s.Hostname] = s
	return f.writeLocked(ctx)
}

func (f *FileStore) loadLocked() error {
	if f.loaded {
		return nil
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cdn snapshot: %w", err)
	}
	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode cdn snapshot %s: %w", f.path, err)
	}
	for _, s := range snap.Hosts {
		if s.Hostname != "" {
			f.hosts[s.Hostname] = s
		}
	}
	f.loaded = true
	return nil
}

func (f *FileStore) writeLocked(ctx context.Context) error {
	logger := xglog.FromContext(ctx)

	snap := snapshotFile{Version: 1, Hosts: make([]Stat, 0, len(f.hosts))}
	for _, s := range f.hosts {
		snap.Hosts = append(snap.Hosts, s)
	}
	slices.SortFunc(snap.Hosts, func(a, b Stat) int { return strings.Compare(a.Hostname, b.Hostname) })

	pending, err := renameio.NewPendingFile(f.path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending cdn snapshot: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending cdn snapshot")
		}
	}()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("write cdn snapshot: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace cdn snapshot: %w", err)
	}
	return nil
}
