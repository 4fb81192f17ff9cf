// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const badgerKeyPrefix = "resolve:"

// BadgerStore is an embedded durable tier. Keys are "resolve:<xxh3>" with a
// native TTL; the value is the JSON record.
type BadgerStore struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenBadgerStore opens (or creates) a store at path. An empty path keeps
// everything in memory.
func OpenBadgerStore(path string, ttl time.Duration) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &BadgerStore{db: db, ttl: ttl}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) Load(_ context.Context, key string) (Entry, bool, error) {
	var rec record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(hashedKey(badgerKeyPrefix, key)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("badger get: %w", err)
	}
	if rec.Key != key {
		return Entry{}, false, nil
	}
	return rec.entry(), true, nil
}

func (s *BadgerStore) Store(_ context.Context, e Entry) error {
	buf, err := json.Marshal(toRecord(e))
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(hashedKey(badgerKeyPrefix, e.Key)), buf).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
}

func (s *BadgerStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(hashedKey(badgerKeyPrefix, key)))
	})
}
