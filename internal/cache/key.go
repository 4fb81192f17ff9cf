// SPDX-License-Identifier: MIT

package cache

import (
	"encoding/hex"
	"time"

	"github.com/zeebo/xxh3"
)

// hashedKey maps an arbitrary cache key (a short ID or a full page URL) to a
// fixed-length key for stores that namespace by prefix.
func hashedKey(prefix, key string) string {
	sum := xxh3.HashString128(key).Bytes()
	return prefix + hex.EncodeToString(sum[:])
}

// record is the serialized form shared by the redis and badger tiers. Key is
// kept to detect hash collisions.
type record struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	CreatedAt int64  `json:"created_at_ms"`
}

func toRecord(e Entry) record {
	return record{Key: e.Key, URL: e.URL, CreatedAt: e.CreatedAt.UnixMilli()}
}

func (r record) entry() Entry {
	return Entry{Key: r.Key, URL: r.URL, CreatedAt: time.UnixMilli(r.CreatedAt)}
}
