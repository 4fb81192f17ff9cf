// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cdn

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Region is a tri-state geographic classification.
type Region int

const (
	RegionUnknown Region = iota
	RegionChina
	RegionForeign
)

func (r Region) String() string {
	switch r {
	case RegionChina:
		return "china"
	case RegionForeign:
		return "foreign"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the region as true, false or null, matching the
// nullable is_china column.
func (r Region) MarshalJSON() ([]byte, error) {
	switch r {
	case RegionChina:
		return []byte("true"), nil
	case RegionForeign:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (r *Region) UnmarshalJSON(b []byte) error {
	var v *bool
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("region: %w", err)
	}
	*r = RegionFromBool(v)
	return nil
}

// RegionFromBool maps a nullable is_china flag to a Region.
func RegionFromBool(v *bool) Region {
	switch {
	case v == nil:
		return RegionUnknown
	case *v:
		return RegionChina
	default:
		return RegionForeign
	}
}

// Bool is the inverse of RegionFromBool.
func (r Region) Bool() *bool {
	var v bool
	switch r {
	case RegionChina:
		v = true
	case RegionForeign:
		v = false
	default:
		return nil
	}
	return &v
}

// Stat is the per-hostname delivery record.
type Stat struct {
	Hostname  string    `json:"hostname"`
	Region    Region    `json:"is_china"`
	Count     int64     `json:"count"`
	AvgLoadMs float64   `json:"avg_load_ms"`
	UpdatedAt time.Time `json:"updated_at"`
	// Guessed marks a classification inferred from keywords or GeoIP rather
	// than reported. A guess alone never triggers a write and may be
	// overridden by MarkHostname.
	Guessed bool `json:"guessed,omitempty"`
}

// HasSamples reports whether AvgLoadMs is meaningful.
func (s Stat) HasSamples() bool { return s.Count > 0 }

// Store persists reported statistics. Implementations must be safe for
// concurrent use.
type Store interface {
	LoadCDNStats(ctx context.Context) ([]Stat, error)
	SaveCDNStat(ctx context.Context, s Stat) error
}
