// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldShortID   = "short_id"
	FieldTraceID   = "trace_id"
	FieldSpanID    = "span_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStrategy  = "strategy"
	FieldOutcome   = "outcome"

	// Resolution fields
	FieldCacheKey = "cache_key"
	FieldQuality  = "quality"
	FieldTier     = "tier"

	// Network fields
	FieldHost     = "host"
	FieldURL      = "url"
	FieldStatus   = "status"
	FieldAttempt  = "attempt"
	FieldDuration = "duration_ms"

	// CDN fields
	FieldLoadMs   = "load_ms"
	FieldRegion   = "region"
	FieldBestHost = "best_host"
)
