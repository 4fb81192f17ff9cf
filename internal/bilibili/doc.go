// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bilibili knows the video platform: how its links look, how to ask
// its public API for a playable URL and how to dig one out of a video page.
//
// Nothing here caches or rewrites; callers combine these pieces in order.
package bilibili
