// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resolver

import "time"

const (
	testWait = 2 * time.Second
	testTick = 5 * time.Millisecond
)
