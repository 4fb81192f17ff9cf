// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bilibili

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstream covers transport failures and unexpected HTTP statuses.
	ErrUpstream = errors.New("upstream unavailable")
	// ErrBadResponse is returned when a body cannot be decoded.
	ErrBadResponse = errors.New("bad upstream response")
	// ErrUnavailable means the platform answered but has nothing playable:
	// a non-zero API code, a missing cid or an empty stream list.
	ErrUnavailable = errors.New("video unavailable")
)

// APIError describes a failed platform call.
type APIError struct {
	Op      string
	Status  int
	Code    int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	switch {
	case e.Code != 0:
		return fmt.Sprintf("%s: api code %d: %s", e.Op, e.Code, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s: http status %d: %v", e.Op, e.Status, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *APIError) Unwrap() error { return e.Err }
