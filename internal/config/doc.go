// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the service configuration.
//
// Precedence is ENV > YAML file > defaults. The YAML file is decoded strictly
// and every source is validated as a whole before it is used. A Holder keeps
// the active configuration and swaps it atomically on file changes.
package config
