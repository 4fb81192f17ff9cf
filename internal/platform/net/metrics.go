// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package net

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var safetyChecks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "assplayer_safety_checks_total",
		Help: "Host safety verdicts by outcome and reason",
	},
	[]string{"allowed", "reason"},
)

func recordVerdict(v Verdict) {
	allowed := "false"
	if v.Allowed {
		allowed = "true"
	}
	safetyChecks.WithLabelValues(allowed, string(v.Reason)).Inc()
}
