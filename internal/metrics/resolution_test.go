// SPDX-License-Identifier: MIT
package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, vec.WithLabelValues(labels...).Write(m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func TestRecordResolve(t *testing.T) {
	before := counterValue(t, resolveTotal, "found", "official_api")
	RecordResolve("found", "official_api", 120*time.Millisecond)
	assert.Equal(t, before+1, counterValue(t, resolveTotal, "found", "official_api"))

	beforeNone := counterValue(t, resolveTotal, "not_found", "none")
	RecordResolve("not_found", "", time.Second)
	assert.Equal(t, beforeNone+1, counterValue(t, resolveTotal, "not_found", "none"))
}

func TestRecordCacheWrite(t *testing.T) {
	ok := counterValue(t, cacheWrites, "memory", "success")
	bad := counterValue(t, cacheWrites, "durable", "error")

	RecordCacheWrite("memory", nil)
	RecordCacheWrite("durable", errors.New("disk full"))

	assert.Equal(t, ok+1, counterValue(t, cacheWrites, "memory", "success"))
	assert.Equal(t, bad+1, counterValue(t, cacheWrites, "durable", "error"))
}

func TestGauges(t *testing.T) {
	SetCacheEntries(42)
	assert.Equal(t, 42.0, gaugeValue(t, cacheEntries))

	SetCDNTrackedHosts(3)
	assert.Equal(t, 3.0, gaugeValue(t, cdnTrackedHosts))
}

func TestRecordConfigReload(t *testing.T) {
	s := counterValue(t, configReloads, "success")
	f := counterValue(t, configReloads, "failure")
	RecordConfigReload(true)
	RecordConfigReload(false)
	assert.Equal(t, s+1, counterValue(t, configReloads, "success"))
	assert.Equal(t, f+1, counterValue(t, configReloads, "failure"))
}
