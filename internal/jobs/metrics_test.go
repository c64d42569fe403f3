package jobmetrics

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	_ = metrics.Track("auth:sessions_sweep").End(nil)
	_ = metrics.Track("auth:sessions_sweep").End(errors.New("redis down"))
	_ = metrics.Track("rbac:role_permissions_changed").End(fmt.Errorf("bad payload: %w", asynq.SkipRetry))

	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(`
# HELP productmanager_jobs_total Job executions by task type and outcome.
# TYPE productmanager_jobs_total counter
productmanager_jobs_total{job="auth:sessions_sweep",status="failure"} 1
productmanager_jobs_total{job="auth:sessions_sweep",status="success"} 1
productmanager_jobs_total{job="rbac:role_permissions_changed",status="skipped"} 1
`), "productmanager_jobs_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.lastSuccess))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var metrics *Metrics
	boom := errors.New("boom")
	assert.Equal(t, boom, metrics.Track("any").End(boom))
	metrics.AddSweptSessions(3)
	metrics.AddNotifiedUsers(3)
}

func TestNewMetricsWithoutRegisterer(t *testing.T) {
	first := NewMetrics(nil)
	second := NewMetrics(nil)
	first.AddSweptSessions(2)
	assert.Equal(t, float64(2), testutil.ToFloat64(first.sessionsSwept))
	assert.Equal(t, float64(0), testutil.ToFloat64(second.sessionsSwept))
}
