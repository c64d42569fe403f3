// Package jobmetrics instruments asynq task handlers.
package jobmetrics

import (
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes recorded in the status label of productmanager_jobs_total.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

// Metrics holds the worker's collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs          *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	lastSuccess   *prometheus.GaugeVec
	sessionsSwept prometheus.Counter
	noticeUsers   prometheus.Counter
}

// NewMetrics registers the job collectors on registerer. A nil registerer gets a
// private registry that nobody scrapes.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	factory := promauto.With(registerer)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "productmanager_jobs_total",
			Help: "Job executions by task type and outcome.",
		}, []string{"job", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "productmanager_job_duration_seconds",
			Help:    "Job execution time by task type.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 30},
		}, []string{"job"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "productmanager_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per task type.",
		}, []string{"job"}),
		sessionsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "productmanager_sessions_swept_total",
			Help: "Stale per-identity session index entries removed.",
		}),
		noticeUsers: factory.NewCounter(prometheus.CounterOpts{
			Name: "productmanager_role_change_notified_users_total",
			Help: "Identities affected by role permission replacements.",
		}),
	}
}

// Tracker times a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
	now     func() time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now(), now: time.Now}
}

// End records the outcome of the run and hands err back unchanged.
// asynq.SkipRetry errors count as skipped rather than failed.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	finished := t.now()
	t.metrics.runs.WithLabelValues(t.job, Outcome(err)).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(finished.Sub(t.start).Seconds())
	if err == nil {
		t.metrics.lastSuccess.WithLabelValues(t.job).Set(float64(finished.Unix()))
	}
	return err
}

// Outcome maps a handler result to a status label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, asynq.SkipRetry):
		return StatusSkipped
	default:
		return StatusFailure
	}
}

// AddSweptSessions counts stale session index entries removed by the sweeper.
func (m *Metrics) AddSweptSessions(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.sessionsSwept.Add(float64(count))
}

// AddNotifiedUsers counts identities covered by role permission change notices.
func (m *Metrics) AddNotifiedUsers(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.noticeUsers.Add(float64(count))
}
