package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/productmanager/internal/jobs"
)

// Sweeper prunes stale session index entries.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SessionsSweepJob runs the Redis session index sweep.
type SessionsSweepJob struct {
	Store   Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSessionsSweepJob wires dependencies for the sweep handler.
func NewSessionsSweepJob(store Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionsSweepJob {
	return &SessionsSweepJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes TaskSessionsSweep tasks.
func (j *SessionsSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("sessions sweep: handler not configured")
	}
	metrics := j.Metrics
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracker := metrics.Track(TaskSessionsSweep)
	pruned, err := j.Store.Sweep(ctx)
	if err != nil {
		logger.Error("sessions sweep failed", slog.Any("error", err))
		return tracker.End(err)
	}
	metrics.AddSweptSessions(pruned)
	if pruned > 0 {
		logger.Info("sessions sweep", slog.Int("pruned", pruned))
	}
	return tracker.End(nil)
}
