package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/productmanager/internal/jobs"
	"github.com/odyssey-erp/productmanager/internal/rbac"
)

// RoleHolders lists the identities currently assigned to a role.
type RoleHolders interface {
	ListIdentityIDsWithRole(ctx context.Context, roleID int64) ([]int64, error)
}

// RoleNoticeJob records role permission change notices. The notice is advisory:
// every request re-resolves permissions, so nothing here changes access.
// Metrics may be nil.
type RoleNoticeJob struct {
	Holders RoleHolders
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRoleNoticeJob wires dependencies for the notice handler. holders may be nil.
func NewRoleNoticeJob(holders RoleHolders, logger *slog.Logger, metrics *jobmetrics.Metrics) *RoleNoticeJob {
	return &RoleNoticeJob{Holders: holders, Logger: logger, Metrics: metrics}
}

// Handle processes TaskRolePermissionsChanged tasks.
func (j *RoleNoticeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("role notice: handler not configured")
	}
	var event rbac.RolePermissionsChanged
	if err := json.Unmarshal(t.Payload(), &event); err != nil || event.RoleID <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskRolePermissionsChanged)
	logger := j.logger().With(
		slog.Int64("role_id", event.RoleID),
		slog.String("role", event.RoleName),
		slog.Int64("changed_by", event.ChangedBy),
	)

	holders := event.AffectedUsers
	if j.Holders != nil {
		ids, err := j.Holders.ListIdentityIDsWithRole(ctx, event.RoleID)
		if err != nil {
			logger.Error("list role holders", slog.Any("error", err))
			return tracker.End(err)
		}
		holders = len(ids)
		for _, id := range ids {
			logger.Debug("permissions changed for identity", slog.Int64("identity_id", id))
		}
	}

	added, removed := diffNames(event.Previous, event.Current)
	logger.Info("role permissions changed",
		slog.Any("added", added),
		slog.Any("removed", removed),
		slog.Int("affected_users", holders),
		slog.Time("changed_at", event.ChangedAt),
	)
	j.Metrics.AddNotifiedUsers(holders)
	return tracker.End(nil)
}

func (j *RoleNoticeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func diffNames(previous, current []string) (added, removed []string) {
	before := make(map[string]struct{}, len(previous))
	for _, name := range previous {
		before[name] = struct{}{}
	}
	after := make(map[string]struct{}, len(current))
	for _, name := range current {
		after[name] = struct{}{}
		if _, ok := before[name]; !ok {
			added = append(added, name)
		}
	}
	for _, name := range previous {
		if _, ok := after[name]; !ok {
			removed = append(removed, name)
		}
	}
	return added, removed
}
