package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/productmanager/internal/rbac"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRolePermissionsChanged carries an advisory notice after a role's permission
	// set was replaced.
	TaskRolePermissionsChanged = "rbac:role_permissions_changed"
	// TaskSessionsSweep prunes the per-identity session index in Redis.
	TaskSessionsSweep = "auth:sessions_sweep"
)

// NewRolePermissionsChangedTask constructs an Asynq task for a role change notice.
func NewRolePermissionsChangedTask(event rbac.RolePermissionsChanged) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRolePermissionsChanged, data), nil
}

// NewSessionsSweepTask constructs the periodic sweep task.
func NewSessionsSweepTask() *asynq.Task {
	return asynq.NewTask(TaskSessionsSweep, nil)
}
