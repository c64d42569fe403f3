package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/productmanager/internal/rbac"
)

// Enqueuer submits tasks. *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Client publishes role change notices. It satisfies rbac.Notifier.
type Client struct {
	client Enqueuer
	closer func() error
}

var _ rbac.Notifier = (*Client)(nil)

// NewClient opens an asynq client on the given Redis.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client, closer: client.Close}
}

// NewClientWith wraps an existing Enqueuer. Close is then a no-op.
func NewClientWith(enq Enqueuer) *Client {
	return &Client{client: enq}
}

func (c *Client) RolePermissionsChanged(ctx context.Context, event rbac.RolePermissionsChanged) error {
	task, err := NewRolePermissionsChangedTask(event)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
		asynq.Retention(24*time.Hour),
	)
	return err
}

// Close releases the underlying Redis connection when the client owns one.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}
