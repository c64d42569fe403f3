package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/productmanager/internal/jobs"
	"github.com/odyssey-erp/productmanager/internal/rbac"
	"github.com/odyssey-erp/productmanager/internal/shared"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

type fakeHolders struct {
	ids []int64
	err error
}

func (f fakeHolders) ListIdentityIDsWithRole(context.Context, int64) ([]int64, error) {
	return f.ids, f.err
}

func TestClientEnqueuesRoleNotice(t *testing.T) {
	enq := &fakeEnqueuer{}
	client := NewClientWith(enq)
	event := rbac.RolePermissionsChanged{
		RoleID:        3,
		RoleName:      shared.RoleAuditor,
		Previous:      []string{"view_products", "view_reports"},
		Current:       []string{"view_reports"},
		AffectedUsers: 2,
		ChangedBy:     1,
		ChangedAt:     time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	}

	require.NoError(t, client.RolePermissionsChanged(context.Background(), event))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskRolePermissionsChanged, enq.tasks[0].Type())

	var decoded rbac.RolePermissionsChanged
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &decoded))
	assert.Equal(t, event, decoded)
	assert.NoError(t, client.Close())
}

func TestClientPropagatesEnqueueError(t *testing.T) {
	client := NewClientWith(&fakeEnqueuer{err: errors.New("redis down")})
	err := client.RolePermissionsChanged(context.Background(), rbac.RolePermissionsChanged{RoleID: 1})
	assert.EqualError(t, err, "redis down")
}

func TestRoleNoticeJobCountsHolders(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	job := NewRoleNoticeJob(fakeHolders{ids: []int64{4, 5, 6}}, discard(), metrics)

	task, err := NewRolePermissionsChangedTask(rbac.RolePermissionsChanged{RoleID: 3, AffectedUsers: 1, Current: []string{"view_reports"}})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(`
# HELP productmanager_role_change_notified_users_total Identities affected by role permission replacements.
# TYPE productmanager_role_change_notified_users_total counter
productmanager_role_change_notified_users_total 3
`), "productmanager_role_change_notified_users_total"))
}

func TestRoleNoticeJobRejectsBadPayload(t *testing.T) {
	job := NewRoleNoticeJob(nil, discard(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), asynq.NewTask(TaskRolePermissionsChanged, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRoleNoticeJobHolderLookupFailure(t *testing.T) {
	job := NewRoleNoticeJob(fakeHolders{err: errors.New("db down")}, discard(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewRolePermissionsChangedTask(rbac.RolePermissionsChanged{RoleID: 3})
	require.NoError(t, err)
	assert.EqualError(t, job.Handle(context.Background(), task), "db down")
}

func TestDiffNames(t *testing.T) {
	added, removed := diffNames([]string{"a", "b"}, []string{"b", "c"})
	assert.Equal(t, []string{"c"}, added)
	assert.Equal(t, []string{"a"}, removed)
}

func TestSessionsSweepJobPrunesRedisIndex(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := shared.NewRedisSessionStore(client, time.Minute)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.Put(ctx, shared.Session{ID: "s1", IdentityID: 7, CreatedAt: now, LastActivityAt: now, ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, store.Put(ctx, shared.Session{ID: "s2", IdentityID: 7, CreatedAt: now, LastActivityAt: now, ExpiresAt: now.Add(time.Minute)}))
	mr.Del("session:s1")

	registry := prometheus.NewRegistry()
	job := NewSessionsSweepJob(store, discard(), jobmetrics.NewMetrics(registry))
	require.NoError(t, job.Handle(ctx, NewSessionsSweepTask()))

	members, err := client.SMembers(ctx, "session:identity:7").Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, members)
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(`
# HELP productmanager_sessions_swept_total Stale per-identity session index entries removed.
# TYPE productmanager_sessions_swept_total counter
productmanager_sessions_swept_total 1
`), "productmanager_sessions_swept_total"))
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func TestHealthEndpoint(t *testing.T) {
	cases := map[string]struct {
		inspector QueueInspector
		code      int
		body      string
	}{
		"no inspector": {nil, http.StatusOK, `{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0,"paused":false}`},
		"pending": {
			fakeInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 4, Retry: 1, Archived: 2}},
			http.StatusOK,
			`{"queue":"default","pending":4,"active":0,"scheduled":0,"retry":1,"archived":2,"paused":false}`,
		},
		"redis down": {fakeInspector{err: errors.New("down")}, http.StatusServiceUnavailable, ""},
		"no info":    {fakeInspector{}, http.StatusServiceUnavailable, ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Route("/jobs", NewHandler(tc.inspector, discard()).MountRoutes)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
			assert.Equal(t, tc.code, rec.Code)
			if tc.body != "" {
				assert.JSONEq(t, tc.body, rec.Body.String())
			}
		})
	}
}

func TestNewWorkerValidatesRegistrations(t *testing.T) {
	mr := miniredis.RunT(t)
	opts := asynq.RedisClientOpt{Addr: mr.Addr()}

	_, err := NewWorker(WorkerConfig{RedisOpts: opts, Logger: discard(), Handlers: []TaskHandler{{Type: TaskSessionsSweep}}})
	assert.ErrorContains(t, err, "incomplete handler registration")

	_, err = NewWorker(WorkerConfig{
		RedisOpts: opts,
		Logger:    discard(),
		Cron:      []CronRegistration{{Spec: "every now and then", Task: NewSessionsSweepTask()}},
	})
	assert.ErrorContains(t, err, "jobs: schedule auth:sessions_sweep")

	worker, err := NewWorker(WorkerConfig{
		RedisOpts: opts,
		Logger:    discard(),
		Handlers:  []TaskHandler{{Type: TaskSessionsSweep, Handler: func(context.Context, *asynq.Task) error { return nil }}},
		Cron:      []CronRegistration{{Spec: "*/10 * * * *", Task: NewSessionsSweepTask()}},
	})
	require.NoError(t, err)
	assert.NotNil(t, worker.scheduler)
}

func TestNilWorkerRun(t *testing.T) {
	var w *Worker
	assert.EqualError(t, w.Run(context.Background()), "jobs: worker not configured")
}
