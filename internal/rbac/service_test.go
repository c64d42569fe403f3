package rbac_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/productmanager/internal/rbac"
	"github.com/odyssey-erp/productmanager/internal/rbac/rbactest"
	"github.com/odyssey-erp/productmanager/internal/shared"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []rbac.RolePermissionsChanged
	err    error
}

func (n *recordingNotifier) RolePermissionsChanged(_ context.Context, event rbac.RolePermissionsChanged) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(store rbac.Store, notifier rbac.Notifier) *rbac.Service {
	return rbac.NewService(store, notifier, discardLogger(), rbac.ServiceConfig{})
}

func TestUpdateRolePermissionsReportsDiff(t *testing.T) {
	ctx := context.Background()
	store := rbactest.Seeded()
	store.AddIdentity("aud_one", "hash", shared.RoleAuditor)
	store.AddIdentity("aud_two", "hash", shared.RoleAuditor)
	notifier := &recordingNotifier{}
	svc := newService(store, notifier)
	auditor := store.RoleByName(shared.RoleAuditor)

	ctx = shared.ContextWithActor(ctx, shared.Actor{IdentityID: 1, RoleName: shared.RoleSuperAdmin})
	update, err := svc.UpdateRolePermissions(ctx, auditor.ID, []int64{
		store.PermissionID(shared.PermViewReports),
		store.PermissionID(shared.PermEditProducts),
	})
	require.NoError(t, err)
	assert.Equal(t, auditor.ID, update.RoleID)
	assert.Equal(t, shared.RoleAuditor, update.RoleName)
	assert.Equal(t, []string{"view_products", "view_reports"}, update.PreviousPermissions)
	assert.Equal(t, []string{"edit_products", "view_reports"}, update.Permissions)
	assert.Equal(t, 2, update.AffectedUsers)
	assert.NotEmpty(t, update.Warning)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, int64(1), notifier.events[0].ChangedBy)
	assert.Equal(t, 2, notifier.events[0].AffectedUsers)
}

func TestUpdateRolePermissionsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := rbactest.Seeded()
	svc := newService(store, nil)
	role := store.RoleByName(shared.RoleRegistrador)
	ids := []int64{store.PermissionID(shared.PermViewProducts), store.PermissionID(shared.PermDeleteProducts)}

	_, err := svc.UpdateRolePermissions(ctx, role.ID, ids)
	require.NoError(t, err)
	first := store.Edges(role.ID)
	second, err := svc.UpdateRolePermissions(ctx, role.ID, ids)
	require.NoError(t, err)
	assert.Equal(t, first, store.Edges(role.ID))
	assert.Equal(t, second.PreviousPermissions, second.Permissions)
	assert.Equal(t, 0, second.AffectedUsers)
	assert.Empty(t, second.Warning)
}

func TestUpdateRolePermissionsRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	store := rbactest.Seeded()
	svc := newService(store, nil)
	role := store.RoleByName(shared.RoleAuditor)
	before := store.Edges(role.ID)
	view := store.PermissionID(shared.PermViewProducts)

	_, err := svc.UpdateRolePermissions(ctx, 9999, []int64{view})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	cases := map[string][]int64{
		"empty":     {},
		"nil":       nil,
		"zero id":   {0},
		"duplicate": {view, view},
		"unknown":   {view, 424242},
	}
	for name, ids := range cases {
		_, err := svc.UpdateRolePermissions(ctx, role.ID, ids)
		assert.ErrorIs(t, err, shared.ErrValidation, name)
	}
	assert.Equal(t, before, store.Edges(role.ID))
}

func TestUpdateRolePermissionsConcurrentReplacementsDoNotMerge(t *testing.T) {
	ctx := context.Background()
	store := rbactest.Seeded()
	svc := newService(store, nil)
	role := store.RoleByName(shared.RoleRegistrador)
	setA := []int64{store.PermissionID(shared.PermViewProducts), store.PermissionID(shared.PermCreateProducts)}
	setB := []int64{store.PermissionID(shared.PermViewReports), store.PermissionID(shared.PermDeleteProducts), store.PermissionID(shared.PermViewRoles)}

	var wg sync.WaitGroup
	for _, ids := range [][]int64{setA, setB} {
		wg.Add(1)
		go func(ids []int64) {
			defer wg.Done()
			_, err := svc.UpdateRolePermissions(ctx, role.ID, ids)
			assert.NoError(t, err)
		}(ids)
	}
	wg.Wait()

	final := store.Edges(role.ID)
	assert.True(t, assert.ObjectsAreEqual(sortedIDs(setA), final) || assert.ObjectsAreEqual(sortedIDs(setB), final), "final edges %v", final)
}

func TestUpdateRolePermissionsNotifierFailureIsAdvisory(t *testing.T) {
	store := rbactest.Seeded()
	svc := newService(store, &recordingNotifier{err: errors.New("queue down")})
	role := store.RoleByName(shared.RoleAuditor)
	_, err := svc.UpdateRolePermissions(context.Background(), role.ID, []int64{store.PermissionID(shared.PermViewReports)})
	assert.NoError(t, err)
}

func TestDeleteRoleReferentialCheck(t *testing.T) {
	ctx := context.Background()
	store := rbactest.Seeded()
	svc := newService(store, nil)
	auditor := store.RoleByName(shared.RoleAuditor)
	ident := store.AddIdentity("aud", "hash", shared.RoleAuditor)

	err := svc.DeleteRole(ctx, auditor.ID)
	assert.ErrorIs(t, err, shared.ErrReferential)

	store.RemoveIdentity(ident.ID)
	require.NoError(t, svc.DeleteRole(ctx, auditor.ID))
	_, err = svc.GetRole(ctx, auditor.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	assert.ErrorIs(t, svc.DeleteRole(ctx, auditor.ID), shared.ErrNotFound)
}

func TestCreateRole(t *testing.T) {
	ctx := context.Background()
	store := rbactest.Seeded()
	svc := newService(store, nil)

	role, err := svc.CreateRole(ctx, rbac.RoleInput{Name: " Inventory Clerk ", Description: "<b>Counts</b> stock"})
	require.NoError(t, err)
	assert.Equal(t, "Inventory Clerk", role.Name)
	assert.Equal(t, "Counts stock", role.Description)

	_, err = svc.CreateRole(ctx, rbac.RoleInput{Name: "Inventory Clerk"})
	assert.ErrorIs(t, err, shared.ErrConstraint)

	_, err = svc.CreateRole(ctx, rbac.RoleInput{Name: "x"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateRole(ctx, rbac.RoleInput{Name: "Bad<script>"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateRole(t *testing.T) {
	ctx := context.Background()
	store := rbactest.Seeded()
	svc := newService(store, nil)
	registrador := store.RoleByName(shared.RoleRegistrador)
	superAdmin := store.RoleByName(shared.RoleSuperAdmin)

	_, err := svc.UpdateRole(ctx, registrador.ID, rbac.RolePatch{})
	assert.ErrorIs(t, err, shared.ErrValidation)

	desc := "Data entry"
	updated, err := svc.UpdateRole(ctx, registrador.ID, rbac.RolePatch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Data entry", updated.Description)
	assert.Equal(t, shared.RoleRegistrador, updated.Name)

	taken := shared.RoleAuditor
	_, err = svc.UpdateRole(ctx, registrador.ID, rbac.RolePatch{Name: &taken})
	assert.ErrorIs(t, err, shared.ErrConstraint)

	rename := "Admins"
	_, err = svc.UpdateRole(ctx, superAdmin.ID, rbac.RolePatch{Name: &rename})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.UpdateRole(ctx, 9999, rbac.RolePatch{Description: &desc})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGetRoleAndListRoles(t *testing.T) {
	ctx := context.Background()
	store := rbactest.Seeded()
	store.AddIdentity("reg", "hash", shared.RoleRegistrador)
	svc := newService(store, nil)

	detail, err := svc.GetRole(ctx, store.RoleByName(shared.RoleRegistrador).ID)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.UserCount)
	assert.Len(t, detail.Permissions, 3)

	roles, err := svc.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 3)
	assert.Equal(t, shared.RoleAuditor, roles[0].Name)

	perms, err := svc.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, perms, len(shared.PermissionCatalog()))

	_, err = svc.RolePermissions(ctx, 9999)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
