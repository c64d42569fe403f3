package rbac_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/productmanager/internal/platform/httpx"
	"github.com/odyssey-erp/productmanager/internal/rbac"
	"github.com/odyssey-erp/productmanager/internal/shared"
)

func newRolesRouter(f *gateFixture) chi.Router {
	svc := newService(f.store, nil)
	h := rbac.NewHandler(discardLogger(), svc, f.gate, httpx.ErrorResponder{}, shared.RoleSuperAdmin)
	r := chi.NewRouter()
	r.Route("/api/roles", h.MountRoutes)
	return r
}

func send(router http.Handler, method, path, body string, cred credential) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.token)
	req.AddCookie(&http.Cookie{Name: "sessionId", Value: cred.sessionID})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRolesHandlerAssignPermissions(t *testing.T) {
	f := newGateFixture(t, rbac.RoleSourceToken)
	router := newRolesRouter(f)
	admin := f.login(t, f.store.AddIdentity("admin", "hash", shared.RoleSuperAdmin))
	f.store.AddIdentity("aud", "hash", shared.RoleAuditor)
	auditor := f.store.RoleByName(shared.RoleAuditor)

	body := `{"permissionIds":[` + strconv.FormatInt(f.store.PermissionID(shared.PermViewReports), 10) + `]}`
	rec := send(router, http.MethodPut, "/api/roles/"+strconv.FormatInt(auditor.ID, 10)+"/permissions", body, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var update rbac.PermissionUpdate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &update))
	assert.Equal(t, []string{"view_reports"}, update.Permissions)
	assert.Equal(t, 1, update.AffectedUsers)
}

func TestRolesHandlerAssignRequiresSuperAdmin(t *testing.T) {
	f := newGateFixture(t, rbac.RoleSourceToken)
	router := newRolesRouter(f)
	aud := f.login(t, f.store.AddIdentity("aud", "hash", shared.RoleAuditor))
	auditor := f.store.RoleByName(shared.RoleAuditor)

	rec := send(router, http.MethodPost, "/api/roles/"+strconv.FormatInt(auditor.ID, 10)+"/permissions", `{"permissionIds":[1]}`, aud)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, []int64{f.store.PermissionID(shared.PermViewProducts), f.store.PermissionID(shared.PermViewReports)}, sortedIDs(f.store.Edges(auditor.ID)))
}

func TestRolesHandlerCRUD(t *testing.T) {
	f := newGateFixture(t, rbac.RoleSourceToken)
	router := newRolesRouter(f)
	admin := f.login(t, f.store.AddIdentity("admin", "hash", shared.RoleSuperAdmin))

	rec := send(router, http.MethodPost, "/api/roles", `{"name":"Viewer","description":"Read only"}`, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Role rbac.Role `json:"role"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := strconv.FormatInt(created.Role.ID, 10)

	rec = send(router, http.MethodPost, "/api/roles", `{"name":"Viewer"}`, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(router, http.MethodPut, "/api/roles/"+id, `{"description":"Looks only"}`, admin)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = send(router, http.MethodGet, "/api/roles/"+id, ``, admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Looks only")

	rec = send(router, http.MethodGet, "/api/roles/permissions", ``, admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), shared.PermDeleteProducts)

	rec = send(router, http.MethodDelete, "/api/roles/"+id, ``, admin)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = send(router, http.MethodGet, "/api/roles/"+id, ``, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = send(router, http.MethodGet, "/api/roles/abc", ``, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRolesHandlerDeleteAssignedRole(t *testing.T) {
	f := newGateFixture(t, rbac.RoleSourceToken)
	router := newRolesRouter(f)
	admin := f.login(t, f.store.AddIdentity("admin", "hash", shared.RoleSuperAdmin))
	auditor := f.store.RoleByName(shared.RoleAuditor)
	f.store.AddIdentity("aud", "hash", shared.RoleAuditor)

	rec := send(router, http.MethodDelete, "/api/roles/"+strconv.FormatInt(auditor.ID, 10), ``, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "referential", problemOf(t, rec).Code)
}

func sortedIDs(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}
