package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/productmanager/internal/shared"
)

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestClassifyStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{shared.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{fmt.Errorf("%w: bad sig", shared.ErrInvalidToken), http.StatusUnauthorized, "invalid_token"},
		{shared.ErrExpiredToken, http.StatusUnauthorized, "token_expired"},
		{shared.ErrSessionExpired, http.StatusUnauthorized, "session_expired"},
		{shared.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{shared.ErrForbidden, http.StatusForbidden, "forbidden"},
		{fmt.Errorf("role: %w", shared.ErrNotFound), http.StatusNotFound, "not_found"},
		{shared.ErrReferential, http.StatusBadRequest, "referential"},
		{shared.ErrConstraint, http.StatusBadRequest, "constraint"},
		{shared.NewValidationError("name", "is required"), http.StatusBadRequest, "validation_failed"},
		{errors.New("db down"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		p := Classify(tc.err)
		assert.Equal(t, tc.status, p.Status, tc.err.Error())
		assert.Equal(t, tc.code, p.Code, tc.err.Error())
	}
}

func TestRespondForbiddenPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, &shared.ForbiddenError{RequiredPermission: "view_products", CurrentRole: "Auditor"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, "view_products", p.RequiredPermission)
	assert.Equal(t, "Auditor", p.CurrentRole)
}

func TestRespondValidationFields(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.NewValidationError("password", "too weak"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "too weak", decodeProblem(t, rec).Errors["password"])
}

func TestRespondSuppressesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrorResponder{}.Respond(rec, nil, errors.New("pq: relation missing"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, decodeProblem(t, rec).Detail)

	rec = httptest.NewRecorder()
	ErrorResponder{Development: true}.Respond(rec, nil, errors.New("pq: relation missing"))
	assert.Equal(t, "pq: relation missing", decodeProblem(t, rec).Detail)
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "x", dst.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nope":1}`))
	assert.ErrorIs(t, DecodeJSON(req, &dst), shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	assert.ErrorIs(t, DecodeJSON(req, &dst), shared.ErrValidation)
}
