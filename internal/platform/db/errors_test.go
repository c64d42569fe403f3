package db

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/productmanager/internal/shared"
)

func TestMapError(t *testing.T) {
	assert.NoError(t, MapError(nil))
	assert.ErrorIs(t, MapError(pgx.ErrNoRows), shared.ErrNotFound)
	assert.ErrorIs(t, MapError(&pgconn.PgError{Code: "23505", ConstraintName: "roles_name_key"}), shared.ErrConstraint)
	assert.ErrorIs(t, MapError(&pgconn.PgError{Code: "23503"}), shared.ErrReferential)

	plain := errors.New("boom")
	assert.Equal(t, plain, MapError(plain))
}
