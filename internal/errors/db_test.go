package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapDBError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  ErrorCode
		wantField string
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "canceled", err: fmt.Errorf("query: %w", context.Canceled), wantCode: ErrCodeCanceled},
		{name: "no rows", err: pgx.ErrNoRows, wantCode: ErrCodeNotFound},
		{
			name:      "unique violation with column",
			err:       &pgconn.PgError{Code: pgerrcode.UniqueViolation, ColumnName: "id"},
			wantCode:  ErrCodeConflict,
			wantField: "id",
		},
		{
			name:      "unique violation parsed from detail",
			err:       fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgerrcode.UniqueViolation, Detail: `Key (id)=(abc) already exists.`}),
			wantCode:  ErrCodeConflict,
			wantField: "id",
		},
		{
			name:      "not null violation",
			err:       &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "target_url"},
			wantCode:  ErrCodeValidation,
			wantField: "target_url",
		},
		{name: "score out of range", err: &pgconn.PgError{Code: pgerrcode.CheckViolation}, wantCode: ErrCodeValidation},
		{name: "server side cancel", err: &pgconn.PgError{Code: pgerrcode.QueryCanceled}, wantCode: ErrCodeTimeout},
		{name: "missing schema", err: &pgconn.PgError{Code: pgerrcode.UndefinedTable}, wantCode: ErrCodeInternal},
		{name: "unmapped pg error", err: &pgconn.PgError{Code: pgerrcode.SyntaxError}, wantCode: ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, GetCode(err))
			assert.Equal(t, tt.wantField, GetField(err))
			assert.ErrorIs(t, err, errors.Unwrap(err))
		})
	}
}

func TestMapDBErrorPassthrough(t *testing.T) {
	require.NoError(t, MapDBError(nil))

	orig := errors.New("boom")
	got := MapDBError(orig)
	assert.Same(t, orig, got)
	assert.Empty(t, GetCode(got))
}

func TestMapDBErrorMissingSchemaMessage(t *testing.T) {
	err := MapDBError(&pgconn.PgError{Code: pgerrcode.UndefinedTable, Message: `relation "audit_runs" does not exist`})
	assert.Contains(t, err.Error(), "run migrations")
	assert.Contains(t, err.Error(), "audit_runs")
}
