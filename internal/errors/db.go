package errors

import (
	"context"
	"errors"
	"regexp"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueKeyField pulls the column out of "Key (id)=(abc) already exists.".
var uniqueKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)

type pgMapping struct {
	code    ErrorCode
	message string
}

var pgMappings = map[string]pgMapping{
	pgerrcode.UniqueViolation:           {ErrCodeConflict, "audit run already recorded"},
	pgerrcode.CheckViolation:            {ErrCodeValidation, "audit run failed validation"},
	pgerrcode.NotNullViolation:          {ErrCodeValidation, "audit run failed validation"},
	pgerrcode.InvalidTextRepresentation: {ErrCodeValidation, "audit run field malformed"},
	pgerrcode.QueryCanceled:             {ErrCodeTimeout, "audit history query canceled by the server"},
	pgerrcode.LockNotAvailable:          {ErrCodeTimeout, "audit history lock not available"},
	pgerrcode.UndefinedTable:            {ErrCodeInternal, "audit history schema missing, run migrations"},
	pgerrcode.ForeignKeyViolation:       {ErrCodeValidation, "audit run references missing data"},
	pgerrcode.ExclusionViolation:        {ErrCodeConflict, "audit run overlaps an existing row"},
	pgerrcode.NumericValueOutOfRange:    {ErrCodeValidation, "audit run score out of range"},
	pgerrcode.DiskFull:                  {ErrCodeInternal, "audit history database disk full"},
}

// MapDBError turns pgx and Postgres errors from the audit history into AppErrors. Errors it
// does not recognise are returned unchanged.
func MapDBError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return &AppError{Code: ErrCodeTimeout, Message: "database operation timed out", Cause: err}
	case errors.Is(err, context.Canceled):
		return &AppError{Code: ErrCodeCanceled, Message: "database operation was canceled", Cause: err}
	case errors.Is(err, pgx.ErrNoRows):
		return &AppError{Code: ErrCodeNotFound, Message: "audit run not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	m, ok := pgMappings[pgErr.Code]
	if !ok {
		m = pgMapping{ErrCodeInternal, "a database error occurred"}
	}
	return &AppError{Code: m.code, Message: m.message, Field: pgField(pgErr), Cause: pgErr}
}

func pgField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if pgErr.Code == pgerrcode.UniqueViolation {
		if m := uniqueKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			return m[1]
		}
	}
	return ""
}
