package httpx

import (
	"context"
	"errors"
	"net/http"

	apperrors "github.com/target/mmk-site-audit/internal/errors"
)

// DetermineErrorStatus maps an error to an HTTP status and a stable error code.
func DetermineErrorStatus(err error) (int, string) {
	if err == nil {
		return http.StatusOK, ""
	}
	switch code := apperrors.GetCode(err); code {
	case apperrors.ErrCodeInvalidTarget, apperrors.ErrCodeValidation:
		return http.StatusBadRequest, string(code)
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound, string(code)
	case apperrors.ErrCodeNotReady, apperrors.ErrCodeConflict, apperrors.ErrCodeIllegalTransition:
		return http.StatusConflict, string(code)
	case apperrors.ErrCodeShuttingDown:
		return http.StatusServiceUnavailable, string(code)
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout, string(code)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, string(apperrors.ErrCodeTimeout)
	}
	return http.StatusInternalServerError, string(apperrors.ErrCodeInternal)
}

// WriteAppError writes err with the status DetermineErrorStatus picks.
// Internal errors are reported with a generic message.
func WriteAppError(w http.ResponseWriter, err error) {
	status, code := DetermineErrorStatus(err)
	if status == http.StatusInternalServerError {
		err = errors.New("internal server error")
	}
	WriteError(w, ErrorParams{Code: status, ErrCode: code, Err: err})
}
