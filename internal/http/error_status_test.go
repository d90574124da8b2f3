package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/target/mmk-site-audit/internal/errors"
	"github.com/target/mmk-site-audit/internal/service"
)

func TestDetermineErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{name: "nil", err: nil, wantCode: http.StatusOK},
		{name: "invalid target", err: apperrors.InvalidTarget("x", "missing host"), wantCode: http.StatusBadRequest, wantErr: "invalid_target"},
		{name: "validation", err: apperrors.Validation("bad"), wantCode: http.StatusBadRequest, wantErr: "validation"},
		{name: "not found", err: apperrors.NotFound("gone"), wantCode: http.StatusNotFound, wantErr: "not_found"},
		{name: "wrapped not found", err: fmt.Errorf("get: %w", apperrors.NotFound("gone")), wantCode: http.StatusNotFound, wantErr: "not_found"},
		{name: "not ready", err: apperrors.NotReadyf("running"), wantCode: http.StatusConflict, wantErr: "not_ready"},
		{name: "conflict", err: apperrors.Conflict("dup"), wantCode: http.StatusConflict, wantErr: "conflict"},
		{name: "deadline", err: context.DeadlineExceeded, wantCode: http.StatusGatewayTimeout, wantErr: "timeout"},
		{name: "shutting down", err: service.ErrShuttingDown, wantCode: http.StatusServiceUnavailable, wantErr: "shutting_down"},
		{name: "unknown", err: errors.New("boom"), wantCode: http.StatusInternalServerError, wantErr: "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, errCode := DetermineErrorStatus(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantErr, errCode)
		})
	}
}

func TestWriteAppErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAppError(rec, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.Contains(t, rec.Body.String(), "internal server error")
}
