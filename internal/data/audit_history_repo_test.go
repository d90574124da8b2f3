package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-site-audit/internal/domain/model"
	apperrors "github.com/target/mmk-site-audit/internal/errors"
	"github.com/target/mmk-site-audit/internal/testutil"
)

func TestAuditHistoryRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewAuditHistoryRepo(db)
		ctx := context.Background()

		completed := testutil.NewAuditJob("job-a").Completed(82.5).Build()
		failed := testutil.NewAuditJob("job-b").WithTarget("https://other.example/").
			Failed(model.JobErrorFetchFailed, "connection refused").Build()

		require.NoError(t, repo.RecordAudit(ctx, completed))
		require.NoError(t, repo.RecordAudit(ctx, failed))
		require.NoError(t, repo.RecordAudit(ctx, testutil.NewAuditJob("job-c").Build()), "queued jobs are ignored")

		got, err := repo.Get(ctx, "job-a")
		require.NoError(t, err)
		require.NotNil(t, got.OverallScore)
		assert.InDelta(t, 82.5, *got.OverallScore, 0.001)
		var cats map[string]any
		require.NoError(t, json.Unmarshal(got.CategoryScores, &cats))
		assert.Contains(t, cats, "technical")

		runs, err := repo.List(ctx, model.AuditRunListOptions{TargetURL: "other.example"})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, model.JobStatusFailed, runs[0].Status)
		require.NotNil(t, runs[0].ErrorReason)
		assert.Equal(t, "connection refused", *runs[0].ErrorReason)

		all, err := repo.List(ctx, model.AuditRunListOptions{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		err = repo.RecordAudit(ctx, completed)
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))

		_, err = repo.Get(ctx, "missing")
		assert.True(t, apperrors.IsNotFound(err))

		deleted, err := repo.DeleteBefore(ctx, time.Now().Add(time.Hour), 1)
		require.NoError(t, err)
		assert.EqualValues(t, 1, deleted)
		deleted, err = repo.DeleteBefore(ctx, time.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		assert.EqualValues(t, 1, deleted)
		deleted, err = repo.DeleteBefore(ctx, time.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Zero(t, deleted)
	})
}
