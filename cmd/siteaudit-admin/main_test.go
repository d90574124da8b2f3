package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-site-audit/config"
	"github.com/target/mmk-site-audit/internal/domain/model"
	"github.com/target/mmk-site-audit/internal/migrate"
	"github.com/target/mmk-site-audit/internal/testutil"
)

func TestNewAppCommands(t *testing.T) {
	app := newApp(&bytes.Buffer{})

	var names []string
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"run", "migrate", "history", "prune-history", "archive"}, names)
}

func TestValidateFormat(t *testing.T) {
	require.NoError(t, validateFormat("text"))
	require.NoError(t, validateFormat("json"))
	require.Error(t, validateFormat("yaml"))
}

func TestWriteJob(t *testing.T) {
	t.Run("completed job as json", func(t *testing.T) {
		var buf bytes.Buffer
		job := testutil.NewAuditJob("job-1").Completed(88).Build()
		require.NoError(t, writeJob(&buf, job, formatJSON))

		var decoded model.AuditJob
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "job-1", decoded.ID)
		assert.Equal(t, model.JobStatusCompleted, decoded.Status)
	})

	t.Run("completed job as text", func(t *testing.T) {
		var buf bytes.Buffer
		job := testutil.NewAuditJob("job-2").Completed(88).Build()
		require.NoError(t, writeJob(&buf, job, formatText))
		assert.Contains(t, buf.String(), "Overall score: 88.0")
		assert.Contains(t, buf.String(), "Duration: 30s")
	})

	t.Run("failed job prints and errors", func(t *testing.T) {
		var buf bytes.Buffer
		job := testutil.NewAuditJob("job-3").Failed(model.JobErrorFetchFailed, "no such host").Build()
		err := writeJob(&buf, job, formatText)
		require.EqualError(t, err, "audit job-3 failed: no such host")
		assert.Contains(t, buf.String(), "Error: no such host (fetch_failed)")
	})
}

func TestWriteMigrationStatus(t *testing.T) {
	var empty bytes.Buffer
	require.NoError(t, writeMigrationStatus(&empty, nil))
	assert.Equal(t, "(no migrations applied)\n", empty.String())

	var buf bytes.Buffer
	applied := []migrate.Applied{{Version: "0001_audit_runs.sql", AppliedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}}
	require.NoError(t, writeMigrationStatus(&buf, applied))
	assert.Equal(t, "0001_audit_runs.sql\t2025-01-02T03:04:05Z\n", buf.String())
}

func TestHasRedisConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.RedisConfig
		want bool
	}{
		{name: "nil", want: false},
		{name: "direct uri", cfg: &config.RedisConfig{URI: "redis://localhost:6379"}, want: true},
		{name: "direct without uri", cfg: &config.RedisConfig{}, want: false},
		{name: "sentinel nodes", cfg: &config.RedisConfig{UseSentinel: true, SentinelNodes: []string{"a:26379"}}, want: true},
		{name: "sentinel without nodes", cfg: &config.RedisConfig{UseSentinel: true, URI: "redis://x"}, want: false},
		{name: "cluster uri fallback", cfg: &config.RedisConfig{UseCluster: true, URI: "redis://x"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasRedisConfig(tt.cfg))
		})
	}
}
