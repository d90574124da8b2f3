package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatLine(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		metric string
		global map[string]string
		local  map[string]string
		want   string
	}{
		{
			name:   "prefixed counter with sorted tags",
			prefix: "siteaudit",
			metric: "audit.transition",
			global: map[string]string{"service": "siteaudit"},
			local:  map[string]string{"result": " success ", "transition": "completed"},
			want:   "siteaudit.audit.transition:1|c|#result:success,service:siteaudit,transition:completed",
		},
		{
			name:   "local tag overrides global",
			metric: "audit.cache",
			global: map[string]string{"env": "prod"},
			local:  map[string]string{"env": "stage"},
			want:   "audit.cache:1|c|#env:stage",
		},
		{
			name:   "reserved characters are replaced",
			metric: " audit/collaborator ",
			local:  map[string]string{"check": "a,b|c", "": "ignored"},
			want:   "audit_collaborator:1|c|#check:a_b_c",
		},
		{
			name:   "empty tag value renders bare key",
			metric: "reaper..run",
			local:  map[string]string{"dry_run": ""},
			want:   "reaper.run:1|c|#dry_run",
		},
		{
			name:   "blank name is dropped",
			metric: "  ",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatLine(tt.prefix, tt.metric, "1", "c", cleanTags(tt.global), tt.local))
		})
	}
}

func TestMetricNamePrefixOnly(t *testing.T) {
	assert.Equal(t, "siteaudit", metricName("siteaudit", "..."))
	assert.Equal(t, "audit.duration", metricName("", "audit.duration"))
}

func TestClientWritesDatagrams(t *testing.T) {
	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	client, err := NewClient(Config{
		Enabled:    true,
		Address:    listener.LocalAddr().String(),
		Prefix:     ".siteaudit.",
		GlobalTags: map[string]string{"service": "siteaudit"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.True(t, client.Enabled())

	read := func() string {
		t.Helper()
		buf := make([]byte, 512)
		require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, err := listener.ReadFrom(buf)
		require.NoError(t, err)
		return string(buf[:n])
	}

	client.Timing("audit.duration", 1500*time.Microsecond, map[string]string{"result": "success"})
	assert.Equal(t, "siteaudit.audit.duration:1.5|ms|#result:success,service:siteaudit", read())

	client.Gauge("audit.queue.running", 2, nil)
	assert.Equal(t, "siteaudit.audit.queue.running:2|g|#service:siteaudit", read())

	assert.Zero(t, client.Dropped())
}

func TestClientClose(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	t.Cleanup(func() { _ = peerConn.Close() })

	client := &Client{conn: clientConn}
	require.True(t, client.Enabled())
	require.NoError(t, client.Close())
	assert.False(t, client.Enabled())
	require.NoError(t, client.Close())

	// writes after close are silently discarded
	client.Count("audit.cache", 1, nil)
	assert.Zero(t, client.Dropped())
}

func TestNilClientIsNoop(t *testing.T) {
	var client *Client
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
	assert.Zero(t, client.Dropped())
	assert.NotPanics(t, func() {
		client.Count("audit.cache", 1, nil)
		client.Gauge("audit.queue.queued", 1, nil)
		client.Timing("audit.duration", time.Second, nil)
	})
}

func TestNewClient(t *testing.T) {
	t.Run("blank address stays disabled", func(t *testing.T) {
		client, err := NewClient(Config{Enabled: true, Address: "   "})
		require.NoError(t, err)
		assert.False(t, client.Enabled())
	})

	t.Run("disabled config never dials", func(t *testing.T) {
		client, err := NewClient(Config{Enabled: false, Address: "bad address"})
		require.NoError(t, err)
		assert.False(t, client.Enabled())
	})

	t.Run("invalid address errors", func(t *testing.T) {
		_, err := NewClient(Config{Enabled: true, Address: "bad address"})
		require.ErrorContains(t, err, "statsd dial")
	})
}

func TestRecorderCapturesPoints(t *testing.T) {
	rec := &Recorder{}
	rec.Count("audit.cache", 1, map[string]string{"result": "hit"})
	rec.Timing("audit.duration", 250*time.Millisecond, nil)

	hits := rec.Find("c", "audit.cache")
	require.Len(t, hits, 1)
	assert.Equal(t, "hit", hits[0].Tags["result"])

	timings := rec.Find("ms", "audit.duration")
	require.Len(t, timings, 1)
	assert.InDelta(t, 250.0, timings[0].Value, 0.001)
	assert.Len(t, rec.Points(), 2)
}
