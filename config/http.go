package config

import "time"

// LongPollLimit is the longest GET /api/audits/{id}/result?wait may block.
const LongPollLimit = 60 * time.Second

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	ReadTimeout time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	// WriteTimeout must outlast LongPollLimit; Sanitize raises it when it does not.
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT"    envDefault:"75s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT"     envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	MaxBodyBytes int64 `env:"HTTP_MAX_BODY_BYTES" envDefault:"65536"`
}

func (h *HTTPConfig) Sanitize() {
	if h.Addr == "" {
		h.Addr = ":8080"
	}
	h.ReadTimeout = positiveOr(h.ReadTimeout, 15*time.Second)
	h.WriteTimeout = max(h.WriteTimeout, LongPollLimit+5*time.Second)
	h.IdleTimeout = positiveOr(h.IdleTimeout, 60*time.Second)
	h.ShutdownTimeout = positiveOr(h.ShutdownTimeout, 30*time.Second)
	h.MaxBodyBytes = max(h.MaxBodyBytes, 1<<10)
}

func positiveOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
