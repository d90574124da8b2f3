package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode names a long-running component cmd/siteaudit can start.
type ServiceMode string

const (
	ServiceModeHTTP   ServiceMode = "http"
	ServiceModeReaper ServiceMode = "reaper"
)

// serviceAll expands to every mode.
const serviceAll = "all"

// ValidServiceModes returns the modes in start order.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeReaper}
}

func (m ServiceMode) valid() bool {
	for _, v := range ValidServiceModes() {
		if m == v {
			return true
		}
	}
	return false
}

// ParseServices reads a comma separated SERVICES value such as "http,reaper" or "all".
// Names are case-insensitive and duplicates collapse. Unknown names are an error.
func ParseServices(raw string) (map[ServiceMode]bool, error) {
	enabled := make(map[ServiceMode]bool, 2)
	for part := range strings.SplitSeq(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		switch mode := ServiceMode(name); {
		case name == "":
		case name == serviceAll:
			for _, m := range ValidServiceModes() {
				enabled[m] = true
			}
		case mode.valid():
			enabled[mode] = true
		default:
			return nil, fmt.Errorf("unknown service %q in SERVICES (want http, reaper or all)", name)
		}
	}
	if len(enabled) == 0 {
		return nil, errors.New("SERVICES must name at least one service")
	}
	return enabled, nil
}

// ReaperConfig controls retention. In-memory jobs and persisted audit runs age out
// independently.
type ReaperConfig struct {
	Interval     time.Duration `env:"INTERVAL"      envDefault:"10m"`
	JobRetention time.Duration `env:"JOB_RETENTION" envDefault:"48h"`
	// HistoryRetention applies to the audit_runs table. The default is 90 days.
	HistoryRetention time.Duration `env:"HISTORY_RETENTION" envDefault:"2160h"`
	// BatchSize caps the rows removed by one DELETE.
	BatchSize int `env:"BATCH_SIZE" envDefault:"1000"`
}

const (
	minReaperInterval    = time.Minute
	minJobRetention      = time.Hour
	minHistoryRetention  = 24 * time.Hour
	maxReaperBatchSize   = 10000
	reaperBatchSizeFloor = 1
)

func (r *ReaperConfig) Sanitize() {
	r.Interval = max(r.Interval, minReaperInterval)
	r.JobRetention = max(r.JobRetention, minJobRetention)
	r.HistoryRetention = max(r.HistoryRetention, minHistoryRetention)
	r.BatchSize = min(max(r.BatchSize, reaperBatchSizeFloor), maxReaperBatchSize)
}
