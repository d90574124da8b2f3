package config

import (
	"maps"
	"strings"
	"time"
)

const appName = "siteaudit"

// ObservabilityConfig covers StatsD metrics and outbound alerts for failed audits.
type ObservabilityConfig struct {
	Metrics MetricsConfig `envPrefix:"METRICS_"`
	Alerts  AlertsConfig  `envPrefix:"ALERTS_"`
}

func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Alerts.Sanitize()
}

// MetricsConfig selects the StatsD endpoint. Tags are added to every metric, e.g.
// METRICS_TAGS=env:prod,region:us-east.
type MetricsConfig struct {
	Enabled       bool              `env:"ENABLED"        envDefault:"false"`
	StatsdAddress string            `env:"STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string            `env:"PREFIX"         envDefault:"siteaudit"`
	Tags          map[string]string `env:"TAGS"           envKeyValSeparator:":"`
}

func (c *MetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	c.Enabled = c.Enabled && c.StatsdAddress != ""

	tags := make(map[string]string, len(c.Tags))
	for k, v := range c.Tags {
		if k = strings.TrimSpace(k); k != "" {
			tags[k] = strings.TrimSpace(v)
		}
	}
	c.Tags = tags
}

// GlobalTags returns a copy of the configured tags.
func (c *MetricsConfig) GlobalTags() map[string]string {
	return maps.Clone(c.Tags)
}

// AlertsConfig controls Slack and PagerDuty alerts for audits that could not be completed.
type AlertsConfig struct {
	Enabled    bool          `env:"ENABLED"     envDefault:"false"`
	Timeout    time.Duration `env:"TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"RETRY_LIMIT" envDefault:"3"`
	// Cooldown suppresses repeat alerts for the same target domain.
	Cooldown time.Duration `env:"COOLDOWN" envDefault:"15m"`
	// NotifyDegraded also alerts, at warning severity, when a completed audit had a
	// collaborator fail.
	NotifyDegraded bool `env:"NOTIFY_DEGRADED" envDefault:"false"`

	Slack     SlackAlertConfig     `envPrefix:"SLACK_"`
	PagerDuty PagerDutyAlertConfig `envPrefix:"PAGERDUTY_"`
}

func (c *AlertsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	c.RetryLimit = min(max(c.RetryLimit, 0), 10)
	c.Cooldown = max(c.Cooldown, 0)

	c.Slack.sanitize()
	c.PagerDuty.sanitize()
	c.Slack.Enabled = c.Enabled && c.Slack.Enabled && c.Slack.WebhookURL != ""
	c.PagerDuty.Enabled = c.Enabled && c.PagerDuty.Enabled && c.PagerDuty.RoutingKey != ""
}

// HasSinks reports whether at least one alert destination survived sanitising.
func (c *AlertsConfig) HasSinks() bool {
	return c.Slack.Enabled || c.PagerDuty.Enabled
}

type SlackAlertConfig struct {
	Enabled    bool   `env:"ENABLED"  envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME" envDefault:"siteaudit"`
	// ReportURLPrefix is the public base of the audits API, e.g. https://audit.example.com/api/audits.
	ReportURLPrefix string `env:"REPORT_URL_PREFIX"`
}

func (c *SlackAlertConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	c.Username = orDefault(c.Username, appName)
	c.ReportURLPrefix = strings.TrimRight(strings.TrimSpace(c.ReportURLPrefix), "/")
}

// PagerDutyAlertConfig targets the Events API v2.
type PagerDutyAlertConfig struct {
	Enabled    bool   `env:"ENABLED"   envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"    envDefault:"siteaudit"`
	Component  string `env:"COMPONENT" envDefault:"audit-engine"`
}

func (c *PagerDutyAlertConfig) sanitize() {
	c.RoutingKey = strings.TrimSpace(c.RoutingKey)
	c.Source = orDefault(c.Source, appName)
	c.Component = orDefault(c.Component, "audit-engine")
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `env:"LEVEL"  envDefault:"info"`
	Format string `env:"FORMAT" envDefault:""`
}

// Sanitize falls back to info and picks text logs in dev mode, JSON otherwise.
func (c *LogConfig) Sanitize(isDev bool) {
	switch c.Level = strings.ToLower(strings.TrimSpace(c.Level)); c.Level {
	case "debug", "info", "warn", "error":
	default:
		c.Level = "info"
	}
	switch c.Format = strings.ToLower(strings.TrimSpace(c.Format)); {
	case c.Format == "json", c.Format == "text":
	case isDev:
		c.Format = "text"
	default:
		c.Format = "json"
	}
}
