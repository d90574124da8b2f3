package config

import (
	"os"
	"strings"
)

// AppConfig is everything cmd/siteaudit and cmd/siteaudit-admin read from the environment.
// Each concern lives in its own file: audit.go, database.go, http.go, services.go and
// observability.go. Call Sanitize after parsing.
type AppConfig struct {
	// IsDev switches to text logs. NODE_ENV=development also enables it.
	IsDev bool `env:"DEV" envDefault:"false"`

	Audit     AuditConfig     `envPrefix:"AUDIT_"`
	Cache     CacheConfig     `envPrefix:"CACHE_"`
	Scoring   ScoringConfig   `envPrefix:"SCORING_"`
	PageSpeed PageSpeedConfig `envPrefix:"PAGESPEED_"`
	Checks    ChecksConfig    `envPrefix:"CHECKS_"`

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	HTTP     HTTPConfig

	// Services is the SERVICES list parsed by ParseServices.
	Services string       `env:"SERVICES" envDefault:"http,reaper"`
	Reaper   ReaperConfig `envPrefix:"REAPER_"`

	Observability ObservabilityConfig
	Log           LogConfig `envPrefix:"LOG_"`
}

type sanitizer interface{ Sanitize() }

// Sanitize clamps every section to safe values.
func (c *AppConfig) Sanitize() {
	for _, s := range []sanitizer{
		&c.Audit, &c.Cache, &c.Scoring, &c.PageSpeed, &c.Checks,
		&c.Postgres, &c.Redis, &c.HTTP,
		&c.Reaper, &c.Observability,
	} {
		s.Sanitize()
	}

	if !c.IsDev {
		switch strings.ToLower(strings.TrimSpace(os.Getenv("NODE_ENV"))) {
		case "development", "dev":
			c.IsDev = true
		}
	}
	c.Log.Sanitize(c.IsDev)
}

// GetEnabledServices parses Services.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	enabled, err := c.GetEnabledServices()
	return err == nil && enabled[mode]
}

// IsHTTPServerEnabled is false when SERVICES is invalid.
func (c *AppConfig) IsHTTPServerEnabled() bool { return c.serviceEnabled(ServiceModeHTTP) }

func (c *AppConfig) IsReaperEnabled() bool { return c.serviceEnabled(ServiceModeReaper) }
