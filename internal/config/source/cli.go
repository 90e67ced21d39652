package source

import "folio-core/internal/config/schema"

// CLIOverrides holds values passed as command-line flags; empty fields are ignored
type CLIOverrides struct {
	RedisURL    string
	DatabaseURL string
	LogLevel    string
	HTTPListen  string
}

// CLISource applies command-line flag overrides
type CLISource struct {
	overrides CLIOverrides
}

// NewCLISource creates a new CLISource
func NewCLISource(overrides CLIOverrides) *CLISource {
	return &CLISource{overrides: overrides}
}

// Name returns the source name
func (s *CLISource) Name() string {
	return "cli"
}

// Priority returns the source priority
func (s *CLISource) Priority() int {
	return PriorityCLI
}

// LoadInto applies non-empty overrides
func (s *CLISource) LoadInto(cfg *schema.Root) error {
	if s.overrides.RedisURL != "" {
		cfg.Redis.URL = schema.Secret(s.overrides.RedisURL)
	}
	if s.overrides.DatabaseURL != "" {
		cfg.Postgres.DSN = schema.Secret(s.overrides.DatabaseURL)
	}
	if s.overrides.LogLevel != "" {
		cfg.Log.Level = s.overrides.LogLevel
	}
	if s.overrides.HTTPListen != "" {
		cfg.HTTP.Listen = s.overrides.HTTPListen
	}
	return nil
}
