package source

import (
	"time"

	"folio-core/internal/config/schema"
)

// Preset names shared by the rate limiter and the config layer
const (
	PresetStrict   = "strict"
	PresetStandard = "standard"
	PresetRelaxed  = "relaxed"
	PresetAuth     = "auth"
	PresetUpload   = "upload"
	PresetSearch   = "search"
)

// DefaultPresets returns the built-in rate limit presets
func DefaultPresets() map[string]schema.RateLimitPreset {
	return map[string]schema.RateLimitPreset{
		PresetStrict:   {Window: time.Minute, MaxRequests: 10},
		PresetStandard: {Window: time.Minute, MaxRequests: 60},
		PresetRelaxed:  {Window: time.Minute, MaxRequests: 300},
		PresetAuth:     {Window: 15 * time.Minute, MaxRequests: 5},
		PresetUpload:   {Window: time.Hour, MaxRequests: 20},
		PresetSearch:   {Window: time.Minute, MaxRequests: 30},
	}
}

// DefaultSource provides default configuration values
type DefaultSource struct{}

// NewDefaultSource creates a new DefaultSource
func NewDefaultSource() *DefaultSource {
	return &DefaultSource{}
}

// Name returns the source name
func (s *DefaultSource) Name() string {
	return "defaults"
}

// Priority returns the source priority
func (s *DefaultSource) Priority() int {
	return PriorityDefaults
}

// LoadInto loads default values into the configuration
func (s *DefaultSource) LoadInto(cfg *schema.Root) error {
	// Redis defaults (URL stays empty: store disabled until configured)
	cfg.Redis.PoolSize = 10
	cfg.Redis.DialTimeout = 5 * time.Second
	cfg.Redis.ReadTimeout = 3 * time.Second
	cfg.Redis.WriteTimeout = 3 * time.Second
	cfg.Redis.OpTimeout = 2 * time.Second
	cfg.Redis.RetryBackoff = 5 * time.Second

	// Postgres defaults
	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MinConns = 1
	cfg.Postgres.MaxConnLifetime = time.Hour
	cfg.Postgres.ConnectTimeout = 5 * time.Second

	// Cache defaults
	cfg.Cache.Prefix = "folio"
	cfg.Cache.DefaultTTL = 5 * time.Minute

	// Rate limit defaults
	cfg.RateLimit.Presets = DefaultPresets()

	// Signing defaults
	cfg.Signing.Expiry = "1h"
	cfg.Signing.SettingsCacheTTL = time.Minute
	cfg.Signing.MemoSize = 4096

	// Queue defaults
	cfg.Queue.Views = schema.QueuePolicy{
		Attempts: 3, Backoff: time.Second, KeepCompleted: 0, KeepFailed: 1000, Concurrency: 4,
	}
	cfg.Queue.ViewSync = schema.QueuePolicy{
		Attempts: 5, Backoff: 2 * time.Second, KeepCompleted: 10, KeepFailed: 100, Concurrency: 1,
	}
	cfg.Queue.Images = schema.QueuePolicy{
		Attempts: 3, Backoff: time.Second, KeepCompleted: 100, KeepFailed: 500, Concurrency: 2,
	}
	cfg.Queue.PollTimeout = 5 * time.Second
	cfg.Queue.LeaseTTL = 30 * time.Second

	// Views defaults
	cfg.Views.RecentTTL = time.Hour
	cfg.Views.FlushInterval = time.Minute

	// HTTP defaults
	cfg.HTTP.Listen = "0.0.0.0:9100"

	// Media defaults
	cfg.Media.Root = "./uploads"
	cfg.Media.OutputDir = "./uploads/processed"

	// Log defaults
	cfg.Log.Level = schema.LogLevelInfo
	cfg.Log.Format = schema.LogFormatText

	return nil
}
