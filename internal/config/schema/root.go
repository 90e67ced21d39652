// Package schema defines configuration structure types
package schema

import "time"

// Root is the top-level configuration structure
type Root struct {
	Redis     RedisConfig     `yaml:"redis" json:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres" json:"postgres"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Signing   SigningConfig   `yaml:"signing" json:"signing"`
	Queue     QueueConfig     `yaml:"queue" json:"queue"`
	Views     ViewsConfig     `yaml:"views" json:"views"`
	HTTP      HTTPConfig      `yaml:"http" json:"http"`
	Media     MediaConfig     `yaml:"media" json:"media"`
	Log       LogConfig       `yaml:"log" json:"log"`
}

// CacheConfig contains cache-aside settings
type CacheConfig struct {
	// Prefix is the first segment of every key ({prefix}:{domain}:...)
	Prefix       string        `yaml:"prefix" json:"prefix"`
	DefaultTTL   time.Duration `yaml:"default_ttl" json:"default_ttl"`
	Singleflight bool          `yaml:"singleflight" json:"singleflight"`
}

// ViewsConfig contains view-count accumulation settings
type ViewsConfig struct {
	RecentTTL     time.Duration `yaml:"recent_ttl" json:"recent_ttl"`
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
}

// HTTPConfig contains settings for the health listener and middleware
type HTTPConfig struct {
	Listen string `yaml:"listen" json:"listen"`
	// ExposeReasons adds the signed-URL failure reason as a response header
	ExposeReasons bool `yaml:"expose_reasons" json:"expose_reasons"`
}

// MediaConfig locates uploaded originals and transcoded output
type MediaConfig struct {
	// Root bounds cover cleanup; paths outside it are never removed
	Root      string `yaml:"root" json:"root"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`
}
