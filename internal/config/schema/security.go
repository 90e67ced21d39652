package schema

import "time"

// SigningConfig contains signed-URL settings
type SigningConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Secret  Secret `yaml:"secret" json:"secret"`
	// Expiry is a duration spec such as "1h", "30m" or "7d"
	Expiry string `yaml:"expiry" json:"expiry"`
	// FromDatabase reads enabled/secret/expiry from the settings table,
	// falling back to the values above when the row is absent
	FromDatabase     bool          `yaml:"from_database" json:"from_database"`
	SettingsCacheTTL time.Duration `yaml:"settings_cache_ttl" json:"settings_cache_ttl"`
	MemoSize         int           `yaml:"memo_size" json:"memo_size"`
}

// RateLimitConfig contains named presets
type RateLimitConfig struct {
	Presets map[string]RateLimitPreset `yaml:"presets" json:"presets"`
}

// RateLimitPreset is a (window, max requests) bundle
type RateLimitPreset struct {
	Window      time.Duration `yaml:"window" json:"window"`
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
}
