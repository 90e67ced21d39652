// Package validator provides configuration validation
package validator

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"folio-core/internal/config/schema"
	"folio-core/internal/signing"
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string // Field path (e.g., "queue.views.attempts")
	Value   string // Current value (masked for secrets)
	Message string // Error message
	Hint    string // Fix suggestion
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult contains all validation errors
type ValidationResult struct {
	Errors []ValidationError
}

// IsValid returns true if there are no validation errors
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Error returns a formatted error message
func (r *ValidationResult) Error() string {
	if r.IsValid() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n\n")

	for i, err := range r.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Field)
		if err.Value != "" {
			fmt.Fprintf(&sb, "     Current value: %s\n", err.Value)
		}
		fmt.Fprintf(&sb, "     Error: %s\n", err.Message)
		if err.Hint != "" {
			fmt.Fprintf(&sb, "     Hint: %s\n", err.Hint)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// AddError adds a validation error
func (r *ValidationResult) AddError(field, value, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Hint:    hint,
	})
}

// HasField reports whether any error was recorded for field
func (r *ValidationResult) HasField(field string) bool {
	for _, e := range r.Errors {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Validator validates configuration
type Validator struct {
	rules []ValidationRule
}

// ValidationRule is a function that validates configuration
type ValidationRule func(cfg *schema.Root, result *ValidationResult)

// NewValidator creates a new Validator with default rules
func NewValidator() *Validator {
	v := &Validator{
		rules: make([]ValidationRule, 0),
	}

	v.AddRule(validateRedis)
	v.AddRule(validatePostgres)
	v.AddRule(validateCache)
	v.AddRule(validateRateLimit)
	v.AddRule(validateSigning)
	v.AddRule(validateQueue)
	v.AddRule(validateViews)
	v.AddRule(validateHTTP)
	v.AddRule(validateLog)

	return v
}

// AddRule adds a validation rule
func (v *Validator) AddRule(rule ValidationRule) {
	v.rules = append(v.rules, rule)
}

// Validate validates the configuration
func (v *Validator) Validate(cfg *schema.Root) *ValidationResult {
	result := &ValidationResult{
		Errors: make([]ValidationError, 0),
	}

	for _, rule := range v.rules {
		rule(cfg, result)
	}

	return result
}

// ValidateConfig is a convenience function that creates a validator and validates
func ValidateConfig(cfg *schema.Root) *ValidationResult {
	return NewValidator().Validate(cfg)
}

// ============================================================================
// Validation Rules
// ============================================================================

func validateRedis(cfg *schema.Root, result *ValidationResult) {
	if cfg.Redis.URL.IsEmpty() {
		return
	}
	u, err := url.Parse(cfg.Redis.URL.Value())
	if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
		result.AddError("redis.url",
			cfg.Redis.URL.String(),
			"invalid redis URL",
			"Use redis://[:password@]host:port[/db] or rediss://")
	}
	if cfg.Redis.PoolSize < 0 {
		result.AddError("redis.pool_size",
			fmt.Sprintf("%d", cfg.Redis.PoolSize),
			"pool_size cannot be negative",
			"Set a value >= 0 (0 uses the driver default)")
	}
}

func validatePostgres(cfg *schema.Root, result *ValidationResult) {
	if cfg.Postgres.DSN.IsEmpty() {
		if cfg.Signing.FromDatabase {
			result.AddError("postgres.dsn",
				"",
				"signing.from_database requires a database connection",
				"Set FOLIO_DATABASE_URL or disable signing.from_database")
		}
		return
	}
	if cfg.Postgres.MinConns > cfg.Postgres.MaxConns {
		result.AddError("postgres.min_conns",
			fmt.Sprintf("%d", cfg.Postgres.MinConns),
			"min_conns cannot exceed max_conns",
			fmt.Sprintf("Set a value <= %d", cfg.Postgres.MaxConns))
	}
}

func validateCache(cfg *schema.Root, result *ValidationResult) {
	if cfg.Cache.Prefix == "" || strings.Contains(cfg.Cache.Prefix, ":") {
		result.AddError("cache.prefix",
			cfg.Cache.Prefix,
			"prefix must be non-empty and cannot contain ':'",
			"Use a single word such as \"folio\"")
	}
	if cfg.Cache.DefaultTTL < 0 {
		result.AddError("cache.default_ttl",
			cfg.Cache.DefaultTTL.String(),
			"default_ttl cannot be negative",
			"Use 0 for no expiry")
	}
}

func validateRateLimit(cfg *schema.Root, result *ValidationResult) {
	names := make([]string, 0, len(cfg.RateLimit.Presets))
	for name := range cfg.RateLimit.Presets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		preset := cfg.RateLimit.Presets[name]
		field := "rate_limit.presets." + name
		if preset.MaxRequests < 1 {
			result.AddError(field+".max_requests",
				fmt.Sprintf("%d", preset.MaxRequests),
				"max_requests must be at least 1",
				"Set a value >= 1")
		}
		if preset.Window <= 0 {
			result.AddError(field+".window",
				preset.Window.String(),
				"window must be positive",
				"Use a duration such as 60s or 15m")
		}
	}
}

func validateSigning(cfg *schema.Root, result *ValidationResult) {
	if _, err := signing.ParseTTL(cfg.Signing.Expiry); err != nil {
		result.AddError("signing.expiry",
			cfg.Signing.Expiry,
			"invalid expiry",
			"Use <number><unit> with unit one of ms, s, m, h, d, w, y")
	}
	if cfg.Signing.Enabled && cfg.Signing.Secret.IsEmpty() && !cfg.Signing.FromDatabase {
		result.AddError("signing.secret",
			"",
			"signing is enabled but no secret is configured",
			"Set FOLIO_SIGNING_SECRET")
	}
	if cfg.Signing.MemoSize < 0 {
		result.AddError("signing.memo_size",
			fmt.Sprintf("%d", cfg.Signing.MemoSize),
			"memo_size cannot be negative",
			"Use 0 to disable memoization")
	}
}

func validateQueue(cfg *schema.Root, result *ValidationResult) {
	validatePolicy("queue.views", cfg.Queue.Views, result)
	validatePolicy("queue.view_sync", cfg.Queue.ViewSync, result)
	validatePolicy("queue.images", cfg.Queue.Images, result)

	if cfg.Queue.LeaseTTL <= 0 {
		result.AddError("queue.lease_ttl",
			cfg.Queue.LeaseTTL.String(),
			"lease_ttl must be positive",
			"Use a duration longer than the slowest job")
	}
}

func validatePolicy(field string, p schema.QueuePolicy, result *ValidationResult) {
	if p.Attempts < 1 {
		result.AddError(field+".attempts",
			fmt.Sprintf("%d", p.Attempts),
			"attempts must be at least 1",
			"Set a value >= 1")
	}
	if p.Backoff < 0 {
		result.AddError(field+".backoff",
			p.Backoff.String(),
			"backoff cannot be negative",
			"")
	}
	if p.Concurrency < 1 {
		result.AddError(field+".concurrency",
			fmt.Sprintf("%d", p.Concurrency),
			"concurrency must be at least 1",
			"Set a value >= 1")
	}
	if p.KeepCompleted < 0 || p.KeepFailed < 0 {
		result.AddError(field+".keep",
			fmt.Sprintf("%d/%d", p.KeepCompleted, p.KeepFailed),
			"retention counts cannot be negative",
			"")
	}
}

func validateViews(cfg *schema.Root, result *ValidationResult) {
	if cfg.Views.RecentTTL <= 0 {
		result.AddError("views.recent_ttl",
			cfg.Views.RecentTTL.String(),
			"recent_ttl must be positive",
			"Use a duration such as 1h")
	}
	if cfg.Views.FlushInterval < 0 {
		result.AddError("views.flush_interval",
			cfg.Views.FlushInterval.String(),
			"flush_interval cannot be negative",
			"Use 0 to disable periodic flushes")
	}
}

func validateHTTP(cfg *schema.Root, result *ValidationResult) {
	if cfg.HTTP.Listen == "" {
		return
	}
	host, _, err := net.SplitHostPort(cfg.HTTP.Listen)
	if err != nil {
		result.AddError("http.listen",
			cfg.HTTP.Listen,
			"invalid listen address",
			"Use host:port, e.g. 0.0.0.0:9100")
		return
	}
	if host != "" && host != "localhost" && net.ParseIP(host) == nil {
		result.AddError("http.listen",
			cfg.HTTP.Listen,
			"invalid host address",
			"Use a valid IP address or 0.0.0.0")
	}
}

func validateLog(cfg *schema.Root, result *ValidationResult) {
	switch cfg.Log.Level {
	case "", schema.LogLevelDebug, schema.LogLevelInfo, schema.LogLevelWarn, schema.LogLevelError:
	default:
		result.AddError("log.level",
			cfg.Log.Level,
			"invalid log level",
			"Use one of: debug, info, warn, error")
	}
	switch cfg.Log.Format {
	case "", schema.LogFormatText, schema.LogFormatJSON:
	default:
		result.AddError("log.format",
			cfg.Log.Format,
			"invalid log format",
			"Use one of: text, json")
	}
}
