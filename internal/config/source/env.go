package source

import (
	"os"
	"strconv"
	"strings"
	"time"

	"folio-core/internal/config/schema"
)

// EnvSource loads configuration from environment variables
type EnvSource struct {
	prefix string
}

// NewEnvSource creates a new EnvSource with the specified prefix
func NewEnvSource(prefix string) *EnvSource {
	return &EnvSource{
		prefix: prefix,
	}
}

// Name returns the source name
func (s *EnvSource) Name() string {
	return "env"
}

// Priority returns the source priority
func (s *EnvSource) Priority() int {
	return PriorityEnv
}

// LoadInto loads environment variables into the config structure
func (s *EnvSource) LoadInto(cfg *schema.Root) error {
	// Redis
	s.loadSecret("REDIS_URL", &cfg.Redis.URL)
	s.loadInt("REDIS_POOL_SIZE", &cfg.Redis.PoolSize)
	s.loadDuration("REDIS_DIAL_TIMEOUT", &cfg.Redis.DialTimeout)
	s.loadDuration("REDIS_OP_TIMEOUT", &cfg.Redis.OpTimeout)
	s.loadDuration("REDIS_RETRY_BACKOFF", &cfg.Redis.RetryBackoff)

	// Postgres
	s.loadSecret("DATABASE_URL", &cfg.Postgres.DSN)
	s.loadInt32("DATABASE_MAX_CONNS", &cfg.Postgres.MaxConns)
	s.loadInt32("DATABASE_MIN_CONNS", &cfg.Postgres.MinConns)

	// Cache
	s.loadString("CACHE_PREFIX", &cfg.Cache.Prefix)
	s.loadDuration("CACHE_DEFAULT_TTL", &cfg.Cache.DefaultTTL)
	s.loadBool("CACHE_SINGLEFLIGHT", &cfg.Cache.Singleflight)

	// Rate limit presets: FOLIO_RATE_LIMIT_<NAME>_MAX / _WINDOW
	for name, preset := range cfg.RateLimit.Presets {
		key := "RATE_LIMIT_" + strings.ToUpper(name)
		s.loadInt(key+"_MAX", &preset.MaxRequests)
		s.loadDuration(key+"_WINDOW", &preset.Window)
		cfg.RateLimit.Presets[name] = preset
	}

	// Signing
	s.loadBool("SIGNING_ENABLED", &cfg.Signing.Enabled)
	s.loadSecret("SIGNING_SECRET", &cfg.Signing.Secret)
	s.loadString("SIGNING_EXPIRY", &cfg.Signing.Expiry)
	s.loadBool("SIGNING_FROM_DATABASE", &cfg.Signing.FromDatabase)
	s.loadDuration("SIGNING_SETTINGS_CACHE_TTL", &cfg.Signing.SettingsCacheTTL)

	// Queue
	s.loadPolicy("QUEUE_VIEWS", &cfg.Queue.Views)
	s.loadPolicy("QUEUE_VIEW_SYNC", &cfg.Queue.ViewSync)
	s.loadPolicy("QUEUE_IMAGES", &cfg.Queue.Images)
	s.loadDuration("QUEUE_POLL_TIMEOUT", &cfg.Queue.PollTimeout)
	s.loadDuration("QUEUE_LEASE_TTL", &cfg.Queue.LeaseTTL)

	// Views
	s.loadDuration("VIEWS_RECENT_TTL", &cfg.Views.RecentTTL)
	s.loadDuration("VIEWS_FLUSH_INTERVAL", &cfg.Views.FlushInterval)

	// HTTP
	s.loadString("HTTP_LISTEN", &cfg.HTTP.Listen)
	s.loadBool("HTTP_EXPOSE_REASONS", &cfg.HTTP.ExposeReasons)

	// Media
	s.loadString("MEDIA_ROOT", &cfg.Media.Root)
	s.loadString("MEDIA_OUTPUT_DIR", &cfg.Media.OutputDir)

	// Log
	s.loadString("LOG_LEVEL", &cfg.Log.Level)
	s.loadString("LOG_FORMAT", &cfg.Log.Format)
	s.loadString("LOG_FILE", &cfg.Log.File)

	return nil
}

func (s *EnvSource) loadPolicy(key string, p *schema.QueuePolicy) {
	s.loadInt(key+"_ATTEMPTS", &p.Attempts)
	s.loadDuration(key+"_BACKOFF", &p.Backoff)
	s.loadInt(key+"_KEEP_COMPLETED", &p.KeepCompleted)
	s.loadInt(key+"_KEEP_FAILED", &p.KeepFailed)
	s.loadInt(key+"_CONCURRENCY", &p.Concurrency)
}

// getEnv gets environment variable with the configured prefix
func (s *EnvSource) getEnv(key string) (string, bool) {
	if v := os.Getenv(s.prefix + "_" + key); v != "" {
		return v, true
	}
	return "", false
}

func (s *EnvSource) loadString(key string, target *string) {
	if v, ok := s.getEnv(key); ok {
		*target = v
	}
}

func (s *EnvSource) loadSecret(key string, target *schema.Secret) {
	if v, ok := s.getEnv(key); ok {
		*target = schema.Secret(v)
	}
}

func (s *EnvSource) loadBool(key string, target *bool) {
	if v, ok := s.getEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

func (s *EnvSource) loadInt(key string, target *int) {
	if v, ok := s.getEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

func (s *EnvSource) loadInt32(key string, target *int32) {
	if v, ok := s.getEnv(key); ok {
		if i, err := strconv.ParseInt(v, 10, 32); err == nil {
			*target = int32(i)
		}
	}
}

func (s *EnvSource) loadDuration(key string, target *time.Duration) {
	if v, ok := s.getEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}
