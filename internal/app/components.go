package app

import (
	"context"
	"net/http"
	"path/filepath"

	"folio-core/internal/config/schema"
	"folio-core/internal/core/cache"
	coreerrors "folio-core/internal/core/errors"
	"folio-core/internal/core/events"
	"folio-core/internal/core/storage/postgres"
	storageredis "folio-core/internal/core/storage/redis"
	"folio-core/internal/health"
	"folio-core/internal/httpservice"
	"folio-core/internal/queue"
	"folio-core/internal/ratelimit"
	"folio-core/internal/signing"
	"folio-core/internal/subscribers"
	"folio-core/internal/views"
)

// MediaPathPrefix 签名媒体文件的挂载点
const MediaPathPrefix = "/media/"

// ============================================================================
// 存储
// ============================================================================

// RedisComponent Redis 网关，不主动建连
type RedisComponent struct{}

func (c *RedisComponent) Name() string { return "Redis" }

func (c *RedisComponent) Initialize(ctx context.Context, deps *Dependencies) error {
	deps.Gateway = storageredis.New(ctx, GatewayConfig(deps.Config.Redis), storageredis.WithLogger(deps.Logger))
	if !deps.Gateway.Configured() {
		deps.Logger.Warn("app: redis url not set, cache, rate limiting and queues run degraded")
	}
	return deps.register("redis", deps.Gateway)
}

// PostgresComponent Postgres 连接池；未配置 DSN 时跳过
type PostgresComponent struct{}

func (c *PostgresComponent) Name() string { return "Postgres" }

func (c *PostgresComponent) Initialize(ctx context.Context, deps *Dependencies) error {
	pg, err := postgres.New(ctx, PostgresConfig(deps.Config.Postgres), deps.Logger)
	switch {
	case coreerrors.IsCode(err, coreerrors.CodeNotConfigured):
		deps.Logger.Warn("app: postgres dsn not set, view counts will not be flushed")
		return nil
	case err != nil:
		return err
	}
	deps.Postgres = pg
	return deps.register("postgres", pg)
}

// GatewayConfig 配置转换
func GatewayConfig(c schema.RedisConfig) storageredis.Config {
	return storageredis.Config{
		URL:          c.URL.Value(),
		PoolSize:     c.PoolSize,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		OpTimeout:    c.OpTimeout,
		RetryBackoff: c.RetryBackoff,
	}
}

// PostgresConfig 配置转换
func PostgresConfig(c schema.PostgresConfig) postgres.Config {
	return postgres.Config{
		DSN:             c.DSN.Value(),
		MaxConns:        c.MaxConns,
		MinConns:        c.MinConns,
		MaxConnLifetime: c.MaxConnLifetime,
		ConnectTimeout:  c.ConnectTimeout,
	}
}

// ============================================================================
// 缓存、限流、签名
// ============================================================================

// CacheComponent cache-aside 存储
type CacheComponent struct{}

func (c *CacheComponent) Name() string { return "Cache" }

func (c *CacheComponent) Initialize(ctx context.Context, deps *Dependencies) error {
	cfg := deps.Config.Cache
	deps.Cache = cache.New(deps.Gateway,
		cache.WithPrefix(cfg.Prefix),
		cache.WithSingleflight(cfg.Singleflight),
		cache.WithLogger(deps.Logger),
	)
	return nil
}

// RateLimitComponent 滑动窗口限流器
type RateLimitComponent struct{}

func (c *RateLimitComponent) Name() string { return "RateLimit" }

func (c *RateLimitComponent) Initialize(ctx context.Context, deps *Dependencies) error {
	deps.Limiter = ratelimit.New(deps.Gateway,
		ratelimit.WithPrefix(deps.Config.Cache.Prefix),
		ratelimit.WithPresets(Presets(deps.Config.RateLimit)),
		ratelimit.WithLogger(deps.Logger),
		ratelimit.WithMetrics(deps.Metrics),
	)
	return nil
}

// Presets 配置中的预设覆盖内置值
func Presets(c schema.RateLimitConfig) map[ratelimit.Preset]ratelimit.Limit {
	out := make(map[ratelimit.Preset]ratelimit.Limit, len(c.Presets))
	for name, p := range c.Presets {
		out[ratelimit.Preset(name)] = ratelimit.Limit{Window: p.Window, MaxRequests: p.MaxRequests}
	}
	return out
}

// SigningComponent 签名设置与签名器
type SigningComponent struct{}

func (c *SigningComponent) Name() string { return "Signing" }

func (c *SigningComponent) Initialize(ctx context.Context, deps *Dependencies) error {
	cfg := deps.Config.Signing
	opts := []signing.ProviderOption{
		signing.WithSettingsTTL(cfg.SettingsCacheTTL),
		signing.WithSignerMemo(cfg.MemoSize),
		signing.WithProviderLogger(deps.Logger),
	}
	if cfg.FromDatabase {
		if deps.Postgres != nil {
			opts = append(opts, signing.WithSource(postgres.NewSettings(deps.Postgres)))
		} else {
			deps.Logger.Warn("app: signing.from_database set without postgres, using configured values")
		}
	}
	deps.Signing = signing.NewSettingsProvider(deps.Cache, FallbackSettings(cfg), opts...)
	return nil
}

// FallbackSettings 配置中的签名设置
func FallbackSettings(c schema.SigningConfig) signing.Settings {
	return signing.Settings{Enabled: c.Enabled, Secret: c.Secret.Value(), Expiry: c.Expiry}
}

// ============================================================================
// 事件与队列
// ============================================================================

// EventsComponent 事件总线
type EventsComponent struct{}

func (c *EventsComponent) Name() string { return "Events" }

func (c *EventsComponent) Initialize(ctx context.Context, deps *Dependencies) error {
	deps.Bus = events.NewBus(ctx, deps.Gateway, events.WithLogger(deps.Logger))
	return deps.register("events", deps.Bus)
}

// QueueComponent 生产者、工作者、调度器与浏览量累加
type QueueComponent struct{}

func (c *QueueComponent) Name() string { return "Queue" }

func (c *QueueComponent) Initialize(ctx context.Context, deps *Dependencies) error {
	cfg := deps.Config
	prefix := cfg.Cache.Prefix
	policies := Policies(cfg.Queue)

	deps.Producer = queue.NewProducer(deps.Gateway,
		queue.WithProducerPrefix(prefix),
		queue.WithProducerPolicies(policies),
		queue.WithProducerLogger(deps.Logger),
	)
	deps.Inspector = queue.NewInspector(deps.Gateway, prefix)
	deps.Views = views.New(deps.Gateway,
		views.WithPrefix(prefix),
		views.WithRecentTTL(cfg.Views.RecentTTL),
		views.WithLogger(deps.Logger),
		views.WithMetrics(deps.Metrics),
	)

	w := queue.NewWorker(ctx, deps.Gateway,
		queue.WithWorkerPrefix(prefix),
		queue.WithWorkerPolicies(policies),
		queue.WithWorkerLogger(deps.Logger),
		queue.WithWorkerMetrics(deps.Metrics),
		queue.WithPollTimeout(cfg.Queue.PollTimeout),
		queue.WithLeaseTTL(cfg.Queue.LeaseTTL),
	)
	queue.Process(w, queue.ViewIncrement, views.HandleViewJob(deps.Views))
	queue.Process(w, queue.ImageConvert, queue.HandleImageJob(deps.Converter, deps.Logger))
	if deps.Postgres != nil {
		writer := postgres.NewViewCounts(deps.Postgres, deps.Logger)
		queue.Process(w, queue.ViewSync, views.HandleSyncJob(deps.Views, writer))
		if cfg.Views.FlushInterval > 0 {
			deps.Scheduler = queue.NewScheduler(deps.Producer, cfg.Views.FlushInterval, deps.Logger)
		}
	}
	deps.Worker = w
	return deps.register("queue-worker", w)
}

// Policies 配置转换
func Policies(c schema.QueueConfig) queue.Policies {
	conv := func(p schema.QueuePolicy) queue.Policy {
		return queue.Policy{
			Attempts:      p.Attempts,
			Backoff:       p.Backoff,
			KeepCompleted: p.KeepCompleted,
			KeepFailed:    p.KeepFailed,
			Concurrency:   p.Concurrency,
		}
	}
	return queue.Policies{
		queue.QueueViews:    conv(c.Views),
		queue.QueueViewSync: conv(c.ViewSync),
		queue.QueueImages:   conv(c.Images),
	}
}

// SubscribersComponent 事件处理器
type SubscribersComponent struct{}

func (c *SubscribersComponent) Name() string { return "Subscribers" }

func (c *SubscribersComponent) Initialize(ctx context.Context, deps *Dependencies) error {
	media := deps.Config.Media
	set, err := subscribers.Register(deps.Bus, subscribers.Deps{
		Cache:     deps.Cache,
		Producer:  deps.Producer,
		Signing:   deps.Signing,
		Remover:   subscribers.LocalRemover{Root: media.Root},
		OutputDir: media.OutputDir,
		Logger:    deps.Logger,
	})
	if err != nil {
		return err
	}
	if !deps.Bus.Attached() {
		deps.Logger.Warn("app: event subscriber not attached yet, handlers run once the store is reachable")
	}
	deps.Subscribers = set
	return deps.register("subscribers", set)
}

// ============================================================================
// 健康检查与 HTTP
// ============================================================================

// maxFailedJobs 失败列表超过该值时队列降级
const maxFailedJobs = 500

// HealthComponent 健康检查
type HealthComponent struct {
	Version string
}

func (c *HealthComponent) Name() string { return "Health" }

func (c *HealthComponent) Initialize(ctx context.Context, deps *Dependencies) error {
	checker := health.NewCompositeHealthChecker(0)
	checker.RegisterChecker("redis", health.NewStoreHealthChecker("redis", deps.Gateway, false))
	if deps.Postgres != nil {
		checker.RegisterChecker("postgres", health.NewStoreHealthChecker("postgres", deps.Postgres, true))
	}
	if deps.Inspector != nil {
		checker.RegisterChecker("queue", health.NewQueueHealthChecker(deps.Inspector, maxFailedJobs,
			queue.QueueViews, queue.QueueViewSync, queue.QueueImages))
	}
	deps.Health = health.NewHealthManager(ctx, c.Version, checker)
	return deps.register("health", deps.Health)
}

// HTTPComponent 健康检查、指标与签名媒体路由；listen 为空时不启用
type HTTPComponent struct{}

func (c *HTTPComponent) Name() string { return "HTTP" }

func (c *HTTPComponent) Initialize(ctx context.Context, deps *Dependencies) error {
	cfg := deps.Config
	if cfg.HTTP.Listen == "" {
		return nil
	}
	svc := httpservice.NewHTTPService(ctx, httpservice.Config{Listen: cfg.HTTP.Listen}, deps.Health, deps.Logger)
	svc.Router().Handle("/metrics", httpservice.MetricsHandler(deps.Metrics)).Methods(http.MethodGet)

	media := svc.Router().PathPrefix(MediaPathPrefix).Subrouter()
	media.Use(httpservice.RateLimit(deps.Limiter, ratelimit.PresetRelaxed, "media", deps.Logger))
	media.Use(httpservice.SignedURL(deps.Signing, httpservice.SignedURLOptions{
		ExposeReasons: cfg.HTTP.ExposeReasons,
		Logger:        deps.Logger,
	}))
	media.PathPrefix("/").Handler(http.StripPrefix(MediaPathPrefix,
		http.FileServer(http.Dir(filepath.Clean(cfg.Media.OutputDir)))))

	deps.HTTP = svc
	return deps.register("http", svc)
}
