package app

import (
	"context"
	"fmt"

	"folio-core/internal/config/schema"
	"folio-core/internal/core/cache"
	"folio-core/internal/core/dispose"
	"folio-core/internal/core/events"
	corelog "folio-core/internal/core/log"
	"folio-core/internal/core/metrics"
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

// Component 应用组件
//
// Initialize 从 Dependencies 取依赖，并把自己的产出写回。
type Component interface {
	Name() string
	Initialize(ctx context.Context, deps *Dependencies) error
}

// Dependencies 依赖容器，组件按顺序填充
type Dependencies struct {
	Config    *schema.Root
	Logger    corelog.Logger
	Metrics   metrics.Metrics
	Resources *dispose.ResourceManager

	// 存储
	Gateway  *storageredis.Gateway
	Postgres *postgres.Storage // 未配置时为 nil

	// 共享状态
	Cache   *cache.Store
	Limiter *ratelimit.Limiter
	Signing *signing.SettingsProvider
	Bus     *events.Bus

	// 队列
	Producer  *queue.Producer
	Worker    *queue.Worker
	Scheduler *queue.Scheduler // flush_interval 为 0 时为 nil
	Inspector *queue.Inspector
	Views     *views.Accumulator
	Converter queue.ImageConverter

	Subscribers *subscribers.Set

	Health *health.HealthManager
	HTTP   *httpservice.HTTPService
}

// register 交给 ResourceManager 统一逆序释放
func (d *Dependencies) register(name string, r dispose.Disposable) error {
	return d.Resources.Register(name, r)
}

// ComponentError 组件初始化错误
type ComponentError struct {
	ComponentName string
	Err           error
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("component %s initialization failed: %v", e.ComponentName, e.Err)
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}
