package app

import (
	"context"

	"folio-core/internal/config/schema"
	"folio-core/internal/core/dispose"
	corelog "folio-core/internal/core/log"
	"folio-core/internal/core/metrics"
	"folio-core/internal/queue"
)

// Builder 按依赖顺序组装组件
type Builder struct {
	config     *schema.Root
	components []Component
	logger     corelog.Logger
	converter  queue.ImageConverter
}

// NewBuilder 创建构建器
func NewBuilder(config *schema.Root) *Builder {
	return &Builder{config: config}
}

// With 追加组件
func (b *Builder) With(c Component) *Builder {
	b.components = append(b.components, c)
	return b
}

// WithLogger 指定日志，默认 corelog.Default()
func (b *Builder) WithLogger(l corelog.Logger) *Builder {
	b.logger = l
	return b
}

// WithImageConverter 设置转码实现；未设置时图片任务直接失败
func (b *Builder) WithImageConverter(conv queue.ImageConverter) *Builder {
	b.converter = conv
	return b
}

// WithDefaults worker 进程使用的标准组件组合
func (b *Builder) WithDefaults(version string) *Builder {
	return b.
		With(&RedisComponent{}).
		With(&PostgresComponent{}).
		With(&CacheComponent{}).
		With(&RateLimitComponent{}).
		With(&SigningComponent{}).
		With(&EventsComponent{}).
		With(&QueueComponent{}).
		With(&SubscribersComponent{}).
		With(&HealthComponent{Version: version}).
		With(&HTTPComponent{})
}

// Build 依次初始化组件；任一失败时释放已创建的资源
func (b *Builder) Build(ctx context.Context) (*App, error) {
	deps := &Dependencies{
		Config:    b.config,
		Logger:    corelog.OrDefault(b.logger),
		Metrics:   metrics.NewMemoryMetrics(),
		Resources: dispose.NewResourceManager(),
		Converter: b.converter,
	}
	for _, c := range b.components {
		deps.Logger.Debugf("app: initializing component %s", c.Name())
		if err := c.Initialize(ctx, deps); err != nil {
			deps.Resources.CloseAll()
			return nil, &ComponentError{ComponentName: c.Name(), Err: err}
		}
	}
	return &App{deps: deps}, nil
}
