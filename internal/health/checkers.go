package health

import (
	"context"
	"fmt"
	"time"

	coreerrors "folio-core/internal/core/errors"
	"folio-core/internal/queue"
)

// Pinger 能探测连通性的依赖，例如 Redis 网关与 Postgres 连接池
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreHealthChecker 存储健康检查器
//
// critical=false 的依赖失败只算降级：上层组件对它有放行路径。
type StoreHealthChecker struct {
	name     string
	store    Pinger
	critical bool
	now      func() time.Time
}

// NewStoreHealthChecker 创建存储健康检查器
func NewStoreHealthChecker(name string, store Pinger, critical bool) *StoreHealthChecker {
	return &StoreHealthChecker{name: name, store: store, critical: critical, now: time.Now}
}

func (c *StoreHealthChecker) failed() ComponentStatus {
	if c.critical {
		return ComponentStatusUnhealthy
	}
	return ComponentStatusDegraded
}

// Check 实现 HealthChecker
func (c *StoreHealthChecker) Check(ctx context.Context) (*ComponentHealth, error) {
	h := &ComponentHealth{Name: c.name, Status: ComponentStatusHealthy, LastCheck: c.now()}
	if c.store == nil {
		h.Status = c.failed()
		h.Message = "not configured"
		return h, nil
	}
	if err := c.store.Ping(ctx); err != nil {
		h.Status = c.failed()
		if coreerrors.IsCode(err, coreerrors.CodeNotConfigured) {
			h.Message = "not configured"
		} else {
			h.Message = err.Error()
		}
	}
	return h, nil
}

// QueueCounter 队列统计来源
type QueueCounter interface {
	Counts(ctx context.Context, queue string) (queue.Counts, error)
}

// QueueHealthChecker 失败任务超过阈值时降级
type QueueHealthChecker struct {
	counter   QueueCounter
	queues    []string
	maxFailed int64
	now       func() time.Time
}

// NewQueueHealthChecker maxFailed<=0 表示只检查可读
func NewQueueHealthChecker(counter QueueCounter, maxFailed int64, queues ...string) *QueueHealthChecker {
	return &QueueHealthChecker{counter: counter, queues: queues, maxFailed: maxFailed, now: time.Now}
}

// Check 实现 HealthChecker
func (c *QueueHealthChecker) Check(ctx context.Context) (*ComponentHealth, error) {
	h := &ComponentHealth{Name: "queue", Status: ComponentStatusHealthy, LastCheck: c.now()}
	for _, q := range c.queues {
		counts, err := c.counter.Counts(ctx, q)
		if err != nil {
			h.Status = ComponentStatusDegraded
			h.Message = fmt.Sprintf("%s: %v", q, err)
			return h, nil
		}
		if c.maxFailed > 0 && counts.Failed >= c.maxFailed {
			h.Status = ComponentStatusDegraded
			h.Message = fmt.Sprintf("%s: %d failed jobs", q, counts.Failed)
			return h, nil
		}
	}
	return h, nil
}
