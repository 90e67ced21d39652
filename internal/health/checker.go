// Package health 组件健康检查与就绪状态
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ComponentStatus 组件状态
type ComponentStatus string

const (
	ComponentStatusHealthy   ComponentStatus = "healthy"
	ComponentStatusDegraded  ComponentStatus = "degraded"  // 降级运行，例如缓存与限流走放行路径
	ComponentStatusUnhealthy ComponentStatus = "unhealthy" // 不可用
)

// ComponentHealth 组件健康信息
type ComponentHealth struct {
	Name      string          `json:"name"`
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LastCheck time.Time       `json:"last_check"`
}

// HealthChecker 健康检查器接口
type HealthChecker interface {
	Check(ctx context.Context) (*ComponentHealth, error)
}

// CompositeHealthChecker 组合健康检查器，按名称顺序执行
type CompositeHealthChecker struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	timeout  time.Duration
	now      func() time.Time
}

// NewCompositeHealthChecker 创建组合健康检查器
func NewCompositeHealthChecker(timeout time.Duration) *CompositeHealthChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &CompositeHealthChecker{
		checkers: make(map[string]HealthChecker),
		timeout:  timeout,
		now:      time.Now,
	}
}

// RegisterChecker 注册健康检查器
func (c *CompositeHealthChecker) RegisterChecker(name string, checker HealthChecker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkers[name] = checker
}

// Names 已注册的检查器名称
func (c *CompositeHealthChecker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checkers))
	for name := range c.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckAll 检查所有注册的组件
func (c *CompositeHealthChecker) CheckAll(ctx context.Context) map[string]*ComponentHealth {
	results := make(map[string]*ComponentHealth)
	for _, name := range c.Names() {
		c.mu.RLock()
		checker := c.checkers[name]
		c.mu.RUnlock()

		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		h, err := checker.Check(checkCtx)
		cancel()

		if err != nil {
			h = &ComponentHealth{
				Name:      name,
				Status:    ComponentStatusUnhealthy,
				Message:   err.Error(),
				LastCheck: c.now(),
			}
		}
		if h != nil {
			results[name] = h
		}
	}
	return results
}

// Overall 汇总：任一 unhealthy 即 unhealthy，否则任一 degraded 即 degraded
func Overall(results map[string]*ComponentHealth) ComponentStatus {
	status := ComponentStatusHealthy
	for _, h := range results {
		switch h.Status {
		case ComponentStatusUnhealthy:
			return ComponentStatusUnhealthy
		case ComponentStatusDegraded:
			status = ComponentStatusDegraded
		}
	}
	return status
}

// GetOverallStatus 检查并汇总
func (c *CompositeHealthChecker) GetOverallStatus(ctx context.Context) ComponentStatus {
	return Overall(c.CheckAll(ctx))
}
