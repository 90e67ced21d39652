package health

import (
	"context"
	"sync"
	"time"

	"folio-core/internal/core/dispose"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// 就绪状态管理
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// HealthStatus 进程状态
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDraining  HealthStatus = "draining" // 正在关闭，不再就绪
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthInfo /readyz 返回的信息
type HealthInfo struct {
	Status           HealthStatus                `json:"status"`
	Overall          ComponentStatus             `json:"overall"`
	Ready            bool                        `json:"ready"`
	Uptime           int64                       `json:"uptime_seconds"`
	Version          string                      `json:"version,omitempty"`
	Details          map[string]string           `json:"details,omitempty"`
	Components       map[string]*ComponentHealth `json:"components,omitempty"`
	LastStatusChange time.Time                   `json:"last_status_change"`
}

// HealthManager 进程健康状态管理器
//
// 组件降级时仍然就绪；进程 draining 或有组件 unhealthy 时不就绪。
type HealthManager struct {
	*dispose.ServiceBase

	mu               sync.RWMutex
	status           HealthStatus
	startTime        time.Time
	lastStatusChange time.Time
	version          string
	details          map[string]string
	checker          *CompositeHealthChecker
	now              func() time.Time
}

// NewHealthManager 创建健康状态管理器；checker 可以为 nil
func NewHealthManager(parentCtx context.Context, version string, checker *CompositeHealthChecker) *HealthManager {
	now := time.Now()
	return &HealthManager{
		ServiceBase:      dispose.NewService("HealthManager", parentCtx),
		status:           HealthStatusHealthy,
		startTime:        now,
		lastStatusChange: now,
		version:          version,
		details:          make(map[string]string),
		checker:          checker,
		now:              time.Now,
	}
}

// GetStatus 获取当前状态
func (m *HealthManager) GetStatus() HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// SetStatus 设置状态
func (m *HealthManager) SetStatus(status HealthStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != status {
		m.status = status
		m.lastStatusChange = m.now()
	}
}

// IsHealthy 是否健康
func (m *HealthManager) IsHealthy() bool {
	return m.GetStatus() == HealthStatusHealthy
}

// IsDraining 是否在关闭中
func (m *HealthManager) IsDraining() bool {
	return m.GetStatus() == HealthStatusDraining
}

// MarkDraining 开始关闭
func (m *HealthManager) MarkDraining() {
	m.SetStatus(HealthStatusDraining)
}

// MarkUnhealthy 标记为不健康
func (m *HealthManager) MarkUnhealthy(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = HealthStatusUnhealthy
	m.lastStatusChange = m.now()
	m.details["unhealthy_reason"] = reason
}

// SetDetail 设置详细信息
func (m *HealthManager) SetDetail(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[key] = value
}

// GetHealthInfo 运行组件检查并生成就绪信息
func (m *HealthManager) GetHealthInfo(ctx context.Context) *HealthInfo {
	var components map[string]*ComponentHealth
	overall := ComponentStatusHealthy
	if m.checker != nil {
		components = m.checker.CheckAll(ctx)
		overall = Overall(components)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	details := make(map[string]string, len(m.details))
	for k, v := range m.details {
		details[k] = v
	}
	return &HealthInfo{
		Status:           m.status,
		Overall:          overall,
		Ready:            m.status == HealthStatusHealthy && overall != ComponentStatusUnhealthy,
		Uptime:           int64(m.now().Sub(m.startTime).Seconds()),
		Version:          m.version,
		Details:          details,
		Components:       components,
		LastStatusChange: m.lastStatusChange,
	}
}
