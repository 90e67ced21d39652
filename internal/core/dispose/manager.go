package dispose

import (
	"fmt"
	"sync"

	corelog "folio-core/internal/core/log"
)

// ResourceManager 按注册的逆序释放资源（后创建的先关闭）
type ResourceManager struct {
	mu        sync.Mutex
	names     []string
	resources map[string]Disposable
}

// NewResourceManager 创建资源管理器
func NewResourceManager() *ResourceManager {
	return &ResourceManager{resources: make(map[string]Disposable)}
}

// Register 注册资源
func (rm *ResourceManager) Register(name string, resource Disposable) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, exists := rm.resources[name]; exists {
		return fmt.Errorf("resource %s already registered", name)
	}
	rm.resources[name] = resource
	rm.names = append(rm.names, name)
	return nil
}

// Count 已注册资源数量
func (rm *ResourceManager) Count() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.names)
}

// CloseAll 逆序关闭全部资源，汇总错误但不中断
func (rm *ResourceManager) CloseAll() *DisposeResult {
	rm.mu.Lock()
	names := make([]string, len(rm.names))
	copy(names, rm.names)
	rm.names = nil
	resources := rm.resources
	rm.resources = make(map[string]Disposable)
	rm.mu.Unlock()

	result := &DisposeResult{}
	for i := len(names) - 1; i >= 0; i-- {
		if err := resources[names[i]].Close(); err != nil {
			corelog.Errorf("ResourceManager: failed to close %s: %v", names[i], err)
			result.Errors = append(result.Errors, &DisposeError{HandlerIndex: i, Err: err})
		}
	}
	return result
}
