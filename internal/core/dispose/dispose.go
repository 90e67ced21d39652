// Package dispose 提供组件生命周期管理：上下文取消 + 有序清理
package dispose

import (
	"context"
	"fmt"
	"sync"

	corelog "folio-core/internal/core/log"
)

// DisposeError 清理过程中的错误信息
type DisposeError struct {
	HandlerIndex int
	Err          error
}

func (e *DisposeError) Error() string {
	return fmt.Sprintf("cleanup handler[%d] failed: %v", e.HandlerIndex, e.Err)
}

// DisposeResult 清理结果
type DisposeResult struct {
	Errors []*DisposeError
}

func (r *DisposeResult) HasErrors() bool {
	return len(r.Errors) > 0
}

func (r *DisposeResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	return fmt.Sprintf("dispose cleanup failed with %d errors", len(r.Errors))
}

// Disposable 统一的资源释放接口
type Disposable interface {
	Close() error
}

// Dispose 资源管理结构体
//
// 父上下文取消或显式 Close 都会触发清理，清理只执行一次。
type Dispose struct {
	mu            sync.Mutex
	closed        bool
	ctx           context.Context
	cancel        context.CancelFunc
	cleanHandlers []func() error
	errors        []*DisposeError
}

// NewDispose 创建并绑定上下文
func NewDispose(parent context.Context, onClose func() error) *Dispose {
	d := &Dispose{}
	d.SetCtx(parent, onClose)
	return d
}

func (c *Dispose) Ctx() context.Context {
	return c.ctx
}

func (c *Dispose) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SetCtx 绑定父上下文，只允许调用一次
func (c *Dispose) SetCtx(parent context.Context, onClose func() error) {
	c.mu.Lock()
	if c.ctx != nil {
		c.mu.Unlock()
		corelog.Warnf("dispose: ctx already set")
		return
	}
	if parent == nil {
		parent = context.Background()
	}
	if onClose != nil {
		c.cleanHandlers = append(c.cleanHandlers, onClose)
	}
	c.ctx, c.cancel = context.WithCancel(parent)
	ctx := c.ctx
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.Close()
	}()
}

// AddCleanHandler 追加清理处理器，按添加顺序执行
func (c *Dispose) AddCleanHandler(f func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanHandlers = append(c.cleanHandlers, f)
}

// Close 关闭并返回清理结果
func (c *Dispose) Close() *DisposeResult {
	c.mu.Lock()
	if c.closed {
		errs := c.errors
		c.mu.Unlock()
		return &DisposeResult{Errors: errs}
	}
	c.closed = true
	handlers := make([]func() error, len(c.cleanHandlers))
	copy(handlers, c.cleanHandlers)
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	result := &DisposeResult{}
	for i, handler := range handlers {
		if err := handler(); err != nil {
			result.Errors = append(result.Errors, &DisposeError{HandlerIndex: i, Err: err})
			corelog.Errorf("dispose: cleanup handler[%d] failed: %v", i, err)
		}
	}

	c.mu.Lock()
	c.errors = result.Errors
	c.mu.Unlock()
	return result
}

// CloseWithError 返回第一个清理错误
func (c *Dispose) CloseWithError() error {
	result := c.Close()
	if result.HasErrors() {
		return result.Errors[0].Err
	}
	return nil
}
