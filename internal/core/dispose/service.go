package dispose

import (
	"context"

	corelog "folio-core/internal/core/log"
)

// ServiceBase 标准服务基类，带名称
type ServiceBase struct {
	Dispose
	name string
}

// NewService 创建标准服务基类
func NewService(name string, parentCtx context.Context) *ServiceBase {
	s := &ServiceBase{name: name}
	s.SetCtx(parentCtx, func() error {
		corelog.Debugf("%s resources cleaned up", name)
		return nil
	})
	return s
}

// Name 服务名称
func (s *ServiceBase) Name() string {
	return s.name
}

// Close 实现 Disposable
func (s *ServiceBase) Close() error {
	return s.Dispose.CloseWithError()
}
