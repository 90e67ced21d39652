// Package app 组合根：按配置构建各组件并管理其生命周期
package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	coreerrors "folio-core/internal/core/errors"
)

// App 已组装的进程
type App struct {
	deps *Dependencies
}

// Deps 已构建的组件
func (a *App) Deps() *Dependencies {
	return a.deps
}

// Run 启动 HTTP 监听、工作者与调度器，直到 ctx 取消
//
// 退出前先标记 draining，使 /readyz 不再就绪。
func (a *App) Run(ctx context.Context) error {
	d := a.deps
	if d.Worker == nil {
		return coreerrors.New(coreerrors.CodeNotConfigured, "queue worker not built")
	}
	if d.HTTP != nil {
		if err := d.HTTP.Start(); err != nil {
			return coreerrors.Wrap(err, coreerrors.CodeUnavailable, "start http listener")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Worker.Run(gctx) })
	if d.Scheduler != nil {
		g.Go(func() error { return d.Scheduler.Run(gctx) })
	}
	d.Logger.Infof("app: worker started, queues=%v", d.Worker.Queues())

	<-gctx.Done()
	if d.Health != nil {
		d.Health.MarkDraining()
	}
	d.Logger.Info("app: shutting down")
	return g.Wait()
}

// Close 逆序释放全部资源
func (a *App) Close() error {
	if res := a.deps.Resources.CloseAll(); res.HasErrors() {
		return res
	}
	return nil
}
