// Package subscribers 事件总线上的副作用处理：缓存失效、图片转码任务、封面清理
package subscribers

import (
	"context"
	"errors"
	"fmt"
	"path"

	"folio-core/internal/core/cache"
	"folio-core/internal/core/events"
	corelog "folio-core/internal/core/log"
	"folio-core/internal/queue"
	"folio-core/internal/signing"
)

// Deps 处理器依赖；为 nil 的依赖对应的副作用被跳过
type Deps struct {
	Cache     *cache.Store
	Producer  *queue.Producer
	Signing   *signing.SettingsProvider
	Remover   FileRemover
	OutputDir string // 转码输出根目录
	Logger    corelog.Logger
}

// Set 一组已注册的订阅
type Set struct {
	subs []*events.Subscription
}

// Close 注销全部订阅
func (s *Set) Close() error {
	var errs []error
	for _, sub := range s.subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.subs = nil
	return errors.Join(errs...)
}

// Len 已注册数量
func (s *Set) Len() int {
	return len(s.subs)
}

type handlers struct {
	Deps
	logger corelog.Logger
}

// Register 在 bus 上注册全部处理器；任一失败时回滚已注册的部分
func Register(bus *events.Bus, d Deps) (*Set, error) {
	h := &handlers{Deps: d, logger: corelog.OrDefault(d.Logger)}
	set := &Set{}

	add := func(sub *events.Subscription, err error) error {
		if err != nil {
			return err
		}
		set.subs = append(set.subs, sub)
		return nil
	}
	steps := []func() error{
		func() error { return add(events.Subscribe(bus, events.UserCreated, h.onUserCreated)) },
		func() error { return add(events.Subscribe(bus, events.SeriesCreated, h.onSeriesChanged)) },
		func() error { return add(events.Subscribe(bus, events.SeriesUpdated, h.onSeriesChanged)) },
		func() error { return add(events.Subscribe(bus, events.SeriesDeleted, h.onSeriesDeleted)) },
		func() error { return add(events.Subscribe(bus, events.ChapterCreated, h.onChapterChanged)) },
		func() error { return add(events.Subscribe(bus, events.ChapterUpdated, h.onChapterChanged)) },
		func() error { return add(events.Subscribe(bus, events.ChapterDeleted, h.onChapterDeleted)) },
		func() error { return add(events.Subscribe(bus, events.CoverCleanup, h.onCoverCleanup)) },
		func() error { return add(events.Subscribe(bus, events.SigningSettingsChanged, h.onSigningChanged)) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			_ = set.Close()
			return nil, err
		}
	}
	h.logger.Infof("subscribers: %d handlers registered", set.Len())
	return set, nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// 目录事件
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func (h *handlers) onUserCreated(ctx context.Context, e events.UserCreatedEvent) error {
	if h.Cache != nil {
		h.Cache.Del(ctx, h.Cache.Keys().User(e.UserID))
	}
	if e.AvatarSrc == "" {
		return nil
	}
	return h.enqueueImage(ctx,
		fmt.Sprintf("image:avatar:%s:%d", e.UserID, e.CreatedAt.UnixMilli()),
		queue.ImageJob{
			Type:       queue.ImageAvatar,
			SourcePath: e.AvatarSrc,
			OutputPath: path.Join(h.OutputDir, "avatars"),
			Filename:   e.UserID + ".webp",
		})
}

// onSeriesChanged 系列新建或更新：列表与详情都可能变化，整个 series 域失效
func (h *handlers) onSeriesChanged(ctx context.Context, e events.SeriesEvent) error {
	h.invalidateSeries(ctx)
	if e.CoverSrc == "" {
		return nil
	}
	return h.enqueueImage(ctx,
		fmt.Sprintf("image:cover:%s:%d", e.SeriesID, e.ChangedAt.UnixMilli()),
		queue.ImageJob{
			Type:       queue.ImageCover,
			SourcePath: e.CoverSrc,
			OutputPath: path.Join(h.OutputDir, "covers"),
			Filename:   e.SeriesID + ".webp",
		})
}

func (h *handlers) onSeriesDeleted(ctx context.Context, e events.SeriesEvent) error {
	h.invalidateSeries(ctx)
	if h.Cache != nil {
		// 章节详情里带系列信息
		h.Cache.DelPattern(ctx, h.Cache.Keys().ChapterPattern())
	}
	return nil
}

func (h *handlers) invalidateSeries(ctx context.Context) {
	if h.Cache == nil {
		return
	}
	n := h.Cache.DelPattern(ctx, h.Cache.Keys().SeriesPattern())
	h.logger.Debugf("subscribers: %d series keys invalidated", n)
}

func (h *handlers) onChapterChanged(ctx context.Context, e events.ChapterEvent) error {
	h.invalidateChapter(ctx, e)

	var errs []error
	for i, src := range e.PageSrcs {
		if src == "" {
			continue
		}
		err := h.enqueueImage(ctx,
			fmt.Sprintf("image:page:%s:%d:%d", e.ChapterID, i, e.ChangedAt.UnixMilli()),
			queue.ImageJob{
				Type:       queue.ImagePage,
				SourcePath: src,
				OutputPath: path.Join(h.OutputDir, "chapters", e.ChapterID),
				Filename:   fmt.Sprintf("%03d.webp", i+1),
			})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *handlers) onChapterDeleted(ctx context.Context, e events.ChapterEvent) error {
	h.invalidateChapter(ctx, e)
	return nil
}

func (h *handlers) invalidateChapter(ctx context.Context, e events.ChapterEvent) {
	if h.Cache == nil {
		return
	}
	k := h.Cache.Keys()
	h.Cache.Del(ctx, k.Chapter(e.ChapterID))
	h.Cache.Del(ctx, k.ChapterPages(e.ChapterID))
	h.Cache.Del(ctx, k.Series(e.SeriesID))
}

func (h *handlers) enqueueImage(ctx context.Context, jobID string, job queue.ImageJob) error {
	if h.Producer == nil {
		h.logger.WithField("source", job.SourcePath).Debug("subscribers: no producer, image job skipped")
		return nil
	}
	id, err := queue.Enqueue(ctx, h.Producer, queue.ImageConvert, job, queue.EnqueueOptions{JobID: jobID})
	if err != nil {
		return err
	}
	h.logger.WithFields(map[string]interface{}{"id": id, "type": job.Type}).Debug("subscribers: image job enqueued")
	return nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// 媒体与设置
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func (h *handlers) onCoverCleanup(ctx context.Context, e events.CoverCleanupEvent) error {
	if h.Remover == nil {
		return nil
	}
	var errs []error
	removed := 0
	for _, p := range e.Paths {
		if err := h.Remover.Remove(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
			continue
		}
		removed++
	}
	h.logger.WithField("series", e.SeriesID).Infof("subscribers: removed %d/%d cover files", removed, len(e.Paths))
	return errors.Join(errs...)
}

func (h *handlers) onSigningChanged(ctx context.Context, e events.SigningSettingsChangedEvent) error {
	if h.Signing != nil {
		h.Signing.Invalidate(ctx)
	}
	return nil
}
