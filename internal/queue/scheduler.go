package queue

import (
	"context"
	"fmt"
	"time"

	corelog "folio-core/internal/core/log"
)

// Scheduler 按 flush 周期入队 view.sync
//
// JobID 取 view-sync:{bucket}，多个进程同时调度时每个周期只入队一次。
type Scheduler struct {
	producer *Producer
	interval time.Duration
	logger   corelog.Logger
	now      func() time.Time
}

// NewScheduler 创建调度器，interval 最小 1 秒
func NewScheduler(p *Producer, interval time.Duration, logger corelog.Logger) *Scheduler {
	if interval < time.Second {
		interval = time.Second
	}
	return &Scheduler{producer: p, interval: interval, logger: corelog.OrDefault(logger), now: time.Now}
}

// Bucket 当前周期编号
func (s *Scheduler) Bucket(t time.Time) int64 {
	return t.Unix() / int64(s.interval/time.Second)
}

// SyncJobID 周期对应的 JobID
func SyncJobID(bucket int64) string {
	return fmt.Sprintf("view-sync:%d", bucket)
}

// Tick 入队当前周期的同步任务
func (s *Scheduler) Tick(ctx context.Context) (string, error) {
	now := s.now()
	bucket := s.Bucket(now)
	return Enqueue(ctx, s.producer, ViewSync, SyncJob{Bucket: bucket, ScheduledAt: now},
		EnqueueOptions{JobID: SyncJobID(bucket)})
}

// Run 立即调度一次，然后每个周期一次，直到 ctx 取消
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if id, err := s.Tick(ctx); err != nil {
			s.logger.WithError(err).Warn("queue: schedule view sync failed")
		} else {
			s.logger.WithField("id", id).Debug("queue: view sync scheduled")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
