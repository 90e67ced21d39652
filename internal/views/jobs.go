package views

import (
	"context"
	"time"

	"folio-core/internal/queue"
)

// Submit 把一次浏览投递到 views 队列
func Submit(ctx context.Context, p *queue.Producer, subjectType, id, fingerprint string, at time.Time) (string, error) {
	return queue.Enqueue(ctx, p, queue.ViewIncrement, queue.ViewJob{
		Type:        subjectType,
		ID:          id,
		Fingerprint: fingerprint,
		Timestamp:   at.UnixMilli(),
	}, queue.EnqueueOptions{})
}

// HandleViewJob view.increment 处理器
func HandleViewJob(a *Accumulator) func(ctx context.Context, job queue.Job[queue.ViewJob]) error {
	return func(ctx context.Context, job queue.Job[queue.ViewJob]) error {
		p := job.Payload
		counted, err := a.RecordAt(ctx, p.Type, p.ID, p.Fingerprint, time.UnixMilli(p.Timestamp))
		if err != nil {
			return err
		}
		if !counted {
			a.logger.WithFields(map[string]interface{}{"type": p.Type, "id": p.ID}).Debug("views: repeat viewer ignored")
		}
		return nil
	}
}

// HandleSyncJob view.sync 处理器
func HandleSyncJob(a *Accumulator, w Writer) func(ctx context.Context, job queue.Job[queue.SyncJob]) error {
	return func(ctx context.Context, job queue.Job[queue.SyncJob]) error {
		_, err := a.Flush(ctx, w)
		return err
	}
}
