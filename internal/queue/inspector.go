package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	coreerrors "folio-core/internal/core/errors"
	storageredis "folio-core/internal/core/storage/redis"
)

// Counts 各状态任务数
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Failed    int64 `json:"failed"`
	Completed int64 `json:"completed"`
}

// Inspector 供运维查看与重试失败任务
type Inspector struct {
	gw     *storageredis.Gateway
	prefix string
	now    func() time.Time
}

// NewInspector 创建
func NewInspector(gw *storageredis.Gateway, prefix string) *Inspector {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Inspector{gw: gw, prefix: prefix, now: time.Now}
}

// Counts 队列统计
func (i *Inspector) Counts(ctx context.Context, queue string) (Counts, error) {
	client, err := i.gw.Primary(ctx)
	if err != nil {
		return Counts{}, err
	}
	k := newKeys(i.prefix, queue)
	opCtx, cancel := i.gw.OpContext(ctx)
	defer cancel()

	pipe := client.Pipeline()
	waiting := pipe.LLen(opCtx, k.wait())
	active := pipe.LLen(opCtx, k.active())
	delayed := pipe.ZCard(opCtx, k.delayed())
	failed := pipe.LLen(opCtx, k.failed())
	completed := pipe.LLen(opCtx, k.completed())
	if _, err := pipe.Exec(opCtx); err != nil {
		return Counts{}, storageredis.Unavailable(err, "queue counts")
	}
	return Counts{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Failed:    failed.Val(),
		Completed: completed.Val(),
	}, nil
}

// Failed 最近 n 个失败任务，新的在前
func (i *Inspector) Failed(ctx context.Context, queue string, n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	client, err := i.gw.Primary(ctx)
	if err != nil {
		return nil, err
	}
	k := newKeys(i.prefix, queue)
	opCtx, cancel := i.gw.OpContext(ctx)
	defer cancel()

	ids, err := client.LRange(opCtx, k.failed(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, storageredis.Unavailable(err, "list failed")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for idx, id := range ids {
		cmds[idx] = pipe.Get(opCtx, k.job(id))
	}
	if _, err := pipe.Exec(opCtx); err != nil && !storageredis.IsNil(err) {
		return nil, storageredis.Unavailable(err, "load failed")
	}

	out := make([]Record, 0, len(ids))
	for idx, cmd := range cmds {
		raw, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			rec = Record{ID: ids[idx], Queue: queue, State: StateFailed, LastError: "unreadable record"}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get 读取单个任务记录
func (i *Inspector) Get(ctx context.Context, queue, id string) (Record, error) {
	client, err := i.gw.Primary(ctx)
	if err != nil {
		return Record{}, err
	}
	k := newKeys(i.prefix, queue)
	opCtx, cancel := i.gw.OpContext(ctx)
	defer cancel()
	raw, err := client.Get(opCtx, k.job(id)).Bytes()
	if storageredis.IsNil(err) {
		return Record{}, coreerrors.Newf(coreerrors.CodeNotFound, "job %s not found in %s", id, queue)
	}
	if err != nil {
		return Record{}, storageredis.Unavailable(err, "get job")
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, coreerrors.Wrap(err, coreerrors.CodeSerializationError, "decode job record")
	}
	return rec, nil
}

// RetryFailed 重置尝试次数后放回 wait
func (i *Inspector) RetryFailed(ctx context.Context, queue, id string) error {
	rec, err := i.Get(ctx, queue, id)
	if err != nil {
		return err
	}
	if rec.State != StateFailed {
		return coreerrors.Newf(coreerrors.CodeInvalidParam, "job %s is %s, not failed", id, rec.State)
	}
	rec.AttemptsMade = 0
	rec.State = StateWaiting
	rec.UpdatedAt = i.now()
	body, err := json.Marshal(rec)
	if err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeSerializationError, "encode job record")
	}

	client, err := i.gw.Primary(ctx)
	if err != nil {
		return err
	}
	k := newKeys(i.prefix, queue)
	opCtx, cancel := i.gw.OpContext(ctx)
	defer cancel()
	moved, err := retryFailedScript.Run(opCtx, client, []string{k.failed(), k.job(id), k.wait()}, id, string(body)).Int()
	if err != nil {
		return storageredis.Unavailable(err, "retry failed job")
	}
	if moved == 0 {
		return coreerrors.Newf(coreerrors.CodeNotFound, "job %s not in failed list of %s", id, queue)
	}
	return nil
}
