package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	coreerrors "folio-core/internal/core/errors"
	corelog "folio-core/internal/core/log"
	storageredis "folio-core/internal/core/storage/redis"
)

// DefaultPrefix 键前缀
const DefaultPrefix = "folio"

// EnqueueOptions 单次入队选项，零值表示使用队列策略
type EnqueueOptions struct {
	JobID    string
	Delay    time.Duration
	Attempts int
	Backoff  time.Duration
}

// Producer 任务生产者
type Producer struct {
	gw       *storageredis.Gateway
	prefix   string
	policies Policies
	logger   corelog.Logger
	now      func() time.Time
}

// ProducerOption 选项
type ProducerOption func(*Producer)

// WithProducerPrefix 键前缀
func WithProducerPrefix(prefix string) ProducerOption {
	return func(p *Producer) { p.prefix = prefix }
}

// WithProducerPolicies 队列策略
func WithProducerPolicies(ps Policies) ProducerOption {
	return func(p *Producer) { p.policies = ps }
}

// WithProducerLogger 日志
func WithProducerLogger(l corelog.Logger) ProducerOption {
	return func(p *Producer) { p.logger = l }
}

// WithProducerClock 时钟
func WithProducerClock(now func() time.Time) ProducerOption {
	return func(p *Producer) { p.now = now }
}

// NewProducer 创建生产者
func NewProducer(gw *storageredis.Gateway, opts ...ProducerOption) *Producer {
	p := &Producer{
		gw:       gw,
		prefix:   DefaultPrefix,
		policies: DefaultPolicies(),
		logger:   corelog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue 校验并持久化任务，返回 JobID
//
// 与缓存不同，持久化失败会返回 ENQUEUE_FAILED 给调用方。
func Enqueue[T Payload](ctx context.Context, p *Producer, jt JobType[T], payload T, opts EnqueueOptions) (string, error) {
	if err := payload.Validate(); err != nil {
		return "", coreerrors.Wrapf(err, coreerrors.CodeValidationError, "job %s/%s", jt.Queue, jt.Name)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", coreerrors.Wrap(err, coreerrors.CodeSerializationError, "encode job payload")
	}
	return p.EnqueueRaw(ctx, jt.Queue, jt.Name, raw, opts)
}

// EnqueueRaw 入队已编码的载荷，不做类型校验
func (p *Producer) EnqueueRaw(ctx context.Context, queue, name string, payload json.RawMessage, opts EnqueueOptions) (string, error) {
	if queue == "" || name == "" {
		return "", coreerrors.New(coreerrors.CodeMissingParam, "queue and job name are required")
	}
	if opts.Delay < 0 || opts.Attempts < 0 || opts.Backoff < 0 {
		return "", coreerrors.New(coreerrors.CodeInvalidParam, "negative enqueue option")
	}

	policy := p.policies.For(queue)
	if opts.Attempts == 0 {
		opts.Attempts = policy.Attempts
	}
	if opts.Backoff == 0 {
		opts.Backoff = policy.Backoff
	}
	id := opts.JobID
	if id == "" {
		v7, err := uuid.NewV7()
		if err != nil {
			return "", coreerrors.Wrap(err, coreerrors.CodeInternal, "generate job id")
		}
		id = v7.String()
	}

	now := p.now()
	rec := Record{
		ID:        id,
		Queue:     queue,
		Name:      name,
		Payload:   payload,
		Attempts:  opts.Attempts,
		BackoffMs: opts.Backoff.Milliseconds(),
		State:     StateWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	var runAtMs int64
	if opts.Delay > 0 {
		rec.State = StateDelayed
		rec.RunAt = now.Add(opts.Delay)
		runAtMs = rec.RunAt.UnixMilli()
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return "", coreerrors.Wrap(err, coreerrors.CodeSerializationError, "encode job record")
	}

	log := p.logger.WithFields(map[string]interface{}{"queue": queue, "job": name, "id": id})
	client, err := p.gw.Primary(ctx)
	if err != nil {
		log.WithError(err).Error("queue: enqueue failed, store unavailable")
		return "", coreerrors.Wrap(err, coreerrors.CodeEnqueueFailed, "enqueue "+queue+"/"+name)
	}
	k := newKeys(p.prefix, queue)
	opCtx, cancel := p.gw.OpContext(ctx)
	defer cancel()
	added, err := enqueueScript.Run(opCtx, client,
		[]string{k.job(id), k.wait(), k.delayed()},
		string(body), runAtMs, id).Int()
	if err != nil {
		log.WithError(err).Error("queue: enqueue failed")
		return "", coreerrors.Wrap(storageredis.Unavailable(err, "enqueue"), coreerrors.CodeEnqueueFailed, "enqueue "+queue+"/"+name)
	}
	if added == 0 {
		log.Debug("queue: job id exists, enqueue skipped")
		return id, nil
	}
	log.Debug("queue: enqueued")
	return id, nil
}
