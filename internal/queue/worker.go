package queue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"folio-core/internal/core/dispose"
	coreerrors "folio-core/internal/core/errors"
	corelog "folio-core/internal/core/log"
	"folio-core/internal/core/metrics"
	storageredis "folio-core/internal/core/storage/redis"
)

const (
	defaultPollTimeout     = 5 * time.Second
	defaultLeaseTTL        = 30 * time.Second
	defaultPromoteInterval = time.Second
	defaultErrorBackoff    = time.Second
	promoteBatch           = 100
)

type handlerFunc func(ctx context.Context, rec Record) error

// Worker 任务消费者，每个队列一个维护循环加 Concurrency 个认领循环
//
// 投递语义为至少一次：处理器必须幂等。
type Worker struct {
	*dispose.ServiceBase

	gw              *storageredis.Gateway
	prefix          string
	policies        Policies
	logger          corelog.Logger
	metrics         metrics.Metrics
	now             func() time.Time
	id              string
	pollTimeout     time.Duration
	leaseTTL        time.Duration
	promoteInterval time.Duration
	errorBackoff    time.Duration

	mu       sync.RWMutex
	handlers map[string]map[string]handlerFunc // queue -> job name -> handler
}

// WorkerOption 选项
type WorkerOption func(*Worker)

// WithWorkerPrefix 键前缀
func WithWorkerPrefix(prefix string) WorkerOption {
	return func(w *Worker) { w.prefix = prefix }
}

// WithWorkerMetrics 按队列与结果计数
func WithWorkerMetrics(m metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = metrics.OrNop(m) }
}

// WithWorkerPolicies 队列策略
func WithWorkerPolicies(ps Policies) WorkerOption {
	return func(w *Worker) { w.policies = ps }
}

// WithWorkerLogger 日志
func WithWorkerLogger(l corelog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = l }
}

// WithWorkerClock 时钟
func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(w *Worker) { w.now = now }
}

// WithPollTimeout 阻塞认领的超时
func WithPollTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollTimeout = d
		}
	}
}

// WithLeaseTTL 认领租约时长，处理期间按 1/3 周期续约
func WithLeaseTTL(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.leaseTTL = d
		}
	}
}

// WithPromoteInterval 延迟任务提升周期
func WithPromoteInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.promoteInterval = d
		}
	}
}

// NewWorker 创建消费者
func NewWorker(ctx context.Context, gw *storageredis.Gateway, opts ...WorkerOption) *Worker {
	w := &Worker{
		ServiceBase:     dispose.NewService("QueueWorker", ctx),
		gw:              gw,
		prefix:          DefaultPrefix,
		policies:        DefaultPolicies(),
		logger:          corelog.Default(),
		metrics:         metrics.Nop{},
		now:             time.Now,
		id:              "worker-" + uuid.NewString()[:8],
		pollTimeout:     defaultPollTimeout,
		leaseTTL:        defaultLeaseTTL,
		promoteInterval: defaultPromoteInterval,
		errorBackoff:    defaultErrorBackoff,
		handlers:        make(map[string]map[string]handlerFunc),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithField("worker", w.id)
	return w
}

// Process 注册类型化处理器；载荷解码或校验失败的任务直接永久失败
func Process[T Payload](w *Worker, jt JobType[T], handler func(ctx context.Context, job Job[T]) error) {
	w.register(jt.Queue, jt.Name, func(ctx context.Context, rec Record) error {
		var payload T
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			return Permanent(coreerrors.Wrap(err, coreerrors.CodeSerializationError, "decode job payload"))
		}
		if err := payload.Validate(); err != nil {
			return Permanent(err)
		}
		return handler(ctx, Job[T]{
			ID:          rec.ID,
			Queue:       rec.Queue,
			Name:        rec.Name,
			Attempt:     rec.AttemptsMade,
			MaxAttempts: rec.Attempts,
			Payload:     payload,
		})
	})
}

func (w *Worker) register(queue, name string, h handlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.handlers[queue] == nil {
		w.handlers[queue] = make(map[string]handlerFunc)
	}
	w.handlers[queue][name] = h
}

func (w *Worker) handler(queue, name string) handlerFunc {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.handlers[queue][name]
}

// Queues 已注册处理器的队列
func (w *Worker) Queues() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.handlers))
	for q := range w.handlers {
		out = append(out, q)
	}
	sort.Strings(out)
	return out
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// 运行循环
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Run 阻塞直到 ctx 取消或 Worker 关闭；返回前等待进行中的任务完成
func (w *Worker) Run(ctx context.Context) error {
	queues := w.Queues()
	if len(queues) == 0 {
		return coreerrors.New(coreerrors.CodeInvalidParam, "no job handlers registered")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(w.Ctx(), cancel)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	for _, q := range queues {
		policy := w.policies.For(q)
		w.logger.WithFields(map[string]interface{}{
			"queue":       q,
			"concurrency": policy.Concurrency,
		}).Info("queue: worker started")

		g.Go(func() error { return w.maintain(gctx, q) })
		for i := 0; i < policy.Concurrency; i++ {
			g.Go(func() error { return w.consume(gctx, q) })
		}
	}
	err := g.Wait()
	w.logger.Info("queue: worker stopped")
	if runCtx.Err() != nil {
		return nil
	}
	return err
}

func (w *Worker) consume(ctx context.Context, queue string) error {
	limiter := rate.NewLimiter(rate.Every(w.errorBackoff), 1)
	log := w.logger.WithField("queue", queue)
	for ctx.Err() == nil {
		if _, err := w.ProcessNext(ctx, queue); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Warn("queue: claim failed")
			if werr := limiter.Wait(ctx); werr != nil {
				return nil
			}
		}
	}
	return nil
}

func (w *Worker) maintain(ctx context.Context, queue string) error {
	promote := time.NewTicker(w.promoteInterval)
	defer promote.Stop()
	recoverTick := time.NewTicker(w.leaseTTL)
	defer recoverTick.Stop()
	log := w.logger.WithField("queue", queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-promote.C:
			if n, err := w.PromoteDelayed(ctx, queue); err != nil {
				log.WithError(err).Debug("queue: promote failed")
			} else if n > 0 {
				log.Debugf("queue: promoted %d delayed jobs", n)
			}
		case <-recoverTick.C:
			if n, err := w.RecoverStalled(ctx, queue); err != nil {
				log.WithError(err).Debug("queue: stalled recovery failed")
			} else if n > 0 {
				log.Warnf("queue: recovered %d stalled jobs", n)
			}
		}
	}
}

// PromoteDelayed 把到期的延迟任务移入 wait
func (w *Worker) PromoteDelayed(ctx context.Context, queue string) (int, error) {
	client, err := w.gw.Primary(ctx)
	if err != nil {
		return 0, err
	}
	k := newKeys(w.prefix, queue)
	opCtx, cancel := w.gw.OpContext(ctx)
	defer cancel()
	n, err := promoteScript.Run(opCtx, client, []string{k.delayed(), k.wait()},
		w.now().UnixMilli(), promoteBatch).Int()
	if err != nil {
		return 0, storageredis.Unavailable(err, "promote")
	}
	return n, nil
}

// RecoverStalled 把租约已失效的 active 任务放回 wait
//
// 需要连续两次调用都看到无租约才会回收，避开认领与设置租约之间的空窗。
func (w *Worker) RecoverStalled(ctx context.Context, queue string) (int, error) {
	client, err := w.gw.Primary(ctx)
	if err != nil {
		return 0, err
	}
	k := newKeys(w.prefix, queue)
	opCtx, cancel := w.gw.OpContext(ctx)
	defer cancel()
	n, err := recoverScript.Run(opCtx, client, []string{k.active(), k.wait(), k.suspects()},
		k.leasePrefix()).Int()
	if err != nil {
		return 0, storageredis.Unavailable(err, "recover stalled")
	}
	return n, nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// 单个任务
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// ProcessNext 认领并执行一个任务；poll 超时无任务时返回 false
func (w *Worker) ProcessNext(ctx context.Context, queue string) (bool, error) {
	client, err := w.gw.Primary(ctx)
	if err != nil {
		return false, err
	}
	k := newKeys(w.prefix, queue)
	id, err := client.BLMove(ctx, k.wait(), k.active(), "RIGHT", "LEFT", w.pollTimeout).Result()
	if storageredis.IsNil(err) {
		return false, nil
	}
	if err != nil {
		return false, storageredis.Unavailable(err, "claim")
	}

	// 之后的存储操作不随 ctx 取消，保证已认领的任务能收尾
	jobCtx := context.WithoutCancel(ctx)
	opCtx, cancel := w.gw.OpContext(jobCtx)
	err = client.Set(opCtx, k.lease(id), w.id, w.leaseTTL).Err()
	cancel()
	if err != nil {
		w.logger.WithField("id", id).WithError(err).Warn("queue: set lease failed")
	}

	w.execute(jobCtx, client, k, queue, id)
	return true, nil
}

func (w *Worker) execute(ctx context.Context, client *redis.Client, k keys, queue, id string) {
	log := w.logger.WithFields(map[string]interface{}{"queue": queue, "id": id})

	rec, err := w.load(ctx, client, k, id)
	if err != nil {
		if storageredis.IsNil(err) {
			log.Warn("queue: claimed job has no record, dropping")
			opCtx, cancel := w.gw.OpContext(ctx)
			defer cancel()
			pipe := client.TxPipeline()
			pipe.LRem(opCtx, k.active(), 1, id)
			pipe.Del(opCtx, k.lease(id))
			_, _ = pipe.Exec(opCtx)
			return
		}
		if coreerrors.IsCode(err, coreerrors.CodeSerializationError) {
			// 记录损坏：以最小记录直接进入 failed
			rec = Record{ID: id, Queue: queue, Attempts: 1, AttemptsMade: 1}
			w.finish(ctx, client, k, rec, Permanent(err), log)
			return
		}
		// 存储暂时不可用，留在 active 等待租约过期后回收
		log.WithError(err).Warn("queue: load job failed")
		return
	}

	now := w.now()
	rec.AttemptsMade++
	rec.State = StateActive
	rec.UpdatedAt = now
	if body, mErr := json.Marshal(rec); mErr == nil {
		opCtx, cancel := w.gw.OpContext(ctx)
		if sErr := client.Set(opCtx, k.job(id), body, 0).Err(); sErr != nil {
			log.WithError(sErr).Debug("queue: mark active failed")
		}
		cancel()
	}

	log = log.WithFields(map[string]interface{}{"job": rec.Name, "attempt": rec.AttemptsMade})
	h := w.handler(queue, rec.Name)
	var handlerErr error
	if h == nil {
		handlerErr = Permanent(coreerrors.Newf(coreerrors.CodeNotFound, "no handler for %s/%s", queue, rec.Name))
	} else {
		stopHeartbeat := w.heartbeat(ctx, client, k.lease(id))
		handlerErr = invoke(ctx, h, rec)
		stopHeartbeat()
	}
	w.finish(ctx, client, k, rec, handlerErr, log)
}

func (w *Worker) load(ctx context.Context, client *redis.Client, k keys, id string) (Record, error) {
	opCtx, cancel := w.gw.OpContext(ctx)
	defer cancel()
	raw, err := client.Get(opCtx, k.job(id)).Bytes()
	if err != nil {
		if storageredis.IsNil(err) {
			return Record{}, err
		}
		return Record{}, storageredis.Unavailable(err, "load job")
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, coreerrors.Wrap(err, coreerrors.CodeSerializationError, "decode job record")
	}
	return rec, nil
}

func (w *Worker) finish(ctx context.Context, client *redis.Client, k keys, rec Record, handlerErr error, log corelog.Logger) {
	now := w.now()
	d := Transition(rec, handlerErr, now)
	d.Apply(&rec, handlerErr, now)

	body, err := json.Marshal(rec)
	if err != nil {
		log.WithError(err).Error("queue: encode job record failed")
		return
	}
	outcome := "failed"
	switch d.Outcome {
	case OutcomeSucceeded:
		outcome = "succeeded"
	case OutcomeRetry:
		outcome = "retry"
	}
	policy := w.policies.For(rec.Queue)

	opCtx, cancel := w.gw.OpContext(ctx)
	defer cancel()
	err = finishScript.Run(opCtx, client,
		[]string{k.active(), k.lease(rec.ID), k.job(rec.ID), k.delayed(), k.completed(), k.failed(), k.suspects()},
		rec.ID, outcome, string(body), d.RunAt.UnixMilli(), policy.KeepCompleted, policy.KeepFailed, k.jobPrefix(),
	).Err()
	if err != nil {
		// 任务仍在 active，租约过期后会被回收重跑
		log.WithError(err).Error("queue: finish job failed")
		return
	}
	w.metrics.IncrementCounter(metrics.JobsTotal, map[string]string{"queue": rec.Queue, "outcome": outcome})

	switch d.Outcome {
	case OutcomeSucceeded:
		log.Debug("queue: job succeeded")
	case OutcomeRetry:
		log.WithError(handlerErr).Warnf("queue: job failed, retry in %s", d.Delay)
	case OutcomeFailed:
		log.WithError(handlerErr).Error("queue: job permanently failed")
	}
}

// heartbeat 处理期间续约，返回停止函数
func (w *Worker) heartbeat(ctx context.Context, client *redis.Client, leaseKey string) func() {
	interval := w.leaseTTL / 3
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				opCtx, cancel := w.gw.OpContext(ctx)
				_ = client.PExpire(opCtx, leaseKey, w.leaseTTL).Err()
				cancel()
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func invoke(ctx context.Context, h handlerFunc, rec Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = coreerrors.Newf(coreerrors.CodeJobFailed, "handler panic: %v", r)
		}
	}()
	return h(ctx, rec)
}
