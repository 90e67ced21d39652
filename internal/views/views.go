// Package views 浏览计数的去重与批量落库
//
// 每次浏览先在 recent 集合里按指纹去重，新访客才累加 pending 计数；
// 周期性的同步任务读取并清零 pending，再把增量写入数据库。
package views

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	coreerrors "folio-core/internal/core/errors"
	corelog "folio-core/internal/core/log"
	"folio-core/internal/core/metrics"
	storageredis "folio-core/internal/core/storage/redis"
	"folio-core/internal/queue"
)

const (
	defaultPrefix    = "folio"
	defaultRecentTTL = time.Hour
	fingerprintLen   = 32
)

// recordScript KEYS: recent, pending, pendingIds  ARGV: nowMs, ttlMs, fingerprint, member
var recordScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - ttl)
local added = redis.call('ZADD', KEYS[1], 'NX', now, ARGV[3])
redis.call('PEXPIRE', KEYS[1], ttl)
if added == 0 then
	return 0
end
redis.call('INCR', KEYS[2])
redis.call('SADD', KEYS[3], ARGV[4])
return 1
`)

// drainScript 读取并清零 pending 计数 KEYS: pending, pendingIds  ARGV: member
var drainScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[1])
if not v then
	return 0
end
return tonumber(v)
`)

// Writer 增量写入的关系库
type Writer interface {
	AddViews(ctx context.Context, subjectType, id string, delta int64) error
}

// Accumulator 浏览累加器
type Accumulator struct {
	gw        *storageredis.Gateway
	prefix    string
	recentTTL time.Duration
	logger    corelog.Logger
	metrics   metrics.Metrics
	now       func() time.Time
}

// Option 选项
type Option func(*Accumulator)

// WithPrefix 键前缀
func WithPrefix(prefix string) Option {
	return func(a *Accumulator) { a.prefix = prefix }
}

// WithRecentTTL 同一访客不重复计数的窗口
func WithRecentTTL(d time.Duration) Option {
	return func(a *Accumulator) {
		if d > 0 {
			a.recentTTL = d
		}
	}
}

// WithLogger 日志
func WithLogger(l corelog.Logger) Option {
	return func(a *Accumulator) { a.logger = l }
}

// WithMetrics 记录写入的浏览量与失败数
func WithMetrics(m metrics.Metrics) Option {
	return func(a *Accumulator) { a.metrics = metrics.OrNop(m) }
}

// WithClock 时钟
func WithClock(now func() time.Time) Option {
	return func(a *Accumulator) { a.now = now }
}

// New 创建累加器
func New(gw *storageredis.Gateway, opts ...Option) *Accumulator {
	a := &Accumulator{
		gw:        gw,
		prefix:    defaultPrefix,
		recentTTL: defaultRecentTTL,
		logger:    corelog.Default(),
		metrics:   metrics.Nop{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Fingerprint 访客指纹；登录用户只按用户 ID 计算，跨设备算同一访客
func Fingerprint(ip, userAgent, userID string) string {
	var src string
	if userID != "" {
		src = "user:" + userID
	} else {
		src = "anon:" + ip + "|" + userAgent
	}
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

func member(subjectType, id string) string {
	return subjectType + ":" + id
}

func splitMember(m string) (string, string, bool) {
	t, id, ok := strings.Cut(m, ":")
	if !ok || !queue.ValidSubject(t) || id == "" {
		return "", "", false
	}
	return t, id, true
}

func (a *Accumulator) recentKey(subjectType, id string) string {
	return a.prefix + ":views:recent:" + member(subjectType, id)
}

func (a *Accumulator) pendingKey(subjectType, id string) string {
	return a.prefix + ":views:pending:" + member(subjectType, id)
}

func (a *Accumulator) pendingIDsKey() string {
	return a.prefix + ":views:pending-ids"
}

// Record 按当前时间记录一次浏览
func (a *Accumulator) Record(ctx context.Context, subjectType, id, fingerprint string) (bool, error) {
	return a.RecordAt(ctx, subjectType, id, fingerprint, a.now())
}

// RecordAt 记录发生在 at 的浏览，返回是否计数
func (a *Accumulator) RecordAt(ctx context.Context, subjectType, id, fingerprint string, at time.Time) (bool, error) {
	if !queue.ValidSubject(subjectType) {
		return false, coreerrors.Validationf("unknown subject type %q", subjectType)
	}
	if id == "" || fingerprint == "" {
		return false, coreerrors.New(coreerrors.CodeMissingParam, "subject id and fingerprint are required")
	}
	if now := a.now(); at.After(now) {
		at = now
	}

	client, err := a.gw.Primary(ctx)
	if err != nil {
		return false, err
	}
	opCtx, cancel := a.gw.OpContext(ctx)
	defer cancel()
	added, err := recordScript.Run(opCtx, client,
		[]string{a.recentKey(subjectType, id), a.pendingKey(subjectType, id), a.pendingIDsKey()},
		at.UnixMilli(), a.recentTTL.Milliseconds(), fingerprint, member(subjectType, id),
	).Int()
	if err != nil {
		return false, storageredis.Unavailable(err, "record view")
	}
	return added == 1, nil
}

// Pending 当前待同步的增量
func (a *Accumulator) Pending(ctx context.Context, subjectType, id string) (int64, error) {
	client, err := a.gw.Primary(ctx)
	if err != nil {
		return 0, err
	}
	opCtx, cancel := a.gw.OpContext(ctx)
	defer cancel()
	n, err := client.Get(opCtx, a.pendingKey(subjectType, id)).Int64()
	if storageredis.IsNil(err) {
		return 0, nil
	}
	if err != nil {
		return 0, storageredis.Unavailable(err, "pending views")
	}
	return n, nil
}

// FlushResult 一次同步的结果
type FlushResult struct {
	Subjects int
	Views    int64
	Failed   int
}

// Flush 逐个读取并清零 pending，把增量交给 writer
//
// writer 失败时把增量加回并重新登记，返回错误让同步任务重试。
func (a *Accumulator) Flush(ctx context.Context, w Writer) (FlushResult, error) {
	var res FlushResult
	client, err := a.gw.Primary(ctx)
	if err != nil {
		return res, err
	}
	opCtx, cancel := a.gw.OpContext(ctx)
	members, err := client.SMembers(opCtx, a.pendingIDsKey()).Result()
	cancel()
	if err != nil {
		return res, storageredis.Unavailable(err, "list pending views")
	}

	var errs []error
	for _, m := range members {
		subjectType, id, ok := splitMember(m)
		if !ok {
			a.logger.WithField("member", m).Warn("views: dropping malformed pending id")
			_ = a.srem(ctx, client, m)
			continue
		}
		delta, err := a.drain(ctx, client, subjectType, id)
		if err != nil {
			errs = append(errs, err)
			res.Failed++
			continue
		}
		if delta <= 0 {
			continue
		}
		if err := w.AddViews(ctx, subjectType, id, delta); err != nil {
			res.Failed++
			errs = append(errs, coreerrors.Wrapf(err, coreerrors.CodeStorageError, "add %d views to %s", delta, m))
			if cErr := a.compensate(ctx, client, subjectType, id, delta); cErr != nil {
				a.logger.WithField("member", m).WithError(cErr).Error("views: compensation failed, views lost")
			}
			continue
		}
		res.Subjects++
		res.Views += delta
	}

	a.metrics.AddCounter(metrics.ViewsFlushedTotal, float64(res.Views), nil)
	a.metrics.AddCounter(metrics.ViewsFlushFailures, float64(res.Failed), nil)

	log := a.logger.WithFields(map[string]interface{}{
		"subjects": res.Subjects,
		"views":    res.Views,
		"failed":   res.Failed,
	})
	if len(errs) > 0 {
		log.Warn("views: flush incomplete")
		return res, errors.Join(errs...)
	}
	if res.Subjects > 0 {
		log.Info("views: flushed")
	}
	return res, nil
}

func (a *Accumulator) drain(ctx context.Context, client *redis.Client, subjectType, id string) (int64, error) {
	opCtx, cancel := a.gw.OpContext(ctx)
	defer cancel()
	n, err := drainScript.Run(opCtx, client,
		[]string{a.pendingKey(subjectType, id), a.pendingIDsKey()},
		member(subjectType, id)).Int64()
	if err != nil {
		return 0, storageredis.Unavailable(err, "drain views")
	}
	return n, nil
}

func (a *Accumulator) compensate(ctx context.Context, client *redis.Client, subjectType, id string, delta int64) error {
	opCtx, cancel := a.gw.OpContext(ctx)
	defer cancel()
	pipe := client.TxPipeline()
	pipe.IncrBy(opCtx, a.pendingKey(subjectType, id), delta)
	pipe.SAdd(opCtx, a.pendingIDsKey(), member(subjectType, id))
	if _, err := pipe.Exec(opCtx); err != nil {
		return storageredis.Unavailable(err, "compensate views")
	}
	return nil
}

func (a *Accumulator) srem(ctx context.Context, client *redis.Client, m string) error {
	opCtx, cancel := a.gw.OpContext(ctx)
	defer cancel()
	return client.SRem(opCtx, a.pendingIDsKey(), m).Err()
}
