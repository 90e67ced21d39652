// Package ratelimit 基于共享存储的滑动窗口限流
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	coreerrors "folio-core/internal/core/errors"
	corelog "folio-core/internal/core/log"
	"folio-core/internal/core/metrics"
	storageredis "folio-core/internal/core/storage/redis"
)

// Limit 窗口与上限
type Limit struct {
	Window      time.Duration
	MaxRequests int
}

// Result 一次准入判定
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int  // 秒，仅拒绝时为正
	Degraded   bool // 存储不可用，按放行处理
}

// Limiter 滑动窗口限流器
//
// 每个 (endpoint, identifier) 对应一个有序集合，成员为 {毫秒时间戳}-{随机串}，
// 分数为毫秒时间戳。裁剪、插入、计数、续期在同一个事务里完成。
type Limiter struct {
	gw      *storageredis.Gateway
	prefix  string
	presets map[Preset]Limit
	logger  corelog.Logger
	metrics metrics.Metrics
	now     func() time.Time
	nonce   func() string
}

// Option 选项
type Option func(*Limiter)

// WithPrefix 键前缀
func WithPrefix(prefix string) Option {
	return func(l *Limiter) { l.prefix = prefix }
}

// WithPresets 覆盖或新增预设
func WithPresets(presets map[Preset]Limit) Option {
	return func(l *Limiter) {
		for name, p := range presets {
			l.presets[name] = p
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger corelog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithMetrics 按 allowed/denied/degraded 计数
func WithMetrics(m metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = metrics.OrNop(m) }
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New 创建限流器；gw 为 nil 时始终放行
func New(gw *storageredis.Gateway, opts ...Option) *Limiter {
	l := &Limiter{
		gw:      gw,
		prefix:  "folio",
		presets: DefaultPresets(),
		logger:  corelog.Default(),
		metrics: metrics.Nop{},
		now:     time.Now,
		nonce:   func() string { return uuid.NewString()[:8] },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key 限流键：{prefix}:ratelimit:{endpoint}:{identifier}
func (l *Limiter) Key(identifier, endpoint string) string {
	return fmt.Sprintf("%s:ratelimit:%s:%s", l.prefix, endpoint, identifier)
}

// Preset 查询预设
func (l *Limiter) Preset(name Preset) (Limit, bool) {
	p, ok := l.presets[name]
	return p, ok
}

// CheckPreset 按预设名判定
func (l *Limiter) CheckPreset(ctx context.Context, identifier, endpoint string, name Preset) (Result, error) {
	limit, ok := l.presets[name]
	if !ok {
		return Result{}, coreerrors.Newf(coreerrors.CodeInvalidParam, "unknown rate limit preset %q", name)
	}
	return l.Check(ctx, identifier, endpoint, limit), nil
}

// Check 判定一次请求；存储不可用时放行并报告满额剩余
func (l *Limiter) Check(ctx context.Context, identifier, endpoint string, limit Limit) Result {
	now := l.now()
	if limit.MaxRequests < 1 || limit.Window <= 0 {
		l.logger.Warnf("ratelimit: invalid limit %+v for %s, allowing", limit, endpoint)
		return l.failOpen(now, limit)
	}

	client, err := l.client(ctx)
	if err != nil {
		return l.failOpen(now, limit)
	}

	key := l.Key(identifier, endpoint)
	nowMs := now.UnixMilli()
	windowMs := limit.Window.Milliseconds()
	member := strconv.FormatInt(nowMs, 10) + "-" + l.nonce()

	opCtx, cancel := l.gw.OpContext(ctx)
	defer cancel()

	pipe := client.TxPipeline()
	pipe.ZRemRangeByScore(opCtx, key, "-inf", strconv.FormatInt(nowMs-windowMs, 10))
	pipe.ZAdd(opCtx, key, redis.Z{Score: float64(nowMs), Member: member})
	card := pipe.ZCard(opCtx, key)
	pipe.PExpire(opCtx, key, limit.Window)
	if _, err := pipe.Exec(opCtx); err != nil {
		l.logger.WithField("key", key).WithError(err).Warn("ratelimit: transaction failed, allowing")
		return l.failOpen(now, limit)
	}

	count := int(card.Val())
	result := Result{
		Allowed:   count <= limit.MaxRequests,
		Limit:     limit.MaxRequests,
		Remaining: max(0, limit.MaxRequests-count),
		ResetAt:   l.resetAt(opCtx, client, key, now, limit.Window),
	}
	decision := "allowed"
	if !result.Allowed {
		result.RetryAfter = retryAfterSeconds(now, result.ResetAt)
		decision = "denied"
	}
	l.metrics.IncrementCounter(metrics.RateLimitTotal, map[string]string{"result": decision})
	return result
}

// resetAt 最早成员 + 窗口；事务之后的第二次读取，仅作提示
func (l *Limiter) resetAt(ctx context.Context, client *redis.Client, key string, now time.Time, window time.Duration) time.Time {
	oldest, err := client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		return now.Add(window)
	}
	return time.UnixMilli(int64(oldest[0].Score)).Add(window)
}

func retryAfterSeconds(now, resetAt time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Reset 清空某个窗口
func (l *Limiter) Reset(ctx context.Context, identifier, endpoint string) error {
	client, err := l.client(ctx)
	if err != nil {
		return err
	}
	opCtx, cancel := l.gw.OpContext(ctx)
	defer cancel()
	if err := client.Del(opCtx, l.Key(identifier, endpoint)).Err(); err != nil {
		return storageredis.Unavailable(err, "del")
	}
	return nil
}

func (l *Limiter) client(ctx context.Context) (*redis.Client, error) {
	if l.gw == nil {
		return nil, coreerrors.ErrNotConfigured
	}
	client, err := l.gw.Primary(ctx)
	if err != nil {
		l.logger.WithError(err).Debug("ratelimit: store unavailable")
		return nil, err
	}
	return client, nil
}

func (l *Limiter) failOpen(now time.Time, limit Limit) Result {
	l.metrics.IncrementCounter(metrics.RateLimitTotal, map[string]string{"result": "degraded"})
	return Result{
		Allowed:   true,
		Limit:     limit.MaxRequests,
		Remaining: max(0, limit.MaxRequests),
		ResetAt:   now.Add(limit.Window),
		Degraded:  true,
	}
}
