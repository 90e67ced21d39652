// Package cache cache-aside 存储
//
// 未配置或不可用的存储一律降级为 miss / no-op，调用方只把缓存当作加速手段。
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"folio-core/internal/core/codec"
	corelog "folio-core/internal/core/log"
	storageredis "folio-core/internal/core/storage/redis"
)

const scanBatch = 500

// Store cache-aside 存储
type Store struct {
	gw     *storageredis.Gateway // nil 表示不带存储运行
	codec  codec.Codec
	logger corelog.Logger
	group  *singleflight.Group
	keys   Keys
}

// Option 选项
type Option func(*Store)

// WithCodec 替换编码器
func WithCodec(c codec.Codec) Option {
	return func(s *Store) { s.codec = c }
}

// WithLogger 设置日志
func WithLogger(l corelog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithSingleflight 合并同一进程内对同一 key 的并发 miss
func WithSingleflight(enabled bool) Option {
	return func(s *Store) {
		if enabled {
			s.group = &singleflight.Group{}
		} else {
			s.group = nil
		}
	}
}

// WithPrefix 设置键前缀
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.keys = Keys{Prefix: prefix} }
}

// New 创建存储；gw 可以为 nil
func New(gw *storageredis.Gateway, opts ...Option) *Store {
	s := &Store{
		gw:     gw,
		codec:  codec.Default,
		logger: corelog.Default(),
		keys:   Keys{Prefix: "folio"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Keys 返回该存储使用的键构建器
func (s *Store) Keys() Keys {
	return s.keys
}

// conn 入口处唯一的分支：拿不到连接即降级
func (s *Store) conn(ctx context.Context) (*redis.Client, bool) {
	if s == nil || s.gw == nil || !s.gw.Configured() {
		return nil, false
	}
	client, err := s.gw.Primary(ctx)
	if err != nil {
		s.logger.WithError(err).Debug("cache: store unavailable")
		return nil, false
	}
	return client, true
}

func (s *Store) getRaw(ctx context.Context, key string) (string, bool) {
	client, ok := s.conn(ctx)
	if !ok {
		return "", false
	}
	opCtx, cancel := s.gw.OpContext(ctx)
	defer cancel()

	raw, err := client.Get(opCtx, key).Result()
	if err != nil {
		if !storageredis.IsNil(err) {
			s.logger.WithField("key", key).WithError(err).Warn("cache: get failed")
		}
		return "", false
	}
	return raw, true
}

func (s *Store) setRaw(ctx context.Context, key, raw string, ttl time.Duration) {
	client, ok := s.conn(ctx)
	if !ok {
		return
	}
	opCtx, cancel := s.gw.OpContext(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	if err := client.Set(opCtx, key, raw, ttl).Err(); err != nil {
		s.logger.WithField("key", key).WithError(err).Warn("cache: set failed")
	}
}

// Get 读取；miss、存储缺失或解码失败都返回 false
func Get[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var zero T
	raw, ok := s.getRaw(ctx, key)
	if !ok {
		return zero, false
	}
	v, err := codec.Decode[T](s.codec, raw)
	if err != nil {
		s.logger.WithField("key", key).WithError(err).Warn("cache: dropping undecodable entry")
		s.Del(ctx, key)
		return zero, false
	}
	return v, true
}

// Set 编码后写入，ttl 为 0 表示不过期；存储缺失时为 no-op
func Set[T any](ctx context.Context, s *Store, key string, value T, ttl time.Duration) {
	if _, ok := s.conn(ctx); !ok {
		return
	}
	raw, err := codec.Encode(s.codec, value)
	if err != nil {
		s.logger.WithField("key", key).WithError(err).Warn("cache: encode failed")
		return
	}
	s.setRaw(ctx, key, raw, ttl)
}

// GetOrSet 命中直接返回；未命中调用 producer 并回填
//
// producer 出错时不回填，错误原样返回。默认不做并发 miss 合并，
// 开启 WithSingleflight 后同进程内同 key 只调用一次 producer。
func GetOrSet[T any](ctx context.Context, s *Store, key string, ttl time.Duration, producer func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := Get[T](ctx, s, key); ok {
		return v, nil
	}

	load := func() (T, error) {
		v, err := producer(ctx)
		if err != nil {
			return v, err
		}
		Set(ctx, s, key, v, ttl)
		return v, nil
	}

	if s == nil || s.group == nil {
		return load()
	}

	res, err, _ := s.group.Do(key, func() (interface{}, error) {
		return load()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}

// Del 删除单个键
func (s *Store) Del(ctx context.Context, key string) {
	client, ok := s.conn(ctx)
	if !ok {
		return
	}
	opCtx, cancel := s.gw.OpContext(ctx)
	defer cancel()
	if err := client.Del(opCtx, key).Err(); err != nil {
		s.logger.WithField("key", key).WithError(err).Warn("cache: del failed")
	}
}

// DelPattern 先 SCAN 枚举匹配键，再一次 DEL 删除，返回删除数
func (s *Store) DelPattern(ctx context.Context, pattern string) int {
	client, ok := s.conn(ctx)
	if !ok {
		return 0
	}

	var keys []string
	var cursor uint64
	for {
		opCtx, cancel := s.gw.OpContext(ctx)
		batch, next, err := client.Scan(opCtx, cursor, pattern, scanBatch).Result()
		cancel()
		if err != nil {
			s.logger.WithField("pattern", pattern).WithError(err).Warn("cache: scan failed")
			return 0
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(keys) == 0 {
		return 0
	}

	opCtx, cancel := s.gw.OpContext(ctx)
	defer cancel()
	n, err := client.Del(opCtx, keys...).Result()
	if err != nil {
		s.logger.WithField("pattern", pattern).WithError(err).Warn("cache: batch del failed")
		return 0
	}
	s.logger.WithFields(map[string]interface{}{"pattern": pattern, "count": n}).Debug("cache: pattern deleted")
	return int(n)
}

// Exists 是否存在
func (s *Store) Exists(ctx context.Context, key string) bool {
	client, ok := s.conn(ctx)
	if !ok {
		return false
	}
	opCtx, cancel := s.gw.OpContext(ctx)
	defer cancel()
	n, err := client.Exists(opCtx, key).Result()
	return err == nil && n > 0
}

// TTL 剩余过期时间，诊断用；不存在或无过期返回 0
func (s *Store) TTL(ctx context.Context, key string) time.Duration {
	client, ok := s.conn(ctx)
	if !ok {
		return 0
	}
	opCtx, cancel := s.gw.OpContext(ctx)
	defer cancel()
	d, err := client.TTL(opCtx, key).Result()
	if err != nil || d < 0 {
		return 0
	}
	return d
}
