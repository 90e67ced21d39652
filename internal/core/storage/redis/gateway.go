// Package redis 共享存储网关：惰性建立 primary / publisher / subscriber 三类连接
package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"folio-core/internal/core/dispose"
	coreerrors "folio-core/internal/core/errors"
	corelog "folio-core/internal/core/log"
)

// Client 是 go-redis 客户端类型别名
type Client = redis.Client

// Nil 是 key 不存在时 go-redis 返回的错误
var Nil = redis.Nil

// Role 连接角色
type Role string

const (
	RolePrimary    Role = "primary"
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

// Config Redis 网关配置
type Config struct {
	URL          string        // redis://[:password@]host:port[/db]，为空表示未配置
	PoolSize     int           // 连接池大小
	DialTimeout  time.Duration // 首次建连 + Ping 超时
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	OpTimeout    time.Duration // 单次操作超时，见 OpContext
	RetryBackoff time.Duration // 建连失败后的重试间隔
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 2 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 5 * time.Second
	}
	return c
}

type conn struct {
	client   *redis.Client
	lastErr  error
	failedAt time.Time
}

// Gateway 持有进程内共享的 Redis 连接，其他组件只借用不关闭
type Gateway struct {
	*dispose.ServiceBase

	cfg     Config
	options *redis.Options
	owned   bool
	logger  corelog.Logger
	now     func() time.Time

	mu    sync.Mutex
	conns map[Role]*conn
	dials singleflight.Group
}

// Option 网关选项
type Option func(*Gateway)

// WithLogger 设置日志
func WithLogger(l corelog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithClock 设置时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New 创建网关，不建立任何连接
//
// URL 解析失败不会立即报错，而是在第一次取连接时返回 CONFIG_ERROR。
func New(ctx context.Context, cfg Config, opts ...Option) *Gateway {
	g := &Gateway{
		ServiceBase: dispose.NewService("RedisGateway", ctx),
		cfg:         cfg.withDefaults(),
		owned:       true,
		logger:      corelog.Default(),
		now:         time.Now,
		conns:       make(map[Role]*conn),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.AddCleanHandler(g.onClose)
	return g
}

// NewFromClient 使用已有客户端，三个角色共用；Close 不会关闭该客户端
func NewFromClient(ctx context.Context, client *redis.Client, opts ...Option) *Gateway {
	g := New(ctx, Config{URL: "external"}, opts...)
	g.owned = false
	for _, role := range []Role{RolePrimary, RolePublisher, RoleSubscriber} {
		g.conns[role] = &conn{client: client}
	}
	return g
}

// Configured 是否配置了存储地址
func (g *Gateway) Configured() bool {
	return g != nil && g.cfg.URL != ""
}

// Available 已配置、未关闭，且主连接不处于建连失败的退避期
func (g *Gateway) Available() bool {
	if !g.Configured() || g.IsClosed() {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.conns[RolePrimary]
	if c == nil || c.client != nil {
		return true
	}
	return g.now().Sub(c.failedAt) >= g.cfg.RetryBackoff
}

// Primary 通用数据连接
func (g *Gateway) Primary(ctx context.Context) (*redis.Client, error) {
	return g.get(ctx, RolePrimary)
}

// Publisher 发布连接
func (g *Gateway) Publisher(ctx context.Context) (*redis.Client, error) {
	return g.get(ctx, RolePublisher)
}

// Subscriber 订阅连接；处于订阅模式的连接不能执行普通命令，因此与 Primary 分开
func (g *Gateway) Subscriber(ctx context.Context) (*redis.Client, error) {
	return g.get(ctx, RoleSubscriber)
}

// OpContext 为单次存储操作加上超时
func (g *Gateway) OpContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.cfg.OpTimeout)
}

// Ping 检查主连接
func (g *Gateway) Ping(ctx context.Context) error {
	client, err := g.Primary(ctx)
	if err != nil {
		return err
	}
	opCtx, cancel := g.OpContext(ctx)
	defer cancel()
	if err := client.Ping(opCtx).Err(); err != nil {
		return Unavailable(err, "ping")
	}
	return nil
}

func (g *Gateway) get(ctx context.Context, role Role) (*redis.Client, error) {
	if g == nil || !g.Configured() {
		return nil, coreerrors.ErrNotConfigured
	}
	if g.IsClosed() {
		return nil, coreerrors.ErrServiceClosed
	}
	if client, err, ok := g.cached(role); ok {
		return client, err
	}

	// 建连与调用方 ctx 解耦：调用方取消只影响自己，不会让其他调用方进入退避期
	ch := g.dials.DoChan(string(role), func() (any, error) {
		return g.connect(ctx, role)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*redis.Client), nil
	case <-ctx.Done():
		return nil, Unavailable(ctx.Err(), "connect "+string(role))
	}
}

// cached 返回已建立的连接或退避期内的错误；ok 为 false 表示需要建连
func (g *Gateway) cached(role Role) (*redis.Client, error, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c := g.conns[role]
	if c != nil && c.client != nil {
		return c.client, nil, true
	}
	if c != nil && g.now().Sub(c.failedAt) < g.cfg.RetryBackoff {
		return nil, coreerrors.Wrap(c.lastErr, coreerrors.CodeUnavailable, "redis unavailable, retry pending"), true
	}
	return nil, nil, false
}

func (g *Gateway) connect(ctx context.Context, role Role) (*redis.Client, error) {
	if client, err, ok := g.cached(role); ok {
		return client, err
	}

	client, err := g.dial(context.WithoutCancel(ctx), role)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.IsClosed() {
		if client != nil {
			_ = client.Close()
		}
		return nil, coreerrors.ErrServiceClosed
	}
	if err != nil {
		g.conns[role] = &conn{lastErr: err, failedAt: g.now()}
		g.logger.WithField("role", role).WithError(err).Warn("redis gateway: dial failed")
		return nil, err
	}
	g.conns[role] = &conn{client: client}
	g.logger.WithField("role", role).Debug("redis gateway: connected")
	return client, nil
}

func (g *Gateway) clientOptions() (*redis.Options, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.options != nil {
		return g.options, nil
	}
	opts, err := redis.ParseURL(g.cfg.URL)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeConfigError, "invalid redis url")
	}
	if g.cfg.PoolSize > 0 {
		opts.PoolSize = g.cfg.PoolSize
	}
	opts.DialTimeout = g.cfg.DialTimeout
	if g.cfg.ReadTimeout > 0 {
		opts.ReadTimeout = g.cfg.ReadTimeout
	}
	if g.cfg.WriteTimeout > 0 {
		opts.WriteTimeout = g.cfg.WriteTimeout
	}
	g.options = opts
	return opts, nil
}

// dial 不持有 g.mu；Ping 只受 DialTimeout 约束
func (g *Gateway) dial(ctx context.Context, role Role) (*redis.Client, error) {
	base, err := g.clientOptions()
	if err != nil {
		return nil, err
	}
	opts := *base
	opts.ClientName = "folio-" + string(role)
	client := redis.NewClient(&opts)

	pingCtx, cancel := context.WithTimeout(ctx, g.cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, Unavailable(err, "connect "+string(role))
	}
	return client, nil
}

// onClose 只关闭自己建立的连接
func (g *Gateway) onClose() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.owned {
		g.conns = make(map[Role]*conn)
		return nil
	}
	var errs []error
	for role, c := range g.conns {
		if c.client != nil {
			if err := c.client.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		delete(g.conns, role)
	}
	return errors.Join(errs...)
}

// Unavailable 把驱动错误归类为 UNAVAILABLE 或 TIMEOUT
func Unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return coreerrors.Wrapf(err, coreerrors.CodeTimeout, "redis %s timed out", op)
	}
	return coreerrors.Wrapf(err, coreerrors.CodeUnavailable, "redis %s failed", op)
}

// IsNil key 不存在
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
