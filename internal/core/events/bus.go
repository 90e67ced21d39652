// Package events 基于共享存储 Pub/Sub 的类型化事件总线
//
// 尽力而为、至多一次：存储不可用时发布被丢弃，处理器出错或 panic 时事件被丢弃，
// 不做重投。
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"folio-core/internal/core/codec"
	"folio-core/internal/core/dispose"
	coreerrors "folio-core/internal/core/errors"
	corelog "folio-core/internal/core/log"
	storageredis "folio-core/internal/core/storage/redis"
)

const (
	attachMinBackoff = 500 * time.Millisecond
	attachMaxBackoff = 30 * time.Second
)

// Payload 每个频道声明的消息类型，发布前与接收后都要校验
type Payload interface {
	Validate() error
}

// Channel 频道名 + 载荷类型即完整契约
type Channel[T Payload] struct {
	Name string
}

// NewChannel 声明频道
func NewChannel[T Payload](name string) Channel[T] {
	return Channel[T]{Name: name}
}

// Handler 类型化处理器
type Handler[T Payload] func(ctx context.Context, payload T) error

type registration struct {
	id       uint64
	channel  string
	dispatch func(ctx context.Context, raw string)
}

// Bus 事件总线
type Bus struct {
	*dispose.ServiceBase

	gw     *storageredis.Gateway
	codec  codec.Codec
	logger corelog.Logger
	prefix string

	mu        sync.RWMutex
	handlers  map[string][]*registration // 完整频道名 -> 处理器，按注册顺序
	pubsub    *redis.PubSub
	attaching bool
	nextID    uint64
}

// Option 选项
type Option func(*Bus)

// WithLogger 设置日志
func WithLogger(l corelog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithCodec 设置编码器
func WithCodec(c codec.Codec) Option {
	return func(b *Bus) { b.codec = c }
}

// WithChannelPrefix 给所有频道名加前缀，用于隔离环境
func WithChannelPrefix(prefix string) Option {
	return func(b *Bus) { b.prefix = prefix }
}

// NewBus 创建事件总线；gw 为 nil 或未配置时发布全部丢弃，处理器只在本地登记
func NewBus(ctx context.Context, gw *storageredis.Gateway, opts ...Option) *Bus {
	b := &Bus{
		ServiceBase: dispose.NewService("EventBus", ctx),
		gw:          gw,
		codec:       codec.Default,
		logger:      corelog.Default(),
		handlers:    make(map[string][]*registration),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.AddCleanHandler(b.onClose)
	return b
}

func (b *Bus) fullName(name string) string {
	return b.prefix + name
}

// Publish 校验、编码并发布；校验失败返回错误，存储不可用时记录并丢弃
func Publish[T Payload](ctx context.Context, b *Bus, ch Channel[T], payload T) error {
	if err := payload.Validate(); err != nil {
		return coreerrors.Wrapf(err, coreerrors.CodeValidationError, "event %s", ch.Name)
	}
	raw, err := codec.Encode(b.codec, payload)
	if err != nil {
		return err
	}
	b.publishRaw(ctx, ch.Name, raw)
	return nil
}

func (b *Bus) publishRaw(ctx context.Context, name, raw string) {
	log := b.logger.WithField("channel", name)
	if b.gw == nil || b.IsClosed() {
		log.Debug("events: no store, publish dropped")
		return
	}
	client, err := b.gw.Publisher(ctx)
	if err != nil {
		log.WithError(err).Warn("events: store unavailable, publish dropped")
		return
	}
	opCtx, cancel := b.gw.OpContext(ctx)
	defer cancel()
	if err := client.Publish(opCtx, b.fullName(name), raw).Err(); err != nil {
		log.WithError(err).Warn("events: publish failed, dropped")
		return
	}
	log.Debug("events: published")
}

// Subscription 订阅句柄
type Subscription struct {
	bus  *Bus
	reg  *registration
	once sync.Once
}

// Close 注销处理器；频道上最后一个处理器注销时退订
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() { err = s.bus.remove(s.reg) })
	return err
}

// Subscribe 注册处理器：解码、校验，通过后调用；校验失败的消息不会交给处理器
func Subscribe[T Payload](b *Bus, ch Channel[T], handler Handler[T]) (*Subscription, error) {
	name := ch.Name
	dispatch := func(ctx context.Context, raw string) {
		log := b.logger.WithField("channel", name)
		payload, err := codec.Decode[T](b.codec, raw)
		if err != nil {
			log.WithError(err).Warn("events: undecodable payload dropped")
			return
		}
		if err := payload.Validate(); err != nil {
			log.WithError(err).Warn("events: invalid payload dropped")
			return
		}
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("events: handler panic: %v", r)
			}
		}()
		if err := handler(ctx, payload); err != nil {
			log.WithError(err).Warn("events: handler failed, event dropped")
		}
	}
	return b.add(name, dispatch)
}

// add 处理器总是先登记到本地；订阅连接不可用时由后台循环补订阅，
// 在此之前频道没有活跃订阅者
func (b *Bus) add(name string, dispatch func(context.Context, string)) (*Subscription, error) {
	if b.IsClosed() {
		return nil, coreerrors.ErrServiceClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	full := b.fullName(name)
	b.nextID++
	reg := &registration{id: b.nextID, channel: full, dispatch: dispatch}
	b.handlers[full] = append(b.handlers[full], reg)
	if len(b.handlers[full]) == 1 {
		b.attachLocked(full)
	}

	b.logger.WithField("channel", name).Infof("events: subscribed (handlers: %d)", len(b.handlers[full]))
	return &Subscription{bus: b, reg: reg}, nil
}

// attachLocked 首个处理器登记后确保频道被订阅
func (b *Bus) attachLocked(full string) {
	log := b.logger.WithField("channel", full)
	if b.pubsub != nil {
		// go-redis 会记住频道，断线重连后自动重新订阅
		if err := b.pubsub.Subscribe(b.Ctx(), full); err != nil {
			log.WithError(err).Warn("events: subscribe failed, retried on reconnect")
		}
		return
	}
	if !b.gw.Configured() {
		log.Debug("events: no store, handler registered locally only")
		return
	}
	if b.attaching {
		return
	}
	client, err := b.gw.Subscriber(b.Ctx())
	if err != nil {
		log.WithError(err).Warn("events: subscriber connection unavailable, retrying in background")
		b.attaching = true
		go b.attachLoop()
		return
	}
	b.startLocked(client)
}

// startLocked 用当前全部频道建立 PubSub 并启动接收循环
func (b *Bus) startLocked(client *redis.Client) {
	channels := make([]string, 0, len(b.handlers))
	for ch := range b.handlers {
		channels = append(channels, ch)
	}
	b.pubsub = client.Subscribe(b.Ctx(), channels...)
	go b.receiveLoop(b.pubsub)
}

// attachLoop 退避重试订阅连接，成功后补订阅已登记的频道
func (b *Bus) attachLoop() {
	ctx := b.Ctx()
	delay := attachMinBackoff
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		client, err := b.gw.Subscriber(ctx)
		if err != nil {
			b.logger.WithError(err).Debug("events: subscriber still unavailable")
			delay = min(delay*2, attachMaxBackoff)
			continue
		}

		b.mu.Lock()
		b.attaching = false
		if !b.IsClosed() && b.pubsub == nil {
			b.startLocked(client)
			b.logger.Infof("events: subscriber attached (channels: %d)", len(b.handlers))
		}
		b.mu.Unlock()
		return
	}
}

// Attached 订阅连接是否已建立
func (b *Bus) Attached() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pubsub != nil
}

func (b *Bus) remove(reg *registration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[reg.channel]
	for i, r := range regs {
		if r.id == reg.id {
			regs = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(regs) > 0 {
		b.handlers[reg.channel] = regs
		return nil
	}
	delete(b.handlers, reg.channel)
	if b.pubsub != nil && !b.IsClosed() {
		if err := b.pubsub.Unsubscribe(b.Ctx(), reg.channel); err != nil {
			b.logger.WithField("channel", reg.channel).WithError(err).Warn("events: unsubscribe failed")
		}
	}
	return nil
}

// HandlerCount 频道上的处理器数量
func (b *Bus) HandlerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[b.fullName(name)])
}

// receiveLoop 单循环按发布顺序分发；同一频道的处理器按注册顺序同步执行
func (b *Bus) receiveLoop(ps *redis.PubSub) {
	ctx := b.Ctx()
	b.logger.Info("events: receive loop started")
	defer b.logger.Info("events: receive loop stopped")

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || b.IsClosed() {
				return
			}
			b.logger.WithError(err).Warn("events: receive failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		b.mu.RLock()
		regs := make([]*registration, len(b.handlers[msg.Channel]))
		copy(regs, b.handlers[msg.Channel])
		b.mu.RUnlock()

		for _, reg := range regs {
			reg.dispatch(ctx, msg.Payload)
		}
	}
}

func (b *Bus) onClose() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[string][]*registration)
	if b.pubsub == nil {
		return nil
	}
	if err := b.pubsub.Close(); err != nil {
		return fmt.Errorf("close pubsub: %w", err)
	}
	return nil
}
