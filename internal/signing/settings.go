package signing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"folio-core/internal/core/cache"
	corelog "folio-core/internal/core/log"
)

// Settings 签名开关、密钥与有效期
type Settings struct {
	Enabled bool   `json:"enabled"`
	Secret  string `json:"secret"`
	Expiry  string `json:"expiry"`
}

// String 不输出密钥
func (s Settings) String() string {
	masked := ""
	if s.Secret != "" {
		masked = "****"
	}
	return fmt.Sprintf("Settings{Enabled:%t Secret:%s Expiry:%s}", s.Enabled, masked, s.Expiry)
}

// SettingsSource 关系库里的签名设置；found=false 表示没有该行
type SettingsSource interface {
	SigningSettings(ctx context.Context) (settings Settings, found bool, err error)
}

// SettingsProvider 通过缓存读取签名设置，并按设置构建 Signer
//
// 数据库行里未填写的字段回落到配置值。密钥不进入共享缓存。
type SettingsProvider struct {
	store    *cache.Store
	source   SettingsSource
	fallback Settings
	ttl      time.Duration
	memoSize int
	logger   corelog.Logger
	now      func() time.Time

	mu       sync.Mutex
	signer   *Signer
	built    Settings
	loaded   Settings
	loadedAt time.Time
}

// ProviderOption 选项
type ProviderOption func(*SettingsProvider)

// WithSource 设置数据源，nil 表示只用配置
func WithSource(src SettingsSource) ProviderOption {
	return func(p *SettingsProvider) { p.source = src }
}

// WithSettingsTTL 缓存时长
func WithSettingsTTL(ttl time.Duration) ProviderOption {
	return func(p *SettingsProvider) { p.ttl = ttl }
}

// WithSignerMemo 构建出的 Signer 的 memo 大小
func WithSignerMemo(size int) ProviderOption {
	return func(p *SettingsProvider) { p.memoSize = size }
}

// WithProviderLogger 设置日志
func WithProviderLogger(l corelog.Logger) ProviderOption {
	return func(p *SettingsProvider) { p.logger = l }
}

// WithProviderClock 设置时钟
func WithProviderClock(now func() time.Time) ProviderOption {
	return func(p *SettingsProvider) { p.now = now }
}

// NewSettingsProvider 创建设置提供者；store 可以为 nil
func NewSettingsProvider(store *cache.Store, fallback Settings, opts ...ProviderOption) *SettingsProvider {
	p := &SettingsProvider{
		store:    store,
		fallback: fallback,
		ttl:      time.Minute,
		memoSize: 4096,
		logger:   corelog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *SettingsProvider) cacheKey() string {
	if p.store == nil {
		return cache.Keys{Prefix: "folio"}.Settings("signing")
	}
	return p.store.Keys().Settings("signing")
}

// publicSettings 写入共享缓存的部分，不含密钥
type publicSettings struct {
	Enabled bool   `json:"enabled"`
	Expiry  string `json:"expiry"`
}

// Settings 当前生效的设置；数据源出错时使用配置值
//
// 开关与有效期经共享缓存读取；密钥只保存在进程内存，按 ttl 或 Invalidate 刷新。
func (p *SettingsProvider) Settings(ctx context.Context) Settings {
	if p.source == nil {
		return p.fallback
	}
	pub, err := cache.GetOrSet(ctx, p.store, p.cacheKey(), p.ttl, func(ctx context.Context) (publicSettings, error) {
		s, err := p.load(ctx)
		if err != nil {
			return publicSettings{}, err
		}
		return publicSettings{Enabled: s.Enabled, Expiry: s.Expiry}, nil
	})
	if err != nil {
		p.logger.WithError(err).Warn("signing: settings source failed, using configured values")
		return p.fallback
	}
	secret, err := p.secret(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("signing: secret unavailable, using configured values")
		return p.fallback
	}
	return Settings{Enabled: pub.Enabled, Secret: secret, Expiry: pub.Expiry}
}

// load 读取数据源并记住密钥
func (p *SettingsProvider) load(ctx context.Context) (Settings, error) {
	row, found, err := p.source.SigningSettings(ctx)
	if err != nil {
		return Settings{}, err
	}
	s := p.fallback
	if found {
		s = p.merge(row)
	}
	p.mu.Lock()
	p.loaded, p.loadedAt = s, p.now()
	p.mu.Unlock()
	return s, nil
}

func (p *SettingsProvider) secret(ctx context.Context) (string, error) {
	p.mu.Lock()
	if !p.loadedAt.IsZero() && p.now().Sub(p.loadedAt) < p.ttl {
		secret := p.loaded.Secret
		p.mu.Unlock()
		return secret, nil
	}
	p.mu.Unlock()

	s, err := p.load(ctx)
	if err != nil {
		return "", err
	}
	return s.Secret, nil
}

// Signer 返回当前设置下的签名器；未启用时 enabled=false
func (p *SettingsProvider) Signer(ctx context.Context) (signer *Signer, enabled bool, err error) {
	s := p.Settings(ctx)
	if !s.Enabled {
		return nil, false, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signer != nil && p.built == s {
		return p.signer, true, nil
	}
	signer, err = NewSigner(s.Secret, s.Expiry, WithMemo(p.memoSize), WithClock(p.now))
	if err != nil {
		return nil, true, err
	}
	p.signer, p.built = signer, s
	return signer, true, nil
}

// Invalidate 设置变更后丢弃缓存与已构建的签名器
func (p *SettingsProvider) Invalidate(ctx context.Context) {
	if p.store != nil {
		p.store.Del(ctx, p.cacheKey())
	}
	p.mu.Lock()
	p.signer = nil
	p.built = Settings{}
	p.loaded, p.loadedAt = Settings{}, time.Time{}
	p.mu.Unlock()
	p.logger.Info("signing: settings invalidated")
}
