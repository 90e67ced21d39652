// Package signing 按时间分桶的 HMAC 签名 URL
//
// 同一路径在同一时间桶内得到完全相同的签名 URL，下游 HTTP/CDN 缓存无需逐请求失效，
// 桶结束后自动过期。
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	coreerrors "folio-core/internal/core/errors"
)

// 查询参数名
const (
	ParamExpires   = "ex"
	ParamIssued    = "is"
	ParamSignature = "hm"
)

// Reason 校验失败原因
type Reason string

const (
	ReasonMissingParams    Reason = "missing_params"
	ReasonExpired          Reason = "expired"
	ReasonInvalidSignature Reason = "invalid_signature"
)

// Params URL 上的三个参数，ex/is 为十六进制秒
type Params struct {
	Ex string
	Is string
	Hm string
}

// ParamsFromQuery 从查询串提取参数
func ParamsFromQuery(q url.Values) Params {
	return Params{
		Ex: q.Get(ParamExpires),
		Is: q.Get(ParamIssued),
		Hm: q.Get(ParamSignature),
	}
}

// Apply 写入查询串，保留其他参数
func (p Params) Apply(q url.Values) {
	q.Set(ParamExpires, p.Ex)
	q.Set(ParamIssued, p.Is)
	q.Set(ParamSignature, p.Hm)
}

// Token 签名结果
type Token struct {
	Expires   int64 // unix 秒，桶右边界
	Issued    int64 // unix 秒，桶左边界
	Signature string
}

// Params 编码成 URL 参数
func (t Token) Params() Params {
	return Params{
		Ex: strconv.FormatInt(t.Expires, 16),
		Is: strconv.FormatInt(t.Issued, 16),
		Hm: t.Signature,
	}
}

// Verification 校验结果
type Verification struct {
	Valid  bool
	Reason Reason
}

type memoKey struct {
	path   string
	issued int64
}

// Signer 持有密钥与桶宽
type Signer struct {
	secret []byte
	width  int64 // 秒
	now    func() time.Time
	memo   *lru.Cache[memoKey, Token]
}

// Option 选项
type Option func(*Signer)

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// WithMemo 缓存最近 size 个 (path, 桶) 的签名，size <= 0 关闭
func WithMemo(size int) Option {
	return func(s *Signer) {
		if size <= 0 {
			s.memo = nil
			return
		}
		s.memo, _ = lru.New[memoKey, Token](size)
	}
}

// NewSigner 创建签名器；expirySpec 同时决定桶宽
func NewSigner(secret, expirySpec string, opts ...Option) (*Signer, error) {
	if secret == "" {
		return nil, coreerrors.New(coreerrors.CodeMissingParam, "signing secret is empty")
	}
	ttl, err := ParseTTL(expirySpec)
	if err != nil {
		return nil, err
	}
	width := int64(ttl / time.Second)
	if width < 1 {
		width = 1
	}

	s := &Signer{
		secret: []byte(secret),
		width:  width,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BucketWidth 桶宽
func (s *Signer) BucketWidth() time.Duration {
	return time.Duration(s.width) * time.Second
}

// Bucket 包含 t 的桶边界
func (s *Signer) Bucket(t time.Time) (issued, expires int64) {
	sec := t.Unix()
	issued = sec - mod(sec, s.width)
	return issued, issued + s.width
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// Sign 对路径签名
func (s *Signer) Sign(path string) Token {
	issued, expires := s.Bucket(s.now())
	key := memoKey{path: path, issued: issued}
	if s.memo != nil {
		if tok, ok := s.memo.Get(key); ok {
			return tok
		}
	}
	tok := Token{
		Expires:   expires,
		Issued:    issued,
		Signature: s.mac(path, expires, issued),
	}
	if s.memo != nil {
		s.memo.Add(key, tok)
	}
	return tok
}

// SignURL 给完整 URL 追加 ex/is/hm，签名覆盖 URL 的路径部分
func (s *Signer) SignURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", coreerrors.Wrap(err, coreerrors.CodeInvalidParam, "parse url")
	}
	q := u.Query()
	s.Sign(u.Path).Params().Apply(q)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Verify 依次检查 missing_params、expired、invalid_signature
func (s *Signer) Verify(path string, p Params) Verification {
	if p.Ex == "" || p.Is == "" || p.Hm == "" {
		return Verification{Reason: ReasonMissingParams}
	}
	expires, errEx := strconv.ParseInt(p.Ex, 16, 64)
	issued, errIs := strconv.ParseInt(p.Is, 16, 64)
	if errEx != nil || errIs != nil {
		return Verification{Reason: ReasonInvalidSignature}
	}
	if s.now().Unix() > expires {
		return Verification{Reason: ReasonExpired}
	}
	expected := s.mac(path, expires, issued)
	if !hmac.Equal([]byte(expected), []byte(p.Hm)) {
		return Verification{Reason: ReasonInvalidSignature}
	}
	return Verification{Valid: true}
}

// mac = hex(HMAC-SHA256(secret, "{path}:{expires}:{issued}"))
func (s *Signer) mac(path string, expires, issued int64) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(path))
	h.Write([]byte{':'})
	h.Write([]byte(strconv.FormatInt(expires, 10)))
	h.Write([]byte{':'})
	h.Write([]byte(strconv.FormatInt(issued, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// SignURL 一次性签名
func SignURL(secret, path, expirySpec string) (Params, error) {
	s, err := NewSigner(secret, expirySpec)
	if err != nil {
		return Params{}, err
	}
	return s.Sign(path).Params(), nil
}

// VerifySignature 一次性校验；校验不依赖桶宽
func VerifySignature(secret, path string, p Params) Verification {
	s := &Signer{secret: []byte(secret), width: 1, now: time.Now}
	return s.Verify(path, p)
}
