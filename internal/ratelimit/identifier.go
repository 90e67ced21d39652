package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// UnknownIdentifier 无法识别客户端时的标识
const UnknownIdentifier = "unknown"

// identifierHeaders 按可信度排列：边缘 CDN 注入的头比客户端可控的 X-Forwarded-For 更难伪造
var identifierHeaders = []string{
	"CF-Connecting-IP",
	"True-Client-IP",
	"Fastly-Client-IP",
	"X-Vercel-Forwarded-For",
	"X-Forwarded-For",
	"X-Real-IP",
}

// ResolveIdentifier 取第一个非空头的第一个逗号分隔值；都没有时退回
// remoteAddr 的主机部分，remoteAddr 为空则返回 "unknown"
//
// 注意：与只看请求头的做法不同，没有转发头时按连接地址区分客户端，不会把
// 所有直连客户端归入同一个 "unknown" 窗口。需要只看请求头时传入空 remoteAddr。
func ResolveIdentifier(h http.Header, remoteAddr string) string {
	for _, name := range identifierHeaders {
		v := h.Get(name)
		if v == "" {
			continue
		}
		first, _, _ := strings.Cut(v, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if remoteAddr != "" {
		if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
			return host
		}
		return remoteAddr
	}
	return UnknownIdentifier
}

// 响应头
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Headers 生成限流响应头
func (r Result) Headers() http.Header {
	h := make(http.Header)
	r.Apply(h)
	return h
}

// Apply 写入限流响应头；拒绝时附带 Retry-After
func (r Result) Apply(h http.Header) {
	h.Set(HeaderLimit, strconv.Itoa(r.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(r.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(r.ResetAt.Unix(), 10))
	if !r.Allowed {
		h.Set(HeaderRetryAfter, strconv.Itoa(r.RetryAfter))
	}
}
