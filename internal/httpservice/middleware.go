package httpservice

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	corelog "folio-core/internal/core/log"
	"folio-core/internal/ratelimit"
	"folio-core/internal/signing"
)

// HeaderSignatureReason 仅在开启 ExposeReasons 时输出
const HeaderSignatureReason = "X-Signature-Reason"

// ResponseData 统一响应结构
type ResponseData struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// loggingMiddleware 日志中间件
func loggingMiddleware(logger corelog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debugf("HTTP: %s %s - %s", r.Method, r.RequestURI, time.Since(start))
		})
	}
}

// endpointName 路由模板优先，避免路径参数把限流键打散
func endpointName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil && tpl != "" {
			return tpl
		}
	}
	return r.URL.Path
}

// RateLimit 按预设限流；endpoint 为空时使用路由模板
//
// 存储不可用时限流器放行，这里不做额外处理。
func RateLimit(l *ratelimit.Limiter, preset ratelimit.Preset, endpoint string, logger corelog.Logger) mux.MiddlewareFunc {
	logger = corelog.OrDefault(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ep := endpoint
			if ep == "" {
				ep = endpointName(r)
			}
			id := ratelimit.ResolveIdentifier(r.Header, r.RemoteAddr)
			res, err := l.CheckPreset(r.Context(), id, ep, preset)
			if err != nil {
				// 未知预设属于配置错误，不拦截请求
				logger.WithError(err).Error("ratelimit: preset lookup failed")
				next.ServeHTTP(w, r)
				return
			}
			res.Apply(w.Header())
			if !res.Allowed {
				logger.WithFields(map[string]interface{}{
					"endpoint": ep,
					"preset":   preset,
				}).Info("ratelimit: request denied")
				respondError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SignedURLOptions 签名校验选项
type SignedURLOptions struct {
	ExposeReasons bool
	Logger        corelog.Logger
}

// SignedURL 校验 ex/is/hm；签名关闭时直接放行
//
// 缺参数返回 401，过期或签名不符返回 403，响应体不区分原因。
func SignedURL(provider *signing.SettingsProvider, opts SignedURLOptions) mux.MiddlewareFunc {
	logger := corelog.OrDefault(opts.Logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			signer, enabled, err := provider.Signer(r.Context())
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				logger.WithError(err).Error("signing: signer unavailable")
				respondError(w, http.StatusInternalServerError, "internal error")
				return
			}

			v := signer.Verify(r.URL.Path, signing.ParamsFromQuery(r.URL.Query()))
			if v.Valid {
				next.ServeHTTP(w, r)
				return
			}
			logger.WithFields(map[string]interface{}{
				"path":   r.URL.Path,
				"reason": v.Reason,
			}).Info("signing: request rejected")
			if opts.ExposeReasons {
				w.Header().Set(HeaderSignatureReason, string(v.Reason))
			}
			status := http.StatusForbidden
			if v.Reason == signing.ReasonMissingParams {
				status = http.StatusUnauthorized
			}
			respondError(w, status, "invalid or expired link")
		})
	}
}

// respondJSON 发送 JSON 响应
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ResponseData{
		Success: statusCode >= 200 && statusCode < 300,
		Data:    data,
	})
}

// respondError 发送错误响应
func respondError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ResponseData{Success: false, Error: message})
}
