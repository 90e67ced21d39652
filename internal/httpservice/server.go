// Package httpservice HTTP 边界：限流与签名中间件、健康检查路由
package httpservice

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"folio-core/internal/core/dispose"
	corelog "folio-core/internal/core/log"
	"folio-core/internal/core/metrics"
	"folio-core/internal/health"
)

// Config HTTP 服务配置
type Config struct {
	Listen          string
	ShutdownTimeout time.Duration
}

// HTTPService 健康检查监听
type HTTPService struct {
	*dispose.ServiceBase

	config   Config
	router   *mux.Router
	server   *http.Server
	health   *health.HealthManager
	logger   corelog.Logger
	listener net.Listener
}

// NewHTTPService 创建服务；healthManager 可以为 nil
func NewHTTPService(ctx context.Context, config Config, healthManager *health.HealthManager, logger corelog.Logger) *HTTPService {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	s := &HTTPService{
		ServiceBase: dispose.NewService("HTTPService", ctx),
		config:      config,
		health:      healthManager,
		logger:      corelog.OrDefault(logger),
	}
	s.router = NewRouter(healthManager, s.logger)
	s.server = &http.Server{
		Addr:              config.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.AddCleanHandler(func() error {
		s.logger.Info("HTTPService: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	})
	return s
}

// NewRouter 创建带 /healthz 与 /readyz 的路由
func NewRouter(healthManager *health.HealthManager, logger corelog.Logger) *mux.Router {
	logger = corelog.OrDefault(logger)
	router := mux.NewRouter()
	router.Use(loggingMiddleware(logger))

	h := &healthRoutes{manager: healthManager}
	router.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/readyz", h.handleReadyz).Methods(http.MethodGet, http.MethodHead)
	return router
}

// Router 供挂载业务路由与中间件
func (s *HTTPService) Router() *mux.Router {
	return s.router
}

// Start 绑定端口后在后台服务，绑定失败同步返回
func (s *HTTPService) Start() error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Infof("HTTPService: listening on %s", ln.Addr())
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("HTTPService: serve error: %v", err)
		}
	}()
	return nil
}

// Addr 实际监听地址，Start 之前为空
func (s *HTTPService) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

type healthRoutes struct {
	manager *health.HealthManager
}

// handleHealthz 存活检查：进程能响应即可
func (h *healthRoutes) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := health.HealthStatusHealthy
	if h.manager != nil {
		status = h.manager.GetStatus()
	}
	code := http.StatusOK
	if status == health.HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]string{"status": string(status)})
}

// MetricsHandler 以 JSON 输出指标快照
func MetricsHandler(m metrics.Metrics) http.HandlerFunc {
	m = metrics.OrNop(m)
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, m.Snapshot())
	}
}

// handleReadyz 就绪检查：组件降级仍就绪
func (h *healthRoutes) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		respondJSON(w, http.StatusOK, map[string]bool{"ready": true})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	info := h.manager.GetHealthInfo(ctx)

	code := http.StatusOK
	if !info.Ready {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(info)
}
