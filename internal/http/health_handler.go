package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// brokerStatus MQTT 连接状态
type brokerStatus interface {
	IsConnected() bool
}

// HealthHandler 诊断处理器
type HealthHandler struct {
	db           *sql.DB
	redisClient  *redis.Client
	broker       brokerStatus
	views        *Views
	logger       *zap.Logger
	pprofEnabled bool
}

// NewHealthHandler 依赖为 nil 表示未配置
func NewHealthHandler(db *sql.DB, redisClient *redis.Client, broker brokerStatus, views *Views, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:          db,
		redisClient: redisClient,
		broker:      broker,
		views:       views,
		logger:      logger,
	}
}

// EnablePprof 启用 pprof 性能分析
func (d *HealthHandler) EnablePprof(enabled bool) {
	d.pprofEnabled = enabled
}

// HealthCheckResponse 健康检查响应
type HealthCheckResponse struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Services     map[string]string `json:"services"`
	MountedViews int               `json:"mounted_views"`
}

// HealthCheck 健康检查端点
func (d *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status := "healthy"
	services := make(map[string]string)

	// 检查 Redis
	if d.redisClient != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := d.redisClient.Ping(ctx).Err(); err != nil {
			status = "unhealthy"
			services["redis"] = "unhealthy: " + err.Error()
		} else {
			services["redis"] = "healthy"
		}
	} else {
		services["redis"] = "not configured"
	}

	// 检查数据库
	if d.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := d.db.PingContext(ctx); err != nil {
			status = "unhealthy"
			services["database"] = "unhealthy: " + err.Error()
		} else {
			services["database"] = "healthy"
		}
	} else {
		services["database"] = "not configured"
	}

	// MQTT 断开只影响真实设备，不影响整体健康
	if d.broker != nil {
		if d.broker.IsConnected() {
			services["mqtt"] = "healthy"
		} else {
			services["mqtt"] = "disconnected"
		}
	} else {
		services["mqtt"] = "not configured"
	}

	response := HealthCheckResponse{
		Status:    status,
		Timestamp: time.Now(),
		Services:  services,
	}
	if d.views != nil {
		response.MountedViews = d.views.Mounted()
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// Ready 就绪检查（Kubernetes readiness probe）
func (d *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ready := true
	checks := make(map[string]bool)

	// Redis 只在作为会话存储时配置
	if d.redisClient != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
		checks["redis"] = d.redisClient.Ping(ctx).Err() == nil
		if !checks["redis"] {
			ready = false
		}
	}

	// 如果启用了审计数据库，检查数据库
	if d.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
		checks["database"] = d.db.PingContext(ctx) == nil
		if !checks["database"] {
			ready = false
		}
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ready":  ready,
		"checks": checks,
	})
}

// RegisterHealthRoutes 注册诊断路由
func (r *Router) RegisterHealthRoutes(health *HealthHandler) {
	// 健康检查
	r.Handle("/health", health.HealthCheck)
	r.Handle("/healthz", health.HealthCheck)

	// 就绪检查
	r.Handle("/ready", health.Ready)
	r.Handle("/readyz", health.Ready)

	// pprof 性能分析（如果启用）
	if health.pprofEnabled {
		r.Handle("/debug/pprof/", pprof.Index)
		r.Handle("/debug/pprof/cmdline", pprof.Cmdline)
		r.Handle("/debug/pprof/profile", pprof.Profile)
		r.Handle("/debug/pprof/symbol", pprof.Symbol)
		r.Handle("/debug/pprof/trace", pprof.Trace)
		r.HandleHandler("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.HandleHandler("/debug/pprof/heap", pprof.Handler("heap"))
	}
}
