package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/utrading/utrading-trade-engine/pkg/goplus"
	"github.com/utrading/utrading-trade-engine/pkg/logger"
)

// HealthServer HTTP 健康检查和指标服务器
type HealthServer struct {
	addr      string
	bus       BusRef
	registry  RegistryRef
	publisher PublisherRef
	server    *http.Server
	mu        sync.RWMutex
	healthy   bool
	startTime time.Time
}

// BusRef 事件总线引用接口
type BusRef interface {
	QueueSize() int
}

// RegistryRef 适配器注册表引用接口
type RegistryRef interface {
	AdapterNames() []string
	ConnectedCount() int
}

// PublisherRef NATS 发布器引用接口
type PublisherRef interface {
	IsConnected() bool
}

// NewHealthServer 创建健康检查服务器
func NewHealthServer(addr string, bus BusRef, registry RegistryRef, publisher PublisherRef) *HealthServer {
	return &HealthServer{
		addr:      addr,
		bus:       bus,
		registry:  registry,
		publisher: publisher,
		healthy:   true,
		startTime: time.Now(),
	}
}

// Start 启动 HTTP 服务器
func (h *HealthServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.healthHandler)
	mux.HandleFunc("/health/ready", h.readyHandler)
	mux.HandleFunc("/health/live", h.liveHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", h.statusHandler)

	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	goplus.Go(func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("health server error")
		}
	})

	logger.Info().Str("addr", h.addr).Msg("health server started")

	return nil
}

// Stop 停止服务器
func (h *HealthServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.healthy = false
	h.mu.Unlock()

	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := h.getHealthStatus()
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

func (h *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	healthy := h.healthy
	h.mu.RUnlock()

	if !healthy {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *HealthServer) liveHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *HealthServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := h.getHealthStatus()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// getHealthStatus 汇总健康状态
func (h *HealthServer) getHealthStatus() HealthStatus {
	h.mu.RLock()
	healthy := h.healthy
	h.mu.RUnlock()

	queueSize := 0
	if h.bus != nil {
		queueSize = h.bus.QueueSize()
	}

	var adapters []string
	connected := 0
	if h.registry != nil {
		adapters = h.registry.AdapterNames()
		connected = h.registry.ConnectedCount()
	}

	natsConnected := false
	if h.publisher != nil {
		natsConnected = h.publisher.IsConnected()
	}

	return HealthStatus{
		Healthy: healthy,
		Uptime:  time.Since(h.startTime).String(),
		Bus: BusStatus{
			QueueSize: queueSize,
		},
		Adapters: AdapterStatus{
			Names:     adapters,
			Connected: connected,
		},
		NATS: NATSStatus{
			Connected: natsConnected,
		},
	}
}

// HealthStatus 健康状态结构
type HealthStatus struct {
	Healthy  bool          `json:"healthy"`
	Uptime   string        `json:"uptime"`
	Bus      BusStatus     `json:"bus"`
	Adapters AdapterStatus `json:"adapters"`
	NATS     NATSStatus    `json:"nats"`
}

// BusStatus 事件总线状态
type BusStatus struct {
	QueueSize int `json:"queue_size"`
}

// AdapterStatus 适配器状态
type AdapterStatus struct {
	Names     []string `json:"names"`
	Connected int      `json:"connected"`
}

// NATSStatus NATS 连接状态
type NATSStatus struct {
	Connected bool `json:"connected"`
}
