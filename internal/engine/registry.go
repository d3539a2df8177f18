package engine

import (
	"sync"

	"github.com/utrading/utrading-trade-engine/internal/adapter"
	"github.com/utrading/utrading-trade-engine/internal/event"
	"github.com/utrading/utrading-trade-engine/internal/model"
	"github.com/utrading/utrading-trade-engine/pkg/goplus"
	"github.com/utrading/utrading-trade-engine/pkg/logger"
)

// Registry 适配器注册表，名字 → 实例的唯一权威映射
// 命令面统一走这里路由到对应适配器
type Registry struct {
	bus *event.Bus

	mu        sync.RWMutex
	adapters  map[string]adapter.Adapter
	exchanges map[model.Exchange]struct{}
	connected map[string]bool
}

// NewRegistry 创建注册表
func NewRegistry(bus *event.Bus) *Registry {
	return &Registry{
		bus:       bus,
		adapters:  make(map[string]adapter.Adapter),
		exchanges: make(map[model.Exchange]struct{}),
		connected: make(map[string]bool),
	}
}

// AddAdapter 用构造函数实例化并注册适配器
// 重名时记录日志并返回已有实例（原实例保持可达且不受影响）
func (r *Registry) AddAdapter(ctor adapter.Constructor, name string) adapter.Adapter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.adapters[name]; ok {
		logger.Warn().Str("adapter", name).Msg("duplicate adapter name, keeping existing instance")
		return existing
	}

	a := ctor(r.bus, name)
	r.adapters[name] = a

	for _, ex := range a.Exchanges() {
		r.exchanges[ex] = struct{}{}
	}

	logger.Info().Str("adapter", name).Msg("adapter registered")
	return a
}

// GetAdapter 返回适配器实例，未知名字返回 nil 并记录
func (r *Registry) GetAdapter(name string) adapter.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	if !ok {
		logger.Warn().Str("adapter", name).Msg("adapter not found")
		return nil
	}
	return a
}

// AdapterNames 返回已注册的适配器名字
func (r *Registry) AdapterNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// SupportedExchanges 返回所有适配器覆盖的交易所集合
func (r *Registry) SupportedExchanges() []model.Exchange {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exchanges := make([]model.Exchange, 0, len(r.exchanges))
	for ex := range r.exchanges {
		exchanges = append(exchanges, ex)
	}
	return exchanges
}

// ConnectedCount 已成功连接的适配器数量
func (r *Registry) ConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, ok := range r.connected {
		if ok {
			count++
		}
	}
	return count
}

// Connect 路由连接命令
func (r *Registry) Connect(settings map[string]any, name string) error {
	a := r.GetAdapter(name)
	if a == nil {
		return nil
	}

	err := a.Connect(settings)

	r.mu.Lock()
	r.connected[name] = err == nil
	r.mu.Unlock()

	return err
}

// Subscribe 路由行情订阅
func (r *Registry) Subscribe(req model.SubscribeRequest, name string) error {
	a := r.GetAdapter(name)
	if a == nil {
		return nil
	}
	return a.Subscribe(req)
}

// SendOrder 路由委托，未知适配器返回空串
func (r *Registry) SendOrder(req model.OrderRequest, name string) string {
	a := r.GetAdapter(name)
	if a == nil {
		return ""
	}
	return a.SendOrder(req)
}

// CancelOrder 路由撤单
func (r *Registry) CancelOrder(req model.CancelRequest, name string) error {
	a := r.GetAdapter(name)
	if a == nil {
		return nil
	}
	return a.CancelOrder(req)
}

// SendQuote 路由报价，适配器不支持或未知时返回空串
func (r *Registry) SendQuote(req model.QuoteRequest, name string) string {
	a := r.GetAdapter(name)
	if a == nil {
		return ""
	}

	qa, ok := a.(adapter.QuoteAdapter)
	if !ok {
		logger.Warn().Str("adapter", name).Msg("adapter does not support quoting")
		return ""
	}
	return qa.SendQuote(req)
}

// CancelQuote 路由撤销报价
func (r *Registry) CancelQuote(req model.CancelQuoteRequest, name string) error {
	a := r.GetAdapter(name)
	if a == nil {
		return nil
	}

	qa, ok := a.(adapter.QuoteAdapter)
	if !ok {
		logger.Warn().Str("adapter", name).Msg("adapter does not support quoting")
		return nil
	}
	return qa.CancelQuote(req)
}

// QueryHistory 路由历史数据查询，未知适配器返回 nil
func (r *Registry) QueryHistory(req model.HistoryRequest, name string) []model.BarRecord {
	a := r.GetAdapter(name)
	if a == nil {
		return nil
	}
	return a.QueryHistory(req)
}

// Close 关闭所有适配器，单个失败不阻塞其余
func (r *Registry) Close() {
	r.mu.RLock()
	adapters := make(map[string]adapter.Adapter, len(r.adapters))
	for name, a := range r.adapters {
		adapters[name] = a
	}
	r.mu.RUnlock()

	for name, a := range adapters {
		func() {
			defer goplus.Recover()
			a.Close()
			logger.Info().Str("adapter", name).Msg("adapter closed")
		}()
	}
}
