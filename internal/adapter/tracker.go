package adapter

import (
	"strconv"
	"sync"

	"github.com/utrading/utrading-trade-engine/internal/model"
	"github.com/utrading/utrading-trade-engine/internal/monitor"
	"github.com/utrading/utrading-trade-engine/pkg/logger"
)

// OrderTracker 单适配器订单生命周期追踪
// 一把粗粒度锁保护本地单号计数器和订单表；临界区都很短，争用可接受
type OrderTracker struct {
	adapterName string

	mu      sync.Mutex
	counter int64
	orders  map[string]model.OrderRecord // 本地 orderid → 最新快照
}

// NewOrderTracker 创建追踪器
func NewOrderTracker(adapterName string) *OrderTracker {
	return &OrderTracker{
		adapterName: adapterName,
		orders:      make(map[string]model.OrderRecord),
	}
}

// NextOrderID 在锁内单调分配本地单号
// 必须在任何网络调用之前调用，保证交易所回执前单号已全局唯一
func (t *OrderTracker) NextOrderID() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counter++
	return strconv.FormatInt(t.counter, 10)
}

// Apply 应用一条订单快照，强制状态机单调性
// 返回修正后的快照和是否接受；非法转移与终止态之后的更新一律丢弃并记录
func (t *OrderTracker) Apply(order model.OrderRecord) (model.OrderRecord, bool) {
	if order.Traded > order.Volume {
		logger.Warn().
			Str("adapter", t.adapterName).
			Str("orderid", order.OrderID).
			Float64("traded", order.Traded).
			Float64("volume", order.Volume).
			Msg("order traded exceeds volume, dropping update")
		return order, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, exists := t.orders[order.OrderID]
	if exists {
		if !prev.Status.CanTransitionTo(order.Status) {
			logger.Warn().
				Str("adapter", t.adapterName).
				Str("orderid", order.OrderID).
				Str("from", string(prev.Status)).
				Str("to", string(order.Status)).
				Msg("illegal order status transition, dropping update")
			return order, false
		}

		// 成交量不回退
		if order.Traded < prev.Traded {
			order.Traded = prev.Traded
		}

		// 交易所单号只补充，本地单号始终是稳定句柄
		if order.VenueOrderID == "" {
			order.VenueOrderID = prev.VenueOrderID
		}
	}

	t.orders[order.OrderID] = order
	monitor.IncOrderStatus(t.adapterName, string(order.Status))

	return order, true
}

// SetVenueOrderID 记录交易所回执单号
func (t *OrderTracker) SetVenueOrderID(orderID, venueOrderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if order, ok := t.orders[orderID]; ok {
		order.VenueOrderID = venueOrderID
		t.orders[orderID] = order
	}
}

// Get 返回订单快照副本
func (t *OrderTracker) Get(orderID string) (model.OrderRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	order, ok := t.orders[orderID]
	return order, ok
}

// FindByVenueID 按交易所单号反查本地订单
func (t *OrderTracker) FindByVenueID(venueOrderID string) (model.OrderRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, order := range t.orders {
		if order.VenueOrderID == venueOrderID {
			return order, true
		}
	}
	return model.OrderRecord{}, false
}

// ActiveOrders 返回非终止订单快照
func (t *OrderTracker) ActiveOrders() []model.OrderRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	active := make([]model.OrderRecord, 0, len(t.orders))
	for _, order := range t.orders {
		if order.IsActive() {
			active = append(active, order)
		}
	}
	return active
}

// Count 当前追踪的订单数量
func (t *OrderTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.orders)
}
