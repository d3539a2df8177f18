package paper

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cast"

	"github.com/utrading/utrading-trade-engine/internal/adapter"
	"github.com/utrading/utrading-trade-engine/internal/event"
	"github.com/utrading/utrading-trade-engine/internal/model"
	"github.com/utrading/utrading-trade-engine/pkg/logger"
)

const accountID = "paper"

// Adapter 纸面交易适配器：内存撮合，不触网
// 用于空跑验证和测试，走和真实适配器完全相同的事件面
type Adapter struct {
	*adapter.BaseAdapter

	connected atomic.Bool

	mu         sync.Mutex
	balance    float64
	frozen     float64
	prices     map[string]float64           // vt_symbol → 最新价
	subscribed map[string]model.SubscribeRequest
	positions  map[string]*model.PositionRecord // vt_symbol → 净持仓
	tradeSeq   int64
}

var _ adapter.Adapter = (*Adapter)(nil)

// New 适配器构造函数，给 Registry 用
func New(bus *event.Bus, name string) adapter.Adapter {
	return &Adapter{
		BaseAdapter: adapter.NewBaseAdapter(bus, name),
		prices:      make(map[string]float64),
		subscribed:  make(map[string]model.SubscribeRequest),
		positions:   make(map[string]*model.PositionRecord),
	}
}

func (a *Adapter) Exchanges() []model.Exchange {
	return []model.Exchange{model.ExchangePaper}
}

func (a *Adapter) DefaultSettings() map[string]any {
	return map[string]any{
		"balance": 1_000_000.0,
	}
}

// Connect 初始化虚拟账户
func (a *Adapter) Connect(settings map[string]any) error {
	balance := cast.ToFloat64(settings["balance"])
	if balance <= 0 {
		balance = 1_000_000.0
	}

	a.mu.Lock()
	a.balance = balance
	a.frozen = 0
	a.mu.Unlock()

	a.connected.Store(true)

	a.OnAccount(model.NewAccountRecord(a.Name(), accountID, balance, 0))
	a.WriteLog("paper adapter connected")
	return nil
}

func (a *Adapter) Close() {
	a.connected.Store(false)
}

// Subscribe 登记订阅；行情由 PushPrice 驱动
func (a *Adapter) Subscribe(req model.SubscribeRequest) error {
	if !a.connected.Load() {
		return fmt.Errorf("paper adapter not connected")
	}

	a.mu.Lock()
	a.subscribed[req.VTSymbol()] = req
	a.mu.Unlock()
	return nil
}

// PushPrice 推入一个参考价：发布行情并尝试撮合活动订单
// 测试和回放器从任意协程调用
func (a *Adapter) PushPrice(symbol string, price float64) {
	vtSymbol := model.MakeVTSymbol(symbol, model.ExchangePaper)

	a.mu.Lock()
	a.prices[vtSymbol] = price
	_, wanted := a.subscribed[vtSymbol]
	a.mu.Unlock()

	// 只对订阅过的标的发布行情，撮合不受订阅限制
	if wanted {
		a.OnTick(model.TickRecord{
			Symbol:    symbol,
			Exchange:  model.ExchangePaper,
			LastPrice: price,
			Datetime:  time.Now(),
		})
	}

	a.matchActiveOrders(symbol, price)
}

// SendOrder 本地分配单号后立即挂单；限价单在价格穿越时成交
// 未连接时返回空串且不产生任何订单记录
func (a *Adapter) SendOrder(req model.OrderRequest) string {
	if !a.connected.Load() {
		logger.Warn().Str("adapter", a.Name()).Msg("send order on disconnected adapter")
		return ""
	}

	orderID := a.Tracker().NextOrderID()
	order := req.CreateOrderRecord(a.Name(), orderID)
	a.OnOrder(order)

	// 挂单回执
	order.Status = model.StatusNotTraded
	a.OnOrder(order)

	// 市价单用最新价立即成交
	if req.Type == model.OrderTypeMarket {
		a.mu.Lock()
		price, ok := a.prices[req.VTSymbol()]
		a.mu.Unlock()
		if ok {
			a.fill(order, price)
		}
	} else {
		a.mu.Lock()
		price, ok := a.prices[req.VTSymbol()]
		a.mu.Unlock()
		if ok && crossed(&order, price) {
			a.fill(order, order.Price)
		}
	}

	return order.VTOrderID()
}

// CancelOrder 撤销活动订单
func (a *Adapter) CancelOrder(req model.CancelRequest) error {
	if !a.connected.Load() {
		return fmt.Errorf("paper adapter not connected")
	}

	order, ok := a.Tracker().Get(req.OrderID)
	if !ok || !order.IsActive() {
		return nil
	}

	order.Status = model.StatusCancelled
	a.OnOrder(order)
	return nil
}

// QueryAccount 发布账户快照
func (a *Adapter) QueryAccount() {
	a.mu.Lock()
	balance := a.balance
	frozen := a.frozen
	a.mu.Unlock()

	a.OnAccount(model.NewAccountRecord(a.Name(), accountID, balance, frozen))
}

// QueryPosition 发布持仓快照
func (a *Adapter) QueryPosition() {
	a.mu.Lock()
	positions := make([]model.PositionRecord, 0, len(a.positions))
	for _, p := range a.positions {
		positions = append(positions, *p)
	}
	a.mu.Unlock()

	for _, p := range positions {
		a.OnPosition(p)
	}
}

// QueryHistory 纸面交易没有历史数据
func (a *Adapter) QueryHistory(req model.HistoryRequest) []model.BarRecord {
	return nil
}

// matchActiveOrders 新价格到来时撮合价格穿越的限价单
func (a *Adapter) matchActiveOrders(symbol string, price float64) {
	for _, order := range a.Tracker().ActiveOrders() {
		if order.Symbol != symbol || order.Type != model.OrderTypeLimit {
			continue
		}
		if crossed(&order, price) {
			a.fill(order, order.Price)
		}
	}
}

// crossed 判断限价单与最新价是否穿越
func crossed(order *model.OrderRecord, price float64) bool {
	if order.Direction == model.DirectionLong {
		return price <= order.Price
	}
	return price >= order.Price
}

// fill 全量成交：订单、成交、持仓、账户四类事件依次发布
func (a *Adapter) fill(order model.OrderRecord, price float64) {
	order.Traded = order.Volume
	order.Status = model.StatusAllTraded
	a.OnOrder(order)

	a.mu.Lock()
	a.tradeSeq++
	tradeID := fmt.Sprintf("%d", a.tradeSeq)

	vtSymbol := order.VTSymbol()
	pos, ok := a.positions[vtSymbol]
	if !ok {
		pos = &model.PositionRecord{
			Symbol:    order.Symbol,
			Exchange:  order.Exchange,
			Direction: model.DirectionNet,
		}
		a.positions[vtSymbol] = pos
	}

	signed := order.Volume
	cost := price * order.Volume
	if order.Direction == model.DirectionShort {
		signed = -order.Volume
		a.balance += cost
	} else {
		a.balance -= cost
	}
	pos.Volume += signed
	pos.Price = price

	posSnapshot := *pos
	balance := a.balance
	frozen := a.frozen
	a.mu.Unlock()

	a.OnTrade(model.TradeRecord{
		Symbol:    order.Symbol,
		Exchange:  order.Exchange,
		OrderID:   order.OrderID,
		TradeID:   tradeID,
		Direction: order.Direction,
		Offset:    order.Offset,
		Price:     price,
		Volume:    order.Volume,
		Datetime:  time.Now(),
	})
	a.OnPosition(posSnapshot)
	a.OnAccount(model.NewAccountRecord(a.Name(), accountID, balance, frozen))
}
