package adapter

import (
	"time"

	"github.com/utrading/utrading-trade-engine/internal/event"
	"github.com/utrading/utrading-trade-engine/internal/model"
	"github.com/utrading/utrading-trade-engine/pkg/logger"
)

// Adapter 交易所适配器契约
// 所有方法必须可从任意协程调用，且不得无界阻塞；
// 状态变更只通过事件上报，返回值不携带状态（SendOrder 只同步返回本地订单号）
type Adapter interface {
	Name() string
	Exchanges() []model.Exchange
	DefaultSettings() map[string]any

	// Connect 建立连接；配置类错误直接返回 error，不留半开句柄
	Connect(settings map[string]any) error
	Close()

	Subscribe(req model.SubscribeRequest) error

	// SendOrder 同步返回 vt_orderid；失败返回空串
	SendOrder(req model.OrderRequest) string
	CancelOrder(req model.CancelRequest) error

	QueryAccount()
	QueryPosition()
	QueryHistory(req model.HistoryRequest) []model.BarRecord
}

// QuoteAdapter 支持双边报价的适配器扩展能力
type QuoteAdapter interface {
	Adapter

	SendQuote(req model.QuoteRequest) string
	CancelQuote(req model.CancelQuoteRequest) error
}

// Constructor 适配器构造函数，注册表用名字选型
type Constructor func(bus *event.Bus, name string) Adapter

// BaseAdapter 适配器公共部分：事件上报和订单生命周期追踪
// 具体适配器内嵌它，只关心各自的网络协议
type BaseAdapter struct {
	name    string
	bus     *event.Bus
	tracker *OrderTracker
}

// NewBaseAdapter 创建适配器基础部分
func NewBaseAdapter(bus *event.Bus, name string) *BaseAdapter {
	return &BaseAdapter{
		name:    name,
		bus:     bus,
		tracker: NewOrderTracker(name),
	}
}

func (b *BaseAdapter) Name() string {
	return b.name
}

// Tracker 返回订单生命周期追踪器
func (b *BaseAdapter) Tracker() *OrderTracker {
	return b.tracker
}

// OnTick 上报行情快照（基础类型 + 定点类型）
func (b *BaseAdapter) OnTick(tick model.TickRecord) {
	tick.AdapterName = b.name
	b.bus.Put(event.NewEvent(event.TypeTick, tick))
	b.bus.Put(event.NewEvent(event.TypeTick+tick.VTSymbol(), tick))
}

// OnTrade 上报成交
func (b *BaseAdapter) OnTrade(trade model.TradeRecord) {
	trade.AdapterName = b.name
	b.bus.Put(event.NewEvent(event.TypeTrade, trade))
	b.bus.Put(event.NewEvent(event.TypeTrade+trade.VTSymbol(), trade))
}

// OnOrder 上报订单快照
// 先过状态机追踪器，非法转移被丢弃并记录，不会上到总线
func (b *BaseAdapter) OnOrder(order model.OrderRecord) {
	order.AdapterName = b.name

	applied, ok := b.tracker.Apply(order)
	if !ok {
		return
	}

	b.bus.Put(event.NewEvent(event.TypeOrder, applied))
	b.bus.Put(event.NewEvent(event.TypeOrder+applied.VTOrderID(), applied))
}

// OnPosition 上报持仓
func (b *BaseAdapter) OnPosition(position model.PositionRecord) {
	position.AdapterName = b.name
	b.bus.Put(event.NewEvent(event.TypePosition, position))
	b.bus.Put(event.NewEvent(event.TypePosition+position.VTSymbol(), position))
}

// OnAccount 上报账户资金
func (b *BaseAdapter) OnAccount(account model.AccountRecord) {
	account.AdapterName = b.name
	b.bus.Put(event.NewEvent(event.TypeAccount, account))
	b.bus.Put(event.NewEvent(event.TypeAccount+account.VTAccountID(), account))
}

// OnContract 上报合约参考数据
func (b *BaseAdapter) OnContract(contract model.ContractRecord) {
	contract.AdapterName = b.name
	b.bus.Put(event.NewEvent(event.TypeContract, contract))
	b.bus.Put(event.NewEvent(event.TypeContract+contract.VTSymbol(), contract))
}

// OnQuote 上报双边报价
func (b *BaseAdapter) OnQuote(quote model.QuoteRecord) {
	quote.AdapterName = b.name
	b.bus.Put(event.NewEvent(event.TypeQuote, quote))
	b.bus.Put(event.NewEvent(event.TypeQuote+quote.VTQuoteID(), quote))
}

// WriteLog 上报日志事件（厂商失败统一翻译为 log+event，不跨边界抛错）
func (b *BaseAdapter) WriteLog(msg string) {
	logger.Info().Str("adapter", b.name).Msg(msg)
	b.bus.Put(event.NewEvent(event.TypeLog, model.LogRecord{
		AdapterName: b.name,
		Level:       "info",
		Msg:         msg,
		Time:        time.Now(),
	}))
}
