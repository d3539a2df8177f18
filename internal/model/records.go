package model

import "time"

// 规范化标识符分隔符
const vtSeparator = "."

// MakeVTSymbol 生成规范化合约标识 symbol.EXCHANGE
func MakeVTSymbol(symbol string, exchange Exchange) string {
	return symbol + vtSeparator + string(exchange)
}

// TickRecord 最新行情快照
type TickRecord struct {
	AdapterName string
	Symbol      string
	Exchange    Exchange
	Datetime    time.Time

	Name      string
	Volume    float64
	Turnover  float64
	LastPrice float64
	LastVolume float64
	LimitUp   float64
	LimitDown float64

	OpenPrice  float64
	HighPrice  float64
	LowPrice   float64
	PreClose   float64

	BidPrice1  float64
	BidPrice2  float64
	BidPrice3  float64
	AskPrice1  float64
	AskPrice2  float64
	AskPrice3  float64
	BidVolume1 float64
	BidVolume2 float64
	BidVolume3 float64
	AskVolume1 float64
	AskVolume2 float64
	AskVolume3 float64

	// 厂商私有扩展字段（键 → 值），不做动态属性注入
	Extra map[string]any
}

// VTSymbol 返回规范化合约标识
func (t *TickRecord) VTSymbol() string {
	return MakeVTSymbol(t.Symbol, t.Exchange)
}

// OrderRecord 订单快照
type OrderRecord struct {
	AdapterName string
	Symbol      string
	Exchange    Exchange
	OrderID     string

	Type      OrderType
	Direction Direction
	Offset    Offset
	Price     float64
	Volume    float64
	Traded    float64
	Status    Status
	Datetime  time.Time
	Reference string

	// 交易所回执的订单号，仅作补充，本地 OrderID 始终是对外句柄
	VenueOrderID string

	Extra map[string]any
}

func (o *OrderRecord) VTSymbol() string {
	return MakeVTSymbol(o.Symbol, o.Exchange)
}

// VTOrderID 返回规范化订单标识 adapter.orderid
func (o *OrderRecord) VTOrderID() string {
	return o.AdapterName + vtSeparator + o.OrderID
}

// IsActive 是否为活动订单
func (o *OrderRecord) IsActive() bool {
	return o.Status.IsActive()
}

// CreateCancelRequest 由订单生成撤单请求
func (o *OrderRecord) CreateCancelRequest() CancelRequest {
	return CancelRequest{
		Symbol:   o.Symbol,
		Exchange: o.Exchange,
		OrderID:  o.OrderID,
	}
}

// TradeRecord 成交快照
type TradeRecord struct {
	AdapterName string
	Symbol      string
	Exchange    Exchange
	OrderID     string
	TradeID     string

	Direction Direction
	Offset    Offset
	Price     float64
	Volume    float64
	Datetime  time.Time

	Extra map[string]any
}

func (t *TradeRecord) VTSymbol() string {
	return MakeVTSymbol(t.Symbol, t.Exchange)
}

func (t *TradeRecord) VTOrderID() string {
	return t.AdapterName + vtSeparator + t.OrderID
}

// VTTradeID 返回规范化成交标识 adapter.tradeid
func (t *TradeRecord) VTTradeID() string {
	return t.AdapterName + vtSeparator + t.TradeID
}

// PositionRecord 持仓快照
type PositionRecord struct {
	AdapterName string
	Symbol      string
	Exchange    Exchange
	Direction   Direction

	Volume    float64
	Frozen    float64
	Price     float64
	PnL       float64
	YdVolume  float64

	Extra map[string]any
}

func (p *PositionRecord) VTSymbol() string {
	return MakeVTSymbol(p.Symbol, p.Exchange)
}

// VTPositionID 返回规范化持仓标识 adapter.symbol.EXCHANGE.direction
func (p *PositionRecord) VTPositionID() string {
	return p.AdapterName + vtSeparator + p.VTSymbol() + vtSeparator + string(p.Direction)
}

// AccountRecord 账户资金快照
// Available 由构造函数重算，不信任上游
type AccountRecord struct {
	AdapterName string
	AccountID   string

	Balance   float64
	Frozen    float64
	Available float64

	Extra map[string]any
}

// NewAccountRecord 创建账户快照，Available = Balance - Frozen
func NewAccountRecord(adapterName, accountID string, balance, frozen float64) AccountRecord {
	return AccountRecord{
		AdapterName: adapterName,
		AccountID:   accountID,
		Balance:     balance,
		Frozen:      frozen,
		Available:   balance - frozen,
	}
}

// VTAccountID 返回规范化账户标识 adapter.accountid
func (a *AccountRecord) VTAccountID() string {
	return a.AdapterName + vtSeparator + a.AccountID
}

// ContractRecord 合约参考数据（不可变）
type ContractRecord struct {
	AdapterName string
	Symbol      string
	Exchange    Exchange
	Name        string
	Product     string
	Size        float64
	PriceTick   float64
	MinVolume   float64
	MaxVolume   float64
	StopOrderSupported bool
	HistorySupported   bool

	Extra map[string]any
}

func (c *ContractRecord) VTSymbol() string {
	return MakeVTSymbol(c.Symbol, c.Exchange)
}

// QuoteRecord 双边报价快照
type QuoteRecord struct {
	AdapterName string
	Symbol      string
	Exchange    Exchange
	QuoteID     string

	BidPrice  float64
	BidVolume float64
	AskPrice  float64
	AskVolume float64
	Status    Status
	Datetime  time.Time
	Reference string

	Extra map[string]any
}

func (q *QuoteRecord) VTSymbol() string {
	return MakeVTSymbol(q.Symbol, q.Exchange)
}

// VTQuoteID 返回规范化报价标识 adapter.quoteid
func (q *QuoteRecord) VTQuoteID() string {
	return q.AdapterName + vtSeparator + q.QuoteID
}

// IsActive 是否为活动报价
func (q *QuoteRecord) IsActive() bool {
	return q.Status.IsActive()
}

// BarRecord K 线数据
type BarRecord struct {
	AdapterName string
	Symbol      string
	Exchange    Exchange
	Datetime    time.Time
	Interval    Interval

	Volume     float64
	Turnover   float64
	OpenPrice  float64
	HighPrice  float64
	LowPrice   float64
	ClosePrice float64
}

func (b *BarRecord) VTSymbol() string {
	return MakeVTSymbol(b.Symbol, b.Exchange)
}

// LogRecord 日志事件载荷
type LogRecord struct {
	AdapterName string
	Level       string
	Msg         string
	Time        time.Time
}
