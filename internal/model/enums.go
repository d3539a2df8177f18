package model

// Exchange 交易所标识
type Exchange string

const (
	ExchangeBinance Exchange = "BINANCE"
	ExchangeOKX     Exchange = "OKX"
	ExchangeBybit   Exchange = "BYBIT"
	ExchangePaper   Exchange = "PAPER"
	ExchangeLocal   Exchange = "LOCAL"
)

// Direction 买卖方向
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionNet   Direction = "NET"
)

// Offset 开平方向
type Offset string

const (
	OffsetNone  Offset = "NONE"
	OffsetOpen  Offset = "OPEN"
	OffsetClose Offset = "CLOSE"
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeFAK    OrderType = "FAK"
	OrderTypeFOK    OrderType = "FOK"
)

// Status 订单状态
type Status string

const (
	StatusSubmitting Status = "SUBMITTING"
	StatusNotTraded  Status = "NOTTRADED"
	StatusPartTraded Status = "PARTTRADED"
	StatusAllTraded  Status = "ALLTRADED"
	StatusCancelled  Status = "CANCELLED"
	StatusRejected   Status = "REJECTED"
)

// IsActive 是否为非终止状态
func (s Status) IsActive() bool {
	switch s {
	case StatusSubmitting, StatusNotTraded, StatusPartTraded:
		return true
	default:
		return false
	}
}

// IsTerminal 是否为终止状态
func (s Status) IsTerminal() bool {
	return !s.IsActive()
}

// CanTransitionTo 校验状态机转移是否合法
// SUBMITTING → NOTTRADED → PARTTRADED → ALLTRADED
// NOTTRADED|PARTTRADED → CANCELLED；SUBMITTING → REJECTED
// 终止状态没有出边
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		// 同状态允许更新（例如 PARTTRADED 累积成交）
		return s.IsActive()
	}

	switch s {
	case StatusSubmitting:
		return next == StatusNotTraded || next == StatusPartTraded ||
			next == StatusAllTraded || next == StatusRejected
	case StatusNotTraded:
		return next == StatusPartTraded || next == StatusAllTraded || next == StatusCancelled
	case StatusPartTraded:
		return next == StatusAllTraded || next == StatusCancelled
	default:
		return false
	}
}

// Interval K 线周期
type Interval string

const (
	IntervalMinute Interval = "1m"
	IntervalHour   Interval = "1h"
	IntervalDaily  Interval = "d"
	IntervalWeekly Interval = "w"
)

// ConnectionState 流式连接状态
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	case StateReconnecting:
		return "RECONNECTING"
	default:
		return "UNKNOWN"
	}
}
