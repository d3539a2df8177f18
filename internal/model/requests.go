package model

import "time"

// SubscribeRequest 行情订阅请求
type SubscribeRequest struct {
	Symbol   string
	Exchange Exchange
}

func (r SubscribeRequest) VTSymbol() string {
	return MakeVTSymbol(r.Symbol, r.Exchange)
}

// OrderRequest 委托请求
type OrderRequest struct {
	Symbol    string
	Exchange  Exchange
	Direction Direction
	Type      OrderType
	Volume    float64
	Price     float64
	Offset    Offset
	Reference string
}

func (r OrderRequest) VTSymbol() string {
	return MakeVTSymbol(r.Symbol, r.Exchange)
}

// CreateOrderRecord 由请求生成 SUBMITTING 状态的订单快照
// orderID 必须在任何网络调用之前由适配器本地分配
func (r OrderRequest) CreateOrderRecord(adapterName, orderID string) OrderRecord {
	return OrderRecord{
		AdapterName: adapterName,
		Symbol:      r.Symbol,
		Exchange:    r.Exchange,
		OrderID:     orderID,
		Type:        r.Type,
		Direction:   r.Direction,
		Offset:      r.Offset,
		Price:       r.Price,
		Volume:      r.Volume,
		Status:      StatusSubmitting,
		Datetime:    time.Now(),
		Reference:   r.Reference,
	}
}

// CancelRequest 撤单请求
type CancelRequest struct {
	Symbol   string
	Exchange Exchange
	OrderID  string
}

func (r CancelRequest) VTSymbol() string {
	return MakeVTSymbol(r.Symbol, r.Exchange)
}

// QuoteRequest 双边报价请求
type QuoteRequest struct {
	Symbol    string
	Exchange  Exchange
	BidPrice  float64
	BidVolume float64
	AskPrice  float64
	AskVolume float64
	Reference string
}

func (r QuoteRequest) VTSymbol() string {
	return MakeVTSymbol(r.Symbol, r.Exchange)
}

// CreateQuoteRecord 由请求生成 SUBMITTING 状态的报价快照
func (r QuoteRequest) CreateQuoteRecord(adapterName, quoteID string) QuoteRecord {
	return QuoteRecord{
		AdapterName: adapterName,
		Symbol:      r.Symbol,
		Exchange:    r.Exchange,
		QuoteID:     quoteID,
		BidPrice:    r.BidPrice,
		BidVolume:   r.BidVolume,
		AskPrice:    r.AskPrice,
		AskVolume:   r.AskVolume,
		Status:      StatusSubmitting,
		Datetime:    time.Now(),
		Reference:   r.Reference,
	}
}

// CancelQuoteRequest 撤销报价请求
type CancelQuoteRequest struct {
	Symbol   string
	Exchange Exchange
	QuoteID  string
}

// HistoryRequest 历史 K 线请求
type HistoryRequest struct {
	Symbol   string
	Exchange Exchange
	Start    time.Time
	End      time.Time
	Interval Interval
}

func (r HistoryRequest) VTSymbol() string {
	return MakeVTSymbol(r.Symbol, r.Exchange)
}
