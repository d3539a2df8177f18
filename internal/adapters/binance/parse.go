package binance

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-trade-engine/internal/model"
)

// 币安订单状态 → 内部状态
var statusMap = map[string]model.Status{
	"NEW":              model.StatusNotTraded,
	"PARTIALLY_FILLED": model.StatusPartTraded,
	"FILLED":           model.StatusAllTraded,
	"CANCELED":         model.StatusCancelled,
	"EXPIRED":          model.StatusCancelled,
	"REJECTED":         model.StatusRejected,
}

// 币安买卖方向 → 内部方向
var directionMap = map[string]model.Direction{
	"BUY":  model.DirectionLong,
	"SELL": model.DirectionShort,
}

var directionMapReverse = map[model.Direction]string{
	model.DirectionLong:  "BUY",
	model.DirectionShort: "SELL",
}

var orderTypeMapReverse = map[model.OrderType]string{
	model.OrderTypeLimit:  "LIMIT",
	model.OrderTypeMarket: "MARKET",
}

// 内部周期 → 币安 K 线周期
var intervalMap = map[model.Interval]string{
	model.IntervalMinute: "1m",
	model.IntervalHour:   "1h",
	model.IntervalDaily:  "1d",
	model.IntervalWeekly: "1w",
}

// parseBookTicker 最优买卖价推送 → 行情快照增量
func parseBookTicker(body gjson.Result, tick *model.TickRecord) {
	tick.BidPrice1 = body.Get("b").Float()
	tick.BidVolume1 = body.Get("B").Float()
	tick.AskPrice1 = body.Get("a").Float()
	tick.AskVolume1 = body.Get("A").Float()
	tick.Datetime = time.UnixMilli(body.Get("E").Int())
}

// parseAggTrade 归集成交推送 → 行情快照增量
func parseAggTrade(body gjson.Result, tick *model.TickRecord) {
	tick.LastPrice = body.Get("p").Float()
	tick.LastVolume = body.Get("q").Float()
	tick.Datetime = time.UnixMilli(body.Get("E").Int())
}

// parseOrderUpdate ORDER_TRADE_UPDATE 推送 → 订单快照
// 状态未知时按挂单处理，由状态机拦截倒退
func parseOrderUpdate(o gjson.Result) model.OrderRecord {
	status, ok := statusMap[o.Get("X").String()]
	if !ok {
		status = model.StatusNotTraded
	}

	return model.OrderRecord{
		Symbol:       o.Get("s").String(),
		Exchange:     model.ExchangeBinance,
		OrderID:      o.Get("c").String(), // 客户端订单号即本地单号
		VenueOrderID: o.Get("i").String(),
		Type:         parseOrderType(o.Get("o").String()),
		Direction:    directionMap[o.Get("S").String()],
		Price:        o.Get("p").Float(),
		Volume:       o.Get("q").Float(),
		Traded:       o.Get("z").Float(),
		Status:       status,
		Datetime:     time.UnixMilli(o.Get("T").Int()),
	}
}

// parseTradeFill ORDER_TRADE_UPDATE 内嵌的成交明细
func parseTradeFill(o gjson.Result) model.TradeRecord {
	return model.TradeRecord{
		Symbol:    o.Get("s").String(),
		Exchange:  model.ExchangeBinance,
		OrderID:   o.Get("c").String(),
		TradeID:   o.Get("t").String(),
		Direction: directionMap[o.Get("S").String()],
		Price:     o.Get("L").Float(),
		Volume:    o.Get("l").Float(),
		Datetime:  time.UnixMilli(o.Get("T").Int()),
	}
}

func parseOrderType(s string) model.OrderType {
	if s == "MARKET" {
		return model.OrderTypeMarket
	}
	return model.OrderTypeLimit
}

// parseKline REST K 线数组元素 → K 线记录
func parseKline(row gjson.Result, symbol string, interval model.Interval) model.BarRecord {
	fields := row.Array()
	if len(fields) < 8 {
		return model.BarRecord{}
	}

	return model.BarRecord{
		Symbol:     symbol,
		Exchange:   model.ExchangeBinance,
		Datetime:   time.UnixMilli(fields[0].Int()),
		Interval:   interval,
		OpenPrice:  fields[1].Float(),
		HighPrice:  fields[2].Float(),
		LowPrice:   fields[3].Float(),
		ClosePrice: fields[4].Float(),
		Volume:     fields[5].Float(),
		Turnover:   fields[7].Float(),
	}
}

// parseContract exchangeInfo 合约条目 → 合约参考数据
func parseContract(row gjson.Result) model.ContractRecord {
	contract := model.ContractRecord{
		Symbol:           row.Get("symbol").String(),
		Exchange:         model.ExchangeBinance,
		Name:             row.Get("symbol").String(),
		Product:          "FUTURES",
		Size:             1,
		HistorySupported: true,
	}

	for _, filter := range row.Get("filters").Array() {
		switch filter.Get("filterType").String() {
		case "PRICE_FILTER":
			contract.PriceTick = filter.Get("tickSize").Float()
		case "LOT_SIZE":
			contract.MinVolume = filter.Get("minQty").Float()
			contract.MaxVolume = filter.Get("maxQty").Float()
		}
	}
	return contract
}
