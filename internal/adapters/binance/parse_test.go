package binance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-trade-engine/internal/model"
)

func TestParseOrderUpdate(t *testing.T) {
	payload := `{
		"s": "BTCUSDT",
		"c": "20260829120000-1",
		"i": 8886774,
		"o": "LIMIT",
		"S": "BUY",
		"p": "50000.0",
		"q": "2",
		"z": "0.5",
		"X": "PARTIALLY_FILLED",
		"T": 1700000000000
	}`

	order := parseOrderUpdate(gjson.Parse(payload))
	assert.Equal(t, "BTCUSDT", order.Symbol)
	assert.Equal(t, model.ExchangeBinance, order.Exchange)
	assert.Equal(t, "20260829120000-1", order.OrderID)
	assert.Equal(t, "8886774", order.VenueOrderID)
	assert.Equal(t, model.OrderTypeLimit, order.Type)
	assert.Equal(t, model.DirectionLong, order.Direction)
	assert.Equal(t, 50000.0, order.Price)
	assert.Equal(t, 2.0, order.Volume)
	assert.Equal(t, 0.5, order.Traded)
	assert.Equal(t, model.StatusPartTraded, order.Status)
}

func TestParseOrderUpdate_UnknownStatus(t *testing.T) {
	// 未知状态按挂单处理，后续由状态机拦截倒退
	order := parseOrderUpdate(gjson.Parse(`{"X":"NEW_INSURANCE"}`))
	assert.Equal(t, model.StatusNotTraded, order.Status)
}

func TestParseTradeFill(t *testing.T) {
	payload := `{
		"s": "BTCUSDT",
		"c": "20260829120000-1",
		"S": "SELL",
		"t": 1573,
		"L": "49999.9",
		"l": "0.5",
		"T": 1700000000000
	}`

	trade := parseTradeFill(gjson.Parse(payload))
	assert.Equal(t, model.DirectionShort, trade.Direction)
	assert.Equal(t, 49999.9, trade.Price)
	assert.Equal(t, 0.5, trade.Volume)
}

func TestParseBookTickerAndAggTrade(t *testing.T) {
	tick := &model.TickRecord{Symbol: "BTCUSDT", Exchange: model.ExchangeBinance}

	parseBookTicker(gjson.Parse(`{"b":"100.1","B":"5","a":"100.2","A":"3","E":1700000000000}`), tick)
	assert.Equal(t, 100.1, tick.BidPrice1)
	assert.Equal(t, 5.0, tick.BidVolume1)
	assert.Equal(t, 100.2, tick.AskPrice1)
	assert.Equal(t, 3.0, tick.AskVolume1)

	// aggTrade 只补充最新成交字段，盘口保持
	parseAggTrade(gjson.Parse(`{"p":"100.15","q":"0.2","E":1700000001000}`), tick)
	assert.Equal(t, 100.15, tick.LastPrice)
	assert.Equal(t, 0.2, tick.LastVolume)
	assert.Equal(t, 100.1, tick.BidPrice1)
}

func TestParseKline(t *testing.T) {
	row := gjson.Parse(`[1700000000000,"100","110","95","105","1234.5",1700000059999,"127000.8"]`)

	bar := parseKline(row, "BTCUSDT", model.IntervalMinute)
	assert.Equal(t, 100.0, bar.OpenPrice)
	assert.Equal(t, 110.0, bar.HighPrice)
	assert.Equal(t, 95.0, bar.LowPrice)
	assert.Equal(t, 105.0, bar.ClosePrice)
	assert.Equal(t, 1234.5, bar.Volume)
	assert.Equal(t, 127000.8, bar.Turnover)
	assert.Equal(t, model.IntervalMinute, bar.Interval)
}

func TestParseKline_Short(t *testing.T) {
	// 字段不足的行返回零值而不是越界
	bar := parseKline(gjson.Parse(`[1700000000000,"100"]`), "BTCUSDT", model.IntervalMinute)
	assert.Equal(t, 0.0, bar.OpenPrice)
}

func TestParseContract(t *testing.T) {
	payload := `{
		"symbol": "BTCUSDT",
		"status": "TRADING",
		"filters": [
			{"filterType": "PRICE_FILTER", "tickSize": "0.10"},
			{"filterType": "LOT_SIZE", "minQty": "0.001", "maxQty": "1000"}
		]
	}`

	contract := parseContract(gjson.Parse(payload))
	assert.Equal(t, "BTCUSDT", contract.Symbol)
	assert.Equal(t, 0.1, contract.PriceTick)
	assert.Equal(t, 0.001, contract.MinVolume)
	assert.Equal(t, 1000.0, contract.MaxVolume)
	assert.Equal(t, "BTCUSDT.BINANCE", contract.VTSymbol())
}

func TestLocalOrderID(t *testing.T) {
	a := &Adapter{orderPrefix: "20260829120000-"}

	assert.Equal(t, "7", a.localOrderID("20260829120000-7"))
	// 非本实例的订单原样保留
	assert.Equal(t, "x-foreign", a.localOrderID("x-foreign"))
}
